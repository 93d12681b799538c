package store

import (
	"database/sql"

	"github.com/apc-tools/apcstore/internal/reading"
)

// Cursor is a lazy, finite iterator over a range query's results.
//
// Usage mirrors sql.Rows:
//
//	cur, err := st.RangeQuery(ctx, sn, from, to)
//	if err != nil { ... }
//	defer cur.Close()
//	for cur.Next() {
//		r := cur.Reading()
//		...
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	rows *sql.Rows
	cur  *reading.Reading
	err  error
}

// Next advances to the next reading. It returns false when the scan is
// exhausted or failed; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = classify(c.rows.Err())
		return false
	}

	r, err := scanReading(c.rows)
	if err != nil {
		c.err = classify(err)
		return false
	}

	c.cur = r
	return true
}

// Reading returns the reading at the current position. Only valid after a
// true Next.
func (c *Cursor) Reading() *reading.Reading {
	return c.cur
}

// Err returns the first error encountered during iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying result set. Safe to call more than once.
func (c *Cursor) Close() error {
	return c.rows.Close()
}
