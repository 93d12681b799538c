package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/apc-tools/apcstore/internal/errors"
	"github.com/apc-tools/apcstore/internal/reading"
)

// readingColumns is the column list for every reading query, in schema
// order.
const readingColumns = `id, created_on_ms, measurement_time_ms, location, device_sn,
	tvoc, eco2, aqi, temperature, humidity,
	pm1_0, pm2_5, pm10, pm1_0_in_air, pm2_5_in_air, pm10_in_air,
	um0_3_particles, um0_5_particles, um1_particles, um2_5_particles, um5_particles, um10_particles`

const insertReadingSQL = `
INSERT INTO readings (` + readingColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const findByKeySQL = `
SELECT ` + readingColumns + `
FROM readings
WHERE device_sn = ? AND measurement_time_ms = ?
LIMIT 1`

const rangeQuerySQL = `
SELECT ` + readingColumns + `
FROM readings
WHERE device_sn = ? AND measurement_time_ms >= ? AND measurement_time_ms <= ?
ORDER BY measurement_time_ms ASC`

const latestSQL = `
SELECT ` + readingColumns + `
FROM readings
WHERE device_sn = ?
ORDER BY measurement_time_ms DESC
LIMIT 1`

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanReading scans one row into a Reading.
func scanReading(sc scanner) (*reading.Reading, error) {
	var r reading.Reading
	var idStr string
	var createdMs, measuredMs int64

	err := sc.Scan(
		&idStr, &createdMs, &measuredMs, &r.Location, &r.DeviceSN,
		&r.TVOC, &r.ECO2, &r.AQI, &r.Temperature, &r.Humidity,
		&r.PM1_0, &r.PM2_5, &r.PM10, &r.PM1_0InAir, &r.PM2_5InAir, &r.PM10InAir,
		&r.UM0_3Particles, &r.UM0_5Particles, &r.UM1Particles,
		&r.UM2_5Particles, &r.UM5Particles, &r.UM10Particles,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCorrupt, "malformed reading id '"+idStr+"'")
	}

	r.ID = id
	r.CreatedOn = time.UnixMilli(createdMs).UTC()
	r.MeasurementTime = time.UnixMilli(measuredMs).UTC()

	return &r, nil
}

// insertArgs flattens a reading into insert parameters, in schema order.
func insertArgs(r *reading.Reading) []any {
	return []any{
		r.ID.String(),
		r.CreatedOn.UnixMilli(),
		r.MeasurementTime.UnixMilli(),
		r.Location,
		r.DeviceSN,
		r.TVOC, r.ECO2, r.AQI, r.Temperature, r.Humidity,
		r.PM1_0, r.PM2_5, r.PM10,
		r.PM1_0InAir, r.PM2_5InAir, r.PM10InAir,
		r.UM0_3Particles, r.UM0_5Particles, r.UM1Particles,
		r.UM2_5Particles, r.UM5Particles, r.UM10Particles,
	}
}

// InsertIfAbsent durably appends r unless a reading with the same
// (device_sn, measurement_time) dedup key already exists.
//
// It returns (nil, nil) when r was inserted, and (existing, nil) when the
// key was already present; the caller reconciles the existing reading as
// either an idempotent duplicate or a conflict. The key is enforced by a
// unique index, so two concurrent inserts of the same key can never both
// commit: the loser's uniqueness violation is resolved here by re-reading
// the winner's row and handing it back for reconciliation.
func (s *Store) InsertIfAbsent(ctx context.Context, r *reading.Reading) (*reading.Reading, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	ctx, cancel := s.defaultContext(ctx)
	defer cancel()

	var existing *reading.Reading

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, findByKeySQL, r.DeviceSN, r.MeasurementTime.UnixMilli())

		found, err := scanReading(row)
		switch {
		case err == nil:
			existing = found
			return nil
		case errors.Is(err, sql.ErrNoRows):
			// No duplicate; fall through to the insert.
		default:
			return err
		}

		_, err = tx.ExecContext(ctx, insertReadingSQL, insertArgs(r)...)
		return err
	})
	if err != nil {
		if isDedupKeyViolation(err) {
			// Lost a same-key race after the existence check. If the
			// winner committed, hand its row back; if it aborted, the key
			// is free again and a retry resolves.
			won, ferr := s.FindByKey(ctx, r.DeviceSN, r.MeasurementTime)
			if errors.Is(ferr, errors.ErrNotFound) {
				return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
			}
			if ferr != nil {
				return nil, ferr
			}
			return won, nil
		}
		return nil, classify(err)
	}

	return existing, nil
}

// FindByKey returns the reading stored for the dedup key, or ErrNotFound.
func (s *Store) FindByKey(ctx context.Context, deviceSN string, measurementTime time.Time) (*reading.Reading, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	ctx, cancel := s.defaultContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, findByKeySQL, deviceSN, measurementTime.UnixMilli())

	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("reading", deviceSN+"@"+measurementTime.UTC().Format(time.RFC3339Nano))
	}
	if err != nil {
		return nil, classify(err)
	}

	return r, nil
}

// RangeQuery returns a lazy cursor over the readings of one device with
// from <= measurement_time <= to, ordered by measurement_time ascending.
// Each call issues a fresh scan, so the sequence is restartable. The
// caller must Close the cursor; the caller's context governs its
// lifetime.
func (s *Store) RangeQuery(ctx context.Context, deviceSN string, from, to time.Time) (*Cursor, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, rangeQuerySQL, deviceSN, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, classify(err)
	}

	return &Cursor{rows: rows}, nil
}

// RangeQueryAll materializes RangeQuery into a slice.
func (s *Store) RangeQueryAll(ctx context.Context, deviceSN string, from, to time.Time) ([]*reading.Reading, error) {
	cur, err := s.RangeQuery(ctx, deviceSN, from, to)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var readings []*reading.Reading
	for cur.Next() {
		readings = append(readings, cur.Reading())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

// Latest returns the reading with the greatest measurement_time for the
// device, or ErrNotFound. It is a bounded reverse scan on the composite
// index, not a separate structure.
func (s *Store) Latest(ctx context.Context, deviceSN string) (*reading.Reading, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	ctx, cancel := s.defaultContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, latestSQL, deviceSN)

	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("reading", deviceSN)
	}
	if err != nil {
		return nil, classify(err)
	}

	return r, nil
}

// Count returns the total number of stored readings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	ctx, cancel := s.defaultContext(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, classify(err)
	}

	return n, nil
}
