// Package identity assigns system identity to validated readings and owns
// the duplicate-reconciliation policy.
//
// Identifier generation and the clock are injected capabilities so tests
// can substitute deterministic implementations.
package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apc-tools/apcstore/internal/errors"
	"github.com/apc-tools/apcstore/internal/reading"
)

// IDProvider generates reading identifiers.
type IDProvider interface {
	NewID() (uuid.UUID, error)
}

// Clock supplies the acceptance timestamp.
type Clock interface {
	Now() time.Time
}

// RandomIDs generates random (v4) UUIDs. Collision probability is treated
// as negligible.
type RandomIDs struct{}

// NewID implements IDProvider.
func (RandomIDs) NewID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SequenceIDs returns identifiers from a fixed list. For deterministic
// tests.
type SequenceIDs struct {
	IDs  []uuid.UUID
	next int
}

// NewID implements IDProvider.
func (s *SequenceIDs) NewID() (uuid.UUID, error) {
	if s.next >= len(s.IDs) {
		return uuid.Nil, fmt.Errorf("sequence exhausted after %d ids", len(s.IDs))
	}
	id := s.IDs[s.next]
	s.next++
	return id, nil
}

// FixedClock always reports the same instant. For deterministic tests.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return c.T
}

// Assigner stamps validated readings with a fresh id and acceptance time.
type Assigner struct {
	ids   IDProvider
	clock Clock
}

// New creates an assigner with the given capabilities. Nil arguments fall
// back to random UUIDs and the system clock.
func New(ids IDProvider, clock Clock) *Assigner {
	if ids == nil {
		ids = RandomIDs{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Assigner{ids: ids, clock: clock}
}

// Assign turns a validated reading into a full Reading with a fresh unique
// id and created_on stamped from the injected clock.
func (a *Assigner) Assign(v *reading.Validated) (*reading.Reading, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	return &reading.Reading{
		ID:              id,
		CreatedOn:       a.clock.Now().Truncate(time.Millisecond),
		MeasurementTime: v.MeasurementTime,
		Location:        v.Location,
		DeviceSN:        v.DeviceSN,
		TVOC:            v.TVOC,
		ECO2:            v.ECO2,
		AQI:             v.AQI,
		Temperature:     v.Temperature,
		Humidity:        v.Humidity,
		PM1_0:           v.PM1_0,
		PM2_5:           v.PM2_5,
		PM10:            v.PM10,
		PM1_0InAir:      v.PM1_0InAir,
		PM2_5InAir:      v.PM2_5InAir,
		PM10InAir:       v.PM10InAir,
		UM0_3Particles:  v.UM0_3Particles,
		UM0_5Particles:  v.UM0_5Particles,
		UM1Particles:    v.UM1Particles,
		UM2_5Particles:  v.UM2_5Particles,
		UM5Particles:    v.UM5Particles,
		UM10Particles:   v.UM10Particles,
	}, nil
}

// Reconcile applies the duplicate policy after the store reported an
// existing reading for r's dedup key. An exact payload match is a harmless
// retransmission and short-circuits to the stored reading's id; a differing
// payload is a conflict and is never silently overwritten.
func (a *Assigner) Reconcile(r, existing *reading.Reading) (uuid.UUID, error) {
	if r.SamePayload(existing) {
		return existing.ID, nil
	}
	return uuid.Nil, errors.NewConflict(r.DeviceSN, r.MeasurementTime.UTC().Format(time.RFC3339Nano))
}
