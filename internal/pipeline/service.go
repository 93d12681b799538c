// Package pipeline orchestrates reading ingestion: validate, assign
// identity, commit to the store.
//
// Service.Ingest is the sole entry point exposed to upstream transport
// collaborators. The pipeline is stateless beyond its store handle and
// counters, and is safely callable in parallel; same-key races are
// resolved inside the store's insert-if-absent, backed by the unique
// index on the dedup key.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/apc-tools/apcstore/internal/errors"
	"github.com/apc-tools/apcstore/internal/identity"
	"github.com/apc-tools/apcstore/internal/logging"
	"github.com/apc-tools/apcstore/internal/reading"
	"github.com/apc-tools/apcstore/internal/validate"
)

// Store is the persistence contract the pipeline writes through. Any
// backend that offers atomic insert-if-absent semantics on the dedup key
// can implement it.
type Store interface {
	// InsertIfAbsent appends r unless its dedup key already exists, in
	// which case it returns the stored reading instead.
	InsertIfAbsent(ctx context.Context, r *reading.Reading) (*reading.Reading, error)
}

// defaultBatchWorkers bounds concurrent batch item processing.
const defaultBatchWorkers = 8

// Service is the ingestion pipeline.
type Service struct {
	validator *validate.Validator
	assigner  *identity.Assigner
	store     Store
	log       *slog.Logger

	batchWorkers int

	stats Stats
}

// Stats holds ingestion counters.
type Stats struct {
	Received     atomic.Int64
	Accepted     atomic.Int64
	Duplicates   atomic.Int64
	Conflicts    atomic.Int64
	Rejected     atomic.Int64
	AssignErrors atomic.Int64
	StoreErrors  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Received     int64
	Accepted     int64
	Duplicates   int64
	Conflicts    int64
	Rejected     int64
	AssignErrors int64
	StoreErrors  int64
}

// New creates an ingestion pipeline.
func New(v *validate.Validator, a *identity.Assigner, st Store) *Service {
	return &Service{
		validator:    v,
		assigner:     a,
		store:        st,
		log:          logging.Component("pipeline"),
		batchWorkers: defaultBatchWorkers,
	}
}

// Ingest validates raw, assigns identity and commits the reading.
//
// On success it returns the stored reading's id; re-ingesting an identical
// reading returns the original id (idempotent). Failures are typed:
// *errors.FieldErrors for malformed input, errors.ErrConflict for a
// same-key/different-payload duplicate, errors.ErrUnavailable (retryable)
// or errors.ErrCorrupt (fatal) for backend failures.
func (s *Service) Ingest(ctx context.Context, raw *reading.Raw) (uuid.UUID, error) {
	s.stats.Received.Add(1)

	validated, err := s.validator.Validate(raw)
	if err != nil {
		s.stats.Rejected.Add(1)
		s.log.Warn("reading rejected", "device_sn", raw.DeviceSN, "error", err)
		return uuid.Nil, err
	}

	r, err := s.assigner.Assign(validated)
	if err != nil {
		s.stats.AssignErrors.Add(1)
		s.log.Error("identity assignment failed", "device_sn", validated.DeviceSN, "error", err)
		return uuid.Nil, err
	}

	existing, err := s.store.InsertIfAbsent(ctx, r)
	if err != nil {
		s.stats.StoreErrors.Add(1)
		s.log.Error("store insert failed", "device_sn", r.DeviceSN, "error", err,
			"retryable", errors.IsRetriable(err))
		return uuid.Nil, err
	}

	if existing != nil {
		id, err := s.assigner.Reconcile(r, existing)
		if err != nil {
			s.stats.Conflicts.Add(1)
			s.log.Error("conflicting duplicate", "device_sn", r.DeviceSN,
				"measurement_time", r.MeasurementTime, "error", err)
			return uuid.Nil, err
		}
		s.stats.Duplicates.Add(1)
		s.log.Debug("duplicate retransmission", "device_sn", r.DeviceSN, "id", id)
		return id, nil
	}

	s.stats.Accepted.Add(1)
	s.log.Debug("reading accepted", "device_sn", r.DeviceSN, "id", r.ID)
	return r.ID, nil
}

// BatchResult is the per-item outcome of IngestBatch.
type BatchResult struct {
	ID  uuid.UUID
	Err error
}

// IngestBatch ingests raws with bounded concurrency. Items are independent
// (distinct devices must not interfere), so a failing item never aborts
// the rest; results are returned per item, index-aligned with the input.
func (s *Service) IngestBatch(ctx context.Context, raws []*reading.Raw) []BatchResult {
	results := make([]BatchResult, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)

	for i, raw := range raws {
		g.Go(func() error {
			id, err := s.Ingest(ctx, raw)
			results[i] = BatchResult{ID: id, Err: err}
			return nil
		})
	}

	// Workers never return errors; outcomes are in results.
	_ = g.Wait()

	return results
}

// Stats returns a snapshot of the ingestion counters.
func (s *Service) Stats() StatsSnapshot {
	return StatsSnapshot{
		Received:     s.stats.Received.Load(),
		Accepted:     s.stats.Accepted.Load(),
		Duplicates:   s.stats.Duplicates.Load(),
		Conflicts:    s.stats.Conflicts.Load(),
		Rejected:     s.stats.Rejected.Load(),
		AssignErrors: s.stats.AssignErrors.Load(),
		StoreErrors:  s.stats.StoreErrors.Load(),
	}
}
