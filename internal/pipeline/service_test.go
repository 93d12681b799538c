package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apc-tools/apcstore/internal/config"
	"github.com/apc-tools/apcstore/internal/errors"
	"github.com/apc-tools/apcstore/internal/identity"
	"github.com/apc-tools/apcstore/internal/reading"
	"github.com/apc-tools/apcstore/internal/store"
	"github.com/apc-tools/apcstore/internal/validate"
)

// fakeStore is an in-memory Store with the same insert-if-absent contract
// as the DuckDB store.
type fakeStore struct {
	mu       sync.Mutex
	byKey    map[string]*reading.Reading
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*reading.Reading{}}
}

func (f *fakeStore) key(r *reading.Reading) string {
	return r.DeviceSN + "/" + strconv.FormatInt(r.MeasurementTime.UnixMilli(), 10)
}

func (f *fakeStore) InsertIfAbsent(_ context.Context, r *reading.Reading) (*reading.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}

	key := f.key(r)
	if existing, ok := f.byKey[key]; ok {
		cp := *existing
		return &cp, nil
	}

	cp := *r
	f.byKey[key] = &cp
	return nil, nil
}

func (f *fakeStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

func intPtr(v int) *int {
	return &v
}

func testRaw(deviceSN string, measurementTime time.Time) *reading.Raw {
	return &reading.Raw{
		MeasurementTime: measurementTime,
		Location:        "Lobby",
		DeviceSN:        deviceSN,
		TVOC:            intPtr(125),
		ECO2:            intPtr(450),
		AQI:             intPtr(2),
		Temperature:     intPtr(215),
		Humidity:        intPtr(480),
		PM1_0:           intPtr(3),
		PM2_5:           intPtr(7),
		PM10:            intPtr(11),
		PM1_0InAir:      intPtr(3),
		PM2_5InAir:      intPtr(8),
		PM10InAir:       intPtr(12),
		UM0_3Particles:  intPtr(900),
		UM0_5Particles:  intPtr(260),
		UM1Particles:    intPtr(60),
		UM2_5Particles:  intPtr(12),
		UM5Particles:    intPtr(4),
		UM10Particles:   intPtr(1),
	}
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(st Store) *Service {
	cfg := config.Default()
	return New(validate.New(cfg.Validation), identity.New(nil, nil), st)
}

func TestIngest_Accepts(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)

	id, err := svc.Ingest(context.Background(), testRaw("APC-001", t0))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if id == uuid.Nil {
		t.Error("expected a non-nil id")
	}
	if st.len() != 1 {
		t.Errorf("expected 1 stored reading, got %d", st.len())
	}

	stats := svc.Stats()
	if stats.Received != 1 || stats.Accepted != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, testRaw("APC-001", t0))
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	second, err := svc.Ingest(ctx, testRaw("APC-001", t0))
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if first != second {
		t.Errorf("expected the same id, got %v and %v", first, second)
	}
	if st.len() != 1 {
		t.Errorf("expected exactly one stored reading, got %d", st.len())
	}

	stats := svc.Stats()
	if stats.Accepted != 1 || stats.Duplicates != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIngest_Conflict(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, testRaw("APC-001", t0)); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	conflicting := testRaw("APC-001", t0)
	conflicting.AQI = intPtr(5)

	_, err := svc.Ingest(ctx, conflicting)
	if !errors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The store retains only the first.
	if st.len() != 1 {
		t.Errorf("expected 1 stored reading, got %d", st.len())
	}

	stats := svc.Stats()
	if stats.Conflicts != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIngest_ValidationRejected(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)

	raw := testRaw("APC-001", t0)
	raw.Humidity = nil
	raw.PM10 = nil

	_, err := svc.Ingest(context.Background(), raw)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ferrs *errors.FieldErrors
	if !errors.As(err, &ferrs) {
		t.Fatalf("expected *errors.FieldErrors, got %T", err)
	}
	if len(ferrs.Fields()) != 2 {
		t.Errorf("expected both violations reported, got %v", ferrs.Fields())
	}

	if st.len() != 0 {
		t.Error("rejected reading must not reach the store")
	}

	stats := svc.Stats()
	if stats.Rejected != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIngest_AssignFailure(t *testing.T) {
	st := newFakeStore()
	cfg := config.Default()
	// An exhausted id sequence fails every Assign.
	svc := New(validate.New(cfg.Validation), identity.New(&identity.SequenceIDs{}, nil), st)

	_, err := svc.Ingest(context.Background(), testRaw("APC-001", t0))
	if err == nil {
		t.Fatal("expected an id generation error")
	}

	if st.len() != 0 {
		t.Error("reading without identity must not reach the store")
	}

	stats := svc.Stats()
	if stats.AssignErrors != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if stats.StoreErrors != 0 {
		t.Errorf("store error counted for a non-store failure: %+v", stats)
	}
}

func TestIngest_StoreUnavailable(t *testing.T) {
	st := newFakeStore()
	st.failWith = errors.Wrap(errors.ErrUnavailable, "insert timed out")
	svc := newTestService(st)

	_, err := svc.Ingest(context.Background(), testRaw("APC-001", t0))
	if !errors.IsRetriable(err) {
		t.Fatalf("expected retryable unavailable error, got %v", err)
	}

	stats := svc.Stats()
	if stats.StoreErrors != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIngestBatch(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)

	raws := []*reading.Raw{
		testRaw("APC-001", t0),
		testRaw("APC-002", t0),
		testRaw("APC-001", t0), // duplicate of the first
	}
	bad := testRaw("APC-003", t0)
	bad.TVOC = nil
	raws = append(raws, bad)

	results := svc.IngestBatch(context.Background(), raws)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	for i := 0; i < 3; i++ {
		if results[i].Err != nil {
			t.Errorf("result %d: unexpected error %v", i, results[i].Err)
		}
	}
	if results[0].ID != results[2].ID {
		t.Error("duplicate item should resolve to the first item's id")
	}
	if !errors.IsValidation(results[3].Err) {
		t.Errorf("result 3: expected validation error, got %v", results[3].Err)
	}

	if st.len() != 2 {
		t.Errorf("expected 2 stored readings, got %d", st.len())
	}
}

// TestIngest_EndToEnd runs the pipeline against the real DuckDB store.
func TestIngest_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "readings.db")

	st, err := store.New(cfg.Store)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()

	svc := New(validate.New(cfg.Validation), identity.New(nil, nil), st)
	ctx := context.Background()

	raw := testRaw("APC-001", t0)
	id, err := svc.Ingest(ctx, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a non-nil id")
	}

	got, err := st.FindByKey(ctx, "APC-001", t0)
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}

	if got.ID != id {
		t.Errorf("id: got %v, want %v", got.ID, id)
	}
	if got.Location != "Lobby" || got.DeviceSN != "APC-001" {
		t.Errorf("identity fields: %+v", got)
	}
	if !got.MeasurementTime.Equal(t0) {
		t.Errorf("measurement_time: got %v, want %v", got.MeasurementTime, t0)
	}
	if got.TVOC != 125 || got.ECO2 != 450 || got.AQI != 2 ||
		got.Temperature != 215 || got.Humidity != 480 {
		t.Errorf("gas fields: %+v", got)
	}
	if got.PM1_0 != 3 || got.PM2_5 != 7 || got.PM10 != 11 ||
		got.PM1_0InAir != 3 || got.PM2_5InAir != 8 || got.PM10InAir != 12 {
		t.Errorf("particulate fields: %+v", got)
	}
	if got.UM0_3Particles != 900 || got.UM10Particles != 1 {
		t.Errorf("particle counts: %+v", got)
	}
	if got.CreatedOn.IsZero() {
		t.Error("created_on not stamped")
	}

	// Re-ingesting the identical reading is idempotent end to end.
	again, err := svc.Ingest(ctx, testRaw("APC-001", t0))
	if err != nil {
		t.Fatalf("re-Ingest: %v", err)
	}
	if again != id {
		t.Errorf("expected the original id, got %v", again)
	}

	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one row, got %d", n)
	}
}
