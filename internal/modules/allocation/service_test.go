// Orchestration tests with in-memory collaborators; the reservation fake
// enforces the same all-or-nothing CAS the store does (run with -race).
package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetbook/internal/logging"
	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/ledger"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

type stubResolver struct {
	rule rules.Rule
	err  error
}

func (s *stubResolver) Resolve(context.Context, rules.Query) (rules.Rule, error) {
	if s.err != nil {
		return rules.Rule{}, s.err
	}
	return s.rule, nil
}

type stubSource struct {
	pool []availability.Candidate
	err  error
}

func (s *stubSource) FetchCandidates(context.Context, string) ([]availability.Candidate, error) {
	return s.pool, s.err
}

// memReservations mirrors the store's contract: both resources flip together
// or neither does.
type memReservations struct {
	mu       sync.Mutex
	reserved map[types.ID]bool
}

func newMemReservations() *memReservations {
	return &memReservations{reserved: make(map[types.ID]bool)}
}

func (m *memReservations) Reserve(_ context.Context, vehicleID, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved[vehicleID] || m.reserved[driverID] {
		return availability.ErrConflict
	}
	m.reserved[vehicleID] = true
	m.reserved[driverID] = true
	return nil
}

func (m *memReservations) Release(_ context.Context, vehicleID, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, vehicleID)
	delete(m.reserved, driverID)
	return nil
}

type memLedger struct {
	mu        sync.Mutex
	entries   []ledger.Entry
	recordErr error
	nextID    int
}

func (m *memLedger) Record(_ context.Context, e ledger.Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return "", m.recordErr
	}
	m.nextID++
	e.ID = fmt.Sprintf("log-%d", m.nextID)
	e.Status = ledger.StatusAllocated
	e.AllocatedAt = time.Now()
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *memLedger) MarkReleased(_ context.Context, vehicleID, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].VehicleID == vehicleID && m.entries[i].DriverID == driverID {
			m.entries[i].Status = ledger.StatusReleased
		}
	}
	return nil
}

func (m *memLedger) History(_ context.Context, tripID types.ID) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].TripID == tripID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func testCandidate(n int, pos types.Point) availability.Candidate {
	return availability.Candidate{
		VehicleID:    types.ID(fmt.Sprintf("v%d", n)),
		Registration: fmt.Sprintf("KA01AB%04d", n),
		Make:         "Toyota",
		Model:        "Innova",
		Category:     "sedan",
		Ownership:    availability.OwnershipOwn,
		RatePerKm:    15,
		LocationName: "Koramangala",
		Position:     pos,
		FuelPercent:  85,
		DriverID:     types.ID(fmt.Sprintf("d%d", n)),
		DriverName:   fmt.Sprintf("Driver %d", n),
		DriverMobile: "9999999999",
		DriverRating: 4.5,
		DriverTrips:  100,
	}
}

func newTestService(pool []availability.Candidate) (*Service, *memReservations, *memLedger) {
	res := newMemReservations()
	led := &memLedger{}
	svc := NewService(
		&stubResolver{rule: rules.DefaultRule()},
		&stubSource{pool: pool},
		res,
		led,
		time.Second,
	)
	svc.log = logging.Nop()
	return svc, res, led
}

func TestAllocate_SelectsBestAndRecords(t *testing.T) {
	pool := []availability.Candidate{
		testCandidate(1, types.Point{Lat: 13.05, Lng: 77.75}), // farther out
		testCandidate(2, types.Point{Lat: 12.85, Lng: 77.66}), // near pickup
	}
	svc, res, led := newTestService(pool)

	got := svc.Allocate(context.Background(), bangaloreRequest(), "dispatcher-1")

	require.True(t, got.Success)
	require.NoError(t, got.Err)
	require.Equal(t, types.ID("v2"), got.Vehicle.VehicleID)
	require.Equal(t, types.ID("d2"), got.Driver.DriverID)
	require.Equal(t, "Default Rule", got.RuleUsed)
	require.NotEmpty(t, got.LedgerID)
	require.Greater(t, got.EstimatedCost, 0.0)
	require.GreaterOrEqual(t, got.Score.Composite, 0.0)
	require.LessOrEqual(t, got.Score.Composite, 100.0)

	// Winner is now held.
	require.True(t, res.reserved["v2"])
	require.True(t, res.reserved["d2"])
	require.False(t, res.reserved["v1"])

	require.Len(t, led.entries, 1)
	require.Equal(t, types.ID("dispatcher-1"), led.entries[0].AllocatedBy)
	require.Equal(t, ledger.StatusAllocated, led.entries[0].Status)
}

func TestAllocate_Deterministic(t *testing.T) {
	pool := []availability.Candidate{
		testCandidate(1, types.Point{Lat: 12.95, Lng: 77.70}),
		testCandidate(2, types.Point{Lat: 12.85, Lng: 77.66}),
		testCandidate(3, types.Point{Lat: 13.10, Lng: 77.60}),
	}

	svcA, _, _ := newTestService(pool)
	svcB, _, _ := newTestService(pool)

	a := svcA.Allocate(context.Background(), bangaloreRequest(), "actor")
	b := svcB.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.True(t, a.Success)
	require.True(t, b.Success)
	require.Equal(t, a.Vehicle.VehicleID, b.Vehicle.VehicleID)
	require.Equal(t, a.Score.Composite, b.Score.Composite)
	require.Equal(t, a.EstimatedCost, b.EstimatedCost)
}

func TestAllocate_EmptyPool(t *testing.T) {
	svc, _, led := newTestService(nil)

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.False(t, got.Success)
	require.ErrorIs(t, got.Err, ErrNoCandidates)
	require.Empty(t, led.entries)
}

func TestAllocate_RuleNotFound(t *testing.T) {
	svc, _, _ := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.9, Lng: 77.6})})
	svc.resolver = &stubResolver{err: rules.ErrNotFound}

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.False(t, got.Success)
	require.ErrorIs(t, got.Err, rules.ErrNotFound)
}

func TestAllocate_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	svc, _, _ := newTestService(nil)
	svc.source = &stubSource{err: boom}

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.False(t, got.Success)
	require.ErrorIs(t, got.Err, boom)
}

func TestAllocate_InvalidRequest(t *testing.T) {
	svc, _, _ := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.9, Lng: 77.6})})

	req := bangaloreRequest()
	req.PickupLat = 123.4

	got := svc.Allocate(context.Background(), req, "actor")
	require.False(t, got.Success)
	require.ErrorIs(t, got.Err, ErrInvalidRequest)
}

func TestAllocate_ConflictFallsThroughToNextBest(t *testing.T) {
	best := testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66})
	second := testCandidate(2, types.Point{Lat: 12.95, Lng: 77.70})
	svc, res, _ := newTestService([]availability.Candidate{best, second})

	// Another allocation already holds the best pair's driver.
	res.reserved["d1"] = true

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.True(t, got.Success)
	require.Equal(t, types.ID("v2"), got.Vehicle.VehicleID)
}

func TestAllocate_AllConflictsExhaustsList(t *testing.T) {
	pool := []availability.Candidate{
		testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66}),
		testCandidate(2, types.Point{Lat: 12.95, Lng: 77.70}),
	}
	svc, res, led := newTestService(pool)
	res.reserved["v1"] = true
	res.reserved["v2"] = true

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.False(t, got.Success)
	require.ErrorIs(t, got.Err, ErrExhausted)
	require.Empty(t, led.entries)
}

func TestAllocate_LedgerFailureDoesNotRevertReservation(t *testing.T) {
	svc, res, led := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66})})
	led.recordErr = errors.New("audit store down")

	got := svc.Allocate(context.Background(), bangaloreRequest(), "actor")

	require.True(t, got.Success)
	require.Empty(t, got.LedgerID)
	require.True(t, res.reserved["v1"])
}

func TestAllocate_ConcurrentSingleCandidate(t *testing.T) {
	svc, _, led := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66})})

	const attempts = 8
	results := make(chan Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Allocate(context.Background(), bangaloreRequest(), "actor")
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for r := range results {
		if r.Success {
			success++
			continue
		}
		require.ErrorIs(t, r.Err, ErrExhausted)
	}
	require.Equal(t, 1, success)
	require.Len(t, led.entries, 1)
}

func TestAllocate_ConcurrentDistinctCandidates(t *testing.T) {
	pool := []availability.Candidate{
		testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66}),
		testCandidate(2, types.Point{Lat: 12.95, Lng: 77.70}),
		testCandidate(3, types.Point{Lat: 13.05, Lng: 77.75}),
	}
	svc, _, _ := newTestService(pool)

	results := make(chan Result, len(pool))
	var wg sync.WaitGroup
	for i := 0; i < len(pool); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Allocate(context.Background(), bangaloreRequest(), "actor")
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[types.ID]bool)
	for r := range results {
		require.True(t, r.Success)
		require.False(t, seen[r.Vehicle.VehicleID], "vehicle %s allocated twice", r.Vehicle.VehicleID)
		seen[r.Vehicle.VehicleID] = true
	}
	require.Len(t, seen, len(pool))
}

func TestAllocate_ConcurrentOversubscribedPool(t *testing.T) {
	pool := []availability.Candidate{
		testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66}),
		testCandidate(2, types.Point{Lat: 12.95, Lng: 77.70}),
	}
	svc, _, led := newTestService(pool)

	const attempts = 16
	results := make(chan Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Allocate(context.Background(), bangaloreRequest(), "actor")
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[types.ID]bool)
	for r := range results {
		if r.Success {
			require.False(t, seen[r.Vehicle.VehicleID], "vehicle %s allocated twice", r.Vehicle.VehicleID)
			seen[r.Vehicle.VehicleID] = true
			continue
		}
		require.ErrorIs(t, r.Err, ErrExhausted)
	}
	require.Len(t, seen, len(pool))
	require.Len(t, led.entries, len(pool))
}

func TestRelease_ThenReallocate(t *testing.T) {
	svc, _, _ := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66})})
	ctx := context.Background()

	first := svc.Allocate(ctx, bangaloreRequest(), "actor")
	require.True(t, first.Success)

	require.NoError(t, svc.Release(ctx, "v1", "d1"))
	// Idempotent: a second release is a no-op.
	require.NoError(t, svc.Release(ctx, "v1", "d1"))

	second := svc.Allocate(ctx, bangaloreRequest(), "actor")
	require.True(t, second.Success)
}

func TestRelease_MarksLedgerEntries(t *testing.T) {
	svc, _, led := newTestService([]availability.Candidate{testCandidate(1, types.Point{Lat: 12.85, Lng: 77.66})})
	ctx := context.Background()

	got := svc.Allocate(ctx, bangaloreRequest(), "actor")
	require.True(t, got.Success)
	require.NoError(t, svc.Release(ctx, "v1", "d1"))

	require.Len(t, led.entries, 1)
	history, err := svc.History(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, ledger.StatusReleased, history[0].Status)
}
