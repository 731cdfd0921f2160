package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"fleetbook/internal/modules/allocation"
	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/ledger"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(context.Context, rules.Query) (rules.Rule, error) {
	return rules.DefaultRule(), nil
}

type fakeSource struct {
	pool []availability.Candidate
}

func (f fakeSource) FetchCandidates(context.Context, string) ([]availability.Candidate, error) {
	return f.pool, nil
}

type fakeReservations struct {
	mu       sync.Mutex
	reserved map[types.ID]bool
}

func (f *fakeReservations) Reserve(_ context.Context, vehicleID, driverID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserved == nil {
		f.reserved = make(map[types.ID]bool)
	}
	if f.reserved[vehicleID] || f.reserved[driverID] {
		return availability.ErrConflict
	}
	f.reserved[vehicleID] = true
	f.reserved[driverID] = true
	return nil
}

func (f *fakeReservations) Release(_ context.Context, vehicleID, driverID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reserved, vehicleID)
	delete(f.reserved, driverID)
	return nil
}

type fakeLedger struct{}

func (fakeLedger) Record(context.Context, ledger.Entry) (string, error) { return "log-1", nil }
func (fakeLedger) MarkReleased(context.Context, types.ID, types.ID) error {
	return nil
}
func (fakeLedger) History(context.Context, types.ID) ([]ledger.Entry, error) {
	return []ledger.Entry{{ID: "log-1", TripID: "trip-1", Status: ledger.StatusAllocated}}, nil
}

func testRouter(pool []availability.Candidate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := allocation.NewService(fakeResolver{}, fakeSource{pool: pool}, &fakeReservations{}, fakeLedger{}, time.Second)
	h := NewAllocationHandler(svc)

	engine := gin.New()
	engine.POST("/api/allocation/allocate", h.Allocate)
	engine.POST("/api/allocation/release/:vehicleID/:driverID", h.Release)
	engine.GET("/api/allocation/history/:tripID", h.History)
	return engine
}

func testPool() []availability.Candidate {
	return []availability.Candidate{{
		VehicleID:    "v1",
		Registration: "KA01AB1234",
		Make:         "Toyota",
		Model:        "Innova",
		Category:     "sedan",
		Ownership:    availability.OwnershipOwn,
		RatePerKm:    15,
		LocationName: "Koramangala",
		Position:     types.Point{Lat: 12.9, Lng: 77.6},
		FuelPercent:  85,
		DriverID:     "d1",
		DriverName:   "Ravi",
		DriverMobile: "9999999999",
		DriverRating: 4.5,
		DriverTrips:  120,
	}}
}

const allocateBody = `{
	"trip_id": "trip-1",
	"pickup_location": "Electronic City",
	"pickup_latitude": 12.8456,
	"pickup_longitude": 77.6603,
	"drop_location": "Airport",
	"drop_latitude": 13.1986,
	"drop_longitude": 77.7066,
	"pickup_datetime": "2025-12-25T10:00:00Z",
	"vehicle_category": "sedan",
	"passengers": 2
}`

func TestAllocateEndpoint_Success(t *testing.T) {
	router := testRouter(testPool())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/allocate", strings.NewReader(allocateBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp allocateResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, types.ID("v1"), resp.Vehicle.VehicleID)
	require.Equal(t, types.ID("d1"), resp.Driver.DriverID)
	require.Equal(t, "Default Rule", resp.RuleUsed)
	require.Equal(t, "log-1", resp.AllocationLogID)
	require.Greater(t, resp.EstimatedCost, 0.0)
}

func TestAllocateEndpoint_NoCandidates(t *testing.T) {
	router := testRouter(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/allocate", strings.NewReader(allocateBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp allocateResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "no_candidates_available", resp.Error)
}

func TestAllocateEndpoint_MalformedBody(t *testing.T) {
	router := testRouter(testPool())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/allocate", strings.NewReader(`{"trip_id": 42}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocateEndpoint_BadTripType(t *testing.T) {
	router := testRouter(testPool())
	body := strings.Replace(allocateBody, `"passengers": 2`, `"passengers": 2, "trip_type": "joyride"`, 1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/allocate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleaseEndpoint(t *testing.T) {
	router := testRouter(testPool())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/allocation/release/v1/d1", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "released successfully")
}

func TestHistoryEndpoint(t *testing.T) {
	router := testRouter(testPool())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/allocation/history/trip-1", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "log-1")
}
