// Allocation request/result aggregates and the engine's error taxonomy.
package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

var (
	// ErrNoCandidates: the pool is empty for the requested category. Expected
	// and recoverable; callers retry later or widen criteria.
	ErrNoCandidates = errors.New("no available vehicles match the criteria")
	// ErrExhausted: every ranked candidate was reserved by a concurrent
	// allocation before we could commit.
	ErrExhausted = errors.New("all ranked candidates were taken concurrently")
	// ErrInvalidRequest wraps boundary validation failures.
	ErrInvalidRequest = errors.New("invalid allocation request")
)

// Request is a trip's demand for a vehicle+driver pair.
type Request struct {
	TripID          types.ID  `validate:"required"`
	PickupLocation  string    `validate:"required"`
	PickupLat       float64   `validate:"gte=-90,lte=90"`
	PickupLng       float64   `validate:"gte=-180,lte=180"`
	DropLocation    string    `validate:"required"`
	DropLat         float64   `validate:"gte=-90,lte=90"`
	DropLng         float64   `validate:"gte=-180,lte=180"`
	PickupAt        time.Time `validate:"required"`
	VehicleCategory string    `validate:"required"`
	Passengers      int       `validate:"gte=1"`

	CompanyID *types.ID
	TripType  *rules.TripType
	RuleID    *types.ID
}

var validate = validator.New()

// Validate enforces the request invariants at the engine boundary.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.TripType != nil && !r.TripType.Valid() {
		return fmt.Errorf("%w: unknown trip type %q", ErrInvalidRequest, *r.TripType)
	}
	return nil
}

// Pickup returns the pickup coordinate.
func (r Request) Pickup() types.Point {
	return types.Point{Lat: r.PickupLat, Lng: r.PickupLng}
}

// Drop returns the drop coordinate.
func (r Request) Drop() types.Point {
	return types.Point{Lat: r.DropLat, Lng: r.DropLng}
}

// RuleQuery maps the request onto the resolver's matching context.
func (r Request) RuleQuery() rules.Query {
	return rules.Query{RuleID: r.RuleID, CompanyID: r.CompanyID, TripType: r.TripType}
}

// ScoreBreakdown holds the five sub-scores and the weight-normalized
// composite, each in [0,100].
type ScoreBreakdown struct {
	Availability float64 `json:"availability_score"`
	Distance     float64 `json:"distance_score"`
	Rating       float64 `json:"rating_score"`
	Cost         float64 `json:"cost_score"`
	Fuel         float64 `json:"fuel_score"`
	Composite    float64 `json:"total_score"`
}

// AllocatedVehicle is the vehicle snapshot returned to the caller.
type AllocatedVehicle struct {
	VehicleID        types.ID `json:"vehicle_id"`
	Registration     string   `json:"registration_number"`
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Category         string   `json:"category_name"`
	CurrentLocation  string   `json:"current_location"`
	DistanceToPickup float64  `json:"distance_from_pickup_km"`
	FuelPercent      float64  `json:"fuel_level"`
}

// AllocatedDriver is the driver snapshot returned to the caller.
type AllocatedDriver struct {
	DriverID   types.ID `json:"driver_id"`
	FullName   string   `json:"full_name"`
	Mobile     string   `json:"mobile_number"`
	Rating     float64  `json:"rating"`
	TotalTrips int      `json:"total_trips"`
	License    string   `json:"license_number"`
}

// Result is the immutable outcome of one allocation attempt. Err is nil
// exactly when Success is true; failures carry the taxonomy sentinel (or a
// wrapped store cause) instead of escaping the allocation boundary.
type Result struct {
	Success       bool
	Vehicle       *AllocatedVehicle
	Driver        *AllocatedDriver
	Score         *ScoreBreakdown
	EstimatedCost float64
	LedgerID      string
	RuleUsed      string
	Err           error
}

func failure(err error) Result {
	return Result{Success: false, Err: err}
}

func newAllocatedVehicle(c availability.Candidate, distanceKm float64) *AllocatedVehicle {
	return &AllocatedVehicle{
		VehicleID:        c.VehicleID,
		Registration:     c.Registration,
		Make:             c.Make,
		Model:            c.Model,
		Category:         c.Category,
		CurrentLocation:  c.LocationName,
		DistanceToPickup: distanceKm,
		FuelPercent:      c.FuelPercent,
	}
}

func newAllocatedDriver(c availability.Candidate) *AllocatedDriver {
	return &AllocatedDriver{
		DriverID:   c.DriverID,
		FullName:   c.DriverName,
		Mobile:     c.DriverMobile,
		Rating:     c.DriverRating,
		TotalTrips: c.DriverTrips,
		License:    c.DriverLicense,
	}
}
