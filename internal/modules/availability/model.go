// Candidate pool and resource status definitions.
package availability

import (
	"fleetbook/internal/types"
)

// Status of a vehicle or driver in the availability store.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
)

// OwnershipClass is how the operator holds the vehicle. It drives the cost
// sub-score tier, not the actual rate.
type OwnershipClass string

const (
	OwnershipOwn      OwnershipClass = "own"
	OwnershipAttached OwnershipClass = "attached"
	OwnershipRental   OwnershipClass = "rental"
)

// Valid reports whether o is one of the known ownership classes.
func (o OwnershipClass) Valid() bool {
	switch o {
	case OwnershipOwn, OwnershipAttached, OwnershipRental:
		return true
	}
	return false
}

// Candidate is an available vehicle+driver pair eligible for a request.
// Pairing is 1:1 for the duration of an assignment. Snapshots are fetched
// fresh per allocation call and may be stale by commit time; the reservation
// CAS corrects for that.
type Candidate struct {
	VehicleID    types.ID
	Registration string
	Make         string
	Model        string
	Category     string
	Ownership    OwnershipClass
	RatePerKm    float64

	LocationName string
	Position     types.Point
	FuelPercent  float64

	DriverID      types.ID
	DriverName    string
	DriverMobile  string
	DriverLicense string
	DriverRating  float64
	DriverTrips   int
}
