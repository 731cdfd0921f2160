// Trip cost estimation from candidate position and trip geometry.
package allocation

import (
	"math"

	"fleetbook/internal/geo"
	"fleetbook/internal/modules/availability"
)

// costBuffer is fixed estimation slack, not a final fare component.
const costBuffer = 1.10

// EstimateCost prices the approach leg plus the trip leg at the candidate's
// per-km rate, buffered, rounded to two decimals.
func EstimateCost(c availability.Candidate, req Request) float64 {
	tripKm := geo.DistanceKm(req.Pickup(), req.Drop())
	approachKm := geo.DistanceKm(c.Position, req.Pickup())
	return round2((tripKm + approachKm) * c.RatePerKm * costBuffer)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
