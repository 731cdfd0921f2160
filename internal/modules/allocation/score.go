// Candidate scoring. Sub-score breakpoints and tiers are behavioral
// contracts; operators tune influence through rule weights, not by editing
// these functions.
package allocation

import (
	"math"
	"sort"

	"fleetbook/internal/geo"
	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

// Scored pairs a candidate with its breakdown and distance to pickup.
type Scored struct {
	Candidate  availability.Candidate
	Score      ScoreBreakdown
	DistanceKm float64
}

// ScoreCandidate computes the per-factor breakdown for one candidate. Pure
// and side-effect free.
func ScoreCandidate(c availability.Candidate, pickup types.Point, w rules.Weights) (ScoreBreakdown, float64) {
	d := geo.DistanceKm(c.Position, pickup)

	b := ScoreBreakdown{
		// Candidates are pre-filtered to available-only; the slot exists for
		// partial availability windows later.
		Availability: 100,
		Distance:     clampScore(distanceScore(d)),
		Rating:       clampScore(c.DriverRating * 20),
		Cost:         clampScore(costScore(c.Ownership)),
		Fuel:         clampScore(fuelScore(c.FuelPercent)),
	}
	b.Composite = composite(b, w)
	return b, d
}

// Rank scores every candidate and orders them by composite score descending.
// The sort is stable: ties keep first-seen order.
func Rank(candidates []availability.Candidate, pickup types.Point, w rules.Weights) []Scored {
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		score, d := ScoreCandidate(c, pickup, w)
		ranked[i] = Scored{Candidate: c, Score: score, DistanceKm: d}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Composite > ranked[j].Score.Composite
	})
	return ranked
}

// composite is the weighted sum normalized by the weight total, rounded to
// one decimal.
func composite(b ScoreBreakdown, w rules.Weights) float64 {
	sum := w.Sum()
	if sum == 0 {
		return 0
	}
	total := (b.Availability*w.Availability +
		b.Distance*w.Distance +
		b.Rating*w.Rating +
		b.Cost*w.Cost +
		b.Fuel*w.Fuel) / sum
	return math.Round(total*10) / 10
}

// distanceScore is a piecewise linear penalty, strictly decreasing:
// 0-5 km maps to 100-90, 5-10 to 90-70, 10-20 to 70-40, beyond 20 it decays
// to zero.
func distanceScore(d float64) float64 {
	switch {
	case d <= 5:
		return 100 - d*2
	case d <= 10:
		return 90 - (d-5)*4
	case d <= 20:
		return 70 - (d-10)*3
	default:
		return math.Max(0, 40-(d-20))
	}
}

// costScore is a fixed categorical tier per ownership class, not a function
// of the actual rate.
func costScore(o availability.OwnershipClass) float64 {
	switch o {
	case availability.OwnershipOwn:
		return 100
	case availability.OwnershipAttached:
		return 70
	default:
		return 50
	}
}

func fuelScore(pct float64) float64 {
	switch {
	case pct >= 70:
		return 100
	case pct >= 50:
		return 80
	case pct >= 30:
		return 60
	default:
		return 40
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
