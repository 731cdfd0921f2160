// Allocation rule aggregate: scoring weights plus applicability conditions.
package rules

import (
	"fleetbook/internal/types"
)

// TripType tags a booking with its service class. Closed set; anything else
// is rejected at the boundary.
type TripType string

const (
	TripRegular   TripType = "regular"
	TripEmergency TripType = "emergency"
	TripCorporate TripType = "corporate"
	TripShuttle   TripType = "shuttle"
)

// Valid reports whether t is one of the known trip types.
func (t TripType) Valid() bool {
	switch t {
	case TripRegular, TripEmergency, TripCorporate, TripShuttle:
		return true
	}
	return false
}

// Weights holds the five scoring factor weights. Weights need not sum to any
// fixed total; the composite is normalized by their sum.
type Weights struct {
	Availability float64
	Distance     float64
	Rating       float64
	Cost         float64
	Fuel         float64
}

// Sum returns the normalization denominator for the composite score.
func (w Weights) Sum() float64 {
	return w.Availability + w.Distance + w.Rating + w.Cost + w.Fuel
}

// Rule is a named weight set configured by operators. Conditions are typed:
// a rule applies to a specific company, a trip type, both, or neither.
type Rule struct {
	ID       types.ID
	Name     string
	Weights  Weights
	Priority int
	Active   bool

	CompanyID *types.ID
	TripType  *TripType
}

// Unconditional reports whether the rule has no applicability conditions.
func (r Rule) Unconditional() bool {
	return r.CompanyID == nil && r.TripType == nil
}

// DefaultRule is the built-in fallback used when no configured rule matches.
func DefaultRule() Rule {
	return Rule{
		ID:   "",
		Name: "Default Rule",
		Weights: Weights{
			Availability: 1.5,
			Distance:     1.3,
			Rating:       1.2,
			Cost:         1.0,
			Fuel:         1.0,
		},
		Active: true,
	}
}
