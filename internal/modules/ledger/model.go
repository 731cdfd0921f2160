// Allocation ledger entries: the append-only audit trail of decisions.
package ledger

import (
	"time"

	"fleetbook/internal/types"
)

// EntryStatus tracks whether the recorded pair is still held. The only legal
// transition is allocated -> released.
type EntryStatus string

const (
	StatusAllocated EntryStatus = "allocated"
	StatusReleased  EntryStatus = "released"
)

// Breakdown is the per-factor score snapshot stored with each decision.
type Breakdown struct {
	Availability float64 `json:"availability_score"`
	Distance     float64 `json:"distance_score"`
	Rating       float64 `json:"rating_score"`
	Cost         float64 `json:"cost_score"`
	Fuel         float64 `json:"fuel_score"`
}

// Entry records one allocation decision. Immutable once written except for
// the status flip on release.
type Entry struct {
	ID            string      `json:"allocation_log_id"`
	TripID        types.ID    `json:"trip_id"`
	VehicleID     types.ID    `json:"vehicle_id"`
	DriverID      types.ID    `json:"driver_id"`
	RuleID        types.ID    `json:"allocation_rule_id"`
	RuleName      string      `json:"rule_name"`
	Composite     float64     `json:"allocation_score"`
	Breakdown     Breakdown   `json:"score_breakdown"`
	EstimatedCost float64     `json:"estimated_cost"`
	Status        EntryStatus `json:"allocation_status"`
	AllocatedBy   types.ID    `json:"allocated_by"`
	AllocatedAt   time.Time   `json:"allocated_at"`
}
