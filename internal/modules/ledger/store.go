// Ledger store backed by PostgreSQL. Append-only; the engine never deletes
// or rewrites history.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetbook/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Record appends an entry and returns its id. The caller decides whether a
// failure is fatal; for allocation it is not, the reservation stays the
// source of truth.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	id := uuid.NewString()
	breakdown, err := json.Marshal(e.Breakdown)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal breakdown: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO allocation_logs (
			allocation_log_id, trip_id, vehicle_id, driver_id, allocation_rule_id,
			rule_name, allocation_score, score_breakdown, estimated_cost,
			allocation_status, allocated_by, allocated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id,
		string(e.TripID),
		string(e.VehicleID),
		string(e.DriverID),
		string(e.RuleID),
		e.RuleName,
		e.Composite,
		breakdown,
		e.EstimatedCost,
		string(StatusAllocated),
		string(e.AllocatedBy),
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("ledger: record: %w", err)
	}
	return id, nil
}

// MarkReleased flips open entries for the pair to released. Idempotent; a
// pair with no open entry is a no-op.
func (s *Store) MarkReleased(ctx context.Context, vehicleID, driverID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE allocation_logs
		SET allocation_status = 'released'
		WHERE vehicle_id = $1 AND driver_id = $2 AND allocation_status = 'allocated'`,
		string(vehicleID), string(driverID))
	if err != nil {
		return fmt.Errorf("ledger: mark released: %w", err)
	}
	return nil
}

// History returns all entries for a trip, most recent first.
func (s *Store) History(ctx context.Context, tripID types.ID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT allocation_log_id, trip_id, vehicle_id, driver_id, allocation_rule_id,
		       rule_name, allocation_score, score_breakdown, estimated_cost,
		       allocation_status, allocated_by, allocated_at
		FROM allocation_logs
		WHERE trip_id = $1
		ORDER BY allocated_at DESC`, string(tripID))
	if err != nil {
		return nil, fmt.Errorf("ledger: history %s: %w", tripID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                        Entry
			trip, vehicleID, driverID, ruleID, actor string
			breakdown                                []byte
			status                                   string
		)
		err := rows.Scan(
			&e.ID, &trip, &vehicleID, &driverID, &ruleID,
			&e.RuleName, &e.Composite, &breakdown, &e.EstimatedCost,
			&status, &actor, &e.AllocatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if err := json.Unmarshal(breakdown, &e.Breakdown); err != nil {
			return nil, fmt.Errorf("ledger: decode breakdown: %w", err)
		}
		e.TripID = types.ID(trip)
		e.VehicleID = types.ID(vehicleID)
		e.DriverID = types.ID(driverID)
		e.RuleID = types.ID(ruleID)
		e.AllocatedBy = types.ID(actor)
		e.Status = EntryStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: history %s: %w", tripID, err)
	}
	return out, nil
}
