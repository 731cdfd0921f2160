// Rule store backed by PostgreSQL.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetbook/internal/types"
)

// ErrNotFound is returned when an explicitly requested rule does not exist
// or is inactive.
var ErrNotFound = errors.New("allocation rule not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const ruleColumns = `
	rule_id, rule_name,
	weight_availability, weight_distance, weight_rating, weight_cost, weight_fuel,
	priority_order, is_active, company_id, trip_type`

// GetActiveByID fetches a single active rule. Inactive and missing rules both
// map to ErrNotFound; any other failure is a store error.
func (s *Store) GetActiveByID(ctx context.Context, id types.ID) (Rule, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM allocation_rules
		WHERE rule_id = $1 AND is_active = TRUE`, string(id),
	)
	r, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("rules: get %s: %w", id, err)
	}
	return r, nil
}

// ListActive returns all active rules ordered by descending priority.
func (s *Store) ListActive(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM allocation_rules
		WHERE is_active = TRUE
		ORDER BY priority_order DESC, rule_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("rules: list active: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("rules: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rules: list active: %w", err)
	}
	return out, nil
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		r         Rule
		id        string
		companyID *string
		tripType  *string
	)
	err := row.Scan(
		&id, &r.Name,
		&r.Weights.Availability, &r.Weights.Distance, &r.Weights.Rating,
		&r.Weights.Cost, &r.Weights.Fuel,
		&r.Priority, &r.Active, &companyID, &tripType,
	)
	if err != nil {
		return Rule{}, err
	}
	r.ID = types.ID(id)
	if companyID != nil {
		c := types.ID(*companyID)
		r.CompanyID = &c
	}
	if tripType != nil {
		t := TripType(*tripType)
		r.TripType = &t
	}
	return r, nil
}
