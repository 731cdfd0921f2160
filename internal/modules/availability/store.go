// Availability store backed by PostgreSQL: candidate pool query plus the
// atomic reserve/release transitions.
package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleetbook/internal/types"
)

// ErrConflict is returned when either resource of a pair is not available at
// commit time. The caller retries against the next-ranked candidate.
var ErrConflict = errors.New("vehicle or driver no longer available")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// FetchCandidates returns available vehicles in the requested category joined
// to available, on-duty drivers. An empty result is a normal outcome, not an
// error.
func (s *Store) FetchCandidates(ctx context.Context, category string) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT
			va.vehicle_id, v.registration_number, v.make, v.model,
			v.category_name, v.ownership_class, v.rate_per_km,
			va.current_location_name, va.current_latitude, va.current_longitude,
			va.fuel_level_percentage,
			da.driver_id, d.full_name, d.mobile_number, d.license_number,
			da.rating_average, da.total_trips
		FROM vehicle_availability va
		JOIN vehicles v ON v.vehicle_id = va.vehicle_id
		JOIN driver_availability da ON da.driver_id = va.driver_id
		JOIN drivers d ON d.driver_id = da.driver_id
		WHERE va.status = 'available'
		  AND v.category_name = $1
		  AND da.status = 'available'
		  AND da.is_on_duty = TRUE
		ORDER BY va.vehicle_id`, category)
	if err != nil {
		return nil, fmt.Errorf("availability: fetch candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c                   Candidate
			vehicleID, driverID string
		)
		err := rows.Scan(
			&vehicleID, &c.Registration, &c.Make, &c.Model,
			&c.Category, &c.Ownership, &c.RatePerKm,
			&c.LocationName, &c.Position.Lat, &c.Position.Lng,
			&c.FuelPercent,
			&driverID, &c.DriverName, &c.DriverMobile, &c.DriverLicense,
			&c.DriverRating, &c.DriverTrips,
		)
		if err != nil {
			return nil, fmt.Errorf("availability: scan candidate: %w", err)
		}
		c.VehicleID = types.ID(vehicleID)
		c.DriverID = types.ID(driverID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: fetch candidates: %w", err)
	}
	return out, nil
}

// Reserve transitions the vehicle and its driver from available to reserved
// as one atomic unit. Both conditional updates must hit exactly one row that
// is still 'available'; otherwise the transaction rolls back untouched and
// ErrConflict is returned. The status predicate is what closes the window
// between the candidate snapshot and commit.
func (s *Store) Reserve(ctx context.Context, vehicleID, driverID types.ID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE vehicle_availability
		SET status = 'reserved', updated_at = NOW()
		WHERE vehicle_id = $1 AND status = 'available'`, string(vehicleID))
	if err != nil {
		return fmt.Errorf("availability: reserve vehicle %s: %w", vehicleID, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE driver_availability
		SET status = 'reserved', updated_at = NOW()
		WHERE driver_id = $1 AND status = 'available'`, string(driverID))
	if err != nil {
		return fmt.Errorf("availability: reserve driver %s: %w", driverID, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit reserve: %w", err)
	}
	return nil
}

// Release transitions both resources back to available. Unconditional and
// idempotent: releasing an already-available resource is a no-op.
func (s *Store) Release(ctx context.Context, vehicleID, driverID types.ID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin release: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE vehicle_availability
		SET status = 'available', updated_at = NOW()
		WHERE vehicle_id = $1`, string(vehicleID)); err != nil {
		return fmt.Errorf("availability: release vehicle %s: %w", vehicleID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET status = 'available', updated_at = NOW()
		WHERE driver_id = $1`, string(driverID)); err != nil {
		return fmt.Errorf("availability: release driver %s: %w", driverID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit release: %w", err)
	}
	return nil
}
