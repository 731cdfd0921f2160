// Allocation orchestration: resolve rule, fetch pool, rank, reserve, price,
// record.
package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fleetbook/internal/logging"
	"fleetbook/internal/modules/availability"
	"fleetbook/internal/modules/ledger"
	"fleetbook/internal/modules/rules"
	"fleetbook/internal/types"
)

// RuleResolver picks the weight configuration for a request.
type RuleResolver interface {
	Resolve(ctx context.Context, q rules.Query) (rules.Rule, error)
}

// CandidateSource returns the current pool for a vehicle category.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, category string) ([]availability.Candidate, error)
}

// ReservationCoordinator owns the available<->reserved transitions.
type ReservationCoordinator interface {
	Reserve(ctx context.Context, vehicleID, driverID types.ID) error
	Release(ctx context.Context, vehicleID, driverID types.ID) error
}

// Ledger is the append-only audit trail of allocation decisions.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) (string, error)
	MarkReleased(ctx context.Context, vehicleID, driverID types.ID) error
	History(ctx context.Context, tripID types.ID) ([]ledger.Entry, error)
}

type Service struct {
	resolver     RuleResolver
	source       CandidateSource
	reservations ReservationCoordinator
	ledger       Ledger

	ledgerTimeout time.Duration
	log           zerolog.Logger
}

func NewService(
	resolver RuleResolver,
	source CandidateSource,
	reservations ReservationCoordinator,
	ledgerStore Ledger,
	ledgerTimeout time.Duration,
) *Service {
	if ledgerTimeout <= 0 {
		ledgerTimeout = 2 * time.Second
	}
	return &Service{
		resolver:      resolver,
		source:        source,
		reservations:  reservations,
		ledger:        ledgerStore,
		ledgerTimeout: ledgerTimeout,
		log:           logging.New("allocation"),
	}
}

// Allocate selects, prices and reserves the best available pair for the
// request. Failures come back inside the Result; nothing panics or throws
// past this boundary.
func (s *Service) Allocate(ctx context.Context, req Request, actor types.ID) Result {
	start := time.Now()
	defer func() { allocationLatency.Observe(time.Since(start).Seconds()) }()

	if err := req.Validate(); err != nil {
		allocationsTotal.WithLabelValues(outcomeError).Inc()
		return failure(err)
	}

	rule, err := s.resolver.Resolve(ctx, req.RuleQuery())
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			allocationsTotal.WithLabelValues(outcomeRuleNotFound).Inc()
		} else {
			allocationsTotal.WithLabelValues(outcomeError).Inc()
		}
		return failure(err)
	}

	candidates, err := s.source.FetchCandidates(ctx, req.VehicleCategory)
	if err != nil {
		allocationsTotal.WithLabelValues(outcomeError).Inc()
		return failure(err)
	}
	candidatePoolSize.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		allocationsTotal.WithLabelValues(outcomeNoCandidates).Inc()
		return failure(ErrNoCandidates)
	}

	ranked := Rank(candidates, req.Pickup(), rule.Weights)

	// The snapshot may be stale: another allocation can take the top pick
	// between fetch and commit. Fall through the ranked list instead of
	// failing the whole request on the first lost race.
	winner, err := s.reserveBest(ctx, ranked)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			allocationsTotal.WithLabelValues(outcomeExhausted).Inc()
		} else {
			allocationsTotal.WithLabelValues(outcomeError).Inc()
		}
		return failure(err)
	}

	cost := EstimateCost(winner.Candidate, req)
	ledgerID := s.record(req.TripID, rule, winner, cost, actor)

	allocationsTotal.WithLabelValues(outcomeAllocated).Inc()
	s.log.Info().
		Str("trip_id", string(req.TripID)).
		Str("vehicle_id", string(winner.Candidate.VehicleID)).
		Str("driver_id", string(winner.Candidate.DriverID)).
		Str("rule", rule.Name).
		Float64("score", winner.Score.Composite).
		Float64("estimated_cost", cost).
		Msg("allocation committed")

	score := winner.Score
	return Result{
		Success:       true,
		Vehicle:       newAllocatedVehicle(winner.Candidate, winner.DistanceKm),
		Driver:        newAllocatedDriver(winner.Candidate),
		Score:         &score,
		EstimatedCost: cost,
		LedgerID:      ledgerID,
		RuleUsed:      rule.Name,
	}
}

// reserveBest walks the ranked list, attempting the atomic reservation on
// each pair until one commits. Conflicts mean a concurrent allocation won
// that pair; any other reservation error is fatal to the request.
func (s *Service) reserveBest(ctx context.Context, ranked []Scored) (Scored, error) {
	for _, cand := range ranked {
		err := s.reservations.Reserve(ctx, cand.Candidate.VehicleID, cand.Candidate.DriverID)
		if err == nil {
			return cand, nil
		}
		if errors.Is(err, availability.ErrConflict) {
			reservationConflicts.Inc()
			s.log.Debug().
				Str("vehicle_id", string(cand.Candidate.VehicleID)).
				Str("driver_id", string(cand.Candidate.DriverID)).
				Msg("candidate lost to concurrent allocation, trying next")
			continue
		}
		return Scored{}, err
	}
	return Scored{}, ErrExhausted
}

// record writes the audit entry. Best effort: the reservation is the source
// of truth for resource state, so a ledger failure is logged and the
// allocation still succeeds. The write is bounded so a slow audit store
// cannot stall the caller.
func (s *Service) record(tripID types.ID, rule rules.Rule, winner Scored, cost float64, actor types.ID) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.ledgerTimeout)
	defer cancel()

	id, err := s.ledger.Record(ctx, ledger.Entry{
		TripID:    tripID,
		VehicleID: winner.Candidate.VehicleID,
		DriverID:  winner.Candidate.DriverID,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Composite: winner.Score.Composite,
		Breakdown: ledger.Breakdown{
			Availability: winner.Score.Availability,
			Distance:     winner.Score.Distance,
			Rating:       winner.Score.Rating,
			Cost:         winner.Score.Cost,
			Fuel:         winner.Score.Fuel,
		},
		EstimatedCost: cost,
		AllocatedBy:   actor,
	})
	if err != nil {
		s.log.Error().Err(err).Str("trip_id", string(tripID)).Msg("ledger write failed")
		return ""
	}
	return id
}

// Release returns the pair to the pool. Called by the trip collaborator on
// completion or cancellation; idempotent and safe concurrently with
// in-flight allocations.
func (s *Service) Release(ctx context.Context, vehicleID, driverID types.ID) error {
	if err := s.reservations.Release(ctx, vehicleID, driverID); err != nil {
		return err
	}
	if err := s.ledger.MarkReleased(ctx, vehicleID, driverID); err != nil {
		s.log.Error().Err(err).
			Str("vehicle_id", string(vehicleID)).
			Str("driver_id", string(driverID)).
			Msg("ledger release update failed")
	}
	s.log.Info().
		Str("vehicle_id", string(vehicleID)).
		Str("driver_id", string(driverID)).
		Msg("allocation released")
	return nil
}

// History returns the audit trail for a trip, most recent first.
func (s *Service) History(ctx context.Context, tripID types.ID) ([]ledger.Entry, error) {
	return s.ledger.History(ctx, tripID)
}
