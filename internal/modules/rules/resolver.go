// Rule resolution: pick the weight configuration for a request.
package rules

import (
	"context"

	"fleetbook/internal/types"
)

// Query carries the request context the resolver matches conditions against.
type Query struct {
	RuleID    *types.ID
	CompanyID *types.ID
	TripType  *TripType
}

// Getter fetches a single active rule by id.
type Getter interface {
	GetActiveByID(ctx context.Context, id types.ID) (Rule, error)
}

// Resolver selects the rule to score candidates with. Resolution order, first
// match wins:
//
//  1. explicit rule id (missing/inactive is an error, not a fallthrough)
//  2. highest-priority rule conditioned on the request's company
//  3. highest-priority rule conditioned on the request's trip type
//  4. highest-priority unconditional rule
//  5. the built-in default rule
//
// Store errors always propagate; only empty result sets fall through.
type Resolver struct {
	getter Getter
	lister Lister
}

func NewResolver(getter Getter, lister Lister) *Resolver {
	return &Resolver{getter: getter, lister: lister}
}

func (r *Resolver) Resolve(ctx context.Context, q Query) (Rule, error) {
	if q.RuleID != nil {
		return r.getter.GetActiveByID(ctx, *q.RuleID)
	}

	active, err := r.lister.ListActive(ctx)
	if err != nil {
		return Rule{}, err
	}

	// Corporate bookings take precedence over trip-type matches. The list is
	// already ordered by descending priority, so first hit wins each pass.
	if q.CompanyID != nil {
		for _, rule := range active {
			if rule.CompanyID != nil && *rule.CompanyID == *q.CompanyID {
				return rule, nil
			}
		}
	}
	if q.TripType != nil {
		for _, rule := range active {
			if rule.TripType != nil && *rule.TripType == *q.TripType {
				return rule, nil
			}
		}
	}
	for _, rule := range active {
		if rule.Unconditional() {
			return rule, nil
		}
	}
	return DefaultRule(), nil
}
