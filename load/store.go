package load

import (
	"context"

	"github.com/linehaul/pay-engine/pay"
)

// =============================================================================
// LOAD STORE - Persistence for loads, stops, and legs
// =============================================================================

// Store persists loads with their stops and legs.
type Store interface {
	// SaveLoad persists the load, its stops, and its legs.
	SaveLoad(ctx context.Context, ld Load) error

	// GetLoad returns a load with stops and legs, or pay.ErrLoadNotFound.
	GetLoad(ctx context.Context, id pay.LoadID) (*Load, error)

	// ListLoads returns all loads for an organization.
	ListLoads(ctx context.Context, orgID pay.OrgID) ([]Load, error)

	// SaveLeg upserts a single leg (driver assignment, facts, stop range).
	SaveLeg(ctx context.Context, leg DispatchLeg) error

	// ReplaceLegs replaces the load's legs atomically. Used by split.
	ReplaceLegs(ctx context.Context, loadID pay.LoadID, legs []DispatchLeg) error
}
