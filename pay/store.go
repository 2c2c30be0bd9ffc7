/*
store.go - Persistence interfaces consumed by the pay engine

PURPOSE:
  Defines the interface between the pay logic and the database. The engine
  itself is pure; these interfaces are how it reads configuration and how
  the reconciled item set is persisted. Implementations: store/sqlite
  (production) and pay/store (in-memory, for tests and dev mode).

KEY INTERFACES:
  ProfileStore:    Compensation profiles + rules, org defaults
  AssignmentStore: Profile-to-subject links, per-subject stars
  PayableStore:    Line items per leg, with the replace-system-items contract

INVARIANT-BEARING OPERATIONS:
  SetDefaultProfile and SetStarredAssignment are read-modify-write contracts:
  the implementation MUST unset the prior holder in the same transaction.
  Two independent writes would transiently duplicate the default and break
  resolver determinism.

  ReplaceSystemItems MUST delete only unlocked system rows and insert the
  provided set atomically. Locked and manual rows are never touched by it.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - pay/store/memory.go:    In-memory implementation
*/
package pay

import (
	"context"
	"time"
)

// =============================================================================
// PROFILE STORE
// =============================================================================

type ProfileStore interface {
	// SaveProfile validates and persists a profile with its rules.
	SaveProfile(ctx context.Context, p CompensationProfile) error

	// GetProfile returns a profile with rules, or ErrProfileNotFound.
	GetProfile(ctx context.Context, id ProfileID) (*CompensationProfile, error)

	// ListProfiles returns all profiles for an organization.
	ListProfiles(ctx context.Context, orgID OrgID) ([]CompensationProfile, error)

	// SetDefaultProfile marks the profile as the org default for its type,
	// unsetting any prior default of the same (org, type) atomically.
	SetDefaultProfile(ctx context.Context, orgID OrgID, id ProfileID) error
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

// ProfileAssignment links a driver/carrier to a profile. Defined here (not
// resolver.go) because it is a persisted record, not resolver state.
type ProfileAssignment struct {
	ID        AssignmentID
	OrgID     OrgID
	SubjectID SubjectID
	ProfileID ProfileID

	// IsStarred is the per-subject explicit override. It takes absolute
	// precedence over the organization-level default profile.
	IsStarred bool

	CreatedAt time.Time
}

type AssignmentStore interface {
	// SaveAssignment persists an assignment.
	SaveAssignment(ctx context.Context, a ProfileAssignment) error

	// ListAssignments returns all assignments for a subject, ordered by ID.
	ListAssignments(ctx context.Context, orgID OrgID, subjectID SubjectID) ([]ProfileAssignment, error)

	// SetStarredAssignment stars the assignment, unstarring any prior star
	// for the same (subject, profile type) atomically.
	SetStarredAssignment(ctx context.Context, id AssignmentID) error

	// DeleteAssignment removes an assignment. Existing payables are kept
	// (historical integrity); the leg's pay state returns to unassigned.
	DeleteAssignment(ctx context.Context, id AssignmentID) error
}

// =============================================================================
// PAYABLE STORE
// =============================================================================

type PayableStore interface {
	// ListItems returns the stored line items for a leg, ordered
	// deterministically (category, then rule/creation order).
	ListItems(ctx context.Context, legID LegID) ([]LineItem, error)

	// ReplaceSystemItems deletes the unlocked system items for the leg and
	// inserts the given set, atomically. Locked and manual rows untouched.
	ReplaceSystemItems(ctx context.Context, legID LegID, items []LineItem) error

	// AddManualItem inserts a user-created item.
	AddManualItem(ctx context.Context, item LineItem) error

	// SetItemLocked locks or unlocks an item.
	SetItemLocked(ctx context.Context, id ItemID, locked bool) error

	// DeleteManualItem removes a manual, unlocked item. Returns
	// ErrManualItemOnly for system items, ErrItemLocked for locked ones.
	DeleteManualItem(ctx context.Context, id ItemID) error

	// ListItemsInRange returns items for a subject's legs whose load
	// delivery date falls in [from, to]. Used for settlement summaries.
	ListItemsInRange(ctx context.Context, orgID OrgID, subjectID SubjectID, from, to time.Time) ([]LineItem, error)
}
