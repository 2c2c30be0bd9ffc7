/*
errors.go - Centralized error types for the pay engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (HTTP handlers, recalculation service) classify errors with the
  helpers at the bottom rather than matching strings.

ERROR CATEGORIES:
  1. Blocking errors    - abort recalculation entirely (no profile, no leg,
                          bad rule configuration)
  2. Not-found errors   - referenced record does not exist
  3. Conflict errors    - locked/manual item ownership violations

WARNINGS ARE NOT ERRORS:
  Computation warnings (divergent mileage, substituted defaults) never abort
  a recalculation. They travel as strings on LineItem.WarningMessage and on
  Evaluation.Warnings, not through this file.

USAGE:
  if errors.Is(err, pay.ErrNoActiveProfile) {
      // render "assign a pay profile" instead of a computed total
  }

SEE ALSO:
  - resolver.go:   returns ErrNoActiveProfile
  - profile.go:    returns RuleConfigError at edit time
  - reconciler.go: returns ErrMissingDispatchLeg
*/
package pay

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveProfile is returned when the resolver finds no usable
	// profile for a subject. Blocks calculation; the user must assign one.
	ErrNoActiveProfile = errors.New("no active pay profile")

	// ErrMissingDispatchLeg is returned when recalculation is requested for a
	// load with no dispatch leg. Pay cannot be computed without a leg.
	ErrMissingDispatchLeg = errors.New("no dispatch leg")

	// ErrInvalidRuleConfiguration is returned when a profile fails validation:
	// wrong BASE rule count, or a trigger inconsistent with the pay basis.
	// Rejected at rule-edit time, never tolerated at evaluation time.
	ErrInvalidRuleConfiguration = errors.New("invalid rule configuration")

	// ErrProfileNotFound is returned when a referenced profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrSubjectNotFound is returned when a referenced driver/carrier doesn't exist.
	ErrSubjectNotFound = errors.New("driver or carrier not found")

	// ErrLoadNotFound is returned when a referenced load doesn't exist.
	ErrLoadNotFound = errors.New("load not found")

	// ErrItemNotFound is returned when a referenced line item doesn't exist.
	ErrItemNotFound = errors.New("line item not found")

	// ErrItemLocked is returned when a caller tries to edit or delete a
	// locked line item without unlocking it first.
	ErrItemLocked = errors.New("line item is locked")

	// ErrManualItemOnly is returned when a caller tries to delete a
	// system-generated item. System items are owned by recalculation.
	ErrManualItemOnly = errors.New("only manual items can be deleted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleConfigError describes why a profile's rule set was rejected.
type RuleConfigError struct {
	ProfileID ProfileID
	RuleID    RuleID // zero when the problem is profile-wide
	Detail    string
}

func (e *RuleConfigError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("invalid rule configuration: rule %s: %s", e.RuleID, e.Detail)
	}
	return fmt.Sprintf("invalid rule configuration: profile %s: %s", e.ProfileID, e.Detail)
}

func (e *RuleConfigError) Unwrap() error {
	return ErrInvalidRuleConfiguration
}

// NoActiveProfileError carries the subject whose resolution failed.
type NoActiveProfileError struct {
	SubjectID SubjectID
	OrgID     OrgID
	Type      ProfileType
}

func (e *NoActiveProfileError) Error() string {
	return fmt.Sprintf("no active %s pay profile for %s", e.Type, e.SubjectID)
}

func (e *NoActiveProfileError) Unwrap() error {
	return ErrNoActiveProfile
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsBlocking returns true if the error must abort recalculation and be
// surfaced to the caller as a blocking message.
func IsBlocking(err error) bool {
	return errors.Is(err, ErrNoActiveProfile) ||
		errors.Is(err, ErrMissingDispatchLeg) ||
		errors.Is(err, ErrInvalidRuleConfiguration)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrSubjectNotFound) ||
		errors.Is(err, ErrLoadNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true if the error is an ownership/lock violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrItemLocked) ||
		errors.Is(err, ErrManualItemOnly)
}
