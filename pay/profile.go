/*
profile.go - Compensation profiles and rate rules

PURPOSE:
  Defines the configuration that governs how a driver or carrier is paid:
  the profile (basis, active/default flags) and its ordered rate rules
  (trigger, rate, threshold, cap). Validation here is the gate that keeps
  InvalidRuleConfiguration out of the evaluator - a profile that passes
  ValidateProfile is always evaluable.

KEY CONCEPTS:
  CompensationProfile:
    The complete pay ruleset for one driver/carrier population. Exactly one
    active BASE rule, whose trigger must match the profile's PayBasis.

  RateRule:
    One pay component. The trigger determines where the quantity comes from;
    the category determines evaluation order and sign. Thresholds pay only
    the excess above the threshold; caps clamp the computed amount.

  Org default vs per-driver star:
    profile.IsDefault is the ORG-LEVEL default (unique per org + profile
    type). The per-driver "star" lives on the assignment (resolver.go) and
    takes absolute precedence over the org default.

TRIGGER/BASIS CONSISTENCY:
  BasisMileage    -> BASE trigger in {mile_loaded, mile_empty}
  BasisHourly     -> BASE trigger in {time_duration, time_waiting}
  BasisPercentage -> BASE trigger = pct_of_load
  BasisFlat       -> BASE trigger in {flat_load, flat_leg}

EXAMPLE:
  profile := pay.CompensationProfile{
      Name:     "Standard OTR",
      Type:     pay.ProfileDriver,
      PayBasis: pay.BasisMileage,
      IsActive: true,
      Rules: []pay.RateRule{{
          Category:     pay.CategoryBase,
          TriggerEvent: pay.TriggerMileLoaded,
          RateAmount:   pay.Dec(0.55),
          IsActive:     true,
      }},
  }
  err := pay.ValidateProfile(profile) // nil

SEE ALSO:
  - evaluator.go: Consumes validated profiles
  - resolver.go:  Chooses which profile applies to a subject
*/
package pay

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPENSATION PROFILE
// =============================================================================

// CompensationProfile is the pay ruleset applied to a driver or carrier.
// It owns its rules: deleting a profile removes them.
type CompensationProfile struct {
	ID    ProfileID
	OrgID OrgID
	Name  string

	Type     ProfileType
	PayBasis PayBasis

	// IsActive: inactive profiles are never selected by the resolver.
	IsActive bool

	// IsDefault: the organization-level default, unique per (org, Type).
	// Setting a new default unsets the prior holder in the same transaction.
	IsDefault bool

	// Rules in creation order. Evaluation reorders by category but keeps
	// creation order within a category.
	Rules []RateRule

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveRules returns the active rules in creation order.
func (p CompensationProfile) ActiveRules() []RateRule {
	var out []RateRule
	for _, r := range p.Rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

// BaseRule returns the single active BASE rule, or nil if the profile is
// misconfigured (which ValidateProfile prevents from being persisted).
func (p CompensationProfile) BaseRule() *RateRule {
	for i := range p.Rules {
		if p.Rules[i].IsActive && p.Rules[i].Category == CategoryBase {
			return &p.Rules[i]
		}
	}
	return nil
}

// =============================================================================
// RATE RULE
// =============================================================================

// RateRule is one pay component owned by exactly one profile.
type RateRule struct {
	ID        RuleID
	ProfileID ProfileID

	Category     RuleCategory
	TriggerEvent TriggerEvent

	// RateAmount is a currency amount per unit, a flat amount for flat_* and
	// attr_* triggers, or a percentage (0-100) for pct_of_load.
	RateAmount decimal.Decimal

	// MinThreshold: when set, the rule pays only the excess above the
	// threshold (effective quantity = max(0, quantity - threshold)).
	MinThreshold *decimal.Decimal

	// MaxCap: when set, the computed amount is clamped to this ceiling
	// after quantity * rate.
	MaxCap *decimal.Decimal

	// Description overrides the trigger's default label on line items.
	Description string

	IsActive  bool
	CreatedAt time.Time
}

// Label returns the human-readable description for line items generated by
// this rule.
func (r RateRule) Label() string {
	if r.Description != "" {
		return r.Description
	}
	return triggerLabel(r.TriggerEvent)
}

// =============================================================================
// TRIGGER METADATA
// =============================================================================

func triggerLabel(t TriggerEvent) string {
	switch t {
	case TriggerMileLoaded:
		return "Loaded miles"
	case TriggerMileEmpty:
		return "Empty miles"
	case TriggerTimeDuration:
		return "Drive time"
	case TriggerTimeWaiting:
		return "Detention"
	case TriggerCountStops:
		return "Extra stops"
	case TriggerFlatLoad:
		return "Flat rate (load)"
	case TriggerFlatLeg:
		return "Flat rate (leg)"
	case TriggerAttrHazmat:
		return "Hazmat"
	case TriggerAttrTarp:
		return "Tarp"
	case TriggerPctOfLoad:
		return "Percentage of revenue"
	default:
		return string(t)
	}
}

// isFlatTrigger reports triggers whose quantity is fixed at 1. Thresholds are
// meaningless for these.
func isFlatTrigger(t TriggerEvent) bool {
	switch t {
	case TriggerFlatLoad, TriggerFlatLeg, TriggerAttrHazmat, TriggerAttrTarp:
		return true
	}
	return false
}

// isAttrTrigger reports triggers gated on a boolean leg attribute.
func isAttrTrigger(t TriggerEvent) bool {
	return t == TriggerAttrHazmat || t == TriggerAttrTarp
}

// baseTriggersForBasis lists the BASE triggers consistent with each basis.
func baseTriggersForBasis(b PayBasis) []TriggerEvent {
	switch b {
	case BasisMileage:
		return []TriggerEvent{TriggerMileLoaded, TriggerMileEmpty}
	case BasisHourly:
		return []TriggerEvent{TriggerTimeDuration, TriggerTimeWaiting}
	case BasisPercentage:
		return []TriggerEvent{TriggerPctOfLoad}
	case BasisFlat:
		return []TriggerEvent{TriggerFlatLoad, TriggerFlatLeg}
	default:
		return nil
	}
}

func validTrigger(t TriggerEvent) bool {
	switch t {
	case TriggerMileLoaded, TriggerMileEmpty, TriggerTimeDuration,
		TriggerTimeWaiting, TriggerCountStops, TriggerFlatLoad,
		TriggerFlatLeg, TriggerAttrHazmat, TriggerAttrTarp, TriggerPctOfLoad:
		return true
	}
	return false
}

func validCategory(c RuleCategory) bool {
	switch c {
	case CategoryBase, CategoryAccessorial, CategoryDeduction:
		return true
	}
	return false
}

// =============================================================================
// VALIDATION - the rule-edit-time gate
// =============================================================================

// ValidateProfile checks the profile invariants. Every mutation path that
// writes a profile or its rules must call this first; the evaluator assumes
// it holds.
//
// Invariants:
//   - exactly one active BASE rule
//   - the BASE trigger is consistent with the profile's PayBasis
//   - every rule has a known category and trigger
//   - rates, thresholds, and caps are non-negative
//   - thresholds are not set on flat/attribute triggers
func ValidateProfile(p CompensationProfile) error {
	switch p.Type {
	case ProfileDriver, ProfileCarrier:
	default:
		return &RuleConfigError{ProfileID: p.ID, Detail: fmt.Sprintf("unknown profile type %q", p.Type)}
	}

	if len(baseTriggersForBasis(p.PayBasis)) == 0 {
		return &RuleConfigError{ProfileID: p.ID, Detail: fmt.Sprintf("unknown pay basis %q", p.PayBasis)}
	}

	var base *RateRule
	baseCount := 0
	for i := range p.Rules {
		r := p.Rules[i]
		if err := validateRule(p.ID, r); err != nil {
			return err
		}
		if r.IsActive && r.Category == CategoryBase {
			baseCount++
			base = &p.Rules[i]
		}
	}

	if baseCount != 1 {
		return &RuleConfigError{
			ProfileID: p.ID,
			Detail:    fmt.Sprintf("profile must have exactly one active base rule, found %d", baseCount),
		}
	}

	for _, t := range baseTriggersForBasis(p.PayBasis) {
		if base.TriggerEvent == t {
			return nil
		}
	}
	return &RuleConfigError{
		ProfileID: p.ID,
		RuleID:    base.ID,
		Detail: fmt.Sprintf("base trigger %q is inconsistent with pay basis %q",
			base.TriggerEvent, p.PayBasis),
	}
}

func validateRule(profileID ProfileID, r RateRule) error {
	if !validCategory(r.Category) {
		return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
			Detail: fmt.Sprintf("unknown category %q", r.Category)}
	}
	if !validTrigger(r.TriggerEvent) {
		return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
			Detail: fmt.Sprintf("unknown trigger %q", r.TriggerEvent)}
	}
	if r.RateAmount.IsNegative() {
		return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
			Detail: "rate amount must be >= 0"}
	}
	if r.MinThreshold != nil {
		if r.MinThreshold.IsNegative() {
			return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
				Detail: "threshold must be >= 0"}
		}
		if isFlatTrigger(r.TriggerEvent) {
			return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
				Detail: fmt.Sprintf("threshold is not valid for trigger %q", r.TriggerEvent)}
		}
	}
	if r.MaxCap != nil && r.MaxCap.IsNegative() {
		return &RuleConfigError{ProfileID: profileID, RuleID: r.ID,
			Detail: "cap must be >= 0"}
	}
	return nil
}
