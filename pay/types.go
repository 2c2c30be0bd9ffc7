/*
Package pay provides the driver compensation engine.

PURPOSE:
  This package contains the domain types and algorithms for computing what a
  driver (or carrier) is owed for a completed dispatch leg. Three components
  cooperate on every recalculation:

  1. ProfileResolver  - which compensation profile applies to this subject?
  2. RuleEvaluator    - what line items does the profile generate for a leg?
  3. Reconciler       - how do fresh items merge with stored/locked/manual ones?

KEY CONCEPTS IN THIS FILE (types.go):
  - Money:      A currency amount backed by decimal.Decimal (never floats)
  - LegFacts:   The measured inputs for one dispatch leg (miles, hours, stops)
  - LineItem:   One computed or manual component of pay for a leg
  - Enums:      ProfileType, PayBasis, RuleCategory, TriggerEvent, ItemSource

DESIGN PRINCIPLES:
  1. Precision:   All money and quantity math uses decimal.Decimal
  2. Type Safety: Strong typing for IDs prevents mixing driver/profile/load IDs
  3. Purity:      Resolver/Evaluator/Reconciler are side-effect-free; the only
                  write is the final persisted item set
  4. Determinism: Same inputs always produce the same item set (recalculation
                  is idempotent)

USAGE:
  facts := pay.LegFacts{LoadedMiles: pay.Dec(500), RevenueAmount: pay.Dec(1200)}
  eval := pay.RuleEvaluator{}
  result := eval.Evaluate(profile, facts)
  for _, item := range result.Items {
      fmt.Println(item.Description, item.TotalAmount)
  }

SEE ALSO:
  - profile.go:    CompensationProfile and RateRule definitions
  - resolver.go:   Profile assignment precedence
  - evaluator.go:  Rule firing, thresholds, caps
  - reconciler.go: Merging with locked/manual items
*/
package pay

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrgID string
type SubjectID string // driver or carrier, per ProfileType
type ProfileID string
type RuleID string
type AssignmentID string
type LoadID string
type LegID string
type ItemID string

// =============================================================================
// MONEY & QUANTITY - decimal helpers
// =============================================================================

// Dec builds a decimal from a float literal. Test/fixture convenience only;
// persisted values round-trip through strings.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// DecInt builds a decimal from an integer.
func DecInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// MustDec parses a decimal string, returning zero on failure.
func MustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// PROFILE ENUMS
// =============================================================================

// ProfileType distinguishes who the profile compensates.
type ProfileType string

const (
	ProfileDriver  ProfileType = "driver"
	ProfileCarrier ProfileType = "carrier"
)

// PayBasis is the primary compensation mechanism of a profile. The profile's
// single BASE rule must use a trigger consistent with this basis.
type PayBasis string

const (
	BasisMileage    PayBasis = "mileage"
	BasisHourly     PayBasis = "hourly"
	BasisPercentage PayBasis = "percentage"
	BasisFlat       PayBasis = "flat"
)

// RuleCategory orders evaluation and determines amount sign.
type RuleCategory string

const (
	CategoryBase        RuleCategory = "base"        // the single mandatory pay mechanism
	CategoryAccessorial RuleCategory = "accessorial" // supplemental pay (detention, tarp, stops)
	CategoryDeduction   RuleCategory = "deduction"   // subtracts from total pay
)

// categoryOrder gives the stable evaluation order BASE -> ACCESSORIAL -> DEDUCTION.
func categoryOrder(c RuleCategory) int {
	switch c {
	case CategoryBase:
		return 0
	case CategoryAccessorial:
		return 1
	case CategoryDeduction:
		return 2
	default:
		return 3
	}
}

// TriggerEvent is the measured leg fact a rule keys its quantity off of.
type TriggerEvent string

const (
	TriggerMileLoaded   TriggerEvent = "mile_loaded"   // quantity = loaded miles
	TriggerMileEmpty    TriggerEvent = "mile_empty"    // quantity = empty (deadhead) miles
	TriggerTimeDuration TriggerEvent = "time_duration" // quantity = leg duration hours
	TriggerTimeWaiting  TriggerEvent = "time_waiting"  // quantity = detention/waiting hours
	TriggerCountStops   TriggerEvent = "count_stops"   // quantity = stop count
	TriggerFlatLoad     TriggerEvent = "flat_load"     // quantity = 1, rate is a flat amount per load
	TriggerFlatLeg      TriggerEvent = "flat_leg"      // quantity = 1, rate is a flat amount per leg
	TriggerAttrHazmat   TriggerEvent = "attr_hazmat"   // fires only when the leg is hazmat
	TriggerAttrTarp     TriggerEvent = "attr_tarp"     // fires only when tarping is required
	TriggerPctOfLoad    TriggerEvent = "pct_of_load"   // rate is a percentage of load revenue
)

// =============================================================================
// LINE ITEMS
// =============================================================================

// ItemSource records who owns a line item. System items are overwritten
// wholesale on recalculation (unless locked); manual items survive until
// explicitly deleted.
type ItemSource string

const (
	SourceSystem ItemSource = "system"
	SourceManual ItemSource = "manual"
)

// LineItem is one component of a driver's/carrier's pay for a leg.
type LineItem struct {
	ID       ItemID
	LegID    LegID
	RuleID   RuleID // empty for manual items
	Source   ItemSource
	Category RuleCategory

	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	// TotalAmount is quantity * rate with category sign applied
	// (deductions are negative). Caps are applied before signing.
	TotalAmount decimal.Decimal

	// IsLocked excludes the item from recalculation overwrite, regardless of
	// source, until explicitly unlocked.
	IsLocked bool

	// WarningMessage is a non-fatal annotation (divergent mileage, substituted
	// defaults). Recomputed on every reconciliation.
	WarningMessage string

	// Audit fields
	CreatedBy string // actor for manual items, "system" otherwise
	CreatedAt time.Time
}

// Signed returns the item's contribution to the leg total. TotalAmount is
// already signed; this exists so call sites read clearly.
func (li LineItem) Signed() decimal.Decimal {
	return li.TotalAmount
}

// =============================================================================
// LEG FACTS - measured inputs for one dispatch leg
// =============================================================================

// LegFacts is the fact set the evaluator consumes for one leg. Zero values
// mean "not measured"; the evaluator and reconciler treat a missing BASE
// input as a blocking condition rather than silently paying zero.
type LegFacts struct {
	LoadedMiles   decimal.Decimal
	EmptyMiles    decimal.Decimal
	DurationHours decimal.Decimal
	WaitingHours  decimal.Decimal
	StopCount     int
	Hazmat        bool
	TarpRequired  bool
	RevenueAmount decimal.Decimal

	// ContractMiles is an independently supplied mileage figure (rate
	// confirmation / contract lane). When present, mileage pay that diverges
	// from it beyond tolerance is flagged with a warning.
	ContractMiles *decimal.Decimal
}

// =============================================================================
// PAY STATE - per-leg pay lifecycle
// =============================================================================

// PayState describes where a leg's pay sits in its lifecycle. Derived from
// the driver assignment and the stored item set; never persisted directly.
type PayState string

const (
	StateUnassigned        PayState = "unassigned"          // no leg/driver
	StateAwaitingCalc      PayState = "awaiting_calculation" // driver present, no items yet
	StateCalculated        PayState = "calculated"           // all system items fresh
	StatePartiallyLocked   PayState = "partially_locked"     // locked items present
	StateManuallyAdjusted  PayState = "manually_adjusted"    // manual items present
)
