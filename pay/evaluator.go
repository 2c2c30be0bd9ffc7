/*
evaluator.go - Rule firing and line item computation

PURPOSE:
  Turns a validated profile's rules plus one leg's measured facts into
  computed line items. Pure function of its inputs: no stores, no clock,
  no side effects. Determinism here is what makes recalculation idempotent.

EVALUATION ORDER:
  Rules fire in category order BASE -> ACCESSORIAL -> DEDUCTION, keeping
  creation order within a category. Ordering is part of the output contract:
  the reconciler and the UI rely on it.

PER-RULE PIPELINE:
  1. quantity  = leg fact selected by the trigger (see triggerQuantity)
  2. effective = max(0, quantity - minThreshold)   [threshold pays the excess]
  3. amount    = effective * rate, or revenue * rate/100 for pct_of_load
  4. amount    = min(amount, maxCap) when a cap is set
  5. sign      = negated for deductions
  6. emit one line item, or nothing when the rule does not fire

FIRING POLICY:
  Attribute triggers (hazmat, tarp) fire only when the flag is set. For all
  other non-flat triggers, an effective quantity <= 0 SUPPRESSES the item:
  no zero-amount rows. Flat triggers always fire with quantity 1.

BASE INVARIANT:
  Exactly one BASE item per evaluation whenever the leg carries a usable
  value for the basis trigger. When the BASE rule cannot fire (fact missing
  or zero), the evaluation carries a blocking warning instead of silently
  omitting base pay - BaseFired=false tells the caller to surface it.

SEE ALSO:
  - profile.go:    rule validation the evaluator assumes
  - reconciler.go: merges these items with stored ones
*/
package pay

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATION RESULT
// =============================================================================

// Evaluation is the evaluator's output for one leg.
type Evaluation struct {
	Items []LineItem

	// BaseFired is false when the profile's BASE rule produced no item.
	// Callers must surface Warnings as a blocking condition in that case.
	BaseFired bool

	// Warnings are non-fatal annotations at the evaluation level (as opposed
	// to per-item warnings, which the reconciler recomputes).
	Warnings []string
}

// =============================================================================
// RULE EVALUATOR
// =============================================================================

// RuleEvaluator computes line items from a profile and leg facts.
type RuleEvaluator struct{}

// Evaluate runs every active rule of the profile against the facts.
// The profile must have passed ValidateProfile.
func (ev *RuleEvaluator) Evaluate(profile CompensationProfile, legID LegID, facts LegFacts) Evaluation {
	rules := profile.ActiveRules()

	// Category order, creation order within a category. Stable sort keeps
	// slice order (creation order) for equal categories.
	sort.SliceStable(rules, func(i, j int) bool {
		return categoryOrder(rules[i].Category) < categoryOrder(rules[j].Category)
	})

	result := Evaluation{}
	for _, rule := range rules {
		item, fired := ev.evaluateRule(rule, legID, facts)
		if !fired {
			if rule.Category == CategoryBase {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"base pay rule %q did not fire: leg has no usable %s value",
					rule.Label(), triggerLabel(rule.TriggerEvent)))
			}
			continue
		}
		if rule.Category == CategoryBase {
			result.BaseFired = true
		}
		result.Items = append(result.Items, item)
	}

	return result
}

// evaluateRule runs the per-rule pipeline. Returns fired=false when the rule
// emits nothing (attribute off, effective quantity <= 0).
func (ev *RuleEvaluator) evaluateRule(rule RateRule, legID LegID, facts LegFacts) (LineItem, bool) {
	quantity, ok := triggerQuantity(rule.TriggerEvent, facts)
	if !ok {
		return LineItem{}, false
	}

	// Threshold pays the excess only. Never set on flat/attribute triggers
	// (validation rejects that), so quantity semantics stay intact.
	if rule.MinThreshold != nil {
		quantity = quantity.Sub(*rule.MinThreshold)
	}
	if !isFlatTrigger(rule.TriggerEvent) && !quantity.IsPositive() {
		return LineItem{}, false
	}

	var amount decimal.Decimal
	if rule.TriggerEvent == TriggerPctOfLoad {
		// rate is a percentage of the trigger quantity (load revenue)
		amount = quantity.Mul(rule.RateAmount).Div(DecInt(100))
	} else {
		amount = quantity.Mul(rule.RateAmount)
	}

	if rule.MaxCap != nil && amount.GreaterThan(*rule.MaxCap) {
		amount = *rule.MaxCap
	}

	if rule.Category == CategoryDeduction {
		amount = amount.Neg()
	}

	return LineItem{
		LegID:       legID,
		RuleID:      rule.ID,
		Source:      SourceSystem,
		Category:    rule.Category,
		Description: rule.Label(),
		Quantity:    quantity,
		Rate:        rule.RateAmount,
		TotalAmount: amount,
		CreatedBy:   "system",
	}, true
}

// triggerQuantity selects the measured quantity for a trigger. The second
// return is false when the rule does not fire at all (attribute flag off).
func triggerQuantity(t TriggerEvent, facts LegFacts) (decimal.Decimal, bool) {
	switch t {
	case TriggerMileLoaded:
		return facts.LoadedMiles, true
	case TriggerMileEmpty:
		return facts.EmptyMiles, true
	case TriggerTimeDuration:
		return facts.DurationHours, true
	case TriggerTimeWaiting:
		return facts.WaitingHours, true
	case TriggerCountStops:
		return DecInt(int64(facts.StopCount)), true
	case TriggerFlatLoad, TriggerFlatLeg:
		return DecInt(1), true
	case TriggerAttrHazmat:
		if !facts.Hazmat {
			return decimal.Zero, false
		}
		return DecInt(1), true
	case TriggerAttrTarp:
		if !facts.TarpRequired {
			return decimal.Zero, false
		}
		return DecInt(1), true
	case TriggerPctOfLoad:
		return facts.RevenueAmount, true
	default:
		return decimal.Zero, false
	}
}
