/*
reconciler.go - Merging fresh system items with stored items

PURPOSE:
  Recalculation never starts from an empty slate: legs accumulate manual
  items and locks between runs. The reconciler decides, structurally, which
  stored items survive and where fresh system items slot in, then recomputes
  totals and per-item warnings.

PARTITION RULE (the whole algorithm):
  locked items (any source)  -> kept unchanged
  unlocked manual items      -> kept unchanged
  unlocked system items      -> discarded, replaced by the fresh set

  Because overwrite-eligibility is decided by partition, "recalculation
  overwrote my locked item" cannot happen - there is no code path for it.

OUTPUT ORDER:
  Kept items in stored order, then fresh items in evaluation order. Stored
  order is deterministic (store contract) and evaluation order is
  deterministic, so reconciling twice with the same inputs yields identical
  output - recalculation is idempotent.

WARNINGS:
  Recomputed on every pass, never carried over stale:
  - mileage pay diverging from contract miles beyond tolerance (default 10%)
  - a zero quantity substituted where the trigger expected a measured fact

SEE ALSO:
  - evaluator.go: produces the fresh system items
  - store.go:     ReplaceSystemItems persists the result
*/
package pay

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler merges freshly evaluated system items with stored items.
type Reconciler struct {
	// ContractMilesTolerance is the allowed fractional divergence between
	// paid mileage quantity and contract miles before an item is flagged.
	// Zero means "use the default" (0.10).
	ContractMilesTolerance decimal.Decimal
}

// DefaultContractMilesTolerance flags mileage items diverging more than 10%
// from the contract miles figure.
var DefaultContractMilesTolerance = MustDec("0.10")

// ReconcileResult is the final item set for a leg plus derived totals.
type ReconcileResult struct {
	// Items is the full persisted set: kept stored items then fresh ones.
	Items []LineItem

	// SystemItems is the subset to hand to PayableStore.ReplaceSystemItems
	// (the fresh, unlocked system items only).
	SystemItems []LineItem

	// Total is the signed sum of all items (deductions already negative).
	Total decimal.Decimal

	State PayState
}

// Reconcile merges stored items with a fresh evaluation.
func (rc *Reconciler) Reconcile(stored []LineItem, fresh []LineItem, facts LegFacts) ReconcileResult {
	var kept []LineItem
	for _, item := range stored {
		if item.IsLocked || item.Source == SourceManual {
			// Kept items keep their stored amounts but get fresh warnings;
			// stale annotations must not outlive the facts that caused them.
			item.WarningMessage = rc.itemWarning(item, facts)
			kept = append(kept, item)
		}
		// Unlocked system items fall through: replaced wholesale.
	}
	for i := range fresh {
		fresh[i].WarningMessage = rc.itemWarning(fresh[i], facts)
	}

	result := ReconcileResult{
		SystemItems: fresh,
		Items:       make([]LineItem, 0, len(kept)+len(fresh)),
	}
	result.Items = append(result.Items, kept...)
	result.Items = append(result.Items, fresh...)

	total := decimal.Zero
	for _, item := range result.Items {
		total = total.Add(item.Signed())
	}
	result.Total = total
	result.State = deriveState(result.Items, true)

	return result
}

// =============================================================================
// WARNINGS
// =============================================================================

func (rc *Reconciler) tolerance() decimal.Decimal {
	if rc.ContractMilesTolerance.IsZero() {
		return DefaultContractMilesTolerance
	}
	return rc.ContractMilesTolerance
}

// itemWarning recomputes the warning for a single item against current facts.
func (rc *Reconciler) itemWarning(item LineItem, facts LegFacts) string {
	// Manual items are user-authored; the engine does not second-guess them.
	if item.Source == SourceManual {
		return ""
	}

	if w := rc.mileageDivergence(item, facts); w != "" {
		return w
	}

	// The evaluator suppresses zero-quantity items, so a stored system item
	// with zero quantity means a default was substituted for a missing fact
	// at the time it was locked in.
	if item.Quantity.IsZero() {
		return "computed from a missing or zero input"
	}
	return ""
}

// mileageDivergence flags mileage items whose paid quantity strays from the
// independently supplied contract miles.
func (rc *Reconciler) mileageDivergence(item LineItem, facts LegFacts) string {
	if facts.ContractMiles == nil || facts.ContractMiles.IsZero() {
		return ""
	}
	// Only the loaded-miles base/accessorial quantity is comparable to
	// contract miles.
	if !item.Quantity.Equal(facts.LoadedMiles) || facts.LoadedMiles.IsZero() {
		return ""
	}

	contract := *facts.ContractMiles
	diff := facts.LoadedMiles.Sub(contract).Abs()
	if diff.Div(contract).GreaterThan(rc.tolerance()) {
		return fmt.Sprintf("paid miles %s diverge from contract miles %s by more than %s%%",
			facts.LoadedMiles.String(), contract.String(),
			rc.tolerance().Mul(DecInt(100)).String())
	}
	return ""
}

// =============================================================================
// PAY STATE DERIVATION
// =============================================================================

// deriveState maps an item set to the leg's pay lifecycle state.
// hasDriver=false short-circuits to unassigned regardless of items:
// removing the driver does not delete history, it just stops calculation.
func deriveState(items []LineItem, hasDriver bool) PayState {
	if !hasDriver {
		return StateUnassigned
	}
	if len(items) == 0 {
		return StateAwaitingCalc
	}

	locked, manual := false, false
	for _, item := range items {
		if item.IsLocked {
			locked = true
		}
		if item.Source == SourceManual {
			manual = true
		}
	}
	switch {
	case manual:
		return StateManuallyAdjusted
	case locked:
		return StatePartiallyLocked
	default:
		return StateCalculated
	}
}

// DeriveState exposes state derivation for callers that only have a stored
// item set (display paths that do not run a recalculation).
func DeriveState(items []LineItem, hasDriver bool) PayState {
	return deriveState(items, hasDriver)
}

// Total sums an item set. Deductions are already negative.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Signed())
	}
	return total
}
