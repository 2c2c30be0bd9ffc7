package pay_test

import (
	"strings"
	"testing"

	"github.com/linehaul/pay-engine/pay"
)

func systemItem(id, ruleID, amount string) pay.LineItem {
	return pay.LineItem{
		ID:          pay.ItemID(id),
		LegID:       "leg-1",
		RuleID:      pay.RuleID(ruleID),
		Source:      pay.SourceSystem,
		Category:    pay.CategoryBase,
		Description: "Base pay",
		Quantity:    pay.MustDec("1"),
		Rate:        pay.MustDec(amount),
		TotalAmount: pay.MustDec(amount),
	}
}

// =============================================================================
// LOCK PRESERVATION
// =============================================================================

func TestReconcile_LockedItemSurvivesRecalculation(t *testing.T) {
	// GIVEN: a stored locked SYSTEM item of $200
	// WHEN: a fresh evaluation produces a $180 SYSTEM item for the same rule
	// THEN: the locked item remains at $200, untouched

	locked := systemItem("item-1", "rule-base", "200")
	locked.IsLocked = true

	fresh := []pay.LineItem{systemItem("", "rule-base", "180")}

	rc := &pay.Reconciler{}
	result := rc.Reconcile([]pay.LineItem{locked}, fresh, pay.LegFacts{})

	var kept *pay.LineItem
	for i := range result.Items {
		if result.Items[i].ID == "item-1" {
			kept = &result.Items[i]
		}
	}
	if kept == nil {
		t.Fatal("locked item must survive reconciliation")
	}
	if !kept.TotalAmount.Equal(pay.MustDec("200")) {
		t.Errorf("locked amount changed: got %s", kept.TotalAmount)
	}
	if !kept.IsLocked {
		t.Error("lock flag must survive")
	}
	// The fresh set still lands; only locked/manual rows are out of reach.
	if len(result.SystemItems) != 1 {
		t.Errorf("expected 1 fresh system item to persist, got %d", len(result.SystemItems))
	}
}

func TestReconcile_UnlockedSystemItemsReplacedWholesale(t *testing.T) {
	// GIVEN: two stored unlocked SYSTEM items
	// WHEN: reconciled with one fresh item
	// THEN: stored ones are gone, only the fresh item remains

	stored := []pay.LineItem{
		systemItem("item-1", "rule-base", "100"),
		systemItem("item-2", "rule-stops", "50"),
	}
	fresh := []pay.LineItem{systemItem("", "rule-base", "120")}

	result := (&pay.Reconciler{}).Reconcile(stored, fresh, pay.LegFacts{})

	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if !result.Items[0].TotalAmount.Equal(pay.MustDec("120")) {
		t.Errorf("expected the fresh 120 item, got %s", result.Items[0].TotalAmount)
	}
}

// =============================================================================
// MANUAL SURVIVAL
// =============================================================================

func TestReconcile_ManualItemSurvives_TotalIsSignedSum(t *testing.T) {
	// GIVEN: one stored unlocked MANUAL item of $75
	// WHEN: recalculation produces two SYSTEM items (275 base, -50 deduction)
	// THEN: final set has all three, total = 275 + 75 - 50 = 300

	manual := pay.LineItem{
		ID:          "item-manual",
		LegID:       "leg-1",
		Source:      pay.SourceManual,
		Category:    pay.CategoryAccessorial,
		Description: "Layover",
		Quantity:    pay.MustDec("1"),
		Rate:        pay.MustDec("75"),
		TotalAmount: pay.MustDec("75"),
		CreatedBy:   "dispatch",
	}
	fresh := []pay.LineItem{
		systemItem("", "rule-base", "275"),
		{
			LegID: "leg-1", RuleID: "rule-ded", Source: pay.SourceSystem,
			Category: pay.CategoryDeduction, Description: "Insurance",
			Quantity: pay.MustDec("1"), Rate: pay.MustDec("50"),
			TotalAmount: pay.MustDec("-50"),
		},
	}

	result := (&pay.Reconciler{}).Reconcile([]pay.LineItem{manual}, fresh, pay.LegFacts{})

	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Items[0].ID != "item-manual" {
		t.Error("manual item must be retained (stored order first)")
	}
	if !result.Total.Equal(pay.MustDec("300")) {
		t.Errorf("expected total 300, got %s", result.Total)
	}
	if result.State != pay.StateManuallyAdjusted {
		t.Errorf("expected manually_adjusted state, got %s", result.State)
	}
}

// =============================================================================
// WARNINGS
// =============================================================================

func TestReconcile_ContractMilesDivergence_Flagged(t *testing.T) {
	// GIVEN: contract miles 400, paid mileage quantity 500 (25% divergence)
	// WHEN: reconciled with the default 10% tolerance
	// THEN: the mileage item carries a divergence warning

	contract := pay.MustDec("400")
	facts := pay.LegFacts{
		LoadedMiles:   pay.MustDec("500"),
		ContractMiles: &contract,
	}
	fresh := []pay.LineItem{{
		LegID: "leg-1", RuleID: "rule-base", Source: pay.SourceSystem,
		Category: pay.CategoryBase, Description: "Base pay",
		Quantity: pay.MustDec("500"), Rate: pay.MustDec("0.55"),
		TotalAmount: pay.MustDec("275"),
	}}

	result := (&pay.Reconciler{}).Reconcile(nil, fresh, facts)

	if result.Items[0].WarningMessage == "" {
		t.Fatal("expected a contract miles divergence warning")
	}
	if !strings.Contains(result.Items[0].WarningMessage, "contract miles") {
		t.Errorf("unexpected warning: %q", result.Items[0].WarningMessage)
	}
}

func TestReconcile_ContractMilesWithinTolerance_NotFlagged(t *testing.T) {
	// GIVEN: contract miles 480, paid quantity 500 (about 4% divergence)
	// THEN: no warning

	contract := pay.MustDec("480")
	facts := pay.LegFacts{
		LoadedMiles:   pay.MustDec("500"),
		ContractMiles: &contract,
	}
	fresh := []pay.LineItem{{
		LegID: "leg-1", RuleID: "rule-base", Source: pay.SourceSystem,
		Category: pay.CategoryBase, Description: "Base pay",
		Quantity: pay.MustDec("500"), Rate: pay.MustDec("0.55"),
		TotalAmount: pay.MustDec("275"),
	}}

	result := (&pay.Reconciler{}).Reconcile(nil, fresh, facts)

	if w := result.Items[0].WarningMessage; w != "" {
		t.Errorf("expected no warning, got %q", w)
	}
}

func TestReconcile_StaleWarningCleared(t *testing.T) {
	// GIVEN: a locked item carrying an old divergence warning
	// WHEN: reconciled against facts that no longer diverge
	// THEN: the stale warning is gone

	locked := systemItem("item-1", "rule-base", "275")
	locked.IsLocked = true
	locked.Quantity = pay.MustDec("500")
	locked.WarningMessage = "paid miles 500 diverge from contract miles 400 by more than 10%"

	contract := pay.MustDec("500")
	facts := pay.LegFacts{LoadedMiles: pay.MustDec("500"), ContractMiles: &contract}

	result := (&pay.Reconciler{}).Reconcile([]pay.LineItem{locked}, nil, facts)

	if w := result.Items[0].WarningMessage; w != "" {
		t.Errorf("stale warning should be recomputed away, got %q", w)
	}
}

// =============================================================================
// PAY STATE DERIVATION
// =============================================================================

func TestDeriveState(t *testing.T) {
	lockedItem := systemItem("i1", "r1", "100")
	lockedItem.IsLocked = true
	manualItem := pay.LineItem{ID: "i2", Source: pay.SourceManual, TotalAmount: pay.MustDec("50")}

	cases := []struct {
		name      string
		items     []pay.LineItem
		hasDriver bool
		want      pay.PayState
	}{
		{"no driver", []pay.LineItem{systemItem("i1", "r1", "100")}, false, pay.StateUnassigned},
		{"driver, no items", nil, true, pay.StateAwaitingCalc},
		{"fresh system items", []pay.LineItem{systemItem("i1", "r1", "100")}, true, pay.StateCalculated},
		{"locked present", []pay.LineItem{lockedItem}, true, pay.StatePartiallyLocked},
		{"manual present", []pay.LineItem{manualItem}, true, pay.StateManuallyAdjusted},
		{"manual beats locked", []pay.LineItem{lockedItem, manualItem}, true, pay.StateManuallyAdjusted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pay.DeriveState(tc.items, tc.hasDriver); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// =============================================================================
// IDEMPOTENCE
// =============================================================================

func TestReconcile_Idempotent(t *testing.T) {
	// GIVEN: no locked/manual items
	// WHEN: the same fresh set is reconciled twice in succession
	// THEN: both passes produce identical item sets and totals

	fresh := []pay.LineItem{
		systemItem("", "rule-base", "275"),
		systemItem("", "rule-stops", "50"),
	}
	facts := pay.LegFacts{LoadedMiles: pay.MustDec("500")}

	rc := &pay.Reconciler{}
	first := rc.Reconcile(nil, fresh, facts)
	second := rc.Reconcile(first.SystemItems, fresh, facts)

	// First pass's unlocked system items are discarded, replaced by the same
	// fresh set.
	if len(first.Items) != len(second.Items) {
		t.Fatalf("item counts differ: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		if a.RuleID != b.RuleID || !a.TotalAmount.Equal(b.TotalAmount) || a.WarningMessage != b.WarningMessage {
			t.Errorf("item %d differs after second pass", i)
		}
	}
	if !first.Total.Equal(second.Total) {
		t.Errorf("totals differ: %s vs %s", first.Total, second.Total)
	}
}
