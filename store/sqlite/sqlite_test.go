package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linehaul/pay-engine/load"
	"github.com/linehaul/pay-engine/pay"
	"github.com/linehaul/pay-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mileageProfile(id string, isDefault bool) pay.CompensationProfile {
	min := pay.MustDec("2")
	maxCap := pay.MustDec("150")
	return pay.CompensationProfile{
		ID:        pay.ProfileID(id),
		OrgID:     "org-1",
		Name:      "OTR " + id,
		Type:      pay.ProfileDriver,
		PayBasis:  pay.BasisMileage,
		IsActive:  true,
		IsDefault: isDefault,
		Version:   1,
		Rules: []pay.RateRule{
			{
				ID: pay.RuleID(id + "-r1"), ProfileID: pay.ProfileID(id),
				Category: pay.CategoryBase, TriggerEvent: pay.TriggerMileLoaded,
				RateAmount: pay.MustDec("0.55"), IsActive: true,
			},
			{
				ID: pay.RuleID(id + "-r2"), ProfileID: pay.ProfileID(id),
				Category: pay.CategoryAccessorial, TriggerEvent: pay.TriggerCountStops,
				RateAmount: pay.MustDec("25"), MinThreshold: &min, MaxCap: &maxCap,
				Description: "Extra stop pay", IsActive: true,
			},
		},
	}
}

func seedLoad(t *testing.T, store *sqlite.Store, loadID, legID, driverID string) {
	t.Helper()
	delivered := time.Date(2026, time.August, 10, 14, 0, 0, 0, time.UTC)
	ld := load.Load{
		ID:            pay.LoadID(loadID),
		OrgID:         "org-1",
		Reference:     "PRO-1234",
		RevenueAmount: pay.MustDec("1850"),
		DeliveredAt:   &delivered,
		Stops: []load.LoadStop{
			{ID: loadID + "-s1", LoadID: pay.LoadID(loadID), Sequence: 1, Type: load.StopPickup, City: "Chicago"},
			{ID: loadID + "-s2", LoadID: pay.LoadID(loadID), Sequence: 2, Type: load.StopDelivery, City: "Columbus"},
		},
		Legs: []load.DispatchLeg{{
			ID: pay.LegID(legID), LoadID: pay.LoadID(loadID),
			DriverID:     pay.SubjectID(driverID),
			FirstStopSeq: 1, LastStopSeq: 2,
			LoadedMiles: pay.MustDec("500"),
		}},
	}
	if err := store.SaveLoad(context.Background(), ld); err != nil {
		t.Fatalf("seed load %s: %v", loadID, err)
	}
}

// =============================================================================
// PROFILES
// =============================================================================

func TestSQLite_ProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProfile(ctx, mileageProfile("prof-1", false)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetProfile(ctx, "prof-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PayBasis != pay.BasisMileage || !got.IsActive {
		t.Errorf("header fields wrong: %+v", got)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got.Rules))
	}
	// Rule order follows creation order, not ID order.
	if got.Rules[0].Category != pay.CategoryBase {
		t.Error("base rule must come back first")
	}
	stops := got.Rules[1]
	if stops.MinThreshold == nil || !stops.MinThreshold.Equal(pay.MustDec("2")) {
		t.Error("min_threshold lost in round trip")
	}
	if stops.MaxCap == nil || !stops.MaxCap.Equal(pay.MustDec("150")) {
		t.Error("max_cap lost in round trip")
	}
}

func TestSQLite_ProfileResave_BumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := mileageProfile("prof-1", false)
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Rules[0].RateAmount = pay.MustDec("0.60")
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetProfile(ctx, "prof-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2 after resave, got %d", got.Version)
	}
	if !got.Rules[0].RateAmount.Equal(pay.MustDec("0.60")) {
		t.Errorf("rule update lost: got %s", got.Rules[0].RateAmount)
	}
}

func TestSQLite_ProfileNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetProfile(context.Background(), "prof-missing")
	if !errors.Is(err, pay.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestSQLite_SetDefaultProfile_Exclusive(t *testing.T) {
	// GIVEN: profile A is the org's driver default
	// WHEN: profile B is made the default
	// THEN: both the unset and the set happen; one default remains

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProfile(ctx, mileageProfile("prof-a", true)); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveProfile(ctx, mileageProfile("prof-b", false)); err != nil {
		t.Fatal(err)
	}

	if err := store.SetDefaultProfile(ctx, "org-1", "prof-b"); err != nil {
		t.Fatalf("set default: %v", err)
	}

	profiles, err := store.ListProfiles(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	defaults := 0
	for _, p := range profiles {
		if p.IsDefault {
			defaults++
			if p.ID != "prof-b" {
				t.Errorf("wrong default: %s", p.ID)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly 1 default, got %d", defaults)
	}
}

func TestSQLite_SetDefaultProfile_UnknownProfile(t *testing.T) {
	store := newTestStore(t)
	err := store.SetDefaultProfile(context.Background(), "org-1", "prof-missing")
	if !errors.Is(err, pay.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestSQLite_SetStarredAssignment_Exclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProfile(ctx, mileageProfile("prof-a", false)); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveProfile(ctx, mileageProfile("prof-b", false)); err != nil {
		t.Fatal(err)
	}
	for _, a := range []pay.ProfileAssignment{
		{ID: "asn-1", OrgID: "org-1", SubjectID: "drv-1", ProfileID: "prof-a", IsStarred: true},
		{ID: "asn-2", OrgID: "org-1", SubjectID: "drv-1", ProfileID: "prof-b"},
	} {
		if err := store.SaveAssignment(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.SetStarredAssignment(ctx, "asn-2"); err != nil {
		t.Fatalf("star: %v", err)
	}

	assignments, err := store.ListAssignments(ctx, "org-1", "drv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	// ListAssignments orders by ID; asn-1 first.
	if assignments[0].IsStarred {
		t.Error("prior star must be unset")
	}
	if !assignments[1].IsStarred {
		t.Error("new star must be set")
	}
}

func TestSQLite_SetStarredAssignment_Unknown(t *testing.T) {
	store := newTestStore(t)
	err := store.SetStarredAssignment(context.Background(), "asn-missing")
	if !errors.Is(err, pay.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

// =============================================================================
// PAYABLES
// =============================================================================

func TestSQLite_ReplaceSystemItems_PreservesLockedAndManual(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedLoad(t, store, "load-1", "leg-1", "drv-1")

	locked := pay.LineItem{
		ID: "item-locked", LegID: "leg-1", RuleID: "r1", Source: pay.SourceSystem,
		Category: pay.CategoryBase, Description: "Base pay",
		Quantity: pay.MustDec("1"), Rate: pay.MustDec("200"),
		TotalAmount: pay.MustDec("200"), IsLocked: true,
	}
	stale := pay.LineItem{
		ID: "item-stale", LegID: "leg-1", RuleID: "r2", Source: pay.SourceSystem,
		Category: pay.CategoryAccessorial, Description: "Stop pay",
		Quantity: pay.MustDec("2"), Rate: pay.MustDec("25"),
		TotalAmount: pay.MustDec("50"),
	}
	if err := store.ReplaceSystemItems(ctx, "leg-1", []pay.LineItem{locked, stale}); err != nil {
		t.Fatal(err)
	}
	manual := pay.LineItem{
		ID: "item-manual", LegID: "leg-1", Source: pay.SourceManual,
		Category: pay.CategoryAccessorial, Description: "Layover",
		Quantity: pay.MustDec("1"), Rate: pay.MustDec("75"),
		TotalAmount: pay.MustDec("75"), CreatedBy: "dispatch",
	}
	if err := store.AddManualItem(ctx, manual); err != nil {
		t.Fatal(err)
	}

	fresh := []pay.LineItem{{
		LegID: "leg-1", RuleID: "r1", Source: pay.SourceSystem,
		Category: pay.CategoryBase, Description: "Base pay",
		Quantity: pay.MustDec("500"), Rate: pay.MustDec("0.55"),
		TotalAmount: pay.MustDec("275"),
	}}
	if err := store.ReplaceSystemItems(ctx, "leg-1", fresh); err != nil {
		t.Fatal(err)
	}

	items, err := store.ListItems(ctx, "leg-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (locked + manual + fresh), got %d", len(items))
	}
	found := map[pay.ItemID]bool{}
	for _, item := range items {
		found[item.ID] = true
	}
	if !found["item-locked"] || !found["item-manual"] {
		t.Error("locked and manual items must survive replacement")
	}
	if found["item-stale"] {
		t.Error("unlocked system item must be replaced")
	}
}

func TestSQLite_DeleteManualItem_Guards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedLoad(t, store, "load-1", "leg-1", "drv-1")

	system := pay.LineItem{
		ID: "item-sys", LegID: "leg-1", Source: pay.SourceSystem,
		Category: pay.CategoryBase, Description: "Base pay",
		Quantity: pay.MustDec("1"), Rate: pay.MustDec("100"), TotalAmount: pay.MustDec("100"),
	}
	if err := store.ReplaceSystemItems(ctx, "leg-1", []pay.LineItem{system}); err != nil {
		t.Fatal(err)
	}
	lockedManual := pay.LineItem{
		ID: "item-lm", LegID: "leg-1", Source: pay.SourceManual,
		Category: pay.CategoryAccessorial, Description: "Bonus",
		Quantity: pay.MustDec("1"), Rate: pay.MustDec("50"), TotalAmount: pay.MustDec("50"),
		IsLocked: true,
	}
	manual := pay.LineItem{
		ID: "item-man", LegID: "leg-1", Source: pay.SourceManual,
		Category: pay.CategoryAccessorial, Description: "Layover",
		Quantity: pay.MustDec("1"), Rate: pay.MustDec("75"), TotalAmount: pay.MustDec("75"),
	}
	for _, item := range []pay.LineItem{lockedManual, manual} {
		if err := store.AddManualItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteManualItem(ctx, "item-sys"); !errors.Is(err, pay.ErrManualItemOnly) {
		t.Errorf("system delete: expected ErrManualItemOnly, got %v", err)
	}
	if err := store.DeleteManualItem(ctx, "item-lm"); !errors.Is(err, pay.ErrItemLocked) {
		t.Errorf("locked delete: expected ErrItemLocked, got %v", err)
	}
	if err := store.DeleteManualItem(ctx, "item-man"); err != nil {
		t.Errorf("manual delete should succeed: %v", err)
	}
	if err := store.DeleteManualItem(ctx, "item-gone"); !errors.Is(err, pay.ErrItemNotFound) {
		t.Errorf("missing delete: expected ErrItemNotFound, got %v", err)
	}
}

func TestSQLite_ListItemsInRange(t *testing.T) {
	// Range queries join payables -> legs -> loads on delivery date and driver.
	store := newTestStore(t)
	ctx := context.Background()

	seedLoad(t, store, "load-in", "leg-in", "drv-1") // delivers Aug 10

	lateDelivered := time.Date(2026, time.August, 20, 14, 0, 0, 0, time.UTC)
	late := load.Load{
		ID: "load-late", OrgID: "org-1", RevenueAmount: pay.MustDec("900"),
		DeliveredAt: &lateDelivered,
		Stops: []load.LoadStop{
			{ID: "ls-1", LoadID: "load-late", Sequence: 1, Type: load.StopPickup},
			{ID: "ls-2", LoadID: "load-late", Sequence: 2, Type: load.StopDelivery},
		},
		Legs: []load.DispatchLeg{{
			ID: "leg-late", LoadID: "load-late", DriverID: "drv-1",
			FirstStopSeq: 1, LastStopSeq: 2, LoadedMiles: pay.MustDec("300"),
		}},
	}
	if err := store.SaveLoad(ctx, late); err != nil {
		t.Fatal(err)
	}

	for _, legID := range []pay.LegID{"leg-in", "leg-late"} {
		err := store.ReplaceSystemItems(ctx, legID, []pay.LineItem{{
			LegID: legID, Source: pay.SourceSystem,
			Category: pay.CategoryBase, Description: "Base pay",
			Quantity: pay.MustDec("1"), Rate: pay.MustDec("100"), TotalAmount: pay.MustDec("100"),
		}})
		if err != nil {
			t.Fatal(err)
		}
	}

	from := time.Date(2026, time.August, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 15, 23, 59, 59, 0, time.UTC)
	items, err := store.ListItemsInRange(ctx, "org-1", "drv-1", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].LegID != "leg-in" {
		t.Fatalf("expected only leg-in's item, got %+v", items)
	}

	// Another driver sees nothing.
	items, err = store.ListItemsInRange(ctx, "org-1", "drv-2", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("drv-2 should have no items, got %d", len(items))
	}
}

// =============================================================================
// LOADS
// =============================================================================

func TestSQLite_LoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contract := pay.MustDec("510")
	delivered := time.Date(2026, time.August, 10, 14, 0, 0, 0, time.UTC)
	ld := load.Load{
		ID: "load-1", OrgID: "org-1", Reference: "PRO-9",
		RevenueAmount: pay.MustDec("1850"), Hazmat: true,
		ContractMiles: &contract, DeliveredAt: &delivered,
		Stops: []load.LoadStop{
			{ID: "s1", LoadID: "load-1", Sequence: 1, Type: load.StopPickup, City: "Chicago", State: "IL"},
			{ID: "s2", LoadID: "load-1", Sequence: 2, Type: load.StopDelivery, City: "Columbus", State: "OH"},
		},
		Legs: []load.DispatchLeg{{
			ID: "leg-1", LoadID: "load-1", DriverID: "drv-1", TruckID: "T-12",
			FirstStopSeq: 1, LastStopSeq: 2,
			LoadedMiles: pay.MustDec("500"), EmptyMiles: pay.MustDec("42"),
		}},
	}
	if err := store.SaveLoad(ctx, ld); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetLoad(ctx, "load-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Hazmat || got.Reference != "PRO-9" {
		t.Errorf("load fields wrong: %+v", got)
	}
	if got.ContractMiles == nil || !got.ContractMiles.Equal(contract) {
		t.Error("contract miles lost")
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(delivered) {
		t.Error("delivered_at lost")
	}
	if len(got.Stops) != 2 || got.Stops[0].Sequence != 1 {
		t.Errorf("stops wrong: %+v", got.Stops)
	}
	if len(got.Legs) != 1 {
		t.Fatalf("expected 1 leg, got %d", len(got.Legs))
	}
	leg := got.Legs[0]
	if leg.DriverID != "drv-1" || !leg.LoadedMiles.Equal(pay.MustDec("500")) {
		t.Errorf("leg fields wrong: %+v", leg)
	}
}

func TestSQLite_LoadNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetLoad(context.Background(), "load-missing")
	if !errors.Is(err, pay.ErrLoadNotFound) {
		t.Fatalf("expected ErrLoadNotFound, got %v", err)
	}
}

func TestSQLite_ReplaceLegs_SplitPersists(t *testing.T) {
	// After an in-memory split, both legs land in one transaction and come
	// back ordered by first stop.
	store := newTestStore(t)
	ctx := context.Background()

	ld := load.Load{
		ID: "load-1", OrgID: "org-1", RevenueAmount: pay.MustDec("2000"),
		Stops: []load.LoadStop{
			{ID: "s1", LoadID: "load-1", Sequence: 1, Type: load.StopPickup},
			{ID: "s2", LoadID: "load-1", Sequence: 2, Type: load.StopDelivery, Name: "Relay yard"},
			{ID: "s3", LoadID: "load-1", Sequence: 3, Type: load.StopDelivery},
		},
		Legs: []load.DispatchLeg{{
			ID: "leg-1", LoadID: "load-1", DriverID: "drv-west",
			FirstStopSeq: 1, LastStopSeq: 3, LoadedMiles: pay.MustDec("400"),
		}},
	}
	if err := store.SaveLoad(ctx, ld); err != nil {
		t.Fatal(err)
	}

	if _, err := load.Split(&ld, "leg-1", 2, "leg-2"); err != nil {
		t.Fatalf("split: %v", err)
	}
	if err := store.ReplaceLegs(ctx, "load-1", ld.Legs); err != nil {
		t.Fatalf("replace legs: %v", err)
	}

	got, err := store.GetLoad(ctx, "load-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(got.Legs))
	}
	if got.Legs[0].LastStopSeq != 2 || got.Legs[1].FirstStopSeq != 2 {
		t.Errorf("legs must share the split stop: %+v", got.Legs)
	}
	if got.Legs[1].DriverID != "" {
		t.Error("second leg must come back unassigned")
	}
}

// =============================================================================
// RECALC RUNS
// =============================================================================

func TestSQLite_RecalcRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runs := []sqlite.RecalcRun{
		{ID: "run-1", OrgID: "org-1", LoadID: "load-1", LegID: "leg-1", Status: "ok", Total: pay.MustDec("275")},
		{ID: "run-2", OrgID: "org-1", LoadID: "load-2", LegID: "leg-2", Status: "blocked", Total: pay.MustDec("0"), Error: "no active profile"},
	}
	for _, run := range runs {
		if err := store.SaveRecalcRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListRecalcRuns(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	byID := map[string]sqlite.RecalcRun{}
	for _, run := range got {
		byID[run.ID] = run
	}
	if byID["run-2"].Error != "no active profile" {
		t.Errorf("error message lost: %+v", byID["run-2"])
	}
	if !byID["run-1"].Total.Equal(pay.MustDec("275")) {
		t.Errorf("total lost: %+v", byID["run-1"])
	}
}
