/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the database with realistic fleet setups so the engine can be
  demonstrated and exercised without manual data entry. Each scenario is a
  named loader that resets the database and builds a small, coherent world.

SCENARIOS:
  otr-fleet:       An OTR fleet: mileage default profile, one driver on a
                   starred percentage deal, a delivered load ready to pay.
  split-handoff:   A load relayed between two drivers, split at the handoff
                   stop.
  owner-operator:  A percentage-of-revenue carrier with standard deductions
                   and a manually added bonus.

DESIGN:
  Loaders go through the same stores and factory the API uses - no SQL
  shortcuts - so loading a scenario also exercises validation and the
  default/star exclusivity operations.

SEE ALSO:
  - factory/profile.go: the preset profile JSON used here
  - handlers.go: scenario endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/linehaul/pay-engine/factory"
	"github.com/linehaul/pay-engine/load"
	"github.com/linehaul/pay-engine/pay"
	"github.com/linehaul/pay-engine/store/sqlite"
)

// Scenario is a named demo data loader.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Load        func(ctx context.Context, store *sqlite.Store) error
}

// Scenarios lists every loadable scenario.
var Scenarios = []Scenario{
	{
		ID:          "otr-fleet",
		Name:        "OTR Fleet",
		Description: "Mileage default profile, a starred percentage deal, and a delivered load ready to pay.",
		Load:        loadOTRFleet,
	},
	{
		ID:          "split-handoff",
		Name:        "Split Handoff",
		Description: "A load relayed between two drivers, split at the handoff stop.",
		Load:        loadSplitHandoff,
	},
	{
		ID:          "owner-operator",
		Name:        "Owner Operator",
		Description: "Percentage-of-revenue carrier with standard deductions and a manual bonus.",
		Load:        loadOwnerOperator,
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(Scenarios))
	for i, s := range Scenarios {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario ID.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the database and loads the selected scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var scenario *Scenario
	for i := range Scenarios {
		if Scenarios[i].ID == req.ScenarioID {
			scenario = &Scenarios[i]
			break
		}
	}
	if scenario == nil {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := scenario.Load(ctx, h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = scenario.ID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": scenario.ID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadOTRFleet(ctx context.Context, store *sqlite.Store) error {
	f := factory.NewProfileFactory()
	orgID := pay.OrgID("org-demo")

	if err := store.SaveOrganization(ctx, sqlite.Organization{ID: orgID, Name: "Demo Carriers LLC"}); err != nil {
		return err
	}

	drivers := []sqlite.Driver{
		{ID: "drv-alice", OrgID: orgID, Name: "Alice Moreno", SubjectType: pay.ProfileDriver},
		{ID: "drv-bob", OrgID: orgID, Name: "Bob Okafor", SubjectType: pay.ProfileDriver},
	}
	for _, d := range drivers {
		if err := store.SaveDriver(ctx, d); err != nil {
			return err
		}
	}

	// Default mileage profile for the fleet.
	mileage, err := f.Parse(factory.StandardMileageJSON("prof-mileage", string(orgID), "Standard OTR Mileage", "0.55"))
	if err != nil {
		return err
	}
	if err := store.SaveProfile(ctx, *mileage); err != nil {
		return err
	}
	if err := store.SetDefaultProfile(ctx, orgID, mileage.ID); err != nil {
		return err
	}

	// Alice also carries a percentage deal; the star makes it win over the
	// default.
	pct, err := f.Parse(factory.PercentageOwnerOperatorJSON("prof-pct", string(orgID), "28% Revenue Deal", "28"))
	if err != nil {
		return err
	}
	// The preset is a carrier profile; Alice is a driver, so rebuild it as one.
	pctJSON := f.ToJSON(*pct)
	pctJSON.ProfileType = string(pay.ProfileDriver)
	pctDriver, err := f.FromJSON(pctJSON)
	if err != nil {
		return err
	}
	if err := store.SaveProfile(ctx, *pctDriver); err != nil {
		return err
	}

	assignments := []pay.ProfileAssignment{
		{ID: "asn-alice-mileage", OrgID: orgID, SubjectID: "drv-alice", ProfileID: mileage.ID},
		{ID: "asn-alice-pct", OrgID: orgID, SubjectID: "drv-alice", ProfileID: pctDriver.ID},
		{ID: "asn-bob-mileage", OrgID: orgID, SubjectID: "drv-bob", ProfileID: mileage.ID},
	}
	for _, a := range assignments {
		if err := store.SaveAssignment(ctx, a); err != nil {
			return err
		}
	}
	if err := store.SetStarredAssignment(ctx, "asn-alice-pct"); err != nil {
		return err
	}

	delivered := time.Now().Add(-48 * time.Hour)
	contract := pay.MustDec("510")
	ld := load.Load{
		ID:            "load-1001",
		OrgID:         orgID,
		Reference:     "PRO-88231",
		RevenueAmount: pay.MustDec("1850.00"),
		ContractMiles: &contract,
		DeliveredAt:   &delivered,
		Stops: []load.LoadStop{
			{ID: "load-1001-stop-1", LoadID: "load-1001", Sequence: 1, Type: load.StopPickup, Name: "Ajax Steel", City: "Gary", State: "IN"},
			{ID: "load-1001-stop-2", LoadID: "load-1001", Sequence: 2, Type: load.StopDelivery, Name: "Midwest Fab", City: "Columbus", State: "OH"},
			{ID: "load-1001-stop-3", LoadID: "load-1001", Sequence: 3, Type: load.StopDelivery, Name: "River Yard", City: "Pittsburgh", State: "PA"},
		},
		Legs: []load.DispatchLeg{{
			ID:            "load-1001-leg-1",
			LoadID:        "load-1001",
			DriverID:      "drv-bob",
			TruckID:       "TRK-204",
			FirstStopSeq:  1,
			LastStopSeq:   3,
			LoadedMiles:   pay.MustDec("500"),
			EmptyMiles:    pay.MustDec("42"),
			DurationHours: pay.MustDec("11.5"),
			WaitingHours:  pay.MustDec("3.25"),
		}},
	}
	return store.SaveLoad(ctx, ld)
}

func loadSplitHandoff(ctx context.Context, store *sqlite.Store) error {
	f := factory.NewProfileFactory()
	orgID := pay.OrgID("org-relay")

	if err := store.SaveOrganization(ctx, sqlite.Organization{ID: orgID, Name: "Relay Linehaul Inc"}); err != nil {
		return err
	}

	drivers := []sqlite.Driver{
		{ID: "drv-west", OrgID: orgID, Name: "Dana West", SubjectType: pay.ProfileDriver},
		{ID: "drv-east", OrgID: orgID, Name: "Eli Tran", SubjectType: pay.ProfileDriver},
	}
	for _, d := range drivers {
		if err := store.SaveDriver(ctx, d); err != nil {
			return err
		}
	}

	mileage, err := f.Parse(factory.StandardMileageJSON("prof-relay", string(orgID), "Relay Mileage", "0.60"))
	if err != nil {
		return err
	}
	if err := store.SaveProfile(ctx, *mileage); err != nil {
		return err
	}
	if err := store.SetDefaultProfile(ctx, orgID, mileage.ID); err != nil {
		return err
	}

	for _, a := range []pay.ProfileAssignment{
		{ID: "asn-west", OrgID: orgID, SubjectID: "drv-west", ProfileID: mileage.ID},
		{ID: "asn-east", OrgID: orgID, SubjectID: "drv-east", ProfileID: mileage.ID},
	} {
		if err := store.SaveAssignment(ctx, a); err != nil {
			return err
		}
	}

	delivered := time.Now().Add(-24 * time.Hour)
	ld := load.Load{
		ID:            "load-2001",
		OrgID:         orgID,
		Reference:     "PRO-90417",
		RevenueAmount: pay.MustDec("3200.00"),
		DeliveredAt:   &delivered,
		Stops: []load.LoadStop{
			{ID: "load-2001-stop-1", LoadID: "load-2001", Sequence: 1, Type: load.StopPickup, Name: "Port of Oakland", City: "Oakland", State: "CA"},
			{ID: "load-2001-stop-2", LoadID: "load-2001", Sequence: 2, Type: load.StopDelivery, Name: "Relay Yard", City: "Denver", State: "CO"},
			{ID: "load-2001-stop-3", LoadID: "load-2001", Sequence: 3, Type: load.StopDelivery, Name: "DC East", City: "Kansas City", State: "MO"},
		},
		Legs: []load.DispatchLeg{{
			ID:            "load-2001-leg-1",
			LoadID:        "load-2001",
			DriverID:      "drv-west",
			FirstStopSeq:  1,
			LastStopSeq:   3,
			LoadedMiles:   pay.MustDec("1250"),
			DurationHours: pay.MustDec("22"),
		}},
	}

	// Split at the relay yard: the yard stop ends the west leg and starts
	// the east leg.
	if _, err := load.Split(&ld, "load-2001-leg-1", 2, "load-2001-leg-2"); err != nil {
		return err
	}
	east := ld.LegByID("load-2001-leg-2")
	east.DriverID = "drv-east"
	east.LoadedMiles = pay.MustDec("600")
	east.DurationHours = pay.MustDec("10")
	west := ld.LegByID("load-2001-leg-1")
	west.LoadedMiles = pay.MustDec("1250")

	return store.SaveLoad(ctx, ld)
}

func loadOwnerOperator(ctx context.Context, store *sqlite.Store) error {
	f := factory.NewProfileFactory()
	orgID := pay.OrgID("org-oo")

	if err := store.SaveOrganization(ctx, sqlite.Organization{ID: orgID, Name: "Ridge Logistics"}); err != nil {
		return err
	}
	if err := store.SaveDriver(ctx, sqlite.Driver{
		ID: "car-ridge", OrgID: orgID, Name: "Ridgeline Trucking (O/O)", SubjectType: pay.ProfileCarrier,
	}); err != nil {
		return err
	}

	pct, err := f.Parse(factory.PercentageOwnerOperatorJSON("prof-oo", string(orgID), "75% Owner Operator", "75"))
	if err != nil {
		return err
	}
	if err := store.SaveProfile(ctx, *pct); err != nil {
		return err
	}
	if err := store.SetDefaultProfile(ctx, orgID, pct.ID); err != nil {
		return err
	}
	if err := store.SaveAssignment(ctx, pay.ProfileAssignment{
		ID: "asn-ridge", OrgID: orgID, SubjectID: "car-ridge", ProfileID: pct.ID,
	}); err != nil {
		return err
	}

	delivered := time.Now().Add(-72 * time.Hour)
	ld := load.Load{
		ID:            "load-3001",
		OrgID:         orgID,
		Reference:     "PRO-77102",
		RevenueAmount: pay.MustDec("2400.00"),
		TarpRequired:  true,
		DeliveredAt:   &delivered,
		Stops: []load.LoadStop{
			{ID: "load-3001-stop-1", LoadID: "load-3001", Sequence: 1, Type: load.StopPickup, Name: "Lumber Mill", City: "Eugene", State: "OR"},
			{ID: "load-3001-stop-2", LoadID: "load-3001", Sequence: 2, Type: load.StopDelivery, Name: "Yard 12", City: "Boise", State: "ID"},
		},
		Legs: []load.DispatchLeg{{
			ID:            "load-3001-leg-1",
			LoadID:        "load-3001",
			DriverID:      "car-ridge",
			FirstStopSeq:  1,
			LastStopSeq:   2,
			LoadedMiles:   pay.MustDec("430"),
			DurationHours: pay.MustDec("8"),
		}},
	}
	if err := store.SaveLoad(ctx, ld); err != nil {
		return err
	}

	// A dispatcher-entered safety bonus, the kind of item recalculation must
	// never touch.
	return store.AddManualItem(ctx, pay.LineItem{
		LegID:       "load-3001-leg-1",
		Source:      pay.SourceManual,
		Category:    pay.CategoryAccessorial,
		Description: "Quarterly safety bonus",
		Quantity:    pay.DecInt(1),
		Rate:        pay.MustDec("150.00"),
		TotalAmount: pay.MustDec("150.00"),
		CreatedBy:   "dispatch",
	})
}
