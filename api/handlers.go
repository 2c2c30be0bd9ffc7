/*
handlers.go - HTTP API handlers for the driver pay engine

PURPOSE:
  Exposes the pay engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Organizations:
    GET    /api/orgs                       List organizations
    POST   /api/orgs                       Create organization

  Drivers:
    GET    /api/drivers?org_id=            List drivers
    POST   /api/drivers                    Create driver
    GET    /api/drivers/{id}               Get driver
    GET    /api/drivers/{id}/assignments   Profile assignments
    GET    /api/drivers/{id}/settlement    Settlement summary for a range

  Profiles:
    GET    /api/profiles?org_id=           List profiles
    POST   /api/profiles                   Create/update profile from JSON
    GET    /api/profiles/{id}              Get profile
    POST   /api/profiles/{id}/default      Make it the org default

  Assignments:
    POST   /api/assignments                Assign profile to subject
    POST   /api/assignments/{id}/star      Star (exclusive per subject+type)
    DELETE /api/assignments/{id}           Remove assignment

  Loads:
    GET    /api/loads?org_id=              List loads
    POST   /api/loads                      Create load (stops + legs)
    GET    /api/loads/{id}                 Get load
    POST   /api/loads/{id}/split           Split a leg at a stop
    PUT    /api/loads/{id}/legs/{legID}    Assign driver / record facts
    POST   /api/loads/{id}/recalc          Recalculate all legs
    POST   /api/loads/{id}/legs/{legID}/recalc   Recalculate one leg
    GET    /api/loads/{id}/legs/{legID}/pay      Stored pay view
    POST   /api/loads/{id}/legs/{legID}/items    Add manual item

  Items:
    POST   /api/items/{id}/lock            Lock/unlock
    DELETE /api/items/{id}                 Delete manual item

  Admin:
    POST   /api/admin/sweep?org_id=        Run a recalculation sweep now
    GET    /api/admin/recalc-runs?org_id=  Sweep audit records

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario
    POST   /api/scenarios/reset            Wipe the database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (locked item, manual-only delete)
  - 422: Blocking pay conditions (no active profile, missing leg, bad rules)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go:      Request/response data structures
  - recalc.go:   Recalculation pipeline
  - scenarios.go: Demo scenario loaders
  - server.go:   Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/linehaul/pay-engine/factory"
	"github.com/linehaul/pay-engine/load"
	"github.com/linehaul/pay-engine/pay"
	"github.com/linehaul/pay-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          *sqlite.Store
	ProfileFactory *factory.ProfileFactory
	Recalc         *RecalcService
	Settlements    *pay.SettlementCalculator

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:          store,
		ProfileFactory: factory.NewProfileFactory(),
		Recalc:         NewRecalcService(store),
		Settlements:    &pay.SettlementCalculator{Payables: store},
	}
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

// ListOrganizations returns all organizations.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Store.ListOrganizations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list organizations", err)
		return
	}

	dtos := make([]OrganizationDTO, len(orgs))
	for i, o := range orgs {
		dtos[i] = OrganizationDTO{
			ID:        string(o.ID),
			Name:      o.Name,
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOrganization creates an organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	org := sqlite.Organization{ID: pay.OrgID(req.ID), Name: req.Name}
	if err := h.Store.SaveOrganization(r.Context(), org); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create organization", err)
		return
	}
	writeJSON(w, http.StatusCreated, OrganizationDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns all drivers for an organization.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	drivers, err := h.Store.ListDrivers(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}

	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = toDriverDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDriver returns a single driver.
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	id := pay.SubjectID(chi.URLParam(r, "id"))

	d, err := h.Store.GetDriver(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get driver", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Driver not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDriverDTO(*d))
}

// CreateDriver creates a driver or carrier.
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.OrgID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id, org_id, and name are required", nil)
		return
	}

	subjectType := pay.ProfileType(req.SubjectType)
	if subjectType == "" {
		subjectType = pay.ProfileDriver
	}
	if subjectType != pay.ProfileDriver && subjectType != pay.ProfileCarrier {
		writeError(w, http.StatusBadRequest, "subject_type must be driver or carrier", nil)
		return
	}

	d := sqlite.Driver{
		ID:          pay.SubjectID(req.ID),
		OrgID:       pay.OrgID(req.OrgID),
		Name:        req.Name,
		SubjectType: subjectType,
	}
	if err := h.Store.SaveDriver(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDriverDTO(d))
}

// GetDriverAssignments returns a driver's profile assignments.
func (h *Handler) GetDriverAssignments(w http.ResponseWriter, r *http.Request) {
	subjectID := pay.SubjectID(chi.URLParam(r, "id"))
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	assignments, err := h.Store.ListAssignments(r.Context(), orgID, subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assignments", err)
		return
	}

	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dto := AssignmentDTO{
			ID:        string(a.ID),
			OrgID:     string(a.OrgID),
			SubjectID: string(a.SubjectID),
			ProfileID: string(a.ProfileID),
			IsStarred: a.IsStarred,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
		if p, err := h.Store.GetProfile(r.Context(), a.ProfileID); err == nil {
			dto.ProfileName = p.Name
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDriverSettlement returns the driver's settlement summary over a range.
// GET /api/drivers/{id}/settlement?org_id=...&from=2026-01-01&to=2026-01-07
func (h *Handler) GetDriverSettlement(w http.ResponseWriter, r *http.Request) {
	subjectID := pay.SubjectID(chi.URLParam(r, "id"))
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	// Inclusive end of day.
	to = to.Add(24*time.Hour - time.Second)

	s, err := h.Settlements.Calculate(r.Context(), orgID, subjectID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to calculate settlement", err)
		return
	}

	byCategory := make(map[string]string, len(s.ByCategory))
	for cat, amount := range s.ByCategory {
		byCategory[string(cat)] = amount.String()
	}
	writeJSON(w, http.StatusOK, SettlementDTO{
		OrgID:       string(s.OrgID),
		SubjectID:   string(s.SubjectID),
		From:        s.From.Format("2006-01-02"),
		To:          s.To.Format("2006-01-02"),
		GrossPay:    s.GrossPay.String(),
		Deductions:  s.Deductions.String(),
		NetPay:      s.NetPay.String(),
		ItemCount:   s.ItemCount,
		ByCategory:  byCategory,
		WarnedItems: s.WarnedItems,
	})
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// ListProfiles returns all profiles for an organization.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	profiles, err := h.Store.ListProfiles(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles", err)
		return
	}

	dtos := make([]ProfileDTO, len(profiles))
	for i, p := range profiles {
		dtos[i] = h.toProfileDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProfile returns a single profile with rules.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := pay.ProfileID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProfile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProfileDTO(*p))
}

// CreateProfile creates or updates a profile from its JSON configuration.
// Validation (single active BASE rule, basis consistency, non-negative
// amounts) runs before anything is persisted.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile, err := h.ProfileFactory.FromJSON(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile configuration", err)
		return
	}

	if err := h.Store.SaveProfile(r.Context(), *profile); err != nil {
		writeDomainError(w, "Failed to save profile", err)
		return
	}

	saved, err := h.Store.GetProfile(r.Context(), profile.ID)
	if err != nil {
		writeDomainError(w, "Failed to load saved profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProfileDTO(*saved))
}

// SetDefaultProfile makes the profile the organization default for its type,
// unsetting the previous default atomically.
// POST /api/profiles/{id}/default?org_id=...
func (h *Handler) SetDefaultProfile(w http.ResponseWriter, r *http.Request) {
	id := pay.ProfileID(chi.URLParam(r, "id"))
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	if err := h.Store.SetDefaultProfile(r.Context(), orgID, id); err != nil {
		writeDomainError(w, "Failed to set default profile", err)
		return
	}

	p, err := h.Store.GetProfile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProfileDTO(*p))
}

func (h *Handler) toProfileDTO(p pay.CompensationProfile) ProfileDTO {
	return ProfileDTO{
		ID:        string(p.ID),
		OrgID:     string(p.OrgID),
		Name:      p.Name,
		IsDefault: p.IsDefault,
		Config:    h.ProfileFactory.ToJSON(p),
		Version:   p.Version,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignment links a subject to a profile.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.OrgID == "" || req.SubjectID == "" || req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "id, org_id, subject_id, and profile_id are required", nil)
		return
	}

	// The profile must exist; a dangling assignment can never resolve.
	if _, err := h.Store.GetProfile(r.Context(), pay.ProfileID(req.ProfileID)); err != nil {
		writeDomainError(w, "Profile lookup failed", err)
		return
	}

	a := pay.ProfileAssignment{
		ID:        pay.AssignmentID(req.ID),
		OrgID:     pay.OrgID(req.OrgID),
		SubjectID: pay.SubjectID(req.SubjectID),
		ProfileID: pay.ProfileID(req.ProfileID),
	}
	if err := h.Store.SaveAssignment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create assignment", err)
		return
	}

	// Starring goes through the exclusive store operation, never a bare flag.
	if req.IsStarred {
		if err := h.Store.SetStarredAssignment(r.Context(), a.ID); err != nil {
			writeDomainError(w, "Failed to star assignment", err)
			return
		}
		a.IsStarred = true
	}

	writeJSON(w, http.StatusCreated, AssignmentDTO{
		ID:        req.ID,
		OrgID:     req.OrgID,
		SubjectID: req.SubjectID,
		ProfileID: req.ProfileID,
		IsStarred: a.IsStarred,
	})
}

// StarAssignment stars the assignment, unstarring any other of the same
// subject and profile type.
func (h *Handler) StarAssignment(w http.ResponseWriter, r *http.Request) {
	id := pay.AssignmentID(chi.URLParam(r, "id"))
	if err := h.Store.SetStarredAssignment(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to star assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "starred"})
}

// DeleteAssignment removes the assignment.
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id := pay.AssignmentID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteAssignment(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LOAD HANDLERS
// =============================================================================

// ListLoads returns all loads for an organization.
func (h *Handler) ListLoads(w http.ResponseWriter, r *http.Request) {
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	loads, err := h.Store.ListLoads(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loads", err)
		return
	}

	dtos := make([]LoadDTO, len(loads))
	for i, ld := range loads {
		dtos[i] = toLoadDTO(ld)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLoad returns a load with stops and legs.
func (h *Handler) GetLoad(w http.ResponseWriter, r *http.Request) {
	id := pay.LoadID(chi.URLParam(r, "id"))

	ld, err := h.Store.GetLoad(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get load", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadDTO(*ld))
}

// CreateLoad creates a load with its stops and legs. When no legs are given,
// a single unassigned leg spanning all stops is created.
func (h *Handler) CreateLoad(w http.ResponseWriter, r *http.Request) {
	var req CreateLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "id and org_id are required", nil)
		return
	}
	if len(req.Stops) < 2 {
		writeError(w, http.StatusBadRequest, "a load needs at least a pickup and a delivery stop", nil)
		return
	}

	ld, err := loadFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid load", err)
		return
	}

	if err := h.Store.SaveLoad(r.Context(), *ld); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create load", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoadDTO(*ld))
}

// SplitLeg splits a dispatch leg at an interior stop. The split stop ends
// the first leg and starts the second (the handoff point).
func (h *Handler) SplitLeg(w http.ResponseWriter, r *http.Request) {
	loadID := pay.LoadID(chi.URLParam(r, "id"))

	var req SplitLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LegID == "" {
		writeError(w, http.StatusBadRequest, "leg_id is required", nil)
		return
	}

	ld, err := h.Store.GetLoad(r.Context(), loadID)
	if err != nil {
		writeDomainError(w, "Failed to get load", err)
		return
	}

	newLegID := pay.LegID(req.NewLegID)
	if newLegID == "" {
		newLegID = pay.LegID(fmt.Sprintf("%s-leg-%d", loadID, len(ld.Legs)+1))
	}

	if _, err := load.Split(ld, pay.LegID(req.LegID), req.SplitStopSeq, newLegID); err != nil {
		if errors.Is(err, load.ErrInvalidSplitPoint) {
			writeError(w, http.StatusBadRequest, "Failed to split leg", err)
			return
		}
		writeDomainError(w, "Failed to split leg", err)
		return
	}

	if err := h.Store.ReplaceLegs(r.Context(), loadID, ld.Legs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist split", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadDTO(*ld))
}

// UpdateLeg assigns a driver/equipment and records measured facts.
func (h *Handler) UpdateLeg(w http.ResponseWriter, r *http.Request) {
	loadID := pay.LoadID(chi.URLParam(r, "id"))
	legID := pay.LegID(chi.URLParam(r, "legID"))

	var req UpdateLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ld, err := h.Store.GetLoad(r.Context(), loadID)
	if err != nil {
		writeDomainError(w, "Failed to get load", err)
		return
	}

	leg := ld.LegByID(legID)
	if leg == nil {
		writeDomainError(w, "Leg not found",
			fmt.Errorf("leg %s: %w", legID, pay.ErrMissingDispatchLeg))
		return
	}

	if req.DriverID != nil {
		leg.DriverID = pay.SubjectID(*req.DriverID)
	}
	if req.TruckID != nil {
		leg.TruckID = *req.TruckID
	}
	if req.TrailerID != nil {
		leg.TrailerID = *req.TrailerID
	}
	if err := applyFacts(leg, req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid measurement", err)
		return
	}

	if err := h.Store.SaveLeg(r.Context(), *leg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save leg", err)
		return
	}
	writeJSON(w, http.StatusOK, toLegDTO(*leg))
}

func applyFacts(leg *load.DispatchLeg, req UpdateLegRequest) error {
	set := func(field *decimal.Decimal, value, name string) error {
		if value == "" {
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q", name, value)
		}
		*field = d
		return nil
	}
	if err := set(&leg.LoadedMiles, req.LoadedMiles, "loaded_miles"); err != nil {
		return err
	}
	if err := set(&leg.EmptyMiles, req.EmptyMiles, "empty_miles"); err != nil {
		return err
	}
	if err := set(&leg.DurationHours, req.DurationHours, "duration_hours"); err != nil {
		return err
	}
	return set(&leg.WaitingHours, req.WaitingHours, "waiting_hours")
}

// =============================================================================
// RECALCULATION HANDLERS
// =============================================================================

// RecalculateLoad recalculates pay for every leg of the load.
func (h *Handler) RecalculateLoad(w http.ResponseWriter, r *http.Request) {
	loadID := pay.LoadID(chi.URLParam(r, "id"))

	outcomes, err := h.Recalc.RecalculateLoad(r.Context(), loadID)
	if err != nil {
		writeDomainError(w, "Recalculation failed", err)
		return
	}

	dtos := make([]RecalcOutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		dtos[i] = toRecalcOutcomeDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecalculateLeg recalculates pay for one leg.
func (h *Handler) RecalculateLeg(w http.ResponseWriter, r *http.Request) {
	loadID := pay.LoadID(chi.URLParam(r, "id"))
	legID := pay.LegID(chi.URLParam(r, "legID"))

	ld, err := h.Store.GetLoad(r.Context(), loadID)
	if err != nil {
		writeDomainError(w, "Failed to get load", err)
		return
	}

	outcome, err := h.Recalc.RecalculateLeg(r.Context(), ld, legID)
	if err != nil {
		writeDomainError(w, "Recalculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecalcOutcomeDTO(*outcome))
}

// GetLegPay returns the stored item set without recalculating.
func (h *Handler) GetLegPay(w http.ResponseWriter, r *http.Request) {
	loadID := pay.LoadID(chi.URLParam(r, "id"))
	legID := pay.LegID(chi.URLParam(r, "legID"))

	ld, err := h.Store.GetLoad(r.Context(), loadID)
	if err != nil {
		writeDomainError(w, "Failed to get load", err)
		return
	}
	leg := ld.LegByID(legID)
	if leg == nil {
		writeDomainError(w, "Leg not found",
			fmt.Errorf("leg %s: %w", legID, pay.ErrMissingDispatchLeg))
		return
	}

	items, err := h.Store.ListItems(r.Context(), legID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	writeJSON(w, http.StatusOK, LegPayDTO{
		LegID: string(legID),
		State: string(pay.DeriveState(items, leg.HasDriver())),
		Total: pay.Total(items).String(),
		Items: toLineItemDTOs(items),
	})
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// AddManualItem adds a user-authored line item to a leg.
func (h *Handler) AddManualItem(w http.ResponseWriter, r *http.Request) {
	legID := pay.LegID(chi.URLParam(r, "legID"))

	var req AddManualItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	category := pay.RuleCategory(req.Category)
	switch category {
	case pay.CategoryBase, pay.CategoryAccessorial, pay.CategoryDeduction:
	default:
		writeError(w, http.StatusBadRequest, "category must be base, accessorial, or deduction", nil)
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required", nil)
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}
	quantity := pay.DecInt(1)
	if req.Quantity != "" {
		if quantity, err = decimal.NewFromString(req.Quantity); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity", err)
			return
		}
	}

	amount := quantity.Mul(rate)
	if category == pay.CategoryDeduction {
		amount = amount.Neg()
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}

	item := pay.LineItem{
		LegID:       legID,
		Source:      pay.SourceManual,
		Category:    category,
		Description: req.Description,
		Quantity:    quantity,
		Rate:        rate,
		TotalAmount: amount,
		CreatedBy:   createdBy,
	}
	if err := h.Store.AddManualItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add item", err)
		return
	}

	items, err := h.Store.ListItems(r.Context(), legID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}
	writeJSON(w, http.StatusCreated, LegPayDTO{
		LegID: string(legID),
		State: string(pay.DeriveState(items, true)),
		Total: pay.Total(items).String(),
		Items: toLineItemDTOs(items),
	})
}

// LockItem locks or unlocks a line item.
func (h *Handler) LockItem(w http.ResponseWriter, r *http.Request) {
	id := pay.ItemID(chi.URLParam(r, "id"))

	var req LockItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Store.SetItemLocked(r.Context(), id, req.Locked); err != nil {
		writeDomainError(w, "Failed to update lock", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": req.Locked})
}

// DeleteItem deletes a manual, unlocked item. System items are never
// deleted through the API; recalculation owns them.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := pay.ItemID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteManualItem(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs a recalculation sweep for one organization now.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	summary, err := h.Recalc.SweepOrganization(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"org_id":    string(summary.OrgID),
		"processed": summary.Processed,
		"blocked":   summary.Blocked,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	})
}

// ListRecalcRuns returns sweep audit records, newest first.
func (h *Handler) ListRecalcRuns(w http.ResponseWriter, r *http.Request) {
	orgID := pay.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	runs, err := h.Store.ListRecalcRuns(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RecalcRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = RecalcRunDTO{
			ID:        run.ID,
			OrgID:     string(run.OrgID),
			LoadID:    string(run.LoadID),
			LegID:     string(run.LegID),
			Status:    run.Status,
			Total:     run.Total.String(),
			Error:     run.Error,
			CreatedAt: run.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toDriverDTO(d sqlite.Driver) DriverDTO {
	return DriverDTO{
		ID:          string(d.ID),
		OrgID:       string(d.OrgID),
		Name:        d.Name,
		SubjectType: string(d.SubjectType),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
}

func toLoadDTO(ld load.Load) LoadDTO {
	dto := LoadDTO{
		ID:            string(ld.ID),
		OrgID:         string(ld.OrgID),
		Reference:     ld.Reference,
		RevenueAmount: ld.RevenueAmount.String(),
		Hazmat:        ld.Hazmat,
		TarpRequired:  ld.TarpRequired,
		Stops:         make([]StopDTO, len(ld.Stops)),
		Legs:          make([]LegDTO, len(ld.Legs)),
	}
	if ld.ContractMiles != nil {
		s := ld.ContractMiles.String()
		dto.ContractMiles = &s
	}
	if ld.DeliveredAt != nil {
		s := ld.DeliveredAt.Format(time.RFC3339)
		dto.DeliveredAt = &s
	}
	for i, stop := range ld.Stops {
		dto.Stops[i] = StopDTO{
			ID:          stop.ID,
			Sequence:    stop.Sequence,
			Type:        string(stop.Type),
			Name:        stop.Name,
			City:        stop.City,
			State:       stop.State,
			ScheduledAt: stop.ScheduledAt.Format(time.RFC3339),
		}
	}
	for i, leg := range ld.Legs {
		dto.Legs[i] = toLegDTO(leg)
	}
	return dto
}

func toLegDTO(leg load.DispatchLeg) LegDTO {
	return LegDTO{
		ID:            string(leg.ID),
		LoadID:        string(leg.LoadID),
		DriverID:      string(leg.DriverID),
		TruckID:       leg.TruckID,
		TrailerID:     leg.TrailerID,
		FirstStopSeq:  leg.FirstStopSeq,
		LastStopSeq:   leg.LastStopSeq,
		LoadedMiles:   leg.LoadedMiles.String(),
		EmptyMiles:    leg.EmptyMiles.String(),
		DurationHours: leg.DurationHours.String(),
		WaitingHours:  leg.WaitingHours.String(),
	}
}

func toLineItemDTOs(items []pay.LineItem) []LineItemDTO {
	dtos := make([]LineItemDTO, len(items))
	for i, item := range items {
		dtos[i] = LineItemDTO{
			ID:          string(item.ID),
			LegID:       string(item.LegID),
			RuleID:      string(item.RuleID),
			Source:      string(item.Source),
			Category:    string(item.Category),
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			Rate:        item.Rate.String(),
			TotalAmount: item.TotalAmount.String(),
			IsLocked:    item.IsLocked,
			Warning:     item.WarningMessage,
			CreatedBy:   item.CreatedBy,
			CreatedAt:   item.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func toRecalcOutcomeDTO(o RecalcOutcome) RecalcOutcomeDTO {
	dto := RecalcOutcomeDTO{
		LegID:       string(o.LegID),
		ResolvedVia: o.Via,
		State:       string(o.State),
		Total:       o.Total.String(),
		Items:       toLineItemDTOs(o.Items),
		Warnings:    o.Warnings,
	}
	if o.Profile != nil {
		dto.ProfileID = string(o.Profile.ID)
		dto.ProfileName = o.Profile.Name
	}
	return dto
}

func loadFromRequest(req CreateLoadRequest) (*load.Load, error) {
	revenue, err := decimal.NewFromString(req.RevenueAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid revenue_amount %q", req.RevenueAmount)
	}

	ld := &load.Load{
		ID:            pay.LoadID(req.ID),
		OrgID:         pay.OrgID(req.OrgID),
		Reference:     req.Reference,
		RevenueAmount: revenue,
		Hazmat:        req.Hazmat,
		TarpRequired:  req.TarpRequired,
	}
	if req.ContractMiles != "" {
		cm, err := decimal.NewFromString(req.ContractMiles)
		if err != nil {
			return nil, fmt.Errorf("invalid contract_miles %q", req.ContractMiles)
		}
		ld.ContractMiles = &cm
	}
	if req.DeliveredAt != "" {
		t, err := time.Parse(time.RFC3339, req.DeliveredAt)
		if err != nil {
			return nil, fmt.Errorf("invalid delivered_at %q (use RFC3339)", req.DeliveredAt)
		}
		ld.DeliveredAt = &t
	}

	for i, s := range req.Stops {
		stop := load.LoadStop{
			ID:       s.ID,
			LoadID:   ld.ID,
			Sequence: s.Sequence,
			Type:     load.StopType(s.Type),
			Name:     s.Name,
			City:     s.City,
			State:    s.State,
		}
		if stop.ID == "" {
			stop.ID = fmt.Sprintf("%s-stop-%d", ld.ID, s.Sequence)
		}
		if s.ScheduledAt != "" {
			t, err := time.Parse(time.RFC3339, s.ScheduledAt)
			if err != nil {
				return nil, fmt.Errorf("stop %d: invalid scheduled_at", i)
			}
			stop.ScheduledAt = t
		}
		ld.Stops = append(ld.Stops, stop)
	}

	if len(req.Legs) == 0 {
		// Single leg spanning the whole stop sequence, unassigned.
		ld.Legs = []load.DispatchLeg{{
			ID:           pay.LegID(fmt.Sprintf("%s-leg-1", ld.ID)),
			LoadID:       ld.ID,
			FirstStopSeq: ld.Stops[0].Sequence,
			LastStopSeq:  ld.Stops[len(ld.Stops)-1].Sequence,
		}}
		return ld, nil
	}

	for i, l := range req.Legs {
		leg := load.DispatchLeg{
			ID:            pay.LegID(l.ID),
			LoadID:        ld.ID,
			DriverID:      pay.SubjectID(l.DriverID),
			TruckID:       l.TruckID,
			TrailerID:     l.TrailerID,
			FirstStopSeq:  l.FirstStopSeq,
			LastStopSeq:   l.LastStopSeq,
			LoadedMiles:   pay.MustDec(defaultZero(l.LoadedMiles)),
			EmptyMiles:    pay.MustDec(defaultZero(l.EmptyMiles)),
			DurationHours: pay.MustDec(defaultZero(l.DurationHours)),
			WaitingHours:  pay.MustDec(defaultZero(l.WaitingHours)),
		}
		if leg.ID == "" {
			leg.ID = pay.LegID(fmt.Sprintf("%s-leg-%d", ld.ID, i+1))
		}
		ld.Legs = append(ld.Legs, leg)
	}
	return ld, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case pay.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case pay.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case pay.IsBlocking(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
