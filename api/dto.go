/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FIELDS:
  All rates, quantities, and amounts cross the wire as strings. Clients
  doing pay math in floats is their own hazard; the API never introduces
  one.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/profile.go: ProfileJSON type
*/
package api

import (
	"github.com/linehaul/pay-engine/factory"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ORGANIZATIONS & DRIVERS
// =============================================================================

// OrganizationDTO represents an organization in API responses.
type OrganizationDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateOrganizationRequest is the request to create an organization.
type CreateOrganizationRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DriverDTO represents a driver or carrier in API responses.
type DriverDTO struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	SubjectType string `json:"subject_type"` // driver, carrier
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateDriverRequest is the request to create a driver.
type CreateDriverRequest struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	SubjectType string `json:"subject_type,omitempty"` // default: driver
}

// =============================================================================
// PROFILES & ASSIGNMENTS
// =============================================================================

// ProfileDTO represents a compensation profile in API responses.
type ProfileDTO struct {
	ID        string              `json:"id"`
	OrgID     string              `json:"org_id"`
	Name      string              `json:"name"`
	IsDefault bool                `json:"is_default"`
	Config    factory.ProfileJSON `json:"config"`
	Version   int                 `json:"version"`
	CreatedAt string              `json:"created_at,omitempty"`
}

// CreateProfileRequest is the request to create or update a profile.
type CreateProfileRequest struct {
	Config factory.ProfileJSON `json:"config"`
}

// AssignmentDTO represents a profile assignment.
type AssignmentDTO struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	SubjectID   string `json:"subject_id"`
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name,omitempty"`
	IsStarred   bool   `json:"is_starred"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateAssignmentRequest is the request to assign a profile to a subject.
type CreateAssignmentRequest struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	SubjectID string `json:"subject_id"`
	ProfileID string `json:"profile_id"`
	IsStarred bool   `json:"is_starred,omitempty"`
}

// =============================================================================
// LOADS, STOPS, LEGS
// =============================================================================

// StopDTO represents one stop in a load's sequence.
type StopDTO struct {
	ID          string `json:"id"`
	Sequence    int    `json:"sequence"`
	Type        string `json:"type"` // pickup, delivery
	Name        string `json:"name,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// LegDTO represents one dispatch leg.
type LegDTO struct {
	ID            string `json:"id"`
	LoadID        string `json:"load_id"`
	DriverID      string `json:"driver_id,omitempty"`
	TruckID       string `json:"truck_id,omitempty"`
	TrailerID     string `json:"trailer_id,omitempty"`
	FirstStopSeq  int    `json:"first_stop_seq"`
	LastStopSeq   int    `json:"last_stop_seq"`
	LoadedMiles   string `json:"loaded_miles"`
	EmptyMiles    string `json:"empty_miles"`
	DurationHours string `json:"duration_hours"`
	WaitingHours  string `json:"waiting_hours"`
}

// LoadDTO represents a load with its stops and legs.
type LoadDTO struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Reference     string    `json:"reference,omitempty"`
	RevenueAmount string    `json:"revenue_amount"`
	Hazmat        bool      `json:"hazmat"`
	TarpRequired  bool      `json:"tarp_required"`
	ContractMiles *string   `json:"contract_miles,omitempty"`
	DeliveredAt   *string   `json:"delivered_at,omitempty"`
	Stops         []StopDTO `json:"stops"`
	Legs          []LegDTO  `json:"legs"`
}

// CreateLoadRequest is the request to create a load. When no legs are
// given, a single leg spanning all stops is created.
type CreateLoadRequest struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Reference     string    `json:"reference,omitempty"`
	RevenueAmount string    `json:"revenue_amount"`
	Hazmat        bool      `json:"hazmat,omitempty"`
	TarpRequired  bool      `json:"tarp_required,omitempty"`
	ContractMiles string    `json:"contract_miles,omitempty"`
	DeliveredAt   string    `json:"delivered_at,omitempty"`
	Stops         []StopDTO `json:"stops"`
	Legs          []LegDTO  `json:"legs,omitempty"`
}

// SplitLegRequest splits a leg at a stop. The split stop ends the first
// leg and starts the second.
type SplitLegRequest struct {
	LegID        string `json:"leg_id"`
	SplitStopSeq int    `json:"split_stop_seq"`
	NewLegID     string `json:"new_leg_id,omitempty"`
}

// UpdateLegRequest assigns a driver and/or records measured facts.
// Pointer fields distinguish "leave unchanged" from "set empty".
type UpdateLegRequest struct {
	DriverID      *string `json:"driver_id,omitempty"`
	TruckID       *string `json:"truck_id,omitempty"`
	TrailerID     *string `json:"trailer_id,omitempty"`
	LoadedMiles   string  `json:"loaded_miles,omitempty"`
	EmptyMiles    string  `json:"empty_miles,omitempty"`
	DurationHours string  `json:"duration_hours,omitempty"`
	WaitingHours  string  `json:"waiting_hours,omitempty"`
}

// =============================================================================
// PAY ITEMS & RECALCULATION
// =============================================================================

// LineItemDTO represents one pay line item.
type LineItemDTO struct {
	ID          string `json:"id"`
	LegID       string `json:"leg_id"`
	RuleID      string `json:"rule_id,omitempty"`
	Source      string `json:"source"` // system, manual
	Category    string `json:"category"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Rate        string `json:"rate"`
	TotalAmount string `json:"total_amount"`
	IsLocked    bool   `json:"is_locked"`
	Warning     string `json:"warning,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// AddManualItemRequest adds a user-authored line item to a leg.
type AddManualItemRequest struct {
	Category    string `json:"category"` // base, accessorial, deduction
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"` // default: 1
	Rate        string `json:"rate"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// LockItemRequest locks or unlocks an item.
type LockItemRequest struct {
	Locked bool `json:"locked"`
}

// RecalcOutcomeDTO is the result of recalculating one leg.
type RecalcOutcomeDTO struct {
	LegID       string        `json:"leg_id"`
	ProfileID   string        `json:"profile_id,omitempty"`
	ProfileName string        `json:"profile_name,omitempty"`
	ResolvedVia string        `json:"resolved_via,omitempty"` // starred, org_default
	State       string        `json:"state"`
	Total       string        `json:"total"`
	Items       []LineItemDTO `json:"items"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// LegPayDTO is the stored pay view of a leg (no recalculation).
type LegPayDTO struct {
	LegID string        `json:"leg_id"`
	State string        `json:"state"`
	Total string        `json:"total"`
	Items []LineItemDTO `json:"items"`
}

// RecalcRunDTO is one audit record from a recalculation sweep.
type RecalcRunDTO struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	LoadID    string `json:"load_id"`
	LegID     string `json:"leg_id"`
	Status    string `json:"status"` // ok, blocked, error
	Total     string `json:"total,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// SettlementDTO is a driver's aggregated pay over a date range.
type SettlementDTO struct {
	OrgID       string            `json:"org_id"`
	SubjectID   string            `json:"subject_id"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	GrossPay    string            `json:"gross_pay"`
	Deductions  string            `json:"deductions"`
	NetPay      string            `json:"net_pay"`
	ItemCount   int               `json:"item_count"`
	ByCategory  map[string]string `json:"by_category"`
	WarnedItems int               `json:"warned_items"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
