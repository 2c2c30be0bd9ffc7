/*
Package factory provides JSON to Go compensation profile conversion.

PURPOSE:
  Converts JSON profile definitions into pay.CompensationProfile records.
  This enables pay configuration without code changes - fleet admins define
  profiles in JSON, and the factory creates the proper Go structs. Every
  parse runs pay.ValidateProfile, so invalid rule configurations are
  rejected at edit time and never reach the evaluator.

JSON SCHEMA:
  {
    "id": "otr-standard",
    "org_id": "org-1",
    "name": "Standard OTR Mileage",
    "profile_type": "driver",
    "pay_basis": "mileage",
    "is_active": true,
    "rules": [
      {"category": "base", "trigger": "mile_loaded", "rate": "0.55"},
      {"category": "accessorial", "trigger": "count_stops", "rate": "25",
       "min_threshold": "2", "max_cap": "150"},
      {"category": "deduction", "trigger": "flat_load", "rate": "35",
       "description": "Trailer wash-out"}
    ]
  }

  Rates, thresholds, and caps are JSON strings to keep decimal precision;
  the factory rejects unparseable numbers.

PRESETS:
  StandardMileageJSON, PercentageOwnerOperatorJSON, and HourlyLocalJSON
  return ready-to-parse configurations for the common fleet setups.

USAGE:
  f := factory.NewProfileFactory()
  profile, err := f.Parse(jsonStr)

SEE ALSO:
  - pay/profile.go: CompensationProfile type and validation
  - api/handlers.go: profile endpoints call through here
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/pay-engine/pay"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProfileJSON is the JSON representation of a compensation profile.
type ProfileJSON struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	Name        string     `json:"name"`
	ProfileType string     `json:"profile_type"` // driver, carrier
	PayBasis    string     `json:"pay_basis"`    // mileage, hourly, percentage, flat
	IsActive    *bool      `json:"is_active,omitempty"` // default true
	IsDefault   bool       `json:"is_default,omitempty"`
	Rules       []RuleJSON `json:"rules"`
}

// RuleJSON is the JSON representation of a rate rule. Numeric fields are
// strings so decimal precision survives the round trip.
type RuleJSON struct {
	ID           string `json:"id,omitempty"`
	Category     string `json:"category"` // base, accessorial, deduction
	Trigger      string `json:"trigger"`
	Rate         string `json:"rate"`
	MinThreshold string `json:"min_threshold,omitempty"`
	MaxCap       string `json:"max_cap,omitempty"`
	Description  string `json:"description,omitempty"`
	IsActive     *bool  `json:"is_active,omitempty"` // default true
}

// =============================================================================
// PROFILE FACTORY
// =============================================================================

// ProfileFactory converts JSON profiles to Go structs.
type ProfileFactory struct{}

// NewProfileFactory creates a new profile factory.
func NewProfileFactory() *ProfileFactory {
	return &ProfileFactory{}
}

// Parse parses a JSON string into a validated CompensationProfile.
func (f *ProfileFactory) Parse(jsonStr string) (*pay.CompensationProfile, error) {
	var pj ProfileJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts the JSON representation to a validated profile.
func (f *ProfileFactory) FromJSON(pj ProfileJSON) (*pay.CompensationProfile, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	if pj.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	active := true
	if pj.IsActive != nil {
		active = *pj.IsActive
	}

	now := time.Now().UTC()
	profile := pay.CompensationProfile{
		ID:        pay.ProfileID(pj.ID),
		OrgID:     pay.OrgID(pj.OrgID),
		Name:      pj.Name,
		Type:      pay.ProfileType(pj.ProfileType),
		PayBasis:  pay.PayBasis(pj.PayBasis),
		IsActive:  active,
		IsDefault: pj.IsDefault,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for i, rj := range pj.Rules {
		rule, err := f.ruleFromJSON(profile.ID, i, rj)
		if err != nil {
			return nil, err
		}
		profile.Rules = append(profile.Rules, rule)
	}

	if err := pay.ValidateProfile(profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (f *ProfileFactory) ruleFromJSON(profileID pay.ProfileID, idx int, rj RuleJSON) (pay.RateRule, error) {
	rate, err := decimal.NewFromString(rj.Rate)
	if err != nil {
		return pay.RateRule{}, fmt.Errorf("rule %d: invalid rate %q", idx, rj.Rate)
	}

	active := true
	if rj.IsActive != nil {
		active = *rj.IsActive
	}

	id := rj.ID
	if id == "" {
		id = fmt.Sprintf("%s-rule-%d", profileID, idx+1)
	}

	rule := pay.RateRule{
		ID:           pay.RuleID(id),
		ProfileID:    profileID,
		Category:     pay.RuleCategory(rj.Category),
		TriggerEvent: pay.TriggerEvent(rj.Trigger),
		RateAmount:   rate,
		Description:  rj.Description,
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
	}

	if rj.MinThreshold != "" {
		t, err := decimal.NewFromString(rj.MinThreshold)
		if err != nil {
			return pay.RateRule{}, fmt.Errorf("rule %d: invalid min_threshold %q", idx, rj.MinThreshold)
		}
		rule.MinThreshold = &t
	}
	if rj.MaxCap != "" {
		c, err := decimal.NewFromString(rj.MaxCap)
		if err != nil {
			return pay.RateRule{}, fmt.Errorf("rule %d: invalid max_cap %q", idx, rj.MaxCap)
		}
		rule.MaxCap = &c
	}
	return rule, nil
}

// ToJSON converts a profile back to its JSON representation.
func (f *ProfileFactory) ToJSON(p pay.CompensationProfile) ProfileJSON {
	active := p.IsActive
	pj := ProfileJSON{
		ID:          string(p.ID),
		OrgID:       string(p.OrgID),
		Name:        p.Name,
		ProfileType: string(p.Type),
		PayBasis:    string(p.PayBasis),
		IsActive:    &active,
		IsDefault:   p.IsDefault,
	}
	for _, r := range p.Rules {
		ruleActive := r.IsActive
		rj := RuleJSON{
			ID:          string(r.ID),
			Category:    string(r.Category),
			Trigger:     string(r.TriggerEvent),
			Rate:        r.RateAmount.String(),
			Description: r.Description,
			IsActive:    &ruleActive,
		}
		if r.MinThreshold != nil {
			rj.MinThreshold = r.MinThreshold.String()
		}
		if r.MaxCap != nil {
			rj.MaxCap = r.MaxCap.String()
		}
		pj.Rules = append(pj.Rules, rj)
	}
	return pj
}

// =============================================================================
// PRESETS - Common fleet configurations
// =============================================================================

// StandardMileageJSON is the classic OTR company-driver setup: cents per
// loaded mile, stop pay past the first two stops, detention past two hours.
func StandardMileageJSON(id, orgID, name string, ratePerMile string) string {
	return fmt.Sprintf(`{
		"id": %q, "org_id": %q, "name": %q,
		"profile_type": "driver", "pay_basis": "mileage",
		"rules": [
			{"category": "base", "trigger": "mile_loaded", "rate": %q},
			{"category": "accessorial", "trigger": "count_stops", "rate": "25", "min_threshold": "2", "description": "Extra stop pay"},
			{"category": "accessorial", "trigger": "time_waiting", "rate": "20", "min_threshold": "2", "description": "Detention after 2h"}
		]
	}`, id, orgID, name, ratePerMile)
}

// PercentageOwnerOperatorJSON pays a revenue percentage with a standard
// insurance deduction per load.
func PercentageOwnerOperatorJSON(id, orgID, name string, pct string) string {
	return fmt.Sprintf(`{
		"id": %q, "org_id": %q, "name": %q,
		"profile_type": "carrier", "pay_basis": "percentage",
		"rules": [
			{"category": "base", "trigger": "pct_of_load", "rate": %q},
			{"category": "deduction", "trigger": "flat_load", "rate": "45", "description": "Insurance"}
		]
	}`, id, orgID, name, pct)
}

// HourlyLocalJSON is the local P&D setup: hourly drive pay plus hazmat
// premium when the load requires it.
func HourlyLocalJSON(id, orgID, name string, ratePerHour string) string {
	return fmt.Sprintf(`{
		"id": %q, "org_id": %q, "name": %q,
		"profile_type": "driver", "pay_basis": "hourly",
		"rules": [
			{"category": "base", "trigger": "time_duration", "rate": %q},
			{"category": "accessorial", "trigger": "attr_hazmat", "rate": "50", "description": "Hazmat premium"}
		]
	}`, id, orgID, name, ratePerHour)
}
