package pay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/linehaul/pay-engine/pay"
	paystore "github.com/linehaul/pay-engine/pay/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newResolverFixture(t *testing.T) (*pay.ProfileResolver, *paystore.Memory) {
	t.Helper()
	mem := paystore.NewMemory()
	return &pay.ProfileResolver{Assignments: mem, Profiles: mem}, mem
}

func saveProfile(t *testing.T, mem *paystore.Memory, id string, isDefault, isActive bool) {
	t.Helper()
	err := mem.SaveProfile(context.Background(), pay.CompensationProfile{
		ID:        pay.ProfileID(id),
		OrgID:     "org-1",
		Name:      id,
		Type:      pay.ProfileDriver,
		PayBasis:  pay.BasisMileage,
		IsActive:  isActive,
		IsDefault: isDefault,
		Rules: []pay.RateRule{{
			ID:           pay.RuleID(id + "-base"),
			ProfileID:    pay.ProfileID(id),
			Category:     pay.CategoryBase,
			TriggerEvent: pay.TriggerMileLoaded,
			RateAmount:   pay.MustDec("0.50"),
			IsActive:     true,
		}},
	})
	if err != nil {
		t.Fatalf("save profile %s: %v", id, err)
	}
}

func saveAssignment(t *testing.T, mem *paystore.Memory, id, profileID string, starred bool) {
	t.Helper()
	err := mem.SaveAssignment(context.Background(), pay.ProfileAssignment{
		ID:        pay.AssignmentID(id),
		OrgID:     "org-1",
		SubjectID: "drv-1",
		ProfileID: pay.ProfileID(profileID),
		IsStarred: starred,
	})
	if err != nil {
		t.Fatalf("save assignment %s: %v", id, err)
	}
}

// =============================================================================
// PRECEDENCE
// =============================================================================

func TestResolve_StarredBeatsOrgDefault(t *testing.T) {
	// GIVEN: driver assigned to the org default AND to a starred profile
	// WHEN: resolved
	// THEN: the starred profile wins

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-default", true, true)
	saveProfile(t, mem, "prof-special", false, true)
	saveAssignment(t, mem, "asn-1", "prof-default", false)
	saveAssignment(t, mem, "asn-2", "prof-special", true)

	res, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Profile.ID != "prof-special" {
		t.Errorf("expected starred prof-special, got %s", res.Profile.ID)
	}
	if res.Via != "starred" {
		t.Errorf("expected via=starred, got %s", res.Via)
	}
}

func TestResolve_OrgDefaultWhenNoStar(t *testing.T) {
	// GIVEN: two assignments, none starred, one to the org default
	// THEN: the default wins

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-default", true, true)
	saveProfile(t, mem, "prof-other", false, true)
	saveAssignment(t, mem, "asn-1", "prof-other", false)
	saveAssignment(t, mem, "asn-2", "prof-default", false)

	res, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Profile.ID != "prof-default" {
		t.Errorf("expected prof-default, got %s", res.Profile.ID)
	}
	if res.Via != "org_default" {
		t.Errorf("expected via=org_default, got %s", res.Via)
	}
}

func TestResolve_NoUsableProfile_ReturnsError(t *testing.T) {
	// GIVEN: an assignment to a non-default profile, no star
	// THEN: ErrNoActiveProfile - pay must block, never silently default

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-other", false, true)
	saveAssignment(t, mem, "asn-1", "prof-other", false)

	_, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if !errors.Is(err, pay.ErrNoActiveProfile) {
		t.Fatalf("expected ErrNoActiveProfile, got %v", err)
	}

	var npe *pay.NoActiveProfileError
	if !errors.As(err, &npe) {
		t.Fatal("error should carry subject context")
	}
	if npe.SubjectID != "drv-1" {
		t.Errorf("expected subject drv-1, got %s", npe.SubjectID)
	}
}

func TestResolve_NoAssignmentsAtAll(t *testing.T) {
	resolver, _ := newResolverFixture(t)

	_, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if !errors.Is(err, pay.ErrNoActiveProfile) {
		t.Fatalf("expected ErrNoActiveProfile, got %v", err)
	}
}

// =============================================================================
// INACTIVE & WRONG-TYPE PROFILES
// =============================================================================

func TestResolve_InactiveProfileNeverWins(t *testing.T) {
	// GIVEN: a starred assignment to an INACTIVE profile plus a default
	// THEN: the star is ignored, the default wins

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-default", true, true)
	saveProfile(t, mem, "prof-retired", false, false)
	saveAssignment(t, mem, "asn-1", "prof-default", false)
	saveAssignment(t, mem, "asn-2", "prof-retired", true)

	res, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Profile.ID != "prof-default" {
		t.Errorf("inactive starred profile must not win; got %s", res.Profile.ID)
	}
}

func TestResolve_WrongProfileTypeFiltered(t *testing.T) {
	// GIVEN: only a carrier profile assigned
	// WHEN: resolving for the driver profile type
	// THEN: no active profile

	resolver, mem := newResolverFixture(t)
	err := mem.SaveProfile(context.Background(), pay.CompensationProfile{
		ID:       "prof-carrier",
		OrgID:    "org-1",
		Name:     "Carrier Pct",
		Type:     pay.ProfileCarrier,
		PayBasis: pay.BasisPercentage,
		IsActive: true,
		Rules: []pay.RateRule{{
			ID: "r1", ProfileID: "prof-carrier", Category: pay.CategoryBase,
			TriggerEvent: pay.TriggerPctOfLoad, RateAmount: pay.MustDec("75"), IsActive: true,
		}},
	})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	saveAssignment(t, mem, "asn-1", "prof-carrier", true)

	_, err = resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if !errors.Is(err, pay.ErrNoActiveProfile) {
		t.Fatalf("expected ErrNoActiveProfile, got %v", err)
	}
}

// =============================================================================
// TIE-BREAK
// =============================================================================

func TestResolve_TwoStars_LowestAssignmentIDWins(t *testing.T) {
	// GIVEN: two starred assignments (race-corrupted data, the store op
	// normally prevents this)
	// THEN: the lowest assignment ID wins, deterministically

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-a", false, true)
	saveProfile(t, mem, "prof-b", false, true)
	saveAssignment(t, mem, "asn-2", "prof-b", true)
	saveAssignment(t, mem, "asn-1", "prof-a", true)

	for i := 0; i < 5; i++ {
		res, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.Assignment.ID != "asn-1" {
			t.Fatalf("expected asn-1 to win the tie, got %s", res.Assignment.ID)
		}
	}
}

// =============================================================================
// DANGLING ASSIGNMENTS
// =============================================================================

func TestResolve_DanglingAssignmentSkipped(t *testing.T) {
	// GIVEN: an assignment to a deleted profile plus a usable default
	// THEN: resolution skips the dangling one instead of failing

	resolver, mem := newResolverFixture(t)
	saveProfile(t, mem, "prof-default", true, true)
	saveAssignment(t, mem, "asn-1", "prof-gone", true)
	saveAssignment(t, mem, "asn-2", "prof-default", false)

	res, err := resolver.Resolve(context.Background(), "org-1", "drv-1", pay.ProfileDriver)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Profile.ID != "prof-default" {
		t.Errorf("expected prof-default, got %s", res.Profile.ID)
	}
}
