/*
resolver.go - Effective profile resolution

PURPOSE:
  Answers one question: which single compensation profile applies to this
  driver (or carrier) for this organization? The answer drives every pay
  calculation; an unanswerable question blocks calculation with an explicit
  error rather than a silent default-less computation.

PRECEDENCE (must hold exactly):
  1. A starred assignment wins absolutely - even over the org default.
  2. Otherwise an assignment whose profile is the org-level default for the
     requested profile type wins.
  3. Otherwise: ErrNoActiveProfile. Pay cannot be calculated until the
     subject has a usable assignment.

  Inactive profiles never win at any step.

TIE-BREAK:
  Multiple simultaneously starred assignments can only exist through a race
  the store-level star operation is designed to prevent. The resolver must
  not crash on such data: it picks the starred assignment with the lowest
  assignment ID, deterministically.

SIDE EFFECTS:
  None. Resolve is a pure read over the assignment and profile stores.

SEE ALSO:
  - store.go:   ProfileAssignment, SetStarredAssignment contract
  - profile.go: org-level IsDefault semantics
*/
package pay

import (
	"context"
	"sort"
)

// =============================================================================
// PROFILE RESOLVER
// =============================================================================

// ProfileResolver determines the effective compensation profile for a subject.
type ProfileResolver struct {
	Assignments AssignmentStore
	Profiles    ProfileStore
}

// Resolution is the resolver's answer, including how it was reached.
type Resolution struct {
	Profile    *CompensationProfile
	Assignment ProfileAssignment

	// Via records which precedence step won: "starred" or "org_default".
	Via string
}

// Resolve returns the single effective profile for the subject, or
// ErrNoActiveProfile (wrapped with subject context) when none applies.
func (r *ProfileResolver) Resolve(
	ctx context.Context,
	orgID OrgID,
	subjectID SubjectID,
	profileType ProfileType,
) (*Resolution, error) {
	assignments, err := r.Assignments.ListAssignments(ctx, orgID, subjectID)
	if err != nil {
		return nil, err
	}

	// Load each assignment's profile once, skipping dangling references and
	// profiles of the wrong type. Inactive profiles are kept out entirely:
	// they can win neither by star nor by default.
	type candidate struct {
		assignment ProfileAssignment
		profile    *CompensationProfile
	}
	var candidates []candidate
	for _, a := range assignments {
		p, err := r.Profiles.GetProfile(ctx, a.ProfileID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if !p.IsActive || p.Type != profileType {
			continue
		}
		candidates = append(candidates, candidate{assignment: a, profile: p})
	}

	// Step 1: explicit per-subject star, lowest assignment ID on a tie.
	var starred []candidate
	for _, c := range candidates {
		if c.assignment.IsStarred {
			starred = append(starred, c)
		}
	}
	if len(starred) > 0 {
		sort.Slice(starred, func(i, j int) bool {
			return starred[i].assignment.ID < starred[j].assignment.ID
		})
		return &Resolution{
			Profile:    starred[0].profile,
			Assignment: starred[0].assignment,
			Via:        "starred",
		}, nil
	}

	// Step 2: assignment to the org-level default profile.
	for _, c := range candidates {
		if c.profile.IsDefault {
			return &Resolution{
				Profile:    c.profile,
				Assignment: c.assignment,
				Via:        "org_default",
			}, nil
		}
	}

	// Step 3: nothing usable.
	return nil, &NoActiveProfileError{SubjectID: subjectID, OrgID: orgID, Type: profileType}
}
