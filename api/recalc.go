/*
recalc.go - Pay recalculation pipeline and scheduler

PURPOSE:
  Runs the full pipeline for a dispatch leg: resolve the driver's effective
  profile, evaluate its rules against the leg's facts, reconcile with stored
  items, and persist the result. Also provides the periodic sweep that keeps
  an organization's delivered loads recalculated in the background.

DESIGN:
  - RecalcService is the one place resolver, evaluator, reconciler, and
    stores meet. Handlers and the scheduler both go through it, so manual
    and automated recalculation cannot drift apart.
  - Blocking conditions (no active profile, missing leg, invalid rules)
    surface as errors; the sweep records them as "blocked" runs instead of
    failing the whole sweep.
  - Every sweep leg is recorded in recalc_runs for audit and UI display.

CONFIGURATION:
  - CheckInterval: how often the scheduler sweeps (default: 1 hour)
  - Enabled: whether the scheduler is active (default: true)

USAGE:
  svc := NewRecalcService(store)
  outcome, err := svc.RecalculateLeg(ctx, ld, legID)

  scheduler := NewRecalcScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - pay/resolver.go:   profile precedence
  - pay/evaluator.go:  rule firing
  - pay/reconciler.go: lock/manual preservation
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/pay-engine/load"
	"github.com/linehaul/pay-engine/pay"
	"github.com/linehaul/pay-engine/store/sqlite"
)

// =============================================================================
// RECALC SERVICE
// =============================================================================

// RecalcService runs the resolve -> evaluate -> reconcile -> persist pipeline.
type RecalcService struct {
	Store      *sqlite.Store
	Resolver   *pay.ProfileResolver
	Evaluator  *pay.RuleEvaluator
	Reconciler *pay.Reconciler
}

// NewRecalcService wires the pipeline onto one store.
func NewRecalcService(store *sqlite.Store) *RecalcService {
	return &RecalcService{
		Store:      store,
		Resolver:   &pay.ProfileResolver{Assignments: store, Profiles: store},
		Evaluator:  &pay.RuleEvaluator{},
		Reconciler: &pay.Reconciler{},
	}
}

// RecalcOutcome is the result of recalculating one leg.
type RecalcOutcome struct {
	LegID pay.LegID

	// Profile and Via are set when resolution succeeded.
	Profile *pay.CompensationProfile
	Via     string

	Items    []pay.LineItem
	Total    decimal.Decimal
	State    pay.PayState
	Warnings []string
}

// RecalculateLeg runs the pipeline for one leg of the given load.
//
// An unassigned leg is not an error: the outcome comes back in the
// unassigned state with the stored items untouched. Blocking conditions
// (no active profile, unknown leg) return an error satisfying
// pay.IsBlocking.
func (s *RecalcService) RecalculateLeg(ctx context.Context, ld *load.Load, legID pay.LegID) (*RecalcOutcome, error) {
	leg := ld.LegByID(legID)
	if leg == nil {
		return nil, fmt.Errorf("load %s leg %s: %w", ld.ID, legID, pay.ErrMissingDispatchLeg)
	}

	if !leg.HasDriver() {
		stored, err := s.Store.ListItems(ctx, legID)
		if err != nil {
			return nil, err
		}
		return &RecalcOutcome{
			LegID: legID,
			Items: stored,
			Total: pay.Total(stored),
			State: pay.StateUnassigned,
		}, nil
	}

	profileType := pay.ProfileDriver
	if driver, err := s.Store.GetDriver(ctx, leg.DriverID); err != nil {
		return nil, err
	} else if driver != nil && driver.SubjectType != "" {
		profileType = driver.SubjectType
	}

	resolution, err := s.Resolver.Resolve(ctx, ld.OrgID, leg.DriverID, profileType)
	if err != nil {
		return nil, err
	}

	facts := ld.Facts(*leg)
	eval := s.Evaluator.Evaluate(*resolution.Profile, legID, facts)

	warnings := append([]string(nil), eval.Warnings...)
	for _, missing := range ld.MissingFacts(*leg, resolution.Profile.PayBasis) {
		warnings = append(warnings, fmt.Sprintf(
			"leg has no %s recorded; affected items computed from zero", missing))
	}

	stored, err := s.Store.ListItems(ctx, legID)
	if err != nil {
		return nil, err
	}

	result := s.Reconciler.Reconcile(stored, eval.Items, facts)
	if err := s.Store.ReplaceSystemItems(ctx, legID, result.SystemItems); err != nil {
		return nil, err
	}

	// Re-read so items carry their persisted IDs.
	items, err := s.Store.ListItems(ctx, legID)
	if err != nil {
		return nil, err
	}

	return &RecalcOutcome{
		LegID:    legID,
		Profile:  resolution.Profile,
		Via:      resolution.Via,
		Items:    items,
		Total:    pay.Total(items),
		State:    pay.DeriveState(items, true),
		Warnings: warnings,
	}, nil
}

// RecalculateLoad recalculates every leg of a load.
func (s *RecalcService) RecalculateLoad(ctx context.Context, loadID pay.LoadID) ([]RecalcOutcome, error) {
	ld, err := s.Store.GetLoad(ctx, loadID)
	if err != nil {
		return nil, err
	}

	var outcomes []RecalcOutcome
	for _, leg := range ld.Legs {
		outcome, err := s.RecalculateLeg(ctx, ld, leg.ID)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, *outcome)
	}
	return outcomes, nil
}

// SweepSummary reports one organization sweep.
type SweepSummary struct {
	OrgID     pay.OrgID
	Processed int
	Blocked   int
	Skipped   int
	Failed    int
}

// SweepOrganization recalculates every assigned leg of the organization's
// loads, recording one recalc_run per leg. Blocking conditions on a single
// leg do not stop the sweep.
func (s *RecalcService) SweepOrganization(ctx context.Context, orgID pay.OrgID) (SweepSummary, error) {
	summary := SweepSummary{OrgID: orgID}

	loads, err := s.Store.ListLoads(ctx, orgID)
	if err != nil {
		return summary, err
	}

	for i := range loads {
		ld := &loads[i]
		for _, leg := range ld.Legs {
			if !leg.HasDriver() {
				summary.Skipped++
				continue
			}

			run := sqlite.RecalcRun{
				ID:     fmt.Sprintf("run-%s-%d", leg.ID, time.Now().UnixNano()),
				OrgID:  orgID,
				LoadID: ld.ID,
				LegID:  leg.ID,
			}

			outcome, err := s.RecalculateLeg(ctx, ld, leg.ID)
			switch {
			case err == nil:
				run.Status = "ok"
				run.Total = outcome.Total
				summary.Processed++
			case pay.IsBlocking(err):
				run.Status = "blocked"
				run.Error = err.Error()
				summary.Blocked++
			default:
				run.Status = "error"
				run.Error = err.Error()
				summary.Failed++
			}

			if err := s.Store.SaveRecalcRun(ctx, run); err != nil {
				log.Printf("[Recalc] Error saving run record for %s: %v", leg.ID, err)
			}
		}
	}

	return summary, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// RecalcScheduler periodically sweeps every organization.
type RecalcScheduler struct {
	Service       *RecalcService
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecalcScheduler creates a new scheduler.
func NewRecalcScheduler(service *RecalcService) *RecalcScheduler {
	return &RecalcScheduler{
		Service:       service,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RecalcScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Recalc] Scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Recalc] Scheduler started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *RecalcScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Recalc] Scheduler stopped")
	}
}

func (rs *RecalcScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweepAll()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweepAll()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RecalcScheduler) sweepAll() {
	ctx := context.Background()

	orgs, err := rs.Service.Store.ListOrganizations(ctx)
	if err != nil {
		log.Printf("[Recalc] Error listing organizations: %v", err)
		return
	}

	for _, org := range orgs {
		summary, err := rs.Service.SweepOrganization(ctx, org.ID)
		if err != nil {
			log.Printf("[Recalc] Sweep failed for %s: %v", org.ID, err)
			continue
		}
		if summary.Processed > 0 || summary.Blocked > 0 || summary.Failed > 0 {
			log.Printf("[Recalc] %s: %d processed, %d blocked, %d failed, %d unassigned",
				org.ID, summary.Processed, summary.Blocked, summary.Failed, summary.Skipped)
		}
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RecalcScheduler) RunNow() {
	rs.sweepAll()
}
