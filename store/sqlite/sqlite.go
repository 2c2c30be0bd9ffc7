/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (pay.ProfileStore, pay.AssignmentStore,
  pay.PayableStore, load.Store) using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  pay.ProfileStore:    Compensation profiles + rate rules, org defaults
  pay.AssignmentStore: Profile-to-driver links, per-driver stars
  pay.PayableStore:    Pay line items per dispatch leg
  load.Store:          Loads, stops, dispatch legs

INVARIANT ENFORCEMENT:
  Two invariants are enforced INSIDE a single SQL transaction, never as two
  independent writes:
  - SetDefaultProfile unsets the prior (org, profile_type) default before
    setting the new one. A partial unique index backs this up.
  - SetStarredAssignment unstars the prior star for the same driver and
    profile type before starring the new one.

  ReplaceSystemItems deletes only unlocked system rows and inserts the fresh
  set in the same transaction. Locked and manual rows are structurally out of
  reach of recalculation.

KEY TABLES:
  organizations, drivers:        Subject records
  compensation_profiles:         Profile headers (basis, flags)
  rate_rules:                    Owned by profiles (cascade delete)
  profile_assignments:           Driver-to-profile links with stars
  loads, load_stops:             Freight orders and their stop sequences
  dispatch_legs:                 Driver-assigned segments with measured facts
  payables:                      Pay line items (system + manual, lockable)
  recalc_runs:                   Recalculation sweep audit records

DECIMALS:
  All money/quantity columns are TEXT holding decimal strings. Floats never
  touch pay math.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/pay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - pay/store.go:       Interface definitions and invariant contracts
  - pay/store/memory.go: In-memory implementation for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/linehaul/pay-engine/load"
	"github.com/linehaul/pay-engine/pay"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Organizations
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Drivers and carriers (subjects of pay profiles)
	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		subject_type TEXT NOT NULL DEFAULT 'driver',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drivers_org ON drivers(org_id);

	-- Compensation profiles
	CREATE TABLE IF NOT EXISTS compensation_profiles (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		profile_type TEXT NOT NULL,
		pay_basis TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_org ON compensation_profiles(org_id);

	-- CRITICAL: at most one default profile per (org, profile type).
	-- SetDefaultProfile does the unset+set in one transaction; this index
	-- turns any remaining race into a hard constraint error.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_one_default
		ON compensation_profiles(org_id, profile_type)
		WHERE is_default;

	-- Rate rules (owned by profiles, cascade on delete)
	CREATE TABLE IF NOT EXISTS rate_rules (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL REFERENCES compensation_profiles(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		trigger_event TEXT NOT NULL,
		rate_amount TEXT NOT NULL,
		min_threshold TEXT,
		max_cap TEXT,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		position INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_profile ON rate_rules(profile_id, position);

	-- Profile assignments
	CREATE TABLE IF NOT EXISTS profile_assignments (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		profile_id TEXT NOT NULL REFERENCES compensation_profiles(id),
		is_starred BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_subject
		ON profile_assignments(org_id, subject_id);

	-- Loads
	CREATE TABLE IF NOT EXISTS loads (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		reference TEXT,
		revenue_amount TEXT NOT NULL DEFAULT '0',
		hazmat BOOLEAN NOT NULL DEFAULT FALSE,
		tarp_required BOOLEAN NOT NULL DEFAULT FALSE,
		contract_miles TEXT,
		delivered_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loads_org ON loads(org_id);
	CREATE INDEX IF NOT EXISTS idx_loads_delivered ON loads(delivered_at);

	-- Load stops (ordered by sequence)
	CREATE TABLE IF NOT EXISTS load_stops (
		id TEXT PRIMARY KEY,
		load_id TEXT NOT NULL REFERENCES loads(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		stop_type TEXT NOT NULL,
		name TEXT,
		city TEXT,
		state TEXT,
		scheduled_at TEXT,
		UNIQUE(load_id, sequence)
	);

	-- Dispatch legs (driver-assigned segments)
	CREATE TABLE IF NOT EXISTS dispatch_legs (
		id TEXT PRIMARY KEY,
		load_id TEXT NOT NULL REFERENCES loads(id) ON DELETE CASCADE,
		driver_id TEXT,
		truck_id TEXT,
		trailer_id TEXT,
		first_stop_seq INTEGER NOT NULL,
		last_stop_seq INTEGER NOT NULL,
		loaded_miles TEXT NOT NULL DEFAULT '0',
		empty_miles TEXT NOT NULL DEFAULT '0',
		duration_hours TEXT NOT NULL DEFAULT '0',
		waiting_hours TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_legs_load ON dispatch_legs(load_id, first_stop_seq);
	CREATE INDEX IF NOT EXISTS idx_legs_driver ON dispatch_legs(driver_id);

	-- Payables (pay line items)
	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		leg_id TEXT NOT NULL REFERENCES dispatch_legs(id) ON DELETE CASCADE,
		rule_id TEXT,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		quantity TEXT NOT NULL,
		rate TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		is_locked BOOLEAN NOT NULL DEFAULT FALSE,
		warning_message TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payables_leg ON payables(leg_id);
	CREATE INDEX IF NOT EXISTS idx_payables_source ON payables(leg_id, source, is_locked);

	-- Recalculation sweep audit records
	CREATE TABLE IF NOT EXISTS recalc_runs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		load_id TEXT NOT NULL,
		leg_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total TEXT,
		error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recalc_runs_org ON recalc_runs(org_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ORGANIZATIONS & DRIVERS
// =============================================================================

// Organization is a tenant record.
type Organization struct {
	ID        pay.OrgID
	Name      string
	CreatedAt time.Time
}

// Driver is a pay subject (driver or carrier, per SubjectType).
type Driver struct {
	ID          pay.SubjectID
	OrgID       pay.OrgID
	Name        string
	SubjectType pay.ProfileType
	CreatedAt   time.Time
}

func (s *Store) SaveOrganization(ctx context.Context, org Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		org.ID, org.Name, now())
	return err
}

func (s *Store) GetOrganization(ctx context.Context, id pay.OrgID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var org Organization
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM organizations WHERE id = ?", id,
	).Scan(&org.ID, &org.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM organizations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		var createdAt string
		if err := rows.Scan(&org.ID, &org.Name, &createdAt); err != nil {
			return nil, err
		}
		org.CreatedAt = parseTime(createdAt)
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *Store) SaveDriver(ctx context.Context, d Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, org_id, name, subject_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		d.ID, d.OrgID, d.Name, d.SubjectType, now())
	return err
}

func (s *Store) GetDriver(ctx context.Context, id pay.SubjectID) (*Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Driver
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, org_id, name, subject_type, created_at FROM drivers WHERE id = ?", id,
	).Scan(&d.ID, &d.OrgID, &d.Name, &d.SubjectType, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (s *Store) ListDrivers(ctx context.Context, orgID pay.OrgID) ([]Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, org_id, name, subject_type, created_at FROM drivers WHERE org_id = ? ORDER BY name",
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []Driver
	for rows.Next() {
		var d Driver
		var createdAt string
		if err := rows.Scan(&d.ID, &d.OrgID, &d.Name, &d.SubjectType, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTime(createdAt)
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// =============================================================================
// PROFILE STORE (pay.ProfileStore interface)
// =============================================================================

// SaveProfile validates, then upserts the profile and replaces its rules in
// one transaction. Rules are owned by the profile; replacing wholesale keeps
// creation order via the position column.
func (s *Store) SaveProfile(ctx context.Context, p pay.CompensationProfile) error {
	if err := pay.ValidateProfile(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO compensation_profiles
		(id, org_id, name, profile_type, pay_basis, is_active, is_default, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			pay_basis = excluded.pay_basis,
			is_active = excluded.is_active,
			version = compensation_profiles.version + 1,
			updated_at = excluded.updated_at`,
		p.ID, p.OrgID, p.Name, p.Type, p.PayBasis, p.IsActive, p.IsDefault,
		p.Version, now(), now())
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("organization %s already has a default %s profile", p.OrgID, p.Type)
		}
		return fmt.Errorf("failed to save profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM rate_rules WHERE profile_id = ?", p.ID); err != nil {
		return fmt.Errorf("failed to replace rules: %w", err)
	}
	for i, r := range p.Rules {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rate_rules
			(id, profile_id, category, trigger_event, rate_amount, min_threshold, max_cap, description, is_active, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, p.ID, r.Category, r.TriggerEvent, r.RateAmount.String(),
			nullDecimal(r.MinThreshold), nullDecimal(r.MaxCap),
			nullString(r.Description), r.IsActive, i, now())
		if err != nil {
			return fmt.Errorf("failed to save rule %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// GetProfile returns a profile with its rules in creation order.
func (s *Store) GetProfile(ctx context.Context, id pay.ProfileID) (*pay.CompensationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.scanProfileRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, pay.ErrProfileNotFound
	}

	rules, err := s.queryRules(ctx, "WHERE profile_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	p.Rules = rules
	return p, nil
}

func (s *Store) scanProfileRow(ctx context.Context, id pay.ProfileID) (*pay.CompensationProfile, error) {
	var p pay.CompensationProfile
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, profile_type, pay_basis, is_active, is_default, version, created_at, updated_at
		FROM compensation_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.Type, &p.PayBasis, &p.IsActive,
		&p.IsDefault, &p.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// ListProfiles returns all profiles for an organization, rules included.
func (s *Store) ListProfiles(ctx context.Context, orgID pay.OrgID) ([]pay.CompensationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, profile_type, pay_basis, is_active, is_default, version, created_at, updated_at
		FROM compensation_profiles WHERE org_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []pay.CompensationProfile
	for rows.Next() {
		var p pay.CompensationProfile
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Type, &p.PayBasis,
			&p.IsActive, &p.IsDefault, &p.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range profiles {
		rules, err := s.queryRules(ctx, "WHERE profile_id = ? ORDER BY position", profiles[i].ID)
		if err != nil {
			return nil, err
		}
		profiles[i].Rules = rules
	}
	return profiles, nil
}

func (s *Store) queryRules(ctx context.Context, where string, args ...any) ([]pay.RateRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, category, trigger_event, rate_amount, min_threshold, max_cap, description, is_active, created_at
		FROM rate_rules `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []pay.RateRule
	for rows.Next() {
		var r pay.RateRule
		var rate string
		var threshold, cap, description sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.Category, &r.TriggerEvent,
			&rate, &threshold, &cap, &description, &r.IsActive, &createdAt); err != nil {
			return nil, err
		}
		r.RateAmount = pay.MustDec(rate)
		if threshold.Valid {
			d := pay.MustDec(threshold.String)
			r.MinThreshold = &d
		}
		if cap.Valid {
			d := pay.MustDec(cap.String)
			r.MaxCap = &d
		}
		r.Description = description.String
		r.CreatedAt = parseTime(createdAt)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetDefaultProfile unsets the prior (org, type) default and sets the new
// one in the same SQL transaction.
func (s *Store) SetDefaultProfile(ctx context.Context, orgID pay.OrgID, id pay.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var profileType string
	err = tx.QueryRowContext(ctx,
		"SELECT profile_type FROM compensation_profiles WHERE id = ? AND org_id = ?",
		id, orgID).Scan(&profileType)
	if err == sql.ErrNoRows {
		return pay.ErrProfileNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE compensation_profiles SET is_default = FALSE
		WHERE org_id = ? AND profile_type = ? AND is_default`,
		orgID, profileType); err != nil {
		return fmt.Errorf("failed to unset prior default: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE compensation_profiles SET is_default = TRUE, updated_at = ? WHERE id = ?",
		now(), id); err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}

	return tx.Commit()
}

// =============================================================================
// ASSIGNMENT STORE (pay.AssignmentStore interface)
// =============================================================================

func (s *Store) SaveAssignment(ctx context.Context, a pay.ProfileAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_assignments (id, org_id, subject_id, profile_id, is_starred, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profile_id = excluded.profile_id,
			is_starred = excluded.is_starred`,
		a.ID, a.OrgID, a.SubjectID, a.ProfileID, a.IsStarred, now())
	return err
}

// ListAssignments returns assignments ordered by ID, which is what gives the
// resolver its deterministic tie-break.
func (s *Store) ListAssignments(ctx context.Context, orgID pay.OrgID, subjectID pay.SubjectID) ([]pay.ProfileAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, subject_id, profile_id, is_starred, created_at
		FROM profile_assignments
		WHERE org_id = ? AND subject_id = ?
		ORDER BY id`, orgID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []pay.ProfileAssignment
	for rows.Next() {
		var a pay.ProfileAssignment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.OrgID, &a.SubjectID, &a.ProfileID,
			&a.IsStarred, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SetStarredAssignment unstars the prior star for the same (subject, profile
// type) and stars the target in one transaction.
func (s *Store) SetStarredAssignment(ctx context.Context, id pay.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orgID, subjectID, profileType string
	err = tx.QueryRowContext(ctx, `
		SELECT a.org_id, a.subject_id, p.profile_type
		FROM profile_assignments a
		JOIN compensation_profiles p ON p.id = a.profile_id
		WHERE a.id = ?`, id).Scan(&orgID, &subjectID, &profileType)
	if err == sql.ErrNoRows {
		return pay.ErrItemNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profile_assignments SET is_starred = FALSE
		WHERE org_id = ? AND subject_id = ? AND is_starred
		  AND profile_id IN (SELECT id FROM compensation_profiles WHERE profile_type = ?)`,
		orgID, subjectID, profileType); err != nil {
		return fmt.Errorf("failed to unset prior star: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE profile_assignments SET is_starred = TRUE WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to set star: %w", err)
	}

	return tx.Commit()
}

func (s *Store) DeleteAssignment(ctx context.Context, id pay.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM profile_assignments WHERE id = ?", id)
	return err
}

// =============================================================================
// PAYABLE STORE (pay.PayableStore interface)
// =============================================================================

const payableColumns = `id, leg_id, rule_id, source, category, description,
	quantity, rate, total_amount, is_locked, warning_message, created_by, created_at`

func (s *Store) ListItems(ctx context.Context, legID pay.LegID) ([]pay.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryItems(ctx, `
		SELECT `+payableColumns+` FROM payables WHERE leg_id = ? ORDER BY id`, legID)
}

// ReplaceSystemItems deletes the unlocked system items for the leg and
// inserts the fresh set in one transaction.
func (s *Store) ReplaceSystemItems(ctx context.Context, legID pay.LegID, items []pay.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM payables WHERE leg_id = ? AND source = ? AND NOT is_locked`,
		legID, pay.SourceSystem); err != nil {
		return fmt.Errorf("failed to clear system items: %w", err)
	}

	for _, item := range items {
		if err := insertItem(ctx, tx, legID, item); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) AddManualItem(ctx context.Context, item pay.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertItem(ctx, s.db, item.LegID, item)
}

func insertItem(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, legID pay.LegID, item pay.LineItem) error {
	id := item.ID
	if id == "" {
		id = pay.ItemID(fmt.Sprintf("%s-%s-%d", legID, item.Source, time.Now().UnixNano()))
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO payables (`+payableColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, legID, nullString(string(item.RuleID)), item.Source, item.Category,
		item.Description, item.Quantity.String(), item.Rate.String(),
		item.TotalAmount.String(), item.IsLocked,
		nullString(item.WarningMessage), nullString(item.CreatedBy), now())
	if err != nil {
		return fmt.Errorf("failed to insert payable: %w", err)
	}
	return nil
}

func (s *Store) SetItemLocked(ctx context.Context, id pay.ItemID, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE payables SET is_locked = ? WHERE id = ?", locked, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pay.ErrItemNotFound
	}
	return nil
}

func (s *Store) DeleteManualItem(ctx context.Context, id pay.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var source string
	var locked bool
	err := s.db.QueryRowContext(ctx,
		"SELECT source, is_locked FROM payables WHERE id = ?", id).Scan(&source, &locked)
	if err == sql.ErrNoRows {
		return pay.ErrItemNotFound
	}
	if err != nil {
		return err
	}
	if pay.ItemSource(source) != pay.SourceManual {
		return pay.ErrManualItemOnly
	}
	if locked {
		return pay.ErrItemLocked
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM payables WHERE id = ?", id)
	return err
}

// ListItemsInRange returns a subject's items whose load delivered in [from, to].
func (s *Store) ListItemsInRange(ctx context.Context, orgID pay.OrgID, subjectID pay.SubjectID, from, to time.Time) ([]pay.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryItems(ctx, `
		SELECT p.id, p.leg_id, p.rule_id, p.source, p.category, p.description,
		       p.quantity, p.rate, p.total_amount, p.is_locked, p.warning_message, p.created_by, p.created_at
		FROM payables p
		JOIN dispatch_legs dl ON dl.id = p.leg_id
		JOIN loads l ON l.id = dl.load_id
		WHERE l.org_id = ? AND dl.driver_id = ?
		  AND l.delivered_at IS NOT NULL
		  AND l.delivered_at >= ? AND l.delivered_at <= ?
		ORDER BY p.id`,
		orgID, subjectID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]pay.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payables: %w", err)
	}
	defer rows.Close()

	var items []pay.LineItem
	for rows.Next() {
		var item pay.LineItem
		var ruleID, warning, createdBy sql.NullString
		var quantity, rate, total, createdAt string
		if err := rows.Scan(&item.ID, &item.LegID, &ruleID, &item.Source,
			&item.Category, &item.Description, &quantity, &rate, &total,
			&item.IsLocked, &warning, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payable: %w", err)
		}
		item.RuleID = pay.RuleID(ruleID.String)
		item.Quantity = pay.MustDec(quantity)
		item.Rate = pay.MustDec(rate)
		item.TotalAmount = pay.MustDec(total)
		item.WarningMessage = warning.String
		item.CreatedBy = createdBy.String
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// LOAD STORE (load.Store interface)
// =============================================================================

// SaveLoad upserts the load and replaces its stops and legs in one
// transaction.
func (s *Store) SaveLoad(ctx context.Context, ld load.Load) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deliveredAt any
	if ld.DeliveredAt != nil {
		deliveredAt = ld.DeliveredAt.UTC().Format(time.RFC3339)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO loads (id, org_id, reference, revenue_amount, hazmat, tarp_required, contract_miles, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reference = excluded.reference,
			revenue_amount = excluded.revenue_amount,
			hazmat = excluded.hazmat,
			tarp_required = excluded.tarp_required,
			contract_miles = excluded.contract_miles,
			delivered_at = excluded.delivered_at`,
		ld.ID, ld.OrgID, nullString(ld.Reference), ld.RevenueAmount.String(),
		ld.Hazmat, ld.TarpRequired, nullDecimal(ld.ContractMiles), deliveredAt, now())
	if err != nil {
		return fmt.Errorf("failed to save load: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM load_stops WHERE load_id = ?", ld.ID); err != nil {
		return err
	}
	for _, stop := range ld.Stops {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO load_stops (id, load_id, sequence, stop_type, name, city, state, scheduled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stop.ID, ld.ID, stop.Sequence, stop.Type, nullString(stop.Name),
			nullString(stop.City), nullString(stop.State),
			stop.ScheduledAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to save stop %s: %w", stop.ID, err)
		}
	}

	if err := replaceLegs(ctx, tx, ld.ID, ld.Legs); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceLegs(ctx context.Context, tx *sql.Tx, loadID pay.LoadID, legs []load.DispatchLeg) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM dispatch_legs WHERE load_id = ?", loadID); err != nil {
		return err
	}
	for _, leg := range legs {
		if err := upsertLeg(ctx, tx, leg); err != nil {
			return err
		}
	}
	return nil
}

func upsertLeg(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, leg load.DispatchLeg) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dispatch_legs
		(id, load_id, driver_id, truck_id, trailer_id, first_stop_seq, last_stop_seq,
		 loaded_miles, empty_miles, duration_hours, waiting_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			driver_id = excluded.driver_id,
			truck_id = excluded.truck_id,
			trailer_id = excluded.trailer_id,
			first_stop_seq = excluded.first_stop_seq,
			last_stop_seq = excluded.last_stop_seq,
			loaded_miles = excluded.loaded_miles,
			empty_miles = excluded.empty_miles,
			duration_hours = excluded.duration_hours,
			waiting_hours = excluded.waiting_hours`,
		leg.ID, leg.LoadID, nullString(string(leg.DriverID)),
		nullString(leg.TruckID), nullString(leg.TrailerID),
		leg.FirstStopSeq, leg.LastStopSeq,
		leg.LoadedMiles.String(), leg.EmptyMiles.String(),
		leg.DurationHours.String(), leg.WaitingHours.String(), now())
	if err != nil {
		return fmt.Errorf("failed to save leg %s: %w", leg.ID, err)
	}
	return nil
}

// GetLoad returns a load with stops and legs, or pay.ErrLoadNotFound.
func (s *Store) GetLoad(ctx context.Context, id pay.LoadID) (*load.Load, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ld, err := s.scanLoadRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if ld == nil {
		return nil, pay.ErrLoadNotFound
	}

	if err := s.attachStopsAndLegs(ctx, ld); err != nil {
		return nil, err
	}
	return ld, nil
}

func (s *Store) scanLoadRow(ctx context.Context, id pay.LoadID) (*load.Load, error) {
	var ld load.Load
	var reference, contractMiles, deliveredAt sql.NullString
	var revenue, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, reference, revenue_amount, hazmat, tarp_required, contract_miles, delivered_at, created_at
		FROM loads WHERE id = ?`, id,
	).Scan(&ld.ID, &ld.OrgID, &reference, &revenue, &ld.Hazmat,
		&ld.TarpRequired, &contractMiles, &deliveredAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ld.Reference = reference.String
	ld.RevenueAmount = pay.MustDec(revenue)
	if contractMiles.Valid {
		d := pay.MustDec(contractMiles.String)
		ld.ContractMiles = &d
	}
	if deliveredAt.Valid {
		t := parseTime(deliveredAt.String)
		ld.DeliveredAt = &t
	}
	ld.CreatedAt = parseTime(createdAt)
	return &ld, nil
}

func (s *Store) attachStopsAndLegs(ctx context.Context, ld *load.Load) error {
	stopRows, err := s.db.QueryContext(ctx, `
		SELECT id, load_id, sequence, stop_type, name, city, state, scheduled_at
		FROM load_stops WHERE load_id = ? ORDER BY sequence`, ld.ID)
	if err != nil {
		return err
	}
	defer stopRows.Close()
	for stopRows.Next() {
		var stop load.LoadStop
		var name, city, state sql.NullString
		var scheduledAt string
		if err := stopRows.Scan(&stop.ID, &stop.LoadID, &stop.Sequence,
			&stop.Type, &name, &city, &state, &scheduledAt); err != nil {
			return err
		}
		stop.Name = name.String
		stop.City = city.String
		stop.State = state.String
		stop.ScheduledAt = parseTime(scheduledAt)
		ld.Stops = append(ld.Stops, stop)
	}
	if err := stopRows.Err(); err != nil {
		return err
	}

	legRows, err := s.db.QueryContext(ctx, `
		SELECT id, load_id, driver_id, truck_id, trailer_id, first_stop_seq, last_stop_seq,
		       loaded_miles, empty_miles, duration_hours, waiting_hours, created_at
		FROM dispatch_legs WHERE load_id = ? ORDER BY first_stop_seq`, ld.ID)
	if err != nil {
		return err
	}
	defer legRows.Close()
	for legRows.Next() {
		leg, err := scanLeg(legRows)
		if err != nil {
			return err
		}
		ld.Legs = append(ld.Legs, leg)
	}
	return legRows.Err()
}

func scanLeg(rows *sql.Rows) (load.DispatchLeg, error) {
	var leg load.DispatchLeg
	var driverID, truckID, trailerID sql.NullString
	var loaded, empty, duration, waiting, createdAt string
	err := rows.Scan(&leg.ID, &leg.LoadID, &driverID, &truckID, &trailerID,
		&leg.FirstStopSeq, &leg.LastStopSeq,
		&loaded, &empty, &duration, &waiting, &createdAt)
	if err != nil {
		return leg, fmt.Errorf("failed to scan leg: %w", err)
	}
	leg.DriverID = pay.SubjectID(driverID.String)
	leg.TruckID = truckID.String
	leg.TrailerID = trailerID.String
	leg.LoadedMiles = pay.MustDec(loaded)
	leg.EmptyMiles = pay.MustDec(empty)
	leg.DurationHours = pay.MustDec(duration)
	leg.WaitingHours = pay.MustDec(waiting)
	leg.CreatedAt = parseTime(createdAt)
	return leg, nil
}

// ListLoads returns all loads for an organization, stops and legs included.
func (s *Store) ListLoads(ctx context.Context, orgID pay.OrgID) ([]load.Load, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM loads WHERE org_id = ? ORDER BY created_at, id", orgID)
	if err != nil {
		return nil, err
	}
	var ids []pay.LoadID
	for rows.Next() {
		var id pay.LoadID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var loads []load.Load
	for _, id := range ids {
		ld, err := s.scanLoadRow(ctx, id)
		if err != nil {
			return nil, err
		}
		if ld == nil {
			continue
		}
		if err := s.attachStopsAndLegs(ctx, ld); err != nil {
			return nil, err
		}
		loads = append(loads, *ld)
	}
	return loads, nil
}

// SaveLeg upserts a single leg.
func (s *Store) SaveLeg(ctx context.Context, leg load.DispatchLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return upsertLeg(ctx, s.db, leg)
}

// ReplaceLegs replaces the load's legs atomically. Used by split.
func (s *Store) ReplaceLegs(ctx context.Context, loadID pay.LoadID, legs []load.DispatchLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceLegs(ctx, tx, loadID, legs); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// RECALC RUNS - audit records for recalculation sweeps
// =============================================================================

// RecalcRun records one leg recalculation within a sweep.
type RecalcRun struct {
	ID        string
	OrgID     pay.OrgID
	LoadID    pay.LoadID
	LegID     pay.LegID
	Status    string // "ok", "blocked", "error"
	Total     decimal.Decimal
	Error     string
	CreatedAt time.Time
}

func (s *Store) SaveRecalcRun(ctx context.Context, run RecalcRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recalc_runs (id, org_id, load_id, leg_id, status, total, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OrgID, run.LoadID, run.LegID, run.Status,
		run.Total.String(), nullString(run.Error), now())
	return err
}

func (s *Store) ListRecalcRuns(ctx context.Context, orgID pay.OrgID) ([]RecalcRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, load_id, leg_id, status, total, error, created_at
		FROM recalc_runs WHERE org_id = ? ORDER BY created_at DESC, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RecalcRun
	for rows.Next() {
		var run RecalcRun
		var total string
		var errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&run.ID, &run.OrgID, &run.LoadID, &run.LegID,
			&run.Status, &total, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		run.Total = pay.MustDec(total)
		run.Error = errMsg.String
		run.CreatedAt = parseTime(createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// RESET - dev/demo support
// =============================================================================

// Reset wipes all data. Dev and scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"payables", "recalc_runs", "dispatch_legs", "load_stops", "loads",
		"profile_assignments", "rate_rules", "compensation_profiles",
		"drivers", "organizations",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
