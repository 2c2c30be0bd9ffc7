// Package store provides in-memory implementations of the pay persistence
// interfaces, for tests and dev mode.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linehaul/pay-engine/pay"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements pay.ProfileStore, pay.AssignmentStore, and
// pay.PayableStore with maps. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	profiles    map[pay.ProfileID]pay.CompensationProfile
	assignments map[pay.AssignmentID]pay.ProfileAssignment
	items       map[pay.ItemID]pay.LineItem
	itemSeq     int

	// legMeta links legs to org/subject/delivery date for range queries.
	legMeta map[pay.LegID]LegMeta
}

// LegMeta is the minimal leg context the memory store needs for settlement
// range queries. The sqlite store derives this via joins instead.
type LegMeta struct {
	OrgID       pay.OrgID
	SubjectID   pay.SubjectID
	DeliveredAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		profiles:    make(map[pay.ProfileID]pay.CompensationProfile),
		assignments: make(map[pay.AssignmentID]pay.ProfileAssignment),
		items:       make(map[pay.ItemID]pay.LineItem),
		legMeta:     make(map[pay.LegID]LegMeta),
	}
}

// SetLegMeta registers leg context for ListItemsInRange.
func (m *Memory) SetLegMeta(legID pay.LegID, meta LegMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legMeta[legID] = meta
}

// =============================================================================
// PROFILE STORE
// =============================================================================

func (m *Memory) SaveProfile(_ context.Context, p pay.CompensationProfile) error {
	if err := pay.ValidateProfile(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *Memory) GetProfile(_ context.Context, id pay.ProfileID) (*pay.CompensationProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, pay.ErrProfileNotFound
	}
	cp := p
	cp.Rules = append([]pay.RateRule(nil), p.Rules...)
	return &cp, nil
}

func (m *Memory) ListProfiles(_ context.Context, orgID pay.OrgID) ([]pay.CompensationProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pay.CompensationProfile
	for _, p := range m.profiles {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetDefaultProfile unsets the prior default of the same (org, type) in the
// same critical section. This is the read-modify-write the default
// exclusivity invariant requires.
func (m *Memory) SetDefaultProfile(_ context.Context, orgID pay.OrgID, id pay.ProfileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.profiles[id]
	if !ok || target.OrgID != orgID {
		return pay.ErrProfileNotFound
	}

	for pid, p := range m.profiles {
		if p.OrgID == orgID && p.Type == target.Type && p.IsDefault {
			p.IsDefault = false
			m.profiles[pid] = p
		}
	}
	target.IsDefault = true
	m.profiles[id] = target
	return nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

func (m *Memory) SaveAssignment(_ context.Context, a pay.ProfileAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) ListAssignments(_ context.Context, orgID pay.OrgID, subjectID pay.SubjectID) ([]pay.ProfileAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pay.ProfileAssignment
	for _, a := range m.assignments {
		if a.OrgID == orgID && a.SubjectID == subjectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetStarredAssignment unstars any prior star for the same subject and
// profile type in the same critical section.
func (m *Memory) SetStarredAssignment(_ context.Context, id pay.AssignmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.assignments[id]
	if !ok {
		return pay.ErrItemNotFound
	}
	targetProfile, ok := m.profiles[target.ProfileID]
	if !ok {
		return pay.ErrProfileNotFound
	}

	for aid, a := range m.assignments {
		if aid == id || a.SubjectID != target.SubjectID || a.OrgID != target.OrgID || !a.IsStarred {
			continue
		}
		p, ok := m.profiles[a.ProfileID]
		if ok && p.Type != targetProfile.Type {
			continue
		}
		a.IsStarred = false
		m.assignments[aid] = a
	}
	target.IsStarred = true
	m.assignments[id] = target
	return nil
}

func (m *Memory) DeleteAssignment(_ context.Context, id pay.AssignmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, id)
	return nil
}

// =============================================================================
// PAYABLE STORE
// =============================================================================

func (m *Memory) ListItems(_ context.Context, legID pay.LegID) ([]pay.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsForLeg(legID), nil
}

func (m *Memory) itemsForLeg(legID pay.LegID) []pay.LineItem {
	var out []pay.LineItem
	for _, item := range m.items {
		if item.LegID == legID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ReplaceSystemItems(_ context.Context, legID pay.LegID, items []pay.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, item := range m.items {
		if item.LegID == legID && item.Source == pay.SourceSystem && !item.IsLocked {
			delete(m.items, id)
		}
	}
	for _, item := range items {
		m.insertLocked(legID, item)
	}
	return nil
}

func (m *Memory) AddManualItem(_ context.Context, item pay.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(item.LegID, item)
	return nil
}

func (m *Memory) insertLocked(legID pay.LegID, item pay.LineItem) {
	m.itemSeq++
	if item.ID == "" {
		item.ID = pay.ItemID(itemID(m.itemSeq))
	}
	item.LegID = legID
	m.items[item.ID] = item
}

func (m *Memory) SetItemLocked(_ context.Context, id pay.ItemID, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return pay.ErrItemNotFound
	}
	item.IsLocked = locked
	m.items[id] = item
	return nil
}

func (m *Memory) DeleteManualItem(_ context.Context, id pay.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return pay.ErrItemNotFound
	}
	if item.Source != pay.SourceManual {
		return pay.ErrManualItemOnly
	}
	if item.IsLocked {
		return pay.ErrItemLocked
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) ListItemsInRange(_ context.Context, orgID pay.OrgID, subjectID pay.SubjectID, from, to time.Time) ([]pay.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pay.LineItem
	for _, item := range m.items {
		meta, ok := m.legMeta[item.LegID]
		if !ok || meta.OrgID != orgID || meta.SubjectID != subjectID {
			continue
		}
		if meta.DeliveredAt.Before(from) || meta.DeliveredAt.After(to) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// itemID formats a sequential in-memory item ID with stable sort order.
func itemID(n int) string {
	return fmt.Sprintf("item-%07d", n)
}
