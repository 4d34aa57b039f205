package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// matchKey identifies a stored match within a scan.
type matchKey struct {
	scanID      string
	ruleName    string
	fingerprint string
}

// MemoryStore implements Store using in-memory data structures.
type MemoryStore struct {
	mu      sync.RWMutex
	scans   map[string]*Scan
	order   []string // scan IDs in BeginScan order
	matches map[string][]*types.Match // keyed by scan ID
	seen    map[matchKey]struct{}
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		scans:   make(map[string]*Scan),
		matches: make(map[string][]*types.Match),
		seen:    make(map[matchKey]struct{}),
	}
}

// BeginScan records a new scan.
func (m *MemoryStore) BeginScan(scan *Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ID)
	}

	stored := *scan
	m.scans[scan.ID] = &stored
	m.order = append(m.order, scan.ID)
	return nil
}

// AddRuleResult stores the matches of one rule unit.
func (m *MemoryStore) AddRuleResult(scanID string, result *types.RuleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scans[scanID]; !exists {
		return fmt.Errorf("scan %s not found", scanID)
	}

	for _, match := range result.Matches {
		key := matchKey{scanID: scanID, ruleName: result.RuleName, fingerprint: match.Fingerprint}
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.matches[scanID] = append(m.matches[scanID], match)
	}
	return nil
}

// FinishScan marks a scan as finished.
func (m *MemoryStore) FinishScan(scanID string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scan, exists := m.scans[scanID]
	if !exists {
		return fmt.Errorf("scan %s not found", scanID)
	}
	scan.FinishedAt = finishedAt
	return nil
}

// GetScans retrieves all scans in BeginScan order.
func (m *MemoryStore) GetScans() ([]*Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Scan, 0, len(m.order))
	for _, id := range m.order {
		scan := *m.scans[id]
		result = append(result, &scan)
	}
	return result, nil
}

// GetMatches retrieves the matches of a scan.
func (m *MemoryStore) GetMatches(scanID string) ([]*types.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid external modifications
	result := make([]*types.Match, len(m.matches[scanID]))
	copy(result, m.matches[scanID])
	return result, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
