package store

import (
	"fmt"
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// Scan is one recorded scan run.
type Scan struct {
	ID         string
	Root       string
	ReportPath string
	StartedAt  time.Time
	FinishedAt time.Time // zero until FinishScan
}

// Store provides persistence for scan results.
// This interface abstracts the underlying storage implementation,
// allowing for different backends (SQLite, in-memory).
type Store interface {
	// BeginScan records a new scan. The scan ID must be unique.
	BeginScan(scan *Scan) error

	// AddRuleResult stores the matches of one rule unit. Matches already
	// stored for the same scan, rule and fingerprint are ignored.
	AddRuleResult(scanID string, result *types.RuleResult) error

	// FinishScan marks a scan as finished.
	FinishScan(scanID string, finishedAt time.Time) error

	// GetScans retrieves all scans, oldest first.
	GetScans() ([]*Scan, error)

	// GetMatches retrieves the matches of a scan in insertion order.
	GetMatches(scanID string) ([]*types.Match, error)

	// Close closes the database connection.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for an in-memory store (useful for testing).
	Path string
}

// New creates a new Store.
// ":memory:" returns a MemoryStore; any other path opens SQLite.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	if cfg.Path == ":memory:" {
		return NewMemory(), nil
	}

	return NewSQLite(cfg.Path)
}
