package scanner

import (
	"time"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// Target describes what a scan reads and where its report goes.
type Target struct {
	Root       string   // directory (or single file) to scan
	ReportPath string   // report file; its base name is excluded from the corpus
	Header     []string // target description lines for the report header
	Date       time.Time
}

// RuleSummary is the outcome of one rule unit.
type RuleSummary struct {
	Status   types.RuleStatus
	Matches  int
	Duration time.Duration
	Err      error
}

// Summary describes a finished scan.
type Summary struct {
	ScanID     string
	Root       string
	ReportPath string
	Rules      int
	Files      int
	Completed  int
	Failed     int
	TimedOut   int
	Matches    int
	Sections   []string // rule names in report order
	Duration   time.Duration
	PerRule    map[string]RuleSummary

	// Results holds every accepted (non-timed-out) rule result in arrival
	// order, for exporters.
	Results []*types.RuleResult
}
