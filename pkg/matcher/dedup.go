package matcher

import (
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// Deduplicator collapses matches with the same fingerprint (absolute path +
// matched text). The first match added wins; re-adding a fingerprint is a
// no-op. Matches are kept in insertion order.
//
// A Deduplicator is owned by a single work unit and is not safe for
// concurrent use.
type Deduplicator struct {
	seen    map[string]*types.Match
	ordered []*types.Match
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]*types.Match),
	}
}

// Seen reports whether a match with this fingerprint was already added.
func (d *Deduplicator) Seen(fingerprint string) bool {
	_, ok := d.seen[fingerprint]
	return ok
}

// Add inserts m if its fingerprint is new and reports whether it was added.
// An empty Fingerprint is computed from AbsPath and Secret.
func (d *Deduplicator) Add(m *types.Match) bool {
	if m.Fingerprint == "" {
		m.Fingerprint = types.ComputeFingerprint(m.AbsPath, m.Secret)
	}
	if _, ok := d.seen[m.Fingerprint]; ok {
		return false
	}
	d.seen[m.Fingerprint] = m
	d.ordered = append(d.ordered, m)
	return true
}

// Len returns the number of unique matches.
func (d *Deduplicator) Len() int {
	return len(d.ordered)
}

// Matches returns the unique matches in insertion order.
func (d *Deduplicator) Matches() []*types.Match {
	return d.ordered
}

// Reset clears the deduplicator for reuse.
func (d *Deduplicator) Reset() {
	clear(d.seen)
	d.ordered = nil
}
