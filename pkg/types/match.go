package types

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Match is a single detection result.
type Match struct {
	RuleName    string     `json:"rule_name"`
	RelPath     string     `json:"rel_path"`      // path relative to the scan root
	AbsPath     string     `json:"abs_path"`      // absolute path of the candidate file
	Secret      string     `json:"secret"`        // the matched text
	Snippet     string     `json:"snippet"`       // matched text with surrounding context
	Span        OffsetSpan `json:"span"`          // offsets of Secret within the content
	SnippetSpan OffsetSpan `json:"snippet_span"`  // offsets of the context window
	Fingerprint string     `json:"fingerprint"`   // SHA-1(abs_path + '\0' + secret)
}

// ComputeFingerprint returns the deduplication key of a match.
// Format: SHA-1(abs_path + '\0' + secret)
func ComputeFingerprint(absPath, secret string) string {
	h := sha1.New()
	h.Write([]byte(absPath))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// RuleStatus is the completion status of a rule work unit.
type RuleStatus int

const (
	RuleCompleted RuleStatus = iota // unit ran over every candidate file
	RuleError                       // pattern failed to compile
	RuleTimedOut                    // unit abandoned after the unit timeout
)

// String returns the string representation of RuleStatus.
func (rs RuleStatus) String() string {
	switch rs {
	case RuleCompleted:
		return "completed"
	case RuleError:
		return "error"
	case RuleTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// RuleResult is the output of one rule work unit: the deduplicated matches
// of a rule over the whole candidate list, in first-seen order.
type RuleResult struct {
	RuleName    string
	Matches     []*Match
	Status      RuleStatus
	Err         error
	Duration    time.Duration
	FilesRead   int
	FilesFailed int
}

// Empty reports whether the result carries no matches.
func (r *RuleResult) Empty() bool {
	return r == nil || len(r.Matches) == 0
}
