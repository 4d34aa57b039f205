package sarif

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// SARIF 2.1.0 constants
const (
	SchemaURI   = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	Version     = "2.1.0"
	ToolName    = "appalyzer"
	ToolVersion = "0.1.0"
)

// Report is the top-level SARIF report structure
type Report struct {
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single invocation of the tool
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool describes the analysis tool
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Rule represents a detection rule
type Rule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	ShortDescription ShortDescription `json:"shortDescription"`
}

// ShortDescription contains rule description text
type ShortDescription struct {
	Text string `json:"text"`
}

// Result represents a single finding
type Result struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

// Message contains the result message
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation specifies file location
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
	ContextRegion    *Region          `json:"contextRegion,omitempty"`
}

// ArtifactLocation identifies the file
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region specifies a byte range. Matches carry byte offsets into the decoded
// content, not line/column positions.
type Region struct {
	ByteOffset int      `json:"byteOffset"`
	ByteLength int      `json:"byteLength"`
	Snippet    *Snippet `json:"snippet,omitempty"`
}

// Snippet contains the matched text
type Snippet struct {
	Text string `json:"text"`
}

// NewReport creates a new SARIF report with initialized structure
func NewReport() *Report {
	return &Report{
		Schema:  SchemaURI,
		Version: Version,
		Runs: []Run{
			{
				Tool: Tool{
					Driver: Driver{
						Name:    ToolName,
						Version: ToolVersion,
						Rules:   []Rule{},
					},
				},
				Results: []Result{},
			},
		},
	}
}

// FromResults builds a report declaring every rule in rs and one result per
// match in results.
func FromResults(rs *types.RuleSet, results []*types.RuleResult) *Report {
	r := NewReport()
	for _, rule := range rs.Rules() {
		r.AddRule(rule)
	}
	for _, res := range results {
		for _, m := range res.Matches {
			r.AddResult(m)
		}
	}
	return r
}

// AddRule adds a detection rule to the report
func (r *Report) AddRule(rule *types.Rule) {
	r.Runs[0].Tool.Driver.Rules = append(r.Runs[0].Tool.Driver.Rules, Rule{
		ID:   RuleID(rule.Name),
		Name: rule.Name,
		ShortDescription: ShortDescription{
			Text: "Pattern: " + rule.Pattern,
		},
	})
}

// AddResult adds a finding result to the report
func (r *Report) AddResult(match *types.Match) {
	uri := formatFileURI(match.AbsPath)
	if uri == "" {
		uri = formatFileURI(match.RelPath)
	}

	location := PhysicalLocation{
		ArtifactLocation: ArtifactLocation{URI: uri},
		Region: Region{
			ByteOffset: match.Span.Start,
			ByteLength: match.Span.Len(),
			Snippet:    &Snippet{Text: match.Secret},
		},
	}
	if match.Snippet != "" {
		location.ContextRegion = &Region{
			ByteOffset: match.SnippetSpan.Start,
			ByteLength: match.SnippetSpan.Len(),
			Snippet:    &Snippet{Text: match.Snippet},
		}
	}

	result := Result{
		RuleID: RuleID(match.RuleName),
		Level:  "warning",
		Message: Message{
			Text: fmt.Sprintf("%s found in %s", match.RuleName, match.RelPath),
		},
		Locations: []Location{{PhysicalLocation: location}},
	}
	if match.Fingerprint != "" {
		result.PartialFingerprints = map[string]string{"appalyzer/v1": match.Fingerprint}
	}

	r.Runs[0].Results = append(r.Runs[0].Results, result)
}

// ToJSON serializes the report to JSON bytes
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile serializes the report to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding SARIF: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	return nil
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9]+`)

// RuleID derives a stable SARIF rule id from a rule name,
// e.g. "AWS Access Key ID" -> "aws-access-key-id".
func RuleID(name string) string {
	id := strings.Trim(nonIDChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if id == "" {
		return "rule"
	}
	return id
}

// formatFileURI converts a file path to SARIF URI format
// Absolute paths get file:// prefix, relative paths stay as-is
func formatFileURI(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		// Normalize path separators for URI format
		path = filepath.ToSlash(path)
		// Ensure path starts with /
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "file://" + path
	}
	// Relative paths stay as-is
	return filepath.ToSlash(path)
}
