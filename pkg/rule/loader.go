package rule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/appalyzer/pkg/types"
	"gopkg.in/yaml.v3"
)

// ErrMalformedRuleSource is returned when a rule source cannot be parsed as a
// name -> pattern mapping.
var ErrMalformedRuleSource = errors.New("malformed rule source")

// Format identifies the encoding of a rule source.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath guesses the rule source format from a file extension.
// Unknown extensions are treated as JSON, the native rule format.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Loader handles loading rule sets from JSON or YAML sources.
// Patterns are not compiled here; an invalid pattern only fails the rule that
// owns it when the rule is first used.
type Loader struct {
	fs fs.FS // embedded filesystem for built-in rules
}

// NewLoader creates a loader with built-in rules from embedded filesystem.
func NewLoader() *Loader {
	return &Loader{
		fs: builtinRulesFS,
	}
}

// NewLoaderWithFS creates a loader with a custom filesystem for built-in rules.
func NewLoaderWithFS(fsys fs.FS) *Loader {
	return &Loader{
		fs: fsys,
	}
}

// Load parses a rule set from raw bytes in the given format.
func (l *Loader) Load(data []byte, format Format) (*types.RuleSet, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatJSON:
		return parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
}

// LoadFile loads a rule set from a file path.
func (l *Loader) LoadFile(path string) (*types.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	rs, err := l.Load(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// LoadBuiltin loads the default rule set from the embedded filesystem.
func (l *Loader) LoadBuiltin() (*types.RuleSet, error) {
	data, err := fs.ReadFile(l.fs, builtinRulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", builtinRulesPath, err)
	}
	return l.Load(data, FormatJSON)
}

// parseJSON reads a JSON object of name -> pattern pairs, keeping key order.
// encoding/json maps do not preserve order, so the object is walked token by
// token.
func parseJSON(data []byte) (*types.RuleSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRuleSource, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected JSON object of name to pattern", ErrMalformedRuleSource)
	}

	rs := types.NewRuleSet()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRuleSource, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected rule name, got %v", ErrMalformedRuleSource, tok)
		}

		var pattern *string
		if err := dec.Decode(&pattern); err != nil || pattern == nil {
			return nil, fmt.Errorf("%w: rule %q: pattern must be a string", ErrMalformedRuleSource, name)
		}
		rs.Set(strings.TrimSpace(name), *pattern)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRuleSource, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after rule object", ErrMalformedRuleSource)
	}

	return rs, nil
}

// parseYAML accepts either a top-level mapping of name -> pattern or the
// list form with a "rules" key (see yamlRulesFile).
func parseYAML(data []byte) (*types.RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRuleSource, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("%w: empty YAML document", ErrMalformedRuleSource)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected YAML mapping of name to pattern", ErrMalformedRuleSource)
	}

	if isListForm(root) {
		var file yamlRulesFile
		if err := root.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRuleSource, err)
		}
		rs := types.NewRuleSet()
		for i, yr := range file.Rules {
			if strings.TrimSpace(yr.Name) == "" {
				return nil, fmt.Errorf("%w: rule %d has no name", ErrMalformedRuleSource, i)
			}
			rs.Set(strings.TrimSpace(yr.Name), yr.Pattern)
		}
		return rs, nil
	}

	rs := types.NewRuleSet()
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: rule %q: pattern must be a string (line %d)", ErrMalformedRuleSource, key.Value, value.Line)
		}
		rs.Set(strings.TrimSpace(key.Value), value.Value)
	}
	return rs, nil
}

func isListForm(root *yaml.Node) bool {
	return len(root.Content) == 2 &&
		root.Content[0].Value == "rules" &&
		root.Content[1].Kind == yaml.SequenceNode
}
