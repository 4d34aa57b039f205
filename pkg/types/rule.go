package types

// Rule is a named detection pattern.
type Rule struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// RuleSet is an ordered collection of rules keyed by name.
// Insertion order is preserved; setting an existing name replaces its
// pattern but keeps its original position.
// A RuleSet is read-only once a scan starts and safe for concurrent reads.
type RuleSet struct {
	order []string
	rules map[string]*Rule
}

// NewRuleSet creates an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: make(map[string]*Rule),
	}
}

// Set adds or replaces the rule with the given name.
func (rs *RuleSet) Set(name, pattern string) {
	if r, ok := rs.rules[name]; ok {
		r.Pattern = pattern
		return
	}
	rs.order = append(rs.order, name)
	rs.rules[name] = &Rule{Name: name, Pattern: pattern}
}

// Get returns the rule with the given name.
func (rs *RuleSet) Get(name string) (*Rule, bool) {
	r, ok := rs.rules[name]
	return r, ok
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.order)
}

// Names returns rule names in insertion order.
func (rs *RuleSet) Names() []string {
	return append([]string(nil), rs.order...)
}

// Rules returns the rules in insertion order.
func (rs *RuleSet) Rules() []*Rule {
	out := make([]*Rule, 0, len(rs.order))
	for _, name := range rs.order {
		out = append(out, rs.rules[name])
	}
	return out
}
