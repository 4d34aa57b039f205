package rule

import (
	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// CheckResult is the compile outcome of one rule.
type CheckResult struct {
	Name string
	Err  error
}

// Check compiles every rule in rs with the given engine and reports the
// outcome per rule, in rule-set order. It never stops at the first failure.
func Check(rs *types.RuleSet, engine matcher.Engine) []CheckResult {
	results := make([]CheckResult, 0, rs.Len())
	for _, r := range rs.Rules() {
		_, err := matcher.Compile(r.Pattern, engine, 0)
		results = append(results, CheckResult{Name: r.Name, Err: err})
	}
	return results
}

// Invalid returns the failing entries of results.
func Invalid(results []CheckResult) []CheckResult {
	var bad []CheckResult
	for _, r := range results {
		if r.Err != nil {
			bad = append(bad, r)
		}
	}
	return bad
}
