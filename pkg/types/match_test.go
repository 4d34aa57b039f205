package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFingerprint(t *testing.T) {
	fp := ComputeFingerprint("/app/config.xml", "api_key=XYZ")

	// SHA-1 hex is 40 chars
	assert.Len(t, fp, 40)
	assert.Equal(t, fp, ComputeFingerprint("/app/config.xml", "api_key=XYZ"), "fingerprint must be stable")
}

func TestComputeFingerprint_DiffersByPathAndSecret(t *testing.T) {
	base := ComputeFingerprint("/app/a.txt", "secret")

	assert.NotEqual(t, base, ComputeFingerprint("/app/b.txt", "secret"))
	assert.NotEqual(t, base, ComputeFingerprint("/app/a.txt", "secret2"))
	// Separator keeps path/secret boundaries distinct
	assert.NotEqual(t,
		ComputeFingerprint("/app/ab", "c"),
		ComputeFingerprint("/app/a", "bc"))
}

func TestRuleStatus_String(t *testing.T) {
	tests := []struct {
		status RuleStatus
		want   string
	}{
		{RuleCompleted, "completed"},
		{RuleError, "error"},
		{RuleTimedOut, "timeout"},
		{RuleStatus(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestRuleResult_Empty(t *testing.T) {
	var nilResult *RuleResult
	assert.True(t, nilResult.Empty())

	assert.True(t, (&RuleResult{RuleName: "r"}).Empty())
	assert.True(t, (&RuleResult{RuleName: "r", Status: RuleError, Err: errors.New("bad")}).Empty())
	assert.False(t, (&RuleResult{RuleName: "r", Matches: []*Match{{Secret: "x"}}}).Empty())
}
