package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessmentTextToReport_HighLikelihood(t *testing.T) {
	text := `Summary: Pipes a remote script into a root shell.
Likelihood of maliciousness: 85%
Rationale: Executes unreviewed remote code with privileges.`

	r, ok := AssessmentTextToReport(text)
	require.True(t, ok)
	assert.True(t, r.IsRisky)
	assert.Equal(t, "Pipes a remote script into a root shell.", r.Summary)
	assert.Contains(t, r.RiskReason, "high risk")
}

func TestAssessmentTextToReport_VeryLowLikelihood(t *testing.T) {
	text := `Summary: Lists files in a directory.
Likelihood of maliciousness: 5%
Rationale: Read only operation.`

	r, ok := AssessmentTextToReport(text)
	require.True(t, ok)
	assert.False(t, r.IsRisky)
	assert.Contains(t, r.RiskReason, "very low risk")
}

func TestAssessmentTextToReport_Labels(t *testing.T) {
	tests := []struct {
		percent string
		label   string
		risky   bool
	}{
		{"70%", "high risk", true},
		{"40%", "medium risk", true},
		{"15%", "low risk", false},
		{"19%", "low risk", false},
		{"20%", "low risk", true},
		{"14%", "very low risk", false},
	}
	for _, tt := range tests {
		r, ok := AssessmentTextToReport("Summary: s\nLikelihood of maliciousness: " + tt.percent + "\nRationale: r")
		require.True(t, ok, tt.percent)
		assert.Contains(t, r.RiskReason, tt.label, tt.percent)
		assert.Equal(t, tt.risky, r.IsRisky, tt.percent)
	}
}

func TestAssessmentTextToReport_MissingLikelihoodFailsSafe(t *testing.T) {
	r, ok := AssessmentTextToReport("Summary: something\nRationale: could not tell")
	require.True(t, ok)
	assert.True(t, r.IsRisky, "unknown likelihood must default to risky")
	assert.Contains(t, r.RiskReason, "risk level unknown")
}

func TestAssessmentTextToReport_RecommendationBecomesAlternative(t *testing.T) {
	text := `Summary: s
Likelihood of maliciousness: 90%
Rationale: r
Recommendation: download the script first and inspect it`

	r, ok := AssessmentTextToReport(text)
	require.True(t, ok)
	require.NotNil(t, r.SafeAlternative)
	assert.Equal(t, "download the script first and inspect it", *r.SafeAlternative)
}

func TestAssessmentTextToReport_SanitizesFencesAndEcho(t *testing.T) {
	text := "```\nCommand: rm -rf /\nSummary: catastrophic\nLikelihood of maliciousness: 99%\nRationale: gone\n```"

	r, ok := AssessmentTextToReport(text)
	require.True(t, ok)
	assert.Equal(t, "catastrophic", r.Summary)
	assert.True(t, r.IsRisky)
}

func TestAssessmentTextToReport_Empty(t *testing.T) {
	_, ok := AssessmentTextToReport("   \n  ")
	assert.False(t, ok)
}
