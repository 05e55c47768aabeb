package risk

import (
	"regexp"
	"strings"
)

// Likelihood at or above this percentage marks the command risky in
// the free-text fallback path.
const riskyLikelihoodThreshold = 20

var likelihoodRe = regexp.MustCompile(`(\d{1,3})\s*%`)

// AssessmentTextToReport extracts a report from the plain-text fallback
// assessment ("Summary: ...", "Likelihood of maliciousness: N%",
// "Rationale: ..."). When no likelihood can be extracted the command is
// treated as risky; an unreadable assessment must not wave a command
// through.
func AssessmentTextToReport(text string) (*Report, bool) {
	lines := sanitizeAssessment(text)
	if len(lines) == 0 {
		return nil, false
	}

	var (
		summary     string
		rationale   string
		alternative string
		likelihood  = -1
	)

	for _, line := range lines {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "summary:"):
			summary = strings.TrimSpace(line[len("summary:"):])
		case strings.Contains(lower, "likelihood"):
			if m := likelihoodRe.FindStringSubmatch(line); m != nil {
				likelihood = atoiClamp(m[1])
			}
		case strings.HasPrefix(lower, "rationale:"):
			rationale = strings.TrimSpace(line[len("rationale:"):])
		case strings.HasPrefix(lower, "recommendation:"):
			alternative = strings.TrimSpace(line[len("recommendation:"):])
		case strings.HasPrefix(lower, "mitigation:"):
			alternative = strings.TrimSpace(line[len("mitigation:"):])
		case summary == "":
			// a model that drops the label usually leads with the
			// summary sentence
			summary = line
		}
	}

	if summary == "" && rationale == "" && likelihood < 0 {
		return nil, false
	}

	report := &Report{
		Summary:    summary,
		IsRisky:    likelihood < 0 || likelihood >= riskyLikelihoodThreshold,
		RiskReason: appendRiskLabel(rationale, likelihood),
	}
	if alternative != "" {
		report.SafeAlternative = &alternative
	}
	return report, true
}

// sanitizeAssessment strips code fences, echoed prompt lines and
// leading chat labels from the model reply.
func sanitizeAssessment(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		for _, label := range []string{"assistant:", "answer:", "response:"} {
			if strings.HasPrefix(strings.ToLower(line), label) {
				line = strings.TrimSpace(line[len(label):])
			}
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "command:") || strings.HasPrefix(lower, "assess the following") {
			continue
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func appendRiskLabel(rationale string, likelihood int) string {
	label := "risk level unknown"
	switch {
	case likelihood < 0:
		// keep the unknown label
	case likelihood >= 70:
		label = "high risk"
	case likelihood >= 40:
		label = "medium risk"
	case likelihood >= 15:
		label = "low risk"
	default:
		label = "very low risk"
	}

	if rationale == "" {
		return label
	}
	return rationale + " (" + label + ")"
}

func atoiClamp(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	if n > 100 {
		n = 100
	}
	return n
}
