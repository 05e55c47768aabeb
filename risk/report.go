// Package risk pre-screens shell commands before the UI executes them.
// A cheap heuristic score gates a model-backed check; the model's reply
// is coerced into a structured report by an ordered cascade of parsing
// and repair strategies, because small local models reliably produce
// almost-valid JSON rather than valid JSON.
package risk

import (
	"encoding/json"
	"errors"
	"strings"
)

// Report is a structured pre-flight assessment of one command.
type Report struct {
	Summary         string  `json:"summary"`
	IsRisky         bool    `json:"is_risky"`
	RiskReason      string  `json:"risk_reason"`
	SafeAlternative *string `json:"safe_alternative,omitempty"`
}

// Action is the pipeline's verdict on a command.
type Action string

const (
	ActionRun    Action = "run"
	ActionReview Action = "review"
	ActionError  Action = "error"
)

// Response is the terminal artifact of the analysis pipeline.
type Response struct {
	Action  Action  `json:"action"`
	Report  *Report `json:"report,omitempty"`
	Message *string `json:"message,omitempty"`
	Score   int     `json:"score"`
}

// ErrNoReport is returned when no strategy could produce a report.
var ErrNoReport = errors.New("no parseable report in model reply")

// ParseReport runs the strategy cascade over a raw model reply.
//
// Candidate strings are tried in order: the trimmed reply, the reply
// with code fences stripped, and the first balanced {...} substring.
// Each candidate is parsed strictly, then leniently, then after each
// repair (missing trailing comma, double quotes inside backticks) with
// both parsers, before the next candidate is considered.
func ParseReport(text string) (*Report, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoReport
	}

	seen := make(map[string]bool)
	for _, candidate := range []string{
		trimmed,
		stripCodeFence(trimmed),
		extractBalancedObject(trimmed),
	} {
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true

		if r, ok := parseCandidate(candidate); ok {
			return r, nil
		}
	}

	return nil, ErrNoReport
}

func parseCandidate(candidate string) (*Report, bool) {
	attempts := []string{
		candidate,
		repairMissingCommas(candidate),
		repairBacktickQuotes(candidate),
	}

	for _, attempt := range attempts {
		if r, ok := parseStrict(attempt); ok {
			return r, true
		}
		if r, ok := parseStrict(normalizeLenient(attempt)); ok {
			return r, true
		}
	}
	return nil, false
}

func parseStrict(text string) (*Report, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	var r Report
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, false
	}
	return &r, true
}

// stripCodeFence removes a leading ```json (or bare ```) marker and a
// trailing ``` marker.
func stripCodeFence(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return ""
	}

	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractBalancedObject returns the first brace-balanced {...} span,
// tracking nesting depth across the whole text. String contents are
// respected so braces inside values do not unbalance the span.
func extractBalancedObject(text string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// repairMissingCommas inserts a comma after a `key: value` line when
// the following non-blank line opens another field rather than closing
// a structure.
func repairMissingCommas(text string) string {
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines)-1; i++ {
		line := strings.TrimRight(lines[i], " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !looksLikeFieldLine(trimmed) {
			continue
		}
		if strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, "[") {
			continue
		}

		next := ""
		for j := i + 1; j < len(lines); j++ {
			next = strings.TrimSpace(lines[j])
			if next != "" {
				break
			}
		}
		if next == "" || strings.HasPrefix(next, "}") || strings.HasPrefix(next, "]") {
			continue
		}

		lines[i] = line + ","
	}
	return strings.Join(lines, "\n")
}

func looksLikeFieldLine(line string) bool {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return false
	}
	key := strings.TrimSpace(line[:colon])
	if strings.HasPrefix(key, "\"") && strings.HasSuffix(key, "\"") && len(key) > 1 {
		return true
	}
	// bareword key
	for _, r := range key {
		if !isIdentRune(r) {
			return false
		}
	}
	return key != ""
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// repairBacktickQuotes rewrites double quotes found inside
// backtick-delimited spans to single quotes. Models quote shell
// snippets in backticks and the embedded quotes break the JSON string
// around them.
func repairBacktickQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inBackticks := false
	for _, r := range text {
		switch {
		case r == '`':
			inBackticks = !inBackticks
			b.WriteRune(r)
		case r == '"' && inBackticks:
			b.WriteRune('\'')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
