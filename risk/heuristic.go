package risk

import (
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Signal weights. Scores are additive and unbounded; a command scoring
// below ScoreThreshold is run without consulting the model at all.
const (
	ScoreThreshold = 10

	scorePrivilegeEscalation = 10
	scorePipeToInterpreter   = 50
	scoreForcedDelete        = 20
	scoreBase64              = 10
	scoreRawSocketDevice     = 30
	scoreIPv4Literal         = 5
)

var (
	pipeToInterpreterRe = regexp.MustCompile(`(curl|wget)[^|]*\|\s*(sudo\s+)?(bash|sh|python)\b`)
	forcedDeleteRe      = regexp.MustCompile(`\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`)
	ipv4Re              = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
)

// SuspicionScore computes the weighted suspicion score for a command
// plus the human-readable reasons for its strong signals. Signals are
// independent; evaluation order never changes the result.
func SuspicionScore(command string) (int, []string) {
	lower := strings.ToLower(command)

	score := 0
	var reasons []string

	if strings.Contains(lower, "sudo") {
		score += scorePrivilegeEscalation
	}
	if pipeToInterpreterRe.MatchString(lower) {
		score += scorePipeToInterpreter
		reasons = append(reasons, "downloads remote content and pipes it into an interpreter")
	}
	if forcedDeleteRe.MatchString(lower) {
		score += scoreForcedDelete
		reasons = append(reasons, "recursively force-deletes files")
	}
	if strings.Contains(lower, "base64") {
		score += scoreBase64
	}
	if strings.Contains(lower, "/dev/tcp") || strings.Contains(lower, "/dev/udp") {
		score += scoreRawSocketDevice
		reasons = append(reasons, "opens a raw TCP/UDP socket via a device file")
	}
	if containsIPv4Token(lower) {
		score += scoreIPv4Literal
	}

	return score, reasons
}

// containsIPv4Token reports whether any token of the command is shaped
// like a dotted-quad address. Tokens come from shell-style splitting; a
// command shlex cannot split (unbalanced quotes) falls back to
// whitespace fields so the signal still fires.
func containsIPv4Token(command string) bool {
	tokens, err := shlex.Split(command)
	if err != nil {
		tokens = strings.Fields(command)
	}

	for _, tok := range tokens {
		for _, part := range strings.FieldsFunc(tok, func(r rune) bool {
			return r == '/' || r == ':' || r == '@'
		}) {
			if ipv4Re.MatchString(part) {
				return true
			}
		}
	}
	return false
}
