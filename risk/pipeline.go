package risk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wardenterm/warden/metrics"
	"github.com/wardenterm/warden/ollama"
)

const primarySystemPrompt = "You are a shell command security auditor. " +
	"Reply with a single JSON object and nothing else: no prose, no greetings, no markdown. " +
	"The object has the fields \"summary\" (string), \"is_risky\" (boolean), " +
	"\"risk_reason\" (string) and optionally \"safe_alternative\" (string)."

const repairSystemPrompt = "You convert malformed text into valid JSON. " +
	"Reply with the corrected JSON object only."

const fallbackSystemPrompt = "You assess shell commands. Reply with exactly three lines of plain text:\n" +
	"Summary: <one sentence>\n" +
	"Likelihood of maliciousness: <0-100>%\n" +
	"Rationale: <one sentence>"

// Chatter is the single model operation the pipeline depends on.
// *ollama.Client satisfies it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (*ollama.Message, error)
}

// Pipeline runs the full pre-flight decision procedure for one command:
// heuristic gate, primary model call, parse cascade, repair round-trip,
// free-text fallback, decision composition.
type Pipeline struct {
	Chatter Chatter
	Logger  *slog.Logger
}

func NewPipeline(chatter Chatter, logger *slog.Logger) *Pipeline {
	return &Pipeline{Chatter: chatter, Logger: logger}
}

// Analyze always produces a Response. It never blocks a command on
// heuristics alone, and it never silently runs a command the model
// flagged or the pipeline failed to understand.
func (p *Pipeline) Analyze(ctx context.Context, command, model string) Response {
	defer metrics.MeasureSince(analyzeDuration, time.Now())

	command = strings.TrimSpace(command)
	if command == "" {
		return p.done(Response{Action: ActionRun})
	}

	score, reasons := SuspicionScore(command)
	if score < ScoreThreshold {
		p.Logger.Debug("command below suspicion threshold", "score", score)
		return p.done(Response{Action: ActionRun, Score: score})
	}

	reply, err := p.Chatter.Chat(ctx, model, []ollama.Message{
		{Role: "system", Content: primarySystemPrompt},
		{Role: "user", Content: "Assess the following shell command before it is executed:\n\n" + command},
	})
	if err != nil {
		p.Logger.Warn("primary analysis call failed", "error", err)
		msg := err.Error()
		return p.done(Response{Action: ActionError, Message: &msg, Score: score})
	}

	report, source := p.reportFromReply(ctx, command, model, reply.Content)
	reportSources.WithLabelValues(source).Inc()

	return p.done(p.compose(report, reasons, score))
}

// reportFromReply walks the parse cascade and its two model-backed
// escalations. source is one of primary, repair, fallback, none.
func (p *Pipeline) reportFromReply(ctx context.Context, command, model, raw string) (*Report, string) {
	if report, err := ParseReport(raw); err == nil {
		return report, "primary"
	}

	if report := p.repairRoundTrip(ctx, model, raw); report != nil {
		return report, "repair"
	}

	if report := p.fallbackRoundTrip(ctx, command, model); report != nil {
		return report, "fallback"
	}

	return nil, "none"
}

func (p *Pipeline) repairRoundTrip(ctx context.Context, model, raw string) *Report {
	reply, err := p.Chatter.Chat(ctx, model, []ollama.Message{
		{Role: "system", Content: repairSystemPrompt},
		{Role: "user", Content: "Convert this to valid JSON:\n\n" + raw},
	})
	if err != nil {
		p.Logger.Warn("repair call failed", "error", err)
		return nil
	}
	if strings.TrimSpace(reply.Content) == "" {
		return nil
	}

	report, err := ParseReport(reply.Content)
	if err != nil {
		return nil
	}
	return report
}

func (p *Pipeline) fallbackRoundTrip(ctx context.Context, command, model string) *Report {
	reply, err := p.Chatter.Chat(ctx, model, []ollama.Message{
		{Role: "system", Content: fallbackSystemPrompt},
		{Role: "user", Content: "Command: " + command},
	})
	if err != nil {
		p.Logger.Warn("fallback call failed", "error", err)
		return nil
	}

	report, ok := AssessmentTextToReport(reply.Content)
	if !ok {
		return nil
	}
	return report
}

// compose applies the decision table. Heuristic reasons ride along as
// an advisory note no matter which path produced the report.
func (p *Pipeline) compose(report *Report, reasons []string, score int) Response {
	note := heuristicNote(reasons)

	if report == nil {
		msg := "The model reply could not be turned into a structured risk report. Review the command manually."
		if note != "" {
			msg += " " + note
		}
		return Response{Action: ActionReview, Message: &msg, Score: score}
	}

	if report.IsRisky || len(reasons) > 0 {
		resp := Response{Action: ActionReview, Report: report, Score: score}
		if note != "" {
			resp.Message = &note
		}
		return resp
	}

	return Response{Action: ActionRun, Report: report, Score: score}
}

func (p *Pipeline) done(resp Response) Response {
	analyzeOutcomes.WithLabelValues(string(resp.Action)).Inc()
	return resp
}

func heuristicNote(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return "Heuristic signals: " + strings.Join(reasons, "; ") + "."
}
