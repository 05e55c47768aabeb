package server

import (
	"context"

	"github.com/pborman/ansi"

	"github.com/wardenterm/warden"
	"github.com/wardenterm/warden/ollama"
)

// askModel streams one assistant exchange, publishing each chunk on
// the assistant topic. Transport failures surface as a final errored
// chunk; the stream always terminates with done.
func (s *Server) askModel(ctx context.Context, req warden.AskRequest) {
	em := s.Emitter()

	var messages []ollama.Message
	if req.PersonaPrompt != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.PersonaPrompt})
	}
	if req.SystemPrompt != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: s.userPrompt(req)})

	err := s.Ollama.ChatStream(ctx, req.Model, messages, func(chunk ollama.Chunk) error {
		out := warden.AssistantChunk{Done: chunk.Done, Error: chunk.Error}
		if chunk.Error != "" {
			out.Done = true
		}
		if chunk.Message != nil {
			out.Content = chunk.Message.Content
		}
		<-em.Emit(warden.EventAssistantChunk, out)
		return nil
	})
	if err != nil {
		s.Logger.Warn("assistant stream failed", "error", err)
		<-em.Emit(warden.EventAssistantChunk, warden.AssistantChunk{Done: true, Error: err.Error()})
	}
}

// userPrompt prefixes the prompt with recent terminal output when the
// request names a session or carries explicit context. Escape
// sequences are stripped so the model sees text, not control bytes.
func (s *Server) userPrompt(req warden.AskRequest) string {
	context := req.TerminalContext
	if context == "" && req.SessionID != "" {
		snap, err := s.Registry.Snapshot(req.SessionID)
		if err == nil {
			lines := req.MaxLines
			if lines <= 0 {
				lines = defaultContextLines
			}
			context = snap.LastLines(lines)
		}
	}
	if context == "" {
		return req.Prompt
	}

	if stripped, err := ansi.Strip([]byte(context)); err == nil {
		context = string(stripped)
	}
	return "Recent terminal output:\n" + context + "\n\nUser request:\n" + req.Prompt
}
