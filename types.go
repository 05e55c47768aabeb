package warden

import "encoding/json"

// EventFrame is one server-to-client message on the events socket.
type EventFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// AskRequest is the client-to-server frame that starts a streamed
// assistant exchange. TerminalContext, when empty, is resolved from
// SessionID's snapshot by the bridge.
type AskRequest struct {
	Type            string `json:"type"`
	Prompt          string `json:"prompt"`
	Model           string `json:"model,omitempty"`
	SystemPrompt    string `json:"system_prompt,omitempty"`
	PersonaPrompt   string `json:"persona_prompt,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	MaxLines        int    `json:"max_lines,omitempty"`
	TerminalContext string `json:"terminal_context,omitempty"`
}

// AssistantChunk is one incremental piece of a streamed assistant
// reply.
type AssistantChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}
