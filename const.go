package warden

const (
	// event topics published on the bridge's emitter
	EventTerminalOutput = "terminal-output"
	EventAssistantChunk = "assistant-chunk"

	// model server defaults
	DefaultOllamaHost = "http://127.0.0.1:11434"
	DefaultModel      = "llama3"

	// terminal type advertised to spawned shells
	TermType = "xterm-256color"

	// env var the GUI shell reads to find the bridge
	BridgeTokenEnvVar = "WARDEN_BRIDGE_TOKEN"
	BridgeAddrEnvVar  = "WARDEN_BRIDGE_ADDR"
)
