package ir

// Version constants for the trace schema and engine.
const (
	// TraceVersion is the event log schema version.
	TraceVersion = "1"

	// EngineVersion is the tick runner version.
	EngineVersion = "0.1.0"
)
