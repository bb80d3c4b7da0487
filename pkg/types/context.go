package types

// contextKey is a private type for context values set by this module,
// so keys cannot collide with other packages.
type contextKey string

// Context keys carried through the pipeline and read by telemetry.
const (
	// ContextKeyUserID is the user a request acts on behalf of.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeySessionID groups requests from one client session.
	ContextKeySessionID contextKey = "session_id"
	// ContextKeyRequestSource says which surface issued the request
	// (server, cli, mcp).
	ContextKeyRequestSource contextKey = "request_source"
	// ContextKeyIngestionSource is the narrative source being ingested.
	ContextKeyIngestionSource contextKey = "ingestion_source"
	// ContextKeySystemCall is true for internal maintenance calls.
	ContextKeySystemCall contextKey = "system_call"
	// ContextKeyUsage labels what a model call is for, used for
	// routing and cost attribution.
	ContextKeyUsage contextKey = "usage"
)
