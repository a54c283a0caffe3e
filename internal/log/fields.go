// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionKey    = "session_key"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldPID           = "pid"
	FieldMediaID       = "media_id"

	// Command / scheduler fields
	FieldCommand   = "command"
	FieldResult    = "result"
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSuccess   = "success_mask"
	FieldFailure   = "failure_mask"

	// Media fields
	FieldMediaType = "media_type"
	FieldURI       = "uri"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
