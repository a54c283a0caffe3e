// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Command attributes
	CommandKindKey   = "command.kind"
	CommandResultKey = "command.result"
	CommandClientKey = "command.from_client"
	SessionKeyKey    = "session.key"

	// Worker attributes
	WorkerPIDKey       = "worker.pid"
	WorkerMediaTypeKey = "worker.media_type"
	WorkerReusedKey    = "worker.reused"

	// Await attributes
	AwaitOutcomeKey = "await.outcome"
	AwaitEventKey   = "await.event"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CommandAttributes describes a command entering the scheduler.
// An empty session key (first open) is omitted.
func CommandAttributes(kind, sessionKey string, fromClient bool) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs,
		attribute.String(CommandKindKey, kind),
		attribute.Bool(CommandClientKey, fromClient),
	)
	if sessionKey != "" {
		attrs = append(attrs, attribute.String(SessionKeyKey, sessionKey))
	}
	return attrs
}

// WorkerAttributes describes the worker a command was bound to.
func WorkerAttributes(pid int, mediaType string, reused bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(WorkerPIDKey, pid),
		attribute.String(WorkerMediaTypeKey, mediaType),
		attribute.Bool(WorkerReusedKey, reused),
	}
}

// AwaitAttributes records how a suspension point resolved.
func AwaitAttributes(outcome, event string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AwaitOutcomeKey, outcome),
		attribute.String(AwaitEventKey, event),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
