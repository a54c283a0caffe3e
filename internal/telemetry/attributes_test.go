// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/api/v1/sessions", 200)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "POST")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/sessions")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestCommandAttributes(t *testing.T) {
	tests := []struct {
		name       string
		sessionKey string
		wantLen    int
	}{
		{name: "bound session", sessionKey: "a1b2", wantLen: 3},
		{name: "first open", sessionKey: "", wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := CommandAttributes("play", tt.sessionKey, true)
			if len(attrs) != tt.wantLen {
				t.Fatalf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			verifyAttribute(t, attrs, CommandKindKey, "play")
			verifyBoolAttribute(t, attrs, CommandClientKey, true)
			if tt.sessionKey != "" {
				verifyAttribute(t, attrs, SessionKeyKey, tt.sessionKey)
			}
		})
	}
}

func TestWorkerAttributes(t *testing.T) {
	attrs := WorkerAttributes(4242, "video", true)

	verifyIntAttribute(t, attrs, WorkerPIDKey, 4242)
	verifyAttribute(t, attrs, WorkerMediaTypeKey, "video")
	verifyBoolAttribute(t, attrs, WorkerReusedKey, true)
}

func TestAwaitAttributes(t *testing.T) {
	attrs := AwaitAttributes("timeout", "timeout")
	verifyAttribute(t, attrs, AwaitOutcomeKey, "timeout")
	verifyAttribute(t, attrs, AwaitEventKey, "timeout")
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "backend_unreachable")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}
	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "backend_unreachable")
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Attribute %s: expected %q, got %q", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Attribute %s: expected %d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Attribute %s: expected %v, got %v", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
