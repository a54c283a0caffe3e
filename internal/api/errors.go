// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/playerd/internal/command"
)

// resultResponse is the body of every session endpoint.
type resultResponse struct {
	Result  string `json:"result"`
	MediaID int    `json:"mediaId,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, res command.Result, mediaID int, payload any) {
	writeJSON(w, statusFor(res), resultResponse{Result: res.String(), MediaID: mediaID, Payload: payload})
}

func writeInvalid(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, resultResponse{Result: command.InvalidArgument.String(), Error: msg})
}

// statusFor maps a command result to its HTTP status.
func statusFor(res command.Result) int {
	switch res {
	case command.OK:
		return http.StatusOK
	case command.InvalidArgument:
		return http.StatusBadRequest
	case command.UnknownSession:
		return http.StatusNotFound
	case command.Busy:
		return http.StatusTooManyRequests
	case command.BackendUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
