// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package models

import "net/http"

// FailureKind classifies a failed remote call once it has been normalized at
// the RPC boundary. Core logic switches on the kind, never on transport
// details.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureNotFound     FailureKind = "not_found"
	FailureValidation   FailureKind = "validation"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureUnknown      FailureKind = "unknown"
)

// RPCResult is the uniform shape every heterogeneous remote response is
// folded into before the sync engine inspects it.
type RPCResult struct {
	OK         bool        `json:"success"`
	StatusCode int         `json:"status_code,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
	Message    string      `json:"error,omitempty"`
}

// RPCSuccess builds a successful result.
func RPCSuccess(statusCode int) RPCResult {
	return RPCResult{OK: true, StatusCode: statusCode}
}

// RPCFailure builds a failed result, classifying the kind from the HTTP
// status code when one is available.
func RPCFailure(statusCode int, message string) RPCResult {
	return RPCResult{
		OK:         false,
		StatusCode: statusCode,
		Kind:       classifyStatus(statusCode),
		Message:    message,
	}
}

// NotFound reports whether the failure is the terminal "remote object is
// already gone" case, which the sync engine treats as success-for-cleanup.
func (r RPCResult) NotFound() bool {
	return !r.OK && r.Kind == FailureNotFound
}

// Retryable reports whether the failure is worth retrying within a drain.
// Validation and auth failures will not improve by retrying; not-found is
// terminal by definition.
func (r RPCResult) Retryable() bool {
	if r.OK {
		return false
	}
	switch r.Kind {
	case FailureNotFound, FailureValidation, FailureUnauthorized:
		return false
	default:
		return true
	}
}

func classifyStatus(statusCode int) FailureKind {
	switch {
	case statusCode == http.StatusNotFound:
		return FailureNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return FailureUnauthorized
	case statusCode >= 400 && statusCode < 500:
		return FailureValidation
	default:
		return FailureUnknown
	}
}
