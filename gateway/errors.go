// Copyright 2026 The Januskit Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors. Programming errors (double open, operating on a
// destroyed entity, duplicate transaction id) fail fast without a
// network round trip; cascade errors carry a stable reason string so a
// caller blocked on a request during teardown gets a rejection, never
// a hang.
var (
	// ErrClosed is returned by operations on a connection that is not
	// open.
	ErrClosed = errors.New("gateway: connection closed")

	// ErrSessionNotAvailable is returned by operations on a destroyed
	// session, and closes the session's pending transactions during
	// teardown.
	ErrSessionNotAvailable = errors.New("gateway: session not available")

	// ErrHandleNotAvailable is returned by operations on a detached
	// handle, and closes the handle's pending transactions during
	// teardown.
	ErrHandleNotAvailable = errors.New("gateway: handle not available")

	// ErrSessionTimeout reports a failed keepalive health check or a
	// server-announced session timeout.
	ErrSessionTimeout = errors.New("gateway: session timed out")

	// ErrTransactionConflict reports a duplicate transaction id, which
	// can only happen if a caller bypasses the id generator.
	ErrTransactionConflict = errors.New("gateway: transaction id already pending")

	// ErrNotAdmin is returned by admin API calls on a connection whose
	// config does not set Admin.
	ErrNotAdmin = errors.New("gateway: connection is not in admin mode")
)

// ServerError is a structured error frame from the gateway. Callers
// can use errors.As to extract the code:
//
//	var serverErr *gateway.ServerError
//	if errors.As(err, &serverErr) {
//	    if serverErr.Code == gateway.ErrorCodeSessionNotFound { ... }
//	}
type ServerError struct {
	// Code is the numeric Janus error code.
	Code int `json:"code"`
	// Reason is the human-readable description from the gateway.
	Reason string `json:"reason"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("janus: error %d: %s", e.Code, e.Reason)
}

// Core gateway error codes (the gateway's own, not plugin-specific).
const (
	ErrorCodeUnauthorized     = 403
	ErrorCodeUnknownRequest   = 453
	ErrorCodeSessionNotFound  = 458
	ErrorCodeHandleNotFound   = 459
	ErrorCodePluginNotFound   = 460
	ErrorCodePluginAttach     = 461
	ErrorCodePluginMessage    = 462
	ErrorCodePluginDetach     = 463
	ErrorCodeSessionConflict  = 468
	ErrorCodeTokenNotFound    = 470
)

// IsServerError checks whether err is a *ServerError with the given
// code.
func IsServerError(err error, code int) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code == code
	}
	return false
}
