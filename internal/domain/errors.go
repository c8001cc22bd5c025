package domain

import "errors"

// ErrInvalidInput is returned when an action's input fails local validation
// (empty token, non-positive minutes). It is rejected before any network
// call and is never retried.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotPermitted is returned when an action is requested while the trip is
// not in a state that permits it (e.g. check-in with no checkin token).
// Like ErrInvalidInput it is rejected locally, before any network attempt.
var ErrNotPermitted = errors.New("action not permitted")

// ErrServerRejected is returned when the server definitively rejects an
// action (non-2xx, or a 2xx body with ok=false, e.g. token already used or
// trip not found). Retrying a definitively rejected idempotent action only
// wastes the execution budget, so it is surfaced immediately.
var ErrServerRejected = errors.New("server rejected action")

// ErrTransport is returned after the gateway has exhausted its retry budget
// against a timeout or connectivity failure.
var ErrTransport = errors.New("transport failure")

// ErrDecode is returned when the server response body cannot be parsed.
// For safety-action purposes this is a failure even though the HTTP call
// nominally succeeded: the caller cannot trust an unparseable result.
var ErrDecode = errors.New("undecodable response")

// ErrSessionExpired is returned when the bearer credential has expired and
// an authenticated call would be rejected anyway.
var ErrSessionExpired = errors.New("session expired")
