// Package domain contains the core data types for the Waymark safety app.
// This package has no dependencies on other internal packages and is
// imported by every other layer (deadline, lifecycle, gateway, reconcile).
package domain

import (
	"encoding/json"
	"time"
)

// Status is the safety state of a trip. It is a closed set: every value the
// rest of the codebase sees is one of the constants below. Unrecognized
// server strings collapse to StatusUnknown at the JSON decode boundary and
// nowhere else, so internal logic never handles an open-ended string space.
type Status string

const (
	// StatusPlanned is a trip scheduled for the future, not yet started.
	StatusPlanned Status = "planned"
	// StatusActive is a trip in progress, before its eta.
	StatusActive Status = "active"
	// StatusOverdue is past eta but within the grace period; safety
	// contacts have not been notified yet.
	StatusOverdue Status = "overdue"
	// StatusOverdueNotified is past eta plus grace; the server has
	// notified the user's safety contacts.
	StatusOverdueNotified Status = "overdue_notified"
	// StatusCompleted is the terminal success state, set by check-out.
	StatusCompleted Status = "completed"
	// StatusCancelled is the terminal user-abandoned state.
	StatusCancelled Status = "cancelled"
	// StatusUnknown is produced only when decoding a server value this
	// build does not recognize. It is never sent back to the server.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a raw server string to a Status, collapsing anything
// unrecognized to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPlanned, StatusActive, StatusOverdue, StatusOverdueNotified,
		StatusCompleted, StatusCancelled:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// UnmarshalJSON decodes a status string through ParseStatus so a newer
// server can introduce states without breaking older clients.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

// InProgress reports whether the trip is in the non-terminal superset
// (planned, active, overdue, or overdue-notified).
func (s Status) InProgress() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusOverdue, StatusOverdueNotified:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ContactsNotified reports whether safety contacts have been notified.
// This is exactly equivalent to the trip being overdue-notified.
func (s Status) ContactsNotified() bool {
	return s == StatusOverdueNotified
}

// TripRecord is the canonical representation of one safety trip. The server
// is the single source of truth; local copies are replaced wholesale from
// authoritative responses, never mutated field-by-field on speculation.
type TripRecord struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Title    string `json:"title"`
	Activity string `json:"activity"`

	Start        time.Time `json:"start"`
	ETA          time.Time `json:"eta"`
	GraceMinutes int       `json:"grace_minutes"`

	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastCheckin *time.Time `json:"last_checkin,omitempty"`

	// Single-use capability tokens. Presence implies the corresponding
	// action is currently permitted; the server clears them once consumed
	// or once the trip reaches a terminal state.
	CheckinToken  *string `json:"checkin_token,omitempty"`
	CheckoutToken *string `json:"checkout_token,omitempty"`

	CheckinIntervalMinutes int `json:"checkin_interval_minutes"`

	// Optional notification window (local hours 0-23). Both nil means
	// notifications are unrestricted.
	NotifyStartHour *int `json:"notify_start_hour,omitempty"`
	NotifyEndHour   *int `json:"notify_end_hour,omitempty"`
}

// IntentKind names the safety action a secondary context attempted.
type IntentKind string

const (
	IntentCheckIn  IntentKind = "check_in"
	IntentCheckOut IntentKind = "check_out"
)

// ActionIntent is the ephemeral record "a secondary context attempted action
// Kind with Token at PendingSince". It lives only in the cross-process
// mailbox and is consumed exactly once by reconciliation, whether or not
// ConfirmedAt is present.
type ActionIntent struct {
	Kind         IntentKind
	Token        string
	PendingSince time.Time
	ConfirmedAt  *time.Time
}
