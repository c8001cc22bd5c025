// Package lifecycle owns the trip status transition rules: which actions are
// legal in which status, what the initial status of a new trip is, and how an
// authoritative server record is adopted into local state.
//
// This package never flips a status locally without a server round trip. The
// client may render an overdue affordance optimistically from the deadline
// package, but the persisted transition is always the server's decision,
// adopted through Adopt. That keeps local state from diverging from the
// authoritative record when two execution contexts race.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/waymark-app/waymark/internal/domain"
)

// Action is a user- or scheduler-initiated safety action on a trip.
type Action string

const (
	ActionStart    Action = "start"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionExtend   Action = "extend"
	ActionCancel   Action = "cancel"
)

// InitialStatus returns the status a freshly created trip carries: planned
// when its start is in the future, active when it starts immediately.
func InitialStatus(start, now time.Time) domain.Status {
	if start.After(now) {
		return domain.StatusPlanned
	}
	return domain.StatusActive
}

// Permitted checks whether the action is legal for the trip right now. A
// violation returns domain.ErrNotPermitted (wrapped with the reason) before
// any network attempt is made.
func Permitted(t domain.TripRecord, a Action, now time.Time) error {
	switch a {
	case ActionStart:
		if t.Status != domain.StatusPlanned {
			return fmt.Errorf("lifecycle: start requires a planned trip, have %s: %w", t.Status, domain.ErrNotPermitted)
		}
		if t.Start.After(now) {
			return fmt.Errorf("lifecycle: start time has not passed: %w", domain.ErrNotPermitted)
		}
	case ActionCheckIn:
		if !inProgressPastStart(t.Status) {
			return fmt.Errorf("lifecycle: check-in requires an active trip, have %s: %w", t.Status, domain.ErrNotPermitted)
		}
		if t.CheckinToken == nil {
			return fmt.Errorf("lifecycle: no checkin token present: %w", domain.ErrNotPermitted)
		}
	case ActionCheckOut:
		if !inProgressPastStart(t.Status) {
			return fmt.Errorf("lifecycle: check-out requires an active trip, have %s: %w", t.Status, domain.ErrNotPermitted)
		}
		if t.CheckoutToken == nil {
			return fmt.Errorf("lifecycle: no checkout token present: %w", domain.ErrNotPermitted)
		}
	case ActionExtend:
		if !inProgressPastStart(t.Status) {
			return fmt.Errorf("lifecycle: extend requires an active trip, have %s: %w", t.Status, domain.ErrNotPermitted)
		}
	case ActionCancel:
		if !t.Status.InProgress() {
			return fmt.Errorf("lifecycle: cancel requires an in-progress trip, have %s: %w", t.Status, domain.ErrNotPermitted)
		}
	default:
		return fmt.Errorf("lifecycle: unknown action %q: %w", a, domain.ErrNotPermitted)
	}
	return nil
}

// inProgressPastStart is the started, non-terminal superset: the states in
// which check-in, check-out, and extend are meaningful.
func inProgressPastStart(s domain.Status) bool {
	switch s {
	case domain.StatusActive, domain.StatusOverdue, domain.StatusOverdueNotified:
		return true
	default:
		return false
	}
}

// Adopt merges an authoritative server record over the local one and
// normalizes invariants the data model promises:
//
//   - terminal states are sticky: once the local record is completed or
//     cancelled, a stale in-progress response cannot resurrect it;
//   - capability tokens are nil once the trip is terminal;
//   - completedAt is present only when the status is completed.
//
// Adopt is the single path by which a status change becomes local truth.
func Adopt(local, authoritative domain.TripRecord) domain.TripRecord {
	if local.ID != 0 && local.Status.Terminal() && !authoritative.Status.Terminal() {
		return local
	}
	out := authoritative
	if out.Status.Terminal() {
		out.CheckinToken = nil
		out.CheckoutToken = nil
	}
	if out.Status != domain.StatusCompleted {
		out.CompletedAt = nil
	}
	return out
}
