// Package mailbox is the persisted, process-shared handoff area between the
// primary process and the short-lived action context. It carries action
// intent and confirmation only; it is not a cache of trip data.
//
// Entries are set-once-then-clear, never incrementally mutated, so the two
// processes need no cross-process locking beyond what the backing store
// already provides. Writes by the action context happen-before its wake
// signal is sent; across processes no ordering is guaranteed, which is why
// reconciliation must be (and is) idempotent.
package mailbox

import (
	"context"
	"time"

	"github.com/waymark-app/waymark/internal/domain"
)

// Key names one mailbox slot.
type Key string

const (
	// KeyPendingCheckIn is set by the action context immediately before a
	// check-in network attempt. Its presence with no confirmation means
	// the outcome is unknown, not failed.
	KeyPendingCheckIn Key = "pending_check_in"

	// KeyPendingCheckOut is the check-out counterpart of KeyPendingCheckIn.
	KeyPendingCheckOut Key = "pending_check_out"

	// KeyCheckInConfirmed is set only after the gateway reports check-in
	// success. It is a latency optimization for the next reconciliation,
	// never a substitute for the authoritative fetch.
	KeyCheckInConfirmed Key = "check_in_confirmed"

	// KeyActiveTripSnapshot holds the small display snapshot the action
	// surface renders. A successful check-out clears it so the surface
	// stops showing an active trip before the primary process wakes.
	KeyActiveTripSnapshot Key = "active_trip_snapshot"
)

// IntentKeys are the slots reconciliation consumes, in read order.
var IntentKeys = []Key{KeyPendingCheckIn, KeyPendingCheckOut, KeyCheckInConfirmed}

// Entry is one mailbox slot's value: an opaque payload (capability token or
// snapshot JSON) and the instant it was set.
type Entry struct {
	Key   Key
	Value string
	SetAt time.Time
}

// Store is the persistence contract for the mailbox. Implementations must
// be safe for use from concurrently running processes; Set overwrites,
// Clear of an absent key is a no-op.
type Store interface {
	Set(ctx context.Context, e Entry) error
	Get(ctx context.Context, k Key) (Entry, bool, error)
	Clear(ctx context.Context, keys ...Key) error
}

// ReadIntents assembles the ActionIntents currently recorded in the store.
// A pending slot yields one intent; the confirmation slot, when present,
// attaches to the check-in intent (or stands alone if the pending marker
// was already lost, which reconciliation treats the same way).
func ReadIntents(ctx context.Context, s Store) ([]domain.ActionIntent, []Key, error) {
	var (
		intents []domain.ActionIntent
		read    []Key
	)

	var confirmed *Entry
	if e, ok, err := s.Get(ctx, KeyCheckInConfirmed); err != nil {
		return nil, nil, err
	} else if ok {
		confirmed = &e
		read = append(read, KeyCheckInConfirmed)
	}

	if e, ok, err := s.Get(ctx, KeyPendingCheckIn); err != nil {
		return nil, nil, err
	} else if ok {
		in := domain.ActionIntent{Kind: domain.IntentCheckIn, Token: e.Value, PendingSince: e.SetAt}
		if confirmed != nil {
			at := confirmed.SetAt
			in.ConfirmedAt = &at
			confirmed = nil
		}
		intents = append(intents, in)
		read = append(read, KeyPendingCheckIn)
	}

	if e, ok, err := s.Get(ctx, KeyPendingCheckOut); err != nil {
		return nil, nil, err
	} else if ok {
		intents = append(intents, domain.ActionIntent{Kind: domain.IntentCheckOut, Token: e.Value, PendingSince: e.SetAt})
		read = append(read, KeyPendingCheckOut)
	}

	// Confirmation with no pending marker: the attempt succeeded but the
	// pending slot was consumed or lost. Still an intent worth refreshing.
	if confirmed != nil {
		at := confirmed.SetAt
		intents = append(intents, domain.ActionIntent{
			Kind:         domain.IntentCheckIn,
			Token:        confirmed.Value,
			PendingSince: confirmed.SetAt,
			ConfirmedAt:  &at,
		})
	}

	return intents, read, nil
}
