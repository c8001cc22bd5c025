// Package reconcile re-derives local trip state from the authoritative
// server. It is the only component that treats a TripRecord as true, and the
// only consumer of mailbox intents: a confirmation flag buys immediate UI
// feedback, but a status change becomes local truth solely through a fresh
// authoritative fetch. A pass never reports a safety-critical success that
// is not backed by one.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
	"github.com/waymark-app/waymark/internal/events"
	"github.com/waymark-app/waymark/internal/lifecycle"
	"github.com/waymark-app/waymark/internal/mailbox"
)

// Fetcher is the authoritative-state source the reconciler depends on.
// *gateway.Gateway satisfies it; tests inject a double.
type Fetcher interface {
	Active(ctx context.Context) ([]domain.TripRecord, error)
}

// Reconciler owns the primary process's in-memory trip records and keeps
// them aligned with the server. The action context never touches these; it
// only leaves breadcrumbs in the mailbox.
type Reconciler struct {
	box   mailbox.Store
	fetch Fetcher
	bus   *events.Dispatcher
	clock clock.Clock
	log   *slog.Logger

	mu    sync.RWMutex
	trips map[int64]domain.TripRecord
}

// New constructs a Reconciler. bus may be nil when no UI is attached (the
// action-context binary never constructs one; only the daemon does).
func New(box mailbox.Store, fetch Fetcher, bus *events.Dispatcher, clk clock.Clock, log *slog.Logger) *Reconciler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		box:   box,
		fetch: fetch,
		bus:   bus,
		clock: clk,
		log:   log,
		trips: make(map[int64]domain.TripRecord),
	}
}

// Trips returns the current local records, ordered by id. Read-only derived
// values for the presentation layer are recomputed from these on a timer.
func (r *Reconciler) Trips() []domain.TripRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TripRecord, 0, len(r.trips))
	for _, t := range r.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run performs one reconciliation pass:
//
//  1. read the mailbox intents;
//  2. a confirmation is trusted only as a hint; the authoritative state is
//     still re-fetched rather than flipped locally;
//  3. a pending intent with no confirmation is an unknown outcome: neither
//     success nor failure is assumed, the re-fetch reflects whatever
//     actually happened (idempotent tokens make that safe mid-flight);
//  4. the keys read are cleared exactly once, regardless of outcome, so a
//     stale intent never leaks into a later unrelated pass.
//
// Run is idempotent; running it zero, one, or many times for one intent
// converges to the same state. The caller bounds execution time through ctx.
func (r *Reconciler) Run(ctx context.Context) error {
	intents, readKeys, err := mailbox.ReadIntents(ctx, r.box)
	if err != nil {
		return fmt.Errorf("reconcile.Reconciler.Run: read mailbox: %w", err)
	}

	for _, in := range intents {
		if in.ConfirmedAt != nil {
			// Hint only; the fetch below decides what actually happened.
			r.log.Info("action confirmed by secondary context",
				"kind", string(in.Kind), "confirmed_at", in.ConfirmedAt)
		} else {
			r.log.Info("action outcome unknown, deferring to server",
				"kind", string(in.Kind), "pending_since", in.PendingSince)
		}
	}

	fetched, fetchErr := r.fetch.Active(ctx)

	// Consume the intents exactly once whether or not the fetch worked.
	// Intents are hints, not state: the periodic trigger re-fetches
	// regardless, so dropping them loses nothing, while leaving them
	// would leak a stale intent into a later unrelated pass.
	if len(readKeys) > 0 {
		if err := r.box.Clear(ctx, readKeys...); err != nil {
			return fmt.Errorf("reconcile.Reconciler.Run: clear mailbox: %w", err)
		}
	}

	if fetchErr != nil {
		return fmt.Errorf("reconcile.Reconciler.Run: fetch: %w", fetchErr)
	}

	r.replace(fetched)

	if r.bus != nil {
		r.bus.Publish(events.Event{
			Kind:  events.KindTripsReconciled,
			At:    r.clock.Now(),
			Trips: r.Trips(),
		})
	}
	return nil
}

// Adopt folds a single authoritative record (e.g. an action response) into
// local state without a full pass.
func (r *Reconciler) Adopt(t domain.TripRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[t.ID] = lifecycle.Adopt(r.trips[t.ID], t)
}

// replace swaps local state for the authoritative fetch result. Terminal
// records drop out of the in-progress set here; the server remains the
// system of record for history.
func (r *Reconciler) replace(fetched []domain.TripRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[int64]domain.TripRecord, len(fetched))
	for _, t := range fetched {
		next[t.ID] = lifecycle.Adopt(r.trips[t.ID], t)
	}
	r.trips = next
}

// Loop runs passes on the three triggers: foreground entry and wake signals
// (delivered through trigger), and the periodic opportunity every interval.
// Each pass gets a bounded child context. Loop returns when ctx is done.
func (r *Reconciler) Loop(ctx context.Context, trigger <-chan struct{}, interval, passBudget time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
		case <-ticker.C:
		}
		passCtx, cancel := context.WithTimeout(ctx, passBudget)
		if err := r.Run(passCtx); err != nil {
			r.log.Warn("reconciliation pass failed", "error", err)
		}
		cancel()
	}
}
