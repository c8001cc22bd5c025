// Package quickaction is the secondary execution context's half of the
// cross-process protocol. It runs in a short-lived process with a hard
// wall-clock budget and no guarantee the daemon is running; it never touches
// the daemon's in-memory trip state and never shows durable UI. Its whole
// contract is mailbox discipline:
//
//   - record intent before attempting the network call;
//   - record confirmation only after the gateway reports success;
//   - clear the intent again on a definitive failure, so a dead attempt is
//     never mistaken for one still in flight;
//   - leave the intent set when cancelled mid-flight; reconciliation's
//     unknown-outcome rule handles it, and never as a success.
package quickaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
	"github.com/waymark-app/waymark/internal/mailbox"
)

// ActionClient is the slice of the gateway this package uses.
type ActionClient interface {
	CheckIn(ctx context.Context, token string) (domain.TripRecord, error)
	CheckOut(ctx context.Context, token string) (domain.TripRecord, error)
}

// Snapshot is the minimal display state the action surface renders between
// daemon wakes. It is mailbox payload, not a trip cache.
type Snapshot struct {
	TripID      int64  `json:"trip_id"`
	Title       string `json:"title"`
	ETA         string `json:"eta"`
	LastCheckin string `json:"last_checkin,omitempty"`
}

// Runner executes one safety action and leaves the mailbox in a truthful
// state whatever happens.
type Runner struct {
	box   mailbox.Store
	gw    ActionClient
	wake  mailbox.Waker
	clock clock.Clock
	log   *slog.Logger
}

// New constructs a Runner. wake may be nil when no daemon endpoint is
// configured; clk may be nil for the system clock.
func New(box mailbox.Store, gw ActionClient, wake mailbox.Waker, clk clock.Clock, log *slog.Logger) *Runner {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{box: box, gw: gw, wake: wake, clock: clk, log: log}
}

// CheckIn performs a token check-in. On success both the pending marker and
// the confirmation are present for the next reconciliation to consume; the
// display snapshot is refreshed from the authoritative response.
func (r *Runner) CheckIn(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("quickaction.Runner.CheckIn: empty token: %w", domain.ErrInvalidInput)
	}

	// Intent must be durable before the network attempt: if this process
	// dies mid-call, the daemon still learns something happened here.
	if err := r.box.Set(ctx, mailbox.Entry{Key: mailbox.KeyPendingCheckIn, Value: token, SetAt: r.clock.Now()}); err != nil {
		return fmt.Errorf("quickaction.Runner.CheckIn: record intent: %w", err)
	}

	trip, err := r.gw.CheckIn(ctx, token)
	if err != nil {
		r.settleFailure(ctx, mailbox.KeyPendingCheckIn, err)
		return fmt.Errorf("quickaction.Runner.CheckIn: %w", err)
	}

	if err := r.box.Set(ctx, mailbox.Entry{Key: mailbox.KeyCheckInConfirmed, Value: token, SetAt: r.clock.Now()}); err != nil {
		// The action itself succeeded; the confirmation is only a
		// latency hint. Reconciliation will learn the truth by fetch.
		r.log.Warn("check-in succeeded but confirmation write failed", "error", err)
	}
	r.writeSnapshot(ctx, trip)
	r.signal(ctx)
	return nil
}

// CheckOut performs a token check-out. A success clears the display
// snapshot immediately so the action surface stops showing an active trip
// before the daemon wakes; no confirmation entry is required because the
// cleared snapshot already makes the surface truthful.
func (r *Runner) CheckOut(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("quickaction.Runner.CheckOut: empty token: %w", domain.ErrInvalidInput)
	}

	if err := r.box.Set(ctx, mailbox.Entry{Key: mailbox.KeyPendingCheckOut, Value: token, SetAt: r.clock.Now()}); err != nil {
		return fmt.Errorf("quickaction.Runner.CheckOut: record intent: %w", err)
	}

	if _, err := r.gw.CheckOut(ctx, token); err != nil {
		r.settleFailure(ctx, mailbox.KeyPendingCheckOut, err)
		return fmt.Errorf("quickaction.Runner.CheckOut: %w", err)
	}

	if err := r.box.Clear(ctx, mailbox.KeyActiveTripSnapshot); err != nil {
		r.log.Warn("check-out succeeded but snapshot clear failed", "error", err)
	}
	r.signal(ctx)
	return nil
}

// settleFailure distinguishes a definitive failure from a cancellation.
// After the gateway has exhausted its retries the attempt is dead, so the
// pending marker is cleared; a dangling "in flight" marker must never
// outlive a known failure. A budget cancellation means the outcome is
// genuinely unknown: the marker stays for the daemon's unknown-outcome rule.
func (r *Runner) settleFailure(ctx context.Context, key mailbox.Key, cause error) {
	if ctx.Err() != nil || errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		r.log.Info("action cancelled mid-flight; leaving intent for reconciliation", "key", string(key))
		r.signal(context.WithoutCancel(ctx))
		return
	}
	// Clearing uses a fresh context: the budget may be nearly spent and
	// this write is what keeps the mailbox truthful.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.box.Clear(clearCtx, key); err != nil {
		r.log.Error("failed to clear dead intent", "key", string(key), "error", err)
	}
	r.signal(clearCtx)
}

func (r *Runner) writeSnapshot(ctx context.Context, trip domain.TripRecord) {
	now := r.clock.Now()
	snap := Snapshot{TripID: trip.ID, Title: trip.Title, ETA: trip.ETA.UTC().Format(time.RFC3339)}
	if trip.LastCheckin != nil {
		snap.LastCheckin = trip.LastCheckin.UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := r.box.Set(ctx, mailbox.Entry{Key: mailbox.KeyActiveTripSnapshot, Value: string(b), SetAt: now}); err != nil {
		r.log.Warn("snapshot write failed", "error", err)
	}
}

// signal fires the advisory wake. The mailbox writes above happen-before
// this call within this process.
func (r *Runner) signal(ctx context.Context) {
	if r.wake != nil {
		r.wake.Wake(ctx)
	}
}
