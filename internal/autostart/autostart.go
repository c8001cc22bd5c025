// Package autostart promotes planned trips to active once their start time
// has passed. It runs only in the primary process, on a one-second cadence
// while a relevant screen is visible.
package autostart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
	"github.com/waymark-app/waymark/internal/events"
)

// Starter performs the start action. *gateway.Gateway satisfies it.
type Starter interface {
	Start(ctx context.Context, tripID int64) (domain.TripRecord, error)
}

// TripLister supplies the current local trip records. *reconcile.Reconciler
// satisfies it.
type TripLister interface {
	Trips() []domain.TripRecord
}

// Scheduler watches for planned trips whose start time has elapsed and
// starts them through the gateway. Two containment rules apply:
//
//   - at most one start attempt is in flight at a time, across all trips
//     (a single-slot guard, not a queue: a second eligible trip waits for
//     a later tick);
//   - a trip whose start fails goes into a session-scoped do-not-retry set
//     and is not attempted again until the app re-enters the foreground,
//     so a trip that deterministically keeps failing (already started
//     elsewhere, deleted) cannot cause a retry storm.
type Scheduler struct {
	starter Starter
	list    TripLister
	bus     *events.Dispatcher
	clock   clock.Clock
	log     *slog.Logger

	mu       sync.Mutex
	inFlight bool
	failed   map[int64]struct{}

	onAdopt func(domain.TripRecord)
}

// New constructs a Scheduler. onAdopt receives the authoritative record of
// each successfully started trip (the daemon wires it to Reconciler.Adopt);
// bus may be nil.
func New(starter Starter, list TripLister, bus *events.Dispatcher, clk clock.Clock, log *slog.Logger, onAdopt func(domain.TripRecord)) *Scheduler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = slog.Default()
	}
	if onAdopt == nil {
		onAdopt = func(domain.TripRecord) {}
	}
	return &Scheduler{
		starter: starter,
		list:    list,
		bus:     bus,
		clock:   clk,
		log:     log,
		failed:  make(map[int64]struct{}),
		onAdopt: onAdopt,
	}
}

// ResetSession clears the do-not-retry set. The daemon calls this on
// foreground re-entry: fresh server state can invalidate a cached failure.
func (s *Scheduler) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = make(map[int64]struct{})
}

// Run ticks every second until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass. If an attempt is already in flight the
// pass is a no-op. Exported so tests can drive the cadence directly.
func (s *Scheduler) Tick(ctx context.Context) {
	trip, ok := s.claim()
	if !ok {
		return
	}
	go s.attempt(ctx, trip)
}

// claim picks the first eligible planned trip and takes the in-flight slot.
func (s *Scheduler) claim() (domain.TripRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return domain.TripRecord{}, false
	}
	now := s.clock.Now()
	for _, t := range s.list.Trips() {
		if t.Status != domain.StatusPlanned {
			continue
		}
		if t.Start.After(now) {
			continue
		}
		if _, skip := s.failed[t.ID]; skip {
			continue
		}
		s.inFlight = true
		return t, true
	}
	return domain.TripRecord{}, false
}

func (s *Scheduler) attempt(ctx context.Context, trip domain.TripRecord) {
	started, err := s.starter.Start(ctx, trip.ID)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.failed[trip.ID] = struct{}{}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("auto-start failed; trip parked for this session", "trip_id", trip.ID, "error", err)
		if s.bus != nil {
			s.bus.Publish(events.Event{Kind: events.KindActionFailed, At: s.clock.Now(), Trip: &trip, Err: err})
		}
		return
	}

	s.onAdopt(started)
	s.log.Info("trip auto-started", "trip_id", started.ID)
	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.KindTripStarted, At: s.clock.Now(), Trip: &started})
	}
}
