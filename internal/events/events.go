// Package events is the typed in-process message channel between the
// daemon's components: wake signals, foreground entries, reconciliation
// results, and navigation requests all flow through one dispatcher with an
// explicit subscriber list, so delivery order and the subscriber set are
// auditable in tests. There are no stringly-typed broadcast names.
package events

import (
	"sync"
	"time"

	"github.com/waymark-app/waymark/internal/domain"
)

// Kind enumerates every event the dispatcher can carry.
type Kind int

const (
	// KindForeground fires when the app (re-)enters the foreground.
	KindForeground Kind = iota
	// KindWake fires when the localhost wake endpoint is hit by the
	// action context.
	KindWake
	// KindTripsReconciled fires after a reconciliation pass has replaced
	// local trip state with an authoritative fetch.
	KindTripsReconciled
	// KindTripStarted fires when the auto-start scheduler promotes a
	// planned trip.
	KindTripStarted
	// KindActionFailed fires when a user-initiated action fails after
	// retries; the UI shows a transient notice and leaves state alone.
	KindActionFailed
	// KindPushTokenUpdated fires when the push registration collaborator
	// hands over a fresh device token.
	KindPushTokenUpdated
	// KindNavigate asks the presentation layer to show a trip.
	KindNavigate
)

// Event is one message. Only the fields relevant to the Kind are set.
type Event struct {
	Kind  Kind
	At    time.Time
	Trip  *domain.TripRecord
	Trips []domain.TripRecord
	Token string
	Err   error
}

// Handler consumes one event. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type Handler func(Event)

type subscription struct {
	kinds   map[Kind]struct{}
	handler Handler
}

// Dispatcher fans events out to subscribers. The zero value is not usable;
// construct with NewDispatcher.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Subscribe registers handler for the given kinds (all kinds when none are
// given). Subscriptions cannot be removed; the dispatcher lives as long as
// the process.
func (d *Dispatcher) Subscribe(handler Handler, kinds ...Kind) {
	s := subscription{handler: handler}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
}

// Publish delivers e to every matching subscriber, in the order they
// subscribed, before returning.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()
	for _, s := range subs {
		if s.kinds != nil {
			if _, ok := s.kinds[e.Kind]; !ok {
				continue
			}
		}
		s.handler(e)
	}
}
