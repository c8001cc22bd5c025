package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
	"github.com/waymark-app/waymark/internal/events"
	"github.com/waymark-app/waymark/internal/mailbox"
	"github.com/waymark-app/waymark/internal/reconcile"
)

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

// fakeFetcher is a hand-written double for the authoritative-state source.
type fakeFetcher struct {
	trips []domain.TripRecord
	err   error
	calls int
}

func (f *fakeFetcher) Active(ctx context.Context) ([]domain.TripRecord, error) {
	f.calls++
	return f.trips, f.err
}

func activeTrip(id int64) domain.TripRecord {
	return domain.TripRecord{
		ID:     id,
		Title:  "Night climb",
		Start:  now.Add(-2 * time.Hour),
		ETA:    now.Add(time.Hour),
		Status: domain.StatusActive,
	}
}

func newReconciler(box mailbox.Store, fetch reconcile.Fetcher, bus *events.Dispatcher) *reconcile.Reconciler {
	return reconcile.New(box, fetch, bus, clock.NewFake(now), nil)
}

func TestRun_PendingWithoutConfirmation_NeverFabricatesSuccess(t *testing.T) {
	box := mailbox.NewMemoryStore()
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyPendingCheckOut, Value: "tok", SetAt: now}))

	// The action never actually happened server-side: the authoritative
	// state still shows the trip active.
	fetch := &fakeFetcher{trips: []domain.TripRecord{activeTrip(7)}}
	r := newReconciler(box, fetch, nil)

	require.NoError(t, r.Run(context.Background()))

	trips := r.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, domain.StatusActive, trips[0].Status, "local state must mirror the server, not the intent")
}

func TestRun_ConfirmationStillRefetches(t *testing.T) {
	box := mailbox.NewMemoryStore()
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyPendingCheckIn, Value: "tok", SetAt: now}))
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyCheckInConfirmed, Value: "tok", SetAt: now.Add(time.Second)}))

	lc := now.Add(time.Second)
	confirmed := activeTrip(7)
	confirmed.LastCheckin = &lc

	fetch := &fakeFetcher{trips: []domain.TripRecord{confirmed}}
	r := newReconciler(box, fetch, nil)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, fetch.calls, "a confirmation is a hint, not a substitute for the fetch")
	trips := r.Trips()
	require.Len(t, trips, 1)
	require.NotNil(t, trips[0].LastCheckin)
}

func TestRun_ClearsReadKeysExactlyOnce(t *testing.T) {
	box := mailbox.NewMemoryStore()
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyPendingCheckIn, Value: "tok", SetAt: now}))
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyCheckInConfirmed, Value: "tok", SetAt: now}))
	// The display snapshot is not an intent and must survive the pass.
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyActiveTripSnapshot, Value: "{}", SetAt: now}))

	r := newReconciler(box, &fakeFetcher{trips: []domain.TripRecord{activeTrip(7)}}, nil)
	require.NoError(t, r.Run(context.Background()))

	for _, k := range mailbox.IntentKeys {
		_, ok, err := box.Get(context.Background(), k)
		require.NoError(t, err)
		assert.False(t, ok, "key %s must be consumed", k)
	}
	_, ok, err := box.Get(context.Background(), mailbox.KeyActiveTripSnapshot)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_FetchFailureStillConsumesIntents(t *testing.T) {
	box := mailbox.NewMemoryStore()
	require.NoError(t, box.Set(context.Background(), mailbox.Entry{Key: mailbox.KeyPendingCheckIn, Value: "tok", SetAt: now}))

	r := newReconciler(box, &fakeFetcher{err: errors.New("server down")}, nil)
	err := r.Run(context.Background())
	require.Error(t, err)

	_, ok, getErr := box.Get(context.Background(), mailbox.KeyPendingCheckIn)
	require.NoError(t, getErr)
	assert.False(t, ok, "intents are consumed exactly once regardless of outcome")
}

func TestRun_EmptyMailboxJustRefreshes(t *testing.T) {
	fetch := &fakeFetcher{trips: []domain.TripRecord{activeTrip(1), activeTrip(2)}}
	r := newReconciler(mailbox.NewMemoryStore(), fetch, nil)

	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 2, fetch.calls)
	assert.Len(t, r.Trips(), 2, "repeated passes are idempotent")
}

func TestRun_PublishesTripsReconciled(t *testing.T) {
	bus := events.NewDispatcher()
	var got []events.Event
	bus.Subscribe(func(e events.Event) { got = append(got, e) }, events.KindTripsReconciled)

	r := newReconciler(mailbox.NewMemoryStore(), &fakeFetcher{trips: []domain.TripRecord{activeTrip(9)}}, bus)
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, got, 1)
	require.Len(t, got[0].Trips, 1)
	assert.EqualValues(t, 9, got[0].Trips[0].ID)
}

func TestAdopt_SingleRecordFoldsIn(t *testing.T) {
	r := newReconciler(mailbox.NewMemoryStore(), &fakeFetcher{}, nil)

	started := activeTrip(3)
	r.Adopt(started)

	trips := r.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, domain.StatusActive, trips[0].Status)
}

func TestAdopt_TerminalLocalBlocksStaleInProgress(t *testing.T) {
	r := newReconciler(mailbox.NewMemoryStore(), &fakeFetcher{}, nil)

	done := activeTrip(7)
	done.Status = domain.StatusCompleted
	completedAt := now
	done.CompletedAt = &completedAt
	r.Adopt(done)

	// A stale in-progress view of the same trip arrives late; the
	// terminal local state must win.
	r.Adopt(activeTrip(7))

	trips := r.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, domain.StatusCompleted, trips[0].Status)
}
