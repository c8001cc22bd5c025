package autostart_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymark-app/waymark/internal/autostart"
	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
)

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

// fakeStarter counts start attempts; when block is non-nil, every attempt
// parks until the channel is closed, simulating a slow network call.
type fakeStarter struct {
	mu    sync.Mutex
	calls []int64
	err   error
	block chan struct{}
}

func (f *fakeStarter) Start(ctx context.Context, tripID int64) (domain.TripRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tripID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.TripRecord{}, f.err
	}
	return domain.TripRecord{ID: tripID, Status: domain.StatusActive}, nil
}

func (f *fakeStarter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLister struct {
	mu    sync.Mutex
	trips []domain.TripRecord
}

func (f *fakeLister) Trips() []domain.TripRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TripRecord(nil), f.trips...)
}

func planned(id int64, start time.Time) domain.TripRecord {
	return domain.TripRecord{ID: id, Status: domain.StatusPlanned, Start: start, ETA: start.Add(3 * time.Hour)}
}

func TestTick_StartsElapsedPlannedTrip(t *testing.T) {
	starter := &fakeStarter{}
	list := &fakeLister{trips: []domain.TripRecord{planned(1, now.Add(-time.Second))}}

	var adopted []domain.TripRecord
	var mu sync.Mutex
	s := autostart.New(starter, list, nil, clock.NewFake(now), nil, func(tr domain.TripRecord) {
		mu.Lock()
		adopted = append(adopted, tr)
		mu.Unlock()
	})

	s.Tick(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(adopted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, starter.callCount())
	assert.Equal(t, domain.StatusActive, adopted[0].Status)
}

func TestTick_SkipsFutureAndNonPlannedTrips(t *testing.T) {
	starter := &fakeStarter{}
	active := planned(3, now.Add(-time.Hour))
	active.Status = domain.StatusActive
	list := &fakeLister{trips: []domain.TripRecord{
		planned(1, now.Add(time.Minute)), // not yet due
		active,                           // already running
	}}
	s := autostart.New(starter, list, nil, clock.NewFake(now), nil, nil)

	s.Tick(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, starter.callCount())
}

func TestTick_SingleSlotGuard(t *testing.T) {
	starter := &fakeStarter{block: make(chan struct{})}
	list := &fakeLister{trips: []domain.TripRecord{
		planned(1, now.Add(-time.Minute)),
		planned(2, now.Add(-time.Minute)),
	}}
	s := autostart.New(starter, list, nil, clock.NewFake(now), nil, nil)

	s.Tick(context.Background())
	require.Eventually(t, func() bool { return starter.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// Second trip is due, but the slot is occupied: later ticks wait.
	s.Tick(context.Background())
	s.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, starter.callCount(), "never two concurrent start calls")

	close(starter.block)
	require.Eventually(t, func() bool {
		s.Tick(context.Background())
		return starter.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestTick_FailedTripParkedForSession(t *testing.T) {
	starter := &fakeStarter{err: errors.New("already started elsewhere")}
	list := &fakeLister{trips: []domain.TripRecord{planned(1, now.Add(-time.Minute))}}
	s := autostart.New(starter, list, nil, clock.NewFake(now), nil, nil)

	s.Tick(context.Background())
	require.Eventually(t, func() bool { return starter.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// The failing trip is not retried on later ticks this session.
	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, starter.callCount())

	// Foreground re-entry resets the session and makes it eligible again.
	s.ResetSession()
	s.Tick(context.Background())
	require.Eventually(t, func() bool { return starter.callCount() == 2 }, time.Second, 5*time.Millisecond)
}
