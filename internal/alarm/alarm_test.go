package alarm

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/walletd/internal/model"
)

type memStore struct {
	mu     sync.Mutex
	alarms map[string]model.Alarm
}

func newMemStore() *memStore {
	return &memStore{alarms: make(map[string]model.Alarm)}
}

func (s *memStore) SaveAlarm(_ context.Context, a model.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[a.Name] = a
	return nil
}

func (s *memStore) DeleteAlarm(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, name)
	return nil
}

func (s *memStore) ListAlarms(_ context.Context) ([]model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.alarms[name]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 0.001 minutes is 60ms.
const tick = 0.001

func TestCreateOneShotFires(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	fired := make(chan model.Alarm, 1)
	m.OnAlarm(func(a model.Alarm) { fired <- a })

	require.NoError(t, m.Create(context.Background(), "once", Info{DelayInMinutes: tick}))
	require.True(t, store.has("once"))

	select {
	case a := <-fired:
		require.Equal(t, "once", a.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}

	require.Eventually(t, func() bool { return !store.has("once") }, time.Second, 10*time.Millisecond)
	_, ok := m.Get("once")
	require.False(t, ok)
}

func TestPeriodicAlarmRepeats(t *testing.T) {
	m := NewManager(nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var count atomic.Int32
	m.OnAlarm(func(model.Alarm) { count.Add(1) })

	require.NoError(t, m.Create(context.Background(), "tick", Info{DelayInMinutes: tick, PeriodInMinutes: tick}))
	require.Eventually(t, func() bool { return count.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	_, ok := m.Get("tick")
	require.True(t, ok)
}

func TestClearPreventsFire(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var count atomic.Int32
	m.OnAlarm(func(model.Alarm) { count.Add(1) })

	require.NoError(t, m.Create(context.Background(), "gone", Info{DelayInMinutes: 0.002}))
	existed, err := m.Clear(context.Background(), "gone")
	require.NoError(t, err)
	require.True(t, existed)
	require.False(t, store.has("gone"))

	time.Sleep(250 * time.Millisecond)
	require.Zero(t, count.Load())

	existed, err = m.Clear(context.Background(), "gone")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestCreateReplacesExisting(t *testing.T) {
	m := NewManager(nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var names sync.Map
	var count atomic.Int32
	m.OnAlarm(func(a model.Alarm) {
		names.Store(a.Name, true)
		count.Add(1)
	})

	require.NoError(t, m.Create(context.Background(), "lock", Info{DelayInMinutes: 10}))
	require.NoError(t, m.Create(context.Background(), "lock", Info{DelayInMinutes: tick}))

	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 1, count.Load())
}

func TestCreateRejectsEmptySchedule(t *testing.T) {
	m := NewManager(nil, testLogger())
	require.ErrorIs(t, m.Create(context.Background(), "bad", Info{}), ErrInvalidSchedule)
	require.ErrorIs(t, m.Create(context.Background(), "bad", Info{DelayInMinutes: -1}), ErrInvalidSchedule)
}

func TestCreateHugeDelayStaysPending(t *testing.T) {
	m := NewManager(nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var count atomic.Int32
	m.OnAlarm(func(model.Alarm) { count.Add(1) })
	require.NoError(t, m.Create(context.Background(), "far", Info{DelayInMinutes: 1e12, PeriodInMinutes: 1e12}))

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, count.Load())
	a, ok := m.Get("far")
	require.True(t, ok)
	require.True(t, a.ScheduledAt.After(time.Now().AddDate(100, 0, 0)))
}

func TestStartRestoresPersistedAlarms(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveAlarm(ctx, model.Alarm{
		Name:        "overdue",
		ScheduledAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.SaveAlarm(ctx, model.Alarm{
		Name:        "upcoming",
		ScheduledAt: time.Now().Add(80 * time.Millisecond),
	}))

	m := NewManager(store, testLogger())
	fired := make(chan string, 2)
	m.OnAlarm(func(a model.Alarm) { fired <- a.Name })
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	got := map[string]bool{}
	for range 2 {
		select {
		case name := <-fired:
			got[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only fired %v", got)
		}
	}
	require.True(t, got["overdue"])
	require.True(t, got["upcoming"])
}

func TestOverdueAlarmWaitsForListener(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveAlarm(ctx, model.Alarm{
		Name:            "late",
		ScheduledAt:     time.Now().Add(-time.Minute),
		PeriodInMinutes: 10,
	}))

	m := NewManager(store, testLogger())
	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	time.Sleep(50 * time.Millisecond)

	fired := make(chan string, 1)
	m.OnAlarm(func(a model.Alarm) { fired <- a.Name })
	select {
	case name := <-fired:
		require.Equal(t, "late", name)
	case <-time.After(2 * time.Second):
		t.Fatal("overdue alarm was dropped before a listener registered")
	}
}
