// Package alarm provides named, persisted alarms that survive a process
// restart. Alarms are kept in a Store and rescheduled on Start, so a timer
// armed before the daemon was suspended still fires after it comes back.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// ErrInvalidSchedule is returned when an alarm has neither a delay nor a
// period.
var ErrInvalidSchedule = errors.New("alarm: delay or period must be positive")

// Store persists alarms across restarts.
type Store interface {
	SaveAlarm(ctx context.Context, a model.Alarm) error
	DeleteAlarm(ctx context.Context, name string) error
	ListAlarms(ctx context.Context) ([]model.Alarm, error)
}

// Info describes when an alarm fires. Fractional minutes are allowed.
type Info struct {
	DelayInMinutes  float64
	PeriodInMinutes float64
}

type entry struct {
	alarm model.Alarm
	job   *gocron.Job
	gen   uint64
}

// Manager schedules alarms on a gocron scheduler.
type Manager struct {
	store     Store
	logger    *slog.Logger
	scheduler *gocron.Scheduler

	mu        sync.Mutex
	alarms    map[string]*entry
	listeners []func(model.Alarm)
	overdue   []func()
	gen       uint64
	started   bool
}

// NewManager creates a manager. store may be nil, in which case alarms
// only live as long as the process.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
		alarms:    make(map[string]*entry),
	}
}

// OnAlarm registers fn to be called every time any alarm fires. Overdue
// alarms restored before the first listener fire once it is registered.
func (m *Manager) OnAlarm(fn func(model.Alarm)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	overdue := m.overdue
	m.overdue = nil
	m.mu.Unlock()

	for _, fire := range overdue {
		go fire()
	}
}

// fireOverdue dispatches a restored alarm, holding it while nobody listens.
// Caller holds m.mu.
func (m *Manager) fireOverdue(name string, gen uint64) {
	fire := func() { m.fire(name, gen) }
	if len(m.listeners) == 0 {
		m.overdue = append(m.overdue, fire)
		return
	}
	go fire()
}

// Start reloads persisted alarms and starts the scheduler. Alarms whose
// scheduled time passed while the process was down fire immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if m.store != nil {
		saved, err := m.store.ListAlarms(ctx)
		if err != nil {
			return fmt.Errorf("loading alarms: %w", err)
		}
		for _, a := range saved {
			if err := m.restore(a); err != nil {
				m.logger.Warn("alarm: dropping unrestorable alarm", "alarm", a.Name, "err", err)
				if err := m.store.DeleteAlarm(ctx, a.Name); err != nil {
					m.logger.Error("alarm: delete failed", "alarm", a.Name, "err", err)
				}
			}
		}
	}

	m.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler. Persisted alarms are left in the store.
func (m *Manager) Stop() {
	m.scheduler.Stop()
}

// Create schedules (or replaces) the named alarm.
func (m *Manager) Create(ctx context.Context, name string, info Info) error {
	delay := minutes(info.DelayInMinutes)
	period := minutes(info.PeriodInMinutes)
	if delay <= 0 {
		delay = period
	}
	if delay <= 0 {
		return ErrInvalidSchedule
	}

	a := model.Alarm{
		Name:            name,
		ScheduledAt:     time.Now().UTC().Add(delay),
		PeriodInMinutes: info.PeriodInMinutes,
	}
	if err := m.schedule(a, delay); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SaveAlarm(ctx, a); err != nil {
			return fmt.Errorf("saving alarm %s: %w", name, err)
		}
	}
	return nil
}

// Clear removes the named alarm. It reports whether an alarm existed.
func (m *Manager) Clear(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	e, ok := m.alarms[name]
	if ok {
		delete(m.alarms, name)
	}
	m.mu.Unlock()

	if ok && e.job != nil {
		m.scheduler.RemoveByReference(e.job)
	}
	if m.store != nil {
		if err := m.store.DeleteAlarm(ctx, name); err != nil {
			return ok, fmt.Errorf("deleting alarm %s: %w", name, err)
		}
	}
	return ok, nil
}

// Get returns the named alarm if it is scheduled.
func (m *Manager) Get(name string) (model.Alarm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.alarms[name]
	if !ok {
		return model.Alarm{}, false
	}
	return e.alarm, true
}

func (m *Manager) restore(a model.Alarm) error {
	period := minutes(a.PeriodInMinutes)
	delay := time.Until(a.ScheduledAt)
	if delay > 0 {
		return m.schedule(a, delay)
	}
	if period <= 0 {
		// One-shot that came due while we were down.
		m.mu.Lock()
		m.gen++
		gen := m.gen
		m.alarms[a.Name] = &entry{alarm: a, gen: gen}
		m.fireOverdue(a.Name, gen)
		m.mu.Unlock()
		return nil
	}
	a.ScheduledAt = time.Now().UTC().Add(period)
	if err := m.schedule(a, period); err != nil {
		return err
	}
	m.mu.Lock()
	m.fireOverdue(a.Name, m.alarms[a.Name].gen)
	m.mu.Unlock()
	return nil
}

// schedule installs a job firing first after delay and then every
// PeriodInMinutes, replacing any alarm with the same name.
func (m *Manager) schedule(a model.Alarm, delay time.Duration) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	old := m.alarms[a.Name]
	m.mu.Unlock()

	if old != nil && old.job != nil {
		m.scheduler.RemoveByReference(old.job)
	}

	period := minutes(a.PeriodInMinutes)
	var (
		job *gocron.Job
		err error
	)
	switch {
	case period <= 0:
		job, err = m.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(m.fire, a.Name, gen)
	case period == delay:
		job, err = m.scheduler.Every(period).WaitForSchedule().Do(m.fire, a.Name, gen)
	default:
		job, err = m.scheduler.Every(period).StartAt(time.Now().Add(delay)).Do(m.fire, a.Name, gen)
	}
	if err != nil {
		return fmt.Errorf("scheduling alarm %s: %w", a.Name, err)
	}

	m.mu.Lock()
	m.alarms[a.Name] = &entry{alarm: a, job: job, gen: gen}
	m.mu.Unlock()
	return nil
}

func (m *Manager) fire(name string, gen uint64) {
	m.mu.Lock()
	e, ok := m.alarms[name]
	if !ok || e.gen != gen {
		// Cleared or replaced after the job was already dispatched.
		m.mu.Unlock()
		return
	}
	a := e.alarm
	period := minutes(a.PeriodInMinutes)
	if period > 0 {
		e.alarm.ScheduledAt = time.Now().UTC().Add(period)
	} else {
		delete(m.alarms, name)
	}
	next := e.alarm
	listeners := append([]func(model.Alarm){}, m.listeners...)
	m.mu.Unlock()

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if period > 0 {
			err = m.store.SaveAlarm(ctx, next)
		} else {
			err = m.store.DeleteAlarm(ctx, name)
		}
		cancel()
		if err != nil {
			m.logger.Error("alarm: persisting fire failed", "alarm", name, "err", err)
		}
	}

	m.logger.Debug("alarm fired", "alarm", name)
	for _, fn := range listeners {
		fn(a)
	}
}

// maxMinutes keeps minutes within time.Duration.
const maxMinutes = float64(math.MaxInt64/int64(time.Minute)) - 1

func minutes(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	if f > maxMinutes {
		f = maxMinutes
	}
	return time.Duration(f * float64(time.Minute))
}
