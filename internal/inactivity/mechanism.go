package inactivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/alarm"
	"github.com/alfredjeanlab/walletd/internal/model"
)

// VolatileTimer is an in-memory one-shot timer.
type VolatileTimer struct {
	fire func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewVolatileTimer returns a mechanism that calls fire once per Arm.
func NewVolatileTimer(fire func()) *VolatileTimer {
	return &VolatileTimer{fire: fire}
}

func (v *VolatileTimer) Arm(_ context.Context, d time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		v.mu.Lock()
		current := v.timer == timer
		if current {
			v.timer = nil
		}
		v.mu.Unlock()
		if current {
			v.fire()
		}
	})
	v.timer = timer
	return nil
}

func (v *VolatileTimer) Clear(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	return nil
}

// PersistentAlarm arms a named periodic alarm whose delay and period both
// equal the timeout. When it fires the callback runs and the alarm is
// cleared, so it behaves as one-shot while still surviving a restart.
type PersistentAlarm struct {
	alarms *alarm.Manager
	fire   func()
	logger *slog.Logger
}

// NewPersistentAlarm registers its alarm listener once on m.
func NewPersistentAlarm(m *alarm.Manager, fire func(), logger *slog.Logger) *PersistentAlarm {
	p := &PersistentAlarm{alarms: m, fire: fire, logger: logger}
	m.OnAlarm(p.handle)
	return p
}

func (p *PersistentAlarm) Arm(ctx context.Context, d time.Duration) error {
	mins := d.Minutes()
	return p.alarms.Create(ctx, AlarmName, alarm.Info{DelayInMinutes: mins, PeriodInMinutes: mins})
}

func (p *PersistentAlarm) Clear(ctx context.Context) error {
	_, err := p.alarms.Clear(ctx, AlarmName)
	return err
}

func (p *PersistentAlarm) handle(a model.Alarm) {
	if a.Name != AlarmName {
		return
	}
	p.fire()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Clear(ctx); err != nil {
		p.logger.Warn("inactivity: clearing fired alarm failed", "alarm", AlarmName, "err", err)
	}
}
