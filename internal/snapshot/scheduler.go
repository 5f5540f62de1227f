package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/walletd/internal/store"
)

// Destination is somewhere a snapshot can be kept. String names it in logs.
type Destination interface {
	fmt.Stringer
	Write(ctx context.Context, snap *Snapshot) error
}

// Scheduler exports the store on an interval. A destination is only
// written when the store has changed since its last successful write.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	written map[Destination]string // last digest each destination accepted

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		written:      make(map[Destination]string),
	}
}

// Start takes a snapshot right away and then once per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.SnapshotOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop waits for an in-flight snapshot to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SnapshotOnce exports the store and hands it to every destination that
// has not yet stored this digest. It returns how many destinations failed.
func (s *Scheduler) SnapshotOnce(ctx context.Context) int {
	snap, err := Export(ctx, s.store)
	if err != nil {
		s.logger.Error("snapshot export failed", "err", err)
		return len(s.destinations)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed, skipped int
	for _, dest := range s.destinations {
		if s.written[dest] == snap.Digest {
			skipped++
			continue
		}
		if err := dest.Write(ctx, snap); err != nil {
			failed++
			s.logger.Error("snapshot write failed", "destination", dest.String(), "err", err)
			continue
		}
		s.written[dest] = snap.Digest
	}

	level := slog.LevelInfo
	if skipped == len(s.destinations) {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "snapshot completed",
		"digest", snap.Digest[:12],
		"states", snap.States,
		"alarms", snap.Alarms,
		"bytes", len(snap.Data),
		"unchanged", skipped,
		"failed", failed,
	)
	return failed
}
