package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/accountguard/component"
	"github.com/kbukum/accountguard/logger"
)

// SweepFunc evicts aged entries from a keyed store as of now and returns
// how many were removed.
type SweepFunc func(now time.Time) int

// Sweeper periodically evicts expired diagnostic sessions, plus any extra
// keyed stores registered with it. It implements component.Component so the
// host controls its lifecycle.
type Sweeper struct {
	store *SessionStore
	extra []SweepFunc
	log   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the given session store. Additional
// sweep targets (lockout tables and the like) share its tick.
func NewSweeper(store *SessionStore, log *logger.Logger, extra ...SweepFunc) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		store: store,
		extra: extra,
		log:   log.WithComponent("diagnostics-sweeper"),
	}
}

// Name implements component.Component.
func (s *Sweeper) Name() string { return "diagnostics-sweeper" }

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)
	return nil
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health implements component.Component.
func (s *Sweeper) Health(context.Context) component.Health {
	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()

	status := component.StatusHealthy
	message := ""
	if !running {
		status = component.StatusUnhealthy
		message = "sweeper not running"
	}
	return component.Health{Name: s.Name(), Status: status, Message: message}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.store.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := s.store.Sweep(now)
			for _, fn := range s.extra {
				removed += fn(now)
			}
			if removed > 0 {
				s.log.Debug("expired entries evicted", logger.Fields(logger.FieldCount, removed))
			}
		}
	}
}
