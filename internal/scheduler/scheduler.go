// Package scheduler implements the periodic trigger service: recurring
// interval schedules identified by opaque handles, with flock-based overlap
// prevention across processes and a concurrency cap on dispatch.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OddsClaw/OddsClaw/internal/bus"
	"github.com/OddsClaw/OddsClaw/internal/journal"
)

// Schedule is one recurring trigger registration.
type Schedule struct {
	Handle        string
	StartAt       time.Time
	Interval      time.Duration
	MaxExecutions int // 0 = unbounded
	Runs          int
	nextAt        time.Time
}

// Config holds scheduler settings.
type Config struct {
	Enabled      bool          `json:"enabled" envconfig:"ENABLED"`
	Resolution   time.Duration `json:"resolution" envconfig:"RESOLUTION"`
	MaxConcTicks int           `json:"maxConcTicks" envconfig:"MAX_CONC_TICKS"`
	LockPath     string        `json:"lockPath" envconfig:"LOCK_PATH"`
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Enabled:      true,
		Resolution:   time.Second,
		MaxConcTicks: 1,
		LockPath:     filepath.Join(home, ".oddsclaw", "scheduler.lock"),
	}
}

// Scheduler owns schedule registration, the tick loop, and dispatch.
type Scheduler struct {
	cfg       Config
	bus       *bus.Bus
	journal   *journal.Journal
	schedules map[string]*Schedule
	mu        sync.RWMutex
	sem       *Semaphore
	lock      *TickLock
	clock     func() time.Time
}

// New creates a Scheduler.
func New(cfg Config, b *bus.Bus, j *journal.Journal) *Scheduler {
	if cfg.Resolution <= 0 {
		cfg.Resolution = time.Second
	}
	if cfg.MaxConcTicks <= 0 {
		cfg.MaxConcTicks = 1
	}
	if cfg.LockPath == "" {
		cfg.LockPath = DefaultConfig().LockPath
	}
	return &Scheduler{
		cfg:       cfg,
		bus:       b,
		journal:   j,
		schedules: make(map[string]*Schedule),
		sem:       NewSemaphore(cfg.MaxConcTicks),
		lock:      NewTickLock(cfg.LockPath),
		clock:     time.Now,
	}
}

// Register adds a recurring schedule starting after startDelay, firing every
// interval, for at most maxExecutions runs (0 = unbounded). It returns the
// opaque schedule handle. Registration failures are returned to the caller.
func (s *Scheduler) Register(startDelay, interval time.Duration, maxExecutions int) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	if maxExecutions < 0 {
		return "", fmt.Errorf("scheduler: max executions must be >= 0, got %d", maxExecutions)
	}
	if startDelay < 0 {
		startDelay = 0
	}

	handle := uuid.NewString()
	start := s.clock().Add(startDelay)
	s.mu.Lock()
	s.schedules[handle] = &Schedule{
		Handle:        handle,
		StartAt:       start,
		Interval:      interval,
		MaxExecutions: maxExecutions,
		nextAt:        start,
	}
	s.mu.Unlock()

	slog.Info("Schedule registered", "handle", handle, "interval", interval, "maxExecutions", maxExecutions)
	return handle, nil
}

// Cancel removes a schedule. Returns false if the handle is unknown.
func (s *Scheduler) Cancel(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[handle]; !ok {
		return false
	}
	delete(s.schedules, handle)
	slog.Info("Schedule cancelled", "handle", handle)
	return true
}

// Schedules returns a snapshot of current registrations.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, *sch)
	}
	return out
}

// Run starts the tick loop. Blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "resolution", s.cfg.Resolution)
	ticker := time.NewTicker(s.cfg.Resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(t)
		}
	}
}

// tick fires all due schedules. The flock ensures only one daemon process
// triggers the agent even if two are accidentally running.
func (s *Scheduler) tick(now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("Scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("Scheduler tick skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for handle, sch := range s.schedules {
		if now.Before(sch.nextAt) {
			continue
		}
		s.dispatch(sch, now)
		sch.nextAt = now.Add(sch.Interval)
		if sch.MaxExecutions > 0 && sch.Runs >= sch.MaxExecutions {
			delete(s.schedules, handle)
			slog.Info("Schedule exhausted", "handle", handle, "runs", sch.Runs)
			s.logRun(handle, "exhausted", now)
		}
	}
}

// dispatch publishes one tick signal if a concurrency slot is available.
func (s *Scheduler) dispatch(sch *Schedule, now time.Time) {
	if !s.sem.TryAcquire() {
		slog.Warn("Tick skipped: concurrency limit", "handle", sch.Handle)
		s.logRun(sch.Handle, "skipped_concurrency", now)
		return
	}
	sch.Runs++

	go func(handle string) {
		defer s.sem.Release()
		s.bus.Publish(&bus.Signal{
			Kind:      bus.KindTick,
			Source:    bus.SourceScheduler,
			Handle:    handle,
			Timestamp: now,
		})
		s.logRun(handle, "dispatched", now)
	}(sch.Handle)
}

// logRun persists the run status (best-effort).
func (s *Scheduler) logRun(handle, status string, tick time.Time) {
	if s.journal == nil {
		return
	}
	_ = s.journal.UpsertScheduleRun(handle, status, tick)
}
