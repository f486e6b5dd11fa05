package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OddsClaw/OddsClaw/internal/bus"
)

func testScheduler(t *testing.T) (*Scheduler, *bus.Bus) {
	t.Helper()
	b := bus.New()
	s := New(Config{
		Enabled:      true,
		Resolution:   50 * time.Millisecond,
		MaxConcTicks: 1,
		LockPath:     t.TempDir() + "/test.lock",
	}, b, nil)
	return s, b
}

func countTicks(ctx context.Context, b *bus.Bus, n *atomic.Int32) {
	for {
		sig, err := b.Consume(ctx)
		if err != nil {
			return
		}
		if sig.Kind == bus.KindTick {
			n.Add(1)
		}
	}
}

func TestRegisterAndDispatch(t *testing.T) {
	s, b := testScheduler(t)

	handle, err := s.Register(0, time.Minute, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if handle == "" {
		t.Fatal("expected non-empty handle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks atomic.Int32
	go countTicks(ctx, b, &ticks)

	s.tick(time.Now())
	time.Sleep(100 * time.Millisecond)

	if ticks.Load() != 1 {
		t.Errorf("expected 1 tick, got %d", ticks.Load())
	}
}

func TestRegisterRejectsBadArguments(t *testing.T) {
	s, _ := testScheduler(t)

	if _, err := s.Register(0, 0, 0); err == nil {
		t.Error("zero interval should fail registration")
	}
	if _, err := s.Register(0, time.Second, -1); err == nil {
		t.Error("negative max executions should fail registration")
	}
	if len(s.Schedules()) != 0 {
		t.Error("failed registrations must not leave schedules behind")
	}
}

func TestMaxExecutionsExhaustsSchedule(t *testing.T) {
	s, b := testScheduler(t)

	if _, err := s.Register(0, time.Millisecond, 2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks atomic.Int32
	go countTicks(ctx, b, &ticks)

	now := time.Now()
	s.tick(now)
	time.Sleep(60 * time.Millisecond)
	s.tick(now.Add(time.Second))
	time.Sleep(60 * time.Millisecond)
	s.tick(now.Add(2 * time.Second))
	time.Sleep(60 * time.Millisecond)

	if got := ticks.Load(); got != 2 {
		t.Errorf("expected exactly 2 ticks, got %d", got)
	}
	if len(s.Schedules()) != 0 {
		t.Error("exhausted schedule should be removed")
	}
}

func TestStartDelayDefersFirstTick(t *testing.T) {
	s, b := testScheduler(t)

	if _, err := s.Register(time.Hour, time.Minute, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ticks atomic.Int32
	go countTicks(ctx, b, &ticks)

	s.tick(time.Now())
	time.Sleep(60 * time.Millisecond)

	if ticks.Load() != 0 {
		t.Errorf("expected 0 ticks before start delay, got %d", ticks.Load())
	}
}

func TestCancel(t *testing.T) {
	s, _ := testScheduler(t)

	handle, _ := s.Register(0, time.Minute, 0)
	if !s.Cancel(handle) {
		t.Error("Cancel should succeed for a known handle")
	}
	if s.Cancel(handle) {
		t.Error("Cancel should fail for an already-cancelled handle")
	}
	if s.Cancel("unknown") {
		t.Error("Cancel should fail for an unknown handle")
	}
}

func TestLockPreventsOverlap(t *testing.T) {
	lockPath := t.TempDir() + "/overlap.lock"
	l1 := NewTickLock(lockPath)
	l2 := NewTickLock(lockPath)

	acquired, err := l1.TryLock()
	if err != nil || !acquired {
		t.Fatalf("l1 should acquire: %v", err)
	}
	acquired2, err := l2.TryLock()
	if err != nil {
		t.Fatalf("l2 TryLock: %v", err)
	}
	if acquired2 {
		t.Error("l2 should not acquire while l1 holds the lock")
		l2.Unlock()
	}

	l1.Unlock()
	acquired3, err := l2.TryLock()
	if err != nil || !acquired3 {
		t.Fatalf("l2 should acquire after release: %v", err)
	}
	l2.Unlock()
}

func TestSemaphore(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() || !sem.TryAcquire() {
		t.Fatal("first two acquires should succeed")
	}
	if sem.TryAcquire() {
		t.Error("third acquire should fail (cap=2)")
	}
	sem.Release()
	if sem.Available() != 1 {
		t.Errorf("Available() = %d, want 1", sem.Available())
	}
}
