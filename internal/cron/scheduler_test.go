package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextRunTime_Daily(t *testing.T) {
	after := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	next, err := NextRunTime("0 6 * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
}

func TestNextRunTime_Invalid(t *testing.T) {
	if _, err := NextRunTime("not a cron expr", time.Now()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(Config{
		Schedule: "bogus",
		Job:      func(context.Context) error { return nil },
	})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStart_EmptyScheduleDisabled(t *testing.T) {
	s := NewScheduler(Config{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("empty schedule should disable, not fail: %v", err)
	}
	if !s.NextRun().IsZero() {
		t.Fatal("disabled scheduler should report zero next run")
	}
	s.Stop()
}

func TestTick_FiresWhenDue(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(Config{
		Schedule: "* * * * *",
		Job: func(context.Context) error {
			fired.Add(1)
			return nil
		},
	})

	now := time.Date(2026, 8, 20, 10, 0, 30, 0, time.UTC)
	s.nextRun = now.Add(-time.Second)

	s.tick(context.Background(), now)
	if fired.Load() != 1 {
		t.Fatalf("job fired %d times, want 1", fired.Load())
	}
	if !s.NextRun().After(now) {
		t.Fatalf("next run %v should advance past %v", s.NextRun(), now)
	}

	// Not due anymore; same tick time must not double-fire.
	s.tick(context.Background(), now)
	if fired.Load() != 1 {
		t.Fatalf("job fired %d times after second tick, want 1", fired.Load())
	}
}

func TestTick_NotDue(t *testing.T) {
	var fired atomic.Int32
	s := NewScheduler(Config{
		Schedule: "* * * * *",
		Job: func(context.Context) error {
			fired.Add(1)
			return nil
		},
	})
	now := time.Now()
	s.nextRun = now.Add(time.Hour)

	s.tick(context.Background(), now)
	if fired.Load() != 0 {
		t.Fatalf("job fired %d times, want 0", fired.Load())
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(Config{
		Schedule: "0 6 * * *",
		Job:      func(context.Context) error { return nil },
		Interval: 10 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.NextRun().IsZero() {
		t.Fatal("expected next run to be scheduled")
	}
	s.Stop()
}
