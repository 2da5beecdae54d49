package pace

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClock_Ticks(t *testing.T) {
	var ticks atomic.Int64
	c := New(5*time.Millisecond, func() { ticks.Add(1) })
	defer c.Stop()

	if got := c.State(); got != Idle {
		t.Fatalf("state = %v before start, want idle", got)
	}
	c.Start()
	if got := c.State(); got != Running {
		t.Fatalf("state = %v after start, want running", got)
	}
	waitFor(t, func() bool { return ticks.Load() >= 3 }, "clock never reached 3 ticks")
}

func TestClock_PauseStopsTicks(t *testing.T) {
	var ticks atomic.Int64
	c := New(5*time.Millisecond, func() { ticks.Add(1) })
	defer c.Stop()

	c.Start()
	waitFor(t, func() bool { return ticks.Load() >= 1 }, "clock never ticked")

	c.Pause()
	if got := c.State(); got != Paused {
		t.Fatalf("state = %v after pause, want paused", got)
	}
	time.Sleep(30 * time.Millisecond) // let any in-flight tick land
	before := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if after := ticks.Load(); after != before {
		t.Errorf("ticks advanced from %d to %d while paused", before, after)
	}

	c.Resume()
	if got := c.State(); got != Running {
		t.Fatalf("state = %v after resume, want running", got)
	}
	resumedAt := ticks.Load()
	waitFor(t, func() bool { return ticks.Load() > resumedAt }, "clock did not tick after resume")
}

func TestClock_StopIsTerminal(t *testing.T) {
	var ticks atomic.Int64
	c := New(5*time.Millisecond, func() { ticks.Add(1) })

	c.Start()
	c.Stop()
	c.Stop() // idempotent
	if got := c.State(); got != Done {
		t.Fatalf("state = %v after stop, want done", got)
	}

	// None of these revive a stopped clock.
	c.Start()
	c.Resume()
	c.Pause()
	if got := c.State(); got != Done {
		t.Errorf("state = %v after post-stop calls, want done", got)
	}

	time.Sleep(20 * time.Millisecond)
	before := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if after := ticks.Load(); after != before {
		t.Errorf("ticks advanced from %d to %d after stop", before, after)
	}
}

func TestClock_PauseResumeGuards(t *testing.T) {
	c := New(time.Millisecond, func() {})
	defer c.Stop()

	c.Pause() // not running yet
	if got := c.State(); got != Idle {
		t.Errorf("state = %v after idle pause, want idle", got)
	}
	c.Resume() // not paused
	if got := c.State(); got != Idle {
		t.Errorf("state = %v after idle resume, want idle", got)
	}

	c.Start()
	c.Resume() // running, not paused
	if got := c.State(); got != Running {
		t.Errorf("state = %v after running resume, want running", got)
	}
}

func TestClock_StopBeforeStart(t *testing.T) {
	c := New(time.Millisecond, func() {})
	c.Stop()
	c.Start()
	if got := c.State(); got != Done {
		t.Errorf("state = %v, want done", got)
	}
}
