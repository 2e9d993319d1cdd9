package geometry

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display frame at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// FrameScheduler runs a function at the next frame boundary.
type FrameScheduler interface {
	Schedule(fn func())
}

// TimerScheduler fires scheduled functions on a fixed frame interval.
type TimerScheduler struct {
	Interval time.Duration
}

func (s TimerScheduler) Schedule(fn func()) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	time.AfterFunc(interval, fn)
}

// ManualScheduler holds scheduled functions until Tick is called. It stands
// in for the frame clock in tests.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

// Tick runs every function scheduled before the call and returns how many ran.
func (s *ManualScheduler) Tick() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending returns the number of functions waiting for the next Tick.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
