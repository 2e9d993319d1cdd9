// Package geometry keeps the active view's screen rectangle aligned with the
// shell's content area.
package geometry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dgnsrekt/tabshell/internal/types"
)

// Sink receives computed bounds.
type Sink interface {
	ApplyBounds(ctx context.Context, b types.ViewBounds) error
}

// Measurer reports the content-area rectangle in screen CSS pixels.
type Measurer interface {
	Measure(ctx context.Context) (types.Rect, error)
}

// Flush outcomes reported through Config.OnOutcome.
const (
	OutcomeApplied    = "applied"
	OutcomeDeduped    = "deduped"
	OutcomeInvalid    = "invalid"
	OutcomeSuppressed = "suppressed"
	OutcomeError      = "error"
)

// Config tunes a Synchronizer.
type Config struct {
	Margins      types.Margins
	ScaleFactor  float64
	FlushTimeout time.Duration
	OnOutcome    func(outcome string)
}

type request struct {
	offsets *types.Offsets
}

// Synchronizer coalesces bounds requests to at most one push per frame.
// Only the last request seen before a frame boundary is computed.
type Synchronizer struct {
	sink     Sink
	measurer Measurer
	sched    FrameScheduler
	validate *validator.Validate
	cfg      Config

	mu        sync.Mutex
	pending   *request
	scheduled bool
	dragging  bool
	last      types.ViewBounds
	hasLast   bool
}

// New creates a Synchronizer. A nil scheduler selects a 60 Hz timer.
func New(sink Sink, measurer Measurer, sched FrameScheduler, cfg Config) *Synchronizer {
	if sched == nil {
		sched = TimerScheduler{}
	}
	if cfg.ScaleFactor <= 0 {
		cfg.ScaleFactor = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	return &Synchronizer{
		sink:     sink,
		measurer: measurer,
		sched:    sched,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// RequestUpdate queues a bounds recomputation and returns immediately.
// A nil offsets value measures the content area at flush time.
func (s *Synchronizer) RequestUpdate(offsets *types.Offsets) {
	if offsets != nil {
		o := *offsets
		offsets = &o
	}
	s.mu.Lock()
	s.pending = &request{offsets: offsets}
	schedule := !s.scheduled && !s.dragging
	if schedule {
		s.scheduled = true
	}
	s.mu.Unlock()

	if schedule {
		s.sched.Schedule(s.flush)
	}
}

// SetDragging suspends pushes while a drag is in progress. The latest request
// is flushed when the drag ends.
func (s *Synchronizer) SetDragging(dragging bool) {
	s.mu.Lock()
	s.dragging = dragging
	schedule := !dragging && s.pending != nil && !s.scheduled
	if schedule {
		s.scheduled = true
	}
	s.mu.Unlock()

	if schedule {
		s.sched.Schedule(s.flush)
	}
}

// Dragging reports whether pushes are suspended.
func (s *Synchronizer) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging
}

// Reset forgets the last pushed rectangle so the next flush always applies.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.hasLast = false
	s.mu.Unlock()
}

// flush is the single per-frame worker. Requests arriving while it runs stay
// pending and get their own frame.
func (s *Synchronizer) flush() {
	s.mu.Lock()
	if s.dragging {
		s.scheduled = false
		s.mu.Unlock()
		s.report(OutcomeSuppressed)
		return
	}
	req := s.pending
	s.pending = nil
	s.mu.Unlock()

	if req != nil {
		s.process(req)
	}

	s.mu.Lock()
	again := s.pending != nil && !s.dragging
	s.scheduled = again
	s.mu.Unlock()
	if again {
		s.sched.Schedule(s.flush)
	}
}

func (s *Synchronizer) process(req *request) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("geometry flush panicked", "panic", r)
			s.report(OutcomeError)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
	defer cancel()

	b, err := s.compute(ctx, req)
	if err != nil {
		slog.Warn("geometry measure failed", "error", err)
		s.report(OutcomeError)
		return
	}
	if err := s.validate.Struct(b); err != nil {
		slog.Warn("geometry update dropped", "bounds", b.String(), "error", err)
		s.report(OutcomeInvalid)
		return
	}

	s.mu.Lock()
	if s.hasLast && s.last == b {
		s.mu.Unlock()
		s.report(OutcomeDeduped)
		return
	}
	s.mu.Unlock()

	if err := s.sink.ApplyBounds(ctx, b); err != nil {
		slog.Warn("geometry push failed", "bounds", b.String(), "error", err)
		s.report(OutcomeError)
		return
	}

	s.mu.Lock()
	s.last, s.hasLast = b, true
	s.mu.Unlock()
	slog.Debug("geometry pushed", "bounds", b.String())
	s.report(OutcomeApplied)
}

// compute turns a request into device-pixel bounds. Explicit offsets skip
// measurement and yield a position-only rectangle.
func (s *Synchronizer) compute(ctx context.Context, req *request) (types.ViewBounds, error) {
	m, scale := s.cfg.Margins, s.cfg.ScaleFactor
	if req.offsets != nil {
		return types.ViewBounds{
			Left: round((req.offsets.Left + m.Left) * scale),
			Top:  round((req.offsets.Top + m.Top) * scale),
		}, nil
	}
	if s.measurer == nil {
		return types.ViewBounds{}, fmt.Errorf("no measurer configured")
	}
	r, err := s.measurer.Measure(ctx)
	if err != nil {
		return types.ViewBounds{}, err
	}
	return types.ViewBounds{
		Left:   round((r.X + m.Left) * scale),
		Top:    round((r.Y + m.Top) * scale),
		Width:  round((r.Width - m.Left - m.Right) * scale),
		Height: round((r.Height - m.Top - m.Bottom) * scale),
	}, nil
}

func (s *Synchronizer) report(outcome string) {
	if s.cfg.OnOutcome != nil {
		s.cfg.OnOutcome(outcome)
	}
}

func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		// Out of range on purpose so validation rejects it.
		return math.MinInt32
	}
	return int(math.Round(v))
}
