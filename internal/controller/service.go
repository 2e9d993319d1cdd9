package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dgnsrekt/tabshell/internal/appstate"
	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/events"
	"github.com/dgnsrekt/tabshell/internal/geometry"
	"github.com/dgnsrekt/tabshell/internal/metrics"
	"github.com/dgnsrekt/tabshell/internal/overlay"
	"github.com/dgnsrekt/tabshell/internal/tabs"
	"github.com/dgnsrekt/tabshell/internal/types"
	"github.com/dgnsrekt/tabshell/internal/view"
)

// Options configures a Service.
type Options struct {
	View          view.Config
	Fallback      tabs.FallbackPolicy
	Margins       types.Margins
	ScaleFactor   float64
	FrameInterval time.Duration
	OpTimeout     time.Duration
	ShellURL      string
	StartupTabs   []string
	// Scheduler overrides the frame clock; nil uses a timer at FrameInterval.
	Scheduler geometry.FrameScheduler
	Metrics   *metrics.Metrics
}

// Service composes the tab manager, geometry sync, overlay coordinator and
// state store behind the control API. It is the only owner of each.
type Service struct {
	t        cdp.Transport
	opts     Options
	validate *validator.Validate

	broker  *events.Broker
	state   *appstate.Store
	factory *view.Factory
	tabs    *tabs.Manager
	overlay *overlay.Coordinator
	geo     *geometry.Synchronizer
	shell   *shellWindow
	metrics *metrics.Metrics
}

// New wires the components together. Call Start before serving requests.
func New(t cdp.Transport, opts Options) *Service {
	s := &Service{
		t:        t,
		opts:     opts,
		validate: validator.New(),
		metrics:  opts.Metrics,
	}

	s.broker = events.NewBroker(func(feed string) {
		if s.metrics != nil {
			s.metrics.EventsDropped.WithLabelValues(feed).Inc()
		}
	})
	s.state = appstate.New(func(r appstate.Record) {
		s.broker.Publish(events.FeedState, r)
	})
	s.factory = view.NewFactory(t, opts.View)
	s.tabs = tabs.NewManager(viewFactory{f: s.factory}, s.state, tabs.Options{
		Fallback:  opts.Fallback,
		OpTimeout: opts.OpTimeout,
		Notify:    s.onTabEvent,
	})
	s.overlay = overlay.NewCoordinator(s.tabs, func(st overlay.State) {
		s.broker.Publish(events.FeedOverlay, st)
	})
	s.shell = newShellWindow(t, opts.ShellURL)

	sched := opts.Scheduler
	if sched == nil {
		sched = geometry.TimerScheduler{Interval: opts.FrameInterval}
	}
	s.geo = geometry.New(s.tabs, geometry.ShellMeasurer{Eval: t, Session: s.shell.session}, sched, geometry.Config{
		Margins:     opts.Margins,
		ScaleFactor: opts.ScaleFactor,
		OnOutcome: func(outcome string) {
			if s.metrics != nil {
				s.metrics.GeometryFlushes.WithLabelValues(outcome).Inc()
			}
		},
	})

	s.factory.OnPopup(func(rawURL string) {
		go func() {
			ctx := context.Background()
			if _, err := s.CreateTab(ctx, rawURL); err != nil {
				slog.Warn("popup tab create failed", "url", rawURL, "error", err)
			}
		}()
	})
	return s
}

// Start enables target tracking, attaches to the shell page and opens the
// startup tabs. A failing startup tab is logged and skipped.
func (s *Service) Start(ctx context.Context) error {
	if err := s.factory.Start(ctx); err != nil {
		return err
	}
	if s.opts.ShellURL != "" {
		if err := s.shell.attach(ctx); err != nil {
			slog.Warn("shell attach failed; content-area measurement disabled", "error", err)
		}
	}
	for _, u := range s.opts.StartupTabs {
		if _, err := s.CreateTab(ctx, u); err != nil {
			slog.Warn("startup tab failed", "url", u, "error", err)
		}
	}
	slog.Info("tab service started", "tabs", len(s.tabs.Tabs()))
	return nil
}

// Close destroys every tab and stops target tracking.
func (s *Service) Close(ctx context.Context) error {
	err := s.tabs.Close(ctx)
	s.factory.Stop()
	return err
}

func (s *Service) onTabEvent(e tabs.Event) {
	list := s.tabs.Tabs()
	active, _ := s.tabs.ActiveTabID()
	if s.metrics != nil {
		s.metrics.TabsOpen.Set(float64(len(list)))
	}
	s.broker.Publish(events.FeedTabs, TabsEvent{
		Kind:        e.Kind,
		TabID:       e.TabID,
		Tabs:        list,
		ActiveTabID: active,
		ViewHidden:  s.tabs.ViewHidden(),
	})
}

// TabsEvent is the payload of the tabs feed.
type TabsEvent struct {
	Kind        string      `json:"kind"`
	TabID       string      `json:"tab_id,omitempty"`
	Tabs        []types.Tab `json:"tabs"`
	ActiveTabID string      `json:"active_tab_id,omitempty"`
	ViewHidden  bool        `json:"view_hidden"`
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTabOp(op, start, err)
	}
}

// validateURL accepts web and about: URLs only. Script and data URLs never
// reach a view.
func (s *Service) validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", types.NewError(types.CodeValidation, "url is required", nil)
	}
	if err := s.validate.Var(raw, "url"); err != nil {
		return "", types.NewError(types.CodeValidation, "url is malformed: "+raw, err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", types.NewError(types.CodeValidation, "url is malformed: "+raw, err)
	}
	switch u.Scheme {
	case "http", "https", "about":
		return raw, nil
	default:
		return "", types.NewError(types.CodeValidation, fmt.Sprintf("url scheme %q is not allowed", u.Scheme), nil)
	}
}

func (s *Service) CreateTab(ctx context.Context, rawURL string) (string, error) {
	start := time.Now()
	u, err := s.validateURL(rawURL)
	if err != nil {
		return "", err
	}
	id, err := s.tabs.CreateTab(ctx, u)
	s.observe("create", start, err)
	return id, err
}

func (s *Service) CloseTab(ctx context.Context, tabID string) error {
	start := time.Now()
	err := s.tabs.CloseTab(ctx, strings.TrimSpace(tabID))
	s.observe("close", start, err)
	return err
}

func (s *Service) SwitchTab(ctx context.Context, tabID string) error {
	start := time.Now()
	err := s.tabs.SwitchTab(ctx, strings.TrimSpace(tabID))
	s.observe("switch", start, err)
	return err
}

func (s *Service) ListTabs(ctx context.Context) []types.Tab {
	return s.tabs.Tabs()
}

func (s *Service) ActiveTab(ctx context.Context) (string, bool) {
	return s.tabs.ActiveTabID()
}

// RequestResize queues a geometry update. Nil offsets measure the shell's
// content area instead.
func (s *Service) RequestResize(ctx context.Context, offsets *types.Offsets) {
	s.geo.RequestUpdate(offsets)
}

func (s *Service) SetDragging(ctx context.Context, dragging bool) {
	s.geo.SetDragging(dragging)
}

func (s *Service) OverlayState(ctx context.Context) overlay.State {
	return s.overlay.State()
}

func (s *Service) UpdateOverlay(ctx context.Context, p overlay.Patch) (overlay.State, error) {
	return s.overlay.Apply(ctx, p)
}

func (s *Service) ToggleHeaderLatch(ctx context.Context) (bool, error) {
	return s.overlay.ToggleHeaderLatch(ctx)
}

func (s *Service) ToggleSidebarLatch(ctx context.Context) (bool, error) {
	return s.overlay.ToggleSidebarLatch(ctx)
}

func (s *Service) ResetOverlay(ctx context.Context) (overlay.State, error) {
	err := s.overlay.ResetOpen(ctx)
	return s.overlay.State(), err
}

func (s *Service) SettingsToggled(ctx context.Context, open bool) (bool, error) {
	return s.overlay.SetSettingsOpen(ctx, open)
}

func (s *Service) SetInteractiveRegions(ctx context.Context, regions []types.Rect) {
	s.overlay.SetInteractiveRegions(regions)
}

func (s *Service) PointerIntercepted(ctx context.Context, x, y float64) bool {
	return s.overlay.Intercepts(x, y)
}

func (s *Service) AppState(ctx context.Context) appstate.Record {
	return s.state.Snapshot()
}

// EventsHandler streams the tabs, overlay and state feeds.
func (s *Service) EventsHandler() http.Handler {
	return events.SSEHandler(s.broker, s.snapshotEvents)
}

// EventClients returns the number of connected event streams.
func (s *Service) EventClients() int {
	return s.broker.ClientCount()
}

func (s *Service) snapshotEvents() []events.Event {
	active, _ := s.tabs.ActiveTabID()
	snap := []struct {
		feed string
		v    any
	}{
		{events.FeedTabs, TabsEvent{Kind: "snapshot", Tabs: s.tabs.Tabs(), ActiveTabID: active, ViewHidden: s.tabs.ViewHidden()}},
		{events.FeedOverlay, s.overlay.State()},
		{events.FeedState, s.state.Snapshot()},
	}
	out := make([]events.Event, 0, len(snap))
	for _, e := range snap {
		payload, err := encodeJSON(e.v)
		if err != nil {
			slog.Warn("snapshot encode failed", "feed", e.feed, "error", err)
			continue
		}
		out = append(out, events.Event{Feed: e.feed, Payload: payload})
	}
	return out
}
