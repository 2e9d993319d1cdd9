package tabs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tabshell/internal/types"
)

// View is the browsing context backing one tab.
type View interface {
	SetVisible(ctx context.Context, visible bool) error
	SetBounds(ctx context.Context, b types.ViewBounds) error
}

// MetadataReporter is implemented by views that remember their navigation
// metadata. Updates reported before the tab is registered are read back
// from it.
type MetadataReporter interface {
	Metadata() types.TabMetadata
}

// Factory creates and destroys views. Destroy must be idempotent and must
// not fail.
type Factory interface {
	Create(ctx context.Context, url string, onChange func(types.TabMetadata)) (View, error)
	Destroy(ctx context.Context, v View)
}

// StateStore receives the active tab id whenever it changes. An empty id
// means no tab is active.
type StateStore interface {
	SetLastActiveTab(id string)
}

// FallbackPolicy picks the next active tab when the active one is closed and
// it has no successor.
type FallbackPolicy int

const (
	// FallbackPredecessor activates the tab that preceded the closed one.
	FallbackPredecessor FallbackPolicy = iota
	// FallbackFirst activates the first remaining tab.
	FallbackFirst
)

func (p FallbackPolicy) String() string {
	if p == FallbackFirst {
		return "first"
	}
	return "predecessor"
}

// Event kinds published through Options.Notify.
const (
	EventCreating  = "creating"
	EventCreated   = "created"
	EventClosed    = "closed"
	EventActivated = "activated"
	EventUpdated   = "updated"
	EventHidden    = "hidden"
	EventShown     = "shown"
)

// Event describes a change in the registry.
type Event struct {
	Kind  string `json:"kind"`
	TabID string `json:"tab_id,omitempty"`
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	NewID     func() string
	Now       func() time.Time
	OpTimeout time.Duration
	Fallback  FallbackPolicy
	Notify    func(Event)
}

type entry struct {
	tab  types.Tab
	view View
}

type op struct {
	fn  func(ctx context.Context) error
	ctx context.Context
	res chan error
}

// Manager is the tab registry and lifecycle manager.
type Manager struct {
	factory Factory
	state   StateStore
	opts    Options

	ops       chan op
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	tabs      []*entry
	activeID  string
	nextPos   int
	hidden    bool
	bounds    types.ViewBounds
	hasBounds bool
}

// NewManager creates a Manager and starts its actor goroutine.
func NewManager(factory Factory, state StateStore, opts Options) *Manager {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	m := &Manager{
		factory: factory,
		state:   state,
		opts:    opts,
		ops:     make(chan op),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case o := <-m.ops:
			o.res <- m.execute(o)
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) execute(o op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tab operation panicked", "panic", r)
			err = types.NewError(types.CodeCDPUnavailable, "tab operation panicked", nil)
		}
	}()
	// In-flight operations are never cancelled by the caller.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), m.opts.OpTimeout)
	defer cancel()
	return o.fn(ctx)
}

// do runs fn on the actor goroutine and waits for its result. ctx only
// bounds the wait for the actor to accept the operation; once accepted, the
// caller gets the real outcome, which OpTimeout bounds.
func (m *Manager) do(ctx context.Context, fn func(ctx context.Context) error) error {
	o := op{fn: fn, ctx: ctx, res: make(chan error, 1)}
	select {
	case m.ops <- o:
	case <-m.quit:
		return types.NewError(types.CodeClosed, "tab manager closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-o.res
}

func (m *Manager) notify(kind, tabID string) {
	if m.opts.Notify != nil {
		m.opts.Notify(Event{Kind: kind, TabID: tabID})
	}
}

func (m *Manager) setLastActive(id string) {
	if m.state != nil {
		m.state.SetLastActiveTab(id)
	}
}

// indexOf must be called with m.mu held.
func (m *Manager) indexOf(id string) int {
	for i, e := range m.tabs {
		if e.tab.ID == id {
			return i
		}
	}
	return -1
}

// CreateTab builds a view for url, appends the tab and makes it active.
// A creation failure leaves the registry untouched.
func (m *Manager) CreateTab(ctx context.Context, url string) (string, error) {
	id := m.opts.NewID()
	err := m.do(ctx, func(ctx context.Context) error {
		m.notify(EventCreating, id)
		v, err := m.factory.Create(ctx, url, func(meta types.TabMetadata) {
			m.UpdateMetadata(id, meta)
		})
		if err != nil {
			if !types.HasCode(err, types.CodeCreation) {
				err = types.CreationError(url, err)
			}
			slog.Warn("tab create failed", "tab_id", id, "url", url, "error", err)
			return err
		}

		tab := types.Tab{
			ID:        id,
			URL:       url,
			Position:  m.nextPos,
			CreatedAt: m.opts.Now(),
		}
		if r, ok := v.(MetadataReporter); ok {
			mergeMetadata(&tab, r.Metadata())
		}
		m.mu.Lock()
		m.tabs = append(m.tabs, &entry{view: v, tab: tab})
		m.nextPos++
		m.mu.Unlock()

		slog.Info("tab created", "tab_id", id, "url", url)
		m.notify(EventCreated, id)
		return m.switchTo(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SwitchTab makes id the active tab. Switching to the active tab is a no-op.
func (m *Manager) SwitchTab(ctx context.Context, id string) error {
	return m.do(ctx, func(ctx context.Context) error {
		return m.switchTo(ctx, id)
	})
}

// switchTo runs on the actor goroutine. Flags flip under one lock so readers
// never see two active tabs; the previous view is hidden before the target
// is shown.
func (m *Manager) switchTo(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return types.NotFoundError(id)
	}
	if m.activeID == id {
		m.mu.Unlock()
		return nil
	}
	var prev View
	if p := m.indexOf(m.activeID); p >= 0 {
		prev = m.tabs[p].view
	}
	for _, e := range m.tabs {
		e.tab.Active = e.tab.ID == id
	}
	m.activeID = id
	next := m.tabs[idx].view
	hidden, bounds, hasBounds := m.hidden, m.bounds, m.hasBounds
	m.mu.Unlock()

	if prev != nil {
		if err := prev.SetVisible(ctx, false); err != nil {
			slog.Warn("previous view hide failed", "error", err)
		}
	}
	if hasBounds {
		if err := next.SetBounds(ctx, bounds); err != nil {
			slog.Warn("view bounds apply failed", "tab_id", id, "error", err)
		}
	}
	if !hidden {
		if err := next.SetVisible(ctx, true); err != nil {
			slog.Warn("view show failed", "tab_id", id, "error", err)
		}
	}

	m.setLastActive(id)
	slog.Debug("tab activated", "tab_id", id)
	m.notify(EventActivated, id)
	return nil
}

// CloseTab destroys the tab's view and removes it. When the active tab is
// closed its successor becomes active, falling back per Options.Fallback.
func (m *Manager) CloseTab(ctx context.Context, id string) error {
	return m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		idx := m.indexOf(id)
		if idx < 0 {
			m.mu.Unlock()
			return types.NotFoundError(id)
		}
		closed := m.tabs[idx]
		m.tabs = append(m.tabs[:idx:idx], m.tabs[idx+1:]...)

		wasActive := m.activeID == id
		var next *entry
		if wasActive {
			m.activeID = ""
			if n := m.successor(idx); n != nil {
				next = n
				next.tab.Active = true
				m.activeID = next.tab.ID
			}
		}
		hidden, bounds, hasBounds := m.hidden, m.bounds, m.hasBounds
		m.mu.Unlock()

		m.factory.Destroy(ctx, closed.view)
		slog.Info("tab closed", "tab_id", id, "was_active", wasActive)
		m.notify(EventClosed, id)

		if !wasActive {
			return nil
		}
		if next == nil {
			m.setLastActive("")
			return nil
		}
		if hasBounds {
			if err := next.view.SetBounds(ctx, bounds); err != nil {
				slog.Warn("view bounds apply failed", "tab_id", next.tab.ID, "error", err)
			}
		}
		if !hidden {
			if err := next.view.SetVisible(ctx, true); err != nil {
				slog.Warn("view show failed", "tab_id", next.tab.ID, "error", err)
			}
		}
		m.setLastActive(next.tab.ID)
		m.notify(EventActivated, next.tab.ID)
		return nil
	})
}

// successor picks the next active entry after removal at idx. Must be called
// with m.mu held.
func (m *Manager) successor(idx int) *entry {
	if len(m.tabs) == 0 {
		return nil
	}
	if idx < len(m.tabs) {
		return m.tabs[idx]
	}
	if m.opts.Fallback == FallbackFirst {
		return m.tabs[0]
	}
	return m.tabs[len(m.tabs)-1]
}

// HideActiveView hides the active view without changing which tab is
// active. Redundant calls are no-ops.
func (m *Manager) HideActiveView(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		return m.setHidden(ctx, true)
	})
}

// ShowActiveView reverses HideActiveView.
func (m *Manager) ShowActiveView(ctx context.Context) error {
	return m.do(ctx, func(ctx context.Context) error {
		return m.setHidden(ctx, false)
	})
}

func (m *Manager) setHidden(ctx context.Context, hidden bool) error {
	m.mu.Lock()
	if m.hidden == hidden {
		m.mu.Unlock()
		return nil
	}
	m.hidden = hidden
	var active View
	if idx := m.indexOf(m.activeID); idx >= 0 {
		active = m.tabs[idx].view
	}
	m.mu.Unlock()

	kind := EventShown
	if hidden {
		kind = EventHidden
	}
	m.notify(kind, "")
	if active == nil {
		return nil
	}
	return active.SetVisible(ctx, !hidden)
}

// ViewHidden reports whether the active view is currently hidden by an overlay.
func (m *Manager) ViewHidden() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hidden
}

// ApplyBounds records the content-area bounds and pushes them to the active
// view. It bypasses the actor queue so geometry never waits behind a page
// load; views ignore bounds once disposed.
func (m *Manager) ApplyBounds(ctx context.Context, b types.ViewBounds) error {
	m.mu.Lock()
	m.bounds, m.hasBounds = b, true
	var active View
	if idx := m.indexOf(m.activeID); idx >= 0 {
		active = m.tabs[idx].view
	}
	m.mu.Unlock()

	if active == nil {
		return nil
	}
	if err := active.SetBounds(ctx, b); err != nil {
		if types.HasCode(err, types.CodeClosed) {
			slog.Debug("bounds dropped for disposed view", "error", err)
			return nil
		}
		return err
	}
	return nil
}

// UpdateMetadata merges navigation feedback into the tab record. Unknown ids
// are ignored; the view may report before its tab is registered.
func (m *Manager) UpdateMetadata(id string, meta types.TabMetadata) {
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	mergeMetadata(&m.tabs[idx].tab, meta)
	m.mu.Unlock()
	m.notify(EventUpdated, id)
}

// mergeMetadata copies the non-empty fields of meta onto t.
func mergeMetadata(t *types.Tab, meta types.TabMetadata) {
	if meta.URL != "" {
		t.URL = meta.URL
	}
	if meta.Title != "" {
		t.Title = meta.Title
	}
	if meta.Favicon != "" {
		t.Favicon = meta.Favicon
	}
}

// Tabs returns the tabs in position order.
func (m *Manager) Tabs() []types.Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Tab, len(m.tabs))
	for i, e := range m.tabs {
		out[i] = e.tab
	}
	return out
}

// ActiveTabID returns the active tab id, or false when there are no tabs.
func (m *Manager) ActiveTabID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID, m.activeID != ""
}

// Close destroys every view and stops the actor. Later operations fail with
// a CLOSED error.
func (m *Manager) Close(ctx context.Context) error {
	err := m.do(ctx, func(ctx context.Context) error {
		m.mu.Lock()
		all := m.tabs
		m.tabs = nil
		m.activeID = ""
		m.mu.Unlock()
		for _, e := range all {
			m.factory.Destroy(ctx, e.view)
		}
		if len(all) > 0 {
			m.setLastActive("")
		}
		slog.Info("tab manager closed", "destroyed", len(all))
		return nil
	})
	m.closeOnce.Do(func() { close(m.quit) })
	<-m.stopped
	if types.HasCode(err, types.CodeClosed) {
		return nil
	}
	return err
}
