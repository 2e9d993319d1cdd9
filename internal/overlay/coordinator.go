// Package overlay tracks the shell chrome state and decides when the active
// view must step aside for it.
package overlay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/tabshell/internal/types"
)

// Visibility is the slice of the tab manager the coordinator drives.
type Visibility interface {
	HideActiveView(ctx context.Context) error
	ShowActiveView(ctx context.Context) error
}

// State is the overlay interaction state. Latches pin chrome open without
// hiding the page and survive focus loss and tab switches.
type State struct {
	Focused        bool `json:"focused"`
	HeaderOpen     bool `json:"header_open"`
	SidebarOpen    bool `json:"sidebar_open"`
	HeaderLatched  bool `json:"header_latched"`
	SidebarLatched bool `json:"sidebar_latched"`
	SettingsOpen   bool `json:"settings_open"`
}

// covering reports whether some open chrome competes with the page.
func (s State) covering() bool {
	return (s.HeaderOpen && !s.HeaderLatched) ||
		(s.SidebarOpen && !s.SidebarLatched) ||
		s.SettingsOpen
}

// Coordinator serializes overlay transitions and turns them into hide/show
// requests on the active view.
type Coordinator struct {
	vis      Visibility
	onChange func(State)

	// transition orders updates end to end, including the visibility
	// request. mu only guards the fields below, so readers never wait on
	// the tab manager.
	transition sync.Mutex

	mu      sync.Mutex
	state   State
	regions []types.Rect
}

// NewCoordinator creates a Coordinator. onChange may be nil.
func NewCoordinator(vis Visibility, onChange func(State)) *Coordinator {
	return &Coordinator{vis: vis, onChange: onChange}
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// update applies fn and issues at most one visibility request when the
// covering state flips.
func (c *Coordinator) update(ctx context.Context, fn func(*State)) (State, error) {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.Lock()
	before := c.state
	fn(&c.state)
	after := c.state
	c.mu.Unlock()

	var err error
	switch {
	case !before.covering() && after.covering():
		err = c.vis.HideActiveView(ctx)
	case before.covering() && !after.covering():
		err = c.vis.ShowActiveView(ctx)
	}
	if err != nil {
		slog.Warn("overlay visibility change failed", "error", err)
	}
	if before != after && c.onChange != nil {
		c.onChange(after)
	}
	return after, err
}

func (c *Coordinator) SetFocused(ctx context.Context, focused bool) error {
	_, err := c.update(ctx, func(s *State) { s.Focused = focused })
	return err
}

func (c *Coordinator) SetHeaderOpen(ctx context.Context, open bool) error {
	_, err := c.update(ctx, func(s *State) { s.HeaderOpen = open })
	return err
}

func (c *Coordinator) SetSidebarOpen(ctx context.Context, open bool) error {
	_, err := c.update(ctx, func(s *State) { s.SidebarOpen = open })
	return err
}

func (c *Coordinator) SetHeaderLatched(ctx context.Context, latched bool) error {
	_, err := c.update(ctx, func(s *State) { s.HeaderLatched = latched })
	return err
}

func (c *Coordinator) SetSidebarLatched(ctx context.Context, latched bool) error {
	_, err := c.update(ctx, func(s *State) { s.SidebarLatched = latched })
	return err
}

// ToggleHeaderLatch flips the header latch and returns the new value.
func (c *Coordinator) ToggleHeaderLatch(ctx context.Context) (bool, error) {
	s, err := c.update(ctx, func(s *State) { s.HeaderLatched = !s.HeaderLatched })
	return s.HeaderLatched, err
}

// ToggleSidebarLatch flips the sidebar latch and returns the new value.
func (c *Coordinator) ToggleSidebarLatch(ctx context.Context) (bool, error) {
	s, err := c.update(ctx, func(s *State) { s.SidebarLatched = !s.SidebarLatched })
	return s.SidebarLatched, err
}

// ResetOpen closes header and sidebar without touching latches. Used when
// focus returns to page content.
func (c *Coordinator) ResetOpen(ctx context.Context) error {
	_, err := c.update(ctx, func(s *State) {
		s.HeaderOpen = false
		s.SidebarOpen = false
	})
	return err
}

// SetSettingsOpen hides the view while the settings panel is open. The ack
// is true once the visibility change has been applied.
func (c *Coordinator) SetSettingsOpen(ctx context.Context, open bool) (bool, error) {
	_, err := c.update(ctx, func(s *State) { s.SettingsOpen = open })
	if err != nil {
		return false, err
	}
	return true, nil
}

// Patch sets any subset of the overlay flags in one transition.
type Patch struct {
	Focused        *bool `json:"focused,omitempty"`
	HeaderOpen     *bool `json:"header_open,omitempty"`
	SidebarOpen    *bool `json:"sidebar_open,omitempty"`
	HeaderLatched  *bool `json:"header_latched,omitempty"`
	SidebarLatched *bool `json:"sidebar_latched,omitempty"`
}

// Apply sets every non-nil field of p at once, so mixed changes produce at
// most one hide or show.
func (c *Coordinator) Apply(ctx context.Context, p Patch) (State, error) {
	return c.update(ctx, func(s *State) {
		set := func(dst *bool, v *bool) {
			if v != nil {
				*dst = *v
			}
		}
		set(&s.Focused, p.Focused)
		set(&s.HeaderOpen, p.HeaderOpen)
		set(&s.SidebarOpen, p.SidebarOpen)
		set(&s.HeaderLatched, p.HeaderLatched)
		set(&s.SidebarLatched, p.SidebarLatched)
	})
}

// Covering reports whether open chrome currently requires the view hidden.
func (c *Coordinator) Covering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.covering()
}
