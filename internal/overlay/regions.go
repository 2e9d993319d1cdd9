package overlay

import "github.com/dgnsrekt/tabshell/internal/types"

// SetInteractiveRegions replaces the rectangles where the overlay takes input.
func (c *Coordinator) SetInteractiveRegions(regions []types.Rect) {
	cp := make([]types.Rect, 0, len(regions))
	for _, r := range regions {
		if r.Width > 0 && r.Height > 0 {
			cp = append(cp, r)
		}
	}
	c.mu.Lock()
	c.regions = cp
	c.mu.Unlock()
}

// InteractiveRegions returns a copy of the declared regions.
func (c *Coordinator) InteractiveRegions() []types.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Rect(nil), c.regions...)
}

// Intercepts reports whether a pointer at (x, y) belongs to the overlay.
// An open settings panel takes every event; otherwise only declared regions
// do and the rest falls through to the page.
func (c *Coordinator) Intercepts(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SettingsOpen {
		return true
	}
	for _, r := range c.regions {
		if r.Contains(x, y) {
			return true
		}
	}
	return false
}
