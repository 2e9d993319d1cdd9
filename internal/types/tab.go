package types

import "time"

// Tab is a read-only snapshot of a browsing session entry held by the tab registry.
type Tab struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Favicon   string    `json:"favicon,omitempty"`
	Position  int       `json:"position"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// TabMetadata carries navigation feedback reported by a browsing context.
// Empty fields leave the current value untouched.
type TabMetadata struct {
	URL     string
	Title   string
	Favicon string
}

// TabProvider is an interface for reading tab snapshots.
// This breaks the import cycle between the registry and its consumers.
type TabProvider interface {
	Tabs() []Tab
	ActiveTabID() (string, bool)
}
