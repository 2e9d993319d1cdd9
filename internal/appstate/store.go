// Package appstate holds the process-lifetime application state record.
package appstate

import (
	"sync"
	"time"
)

// Record is the application state shared with the shell surface.
type Record struct {
	TrayMode        bool      `json:"tray_mode"`
	WindowMinimized bool      `json:"window_minimized"`
	WindowMaximized bool      `json:"window_maximized"`
	LastActiveTabID *string   `json:"last_active_tab_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store guards a Record. It starts empty on every launch.
type Store struct {
	mu       sync.RWMutex
	rec      Record
	now      func() time.Time
	onChange func(Record)
}

// New returns a reset Store. onChange, if set, receives a copy after every
// mutation that changed the record.
func New(onChange func(Record)) *Store {
	s := &Store{now: time.Now, onChange: onChange}
	s.rec.UpdatedAt = s.now()
	return s
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Record {
	rec := s.rec
	if rec.LastActiveTabID != nil {
		id := *rec.LastActiveTabID
		rec.LastActiveTabID = &id
	}
	return rec
}

func (s *Store) mutate(fn func(r *Record) bool) {
	s.mu.Lock()
	if !fn(&s.rec) {
		s.mu.Unlock()
		return
	}
	s.rec.UpdatedAt = s.now()
	rec := s.copyLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(rec)
	}
}

func (s *Store) SetTrayMode(on bool) {
	s.mutate(func(r *Record) bool {
		if r.TrayMode == on {
			return false
		}
		r.TrayMode = on
		return true
	})
}

// SetMinimized records the window minimized flag. The maximized flag is
// kept so a restore returns to it.
func (s *Store) SetMinimized(on bool) {
	s.mutate(func(r *Record) bool {
		if r.WindowMinimized == on {
			return false
		}
		r.WindowMinimized = on
		return true
	})
}

// SetMaximized records the maximized flag and leaves the minimized state.
func (s *Store) SetMaximized(on bool) {
	s.mutate(func(r *Record) bool {
		if r.WindowMaximized == on && !r.WindowMinimized {
			return false
		}
		r.WindowMaximized = on
		r.WindowMinimized = false
		return true
	})
}

// SetLastActiveTab records the active tab id. An empty id stores null.
func (s *Store) SetLastActiveTab(id string) {
	s.mutate(func(r *Record) bool {
		cur := ""
		if r.LastActiveTabID != nil {
			cur = *r.LastActiveTabID
		}
		if cur == id {
			return false
		}
		if id == "" {
			r.LastActiveTabID = nil
		} else {
			r.LastActiveTabID = &id
		}
		return true
	})
}
