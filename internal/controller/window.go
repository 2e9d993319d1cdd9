package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"

	"github.com/dgnsrekt/tabshell/internal/appstate"
	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/types"
)

// shellWindow is the CDP handle on the shell page and its window.
type shellWindow struct {
	t      cdp.Transport
	prefix string

	mu        sync.Mutex
	targetID  target.ID
	sessionID target.SessionID
	windowID  int64
}

func newShellWindow(t cdp.Transport, urlPrefix string) *shellWindow {
	return &shellWindow{t: t, prefix: urlPrefix}
}

func (w *shellWindow) session() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.sessionID)
}

// attach finds the page serving the shell and opens a flat session on it.
func (w *shellWindow) attach(ctx context.Context) error {
	ectx := cdp.WithSession(ctx, w.t, "")
	infos, err := target.GetTargets().Do(ectx)
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "list targets", err)
	}
	var found *target.Info
	for _, info := range infos {
		if info.Type == "page" && strings.HasPrefix(info.URL, w.prefix) {
			found = info
			break
		}
	}
	if found == nil {
		return types.NewError(types.CodeCDPUnavailable, "shell page not found: "+w.prefix, nil)
	}
	sessionID, err := target.AttachToTarget(found.TargetID).WithFlatten(true).Do(ectx)
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "attach shell", err)
	}

	w.mu.Lock()
	w.targetID, w.sessionID = found.TargetID, sessionID
	w.mu.Unlock()
	slog.Info("shell attached", "target_id", found.TargetID, "session_id", sessionID)
	return nil
}

func (w *shellWindow) window(ctx context.Context) (int64, error) {
	w.mu.Lock()
	id, tid := w.windowID, w.targetID
	w.mu.Unlock()
	if id != 0 {
		return id, nil
	}
	if tid == "" {
		return 0, types.NewError(types.CodeCDPUnavailable, "shell window not attached", nil)
	}
	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: string(tid)}
	raw, err := w.t.Send(ctx, "", "Browser.getWindowForTarget", params)
	if err != nil {
		return 0, types.NewError(types.CodeCDPUnavailable, "get shell window", err)
	}
	var resp struct {
		WindowID int64 `json:"windowId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode shell window: %w", err)
	}
	w.mu.Lock()
	w.windowID = resp.WindowID
	w.mu.Unlock()
	return resp.WindowID, nil
}

func (w *shellWindow) setState(ctx context.Context, state string) error {
	id, err := w.window(ctx)
	if err != nil {
		return err
	}
	params := struct {
		WindowID int64 `json:"windowId"`
		Bounds   struct {
			WindowState string `json:"windowState"`
		} `json:"bounds"`
	}{WindowID: id}
	params.Bounds.WindowState = state
	if _, err := w.t.Send(ctx, "", "Browser.setWindowBounds", params); err != nil {
		return types.NewError(types.CodeCDPUnavailable, "set shell window "+state, err)
	}
	return nil
}

// Minimize minimizes the shell and hides the active view with it.
func (s *Service) Minimize(ctx context.Context) (appstate.Record, error) {
	if err := s.shell.setState(ctx, "minimized"); err != nil {
		return s.state.Snapshot(), err
	}
	s.state.SetMinimized(true)
	if err := s.tabs.HideActiveView(ctx); err != nil {
		slog.Warn("hide view on minimize failed", "error", err)
	}
	return s.state.Snapshot(), nil
}

func (s *Service) Maximize(ctx context.Context) (appstate.Record, error) {
	if err := s.shell.setState(ctx, "maximized"); err != nil {
		return s.state.Snapshot(), err
	}
	s.state.SetMaximized(true)
	s.revealAfterRestore(ctx)
	s.RequestResize(ctx, nil)
	return s.state.Snapshot(), nil
}

// Restore returns the shell to its normal window state. The active view is
// shown again unless open overlay chrome still covers it.
func (s *Service) Restore(ctx context.Context) (appstate.Record, error) {
	if err := s.shell.setState(ctx, "normal"); err != nil {
		return s.state.Snapshot(), err
	}
	s.state.SetMinimized(false)
	s.state.SetMaximized(false)
	s.revealAfterRestore(ctx)
	s.RequestResize(ctx, nil)
	return s.state.Snapshot(), nil
}

func (s *Service) revealAfterRestore(ctx context.Context) {
	if s.overlay.Covering() {
		return
	}
	if err := s.tabs.ShowActiveView(ctx); err != nil {
		slog.Warn("show view on restore failed", "error", err)
	}
}

// SetTrayMode records tray mode. Entering the tray minimizes the shell.
func (s *Service) SetTrayMode(ctx context.Context, on bool) (appstate.Record, error) {
	s.state.SetTrayMode(on)
	if on {
		return s.Minimize(ctx)
	}
	return s.state.Snapshot(), nil
}
