package view

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"

	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/types"
)

// View is one isolated browsing context: a private browser context holding a
// single page target in its own window.
type View struct {
	t cdp.Transport

	targetID         target.ID
	browserContextID cdpproto.BrowserContextID
	partition        string

	mu          sync.Mutex
	sessionID   target.SessionID
	windowID    int64
	inspectorID target.ID
	url         string
	title       string
	visible     bool
	bounds      types.ViewBounds
	hasBounds   bool
	disposed    bool
	hostGone    bool
	onChange    func(types.TabMetadata)
	unsubscribe []func()
}

// TargetID returns the page target backing the view.
func (v *View) TargetID() string { return string(v.targetID) }

// Partition returns the storage partition name of the view.
func (v *View) Partition() string { return v.partition }

// URL returns the last committed top-level URL.
func (v *View) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

// Visible reports whether the view's window is currently shown.
func (v *View) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Metadata returns the view's last recorded URL, title and favicon.
func (v *View) Metadata() types.TabMetadata {
	v.mu.Lock()
	defer v.mu.Unlock()
	return types.TabMetadata{URL: v.url, Title: v.title, Favicon: faviconFor(v.url)}
}

// Disposed reports whether Destroy already ran for the view.
func (v *View) Disposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}

func (v *View) session() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return string(v.sessionID)
}

type windowBounds struct {
	Left        *int   `json:"left,omitempty"`
	Top         *int   `json:"top,omitempty"`
	Width       int    `json:"width,omitzero"`
	Height      int    `json:"height,omitzero"`
	WindowState string `json:"windowState,omitempty"`
}

func (v *View) window(ctx context.Context) (int64, error) {
	v.mu.Lock()
	id := v.windowID
	v.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: string(v.targetID)}
	raw, err := v.t.Send(ctx, "", "Browser.getWindowForTarget", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		WindowID int64 `json:"windowId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode window id: %w", err)
	}

	v.mu.Lock()
	v.windowID = resp.WindowID
	v.mu.Unlock()
	return resp.WindowID, nil
}

func (v *View) setWindowBounds(ctx context.Context, b windowBounds) error {
	id, err := v.window(ctx)
	if err != nil {
		return err
	}
	params := struct {
		WindowID int64        `json:"windowId"`
		Bounds   windowBounds `json:"bounds"`
	}{WindowID: id, Bounds: b}
	_, err = v.t.Send(ctx, "", "Browser.setWindowBounds", params)
	return err
}

// SetVisible shows or hides the view's window without touching the page.
// Calling it with the current state is a no-op.
func (v *View) SetVisible(ctx context.Context, visible bool) error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return types.NewError(types.CodeClosed, "view already disposed: "+string(v.targetID), nil)
	}
	if v.visible == visible {
		v.mu.Unlock()
		return nil
	}
	bounds, hasBounds := v.bounds, v.hasBounds
	v.mu.Unlock()

	if !visible {
		if err := v.setWindowBounds(ctx, windowBounds{WindowState: "minimized"}); err != nil {
			return fmt.Errorf("hide view %s: %w", v.targetID, err)
		}
		v.setVisibleFlag(false)
		return nil
	}

	// Chrome rejects geometry combined with a non-normal state, so restore first.
	if err := v.setWindowBounds(ctx, windowBounds{WindowState: "normal"}); err != nil {
		return fmt.Errorf("show view %s: %w", v.targetID, err)
	}
	if err := target.ActivateTarget(v.targetID).Do(cdp.WithSession(ctx, v.t, "")); err != nil {
		return fmt.Errorf("activate view %s: %w", v.targetID, err)
	}
	v.setVisibleFlag(true)
	if hasBounds {
		if err := v.applyBounds(ctx, bounds); err != nil {
			slog.Warn("view bounds restore failed", "target_id", v.targetID, "bounds", bounds.String(), "error", err)
		}
	}
	return nil
}

func (v *View) setVisibleFlag(visible bool) {
	v.mu.Lock()
	v.visible = visible
	v.mu.Unlock()
}

// SetBounds records the rectangle the view should occupy and applies it when
// the view is visible. Hidden views pick the bounds up when shown.
func (v *View) SetBounds(ctx context.Context, b types.ViewBounds) error {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return types.NewError(types.CodeClosed, "view already disposed: "+string(v.targetID), nil)
	}
	v.bounds, v.hasBounds = b, true
	visible := v.visible
	v.mu.Unlock()

	if !visible {
		return nil
	}
	return v.applyBounds(ctx, b)
}

func (v *View) applyBounds(ctx context.Context, b types.ViewBounds) error {
	left, top := b.Left, b.Top
	wb := windowBounds{Left: &left, Top: &top}
	if b.HasSize() {
		wb.Width, wb.Height = b.Width, b.Height
	}
	return v.setWindowBounds(ctx, wb)
}

// record updates navigation metadata and notifies the owner. Empty values
// leave the stored field untouched.
func (v *View) record(rawURL, title string) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	changed := false
	if rawURL != "" && rawURL != v.url {
		v.url = rawURL
		changed = true
	}
	if title != "" && title != v.title {
		v.title = title
		changed = true
	}
	onChange := v.onChange
	meta := types.TabMetadata{URL: v.url, Title: v.title, Favicon: faviconFor(v.url)}
	v.mu.Unlock()

	if changed && onChange != nil {
		onChange(meta)
	}
}

func (v *View) markHostGone() {
	v.mu.Lock()
	v.hostGone = true
	v.mu.Unlock()
}

// faviconFor derives the conventional favicon location of a page's origin.
func faviconFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico"
}
