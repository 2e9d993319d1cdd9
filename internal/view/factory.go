package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/types"
)

// Config holds the isolation policy applied to every view.
type Config struct {
	UserAgent     string
	ContentPolicy string
	// DevMode opens a detached DevTools inspector for each new view.
	DevMode bool
	// InspectorBase is the browser's HTTP debugging endpoint, used to build
	// inspector URLs in dev mode.
	InspectorBase string
	StepTimeout   time.Duration
	Now           func() time.Time
}

// Factory builds and tears down isolated views.
type Factory struct {
	t   cdp.Transport
	cfg Config

	mu        sync.Mutex
	lastToken int64
	views     map[target.ID]*View
	onPopup   func(rawURL string)
	stop      []func()
}

// NewFactory creates a Factory using the given CDP transport.
func NewFactory(t cdp.Transport, cfg Config) *Factory {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ContentPolicy == "" {
		cfg.ContentPolicy = DefaultContentPolicy
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Factory{t: t, cfg: cfg, views: make(map[target.ID]*View)}
}

// Start enables target discovery and begins intercepting popups opened by
// views. Popups are closed and their URL handed to the OnPopup callback.
func (f *Factory) Start(ctx context.Context) error {
	f.mu.Lock()
	f.stop = append(f.stop,
		f.t.Subscribe("Target.targetCreated", f.onTargetCreated),
		f.t.Subscribe("Target.targetInfoChanged", f.onTargetInfoChanged),
		f.t.Subscribe("Target.targetDestroyed", f.onTargetDestroyed),
	)
	f.mu.Unlock()

	if err := target.SetDiscoverTargets(true).Do(cdp.WithSession(ctx, f.t, "")); err != nil {
		f.Stop()
		return types.NewError(types.CodeCDPUnavailable, "enable target discovery", err)
	}
	return nil
}

// Stop detaches the factory-wide listeners.
func (f *Factory) Stop() {
	f.mu.Lock()
	stop := f.stop
	f.stop = nil
	f.mu.Unlock()
	for _, fn := range stop {
		fn()
	}
}

// OnPopup sets the callback receiving URLs of intercepted popups.
func (f *Factory) OnPopup(fn func(rawURL string)) {
	f.mu.Lock()
	f.onPopup = fn
	f.mu.Unlock()
}

// nextPartition returns a never-reused partition name derived from the
// creation time. Tokens are strictly increasing even when the clock is not.
func (f *Factory) nextPartition() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := f.cfg.Now().UnixNano()
	if token <= f.lastToken {
		token = f.lastToken + 1
	}
	f.lastToken = token
	return fmt.Sprintf("persist:tab-%d", token)
}

// Create builds a new isolated view and loads rawURL in it. On failure the
// partially constructed context is destroyed and a CreationError returned.
func (f *Factory) Create(ctx context.Context, rawURL string, onChange func(types.TabMetadata)) (*View, error) {
	browserCtx := cdp.WithSession(ctx, f.t, "")
	contextID, err := target.CreateBrowserContext().WithDisposeOnDetach(false).Do(browserCtx)
	if err != nil {
		return nil, types.CreationError(rawURL, err)
	}

	v := &View{
		t:                f.t,
		browserContextID: contextID,
		partition:        f.nextPartition(),
		onChange:         onChange,
	}
	if err := f.setup(ctx, v, rawURL); err != nil {
		slog.Warn("view creation failed, disposing partial context", "url", rawURL, "partition", v.partition, "error", err)
		f.Destroy(context.WithoutCancel(ctx), v)
		return nil, types.CreationError(rawURL, err)
	}

	slog.Info("view created", "target_id", v.targetID, "partition", v.partition, "url", truncateURL(rawURL))
	return v, nil
}

func (f *Factory) setup(ctx context.Context, v *View, rawURL string) error {
	browserCtx := cdp.WithSession(ctx, f.t, "")

	for _, name := range deniedPermissions {
		err := browser.SetPermission(&browser.PermissionDescriptor{Name: name}, browser.PermissionSettingDenied).
			WithBrowserContextID(v.browserContextID).
			Do(browserCtx)
		if err != nil {
			// Older builds reject permission names they do not know.
			slog.Debug("permission deny skipped", "permission", name, "error", err)
		}
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(v.browserContextID).
		WithNewWindow(true).
		WithBackground(true).
		Do(browserCtx)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	v.targetID = targetID

	f.mu.Lock()
	f.views[targetID] = v
	f.mu.Unlock()

	// New windows open on screen; a view stays minimized until it is shown.
	if err := v.setWindowBounds(ctx, windowBounds{WindowState: "minimized"}); err != nil {
		return fmt.Errorf("minimize window: %w", err)
	}

	sessionID, err := target.AttachToTarget(targetID).WithFlatten(true).Do(browserCtx)
	if err != nil {
		return fmt.Errorf("attach target: %w", err)
	}
	v.mu.Lock()
	v.sessionID = sessionID
	v.unsubscribe = append(v.unsubscribe,
		f.t.Subscribe("Fetch.requestPaused", f.sessionHandler(v, f.onRequestPaused)),
		f.t.Subscribe("Page.frameNavigated", f.sessionHandler(v, f.onFrameNavigated)),
	)
	v.mu.Unlock()

	sessionCtx := cdp.WithSession(ctx, f.t, string(sessionID))
	if err := page.Enable().Do(sessionCtx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(sessionCtx); err != nil {
		return fmt.Errorf("override user agent: %w", err)
	}
	patterns := []*fetch.RequestPattern{{
		URLPattern:   "*",
		ResourceType: network.ResourceTypeDocument,
		RequestStage: fetch.RequestStageResponse,
	}}
	if err := fetch.Enable().WithPatterns(patterns).Do(sessionCtx); err != nil {
		return fmt.Errorf("enable content policy interception: %w", err)
	}

	if err := f.navigate(ctx, string(sessionID), rawURL); err != nil {
		return err
	}
	v.record(rawURL, "")

	if f.cfg.DevMode {
		f.openInspector(browserCtx, v)
	}
	return nil
}

func (f *Factory) navigate(ctx context.Context, sessionID, rawURL string) error {
	params := struct {
		URL string `json:"url"`
	}{URL: rawURL}
	raw, err := f.t.Send(ctx, sessionID, "Page.navigate", params)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	var resp struct {
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("navigate: decode result: %w", err)
	}
	if resp.ErrorText != "" {
		return fmt.Errorf("navigate: %s", resp.ErrorText)
	}
	return nil
}

func (f *Factory) openInspector(ctx context.Context, v *View) {
	base, err := url.Parse(f.cfg.InspectorBase)
	if err != nil || base.Host == "" {
		slog.Debug("inspector skipped, no debugging endpoint", "target_id", v.targetID)
		return
	}
	inspectorURL := fmt.Sprintf("%s/devtools/inspector.html?ws=%s/devtools/page/%s",
		strings.TrimRight(f.cfg.InspectorBase, "/"), base.Host, v.targetID)
	id, err := target.CreateTarget(inspectorURL).WithNewWindow(true).Do(ctx)
	if err != nil {
		slog.Warn("inspector open failed", "target_id", v.targetID, "error", err)
		return
	}
	v.mu.Lock()
	v.inspectorID = id
	v.mu.Unlock()
	slog.Debug("inspector opened", "target_id", v.targetID, "inspector_id", id)
}

// sessionHandler filters browser-wide events down to the view's own session.
// Handlers run on the connection's read loop and must not issue commands inline.
func (f *Factory) sessionHandler(v *View, fn func(*View, jsontext.Value)) cdp.EventFunc {
	return func(sessionID string, params jsontext.Value) {
		if sessionID == "" || sessionID != v.session() {
			return
		}
		fn(v, params)
	}
}

func (f *Factory) onRequestPaused(v *View, params jsontext.Value) {
	ev, err := cdp.Decode[fetch.EventRequestPaused](params)
	if err != nil {
		slog.Debug("request paused decode failed", "target_id", v.targetID, "error", err)
		return
	}
	sessionCtx := cdp.WithSession(context.Background(), f.t, v.session())
	go func() {
		ctx, cancel := context.WithTimeout(sessionCtx, f.cfg.StepTimeout)
		defer cancel()
		var err error
		if ev.ResponseStatusCode == 0 && ev.ResponseErrorReason == "" {
			err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
		} else {
			headers := withContentPolicy(ev.ResponseHeaders, f.cfg.ContentPolicy)
			err = fetch.ContinueResponse(ev.RequestID).WithResponseHeaders(headers).Do(ctx)
		}
		if err != nil && !isGone(err) {
			slog.Warn("content policy injection failed", "target_id", v.targetID, "request_id", ev.RequestID, "error", err)
		}
	}()
}

func (f *Factory) onFrameNavigated(v *View, params jsontext.Value) {
	ev, err := cdp.Decode[page.EventFrameNavigated](params)
	if err != nil || ev.Frame == nil || ev.Frame.ParentID != "" {
		return
	}
	v.record(ev.Frame.URL, "")
}

func (f *Factory) lookup(id target.ID) *View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.views[id]
}

func (f *Factory) onTargetInfoChanged(_ string, params jsontext.Value) {
	ev, err := cdp.Decode[target.EventTargetInfoChanged](params)
	if err != nil || ev.TargetInfo == nil {
		return
	}
	if v := f.lookup(ev.TargetInfo.TargetID); v != nil {
		v.record(ev.TargetInfo.URL, ev.TargetInfo.Title)
	}
}

func (f *Factory) onTargetDestroyed(_ string, params jsontext.Value) {
	ev, err := cdp.Decode[target.EventTargetDestroyed](params)
	if err != nil {
		return
	}
	if v := f.lookup(ev.TargetID); v != nil {
		slog.Info("view target destroyed by host", "target_id", ev.TargetID)
		v.markHostGone()
	}
}

func (f *Factory) onTargetCreated(_ string, params jsontext.Value) {
	ev, err := cdp.Decode[target.EventTargetCreated](params)
	if err != nil || ev.TargetInfo == nil || ev.TargetInfo.Type != "page" || ev.TargetInfo.OpenerID == "" {
		return
	}
	if f.lookup(ev.TargetInfo.OpenerID) == nil {
		return
	}

	f.mu.Lock()
	onPopup := f.onPopup
	f.mu.Unlock()

	popupID, popupURL := ev.TargetInfo.TargetID, ev.TargetInfo.URL
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.StepTimeout)
		defer cancel()
		if err := target.CloseTarget(popupID).Do(cdp.WithSession(ctx, f.t, "")); err != nil && !isGone(err) {
			slog.Warn("popup close failed", "target_id", popupID, "error", err)
		}
		if onPopup != nil && popupURL != "" && popupURL != "about:blank" {
			onPopup(popupURL)
		}
	}()
}

// Destroy tears a view down. It is idempotent and never fails: listeners are
// detached, cache and cookies cleared, then the browser context disposed.
// Every step is attempted even when an earlier one failed.
func (f *Factory) Destroy(ctx context.Context, v *View) {
	if v == nil {
		return
	}
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.onChange = nil
	sessionID := string(v.sessionID)
	inspectorID := v.inspectorID
	hostGone := v.hostGone
	v.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}

	f.mu.Lock()
	delete(f.views, v.targetID)
	f.mu.Unlock()

	browserCtx := cdp.WithSession(ctx, f.t, "")
	steps := []struct {
		name string
		skip bool
		run  func(ctx context.Context) error
	}{
		{"close inspector", inspectorID == "", func(ctx context.Context) error {
			return target.CloseTarget(inspectorID).Do(ctx)
		}},
		{"clear cache", sessionID == "" || hostGone, func(ctx context.Context) error {
			return network.ClearBrowserCache().Do(cdp.WithSession(ctx, f.t, sessionID))
		}},
		{"clear cookies", false, func(ctx context.Context) error {
			return storage.ClearCookies().WithBrowserContextID(v.browserContextID).Do(ctx)
		}},
		{"dispose browser context", false, func(ctx context.Context) error {
			return target.DisposeBrowserContext(v.browserContextID).Do(ctx)
		}},
	}

	var warnings []error
	for _, step := range steps {
		if step.skip {
			continue
		}
		stepCtx, cancel := context.WithTimeout(browserCtx, f.cfg.StepTimeout)
		err := step.run(stepCtx)
		cancel()
		if err == nil {
			continue
		}
		if isGone(err) {
			slog.Debug("view disposal step found target gone", "step", step.name, "target_id", v.targetID, "error", err)
			continue
		}
		warnings = append(warnings, types.NewError(types.CodeDisposal, step.name, err))
	}

	if len(warnings) > 0 {
		slog.Warn("view disposal completed with warnings", "target_id", v.targetID, "partition", v.partition, "error", errors.Join(warnings...))
		return
	}
	slog.Info("view destroyed", "target_id", v.targetID, "partition", v.partition)
}

func truncateURL(u string) string {
	if len(u) > 120 {
		return u[:120] + "..."
	}
	return u
}
