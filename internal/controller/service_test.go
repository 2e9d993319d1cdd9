package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/geometry"
	"github.com/dgnsrekt/tabshell/internal/overlay"
	"github.com/dgnsrekt/tabshell/internal/types"
)

const shellURL = "http://127.0.0.1:9900/shell/"

type call struct {
	session string
	method  string
	params  string
}

// fakeBrowser answers CDP commands with fresh ids so several tabs can coexist.
type fakeBrowser struct {
	mu       sync.Mutex
	calls    []call
	counters map[string]int
	handlers map[string]map[int]cdp.EventFunc
	nextSub  int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{counters: map[string]int{}, handlers: map[string]map[int]cdp.EventFunc{}}
}

func (f *fakeBrowser) next(kind string) string {
	f.counters[kind]++
	return fmt.Sprintf("%s-%d", kind, f.counters[kind])
}

func (f *fakeBrowser) Send(_ context.Context, sessionID, method string, params any) (jsontext.Value, error) {
	encoded, _ := json.Marshal(params)
	f.mu.Lock()
	f.calls = append(f.calls, call{session: sessionID, method: method, params: string(encoded)})
	var res any
	switch method {
	case "Target.createBrowserContext":
		res = map[string]any{"browserContextId": f.next("CTX")}
	case "Target.createTarget":
		res = map[string]any{"targetId": f.next("T")}
	case "Target.attachToTarget":
		res = map[string]any{"sessionId": f.next("S")}
	case "Browser.getWindowForTarget":
		f.counters["W"]++
		res = map[string]any{"windowId": f.counters["W"], "bounds": map[string]any{}}
	case "Target.getTargets":
		res = map[string]any{"targetInfos": []map[string]any{{
			"targetId": "SHELL", "type": "page", "title": "shell", "url": shellURL,
			"attached": false, "canAccessOpener": false,
		}}}
	case "Page.navigate":
		res = map[string]any{"frameId": "F"}
	}
	f.mu.Unlock()
	if res == nil {
		return jsontext.Value(`{}`), nil
	}
	data, err := json.Marshal(res)
	return jsontext.Value(data), err
}

func (f *fakeBrowser) Subscribe(method string, fn cdp.EventFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	if f.handlers[method] == nil {
		f.handlers[method] = map[int]cdp.EventFunc{}
	}
	f.handlers[method][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[method], id)
	}
}

func (f *fakeBrowser) Evaluate(_ context.Context, sessionID, js string) (string, error) {
	return `{"x":0,"y":80,"width":1280,"height":640}`, nil
}

func (f *fakeBrowser) emit(method string, params any) {
	data, _ := json.Marshal(params)
	f.mu.Lock()
	var hs []cdp.EventFunc
	for _, h := range f.handlers[method] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h("", jsontext.Value(data))
	}
}

func (f *fakeBrowser) callsTo(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeBrowser, *geometry.ManualScheduler) {
	t.Helper()
	fb := newFakeBrowser()
	sched := &geometry.ManualScheduler{}
	svc := New(fb, Options{ShellURL: shellURL, Scheduler: sched})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, fb, sched
}

func TestTabLifecycleThroughService(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateTab(ctx, "https://a.test")
	if err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}
	b, err := svc.CreateTab(ctx, "https://b.test")
	if err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}
	if active, _ := svc.ActiveTab(ctx); active != b {
		t.Fatalf("ActiveTab() = %q; want %q", active, b)
	}
	if err := svc.SwitchTab(ctx, a); err != nil {
		t.Fatalf("SwitchTab() = %v; want nil", err)
	}
	if err := svc.CloseTab(ctx, a); err != nil {
		t.Fatalf("CloseTab() = %v; want nil", err)
	}

	tabs := svc.ListTabs(ctx)
	if len(tabs) != 1 || tabs[0].ID != b || !tabs[0].Active {
		t.Fatalf("ListTabs() = %+v; want only active %q", tabs, b)
	}
	last := svc.AppState(ctx).LastActiveTabID
	if last == nil || *last != b {
		t.Fatalf("LastActiveTabID = %v; want %q", last, b)
	}
	if n := len(fb.callsTo("Target.disposeBrowserContext")); n != 1 {
		t.Fatalf("disposeBrowserContext calls = %d; want 1", n)
	}
	if err := svc.CloseTab(ctx, a); !types.HasCode(err, types.CodeNotFound) {
		t.Fatalf("CloseTab() again = %v; want NOT_FOUND", err)
	}
}

func TestCreateTabRejectsUnsafeURLs(t *testing.T) {
	svc, fb, _ := newTestService(t)
	for _, u := range []string{"", "javascript:alert(1)", "data:text/html,<b>x</b>", "file:///etc/passwd", "not a url"} {
		_, err := svc.CreateTab(context.Background(), u)
		var coded *types.CodedError
		if !errors.As(err, &coded) || coded.Code != types.CodeValidation {
			t.Fatalf("CreateTab(%q) = %v; want VALIDATION", u, err)
		}
	}
	if n := len(fb.callsTo("Target.createBrowserContext")); n != 0 {
		t.Fatalf("createBrowserContext calls = %d; want 0", n)
	}
}

func TestResizePushesBoundsToActiveView(t *testing.T) {
	svc, fb, sched := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTab(ctx, "https://a.test"); err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}

	svc.RequestResize(ctx, &types.Offsets{Left: 0, Top: 80})
	svc.RequestResize(ctx, &types.Offsets{Left: 240, Top: 80})
	sched.Tick()

	var pushed []string
	for _, c := range fb.callsTo("Browser.setWindowBounds") {
		if strings.Contains(c.params, `"left":`) {
			pushed = append(pushed, c.params)
		}
	}
	if len(pushed) != 1 || !strings.Contains(pushed[0], `"left":240`) || !strings.Contains(pushed[0], `"top":80`) {
		t.Fatalf("position pushes = %v; want one at 240,80", pushed)
	}
}

func TestMeasuredResizeUsesShellSession(t *testing.T) {
	svc, fb, sched := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTab(ctx, "https://a.test"); err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}

	svc.RequestResize(ctx, nil)
	sched.Tick()

	found := false
	for _, c := range fb.callsTo("Browser.setWindowBounds") {
		if strings.Contains(c.params, `"width":1280`) && strings.Contains(c.params, `"height":640`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("no setWindowBounds with measured size; calls = %v", fb.callsTo("Browser.setWindowBounds"))
	}
}

func TestSettingsToggledHidesAndShowsView(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTab(ctx, "https://a.test"); err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}
	before := len(fb.callsTo("Browser.setWindowBounds"))

	ack, err := svc.SettingsToggled(ctx, true)
	if err != nil || !ack {
		t.Fatalf("SettingsToggled(true) = %v, %v; want true, nil", ack, err)
	}
	calls := fb.callsTo("Browser.setWindowBounds")[before:]
	if len(calls) != 1 || !strings.Contains(calls[0].params, `"minimized"`) {
		t.Fatalf("calls = %v; want one minimize", calls)
	}
	if _, err := svc.SettingsToggled(ctx, false); err != nil {
		t.Fatalf("SettingsToggled(false) = %v; want nil", err)
	}
	if svc.tabs.ViewHidden() {
		t.Fatalf("ViewHidden() = true after settings closed")
	}
}

func TestTabCreatedUnderOpenHeaderStaysHidden(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateTab(ctx, "https://a.test"); err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}
	open := true
	if _, err := svc.UpdateOverlay(ctx, overlay.Patch{HeaderOpen: &open}); err != nil {
		t.Fatalf("UpdateOverlay(header open) = %v; want nil", err)
	}
	beforeBounds := len(fb.callsTo("Browser.setWindowBounds"))
	beforeActivate := len(fb.callsTo("Target.activateTarget"))

	if _, err := svc.CreateTab(ctx, "https://b.test"); err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}

	for _, c := range fb.callsTo("Browser.setWindowBounds")[beforeBounds:] {
		if !strings.Contains(c.params, `"minimized"`) {
			t.Fatalf("setWindowBounds while header open = %s; want only minimize", c.params)
		}
	}
	if n := len(fb.callsTo("Target.activateTarget")) - beforeActivate; n != 0 {
		t.Fatalf("activateTarget calls while header open = %d; want 0", n)
	}
	if !svc.tabs.ViewHidden() {
		t.Fatalf("ViewHidden() = false while header open")
	}
}

func TestWindowStateIsRecorded(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Minimize(ctx)
	if err != nil {
		t.Fatalf("Minimize() = %v; want nil", err)
	}
	if !rec.WindowMinimized {
		t.Fatalf("Minimize() record = %+v; want minimized", rec)
	}
	rec, err = svc.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() = %v; want nil", err)
	}
	if rec.WindowMinimized || rec.WindowMaximized {
		t.Fatalf("Restore() record = %+v; want normal", rec)
	}
	rec, err = svc.SetTrayMode(ctx, true)
	if err != nil || !rec.TrayMode || !rec.WindowMinimized {
		t.Fatalf("SetTrayMode(true) = %+v, %v; want tray and minimized", rec, err)
	}

	var states []string
	for _, c := range fb.callsTo("Browser.setWindowBounds") {
		for _, s := range []string{"minimized", "normal", "maximized"} {
			if strings.Contains(c.params, `"windowState":"`+s+`"`) {
				states = append(states, s)
			}
		}
	}
	if strings.Join(states, ",") != "minimized,normal,minimized" {
		t.Fatalf("shell window states = %v; want minimized,normal,minimized", states)
	}
}

func TestPopupOpensNewTab(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()
	opener, err := svc.CreateTab(ctx, "https://a.test")
	if err != nil {
		t.Fatalf("CreateTab() = %v; want nil", err)
	}

	fb.emit("Target.targetCreated", map[string]any{"targetInfo": map[string]any{
		"targetId": "POPUP", "type": "page", "title": "", "url": "https://popup.test/",
		"attached": false, "canAccessOpener": true, "openerId": "T-1",
	}})

	deadline := time.Now().Add(2 * time.Second)
	for len(svc.ListTabs(ctx)) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	tabs := svc.ListTabs(ctx)
	if len(tabs) != 2 || tabs[1].URL != "https://popup.test/" {
		t.Fatalf("ListTabs() = %+v; want popup as second tab", tabs)
	}
	if active, _ := svc.ActiveTab(ctx); active == opener {
		t.Fatalf("ActiveTab() = opener; want popup tab")
	}
	if n := len(fb.callsTo("Target.closeTarget")); n == 0 {
		t.Fatalf("popup target was not closed")
	}
}
