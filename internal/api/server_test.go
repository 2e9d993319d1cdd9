package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/tabshell/internal/appstate"
	"github.com/dgnsrekt/tabshell/internal/overlay"
	"github.com/dgnsrekt/tabshell/internal/types"
)

type stubService struct {
	mu        sync.Mutex
	createErr error
	switchErr error
	offsets   []*types.Offsets
	settings  []bool
}

func (s *stubService) CreateTab(ctx context.Context, url string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return "tab-1", nil
}
func (s *stubService) CloseTab(ctx context.Context, tabID string) error {
	if tabID != "tab-1" {
		return types.NotFoundError(tabID)
	}
	return nil
}
func (s *stubService) SwitchTab(ctx context.Context, tabID string) error { return s.switchErr }
func (s *stubService) ListTabs(ctx context.Context) []types.Tab {
	return []types.Tab{{ID: "tab-1", URL: "https://a.test", Active: true}}
}
func (s *stubService) ActiveTab(ctx context.Context) (string, bool) { return "tab-1", true }
func (s *stubService) RequestResize(ctx context.Context, offsets *types.Offsets) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offsets)
	s.mu.Unlock()
}
func (s *stubService) SetDragging(ctx context.Context, dragging bool) {}
func (s *stubService) OverlayState(ctx context.Context) overlay.State { return overlay.State{} }
func (s *stubService) UpdateOverlay(ctx context.Context, p overlay.Patch) (overlay.State, error) {
	var st overlay.State
	if p.SidebarOpen != nil {
		st.SidebarOpen = *p.SidebarOpen
	}
	return st, nil
}
func (s *stubService) ToggleHeaderLatch(ctx context.Context) (bool, error) { return true, nil }
func (s *stubService) ToggleSidebarLatch(ctx context.Context) (bool, error) { return true, nil }
func (s *stubService) ResetOverlay(ctx context.Context) (overlay.State, error) {
	return overlay.State{}, nil
}
func (s *stubService) SettingsToggled(ctx context.Context, open bool) (bool, error) {
	s.mu.Lock()
	s.settings = append(s.settings, open)
	s.mu.Unlock()
	return true, nil
}
func (s *stubService) SetInteractiveRegions(ctx context.Context, regions []types.Rect) {}
func (s *stubService) PointerIntercepted(ctx context.Context, x, y float64) bool { return y < 36 }
func (s *stubService) AppState(ctx context.Context) appstate.Record { return appstate.Record{} }
func (s *stubService) Minimize(ctx context.Context) (appstate.Record, error) {
	return appstate.Record{WindowMinimized: true}, nil
}
func (s *stubService) Maximize(ctx context.Context) (appstate.Record, error) {
	return appstate.Record{WindowMaximized: true}, nil
}
func (s *stubService) Restore(ctx context.Context) (appstate.Record, error) {
	return appstate.Record{}, nil
}
func (s *stubService) SetTrayMode(ctx context.Context, on bool) (appstate.Record, error) {
	return appstate.Record{TrayMode: on}, nil
}
func (s *stubService) EventsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("stream"))
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, Config{})
	w := do(t, h, http.MethodGet, "/docs", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestTokenGuardsControlRoutes(t *testing.T) {
	h := NewServer(&stubService{}, Config{Token: "secret"})

	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", "secret"); w.Code != http.StatusOK {
		t.Fatalf("good token status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/tabs?token=secret", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("query token outside events status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w := do(t, h, http.MethodGet, eventsPath+"?token=secret", "", ""); w.Code != http.StatusOK {
		t.Fatalf("events query token status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(t, h, http.MethodGet, "/docs", "", ""); w.Code != http.StatusOK {
		t.Fatalf("docs status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimitSheds(t *testing.T) {
	h := NewServer(&stubService{}, Config{RateLimit: 1, Burst: 1})

	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", ""); w.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", w.Code, http.StatusOK)
	}
	w := do(t, h, http.MethodGet, "/api/v1/tabs", "", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	if w := do(t, h, http.MethodGet, eventsPath, "", ""); w.Code != http.StatusOK {
		t.Fatalf("events status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimitSkipsFrameRateRoutes(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Config{RateLimit: 1, Burst: 1})

	for i := 0; i < 10; i++ {
		if w := do(t, h, http.MethodPost, "/api/v1/view/resize", `{"left":240,"top":36}`, ""); w.Code != http.StatusAccepted {
			t.Fatalf("resize %d status = %d, want %d", i, w.Code, http.StatusAccepted)
		}
		if w := do(t, h, http.MethodPost, "/api/v1/view/drag", `{"dragging":true}`, ""); w.Code == http.StatusTooManyRequests {
			t.Fatalf("drag %d was rate limited", i)
		}
		if w := do(t, h, http.MethodGet, "/api/v1/overlay/pointer?x=10&y=10", "", ""); w.Code != http.StatusOK {
			t.Fatalf("pointer %d status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", ""); w.Code != http.StatusOK {
		t.Fatalf("first limited status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/tabs", "", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second limited status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestCreateAndListTabs(t *testing.T) {
	h := NewServer(&stubService{}, Config{})

	w := do(t, h, http.MethodPost, "/api/v1/tabs", `{"url":"https://a.test"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body = %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"tab_id":"tab-1"`) {
		t.Fatalf("create body = %s; want tab_id", w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/tabs", "", "")
	if !strings.Contains(w.Body.String(), `"active_tab_id":"tab-1"`) {
		t.Fatalf("list body = %s; want active_tab_id", w.Body.String())
	}
}

func TestErrorCodesMapToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", types.NewError(types.CodeValidation, "bad url", nil), http.StatusBadRequest},
		{"creation", types.CreationError("https://a.test", context.Canceled), http.StatusBadGateway},
		{"closed", types.NewError(types.CodeClosed, "manager closed", nil), http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewServer(&stubService{createErr: tc.err}, Config{})
			w := do(t, h, http.MethodPost, "/api/v1/tabs", `{"url":"https://a.test"}`, "")
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}

	h := NewServer(&stubService{}, Config{})
	if w := do(t, h, http.MethodDelete, "/api/v1/tabs/missing", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("close unknown status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/tabs/tab-1", "", ""); w.Code != http.StatusNoContent {
		t.Fatalf("close status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestResizeIsAccepted(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Config{})

	if w := do(t, h, http.MethodPost, "/api/v1/view/resize", `{"left":240,"top":36}`, ""); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/view/resize", `{}`, ""); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if len(svc.offsets) != 2 {
		t.Fatalf("RequestResize calls = %d, want 2", len(svc.offsets))
	}
	if got := svc.offsets[0]; got == nil || got.Left != 240 || got.Top != 36 {
		t.Fatalf("first offsets = %+v, want 240,36", got)
	}
	if svc.offsets[1] != nil {
		t.Fatalf("second offsets = %+v, want nil (measure)", svc.offsets[1])
	}
}

func TestSettingsToggleAcks(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Config{})

	w := do(t, h, http.MethodPost, "/api/v1/overlay/settings", `{"is_open":true}`, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ack":true`) {
		t.Fatalf("settings = %d %s; want 200 with ack", w.Code, w.Body.String())
	}
	if len(svc.settings) != 1 || !svc.settings[0] {
		t.Fatalf("SettingsToggled calls = %v, want [true]", svc.settings)
	}
}

func TestShellPageCarriesToken(t *testing.T) {
	h := NewServer(&stubService{}, Config{Token: "abc-123"})
	w := do(t, h, http.MethodGet, "/shell/", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"abc-123"`) || !strings.Contains(body, `id="content-area"`) {
		t.Fatalf("shell page missing token or content area")
	}
}
