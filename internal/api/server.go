package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tabshell/internal/appstate"
	"github.com/dgnsrekt/tabshell/internal/overlay"
	"github.com/dgnsrekt/tabshell/internal/types"
)

const (
	eventsPath     = "/api/v1/events"
	pointerPath    = "/api/v1/overlay/pointer"
	viewPathPrefix = "/api/v1/view/"
)

type Service interface {
	CreateTab(ctx context.Context, url string) (string, error)
	CloseTab(ctx context.Context, tabID string) error
	SwitchTab(ctx context.Context, tabID string) error
	ListTabs(ctx context.Context) []types.Tab
	ActiveTab(ctx context.Context) (string, bool)
	RequestResize(ctx context.Context, offsets *types.Offsets)
	SetDragging(ctx context.Context, dragging bool)
	OverlayState(ctx context.Context) overlay.State
	UpdateOverlay(ctx context.Context, p overlay.Patch) (overlay.State, error)
	ToggleHeaderLatch(ctx context.Context) (bool, error)
	ToggleSidebarLatch(ctx context.Context) (bool, error)
	ResetOverlay(ctx context.Context) (overlay.State, error)
	SettingsToggled(ctx context.Context, open bool) (bool, error)
	SetInteractiveRegions(ctx context.Context, regions []types.Rect)
	PointerIntercepted(ctx context.Context, x, y float64) bool
	AppState(ctx context.Context) appstate.Record
	Minimize(ctx context.Context) (appstate.Record, error)
	Maximize(ctx context.Context) (appstate.Record, error)
	Restore(ctx context.Context) (appstate.Record, error)
	SetTrayMode(ctx context.Context, on bool) (appstate.Record, error)
	EventsHandler() http.Handler
}

// Config carries the server's non-service dependencies.
type Config struct {
	// Token guards /api routes; empty disables the check.
	Token string
	// RateLimit bounds /api requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Metrics   http.Handler
	Observe   RequestObserver
	DevMode   bool
}

func NewServer(svc Service, cfg Config) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(cfg.Observe))
	router.Use(middleware.Recoverer)
	router.Use(requireToken(cfg.Token))
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		router.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}

	hcfg := huma.DefaultConfig("tabshell control API", "1.0.0")
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/shell/", shellHandler(cfg.Token, cfg.DevMode))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/shell/", http.StatusFound)
	})
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}
	router.Handle(eventsPath, svc.EventsHandler())

	registerTabHandlers(api, svc)
	registerViewHandlers(api, svc)
	registerOverlayHandlers(api, svc)
	registerWindowHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("operation timed out")
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeCreation:
			return huma.Error502BadGateway(coded.Error())
		case types.CodeCDPUnavailable, types.CodeClosed:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
