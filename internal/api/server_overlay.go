package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabshell/internal/overlay"
	"github.com/dgnsrekt/tabshell/internal/types"
)

func registerOverlayHandlers(api huma.API, svc Service) {
	type stateOutput struct {
		Body overlay.State
	}

	type latchOutput struct {
		Body struct {
			Latched bool `json:"latched"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "get-overlay", Method: http.MethodGet, Path: "/api/v1/overlay", Summary: "Get overlay interaction state", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			return &stateOutput{Body: svc.OverlayState(ctx)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-overlay", Method: http.MethodPatch, Path: "/api/v1/overlay", Summary: "Set overlay flags", Description: "Only the fields present are changed. Opening unlatched chrome hides the active view.", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct {
			Body overlay.Patch
		}) (*stateOutput, error) {
			st, err := svc.UpdateOverlay(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "toggle-header-latch", Method: http.MethodPost, Path: "/api/v1/overlay/header/latch", Summary: "Toggle the header latch", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*latchOutput, error) {
			latched, err := svc.ToggleHeaderLatch(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &latchOutput{}
			out.Body.Latched = latched
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "toggle-sidebar-latch", Method: http.MethodPost, Path: "/api/v1/overlay/sidebar/latch", Summary: "Toggle the sidebar latch", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*latchOutput, error) {
			latched, err := svc.ToggleSidebarLatch(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &latchOutput{}
			out.Body.Latched = latched
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reset-overlay", Method: http.MethodPost, Path: "/api/v1/overlay/reset", Summary: "Close header and sidebar, keeping latches", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			st, err := svc.ResetOverlay(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "settings-toggled", Method: http.MethodPost, Path: "/api/v1/overlay/settings", Summary: "Report the settings panel opening or closing", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct {
			Body struct {
				IsOpen bool `json:"is_open"`
			}
		}) (*struct {
			Body struct {
				Ack bool `json:"ack"`
			}
		}, error) {
			ack, err := svc.SettingsToggled(ctx, input.Body.IsOpen)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &struct {
				Body struct {
					Ack bool `json:"ack"`
				}
			}{}
			out.Body.Ack = ack
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-interactive-regions", Method: http.MethodPut, Path: "/api/v1/overlay/regions", Summary: "Declare the rectangles where the overlay takes pointer input", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Regions []types.Rect `json:"regions" maxItems:"64"`
			}
		}) (*struct{}, error) {
			svc.SetInteractiveRegions(ctx, input.Body.Regions)
			return nil, nil
		})

	huma.Register(api, huma.Operation{OperationID: "pointer-hit-test", Method: http.MethodGet, Path: pointerPath, Summary: "Report whether a pointer position belongs to the overlay", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct {
			X float64 `query:"x"`
			Y float64 `query:"y"`
		}) (*struct {
			Body struct {
				Intercept bool `json:"intercept"`
			}
		}, error) {
			out := &struct {
				Body struct {
					Intercept bool `json:"intercept"`
				}
			}{}
			out.Body.Intercept = svc.PointerIntercepted(ctx, input.X, input.Y)
			return out, nil
		})
}
