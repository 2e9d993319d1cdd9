package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabshell/internal/types"
)

func registerViewHandlers(api huma.API, svc Service) {
	type acceptedOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}

	// Geometry is fire-and-forget: bad values are dropped by the synchronizer,
	// never reported back.
	huma.Register(api, huma.Operation{OperationID: "resize-view", Method: http.MethodPost, Path: "/api/v1/view/resize", Summary: "Request a bounds update for the active view", Tags: []string{"View"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *struct {
			Body struct {
				Left *float64 `json:"left,omitempty" doc:"Content-area left offset in CSS px; omit both to measure"`
				Top  *float64 `json:"top,omitempty" doc:"Content-area top offset in CSS px"`
			}
		}) (*acceptedOutput, error) {
			var offsets *types.Offsets
			if input.Body.Left != nil && input.Body.Top != nil {
				offsets = &types.Offsets{Left: *input.Body.Left, Top: *input.Body.Top}
			}
			svc.RequestResize(ctx, offsets)
			out := &acceptedOutput{}
			out.Body.Status = "accepted"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-view-drag", Method: http.MethodPost, Path: "/api/v1/view/drag", Summary: "Suspend or resume bounds pushes during a drag", Tags: []string{"View"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Dragging bool `json:"dragging"`
			}
		}) (*acceptedOutput, error) {
			svc.SetDragging(ctx, input.Body.Dragging)
			out := &acceptedOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}
