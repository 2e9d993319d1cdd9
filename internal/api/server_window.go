package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabshell/internal/appstate"
)

func registerWindowHandlers(api huma.API, svc Service) {
	type stateOutput struct {
		Body appstate.Record
	}

	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Get application state", Tags: []string{"Window"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			return &stateOutput{Body: svc.AppState(ctx)}, nil
		})

	windowOp := func(id, path, summary string, fn func(context.Context) (appstate.Record, error)) {
		huma.Register(api, huma.Operation{OperationID: id, Method: http.MethodPost, Path: path, Summary: summary, Tags: []string{"Window"}},
			func(ctx context.Context, input *struct{}) (*stateOutput, error) {
				rec, err := fn(ctx)
				if err != nil {
					return nil, mapErr(err)
				}
				return &stateOutput{Body: rec}, nil
			})
	}
	windowOp("minimize-window", "/api/v1/window/minimize", "Minimize the shell window", svc.Minimize)
	windowOp("maximize-window", "/api/v1/window/maximize", "Maximize the shell window", svc.Maximize)
	windowOp("restore-window", "/api/v1/window/restore", "Restore the shell window", svc.Restore)

	huma.Register(api, huma.Operation{OperationID: "set-tray-mode", Method: http.MethodPost, Path: "/api/v1/window/tray", Summary: "Enter or leave tray mode", Tags: []string{"Window"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Enabled bool `json:"enabled"`
			}
		}) (*stateOutput, error) {
			rec, err := svc.SetTrayMode(ctx, input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: rec}, nil
		})
}
