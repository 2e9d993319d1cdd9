package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tabshell/internal/types"
)

func registerTabHandlers(api huma.API, svc Service) {
	type tabIDOutput struct {
		Body struct {
			TabID string `json:"tab_id"`
		}
	}

	type activeTabOutput struct {
		Body struct {
			TabID *string `json:"tab_id"`
		}
	}

	type listTabsOutput struct {
		Body struct {
			Tabs        []types.Tab `json:"tabs"`
			ActiveTabID *string     `json:"active_tab_id"`
		}
	}

	type tabIDInput struct {
		TabID string `path:"tab_id" doc:"Tab identifier"`
	}

	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tabs in order", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			out := &listTabsOutput{}
			out.Body.Tabs = svc.ListTabs(ctx)
			if id, ok := svc.ActiveTab(ctx); ok {
				out.Body.ActiveTabID = &id
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-tab", Method: http.MethodPost, Path: "/api/v1/tabs", Summary: "Open a URL in a new isolated tab", Tags: []string{"Tabs"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				URL string `json:"url" required:"true" doc:"http(s) or about: URL to load"`
			}
		}) (*tabIDOutput, error) {
			id, err := svc.CreateTab(ctx, input.Body.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabIDOutput{}
			out.Body.TabID = id
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-active-tab", Method: http.MethodGet, Path: "/api/v1/tabs/active", Summary: "Get the active tab id", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*activeTabOutput, error) {
			out := &activeTabOutput{}
			if id, ok := svc.ActiveTab(ctx); ok {
				out.Body.TabID = &id
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activate", Summary: "Make a tab active", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabIDInput) (*tabIDOutput, error) {
			if err := svc.SwitchTab(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			out := &tabIDOutput{}
			out.Body.TabID = input.TabID
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "close-tab", Method: http.MethodDelete, Path: "/api/v1/tabs/{tab_id}", Summary: "Close a tab and dispose its browsing context", Tags: []string{"Tabs"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *tabIDInput) (*struct{}, error) {
			if err := svc.CloseTab(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
