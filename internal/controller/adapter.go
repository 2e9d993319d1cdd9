package controller

import (
	"context"

	json "github.com/go-json-experiment/json"

	"github.com/dgnsrekt/tabshell/internal/tabs"
	"github.com/dgnsrekt/tabshell/internal/types"
	"github.com/dgnsrekt/tabshell/internal/view"
)

// viewFactory adapts view.Factory to the tab manager's Factory.
type viewFactory struct {
	f *view.Factory
}

func (a viewFactory) Create(ctx context.Context, url string, onChange func(types.TabMetadata)) (tabs.View, error) {
	v, err := a.f.Create(ctx, url, onChange)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a viewFactory) Destroy(ctx context.Context, v tabs.View) {
	if vv, ok := v.(*view.View); ok && vv != nil {
		a.f.Destroy(ctx, vv)
	}
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
