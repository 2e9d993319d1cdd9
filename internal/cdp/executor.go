package cdp

import (
	"context"
	"fmt"

	cdpproto "github.com/chromedp/cdproto/cdp"
	json "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Transport is the subset of Conn used by packages that drive targets.
type Transport interface {
	Send(ctx context.Context, sessionID, method string, params any) (jsontext.Value, error)
	Subscribe(method string, fn EventFunc) func()
	Evaluate(ctx context.Context, sessionID, js string) (string, error)
}

type sessionExecutor struct {
	t         Transport
	sessionID string
}

// Execute implements cdproto's cdp.Executor so typed commands can run on a session.
func (e sessionExecutor) Execute(ctx context.Context, method string, params, res any) error {
	raw, err := e.t.Send(ctx, e.sessionID, method, params)
	if err != nil {
		return err
	}
	if res == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("cdp: decode %s result: %w", method, err)
	}
	return nil
}

// WithSession returns a context on which cdproto commands (e.g.
// page.Navigate(url).Do(ctx)) execute against the given session. An empty
// sessionID targets the browser endpoint.
func WithSession(ctx context.Context, t Transport, sessionID string) context.Context {
	return cdpproto.WithExecutor(ctx, sessionExecutor{t: t, sessionID: sessionID})
}

// Decode unmarshals event params into a cdproto event type.
func Decode[T any](params jsontext.Value) (*T, error) {
	var ev T
	if err := json.Unmarshal(params, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
