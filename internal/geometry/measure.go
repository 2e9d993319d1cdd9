package geometry

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/go-json-experiment/json"

	"github.com/dgnsrekt/tabshell/internal/types"
)

// DefaultContentSelector names the shell element whose box the view fills.
const DefaultContentSelector = "#content-area"

// Evaluator runs a script in a CDP session and returns its value as a string.
type Evaluator interface {
	Evaluate(ctx context.Context, sessionID, js string) (string, error)
}

// ShellMeasurer reads the content-area rectangle from the shell page. The
// result is in screen coordinates: the element box is offset by the shell
// window position and its browser chrome.
type ShellMeasurer struct {
	Eval     Evaluator
	Session  func() string
	Selector string
}

func (m ShellMeasurer) Measure(ctx context.Context) (types.Rect, error) {
	session := ""
	if m.Session != nil {
		session = m.Session()
	}
	if session == "" {
		return types.Rect{}, fmt.Errorf("shell session not attached")
	}
	sel := m.Selector
	if sel == "" {
		sel = DefaultContentSelector
	}
	raw, err := m.Eval.Evaluate(ctx, session, measureScript(sel))
	if err != nil {
		return types.Rect{}, fmt.Errorf("measure %s: %w", sel, err)
	}
	if raw == "" || raw == "null" {
		return types.Rect{}, fmt.Errorf("measure %s: element not found", sel)
	}
	var r types.Rect
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return types.Rect{}, fmt.Errorf("decode measurement: %w", err)
	}
	return r, nil
}

func measureScript(selector string) string {
	return `(() => {
  const el = document.querySelector(` + strconv.Quote(selector) + `);
  if (!el) return "null";
  const r = el.getBoundingClientRect();
  const chromeX = (window.outerWidth - window.innerWidth) / 2;
  const chromeY = window.outerHeight - window.innerHeight - chromeX;
  return JSON.stringify({
    x: window.screenX + chromeX + r.left,
    y: window.screenY + chromeY + r.top,
    width: r.width,
    height: r.height,
  });
})()`
}
