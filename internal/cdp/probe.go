package cdp

import (
	"context"
	"fmt"
	"log/slog"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ProbeResult summarizes the browser found behind the debugging endpoint.
type ProbeResult struct {
	Pages  int
	Reaped int
}

// Probe verifies the remote browser answers over chromedp and optionally
// disposes browser contexts left behind by a previous shell process. It must
// run before any tab is created.
func Probe(ctx context.Context, httpBase string, reap bool) (ProbeResult, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, httpBase)
	defer allocCancel()

	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()

	if err := chromedp.Run(tempCtx); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to enumerate targets: %w", err)
	}

	var res ProbeResult
	for _, t := range targets {
		if t.Type == "page" {
			res.Pages++
		}
	}
	if !reap {
		return res, nil
	}

	c := chromedp.FromContext(tempCtx)
	browserCtx := cdpproto.WithExecutor(tempCtx, c.Browser)
	ids, err := target.GetBrowserContexts().Do(browserCtx)
	if err != nil {
		return res, fmt.Errorf("failed to list browser contexts: %w", err)
	}
	for _, id := range ids {
		if err := target.DisposeBrowserContext(id).Do(browserCtx); err != nil {
			slog.Warn("stale browser context dispose failed", "browser_context_id", id, "error", err)
			continue
		}
		res.Reaped++
	}
	slog.Info("browser probe complete", "pages", res.Pages, "reaped_contexts", res.Reaped)
	return res, nil
}
