package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// probeJS asks the DOM for the rendered content size. Scroll dimensions of
// the document element and body are the most reliable "fully expanded"
// signal; the viewport dimensions guard against under-sizing pages with
// viewport-relative layout.
const probeJS = `(function() {
	const de = document.documentElement;
	const body = document.body;
	const w = Math.max(de ? de.scrollWidth : 0, body ? body.scrollWidth : 0, window.innerWidth || 0);
	const h = Math.max(de ? de.scrollHeight : 0, body ? body.scrollHeight : 0, window.innerHeight || 0);
	return {width: w, height: h};
})()`

const probeTimeout = 10 * time.Second

// MeasureContent runs the one-shot content-size probe. ok is false when the
// query fails or yields non-positive dimensions; the orchestrator then falls
// back to the surface size.
func (p *Page) MeasureContent(ctx context.Context) (orchestrate.ViewSize, bool) {
	evalCtx, cancel := context.WithTimeout(p.ctx, probeTimeout)
	defer cancel()

	var result struct {
		Width  int64 `json:"width"`
		Height int64 `json:"height"`
	}
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(probeJS, &result)); err != nil {
		slog.Debug("content size probe failed", "error", err)
		return orchestrate.ViewSize{}, false
	}

	size := orchestrate.ViewSize{Width: result.Width, Height: result.Height}
	if size.Empty() {
		return orchestrate.ViewSize{}, false
	}
	return size, true
}

// SurfaceSize reports the current CSS viewport size.
func (p *Page) SurfaceSize(ctx context.Context) orchestrate.ViewSize {
	evalCtx, cancel := context.WithTimeout(p.ctx, probeTimeout)
	defer cancel()

	var size orchestrate.ViewSize
	err := chromedp.Run(evalCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisual, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssVisual != nil {
			size = orchestrate.ViewSize{
				Width:  int64(cssVisual.ClientWidth),
				Height: int64(cssVisual.ClientHeight),
			}
		}
		return nil
	}))
	if err != nil {
		slog.Debug("layout metrics query failed", "error", err)
		return orchestrate.ViewSize{}
	}
	return size
}

// Resize grows the rendering surface to the given content size so the whole
// page fits without scrolling.
func (p *Page) Resize(ctx context.Context, size orchestrate.ViewSize) error {
	evalCtx, cancel := context.WithTimeout(p.ctx, probeTimeout)
	defer cancel()
	return chromedp.Run(evalCtx,
		emulation.SetDeviceMetricsOverride(size.Width, size.Height, 1, false))
}
