package engine

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/pagecap/pagecap/internal/config"
)

const encodeTimeout = 60 * time.Second

// Screenshot captures the rendering surface. id must be png, jpeg or webp;
// quality applies to lossy encoders only. fullPage captures beyond the
// viewport to the full content size.
func (p *Page) Screenshot(ctx context.Context, id string, quality int64, fullPage bool) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(p.ctx, encodeTimeout)
	defer cancel()

	params := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormat(id)).
		WithCaptureBeyondViewport(fullPage)
	if id != "png" {
		params = params.WithQuality(quality)
	}

	var data []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, newError(CodeEncodeFailure, "screenshot failed", err)
	}
	return data, nil
}

// PrintPDF runs the engine's print-to-file operation and returns the
// document bytes. Background rendering follows the configured toggle.
func (p *Page) PrintPDF(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(p.ctx, encodeTimeout)
	defer cancel()

	params := page.PrintToPDF().
		WithPrintBackground(p.cfg.PrintBackgrounds == config.ToggleOn)

	var data []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, newError(CodeEncodeFailure, "print to pdf failed", err)
	}
	return data, nil
}

// PlainText extracts the page's rendered text.
func (p *Page) PlainText(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(p.ctx, encodeTimeout)
	defer cancel()

	var text string
	err := chromedp.Run(opCtx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		return "", newError(CodeEvalFailure, "text extraction failed", err)
	}
	return text, nil
}

// OuterHTML serializes the current DOM.
func (p *Page) OuterHTML(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(p.ctx, encodeTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(doc.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", newError(CodeEvalFailure, "dom serialization failed", err)
	}
	return html, nil
}
