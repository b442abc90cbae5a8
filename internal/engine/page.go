// Package engine wraps a chromedp tab as the rendering surface for one
// capture run: navigation, readiness events, dialog auto-resolution, the
// content-size probe, script injection, and the encode primitives the
// snapshot writer drives.
package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"github.com/pagecap/pagecap/internal/config"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// EventSink receives readiness events produced by the page. The orchestrator
// implements it.
type EventSink interface {
	Post(ev orchestrate.Event)
}

// Page drives a single browser tab for one capture run.
type Page struct {
	cfg    *config.Capture
	sink   EventSink
	ctx    context.Context
	cancel context.CancelFunc

	docRequestID atomic.Value // network.RequestID of the main document
	bodySent     atomic.Bool  // POST body applied to the first document request
}

// NewPage attaches a fresh tab to the given allocator context and applies
// the run's engine configuration. Navigation does not start until Navigate
// is called.
func NewPage(allocCtx context.Context, cfg *config.Capture, sink EventSink) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	p := &Page{cfg: cfg, sink: sink, ctx: tabCtx, cancel: cancel}

	if err := chromedp.Run(tabCtx, p.setupActions()...); err != nil {
		cancel()
		return nil, newError(CodeCDPUnavailable, "tab setup failed", err)
	}

	chromedp.ListenTarget(tabCtx, p.handleEvent)
	return p, nil
}

// Close releases the tab.
func (p *Page) Close() {
	p.cancel()
}

// Context exposes the tab context for encode operations.
func (p *Page) Context() context.Context { return p.ctx }

func (p *Page) setupActions() []chromedp.Action {
	cfg := p.cfg
	actions := []chromedp.Action{
		network.Enable(),
		page.Enable(),
		emulation.SetDeviceMetricsOverride(cfg.MinWidth, cfg.MinHeight, 1, false),
	}

	if cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if len(cfg.Headers) > 0 {
		headers := make(network.Headers, len(cfg.Headers))
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if cfg.Insecure {
		actions = append(actions, security.SetIgnoreCertificateErrors(true))
	}
	if cfg.JavaScript == config.ToggleOff {
		actions = append(actions, emulation.SetScriptExecutionDisabled(true))
	}
	if cfg.ZoomFactor > 0 {
		actions = append(actions, emulation.SetPageScaleFactor(cfg.ZoomFactor))
	}
	if cfg.ScriptObject != "" {
		actions = append(actions,
			runtime.AddBinding(bridgeBinding),
			addDocumentScript(bridgeBootstrap(cfg.ScriptObject)),
		)
	}
	if cfg.InjectScript != "" {
		actions = append(actions, addDocumentScript(cfg.InjectScript))
	}
	if len(cfg.Body) > 0 {
		// The initial document request is intercepted and continued as a
		// POST carrying the configured body.
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
		}))
	}
	return actions
}

func addDocumentScript(source string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	})
}

// Navigate starts loading the configured URL. A navigation that the engine
// rejects outright is reported as a failed load; successful completion is
// reported later through the load event.
func (p *Page) Navigate() {
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, _, err := page.Navigate(p.cfg.URL).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigation rejected: %s", errText)
		}
		return nil
	}))
	if err != nil {
		if !p.cfg.Silent {
			slog.Error("navigation failed", "url", p.cfg.URL, "error", err)
		}
		p.sink.Post(orchestrate.LoadFinished{OK: false})
	}
}

// handleEvent dispatches engine events onto the orchestrator. It runs on
// chromedp's event goroutine and must never block, so CDP commands issued in
// response are spun off.
func (p *Page) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventLoadEventFired:
		p.sink.Post(orchestrate.LoadFinished{OK: true})

	case *page.EventJavascriptDialogOpening:
		go p.resolveDialog(e)

	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeDocument && p.docRequestID.Load() == nil {
			p.docRequestID.Store(e.RequestID)
		}

	case *network.EventLoadingFailed:
		id, ok := p.docRequestID.Load().(network.RequestID)
		if ok && e.RequestID == id && !e.Canceled {
			if !p.cfg.Silent {
				slog.Error("document load failed", "error_text", e.ErrorText)
			}
			p.sink.Post(orchestrate.LoadFinished{OK: false})
		}

	case *runtime.EventBindingCalled:
		p.handleBinding(e)

	case *fetch.EventRequestPaused:
		go p.continueRequest(e)
	}
}

// resolveDialog answers every script dialog with a fixed, non-blocking
// response: alerts and confirms are accepted, prompts are answered with an
// empty value. The tool runs unattended; a dialog must never stall it.
func (p *Page) resolveDialog(e *page.EventJavascriptDialogOpening) {
	handle := page.HandleJavaScriptDialog(true)
	if e.Type == page.DialogTypePrompt {
		handle = handle.WithPromptText("")
	}

	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(ctx, handle); err != nil {
		slog.Debug("dialog handling failed", "type", e.Type, "error", err)
	}

	if e.Type != page.DialogTypeAlert {
		return
	}
	if p.cfg.PrintAlerts {
		slog.Info("script alert", "message", e.Message)
	}
	// Exact, case-sensitive match only. Repeated matches each post an event;
	// the orchestrator's capture latch makes all but the first a no-op.
	if p.cfg.ExpectAlert != "" && e.Message == p.cfg.ExpectAlert {
		p.sink.Post(orchestrate.AlertMatched{})
	}
}

// continueRequest applies the configured POST body to the first document
// request and releases everything else untouched.
func (p *Page) continueRequest(e *fetch.EventRequestPaused) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	cont := fetch.ContinueRequest(e.RequestID)
	if e.ResourceType == network.ResourceTypeDocument && p.bodySent.CompareAndSwap(false, true) {
		cont = cont.
			WithMethod("POST").
			WithPostData(base64.StdEncoding.EncodeToString(p.cfg.Body))
	}
	if err := chromedp.Run(ctx, cont); err != nil {
		slog.Debug("continue intercepted request failed", "error", err)
	}
}
