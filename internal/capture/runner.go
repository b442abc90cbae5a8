// Package capture wires one run together: a fresh tab, the readiness
// orchestrator, and the snapshot writer.
package capture

import (
	"context"
	"sync/atomic"

	"github.com/pagecap/pagecap/internal/config"
	"github.com/pagecap/pagecap/internal/engine"
	"github.com/pagecap/pagecap/internal/orchestrate"
	"github.com/pagecap/pagecap/internal/writer"
)

// eventRelay forwards engine events to the orchestrator. The page has to
// exist before the orchestrator (which needs the page as its surface), so
// the sink is bound after both are constructed. Nothing can emit events
// before navigation starts.
type eventRelay struct {
	target atomic.Pointer[orchestrate.Orchestrator]
}

func (r *eventRelay) Post(ev orchestrate.Event) {
	if o := r.target.Load(); o != nil {
		o.Post(ev)
	}
}

// Runner executes capture runs against a shared browser allocator context.
type Runner struct {
	allocCtx context.Context
}

// NewRunner creates a runner bound to a chromedp allocator.
func NewRunner(allocCtx context.Context) *Runner {
	return &Runner{allocCtx: allocCtx}
}

// Execute performs exactly one capture per the given configuration, blocking
// until it completes or fails. notify, when non-nil, observes stage
// transitions. The returned size is the view size the capture used.
func (r *Runner) Execute(ctx context.Context, cfg *config.Capture, notify func(stage string)) (orchestrate.ViewSize, error) {
	relay := &eventRelay{}
	page, err := engine.NewPage(r.allocCtx, cfg, relay)
	if err != nil {
		return orchestrate.ViewSize{}, err
	}
	defer page.Close()

	w := writer.New(page, cfg.Smooth, cfg.Silent)
	o := orchestrate.New(orchestrate.Config{
		OutputPath:  cfg.OutputPath,
		Format:      cfg.Format,
		Delay:       cfg.Delay,
		MaxWait:     cfg.MaxWait,
		ExpectAlert: cfg.ExpectAlert,
		Quiet:       cfg.Silent,
		MinSize:     cfg.MinSize(),
	}, page, w)
	o.Notify = notify
	relay.target.Store(o)

	go page.Navigate()

	if err := o.Run(ctx); err != nil {
		return orchestrate.ViewSize{}, err
	}
	return o.CapturedSize(), nil
}
