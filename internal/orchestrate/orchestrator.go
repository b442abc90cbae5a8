// Package orchestrate decides when a loading page is ready to capture. It
// coordinates load completion, the asynchronous content-size probe, script
// alert signals, the post-readiness delay, and the global deadline into a
// single exactly-once capture decision.
package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pagecap/pagecap/internal/format"
)

// ErrLoadFailed reports that the engine could not load the page; no capture
// is attempted when this is returned.
var ErrLoadFailed = errors.New("page load failed")

// alertSettle is the grace interval between a matched alert and the capture,
// giving the engine time to finish pending layout and paint work.
const alertSettle = 10 * time.Millisecond

// Progress stage names reported through the Notify hook.
const (
	StageLoading   = "loading"
	StageMeasuring = "measuring"
	StageSettling  = "settling"
	StageCapturing = "capturing"
	StageDone      = "done"
)

// ViewSize is the negotiated content size in CSS pixels.
type ViewSize struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Empty reports whether the size is unusable for capture.
func (v ViewSize) Empty() bool { return v.Width <= 0 || v.Height <= 0 }

// Event is a readiness signal consumed by the orchestrator. Producers post
// events; the orchestrator drains them on a single goroutine, so handlers
// never run concurrently.
type Event interface{ event() }

// LoadFinished reports the outcome of the page navigation.
type LoadFinished struct{ OK bool }

// GeometryResolved carries the content-size probe result. OK is false when
// the probe failed or returned non-positive dimensions.
type GeometryResolved struct {
	Size ViewSize
	OK   bool
}

// AlertMatched reports that a script alert equal to the configured
// expect-alert string was observed.
type AlertMatched struct{}

// DelayElapsed reports that the post-readiness delay (or the alert settle
// interval) has passed.
type DelayElapsed struct{}

// TimeoutExpired reports that the global max-wait deadline was reached.
type TimeoutExpired struct{}

func (LoadFinished) event()     {}
func (GeometryResolved) event() {}
func (AlertMatched) event()     {}
func (DelayElapsed) event()     {}
func (TimeoutExpired) event()   {}

// Surface is the subset of the rendering engine the orchestrator drives.
type Surface interface {
	// MeasureContent runs the one-shot content-size probe. ok is false when
	// no usable size could be determined.
	MeasureContent(ctx context.Context) (size ViewSize, ok bool)
	// SurfaceSize returns the current viewport size.
	SurfaceSize(ctx context.Context) ViewSize
	// Resize grows the rendering surface to the given content size.
	Resize(ctx context.Context, size ViewSize) error
}

// Writer commits the capture to disk. It is invoked at most once per run.
type Writer interface {
	Write(ctx context.Context, f format.Format, path string, size ViewSize) error
}

// Config is the immutable per-run capture configuration the orchestrator
// consumes.
type Config struct {
	OutputPath  string
	Format      format.Format
	Delay       time.Duration
	MaxWait     time.Duration // 0 means unbounded
	ExpectAlert string
	Quiet       bool
	MinSize     ViewSize
}

type runState int

const (
	stateAwaitingLoad runState = iota
	stateAwaitingReadiness
	stateAwaitingDelay
	stateCapturing
	stateTerminated
)

// Orchestrator owns the readiness flags and the exactly-once capture latch.
// All fields below the events channel are touched only from the Run
// goroutine.
type Orchestrator struct {
	cfg     Config
	surface Surface
	writer  Writer
	events  chan Event

	// Notify, when set, observes stage transitions. It never participates in
	// the readiness decision.
	Notify func(stage string)

	state         runState
	loadComplete  bool
	geometryKnown bool
	captured      bool
	viewSize      ViewSize

	delayTimer   *time.Timer
	timeoutTimer *time.Timer
}

// New builds an orchestrator for one capture run.
func New(cfg Config, surface Surface, writer Writer) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		surface: surface,
		writer:  writer,
		events:  make(chan Event, 32),
		state:   stateAwaitingLoad,
	}
}

// Post delivers an event to the run loop. Safe to call from any goroutine.
// Events posted after termination are dropped.
func (o *Orchestrator) Post(ev Event) {
	select {
	case o.events <- ev:
	default:
		slog.Debug("readiness event dropped", "event", ev)
	}
}

// Run drains events until the capture completes or fails. It returns nil on
// a successful capture, ErrLoadFailed on a fatal navigation failure, and the
// writer's error on a fatal encode failure.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.MaxWait > 0 {
		o.timeoutTimer = time.AfterFunc(o.cfg.MaxWait, func() {
			o.Post(TimeoutExpired{})
		})
	}
	defer o.stopTimers()

	o.notify(StageLoading)

	for {
		select {
		case <-ctx.Done():
			o.state = stateTerminated
			return ctx.Err()
		case ev := <-o.events:
			done, err := o.handle(ctx, ev)
			if done {
				return err
			}
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev Event) (bool, error) {
	if o.captured || o.state == stateTerminated {
		return false, nil
	}

	switch e := ev.(type) {
	case LoadFinished:
		return o.onLoadFinished(ctx, e.OK)
	case GeometryResolved:
		return o.onGeometryResolved(ctx, e)
	case AlertMatched:
		// Bypasses the geometry/delay sub-protocol entirely; capture fires
		// after a short settle interval.
		o.delayTimer = time.AfterFunc(alertSettle, func() {
			o.Post(DelayElapsed{})
		})
		return false, nil
	case DelayElapsed:
		return true, o.capture(ctx)
	case TimeoutExpired:
		if !o.cfg.Quiet {
			slog.Info("max wait reached, forcing capture",
				"max_wait_ms", o.cfg.MaxWait.Milliseconds())
		}
		return true, o.capture(ctx)
	}
	return false, nil
}

func (o *Orchestrator) onLoadFinished(ctx context.Context, ok bool) (bool, error) {
	if !ok {
		if !o.cfg.Quiet {
			slog.Error("engine failed to completely load url")
		}
		o.state = stateTerminated
		return true, ErrLoadFailed
	}
	o.loadComplete = true
	o.state = stateAwaitingReadiness

	// Alert-gating: once an expected alert is configured, only a matching
	// alert (or the global timeout) may trigger capture.
	if o.alertGated() {
		return false, nil
	}

	o.notify(StageMeasuring)
	go func() {
		size, ok := o.surface.MeasureContent(ctx)
		o.Post(GeometryResolved{Size: size, OK: ok})
	}()
	return false, nil
}

func (o *Orchestrator) onGeometryResolved(ctx context.Context, e GeometryResolved) (bool, error) {
	if o.alertGated() {
		return false, nil
	}

	if e.OK && !e.Size.Empty() {
		o.viewSize = e.Size
		if err := o.surface.Resize(ctx, e.Size); err != nil {
			slog.Warn("surface resize failed", "error", err)
		}
	} else {
		o.viewSize = o.surface.SurfaceSize(ctx)
		if o.viewSize.Empty() {
			o.viewSize = o.cfg.MinSize
		}
	}
	o.geometryKnown = true

	if o.loadComplete && o.geometryKnown {
		return o.startDelay(ctx)
	}
	return false, nil
}

func (o *Orchestrator) startDelay(ctx context.Context) (bool, error) {
	if o.cfg.Delay <= 0 {
		return true, o.capture(ctx)
	}
	o.state = stateAwaitingDelay
	o.notify(StageSettling)
	o.delayTimer = time.AfterFunc(o.cfg.Delay, func() {
		o.Post(DelayElapsed{})
	})
	return false, nil
}

// capture is the single gate through which every trigger funnels. The
// captured latch is checked and set here, on the run goroutine, so no second
// invocation is possible.
func (o *Orchestrator) capture(ctx context.Context) error {
	if o.captured {
		return nil
	}
	o.captured = true
	o.state = stateCapturing
	o.stopTimers()
	o.notify(StageCapturing)

	if o.viewSize.Empty() {
		o.viewSize = o.surface.SurfaceSize(ctx)
	}
	if o.viewSize.Empty() {
		o.viewSize = o.cfg.MinSize
	}

	err := o.writer.Write(ctx, o.cfg.Format, o.cfg.OutputPath, o.viewSize)
	o.state = stateTerminated
	if err == nil {
		o.notify(StageDone)
	}
	return err
}

func (o *Orchestrator) alertGated() bool { return o.cfg.ExpectAlert != "" }

// CapturedSize returns the view size the capture used. Valid only after Run
// has returned.
func (o *Orchestrator) CapturedSize() ViewSize {
	size := o.viewSize
	if size.Empty() {
		size = o.cfg.MinSize
	}
	return size
}

func (o *Orchestrator) stopTimers() {
	if o.delayTimer != nil {
		o.delayTimer.Stop()
	}
	if o.timeoutTimer != nil {
		o.timeoutTimer.Stop()
	}
}

func (o *Orchestrator) notify(stage string) {
	if o.Notify != nil {
		o.Notify(stage)
	}
}
