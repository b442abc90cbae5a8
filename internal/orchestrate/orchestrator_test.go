package orchestrate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagecap/pagecap/internal/format"
)

type fakeSurface struct {
	mu          sync.Mutex
	contentSize ViewSize
	contentOK   bool
	surfaceSize ViewSize
	resizedTo   []ViewSize
}

func (s *fakeSurface) MeasureContent(ctx context.Context) (ViewSize, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentSize, s.contentOK
}

func (s *fakeSurface) SurfaceSize(ctx context.Context) ViewSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surfaceSize
}

func (s *fakeSurface) Resize(ctx context.Context, size ViewSize) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizedTo = append(s.resizedTo, size)
	return nil
}

type fakeWriter struct {
	calls    atomic.Int64
	err      error
	mu       sync.Mutex
	lastSize ViewSize
	wroteAt  time.Time
}

func (w *fakeWriter) Write(ctx context.Context, f format.Format, path string, size ViewSize) error {
	w.calls.Add(1)
	w.mu.Lock()
	w.lastSize = size
	w.wroteAt = time.Now()
	w.mu.Unlock()
	return w.err
}

func runOrchestrator(t *testing.T, o *Orchestrator) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(context.Background()) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not terminate")
		return nil
	}
}

func TestCaptureAfterLoadAndGeometry(t *testing.T) {
	surface := &fakeSurface{contentSize: ViewSize{Width: 1024, Height: 2048}, contentOK: true}
	writer := &fakeWriter{}
	o := New(Config{
		OutputPath: "out.png",
		Format:     format.PNG,
		MinSize:    ViewSize{Width: 800, Height: 600},
	}, surface, writer)

	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: true})

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}
	if got := writer.calls.Load(); got != 1 {
		t.Fatalf("writer invoked %d times; want 1", got)
	}
	if writer.lastSize != (ViewSize{Width: 1024, Height: 2048}) {
		t.Errorf("capture size = %+v; want probed size", writer.lastSize)
	}
	surface.mu.Lock()
	defer surface.mu.Unlock()
	if len(surface.resizedTo) != 1 || surface.resizedTo[0] != (ViewSize{Width: 1024, Height: 2048}) {
		t.Errorf("surface resized to %v; want single resize to probed size", surface.resizedTo)
	}
}

func TestLoadFailureIsFatalWithoutCapture(t *testing.T) {
	writer := &fakeWriter{}
	o := New(Config{Format: format.PNG}, &fakeSurface{}, writer)

	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: false})

	if err := waitErr(t, errCh); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("Run() = %v; want ErrLoadFailed", err)
	}
	if got := writer.calls.Load(); got != 0 {
		t.Fatalf("writer invoked %d times after load failure; want 0", got)
	}
}

func TestAtMostOnceCaptureUnderCompetingTriggers(t *testing.T) {
	surface := &fakeSurface{contentSize: ViewSize{Width: 640, Height: 480}, contentOK: true}
	writer := &fakeWriter{}
	o := New(Config{
		Format:  format.PNG,
		MaxWait: 10 * time.Millisecond,
	}, surface, writer)

	errCh := runOrchestrator(t, o)
	// Fire every trigger the loop can see; only one capture may result.
	o.Post(LoadFinished{OK: true})
	o.Post(AlertMatched{})
	o.Post(DelayElapsed{})
	o.Post(DelayElapsed{})
	o.Post(TimeoutExpired{})

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}
	// Give any stray timer callbacks time to fire into the dead loop.
	time.Sleep(50 * time.Millisecond)
	if got := writer.calls.Load(); got != 1 {
		t.Fatalf("writer invoked %d times; want exactly 1", got)
	}
}

func TestAlertPrecedenceSuppressesGeometryPath(t *testing.T) {
	surface := &fakeSurface{contentSize: ViewSize{Width: 500, Height: 500}, contentOK: true}
	writer := &fakeWriter{}
	o := New(Config{
		Format:      format.PNG,
		ExpectAlert: "READY",
		MinSize:     ViewSize{Width: 800, Height: 600},
	}, surface, writer)

	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: true})
	o.Post(GeometryResolved{Size: ViewSize{Width: 500, Height: 500}, OK: true})

	time.Sleep(100 * time.Millisecond)
	if got := writer.calls.Load(); got != 0 {
		t.Fatalf("capture fired before alert; writer invoked %d times", got)
	}

	o.Post(AlertMatched{})
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}
	if got := writer.calls.Load(); got != 1 {
		t.Fatalf("writer invoked %d times; want 1", got)
	}
	// The alert path never adopts probed geometry; it falls back to the
	// configured minimum when the surface reports no size.
	if writer.lastSize != (ViewSize{Width: 800, Height: 600}) {
		t.Errorf("capture size = %+v; want configured minimum", writer.lastSize)
	}
}

func TestTimeoutForcesCapture(t *testing.T) {
	writer := &fakeWriter{}
	o := New(Config{
		Format:  format.PNG,
		MaxWait: 100 * time.Millisecond,
		MinSize: ViewSize{Width: 800, Height: 600},
	}, &fakeSurface{}, writer)

	start := time.Now()
	errCh := runOrchestrator(t, o)

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Errorf("timeout capture fired at %v; want >= 100ms", elapsed)
	}
	if got := writer.calls.Load(); got != 1 {
		t.Fatalf("writer invoked %d times; want 1", got)
	}
}

func TestGeometryFallbackChain(t *testing.T) {
	cases := []struct {
		name    string
		surface *fakeSurface
		want    ViewSize
	}{
		{
			name:    "probe wins",
			surface: &fakeSurface{contentSize: ViewSize{Width: 1200, Height: 3000}, contentOK: true},
			want:    ViewSize{Width: 1200, Height: 3000},
		},
		{
			name:    "probe absent falls back to surface",
			surface: &fakeSurface{surfaceSize: ViewSize{Width: 1024, Height: 768}},
			want:    ViewSize{Width: 1024, Height: 768},
		},
		{
			name:    "probe and surface absent fall back to minimum",
			surface: &fakeSurface{},
			want:    ViewSize{Width: 800, Height: 600},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writer := &fakeWriter{}
			o := New(Config{
				Format:  format.PNG,
				MinSize: ViewSize{Width: 800, Height: 600},
			}, tc.surface, writer)

			errCh := runOrchestrator(t, o)
			o.Post(LoadFinished{OK: true})

			if err := waitErr(t, errCh); err != nil {
				t.Fatalf("Run() = %v; want nil", err)
			}
			if writer.lastSize != tc.want {
				t.Errorf("capture size = %+v; want %+v", writer.lastSize, tc.want)
			}
		})
	}
}

func TestDelayPostponesCapture(t *testing.T) {
	surface := &fakeSurface{contentSize: ViewSize{Width: 800, Height: 600}, contentOK: true}
	writer := &fakeWriter{}
	o := New(Config{
		Format: format.PNG,
		Delay:  150 * time.Millisecond,
	}, surface, writer)

	start := time.Now()
	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: true})

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("capture fired at %v; want >= 150ms delay", elapsed)
	}
}

func TestEncodeFailurePropagates(t *testing.T) {
	wantErr := errors.New("print failed")
	surface := &fakeSurface{contentSize: ViewSize{Width: 800, Height: 600}, contentOK: true}
	writer := &fakeWriter{err: wantErr}
	o := New(Config{Format: format.PDF}, surface, writer)

	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: true})

	if err := waitErr(t, errCh); !errors.Is(err, wantErr) {
		t.Fatalf("Run() = %v; want writer error", err)
	}
}

func TestNotifyObservesStages(t *testing.T) {
	surface := &fakeSurface{contentSize: ViewSize{Width: 800, Height: 600}, contentOK: true}
	writer := &fakeWriter{}
	o := New(Config{Format: format.PNG}, surface, writer)

	var mu sync.Mutex
	var stages []string
	o.Notify = func(stage string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}

	errCh := runOrchestrator(t, o)
	o.Post(LoadFinished{OK: true})
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run() = %v; want nil", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{StageLoading, StageMeasuring, StageCapturing, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v; want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v; want %v", stages, want)
		}
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	o := New(Config{Format: format.PNG}, &fakeSurface{}, &fakeWriter{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()
	cancel()

	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v; want context.Canceled", err)
	}
}
