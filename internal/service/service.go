// Package service runs captures on behalf of the daemon API and records the
// artifacts in the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pagecap/pagecap/internal/capture"
	"github.com/pagecap/pagecap/internal/config"
	"github.com/pagecap/pagecap/internal/engine"
	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/orchestrate"
	"github.com/pagecap/pagecap/internal/store"
)

// CaptureRequest carries the capture options accepted over the API.
type CaptureRequest struct {
	URL         string            `json:"url" doc:"The URL to capture"`
	Format      string            `json:"format" doc:"Output format identifier (svg,pdf,ps,itext,html,png,jpeg,webp,gif,bmp,tiff)"`
	MinWidth    int64             `json:"min_width,omitempty" doc:"Minimal width, default 800"`
	MinHeight   int64             `json:"min_height,omitempty" doc:"Minimal height, default 600"`
	DelayMS     int               `json:"delay_ms,omitempty" doc:"Wait after load before capturing"`
	MaxWaitMS   int               `json:"max_wait_ms,omitempty" doc:"Global deadline, 0 = daemon default"`
	ExpectAlert string            `json:"expect_alert,omitempty" doc:"Capture when alert(<string>) occurs"`
	Headers     map[string]string `json:"headers,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Smooth      bool              `json:"smooth,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	Backgrounds bool              `json:"print_backgrounds,omitempty"`
}

// Service executes API capture requests against a shared browser.
type Service struct {
	runner   *capture.Runner
	store    *store.Store
	hub      *Hub
	defaults *config.Defaults
}

// New builds the daemon service.
func New(runner *capture.Runner, st *store.Store, defaults *config.Defaults) *Service {
	return &Service{runner: runner, store: st, hub: NewHub(), defaults: defaults}
}

// CreateCapture performs one capture and stores the result. It blocks until
// the capture finishes or fails.
func (s *Service) CreateCapture(ctx context.Context, req CaptureRequest) (store.CaptureMeta, error) {
	if req.URL == "" {
		return store.CaptureMeta{}, &engine.CodedError{Code: engine.CodeValidation, Message: "url is required"}
	}
	f := format.FromIdentifier(req.Format)
	if f == format.Unresolved {
		return store.CaptureMeta{}, &engine.CodedError{
			Code:    engine.CodeValidation,
			Message: fmt.Sprintf("unknown format %q", req.Format),
		}
	}

	minW, minH := req.MinWidth, req.MinHeight
	if minW <= 0 {
		minW = s.defaults.MinWidth
	}
	if minH <= 0 {
		minH = s.defaults.MinHeight
	}
	maxWait := req.MaxWaitMS
	if maxWait <= 0 {
		maxWait = s.defaults.MaxWaitMS
	}

	id := uuid.New().String()
	outPath := s.store.ArtifactPath(id, f)

	cfg := &config.Capture{
		URL:         req.URL,
		OutputPath:  outPath,
		Format:      f,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		MaxWait:     time.Duration(maxWait) * time.Millisecond,
		MinWidth:    minW,
		MinHeight:   minH,
		Headers:     req.Headers,
		UserAgent:   req.UserAgent,
		Smooth:      req.Smooth,
		Insecure:    req.Insecure,
		ExpectAlert: req.ExpectAlert,
	}
	if req.Backgrounds {
		cfg.PrintBackgrounds = config.ToggleOn
	}

	start := time.Now()
	notify := func(stage string) {
		s.hub.Publish(StageEvent{CaptureID: id, Stage: stage, At: time.Now().UTC()})
	}

	size, err := s.runner.Execute(ctx, cfg, notify)
	if err != nil {
		s.hub.Publish(StageEvent{CaptureID: id, Stage: "error", At: time.Now().UTC()})
		if errors.Is(err, orchestrate.ErrLoadFailed) {
			return store.CaptureMeta{}, &engine.CodedError{Code: engine.CodeNavigation, Message: "page load failed", Cause: err}
		}
		return store.CaptureMeta{}, err
	}

	var sizeBytes int
	if info, statErr := os.Stat(outPath); statErr == nil {
		sizeBytes = int(info.Size())
	}

	meta := store.CaptureMeta{
		ID:        id,
		URL:       req.URL,
		Format:    f.Identifier(),
		Width:     size.Width,
		Height:    size.Height,
		SizeBytes: sizeBytes,
		CreatedAt: time.Now().UTC(),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if err := s.store.SaveMeta(meta); err != nil {
		return store.CaptureMeta{}, err
	}
	return meta, nil
}

// ListCaptures returns stored capture metadata, newest first.
func (s *Service) ListCaptures(ctx context.Context) ([]store.CaptureMeta, error) {
	return s.store.List()
}

// GetCapture returns metadata for one capture.
func (s *Service) GetCapture(ctx context.Context, id string) (store.CaptureMeta, error) {
	return s.store.Get(id)
}

// ReadArtifact returns the raw output bytes and the format identifier.
func (s *Service) ReadArtifact(ctx context.Context, id string) ([]byte, string, error) {
	return s.store.ReadArtifact(id)
}

// DeleteCapture removes a capture and its metadata.
func (s *Service) DeleteCapture(ctx context.Context, id string) error {
	return s.store.Delete(id)
}

// SubscribeEvents attaches a progress feed subscriber.
func (s *Service) SubscribeEvents() (<-chan []byte, func()) {
	return s.hub.Subscribe()
}
