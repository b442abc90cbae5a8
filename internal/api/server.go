// Package api exposes the capture daemon over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pagecap/pagecap/internal/engine"
	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/service"
	"github.com/pagecap/pagecap/internal/store"
)

type Service interface {
	CreateCapture(ctx context.Context, req service.CaptureRequest) (store.CaptureMeta, error)
	ListCaptures(ctx context.Context) ([]store.CaptureMeta, error)
	GetCapture(ctx context.Context, id string) (store.CaptureMeta, error)
	ReadArtifact(ctx context.Context, id string) ([]byte, string, error)
	DeleteCapture(ctx context.Context, id string) error
	SubscribeEvents() (<-chan []byte, func())
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Pagecap Capture API", "1.0.0")
	api := humachi.New(router, cfg)

	registerCaptureHandlers(api, svc)

	// Raw artifact bytes bypass huma so the response carries the format's
	// own content type instead of a JSON envelope.
	router.Get("/api/v1/captures/{id}/file", func(w http.ResponseWriter, r *http.Request) {
		data, identifier, err := svc.ReadArtifact(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", format.FromIdentifier(identifier).MIME())
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	})

	router.Get("/api/v1/events", eventsHandler(svc))

	return router
}

func registerCaptureHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type createInput struct {
		Body service.CaptureRequest
	}
	type captureOutput struct {
		Body store.CaptureMeta
	}
	huma.Register(api, huma.Operation{OperationID: "create-capture", Method: http.MethodPost, Path: "/api/v1/captures", Summary: "Capture a page and store the result", Tags: []string{"Captures"}},
		func(ctx context.Context, input *createInput) (*captureOutput, error) {
			meta, err := svc.CreateCapture(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &captureOutput{}
			out.Body = meta
			return out, nil
		})

	type listOutput struct {
		Body []store.CaptureMeta
	}
	huma.Register(api, huma.Operation{OperationID: "list-captures", Method: http.MethodGet, Path: "/api/v1/captures", Summary: "List stored captures, newest first", Tags: []string{"Captures"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			metas, err := svc.ListCaptures(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body = metas
			return out, nil
		})

	type idInput struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{OperationID: "get-capture", Method: http.MethodGet, Path: "/api/v1/captures/{id}", Summary: "Get capture metadata", Tags: []string{"Captures"}},
		func(ctx context.Context, input *idInput) (*captureOutput, error) {
			meta, err := svc.GetCapture(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &captureOutput{}
			out.Body = meta
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-capture", Method: http.MethodDelete, Path: "/api/v1/captures/{id}", Summary: "Delete a capture and its metadata", Tags: []string{"Captures"}},
		func(ctx context.Context, input *idInput) (*struct{}, error) {
			if err := svc.DeleteCapture(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	var coded *engine.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case engine.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case engine.CodeNavigation:
			return huma.Error502BadGateway(coded.Message)
		case engine.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case engine.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
