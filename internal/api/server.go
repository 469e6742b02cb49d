package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Tabs(ctx context.Context, keyword string) (tabs.MatchSet, error)
	Snapshot() controller.Snapshot
	Start(ctx context.Context, keyword *string) (controller.Snapshot, error)
	Stop(ctx context.Context, keyword *string) (controller.Snapshot, error)
	Toggle(ctx context.Context, keyword *string) (controller.Snapshot, error)
	Batch(batchID string) (controller.BatchView, error)
	Keyword(ctx context.Context) (string, error)
	SetKeyword(ctx context.Context, keyword string) error
	DeepHealthCheck(ctx context.Context) (controller.DeepHealth, error)
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Colab Agent Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerSessionHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeNoMatch, cdpcontrol.CodeTabNotFound, cdpcontrol.CodeBatchNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeBusy:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
