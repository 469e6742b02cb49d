package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

type sessionInput struct {
	Body *struct {
		Keyword *string `json:"keyword,omitempty" doc:"Case-insensitive title substring. Omit to use the saved keyword; empty matches every notebook tab."`
	} `required:"false"`
}

func (in *sessionInput) keyword() *string {
	if in.Body == nil {
		return nil
	}
	return in.Body.Keyword
}

type sessionOutput struct {
	Body controller.Snapshot
}

func registerSessionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/session", Summary: "Get session state, current batch and status", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			return &sessionOutput{Body: svc.Snapshot()}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "start-session", Method: http.MethodPost, Path: "/api/v1/session/start", Summary: "Run all cells in matching notebook tabs", Tags: []string{"Session"}},
		func(ctx context.Context, input *sessionInput) (*sessionOutput, error) {
			snap, err := svc.Start(ctx, input.keyword())
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-session", Method: http.MethodPost, Path: "/api/v1/session/stop", Summary: "Interrupt execution in matching notebook tabs", Tags: []string{"Session"}},
		func(ctx context.Context, input *sessionInput) (*sessionOutput, error) {
			snap, err := svc.Stop(ctx, input.keyword())
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "toggle-session", Method: http.MethodPost, Path: "/api/v1/session/toggle", Summary: "Stop when running, otherwise start", Tags: []string{"Session"}},
		func(ctx context.Context, input *sessionInput) (*sessionOutput, error) {
			snap, err := svc.Toggle(ctx, input.keyword())
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	type batchInput struct {
		BatchID string `path:"batch_id"`
	}
	type batchOutput struct {
		Body controller.BatchView
	}
	huma.Register(api, huma.Operation{OperationID: "get-batch-outcomes", Method: http.MethodGet, Path: "/api/v1/session/batches/{batch_id}/outcomes", Summary: "Get per-tab outcomes of a recent batch", Tags: []string{"Session"}},
		func(ctx context.Context, input *batchInput) (*batchOutput, error) {
			view, err := svc.Batch(input.BatchID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &batchOutput{Body: view}, nil
		})
}

func registerTabHandlers(api huma.API, svc Service) {
	type tabsInput struct {
		Keyword string `query:"keyword" doc:"Case-insensitive title substring; empty matches every notebook tab."`
	}
	type tabsOutput struct {
		Body struct {
			Keyword string        `json:"keyword"`
			Tabs    tabs.MatchSet `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List notebook tabs matching a keyword", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *tabsInput) (*tabsOutput, error) {
			matches, err := svc.Tabs(ctx, input.Keyword)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Keyword = input.Keyword
			out.Body.Tabs = matches
			if out.Body.Tabs == nil {
				out.Body.Tabs = tabs.MatchSet{}
			}
			return out, nil
		})

	type keywordBody struct {
		Keyword string `json:"keyword"`
	}
	type keywordOutput struct {
		Body keywordBody
	}
	huma.Register(api, huma.Operation{OperationID: "get-keyword", Method: http.MethodGet, Path: "/api/v1/keyword", Summary: "Get the saved keyword", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*keywordOutput, error) {
			kw, err := svc.Keyword(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &keywordOutput{Body: keywordBody{Keyword: kw}}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-keyword", Method: http.MethodPut, Path: "/api/v1/keyword", Summary: "Save the keyword used when a request omits one", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{ Body keywordBody }) (*keywordOutput, error) {
			if err := svc.SetKeyword(ctx, input.Body.Keyword); err != nil {
				return nil, mapErr(err)
			}
			return &keywordOutput{Body: input.Body}, nil
		})
}
