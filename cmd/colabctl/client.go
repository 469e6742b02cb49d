package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
	"github.com/tidwall/gjson"
)

const waitPollInterval = 250 * time.Millisecond

// result is what a subcommand prints. Exactly one field is set.
type result struct {
	Snapshot *controller.Snapshot  `json:"snapshot,omitempty"`
	Batch    *controller.BatchView `json:"batch,omitempty"`
	Tabs     *tabList              `json:"tabs,omitempty"`
}

type tabList struct {
	Keyword string        `json:"keyword"`
	Tabs    tabs.MatchSet `json:"tabs"`
}

// apiError carries the HTTP status and huma's problem detail.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("controller returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Detail, e.Status)
}

type apiBackend struct {
	base   string
	client *http.Client
}

func newAPIBackend(base string) *apiBackend {
	return &apiBackend{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *apiBackend) Close() {}

func (a *apiBackend) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach controller at %s: %w", a.base, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Detail: gjson.GetBytes(raw, "detail").String()}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func sessionBody(keyword *string) any {
	if keyword == nil {
		return nil
	}
	return map[string]string{"keyword": *keyword}
}

func (a *apiBackend) session(ctx context.Context, action string, keyword *string, wait bool) (result, error) {
	var snap controller.Snapshot
	if err := a.do(ctx, http.MethodPost, "/api/v1/session/"+action, sessionBody(keyword), &snap); err != nil {
		return result{}, err
	}
	if !wait || snap.Batch == nil {
		return result{Snapshot: &snap}, nil
	}
	view, err := a.waitBatch(ctx, snap.Batch.ID)
	if err != nil {
		return result{}, err
	}
	return result{Batch: &view}, nil
}

// waitBatch polls the outcomes endpoint until every tab has reported.
func (a *apiBackend) waitBatch(ctx context.Context, id string) (controller.BatchView, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		var view controller.BatchView
		if err := a.do(ctx, http.MethodGet, "/api/v1/session/batches/"+url.PathEscape(id)+"/outcomes", nil, &view); err != nil {
			return view, err
		}
		if view.Done {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("batch %s still running: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *apiBackend) Start(ctx context.Context, keyword *string, wait bool) (result, error) {
	return a.session(ctx, "start", keyword, wait)
}

func (a *apiBackend) Stop(ctx context.Context, keyword *string, wait bool) (result, error) {
	return a.session(ctx, "stop", keyword, wait)
}

func (a *apiBackend) Toggle(ctx context.Context, keyword *string) (result, error) {
	return a.session(ctx, "toggle", keyword, false)
}

func (a *apiBackend) Status(ctx context.Context) (result, error) {
	var snap controller.Snapshot
	if err := a.do(ctx, http.MethodGet, "/api/v1/session", nil, &snap); err != nil {
		return result{}, err
	}
	return result{Snapshot: &snap}, nil
}

func (a *apiBackend) Batch(ctx context.Context, id string) (result, error) {
	var view controller.BatchView
	if err := a.do(ctx, http.MethodGet, "/api/v1/session/batches/"+url.PathEscape(id)+"/outcomes", nil, &view); err != nil {
		return result{}, err
	}
	return result{Batch: &view}, nil
}

func (a *apiBackend) Tabs(ctx context.Context, keyword string) (result, error) {
	var list tabList
	if err := a.do(ctx, http.MethodGet, "/api/v1/tabs?keyword="+url.QueryEscape(keyword), nil, &list); err != nil {
		return result{}, err
	}
	return result{Tabs: &list}, nil
}

func (a *apiBackend) Keyword(ctx context.Context) (string, error) {
	var raw json.RawMessage
	if err := a.do(ctx, http.MethodGet, "/api/v1/keyword", nil, &raw); err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, "keyword").String(), nil
}

func (a *apiBackend) SetKeyword(ctx context.Context, keyword string) error {
	return a.do(ctx, http.MethodPut, "/api/v1/keyword", map[string]string{"keyword": keyword}, nil)
}
