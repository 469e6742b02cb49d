package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

func TestKeywordArg(t *testing.T) {
	if got := keywordArg(nil); got != nil {
		t.Fatalf("keywordArg(nil) = %v; want nil", *got)
	}
	got := keywordArg([]string{""})
	if got == nil || *got != "" {
		t.Fatalf("keywordArg([\"\"]) = %v; want pointer to empty", got)
	}
}

func TestAPIBackend_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"title":"Conflict","status":409,"detail":"a run is already in progress"}`)
	}))
	defer srv.Close()

	_, err := newAPIBackend(srv.URL).Start(context.Background(), nil, false)
	var ae *apiError
	if !errors.As(err, &ae) {
		t.Fatalf("Start() error = %v; want *apiError", err)
	}
	if ae.Status != http.StatusConflict || ae.Detail != "a run is already in progress" {
		t.Fatalf("apiError = %+v", ae)
	}
}

func TestAPIBackend_SendsKeywordOnlyWhenGiven(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"state":"running"}`)
	}))
	defer srv.Close()

	be := newAPIBackend(srv.URL + "/")
	if _, err := be.Start(context.Background(), nil, false); err != nil {
		t.Fatalf("Start(nil) error = %v", err)
	}
	kw := "KataGo"
	res, err := be.Start(context.Background(), &kw, false)
	if err != nil {
		t.Fatalf("Start(kw) error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if bodies[0] != "" {
		t.Fatalf("body without keyword = %q; want empty", bodies[0])
	}
	if !strings.Contains(bodies[1], `"keyword":"KataGo"`) {
		t.Fatalf("body with keyword = %q", bodies[1])
	}
	if res.Snapshot == nil || res.Snapshot.State != controller.Running {
		t.Fatalf("Start() snapshot = %+v", res.Snapshot)
	}
}

func TestAPIBackend_WaitPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/session/stop":
			_, _ = io.WriteString(w, `{"state":"stopping","batch":{"id":"b1","done":false}}`)
		case "/api/v1/session/batches/b1/outcomes":
			if polls.Add(1) < 2 {
				_, _ = io.WriteString(w, `{"id":"b1","done":false}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"b1","done":true,"completed":1,"dispatched":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := newAPIBackend(srv.URL).Stop(ctx, nil, true)
	if err != nil {
		t.Fatalf("Stop(wait) error = %v", err)
	}
	if res.Batch == nil || !res.Batch.Done || polls.Load() != 2 {
		t.Fatalf("Stop(wait) batch = %+v after %d polls", res.Batch, polls.Load())
	}
}

func TestRenderBatch_PendingAndOutcomes(t *testing.T) {
	start := time.Unix(100, 0)
	v := controller.BatchView{
		ID:         "b1",
		Action:     "start",
		Tabs:       tabs.MatchSet{{ID: "t1", Title: "KataGo-run-7"}, {ID: "t2", Title: "Other"}},
		Dispatched: 2,
		Completed:  1,
		Outcomes: []invoker.ActionOutcome{
			{TabID: "t1", Title: "KataGo-run-7", Success: true, Strategy: "click-run-button", StartedAt: start, FinishedAt: start.Add(40 * time.Millisecond)},
		},
	}
	out := renderBatch(v)
	for _, want := range []string{"1/2 reported", "KataGo-run-7", "click-run-button", "Other"} {
		if !strings.Contains(out, want) {
			t.Fatalf("renderBatch() = %q; missing %q", out, want)
		}
	}
}

func TestDirectBackend_NeedsController(t *testing.T) {
	d := &directBackend{}
	if _, err := d.Toggle(context.Background(), nil); !errors.Is(err, errNeedsController) {
		t.Fatalf("Toggle() error = %v; want errNeedsController", err)
	}
	if _, err := d.Status(context.Background()); !errors.Is(err, errNeedsController) {
		t.Fatalf("Status() error = %v; want errNeedsController", err)
	}
}
