package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

type stubService struct {
	startErr    error
	gotKeyword  *string
	keywordSeen bool
	saved       string
	tabs        tabs.MatchSet
}

func (s *stubService) Tabs(ctx context.Context, keyword string) (tabs.MatchSet, error) {
	return s.tabs, nil
}
func (s *stubService) Snapshot() controller.Snapshot {
	return controller.Snapshot{State: controller.Idle}
}
func (s *stubService) Start(ctx context.Context, keyword *string) (controller.Snapshot, error) {
	s.gotKeyword, s.keywordSeen = keyword, true
	if s.startErr != nil {
		return controller.Snapshot{}, s.startErr
	}
	return controller.Snapshot{State: controller.Running}, nil
}
func (s *stubService) Stop(ctx context.Context, keyword *string) (controller.Snapshot, error) {
	return controller.Snapshot{State: controller.Stopping}, nil
}
func (s *stubService) Toggle(ctx context.Context, keyword *string) (controller.Snapshot, error) {
	return controller.Snapshot{State: controller.Running}, nil
}
func (s *stubService) Batch(batchID string) (controller.BatchView, error) {
	return controller.BatchView{}, cdpcontrol.NewError(cdpcontrol.CodeBatchNotFound, "batch not found: "+batchID, nil)
}
func (s *stubService) Keyword(ctx context.Context) (string, error) { return s.saved, nil }
func (s *stubService) SetKeyword(ctx context.Context, keyword string) error {
	s.saved = keyword
	return nil
}
func (s *stubService) DeepHealthCheck(ctx context.Context) (controller.DeepHealth, error) {
	return controller.DeepHealth{Status: "ok", State: controller.Idle}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	w := do(t, NewServer(&stubService{}), http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestStartWithKeyword(t *testing.T) {
	svc := &stubService{}
	w := do(t, NewServer(svc), http.MethodPost, "/api/v1/session/start", `{"keyword":"katago"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if svc.gotKeyword == nil || *svc.gotKeyword != "katago" {
		t.Fatalf("keyword = %v; want katago", svc.gotKeyword)
	}
	var snap controller.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != controller.Running {
		t.Fatalf("state = %q; want %q", snap.State, controller.Running)
	}
}

func TestStartWithoutBodyUsesSavedKeyword(t *testing.T) {
	svc := &stubService{}
	w := do(t, NewServer(svc), http.MethodPost, "/api/v1/session/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if !svc.keywordSeen || svc.gotKeyword != nil {
		t.Fatalf("keyword = %v; want nil", svc.gotKeyword)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{cdpcontrol.CodeBusy, http.StatusConflict},
		{cdpcontrol.CodeNoMatch, http.StatusNotFound},
		{cdpcontrol.CodeValidation, http.StatusBadRequest},
		{cdpcontrol.CodeCDPUnavailable, http.StatusBadGateway},
		{cdpcontrol.CodeEvalTimeout, http.StatusGatewayTimeout},
		{cdpcontrol.CodeEvalFailure, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		svc := &stubService{startErr: cdpcontrol.NewError(tc.code, "x", nil)}
		w := do(t, NewServer(svc), http.MethodPost, "/api/v1/session/start", `{}`)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.code, w.Code, tc.want)
		}
	}
}

func TestBatchNotFound(t *testing.T) {
	w := do(t, NewServer(&stubService{}), http.MethodGet, "/api/v1/session/batches/abc/outcomes", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestKeywordRoundTrip(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc)
	if w := do(t, h, http.MethodPut, "/api/v1/keyword", `{"keyword":"train"}`); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d; body=%s", w.Code, w.Body.String())
	}
	w := do(t, h, http.MethodGet, "/api/v1/keyword", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"keyword":"train"`) {
		t.Fatalf("GET = %d %s; want keyword train", w.Code, w.Body.String())
	}
}

func TestListTabsEmptyIsArray(t *testing.T) {
	w := do(t, NewServer(&stubService{}), http.MethodGet, "/api/v1/tabs?keyword=x", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"tabs":[]`) {
		t.Fatalf("body = %s; want empty tabs array", w.Body.String())
	}
}

func TestQuietPath(t *testing.T) {
	cases := map[string]bool{
		"/health":                             true,
		"/api/v1/session":                     true,
		"/api/v1/session/batches/b1/outcomes": true,
		"/api/v1/session/start":               false,
		"/api/v1/health/deep":                 false,
	}
	for p, want := range cases {
		if got := quietPath(p); got != want {
			t.Fatalf("quietPath(%q) = %v; want %v", p, got, want)
		}
	}
}
