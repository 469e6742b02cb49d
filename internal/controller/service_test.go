package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/browser"
	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/strategy"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

type fakeLocator struct {
	mu    sync.Mutex
	tabs  tabs.MatchSet
	err   error
	calls int
}

func (l *fakeLocator) Locate(ctx context.Context, keyword string) (tabs.MatchSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.tabs, l.err
}

func (l *fakeLocator) set(ts tabs.MatchSet) {
	l.mu.Lock()
	l.tabs = ts
	l.mu.Unlock()
}

// fakeInvoker fails tabs listed in fail and blocks tabs listed in block until
// release is closed.
type fakeInvoker struct {
	fail    map[string]bool
	block   map[string]bool
	release chan struct{}
}

func (f *fakeInvoker) Invoke(ctx context.Context, batchID string, tab tabs.TabHandle, kind strategy.Kind) invoker.ActionOutcome {
	if f.block[tab.ID] {
		<-f.release
	}
	out := invoker.ActionOutcome{BatchID: batchID, TabID: tab.ID, Action: kind}
	if f.fail[tab.ID] {
		out.ErrorKind = invoker.DeliveryFailure
		out.ErrorDetail = "TAB_NOT_FOUND: tab not found"
		return out
	}
	out.Success = true
	out.Strategy = "click-run-button"
	return out
}

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, f)
	c.delays = append(c.delays, d)
	return &fakeTimer{}
}

func (c *fakeClock) fire() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type recordingJournal struct {
	mu   sync.Mutex
	outs []invoker.ActionOutcome
}

func (j *recordingJournal) Append(out invoker.ActionOutcome) {
	j.mu.Lock()
	j.outs = append(j.outs, out)
	j.mu.Unlock()
}

type memKeywords struct{ kw string }

func (m *memKeywords) Keyword(ctx context.Context) (string, error)     { return m.kw, nil }
func (m *memKeywords) SetKeyword(ctx context.Context, kw string) error { m.kw = kw; return nil }

func nb(id string) tabs.TabHandle {
	return tabs.TabHandle{ID: id, Title: "train " + id, URL: "https://colab.research.google.com/drive/" + id}
}

func ptr(s string) *string { return &s }

func codeOf(err error) string {
	var ce *cdpcontrol.CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newTestService(loc Locator, inv Invoker) (*Service, *fakeClock) {
	clock := &fakeClock{}
	s := NewService(loc, inv, Options{RevertDelay: DefaultRevertDelay, AfterFunc: clock.AfterFunc})
	return s, clock
}

func TestStart_EmptyPoolStaysIdle(t *testing.T) {
	s, _ := newTestService(&fakeLocator{}, &fakeInvoker{})

	snap, err := s.Start(context.Background(), ptr("katago"))
	if codeOf(err) != cdpcontrol.CodeNoMatch {
		t.Fatalf("Start() error = %v; want %s", err, cdpcontrol.CodeNoMatch)
	}
	if snap.State != Idle {
		t.Fatalf("Start() state = %q; want %q", snap.State, Idle)
	}
	if snap.Status == nil || snap.Status.Category != CategoryError {
		t.Fatalf("Start() status = %+v; want error category", snap.Status)
	}
	if snap.Batch != nil {
		t.Fatalf("Start() batch = %+v; want nil", snap.Batch)
	}
}

func TestStart_OneTabFailureDoesNotBlockOthers(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a"), nb("b"), nb("c")}}
	journal := &recordingJournal{}
	s := NewService(loc, &fakeInvoker{fail: map[string]bool{"b": true}}, Options{Journal: journal})

	snap, err := s.Start(context.Background(), ptr("train"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if snap.State != Running || snap.Batch == nil {
		t.Fatalf("Start() = %+v; want running with batch", snap)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	view, err := s.Wait(ctx, snap.Batch.ID)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if view.Completed != 3 || view.Succeeded != 2 || !view.Done {
		t.Fatalf("Wait() = %+v; want 3 completed, 2 succeeded", view)
	}
	for _, o := range view.Outcomes {
		if o.TabID == "b" && (o.Success || o.ErrorKind != invoker.DeliveryFailure) {
			t.Fatalf("outcome for b = %+v; want delivery_failure", o)
		}
	}
	journal.mu.Lock()
	n := len(journal.outs)
	journal.mu.Unlock()
	if n != 3 {
		t.Fatalf("journal outcomes = %d; want 3", n)
	}

	got := s.Snapshot()
	if got.State != Running {
		t.Fatalf("state after outcomes = %q; want %q", got.State, Running)
	}
	if got.Status == nil || got.Status.Category != CategoryError {
		t.Fatalf("status after partial failure = %+v; want error category", got.Status)
	}
}

func TestStop_RevertsAfterDelayWithOutstandingInvocations(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a"), nb("b")}}
	release := make(chan struct{})
	defer close(release)
	inv := &fakeInvoker{block: map[string]bool{"a": true, "b": true}, release: release}
	s, clock := newTestService(loc, inv)

	if _, err := s.Start(context.Background(), ptr("train")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	snap, err := s.Stop(context.Background(), ptr("train"))
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if snap.State != Stopping {
		t.Fatalf("Stop() state = %q; want %q", snap.State, Stopping)
	}
	if len(clock.delays) != 1 || clock.delays[0] != DefaultRevertDelay {
		t.Fatalf("revert delays = %v; want [%v]", clock.delays, DefaultRevertDelay)
	}

	clock.fire()
	got := s.Snapshot()
	if got.State != Idle {
		t.Fatalf("state after delay = %q; want %q", got.State, Idle)
	}
	if got.Batch.Done || got.Batch.Completed != 0 {
		t.Fatalf("batch = %+v; want outstanding invocations", got.Batch)
	}
}

func TestStop_NoMatchForcesIdle(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a")}}
	s, clock := newTestService(loc, &fakeInvoker{})

	if _, err := s.Start(context.Background(), ptr("train")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	loc.set(nil)
	snap, err := s.Stop(context.Background(), ptr("train"))
	if codeOf(err) != cdpcontrol.CodeNoMatch {
		t.Fatalf("Stop() error = %v; want %s", err, cdpcontrol.CodeNoMatch)
	}
	if snap.State != Idle {
		t.Fatalf("Stop() state = %q; want %q", snap.State, Idle)
	}
	if len(clock.fns) != 0 {
		t.Fatalf("revert scheduled %d times; want 0", len(clock.fns))
	}
}

func TestBusyGuard(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a")}}
	s, _ := newTestService(loc, &fakeInvoker{})

	if _, err := s.Stop(context.Background(), ptr("x")); codeOf(err) != cdpcontrol.CodeBusy {
		t.Fatalf("Stop() while idle error = %v; want %s", err, cdpcontrol.CodeBusy)
	}
	if _, err := s.Start(context.Background(), ptr("x")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := s.Start(context.Background(), ptr("x")); codeOf(err) != cdpcontrol.CodeBusy {
		t.Fatalf("Start() while running error = %v; want %s", err, cdpcontrol.CodeBusy)
	}
	if _, err := s.Stop(context.Background(), ptr("x")); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := s.Start(context.Background(), ptr("x")); codeOf(err) != cdpcontrol.CodeBusy {
		t.Fatalf("Start() while stopping error = %v; want %s", err, cdpcontrol.CodeBusy)
	}
	if _, err := s.Stop(context.Background(), ptr("x")); codeOf(err) != cdpcontrol.CodeBusy {
		t.Fatalf("Stop() while stopping error = %v; want %s", err, cdpcontrol.CodeBusy)
	}
	if loc.calls != 2 {
		t.Fatalf("locator calls = %d; want 2", loc.calls)
	}
}

func TestToggle(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a")}}
	s, clock := newTestService(loc, &fakeInvoker{})

	snap, err := s.Toggle(context.Background(), ptr("x"))
	if err != nil || snap.State != Running {
		t.Fatalf("Toggle() = %q, %v; want running", snap.State, err)
	}
	snap, err = s.Toggle(context.Background(), ptr("x"))
	if err != nil || snap.State != Stopping {
		t.Fatalf("Toggle() = %q, %v; want stopping", snap.State, err)
	}
	if snap.Batch.Action != strategy.Interrupt {
		t.Fatalf("Toggle() batch action = %q; want %q", snap.Batch.Action, strategy.Interrupt)
	}
	clock.fire()
	if got := s.Snapshot().State; got != Idle {
		t.Fatalf("state = %q; want %q", got, Idle)
	}
}

func TestStart_UsesSavedKeywordWhenOmitted(t *testing.T) {
	var seen []string
	loc := locatorFunc(func(ctx context.Context, kw string) (tabs.MatchSet, error) {
		seen = append(seen, kw)
		return nil, nil
	})
	store := &memKeywords{kw: "saved"}
	s := NewService(loc, &fakeInvoker{}, Options{Keywords: store})

	_, _ = s.Start(context.Background(), nil)
	_, _ = s.Start(context.Background(), ptr("explicit"))
	if len(seen) != 2 || seen[0] != "saved" || seen[1] != "explicit" {
		t.Fatalf("keywords = %v; want [saved explicit]", seen)
	}
	if store.kw != "explicit" {
		t.Fatalf("saved keyword = %q; want explicit", store.kw)
	}
}

func TestStart_LocateErrorKeepsState(t *testing.T) {
	loc := &fakeLocator{err: cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to list targets", nil)}
	s, _ := newTestService(loc, &fakeInvoker{})

	snap, err := s.Start(context.Background(), ptr("x"))
	if codeOf(err) != cdpcontrol.CodeCDPUnavailable || snap.State != Idle {
		t.Fatalf("Start() = %q, %v; want idle, %s", snap.State, err, cdpcontrol.CodeCDPUnavailable)
	}
}

func TestStatusExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewService(&fakeLocator{}, &fakeInvoker{}, Options{Now: func() time.Time { return now }})

	_, _ = s.Start(context.Background(), ptr("x"))
	if s.Snapshot().Status == nil {
		t.Fatalf("Snapshot().Status = nil; want fresh status")
	}
	now = now.Add(DefaultStatusTTL)
	if st := s.Snapshot().Status; st != nil {
		t.Fatalf("Snapshot().Status = %+v; want expired", st)
	}
}

func TestBatchNotFound(t *testing.T) {
	s, _ := newTestService(&fakeLocator{}, &fakeInvoker{})
	if _, err := s.Batch("nope"); codeOf(err) != cdpcontrol.CodeBatchNotFound {
		t.Fatalf("Batch() error = %v; want %s", err, cdpcontrol.CodeBatchNotFound)
	}
	if _, err := s.Wait(context.Background(), "nope"); codeOf(err) != cdpcontrol.CodeBatchNotFound {
		t.Fatalf("Wait() error = %v; want %s", err, cdpcontrol.CodeBatchNotFound)
	}
}

type locatorFunc func(ctx context.Context, kw string) (tabs.MatchSet, error)

func (f locatorFunc) Locate(ctx context.Context, kw string) (tabs.MatchSet, error) { return f(ctx, kw) }

func TestDeepHealthCheck(t *testing.T) {
	s := NewService(&fakeLocator{}, &fakeInvoker{}, Options{
		Probe: func(ctx context.Context) (browser.ProbeResult, error) {
			return browser.ProbeResult{Product: "Chrome/140", Pages: 3}, nil
		},
	})
	got, err := s.DeepHealthCheck(context.Background())
	if err != nil {
		t.Fatalf("DeepHealthCheck() error = %v", err)
	}
	if got.Status != "ok" || got.State != Idle || got.Browser == nil || got.Browser.Pages != 3 {
		t.Fatalf("DeepHealthCheck() = %+v", got)
	}

	s = NewService(&fakeLocator{}, &fakeInvoker{}, Options{
		Probe: func(ctx context.Context) (browser.ProbeResult, error) {
			return browser.ProbeResult{}, errors.New("connection refused")
		},
	})
	if _, err := s.DeepHealthCheck(context.Background()); codeOf(err) != cdpcontrol.CodeCDPUnavailable {
		t.Fatalf("DeepHealthCheck() error = %v; want %s", err, cdpcontrol.CodeCDPUnavailable)
	}
}

func TestOneshotLeavesStateAlone(t *testing.T) {
	loc := &fakeLocator{tabs: tabs.MatchSet{nb("a"), nb("b")}}
	s, _ := newTestService(loc, &fakeInvoker{fail: map[string]bool{"a": true}})

	view, err := s.Oneshot(context.Background(), strategy.Interrupt, ptr("train"))
	if err != nil {
		t.Fatalf("Oneshot() error = %v", err)
	}
	if !view.Done || view.Completed != 2 || view.Succeeded != 1 || view.Action != strategy.Interrupt {
		t.Fatalf("Oneshot() = %+v", view)
	}
	snap := s.Snapshot()
	if snap.State != Idle || snap.Batch != nil {
		t.Fatalf("Snapshot() = %+v; want idle without current batch", snap)
	}
	if _, err := s.Batch(view.ID); err != nil {
		t.Fatalf("Batch(%s) error = %v", view.ID, err)
	}

	loc.set(nil)
	if _, err := s.Oneshot(context.Background(), strategy.Start, ptr("train")); codeOf(err) != cdpcontrol.CodeNoMatch {
		t.Fatalf("Oneshot() error = %v; want %s", err, cdpcontrol.CodeNoMatch)
	}
}
