package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/strategy"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
	"github.com/google/uuid"
)

// State is the process-wide session state.
type State string

const (
	Idle     State = "idle"
	Running  State = "running"
	Stopping State = "stopping"
)

const (
	DefaultRevertDelay = 1000 * time.Millisecond
	DefaultStatusTTL   = 3 * time.Second

	maxBatches = 16
)

type Locator interface {
	Locate(ctx context.Context, keyword string) (tabs.MatchSet, error)
}

type Invoker interface {
	Invoke(ctx context.Context, batchID string, tab tabs.TabHandle, kind strategy.Kind) invoker.ActionOutcome
}

// KeywordStore persists the last keyword used.
type KeywordStore interface {
	Keyword(ctx context.Context) (string, error)
	SetKeyword(ctx context.Context, keyword string) error
}

// Journal receives every outcome as it arrives. Append must not block.
type Journal interface {
	Append(out invoker.ActionOutcome)
}

// StatusSink is told about every status change.
type StatusSink interface {
	Publish(ctx context.Context, message, category string) error
}

// Timer is the handle returned by Options.AfterFunc.
type Timer interface {
	Stop() bool
}

type Options struct {
	RevertDelay time.Duration
	StatusTTL   time.Duration
	Keywords    KeywordStore
	Journal     Journal
	Sinks       []StatusSink
	Probe       Prober
	AfterFunc   func(d time.Duration, f func()) Timer
	Now         func() time.Time
}

type batch struct {
	id        string
	action    strategy.Kind
	keyword   string
	tabs      tabs.MatchSet
	startedAt time.Time
	outcomes  []invoker.ActionOutcome
	pending   int
	done      chan struct{}
}

// Service owns the single session state and the outcome log of recent
// batches. All mutation happens under mu.
type Service struct {
	locator Locator
	invoker Invoker
	opts    Options

	mu       sync.Mutex
	state    State
	locating bool
	current  *batch
	batches  map[string]*batch
	order    []string
	status   Status
	revert   Timer
	gen      uint64
	keyword  string
}

func NewService(locator Locator, inv Invoker, opts Options) *Service {
	if opts.RevertDelay < 0 {
		opts.RevertDelay = 0
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = DefaultStatusTTL
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		locator: locator,
		invoker: inv,
		opts:    opts,
		state:   Idle,
		batches: make(map[string]*batch),
	}
}

// Start dispatches the start chain to every tab matching keyword. A nil
// keyword means "use the saved keyword".
func (s *Service) Start(ctx context.Context, keyword *string) (Snapshot, error) {
	kw := s.resolveKeyword(ctx, keyword)

	s.mu.Lock()
	if s.state != Idle || s.locating {
		st := s.state
		s.mu.Unlock()
		return s.Snapshot(), busy("cannot start while %s", st)
	}
	s.locating = true
	s.mu.Unlock()

	matches, err := s.locator.Locate(ctx, kw)

	s.mu.Lock()
	s.locating = false
	if err != nil {
		s.setStatusLocked("Could not list tabs: "+err.Error(), CategoryError)
		s.mu.Unlock()
		s.publish()
		return s.Snapshot(), err
	}
	if len(matches) == 0 {
		s.setStatusLocked("No notebook tabs matched keyword "+quoteKeyword(kw), CategoryError)
		s.mu.Unlock()
		s.publish()
		slog.Info("session start found no tabs", "keyword", kw)
		return s.Snapshot(), cdpcontrol.NewError(cdpcontrol.CodeNoMatch, "no tabs matched keyword "+quoteKeyword(kw), nil)
	}

	s.state = Running
	b := s.newBatchLocked(strategy.Start, kw, matches)
	s.current = b
	s.setStatusLocked(fmt.Sprintf("Running %d notebook(s)...", len(matches)), CategoryInfo)
	s.mu.Unlock()
	s.publish()

	slog.Info("session started", "batch_id", b.id, "keyword", kw, "tabs", tabs.Describe(matches))
	s.dispatch(ctx, b)
	return s.Snapshot(), nil
}

// Stop re-resolves keyword and dispatches the interrupt chain. State returns
// to Idle after the revert delay whether or not the tabs have answered.
func (s *Service) Stop(ctx context.Context, keyword *string) (Snapshot, error) {
	kw := s.resolveKeyword(ctx, keyword)

	s.mu.Lock()
	if s.state != Running || s.locating {
		st := s.state
		s.mu.Unlock()
		return s.Snapshot(), busy("cannot stop while %s", st)
	}
	s.locating = true
	s.mu.Unlock()

	matches, err := s.locator.Locate(ctx, kw)

	s.mu.Lock()
	s.locating = false
	if err != nil {
		s.setStatusLocked("Could not list tabs: "+err.Error(), CategoryError)
		s.mu.Unlock()
		s.publish()
		return s.Snapshot(), err
	}
	if len(matches) == 0 {
		s.state = Idle
		s.setStatusLocked("No notebook tabs matched keyword "+quoteKeyword(kw), CategoryError)
		s.mu.Unlock()
		s.publish()
		slog.Info("session stop found no tabs, reverting to idle", "keyword", kw)
		return s.Snapshot(), cdpcontrol.NewError(cdpcontrol.CodeNoMatch, "no tabs matched keyword "+quoteKeyword(kw), nil)
	}

	s.state = Stopping
	b := s.newBatchLocked(strategy.Interrupt, kw, matches)
	s.current = b
	s.setStatusLocked(fmt.Sprintf("Stopping %d notebook(s)...", len(matches)), CategoryInfo)
	s.gen++
	gen := s.gen
	if s.revert != nil {
		s.revert.Stop()
	}
	s.revert = s.opts.AfterFunc(s.opts.RevertDelay, func() { s.revertToIdle(gen) })
	s.mu.Unlock()
	s.publish()

	slog.Info("session stopping", "batch_id", b.id, "keyword", kw, "tabs", tabs.Describe(matches), "revert_after", s.opts.RevertDelay)
	s.dispatch(ctx, b)
	return s.Snapshot(), nil
}

// Toggle stops a running session and starts an idle one.
func (s *Service) Toggle(ctx context.Context, keyword *string) (Snapshot, error) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == Running {
		return s.Stop(ctx, keyword)
	}
	return s.Start(ctx, keyword)
}

// Oneshot runs one batch of kind outside the session state machine and
// waits for every tab to report. It serves callers that own no long-lived
// session, such as a single CLI invocation.
func (s *Service) Oneshot(ctx context.Context, kind strategy.Kind, keyword *string) (BatchView, error) {
	kw := s.resolveKeyword(ctx, keyword)
	matches, err := s.locator.Locate(ctx, kw)
	if err != nil {
		return BatchView{}, err
	}
	if len(matches) == 0 {
		return BatchView{}, cdpcontrol.NewError(cdpcontrol.CodeNoMatch, "no tabs matched keyword "+quoteKeyword(kw), nil)
	}

	s.mu.Lock()
	b := s.newBatchLocked(kind, kw, matches)
	s.mu.Unlock()

	slog.Info("oneshot batch dispatched", "batch_id", b.id, "action", kind, "keyword", kw, "tabs", tabs.Describe(matches))
	s.dispatch(ctx, b)
	return s.Wait(ctx, b.id)
}

func (s *Service) revertToIdle(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Stopping {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.revert = nil
	pending := 0
	if s.current != nil {
		pending = s.current.pending
	}
	s.setStatusLocked("Ready to execute", CategoryInfo)
	s.mu.Unlock()
	s.publish()
	slog.Info("session reverted to idle", "outstanding", pending)
}

func (s *Service) newBatchLocked(kind strategy.Kind, kw string, matches tabs.MatchSet) *batch {
	b := &batch{
		id:        uuid.NewString(),
		action:    kind,
		keyword:   kw,
		tabs:      matches,
		startedAt: s.opts.Now(),
		outcomes:  make([]invoker.ActionOutcome, 0, len(matches)),
		pending:   len(matches),
		done:      make(chan struct{}),
	}
	s.batches[b.id] = b
	s.order = append(s.order, b.id)
	for len(s.order) > maxBatches {
		delete(s.batches, s.order[0])
		s.order = s.order[1:]
	}
	return b
}

// dispatch fires one invocation per tab. Invocations outlive the request
// context and are never cancelled.
func (s *Service) dispatch(ctx context.Context, b *batch) {
	bg := context.WithoutCancel(ctx)
	for _, tab := range b.tabs {
		go func(tab tabs.TabHandle) {
			out := s.invoker.Invoke(bg, b.id, tab, b.action)
			s.record(b, out)
		}(tab)
	}
}

func (s *Service) record(b *batch, out invoker.ActionOutcome) {
	if s.opts.Journal != nil {
		s.opts.Journal.Append(out)
	}

	s.mu.Lock()
	b.outcomes = append(b.outcomes, out)
	b.pending--
	finished := b.pending == 0
	notify := finished && b == s.current
	ok := countSucceeded(b.outcomes)
	if finished {
		close(b.done)
	}
	if notify {
		cat := CategorySuccess
		if ok < len(b.outcomes) {
			cat = CategoryError
		}
		s.setStatusLocked(fmt.Sprintf("%s finished: %d/%d notebook(s) succeeded", actionLabel(b.action), ok, len(b.outcomes)), cat)
	}
	s.mu.Unlock()

	if notify {
		s.publish()
	}
	if finished {
		slog.Info("batch finished", "batch_id", b.id, "action", b.action, "succeeded", ok, "total", len(b.tabs))
	}
}

// Wait blocks until every invocation of the batch has reported or ctx ends.
func (s *Service) Wait(ctx context.Context, batchID string) (BatchView, error) {
	s.mu.Lock()
	b, ok := s.batches[batchID]
	s.mu.Unlock()
	if !ok {
		return BatchView{}, batchNotFound(batchID)
	}
	select {
	case <-b.done:
	case <-ctx.Done():
		return s.view(b), ctx.Err()
	}
	return s.view(b), nil
}

// Batch returns the outcomes recorded so far for a recent batch.
func (s *Service) Batch(batchID string) (BatchView, error) {
	s.mu.Lock()
	b, ok := s.batches[batchID]
	s.mu.Unlock()
	if !ok {
		return BatchView{}, batchNotFound(batchID)
	}
	return s.view(b), nil
}

// Snapshot reports state, the current batch and the unexpired status.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{State: s.state}
	if s.current != nil {
		v := s.viewLocked(s.current)
		snap.Batch = &v
	}
	if !s.status.At.IsZero() && s.opts.Now().Before(s.status.ExpiresAt) {
		st := s.status
		snap.Status = &st
	}
	return snap
}

// Keyword returns the saved keyword.
func (s *Service) Keyword(ctx context.Context) (string, error) {
	if s.opts.Keywords == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.keyword, nil
	}
	return s.opts.Keywords.Keyword(ctx)
}

func (s *Service) SetKeyword(ctx context.Context, keyword string) error {
	if s.opts.Keywords == nil {
		s.mu.Lock()
		s.keyword = keyword
		s.mu.Unlock()
		return nil
	}
	return s.opts.Keywords.SetKeyword(ctx, keyword)
}

// Close cancels a pending revert.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
}

func (s *Service) resolveKeyword(ctx context.Context, keyword *string) string {
	if keyword == nil {
		kw, err := s.Keyword(ctx)
		if err != nil {
			slog.Warn("keyword load failed", "error", err)
			return ""
		}
		return kw
	}
	if err := s.SetKeyword(ctx, *keyword); err != nil {
		slog.Warn("keyword save failed", "error", err)
	}
	return *keyword
}

func (s *Service) view(b *batch) BatchView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(b)
}

func (s *Service) viewLocked(b *batch) BatchView {
	return BatchView{
		ID:         b.id,
		Action:     b.action,
		Keyword:    b.keyword,
		Tabs:       append(tabs.MatchSet(nil), b.tabs...),
		StartedAt:  b.startedAt,
		Dispatched: len(b.tabs),
		Completed:  len(b.outcomes),
		Succeeded:  countSucceeded(b.outcomes),
		Done:       b.pending == 0,
		Outcomes:   append([]invoker.ActionOutcome(nil), b.outcomes...),
	}
}

func countSucceeded(outs []invoker.ActionOutcome) int {
	n := 0
	for _, o := range outs {
		if o.Success {
			n++
		}
	}
	return n
}

func actionLabel(k strategy.Kind) string {
	if k == strategy.Interrupt {
		return "Stop"
	}
	return "Run"
}

func quoteKeyword(kw string) string {
	if strings.TrimSpace(kw) == "" {
		return "(any)"
	}
	return fmt.Sprintf("%q", kw)
}

func busy(format string, args ...any) error {
	return cdpcontrol.NewError(cdpcontrol.CodeBusy, fmt.Sprintf(format, args...), nil)
}

func batchNotFound(id string) error {
	return cdpcontrol.NewError(cdpcontrol.CodeBatchNotFound, "batch not found: "+id, nil)
}
