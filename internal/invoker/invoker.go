// Package invoker delivers one action into one tab and reports what happened.
package invoker

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/strategy"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

// ErrorKind classifies an unsuccessful outcome.
type ErrorKind string

const (
	// DeliveryFailure means the action never reached the tab.
	DeliveryFailure ErrorKind = "delivery_failure"
	// StrategyExhausted means every strategy in the chain was tried.
	StrategyExhausted ErrorKind = "strategy_exhausted"
)

// Host opens an execution context inside a tab.
type Host interface {
	Attach(ctx context.Context, tabID string) (strategy.Document, error)
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, tabID string) (strategy.Document, error)

func (f HostFunc) Attach(ctx context.Context, tabID string) (strategy.Document, error) {
	return f(ctx, tabID)
}

// CDPHost attaches through a cdpcontrol client.
func CDPHost(c *cdpcontrol.Client) Host {
	return HostFunc(func(ctx context.Context, tabID string) (strategy.Document, error) {
		doc, err := c.Attach(ctx, tabID)
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// ActionOutcome is the per-tab result of one invocation.
type ActionOutcome struct {
	BatchID     string             `json:"batch_id"`
	TabID       string             `json:"tab_id"`
	Title       string             `json:"title"`
	Action      strategy.Kind      `json:"action"`
	Strategy    string             `json:"strategy,omitempty"`
	Success     bool               `json:"success"`
	ErrorKind   ErrorKind          `json:"error_kind,omitempty"`
	ErrorDetail string             `json:"error_detail,omitempty"`
	Attempts    []strategy.Attempt `json:"attempts,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Invoker runs strategy chains inside tabs reached through a Host.
type Invoker struct {
	host   Host
	chains func(strategy.Kind) strategy.Chain
	now    func() time.Time
}

func New(host Host) *Invoker {
	return &Invoker{host: host, chains: strategy.For, now: time.Now}
}

// WithChains replaces the chain lookup. Tests use it to run fake strategies.
func (i *Invoker) WithChains(fn func(strategy.Kind) strategy.Chain) *Invoker {
	i.chains = fn
	return i
}

// Invoke never returns an error; every failure is reported in the outcome.
func (i *Invoker) Invoke(ctx context.Context, batchID string, tab tabs.TabHandle, kind strategy.Kind) (out ActionOutcome) {
	out = ActionOutcome{
		BatchID:   batchID,
		TabID:     tab.ID,
		Title:     tab.Title,
		Action:    kind,
		StartedAt: i.now(),
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("invoke panicked", "batch_id", batchID, "tab_id", tab.ID, "panic", r)
			out.Success = false
			out.ErrorKind = DeliveryFailure
			out.ErrorDetail = "internal error"
			out.FinishedAt = i.now()
		}
	}()

	doc, err := i.host.Attach(ctx, tab.ID)
	if err != nil {
		out.ErrorKind = DeliveryFailure
		out.ErrorDetail = err.Error()
		out.FinishedAt = i.now()
		slog.Warn("invoke delivery failed", "batch_id", batchID, "tab_id", tab.ID, "action", kind, "error", err)
		return out
	}

	res := i.chains(kind).Run(ctx, doc)
	out.Attempts = res.Attempts
	out.FinishedAt = i.now()
	if res.Success {
		out.Success = true
		out.Strategy = res.Strategy
		slog.Info("invoke succeeded", "batch_id", batchID, "tab_id", tab.ID, "action", kind, "strategy", res.Strategy)
		return out
	}
	out.ErrorKind = StrategyExhausted
	out.ErrorDetail = res.Summary()
	slog.Warn("invoke exhausted strategies", "batch_id", batchID, "tab_id", tab.ID, "action", kind, "detail", out.ErrorDetail)
	return out
}
