// Package strategy holds the ordered fallback chains that start or interrupt
// execution inside one notebook tab.
//
// A chain is data: an ordered list of named strategies. The executor walks it
// strictly in order and stops at the first strategy that acts. A strategy that
// finds nothing, returns an error or panics is recorded and skipped; running
// out of strategies is a normal result, not an error.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Kind selects which chain runs against a tab.
type Kind string

const (
	Start     Kind = "start"
	Interrupt Kind = "interrupt"
)

// ParseKind accepts "start"/"run" and "interrupt"/"stop".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", "run":
		return Start, nil
	case "interrupt", "stop":
		return Interrupt, nil
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

// Document is one tab's execution context.
type Document interface {
	// Evaluate runs a script body in the page. The body must return a JSON
	// string envelope {ok,data,error_code,error_message}; data decodes into out.
	Evaluate(ctx context.Context, body string, out any) error
	// DispatchKey delivers a trusted keyDown/keyUp pair to the page.
	DispatchKey(ctx context.Context, key, code string, keyCode, modifiers int) error
}

// Strategy is one probe-and-act attempt. Try reports false when it found no
// target element, true once it performed its action.
type Strategy interface {
	Name() string
	Try(ctx context.Context, doc Document) (bool, error)
}

// AttemptStatus is what happened to one strategy during a chain run.
type AttemptStatus string

const (
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSucceeded AttemptStatus = "succeeded"
)

// Attempt records one strategy's participation in a chain run.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Status   AttemptStatus `json:"status"`
	Detail   string        `json:"detail,omitempty"`
}

// Result is the outcome of one chain run. Strategy is empty unless Success.
type Result struct {
	Strategy string    `json:"strategy,omitempty"`
	Success  bool      `json:"success"`
	Attempts []Attempt `json:"attempts"`
}

// Summary joins the non-successful attempts into one diagnostic line.
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		if a.Status == AttemptSucceeded {
			continue
		}
		if a.Detail != "" {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", a.Strategy, a.Status, a.Detail))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Status))
		}
	}
	return strings.Join(parts, "; ")
}

// Chain is an ordered list of strategies for one action kind.
type Chain struct {
	Kind       Kind
	Strategies []Strategy
}

// Names lists the strategy names in execution order.
func (c Chain) Names() []string {
	out := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		out[i] = s.Name()
	}
	return out
}

// Run executes the chain against doc. It never returns an error.
func (c Chain) Run(ctx context.Context, doc Document) Result {
	res := Result{Attempts: make([]Attempt, 0, len(c.Strategies))}
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Status: AttemptFailed, Detail: err.Error()})
			continue
		}

		acted, err := try(ctx, s, doc)
		switch {
		case err != nil:
			slog.Debug("strategy failed", "kind", c.Kind, "strategy", s.Name(), "error", err)
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Status: AttemptFailed, Detail: err.Error()})
		case !acted:
			slog.Debug("strategy found no target", "kind", c.Kind, "strategy", s.Name())
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Status: AttemptSkipped})
		default:
			slog.Debug("strategy acted", "kind", c.Kind, "strategy", s.Name())
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Status: AttemptSucceeded})
			res.Strategy = s.Name()
			res.Success = true
			return res
		}
	}
	return res
}

// try isolates a strategy so a panic in its probe or act step counts as a
// failed attempt instead of tearing down the chain.
func try(ctx context.Context, s Strategy, doc Document) (acted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			acted = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Try(ctx, doc)
}

// Run executes the built-in chain for kind against doc.
func Run(ctx context.Context, kind Kind, doc Document) Result {
	return For(kind).Run(ctx, doc)
}
