package strategy

import (
	"context"
	"log/slog"
)

// DOMStrategy evaluates a script body in the tab. The body reports
// {acted, detail} in its envelope data.
type DOMStrategy struct {
	name string
	body string
}

func NewDOM(name, body string) DOMStrategy {
	return DOMStrategy{name: name, body: body}
}

func (s DOMStrategy) Name() string { return s.name }

func (s DOMStrategy) Try(ctx context.Context, doc Document) (bool, error) {
	var out struct {
		Acted  bool   `json:"acted"`
		Detail string `json:"detail"`
	}
	if err := doc.Evaluate(ctx, s.body, &out); err != nil {
		return false, err
	}
	if out.Detail != "" {
		slog.Debug("dom strategy probe", "strategy", s.name, "acted", out.Acted, "detail", out.Detail)
	}
	return out.Acted, nil
}
