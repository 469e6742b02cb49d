package controller

import (
	"context"

	"github.com/dgnsrekt/colab_agent/internal/browser"
	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

// Prober reports whether the browser answers.
type Prober func(ctx context.Context) (browser.ProbeResult, error)

type DeepHealth struct {
	Status  string               `json:"status"`
	State   State                `json:"state"`
	Browser *browser.ProbeResult `json:"browser,omitempty"`
}

// Tabs lists the tabs keyword currently matches without acting on them.
func (s *Service) Tabs(ctx context.Context, keyword string) (tabs.MatchSet, error) {
	return s.locator.Locate(ctx, keyword)
}

// DeepHealthCheck probes the browser when a Prober is configured.
func (s *Service) DeepHealthCheck(ctx context.Context) (DeepHealth, error) {
	s.mu.Lock()
	out := DeepHealth{Status: "ok", State: s.state}
	s.mu.Unlock()
	if s.opts.Probe == nil {
		return out, nil
	}
	res, err := s.opts.Probe(ctx)
	if err != nil {
		return DeepHealth{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "browser probe failed", err)
	}
	out.Browser = &res
	return out, nil
}
