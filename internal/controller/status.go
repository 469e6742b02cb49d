package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/strategy"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

const sinkTimeout = 5 * time.Second

// Status is the last user-facing message. It is shown until ExpiresAt.
type Status struct {
	Message   string    `json:"message"`
	Category  Category  `json:"category"`
	At        time.Time `json:"at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type BatchView struct {
	ID         string                  `json:"id"`
	Action     strategy.Kind           `json:"action"`
	Keyword    string                  `json:"keyword"`
	Tabs       tabs.MatchSet           `json:"tabs"`
	StartedAt  time.Time               `json:"started_at"`
	Dispatched int                     `json:"dispatched"`
	Completed  int                     `json:"completed"`
	Succeeded  int                     `json:"succeeded"`
	Done       bool                    `json:"done"`
	Outcomes   []invoker.ActionOutcome `json:"outcomes"`
}

type Snapshot struct {
	State  State      `json:"state"`
	Batch  *BatchView `json:"batch,omitempty"`
	Status *Status    `json:"status,omitempty"`
}

func (s *Service) setStatusLocked(msg string, cat Category) {
	now := s.opts.Now()
	s.status = Status{Message: msg, Category: cat, At: now, ExpiresAt: now.Add(s.opts.StatusTTL)}
}

// publish fans the current status out to sinks without holding mu.
func (s *Service) publish() {
	if len(s.opts.Sinks) == 0 {
		return
	}
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	for _, sink := range s.opts.Sinks {
		go func(sink StatusSink) {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := sink.Publish(ctx, st.Message, string(st.Category)); err != nil {
				slog.Debug("status sink publish failed", "error", err)
			}
		}(sink)
	}
}
