package strategy

import (
	"context"
	"log/slog"
	"time"
)

// KeyStroke is one trusted key press.
type KeyStroke struct {
	Key       string
	Code      string
	KeyCode   int
	Modifiers int
}

// followUpTimeout bounds a delayed follow-up dispatch; the chain has already
// reported by the time it runs, so nothing waits on it.
const followUpTimeout = 2 * time.Second

// afterFunc schedules delayed follow-ups. Swapped in tests.
var afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }

// KeyStrategy dispatches trusted key strokes to the page. Strokes must all
// land for the strategy to count as acted. FollowUp strokes are sent after
// Delay on a best-effort basis and never change the reported outcome.
type KeyStrategy struct {
	name     string
	strokes  []KeyStroke
	followUp []KeyStroke
	delay    time.Duration
}

func NewKeys(name string, strokes ...KeyStroke) KeyStrategy {
	return KeyStrategy{name: name, strokes: strokes}
}

// Then returns a copy that sends followUp strokes delay after the main ones.
func (s KeyStrategy) Then(delay time.Duration, followUp ...KeyStroke) KeyStrategy {
	s.delay = delay
	s.followUp = followUp
	return s
}

func (s KeyStrategy) Name() string { return s.name }

func (s KeyStrategy) Try(ctx context.Context, doc Document) (bool, error) {
	for _, k := range s.strokes {
		if err := doc.DispatchKey(ctx, k.Key, k.Code, k.KeyCode, k.Modifiers); err != nil {
			return false, err
		}
	}
	if len(s.followUp) == 0 {
		return true, nil
	}

	bg := context.WithoutCancel(ctx)
	afterFunc(s.delay, func() {
		fctx, cancel := context.WithTimeout(bg, followUpTimeout)
		defer cancel()
		for _, k := range s.followUp {
			if err := doc.DispatchKey(fctx, k.Key, k.Code, k.KeyCode, k.Modifiers); err != nil {
				slog.Warn("strategy follow-up key failed", "strategy", s.name, "key", k.Key, "error", err)
				return
			}
		}
		slog.Debug("strategy follow-up keys sent", "strategy", s.name, "count", len(s.followUp))
	})
	return true, nil
}
