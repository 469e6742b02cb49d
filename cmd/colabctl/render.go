package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#D6249F", Dark: "#FF79C6"}
	greenColor  = lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"}
	yellowColor = lipgloss.AdaptiveColor{Light: "#7D5A00", Dark: "#F1FA8C"}
	redColor    = lipgloss.AdaptiveColor{Light: "#B31D28", Dark: "#FF5555"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
	okStyle      = lipgloss.NewStyle().Foreground(greenColor)
	warnStyle    = lipgloss.NewStyle().Foreground(yellowColor)
	errorStyle   = lipgloss.NewStyle().Foreground(redColor).Bold(true)
	keywordStyle = lipgloss.NewStyle().Foreground(accentColor)
)

func printResult(w io.Writer, r result) error {
	if flagJSON {
		switch {
		case r.Snapshot != nil:
			return writeJSON(w, r.Snapshot)
		case r.Batch != nil:
			return writeJSON(w, r.Batch)
		case r.Tabs != nil:
			return writeJSON(w, r.Tabs)
		}
		return nil
	}
	var s string
	switch {
	case r.Snapshot != nil:
		s = renderSnapshot(*r.Snapshot)
	case r.Batch != nil:
		s = renderBatch(*r.Batch)
	case r.Tabs != nil:
		s = renderTabs(*r.Tabs)
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderKeyword(kw string) string {
	if kw == "" {
		return dimStyle.Render("(empty: every notebook tab)")
	}
	return keywordStyle.Render(fmt.Sprintf("%q", kw))
}

func renderState(st controller.State) string {
	switch st {
	case controller.Running:
		return okStyle.Render(string(st))
	case controller.Stopping:
		return warnStyle.Render(string(st))
	default:
		return dimStyle.Render(string(st))
	}
}

func renderStatus(st controller.Status) string {
	switch st.Category {
	case controller.CategorySuccess:
		return okStyle.Render(st.Message)
	case controller.CategoryError:
		return errorStyle.Render(st.Message)
	default:
		return st.Message
	}
}

func renderSnapshot(s controller.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("state"), renderState(s.State))
	if s.Status != nil {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("status"), renderStatus(*s.Status))
	}
	if s.Batch != nil {
		b.WriteString(renderBatch(*s.Batch))
	}
	return b.String()
}

func renderBatch(v controller.BatchView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s keyword=%s\n",
		titleStyle.Render("batch"), v.ID, v.Action, renderKeyword(v.Keyword))
	progress := fmt.Sprintf("%d/%d reported, %d succeeded", v.Completed, v.Dispatched, v.Succeeded)
	if v.Done {
		progress += " " + dimStyle.Render("(done)")
	}
	fmt.Fprintf(&b, "  %s\n", progress)

	reported := make(map[string]invoker.ActionOutcome, len(v.Outcomes))
	for _, o := range v.Outcomes {
		reported[o.TabID] = o
	}
	for _, t := range v.Tabs {
		o, ok := reported[t.ID]
		if !ok {
			fmt.Fprintf(&b, "  %s %s\n", warnStyle.Render("…"), t.Title)
			continue
		}
		b.WriteString("  " + renderOutcome(o) + "\n")
	}
	return b.String()
}

func renderOutcome(o invoker.ActionOutcome) string {
	took := o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond)
	if o.Success {
		return fmt.Sprintf("%s %s %s", okStyle.Render("✓"), o.Title, dimStyle.Render(fmt.Sprintf("via %s in %s", o.Strategy, took)))
	}
	return fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), o.Title, dimStyle.Render(fmt.Sprintf("%s: %s", o.ErrorKind, o.ErrorDetail)))
}

func renderTabs(l tabList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d notebook tab(s) match %s\n", titleStyle.Render("tabs"), len(l.Tabs), renderKeyword(l.Keyword))
	for _, t := range l.Tabs {
		fmt.Fprintf(&b, "  %s  %s\n", dimStyle.Render(shortID(t)), t.Title)
	}
	return b.String()
}

func shortID(t tabs.TabHandle) string {
	if len(t.ID) > 8 {
		return t.ID[:8]
	}
	return t.ID
}
