package state

import (
	"context"
	"path/filepath"
	"testing"
)

func TestKeywordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if got, err := s.Keyword(ctx); err != nil || got != "" {
		t.Fatalf("Keyword() = %q, %v; want empty, nil", got, err)
	}
	if err := s.SetKeyword(ctx, "katago"); err != nil {
		t.Fatalf("SetKeyword() error = %v", err)
	}
	if err := s.SetKeyword(ctx, "KataGo-run-7"); err != nil {
		t.Fatalf("SetKeyword() error = %v", err)
	}
	if got, _ := s.Keyword(ctx); got != "KataGo-run-7" {
		t.Fatalf("Keyword() = %q; want KataGo-run-7", got)
	}
}

func TestKeywordSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SetKeyword(ctx, "train"); err != nil {
		t.Fatalf("SetKeyword() error = %v", err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("Open() again error = %v", err)
	}
	defer s.Close()
	if got, _ := s.Keyword(ctx); got != "train" {
		t.Fatalf("Keyword() after reopen = %q; want train", got)
	}
}

func TestDefaultDirUsesXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg")
	got, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir() error = %v", err)
	}
	if want := filepath.Join("/tmp/xdg", "colab_agent"); got != want {
		t.Fatalf("DefaultDir() = %q; want %q", got, want)
	}
}
