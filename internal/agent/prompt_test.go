package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewPromptLoaderSuccess(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "decision_agent.txt"), []byte("CLASSIFY: retrieval-worthy turns."), 0644)

	pl, err := NewPromptLoader(dir)
	if err != nil {
		t.Fatalf("NewPromptLoader: %v", err)
	}
	if pl.SystemPrompt() == "" {
		t.Fatal("expected non-empty system prompt")
	}
}

func TestNewPromptLoaderMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewPromptLoader(dir)
	if err == nil {
		t.Fatal("expected fatal error when decision_agent.txt is missing")
	}
	if !strings.Contains(err.Error(), "FATAL") {
		t.Errorf("expected FATAL in error, got: %v", err)
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decision_agent.txt")
	os.WriteFile(path, []byte("v1"), 0644)

	pl, err := NewPromptLoader(dir)
	if err != nil {
		t.Fatalf("NewPromptLoader: %v", err)
	}
	if pl.SystemPrompt() != "v1" {
		t.Fatalf("expected v1, got %q", pl.SystemPrompt())
	}

	os.WriteFile(path, []byte("v2"), 0644)
	if err := pl.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if pl.SystemPrompt() != "v2" {
		t.Fatalf("expected v2 after reload, got %q", pl.SystemPrompt())
	}
}
