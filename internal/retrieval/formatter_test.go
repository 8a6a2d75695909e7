package retrieval

import (
	"strings"
	"testing"
)

func TestFormatContextForPromptEmptyInput(t *testing.T) {
	if got := FormatContextForPrompt(nil); got != "" {
		t.Fatalf("expected empty string for empty input, got %q", got)
	}
}

func TestFormatContextForPromptWrapsDelimiters(t *testing.T) {
	out := FormatContextForPrompt([]RankedContext{{Content: "hello", Source: "notes.md", Score: 0.9}})
	if !strings.HasPrefix(out, blockOpen) || !strings.HasSuffix(out, blockClose) {
		t.Fatalf("expected delimiter wrapping, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatal("expected content present")
	}
}

func TestFormatContextForPromptDividesMultipleChunks(t *testing.T) {
	out := FormatContextForPrompt([]RankedContext{
		{Content: "first", Source: "a.md", Score: 0.9},
		{Content: "second", Source: "b.md", Score: 0.8},
	})
	if !strings.Contains(out, divider) {
		t.Fatal("expected divider between chunks")
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Fatal("expected both chunks present")
	}
}

func TestTruncateSourceLongPath(t *testing.T) {
	long := strings.Repeat("a", 40) + "/path/to/some/very/long/filename.md"
	got := truncateSource(long)
	if !strings.HasPrefix(got, truncationPrefix) {
		t.Fatalf("expected truncation prefix, got %q", got)
	}
	if len(got) != len(truncationPrefix)+truncatedSuffixLen {
		t.Fatalf("expected truncated length %d, got %d (%q)", len(truncationPrefix)+truncatedSuffixLen, len(got), got)
	}
	if !strings.HasSuffix(long, got[len(truncationPrefix):]) {
		t.Fatal("expected suffix to match tail of original source")
	}
}

func TestTruncateSourceShortPathUnchanged(t *testing.T) {
	short := "notes.md"
	if got := truncateSource(short); got != short {
		t.Fatalf("expected unchanged short source, got %q", got)
	}
}

func TestTruncateSourceExactlyFiftyCharsUnchanged(t *testing.T) {
	exact := strings.Repeat("x", maxDisplaySourceLen)
	if got := truncateSource(exact); got != exact {
		t.Fatalf("expected unchanged at boundary, got %q", got)
	}
}
