package wireformat

import (
	"encoding/json"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
)

func TestParseEmptyInputReturnsParseError(t *testing.T) {
	_, err := Parse("")
	if !ragerrors.Is(err, ragerrors.KindParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseStripsJSONPPrelude(t *testing.T) {
	longAnswer := "This is a fairly long answer that exceeds one hundred characters so it is picked up by the text-extraction heuristic used by the parser implementation here."
	body := ")]}'\n" + mustLine(t, [][]any{{longAnswer}})

	result, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Text != longAnswer {
		t.Fatalf("expected extracted text %q, got %q", longAnswer, result.Text)
	}
}

func TestParsePrefersLineIndexTwo(t *testing.T) {
	answer := "A short reply with a space in it that still counts"
	body := ")]}'\n" +
		`[["line0"]]` + "\n" +
		`[["line1"]]` + "\n" +
		mustLine(t, [][]any{{answer}})

	result, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Text != answer {
		t.Fatalf("expected line-2 answer %q, got %q", answer, result.Text)
	}
}

func TestParseFallsBackWhenPreferredIndicesUnparseable(t *testing.T) {
	answer := "A short reply with a space in it that still counts"
	body := ")]}'\n" +
		mustLine(t, [][]any{{answer}}) + "\n" +
		"[not valid json\n" +
		"[also not valid"

	result, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Text != answer {
		t.Fatalf("expected fallback to first parseable line, got %q", result.Text)
	}
}

func TestParseNoParseableLineReturnsParseError(t *testing.T) {
	_, err := Parse(")]}'\nnot json\nstill not json")
	if !ragerrors.Is(err, ragerrors.KindParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseIgnoresShortMetadataStrings(t *testing.T) {
	body := ")]}'\n" + mustLine(t, [][]any{{"id123", "tag"}})
	result, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("expected empty text for metadata-only payload, got %q", result.Text)
	}
}

func TestParseRespectsMaxDepth(t *testing.T) {
	var nested any = "deeply nested but this string itself is long enough to pass the heuristic on its own merits here"
	for i := 0; i < 15; i++ {
		nested = []any{nested}
	}
	body := ")]}'\n" + mustLine(t, nested)

	result, _ := Parse(body)
	if result.Text != "" {
		t.Fatal("expected depth limit to prevent extraction beyond maxDepth")
	}
}

func mustLine(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
