// Package wireformat implements C9: parsing a JSONP-prelude, newline-
// delimited-array response body into plain extracted text. The wire
// format is effectively a protobuf-to-JSON dump with no stable schema,
// so extraction is a depth-limited heuristic rather than a fixed path.
package wireformat

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/ragerrors"
)

const (
	jsonpPrelude = ")]}'"
	maxDepth     = 10
	minLongLen   = 100
	minShortLen  = 20
)

// Result is the outcome of Parse.
type Result struct {
	Text string
}

// Parse implements C9's response parser (spec.md §4.8.4):
//  1. strip the leading )]}' prelude if present and trim;
//  2. split on newlines, keep non-empty lines starting with '[';
//  3. try line indices 2, 1, 0 in that order, falling back to the first
//     parseable line;
//  4. depth-limited recursive descent for the first string matching the
//     length/space heuristic.
//
// An empty input, or input with no parseable JSON array line at all,
// returns a ParseError. Any other unrecognized shape returns an empty
// Text with a logged warning rather than an error — the parser is
// resilient by contract.
func Parse(body string) (Result, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), jsonpPrelude))
	if trimmed == "" {
		return Result{}, ragerrors.NewParseError("empty input")
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, "[") {
			lines = append(lines, line)
		}
	}

	parsed, ok := parsePreferredLine(lines)
	if !ok {
		return Result{}, ragerrors.NewParseError("no parseable JSON array line")
	}

	text, found := extractText(parsed, 0)
	if !found {
		slog.Warn("wireformat.Parse: no text matched extraction heuristic")
	}
	return Result{Text: text}, nil
}

// parsePreferredLine tries indices 2, 1, 0 before falling back to the
// first line that parses at all, per spec.md's empirical ordering.
func parsePreferredLine(lines []string) (any, bool) {
	for _, idx := range []int{2, 1, 0} {
		if idx >= len(lines) {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(lines[idx]), &v); err == nil {
			return v, true
		}
	}
	for _, line := range lines {
		var v any
		if err := json.Unmarshal([]byte(line), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// extractText descends the parsed tree up to maxDepth, returning the
// first string whose length exceeds minLongLen, or exceeds minShortLen
// and contains a space — shorter strings are assumed to be ids or
// metadata rather than answer text.
func extractText(node any, depth int) (string, bool) {
	if depth > maxDepth {
		return "", false
	}

	switch v := node.(type) {
	case string:
		if len(v) > minLongLen || (len(v) > minShortLen && strings.Contains(v, " ")) {
			return v, true
		}
	case []any:
		for _, item := range v {
			if text, ok := extractText(item, depth+1); ok {
				return text, true
			}
		}
	case map[string]any:
		for _, item := range v {
			if text, ok := extractText(item, depth+1); ok {
				return text, true
			}
		}
	}
	return "", false
}
