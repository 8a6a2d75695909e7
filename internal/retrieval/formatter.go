package retrieval

import "strings"

const (
	blockOpen  = "<<<RETRIEVED_CONTEXT>>>"
	blockClose = "<<<END_RETRIEVED_CONTEXT>>>"
	divider    = "---"

	maxDisplaySourceLen = 50
	truncatedSuffixLen  = 47
	truncationPrefix    = "…"
)

// FormatContextForPrompt implements C6: it renders chunks into a
// bounded, clearly-delimited block for prepending to the upstream LLM
// prompt. Empty input produces an empty string — no delimiter block is
// emitted when there is nothing to show.
func FormatContextForPrompt(chunks []RankedContext) string {
	if len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(blockOpen)
	sb.WriteString("\n")

	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString(divider)
			sb.WriteString("\n")
		}
		sb.WriteString("[Source: ")
		sb.WriteString(truncateSource(chunk.Source))
		sb.WriteString("]\n")
		sb.WriteString(chunk.Content)
		sb.WriteString("\n")
	}

	sb.WriteString(blockClose)
	return sb.String()
}

// truncateSource prefixes "…" and keeps the last 47 characters when
// source exceeds 50 characters, so a long path still reads as relevant
// near the filename.
func truncateSource(source string) string {
	if len(source) <= maxDisplaySourceLen {
		return source
	}
	return truncationPrefix + source[len(source)-truncatedSuffixLen:]
}
