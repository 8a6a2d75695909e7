package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PromptLoader reads the decision-agent's system prompt from disk and
// caches it in memory, mirroring the teacher's layered prompt-loading
// idiom (internal/service/promptloader.go) reduced to the single file
// this agent needs.
type PromptLoader struct {
	promptsDir string

	mu     sync.RWMutex
	system string
}

// NewPromptLoader reads decision_agent.txt from dir. Returns a fatal
// error if the file is missing — the agent cannot operate without its
// classification rules.
func NewPromptLoader(promptsDir string) (*PromptLoader, error) {
	pl := &PromptLoader{promptsDir: promptsDir}
	if err := pl.Reload(); err != nil {
		return nil, err
	}
	return pl, nil
}

// Reload re-reads the prompt file from disk, supporting hot-reload
// without restarting the host process.
func (p *PromptLoader) Reload() error {
	path := filepath.Join(p.promptsDir, "decision_agent.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("FATAL: decision_agent.txt missing — agent cannot classify without it: %w", err)
	}

	p.mu.Lock()
	p.system = string(data)
	p.mu.Unlock()
	return nil
}

// SystemPrompt returns the cached system prompt text.
func (p *PromptLoader) SystemPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.system
}

// DefaultSystemPrompt is the built-in decision prompt, used when no
// PromptLoader is configured (e.g. cmd/coreshell running without a
// prompts directory).
const DefaultSystemPrompt = `You classify whether a user's turn plausibly references their private content — documents, notes, uploaded files, prior imports — versus general knowledge, greetings, arithmetic, translation, or creative writing. Only the former needs retrieval.

When retrieval is needed, choose a query strategy:
- direct: a specific, well-formed query.
- multi_perspective: ambiguous phrasing where 2-3 paraphrases would widen recall.
- decomposed: a compound query covering more than one topic.

Always produce cleaned_query: the turn rewritten to remove self-referential framing ("according to my notes", "that I uploaded", "my files") so a downstream model does not attempt a second retrieval. Return the turn unchanged when no such framing is present.

Respond only with JSON matching the provided schema.`
