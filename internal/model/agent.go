package model

// QueryStrategy labels how the decision agent derived a decision's search
// queries. The multi-query executor runs every query the same way
// regardless of strategy.
type QueryStrategy string

const (
	StrategyDirect           QueryStrategy = "direct"
	StrategyMultiPerspective QueryStrategy = "multi_perspective"
	StrategyDecomposed       QueryStrategy = "decomposed"
)

// AgentDecision is the structured verdict produced by the RAG decision agent
// (C4) for a single user turn. It is ephemeral and never persisted.
//
// Invariants (P1 in spec.md §8):
//
//	NeedsRetrieval == false  =>  len(SearchQueries) == 0
//	NeedsRetrieval == true   =>  1 <= len(SearchQueries) <= 3
type AgentDecision struct {
	NeedsRetrieval bool          `json:"needs_retrieval"`
	Reasoning      string        `json:"reasoning"`
	SearchQueries  []string      `json:"search_queries"`
	QueryStrategy  QueryStrategy `json:"query_strategy"`
	CleanedQuery   string        `json:"cleaned_query"`
}

// Valid reports whether d satisfies the AgentDecision invariants.
func (d AgentDecision) Valid() bool {
	if !d.NeedsRetrieval {
		return len(d.SearchQueries) == 0
	}
	return len(d.SearchQueries) >= 1 && len(d.SearchQueries) <= 3
}
