package model

import "time"

// MemoryCategory classifies a consolidated user fact.
type MemoryCategory string

const (
	CategoryFactual      MemoryCategory = "factual"
	CategoryPreference   MemoryCategory = "preference"
	CategoryRelationship MemoryCategory = "relationship"
	CategoryTemporal     MemoryCategory = "temporal"
)

// MemorySourceType records which surface produced a Memory.
type MemorySourceType string

const (
	SourceSpotlight MemorySourceType = "spotlight"
	SourceMainChat  MemorySourceType = "main_chat"
)

// TemporalExpiry is the default lifetime for category=temporal memories
// when the caller does not supply an explicit ExpiresAt. spec.md documents
// 7 days but leaves the default undefined (Open Question, see DESIGN.md);
// this module fixes it at 7 days.
const TemporalExpiry = 7 * 24 * time.Hour

// Memory is a consolidated user fact persisted by the MemoryRepo
// collaborator (spec.md §1 — relational storage is out of core scope; this
// type is the shape the core hands to that collaborator).
//
// Invariants:
//   - A Memory with non-nil SupersededBy is not returned by active-list
//     queries.
//   - SupersededBy edges form a DAG (no cycles).
//   - ExpiresAt set implies Category == CategoryTemporal.
type Memory struct {
	ID             string           `json:"id"`
	Content        string           `json:"content"`
	Category       MemoryCategory   `json:"category"`
	Importance     float64          `json:"importance"`
	SourceType     MemorySourceType `json:"sourceType"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
	LastAccessed   time.Time        `json:"lastAccessed"`
	AccessCount    int              `json:"accessCount"`
	SupersededBy   *string          `json:"supersededBy,omitempty"`
}

// Active reports whether m should be returned by active-list queries.
func (m Memory) Active() bool {
	return m.SupersededBy == nil
}
