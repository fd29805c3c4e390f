// Package memory is the durable, searchable long-term memory over embedded
// text. Entries are embedded (caller-provided or automatic), stored in a
// cosine-similarity vector index, and recalled by semantic search.
package memory

import (
	"errors"
	"time"
)

// Sentinel errors. Embedding and search fail loudly: memory retrieval has
// no safe silent default. A dimensionality mismatch is an invariant
// violation that aborts the operation without touching stored state.
var (
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")
	ErrEmptyContent      = errors.New("empty content")
)

// Entry is one long-term memory row.
type Entry struct {
	ID        string            `json:"id,omitempty"`
	UserID    string            `json:"user_id"`
	Content   string            `json:"content"`
	Summary   string            `json:"summary,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// SearchResult is one recalled entry with its cosine similarity to the
// query, in [-1,1] (practically [0.6,1.0] for useful matches).
type SearchResult struct {
	Entry      Entry   `json:"entry"`
	Similarity float32 `json:"similarity"`
}
