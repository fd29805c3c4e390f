package memory

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/config"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/embedding"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/vectorstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const metaPrefix = "meta_"

// vectorIndex is the slice of the vector store this package needs.
// *vectorstore.Client satisfies it; tests substitute an in-memory cosine
// index.
type vectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, threshold float32, topK uint64, userID string) ([]*vectorstore.SearchHit, error)
	Delete(ctx context.Context, collection, id string) error
	DeleteByUser(ctx context.Context, collection, userID string) error
}

// Store embeds, persists, and semantically searches memory entries.
type Store struct {
	embedder   embedding.Provider
	index      vectorIndex
	collection string
	cfg        config.MemoryConfig
	logger     *zap.Logger

	// fixedDim pins the dimensionality of the first stored vector; every
	// later vector must match it.
	fixedDim atomic.Int64
}

// NewStore creates a memory store over the given embedder and vector index.
func NewStore(embedder embedding.Provider, index vectorIndex, cfg config.MemoryConfig, logger *zap.Logger) *Store {
	s := &Store{
		embedder:   embedder,
		index:      index,
		collection: cfg.Collection,
		cfg:        cfg,
		logger:     logger,
	}
	if d := embedder.Dimension(); d > 0 {
		s.fixedDim.Store(int64(d))
	}
	return s
}

// Init ensures the backing collection exists.
func (s *Store) Init(ctx context.Context) error {
	dim := uint64(s.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	if err := s.index.EnsureCollection(ctx, s.collection, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", s.collection, err)
	}
	return nil
}

// Embed embeds a single text. Empty input and backend failures are loud.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one remote call, preserving order.
func (s *Store) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmbeddingFailed)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmbeddingFailed, i)
		}
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// Upsert stores an entry, auto-embedding its content when no embedding is
// provided. An entry with an ID overwrites that row; otherwise a new id is
// generated and returned.
func (s *Store) Upsert(ctx context.Context, entry Entry) (string, error) {
	ids, err := s.UpsertBatch(ctx, []Entry{entry})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpsertBatch stores entries, batch-embedding the ones without a vector in
// a single remote call. All-or-nothing on validation: a dimensionality
// mismatch anywhere aborts the whole batch before any write.
func (s *Store) UpsertBatch(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	// Partition into already-embedded and needs-embedding.
	var pendingTexts []string
	var pendingIdx []int
	for i := range entries {
		if len(entries[i].Embedding) == 0 {
			if strings.TrimSpace(entries[i].Content) == "" {
				return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyContent)
			}
			pendingTexts = append(pendingTexts, entries[i].Content)
			pendingIdx = append(pendingIdx, i)
		}
	}
	if len(pendingTexts) > 0 {
		vectors, err := s.EmbedBatch(ctx, pendingTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range pendingIdx {
			entries[i].Embedding = vectors[j]
		}
	}

	// Validate dimensionality before the first write so a bad batch leaves
	// stored state untouched.
	for i := range entries {
		if err := s.checkDim(entries[i].Embedding); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	ids := make([]string, len(entries))
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = time.Now().UTC()
		}
		if err := s.index.Upsert(ctx, s.collection, entries[i].ID, entries[i].Embedding, encodePayload(entries[i])); err != nil {
			return nil, fmt.Errorf("upsert entry %s: %w", entries[i].ID, err)
		}
		ids[i] = entries[i].ID
	}
	s.logger.Debug("memories upserted",
		zap.Int("count", len(ids)),
		zap.Int("embedded", len(pendingTexts)))
	return ids, nil
}

// Search embeds the query and returns entries at or above threshold,
// ordered by similarity descending, truncated to topK. Zero threshold/topK
// use the configured defaults. userID, when non-empty, restricts results.
func (s *Store) Search(ctx context.Context, query, userID string, threshold float64, topK int) ([]SearchResult, error) {
	if threshold == 0 {
		threshold = s.cfg.SearchThreshold
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	qvec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(ctx, s.collection, qvec, float32(threshold), uint64(topK), userID)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			Entry:      decodePayload(h.ID, h.Payload),
			Similarity: h.Score,
		})
	}
	return results, nil
}

// SearchContentOnly is the retrieval-augmented-generation convenience path:
// a looser threshold, raw content strings only.
func (s *Store) SearchContentOnly(ctx context.Context, query, userID string, topK int) ([]string, error) {
	results, err := s.Search(ctx, query, userID, s.cfg.ContextThreshold, topK)
	if err != nil {
		return nil, err
	}
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Entry.Content
	}
	return contents, nil
}

// Delete removes a single entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.index.Delete(ctx, s.collection, id)
}

// DeleteAllForUser removes every entry for a user. Cascade path for account
// deletion.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := s.index.DeleteByUser(ctx, s.collection, userID); err != nil {
		return err
	}
	s.logger.Info("user memories deleted", zap.String("user", userID))
	return nil
}

func (s *Store) checkDim(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	want := s.fixedDim.Load()
	if want == 0 {
		s.fixedDim.Store(int64(len(vec)))
		return nil
	}
	if int64(len(vec)) != want {
		return fmt.Errorf("%w: got %d, store is %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

func encodePayload(e Entry) map[string]string {
	payload := map[string]string{
		"user_id":    e.UserID,
		"content":    e.Content,
		"summary":    e.Summary,
		"created_at": e.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range e.Metadata {
		payload[metaPrefix+k] = v
	}
	return payload
}

func decodePayload(id string, payload map[string]string) Entry {
	e := Entry{
		ID:      id,
		UserID:  payload["user_id"],
		Content: payload["content"],
		Summary: payload["summary"],
	}
	if ts, err := time.Parse(time.RFC3339, payload["created_at"]); err == nil {
		e.CreatedAt = ts
	}
	for k, v := range payload {
		if strings.HasPrefix(k, metaPrefix) {
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[strings.TrimPrefix(k, metaPrefix)] = v
		}
	}
	return e
}
