package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"videoChat/core"
)

// VectorStore abstracts the storage backend for context chunks. Chunk ids
// are scoped by context so a whole context can be removed by id prefix.
type VectorStore interface {
	// Upsert writes chunks, replacing any with the same id.
	Upsert(ctx context.Context, chunks []core.Chunk) error
	// DeletePrefix removes every chunk whose id starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Exists reports whether any chunk id starts with prefix.
	Exists(ctx context.Context, prefix string) (bool, error)
	// Search returns the topK chunks of contextID closest to vector.
	Search(ctx context.Context, contextID string, vector []float32, topK int) ([]core.Hit, error)
	// List returns up to limit chunks of contextID ordered by id.
	List(ctx context.Context, contextID string, limit int) ([]core.Hit, error)
	// Backend names the implementation.
	Backend() string
	Close() error
}

// ---------------- Memory implementation ----------------

type MemoryVectorStore struct {
	mu     sync.RWMutex
	chunks map[string]core.Chunk // chunk id -> chunk
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{chunks: map[string]core.Chunk{}}
}

func (s *MemoryVectorStore) Backend() string { return "memory" }

func (s *MemoryVectorStore) Close() error { return nil }

func (s *MemoryVectorStore) Upsert(_ context.Context, chunks []core.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		v := make([]float32, len(c.Vector))
		copy(v, c.Vector)
		c.Vector = v
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *MemoryVectorStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.chunks {
		if strings.HasPrefix(id, prefix) {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryVectorStore) Exists(_ context.Context, prefix string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.chunks {
		if strings.HasPrefix(id, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryVectorStore) Search(_ context.Context, contextID string, vector []float32, topK int) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]core.Hit, 0)
	for _, c := range s.chunks {
		if c.ContextID != contextID {
			continue
		}
		hits = append(hits, core.Hit{ID: c.ID, ContextID: c.ContextID, Text: c.Text, Score: cosine(vector, c.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryVectorStore) List(_ context.Context, contextID string, limit int) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]core.Hit, 0)
	for _, c := range s.chunks {
		if c.ContextID == contextID {
			hits = append(hits, core.Hit{ID: c.ID, ContextID: c.ContextID, Text: c.Text})
		}
	}
	sortHitsByID(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of stored chunks.
func (s *MemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortHitsByID(hits []core.Hit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
}

// quote escapes a string literal for a Milvus boolean expression.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
