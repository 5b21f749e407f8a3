// Package memory stores embedded conversation fragments and retrieves them by
// vector similarity, lexical overlap, or both.
//
// The Service owns the policy (validation, thresholds, relevance boosts,
// per-conversation caps, retention). A VectorStore owns persistence and
// nearest-neighbour lookup. Backends live in sub-packages:
//
//	memory.InMemoryStore   - process-local, for tests and single-node use
//	memory/chromemstore    - embedded chromem-go collection, optionally persisted
//	memory/pgstore         - PostgreSQL with the pgvector extension
//	memory/sqlitestore     - a single SQLite file, similarity computed in-process
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/itsneelabh/gomind-learning/core"
)

// VectorStore persists memories and answers nearest-neighbour queries.
//
// Query returns at most limit hits matching filter, ordered by descending
// Score. Score is cosine similarity mapped into [0,1]; stores never apply a
// similarity threshold themselves.
type VectorStore interface {
	Put(ctx context.Context, m *core.Memory) error
	Get(ctx context.Context, id string) (*core.Memory, error)
	Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error)
	List(ctx context.Context, filter core.MemoryFilter) ([]*core.Memory, error)
	UpdateRelevance(ctx context.Context, id string, relevance float64) error
	Delete(ctx context.Context, ids ...string) (int, error)
	Close() error
}

// HybridSearcher is implemented by stores that can combine lexical and
// vector scoring natively. Scores are in [0,1].
type HybridSearcher interface {
	QueryHybrid(ctx context.Context, query string, embedding []float32, limit int, textWeight, vectorWeight float64, filter core.MemoryFilter) ([]core.ScoredMemory, error)
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Similarity maps a cosine value to a [0,1] score. Anti-correlated vectors score 0.
func Similarity(cosine float64) float64 {
	return core.Clamp01(cosine)
}

// SortByScore orders hits by descending score, newest first on ties.
func SortByScore(hits []core.ScoredMemory) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
	})
}

// InMemoryStore is a process-local VectorStore with brute-force search.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string]*core.Memory
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[string]*core.Memory)}
}

func (s *InMemoryStore) Put(ctx context.Context, m *core.Memory) error {
	if m == nil || m.ID == "" {
		return core.NewValidationError("InMemoryStore.Put", "memory ID cannot be empty")
	}
	s.mu.Lock()
	s.memories[m.ID] = cloneMemory(m)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, core.NewNotFoundError("InMemoryStore.Get", "memory", id)
	}
	return cloneMemory(m), nil
}

func (s *InMemoryStore) Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	hits := make([]core.ScoredMemory, 0, len(s.memories))
	for _, m := range s.memories {
		if !filter.Matches(m) {
			continue
		}
		hits = append(hits, core.ScoredMemory{
			Memory: cloneMemory(m),
			Score:  Similarity(Cosine(embedding, m.Embedding)),
		})
	}
	s.mu.RUnlock()

	SortByScore(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *InMemoryStore) List(ctx context.Context, filter core.MemoryFilter) ([]*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		if filter.Matches(m) {
			out = append(out, cloneMemory(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateRelevance(ctx context.Context, id string, relevance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return core.NewNotFoundError("InMemoryStore.UpdateRelevance", "memory", id)
	}
	m.RelevanceScore = core.Clamp01(relevance)
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.memories[id]; ok {
			delete(s.memories, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// Len returns the number of stored memories.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

func cloneMemory(m *core.Memory) *core.Memory {
	cp := *m
	if m.Embedding != nil {
		cp.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
