// Package chromemstore is a memory.VectorStore backed by an embedded
// chromem-go collection. With a path the collection is persisted to disk
// and reloaded on open; without one it lives in process memory.
package chromemstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/memory"
)

const (
	collectionName = "learning_memories"

	keyConversation = "conversation_id"
	keyCreatedAt    = "created_at"
	keyRelevance    = "relevance_score"

	// User metadata keys are prefixed so they cannot shadow the reserved ones.
	metaPrefix = "m:"
)

// Store implements memory.VectorStore over a chromem-go collection.
type Store struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int

	// Serialises read-modify-write of relevance scores.
	mu sync.Mutex
}

// Config configures the store.
type Config struct {
	// Path is the persistence directory. Empty keeps data in memory only.
	Path string
	// Compress gzips persisted documents.
	Compress bool
	// Dimension is the embedding size, used to probe the collection when listing.
	Dimension int
}

// New opens (or creates) the collection.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("chromem store dimension must be positive: %w", core.ErrInvalidConfiguration)
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, core.NewFrameworkError("chromemstore.New", "storage", fmt.Errorf("open %s: %w", cfg.Path, err))
		}
	}

	// No embedding func: every document arrives with its vector
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, core.NewFrameworkError("chromemstore.New", "storage", fmt.Errorf("create collection: %w", err))
	}

	return &Store{db: db, col: col, dimension: cfg.Dimension}, nil
}

func (s *Store) Put(ctx context.Context, m *core.Memory) error {
	if m == nil || m.ID == "" {
		return core.NewValidationError("chromemstore.Put", "memory ID cannot be empty")
	}
	if len(m.Embedding) != s.dimension {
		return core.NewValidationError("chromemstore.Put",
			fmt.Sprintf("embedding has %d dimensions, want %d", len(m.Embedding), s.dimension))
	}

	doc := chromem.Document{
		ID:        m.ID,
		Content:   m.Content,
		Embedding: append([]float32(nil), m.Embedding...),
		Metadata:  encodeMetadata(m),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.Memory, error) {
	doc, err := s.col.GetByID(ctx, id)
	if err != nil {
		return nil, core.NewNotFoundError("chromemstore.Get", "memory", id)
	}
	return decode(doc.ID, doc.Content, doc.Embedding, doc.Metadata), nil
}

// Query pushes conversation and metadata equality into chromem's where
// clause; exclusion and time bounds are applied to the ranked results.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	count := s.col.Count()
	if count == 0 {
		return []core.ScoredMemory{}, nil
	}

	n := count
	postFilter := filter.ExcludeConversationID != "" || !filter.Since.IsZero() || !filter.Before.IsZero()
	if !postFilter && limit > 0 && limit < count {
		n = limit
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, n, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]core.ScoredMemory, 0, len(results))
	for _, r := range results {
		m := decode(r.ID, r.Content, r.Embedding, r.Metadata)
		if !filter.Matches(m) {
			continue
		}
		hits = append(hits, core.ScoredMemory{Memory: m, Score: memory.Similarity(float64(r.Similarity))})
	}
	memory.SortByScore(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// List ranks every document against a probe vector and keeps the matches.
// chromem has no scan API, so this is a full query.
func (s *Store) List(ctx context.Context, filter core.MemoryFilter) ([]*core.Memory, error) {
	count := s.col.Count()
	if count == 0 {
		return []*core.Memory{}, nil
	}

	probe := make([]float32, s.dimension)
	probe[0] = 1
	results, err := s.col.QueryEmbedding(ctx, probe, count, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem list: %w", err)
	}

	out := make([]*core.Memory, 0, len(results))
	for _, r := range results {
		m := decode(r.ID, r.Content, r.Embedding, r.Metadata)
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *Store) UpdateRelevance(ctx context.Context, id string, relevance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.col.GetByID(ctx, id)
	if err != nil {
		return core.NewNotFoundError("chromemstore.UpdateRelevance", "memory", id)
	}
	doc.Metadata[keyRelevance] = formatFloat(core.Clamp01(relevance))
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) (int, error) {
	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := s.col.GetByID(ctx, id); err == nil {
			existing = append(existing, id)
		}
	}
	// chromem treats an empty id list as "delete everything"
	if len(existing) == 0 {
		return 0, nil
	}
	if err := s.col.Delete(ctx, nil, nil, existing...); err != nil {
		return 0, fmt.Errorf("chromem delete: %w", err)
	}
	return len(existing), nil
}

// Close is a no-op: persistent collections are written on every change.
func (s *Store) Close() error { return nil }

// Count returns the number of stored documents.
func (s *Store) Count() int { return s.col.Count() }

func where(filter core.MemoryFilter) map[string]string {
	if filter.ConversationID == "" && len(filter.Metadata) == 0 {
		return nil
	}
	w := make(map[string]string, len(filter.Metadata)+1)
	if filter.ConversationID != "" {
		w[keyConversation] = filter.ConversationID
	}
	for k, v := range filter.Metadata {
		w[metaPrefix+k] = v
	}
	return w
}

func encodeMetadata(m *core.Memory) map[string]string {
	md := make(map[string]string, len(m.Metadata)+3)
	for k, v := range m.Metadata {
		md[metaPrefix+k] = v
	}
	md[keyConversation] = m.ConversationID
	md[keyCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	md[keyRelevance] = formatFloat(m.RelevanceScore)
	return md
}

func decode(id, content string, embedding []float32, md map[string]string) *core.Memory {
	m := &core.Memory{
		ID:             id,
		ConversationID: md[keyConversation],
		Content:        content,
		Embedding:      append([]float32(nil), embedding...),
		Metadata:       make(map[string]string),
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, md[keyCreatedAt])
	m.RelevanceScore, _ = strconv.ParseFloat(md[keyRelevance], 64)
	for k, v := range md {
		if strings.HasPrefix(k, metaPrefix) {
			m.Metadata[strings.TrimPrefix(k, metaPrefix)] = v
		}
	}
	return m
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortByCreated(ms []*core.Memory) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
}
