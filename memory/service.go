package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

const (
	maxSearchLimit = 100

	// hybridCandidateFactor widens the vector candidate pool when the store
	// cannot score lexically itself.
	hybridCandidateFactor = 4
)

// Service implements the memory store operations over a VectorStore and an
// Embedder. It is safe for concurrent use.
type Service struct {
	store    VectorStore
	embedder core.Embedder
	config   core.MemoryConfig
	logger   core.Logger
	cache    *core.TTLCache
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger core.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = core.ComponentLogger(logger, "learning/memory")
	}
}

// WithClock overrides time.Now, mainly for retention tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEmbeddingCache replaces the default embedding cache. A nil cache disables caching.
func WithEmbeddingCache(cache *core.TTLCache) ServiceOption {
	return func(s *Service) {
		if s.cache != nil && s.cache != cache {
			s.cache.Close()
		}
		s.cache = cache
	}
}

// NewService creates a memory service. Zero config values fall back to defaults.
func NewService(store VectorStore, embedder core.Embedder, cfg core.MemoryConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store is required: %w", core.ErrMissingConfiguration)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required: %w", core.ErrMissingConfiguration)
	}

	defaults := core.DefaultConfig().Memory
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = embedder.Dimension()
	}
	if cfg.MaxMemoriesPerConversation <= 0 {
		cfg.MaxMemoriesPerConversation = defaults.MaxMemoriesPerConversation
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = defaults.ContextLimit
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaults.RetentionDays
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = defaults.EmbedTimeout
	}
	if cfg.HighRelevanceThreshold <= 0 {
		cfg.HighRelevanceThreshold = defaults.HighRelevanceThreshold
	}
	if embedder.Dimension() != cfg.EmbeddingDimension {
		return nil, core.NewFrameworkError("memory.NewService", "config",
			fmt.Errorf("%w: embedder dimension %d does not match configured %d",
				core.ErrInvalidConfiguration, embedder.Dimension(), cfg.EmbeddingDimension))
	}

	s := &Service{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   &core.NoOpLogger{},
		now:      time.Now,
	}

	if cfg.EmbeddingCacheSize > 0 {
		cache, err := core.NewTTLCache(cfg.EmbeddingCacheSize, cfg.EmbeddingCacheTTL)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the cache and the underlying store.
func (s *Service) Close() error {
	s.cache.Close()
	return s.store.Close()
}

// Store returns the backing VectorStore.
func (s *Service) Store() VectorStore {
	return s.store
}

// GenerateEmbedding embeds text and returns a unit vector of the configured
// dimension. Empty text is a validation error; embedder failures are
// external-service errors.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	const op = "memory.GenerateEmbedding"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewValidationError(op, "text cannot be empty")
	}

	if cached, ok := s.cache.Get(text); ok {
		return append([]float32(nil), cached.([]float32)...), nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
	defer cancel()

	start := time.Now()
	vec, err := s.embedder.Embed(embedCtx, text)
	telemetry.Duration("learning.memory.embed_ms", start, "status", statusLabel(err))
	if err != nil {
		if errors.Is(embedCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
			err = fmt.Errorf("%w: %v", core.ErrTimeout, err)
		}
		var fe *core.FrameworkError
		if errors.As(err, &fe) && core.IsExternal(err) {
			return nil, err
		}
		return nil, core.NewExternalServiceError(op, err)
	}

	if len(vec) != s.config.EmbeddingDimension {
		return nil, core.NewExternalServiceError(op,
			fmt.Errorf("embedder returned %d dimensions, want %d", len(vec), s.config.EmbeddingDimension))
	}

	vec = Normalize(append([]float32(nil), vec...))
	if Cosine(vec, vec) == 0 {
		return nil, core.NewExternalServiceError(op, errors.New("embedder returned a zero vector"))
	}

	s.cache.Set(text, append([]float32(nil), vec...))
	return vec, nil
}

// StoreMemory embeds and persists content, then enforces the
// per-conversation cap.
func (s *Service) StoreMemory(ctx context.Context, conversationID, content string, metadata map[string]string) (*core.Memory, error) {
	const op = "memory.StoreMemory"

	if strings.TrimSpace(conversationID) == "" {
		return nil, core.NewValidationError(op, "conversation ID cannot be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.NewValidationError(op, "content cannot be empty")
	}

	ctx, end := telemetry.StartSpan(ctx, "memory.store", map[string]string{
		"conversation_id": conversationID,
	})
	defer end()

	embedding, err := s.GenerateEmbedding(ctx, content)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	m := &core.Memory{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		Embedding:      embedding,
		Metadata:       copyMetadata(metadata),
		RelevanceScore: core.Clamp01(s.config.DefaultRelevance),
		CreatedAt:      s.now(),
	}

	if err := s.store.Put(ctx, m); err != nil {
		telemetry.RecordSpanError(ctx, err)
		s.logger.ErrorWithContext(ctx, "Failed to persist memory", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err,
		})
		return nil, core.NewFrameworkError(op, "storage", err)
	}
	telemetry.Counter("learning.memory.stored")

	if _, err := s.enforceCap(ctx, conversationID); err != nil {
		s.logger.WarnWithContext(ctx, "Per-conversation cleanup failed", map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err,
		})
	}

	s.logger.DebugWithContext(ctx, "Memory stored", map[string]interface{}{
		"memory_id":       m.ID,
		"conversation_id": conversationID,
		"content_length":  len(content),
	})
	return m, nil
}

// SearchSimilar returns memories similar to query, most similar first.
// Hits below MinSimilarity are dropped and every returned memory gets a
// relevance boost. Embedding or store failures yield an empty result.
func (s *Service) SearchSimilar(ctx context.Context, query string, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	const op = "memory.SearchSimilar"

	if limit < 1 || limit > maxSearchLimit {
		return nil, core.NewValidationError(op, fmt.Sprintf("limit must be between 1 and %d, got %d", maxSearchLimit, limit))
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.NewValidationError(op, "query cannot be empty")
	}

	ctx, end := telemetry.StartSpan(ctx, "memory.search", map[string]string{"mode": "vector"})
	defer end()

	embedding, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		s.degraded(ctx, "vector", "embedding", err)
		return []core.ScoredMemory{}, nil
	}

	hits, err := s.store.Query(ctx, embedding, limit, filter)
	if err != nil {
		s.degraded(ctx, "vector", "store", err)
		return []core.ScoredMemory{}, nil
	}

	out := make([]core.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		if h.Memory == nil || h.Score < s.config.MinSimilarity {
			continue
		}
		h.Score = core.Clamp01(h.Score)
		out = append(out, h)
	}
	SortByScore(out)

	s.reinforce(ctx, out)
	telemetry.Histogram("learning.memory.search_hits", float64(len(out)), "mode", "vector")
	return out, nil
}

// SearchHybrid scores memories by textWeight·lexical + vectorWeight·vector.
// Both weights must be non-negative and at least one positive.
func (s *Service) SearchHybrid(ctx context.Context, query string, limit int, textWeight, vectorWeight float64, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	const op = "memory.SearchHybrid"

	if limit < 1 || limit > maxSearchLimit {
		return nil, core.NewValidationError(op, fmt.Sprintf("limit must be between 1 and %d, got %d", maxSearchLimit, limit))
	}
	if textWeight < 0 || vectorWeight < 0 {
		return nil, core.NewValidationError(op, "weights must be non-negative")
	}
	if textWeight == 0 && vectorWeight == 0 {
		return nil, core.NewValidationError(op, "at least one weight must be positive")
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.NewValidationError(op, "query cannot be empty")
	}

	ctx, end := telemetry.StartSpan(ctx, "memory.search", map[string]string{"mode": "hybrid"})
	defer end()

	embedding, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		s.degraded(ctx, "hybrid", "embedding", err)
		return []core.ScoredMemory{}, nil
	}

	var hits []core.ScoredMemory
	if hs, ok := s.store.(HybridSearcher); ok {
		hits, err = hs.QueryHybrid(ctx, query, embedding, limit, textWeight, vectorWeight, filter)
		if err != nil {
			s.degraded(ctx, "hybrid", "store", err)
			return []core.ScoredMemory{}, nil
		}
	} else {
		pool := limit * hybridCandidateFactor
		if pool > maxSearchLimit*hybridCandidateFactor {
			pool = maxSearchLimit * hybridCandidateFactor
		}
		candidates, err := s.store.Query(ctx, embedding, pool, filter)
		if err != nil {
			s.degraded(ctx, "hybrid", "store", err)
			return []core.ScoredMemory{}, nil
		}
		hits = ScoreHybrid(query, candidates, textWeight, vectorWeight)
	}

	out := make([]core.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		if h.Memory == nil || h.Score <= 0 {
			continue
		}
		h.Score = core.Clamp01(h.Score)
		out = append(out, h)
	}
	SortByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}

	s.reinforce(ctx, out)
	telemetry.Histogram("learning.memory.search_hits", float64(len(out)), "mode", "hybrid")
	return out, nil
}

// ScoreHybrid rescores vector hits by mixing in lexical coverage of query.
func ScoreHybrid(query string, candidates []core.ScoredMemory, textWeight, vectorWeight float64) []core.ScoredMemory {
	out := make([]core.ScoredMemory, 0, len(candidates))
	for _, c := range candidates {
		if c.Memory == nil {
			continue
		}
		lexical := textutil.Coverage(query, c.Memory.Content)
		out = append(out, core.ScoredMemory{
			Memory: c.Memory,
			Score:  core.Clamp01(textWeight*lexical + vectorWeight*c.Score),
		})
	}
	return out
}

// GetRelevantContext returns memories for query from the same conversation
// first, then from other conversations, without duplicates and capped at
// ContextLimit.
func (s *Service) GetRelevantContext(ctx context.Context, conversationID, query string) ([]core.ScoredMemory, error) {
	const op = "memory.GetRelevantContext"

	if strings.TrimSpace(conversationID) == "" {
		return nil, core.NewValidationError(op, "conversation ID cannot be empty")
	}
	limit := s.config.ContextLimit

	same, err := s.SearchSimilar(ctx, query, limit, core.MemoryFilter{ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoredMemory, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, h := range same {
		if len(out) == limit {
			return out, nil
		}
		seen[h.Memory.ID] = struct{}{}
		out = append(out, h)
	}

	cross, err := s.SearchSimilar(ctx, query, limit, core.MemoryFilter{ExcludeConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	for _, h := range cross {
		if len(out) == limit {
			break
		}
		if _, dup := seen[h.Memory.ID]; dup {
			continue
		}
		seen[h.Memory.ID] = struct{}{}
		out = append(out, h)
	}
	return out, nil
}

// CleanupOldMemories deletes memories older than retentionDays unless their
// relevance is at least HighRelevanceThreshold, then trims every
// conversation to the cap. Zero days means the configured retention.
func (s *Service) CleanupOldMemories(ctx context.Context, retentionDays int) (int, error) {
	const op = "memory.CleanupOldMemories"

	if retentionDays < 0 {
		return 0, core.NewValidationError(op, "retention days cannot be negative")
	}
	if retentionDays == 0 {
		retentionDays = s.config.RetentionDays
	}

	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	old, err := s.store.List(ctx, core.MemoryFilter{Before: cutoff})
	if err != nil {
		return 0, core.NewFrameworkError(op, "storage", err)
	}

	var expired []string
	for _, m := range old {
		if m.RelevanceScore < s.config.HighRelevanceThreshold {
			expired = append(expired, m.ID)
		}
	}

	removed := 0
	if len(expired) > 0 {
		n, err := s.store.Delete(ctx, expired...)
		if err != nil {
			return 0, core.NewFrameworkError(op, "storage", err)
		}
		removed += n
	}

	all, err := s.store.List(ctx, core.MemoryFilter{})
	if err != nil {
		return removed, core.NewFrameworkError(op, "storage", err)
	}
	byConversation := make(map[string][]*core.Memory)
	for _, m := range all {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}
	for convID, memories := range byConversation {
		n, err := s.evictExcess(ctx, memories)
		if err != nil {
			return removed, core.NewFrameworkError(op, "storage", fmt.Errorf("conversation %s: %w", convID, err))
		}
		removed += n
	}

	telemetry.Counter("learning.memory.cleanup_runs")
	s.logger.InfoWithContext(ctx, "Memory cleanup completed", map[string]interface{}{
		"retention_days": retentionDays,
		"removed":        removed,
	})
	return removed, nil
}

// Fragments returns a conversation's memories as transcript fragments,
// oldest first. The "role" metadata key becomes Fragment.Role.
func (s *Service) Fragments(ctx context.Context, conversationID string, since time.Time) ([]core.Fragment, error) {
	memories, err := s.store.List(ctx, core.MemoryFilter{ConversationID: conversationID, Since: since})
	if err != nil {
		return nil, core.NewFrameworkError("memory.Fragments", "storage", err)
	}
	sort.SliceStable(memories, func(i, j int) bool { return memories[i].CreatedAt.Before(memories[j].CreatedAt) })

	out := make([]core.Fragment, 0, len(memories))
	for _, m := range memories {
		out = append(out, core.Fragment{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Content:        m.Content,
			Role:           m.Metadata["role"],
			Metadata:       m.Metadata,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out, nil
}

// DecayRelevance multiplies every memory's relevance by factor, which must
// be in (0,1]. It returns the number of memories updated.
func (s *Service) DecayRelevance(ctx context.Context, factor float64) (int, error) {
	const op = "memory.DecayRelevance"

	if factor <= 0 || factor > 1 {
		return 0, core.NewValidationError(op, fmt.Sprintf("decay factor must be in (0,1], got %v", factor))
	}
	all, err := s.store.List(ctx, core.MemoryFilter{})
	if err != nil {
		return 0, core.NewFrameworkError(op, "storage", err)
	}
	updated := 0
	for _, m := range all {
		if m.RelevanceScore == 0 {
			continue
		}
		if err := s.store.UpdateRelevance(ctx, m.ID, m.RelevanceScore*factor); err != nil {
			return updated, core.NewFrameworkError(op, "storage", err)
		}
		updated++
	}
	return updated, nil
}

// enforceCap trims one conversation to MaxMemoriesPerConversation.
func (s *Service) enforceCap(ctx context.Context, conversationID string) (int, error) {
	memories, err := s.store.List(ctx, core.MemoryFilter{ConversationID: conversationID})
	if err != nil {
		return 0, err
	}
	return s.evictExcess(ctx, memories)
}

// evictExcess deletes the lowest-relevance, then oldest, memories beyond the cap.
func (s *Service) evictExcess(ctx context.Context, memories []*core.Memory) (int, error) {
	excess := len(memories) - s.config.MaxMemoriesPerConversation
	if excess <= 0 {
		return 0, nil
	}
	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].RelevanceScore != memories[j].RelevanceScore {
			return memories[i].RelevanceScore < memories[j].RelevanceScore
		}
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	ids := make([]string, 0, excess)
	for _, m := range memories[:excess] {
		ids = append(ids, m.ID)
	}
	n, err := s.store.Delete(ctx, ids...)
	if err == nil && n > 0 {
		telemetry.Counter("learning.memory.evicted")
	}
	return n, err
}

// reinforce applies the retrieval boost to every hit, in the store and in the result.
func (s *Service) reinforce(ctx context.Context, hits []core.ScoredMemory) {
	if s.config.RelevanceBoost <= 0 {
		return
	}
	for i := range hits {
		m := hits[i].Memory
		boosted := core.Clamp01(m.RelevanceScore + s.config.RelevanceBoost)
		if boosted == m.RelevanceScore {
			continue
		}
		if err := s.store.UpdateRelevance(ctx, m.ID, boosted); err != nil {
			s.logger.WarnWithContext(ctx, "Failed to boost memory relevance", map[string]interface{}{
				"memory_id": m.ID,
				"error":     err,
			})
			continue
		}
		m.RelevanceScore = boosted
	}
}

func (s *Service) degraded(ctx context.Context, mode, stage string, err error) {
	telemetry.Counter("learning.memory.search_degraded", "mode", mode, "stage", stage)
	telemetry.RecordSpanError(ctx, err)
	s.logger.WarnWithContext(ctx, "Memory search degraded to empty result", map[string]interface{}{
		"mode":  mode,
		"stage": stage,
		"error": err,
	})
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
