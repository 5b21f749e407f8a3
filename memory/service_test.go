package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for retention tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingEmbedder delegates to a hash embedder and counts calls.
type countingEmbedder struct {
	inner *ai.HashEmbedder
	calls atomic.Int32
}

func (e *countingEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.inner.Embed(ctx, text)
}

type failingEmbedder struct {
	dim   int
	err   error
	block bool
}

func (e *failingEmbedder) Dimension() int { return e.dim }

func (e *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, e.err
}

// brokenStore fails every read while keeping writes working.
type brokenStore struct {
	*InMemoryStore
}

func (s *brokenStore) Query(ctx context.Context, embedding []float32, limit int, filter core.MemoryFilter) ([]core.ScoredMemory, error) {
	return nil, errors.New("connection reset by peer")
}

func testMemoryConfig() core.MemoryConfig {
	cfg := core.DefaultConfig().Memory
	cfg.EmbeddingDimension = 256
	return cfg
}

func newTestService(t *testing.T, cfg core.MemoryConfig, opts ...ServiceOption) (*Service, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	svc, err := NewService(store, ai.NewHashEmbedder(cfg.EmbeddingDimension), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, store
}

func TestNewService_DimensionMismatch(t *testing.T) {
	cfg := testMemoryConfig()
	_, err := NewService(NewInMemoryStore(), ai.NewHashEmbedder(128), cfg)
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewService(nil, ai.NewHashEmbedder(128), cfg)
	assert.True(t, core.IsConfigurationError(err))
}

func TestGenerateEmbedding(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testMemoryConfig())

	v, err := svc.GenerateEmbedding(ctx, "  olá, tudo bem?  ")
	require.NoError(t, err)
	assert.Len(t, v, 256)
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.GenerateEmbedding(ctx, text)
		assert.True(t, core.IsValidation(err), "text %q", text)
	}
}

func TestGenerateEmbedding_Cached(t *testing.T) {
	ctx := context.Background()
	cfg := testMemoryConfig()
	embedder := &countingEmbedder{inner: ai.NewHashEmbedder(cfg.EmbeddingDimension)}
	svc, err := NewService(NewInMemoryStore(), embedder, cfg)
	require.NoError(t, err)
	defer svc.Close()

	a, err := svc.GenerateEmbedding(ctx, "agendar consulta")
	require.NoError(t, err)
	b, err := svc.GenerateEmbedding(ctx, "agendar consulta")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), embedder.calls.Load())
}

func TestGenerateEmbedding_EmbedderFailures(t *testing.T) {
	ctx := context.Background()
	cfg := testMemoryConfig()
	cfg.EmbedTimeout = 20 * time.Millisecond
	cfg.EmbeddingCacheSize = 0

	svc, err := NewService(NewInMemoryStore(), &failingEmbedder{dim: 256, err: errors.New("503")}, cfg)
	require.NoError(t, err)
	_, err = svc.GenerateEmbedding(ctx, "text")
	require.Error(t, err)
	assert.True(t, core.IsExternal(err))
	assert.ErrorIs(t, err, core.ErrExternalService)

	svc, err = NewService(NewInMemoryStore(), &failingEmbedder{dim: 256, block: true}, cfg)
	require.NoError(t, err)
	_, err = svc.GenerateEmbedding(ctx, "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.True(t, core.IsExternal(err))
}

func TestStoreMemory_Validation(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, testMemoryConfig())

	_, err := svc.StoreMemory(ctx, "", "content", nil)
	assert.True(t, core.IsValidation(err))
	_, err = svc.StoreMemory(ctx, "conv-1", "  ", nil)
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, 0, store.Len())
}

func TestSearchSimilar_FindsRelatedMemory(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, testMemoryConfig())

	back, err := svc.StoreMemory(ctx, "conv-1", "Cliente relatou dor nas costas crônica", map[string]string{"role": "user"})
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, "conv-1", "quero agendar uma consulta para amanhã", nil)
	require.NoError(t, err)

	hits, err := svc.SearchSimilar(ctx, "dor nas costas", 5, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, back.ID, hits[0].Memory.ID)
	assert.Greater(t, hits[0].Score, 0.6)
	assert.LessOrEqual(t, hits[0].Score, 1.0)

	// Retrieval boosts relevance by 0.1, both in the result and in the store
	assert.InDelta(t, 0.6, hits[0].Memory.RelevanceScore, 1e-9)
	stored, err := store.Get(ctx, back.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, stored.RelevanceScore, 1e-9)
}

func TestSearchSimilar_BoostIsCapped(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, testMemoryConfig())

	m, err := svc.StoreMemory(ctx, "conv-1", "dor nas costas", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateRelevance(ctx, m.ID, 0.95))

	hits, err := svc.SearchSimilar(ctx, "dor nas costas", 1, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1.0, hits[0].Memory.RelevanceScore)
}

func TestSearchSimilar_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testMemoryConfig())

	for _, limit := range []int{0, -1, 101} {
		_, err := svc.SearchSimilar(ctx, "query", limit, core.MemoryFilter{})
		assert.True(t, core.IsValidation(err), "limit %d", limit)
	}
	_, err := svc.SearchSimilar(ctx, "", 5, core.MemoryFilter{})
	assert.True(t, core.IsValidation(err))

	hits, err := svc.SearchSimilar(ctx, "query", 100, core.MemoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSimilar_OrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testMemoryConfig())

	for _, c := range []string{
		"dor nas costas",
		"dor nas costas e no pescoço",
		"dor nas costas e no pescoço depois do treino de ontem",
	} {
		_, err := svc.StoreMemory(ctx, "conv-1", c, nil)
		require.NoError(t, err)
	}
	_, err := svc.StoreMemory(ctx, "conv-2", "dor nas costas", nil)
	require.NoError(t, err)

	hits, err := svc.SearchSimilar(ctx, "dor nas costas", 10, core.MemoryFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "dor nas costas", hits[0].Memory.Content)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		assert.Equal(t, "conv-1", hits[i].Memory.ConversationID)
	}
}

func TestSearchSimilar_DegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	cfg := testMemoryConfig()
	cfg.EmbeddingCacheSize = 0

	svc, err := NewService(NewInMemoryStore(), &failingEmbedder{dim: 256, err: errors.New("boom")}, cfg)
	require.NoError(t, err)
	hits, err := svc.SearchSimilar(ctx, "dor nas costas", 5, core.MemoryFilter{})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	svc, err = NewService(&brokenStore{NewInMemoryStore()}, ai.NewHashEmbedder(256), cfg)
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, "conv-1", "dor nas costas", nil)
	require.NoError(t, err)
	hits, err = svc.SearchSimilar(ctx, "dor nas costas", 5, core.MemoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = svc.SearchHybrid(ctx, "dor nas costas", 5, 0.5, 0.5, core.MemoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchHybrid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testMemoryConfig())

	booking, err := svc.StoreMemory(ctx, "conv-1", "quero agendar uma consulta para amanhã", nil)
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, "conv-1", "Cliente relatou dor nas costas crônica", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		tw, vw  float64
		wantErr bool
	}{
		{"both zero", 0, 0, true},
		{"negative text", -0.1, 1, true},
		{"negative vector", 1, -0.1, true},
		{"lexical only", 1, 0, false},
		{"mixed", 0.3, 0.7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := svc.SearchHybrid(ctx, "agendar consulta", 5, tt.tw, tt.vw, core.MemoryFilter{})
			if tt.wantErr {
				assert.True(t, core.IsValidation(err))
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, booking.ID, hits[0].Memory.ID)
			for _, h := range hits {
				assert.Greater(t, h.Score, 0.0)
				assert.LessOrEqual(t, h.Score, 1.0)
			}
		})
	}

	hits, err := svc.SearchHybrid(ctx, "agendar consulta", 5, 1, 0, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1, "memories with no lexical overlap score zero and are dropped")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestGetRelevantContext(t *testing.T) {
	ctx := context.Background()
	cfg := testMemoryConfig()
	cfg.ContextLimit = 3
	svc, _ := newTestService(t, cfg)

	own, err := svc.StoreMemory(ctx, "conv-1", "dor nas costas forte", nil)
	require.NoError(t, err)
	for _, c := range []string{"dor nas costas", "dor nas costas leve", "dor nas costas de novo"} {
		_, err := svc.StoreMemory(ctx, "conv-2", c, nil)
		require.NoError(t, err)
	}

	hits, err := svc.GetRelevantContext(ctx, "conv-1", "dor nas costas")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, own.ID, hits[0].Memory.ID, "same-conversation memories come first")

	seen := map[string]bool{}
	for _, h := range hits {
		assert.False(t, seen[h.Memory.ID], "duplicate %s", h.Memory.ID)
		seen[h.Memory.ID] = true
	}

	_, err = svc.GetRelevantContext(ctx, "", "dor")
	assert.True(t, core.IsValidation(err))
}

func TestStoreMemory_EnforcesConversationCap(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testMemoryConfig()
	cfg.MaxMemoriesPerConversation = 3
	svc, store := newTestService(t, cfg, WithClock(clock.Now))

	var ids []string
	for _, c := range []string{"primeira", "segunda", "terceira", "quarta", "quinta"} {
		m, err := svc.StoreMemory(ctx, "conv-1", c, nil)
		require.NoError(t, err)
		ids = append(ids, m.ID)
		clock.Advance(time.Minute)
	}
	_, err := svc.StoreMemory(ctx, "conv-2", "outra conversa", nil)
	require.NoError(t, err)

	remaining, err := store.List(ctx, core.MemoryFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, ids[2:], []string{remaining[0].ID, remaining[1].ID, remaining[2].ID})
	assert.Equal(t, 4, store.Len())
}

func TestCleanupOldMemories(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	svc, store := newTestService(t, testMemoryConfig(), WithClock(clock.Now))

	stale, err := svc.StoreMemory(ctx, "conv-1", "mensagem antiga", nil)
	require.NoError(t, err)
	important, err := svc.StoreMemory(ctx, "conv-1", "alergia a penicilina", nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateRelevance(ctx, important.ID, 0.9))

	clock.Advance(100 * 24 * time.Hour)
	fresh, err := svc.StoreMemory(ctx, "conv-1", "mensagem nova", nil)
	require.NoError(t, err)

	_, err = svc.CleanupOldMemories(ctx, -1)
	assert.True(t, core.IsValidation(err))

	removed, err := svc.CleanupOldMemories(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, stale.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = store.Get(ctx, important.ID)
	assert.NoError(t, err, "high-relevance memories survive retention")
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupOldMemories_TrimsToCap(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testMemoryConfig()
	cfg.MaxMemoriesPerConversation = 2
	svc, store := newTestService(t, cfg, WithClock(clock.Now))

	// Written behind the service's back, so the cap was never applied
	for i, c := range []string{"um", "dois", "três", "quatro"} {
		emb, err := svc.GenerateEmbedding(ctx, c)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, &core.Memory{
			ID:             c,
			ConversationID: "conv-1",
			Content:        c,
			Embedding:      emb,
			RelevanceScore: 0.5,
			CreatedAt:      clock.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	removed, err := svc.CleanupOldMemories(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, store.Len())
}

func TestFragments(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	svc, _ := newTestService(t, testMemoryConfig(), WithClock(clock.Now))

	start := clock.Now()
	turns := []struct{ role, content string }{
		{"user", "Oi, preciso de ajuda"},
		{"assistant", "Claro! Como posso ajudar?"},
		{"user", "Quero remarcar a consulta"},
	}
	for _, turn := range turns {
		_, err := svc.StoreMemory(ctx, "conv-1", turn.content, map[string]string{"role": turn.role})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	fragments, err := svc.Fragments(ctx, "conv-1", start)
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	for i, turn := range turns {
		assert.Equal(t, turn.role, fragments[i].Role)
		assert.Equal(t, turn.content, fragments[i].Content)
	}

	later, err := svc.Fragments(ctx, "conv-1", start.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, later, 2)
}

func TestDecayRelevance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, testMemoryConfig())

	m, err := svc.StoreMemory(ctx, "conv-1", "dor nas costas", nil)
	require.NoError(t, err)

	for _, factor := range []float64{0, -0.5, 1.5} {
		_, err := svc.DecayRelevance(ctx, factor)
		assert.True(t, core.IsValidation(err), "factor %v", factor)
	}

	n, err := svc.DecayRelevance(ctx, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got.RelevanceScore, 1e-9)
}
