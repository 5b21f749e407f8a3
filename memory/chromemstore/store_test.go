package chromemstore

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

func embed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := ai.NewHashEmbedder(testDim).Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func seed(t *testing.T, s *Store) time.Time {
	t.Helper()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := []struct {
		id, conv, content, role string
	}{
		{"m1", "conv-1", "dor nas costas", "user"},
		{"m2", "conv-1", "vou verificar a agenda", "assistant"},
		{"m3", "conv-2", "dor nas costas forte", "user"},
	}
	for i, r := range rows {
		require.NoError(t, s.Put(context.Background(), &core.Memory{
			ID:             r.id,
			ConversationID: r.conv,
			Content:        r.content,
			Embedding:      embed(t, r.content),
			Metadata:       map[string]string{"role": r.role},
			RelevanceScore: 0.5,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return base
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{Dimension: testDim})
	require.NoError(t, err)
	defer s.Close()

	base := seed(t, s)
	assert.Equal(t, 3, s.Count())

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "user", got.Metadata["role"])
	assert.True(t, got.CreatedAt.Equal(base))
	assert.Equal(t, 0.5, got.RelevanceScore)

	_, err = s.Get(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, s.UpdateRelevance(ctx, "m1", 0.8))
	got, _ = s.Get(ctx, "m1")
	assert.Equal(t, 0.8, got.RelevanceScore)
	assert.True(t, core.IsNotFound(s.UpdateRelevance(ctx, "missing", 0.1)))

	n, err := s.Delete(ctx, "m2", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, s.Count(), "an unknown id must not wipe the collection")

	err = s.Put(ctx, &core.Memory{ID: "bad", Embedding: []float32{1}})
	assert.True(t, core.IsValidation(err))
}

func TestStore_QueryAndList(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{Dimension: testDim})
	require.NoError(t, err)
	base := seed(t, s)

	hits, err := s.Query(ctx, embed(t, "dor nas costas"), 2, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "m1", hits[0].Memory.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "m3", hits[1].Memory.ID)

	hits, err = s.Query(ctx, embed(t, "dor nas costas"), 10, core.MemoryFilter{ExcludeConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m3", hits[0].Memory.ID)

	hits, err = s.Query(ctx, embed(t, "dor nas costas"), 10, core.MemoryFilter{Metadata: map[string]string{"role": "assistant"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].Memory.ID)

	listed, err := s.List(ctx, core.MemoryFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "m1", listed[0].ID)
	assert.Equal(t, "m2", listed[1].ID)

	listed, err = s.List(ctx, core.MemoryFilter{Since: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(Config{Path: dir, Dimension: testDim})
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.Close())

	reopened, err := New(Config{Path: dir, Dimension: testDim})
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Count())
	got, err := reopened.Get(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, "dor nas costas forte", got.Content)
}

func TestStore_WithService(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{Dimension: testDim})
	require.NoError(t, err)

	cfg := core.DefaultConfig().Memory
	cfg.EmbeddingDimension = testDim
	svc, err := memory.NewService(s, ai.NewHashEmbedder(testDim), cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.StoreMemory(ctx, "conv-1", "Cliente relatou dor nas costas crônica", nil)
	require.NoError(t, err)
	_, err = svc.StoreMemory(ctx, "conv-1", "quero agendar uma consulta para amanhã", nil)
	require.NoError(t, err)

	hits, err := svc.SearchSimilar(ctx, "dor nas costas", 5, core.MemoryFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Memory.Content, "dor nas costas")
	assert.Greater(t, hits[0].Score, 0.6)
}
