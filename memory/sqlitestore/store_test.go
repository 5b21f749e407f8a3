package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func embed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := ai.NewHashEmbedder(testDim).Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.75, 0}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Empty(t, decodeVector(nil))
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, ":memory:")
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, c := range []struct{ id, conv, content, role string }{
		{"m1", "conv-1", "dor nas costas", "user"},
		{"m2", "conv-1", "vou verificar a agenda", "assistant"},
		{"m3", "conv-2", "dor nas costas forte", "user"},
	} {
		require.NoError(t, s.Put(ctx, &core.Memory{
			ID:             c.id,
			ConversationID: c.conv,
			Content:        c.content,
			Embedding:      embed(t, c.content),
			Metadata:       map[string]string{"role": c.role},
			RelevanceScore: 0.5,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.True(t, core.IsValidation(s.Put(ctx, &core.Memory{})))

	got, err := s.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "assistant", got.Metadata["role"])
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Minute)))
	assert.Equal(t, embed(t, "vou verificar a agenda"), got.Embedding)

	_, err = s.Get(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	hits, err := s.Query(ctx, embed(t, "dor nas costas"), 2, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "m1", hits[0].Memory.ID)
	assert.Equal(t, "m3", hits[1].Memory.ID)

	listed, err := s.List(ctx, core.MemoryFilter{Metadata: map[string]string{"role": "user"}})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "m1", listed[0].ID)

	listed, err = s.List(ctx, core.MemoryFilter{ExcludeConversationID: "conv-2", Before: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "m1", listed[0].ID)

	require.NoError(t, s.UpdateRelevance(ctx, "m1", -3))
	got, _ = s.Get(ctx, "m1")
	assert.Equal(t, 0.0, got.RelevanceScore)
	assert.True(t, core.IsNotFound(s.UpdateRelevance(ctx, "missing", 0.5)))

	n, err := s.Delete(ctx, "m1", "m2", "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "learning.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &core.Memory{
		ID:             "m1",
		ConversationID: "conv-1",
		Content:        "olá",
		Embedding:      embed(t, "olá"),
		CreatedAt:      time.Now(),
	}))
	require.NoError(t, s.Close())

	reopened := newTestStore(t, path)
	got, err := reopened.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "olá", got.Content)
	assert.NotNil(t, got.Metadata)
}

func TestStore_WithService(t *testing.T) {
	ctx := context.Background()
	cfg := core.DefaultConfig().Memory
	cfg.EmbeddingDimension = testDim
	cfg.MaxMemoriesPerConversation = 2

	svc, err := memory.NewService(newTestStore(t, ":memory:"), ai.NewHashEmbedder(testDim), cfg)
	require.NoError(t, err)

	for _, c := range []string{"Cliente relatou dor nas costas crônica", "quero agendar uma consulta", "obrigado"} {
		_, err := svc.StoreMemory(ctx, "conv-1", c, nil)
		require.NoError(t, err)
	}

	all, err := svc.Store().List(ctx, core.MemoryFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hybrid, err := svc.SearchHybrid(ctx, "agendar consulta", 5, 0.5, 0.5, core.MemoryFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hybrid)
	assert.Equal(t, "quero agendar uma consulta", hybrid[0].Memory.Content)
}
