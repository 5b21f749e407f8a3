package gemini

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_RequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	f := &Factory{}
	_, err := f.NewGenerator(core.AIConfig{})
	assert.True(t, errors.Is(err, core.ErrMissingConfiguration))

	_, available := f.DetectEnvironment()
	assert.False(t, available)
}

func TestClient_Integration(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	f := &Factory{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	embedder, err := f.NewEmbedder(core.AIConfig{Timeout: 20 * time.Second}, 384)
	require.NoError(t, err)
	v, err := embedder.Embed(ctx, "dor nas costas")
	require.NoError(t, err)
	assert.Len(t, v, 384)

	generator, err := f.NewGenerator(core.AIConfig{Timeout: 20 * time.Second})
	require.NoError(t, err)
	text, err := generator.GenerateText(ctx, "Say hello in Portuguese, one word.", core.GenerateOptions{MaxTokens: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
