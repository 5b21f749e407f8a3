package ai

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "dor nas costas", "dor nas costas", 0.999, 1.001},
		{"subset", "Cliente relatou dor nas costas crônica", "dor nas costas", 0.6, 0.8},
		{"case insensitive", "DOR NAS COSTAS", "dor nas costas", 0.999, 1.001},
		{"unrelated", "quero agendar uma consulta para amanhã", "dor nas costas", -0.2, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := e.Embed(context.Background(), tt.a)
			require.NoError(t, err)
			b, err := e.Embed(context.Background(), tt.b)
			require.NoError(t, err)

			sim := cosine(a, b)
			assert.GreaterOrEqual(t, sim, tt.min)
			assert.LessOrEqual(t, sim, tt.max)
		})
	}
}

func TestHashEmbedder_UnitLength(t *testing.T) {
	e := NewHashEmbedder(64)
	for _, text := range []string{"olá", "!!!", "a b c d e f g h i j k l m n o p"} {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, v, 64)
		assert.InDelta(t, 1.0, math.Sqrt(cosine(v, v)), 1e-5, "text %q", text)
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	a, _ := NewHashEmbedder(128).Embed(context.Background(), "agendar consulta")
	b, _ := NewHashEmbedder(128).Embed(context.Background(), "agendar consulta")
	assert.Equal(t, a, b)
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
