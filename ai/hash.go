package ai

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
)

// DefaultDimension is the vector size used when none is configured.
const DefaultDimension = 384

func init() {
	MustRegister(&hashFactory{})
}

// HashEmbedder is a deterministic, offline embedder based on signed feature
// hashing of unigrams and bigrams. Texts sharing words land close together,
// which is enough for lexical-semantic recall without a model.
type HashEmbedder struct {
	dim          int
	bigramWeight float64
}

// NewHashEmbedder creates a hash embedder. Non-positive dimensions use DefaultDimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dim: dimension, bigramWeight: 0.5}
}

// Dimension returns the vector size.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed returns the unit-length feature vector of text.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := textutil.Tokenize(text)
	if len(tokens) == 0 {
		// Punctuation-only input: fall back to characters so the vector is never zero
		for _, r := range text {
			tokens = append(tokens, string(r))
		}
	}

	acc := make([]float64, h.dim)
	for _, t := range tokens {
		h.add(acc, t, 1)
	}
	for i := 0; i+1 < len(tokens); i++ {
		h.add(acc, tokens[i]+" "+tokens[i+1], h.bigramWeight)
	}

	var norm float64
	for _, x := range acc {
		norm += x * x
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range acc {
		out[i] = float32(x * inv)
	}
	return out, nil
}

func (h *HashEmbedder) add(acc []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

type hashFactory struct{}

func (f *hashFactory) Name() string { return ProviderHash }

func (f *hashFactory) Description() string {
	return "Deterministic feature-hashing embedder, no text generation"
}

// DetectEnvironment always reports availability at the lowest priority.
func (f *hashFactory) DetectEnvironment() (int, bool) { return 0, true }

func (f *hashFactory) NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error) {
	return NewHashEmbedder(dimension), nil
}

// NewGenerator returns nil: callers fall back to statistical generation.
func (f *hashFactory) NewGenerator(cfg core.AIConfig) (core.TextGenerator, error) {
	return nil, nil
}
