package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GenerateText(t *testing.T) {
	var mu sync.Mutex
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "Olá {name}, como posso ajudar?"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	f := &Factory{}
	generator, err := f.NewGenerator(core.AIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := generator.GenerateText(context.Background(), "Gere um template", core.GenerateOptions{
		MaxTokens: 300,
		System:    "Responda apenas com o template.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá {name}, como posso ajudar?", text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, DefaultModel, got["model"])
	assert.EqualValues(t, 300, got["max_tokens"])
	assert.NotNil(t, got["system"])
}

func TestFactory_Capabilities(t *testing.T) {
	f := &Factory{}

	_, err := f.NewEmbedder(core.AIConfig{APIKey: "k"}, 384)
	assert.True(t, errors.Is(err, ai.ErrCapabilityUnsupported))

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = f.NewGenerator(core.AIConfig{})
	assert.True(t, errors.Is(err, core.ErrMissingConfiguration))
}
