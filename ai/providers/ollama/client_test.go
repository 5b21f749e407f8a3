package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu       sync.Mutex
	requests []map[string]interface{}
}

func (r *recorded) all() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]interface{}(nil), r.requests...)
}

func newTestServer(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, body)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embed":
			_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3,0.4]]}`))
		case "/api/chat":
			_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":" Olá, Maria! "},"done":true}` + "\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestClient_Embed(t *testing.T) {
	server, _ := newTestServer(t)
	f := &Factory{}

	embedder, err := f.NewEmbedder(core.AIConfig{BaseURL: server.URL}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.Dimension())

	v, err := embedder.Embed(context.Background(), "dor nas costas")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
}

func TestClient_EmbedTooShort(t *testing.T) {
	server, _ := newTestServer(t)
	f := &Factory{}

	embedder, err := f.NewEmbedder(core.AIConfig{BaseURL: server.URL}, 8)
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "dor nas costas")
	assert.Error(t, err)
}

func TestClient_GenerateText(t *testing.T) {
	server, rec := newTestServer(t)
	f := &Factory{}

	generator, err := f.NewGenerator(core.AIConfig{BaseURL: server.URL, Model: "llama3.2"})
	require.NoError(t, err)

	text, err := generator.GenerateText(context.Background(), "Cumprimente a cliente", core.GenerateOptions{
		MaxTokens:   50,
		Temperature: 0.3,
		System:      "Você é uma atendente.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá, Maria!", text)

	requests := rec.all()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "llama3.2", req["model"])
	assert.Equal(t, false, req["stream"])
	messages, ok := req["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestFactory_BaseURLWithoutScheme(t *testing.T) {
	client, err := newAPIClient(core.AIConfig{BaseURL: "localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
