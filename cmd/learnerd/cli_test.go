package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/behavior"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes one learnerd invocation and returns what it wrote.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// useSQLite points every invocation of the test at one database file so
// memories survive between commands.
func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("GOMIND_LEARNING_VECTOR_STORE", "sqlite")
	t.Setenv("GOMIND_LEARNING_SQLITE_PATH", filepath.Join(t.TempDir(), "learning.db"))
	t.Setenv("GOMIND_LEARNING_LOG_OUTPUT", "stderr")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "learnerd development (unknown)\n", out)
}

func TestRememberAndSearch(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "remember", "conv-1", "Meu pedido chegou quebrado", "--role", "user")
	require.NoError(t, err)
	var stored core.Memory
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	assert.Equal(t, "conv-1", stored.ConversationID)
	assert.Equal(t, "user", stored.Metadata["role"])

	_, err = run(t, "remember", "conv-2", "Quero trocar o endereço de entrega")
	require.NoError(t, err)

	out, err = run(t, "search", "pedido quebrado", "--limit", "1", "--hybrid")
	require.NoError(t, err)
	var hits []core.ScoredMemory
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, stored.ID, hits[0].Memory.ID)

	out, err = run(t, "search", "pedido", "--conversation", "conv-2")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	for _, h := range hits {
		assert.Equal(t, "conv-2", h.Memory.ConversationID)
	}
}

func TestLearnCmd(t *testing.T) {
	useSQLite(t)

	turns := [][2]string{
		{"user", "Quero agendar uma consulta"},
		{"assistant", "Qual horário você prefere para a consulta?"},
		{"user", "Preciso remarcar minha consulta"},
		{"assistant", "Qual dia você prefere para remarcar a consulta?"},
		{"user", "Posso agendar consulta amanhã?"},
		{"assistant", "Qual período você prefere, manhã ou tarde?"},
	}
	for _, turn := range turns {
		_, err := run(t, "remember", "conv-1", turn[1], "--role", turn[0])
		require.NoError(t, err)
	}

	out, err := run(t, "learn", "conv-1", "--auto-approve", "0.2")
	require.NoError(t, err)
	var result engine.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, 1, result.Detected)
	assert.Equal(t, 1, result.Approved)
}

func TestRespondCmd_Default(t *testing.T) {
	out, err := run(t, "respond", "hello", "--name", "Ana")
	require.NoError(t, err)
	var reply behavior.ResponseResult
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	assert.Equal(t, behavior.MethodDefault, reply.Method)
	assert.Equal(t, core.DefaultConfig().Behavior.DefaultResponse, reply.Text)
}

func TestReportCmd(t *testing.T) {
	out, err := run(t, "report")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Contains(t, status, "report")
	assert.Contains(t, status, "tasks")
	assert.EqualValues(t, 0, status["approved_patterns"])
}

func TestInvalidFlags(t *testing.T) {
	_, err := run(t, "report", "--vector-store", "cassandra")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = run(t, "learn", "conv-1", "--auto-approve", "1.5")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = run(t, "remember", "conv-1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "requires at least 2 arg"))
}

func TestProvidersCmd(t *testing.T) {
	out, err := run(t, "providers")
	require.NoError(t, err)

	var info []ai.ProviderInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))

	names := make([]string, 0, len(info))
	for _, p := range info {
		names = append(names, p.Name)
		if p.Name == ai.ProviderHash {
			assert.True(t, p.Available)
		}
	}
	assert.ElementsMatch(t, []string{ai.ProviderHash, ai.ProviderAnthropic, ai.ProviderBedrock, ai.ProviderGemini, ai.ProviderOllama}, names)
}
