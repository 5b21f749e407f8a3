package textutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"Não consigo acessar minha conta", []string{"não", "consigo", "acessar", "minha", "conta"}},
		{"it's 'quoted' v2", []string{"it's", "quoted", "v2"}},
		{"  ...  ", []string{}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if got == nil {
			got = []string{}
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("Qual é o horário? O horário da consulta, por favor")
	assert.Equal(t, []string{"qual", "horário", "consulta", "favor"}, got)

	assert.Empty(t, Keywords("the and of a"))
	assert.True(t, IsStopword("você"))
	assert.False(t, IsStopword("consulta"))
}

func TestJaccard(t *testing.T) {
	a := KeywordSet("reset password account")
	b := KeywordSet("reset account email")

	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.Equal(t, 0.0, Jaccard(nil, nil))
	assert.Equal(t, 0.0, Jaccard(a, nil))
	assert.InDelta(t, 0.5, JaccardText("reset password account", "reset account email"), 1e-9)
}

func TestCosineText(t *testing.T) {
	assert.InDelta(t, 1.0, CosineText("billing invoice", "invoice billing"), 1e-9)
	assert.InDelta(t, 0.0, CosineText("billing", "shipping"), 1e-9)
	assert.Equal(t, 0.0, CosineText("", "billing"))
	// {agendar, consulta} against {agendar, consulta, amanhã}
	assert.InDelta(t, 2/(1.4142135623730951*1.7320508075688772), CosineText("agendar consulta", "agendar consulta amanhã"), 1e-9)
}

func TestCoverage(t *testing.T) {
	assert.InDelta(t, 0.5, Coverage("refund order", "Your order shipped"), 1e-9)
	assert.Equal(t, 0.0, Coverage("the", "anything"))
}

func TestMeanPairwiseJaccard(t *testing.T) {
	assert.Equal(t, 0.0, MeanPairwiseJaccard([]string{"only one"}))
	got := MeanPairwiseJaccard([]string{"alpha beta", "alpha beta", "gamma delta"})
	assert.InDelta(t, 1.0/3.0, got, 1e-9)
}

func TestNGrams(t *testing.T) {
	assert.Equal(t, []string{"a b", "b c"}, NGrams([]string{"a", "b", "c"}, 2))
	assert.Nil(t, NGrams([]string{"a"}, 2))
	assert.Nil(t, NGrams([]string{"a"}, 0))
}

func TestCountAny(t *testing.T) {
	assert.Equal(t, 2, CountAny("Could you try to restart it?", []string{"could you", "restart", "fix"}))
	assert.Equal(t, 0, CountAny("restarting", []string{"restart"}))
}

func TestAllStopwords(t *testing.T) {
	assert.True(t, AllStopwords("of the"))
	assert.False(t, AllStopwords("of billing"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("  short  ", 10))
	assert.Equal(t, "ação...", Excerpt("ação rápida", 4))
	assert.Equal(t, "unbounded text", Excerpt("unbounded text", 0))
}

func TestSentences(t *testing.T) {
	got := Sentences("Hello there. How are you?\nFine!  ")
	assert.Equal(t, []string{"Hello there.", "How are you?", "Fine!"}, got)
	assert.Empty(t, Sentences("   "))
}
