package behavior

import (
	"testing"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
)

func TestAdaptResponse(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		appCtx *core.ApplicationContext
		want   string
	}{
		{
			name:   "formal expands contractions",
			text:   "{greeting} {name}, I can't help with that. {closing}",
			appCtx: &core.ApplicationContext{UserName: "Ana", Formality: "formal"},
			want:   "Good day Ana, I cannot help with that. Kind regards.",
		},
		{
			name:   "capitalised contraction",
			text:   "Don't worry, it's fixed.",
			appCtx: &core.ApplicationContext{Formality: "professional"},
			want:   "Do not worry, it is fixed.",
		},
		{
			name:   "casual contracts",
			text:   "{greeting}! I am sure it is fine. {closing}",
			appCtx: &core.ApplicationContext{Formality: "casual"},
			want:   "Hey! I'm sure it's fine. Cheers!",
		},
		{
			name:   "missing name leaves no gap",
			text:   "{greeting} {name}, welcome.",
			appCtx: &core.ApplicationContext{},
			want:   "Hello, welcome.",
		},
		{
			name: "variables fill and unknown placeholders vanish",
			text: "Your order {order_id} is ready {unknown}.",
			appCtx: &core.ApplicationContext{
				Variables: map[string]string{"order_id": "42"},
			},
			want: "Your order 42 is ready.",
		},
		{
			name: "variables override greeting",
			text: "{greeting} {name}!",
			appCtx: &core.ApplicationContext{
				UserName:  "Ana",
				Variables: map[string]string{"Greeting": "Olá"},
			},
			want: "Olá Ana!",
		},
		{
			name:   "nil context",
			text:   "{greeting}! Which day suits you?",
			appCtx: nil,
			want:   "Hello! Which day suits you?",
		},
		{
			name:   "lines are kept",
			text:   "{greeting} {name},\n\n- step one\n- step two",
			appCtx: &core.ApplicationContext{UserName: "Bia"},
			want:   "Hello Bia,\n\n- step one\n- step two",
		},
		{
			name:   "leading gap removed",
			text:   "{name}, your appointment is confirmed.",
			appCtx: &core.ApplicationContext{},
			want:   "your appointment is confirmed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdaptResponse(tt.text, tt.appCtx))
		})
	}
}

func TestNormalizeFormality(t *testing.T) {
	assert.Equal(t, FormalityFormal, normalizeFormality(" Formal "))
	assert.Equal(t, FormalityCasual, normalizeFormality("friendly"))
	assert.Equal(t, "", normalizeFormality("neutral"))
}

func TestLengthScore(t *testing.T) {
	assert.Equal(t, 0.0, lengthScore(""))
	assert.Equal(t, 0.5, lengthScore("Ok."))
	assert.Equal(t, 1.0, lengthScore("Your appointment is confirmed for tomorrow."))
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, 0.7, lengthScore(string(long)))
}
