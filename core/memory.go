package core

import "time"

// Memory is a stored, embedded fragment of a conversation.
// RelevanceScore is boosted on retrieval and decays over time.
type Memory struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Embedding      []float32         `json:"embedding,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RelevanceScore float64           `json:"relevance_score"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ScoredMemory is a search hit. Score is in [0,1].
type ScoredMemory struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// MemoryRef points at a memory used as evidence, with a short excerpt.
type MemoryRef struct {
	MemoryID       string    `json:"memory_id"`
	ConversationID string    `json:"conversation_id"`
	Excerpt        string    `json:"excerpt"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemoryFilter narrows searches and listings. Zero values match everything.
type MemoryFilter struct {
	ConversationID        string            `json:"conversation_id,omitempty"`
	ExcludeConversationID string            `json:"exclude_conversation_id,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	Since                 time.Time         `json:"since,omitempty"`
	Before                time.Time         `json:"before,omitempty"`
}

// Matches reports whether m satisfies every condition of the filter.
func (f MemoryFilter) Matches(m *Memory) bool {
	if m == nil {
		return false
	}
	if f.ConversationID != "" && m.ConversationID != f.ConversationID {
		return false
	}
	if f.ExcludeConversationID != "" && m.ConversationID == f.ExcludeConversationID {
		return false
	}
	if !f.Since.IsZero() && m.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	for k, v := range f.Metadata {
		if m.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
