package learning

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
)

// Response categories, in the order ties are broken.
const (
	CategoryQuestion       = "question"
	CategoryExplanation    = "explanation"
	CategoryProblemSolving = "problem_solving"
	CategorySuggestion     = "suggestion"
	CategoryConfirmation   = "confirmation"
	CategoryGeneral        = "general"
)

var categoryOrder = []string{
	CategoryQuestion,
	CategoryExplanation,
	CategoryProblemSolving,
	CategorySuggestion,
	CategoryConfirmation,
	CategoryGeneral,
}

// categoryIndicators are the English and Portuguese keywords per category.
var categoryIndicators = map[string][]string{
	CategoryQuestion: {
		"what", "how", "why", "when", "where", "which", "could you", "can you",
		"qual", "quais", "quando", "onde", "como", "poderia", "gostaria de saber",
	},
	CategoryExplanation: {
		"because", "means", "therefore", "basically", "explain", "in other words",
		"porque", "significa", "portanto", "basicamente", "explicar", "ou seja",
	},
	CategoryProblemSolving: {
		"try", "fix", "solution", "resolve", "solve", "steps", "restart", "check",
		"tente", "solução", "resolver", "passo", "passos", "verifique", "reinicie",
	},
	CategorySuggestion: {
		"recommend", "suggest", "consider", "should", "might", "how about",
		"recomendo", "sugiro", "considere", "deveria", "que tal", "talvez",
	},
	CategoryConfirmation: {
		"yes", "sure", "confirmed", "done", "ok", "okay", "certainly",
		"certo", "claro", "confirmado", "pronto", "perfeito", "combinado", "feito",
	},
}

// responseRoles are fragment roles treated as agent responses.
var responseRoles = map[string]bool{"assistant": true, "agent": true, "bot": true}

// Categorize assigns a response to the category with the most indicator
// hits. A trailing question mark counts as a question hit.
func Categorize(text string) string {
	best, bestScore := CategoryGeneral, 0
	for _, cat := range categoryOrder[:len(categoryOrder)-1] {
		score := textutil.CountAny(text, categoryIndicators[cat])
		if cat == CategoryQuestion && strings.HasSuffix(strings.TrimSpace(text), "?") {
			score++
		}
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	return best
}

// ResponseDetector buckets agent responses by category. A bucket with at
// least MinOccurrences responses becomes a response pattern.
type ResponseDetector struct {
	MinOccurrences int
	MaxConfidence  float64
	TopTokens      int
	Now            func() time.Time
}

func (d *ResponseDetector) Type() core.PatternType { return core.PatternTypeResponse }

type bucket struct {
	responses []core.Fragment
	prompts   []string
}

// Detect implements Detector. When no fragment carries a response role
// every fragment is treated as a response.
func (d *ResponseDetector) Detect(ctx context.Context, conversationID string, fragments []core.Fragment) ([]Detection, error) {
	minOcc := d.MinOccurrences
	if minOcc <= 0 {
		minOcc = 3
	}
	maxConf := d.MaxConfidence
	if maxConf <= 0 {
		maxConf = 0.9
	}
	topN := d.TopTokens
	if topN <= 0 {
		topN = 3
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	hasRoles := false
	for _, f := range fragments {
		if responseRoles[strings.ToLower(f.Role)] {
			hasRoles = true
			break
		}
	}

	buckets := make(map[string]*bucket)
	lastPrompt := ""
	for _, f := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		if hasRoles && !responseRoles[strings.ToLower(f.Role)] {
			lastPrompt = f.Content
			continue
		}

		cat := Categorize(f.Content)
		b, ok := buckets[cat]
		if !ok {
			b = &bucket{}
			buckets[cat] = b
		}
		b.responses = append(b.responses, f)
		if lastPrompt != "" {
			b.prompts = append(b.prompts, lastPrompt)
			lastPrompt = ""
		}
	}

	var out []Detection
	for _, cat := range categoryOrder {
		b, ok := buckets[cat]
		if !ok || len(b.responses) < minOcc {
			continue
		}

		texts := make([]string, len(b.responses))
		for i, f := range b.responses {
			texts[i] = f.Content
		}
		source := b.prompts
		if len(source) == 0 {
			source = texts
		}

		trigger := cat
		if tokens := topKeywords(source, topN); len(tokens) > 0 {
			trigger += " " + strings.Join(tokens, " ")
		}

		n := len(b.responses)
		confidence := float64(n) / 10
		if confidence > maxConf {
			confidence = maxConf
		}

		ts := now()
		p := &core.Pattern{
			ID:         uuid.New().String(),
			Type:       core.PatternTypeResponse,
			Trigger:    trigger,
			Action:     representative(texts),
			Confidence: core.Clamp01(confidence),
			Frequency:  n,
			Metadata:   map[string]string{"category": cat},
			Status:     core.PatternStatusCandidate,
			CreatedAt:  ts,
			LastSeen:   ts,
		}
		p.AddContext(conversationID)

		out = append(out, Detection{
			Pattern:  p,
			Evidence: append([]core.Fragment(nil), b.responses...),
		})
	}
	return out, nil
}

// topKeywords returns the n most frequent keywords across texts, counted
// once per text. Ties are broken alphabetically.
func topKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, t := range texts {
		for _, k := range textutil.Keywords(t) {
			counts[k]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// representative picks the text with the highest mean keyword overlap with
// the others; the earliest wins ties.
func representative(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	sets := make([]map[string]struct{}, len(texts))
	for i, t := range texts {
		sets[i] = textutil.KeywordSet(t)
	}
	best, bestScore := 0, -1.0
	for i := range sets {
		var sum float64
		for j := range sets {
			if i != j {
				sum += textutil.Jaccard(sets[i], sets[j])
			}
		}
		if sum > bestScore {
			best, bestScore = i, sum
		}
	}
	return strings.TrimSpace(texts[best])
}
