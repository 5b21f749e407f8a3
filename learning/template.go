package learning

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
)

const maxCommonPhrases = 10

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

var listLineRe = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)

// Tone indicators, English and Portuguese.
var (
	formalIndicators = []string{
		"please", "kindly", "regards", "sincerely", "would you", "i would",
		"por favor", "senhor", "senhora", "atenciosamente", "gostaria", "prezado",
	}
	informalIndicators = []string{
		"hey", "hi", "cool", "awesome", "yeah", "gonna", "no worries",
		"oi", "beleza", "valeu", "tranquilo", "legal", "show",
	}
	helpfulIndicators = []string{
		"help", "assist", "happy to", "glad to", "let me",
		"ajudar", "ajuda", "posso", "fico feliz", "à disposição",
	}
	technicalIndicators = []string{
		"system", "configure", "configuration", "error", "settings", "version", "api", "server",
		"sistema", "configurar", "configuração", "erro", "versão", "servidor",
	}
	empatheticIndicators = []string{
		"sorry", "understand", "unfortunately", "apologize", "i hear you",
		"lamento", "entendo", "desculpe", "infelizmente", "compreendo", "sinto muito",
	}
	explanationIndicators = categoryIndicators[CategoryExplanation]
)

// ExtractResponseTemplate derives a reusable response template from the
// evidence of a pattern. The template text comes from the text generator
// when one is configured, otherwise from the evidence itself. It returns
// nil without error when no acceptable template can be produced.
func (l *Learner) ExtractResponseTemplate(ctx context.Context, p *core.Pattern, evidence []core.Fragment) (*core.ResponseTemplate, error) {
	const op = "learning.ExtractResponseTemplate"

	if p == nil || p.ID == "" {
		return nil, core.NewValidationError(op, "pattern cannot be empty")
	}

	texts := evidenceTexts(evidence)
	if len(texts) == 0 {
		return nil, nil
	}

	phrases := CommonPhrases(texts)
	structure := AnalyzeStructure(texts)
	tone := AnalyzeTone(texts)

	text, method := l.generateTemplate(ctx, p, texts, phrases, structure, tone)
	if text == "" {
		text, method = statisticalTemplate(p, texts, phrases, structure)
	}
	text = strings.TrimSpace(text)

	consistency := textutil.MeanPairwiseJaccard(texts)
	volume := float64(len(texts)) / 10
	if volume > 1 {
		volume = 1
	}
	confidence := 0.3*structure.Completeness() + 0.25*volume + 0.25*consistency + 0.2*method.Quality()

	t := &core.ResponseTemplate{
		ID:            uuid.New().String(),
		PatternID:     p.ID,
		Text:          text,
		Placeholders:  Placeholders(text),
		CommonPhrases: phrases,
		Structure:     structure,
		Tone:          tone,
		Method:        method,
		Confidence:    confidence,
		EvidenceCount: len(texts),
		CreatedAt:     l.now(),
	}

	if t.Text == "" || confidence < 0 || confidence > 1 {
		l.logger.WarnWithContext(ctx, "Template rejected", map[string]interface{}{
			"pattern_id": p.ID,
			"method":     string(method),
			"confidence": confidence,
		})
		return nil, nil
	}

	l.logger.DebugWithContext(ctx, "Response template extracted", map[string]interface{}{
		"pattern_id": p.ID,
		"method":     string(method),
		"confidence": confidence,
		"evidence":   len(texts),
	})
	return t, nil
}

func (l *Learner) generateTemplate(ctx context.Context, p *core.Pattern, texts, phrases []string, s core.TemplateStructure, tone core.ToneProfile) (string, core.TemplateMethod) {
	if l.generator == nil {
		return "", ""
	}

	genCtx, cancel := context.WithTimeout(ctx, l.config.GenerateTimeout)
	defer cancel()

	out, err := l.generator.GenerateText(genCtx, templatePrompt(p, texts, phrases, s, tone), core.GenerateOptions{
		MaxTokens:   l.config.TemplateMaxTokens,
		Temperature: l.config.TemplateTemperature,
		System:      "You write reusable customer-service response templates. Reply with the template text only.",
	})
	if err != nil {
		l.logger.WarnWithContext(ctx, "Template generation failed, using statistical fallback", map[string]interface{}{
			"pattern_id": p.ID,
			"error":      err.Error(),
		})
		return "", ""
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ""
	}
	return out, core.TemplateGenerated
}

func templatePrompt(p *core.Pattern, texts, phrases []string, s core.TemplateStructure, tone core.ToneProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write one response template for situations matching %q.\n", p.Trigger)
	fmt.Fprintf(&b, "Typical action: %s\n", textutil.Excerpt(p.Action, 200))
	fmt.Fprintf(&b, "Dominant tone: %s. Average length: %.0f characters.\n", tone.Dominant(), s.AverageLength)
	if len(phrases) > 0 {
		fmt.Fprintf(&b, "Common phrases: %s\n", strings.Join(phrases, "; "))
	}
	b.WriteString("Examples:\n")
	for i, t := range texts {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", textutil.Excerpt(t, 200))
	}
	b.WriteString("Use the placeholders {greeting}, {name} and {closing} where they fit, ")
	b.WriteString("and keep the language of the examples.")
	return b.String()
}

// statisticalTemplate builds a template from the evidence alone. With
// common phrases it stitches the opening, the sentence that carries the
// most phrases, and the closing; otherwise it falls back to the pattern
// action between greeting and closing placeholders.
func statisticalTemplate(p *core.Pattern, texts, phrases []string, s core.TemplateStructure) (string, core.TemplateMethod) {
	if len(phrases) > 0 {
		body := phraseSentence(texts, phrases)
		if body != "" {
			parts := []string{"{greeting} {name},"}
			if s.Opening != "" && s.Opening != body {
				parts = append(parts, s.Opening)
			}
			parts = append(parts, body)
			if s.Closing != "" && s.Closing != body && s.Closing != s.Opening {
				parts = append(parts, s.Closing)
			} else {
				parts = append(parts, "{closing}")
			}
			return strings.Join(parts, " "), core.TemplateStatistical
		}
	}

	action := strings.TrimSpace(p.Action)
	if action == "" {
		return "", core.TemplateMinimal
	}
	return "{greeting} {name}, " + textutil.Excerpt(action, 300) + " {closing}", core.TemplateMinimal
}

// phraseSentence returns the evidence sentence containing the most common phrases.
func phraseSentence(texts, phrases []string) string {
	best, bestHits := "", 0
	for _, t := range texts {
		for _, sentence := range textutil.Sentences(t) {
			lower := strings.ToLower(sentence)
			hits := 0
			for _, ph := range phrases {
				if strings.Contains(lower, ph) {
					hits++
				}
			}
			if hits > bestHits || (hits == bestHits && hits > 0 && len(sentence) < len(best)) {
				best, bestHits = sentence, hits
			}
		}
	}
	return best
}

// CommonPhrases returns 1–3-grams that occur in at least two texts and are
// not made only of function words. Longer and more frequent phrases come
// first.
func CommonPhrases(texts []string) []string {
	type phrase struct {
		text  string
		n     int
		count int
	}

	counts := make(map[string]*phrase)
	for _, t := range texts {
		tokens := textutil.Tokenize(t)
		seen := make(map[string]bool)
		for n := 1; n <= 3; n++ {
			for _, g := range textutil.NGrams(tokens, n) {
				if seen[g] || textutil.AllStopwords(g) {
					continue
				}
				if n == 1 && utf8.RuneCountInString(g) < 3 {
					continue
				}
				seen[g] = true
				if ph, ok := counts[g]; ok {
					ph.count++
				} else {
					counts[g] = &phrase{text: g, n: n, count: 1}
				}
			}
		}
	}

	list := make([]*phrase, 0, len(counts))
	for _, ph := range counts {
		if ph.count >= 2 {
			list = append(list, ph)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].text < list[j].text
	})

	out := make([]string, 0, maxCommonPhrases)
	for _, ph := range list {
		if len(out) == maxCommonPhrases {
			break
		}
		out = append(out, ph.text)
	}
	return out
}

// AnalyzeStructure describes how the texts are shaped. Opening and closing
// are the most frequent first and last sentences of multi-sentence texts.
func AnalyzeStructure(texts []string) core.TemplateStructure {
	var s core.TemplateStructure
	if len(texts) == 0 {
		return s
	}

	openings := make(map[string]int)
	closings := make(map[string]int)
	var order []string
	totalLen := 0

	for _, t := range texts {
		totalLen += utf8.RuneCountInString(t)
		if strings.Contains(t, "?") {
			s.HasQuestions = true
		}
		for _, line := range strings.Split(t, "\n") {
			if listLineRe.MatchString(line) {
				s.HasLists = true
				break
			}
		}
		if textutil.CountAny(t, explanationIndicators) > 0 {
			s.HasExplanations = true
		}

		sentences := textutil.Sentences(t)
		if len(sentences) < 2 {
			continue
		}
		first, last := sentences[0], sentences[len(sentences)-1]
		if openings[first] == 0 && closings[first] == 0 {
			order = append(order, first)
		}
		openings[first]++
		if openings[last] == 0 && closings[last] == 0 {
			order = append(order, last)
		}
		closings[last]++
	}

	s.Opening = mostFrequent(openings, order)
	s.Closing = mostFrequent(closings, order)
	s.AverageLength = float64(totalLen) / float64(len(texts))
	return s
}

func mostFrequent(counts map[string]int, order []string) string {
	best, bestCount := "", 0
	for _, k := range order {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// AnalyzeTone sums tone indicator hits over the texts.
func AnalyzeTone(texts []string) core.ToneProfile {
	var tp core.ToneProfile
	for _, t := range texts {
		tp.Formal += textutil.CountAny(t, formalIndicators)
		tp.Informal += textutil.CountAny(t, informalIndicators)
		tp.Helpful += textutil.CountAny(t, helpfulIndicators)
		tp.Technical += textutil.CountAny(t, technicalIndicators)
		tp.Empathetic += textutil.CountAny(t, empatheticIndicators)
	}
	return tp
}

// Placeholders lists the distinct {placeholder} names in text, in order.
func Placeholders(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
