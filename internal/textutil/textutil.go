// Package textutil holds the lexical helpers shared by the learner, the
// applier and the supervisor: tokenisation, keyword sets, Jaccard overlap,
// n-grams and excerpts.
package textutil

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are English and Portuguese function words ignored by keyword matching.
var stopwords = toSet(
	// English
	"a", "an", "the", "and", "or", "but", "is", "are", "was", "were", "be", "been", "being",
	"to", "of", "in", "on", "at", "for", "with", "by", "from", "it", "its", "this", "that",
	"these", "those", "i", "you", "he", "she", "we", "they", "me", "my", "your", "our",
	"their", "as", "do", "does", "did", "have", "has", "had", "not", "no", "so", "if",
	"then", "than", "what", "which", "who", "how", "when", "where", "why", "can", "could",
	"would", "should", "will", "just", "about", "into", "over", "also", "there", "here",
	"am", "him", "her", "them", "us", "any", "all", "some", "very", "there's", "it's",
	// Portuguese
	"o", "os", "as", "um", "uma", "uns", "umas", "de", "do", "da", "dos", "das", "em",
	"no", "na", "nos", "nas", "e", "ou", "que", "para", "por", "com", "se", "ao", "aos",
	"é", "ser", "foi", "era", "como", "mais", "mas", "seu", "sua", "eu", "você", "ele",
	"ela", "nós", "eles", "elas", "te", "lhe", "isso", "isto", "esse", "essa", "este",
	"esta", "muito", "já", "não", "sim", "pelo", "pela",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopword reports whether w (lower-case) is a function word.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize lower-cases s and splits it on anything that is not a letter,
// digit or apostrophe. Accented letters are kept.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Keywords returns the distinct non-stopword tokens of s in order of first
// appearance. Single-character tokens are dropped.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Tokenize(s) {
		if utf8.RuneCountInString(t) < 2 || IsStopword(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// KeywordSet is Keywords as a set.
func KeywordSet(s string) map[string]struct{} {
	return toSet(Keywords(s)...)
}

// Jaccard is |a∩b| / |a∪b|; two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// JaccardText compares the keyword sets of two strings.
func JaccardText(a, b string) float64 {
	return Jaccard(KeywordSet(a), KeywordSet(b))
}

// CosineText is the cosine similarity of keyword term-frequency vectors.
func CosineText(a, b string) float64 {
	ta, tb := termFreq(a), termFreq(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, va := range ta {
		na += va * va
		if vb, ok := tb[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range tb {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termFreq(s string) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range Tokenize(s) {
		if utf8.RuneCountInString(t) < 2 || IsStopword(t) {
			continue
		}
		tf[t]++
	}
	return tf
}

// Coverage is the fraction of query keywords that appear in text.
// Used as the lexical half of hybrid search.
func Coverage(query, text string) float64 {
	q := Keywords(query)
	if len(q) == 0 {
		return 0
	}
	set := toSet(Tokenize(text)...)
	hit := 0
	for _, k := range q {
		if _, ok := set[k]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(q))
}

// MeanPairwiseJaccard averages JaccardText over every pair of texts.
// Fewer than two texts yield 0.
func MeanPairwiseJaccard(texts []string) float64 {
	if len(texts) < 2 {
		return 0
	}
	sets := make([]map[string]struct{}, len(texts))
	for i, t := range texts {
		sets[i] = KeywordSet(t)
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += Jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// NGrams joins consecutive tokens into n-grams.
func NGrams(tokens []string, n int) []string {
	if n <= 0 || len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

// AllStopwords reports whether every word of phrase is a function word.
func AllStopwords(phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		if !IsStopword(w) {
			return false
		}
	}
	return true
}

// CountAny counts how many of words occur as tokens or substrings of text.
// Multi-word indicators are matched as substrings of the lower-cased text.
func CountAny(text string, words []string) int {
	lower := strings.ToLower(text)
	tokens := toSet(Tokenize(lower)...)
	n := 0
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(lower, w) {
				n++
			}
			continue
		}
		if _, ok := tokens[w]; ok {
			n++
		}
	}
	return n
}

// Excerpt trims s to at most max runes, appending "..." when cut.
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// Sentences splits text on terminal punctuation and newlines.
func Sentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			flush()
		}
	}
	flush()
	return out
}
