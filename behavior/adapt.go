package behavior

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/itsneelabh/gomind-learning/core"
)

// Formality levels understood by AdaptResponse.
const (
	FormalityFormal = "formal"
	FormalityCasual = "casual"
)

var (
	placeholderRe  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	spaceBeforeRe  = regexp.MustCompile(`[ \t]+([,.!?;:])`)
	repeatedRe     = regexp.MustCompile(`([,;:])\s*([,.!?;:])`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)
	leadingPunctRe = regexp.MustCompile(`^[\s,.;:]+`)
)

var greetings = map[string]string{
	FormalityFormal: "Good day",
	FormalityCasual: "Hey",
	"":              "Hello",
}

var closings = map[string]string{
	FormalityFormal: "Kind regards.",
	FormalityCasual: "Cheers!",
	"":              "Let me know if there is anything else I can help with.",
}

// contractions maps the expanded form to the contracted one.
var contractions = []struct {
	expanded   string
	contracted string
}{
	{"cannot", "can't"},
	{"will not", "won't"},
	{"do not", "don't"},
	{"does not", "doesn't"},
	{"did not", "didn't"},
	{"is not", "isn't"},
	{"are not", "aren't"},
	{"i am", "i'm"},
	{"you are", "you're"},
	{"we are", "we're"},
	{"it is", "it's"},
	{"that is", "that's"},
	{"let us", "let's"},
	{"i will", "i'll"},
	{"you will", "you'll"},
	{"we will", "we'll"},
}

type rewrite struct {
	re   *regexp.Regexp
	with string
}

var expandRules, contractRules = buildRules()

func buildRules() (expand, contract []rewrite) {
	for _, c := range contractions {
		expand = append(expand, rewrite{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c.contracted) + `\b`),
			with: c.expanded,
		})
		contract = append(contract, rewrite{
			re:   regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(c.expanded), " ", `\s+`) + `\b`),
			with: c.contracted,
		})
	}
	return expand, contract
}

// AdaptResponse personalises text for appCtx. {name}, {greeting} and
// {closing} are filled from the context (variables override defaults),
// any other placeholder is filled from Variables or removed, and the
// wording is adjusted to the requested formality: formal expands
// contractions, casual contracts them.
func AdaptResponse(text string, appCtx *core.ApplicationContext) string {
	if appCtx == nil {
		appCtx = &core.ApplicationContext{}
	}
	formality := normalizeFormality(appCtx.Formality)

	values := map[string]string{
		"name":     appCtx.UserName,
		"greeting": greetings[formality],
		"closing":  closings[formality],
	}
	for k, v := range appCtx.Variables {
		values[strings.ToLower(k)] = v
	}

	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		return values[strings.ToLower(m[1:len(m)-1])]
	})

	switch formality {
	case FormalityFormal:
		out = applyRules(out, expandRules)
	case FormalityCasual:
		out = applyRules(out, contractRules)
	}

	return tidy(out)
}

func normalizeFormality(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "formal", "professional":
		return FormalityFormal
	case "casual", "informal", "friendly":
		return FormalityCasual
	default:
		return ""
	}
}

func applyRules(s string, rules []rewrite) string {
	for _, r := range rules {
		s = r.re.ReplaceAllStringFunc(s, func(m string) string {
			return matchCase(m, r.with)
		})
	}
	return s
}

// matchCase capitalises the replacement when the match was capitalised.
// A lone "i" is always upper-cased.
func matchCase(match, repl string) string {
	first, _ := utf8.DecodeRuneInString(match)
	if unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(repl)
		repl = string(unicode.ToUpper(r)) + repl[size:]
	}
	if repl == "i" || strings.HasPrefix(repl, "i ") || strings.HasPrefix(repl, "i'") {
		repl = "I" + repl[1:]
	}
	return repl
}

// tidy removes the gaps left by empty placeholders.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = multiSpaceRe.ReplaceAllString(line, " ")
		line = spaceBeforeRe.ReplaceAllString(line, "$1")
		line = repeatedRe.ReplaceAllString(line, "$2")
		line = leadingPunctRe.ReplaceAllString(line, "")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
