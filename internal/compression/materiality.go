package compression

import (
	"strings"
	"unicode"

	"github.com/jonathan/context-crystal/internal/types"
	"golang.org/x/text/cases"
)

// stopwords carry no information on their own
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "as": true, "it": true, "its": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "we": true,
	"me": true, "my": true, "your": true, "our": true, "so": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "just": true, "there": true, "here": true,
	"what": true, "which": true, "if": true, "then": true, "than": true,
	"have": true, "has": true, "had": true, "also": true,
}

// negators flip the polarity of a statement and are never stopwords
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "none": true,
	"nothing": true, "neither": true, "nor": true, "cannot": true,
}

// fillers are conversational phrases that carry no facts
var fillers = map[string]bool{
	"thanks": true, "thank you": true, "thank you so much": true, "ok": true,
	"okay": true, "sure": true, "great": true, "got it": true, "hello": true,
	"hi": true, "hey": true, "cool": true, "nice": true, "perfect": true,
	"sounds good": true, "yes": true, "no": true, "awesome": true,
	"let me know": true, "hope this helps": true, "you're welcome": true,
	"good question": true, "of course": true, "certainly": true,
}

// Tokens splits text into case-folded word tokens. Identifier characters
// '_', '.', '-' and '/' are kept inside a token.
func Tokens(s string) []string {
	folded := strings.ReplaceAll(cases.Fold().String(s), "’", "'")
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-' || r == '/' || r == '\'')
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, ".-/'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Informative drops stopwords from a token list
func Informative(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// Negated reports whether a token list contains a negation
func Negated(tokens []string) bool {
	for _, t := range tokens {
		if negators[t] || strings.HasSuffix(t, "n't") {
			return true
		}
	}
	return false
}

// Differs reports whether a and b disagree on any informative token. Two
// sentences that differ only in stopwords say the same thing.
func Differs(a, b string) bool {
	sa, sb := tokenSet(a), tokenSet(b)
	for t := range sa {
		if !sb[t] && !stopwords[t] {
			return true
		}
	}
	for t := range sb {
		if !sa[t] && !stopwords[t] {
			return true
		}
	}
	return false
}

// Key is the normalised form of a fact used for exact-duplicate detection
func Key(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Jaccard returns the token-set Jaccard similarity of two texts
func Jaccard(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokens(s) {
		set[t] = true
	}
	return set
}

// roleWeight scales materiality by who said it. Requirements usually come
// from the user; system messages set ground rules.
func roleWeight(r types.Role) float64 {
	switch r {
	case types.RoleSystem:
		return 1.1
	case types.RoleAssistant:
		return 0.9
	default:
		return 1.0
	}
}

// Materiality scores how much information a fact carries, in [0, 1.5].
func Materiality(f types.Fact) float64 {
	if f.Code {
		return 1.0 * roleWeight(f.Role)
	}
	tokens := Tokens(f.Text)
	if len(tokens) == 0 || fillers[strings.Join(tokens, " ")] {
		return 0
	}

	informative := 0
	digits, identifiers := false, false
	for _, t := range tokens {
		if stopwords[t] || fillers[t] {
			continue
		}
		informative++
		if strings.IndexFunc(t, unicode.IsDigit) >= 0 {
			digits = true
		}
		if strings.ContainsAny(t, "_./") {
			identifiers = true
		}
	}
	if informative == 0 {
		return 0
	}

	score := float64(informative) / 6
	if score > 1 {
		score = 1
	}
	if digits {
		score += 0.2
	}
	if identifiers || strings.Contains(f.Text, "`") {
		score += 0.2
	}
	score *= roleWeight(f.Role)
	if score > 1.5 {
		score = 1.5
	}
	return score
}
