package verification

import (
	"context"
	"strings"

	"github.com/jonathan/context-crystal/internal/compression"
	"golang.org/x/text/cases"
)

// DefaultSupportThreshold is the token coverage at which a claim counts as supported
const DefaultSupportThreshold = 0.8

// Evidence is one sentence or code block of the canonical conversation
type Evidence struct {
	Text         string
	MessageIndex int
	Start        int
	End          int
}

// Match is an Entailer verdict for a single claim
type Match struct {
	Supported bool
	// Evidence is the index of the closest evidence item, or -1
	Evidence int
	// Coverage is the share of the claim backed by that evidence, in [0, 1]
	Coverage float64
}

// Entailer decides whether a claim is supported by the evidence
type Entailer interface {
	Entail(ctx context.Context, claim string, evidence []Evidence) (Match, error)
}

// LexicalEntailer matches claims by case-folded substring, falling back to
// token coverage against the best evidence sentence. Evidence of opposite
// polarity ("listens" against "does not listen") never supports a claim.
type LexicalEntailer struct {
	SupportThreshold float64
}

// NewLexicalEntailer creates a LexicalEntailer with the default threshold
func NewLexicalEntailer() *LexicalEntailer {
	return &LexicalEntailer{SupportThreshold: DefaultSupportThreshold}
}

// Entail implements Entailer
func (e *LexicalEntailer) Entail(ctx context.Context, claim string, evidence []Evidence) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}

	threshold := e.SupportThreshold
	if threshold <= 0 {
		threshold = DefaultSupportThreshold
	}

	folded := fold(claim)
	if folded == "" {
		return Match{Evidence: -1}, nil
	}
	claimTokens := compression.Tokens(claim)
	negated := compression.Negated(claimTokens)

	for i, ev := range evidence {
		if strings.Contains(fold(ev.Text), folded) && compression.Negated(compression.Tokens(ev.Text)) == negated {
			return Match{Supported: true, Evidence: i, Coverage: 1}, nil
		}
	}

	// best is the closest evidence overall and is what a correction points
	// at; agreeing is the closest evidence of the same polarity.
	best, agreeing := Match{Evidence: -1}, Match{Evidence: -1}
	for i, ev := range evidence {
		c := Coverage(claimTokens, ev.Text)
		if c > best.Coverage {
			best = Match{Evidence: i, Coverage: c}
		}
		if c > agreeing.Coverage && compression.Negated(compression.Tokens(ev.Text)) == negated {
			agreeing = Match{Evidence: i, Coverage: c}
		}
	}
	if agreeing.Coverage >= threshold {
		agreeing.Supported = true
		return agreeing, nil
	}
	return best, nil
}

// Coverage returns the share of distinct informative claim tokens present
// in text. Negations count as informative. Claims made only of stopwords
// are measured on all their tokens.
func Coverage(claimTokens []string, text string) float64 {
	if informative := compression.Informative(claimTokens); len(informative) > 0 {
		claimTokens = informative
	}
	if len(claimTokens) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range compression.Tokens(text) {
		have[t] = true
	}
	seen := make(map[string]bool)
	hit := 0
	for _, t := range claimTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		if have[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(seen))
}

// fold case-folds s and collapses whitespace
func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
