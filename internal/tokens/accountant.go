// Package tokens provides token estimation, ratio and cost accounting for pipeline text.
// Token counting is model-family specific, so callers depend on the Accountant interface.
package tokens

import (
	"math"
	"unicode/utf8"
)

// DefaultCharsPerToken is the ~4 characters per token rule used for English text.
const DefaultCharsPerToken = 4.0

// Accountant counts tokens and derives ratios and costs.
type Accountant interface {
	// Estimate returns a deterministic, non-negative token count for text
	Estimate(text string) int
	// Ratio returns a/b, or 0 when b is 0
	Ratio(a, b int) float64
	// Cost returns the price of tokens at rate USD per million tokens
	Cost(tokens int, rate float64) float64
}

// Heuristic estimates tokens from the rune count of the text.
type Heuristic struct {
	CharsPerToken float64
}

// NewHeuristic returns a Heuristic accountant using DefaultCharsPerToken.
func NewHeuristic() *Heuristic {
	return &Heuristic{CharsPerToken: DefaultCharsPerToken}
}

// Estimate rounds the rune count divided by CharsPerToken up to the next token.
func (h *Heuristic) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	cpt := h.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	return int(math.Ceil(float64(n) / cpt))
}

// Ratio returns a/b, or 0 when b is 0.
func (h *Heuristic) Ratio(a, b int) float64 {
	return Ratio(a, b)
}

// Cost returns the price of tokens at rate USD per million tokens.
func (h *Heuristic) Cost(tokens int, rate float64) float64 {
	return Cost(tokens, rate)
}

// Ratio returns a/b, or 0 when b is 0.
func Ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Cost returns the price of tokens at rate USD per million tokens. Negative
// inputs cost nothing.
func Cost(tokens int, rate float64) float64 {
	if tokens <= 0 || rate <= 0 {
		return 0
	}
	return float64(tokens) * rate / 1_000_000
}

// Sum estimates every text with a and returns the total.
func Sum(a Accountant, texts ...string) int {
	total := 0
	for _, t := range texts {
		total += a.Estimate(t)
	}
	return total
}
