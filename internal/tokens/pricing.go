package tokens

import "strings"

// Rate is the input price of a model family in USD per million tokens.
type Rate struct {
	Family string
	Input  float64
}

// DefaultRate is used when no family matches the model name.
var DefaultRate = Rate{Family: "default", Input: 1.00}

// defaultRates are matched by prefix against lower-cased model names, in order.
var defaultRates = []Rate{
	{Family: "gemini-2.5-pro", Input: 1.25},
	{Family: "gemini-2.5-flash-lite", Input: 0.10},
	{Family: "gemini-2.5-flash", Input: 0.30},
	{Family: "gemini", Input: 0.30},
	{Family: "claude-opus", Input: 15.00},
	{Family: "claude-sonnet", Input: 3.00},
	{Family: "claude-haiku", Input: 0.80},
	{Family: "claude", Input: 3.00},
	{Family: "gpt-4o-mini", Input: 0.15},
	{Family: "gpt-4o", Input: 2.50},
	{Family: "gpt", Input: 2.50},
	{Family: "deepseek", Input: 0.27},
	{Family: "moonshot", Input: 0.60},
	{Family: "sonar", Input: 1.00},
}

// Pricing resolves per-million-token rates for model names.
type Pricing struct {
	rates    []Rate
	fallback Rate
}

// DefaultPricing returns the built-in rate table.
func DefaultPricing() *Pricing {
	rates := make([]Rate, len(defaultRates))
	copy(rates, defaultRates)
	return &Pricing{rates: rates, fallback: DefaultRate}
}

// WithRate returns a copy of p where family takes precedence over built-in rates.
func (p *Pricing) WithRate(family string, input float64) *Pricing {
	rates := make([]Rate, 0, len(p.rates)+1)
	rates = append(rates, Rate{Family: strings.ToLower(family), Input: input})
	rates = append(rates, p.rates...)
	return &Pricing{rates: rates, fallback: p.fallback}
}

// RateFor returns the input rate for model.
func (p *Pricing) RateFor(model string) float64 {
	m := strings.ToLower(strings.TrimSpace(model))
	if m != "" {
		for _, r := range p.rates {
			if strings.HasPrefix(m, r.Family) {
				return r.Input
			}
		}
	}
	return p.fallback.Input
}
