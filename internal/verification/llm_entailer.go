package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/context-crystal/internal/compression"
	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/prompts"
)

// DefaultCandidates is how many evidence items an LLMEntailer shows the model
const DefaultCandidates = 8

// LLMEntailer asks a language model for an entailment verdict. Evidence is
// narrowed to the lexically closest candidates first.
type LLMEntailer struct {
	client     llm.Client
	tier       llm.ModelTier
	candidates int
}

// NewLLMEntailer creates an entailer backed by client
func NewLLMEntailer(client llm.Client, tier llm.ModelTier) *LLMEntailer {
	if tier == "" {
		tier = llm.TierStandard
	}
	return &LLMEntailer{client: client, tier: tier, candidates: DefaultCandidates}
}

type entailmentResponse struct {
	Supported     bool    `json:"supported"`
	EvidenceIndex int     `json:"evidence_index"`
	Coverage      float64 `json:"coverage"`
}

// Entail implements Entailer
func (e *LLMEntailer) Entail(ctx context.Context, claim string, evidence []Evidence) (Match, error) {
	if len(evidence) == 0 {
		return Match{Evidence: -1}, nil
	}

	shortlist := e.shortlist(claim, evidence)
	var sb strings.Builder
	for i, idx := range shortlist {
		fmt.Fprintf(&sb, "%d: %s\n", i, evidence[idx].Text)
	}

	body, err := prompts.Render("verification.json", "entail-claim", map[string]string{
		"Claim":    claim,
		"Evidence": sb.String(),
	})
	if err != nil {
		return Match{}, err
	}

	responseText, err := e.client.GenerateJSON(ctx, llm.BuildExtractionPrompt(llm.EntailmentSchema(), body), e.tier)
	if err != nil {
		return Match{}, fmt.Errorf("failed to generate entailment verdict: %w", err)
	}

	var resp entailmentResponse
	if err := json.Unmarshal([]byte(llm.ResponseJSON(responseText)), &resp); err != nil {
		return Match{}, fmt.Errorf("failed to parse entailment verdict: %w", err)
	}

	m := Match{Supported: resp.Supported, Evidence: -1, Coverage: clamp01(resp.Coverage)}
	if resp.EvidenceIndex >= 0 && resp.EvidenceIndex < len(shortlist) {
		m.Evidence = shortlist[resp.EvidenceIndex]
	}
	if m.Supported && m.Coverage == 0 {
		m.Coverage = 1
	}
	return m, nil
}

// shortlist returns evidence indices ranked by token coverage of the claim
func (e *LLMEntailer) shortlist(claim string, evidence []Evidence) []int {
	claimTokens := compression.Tokens(claim)
	scores := make([]float64, len(evidence))
	idx := make([]int, len(evidence))
	for i, ev := range evidence {
		idx[i] = i
		scores[i] = Coverage(claimTokens, ev.Text)
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if len(idx) > e.candidates {
		idx = idx[:e.candidates]
	}
	return idx
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
