package types

// Fact is an atomic factual statement produced by compression pass 1
type Fact struct {
	Text         string  `json:"text"`
	MessageIndex int     `json:"message_index"`
	Role         Role    `json:"role"`
	Ordinal      int     `json:"ordinal"` // position within the pass-1 sequence
	Code         bool    `json:"code,omitempty"`
	Score        float64 `json:"score"`
}

// CompressionResult is the output of the two-pass compressor
type CompressionResult struct {
	CompressedContent string `json:"compressed_content"`
	FactsExtracted    int    `json:"facts_extracted"`
	DiscardedTokens   int    `json:"discarded_tokens"`
	Pass1Output       string `json:"pass1_output,omitempty"`
	Pass2Output       string `json:"pass2_output,omitempty"`
	Facts             []Fact `json:"facts,omitempty"`
	Retained          []Fact `json:"retained,omitempty"`
}

// SourceReference points at a span of the canonical conversation
type SourceReference struct {
	MessageIndex int `json:"message_index"`
	Start        int `json:"start"`
	End          int `json:"end"`
}

// VerificationCorrection records a grounding failure and its proposed fix
type VerificationCorrection struct {
	OriginalClaim   string           `json:"original_claim"`
	CorrectedClaim  string           `json:"corrected_claim"`
	Confidence      float64          `json:"confidence"`
	SourceReference *SourceReference `json:"source_reference,omitempty"`
}

// VerificationResult is the output of the grounding verifier
type VerificationResult struct {
	ClaimsChecked  int                      `json:"claims_checked"`
	ClaimsVerified int                      `json:"claims_verified"`
	GroundingScore float64                  `json:"grounding_score"`
	Corrections    []VerificationCorrection `json:"corrections"`
}

// OptimizedPrompt is the final artifact of a successful run
type OptimizedPrompt struct {
	SystemInstruction   string `json:"system_instruction"`
	CriticalConstraints string `json:"critical_constraints"`
	CompressedHistory   string `json:"compressed_history"`
	StateSnapshot       string `json:"state_snapshot"`
	TotalTokens         int    `json:"total_tokens"`
	AppliedCorrections  int    `json:"applied_corrections"`
	DeferredCorrections int    `json:"deferred_corrections"`
}

// Render joins the four sections into a single prompt string
func (p *OptimizedPrompt) Render() string {
	if p == nil {
		return ""
	}
	return "## System\n" + p.SystemInstruction +
		"\n\n## Constraints\n" + p.CriticalConstraints +
		"\n\n## History\n" + p.CompressedHistory +
		"\n\n## State\n" + p.StateSnapshot + "\n"
}
