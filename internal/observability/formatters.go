// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/context-crystal/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// PrintProgress outputs a single progress line for a run.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(status types.PipelineStatus) {
	step := status.CurrentStep
	if status.Error != "" {
		step = status.Error
	}
	fmt.Fprintf(p.out, "[%3.0f%%] %-13s %s\n", status.Progress*100, status.Stage, step)
}

// PrintStatus outputs a summary of a pipeline run.
func (p *Printer) PrintStatus(status *types.PipelineStatus) {
	if status == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:          %s\n", status.ID))
	sb.WriteString(fmt.Sprintf("Conversation: %s\n", status.ConversationID))
	sb.WriteString(fmt.Sprintf("Stage:        %s (%.0f%%)\n", status.Stage, status.Progress*100))
	if status.CurrentStep != "" {
		sb.WriteString(fmt.Sprintf("Step:         %s\n", status.CurrentStep))
	}
	if status.CompletedAt != nil {
		elapsed := status.CompletedAt.Sub(status.StartedAt).Round(time.Millisecond)
		sb.WriteString(fmt.Sprintf("Elapsed:      %s\n", elapsed))
	}
	if status.Error != "" {
		sb.WriteString(fmt.Sprintf("Error:        %s\n", status.Error))
	}

	p.printBox("PIPELINE RUN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMetrics outputs the metrics of a completed run.
func (p *Printer) PrintMetrics(m *types.PipelineMetrics) {
	if m == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tokens:       %d → %d\n", m.OriginalTokens, m.CompressedTokens))
	sb.WriteString(fmt.Sprintf("Ratio:        %.3f\n", m.CompressionRatio))
	sb.WriteString(fmt.Sprintf("Density:      %.4f facts/token\n", m.InformationDensityRatio))
	sb.WriteString(fmt.Sprintf("Grounding:    %.2f\n", m.GroundingScore))
	sb.WriteString(fmt.Sprintf("Cost:         $%.6f (saved $%.6f)\n", m.EstimatedCost, m.EstimatedCostSavings))
	sb.WriteString(fmt.Sprintf("Elapsed:      %.2fs\n", m.TimeElapsed))
	if m.Degenerate {
		sb.WriteString(fmt.Sprintf("\n⚠ degenerate: %s\n", m.DegenerateReason))
	}

	p.printBox("COMPRESSION METRICS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCorrections outputs the grounding corrections found by the verifier.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintCorrections(result *types.VerificationResult) {
	if result == nil || len(result.Corrections) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ ALL CLAIMS GROUNDED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Verified %d of %d claims (score %.2f)\n\n",
		result.ClaimsVerified, result.ClaimsChecked, result.GroundingScore))

	count := min(len(result.Corrections), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := result.Corrections[i]
		sb.WriteString(fmt.Sprintf("⚠ %s\n", c.OriginalClaim))
		if c.CorrectedClaim != "" {
			sb.WriteString(fmt.Sprintf("  → %s\n", c.CorrectedClaim))
		}
		sb.WriteString(fmt.Sprintf("  confidence %.2f", c.Confidence))
		if c.SourceReference != nil {
			sb.WriteString(fmt.Sprintf(", message #%d", c.SourceReference.MessageIndex))
		}
		sb.WriteString("\n")
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(result.Corrections) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more corrections", len(result.Corrections)-maxItemsToShow))
	}

	p.printBox("GROUNDING CORRECTIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPrompt outputs the section sizes of an optimized prompt.
func (p *Printer) PrintPrompt(prompt *types.OptimizedPrompt) {
	if prompt == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total tokens: %d\n\n", prompt.TotalTokens))
	sections := []struct {
		name string
		text string
	}{
		{"System", prompt.SystemInstruction},
		{"Constraints", prompt.CriticalConstraints},
		{"History", prompt.CompressedHistory},
		{"State", prompt.StateSnapshot},
	}
	for _, s := range sections {
		first, _, _ := strings.Cut(strings.TrimSpace(s.text), "\n")
		sb.WriteString(fmt.Sprintf("%-12s %s\n", s.name+":", first))
	}
	if prompt.AppliedCorrections > 0 || prompt.DeferredCorrections > 0 {
		sb.WriteString(fmt.Sprintf("\nCorrections: %d applied, %d deferred\n",
			prompt.AppliedCorrections, prompt.DeferredCorrections))
	}

	p.printBox("OPTIMIZED PROMPT", strings.TrimSuffix(sb.String(), "\n"))
}
