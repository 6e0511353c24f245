// Package optimization assembles the final continuation prompt from verified
// compressed content.
package optimization

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/context-crystal/internal/prompts"
	"github.com/jonathan/context-crystal/internal/tokens"
	"github.com/jonathan/context-crystal/internal/types"
	"github.com/jonathan/context-crystal/internal/verification"
)

// DefaultApplyThreshold is the minimum confidence for applying a correction
const DefaultApplyThreshold = 0.5

// maxSnapshotRunes bounds the last user turn quoted in the state snapshot
const maxSnapshotRunes = 280

// Metadata describes the conversation the prompt continues
type Metadata struct {
	Source             types.Source
	Title              string
	MessageCount       int
	LastUserTurn       string
	ContinuationPrompt string
}

// MetadataFor derives Metadata from a canonical conversation
func MetadataFor(conv *types.Conversation, continuation string) Metadata {
	md := Metadata{ContinuationPrompt: strings.TrimSpace(continuation)}
	if conv == nil {
		return md
	}
	md.Source = conv.Source
	md.Title = conv.Title()
	md.MessageCount = len(conv.Messages)
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == types.RoleUser && strings.TrimSpace(conv.Messages[i].Content) != "" {
			md.LastUserTurn = conv.Messages[i].Content
			break
		}
	}
	return md
}

// Optimizer applies corrections and renders the four prompt sections
type Optimizer struct {
	accountant     tokens.Accountant
	applyThreshold float64
}

// New creates an Optimizer. A nil accountant selects the heuristic one.
// applyThreshold is clamped to [0, 1]; 0 applies every correction.
func New(accountant tokens.Accountant, applyThreshold float64) *Optimizer {
	if accountant == nil {
		accountant = tokens.NewHeuristic()
	}
	applyThreshold = max(0, min(applyThreshold, 1))
	return &Optimizer{accountant: accountant, applyThreshold: applyThreshold}
}

// Assemble builds the OptimizedPrompt
func (o *Optimizer) Assemble(comp *types.CompressionResult, ver *types.VerificationResult, md Metadata) (*types.OptimizedPrompt, error) {
	if comp == nil {
		return nil, &OptimizationError{Message: "compression result is nil"}
	}
	if ver == nil {
		ver = &types.VerificationResult{}
	}

	history, applied, deferred := o.applyCorrections(comp.CompressedContent, ver.Corrections)
	if history == "" {
		return nil, &OptimizationError{Message: "compressed history is empty after corrections"}
	}

	system, err := prompts.Render("optimization.json", "system-instruction", map[string]string{
		"Source":   sourceName(md.Source),
		"Title":    titleClause(md.Title),
		"Messages": strconv.Itoa(md.MessageCount),
	})
	if err != nil {
		return nil, &OptimizationError{Message: "failed to render system instruction", Cause: err}
	}

	constraints, err := prompts.Render("optimization.json", "critical-constraints", map[string]string{
		"Grounding": fmt.Sprintf("%.2f", ver.GroundingScore),
		"Deferred":  strconv.Itoa(deferred),
	})
	if err != nil {
		return nil, &OptimizationError{Message: "failed to render constraints", Cause: err}
	}
	if md.ContinuationPrompt != "" {
		line, err := prompts.Render("optimization.json", "critical-constraints-continuation", map[string]string{
			"Continuation": md.ContinuationPrompt,
		})
		if err != nil {
			return nil, &OptimizationError{Message: "failed to render continuation", Cause: err}
		}
		constraints += "\n" + line
	}

	snapshot, err := prompts.Render("optimization.json", "state-snapshot", map[string]string{
		"Messages":     strconv.Itoa(md.MessageCount),
		"Facts":        strconv.Itoa(len(comp.Retained)),
		"LastUserTurn": snippet(md.LastUserTurn),
	})
	if err != nil {
		return nil, &OptimizationError{Message: "failed to render state snapshot", Cause: err}
	}

	out := &types.OptimizedPrompt{
		SystemInstruction:   system,
		CriticalConstraints: constraints,
		CompressedHistory:   history,
		StateSnapshot:       snapshot,
		AppliedCorrections:  applied,
		DeferredCorrections: deferred,
	}
	out.TotalTokens = tokens.Sum(o.accountant,
		out.SystemInstruction, out.CriticalConstraints, out.CompressedHistory, out.StateSnapshot)
	return out, nil
}

// applyCorrections rewrites content with every correction at or above the
// threshold. Corrections below it, or whose claim no longer appears, are deferred.
func (o *Optimizer) applyCorrections(content string, corrections []types.VerificationCorrection) (string, int, int) {
	applied, deferred := 0, 0
	for _, c := range corrections {
		if c.Confidence < o.applyThreshold || c.OriginalClaim == "" {
			deferred++
			continue
		}
		var ok bool
		if c.CorrectedClaim == verification.RemovalMarker {
			content, ok = removeClaim(content, c.OriginalClaim)
		} else {
			content, ok = replaceClaim(content, c.OriginalClaim, c.CorrectedClaim)
		}
		if ok {
			applied++
		} else {
			deferred++
		}
	}
	return tidy(content), applied, deferred
}

// replaceClaim swaps claim for corrected where claim is a whole fenced
// block or a whole sentence of a "- " item
func replaceClaim(content, claim, corrected string) (string, bool) {
	if block := "```\n" + claim + "\n```\n"; strings.Contains(content, block) {
		return strings.Replace(content, block, "```\n"+corrected+"\n```\n", 1), true
	}
	lines := strings.Split(content, "\n")
	i, at := locateClaim(lines, claim)
	if i < 0 {
		return content, false
	}
	lines[i] = lines[i][:at] + corrected + lines[i][at+len(claim):]
	return strings.Join(lines, "\n"), true
}

// removeClaim deletes the fenced block or "- " item holding claim. A claim
// that is one sentence of a longer item is cut from that item only.
func removeClaim(content, claim string) (string, bool) {
	if block := "```\n" + claim + "\n```\n"; strings.Contains(content, block) {
		return strings.Replace(content, block, "", 1), true
	}
	lines := strings.Split(content, "\n")
	i, at := locateClaim(lines, claim)
	if i < 0 {
		return content, false
	}
	rest := strings.Join(strings.Fields(lines[i][2:at]+lines[i][at+len(claim):]), " ")
	if rest == "" {
		return strings.Join(append(lines[:i:i], lines[i+1:]...), "\n"), true
	}
	lines[i] = "- " + rest
	return strings.Join(lines, "\n"), true
}

// locateClaim finds claim as a whole sentence of a "- " item. It returns the
// line and the byte offset of the match, or -1, -1.
func locateClaim(lines []string, claim string) (int, int) {
	for i, line := range lines {
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		for from := 2; from < len(line); {
			at := strings.Index(line[from:], claim)
			if at < 0 {
				break
			}
			at += from
			if rest := line[at+len(claim):]; sentenceStart(line[2:at]) && (rest == "" || rest[0] == ' ') {
				return i, at
			}
			from = at + 1
		}
	}
	return -1, -1
}

// sentenceStart reports whether a claim may begin right after prefix: at
// the start of the item or after a sentence's terminal punctuation.
func sentenceStart(prefix string) bool {
	trimmed := strings.TrimRight(prefix, " ")
	if trimmed == "" {
		return true
	}
	if trimmed == prefix {
		return false
	}
	trimmed = strings.TrimRight(trimmed, `"')]`)
	return trimmed != "" && strings.ContainsAny(trimmed[len(trimmed)-1:], ".!?")
}

// tidy collapses runs of blank lines and trims the ends
func tidy(content string) string {
	lines := strings.Split(content, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || strings.TrimSpace(line) == "-" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func sourceName(s types.Source) string {
	if s == "" {
		return "an assistant"
	}
	return string(s)
}

func titleClause(title string) string {
	if title = strings.TrimSpace(title); title == "" {
		return ""
	}
	return fmt.Sprintf(" titled %q", title)
}

// snippet collapses whitespace and truncates to maxSnapshotRunes
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(none)"
	}
	if r := []rune(s); len(r) > maxSnapshotRunes {
		return string(r[:maxSnapshotRunes]) + "…"
	}
	return s
}
