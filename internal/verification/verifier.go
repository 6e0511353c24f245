// Package verification checks compressed content against the canonical
// conversation and proposes corrections for unsupported claims.
package verification

import (
	"context"
	"strings"

	"github.com/jonathan/context-crystal/internal/compression"
	"github.com/jonathan/context-crystal/internal/types"
	"golang.org/x/sync/errgroup"
)

// RemovalMarker replaces a claim that has no support in the source
const RemovalMarker = "[unsupported claim removed]"

// DefaultParallelism bounds concurrent entailment checks
const DefaultParallelism = 4

// Verifier checks every claim of the compressed content
type Verifier struct {
	segmenter   *compression.MarkdownExtractor
	entailer    Entailer
	parallelism int
}

// New creates a Verifier. A nil entailer selects the LexicalEntailer.
func New(entailer Entailer, parallelism int) *Verifier {
	if entailer == nil {
		entailer = NewLexicalEntailer()
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Verifier{
		segmenter:   compression.NewMarkdownExtractor(),
		entailer:    entailer,
		parallelism: parallelism,
	}
}

// Verify decomposes compressed into claims and grounds each one in conv.
// Corrections are returned in claim order.
func (v *Verifier) Verify(ctx context.Context, compressed string, conv *types.Conversation) (*types.VerificationResult, error) {
	if conv == nil {
		return nil, &VerificationError{Message: "canonical conversation is nil"}
	}

	var claims []string
	for _, seg := range v.segmenter.Segments(compressed) {
		claims = append(claims, seg.Text)
	}
	evidence := v.Evidence(conv)

	matches := make([]Match, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallelism)
	for i, claim := range claims {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := v.entailer.Entail(gctx, claim, evidence)
			if err != nil {
				return &VerificationError{Message: "entailment check failed", Claim: claim, Cause: err}
			}
			matches[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	result := &types.VerificationResult{
		ClaimsChecked: len(claims),
		Corrections:   []types.VerificationCorrection{},
	}
	for i, m := range matches {
		if m.Supported {
			result.ClaimsVerified++
			continue
		}
		result.Corrections = append(result.Corrections, correction(claims[i], m, evidence))
	}
	if result.ClaimsChecked > 0 {
		result.GroundingScore = float64(result.ClaimsVerified) / float64(result.ClaimsChecked)
	}
	return result, nil
}

// Evidence splits the canonical conversation into sentences and code blocks
// with byte offsets into their message.
func (v *Verifier) Evidence(conv *types.Conversation) []Evidence {
	var out []Evidence
	for i, msg := range conv.Messages {
		cursor := 0
		for _, seg := range v.segmenter.Segments(msg.Content) {
			ev := Evidence{Text: seg.Text, MessageIndex: i, Start: 0, End: len(msg.Content)}
			if at := strings.Index(msg.Content[cursor:], seg.Text); at >= 0 {
				ev.Start = cursor + at
				ev.End = ev.Start + len(seg.Text)
				cursor = ev.End
			}
			out = append(out, ev)
		}
	}
	return out
}

// correction builds the proposed fix for an unsupported claim
func correction(claim string, m Match, evidence []Evidence) types.VerificationCorrection {
	if m.Evidence >= 0 && m.Evidence < len(evidence) && m.Coverage > 0 {
		ev := evidence[m.Evidence]
		return types.VerificationCorrection{
			OriginalClaim:  claim,
			CorrectedClaim: ev.Text,
			Confidence:     m.Coverage,
			SourceReference: &types.SourceReference{
				MessageIndex: ev.MessageIndex,
				Start:        ev.Start,
				End:          ev.End,
			},
		}
	}
	return types.VerificationCorrection{
		OriginalClaim:  claim,
		CorrectedClaim: RemovalMarker,
		Confidence:     1 - m.Coverage,
	}
}
