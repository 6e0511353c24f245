// Package compression implements the two-pass compressor: atomic fact
// extraction followed by deduplication and materiality filtering.
package compression

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/context-crystal/internal/tokens"
	"github.com/jonathan/context-crystal/internal/types"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config
const (
	DefaultMaterialityThreshold = 0.25
	DefaultDedupeThreshold      = 0.85
	DefaultParallelism          = 4
)

// Config tunes pass 2 and the pass-1 fan-out
type Config struct {
	// MaterialityThreshold drops facts scoring below it
	MaterialityThreshold float64
	// DedupeThreshold merges facts whose token Jaccard reaches it
	DedupeThreshold float64
	// MaxFacts caps retained facts by score; 0 means no cap
	MaxFacts int
	// TargetRatio, when set, caps retained facts at that share of pass-1 facts
	TargetRatio float64
	// PreserveCode keeps code blocks regardless of their score
	PreserveCode bool
	// Parallelism bounds concurrent per-message extraction
	Parallelism int
}

// DefaultConfig returns the default compressor configuration
func DefaultConfig() Config {
	return Config{
		MaterialityThreshold: DefaultMaterialityThreshold,
		DedupeThreshold:      DefaultDedupeThreshold,
		PreserveCode:         true,
		Parallelism:          DefaultParallelism,
	}
}

// Compressor runs both passes over a canonical conversation
type Compressor struct {
	extractor  FactExtractor
	accountant tokens.Accountant
	config     Config
}

// New creates a Compressor. A nil extractor or accountant selects the defaults.
func New(extractor FactExtractor, accountant tokens.Accountant, config Config) *Compressor {
	if extractor == nil {
		extractor = NewMarkdownExtractor()
	}
	if accountant == nil {
		accountant = tokens.NewHeuristic()
	}
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultParallelism
	}
	return &Compressor{extractor: extractor, accountant: accountant, config: config}
}

// Compress runs pass 1 and pass 2. The result is deterministic for identical
// input and configuration.
func (c *Compressor) Compress(ctx context.Context, conv *types.Conversation) (*types.CompressionResult, error) {
	if conv == nil {
		return nil, &CompressionError{Message: "conversation is nil"}
	}

	facts, err := c.extractAll(ctx, conv.Messages)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, &CompressionError{Message: "no facts could be extracted from the conversation"}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	retained := c.condense(facts)
	pass1 := Render(facts)
	pass2 := Render(retained)
	if strings.TrimSpace(pass2) == "" {
		return nil, &CompressionError{Message: "condensation discarded every extracted fact"}
	}

	discarded := c.accountant.Estimate(pass1) - c.accountant.Estimate(pass2)
	if discarded < 0 {
		discarded = 0
	}

	return &types.CompressionResult{
		CompressedContent: pass2,
		FactsExtracted:    len(facts),
		DiscardedTokens:   discarded,
		Pass1Output:       pass1,
		Pass2Output:       pass2,
		Facts:             facts,
		Retained:          retained,
	}, nil
}

// extractAll runs pass 1 per message, in parallel, keeping message order
func (c *Compressor) extractAll(ctx context.Context, messages []types.Message) ([]types.Fact, error) {
	perMessage := make([][]types.Fact, len(messages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Parallelism)
	for i, msg := range messages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			facts, err := c.extractor.ExtractFacts(gctx, i, msg)
			if err != nil {
				return err
			}
			perMessage[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CompressionError{Message: "fact extraction failed", Cause: err}
	}

	var all []types.Fact
	for _, facts := range perMessage {
		for _, f := range facts {
			f.Ordinal = len(all)
			f.Score = Materiality(f)
			all = append(all, f)
		}
	}
	return all, nil
}

// condense is pass 2: dedupe, filter by materiality, cap, restore order
func (c *Compressor) condense(facts []types.Fact) []types.Fact {
	var kept []types.Fact
	keys := make(map[string]bool)
	for _, f := range facts {
		if c.keep(f) && !c.duplicate(f, kept, keys) {
			kept = append(kept, f)
			keys[Key(f.Text)] = true
		}
	}

	limit := c.config.MaxFacts
	if c.config.TargetRatio > 0 {
		budget := int(math.Ceil(float64(len(facts)) * c.config.TargetRatio))
		if budget < 1 {
			budget = 1
		}
		if limit == 0 || budget < limit {
			limit = budget
		}
	}
	if limit > 0 && len(kept) > limit {
		ranked := make([]types.Fact, len(kept))
		copy(ranked, kept)
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Score != ranked[j].Score {
				return ranked[i].Score > ranked[j].Score
			}
			if ranked[i].MessageIndex != ranked[j].MessageIndex {
				return ranked[i].MessageIndex < ranked[j].MessageIndex
			}
			return ranked[i].Ordinal < ranked[j].Ordinal
		})
		kept = ranked[:limit]
		sort.Slice(kept, func(i, j int) bool { return kept[i].Ordinal < kept[j].Ordinal })
	}
	return kept
}

func (c *Compressor) keep(f types.Fact) bool {
	if f.Code && c.config.PreserveCode {
		return true
	}
	return f.Score >= c.config.MaterialityThreshold && f.Score > 0
}

// duplicate reports whether f repeats an earlier kept fact. Near matches
// that change an informative token (a day, a number, a negation) are
// updates, not repeats.
func (c *Compressor) duplicate(f types.Fact, kept []types.Fact, keys map[string]bool) bool {
	if keys[Key(f.Text)] {
		return true
	}
	if f.Code || c.config.DedupeThreshold <= 0 {
		return false
	}
	for _, k := range kept {
		if !k.Code && Jaccard(f.Text, k.Text) >= c.config.DedupeThreshold && !Differs(f.Text, k.Text) {
			return true
		}
	}
	return false
}

// Render formats facts as compact Markdown: one "- " line per prose fact,
// fenced blocks for code, and a blank line between message turns.
func Render(facts []types.Fact) string {
	var sb strings.Builder
	prev := -1
	for _, f := range facts {
		if prev != -1 && f.MessageIndex != prev {
			sb.WriteString("\n")
		}
		prev = f.MessageIndex
		if f.Code {
			sb.WriteString("```\n")
			sb.WriteString(f.Text)
			sb.WriteString("\n```\n")
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(f.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
