package compression

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/prompts"
	"github.com/jonathan/context-crystal/internal/types"
)

// LLMFactExtractor asks a language model to decompose each message. Code
// blocks are still split out deterministically so they stay verbatim.
type LLMFactExtractor struct {
	client   llm.Client
	tier     llm.ModelTier
	markdown *MarkdownExtractor
}

// NewLLMFactExtractor creates an extractor backed by client
func NewLLMFactExtractor(client llm.Client, tier llm.ModelTier) *LLMFactExtractor {
	if tier == "" {
		tier = llm.TierStandard
	}
	return &LLMFactExtractor{client: client, tier: tier, markdown: NewMarkdownExtractor()}
}

type factsResponse struct {
	Facts []string `json:"facts"`
}

// ExtractFacts implements FactExtractor. Each run of prose between code
// blocks is one model call, so facts come back in message order.
func (x *LLMFactExtractor) ExtractFacts(ctx context.Context, index int, msg types.Message) ([]types.Fact, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, nil
	}

	var facts []types.Fact
	var prose []string
	flush := func() error {
		if len(prose) == 0 {
			return nil
		}
		got, err := x.proseFacts(ctx, index, msg.Role, strings.Join(prose, " "))
		prose = prose[:0]
		facts = append(facts, got...)
		return err
	}

	for _, seg := range x.markdown.Segments(msg.Content) {
		if !seg.Code {
			prose = append(prose, seg.Text)
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		facts = append(facts, types.Fact{Text: seg.Text, MessageIndex: index, Role: msg.Role, Code: true})
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (x *LLMFactExtractor) proseFacts(ctx context.Context, index int, role types.Role, prose string) ([]types.Fact, error) {
	prompt, err := buildFactsPrompt(index, role, prose)
	if err != nil {
		return nil, err
	}
	responseText, err := x.client.GenerateJSON(ctx, prompt, x.tier)
	if err != nil {
		return nil, &APICallError{Message: "failed to generate facts from LLM", Cause: err}
	}

	var resp factsResponse
	if err := json.Unmarshal([]byte(llm.ResponseJSON(responseText)), &resp); err != nil {
		return nil, &ParseError{Message: "failed to parse facts response", Cause: err}
	}
	var facts []types.Fact
	for _, text := range resp.Facts {
		if text = strings.Join(strings.Fields(text), " "); text != "" {
			facts = append(facts, types.Fact{Text: text, MessageIndex: index, Role: role})
		}
	}
	return facts, nil
}

// buildFactsPrompt constructs the prompt for one message
func buildFactsPrompt(index int, role types.Role, content string) (string, error) {
	context, err := prompts.Render("compression.json", "message-context", map[string]string{
		"Index":   strconv.Itoa(index),
		"Role":    string(role),
		"Content": content,
	})
	if err != nil {
		return "", err
	}
	return llm.BuildExtractionPrompt(llm.AtomicFactsSchema(), context), nil
}
