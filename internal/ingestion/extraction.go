package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/context-crystal/internal/llm"
	"github.com/jonathan/context-crystal/internal/types"
)

// transcriptTurns is the structured output of the segmentation prompt
type transcriptTurns struct {
	Turns []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"turns"`
}

// SegmentWithLLM asks the model to split unlabelled chat text into turns.
func SegmentWithLLM(ctx context.Context, client llm.Client, text string) ([]types.Message, error) {
	if client == nil {
		return nil, errors.New("LLM client required for transcript segmentation")
	}

	prompt := llm.BuildExtractionPrompt(llm.TranscriptSchema(), text)

	// Use TierLite for simple extraction task
	jsonResp, err := client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	jsonResp = llm.ResponseJSON(jsonResp)

	var out transcriptTurns
	if err := json.Unmarshal([]byte(jsonResp), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w (content: %s)", err, jsonResp)
	}

	var messages []types.Message
	for _, turn := range out.Turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := types.RoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = types.RoleAssistant
		}
		messages = append(messages, types.Message{Role: role, Content: content})
	}
	if len(messages) == 0 {
		return nil, errors.New("segmentation returned no turns")
	}
	return messages, nil
}
