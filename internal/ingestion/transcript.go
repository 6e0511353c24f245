package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/context-crystal/internal/types"
)

var speakerLabel = regexp.MustCompile(`^(?i)\s*(user|human|you|me|assistant|ai|chatgpt|claude|gemini|deepseek|kimi|perplexity|system)\s*:\s?(.*)$`)

// labelRole maps a speaker label to a role
func labelRole(label string) types.Role {
	switch strings.ToLower(label) {
	case "user", "human", "you", "me":
		return types.RoleUser
	case "system":
		return types.RoleSystem
	default:
		return types.RoleAssistant
	}
}

// ParseTranscript reads pasted text in which turns start with a speaker
// label such as "User:" or "Assistant:". Labels inside fenced code blocks are
// ignored. Text before the first label becomes a user turn.
func ParseTranscript(text string, source types.Source) (*types.Conversation, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var messages []types.Message
	var current *types.Message
	var body []string
	labelled := false
	inFence := false

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if current != nil && content != "" {
			current.Content = content
			messages = append(messages, *current)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := speakerLabel.FindStringSubmatch(line); m != nil {
				flush()
				current = &types.Message{Role: labelRole(m[1])}
				labelled = true
				body = append(body, m[2])
				continue
			}
		}
		if current == nil {
			current = &types.Message{Role: types.RoleUser}
		}
		body = append(body, strings.TrimRight(line, " \t"))
	}
	flush()

	if !labelled {
		return nil, ErrUnlabelledTranscript
	}
	return newConversation(text, source, messages), nil
}

// newConversation wraps messages parsed from text
func newConversation(text string, source types.Source, messages []types.Message) *types.Conversation {
	if source == "" {
		source = types.SourceManual
	}
	return &types.Conversation{
		ID:          fmt.Sprintf("%s_%s", source, computeHash([]byte(text))[:12]),
		Source:      source,
		ExtractedAt: float64(now().Unix()),
		Messages:    messages,
	}
}
