package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/context-crystal/internal/types"
)

const (
	untitledChat   = "Untitled Chat"
	unknownGPTSlug = "gpt-unknown"
)

type chatgptExport struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Title          *string                `json:"title"`
	CreateTime     *float64               `json:"create_time"`
	Mapping        map[string]chatgptNode `json:"mapping"`
}

type chatgptNode struct {
	Message  *chatgptMessage `json:"message"`
	Parent   *string         `json:"parent"`
	Children []string        `json:"children"`
}

type chatgptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"content"`
	Metadata struct {
		ModelSlug string `json:"model_slug"`
	} `json:"metadata"`
}

// ParseChatGPTExport decodes a ChatGPT data export (conversations.json) or a
// single conversation object from it. System and tool messages and messages
// without text are skipped. Messages are ordered by create time; messages
// without one follow in tree order.
func ParseChatGPTExport(data []byte) ([]*types.Conversation, error) {
	var items []chatgptExport
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
		}
	} else {
		var item chatgptExport
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
		}
		items = []chatgptExport{item}
	}

	var convs []*types.Conversation
	for _, item := range items {
		if item.Mapping == nil {
			continue
		}
		convs = append(convs, item.conversation())
	}
	if len(convs) == 0 {
		return nil, fmt.Errorf("%w: no conversation with a message mapping", ErrInvalidExport)
	}
	return convs, nil
}

func (e chatgptExport) conversation() *types.Conversation {
	var messages []types.Message
	for _, id := range e.treeOrder() {
		if msg, ok := e.Mapping[id].message(); ok {
			messages = append(messages, msg)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return sortKey(messages[i]) < sortKey(messages[j])
	})

	id := e.ID
	if id == "" {
		id = e.ConversationID
	}
	if id == "" {
		id = fmt.Sprintf("chatgpt_%d", now().Unix())
	}
	extractedAt := float64(now().Unix())
	if e.CreateTime != nil {
		extractedAt = *e.CreateTime
	}
	title := untitledChat
	if e.Title != nil && strings.TrimSpace(*e.Title) != "" {
		title = *e.Title
	}

	md := &types.ConversationMetadata{Title: title}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant {
			md.Model = messages[i].Model
			break
		}
	}

	return &types.Conversation{
		ID:          id,
		Source:      types.SourceChatGPT,
		ExtractedAt: extractedAt,
		Messages:    messages,
		Metadata:    md,
	}
}

// treeOrder walks the mapping depth-first from its roots, then appends any
// nodes the walk could not reach.
func (e chatgptExport) treeOrder() []string {
	var roots []string
	for id, node := range e.Mapping {
		if node.Parent == nil || *node.Parent == "" {
			roots = append(roots, id)
			continue
		}
		if _, ok := e.Mapping[*node.Parent]; !ok {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	order := make([]string, 0, len(e.Mapping))
	seen := make(map[string]bool, len(e.Mapping))
	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		node, ok := e.Mapping[id]
		if !ok {
			return
		}
		seen[id] = true
		order = append(order, id)
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	var rest []string
	for id := range e.Mapping {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func (n chatgptNode) message() (types.Message, bool) {
	m := n.Message
	if m == nil {
		return types.Message{}, false
	}
	switch m.Author.Role {
	case "system", "tool":
		return types.Message{}, false
	}

	var sb strings.Builder
	for _, raw := range m.Content.Parts {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			sb.WriteString(s)
			continue
		}
		var part struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &part); err == nil {
			sb.WriteString(part.Text)
		}
	}
	content := sb.String()
	if strings.TrimSpace(content) == "" {
		return types.Message{}, false
	}

	msg := types.Message{Role: types.RoleUser, Content: content, Timestamp: m.CreateTime}
	if m.Author.Role == "assistant" {
		msg.Role = types.RoleAssistant
		msg.Model = m.Metadata.ModelSlug
		if msg.Model == "" {
			msg.Model = unknownGPTSlug
		}
	}
	return msg, true
}

func sortKey(m types.Message) float64 {
	if m.Timestamp == nil {
		return math.Inf(1)
	}
	return *m.Timestamp
}
