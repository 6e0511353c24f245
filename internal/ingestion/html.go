package ingestion

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/types"
)

// shareLayout describes how a share page marks up its turns. Either RoleAttr
// names an attribute on each Turns element carrying the role, or User and
// Assistant select the turns of each role.
type shareLayout struct {
	Turns     string
	RoleAttr  string
	User      string
	Assistant string
}

var (
	attrLayout = shareLayout{Turns: "[data-message-author-role]", RoleAttr: "data-message-author-role"}
	roleLayout = shareLayout{Turns: "[data-role]", RoleAttr: "data-role"}

	platformLayouts = map[fetch.Platform]shareLayout{
		fetch.PlatformChatGPT: attrLayout,
		fetch.PlatformClaude: {
			User:      "[data-testid='user-message']",
			Assistant: ".font-claude-message, [data-testid='assistant-message']",
		},
		fetch.PlatformPerplexity: {
			User:      "[data-testid='query']",
			Assistant: ".prose",
		},
	}

	platformSources = map[fetch.Platform]types.Source{
		fetch.PlatformChatGPT:    types.SourceChatGPT,
		fetch.PlatformClaude:     types.SourceClaude,
		fetch.PlatformPerplexity: types.SourcePerplexity,
		fetch.PlatformMoonshot:   types.SourceMoonshot,
		fetch.PlatformDeepSeek:   types.SourceDeepSeek,
		fetch.PlatformGemini:     types.SourceGemini,
	}

	blockTags = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "blockquote": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"ul": true, "ol": true, "table": true, "tr": true,
	}

	skipTags = map[string]bool{
		"script": true, "style": true, "noscript": true, "button": true, "svg": true,
	}
)

// layoutsFor returns the layouts to try for a platform, most specific first
func layoutsFor(platform fetch.Platform) []shareLayout {
	var out []shareLayout
	if l, ok := platformLayouts[platform]; ok {
		out = append(out, l)
	}
	return append(out, attrLayout, roleLayout)
}

// WaitSelector returns the selector a headless render should wait for
func WaitSelector(platform fetch.Platform) string {
	l := layoutsFor(platform)[0]
	if l.Turns != "" {
		return l.Turns
	}
	return l.User
}

// ParseSharePage reads a conversation from the HTML of a share page. When no
// known turn markup is present, the page's main text is read as a labelled
// transcript.
func ParseSharePage(html, pageURL string, source types.Source) (*types.Conversation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %w", ErrContentExtractionFailed, err)
	}

	platform := fetch.DetectPlatform(pageURL)
	if s, ok := platformSources[platform]; ok {
		source = s
	}
	if source == "" {
		source = types.SourceManual
	}

	var messages []types.Message
	for _, layout := range layoutsFor(platform) {
		if messages = readTurns(doc, layout); len(messages) > 0 {
			break
		}
	}

	if len(messages) == 0 {
		text, err := fetch.ExtractMainText(html, fetch.PlatformContentSelectors(platform), fetch.PlatformNoiseSelectors(platform)...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContentExtractionFailed, err)
		}
		conv, err := ParseTranscript(CleanTranscript(text), source)
		if err != nil {
			return nil, fmt.Errorf("%w: no conversation turns found", ErrContentExtractionFailed)
		}
		messages = conv.Messages
	}

	conv := &types.Conversation{
		ID:          shareID(source, pageURL, html),
		Source:      source,
		ExtractedAt: float64(now().Unix()),
		Messages:    messages,
	}
	if title := pageTitle(doc); title != "" {
		conv.Metadata = &types.ConversationMetadata{Title: title}
	}
	return conv, nil
}

func readTurns(doc *goquery.Document, layout shareLayout) []types.Message {
	var messages []types.Message
	add := func(role types.Role, sel *goquery.Selection) {
		if content := messageText(sel); content != "" {
			messages = append(messages, types.Message{Role: role, Content: content})
		}
	}

	if layout.RoleAttr != "" {
		doc.Find(layout.Turns).Each(func(_ int, sel *goquery.Selection) {
			if sel.ParentsFiltered(layout.Turns).Length() > 0 {
				return
			}
			switch role, _ := sel.Attr(layout.RoleAttr); strings.ToLower(role) {
			case "user", "human":
				add(types.RoleUser, sel)
			case "assistant", "ai", "model", "bot":
				add(types.RoleAssistant, sel)
			}
		})
		return messages
	}

	doc.Find(layout.User + ", " + layout.Assistant).Each(func(_ int, sel *goquery.Selection) {
		if sel.Is(layout.User) {
			add(types.RoleUser, sel)
		} else {
			add(types.RoleAssistant, sel)
		}
	})
	return messages
}

// messageText renders a turn as plain text, keeping block breaks and
// turning <pre> elements into fenced code.
func messageText(sel *goquery.Selection) string {
	var sb strings.Builder
	writeBlocks(sel, &sb)
	return normalizeBlocks(sb.String())
}

func writeBlocks(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			sb.WriteString(strings.ReplaceAll(c.Text(), "\n", " "))
		case skipTags[name]:
		case name == "pre":
			sb.WriteString("\n```\n")
			sb.WriteString(strings.Trim(c.Text(), "\n"))
			sb.WriteString("\n```\n")
		case name == "br":
			sb.WriteString("\n")
		case name == "li":
			sb.WriteString("\n- ")
			writeBlocks(c, sb)
		case blockTags[name]:
			sb.WriteString("\n\n")
			writeBlocks(c, sb)
			sb.WriteString("\n\n")
		default:
			writeBlocks(c, sb)
		}
	})
}

// normalizeBlocks collapses whitespace outside code fences and keeps at most
// one blank line between blocks.
func normalizeBlocks(text string) string {
	var out []string
	inFence := false
	blank := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "```" {
			if !inFence && blank && len(out) > 0 {
				out = append(out, "")
			}
			inFence = !inFence
			out = append(out, "```")
			blank = !inFence
			continue
		}
		if inFence {
			out = append(out, strings.TrimRight(line, " \t"))
			continue
		}
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// shareID derives a stable id from the share URL, or the page content when
// there is no URL
func shareID(source types.Source, pageURL, html string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" && u.Path != "/" {
		if last := path.Base(u.Path); last != "" && last != "." && last != "/" {
			return fmt.Sprintf("%s_%s", source, last)
		}
	}
	return fmt.Sprintf("%s_%s", source, computeHash([]byte(html))[:12])
}
