package compression

import (
	"context"
	"strings"
	"unicode"

	"github.com/jonathan/context-crystal/internal/types"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FactExtractor decomposes one message into ordered atomic facts.
// Returned facts carry Text, MessageIndex, Role and Code; ordinals are
// assigned by the caller.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, index int, msg types.Message) ([]types.Fact, error)
}

// MarkdownExtractor is the deterministic FactExtractor. It walks the
// message's Markdown block structure and splits prose blocks into sentences.
// Each fenced or indented code block becomes a single fact.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor creates a MarkdownExtractor with CommonMark parsing
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

// ExtractFacts implements FactExtractor
func (x *MarkdownExtractor) ExtractFacts(_ context.Context, index int, msg types.Message) ([]types.Fact, error) {
	var facts []types.Fact
	for _, seg := range x.Segments(msg.Content) {
		facts = append(facts, types.Fact{
			Text:         seg.Text,
			MessageIndex: index,
			Role:         msg.Role,
			Code:         seg.Code,
		})
	}
	return facts, nil
}

// Segment is one atomic unit of a Markdown document
type Segment struct {
	Text string
	Code bool
}

// Segments splits Markdown content into sentences and code blocks, in document order.
func (x *MarkdownExtractor) Segments(content string) []Segment {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	src := []byte(content)
	doc := x.md.Parser().Parse(text.NewReader(src))

	var out []Segment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if code := strings.TrimRight(blockText(n, src, "\n"), "\n"); strings.TrimSpace(code) != "" {
				out = append(out, Segment{Text: code, Code: true})
			}
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			for _, s := range SplitSentences(cleanInline(blockText(n, src, " "))) {
				out = append(out, Segment{Text: s})
			}
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock, ast.KindThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

// blockText joins the raw source lines of a leaf block
func blockText(n ast.Node, src []byte, sep string) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimRight(string(seg.Value(src)), "\r\n"))
	}
	return strings.Join(parts, sep)
}

// cleanInline drops emphasis markers and collapses whitespace
func cleanInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.Join(strings.Fields(s), " ")
}

// SplitSentences splits prose at terminal punctuation followed by whitespace
// and an uppercase letter, digit or opening quote.
func SplitSentences(s string) []string {
	runes := []rune(strings.TrimSpace(s))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isCloser(runes[j]) {
			j++
		}
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k < len(runes) && startsSentence(runes[k]) {
			if sentence := strings.TrimSpace(string(runes[start:j])); sentence != "" {
				out = append(out, sentence)
			}
			start = k
			i = k - 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '.' || r == '!' || r == '?'
}

func startsSentence(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '"' || r == '(' || r == '`'
}
