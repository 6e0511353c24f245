package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "AtomicFacts")
	Description string        // System prompt preamble describing the extraction task
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string"
	Description string // Description for the LLM
	Required    bool
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Use only information present in the text, do not invent or summarize.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// ResponseJSON returns the JSON payload of a model response. Models wrap
// payloads in ``` fences or lead with a sentence even in JSON mode, so the
// fence is stripped and the first complete object or array is returned.
// Text holding no valid payload comes back trimmed for the decoder to reject.
func ResponseJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = text[3:]
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
			text = text[nl+1:]
		}
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}

	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if n := balancedLen(text[start:]); n > 0 && json.Valid([]byte(text[start:start+n])) {
			return text[start : start+n]
		}
	}
	return text
}

// balancedLen returns the length of the bracketed value at the start of s,
// or 0 when it never closes. Brackets inside JSON strings are ignored.
func balancedLen(s string) int {
	depth, inString, escaped := 0, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}

// --- Predefined Schemas ---

// AtomicFactsSchema returns the schema used to decompose one message into
// standalone factual statements.
func AtomicFactsSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "AtomicFacts",
		Description: `You decompose a single conversation message into atomic facts.
Each fact is one self-contained statement that can be checked on its own.
Keep names, numbers, identifiers and code literally as written.`,
		Fields: []SchemaField{
			{
				Name:        "facts",
				Type:        "[\"string\"]",
				Description: "Atomic facts in the order they appear in the message",
				Required:    true,
			},
		},
	}
}

// EntailmentSchema returns the schema used to judge whether evidence supports a claim.
func EntailmentSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "Entailment",
		Description: `You check whether a claim is supported by evidence excerpts from a conversation.
A claim is supported only if the evidence states it or directly implies it.`,
		Fields: []SchemaField{
			{
				Name:        "supported",
				Type:        "boolean",
				Description: "True if the evidence entails the claim",
				Required:    true,
			},
			{
				Name:        "evidence_index",
				Type:        "number",
				Description: "Index of the closest evidence excerpt, or -1",
				Required:    true,
			},
			{
				Name:        "coverage",
				Type:        "number",
				Description: "Fraction of the claim backed by the evidence, 0 to 1",
				Required:    true,
			},
		},
	}
}

// TranscriptSchema returns the schema used to split pasted, unlabelled chat
// text into turns.
func TranscriptSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "Transcript",
		Description: `You split a pasted chat transcript into its turns.
Assign each turn the role "user" or "assistant". Copy every turn's text verbatim.`,
		Fields: []SchemaField{
			{
				Name:        "turns",
				Type:        "[{\"role\": string, \"content\": string}]",
				Description: "Turns in conversational order",
				Required:    true,
			},
		},
	}
}
