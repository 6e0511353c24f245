// Package fetch - platform.go provides share-page platform detection and platform-specific selectors.
package fetch

import (
	"net/url"
	"strings"
)

// Platform represents a known assistant whose conversations can be shared by URL.
type Platform string

const (
	// PlatformChatGPT is chatgpt.com / chat.openai.com
	PlatformChatGPT Platform = "chatgpt"
	// PlatformClaude is claude.ai
	PlatformClaude Platform = "claude"
	// PlatformPerplexity is perplexity.ai
	PlatformPerplexity Platform = "perplexity"
	// PlatformMoonshot is kimi.moonshot.cn / kimi.com
	PlatformMoonshot Platform = "moonshot"
	// PlatformDeepSeek is chat.deepseek.com
	PlatformDeepSeek Platform = "deepseek"
	// PlatformGemini is gemini.google.com / g.co/gemini
	PlatformGemini Platform = "gemini"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

var platformHosts = []struct {
	platform Platform
	hosts    []string
}{
	{PlatformChatGPT, []string{"chatgpt.com", "chat.openai.com"}},
	{PlatformClaude, []string{"claude.ai"}},
	{PlatformPerplexity, []string{"perplexity.ai"}},
	{PlatformMoonshot, []string{"moonshot.cn", "kimi.com"}},
	{PlatformDeepSeek, []string{"deepseek.com"}},
	{PlatformGemini, []string{"gemini.google.com", "g.co"}},
}

// DetectPlatform identifies the share-page platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	for _, p := range platformHosts {
		for _, h := range p.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p.platform
			}
		}
	}
	return PlatformUnknown
}

// PlatformContentSelectors returns selectors for the region holding the conversation.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformChatGPT:
		return []string{"main", "[role='presentation']"}
	case PlatformClaude:
		return []string{"[data-testid='conversation']", "main"}
	case PlatformPerplexity:
		return []string{".max-w-threadWidth", "main"}
	default:
		return DefaultTextSelectors()
	}
}

// PlatformNoiseSelectors returns noise exclusion selectors for a specific platform.
func PlatformNoiseSelectors(platform Platform) []string {
	common := []string{
		"form",
		"button",
		"[role='dialog']",
		".cookie-banner",
		".cookie-consent",
		".sr-only",
	}

	switch platform {
	case PlatformChatGPT:
		return append(common,
			"[data-testid='share-header']",
			"[data-testid='copy-turn-action-button']",
		)
	case PlatformClaude:
		return append(common,
			"[data-testid='share-banner']",
		)
	case PlatformPerplexity:
		return append(common,
			".related-questions",
			"[data-testid='sources']",
		)
	default:
		return common
	}
}
