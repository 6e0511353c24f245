package ingestion

import (
	"strings"
)

// invisible runes left behind by share-page renderers
var invisible = strings.NewReplacer(
	"\u00a0", " ",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// CleanTranscript normalizes scraped transcript text before it is split into
// turns. Line endings become LF, prose lines lose repeated inner spaces and
// trailing blanks, and runs of blank lines shrink to one. Lines inside ```
// fences are kept byte for byte apart from trailing whitespace.
func CleanTranscript(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var (
		out     []string
		inFence bool
		blank   bool
	)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, strings.TrimSpace(line))
			blank = false
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}

		line = invisible.Replace(line)
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, tidyProse(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// tidyProse keeps the indentation of a prose line and collapses the rest.
func tidyProse(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := len(line) - len(body)
	return strings.Repeat(" ", indent) + strings.Join(strings.Fields(body), " ")
}
