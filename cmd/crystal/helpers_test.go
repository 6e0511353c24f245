package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTranscript = `User: I am writing a CLI in Go. It must run on Linux and macOS.
Assistant: Use cobra for the commands and build with goreleaser.
User: The binary must stay under 20 MB.
Assistant: Strip symbols with -ldflags to keep the binary small.
`

// execute runs the CLI in-process and returns everything written to its output
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// Keep the environment from enabling LLM stages or persistence
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
