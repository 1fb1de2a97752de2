package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, name := range []string{"PORT", "GEMINI_API_KEY", "AI_API_KEY", "DATABASE_URL", "LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_SECRET"} {
		t.Setenv(name, "")
	}

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChat_ScriptedEcho(t *testing.T) {
	out, err := runCLI(t, "hello there\n/history\n/quit\n", "chat", "--provider", "scripted", "--session", "cli:test")
	require.NoError(t, err)

	assert.Contains(t, out, "session cli:test")
	assert.Contains(t, out, "> hello there\n")
	assert.Contains(t, out, "[system] You are a helpful assistant.")
	assert.Contains(t, out, "[user] hello there")
	assert.Contains(t, out, "[assistant] hello there")
}

func TestChat_Reset(t *testing.T) {
	out, err := runCLI(t, "one\n/reset\n/history\n", "chat", "--provider", "scripted")
	require.NoError(t, err)

	assert.Contains(t, out, "history cleared")
	assert.NotContains(t, out, "[user] one")
	assert.Contains(t, out, "session cli:")
}

func TestChat_GeminiRequiresKey(t *testing.T) {
	_, err := runCLI(t, "", "chat", "--provider", "gemini")
	require.ErrorIs(t, err, errMissingAPIKey)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	_, err := runCLI(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "", "chat", "--provider", "scripted", "--log-level", "loud")
	require.Error(t, err)
}
