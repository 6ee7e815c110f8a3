package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-claude-runner/internal/model"
)

func TestBuildBareQuestion(t *testing.T) {
	got := Build(nil, "fix the bug", nil)
	assert.Equal(t, "fix the bug", got)
}

func TestBuildSingleTurnOmitsHeader(t *testing.T) {
	history := []model.Turn{{Role: model.RoleUser, Text: "fix the bug"}}
	got := Build(history, "fix the bug", nil)
	assert.Equal(t, "fix the bug", got)
	assert.NotContains(t, got, "Previous conversation")
}

func TestBuildWithHistory(t *testing.T) {
	history := []model.Turn{
		{Role: model.RoleUser, Text: "what does main.go do?"},
		{Role: model.RoleAssistant, Text: "It starts the server."},
		{Role: model.RoleUser, Text: "now add a health check"},
	}
	got := Build(history, "now add a health check", nil)

	require.True(t, strings.HasPrefix(got, "Previous conversation in this Slack thread:\n"))
	assert.Contains(t, got, "User: what does main.go do?\n")
	assert.Contains(t, got, "Assistant: It starts the server.\n")
	assert.Contains(t, got, "Current question: now add a health check")
	// Current message appears once as the question, not again as history.
	assert.Equal(t, 1, strings.Count(got, "now add a health check"))
}

func TestBuildAttachmentListing(t *testing.T) {
	got := Build(nil, "review this", []string{"/ws/a.txt", "/ws/b.png"})
	assert.Contains(t, got, "Attached files:\n- /ws/a.txt\n- /ws/b.png")
}

func TestBuildDeterministic(t *testing.T) {
	history := []model.Turn{
		{Role: model.RoleUser, Text: "a"},
		{Role: model.RoleAssistant, Text: "b"},
	}
	first := Build(history, "c", []string{"/x"})
	second := Build(history, "c", []string{"/x"})
	assert.Equal(t, first, second)
}
