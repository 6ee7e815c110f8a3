package prompt

import (
	"fmt"
	"strings"

	"slack-claude-runner/internal/model"
)

// SystemPrompt is appended to every analysis run so the CLI knows it is
// answering inside a Slack thread.
const SystemPrompt = "You have received a request in a Slack thread. You may be given a list of previous messages in the thread. Use the thread history to continue the conversation in a natural way."

// Build assembles the final prompt from prior thread turns, the current
// question and any downloaded attachment paths. Pure and deterministic.
func Build(history []model.Turn, current string, attachments []string) string {
	var b strings.Builder
	if len(history) > 1 {
		b.WriteString("Previous conversation in this Slack thread:\n")
		// The last turn is the current message; rendering it again would
		// duplicate the question.
		for _, turn := range history[:len(history)-1] {
			fmt.Fprintf(&b, "%s: %s\n", speaker(turn.Role), turn.Text)
		}
		b.WriteString("\nCurrent question: ")
		b.WriteString(current)
	} else {
		b.WriteString(current)
	}

	if len(attachments) > 0 {
		b.WriteString("\n\nAttached files:\n")
		for i, path := range attachments {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + path)
		}
	}
	return b.String()
}

func speaker(r model.Role) string {
	if r == model.RoleAssistant {
		return "Assistant"
	}
	return "User"
}
