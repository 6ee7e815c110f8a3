package format

import (
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

var (
	codeFencePattern = regexp.MustCompile("(?s)```.*?```")
	listPattern      = regexp.MustCompile(`(?m)^[ \t]*[-*+•] `)
	boldPattern      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	strikePattern    = regexp.MustCompile(`~~(.+?)~~`)
	headerPattern    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// ToMrkdwn rewrites common Markdown constructs into Slack mrkdwn.
func ToMrkdwn(text string) string {
	out := boldPattern.ReplaceAllString(text, "*$1*")
	out = strikePattern.ReplaceAllString(out, "~$1~")
	out = headerPattern.ReplaceAllString(out, "*$1*")
	out = linkPattern.ReplaceAllString(out, "<$2|$1>")
	return out
}

// ShouldUseBlocks reports whether the text is complex enough for Block Kit:
// code fences, bullet lists, or long content.
func ShouldUseBlocks(text string) bool {
	return strings.Contains(text, "```") || listPattern.MatchString(text) || len(text) > 1000
}

// Blocks splits the text into Block Kit sections, keeping code fences in
// their own sections so Slack renders them verbatim.
func Blocks(text string) []slack.Block {
	var blocks []slack.Block
	last := 0
	for _, span := range codeFencePattern.FindAllStringIndex(text, -1) {
		if part := text[last:span[0]]; strings.TrimSpace(part) != "" {
			blocks = append(blocks, section(ToMrkdwn(part)))
		}
		blocks = append(blocks, section("```"+codeBody(text[span[0]:span[1]])+"```"))
		last = span[1]
	}
	if part := text[last:]; strings.TrimSpace(part) != "" {
		blocks = append(blocks, section(ToMrkdwn(part)))
	}
	return blocks
}

func section(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// codeBody strips the surrounding fences and an optional language tag line.
func codeBody(fenced string) string {
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(fenced, "```"), "```"))
	lines := strings.SplitN(body, "\n", 2)
	if len(lines) == 2 && lines[0] != "" && !strings.Contains(lines[0], " ") {
		return lines[1]
	}
	return body
}
