package classifier

import (
	"strings"
	"unicode/utf8"

	"winbridge/internal/constants"
)

const attachmentMarker = "\n[Message includes an image/screenshot]"

const positiveAnswer = "YES"

const systemPromptTemplate = `You are a win classifier for a business/entrepreneurship community. Your job is to identify SIGNIFICANT wins that would be inspiring and valuable to share with the community leader ({{LEADER}}).

A SIGNIFICANT win includes:
- Major financial milestones (e.g., "Just hit my first £1000 day!", "Made £5000 this month")
- Career breakthroughs (e.g., "Quit my 9-5!", "Replaced my salary", "Going full-time")
- Important firsts (e.g., "First client!", "First 5-figure month", "Biggest sale ever")
- Major achievements with proof (screenshots of earnings, testimonials, etc.)
- Record-breaking personal results
- Life-changing business moments

NOT significant:
- Small everyday wins (e.g., "Got a like on my post", "Made £50 today")
- Generic updates without specifics
- Questions or discussions
- Casual conversation
- Minor progress updates

Respond with ONLY "YES" or "NO".`

// SystemPrompt returns the classification instruction naming leaderName
func SystemPrompt(leaderName string) string {
	if leaderName == "" {
		leaderName = "the community leader"
	}
	return strings.ReplaceAll(systemPromptTemplate, "{{LEADER}}", leaderName)
}

// UserPrompt is the message text, with a marker line when the post carried an attachment
func UserPrompt(content string, hasAttachment bool) string {
	if hasAttachment {
		return content + attachmentMarker
	}
	return content
}

// IsPositive normalizes a model answer and compares it with YES.
// Case, surrounding whitespace, quotes and trailing punctuation are ignored.
func IsPositive(answer string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, "\"'`*")
	normalized = strings.TrimRight(normalized, ".!")
	return normalized == positiveAnswer
}

// Fallback is the degraded-mode policy used when the provider cannot answer.
// Any attachment or a post longer than 200 characters counts.
func Fallback(content string, hasAttachment bool) bool {
	return hasAttachment || utf8.RuneCountInString(content) > constants.FallbackSignificantLength
}
