package core

import "strings"

// Role names used in transcripts and model requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content is one role-tagged turn exchanged with a model.
type Content struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UserContent builds a user turn.
func UserContent(text string) Content { return Content{Role: RoleUser, Text: text} }

// AssistantContent builds an assistant turn.
func AssistantContent(text string) Content { return Content{Role: RoleAssistant, Text: text} }

// JoinContents concatenates the text of every turn, one per line.
func JoinContents(contents []Content) string {
	var b strings.Builder
	for i, c := range contents {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Text)
	}
	return b.String()
}
