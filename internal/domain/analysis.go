package domain

import (
	"fmt"
	"strings"
	"time"
)

// AnalysisRecord is one successful analysis kept in the history.
type AnalysisRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Description string    `json:"description"`
	Solution    string    `json:"solution"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a session transcript.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// FormatHistory renders turns as the plain-text conversation history sent
// with follow-up questions.
func FormatHistory(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := "User"
		if t.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s", label, t.Text)
	}
	return b.String()
}

// GeneratedArtifact is an image file written by the artifact store.
type GeneratedArtifact struct {
	Name string
	Path string
}
