package progress

import (
	"strings"
	"time"
)

// WebSocket message kinds exchanged on the interactive channel.
const (
	KindFeedback      = "feedback"
	KindHeartbeat     = "heartbeat"
	KindStageComplete = "stage_complete"
	KindError         = "error"
	KindResponse      = "response"
	KindProgress      = "progress"
)

// Message is the JSON frame sent over both WebSocket endpoints.
type Message struct {
	Type      string      `json:"type"`
	Stage     string      `json:"stage,omitempty"`
	Content   string      `json:"content,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewMessage(kind, stage, content string, data interface{}) Message {
	return Message{Type: kind, Stage: stage, Content: content, Data: data, Timestamp: time.Now().UTC()}
}

var acknowledgements = map[string]struct{}{
	"yes":        {},
	"ok":         {},
	"okay":       {},
	"approve":    {},
	"approved":   {},
	"looks good": {},
	"continue":   {},
	"proceed":    {},
	"go ahead":   {},
	"next":       {},
}

// IsAcknowledgement reports whether a reviewer reply approves the stage as is.
// Anything else is treated as feedback.
func IsAcknowledgement(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!")
	normalized = strings.Join(strings.Fields(normalized), " ")
	_, ok := acknowledgements[normalized]
	return ok
}
