// Package model defines data structures exchanged with the messaging and
// scheduling backend.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderBot      Sender = "bot"
	SenderSystem   Sender = "system"
)

// Message represents one chat message in a conversation thread.
type Message struct {
	ID        string         `json:"message_id"`
	Sender    Sender         `json:"sender"`
	Text      string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`

	// Confirmed is client-side only: false while the message is an
	// optimistic local write not yet present in server history.
	Confirmed bool `json:"-"`
}

// IsUnusedSuggestion reports whether the message is a bot-authored reply
// suggestion the agent has not adopted yet.
func (m Message) IsUnusedSuggestion() bool {
	return metaFlag(m.Meta, "bot_suggestion") && !metaFlag(m.Meta, "used_by_agent")
}

func metaFlag(meta map[string]any, key string) bool {
	v, ok := meta[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	default:
		return v != nil
	}
}

// SaveMessagesRequest is the body for POST /v1/chat/save. AgentID is nil
// for bot-only threads.
type SaveMessagesRequest struct {
	CustomerID string    `json:"customer_id"`
	AgentID    *string   `json:"agent_id"`
	Messages   []Message `json:"messages"`
}

// History is the decoded payload of GET /v1/chat/history. The backend has
// emitted both a bare message array and a wrapping object over time; both
// shapes are accepted.
type History struct {
	Messages []Message
}

func (h *History) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &h.Messages)
	}
	var wrapped struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	h.Messages = wrapped.Messages
	return nil
}
