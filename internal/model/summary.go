package model

import "time"

// Summary is a read-only projection of a conversation window, regenerated
// by the backend on demand.
type Summary struct {
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	SentenceCount int       `json:"sentence_count,omitempty"`
	Sentences     []string  `json:"sentences"`
	Topics        []string  `json:"topics,omitempty"`
	Sentiment     string    `json:"sentiment,omitempty"`
	MessageCount  int       `json:"message_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// GenerateSummaryRequest is the body for POST /v1/summary/generate.
type GenerateSummaryRequest struct {
	CustomerID string    `json:"customer_id"`
	AgentID    string    `json:"agent_id,omitempty"`
	Start      time.Time `json:"start,omitempty"`
	End        time.Time `json:"end,omitempty"`
	Sentences  int       `json:"sentences,omitempty"`
}

// Suggestion is a bot-authored candidate reply derived from a thread's
// history. A suggestion only ever transitions from unconsumed to consumed.
type Suggestion struct {
	MessageID string `json:"message_id"`
	Text      string `json:"message"`
	Consumed  bool   `json:"consumed,omitempty"`
}

// UseSuggestionRequest is the body for POST /v1/chat/suggestion/use.
type UseSuggestionRequest struct {
	SuggestionMessageID string `json:"suggestion_message_id"`
	AgentID             string `json:"agent_id"`
	SendAs              string `json:"send_as"`
}
