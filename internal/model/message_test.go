package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAcceptsBothShapes(t *testing.T) {
	bare := []byte(`[{"message_id":"m1","sender":"customer","message":"hi","created_at":"2026-01-01T00:00:00Z"}]`)
	wrapped := []byte(`{"messages":[{"message_id":"m1","sender":"customer","message":"hi","created_at":"2026-01-01T00:00:00Z"}]}`)

	var h1, h2 History
	require.NoError(t, json.Unmarshal(bare, &h1))
	require.NoError(t, json.Unmarshal(wrapped, &h2))

	require.Len(t, h1.Messages, 1)
	assert.Equal(t, h1.Messages, h2.Messages)
	assert.Equal(t, "m1", h1.Messages[0].ID)
}

func TestHistoryRejectsMalformedPayload(t *testing.T) {
	var h History
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &h))
}

func TestIsUnusedSuggestion(t *testing.T) {
	cases := []struct {
		name string
		meta map[string]any
		want bool
	}{
		{"no meta", nil, false},
		{"plain message", map[string]any{"channel": "web"}, false},
		{"unused suggestion", map[string]any{"bot_suggestion": true}, true},
		{"string flag", map[string]any{"bot_suggestion": "true"}, true},
		{"used suggestion", map[string]any{"bot_suggestion": true, "used_by_agent": true}, false},
		{"false flag", map[string]any{"bot_suggestion": false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Meta: tc.meta}
			assert.Equal(t, tc.want, m.IsUnusedSuggestion())
		})
	}
}

func TestConfirmedIsClientOnly(t *testing.T) {
	data, err := json.Marshal(Message{ID: "m1", Confirmed: true})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Confirmed")
	assert.NotContains(t, string(data), "confirmed")
}
