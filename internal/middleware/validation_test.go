package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2026-09-01"))
	assert.Error(t, ValidateDate(""))
	assert.Error(t, ValidateDate("09/01/2026"))
	assert.Error(t, ValidateDate("2026-13-40"))
}

func TestValidateParticipantID(t *testing.T) {
	assert.NoError(t, ValidateParticipantID("agent-1"))
	assert.Error(t, ValidateParticipantID(""))
	assert.Error(t, ValidateParticipantID(strings.Repeat("x", 300)))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(""))
	assert.Error(t, ValidateMessageContent(strings.Repeat("x", 100001)))
}
