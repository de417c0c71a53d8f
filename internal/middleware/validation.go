package middleware

import (
	"errors"
	"time"
	"unicode/utf8"
)

// ValidateMessageContent validates message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateParticipantID validates a customer or agent id path segment.
func ValidateParticipantID(id string) error {
	if len(id) == 0 {
		return errors.New("id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("id must be valid UTF-8")
	}
	return nil
}

// ValidateDate validates a YYYY-MM-DD date parameter.
func ValidateDate(date string) error {
	if date == "" {
		return errors.New("date cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	return nil
}
