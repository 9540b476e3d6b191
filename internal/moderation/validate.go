package moderation

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxTextBytes bounds a relayed text body.
	MaxTextBytes = 4096
	// MaxTextChars bounds the character count independently of encoding.
	MaxTextChars = 2000
)

// ValidateText checks that a relayed text body is deliverable. Unlike the
// denylist this is a hard gate: invalid messages are rejected, not flagged.
func ValidateText(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("moderation: empty message")
	}
	if len(text) > MaxTextBytes {
		return fmt.Errorf("moderation: message exceeds %d bytes", MaxTextBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("moderation: message exceeds %d characters", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("moderation: message is not valid UTF-8")
	}
	return nil
}
