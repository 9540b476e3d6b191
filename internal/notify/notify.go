// Package notify defines the outbound notification boundary. The service
// layer produces transport-agnostic payloads; implementations deliver them
// to the user over a concrete transport.
package notify

import "context"

// MediaKind identifies the type of a forwarded media attachment.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaVoice     MediaKind = "voice"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
	MediaVideoNote MediaKind = "video_note"
)

// MediaRef points at an already-uploaded media object by its transport
// file ID. The relay never downloads media; it forwards references.
type MediaRef struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

// Button is a single inline keyboard button. Data is the callback payload
// returned when the user presses it.
type Button struct {
	Label string
	Data  string
}

// Payload is a single outbound notification: text, an optional media
// reference, and an optional inline keyboard. When Media is set, Text is
// ignored and Media.Caption carries any accompanying text.
type Payload struct {
	Text     string
	Media    *MediaRef
	Keyboard [][]Button
}

// TextPayload builds a plain text payload.
func TextPayload(text string) Payload {
	return Payload{Text: text}
}

// MediaPayload builds a media relay payload.
func MediaPayload(kind MediaKind, fileID, caption string) Payload {
	return Payload{Media: &MediaRef{Kind: kind, FileID: fileID, Caption: caption}}
}

// WithKeyboard returns a copy of the payload with an inline keyboard
// attached.
func (p Payload) WithKeyboard(rows ...[]Button) Payload {
	p.Keyboard = rows
	return p
}

// Notifier delivers payloads to users. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, userID int64, p Payload) error
}
