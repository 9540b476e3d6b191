package moderation

// FlagEvent is published to moderation.flagged when a relayed message
// matches the denylist. The moderator sink persists it and forwards it to
// the admin chat.
type FlagEvent struct {
	SenderID  int64  `json:"sender_id"`
	PartnerID int64  `json:"partner_id"`
	ChatID    string `json:"chat_id"`
	Term      string `json:"term"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}
