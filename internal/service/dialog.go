package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sinchat/chat-service/internal/matching"
	"github.com/sinchat/chat-service/internal/metrics"
	"github.com/sinchat/chat-service/internal/moderation"
	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/ratelimit"
	"github.com/sinchat/chat-service/internal/user"
)

// StopDialog ends the caller's dialog. EndSession guarantees exactly one of
// two racing participants observes the session, so the teardown notification
// pair is emitted exactly once.
func (s *Service) StopDialog(ctx context.Context, userID int64) error {
	s.mu.Lock()

	sess, ok := s.engine.EndSession(userID)
	if !ok {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(userID, msgNotInDialog)})
		return nil
	}
	notes := s.teardownLocked(ctx, sess)

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

// teardownLocked mirrors an ended session to the store and builds the two
// ended-dialog notices with rating prompts. Caller holds s.mu; the session is
// already gone from the engine.
func (s *Service) teardownLocked(ctx context.Context, sess matching.Session) []note {
	if err := s.store.DeleteChat(ctx, sess.ID); err != nil {
		logf("teardown %s: delete chat: %v", sess.ID, err)
	}
	for _, id := range []int64{sess.UserA, sess.UserB} {
		if err := s.store.SetState(ctx, id, user.Idle); err != nil {
			logf("teardown %s: reset state %d: %v", sess.ID, id, err)
		}
	}
	metrics.ActiveChats.Set(float64(s.engine.SessionCount()))

	return []note{
		{to: sess.UserA, payload: notify.TextPayload(msgDialogEnded).
			WithKeyboard(ratingKeyboard(sess.UserB)...)},
		{to: sess.UserB, payload: notify.TextPayload(msgDialogEnded).
			WithKeyboard(ratingKeyboard(sess.UserA)...)},
	}
}

// Relay forwards a payload to the sender's partner. Flagged text is still
// delivered; the flag goes to the moderator channel as an advisory.
// Relay reads the engine's own lock only, it never takes the op mutex.
func (s *Service) Relay(ctx context.Context, senderID int64, p notify.Payload) error {
	sess, ok := s.engine.SessionOf(senderID)
	if !ok {
		s.healStaleDialog(ctx, senderID)
		msg := msgNotInDialog
		if p.Media != nil {
			msg = msgMediaNoDialog
		}
		s.deliver(ctx, []note{text(senderID, msg)})
		return nil
	}

	if p.Media == nil {
		if err := moderation.ValidateText(p.Text); err != nil {
			s.deliver(ctx, []note{text(senderID, msgBadMessage)})
			return nil
		}
	}

	if !s.allow(ctx, senderID, ratelimit.RuleMessage) {
		metrics.MessagesTotal.WithLabelValues("limited").Inc()
		s.deliver(ctx, []note{text(senderID, msgRelayLimited)})
		return nil
	}

	partnerID := sess.Partner(senderID)
	s.flagIfNeeded(senderID, partnerID, sess.ID, relayText(p))

	if err := s.notifier.Send(ctx, partnerID, p); err != nil {
		return fmt.Errorf("service: relay %d -> %d: %w", senderID, partnerID, err)
	}
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	return nil
}

// relayText extracts the moderatable text of a payload: the body of a text
// message or the caption of a media one.
func relayText(p notify.Payload) string {
	if p.Media != nil {
		return p.Media.Caption
	}
	return p.Text
}

// flagIfNeeded checks the denylist and publishes a flag event. Best-effort:
// a publish failure is logged, the message was already cleared for delivery.
func (s *Service) flagIfNeeded(senderID, partnerID int64, chatID, body string) {
	if s.filter == nil || body == "" {
		return
	}
	res := s.filter.Check(body)
	if !res.Flagged {
		return
	}
	metrics.MessagesTotal.WithLabelValues("flagged").Inc()

	if s.flags == nil {
		logf("flagged message from %d in %s (term %q)", senderID, chatID, res.Term)
		return
	}
	event := moderation.FlagEvent{
		SenderID:  senderID,
		PartnerID: partnerID,
		ChatID:    chatID,
		Term:      res.Term,
		Text:      body,
		Ts:        s.now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logf("flag event marshal: %v", err)
		return
	}
	if err := s.flags.PublishFlagged(data); err != nil {
		logf("flag event publish: %v", err)
	}
}

// healStaleDialog resets a persisted InDialog state that no longer has a
// backing session, e.g. after a crash between teardown steps.
func (s *Service) healStaleDialog(ctx context.Context, userID int64) {
	p, err := s.store.GetUser(ctx, userID)
	if err != nil || p == nil || p.State != user.InDialog {
		return
	}
	if err := s.store.SetState(ctx, userID, user.Idle); err != nil {
		logf("heal state %d: %v", userID, err)
	}
}

// Rate applies a post-dialog 👍/👎 vote. Crossing the ban threshold bans the
// target once and tells them; the rater always gets a thank-you.
func (s *Service) Rate(ctx context.Context, raterID, targetID int64, positive bool) error {
	if raterID == targetID {
		return nil
	}
	delta := 1
	direction := "up"
	if !positive {
		delta = -1
		direction = "down"
	}

	s.mu.Lock()
	rep, crossed, err := s.store.AdjustReputation(ctx, targetID, delta)
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(raterID, msgRateThanks)})
		logf("rate %d -> %d: %v", raterID, targetID, err)
		return nil
	}

	notes := []note{text(raterID, msgRateThanks)}
	if crossed {
		if s.bans != nil {
			if cerr := s.bans.SetBanned(ctx, targetID, true); cerr != nil {
				logf("rate %d: ban cache: %v", targetID, cerr)
			}
		}
		logf("user %d banned at reputation %d", targetID, rep)
		notes = append(notes, text(targetID, msgBanNotice))
	}
	s.mu.Unlock()

	metrics.RatingsTotal.WithLabelValues(direction).Inc()
	s.deliver(ctx, notes)
	return nil
}
