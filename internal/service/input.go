package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/user"
)

// HandleText routes a plain text message: registration answer, relay to the
// partner, profile-edit input, or a hint when nothing applies.
func (s *Service) HandleText(ctx context.Context, userID int64, input string) error {
	s.mu.Lock()
	if reg, ok := s.pending[userID]; ok {
		notes := s.registrationInputLocked(userID, reg, input)
		s.mu.Unlock()
		s.deliver(ctx, notes)
		return nil
	}
	s.mu.Unlock()

	// Relay is the hot path; it consults only the engine.
	if _, ok := s.engine.SessionOf(userID); ok {
		return s.Relay(ctx, userID, notify.TextPayload(input))
	}

	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: text input %d: %w", userID, err)
	}

	switch {
	case p == nil:
		s.deliver(ctx, []note{text(userID, msgNotRegistered)})
	case p.State.Editing():
		return s.applyEdit(ctx, p, input)
	case p.State == user.InDialog:
		// Persisted dialog with no engine session: heal and tell the user.
		s.healStaleDialog(ctx, userID)
		s.deliver(ctx, []note{text(userID, msgRelayDropped)})
	default:
		s.deliver(ctx, []note{text(userID, msgUnknownInput)})
	}
	return nil
}

// HandleMedia routes a media message: relayed inside a dialog, rejected
// outside one.
func (s *Service) HandleMedia(ctx context.Context, userID int64, kind notify.MediaKind, fileID, caption string) error {
	return s.Relay(ctx, userID, notify.MediaPayload(kind, fileID, caption))
}

// applyEdit consumes the text answer of an Editing* sub-state.
func (s *Service) applyEdit(ctx context.Context, p *user.Profile, input string) error {
	s.mu.Lock()

	var notes []note
	switch p.State {
	case user.EditingName:
		nick := strings.TrimSpace(input)
		if nick == "" || len([]rune(nick)) > maxNicknameLen {
			notes = append(notes, text(p.ID, msgBadNickname))
			break
		}
		if err := s.store.UpdateNickname(ctx, p.ID, nick); err != nil {
			notes = append(notes, text(p.ID, msgTryAgain))
			break
		}
		notes = s.finishEdit(ctx, p.ID, notes)

	case user.EditingAge:
		age, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || !user.ValidAge(age) {
			notes = append(notes, text(p.ID, msgBadAge))
			break
		}
		if err := s.store.UpdateAge(ctx, p.ID, age); err != nil {
			notes = append(notes, text(p.ID, msgTryAgain))
			break
		}
		notes = s.finishEdit(ctx, p.ID, notes)

	default: // EditingGender answers arrive as callbacks
		notes = append(notes, text(p.ID, msgAskNewGender))
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

func (s *Service) finishEdit(ctx context.Context, userID int64, notes []note) []note {
	if err := s.store.SetState(ctx, userID, user.Idle); err != nil {
		logf("finish edit %d: %v", userID, err)
	}
	return append(notes, text(userID, msgProfileSaved))
}
