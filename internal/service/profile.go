package service

import (
	"context"
	"fmt"

	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/user"
)

const topBoardSize = 10

// RequestSetName enters the nickname-edit sub-state.
func (s *Service) RequestSetName(ctx context.Context, userID int64) error {
	return s.requestEdit(ctx, userID, user.EditingName, text(userID, msgAskNewName))
}

// RequestSetAge enters the age-edit sub-state.
func (s *Service) RequestSetAge(ctx context.Context, userID int64) error {
	return s.requestEdit(ctx, userID, user.EditingAge, text(userID, msgAskNewAge))
}

// RequestSetGender enters the gender-edit sub-state. The answer comes back
// as a gender callback.
func (s *Service) RequestSetGender(ctx context.Context, userID int64) error {
	prompt := note{to: userID, payload: notify.TextPayload(msgAskNewGender).
		WithKeyboard(genderKeyboard(CBGenderMale, CBGenderFemale)...)}
	return s.requestEdit(ctx, userID, user.EditingGender, prompt)
}

func (s *Service) requestEdit(ctx context.Context, userID int64, target user.State, prompt note) error {
	s.mu.Lock()

	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: edit %d: %w", userID, err)
	}

	var notes []note
	switch {
	case p == nil:
		notes = append(notes, text(userID, msgNotRegistered))
	case s.isBanned(ctx, p):
		notes = append(notes, text(userID, msgBanned))
	case p.State.CanEdit() != nil:
		notes = append(notes, text(userID, msgEditBusy))
	default:
		if err := s.store.SetState(ctx, userID, target); err != nil {
			notes = append(notes, text(userID, msgTryAgain))
			break
		}
		notes = append(notes, prompt)
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

// Profile sends the caller their own profile card. Allowed even when banned:
// reading your own record is never gated.
func (s *Service) Profile(ctx context.Context, userID int64) error {
	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: profile %d: %w", userID, err)
	}
	if p == nil {
		s.deliver(ctx, []note{text(userID, msgNotRegistered)})
		return nil
	}
	s.deliver(ctx, []note{text(userID, fmtProfile(p))})
	return nil
}

// Referral sends the caller their invite deep link.
func (s *Service) Referral(ctx context.Context, userID int64) error {
	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: referral %d: %w", userID, err)
	}
	if p == nil {
		s.deliver(ctx, []note{text(userID, msgNotRegistered)})
		return nil
	}
	s.deliver(ctx, []note{text(userID, fmtReferralLink(s.cfg.BotUsername, userID))})
	return nil
}

// TopReferrals sends the top-10 referral board.
func (s *Service) TopReferrals(ctx context.Context, userID int64) error {
	users, err := s.store.TopByReferrals(ctx, topBoardSize)
	if err != nil {
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: top referrals: %w", err)
	}
	board := fmtTopBoard("🏆 Top inviters:", users, func(u user.Profile) int { return u.Referrals })
	s.deliver(ctx, []note{text(userID, board)})
	return nil
}

// TopReputation sends the top-10 reputation board.
func (s *Service) TopReputation(ctx context.Context, userID int64) error {
	users, err := s.store.TopByReputation(ctx, topBoardSize)
	if err != nil {
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: top reputation: %w", err)
	}
	board := fmtTopBoard("🏆 Best partners:", users, func(u user.Profile) int { return u.Reputation })
	s.deliver(ctx, []note{text(userID, board)})
	return nil
}

// Rules sends the rules and command reference.
func (s *Service) Rules(ctx context.Context, userID int64) error {
	s.deliver(ctx, []note{text(userID, msgRules)})
	return nil
}
