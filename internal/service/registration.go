package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/user"
)

const maxNicknameLen = 32

// Start handles first contact. referrer is the deep-link payload of
// /start <referrerID>, or 0 when absent. Referral credit is given when a new
// user arrives through the link and the referrer exists.
func (s *Service) Start(ctx context.Context, userID, referrer int64) error {
	s.mu.Lock()

	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: start %d: %w", userID, err)
	}

	var notes []note
	switch {
	case p != nil && s.isBanned(ctx, p):
		notes = append(notes, text(userID, msgBanned))

	case p != nil:
		notes = append(notes, text(userID, msgAlreadyKnown))

	case s.pending[userID] != nil:
		notes = append(notes, s.registrationPrompt(userID, s.pending[userID].State))

	default:
		reg := &pendingReg{State: user.AwaitingAge}
		if referrer > 0 && referrer != userID {
			reg.Referrer = referrer
			notes = append(notes, s.creditReferral(ctx, referrer)...)
		}
		s.pending[userID] = reg
		notes = append(notes, text(userID, msgAskAge))
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

// creditReferral bumps the referrer's counter if they exist. Best-effort:
// failures are logged, the joining user's flow is never blocked.
func (s *Service) creditReferral(ctx context.Context, referrer int64) []note {
	ref, err := s.store.GetUser(ctx, referrer)
	if err != nil || ref == nil {
		if err != nil {
			logf("referral lookup %d: %v", referrer, err)
		}
		return nil
	}
	if err := s.store.IncrementReferrals(ctx, referrer); err != nil {
		logf("referral credit %d: %v", referrer, err)
		return nil
	}
	return []note{text(referrer, msgReferralJoined)}
}

// registrationPrompt re-issues the question matching the pending stage.
func (s *Service) registrationPrompt(userID int64, stage user.State) note {
	switch stage {
	case user.AwaitingNickname:
		return text(userID, msgAskNickname)
	case user.AwaitingGender:
		return note{to: userID, payload: notify.TextPayload(msgAskGender).
			WithKeyboard(genderKeyboard(CBGenderMale, CBGenderFemale)...)}
	default:
		return text(userID, msgAskAge)
	}
}

// registrationInputLocked consumes one plain-text answer of a pending
// registration. Caller holds s.mu.
func (s *Service) registrationInputLocked(userID int64, reg *pendingReg, input string) []note {
	switch reg.State {
	case user.AwaitingAge:
		age, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || !user.ValidAge(age) {
			return []note{text(userID, msgBadAge)}
		}
		reg.Age = age
		reg.State = user.AwaitingNickname
		return []note{text(userID, msgAskNickname)}

	case user.AwaitingNickname:
		nick := strings.TrimSpace(input)
		if nick == "" || len([]rune(nick)) > maxNicknameLen {
			return []note{text(userID, msgBadNickname)}
		}
		reg.Nickname = nick
		reg.State = user.AwaitingGender
		return []note{s.registrationPrompt(userID, user.AwaitingGender)}

	default: // AwaitingGender: the answer arrives as a callback, not text
		return []note{s.registrationPrompt(userID, user.AwaitingGender)}
	}
}

// ChooseGender consumes a gender callback. It either completes a pending
// registration or applies an EditingGender profile edit.
func (s *Service) ChooseGender(ctx context.Context, userID int64, g user.Gender) error {
	s.mu.Lock()

	if reg, ok := s.pending[userID]; ok {
		notes, err := s.completeRegistrationLocked(ctx, userID, reg, g)
		s.mu.Unlock()
		s.deliver(ctx, notes)
		return err
	}

	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(userID, msgTryAgain)})
		return fmt.Errorf("service: choose gender %d: %w", userID, err)
	}

	var notes []note
	switch {
	case p == nil:
		notes = append(notes, text(userID, msgNotRegistered))
	case p.State == user.EditingGender:
		if err := s.store.UpdateGender(ctx, userID, g); err != nil {
			notes = append(notes, text(userID, msgTryAgain))
			break
		}
		if err := s.store.SetState(ctx, userID, user.Idle); err != nil {
			logf("choose gender %d: reset state: %v", userID, err)
		}
		notes = append(notes, text(userID, msgProfileSaved))
	default:
		notes = append(notes, text(userID, msgUnknownInput))
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

// completeRegistrationLocked turns a finished pending registration into a
// profile row. Premium promo is granted here when the window is open. The
// pending record survives a store failure so the user can retry.
func (s *Service) completeRegistrationLocked(ctx context.Context, userID int64, reg *pendingReg, g user.Gender) ([]note, error) {
	if reg.State != user.AwaitingGender {
		return []note{s.registrationPrompt(userID, reg.State)}, nil
	}

	p := &user.Profile{
		ID:       userID,
		Nickname: reg.Nickname,
		Age:      reg.Age,
		Gender:   g,
		State:    user.Idle,
	}
	if err := s.store.CreateUser(ctx, p); err != nil {
		return []note{text(userID, msgTryAgain)},
			fmt.Errorf("service: register %d: %w", userID, err)
	}
	delete(s.pending, userID)

	notes := []note{text(userID, msgRegistered)}
	if s.promoActive() {
		until := s.now().Add(premiumDuration).Unix()
		if err := s.store.SetPremium(ctx, userID, true, until); err != nil {
			logf("promo grant %d: %v", userID, err)
		} else {
			notes = append(notes, text(userID, msgPromoGranted))
		}
	}
	return notes, nil
}
