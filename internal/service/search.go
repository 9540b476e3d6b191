package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sinchat/chat-service/internal/matching"
	"github.com/sinchat/chat-service/internal/metrics"
	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/ratelimit"
	"github.com/sinchat/chat-service/internal/user"
)

// RequestSearch starts the /search dialogue: it validates the caller and asks
// for the desired partner gender. The queue is not touched until the chat
// type is chosen.
func (s *Service) RequestSearch(ctx context.Context, userID int64) error {
	s.mu.Lock()

	p, notes, err := s.searchGuardLocked(ctx, userID)
	if p != nil {
		if !s.allow(ctx, userID, ratelimit.RuleSearch) {
			notes = append(notes, text(userID, msgSearchLimited))
		} else {
			notes = append(notes, note{to: userID, payload: notify.TextPayload(msgAskSeekGender).
				WithKeyboard(genderKeyboard(CBSeekMale, CBSeekFemale)...)})
		}
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return err
}

// ChooseSeekGender records the desired partner gender and asks for the chat
// type.
func (s *Service) ChooseSeekGender(ctx context.Context, userID int64, g user.Gender) error {
	s.mu.Lock()
	s.pendingSeek[userID] = g
	s.mu.Unlock()

	s.deliver(ctx, []note{{to: userID, payload: notify.TextPayload(msgAskChatType).
		WithKeyboard(chatTypeKeyboard()...)}})
	return nil
}

// ChooseChatType completes the filter and runs the actual search.
func (s *Service) ChooseChatType(ctx context.Context, userID int64, t user.ChatType) error {
	s.mu.Lock()

	seek, ok := s.pendingSeek[userID]
	if !ok {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(userID, msgUnknownInput)})
		return nil
	}
	delete(s.pendingSeek, userID)

	p, notes, err := s.searchGuardLocked(ctx, userID)
	if p == nil {
		s.mu.Unlock()
		s.deliver(ctx, notes)
		return err
	}

	if err := s.store.SetSearchFilters(ctx, userID, seek, t); err != nil {
		logf("save filters %d: %v", userID, err)
	}

	f := matching.Filter{Gender: p.Gender, SeekGender: seek, ChatType: t}
	more, serr := s.beginSearchLocked(ctx, p, f)
	notes = append(notes, more...)

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return serr
}

// searchGuardLocked runs the checks shared by every search entry point:
// registration, ban, premium expiry and state. A nil profile return means the
// caller must stop; the notes explain why.
func (s *Service) searchGuardLocked(ctx context.Context, userID int64) (*user.Profile, []note, error) {
	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, []note{text(userID, msgTryAgain)},
			fmt.Errorf("service: search %d: %w", userID, err)
	}
	if p == nil {
		return nil, []note{text(userID, msgNotRegistered)}, nil
	}
	if s.isBanned(ctx, p) {
		return nil, []note{text(userID, msgBanned)}, nil
	}

	var notes []note
	if p.Premium && p.PremiumUntil > 0 && s.now().Unix() > p.PremiumUntil {
		if err := s.store.SetPremium(ctx, userID, false, p.PremiumUntil); err != nil {
			logf("premium expire %d: %v", userID, err)
		} else {
			p.Premium = false
			notes = append(notes, text(userID, msgPremiumOver))
		}
	}

	switch err := p.State.CanStartSearch(); {
	case errors.Is(err, user.ErrAlreadySearching):
		notes = append(notes, note{to: userID, payload: notify.TextPayload(msgStillQueued).
			WithKeyboard(cancelSearchKeyboard()...)})
		return nil, notes, nil
	case errors.Is(err, user.ErrInDialog):
		notes = append(notes, text(userID, msgInDialogHint))
		return nil, notes, nil
	case err != nil:
		notes = append(notes, text(userID, msgNotRegistered))
		return nil, notes, nil
	}
	return p, notes, nil
}

// beginSearchLocked runs FindOrEnqueue and mirrors the outcome to the store,
// rolling the engine back when the write-through fails. Caller holds s.mu;
// the returned notes are delivered after unlock.
func (s *Service) beginSearchLocked(ctx context.Context, seeker *user.Profile, f matching.Filter) ([]note, error) {
	match, err := s.engine.FindOrEnqueue(seeker.ID, f)
	if errors.Is(err, matching.ErrInSession) {
		return []note{text(seeker.ID, msgInDialogHint)}, nil
	}
	if err != nil {
		return []note{text(seeker.ID, msgTryAgain)},
			fmt.Errorf("service: search %d: %w", seeker.ID, err)
	}

	if !match.Found {
		entry := matching.Entry{UserID: seeker.ID, Filter: f, JoinedAt: s.now()}
		if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
			s.engine.Dequeue(seeker.ID)
			return []note{text(seeker.ID, msgTryAgain)},
				fmt.Errorf("service: enqueue %d: %w", seeker.ID, err)
		}
		if err := s.store.SetState(ctx, seeker.ID, user.Searching); err != nil {
			s.engine.Dequeue(seeker.ID)
			if derr := s.store.DeleteQueueEntry(ctx, seeker.ID); derr != nil {
				logf("enqueue rollback %d: %v", seeker.ID, derr)
			}
			return []note{text(seeker.ID, msgTryAgain)},
				fmt.Errorf("service: enqueue %d: %w", seeker.ID, err)
		}
		s.enqueuedAt[seeker.ID] = s.now()
		metrics.QueueSize.Set(float64(s.engine.QueueLen()))
		return []note{{to: seeker.ID, payload: notify.TextPayload(msgSearching).
			WithKeyboard(cancelSearchKeyboard()...)}}, nil
	}

	sess := match.Session
	partnerID := sess.Partner(seeker.ID)

	if err := s.store.InsertChat(ctx, *sess); err != nil {
		// Undo the engine pairing and put the consumed partner back in the
		// queue with the mirror of the seeker's filter.
		s.engine.EndSession(seeker.ID)
		mirror := matching.Filter{Gender: f.SeekGender, SeekGender: f.Gender, ChatType: f.ChatType}
		if _, rerr := s.engine.FindOrEnqueue(partnerID, mirror); rerr != nil {
			logf("match rollback %d: %v", partnerID, rerr)
		}
		return []note{text(seeker.ID, msgTryAgain)},
			fmt.Errorf("service: persist match %s: %w", sess.ID, err)
	}

	for _, id := range []int64{sess.UserA, sess.UserB} {
		if err := s.store.SetState(ctx, id, user.InDialog); err != nil {
			logf("match state %d: %v", id, err)
		}
	}

	notes := []note{text(seeker.ID, msgMatchFound), text(partnerID, msgMatchFound)}
	notes = append(notes, s.partnerCardsLocked(ctx, seeker, partnerID)...)

	if joined, ok := s.enqueuedAt[partnerID]; ok {
		metrics.MatchWait.Observe(s.now().Sub(joined).Seconds())
		delete(s.enqueuedAt, partnerID)
	}
	delete(s.enqueuedAt, seeker.ID)
	metrics.MatchesTotal.Inc()
	metrics.QueueSize.Set(float64(s.engine.QueueLen()))
	metrics.ActiveChats.Set(float64(s.engine.SessionCount()))

	return notes, nil
}

// partnerCardsLocked builds the premium profile cards for a fresh match.
func (s *Service) partnerCardsLocked(ctx context.Context, seeker *user.Profile, partnerID int64) []note {
	partner, err := s.store.GetUser(ctx, partnerID)
	if err != nil || partner == nil {
		if err != nil {
			logf("partner lookup %d: %v", partnerID, err)
		}
		return nil
	}

	var notes []note
	if seeker.Premium {
		notes = append(notes, text(seeker.ID, fmtPartnerCard(partner)))
	}
	if partner.Premium {
		notes = append(notes, text(partnerID, fmtPartnerCard(seeker)))
	}
	return notes
}

// CancelSearch removes the caller from the queue. Idempotent: cancelling
// without a pending search is a no-op advisory.
func (s *Service) CancelSearch(ctx context.Context, userID int64) error {
	s.mu.Lock()

	delete(s.pendingSeek, userID)

	var notes []note
	if s.engine.Dequeue(userID) {
		if err := s.store.DeleteQueueEntry(ctx, userID); err != nil {
			logf("cancel %d: delete queue row: %v", userID, err)
		}
		if err := s.store.SetState(ctx, userID, user.Idle); err != nil {
			logf("cancel %d: reset state: %v", userID, err)
		}
		delete(s.enqueuedAt, userID)
		metrics.QueueSize.Set(float64(s.engine.QueueLen()))
		notes = append(notes, text(userID, msgSearchCancel))
	} else {
		notes = append(notes, text(userID, msgNoSearch))
	}

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return nil
}

// AdvanceNext ends the current dialog, if any, and immediately re-searches
// with the saved filters. Without saved filters it is an advisory.
func (s *Service) AdvanceNext(ctx context.Context, userID int64) error {
	s.mu.Lock()

	p, notes, err := s.searchGuardDialogOKLocked(ctx, userID)
	if p == nil {
		s.mu.Unlock()
		s.deliver(ctx, notes)
		return err
	}
	if !p.HasSearchFilters() {
		s.mu.Unlock()
		s.deliver(ctx, append(notes, text(userID, msgNoSavedSearch)))
		return nil
	}

	if sess, ok := s.engine.EndSession(userID); ok {
		notes = append(notes, s.teardownLocked(ctx, sess)...)
	}

	f := matching.Filter{Gender: p.Gender, SeekGender: *p.SearchGender, ChatType: *p.SearchType}
	more, serr := s.beginSearchLocked(ctx, p, f)
	notes = append(notes, more...)

	s.mu.Unlock()
	s.deliver(ctx, notes)
	return serr
}

// searchGuardDialogOKLocked is the /next variant of the search guard: being
// in a dialog is fine, that dialog is about to end.
func (s *Service) searchGuardDialogOKLocked(ctx context.Context, userID int64) (*user.Profile, []note, error) {
	p, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, []note{text(userID, msgTryAgain)},
			fmt.Errorf("service: next %d: %w", userID, err)
	}
	if p == nil {
		return nil, []note{text(userID, msgNotRegistered)}, nil
	}
	if s.isBanned(ctx, p) {
		return nil, []note{text(userID, msgBanned)}, nil
	}
	if !s.allow(ctx, userID, ratelimit.RuleSearch) {
		return nil, []note{text(userID, msgSearchLimited)}, nil
	}
	return p, nil, nil
}
