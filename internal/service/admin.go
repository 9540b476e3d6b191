package service

import (
	"context"
	"fmt"

	"github.com/sinchat/chat-service/internal/user"
)

// The dispatcher only routes admin commands from the configured admin chat,
// but every method re-checks the caller so a wiring mistake cannot expose
// the surface.

func (s *Service) isAdmin(from int64) bool {
	return s.cfg.AdminChatID != 0 && from == s.cfg.AdminChatID
}

// AdminStats sends the dashboard counts.
func (s *Service) AdminStats(ctx context.Context, from int64) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}
	st, err := s.store.GetStats(ctx)
	if err != nil {
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: stats: %w", err)
	}
	s.deliver(ctx, []note{text(from, fmtStats(st))})
	return nil
}

// Broadcast sends a text to every registered user, best-effort.
func (s *Service) Broadcast(ctx context.Context, from int64, body string) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}
	if body == "" {
		s.deliver(ctx, []note{text(from, msgBroadcastEmpty)})
		return nil
	}

	ids, err := s.store.AllUserIDs(ctx)
	if err != nil {
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: broadcast: %w", err)
	}

	notes := make([]note, 0, len(ids)+1)
	for _, id := range ids {
		notes = append(notes, text(id, body))
	}
	notes = append(notes, text(from, fmt.Sprintf("Broadcast sent to %d users.", len(ids))))
	s.deliver(ctx, notes)
	return nil
}

// AdminUserInfo sends the full record of a user.
func (s *Service) AdminUserInfo(ctx context.Context, from, targetID int64) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}
	p, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: user info %d: %w", targetID, err)
	}
	if p == nil {
		s.deliver(ctx, []note{text(from, msgUserNotFound)})
		return nil
	}
	s.deliver(ctx, []note{text(from, fmtAdminUserInfo(p))})
	return nil
}

// AdminBan bans a user manually. A queued or chatting target is pulled out
// first so their partner is not left talking to nobody.
func (s *Service) AdminBan(ctx context.Context, from, targetID int64) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}

	s.mu.Lock()
	notes, err := s.detachLocked(ctx, targetID)
	if err == nil {
		err = s.store.SetBanned(ctx, targetID, true)
	}
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: ban %d: %w", targetID, err)
	}
	if s.bans != nil {
		if cerr := s.bans.SetBanned(ctx, targetID, true); cerr != nil {
			logf("ban cache %d: %v", targetID, cerr)
		}
	}
	notes = append(notes, text(targetID, msgBanNotice), text(from, "Banned."))
	s.mu.Unlock()

	s.deliver(ctx, notes)
	return nil
}

// AdminUnban lifts a ban. This is the only way back across the threshold.
func (s *Service) AdminUnban(ctx context.Context, from, targetID int64) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}
	if err := s.store.SetBanned(ctx, targetID, false); err != nil {
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: unban %d: %w", targetID, err)
	}
	if s.bans != nil {
		if err := s.bans.SetBanned(ctx, targetID, false); err != nil {
			logf("unban cache %d: %v", targetID, err)
		}
	}
	s.deliver(ctx, []note{text(targetID, msgUnbanned), text(from, "Unbanned.")})
	return nil
}

// AdminDelete hard-deletes a user and everything attached to them.
func (s *Service) AdminDelete(ctx context.Context, from, targetID int64) error {
	if !s.isAdmin(from) {
		s.deliver(ctx, []note{text(from, msgAdminOnly)})
		return nil
	}

	s.mu.Lock()
	notes, err := s.detachLocked(ctx, targetID)
	if err == nil {
		err = s.store.DeleteUser(ctx, targetID)
	}
	if err != nil {
		s.mu.Unlock()
		s.deliver(ctx, []note{text(from, msgTryAgain)})
		return fmt.Errorf("service: delete %d: %w", targetID, err)
	}
	delete(s.pending, targetID)
	delete(s.pendingSeek, targetID)
	if s.bans != nil {
		if cerr := s.bans.Invalidate(ctx, targetID); cerr != nil {
			logf("delete %d: ban cache: %v", targetID, cerr)
		}
	}
	notes = append(notes, text(from, msgDeleted))
	s.mu.Unlock()

	s.deliver(ctx, notes)
	return nil
}

// detachLocked removes a user from the queue or their dialog before an
// admin ban or delete. Caller holds s.mu.
func (s *Service) detachLocked(ctx context.Context, targetID int64) ([]note, error) {
	var notes []note

	if s.engine.Dequeue(targetID) {
		if err := s.store.DeleteQueueEntry(ctx, targetID); err != nil {
			return nil, err
		}
		delete(s.enqueuedAt, targetID)
	}
	if sess, ok := s.engine.EndSession(targetID); ok {
		if err := s.store.DeleteChat(ctx, sess.ID); err != nil {
			return nil, err
		}
		partnerID := sess.Partner(targetID)
		if err := s.store.SetState(ctx, partnerID, user.Idle); err != nil {
			logf("detach %d: reset partner %d: %v", targetID, partnerID, err)
		}
		notes = append(notes, text(partnerID, msgRelayDropped))
	}
	if err := s.store.SetState(ctx, targetID, user.Idle); err != nil {
		logf("detach %d: reset state: %v", targetID, err)
	}
	return notes, nil
}
