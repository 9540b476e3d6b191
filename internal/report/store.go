// Package report provides PostgreSQL-backed storage for flagged relayed
// messages. Each record captures who sent what to whom, the chat context,
// and the denylist term that matched (for moderator review).
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sinchat/chat-service/internal/moderation"
)

// Store manages flagged-message records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a flagged-message record.
func (s *Store) Create(ctx context.Context, event *moderation.FlagEvent) error {
	const query = `
		INSERT INTO flagged_messages (sender_id, partner_id, chat_id, term, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createdAt := time.Unix(event.Ts, 0)
	if event.Ts == 0 {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		event.SenderID, event.PartnerID, event.ChatID, event.Term, event.Text, createdAt,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of flags recorded against a sender within
// the given time window. Useful for escalation decisions by moderators.
func (s *Store) CountRecent(ctx context.Context, senderID int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM flagged_messages
		WHERE sender_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, senderID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
