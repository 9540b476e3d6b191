// Package store provides PostgreSQL-backed persistence for user profiles and
// the durable mirrors of the matching queue and active chats. The uniqueness
// constraints on queue.user_id and on each chat participant column are the
// second line of defense behind the in-memory engine's own invariants.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sinchat/chat-service/internal/matching"
	"github.com/sinchat/chat-service/internal/user"
)

// Store manages all persisted state in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection, and applies pending
// migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres connection failed: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests and by the
// moderator service, which shares the schema but not the migration step.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that share the connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new profile.
func (s *Store) CreateUser(ctx context.Context, p *user.Profile) error {
	const query = `
		INSERT INTO users (id, nickname, age, gender, state, reputation, is_banned, referrals, premium, premium_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Nickname, p.Age, int(p.Gender), int(p.State),
		p.Reputation, p.Banned, p.Referrals, p.Premium, p.PremiumUntil,
	)
	if err != nil {
		return fmt.Errorf("store: create user %d: %w", p.ID, err)
	}
	return nil
}

// GetUser retrieves a profile. Returns nil if not found.
func (s *Store) GetUser(ctx context.Context, id int64) (*user.Profile, error) {
	const query = `
		SELECT id, nickname, age, gender, search_gender, chat_type, state,
		       reputation, is_banned, referrals, premium, premium_until
		FROM users WHERE id = $1`

	var (
		p            user.Profile
		gender       int
		state        int
		searchGender sql.NullInt64
		chatType     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Nickname, &p.Age, &gender, &searchGender, &chatType, &state,
		&p.Reputation, &p.Banned, &p.Referrals, &p.Premium, &p.PremiumUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}

	if p.Gender, err = user.ParseGender(gender); err != nil {
		return nil, fmt.Errorf("store: user %d: %w", id, err)
	}
	p.State = user.State(state)
	if searchGender.Valid {
		g, err := user.ParseGender(int(searchGender.Int64))
		if err != nil {
			return nil, fmt.Errorf("store: user %d: %w", id, err)
		}
		p.SearchGender = &g
	}
	if chatType.Valid {
		t, err := user.ParseChatType(int(chatType.Int64))
		if err != nil {
			return nil, fmt.Errorf("store: user %d: %w", id, err)
		}
		p.SearchType = &t
	}
	return &p, nil
}

// SetState updates the persisted operational state.
func (s *Store) SetState(ctx context.Context, id int64, state user.State) error {
	const query = `UPDATE users SET state = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, int(state)); err != nil {
		return fmt.Errorf("store: set state for %d: %w", id, err)
	}
	return nil
}

// SetSearchFilters saves the filters of the user's latest search so that
// "next" can repeat it.
func (s *Store) SetSearchFilters(ctx context.Context, id int64, g user.Gender, t user.ChatType) error {
	const query = `UPDATE users SET search_gender = $2, chat_type = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, int(g), int(t)); err != nil {
		return fmt.Errorf("store: set search filters for %d: %w", id, err)
	}
	return nil
}

// UpdateNickname changes the public nickname.
func (s *Store) UpdateNickname(ctx context.Context, id int64, nickname string) error {
	const query = `UPDATE users SET nickname = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, nickname); err != nil {
		return fmt.Errorf("store: update nickname for %d: %w", id, err)
	}
	return nil
}

// UpdateAge changes the public age.
func (s *Store) UpdateAge(ctx context.Context, id int64, age int) error {
	const query = `UPDATE users SET age = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, age); err != nil {
		return fmt.Errorf("store: update age for %d: %w", id, err)
	}
	return nil
}

// UpdateGender changes the user's own gender.
func (s *Store) UpdateGender(ctx context.Context, id int64, g user.Gender) error {
	const query = `UPDATE users SET gender = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, int(g)); err != nil {
		return fmt.Errorf("store: update gender for %d: %w", id, err)
	}
	return nil
}

// AdjustReputation applies a signed delta and reports the new value together
// with whether this call crossed the ban threshold. The ban flag is one-way:
// it is set when reputation sinks to the threshold and never cleared here,
// only by an explicit admin unban.
func (s *Store) AdjustReputation(ctx context.Context, id int64, delta int) (rep int, crossed bool, err error) {
	// RETURNING sees post-update values, so the crossing is detected as
	// "at or below the threshold now, above it before". Doing it in one
	// statement keeps concurrent ratings from double-reporting it.
	const query = `
		UPDATE users
		SET reputation = reputation + $2,
		    is_banned  = is_banned OR (reputation + $2 <= $3)
		WHERE id = $1
		RETURNING reputation, is_banned, (reputation <= $3 AND reputation - $2 > $3)`

	var banned bool
	err = s.db.QueryRowContext(ctx, query, id, delta, user.BanThreshold).
		Scan(&rep, &banned, &crossed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("store: adjust reputation: user %d not found", id)
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: adjust reputation for %d: %w", id, err)
	}
	return rep, crossed, nil
}

// SetBanned sets or clears the ban flag (admin operation).
func (s *Store) SetBanned(ctx context.Context, id int64, banned bool) error {
	const query = `UPDATE users SET is_banned = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, banned); err != nil {
		return fmt.Errorf("store: set banned for %d: %w", id, err)
	}
	return nil
}

// IncrementReferrals bumps the referral counter.
func (s *Store) IncrementReferrals(ctx context.Context, id int64) error {
	const query = `UPDATE users SET referrals = referrals + 1 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: increment referrals for %d: %w", id, err)
	}
	return nil
}

// SetPremium updates the premium flag and its expiry timestamp.
func (s *Store) SetPremium(ctx context.Context, id int64, premium bool, until int64) error {
	const query = `UPDATE users SET premium = $2, premium_until = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, premium, until); err != nil {
		return fmt.Errorf("store: set premium for %d: %w", id, err)
	}
	return nil
}

// DeleteUser removes a profile and any queue or chat rows referencing it
// (admin purge).
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete user %d: %w", id, err)
	}
	defer tx.Rollback()

	for _, query := range []string{
		`DELETE FROM queue WHERE user_id = $1`,
		`DELETE FROM chats WHERE user_a = $1 OR user_b = $1`,
		`DELETE FROM users WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("store: delete user %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete user %d: %w", id, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queue and chat mirrors
// ---------------------------------------------------------------------------

// InsertQueueEntry mirrors an engine enqueue.
func (s *Store) InsertQueueEntry(ctx context.Context, e matching.Entry) error {
	const query = `
		INSERT INTO queue (user_id, searcher_gender, search_gender, chat_type, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		e.UserID, int(e.Filter.Gender), int(e.Filter.SeekGender), int(e.Filter.ChatType), e.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert queue entry %d: %w", e.UserID, err)
	}
	return nil
}

// DeleteQueueEntry mirrors an engine dequeue. A missing row is not an error.
func (s *Store) DeleteQueueEntry(ctx context.Context, userID int64) error {
	const query = `DELETE FROM queue WHERE user_id = $1`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("store: delete queue entry %d: %w", userID, err)
	}
	return nil
}

// InsertChat mirrors session creation, removing the matched participants'
// queue rows in the same transaction.
func (s *Store) InsertChat(ctx context.Context, session matching.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert chat %s: %w", session.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue WHERE user_id = $1 OR user_id = $2`,
		session.UserA, session.UserB,
	); err != nil {
		return fmt.Errorf("store: insert chat %s: %w", session.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, user_a, user_b, chat_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserA, session.UserB, int(session.ChatType), session.CreatedAt,
	); err != nil {
		return fmt.Errorf("store: insert chat %s: %w", session.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert chat %s: %w", session.ID, err)
	}
	return nil
}

// DeleteChat mirrors session teardown.
func (s *Store) DeleteChat(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM chats WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("store: delete chat %s: %w", sessionID, err)
	}
	return nil
}

// Snapshot loads the persisted queue entries (oldest first) and active chats
// for the engine's startup rebuild.
func (s *Store) Snapshot(ctx context.Context) ([]matching.Entry, []matching.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, searcher_gender, search_gender, chat_type, joined_at
		FROM queue ORDER BY joined_at`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: snapshot queue: %w", err)
	}
	defer rows.Close()

	var entries []matching.Entry
	for rows.Next() {
		var (
			e                matching.Entry
			gender, seek, ct int
		)
		if err := rows.Scan(&e.UserID, &gender, &seek, &ct, &e.JoinedAt); err != nil {
			return nil, nil, fmt.Errorf("store: snapshot queue: %w", err)
		}
		e.Filter = matching.Filter{
			Gender:     user.Gender(gender),
			SeekGender: user.Gender(seek),
			ChatType:   user.ChatType(ct),
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: snapshot queue: %w", err)
	}

	chatRows, err := s.db.QueryContext(ctx, `
		SELECT id, user_a, user_b, chat_type, created_at FROM chats`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: snapshot chats: %w", err)
	}
	defer chatRows.Close()

	var sessions []matching.Session
	for chatRows.Next() {
		var (
			session matching.Session
			ct      int
		)
		if err := chatRows.Scan(&session.ID, &session.UserA, &session.UserB, &ct, &session.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("store: snapshot chats: %w", err)
		}
		session.ChatType = user.ChatType(ct)
		sessions = append(sessions, session)
	}
	if err := chatRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("store: snapshot chats: %w", err)
	}

	return entries, sessions, nil
}

// ---------------------------------------------------------------------------
// Admin aggregates
// ---------------------------------------------------------------------------

// Stats is the admin dashboard snapshot.
type Stats struct {
	TotalUsers   int
	Males        int
	Females      int
	ActiveChats  int
	QueueSize    int
	QueueMales   int
	QueueFemales int
}

// GetStats collects counts for the admin stats command.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE gender = 0),
			(SELECT COUNT(*) FROM users WHERE gender = 1),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM queue),
			(SELECT COUNT(*) FROM queue WHERE searcher_gender = 0),
			(SELECT COUNT(*) FROM queue WHERE searcher_gender = 1)`

	var st Stats
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.TotalUsers, &st.Males, &st.Females,
		&st.ActiveChats, &st.QueueSize, &st.QueueMales, &st.QueueFemales,
	)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return &st, nil
}

// TopByReferrals returns the n users with the most referrals.
func (s *Store) TopByReferrals(ctx context.Context, n int) ([]user.Profile, error) {
	return s.topUsers(ctx, `
		SELECT id, nickname, gender, referrals, reputation
		FROM users ORDER BY referrals DESC, id LIMIT $1`, n)
}

// TopByReputation returns the n users with the highest reputation.
func (s *Store) TopByReputation(ctx context.Context, n int) ([]user.Profile, error) {
	return s.topUsers(ctx, `
		SELECT id, nickname, gender, referrals, reputation
		FROM users ORDER BY reputation DESC, id LIMIT $1`, n)
}

func (s *Store) topUsers(ctx context.Context, query string, n int) ([]user.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("store: top users: %w", err)
	}
	defer rows.Close()

	var out []user.Profile
	for rows.Next() {
		var (
			p      user.Profile
			gender int
		)
		if err := rows.Scan(&p.ID, &p.Nickname, &gender, &p.Referrals, &p.Reputation); err != nil {
			return nil, fmt.Errorf("store: top users: %w", err)
		}
		p.Gender = user.Gender(gender)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: top users: %w", err)
	}
	return out, nil
}

// AllUserIDs returns every registered user id, used by the admin broadcast.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: all user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: all user ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: all user ids: %w", err)
	}
	return ids, nil
}
