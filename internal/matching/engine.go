// Package matching implements the waiting queue, the pairing algorithm, and
// the active-session registry. All three live behind a single mutex so the
// scan-then-mutate match operation is atomic: when two seekers race for the
// same waiting entry, exactly one consumes it and the other falls through to
// another entry or to the queue.
package matching

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinchat/chat-service/internal/user"
)

// ErrInSession is returned when a user with an active session tries to
// enqueue. A user in both the queue and a session would violate the
// engine's core invariant.
var ErrInSession = errors.New("matching: already in a session")

// Filter is the compatibility tuple a seeker brings to the queue: their own
// gender, the gender they seek, and the chat type. Entry E matches seeker S
// iff E.Gender == S.SeekGender, E.SeekGender == S.Gender and the chat types
// are equal.
type Filter struct {
	Gender     user.Gender
	SeekGender user.Gender
	ChatType   user.ChatType
}

// mirrors reports whether two filters are mutually compatible.
func (f Filter) mirrors(other Filter) bool {
	return f.Gender == other.SeekGender &&
		f.SeekGender == other.Gender &&
		f.ChatType == other.ChatType
}

// Entry is a waiting user in the queue.
type Entry struct {
	UserID   int64
	Filter   Filter
	JoinedAt time.Time
}

// Session is an active 1:1 pairing. A user id appears in at most one session.
type Session struct {
	ID        string
	UserA     int64
	UserB     int64
	ChatType  user.ChatType
	CreatedAt time.Time
}

// Partner returns the other participant, or 0 if id is not a participant.
func (s *Session) Partner(id int64) int64 {
	switch id {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	default:
		return 0
	}
}

// IsParticipant reports whether id belongs to this session.
func (s *Session) IsParticipant(id int64) bool {
	return id == s.UserA || id == s.UserB
}

// Match is the result of FindOrEnqueue. When Found is false the seeker was
// inserted into the queue and Session is nil.
type Match struct {
	Found   bool
	Session *Session
}

// Engine owns the queue and the session registry. The zero value is not
// usable; create one with NewEngine.
type Engine struct {
	mu      sync.Mutex
	entries map[int64]*Entry
	order   []int64 // insertion order, oldest first
	byUser  map[int64]*Session
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		entries: make(map[int64]*Entry),
		byUser:  make(map[int64]*Session),
	}
}

// FindOrEnqueue scans the queue for the oldest entry mirror-compatible with
// the seeker's filter. On a hit the entry is consumed and a new session is
// created atomically; on a miss the seeker becomes a queue entry. An entry
// owned by the seeker itself never matches: if the only compatible entry is
// the seeker's own, the call is a no-match and the entry stays queued with
// its original position, so repeating a search is idempotent.
func (e *Engine) FindOrEnqueue(seekerID int64, f Filter) (Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byUser[seekerID]; ok {
		return Match{}, ErrInSession
	}

	for i, id := range e.order {
		entry, ok := e.entries[id]
		if !ok {
			continue // consumed earlier, compacted lazily
		}
		if entry.UserID == seekerID {
			continue // self-pairing is forbidden
		}
		if !entry.Filter.mirrors(f) {
			continue
		}

		delete(e.entries, id)
		e.order = append(e.order[:i], e.order[i+1:]...)

		// The winner's own stale entry, if any, is consumed too.
		e.removeLocked(seekerID)

		session := &Session{
			ID:        uuid.New().String(),
			UserA:     seekerID,
			UserB:     entry.UserID,
			ChatType:  f.ChatType,
			CreatedAt: time.Now(),
		}
		e.byUser[session.UserA] = session
		e.byUser[session.UserB] = session

		return Match{Found: true, Session: session}, nil
	}

	if _, ok := e.entries[seekerID]; !ok {
		e.entries[seekerID] = &Entry{UserID: seekerID, Filter: f, JoinedAt: time.Now()}
		e.order = append(e.order, seekerID)
	}
	return Match{}, nil
}

// removeLocked drops a queue entry without taking the mutex. Callers must
// hold e.mu.
func (e *Engine) removeLocked(userID int64) {
	if _, ok := e.entries[userID]; !ok {
		return
	}
	delete(e.entries, userID)
	for i, id := range e.order {
		if id == userID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}

// Dequeue removes the user's queue entry if one exists. It is idempotent and
// reports whether an entry was removed.
func (e *Engine) Dequeue(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.entries[userID]; !ok {
		return false
	}
	e.removeLocked(userID)
	return true
}

// Partner returns the other participant of the user's active session.
func (e *Engine) Partner(userID int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.byUser[userID]
	if !ok {
		return 0, false
	}
	return session.Partner(userID), true
}

// SessionOf returns a copy of the user's active session, if any.
func (e *Engine) SessionOf(userID int64) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.byUser[userID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// EndSession atomically removes the session containing userID and returns it.
// When both participants race to end the same session, exactly one caller
// observes it; the other gets ok == false.
func (e *Engine) EndSession(userID int64) (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.byUser[userID]
	if !ok {
		return Session{}, false
	}
	delete(e.byUser, session.UserA)
	delete(e.byUser, session.UserB)
	return *session, true
}

// QueueLen returns the number of waiting entries.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// SessionCount returns the number of active sessions.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byUser) / 2
}

// Queued reports whether the user has an outstanding queue entry.
func (e *Engine) Queued(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.entries[userID]
	return ok
}

// Restore rebuilds the engine from persisted queue entries and sessions,
// used once at startup. Entries are replayed in slice order so the
// insertion-order tie-break survives a restart. An id present both in the
// queue and in a session is an integrity error in the persisted state; the
// session wins and the queue entry is dropped.
func (e *Engine) Restore(entries []Entry, sessions []Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = make(map[int64]*Entry, len(entries))
	e.order = e.order[:0]
	e.byUser = make(map[int64]*Session, len(sessions)*2)

	for _, s := range sessions {
		session := s
		e.byUser[s.UserA] = &session
		e.byUser[s.UserB] = &session
	}
	for _, entry := range entries {
		if _, ok := e.byUser[entry.UserID]; ok {
			continue
		}
		if _, ok := e.entries[entry.UserID]; ok {
			continue
		}
		en := entry
		e.entries[en.UserID] = &en
		e.order = append(e.order, en.UserID)
	}
}
