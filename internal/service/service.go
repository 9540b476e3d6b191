// Package service is the session orchestrator. It owns the operation-level
// critical section over the matching engine and the persistence write-through,
// and it composes every user-facing notification. Transport glue (the Telegram
// dispatcher) stays thin: it parses updates and calls into this package.
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sinchat/chat-service/internal/matching"
	"github.com/sinchat/chat-service/internal/moderation"
	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/ratelimit"
	"github.com/sinchat/chat-service/internal/store"
	"github.com/sinchat/chat-service/internal/user"
)

// premiumDuration is the promo grant given at registration.
const premiumDuration = 7 * 24 * time.Hour

// Storage is the subset of the persistence layer the orchestrator uses.
// *store.Store satisfies it; tests supply an in-memory fake.
type Storage interface {
	GetUser(ctx context.Context, id int64) (*user.Profile, error)
	CreateUser(ctx context.Context, p *user.Profile) error
	SetState(ctx context.Context, id int64, state user.State) error
	SetSearchFilters(ctx context.Context, id int64, g user.Gender, t user.ChatType) error
	UpdateNickname(ctx context.Context, id int64, nickname string) error
	UpdateAge(ctx context.Context, id int64, age int) error
	UpdateGender(ctx context.Context, id int64, g user.Gender) error
	AdjustReputation(ctx context.Context, id int64, delta int) (rep int, crossed bool, err error)
	SetBanned(ctx context.Context, id int64, banned bool) error
	IncrementReferrals(ctx context.Context, id int64) error
	SetPremium(ctx context.Context, id int64, premium bool, until int64) error
	DeleteUser(ctx context.Context, id int64) error

	InsertQueueEntry(ctx context.Context, e matching.Entry) error
	DeleteQueueEntry(ctx context.Context, userID int64) error
	InsertChat(ctx context.Context, session matching.Session) error
	DeleteChat(ctx context.Context, sessionID string) error

	GetStats(ctx context.Context) (*store.Stats, error)
	TopByReferrals(ctx context.Context, n int) ([]user.Profile, error)
	TopByReputation(ctx context.Context, n int) ([]user.Profile, error)
	AllUserIDs(ctx context.Context) ([]int64, error)
}

// BanCache fronts the store's is_banned column on the hot path.
// A nil value disables caching and every check falls through to the store.
type BanCache interface {
	IsBanned(ctx context.Context, userID int64) (banned bool, known bool)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	Invalidate(ctx context.Context, userID int64) error
}

// Limiter throttles message relay and search requests. Nil disables limiting.
type Limiter interface {
	Allow(ctx context.Context, userID int64, rule ratelimit.Rule) (bool, error)
}

// FlagPublisher forwards moderation flag events to the moderator sink.
// Nil disables publishing; flags are then log-only.
type FlagPublisher interface {
	PublishFlagged(data []byte) error
}

// ContentFilter screens relayed text. The moderation package's Filter
// satisfies it.
type ContentFilter interface {
	Check(text string) moderation.FilterResult
}

// Config carries the orchestrator's runtime settings.
type Config struct {
	// AdminChatID is the chat that receives admin surfaces.
	AdminChatID int64
	// BotUsername builds referral deep links (t.me/<username>?start=<id>).
	BotUsername string
	// PromoUntil closes the premium promo window. Zero means no promo.
	PromoUntil time.Time
}

// pendingReg is an in-flight registration. It lives only in memory; the
// profile row is created when the gender is chosen.
type pendingReg struct {
	Age      int
	Nickname string
	State    user.State // AwaitingAge, AwaitingNickname or AwaitingGender
	Referrer int64
}

// Service coordinates the engine, the store and the notifier. All mutating
// operations run under one mutex; notifications collected during the critical
// section are delivered after unlock so a slow transport never extends it.
type Service struct {
	mu sync.Mutex

	engine   *matching.Engine
	store    Storage
	notifier notify.Notifier
	bans     BanCache
	limiter  Limiter
	flags    FlagPublisher
	filter   ContentFilter
	cfg      Config

	pending     map[int64]*pendingReg
	pendingSeek map[int64]user.Gender // chosen partner gender, awaiting chat type
	enqueuedAt  map[int64]time.Time

	now func() time.Time
}

// New assembles the orchestrator. bans, limiter, flags and filter may be nil.
func New(engine *matching.Engine, st Storage, notifier notify.Notifier, cfg Config) *Service {
	return &Service{
		engine:      engine,
		store:       st,
		notifier:    notifier,
		cfg:         cfg,
		pending:     make(map[int64]*pendingReg),
		pendingSeek: make(map[int64]user.Gender),
		enqueuedAt:  make(map[int64]time.Time),
		now:         time.Now,
	}
}

// WithBanCache attaches the Redis ban cache.
func (s *Service) WithBanCache(c BanCache) *Service { s.bans = c; return s }

// WithLimiter attaches the rate limiter.
func (s *Service) WithLimiter(l Limiter) *Service { s.limiter = l; return s }

// WithModeration attaches the content filter and the flag publisher.
func (s *Service) WithModeration(f ContentFilter, p FlagPublisher) *Service {
	s.filter = f
	s.flags = p
	return s
}

// note is a deferred outbound notification.
type note struct {
	to      int64
	payload notify.Payload
}

func text(to int64, msg string) note {
	return note{to: to, payload: notify.TextPayload(msg)}
}

func logf(format string, args ...interface{}) {
	log.Printf("[service] "+format, args...)
}

// deliver sends collected notes outside the critical section. Failures are
// logged and never propagate; the state change already happened.
func (s *Service) deliver(ctx context.Context, notes []note) {
	for _, n := range notes {
		if err := s.notifier.Send(ctx, n.to, n.payload); err != nil {
			log.Printf("[service] notify %d: %v", n.to, err)
		}
	}
}

// isBanned consults the cache first and falls back to the profile row.
// Unknown cache answers repopulate the cache from the store value.
func (s *Service) isBanned(ctx context.Context, p *user.Profile) bool {
	if s.bans != nil {
		if banned, known := s.bans.IsBanned(ctx, p.ID); known {
			return banned
		}
		if err := s.bans.SetBanned(ctx, p.ID, p.Banned); err != nil {
			log.Printf("[service] ban cache set %d: %v", p.ID, err)
		}
	}
	return p.Banned
}

// allow applies a rate-limit rule, failing open when no limiter is attached.
func (s *Service) allow(ctx context.Context, userID int64, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, userID, rule)
	if err != nil {
		log.Printf("[service] rate limit %d: %v", userID, err)
		return true
	}
	return ok
}

// promoActive reports whether a registration right now earns promo premium.
func (s *Service) promoActive() bool {
	return !s.cfg.PromoUntil.IsZero() && s.now().Before(s.cfg.PromoUntil)
}
