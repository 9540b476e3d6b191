package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sinchat/chat-service/internal/matching"
	"github.com/sinchat/chat-service/internal/moderation"
	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/store"
	"github.com/sinchat/chat-service/internal/user"
)

// fakeStore is an in-memory Storage for orchestrator tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[int64]*user.Profile
	queue map[int64]matching.Entry
	chats map[string]matching.Session

	insertChatErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]*user.Profile),
		queue: make(map[int64]matching.Entry),
		chats: make(map[string]matching.Session),
	}
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*user.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateUser(_ context.Context, p *user.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.users[p.ID] = &cp
	return nil
}

func (f *fakeStore) SetState(_ context.Context, id int64, state user.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.State = state
	}
	return nil
}

func (f *fakeStore) SetSearchFilters(_ context.Context, id int64, g user.Gender, t user.ChatType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		gg, tt := g, t
		p.SearchGender, p.SearchType = &gg, &tt
	}
	return nil
}

func (f *fakeStore) UpdateNickname(_ context.Context, id int64, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Nickname = nickname
	}
	return nil
}

func (f *fakeStore) UpdateAge(_ context.Context, id int64, age int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Age = age
	}
	return nil
}

func (f *fakeStore) UpdateGender(_ context.Context, id int64, g user.Gender) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Gender = g
	}
	return nil
}

func (f *fakeStore) AdjustReputation(_ context.Context, id int64, delta int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[id]
	if !ok {
		return 0, false, errors.New("no such user")
	}
	before := p.Reputation
	p.Reputation += delta
	crossed := before > user.BanThreshold && p.Reputation <= user.BanThreshold
	if crossed {
		p.Banned = true
	}
	return p.Reputation, crossed, nil
}

func (f *fakeStore) SetBanned(_ context.Context, id int64, banned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Banned = banned
	}
	return nil
}

func (f *fakeStore) IncrementReferrals(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Referrals++
	}
	return nil
}

func (f *fakeStore) SetPremium(_ context.Context, id int64, premium bool, until int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[id]; ok {
		p.Premium = premium
		p.PremiumUntil = until
	}
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	delete(f.queue, id)
	return nil
}

func (f *fakeStore) InsertQueueEntry(_ context.Context, e matching.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[e.UserID] = e
	return nil
}

func (f *fakeStore) DeleteQueueEntry(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queue, userID)
	return nil
}

func (f *fakeStore) InsertChat(_ context.Context, session matching.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertChatErr != nil {
		return f.insertChatErr
	}
	delete(f.queue, session.UserA)
	delete(f.queue, session.UserB)
	f.chats[session.ID] = session
	return nil
}

func (f *fakeStore) DeleteChat(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chats, sessionID)
	return nil
}

func (f *fakeStore) GetStats(_ context.Context) (*store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &store.Stats{TotalUsers: len(f.users), ActiveChats: len(f.chats), QueueSize: len(f.queue)}, nil
}

func (f *fakeStore) TopByReferrals(_ context.Context, n int) ([]user.Profile, error) {
	return nil, nil
}

func (f *fakeStore) TopByReputation(_ context.Context, n int) ([]user.Profile, error) {
	return nil, nil
}

func (f *fakeStore) AllUserIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	return ids, nil
}

// fakeNotifier records every delivered payload.
type fakeNotifier struct {
	mu    sync.Mutex
	sends []note
}

func (f *fakeNotifier) Send(_ context.Context, userID int64, p notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, note{to: userID, payload: p})
	return nil
}

func (f *fakeNotifier) textsTo(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.sends {
		if n.to != userID {
			continue
		}
		if n.payload.Media != nil {
			out = append(out, "media:"+string(n.payload.Media.Kind))
		} else {
			out = append(out, n.payload.Text)
		}
	}
	return out
}

func (f *fakeNotifier) lastTo(userID int64) (notify.Payload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sends) - 1; i >= 0; i-- {
		if f.sends[i].to == userID {
			return f.sends[i].payload, true
		}
	}
	return notify.Payload{}, false
}

func (f *fakeNotifier) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = nil
}

// fakePublisher captures flag events.
type fakePublisher struct {
	mu     sync.Mutex
	events [][]byte
}

func (f *fakePublisher) PublishFlagged(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, append([]byte(nil), data...))
	return nil
}

func newTestService(fs *fakeStore, fn *fakeNotifier) *Service {
	return New(matching.NewEngine(), fs, fn, Config{AdminChatID: 999, BotUsername: "sinchat_bot"})
}

func seedUser(fs *fakeStore, id int64, g user.Gender) {
	fs.users[id] = &user.Profile{
		ID: id, Nickname: "u", Age: 20, Gender: g, State: user.Idle,
	}
}

func searchFor(t *testing.T, s *Service, id int64, seek user.Gender, ct user.ChatType) {
	t.Helper()
	if err := s.ChooseSeekGender(context.Background(), id, seek); err != nil {
		t.Fatalf("ChooseSeekGender(%d): %v", id, err)
	}
	if err := s.ChooseChatType(context.Background(), id, ct); err != nil {
		t.Fatalf("ChooseChatType(%d): %v", id, err)
	}
}

func containsText(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

func TestRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)

	if err := s.Start(ctx, 1, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.HandleText(ctx, 1, "21"); err != nil {
		t.Fatalf("age input: %v", err)
	}
	if err := s.HandleText(ctx, 1, "Nova"); err != nil {
		t.Fatalf("nickname input: %v", err)
	}
	if err := s.ChooseGender(ctx, 1, user.Female); err != nil {
		t.Fatalf("ChooseGender: %v", err)
	}

	p, _ := fs.GetUser(ctx, 1)
	if p == nil {
		t.Fatal("profile was not created")
	}
	if p.Nickname != "Nova" || p.Age != 21 || p.Gender != user.Female {
		t.Errorf("profile = %+v", p)
	}
	if p.State != user.Idle {
		t.Errorf("state = %v, want idle", p.State)
	}
	if !containsText(fn.textsTo(1), "all set") {
		t.Errorf("missing welcome, got %v", fn.textsTo(1))
	}
}

func TestRegistrationInputValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"age not a number", "old", msgBadAge},
		{"age below minimum", "11", msgBadAge},
		{"age absurd", "500", msgBadAge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fs := newFakeStore()
			fn := &fakeNotifier{}
			s := newTestService(fs, fn)

			if err := s.Start(ctx, 1, 0); err != nil {
				t.Fatalf("Start: %v", err)
			}
			fn.reset()
			if err := s.HandleText(ctx, 1, tt.input); err != nil {
				t.Fatalf("HandleText: %v", err)
			}
			if got := fn.textsTo(1); len(got) != 1 || got[0] != tt.want {
				t.Errorf("reply = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistrationPromoGrant(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := New(matching.NewEngine(), fs, fn, Config{
		PromoUntil: time.Now().Add(time.Hour),
	})

	if err := s.Start(ctx, 1, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.HandleText(ctx, 1, "30")
	s.HandleText(ctx, 1, "Ray")
	s.ChooseGender(ctx, 1, user.Male)

	p, _ := fs.GetUser(ctx, 1)
	if !p.Premium {
		t.Fatal("promo premium was not granted")
	}
	if want := time.Now().Add(premiumDuration).Unix(); p.PremiumUntil < want-5 || p.PremiumUntil > want+5 {
		t.Errorf("premium until = %d, want about %d", p.PremiumUntil, want)
	}
	if !containsText(fn.textsTo(1), "premium for 7 days") {
		t.Error("missing promo notice")
	}
}

func TestReferralCredit(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 10, user.Male)

	if err := s.Start(ctx, 2, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p, _ := fs.GetUser(ctx, 10)
	if p.Referrals != 1 {
		t.Errorf("referrals = %d, want 1", p.Referrals)
	}
	if !containsText(fn.textsTo(10), "invite link") {
		t.Error("referrer was not notified")
	}

	// A second /start from the same pending user must not double-credit.
	if err := s.Start(ctx, 2, 10); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	p, _ = fs.GetUser(ctx, 10)
	if p.Referrals != 1 {
		t.Errorf("referrals after repeat = %d, want 1", p.Referrals)
	}
}

func TestSearchEnqueue(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	searchFor(t, s, 1, user.Female, user.Regular)

	if _, ok := fs.queue[1]; !ok {
		t.Error("queue row was not written")
	}
	p, _ := fs.GetUser(ctx, 1)
	if p.State != user.Searching {
		t.Errorf("state = %v, want searching", p.State)
	}
	last, _ := fn.lastTo(1)
	if !strings.Contains(last.Text, "Searching") {
		t.Errorf("last notice = %q", last.Text)
	}
	if len(last.Keyboard) == 0 {
		t.Error("searching notice has no cancel button")
	}
}

func TestSearchAndMatch(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)

	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)

	for _, id := range []int64{1, 2} {
		p, _ := fs.GetUser(ctx, id)
		if p.State != user.InDialog {
			t.Errorf("user %d state = %v, want in_dialog", id, p.State)
		}
		if !containsText(fn.textsTo(id), "Partner found") {
			t.Errorf("user %d missing match notice: %v", id, fn.textsTo(id))
		}
	}
	if len(fs.chats) != 1 {
		t.Errorf("chat rows = %d, want 1", len(fs.chats))
	}
	if len(fs.queue) != 0 {
		t.Errorf("queue rows = %d, want 0", len(fs.queue))
	}
}

func TestMatchPremiumCard(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	fs.users[2].Premium = true
	fs.users[2].PremiumUntil = time.Now().Add(time.Hour).Unix()

	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)

	if !containsText(fn.textsTo(2), "Your partner:") {
		t.Errorf("premium user did not get the partner card: %v", fn.textsTo(2))
	}
	if containsText(fn.textsTo(1), "Your partner:") {
		t.Error("non-premium user got a partner card")
	}
}

func TestMatchRollbackOnStoreFailure(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	fs.insertChatErr = errors.New("disk on fire")

	searchFor(t, s, 1, user.Female, user.Regular)

	// The second search finds user 1 but cannot persist the chat.
	if err := s.ChooseSeekGender(context.Background(), 2, user.Male); err != nil {
		t.Fatal(err)
	}
	if err := s.ChooseChatType(context.Background(), 2, user.Regular); err == nil {
		t.Fatal("expected an error from the failed write-through")
	}

	if s.engine.SessionCount() != 0 {
		t.Error("session survived the rollback")
	}
	if !s.engine.Queued(1) {
		t.Error("consumed partner was not re-queued")
	}
	if !containsText(fn.textsTo(2), msgTryAgain) {
		t.Error("seeker did not get the advisory")
	}
}

func TestCancelSearch(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	searchFor(t, s, 1, user.Female, user.Regular)
	if err := s.CancelSearch(ctx, 1); err != nil {
		t.Fatalf("CancelSearch: %v", err)
	}

	if _, ok := fs.queue[1]; ok {
		t.Error("queue row survived the cancel")
	}
	p, _ := fs.GetUser(ctx, 1)
	if p.State != user.Idle {
		t.Errorf("state = %v, want idle", p.State)
	}

	// Cancelling again is a no-op advisory.
	fn.reset()
	if err := s.CancelSearch(ctx, 1); err != nil {
		t.Fatalf("second CancelSearch: %v", err)
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgNoSearch {
		t.Errorf("reply = %v, want %q", got, msgNoSearch)
	}
}

func TestStopDialog(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)
	fn.reset()

	if err := s.StopDialog(ctx, 1); err != nil {
		t.Fatalf("StopDialog: %v", err)
	}

	for _, id := range []int64{1, 2} {
		last, ok := fn.lastTo(id)
		if !ok || !strings.Contains(last.Text, "has ended") {
			t.Errorf("user %d missing ended notice", id)
		}
		if len(last.Keyboard) == 0 {
			t.Errorf("user %d ended notice has no rating prompt", id)
		}
		p, _ := fs.GetUser(ctx, id)
		if p.State != user.Idle {
			t.Errorf("user %d state = %v, want idle", id, p.State)
		}
	}
	if len(fs.chats) != 0 {
		t.Error("chat row survived the stop")
	}

	// The partner stopping again gets the advisory, not a second teardown.
	fn.reset()
	if err := s.StopDialog(ctx, 2); err != nil {
		t.Fatalf("second StopDialog: %v", err)
	}
	if got := fn.textsTo(2); len(got) != 1 || got[0] != msgNotInDialog {
		t.Errorf("reply = %v, want %q", got, msgNotInDialog)
	}
	if got := fn.textsTo(1); len(got) != 0 {
		t.Errorf("first user got %v after the dialog already ended", got)
	}
}

func TestRelayTextAndMedia(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)
	fn.reset()

	if err := s.HandleText(ctx, 1, "hello there"); err != nil {
		t.Fatalf("relay text: %v", err)
	}
	if got := fn.textsTo(2); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("partner got %v", got)
	}

	if err := s.HandleMedia(ctx, 2, notify.MediaPhoto, "file123", "look"); err != nil {
		t.Fatalf("relay media: %v", err)
	}
	last, _ := fn.lastTo(1)
	if last.Media == nil || last.Media.Kind != notify.MediaPhoto || last.Media.FileID != "file123" {
		t.Errorf("media relay = %+v", last)
	}
}

func TestRelayFlagsButStillDelivers(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	pub := &fakePublisher{}
	s := newTestService(fs, fn).WithModeration(moderation.NewFilter(), pub)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)
	fn.reset()

	if err := s.HandleText(ctx, 1, "check http://spam.example"); err != nil {
		t.Fatalf("relay: %v", err)
	}

	if got := fn.textsTo(2); len(got) != 1 {
		t.Fatalf("flagged message was not delivered: %v", got)
	}
	if len(pub.events) != 1 {
		t.Fatalf("flag events = %d, want 1", len(pub.events))
	}
	var ev moderation.FlagEvent
	if err := json.Unmarshal(pub.events[0], &ev); err != nil {
		t.Fatalf("bad flag event: %v", err)
	}
	if ev.SenderID != 1 || ev.PartnerID != 2 || ev.Term != "http" {
		t.Errorf("flag event = %+v", ev)
	}
}

func TestRelayRejectsOversizedText(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)
	fn.reset()

	if err := s.HandleText(ctx, 1, strings.Repeat("a", 5000)); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if got := fn.textsTo(2); len(got) != 0 {
		t.Errorf("oversized message was delivered: %d notes", len(got))
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgBadMessage {
		t.Errorf("sender reply = %v", got)
	}
}

func TestRelayOutsideDialog(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	if err := s.HandleMedia(ctx, 1, notify.MediaVoice, "v1", ""); err != nil {
		t.Fatalf("HandleMedia: %v", err)
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgMediaNoDialog {
		t.Errorf("reply = %v", got)
	}
}

func TestRateCrossesBanThreshold(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	fs.users[2].Reputation = user.BanThreshold + 1

	if err := s.Rate(ctx, 1, 2, false); err != nil {
		t.Fatalf("Rate: %v", err)
	}

	p, _ := fs.GetUser(ctx, 2)
	if !p.Banned {
		t.Fatal("crossing the threshold did not ban")
	}
	if !containsText(fn.textsTo(2), "banned") {
		t.Error("target missing the ban notice")
	}
	if !containsText(fn.textsTo(1), msgRateThanks) {
		t.Error("rater missing the thank-you")
	}

	// A further downvote stays banned but emits no second notice.
	fn.reset()
	if err := s.Rate(ctx, 1, 2, false); err != nil {
		t.Fatalf("second Rate: %v", err)
	}
	if containsText(fn.textsTo(2), "banned") {
		t.Error("ban notice repeated")
	}
}

func TestRateSelfIgnored(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	if err := s.Rate(ctx, 1, 1, true); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	p, _ := fs.GetUser(ctx, 1)
	if p.Reputation != 0 {
		t.Errorf("self-rating changed reputation to %d", p.Reputation)
	}
}

func TestBannedUserCannotSearch(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	fs.users[1].Banned = true

	if err := s.RequestSearch(context.Background(), 1); err != nil {
		t.Fatalf("RequestSearch: %v", err)
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgBanned {
		t.Errorf("reply = %v, want ban notice", got)
	}
	if s.engine.QueueLen() != 0 {
		t.Error("banned user reached the queue")
	}
}

func TestAdvanceNextWithoutSavedFilters(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	if err := s.AdvanceNext(context.Background(), 1); err != nil {
		t.Fatalf("AdvanceNext: %v", err)
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgNoSavedSearch {
		t.Errorf("reply = %v, want %q", got, msgNoSavedSearch)
	}
}

func TestAdvanceNextSwitchesPartner(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)
	seedUser(fs, 3, user.Female)
	searchFor(t, s, 1, user.Female, user.Regular)
	searchFor(t, s, 2, user.Male, user.Regular)
	searchFor(t, s, 3, user.Male, user.Regular) // waits in the queue
	fn.reset()

	if err := s.AdvanceNext(ctx, 1); err != nil {
		t.Fatalf("AdvanceNext: %v", err)
	}

	// Old partner got the teardown, the waiting user got the new match.
	if !containsText(fn.textsTo(2), "has ended") {
		t.Errorf("old partner notices: %v", fn.textsTo(2))
	}
	if !containsText(fn.textsTo(3), "Partner found") {
		t.Errorf("new partner notices: %v", fn.textsTo(3))
	}
	if partner, ok := s.engine.Partner(1); !ok || partner != 3 {
		t.Errorf("partner = %d, %t; want 3", partner, ok)
	}
}

func TestProfileEditFlow(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	if err := s.RequestSetName(ctx, 1); err != nil {
		t.Fatalf("RequestSetName: %v", err)
	}
	if err := s.HandleText(ctx, 1, "Falcon"); err != nil {
		t.Fatalf("edit input: %v", err)
	}

	p, _ := fs.GetUser(ctx, 1)
	if p.Nickname != "Falcon" {
		t.Errorf("nickname = %q", p.Nickname)
	}
	if p.State != user.Idle {
		t.Errorf("state = %v, want idle", p.State)
	}
}

func TestProfileReadableWhenBanned(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	fs.users[1].Banned = true

	if err := s.Profile(context.Background(), 1); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if !containsText(fn.textsTo(1), "Your profile") {
		t.Errorf("reply = %v", fn.textsTo(1))
	}
}

func TestPremiumExpiresOnSearch(t *testing.T) {
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	fs.users[1].Premium = true
	fs.users[1].PremiumUntil = time.Now().Add(-time.Hour).Unix()

	searchFor(t, s, 1, user.Female, user.Regular)

	p, _ := fs.GetUser(context.Background(), 1)
	if p.Premium {
		t.Error("expired premium was not cleared")
	}
	if !containsText(fn.textsTo(1), msgPremiumOver) {
		t.Error("missing expiry notice")
	}
}

func TestAdminSurface(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)

	// Non-admin callers are rejected.
	if err := s.AdminStats(ctx, 1); err != nil {
		t.Fatalf("AdminStats: %v", err)
	}
	if got := fn.textsTo(1); len(got) != 1 || got[0] != msgAdminOnly {
		t.Errorf("non-admin reply = %v", got)
	}

	fn.reset()
	if err := s.AdminStats(ctx, 999); err != nil {
		t.Fatalf("AdminStats: %v", err)
	}
	if !containsText(fn.textsTo(999), "Stats") {
		t.Errorf("admin stats reply = %v", fn.textsTo(999))
	}

	// Banning a queued user pulls them out of the queue.
	searchFor(t, s, 1, user.Female, user.Regular)
	if err := s.AdminBan(ctx, 999, 1); err != nil {
		t.Fatalf("AdminBan: %v", err)
	}
	if s.engine.Queued(1) {
		t.Error("banned user still queued")
	}
	p, _ := fs.GetUser(ctx, 1)
	if !p.Banned {
		t.Error("ban flag not set")
	}

	if err := s.AdminUnban(ctx, 999, 1); err != nil {
		t.Fatalf("AdminUnban: %v", err)
	}
	p, _ = fs.GetUser(ctx, 1)
	if p.Banned {
		t.Error("unban did not clear the flag")
	}

	if err := s.AdminDelete(ctx, 999, 1); err != nil {
		t.Fatalf("AdminDelete: %v", err)
	}
	if p, _ := fs.GetUser(ctx, 1); p != nil {
		t.Error("user survived the delete")
	}
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fn := &fakeNotifier{}
	s := newTestService(fs, fn)
	seedUser(fs, 1, user.Male)
	seedUser(fs, 2, user.Female)

	if err := s.Broadcast(ctx, 999, "maintenance tonight"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, id := range []int64{1, 2} {
		if !containsText(fn.textsTo(id), "maintenance tonight") {
			t.Errorf("user %d missed the broadcast", id)
		}
	}
	if !containsText(fn.textsTo(999), "Broadcast sent to 2 users") {
		t.Errorf("admin summary = %v", fn.textsTo(999))
	}
}
