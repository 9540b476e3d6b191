// Package bot is the Telegram transport glue: a long-polling loop that maps
// updates onto orchestrator calls. It holds no domain state of its own.
package bot

import (
	"context"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sinchat/chat-service/internal/notify"
	"github.com/sinchat/chat-service/internal/service"
	"github.com/sinchat/chat-service/internal/user"
)

const pollTimeout = 30 // seconds, Telegram long-poll

// Bot drives the update loop.
type Bot struct {
	api *tgbotapi.BotAPI
	svc *service.Service
}

// New wires the dispatcher to an authorized bot and the orchestrator.
func New(api *tgbotapi.BotAPI, svc *service.Service) *Bot {
	return &Bot{api: api, svc: svc}
}

// Run polls for updates until the context is cancelled. Each update is
// handled on its own goroutine; the orchestrator serializes what must be
// serialized.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	log.Printf("[bot] dispatcher started as @%s", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Printf("[bot] dispatcher stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	}
	if err != nil {
		log.Printf("[bot] update %d: %v", update.UpdateID, err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return nil
	}
	from := msg.Chat.ID

	if msg.IsCommand() {
		return b.handleCommand(ctx, from, msg)
	}
	if payload, ok := mediaPayload(msg); ok {
		return b.svc.HandleMedia(ctx, from, payload.Kind, payload.FileID, payload.Caption)
	}
	if msg.Text != "" {
		return b.svc.HandleText(ctx, from, msg.Text)
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, from int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return b.svc.Start(ctx, from, parseID(args))
	case "search":
		return b.svc.RequestSearch(ctx, from)
	case "next":
		return b.svc.AdvanceNext(ctx, from)
	case "stop":
		return b.svc.StopDialog(ctx, from)
	case "cancel":
		return b.svc.CancelSearch(ctx, from)
	case "setname":
		return b.svc.RequestSetName(ctx, from)
	case "setage":
		return b.svc.RequestSetAge(ctx, from)
	case "setgender":
		return b.svc.RequestSetGender(ctx, from)
	case "userinfo":
		if target := parseID(args); target != 0 {
			return b.svc.AdminUserInfo(ctx, from, target)
		}
		return b.svc.Profile(ctx, from)
	case "referral":
		return b.svc.Referral(ctx, from)
	case "top":
		return b.svc.TopReferrals(ctx, from)
	case "toprep":
		return b.svc.TopReputation(ctx, from)
	case "rules", "help":
		return b.svc.Rules(ctx, from)
	case "admin":
		return b.svc.AdminStats(ctx, from)
	case "message":
		return b.svc.Broadcast(ctx, from, args)
	case "ban":
		return b.svc.AdminBan(ctx, from, parseID(args))
	case "unban":
		return b.svc.AdminUnban(ctx, from, parseID(args))
	case "delete":
		return b.svc.AdminDelete(ctx, from, parseID(args))
	default:
		log.Printf("[bot] unknown command %q from %d", msg.Command(), from)
		return nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	// Acknowledge first so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[bot] callback ack: %v", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	from := cb.Message.Chat.ID

	switch data := cb.Data; {
	case data == service.CBGenderMale:
		return b.svc.ChooseGender(ctx, from, user.Male)
	case data == service.CBGenderFemale:
		return b.svc.ChooseGender(ctx, from, user.Female)
	case data == service.CBSeekMale:
		return b.svc.ChooseSeekGender(ctx, from, user.Male)
	case data == service.CBSeekFemale:
		return b.svc.ChooseSeekGender(ctx, from, user.Female)
	case data == service.CBTypeRegular:
		return b.svc.ChooseChatType(ctx, from, user.Regular)
	case data == service.CBTypeVulgar:
		return b.svc.ChooseChatType(ctx, from, user.Vulgar)
	case data == service.CBCancelSearch:
		return b.svc.CancelSearch(ctx, from)
	case strings.HasPrefix(data, service.CBLikePrefix):
		return b.svc.Rate(ctx, from, parseID(strings.TrimPrefix(data, service.CBLikePrefix)), true)
	case strings.HasPrefix(data, service.CBDislikePrefix):
		return b.svc.Rate(ctx, from, parseID(strings.TrimPrefix(data, service.CBDislikePrefix)), false)
	default:
		log.Printf("[bot] unknown callback %q from %d", data, from)
		return nil
	}
}

// mediaPayload extracts the relayable media reference of a message, if any.
func mediaPayload(msg *tgbotapi.Message) (notify.MediaRef, bool) {
	switch {
	case len(msg.Photo) > 0:
		// The last size is the largest.
		return notify.MediaRef{Kind: notify.MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return notify.MediaRef{Kind: notify.MediaVideo, FileID: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Voice != nil:
		return notify.MediaRef{Kind: notify.MediaVoice, FileID: msg.Voice.FileID}, true
	case msg.Sticker != nil:
		return notify.MediaRef{Kind: notify.MediaSticker, FileID: msg.Sticker.FileID}, true
	case msg.Animation != nil:
		return notify.MediaRef{Kind: notify.MediaAnimation, FileID: msg.Animation.FileID, Caption: msg.Caption}, true
	case msg.VideoNote != nil:
		return notify.MediaRef{Kind: notify.MediaVideoNote, FileID: msg.VideoNote.FileID}, true
	default:
		return notify.MediaRef{}, false
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
