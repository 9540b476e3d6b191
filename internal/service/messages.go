package service

import (
	"fmt"
	"strings"

	"github.com/sinchat/chat-service/internal/store"
	"github.com/sinchat/chat-service/internal/user"
)

// Every user-facing text lives here so wording changes never touch logic.

const (
	msgAskAge        = "Welcome! Let's set up your anonymous profile.\n\nHow old are you?"
	msgAskNickname   = "Got it. Now pick a nickname — it's the only thing your partners will see."
	msgAskGender     = "Almost done. What's your gender?"
	msgBadAge        = "Please send your age as a number (12 or older)."
	msgBadNickname   = "That nickname won't work — it must be 1 to 32 characters."
	msgRegistered    = "You're all set! Use /search to find a partner."
	msgPromoGranted  = "🎁 Promo bonus: you've got premium for 7 days. Premium shows you your partner's profile card on every match."
	msgAlreadyKnown  = "Welcome back! Use /search to find a partner, or /userinfo to see your profile."
	msgBanned        = "You are banned and cannot use the chat. Contact the administrator if you believe this is a mistake."
	msgBanNotice     = "You have been banned: your reputation dropped too low."
	msgUnbanned      = "You have been unbanned. Behave!"
	msgNotRegistered = "You're not registered yet. Send /start to begin."

	msgAskSeekGender = "Who do you want to talk to?"
	msgAskChatType   = "What kind of chat are you looking for?"
	msgSearching     = "🔍 Searching for a partner… I'll message you the moment someone compatible shows up.\nUse /cancel to stop searching."
	msgStillQueued   = "You're already in the queue — hang tight."
	msgMatchFound    = "🎉 Partner found! Say hi. Use /next for a new partner or /stop to end the chat."
	msgSearchCancel  = "Search cancelled."
	msgNoSearch      = "You weren't searching."
	msgInDialogHint  = "You're in a chat right now. Use /stop to end it or /next to switch partners."
	msgSearchLimited = "Easy there — too many search requests. Try again in a minute."

	msgDialogEnded   = "The chat has ended. How was your partner?"
	msgNotInDialog   = "You're not in a chat. Use /search to find a partner."
	msgNoSavedSearch = "You haven't searched yet, so /next has nothing to repeat. Use /search first."
	msgRelayLimited  = "You're sending messages too fast — give it a few seconds."
	msgBadMessage    = "That message can't be delivered: it's empty, too long or malformed."
	msgRelayDropped  = "Your partner is gone. Use /search to find a new one."
	msgRateThanks    = "Thanks for the feedback!"
	msgMediaNoDialog = "Media can only be sent inside a chat. Use /search to find a partner."

	msgAskNewName    = "Send your new nickname."
	msgAskNewAge     = "Send your new age."
	msgAskNewGender  = "Choose your new gender."
	msgProfileSaved  = "Profile updated."
	msgEditBusy      = "Finish your current chat or search before editing your profile."
	msgPremiumOver   = "Your premium has expired."
	msgUnknownInput  = "I didn't get that. Try /search, or /rules for the full command list."
	msgRules         = "Rules:\n1. Be respectful — your reputation follows you.\n2. No links, no advertising, no illegal content.\n3. Messages are anonymous but moderated.\n\nCommands: /search — find a partner, /next — switch partners, /stop — end chat, /cancel — stop searching, /setname /setage /setgender — edit profile, /userinfo — your profile, /referral — invite friends, /top — referral board, /toprep — reputation board."

	msgReferralJoined = "🎉 Someone joined using your invite link! Your referral count went up."

	msgAdminOnly      = "This command is for the administrator."
	msgUserNotFound   = "No such user."
	msgDeleted        = "User deleted."
	msgBroadcastEmpty = "Usage: /message <text>"
	msgTryAgain       = "Something went wrong on our side. Please try again."
)

func fmtProfile(p *user.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your profile:\n")
	fmt.Fprintf(&b, "Nickname: %s\n", p.Nickname)
	fmt.Fprintf(&b, "Age: %d\n", p.Age)
	fmt.Fprintf(&b, "Gender: %s\n", genderLabel(p.Gender))
	fmt.Fprintf(&b, "Reputation: %d\n", p.Reputation)
	fmt.Fprintf(&b, "Referrals: %d", p.Referrals)
	if p.Premium {
		b.WriteString("\nPremium: active ⭐")
	}
	if p.Banned {
		b.WriteString("\nStatus: banned")
	}
	return b.String()
}

// fmtPartnerCard is the premium-only card shown on match.
func fmtPartnerCard(p *user.Profile) string {
	return fmt.Sprintf("⭐ Your partner:\nID: %d\nNickname: %s\nAge: %d\nGender: %s",
		p.ID, p.Nickname, p.Age, genderLabel(p.Gender))
}

func fmtReferralLink(username string, userID int64) string {
	return fmt.Sprintf("Invite friends and climb the board!\nYour link: https://t.me/%s?start=%d", username, userID)
}

func fmtTopBoard(title string, users []user.Profile, value func(user.Profile) int) string {
	var b strings.Builder
	b.WriteString(title)
	for i, u := range users {
		fmt.Fprintf(&b, "\n%d. %s — %d", i+1, u.Nickname, value(u))
	}
	if len(users) == 0 {
		b.WriteString("\nNobody here yet.")
	}
	return b.String()
}

func fmtStats(st *store.Stats) string {
	return fmt.Sprintf(
		"📊 Stats:\nUsers: %d (♂ %d / ♀ %d)\nActive chats: %d\nIn queue: %d (♂ %d / ♀ %d)",
		st.TotalUsers, st.Males, st.Females,
		st.ActiveChats, st.QueueSize, st.QueueMales, st.QueueFemales,
	)
}

func fmtAdminUserInfo(p *user.Profile) string {
	return fmt.Sprintf(
		"User %d:\nNickname: %s\nAge: %d\nGender: %s\nState: %s\nReputation: %d\nReferrals: %d\nBanned: %t\nPremium: %t",
		p.ID, p.Nickname, p.Age, genderLabel(p.Gender), p.State,
		p.Reputation, p.Referrals, p.Banned, p.Premium,
	)
}

func genderLabel(g user.Gender) string {
	if g == user.Female {
		return "female"
	}
	return "male"
}
