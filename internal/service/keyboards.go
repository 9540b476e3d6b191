package service

import (
	"fmt"

	"github.com/sinchat/chat-service/internal/notify"
)

// Callback data exchanged with the transport layer. The dispatcher parses
// incoming callback queries against these and routes back into the service.
const (
	CBGenderMale   = "gender_male"
	CBGenderFemale = "gender_female"
	CBSeekMale     = "seek_male"
	CBSeekFemale   = "seek_female"
	CBTypeRegular  = "type_regular"
	CBTypeVulgar   = "type_vulgar"
	CBCancelSearch = "cancel_search"

	// Rating callbacks carry the rated partner's id: like_<id> / dislike_<id>.
	CBLikePrefix    = "like_"
	CBDislikePrefix = "dislike_"
)

func genderKeyboard(maleData, femaleData string) [][]notify.Button {
	return [][]notify.Button{{
		{Label: "♂ Male", Data: maleData},
		{Label: "♀ Female", Data: femaleData},
	}}
}

func chatTypeKeyboard() [][]notify.Button {
	return [][]notify.Button{{
		{Label: "💬 Regular", Data: CBTypeRegular},
		{Label: "🔞 Vulgar", Data: CBTypeVulgar},
	}}
}

func cancelSearchKeyboard() [][]notify.Button {
	return [][]notify.Button{{
		{Label: "✖ Cancel search", Data: CBCancelSearch},
	}}
}

func ratingKeyboard(partnerID int64) [][]notify.Button {
	return [][]notify.Button{{
		{Label: "👍", Data: fmt.Sprintf("%s%d", CBLikePrefix, partnerID)},
		{Label: "👎", Data: fmt.Sprintf("%s%d", CBDislikePrefix, partnerID)},
	}}
}
