// Package user defines the profile model shared by the matchmaking core:
// gender and chat-type enums, the per-user state machine, and the profile
// record persisted in the users table.
package user

import (
	"errors"
	"fmt"
)

const (
	// MinAge is the youngest age accepted during registration.
	MinAge = 12

	// BanThreshold is the reputation at or below which a user is banned.
	// Crossing it is a one-way gate: recovering reputation does not unban,
	// only an explicit admin unban does.
	BanThreshold = -20
)

// Gender is a user's gender. The domain is binary by product definition.
type Gender int

const (
	Male Gender = iota
	Female
)

// ParseGender converts the persisted integer form back into a Gender.
func ParseGender(v int) (Gender, error) {
	switch Gender(v) {
	case Male, Female:
		return Gender(v), nil
	default:
		return Male, fmt.Errorf("user: invalid gender value %d", v)
	}
}

func (g Gender) String() string {
	if g == Female {
		return "female"
	}
	return "male"
}

// ChatType classifies a conversation. Partners must request the same type.
type ChatType int

const (
	Regular ChatType = iota
	Vulgar
)

// ParseChatType converts the persisted integer form back into a ChatType.
func ParseChatType(v int) (ChatType, error) {
	switch ChatType(v) {
	case Regular, Vulgar:
		return ChatType(v), nil
	default:
		return Regular, fmt.Errorf("user: invalid chat type value %d", v)
	}
}

func (t ChatType) String() string {
	if t == Vulgar {
		return "vulgar"
	}
	return "regular"
}

// State is the operational state gating which operations a user may perform.
// The persisted state column is the single source of truth; there is no
// separate in-memory dialogue state to drift out of sync.
type State int

const (
	Unregistered State = iota
	AwaitingAge
	AwaitingNickname
	AwaitingGender
	Idle
	Searching
	InDialog
	EditingName
	EditingAge
	EditingGender
)

var stateNames = map[State]string{
	Unregistered:     "unregistered",
	AwaitingAge:      "awaiting_age",
	AwaitingNickname: "awaiting_nickname",
	AwaitingGender:   "awaiting_gender",
	Idle:             "idle",
	Searching:        "searching",
	InDialog:         "in_dialog",
	EditingName:      "editing_name",
	EditingAge:       "editing_age",
	EditingGender:    "editing_gender",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Registered reports whether the state belongs to a user with a profile.
func (s State) Registered() bool {
	return s >= Idle
}

// Editing reports whether the state is a short-lived profile-edit sub-state.
// Editing states are reachable only from Idle and always return to Idle.
func (s State) Editing() bool {
	return s == EditingName || s == EditingAge || s == EditingGender
}

// Transition errors surfaced as user-visible advisories (never fatal).
var (
	ErrNotRegistered    = errors.New("user: not registered")
	ErrAlreadySearching = errors.New("user: already searching")
	ErrInDialog         = errors.New("user: already in a dialog")
	ErrNotInDialog      = errors.New("user: not in a dialog")
	ErrNotIdle          = errors.New("user: operation requires idle state")
	ErrBanned           = errors.New("user: banned")
)

// CanStartSearch reports whether a search may begin from s.
func (s State) CanStartSearch() error {
	switch {
	case !s.Registered():
		return ErrNotRegistered
	case s == Searching:
		return ErrAlreadySearching
	case s == InDialog:
		return ErrInDialog
	default:
		return nil
	}
}

// CanRelay reports whether a message may be relayed from s.
func (s State) CanRelay() error {
	if !s.Registered() {
		return ErrNotRegistered
	}
	if s != InDialog {
		return ErrNotInDialog
	}
	return nil
}

// CanEdit reports whether a profile-edit sub-state may be entered from s.
func (s State) CanEdit() error {
	if !s.Registered() {
		return ErrNotRegistered
	}
	if s != Idle && !s.Editing() {
		return ErrNotIdle
	}
	return nil
}

// ValidAge reports whether an age is acceptable for registration.
func ValidAge(age int) bool {
	return age >= MinAge && age < 120
}

// Profile is a persisted user record. SearchGender and SearchType are the
// filters of the most recent search; they are unset before the first one.
type Profile struct {
	ID           int64
	Nickname     string
	Age          int
	Gender       Gender
	SearchGender *Gender
	SearchType   *ChatType
	State        State
	Reputation   int
	Banned       bool
	Referrals    int
	Premium      bool
	PremiumUntil int64 // unix seconds, 0 when never granted
}

// HasSearchFilters reports whether the profile carries saved search filters,
// required by the "next" operation.
func (p *Profile) HasSearchFilters() bool {
	return p.SearchGender != nil && p.SearchType != nil
}
