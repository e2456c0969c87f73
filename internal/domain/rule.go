package domain

import (
	"errors"
	"time"
)

// ErrUnknownConditionKind indicates a condition envelope carried an
// unrecognized type tag.
var ErrUnknownConditionKind = errors.New("unknown condition kind")

// ContentType classifies one MediaContent entry of an action.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentImage   ContentType = "image"
	ContentSticker ContentType = "sticker"
	ContentEmoji   ContentType = "emoji"
)

// MediaContent is one item an action sends. Text and captions run through
// the template renderer before dispatch. Image and sticker entries reference
// a stored MediaItem by id; emoji entries are sent as plain text.
type MediaContent struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	MediaID string      `json:"media_id,omitempty"`
	Emoji   string      `json:"emoji,omitempty"`
}

// InlineButton is one button in an action's inline keyboard. A button is
// either a URL link or a callback trigger carrying an embedded action that
// runs when the button is pressed.
type InlineButton struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	URL    string  `json:"url,omitempty"`
	Action *Action `json:"action,omitempty"`
}

// IsCallback reports whether pressing the button should trigger its embedded
// action rather than open a URL.
func (b InlineButton) IsCallback() bool { return b.URL == "" && b.Action != nil }

// Action is one ordered step of a rule's response sequence.
type Action struct {
	DelaySeconds      int              `json:"delay_seconds,omitempty"`
	Contents          []MediaContent   `json:"contents,omitempty"`
	Buttons           [][]InlineButton `json:"buttons,omitempty"`
	Reactions         []string         `json:"reactions,omitempty"`
	AutoDeleteSeconds int              `json:"auto_delete_seconds,omitempty"`
	ReplyToMessage    bool             `json:"reply_to_message,omitempty"`
}

// ConditionalBranch pairs a condition conjunction with an if-action and an
// optional else-action. Branches are evaluated independently of the rule's
// own condition list.
type ConditionalBranch struct {
	Conditions ConditionList `json:"conditions"`
	IfAction   *Action       `json:"if_action,omitempty"`
	ElseAction *Action       `json:"else_action,omitempty"`
}

// Rule is a named, prioritized auto-reply policy. Higher priority wins;
// among equals the rule created first wins. A nil AccountID scopes the rule
// to every account.
type Rule struct {
	ID                string
	Name              string
	Active            bool
	Priority          int
	AccountID         *string
	Conditions        ConditionList
	Actions           []Action
	Branches          []ConditionalBranch
	CooldownSeconds   int
	MaxTriggersPerDay *int
	UsageCount        int64
	SuccessCount      int64
	ErrorCount        int64
	LastTriggered     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppliesTo reports whether the rule is scoped to the given account or is
// global.
func (r *Rule) AppliesTo(accountID string) bool {
	return r.AccountID == nil || *r.AccountID == accountID
}

// OnCooldown reports whether the rule fired more recently than its cooldown
// window. A rule that fired exactly cooldown seconds ago is eligible again.
func (r *Rule) OnCooldown(now time.Time) bool {
	if r.CooldownSeconds <= 0 || r.LastTriggered == nil {
		return false
	}

	return now.Sub(*r.LastTriggered) < time.Duration(r.CooldownSeconds)*time.Second
}

// MediaKind classifies a stored media item.
type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaSticker MediaKind = "sticker"
)

// MediaItem is an uploaded asset referenced by MediaContent entries.
// Stickers are re-sent by document id; images by file path.
type MediaItem struct {
	ID                string
	Kind              MediaKind
	FilePath          string
	StickerID         int64
	StickerAccessHash int64
	StickerFileRef    []byte
	Active            bool
	CreatedAt         time.Time
}
