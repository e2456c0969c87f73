package domain

import "time"

// ChatType classifies the chat an update arrived from.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// MessageType is the declared content type of an incoming message.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessagePhoto     MessageType = "photo"
	MessageVideo     MessageType = "video"
	MessageDocument  MessageType = "document"
	MessageAudio     MessageType = "audio"
	MessageVoice     MessageType = "voice"
	MessageSticker   MessageType = "sticker"
	MessageAnimation MessageType = "animation"
	MessageOther     MessageType = "other"
)

// Chat describes the conversation an incoming message belongs to.
// AccessHash is the opaque MTProto hash needed to address the peer again;
// it is plain data here so the engine stays transport-free.
type Chat struct {
	ID          int64
	AccessHash  int64
	Type        ChatType
	Title       string
	MemberCount int
}

// Sender describes the user who sent the incoming message.
type Sender struct {
	ID         int64
	AccessHash int64
	Username   string
	FirstName  string
	LastName   string
	Premium    bool
}

// DisplayName returns the sender's human-readable name, falling back to the
// username when no first name is set.
func (s Sender) DisplayName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	case s.Username != "":
		return s.Username
	default:
		return "Unknown"
	}
}

// MessageContext is the immutable value constructed once at the ingress
// boundary for every inbound event. The condition evaluator and the action
// executor only ever see this type, never gotd updates.
type MessageContext struct {
	Chat     Chat
	Sender   Sender
	ID       int
	Text     string
	Type     MessageType
	Received time.Time
}
