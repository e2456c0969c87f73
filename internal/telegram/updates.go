package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/engine"
	"github.com/lueurxax/telegram-autoreply-bot/internal/worker"
)

// Handler consumes one mapped inbound message on behalf of an account.
type Handler interface {
	HandleMessage(ctx context.Context, accountID string, transport engine.Transport, msg domain.MessageContext) error
	HandleCallback(ctx context.Context, accountID string, transport engine.Transport, key engine.CallbackKey, msg domain.MessageContext) error
}

// newDispatcher wires gotd updates to the handler. Outgoing and self-sent
// messages are dropped at this boundary so the engine never replies to its
// own traffic. The self id and transport are resolved per update because
// both become available only after the client authenticates.
//
// gotd invokes dispatcher handlers sequentially from the client's update
// loop, so each mapped event is handed to the engine on its own goroutine:
// an action delay in one invocation must not stall later messages. The
// goroutine inherits the client's run context, so shutdown still cancels
// in-flight work.
func newDispatcher(accountID string, selfID func() int64, transport func() *Transport, handler Handler, logger *zerolog.Logger) tg.UpdateDispatcher {
	dispatcher := tg.NewUpdateDispatcher()

	onMessage := func(ctx context.Context, e tg.Entities, m tg.MessageClass) error {
		msg, ok := m.(*tg.Message)
		if !ok || msg.Out {
			return nil
		}

		t := transport()
		if t == nil {
			return nil
		}

		mctx, ok := buildContext(e, msg, selfID())
		if !ok {
			return nil
		}

		go func() {
			defer worker.RecoverPanic(logger, "handle message")

			if err := handler.HandleMessage(ctx, accountID, t, mctx); err != nil {
				logger.Error().Err(err).Int64("chat_id", mctx.Chat.ID).Msg("message handling failed")
			}
		}()

		return nil
	}

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return onMessage(ctx, e, u.Message)
	})

	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return onMessage(ctx, e, u.Message)
	})

	dispatcher.OnBotCallbackQuery(func(ctx context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
		t := transport()
		if t == nil {
			return nil
		}

		key, ok := parseCallbackData(u.Data)
		if !ok {
			return nil
		}

		mctx := callbackContext(e, u)

		go func() {
			defer worker.RecoverPanic(logger, "handle callback")

			if err := handler.HandleCallback(ctx, accountID, t, key, mctx); err != nil {
				logger.Error().Err(err).Str("rule_id", key.RuleID).Msg("callback handling failed")
			}
		}()

		return nil
	})

	return dispatcher
}

// buildContext maps a raw message and its entities to the engine's view.
// Returns false for messages without an identifiable human sender.
func buildContext(e tg.Entities, msg *tg.Message, selfID int64) (domain.MessageContext, bool) {
	chat, ok := chatFromPeer(e, msg.PeerID)
	if !ok {
		return domain.MessageContext{}, false
	}

	senderID := senderIDOf(msg)
	if senderID == 0 || senderID == selfID {
		return domain.MessageContext{}, false
	}

	sender := domain.Sender{ID: senderID}
	if user, ok := e.Users[senderID]; ok {
		sender.AccessHash = user.AccessHash
		sender.Username = user.Username
		sender.FirstName = user.FirstName
		sender.LastName = user.LastName
		sender.Premium = user.Premium
	}

	return domain.MessageContext{
		Chat:     chat,
		Sender:   sender,
		ID:       msg.ID,
		Text:     msg.Message,
		Type:     classifyMessage(msg),
		Received: time.Unix(int64(msg.Date), 0),
	}, true
}

func senderIDOf(msg *tg.Message) int64 {
	if msg.FromID != nil {
		if peer, ok := msg.FromID.(*tg.PeerUser); ok {
			return peer.UserID
		}

		return 0
	}

	// Private dialogs omit FromID; the peer is the interlocutor.
	if peer, ok := msg.PeerID.(*tg.PeerUser); ok {
		return peer.UserID
	}

	return 0
}

func chatFromPeer(e tg.Entities, peer tg.PeerClass) (domain.Chat, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		chat := domain.Chat{ID: p.UserID, Type: domain.ChatPrivate}
		if user, ok := e.Users[p.UserID]; ok {
			chat.AccessHash = user.AccessHash
		}

		return chat, true
	case *tg.PeerChat:
		chat := domain.Chat{ID: p.ChatID, Type: domain.ChatGroup}
		if c, ok := e.Chats[p.ChatID]; ok {
			chat.Title = c.Title
			chat.MemberCount = c.ParticipantsCount
		}

		return chat, true
	case *tg.PeerChannel:
		chat := domain.Chat{ID: p.ChannelID, Type: domain.ChatSupergroup}
		if channel, ok := e.Channels[p.ChannelID]; ok {
			chat.AccessHash = channel.AccessHash
			chat.Title = channel.Title
			chat.MemberCount = channel.ParticipantsCount

			if channel.Broadcast {
				chat.Type = domain.ChatChannel
			}
		}

		return chat, true
	default:
		return domain.Chat{}, false
	}
}

func classifyMessage(msg *tg.Message) domain.MessageType {
	if msg.Media == nil {
		return domain.MessageText
	}

	switch media := msg.Media.(type) {
	case *tg.MessageMediaPhoto:
		return domain.MessagePhoto
	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok {
			return domain.MessageDocument
		}

		return classifyDocument(doc)
	default:
		return domain.MessageOther
	}
}

func classifyDocument(doc *tg.Document) domain.MessageType {
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return domain.MessageSticker
		case *tg.DocumentAttributeAnimated:
			return domain.MessageAnimation
		case *tg.DocumentAttributeVideo:
			return domain.MessageVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return domain.MessageVoice
			}

			return domain.MessageAudio
		}
	}

	return domain.MessageDocument
}

func parseCallbackData(data []byte) (engine.CallbackKey, bool) {
	ruleID, buttonID, found := strings.Cut(string(data), ":")
	if !found || ruleID == "" || buttonID == "" {
		return engine.CallbackKey{}, false
	}

	return engine.CallbackKey{RuleID: ruleID, ButtonID: buttonID}, true
}

func callbackContext(e tg.Entities, u *tg.UpdateBotCallbackQuery) domain.MessageContext {
	chat, _ := chatFromPeer(e, u.Peer)

	sender := domain.Sender{ID: u.UserID}
	if user, ok := e.Users[u.UserID]; ok {
		sender.AccessHash = user.AccessHash
		sender.Username = user.Username
		sender.FirstName = user.FirstName
		sender.LastName = user.LastName
		sender.Premium = user.Premium
	}

	return domain.MessageContext{
		Chat:     chat,
		Sender:   sender,
		ID:       u.MsgID,
		Type:     domain.MessageOther,
		Received: time.Now(),
	}
}
