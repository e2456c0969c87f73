package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/engine"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
)

const maxFloodRetries = 2

// Transport adapts one account's raw MTProto API to the engine's messaging
// surface. All sends share a rate limiter so a burst of matched rules cannot
// trip Telegram's flood control.
type Transport struct {
	api     *tg.Client
	upload  *uploader.Uploader
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewTransport(api *tg.Client, rps float64, logger *zerolog.Logger) *Transport {
	if rps <= 0 {
		rps = 1
	}

	return &Transport{
		api:     api,
		upload:  uploader.NewUploader(api),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

func (t *Transport) SendText(ctx context.Context, chat domain.Chat, text string, opts engine.SendOptions) (int, error) {
	var msgID int

	err := t.send(ctx, "text", func(ctx context.Context) error {
		updates, err := t.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:        inputPeer(chat),
			Message:     text,
			RandomID:    rand.Int63(),
			ReplyTo:     replyTo(opts.ReplyTo),
			ReplyMarkup: buildMarkup(opts),
		})
		if err != nil {
			return err
		}

		msgID = sentMessageID(updates)

		return nil
	})

	return msgID, err
}

func (t *Transport) SendImage(ctx context.Context, chat domain.Chat, media *domain.MediaItem, caption string, opts engine.SendOptions) (int, error) {
	file, err := t.upload.FromPath(ctx, media.FilePath)
	if err != nil {
		return 0, fmt.Errorf("upload image %s: %w", media.FilePath, err)
	}

	var msgID int

	err = t.send(ctx, "image", func(ctx context.Context) error {
		updates, err := t.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:        inputPeer(chat),
			Media:       &tg.InputMediaUploadedPhoto{File: file},
			Message:     caption,
			RandomID:    rand.Int63(),
			ReplyTo:     replyTo(opts.ReplyTo),
			ReplyMarkup: buildMarkup(opts),
		})
		if err != nil {
			return err
		}

		msgID = sentMessageID(updates)

		return nil
	})

	return msgID, err
}

func (t *Transport) SendSticker(ctx context.Context, chat domain.Chat, media *domain.MediaItem, opts engine.SendOptions) (int, error) {
	var msgID int

	err := t.send(ctx, "sticker", func(ctx context.Context) error {
		updates, err := t.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer: inputPeer(chat),
			Media: &tg.InputMediaDocument{
				ID: &tg.InputDocument{
					ID:            media.StickerID,
					AccessHash:    media.StickerAccessHash,
					FileReference: media.StickerFileRef,
				},
			},
			RandomID: rand.Int63(),
			ReplyTo:  replyTo(opts.ReplyTo),
		})
		if err != nil {
			return err
		}

		msgID = sentMessageID(updates)

		return nil
	})

	return msgID, err
}

func (t *Transport) React(ctx context.Context, chat domain.Chat, messageID int, emoji string) error {
	return t.send(ctx, "reaction", func(ctx context.Context) error {
		_, err := t.api.MessagesSendReaction(ctx, &tg.MessagesSendReactionRequest{
			Peer:     inputPeer(chat),
			MsgID:    messageID,
			Reaction: []tg.ReactionClass{&tg.ReactionEmoji{Emoticon: emoji}},
		})

		return err
	})
}

func (t *Transport) DeleteMessage(ctx context.Context, chat domain.Chat, messageID int) error {
	return t.send(ctx, "delete", func(ctx context.Context) error {
		if chat.Type == domain.ChatSupergroup || chat.Type == domain.ChatChannel {
			_, err := t.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
				Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
				ID:      []int{messageID},
			})

			return err
		}

		_, err := t.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
			Revoke: true,
			ID:     []int{messageID},
		})

		return err
	})
}

// send applies the shared rate limit, records metrics, and retries flood
// waits a bounded number of times.
func (t *Transport) send(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			observability.SendsTotal.WithLabelValues(kind, observability.StatusOK).Inc()
			observability.SendDuration.Observe(time.Since(start).Seconds())

			return nil
		}

		floodErr, ok := tgerr.As(err)
		if ok && floodErr.Type == "FLOOD_WAIT" && attempt < maxFloodRetries {
			wait := time.Duration(floodErr.Argument) * time.Second
			observability.FloodWaitSecondsTotal.Add(wait.Seconds())
			t.logger.Warn().Int("seconds", floodErr.Argument).Str("kind", kind).Msg("flood wait")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

			continue
		}

		observability.SendsTotal.WithLabelValues(kind, observability.StatusError).Inc()

		return fmt.Errorf("send %s: %w", kind, err)
	}
}

func inputPeer(chat domain.Chat) tg.InputPeerClass {
	switch chat.Type {
	case domain.ChatPrivate:
		return &tg.InputPeerUser{UserID: chat.ID, AccessHash: chat.AccessHash}
	case domain.ChatGroup:
		return &tg.InputPeerChat{ChatID: chat.ID}
	default:
		return &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
	}
}

func replyTo(messageID int) tg.InputReplyToClass {
	if messageID == 0 {
		return nil
	}

	return &tg.InputReplyToMessage{ReplyToMsgID: messageID}
}

// buildMarkup converts the action's button grid to an inline keyboard.
// Callback data carries "<rule id>:<button id>" so presses route back to the
// owning rule.
func buildMarkup(opts engine.SendOptions) tg.ReplyMarkupClass {
	if len(opts.Buttons) == 0 {
		return nil
	}

	rows := make([]tg.KeyboardButtonRow, 0, len(opts.Buttons))

	for _, row := range opts.Buttons {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))

		for _, btn := range row {
			if btn.URL != "" {
				buttons = append(buttons, &tg.KeyboardButtonURL{Text: btn.Label, URL: btn.URL})

				continue
			}

			buttons = append(buttons, &tg.KeyboardButtonCallback{
				Text: btn.Label,
				Data: []byte(opts.RuleID + ":" + btn.ID),
			})
		}

		rows = append(rows, tg.KeyboardButtonRow{Buttons: buttons})
	}

	return &tg.ReplyInlineMarkup{Rows: rows}
}

// sentMessageID digs the assigned message id out of the send response.
// Returns 0 when the response shape carries none; auto-delete then skips the
// message.
func sentMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, upd := range u.Updates {
			switch v := upd.(type) {
			case *tg.UpdateMessageID:
				return v.ID
			case *tg.UpdateNewMessage:
				if msg, ok := v.Message.(*tg.Message); ok {
					return msg.ID
				}
			case *tg.UpdateNewChannelMessage:
				if msg, ok := v.Message.(*tg.Message); ok {
					return msg.ID
				}
			}
		}
	}

	return 0
}
