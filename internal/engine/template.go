package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

const (
	placeholderUserName    = "{user_name}"
	placeholderUserID      = "{user_id}"
	placeholderUsername    = "{username}"
	placeholderChatTitle   = "{chat_title}"
	placeholderChatID      = "{chat_id}"
	placeholderTime        = "{time}"
	placeholderDate        = "{date}"
	placeholderMessageText = "{message_text}"

	renderTimeFormat = "15:04"
	renderDateFormat = "2006-01-02"
)

// RenderTemplate substitutes the fixed placeholder set with values from the
// message context. Substitution is a single pass: placeholder text inside a
// substituted value is left as-is, and unknown placeholders stay verbatim.
func RenderTemplate(text string, msg domain.MessageContext, now time.Time) string {
	if !strings.Contains(text, "{") {
		return text
	}

	return strings.NewReplacer(
		placeholderUserName, msg.Sender.DisplayName(),
		placeholderUserID, strconv.FormatInt(msg.Sender.ID, 10),
		placeholderUsername, usernameOrFallback(msg.Sender),
		placeholderChatTitle, chatTitleOrFallback(msg),
		placeholderChatID, strconv.FormatInt(msg.Chat.ID, 10),
		placeholderTime, now.Format(renderTimeFormat),
		placeholderDate, now.Format(renderDateFormat),
		placeholderMessageText, msg.Text,
	).Replace(text)
}

func usernameOrFallback(sender domain.Sender) string {
	if sender.Username != "" {
		return "@" + sender.Username
	}

	return sender.DisplayName()
}

func chatTitleOrFallback(msg domain.MessageContext) string {
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}

	if msg.Chat.Type == domain.ChatPrivate {
		return msg.Sender.DisplayName()
	}

	return "Unknown chat"
}
