// Package engine implements the auto-reply policy engine: given an inbound
// message, decide whether any configured rule applies and execute the
// winning rule's action sequence under rate and cooldown constraints.
//
// The engine only depends on the repository and transport interfaces below;
// storage and gotd implementations are injected, fakes serve in tests.
package engine

import (
	"context"
	"time"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// RuleRepository provides rule reads and counter writes. Counter updates
// must be atomic at the storage level.
type RuleRepository interface {
	// ActiveRules returns active rules scoped to the account or globally
	// scoped, ordered by creation time ascending.
	ActiveRules(ctx context.Context, accountID string) ([]domain.Rule, error)

	// RecordRuleSuccess increments usage and success counters and sets the
	// last-triggered timestamp.
	RecordRuleSuccess(ctx context.Context, ruleID string) error

	// RecordRuleError increments the error counter only.
	RecordRuleError(ctx context.Context, ruleID string) error
}

// SettingsRepository provides the bot settings singleton and its counter
// writes.
type SettingsRepository interface {
	Settings(ctx context.Context) (domain.BotSettings, error)
	ResetDailyCounter(ctx context.Context, settingsID string) error
	IncrementDailyResponses(ctx context.Context, settingsID string) error
}

// ActivityRepository persists audit records and per-rule daily aggregates.
type ActivityRepository interface {
	InsertActivity(ctx context.Context, entry domain.ActivityLogEntry) error
	CountRuleTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	UpsertDailyStats(ctx context.Context, ruleID string, day time.Time, success bool) error
}

// MediaRepository resolves stored media referenced by actions.
type MediaRepository interface {
	MediaByID(ctx context.Context, id string) (*domain.MediaItem, error)
}

// SendOptions carries per-send modifiers.
type SendOptions struct {
	// ReplyTo threads the outgoing message to the given message id when
	// non-zero.
	ReplyTo int

	// Buttons is the inline keyboard grid to attach, if any.
	Buttons [][]domain.InlineButton

	// RuleID namespaces callback button data so presses route back to the
	// owning rule.
	RuleID string
}

// Transport is the messaging surface of one live account connection.
// Implementations must be safe for concurrent use by multiple in-flight
// message-processing tasks.
type Transport interface {
	SendText(ctx context.Context, chat domain.Chat, text string, opts SendOptions) (int, error)
	SendImage(ctx context.Context, chat domain.Chat, media *domain.MediaItem, caption string, opts SendOptions) (int, error)
	SendSticker(ctx context.Context, chat domain.Chat, media *domain.MediaItem, opts SendOptions) (int, error)
	React(ctx context.Context, chat domain.Chat, messageID int, emoji string) error
	DeleteMessage(ctx context.Context, chat domain.Chat, messageID int) error
}
