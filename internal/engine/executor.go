package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
	"github.com/lueurxax/telegram-autoreply-bot/internal/worker"
)

const (
	actionExecutedFmt = "Executed rule: %s"
	actionFailedFmt   = "Failed to execute rule: %s"
	buttonExecuted    = "Executed button action"

	maxLoggedMessageLen = 100
)

// ExecutionResult reports the outcome of one rule invocation.
type ExecutionResult struct {
	// Success is true when every queued action completed.
	Success bool

	// Skipped is true when gating (cooldown, daily cap) rejected the
	// invocation before any action ran. Skips are silent: no log entry, no
	// counter change.
	Skipped bool

	// ActionsRun counts fully completed actions.
	ActionsRun int

	// Err carries the failure that aborted the invocation, if any.
	Err error
}

// Executor runs a matched rule's action sequence: conditional branches
// first, then the flat action list, strictly in queue order.
type Executor struct {
	rules    RuleRepository
	settings SettingsRepository
	activity ActivityRepository
	media    MediaRepository
	deleter  *Deleter
	logger   *zerolog.Logger

	now     func() time.Time
	randInt func(n int) int
}

func NewExecutor(
	rules RuleRepository,
	settings SettingsRepository,
	activity ActivityRepository,
	media MediaRepository,
	deleter *Deleter,
	logger *zerolog.Logger,
) *Executor {
	return &Executor{
		rules:    rules,
		settings: settings,
		activity: activity,
		media:    media,
		deleter:  deleter,
		logger:   logger,
		now:      time.Now,
		randInt:  rand.Intn,
	}
}

// Execute runs the rule against the message. Gating (cooldown, per-rule
// daily cap) happens first; gated-out invocations are silent no-ops.
// Exactly one outcome, success or failure, is recorded per invocation that
// passes gating.
func (e *Executor) Execute(
	ctx context.Context,
	transport Transport,
	accountID string,
	rule *domain.Rule,
	msg domain.MessageContext,
	settings domain.BotSettings,
) ExecutionResult {
	now := e.now()

	if rule.OnCooldown(now) {
		e.logger.Debug().Str("rule", rule.Name).Msg("rule on cooldown, skipping")

		return ExecutionResult{Skipped: true}
	}

	capped, err := e.overDailyCap(ctx, rule, now)
	if err != nil {
		return ExecutionResult{Err: err}
	}

	if capped {
		e.logger.Debug().Str("rule", rule.Name).Msg("rule over daily trigger cap, skipping")

		return ExecutionResult{Skipped: true}
	}

	queue := buildQueue(rule, msg, now)

	result := e.runQueue(ctx, transport, rule, msg, settings, queue)
	e.recordOutcome(ctx, accountID, rule, msg, settings, result)

	return result
}

// overDailyCap counts today's activity entries for the rule against its
// max-triggers-per-day cap.
func (e *Executor) overDailyCap(ctx context.Context, rule *domain.Rule, now time.Time) (bool, error) {
	if rule.MaxTriggersPerDay == nil {
		return false, nil
	}

	midnight := now.UTC().Truncate(24 * time.Hour)

	count, err := e.activity.CountRuleTriggersSince(ctx, rule.ID, midnight)
	if err != nil {
		return false, fmt.Errorf("count rule triggers: %w", err)
	}

	return count >= *rule.MaxTriggersPerDay, nil
}

// buildQueue evaluates conditional branches (each an independent
// conjunction) and appends the rule's flat action list. Queue order is the
// execution order.
func buildQueue(rule *domain.Rule, msg domain.MessageContext, now time.Time) []domain.Action {
	queue := make([]domain.Action, 0, len(rule.Branches)+len(rule.Actions))

	for _, branch := range rule.Branches {
		if MatchesAll(branch.Conditions, msg, now) {
			if branch.IfAction != nil {
				queue = append(queue, *branch.IfAction)
			}
		} else if branch.ElseAction != nil {
			queue = append(queue, *branch.ElseAction)
		}
	}

	return append(queue, rule.Actions...)
}

// runQueue executes actions sequentially. The first action error aborts the
// remainder; already-completed actions stand.
func (e *Executor) runQueue(
	ctx context.Context,
	transport Transport,
	rule *domain.Rule,
	msg domain.MessageContext,
	settings domain.BotSettings,
	queue []domain.Action,
) ExecutionResult {
	result := ExecutionResult{}

	for i := range queue {
		if err := e.runAction(ctx, transport, rule, msg, settings, &queue[i]); err != nil {
			result.Err = fmt.Errorf("action %d: %w", i, err)

			return result
		}

		result.ActionsRun++
	}

	result.Success = true

	return result
}

// runAction executes one action: delay, rendered content sends, best-effort
// reactions, detached auto-delete scheduling.
func (e *Executor) runAction(
	ctx context.Context,
	transport Transport,
	rule *domain.Rule,
	msg domain.MessageContext,
	settings domain.BotSettings,
	action *domain.Action,
) error {
	if err := worker.Wait(ctx, e.actionDelay(action, settings)); err != nil {
		return err
	}

	opts := SendOptions{
		Buttons: action.Buttons,
		RuleID:  rule.ID,
	}
	if action.ReplyToMessage {
		opts.ReplyTo = msg.ID
	}

	sent := make([]int, 0, len(action.Contents))

	for _, content := range action.Contents {
		msgID, err := e.dispatchContent(ctx, transport, msg, content, opts)
		if err != nil {
			observability.ActionsExecuted.WithLabelValues(string(content.Type), observability.StatusError).Inc()

			return err
		}

		observability.ActionsExecuted.WithLabelValues(string(content.Type), observability.StatusOK).Inc()

		if msgID != 0 {
			sent = append(sent, msgID)
		}
	}

	e.applyReactions(ctx, transport, msg, action.Reactions)

	if action.AutoDeleteSeconds > 0 {
		for _, msgID := range sent {
			e.deleter.Schedule(transport, msg.Chat, msgID, time.Duration(action.AutoDeleteSeconds)*time.Second)
		}
	}

	return nil
}

// actionDelay returns the action's configured delay, or a random delay from
// the settings range when the action has none.
func (e *Executor) actionDelay(action *domain.Action, settings domain.BotSettings) time.Duration {
	if action.DelaySeconds > 0 {
		return time.Duration(action.DelaySeconds) * time.Second
	}

	if settings.ResponseDelayMax <= 0 || settings.ResponseDelayMax < settings.ResponseDelayMin {
		return 0
	}

	span := settings.ResponseDelayMax - settings.ResponseDelayMin + 1
	delay := settings.ResponseDelayMin + e.randInt(span)

	return time.Duration(delay) * time.Second
}

func (e *Executor) dispatchContent(
	ctx context.Context,
	transport Transport,
	msg domain.MessageContext,
	content domain.MediaContent,
	opts SendOptions,
) (int, error) {
	now := e.now()

	switch content.Type {
	case domain.ContentText:
		return transport.SendText(ctx, msg.Chat, RenderTemplate(content.Text, msg, now), opts)
	case domain.ContentEmoji:
		return transport.SendText(ctx, msg.Chat, content.Emoji, opts)
	case domain.ContentImage:
		item, err := e.usableMedia(ctx, content.MediaID)
		if err != nil || item == nil {
			return 0, err
		}

		return transport.SendImage(ctx, msg.Chat, item, RenderTemplate(content.Text, msg, now), opts)
	case domain.ContentSticker:
		item, err := e.usableMedia(ctx, content.MediaID)
		if err != nil || item == nil {
			return 0, err
		}

		return transport.SendSticker(ctx, msg.Chat, item, opts)
	default:
		return 0, fmt.Errorf("unsupported content type %q", content.Type)
	}
}

// usableMedia resolves a media reference. Missing or inactive items are
// skipped with a warning, not treated as invocation failures.
func (e *Executor) usableMedia(ctx context.Context, mediaID string) (*domain.MediaItem, error) {
	item, err := e.media.MediaByID(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("load media %s: %w", mediaID, err)
	}

	if item == nil || !item.Active {
		e.logger.Warn().Str("media_id", mediaID).Msg("media missing or inactive, skipping content")

		return nil, nil
	}

	return item, nil
}

// applyReactions attaches each emoji to the triggering message. Reaction
// failures are logged and never abort the action.
func (e *Executor) applyReactions(ctx context.Context, transport Transport, msg domain.MessageContext, reactions []string) {
	for _, emoji := range reactions {
		if err := transport.React(ctx, msg.Chat, msg.ID, emoji); err != nil {
			e.logger.Warn().Err(err).Str("emoji", emoji).Int64("chat_id", msg.Chat.ID).Msg("reaction failed")
		}
	}
}

// recordOutcome writes exactly one activity entry and counter update for the
// invocation. Recording failures are logged but do not overwrite the
// execution result: at-least-once logging is the accepted failure mode.
func (e *Executor) recordOutcome(ctx context.Context, accountID string, rule *domain.Rule, msg domain.MessageContext, settings domain.BotSettings, result ExecutionResult) {
	now := e.now()
	day := now.UTC().Truncate(24 * time.Hour)

	entry := domain.ActivityLogEntry{
		AccountID:   accountID,
		ChatID:      msg.Chat.ID,
		ChatType:    msg.Chat.Type,
		UserID:      msg.Sender.ID,
		Username:    msg.Sender.Username,
		FirstName:   msg.Sender.FirstName,
		MessageText: truncate(msg.Text, maxLoggedMessageLen),
		RuleID:      &rule.ID,
		Success:     result.Success,
		CreatedAt:   now,
	}

	if result.Success {
		entry.ActionTaken = fmt.Sprintf(actionExecutedFmt, rule.Name)

		if err := e.rules.RecordRuleSuccess(ctx, rule.ID); err != nil {
			e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("record rule success failed")
		}

		if err := e.settings.IncrementDailyResponses(ctx, settings.ID); err != nil {
			e.logger.Error().Err(err).Msg("increment daily responses failed")
		}
	} else {
		entry.ActionTaken = fmt.Sprintf(actionFailedFmt, rule.Name)
		entry.ErrorMessage = result.Err.Error()

		if err := e.rules.RecordRuleError(ctx, rule.ID); err != nil {
			e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("record rule error failed")
		}
	}

	if err := e.activity.InsertActivity(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("insert activity entry failed")
	}

	if err := e.activity.UpsertDailyStats(ctx, rule.ID, day, result.Success); err != nil {
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("upsert daily stats failed")
	}
}

// ExecuteButtonAction runs a callback button's embedded action outside the
// normal gating path and logs it as a button activity.
func (e *Executor) ExecuteButtonAction(
	ctx context.Context,
	transport Transport,
	accountID string,
	rule *domain.Rule,
	action *domain.Action,
	msg domain.MessageContext,
	settings domain.BotSettings,
) error {
	if err := e.runAction(ctx, transport, rule, msg, settings, action); err != nil {
		return fmt.Errorf("button action: %w", err)
	}

	entry := domain.ActivityLogEntry{
		AccountID:   accountID,
		ChatID:      msg.Chat.ID,
		ChatType:    msg.Chat.Type,
		UserID:      msg.Sender.ID,
		Username:    msg.Sender.Username,
		FirstName:   msg.Sender.FirstName,
		MessageText: truncate(msg.Text, maxLoggedMessageLen),
		RuleID:      &rule.ID,
		ActionTaken: buttonExecuted,
		Success:     true,
		CreatedAt:   e.now(),
	}

	if err := e.activity.InsertActivity(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("insert button activity failed")
	}

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	return s[:maxLen]
}
