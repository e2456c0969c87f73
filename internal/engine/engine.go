package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
)

const noRuleMatched = "No matching rule"

// CallbackKey identifies one inline button across restarts: callback data on
// the wire is "<rule id>:<button id>".
type CallbackKey struct {
	RuleID   string
	ButtonID string
}

// Engine is the message-processing pipeline: permission and capacity gating,
// rule matching, action execution, activity recording. One Engine serves all
// account connections; per-message state lives on the stack.
type Engine struct {
	matcher  *Matcher
	gate     *Gate
	executor *Executor
	activity ActivityRepository
	logger   *zerolog.Logger

	mu        sync.RWMutex
	callbacks map[CallbackKey]*domain.Action

	now func() time.Time
}

func New(
	matcher *Matcher,
	gate *Gate,
	executor *Executor,
	activity ActivityRepository,
	logger *zerolog.Logger,
) *Engine {
	return &Engine{
		matcher:   matcher,
		gate:      gate,
		executor:  executor,
		activity:  activity,
		logger:    logger,
		callbacks: make(map[CallbackKey]*domain.Action),
		now:       time.Now,
	}
}

// Invalidate drops the rule and settings caches. Wired to storage mutation
// hooks so edits take effect promptly.
func (e *Engine) Invalidate() {
	e.matcher.Invalidate()
	e.gate.Invalidate()
}

// HandleMessage runs the full pipeline for one inbound message. Gating
// rejections and no-match outcomes are not errors; the returned error only
// reports infrastructure failures that prevented evaluation.
func (e *Engine) HandleMessage(ctx context.Context, accountID string, transport Transport, msg domain.MessageContext) error {
	observability.MessagesProcessed.Inc()

	settings, err := e.gate.CurrentSettings(ctx)
	if err != nil {
		return err
	}

	if settings.Status != domain.BotRunning {
		return nil
	}

	if !e.gate.IsAllowed(settings, msg.Sender.ID) {
		observability.GateRejections.WithLabelValues(observability.ReasonPermission).Inc()

		return nil
	}

	ok, err := e.gate.HasCapacity(ctx, settings)
	if err != nil {
		return err
	}

	if !ok {
		observability.GateRejections.WithLabelValues(observability.ReasonDailyCap).Inc()

		return nil
	}

	rule, err := e.matcher.FindMatch(ctx, accountID, msg)
	if err != nil {
		return err
	}

	if rule == nil {
		e.logUnmatched(ctx, accountID, msg, settings)

		return nil
	}

	observability.RulesMatched.WithLabelValues(rule.Name).Inc()
	e.registerCallbacks(rule)

	result := e.executor.Execute(ctx, transport, accountID, rule, msg, settings)

	switch {
	case result.Err != nil:
		e.logger.Error().Err(result.Err).
			Str("rule", rule.Name).
			Int64("chat_id", msg.Chat.ID).
			Int("actions_run", result.ActionsRun).
			Msg("rule execution failed")
	case result.Skipped:
		// Gated out after matching; already logged at debug level.
	default:
		e.logger.Info().
			Str("rule", rule.Name).
			Int64("chat_id", msg.Chat.ID).
			Int64("user_id", msg.Sender.ID).
			Int("actions_run", result.ActionsRun).
			Msg("rule executed")
	}

	return nil
}

// HandleCallback routes an inline button press to the owning rule's button
// action. The in-memory registry covers buttons sent by this process; after a
// restart the rule is looked up again and the registry rebuilt.
func (e *Engine) HandleCallback(ctx context.Context, accountID string, transport Transport, key CallbackKey, msg domain.MessageContext) error {
	settings, err := e.gate.CurrentSettings(ctx)
	if err != nil {
		return err
	}

	if settings.Status != domain.BotRunning {
		return nil
	}

	action, err := e.callbackAction(ctx, accountID, key)
	if err != nil {
		return err
	}

	if action == nil {
		e.logger.Warn().
			Str("rule_id", key.RuleID).
			Str("button_id", key.ButtonID).
			Msg("callback for unknown button")

		return nil
	}

	rule, err := e.matcher.RuleByID(ctx, accountID, key.RuleID)
	if err != nil {
		return err
	}

	if rule == nil {
		return nil
	}

	return e.executor.ExecuteButtonAction(ctx, transport, accountID, rule, action, msg, settings)
}

// callbackAction resolves a button key, falling back to a rule lookup when
// the registry misses.
func (e *Engine) callbackAction(ctx context.Context, accountID string, key CallbackKey) (*domain.Action, error) {
	e.mu.RLock()
	action, ok := e.callbacks[key]
	e.mu.RUnlock()

	if ok {
		return action, nil
	}

	rule, err := e.matcher.RuleByID(ctx, accountID, key.RuleID)
	if err != nil {
		return nil, fmt.Errorf("resolve callback rule: %w", err)
	}

	if rule == nil {
		return nil, nil
	}

	e.registerCallbacks(rule)

	e.mu.RLock()
	action = e.callbacks[key]
	e.mu.RUnlock()

	return action, nil
}

// registerCallbacks indexes every callback button of the rule, including
// branch actions, so presses can be routed without re-walking the rule.
func (e *Engine) registerCallbacks(rule *domain.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range rule.Actions {
		e.registerActionLocked(rule.ID, &rule.Actions[i])
	}

	for _, branch := range rule.Branches {
		if branch.IfAction != nil {
			e.registerActionLocked(rule.ID, branch.IfAction)
		}

		if branch.ElseAction != nil {
			e.registerActionLocked(rule.ID, branch.ElseAction)
		}
	}
}

func (e *Engine) registerActionLocked(ruleID string, action *domain.Action) {
	for _, row := range action.Buttons {
		for _, btn := range row {
			if !btn.IsCallback() {
				continue
			}

			if btn.Action == nil {
				continue
			}

			e.callbacks[CallbackKey{RuleID: ruleID, ButtonID: btn.ID}] = btn.Action
		}
	}
}

// logUnmatched records an evaluated-but-unmatched message when message
// logging is enabled. Kept out of the hot path otherwise.
func (e *Engine) logUnmatched(ctx context.Context, accountID string, msg domain.MessageContext, settings domain.BotSettings) {
	if !settings.LogMessages {
		return
	}

	entry := domain.ActivityLogEntry{
		AccountID:   accountID,
		ChatID:      msg.Chat.ID,
		ChatType:    msg.Chat.Type,
		UserID:      msg.Sender.ID,
		Username:    msg.Sender.Username,
		FirstName:   msg.Sender.FirstName,
		MessageText: truncate(msg.Text, maxLoggedMessageLen),
		ActionTaken: noRuleMatched,
		Success:     true,
		CreatedAt:   e.now(),
	}

	if err := e.activity.InsertActivity(ctx, entry); err != nil {
		e.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("insert unmatched activity failed")
	}
}
