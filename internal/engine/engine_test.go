package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

type engineFixture struct {
	rules     *fakeRuleRepo
	settings  *fakeSettingsRepo
	activity  *fakeActivityRepo
	transport *fakeTransport
	engine    *Engine
}

func newEngineFixture(settings domain.BotSettings) *engineFixture {
	nop := zerolog.Nop()

	f := &engineFixture{
		rules:     &fakeRuleRepo{},
		settings:  &fakeSettingsRepo{settings: settings},
		activity:  &fakeActivityRepo{},
		transport: &fakeTransport{},
	}

	matcher := NewMatcher(f.rules, time.Minute, &nop)
	gate := NewGate(f.settings, 30*time.Second, &nop)
	executor := NewExecutor(f.rules, f.settings, f.activity, &fakeMediaRepo{}, NewDeleter(&nop), &nop)

	f.engine = New(matcher, gate, executor, f.activity, &nop)

	return f
}

func runningSettings() domain.BotSettings {
	return domain.BotSettings{
		ID:                "s1",
		Status:            domain.BotRunning,
		MaxDailyResponses: 100,
		LastResetDate:     time.Now().UTC(),
	}
}

func TestHandleMessageEndToEnd(t *testing.T) {
	f := newEngineFixture(runningSettings())
	f.rules.rules = []domain.Rule{textRule("greeter", 1)}

	err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("ping"))
	require.NoError(t, err)

	sent := f.transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "pong", sent[0].Text)

	require.Len(t, f.activity.entries, 1, "exactly one activity entry per handled message")
	assert.Equal(t, "Executed rule: greeter", f.activity.entries[0].ActionTaken)
	assert.Equal(t, 1, f.settings.increments)
}

func TestHandleMessageStoppedEngine(t *testing.T) {
	settings := runningSettings()
	settings.Status = domain.BotStopped

	f := newEngineFixture(settings)
	f.rules.rules = []domain.Rule{textRule("greeter", 1)}

	err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("ping"))
	require.NoError(t, err)

	assert.Empty(t, f.transport.sentMessages())
	assert.Empty(t, f.activity.entries)
}

func TestHandleMessageBlockedUser(t *testing.T) {
	settings := runningSettings()
	settings.BlockedUsers = []int64{42}

	f := newEngineFixture(settings)
	f.rules.rules = []domain.Rule{textRule("greeter", 1)}

	err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("ping"))
	require.NoError(t, err)

	assert.Empty(t, f.transport.sentMessages(), "blocked users are ignored silently")
	assert.Empty(t, f.activity.entries)
}

func TestHandleMessageDailyCapReached(t *testing.T) {
	settings := runningSettings()
	settings.MaxDailyResponses = 3
	settings.DailyResponseCount = 3

	f := newEngineFixture(settings)
	f.rules.rules = []domain.Rule{textRule("greeter", 1)}

	err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("ping"))
	require.NoError(t, err)

	assert.Empty(t, f.transport.sentMessages())
}

func TestHandleMessageUnmatched(t *testing.T) {
	t.Run("logged when message logging enabled", func(t *testing.T) {
		settings := runningSettings()
		settings.LogMessages = true

		f := newEngineFixture(settings)
		f.rules.rules = []domain.Rule{textRule("greeter", 1)}

		err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("unrelated"))
		require.NoError(t, err)

		assert.Empty(t, f.transport.sentMessages())
		require.Len(t, f.activity.entries, 1)
		assert.Equal(t, "No matching rule", f.activity.entries[0].ActionTaken)
		assert.Nil(t, f.activity.entries[0].RuleID)
	})

	t.Run("silent when message logging disabled", func(t *testing.T) {
		f := newEngineFixture(runningSettings())
		f.rules.rules = []domain.Rule{textRule("greeter", 1)}

		err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("unrelated"))
		require.NoError(t, err)

		assert.Empty(t, f.activity.entries)
	})
}

func TestHandleMessageSettingsError(t *testing.T) {
	f := newEngineFixture(runningSettings())
	f.settings.loadErr = errStorageDown

	err := f.engine.HandleMessage(context.Background(), "acc", f.transport, privateMessage("ping"))
	assert.ErrorIs(t, err, errStorageDown)
}

func buttonRule() domain.Rule {
	rule := textRule("buttoned", 1)
	rule.Actions[0].Buttons = [][]domain.InlineButton{{{
		ID:    "b1",
		Label: "More",
		Action: &domain.Action{
			Contents: []domain.MediaContent{{Type: domain.ContentText, Text: "details"}},
		},
	}}}

	return rule
}

func TestHandleCallbackFromRegistry(t *testing.T) {
	f := newEngineFixture(runningSettings())
	rule := buttonRule()
	f.rules.rules = []domain.Rule{rule}

	ctx := context.Background()

	// Sending the rule's message registers its buttons.
	require.NoError(t, f.engine.HandleMessage(ctx, "acc", f.transport, privateMessage("ping")))

	key := CallbackKey{RuleID: rule.ID, ButtonID: "b1"}
	require.NoError(t, f.engine.HandleCallback(ctx, "acc", f.transport, key, privateMessage("")))

	sent := f.transport.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "details", sent[1].Text)

	require.Len(t, f.activity.entries, 2)
	assert.Equal(t, "Executed button action", f.activity.entries[1].ActionTaken)
}

func TestHandleCallbackRebuildsRegistry(t *testing.T) {
	f := newEngineFixture(runningSettings())
	rule := buttonRule()
	f.rules.rules = []domain.Rule{rule}

	// Cold registry, as after a restart: the rule lookup path must recover
	// the button action.
	key := CallbackKey{RuleID: rule.ID, ButtonID: "b1"}
	require.NoError(t, f.engine.HandleCallback(context.Background(), "acc", f.transport, key, privateMessage("")))

	sent := f.transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "details", sent[0].Text)
}

func TestHandleCallbackUnknownButton(t *testing.T) {
	f := newEngineFixture(runningSettings())
	f.rules.rules = []domain.Rule{textRule("plain", 1)}

	key := CallbackKey{RuleID: "plain-id", ButtonID: "nope"}
	require.NoError(t, f.engine.HandleCallback(context.Background(), "acc", f.transport, key, privateMessage("")))

	assert.Empty(t, f.transport.sentMessages())
}

func TestHandleCallbackStoppedEngine(t *testing.T) {
	settings := runningSettings()
	settings.Status = domain.BotStopped

	f := newEngineFixture(settings)
	f.rules.rules = []domain.Rule{buttonRule()}

	key := CallbackKey{RuleID: "buttoned-id", ButtonID: "b1"}
	require.NoError(t, f.engine.HandleCallback(context.Background(), "acc", f.transport, key, privateMessage("")))

	assert.Empty(t, f.transport.sentMessages())
}
