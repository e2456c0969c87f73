package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

var errStorageDown = errors.New("storage down")

type fakeRuleRepo struct {
	mu        sync.Mutex
	rules     []domain.Rule
	loadErr   error
	loads     int
	successes []string
	failures  []string
}

func (f *fakeRuleRepo) ActiveRules(context.Context, string) ([]domain.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loads++

	if f.loadErr != nil {
		return nil, f.loadErr
	}

	out := make([]domain.Rule, len(f.rules))
	copy(out, f.rules)

	return out, nil
}

func (f *fakeRuleRepo) RecordRuleSuccess(_ context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.successes = append(f.successes, ruleID)

	return nil
}

func (f *fakeRuleRepo) RecordRuleError(_ context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = append(f.failures, ruleID)

	return nil
}

type fakeSettingsRepo struct {
	mu         sync.Mutex
	settings   domain.BotSettings
	loadErr    error
	resets     int
	increments int
}

func (f *fakeSettingsRepo) Settings(context.Context) (domain.BotSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return domain.BotSettings{}, f.loadErr
	}

	return f.settings, nil
}

func (f *fakeSettingsRepo) ResetDailyCounter(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resets++
	f.settings.DailyResponseCount = 0
	f.settings.LastResetDate = time.Now().UTC()

	return nil
}

func (f *fakeSettingsRepo) IncrementDailyResponses(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.increments++
	f.settings.DailyResponseCount++

	return nil
}

type fakeActivityRepo struct {
	mu           sync.Mutex
	entries      []domain.ActivityLogEntry
	triggerCount int
	countErr     error
	statCalls    []bool
}

func (f *fakeActivityRepo) InsertActivity(_ context.Context, entry domain.ActivityLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, entry)

	return nil
}

// CountRuleTriggersSince mirrors the storage query: every logged entry for
// the rule counts, failures included.
func (f *fakeActivityRepo) CountRuleTriggersSince(_ context.Context, ruleID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.countErr != nil {
		return 0, f.countErr
	}

	count := f.triggerCount

	for _, entry := range f.entries {
		if entry.RuleID != nil && *entry.RuleID == ruleID && !entry.CreatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (f *fakeActivityRepo) UpsertDailyStats(_ context.Context, _ string, _ time.Time, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statCalls = append(f.statCalls, success)

	return nil
}

type fakeMediaRepo struct {
	items map[string]*domain.MediaItem
}

func (f *fakeMediaRepo) MediaByID(_ context.Context, id string) (*domain.MediaItem, error) {
	if f.items == nil {
		return nil, nil
	}

	return f.items[id], nil
}

type sentMessage struct {
	Kind    string
	ChatID  int64
	Text    string
	ReplyTo int
	Buttons [][]domain.InlineButton
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	reactions []string
	deleted   []int
	sendErr   error
	nextID    int
}

func (f *fakeTransport) record(kind string, chat domain.Chat, text string, opts SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return 0, f.sendErr
	}

	f.nextID++
	f.sent = append(f.sent, sentMessage{
		Kind:    kind,
		ChatID:  chat.ID,
		Text:    text,
		ReplyTo: opts.ReplyTo,
		Buttons: opts.Buttons,
	})

	return f.nextID, nil
}

func (f *fakeTransport) SendText(_ context.Context, chat domain.Chat, text string, opts SendOptions) (int, error) {
	return f.record("text", chat, text, opts)
}

func (f *fakeTransport) SendImage(_ context.Context, chat domain.Chat, _ *domain.MediaItem, caption string, opts SendOptions) (int, error) {
	return f.record("image", chat, caption, opts)
}

func (f *fakeTransport) SendSticker(_ context.Context, chat domain.Chat, _ *domain.MediaItem, opts SendOptions) (int, error) {
	return f.record("sticker", chat, "", opts)
}

func (f *fakeTransport) React(_ context.Context, _ domain.Chat, _ int, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reactions = append(f.reactions, emoji)

	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ domain.Chat, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, messageID)

	return nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)

	return out
}

func (f *fakeTransport) deletedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, len(f.deleted))
	copy(out, f.deleted)

	return out
}

func privateMessage(text string) domain.MessageContext {
	return domain.MessageContext{
		Chat:   domain.Chat{ID: 100, Type: domain.ChatPrivate},
		Sender: domain.Sender{ID: 42, Username: "alice", FirstName: "Alice"},
		ID:     7,
		Text:   text,
		Type:   domain.MessageText,
	}
}

func textRule(name string, priority int) domain.Rule {
	return domain.Rule{
		ID:       name + "-id",
		Name:     name,
		Active:   true,
		Priority: priority,
		Conditions: domain.ConditionList{
			domain.MessageFilter{Active: true, Keywords: []string{"ping"}},
		},
		Actions: []domain.Action{{
			Contents: []domain.MediaContent{{Type: domain.ContentText, Text: "pong"}},
		}},
	}
}
