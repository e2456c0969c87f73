package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

func intPtr(i int) *int { return &i }

func TestMatchesMessageFilter(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		filter domain.MessageFilter
		msg    domain.MessageContext
		want   bool
	}{
		{
			name:   "keyword substring match",
			filter: domain.MessageFilter{Active: true, Keywords: []string{"ping"}},
			msg:    privateMessage("well ping me"),
			want:   true,
		},
		{
			name:   "keyword match is case insensitive",
			filter: domain.MessageFilter{Active: true, Keywords: []string{"PING"}},
			msg:    privateMessage("ping"),
			want:   true,
		},
		{
			name:   "no keyword match",
			filter: domain.MessageFilter{Active: true, Keywords: []string{"ping"}},
			msg:    privateMessage("pong"),
			want:   false,
		},
		{
			name:   "any keyword suffices",
			filter: domain.MessageFilter{Active: true, Keywords: []string{"foo", "pong"}},
			msg:    privateMessage("pong"),
			want:   true,
		},
		{
			name:   "type mismatch fails",
			filter: domain.MessageFilter{Active: true, Types: []domain.MessageType{domain.MessagePhoto}},
			msg:    privateMessage("ping"),
			want:   false,
		},
		{
			name:   "empty filter matches everything",
			filter: domain.MessageFilter{Active: true},
			msg:    privateMessage("anything"),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesCondition(tt.filter, tt.msg, now))
		})
	}
}

func TestMatchesChatFilter(t *testing.T) {
	now := time.Now()
	group := domain.MessageContext{
		Chat: domain.Chat{ID: -300, Type: domain.ChatSupergroup, Title: "Night Owls", MemberCount: 250},
	}

	tests := []struct {
		name   string
		filter domain.ChatFilter
		msg    domain.MessageContext
		want   bool
	}{
		{
			name:   "chat type listed",
			filter: domain.ChatFilter{Active: true, ChatTypes: []domain.ChatType{domain.ChatSupergroup}},
			msg:    group,
			want:   true,
		},
		{
			name:   "chat type not listed",
			filter: domain.ChatFilter{Active: true, ChatTypes: []domain.ChatType{domain.ChatPrivate}},
			msg:    group,
			want:   false,
		},
		{
			name:   "whitelist hit",
			filter: domain.ChatFilter{Active: true, Whitelist: []int64{-300}},
			msg:    group,
			want:   true,
		},
		{
			name:   "whitelist miss",
			filter: domain.ChatFilter{Active: true, Whitelist: []int64{-999}},
			msg:    group,
			want:   false,
		},
		{
			name:   "blacklist wins",
			filter: domain.ChatFilter{Active: true, Whitelist: []int64{-300}, Blacklist: []int64{-300}},
			msg:    group,
			want:   false,
		},
		{
			name:   "title substring case folded",
			filter: domain.ChatFilter{Active: true, TitleContains: "night"},
			msg:    group,
			want:   true,
		},
		{
			name:   "member bounds inside",
			filter: domain.ChatFilter{Active: true, MinMembers: intPtr(100), MaxMembers: intPtr(500)},
			msg:    group,
			want:   true,
		},
		{
			name:   "below min members",
			filter: domain.ChatFilter{Active: true, MinMembers: intPtr(300)},
			msg:    group,
			want:   false,
		},
		{
			name:   "above max members",
			filter: domain.ChatFilter{Active: true, MaxMembers: intPtr(100)},
			msg:    group,
			want:   false,
		},
		{
			name:   "member bounds vacuous for private chats",
			filter: domain.ChatFilter{Active: true, MinMembers: intPtr(10)},
			msg:    privateMessage("hi"),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesCondition(tt.filter, tt.msg, now))
		})
	}
}

func TestMatchesUserFilter(t *testing.T) {
	now := time.Now()
	msg := privateMessage("hi")

	tests := []struct {
		name   string
		filter domain.UserFilter
		want   bool
	}{
		{"user id listed", domain.UserFilter{Active: true, UserIDs: []int64{42}}, true},
		{"user id not listed", domain.UserFilter{Active: true, UserIDs: []int64{7}}, false},
		{"username case folded", domain.UserFilter{Active: true, Usernames: []string{"ALICE"}}, true},
		{"username miss", domain.UserFilter{Active: true, Usernames: []string{"bob"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesCondition(tt.filter, msg, now))
		})
	}
}

func TestMatchesTimeFilter(t *testing.T) {
	// Monday 2025-03-10.
	monday10am := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	saturday10am := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	businessHours := domain.TimeFilter{
		Active:   true,
		Windows:  []domain.HourWindow{{StartHour: 9, EndHour: 17}},
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}

	tests := []struct {
		name   string
		filter domain.TimeFilter
		now    time.Time
		want   bool
	}{
		{"inside window on weekday", businessHours, monday10am, true},
		{"weekend rejected", businessHours, saturday10am, false},
		{"start hour inclusive", businessHours, monday10am.Add(-time.Hour), true},
		{"end hour inclusive", businessHours, time.Date(2025, 3, 10, 17, 59, 0, 0, time.UTC), true},
		{"before window", businessHours, time.Date(2025, 3, 10, 8, 59, 0, 0, time.UTC), false},
		{"after window", businessHours, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), false},
		{
			name:   "weekday alone when no windows",
			filter: domain.TimeFilter{Active: true, Weekdays: []time.Weekday{time.Monday}},
			now:    monday10am,
			want:   true,
		},
		{
			name: "any window suffices",
			filter: domain.TimeFilter{Active: true, Windows: []domain.HourWindow{
				{StartHour: 0, EndHour: 2},
				{StartHour: 9, EndHour: 11},
			}},
			now:  monday10am,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesCondition(tt.filter, domain.MessageContext{}, tt.now))
		})
	}
}

func TestMatchesAll(t *testing.T) {
	now := time.Now()
	msg := privateMessage("ping")

	t.Run("empty list matches", func(t *testing.T) {
		assert.True(t, MatchesAll(nil, msg, now))
	})

	t.Run("conjunction", func(t *testing.T) {
		conds := domain.ConditionList{
			domain.MessageFilter{Active: true, Keywords: []string{"ping"}},
			domain.UserFilter{Active: true, UserIDs: []int64{42}},
		}
		assert.True(t, MatchesAll(conds, msg, now))

		conds = append(conds, domain.UserFilter{Active: true, UserIDs: []int64{999}})
		assert.False(t, MatchesAll(conds, msg, now))
	})

	t.Run("disabled condition is vacuous", func(t *testing.T) {
		conds := domain.ConditionList{
			domain.UserFilter{Active: false, UserIDs: []int64{999}},
		}
		assert.True(t, MatchesAll(conds, msg, now))
	})

	t.Run("all condition matches", func(t *testing.T) {
		assert.True(t, MatchesAll(domain.ConditionList{domain.AllCondition{Active: true}}, msg, now))
	})
}
