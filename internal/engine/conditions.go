package engine

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// foldContains reports whether needle occurs in haystack under Unicode case
// folding. cases.Caser is not safe for concurrent use, so each call gets a
// fresh one; construction is cheap.
func foldContains(haystack, needle string) bool {
	caser := cases.Fold()

	return strings.Contains(caser.String(haystack), caser.String(needle))
}

// MatchesCondition evaluates a single condition variant against the message
// context at the given instant.
func MatchesCondition(cond domain.Condition, msg domain.MessageContext, now time.Time) bool {
	switch c := cond.(type) {
	case domain.AllCondition:
		return true
	case domain.ChatFilter:
		return matchesChatFilter(c, msg.Chat)
	case domain.UserFilter:
		return matchesUserFilter(c, msg.Sender)
	case domain.MessageFilter:
		return matchesMessageFilter(c, msg)
	case domain.TimeFilter:
		return matchesTimeFilter(c, now)
	default:
		// Unreachable for the sealed set; fail closed if it ever isn't.
		return false
	}
}

// MatchesAll evaluates a condition list as a conjunction. Inactive
// conditions are vacuously true. An empty list matches.
func MatchesAll(conds domain.ConditionList, msg domain.MessageContext, now time.Time) bool {
	for _, cond := range conds {
		if !cond.Enabled() {
			continue
		}

		if !MatchesCondition(cond, msg, now) {
			return false
		}
	}

	return true
}

func matchesChatFilter(f domain.ChatFilter, chat domain.Chat) bool {
	if len(f.ChatTypes) > 0 && !slices.Contains(f.ChatTypes, chat.Type) {
		return false
	}

	if len(f.Whitelist) > 0 && !slices.Contains(f.Whitelist, chat.ID) {
		return false
	}

	if len(f.Blacklist) > 0 && slices.Contains(f.Blacklist, chat.ID) {
		return false
	}

	if f.TitleContains != "" && !foldContains(chat.Title, f.TitleContains) {
		return false
	}

	return matchesMemberBounds(f, chat)
}

// matchesMemberBounds checks the [min, max] member window. Private chats
// carry no member count, so bounds are vacuously satisfied for them.
func matchesMemberBounds(f domain.ChatFilter, chat domain.Chat) bool {
	if f.MinMembers == nil && f.MaxMembers == nil {
		return true
	}

	if chat.Type == domain.ChatPrivate {
		return true
	}

	if f.MinMembers != nil && chat.MemberCount < *f.MinMembers {
		return false
	}

	if f.MaxMembers != nil && chat.MemberCount > *f.MaxMembers {
		return false
	}

	return true
}

func matchesUserFilter(f domain.UserFilter, sender domain.Sender) bool {
	if len(f.UserIDs) > 0 && !slices.Contains(f.UserIDs, sender.ID) {
		return false
	}

	if len(f.Usernames) > 0 {
		found := slices.ContainsFunc(f.Usernames, func(name string) bool {
			caser := cases.Fold()

			return caser.String(name) == caser.String(sender.Username)
		})
		if !found {
			return false
		}
	}

	return true
}

func matchesMessageFilter(f domain.MessageFilter, msg domain.MessageContext) bool {
	if len(f.Keywords) > 0 {
		found := slices.ContainsFunc(f.Keywords, func(kw string) bool {
			return foldContains(msg.Text, kw)
		})
		if !found {
			return false
		}
	}

	if len(f.Types) > 0 && !slices.Contains(f.Types, msg.Type) {
		return false
	}

	return true
}

// matchesTimeFilter requires the weekday to be allowed (empty set allows
// every day) and the hour to fall inside at least one window. A filter with
// windows configured and none matching fails; a filter without windows
// passes on weekday alone.
func matchesTimeFilter(f domain.TimeFilter, now time.Time) bool {
	if len(f.Weekdays) > 0 && !slices.Contains(f.Weekdays, now.Weekday()) {
		return false
	}

	if len(f.Windows) == 0 {
		return true
	}

	hour := now.Hour()
	for _, w := range f.Windows {
		if w.Contains(hour) {
			return true
		}
	}

	return false
}
