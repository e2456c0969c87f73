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

func newTestMatcher(repo *fakeRuleRepo) *Matcher {
	nop := zerolog.Nop()

	return NewMatcher(repo, time.Minute, &nop)
}

func TestFindMatchPriority(t *testing.T) {
	low := textRule("low", 1)
	high := textRule("high", 10)

	repo := &fakeRuleRepo{rules: []domain.Rule{low, high}}
	matcher := newTestMatcher(repo)

	rule, err := matcher.FindMatch(context.Background(), "acc", privateMessage("ping"))
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "high", rule.Name)
}

func TestFindMatchTieBreakByCreationOrder(t *testing.T) {
	first := textRule("first", 5)
	second := textRule("second", 5)

	// Repository order is creation order; the earlier rule must win ties.
	repo := &fakeRuleRepo{rules: []domain.Rule{first, second}}
	matcher := newTestMatcher(repo)

	rule, err := matcher.FindMatch(context.Background(), "acc", privateMessage("ping"))
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "first", rule.Name)
}

func TestFindMatchSkipsInactiveAndForeign(t *testing.T) {
	inactive := textRule("inactive", 10)
	inactive.Active = false

	other := "other-account"
	scoped := textRule("scoped", 5)
	scoped.AccountID = &other

	fallback := textRule("fallback", 1)

	repo := &fakeRuleRepo{rules: []domain.Rule{inactive, scoped, fallback}}
	matcher := newTestMatcher(repo)

	rule, err := matcher.FindMatch(context.Background(), "acc", privateMessage("ping"))
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "fallback", rule.Name)
}

func TestFindMatchNoMatch(t *testing.T) {
	repo := &fakeRuleRepo{rules: []domain.Rule{textRule("ping-rule", 1)}}
	matcher := newTestMatcher(repo)

	rule, err := matcher.FindMatch(context.Background(), "acc", privateMessage("nothing relevant"))
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestMatcherCaching(t *testing.T) {
	repo := &fakeRuleRepo{rules: []domain.Rule{textRule("r", 1)}}
	matcher := newTestMatcher(repo)
	ctx := context.Background()
	msg := privateMessage("ping")

	_, err := matcher.FindMatch(ctx, "acc", msg)
	require.NoError(t, err)
	_, err = matcher.FindMatch(ctx, "acc", msg)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.loads, "second lookup must hit the cache")

	matcher.Invalidate()

	_, err = matcher.FindMatch(ctx, "acc", msg)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.loads, "invalidation must force a reload")
}

func TestMatcherServesStaleOnRepoError(t *testing.T) {
	repo := &fakeRuleRepo{rules: []domain.Rule{textRule("r", 1)}}
	matcher := newTestMatcher(repo)
	ctx := context.Background()

	_, err := matcher.FindMatch(ctx, "acc", privateMessage("ping"))
	require.NoError(t, err)

	// Expire the TTL and break the repo; the matcher must keep answering
	// from the last good set.
	repo.loadErr = errStorageDown
	matcher.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	rule, err := matcher.FindMatch(ctx, "acc", privateMessage("ping"))
	require.NoError(t, err, "stale cache must be served when refresh fails")
	require.NotNil(t, rule)
	assert.Equal(t, "r", rule.Name)
}

func TestMatcherErrorWithoutCache(t *testing.T) {
	repo := &fakeRuleRepo{loadErr: errStorageDown}
	matcher := newTestMatcher(repo)

	_, err := matcher.FindMatch(context.Background(), "acc", privateMessage("ping"))
	assert.ErrorIs(t, err, errStorageDown)
}

func TestRuleByID(t *testing.T) {
	known := textRule("known", 1)
	repo := &fakeRuleRepo{rules: []domain.Rule{known}}
	matcher := newTestMatcher(repo)

	rule, err := matcher.RuleByID(context.Background(), "acc", known.ID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "known", rule.Name)

	rule, err = matcher.RuleByID(context.Background(), "acc", "missing")
	require.NoError(t, err)
	assert.Nil(t, rule)
}
