package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// DefaultRuleCacheTTL bounds staleness of per-account rule sets. Rule edits
// also invalidate the cache explicitly, so the TTL is a backstop.
const DefaultRuleCacheTTL = 2 * time.Minute

type cachedRules struct {
	rules     []domain.Rule
	fetchedAt time.Time
}

// Matcher selects the highest-priority active rule whose full condition
// conjunction holds for a message. Candidate rule sets are served from a
// per-account TTL cache to avoid a storage read on every message.
type Matcher struct {
	repo   RuleRepository
	ttl    time.Duration
	logger *zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedRules

	now func() time.Time
}

// NewMatcher creates a matcher with the given cache TTL; a non-positive TTL
// falls back to the default.
func NewMatcher(repo RuleRepository, ttl time.Duration, logger *zerolog.Logger) *Matcher {
	if ttl <= 0 {
		ttl = DefaultRuleCacheTTL
	}

	return &Matcher{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cachedRules),
		now:    time.Now,
	}
}

// Invalidate drops every cached rule set. Wired to rule mutations so edits
// take effect before the TTL elapses; a false match from a stale set is
// worse than an extra storage read.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = make(map[string]cachedRules)
}

// FindMatch returns the winning rule for the message, or nil when no rule
// matches. Determinism: priority descending, creation order among equals.
func (m *Matcher) FindMatch(ctx context.Context, accountID string, msg domain.MessageContext) (*domain.Rule, error) {
	rules, err := m.candidates(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := m.now()

	for i := range rules {
		rule := &rules[i]
		if !rule.Active || !rule.AppliesTo(accountID) {
			continue
		}

		if MatchesAll(rule.Conditions, msg, now) {
			matched := *rule

			return &matched, nil
		}
	}

	return nil, nil
}

// RuleByID returns the cached rule with the given id for the account, or nil
// when unknown. Used by callback routing to rebuild button lookups after a
// restart.
func (m *Matcher) RuleByID(ctx context.Context, accountID, ruleID string) (*domain.Rule, error) {
	rules, err := m.candidates(ctx, accountID)
	if err != nil {
		return nil, err
	}

	for i := range rules {
		if rules[i].ID == ruleID {
			rule := rules[i]

			return &rule, nil
		}
	}

	return nil, nil
}

// candidates returns the account's rule set sorted for matching, from cache
// when fresh.
func (m *Matcher) candidates(ctx context.Context, accountID string) ([]domain.Rule, error) {
	now := m.now()

	m.mu.RLock()
	entry, ok := m.cache[accountID]
	m.mu.RUnlock()

	if ok && now.Sub(entry.fetchedAt) < m.ttl {
		return entry.rules, nil
	}

	rules, err := m.repo.ActiveRules(ctx, accountID)
	if err != nil {
		// Serve the stale set rather than dropping the message when storage
		// hiccups and we still have one.
		if ok {
			m.logger.Warn().Err(err).Str("account_id", accountID).Msg("rule refresh failed, serving stale cache")

			return entry.rules, nil
		}

		return nil, fmt.Errorf("load active rules: %w", err)
	}

	// Stable sort: repository order is creation time ascending, which
	// becomes the tie-break among equal priorities.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	m.mu.Lock()
	m.cache[accountID] = cachedRules{rules: rules, fetchedAt: now}
	m.mu.Unlock()

	return rules, nil
}
