package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

// DefaultSettingsCacheTTL keeps the settings singleton hot without letting
// the daily counter drift too far behind concurrent increments.
const DefaultSettingsCacheTTL = 30 * time.Second

// Gate enforces the global daily response cap and the user allow/block
// lists. Both checks run before rule matching; rejections are silent by
// design, never logged as rule failures.
type Gate struct {
	repo   SettingsRepository
	ttl    time.Duration
	logger *zerolog.Logger

	mu        sync.RWMutex
	cached    *domain.BotSettings
	fetchedAt time.Time

	now func() time.Time
}

func NewGate(repo SettingsRepository, ttl time.Duration, logger *zerolog.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultSettingsCacheTTL
	}

	return &Gate{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Invalidate drops the cached settings. Wired to settings mutations.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cached = nil
}

// CurrentSettings returns the bot settings, served from a TTL cache.
func (g *Gate) CurrentSettings(ctx context.Context) (domain.BotSettings, error) {
	now := g.now()

	g.mu.RLock()
	if g.cached != nil && now.Sub(g.fetchedAt) < g.ttl {
		settings := *g.cached
		g.mu.RUnlock()

		return settings, nil
	}
	g.mu.RUnlock()

	settings, err := g.repo.Settings(ctx)
	if err != nil {
		return domain.BotSettings{}, fmt.Errorf("load bot settings: %w", err)
	}

	g.mu.Lock()
	g.cached = &settings
	g.fetchedAt = now
	g.mu.Unlock()

	return settings, nil
}

// IsAllowed applies the block-list, then the allow-list when one is
// configured.
func (g *Gate) IsAllowed(settings domain.BotSettings, userID int64) bool {
	if slices.Contains(settings.BlockedUsers, userID) {
		return false
	}

	if len(settings.AllowedUsers) > 0 && !slices.Contains(settings.AllowedUsers, userID) {
		return false
	}

	return true
}

// HasCapacity checks the daily response cap. When the counter belongs to a
// previous UTC day it is reset as a side effect and capacity is granted
// unconditionally for this check.
func (g *Gate) HasCapacity(ctx context.Context, settings domain.BotSettings) (bool, error) {
	if settings.NeedsDailyReset(g.now()) {
		if err := g.repo.ResetDailyCounter(ctx, settings.ID); err != nil {
			return false, fmt.Errorf("reset daily counter: %w", err)
		}

		g.Invalidate()
		g.logger.Info().Msg("daily response counter reset")

		return true, nil
	}

	return settings.DailyResponseCount < settings.MaxDailyResponses, nil
}
