// Package app wires configuration, storage, the policy engine, and the
// Telegram connection pool into runnable service modes.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/config"
	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/engine"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
	"github.com/lueurxax/telegram-autoreply-bot/internal/storage"
	"github.com/lueurxax/telegram-autoreply-bot/internal/telegram"
	"github.com/lueurxax/telegram-autoreply-bot/internal/worker"
)

const startWatchInterval = 15 * time.Second

type App struct {
	cfg      *config.Config
	database *storage.DB
	logger   *zerolog.Logger
}

func New(cfg *config.Config, database *storage.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database.Pool, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunEngine runs the auto-reply service: connection pool plus message
// pipeline. Blocks until the context is canceled.
func (a *App) RunEngine(ctx context.Context) error {
	deleter := engine.NewDeleter(a.logger)
	matcher := engine.NewMatcher(a.database, a.cfg.RuleCacheTTL, a.logger)
	gate := engine.NewGate(a.database, a.cfg.SettingsCacheTTL, a.logger)
	executor := engine.NewExecutor(a.database, a.database, a.database, a.database, deleter, a.logger)
	eng := engine.New(matcher, gate, executor, a.database, a.logger)

	// Mutations flow back into the caches immediately instead of waiting out
	// the TTL.
	a.database.OnRuleChange(matcher.Invalidate)
	a.database.OnSettingsChange(gate.Invalidate)

	pool := telegram.NewPool(a.database, a.database, eng, a.cfg.SendRateRPS, a.logger)
	defer pool.StopAll(context.WithoutCancel(ctx))

	settings, err := gate.CurrentSettings(ctx)
	if err != nil {
		return err
	}

	if settings.AutoStart {
		if err := pool.StartAll(ctx); err != nil {
			a.logger.Error().Err(err).Msg("initial start-all failed")
		}
	} else {
		a.logger.Info().Msg("auto start disabled, waiting for start request")
	}

	go a.pruneLoop(ctx)

	// Watch for external start/stop requests recorded in the settings row.
	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:     "start-watch",
		Interval: startWatchInterval,
		Logger:   a.logger,
		OnTick: func(ctx context.Context) {
			a.reconcile(ctx, pool)
		},
	})
}

// reconcile aligns the pool with the requested bot status: a starting status
// triggers start-all, a stopped status with live connections triggers
// stop-all.
func (a *App) reconcile(ctx context.Context, pool *telegram.Pool) {
	settings, err := a.database.Settings(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("settings read failed")

		return
	}

	observability.DailyResponsesUsed.Set(float64(settings.DailyResponseCount))

	switch settings.Status {
	case domain.BotStarting:
		if err := pool.StartAll(ctx); err != nil {
			a.logger.Error().Err(err).Msg("start-all failed")
		}
	case domain.BotStopped:
		if pool.Active() > 0 {
			pool.StopAll(ctx)
		}
	default:
	}
}

func (a *App) pruneLoop(ctx context.Context) {
	if a.cfg.ActivityRetention <= 0 {
		return
	}

	_ = worker.TickerLoop(ctx, worker.TickerConfig{
		Name:       "activity-prune",
		Interval:   a.cfg.PruneInterval,
		RunOnStart: true,
		Logger:     a.logger,
		OnTick: func(ctx context.Context) {
			cutoff := time.Now().Add(-a.cfg.ActivityRetention)

			removed, err := a.database.PruneActivity(ctx, cutoff)
			if err != nil {
				a.logger.Error().Err(err).Msg("activity prune failed")

				return
			}

			if removed > 0 {
				a.logger.Info().Int64("removed", removed).Msg("pruned activity log")
			}
		},
	})
}

// RunLogin performs the interactive account login and exits.
func (a *App) RunLogin(ctx context.Context) error {
	login := telegram.NewLogin(a.database, a.cfg.TGPhone, a.cfg.TG2FAPassword,
		a.cfg.TGAPIID, a.cfg.TGAPIHash, a.logger)

	return login.Run(ctx)
}
