package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

const settingsColumns = `id, status, auto_start, log_messages,
	response_delay_min, response_delay_max,
	max_daily_responses, daily_response_count, last_reset_date,
	allowed_users, blocked_users, created_at, updated_at`

// Settings returns the singleton settings row, inserting the defaults on
// first access.
func (db *DB) Settings(ctx context.Context) (domain.BotSettings, error) {
	settings, err := db.querySettings(ctx)
	if err == nil {
		return settings, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.BotSettings{}, fmt.Errorf("query settings: %w", err)
	}

	// ON CONFLICT keeps concurrent first accesses from racing the insert.
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO bot_settings (status) VALUES ('stopped')
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return domain.BotSettings{}, fmt.Errorf("insert default settings: %w", err)
	}

	settings, err = db.querySettings(ctx)
	if err != nil {
		return domain.BotSettings{}, fmt.Errorf("query settings after insert: %w", err)
	}

	return settings, nil
}

func (db *DB) querySettings(ctx context.Context) (domain.BotSettings, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM bot_settings
		ORDER BY created_at
		LIMIT 1
	`)

	var (
		settings domain.BotSettings
		id       = toUUID("")
		status   string
	)

	if err := row.Scan(&id, &status, &settings.AutoStart, &settings.LogMessages,
		&settings.ResponseDelayMin, &settings.ResponseDelayMax,
		&settings.MaxDailyResponses, &settings.DailyResponseCount, &settings.LastResetDate,
		&settings.AllowedUsers, &settings.BlockedUsers,
		&settings.CreatedAt, &settings.UpdatedAt); err != nil {
		return domain.BotSettings{}, err
	}

	settings.ID = fromUUID(id)
	settings.Status = domain.BotStatus(status)

	return settings, nil
}

// UpdateSettings replaces the mutable configuration fields. Counter fields
// are owned by the increment and reset methods.
func (db *DB) UpdateSettings(ctx context.Context, settings *domain.BotSettings) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE bot_settings
		SET auto_start = $2,
			log_messages = $3,
			response_delay_min = $4,
			response_delay_max = $5,
			max_daily_responses = $6,
			allowed_users = $7,
			blocked_users = $8,
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(settings.ID), settings.AutoStart, settings.LogMessages,
		settings.ResponseDelayMin, settings.ResponseDelayMax,
		settings.MaxDailyResponses, settings.AllowedUsers, settings.BlockedUsers)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	db.notifySettingsChange()

	return nil
}

// UpdateBotStatus records an engine state transition.
func (db *DB) UpdateBotStatus(ctx context.Context, settingsID string, status domain.BotStatus) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bot_settings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, toUUID(settingsID), string(status))
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}

	db.notifySettingsChange()

	return nil
}

// ResetDailyCounter zeroes the daily response counter and stamps the reset
// date. Idempotent; concurrent resets of the same stale row are harmless.
func (db *DB) ResetDailyCounter(ctx context.Context, settingsID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bot_settings
		SET daily_response_count = 0,
			last_reset_date = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(settingsID))
	if err != nil {
		return fmt.Errorf("reset daily counter: %w", err)
	}

	db.notifySettingsChange()

	return nil
}

// IncrementDailyResponses bumps the global counter atomically; readers never
// see a read-modify-write window.
func (db *DB) IncrementDailyResponses(ctx context.Context, settingsID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE bot_settings
		SET daily_response_count = daily_response_count + 1,
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(settingsID))
	if err != nil {
		return fmt.Errorf("increment daily responses: %w", err)
	}

	return nil
}
