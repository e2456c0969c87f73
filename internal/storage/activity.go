package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

func (db *DB) InsertActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO activity_log (account_id, chat_id, chat_type, user_id,
			username, first_name, message_text, rule_id, action_taken,
			success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, toUUID(entry.AccountID), entry.ChatID, string(entry.ChatType), entry.UserID,
		toText(entry.Username), toText(entry.FirstName), toText(entry.MessageText),
		toUUIDPtr(entry.RuleID), toText(entry.ActionTaken),
		entry.Success, toText(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	return nil
}

// CountRuleTriggersSince counts the rule's activity entries since the given
// instant. Used for the per-rule daily cap; failed invocations count too, so
// a rule that keeps erroring still runs out of attempts for the day.
func (db *DB) CountRuleTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM activity_log
		WHERE rule_id = $1 AND created_at >= $2
	`, toUUID(ruleID), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rule triggers: %w", err)
	}

	return count, nil
}

// UpsertDailyStats bumps the per-rule aggregate counters for the day.
func (db *DB) UpsertDailyStats(ctx context.Context, ruleID string, day time.Time, success bool) error {
	successInc := 0
	errorInc := 0

	if success {
		successInc = 1
	} else {
		errorInc = 1
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO rule_daily_stats (rule_id, day, trigger_count, success_count, error_count)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (rule_id, day) DO UPDATE SET
			trigger_count = rule_daily_stats.trigger_count + 1,
			success_count = rule_daily_stats.success_count + EXCLUDED.success_count,
			error_count = rule_daily_stats.error_count + EXCLUDED.error_count
	`, toUUID(ruleID), day, successInc, errorInc)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}

	return nil
}

// RecentActivity returns the newest audit entries, most recent first.
func (db *DB) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, account_id, chat_id, chat_type, user_id,
			username, first_name, message_text, rule_id, action_taken,
			success, error_message, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent activity: %w", err)
	}
	defer rows.Close()

	return collectActivity(rows, limit)
}

// RuleStatistics returns the per-day aggregates for a rule over the last
// given number of days, newest first.
func (db *DB) RuleStatistics(ctx context.Context, ruleID string, days int) ([]domain.RuleStatistics, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT rule_id, day, trigger_count, success_count, error_count
		FROM rule_daily_stats
		WHERE rule_id = $1 AND day >= NOW() - make_interval(days => $2)
		ORDER BY day DESC
	`, toUUID(ruleID), days)
	if err != nil {
		return nil, fmt.Errorf("query rule statistics: %w", err)
	}
	defer rows.Close()

	var stats []domain.RuleStatistics

	for rows.Next() {
		var (
			entry domain.RuleStatistics
			id    = toUUID("")
		)

		if err := rows.Scan(&id, &entry.Day, &entry.TriggerCount,
			&entry.SuccessCount, &entry.ErrorCount); err != nil {
			return nil, fmt.Errorf("scan rule statistics row: %w", err)
		}

		entry.RuleID = fromUUID(id)
		stats = append(stats, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule statistics rows: %w", err)
	}

	return stats, nil
}

// PruneActivity deletes audit entries older than the retention window and
// returns the number removed.
func (db *DB) PruneActivity(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM activity_log WHERE created_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}

	return tag.RowsAffected(), nil
}

func collectActivity(rows pgx.Rows, capacity int) ([]domain.ActivityLogEntry, error) {
	entries := make([]domain.ActivityLogEntry, 0, capacity)

	for rows.Next() {
		var (
			entry        domain.ActivityLogEntry
			id           = toUUID("")
			accountID    = toUUID("")
			ruleID       = toUUIDPtr(nil)
			chatType     string
			username     = toText("")
			firstName    = toText("")
			messageText  = toText("")
			actionTaken  = toText("")
			errorMessage = toText("")
		)

		if err := rows.Scan(&id, &accountID, &entry.ChatID, &chatType, &entry.UserID,
			&username, &firstName, &messageText, &ruleID, &actionTaken,
			&entry.Success, &errorMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		entry.ID = fromUUID(id)
		entry.AccountID = fromUUID(accountID)
		entry.ChatType = domain.ChatType(chatType)
		entry.Username = username.String
		entry.FirstName = firstName.String
		entry.MessageText = messageText.String
		entry.RuleID = fromUUIDPtr(ruleID)
		entry.ActionTaken = actionTaken.String
		entry.ErrorMessage = errorMessage.String

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return entries, nil
}
