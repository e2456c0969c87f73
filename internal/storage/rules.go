package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

const ruleColumns = `id, name, active, priority, account_id,
	conditions, actions, branches,
	cooldown_seconds, max_triggers_per_day,
	usage_count, success_count, error_count,
	last_triggered, created_at, updated_at`

// ActiveRules returns the account's candidate rules: active rows scoped to
// the account or globally scoped, in creation order. The matcher relies on
// this order as the tie-break among equal priorities.
func (db *DB) ActiveRules(ctx context.Context, accountID string) ([]domain.Rule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE active AND (account_id IS NULL OR account_id = $1)
		ORDER BY created_at
	`, toUUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func (db *DB) ListRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		ORDER BY priority DESC, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func (db *DB) RuleByID(ctx context.Context, id string) (*domain.Rule, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, toUUID(id))

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("rule by id: %w", err)
	}

	return rule, nil
}

func (db *DB) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	conditions, actions, branches, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO rules (id, name, active, priority, account_id,
			conditions, actions, branches,
			cooldown_seconds, max_triggers_per_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, toUUID(rule.ID), rule.Name, rule.Active, rule.Priority, toUUIDPtr(rule.AccountID),
		conditions, actions, branches,
		rule.CooldownSeconds, toInt4Ptr(rule.MaxTriggersPerDay))
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	db.notifyRuleChange()

	return nil
}

// UpdateRule replaces the rule definition. Counters and the last-triggered
// timestamp are owned by the record methods and left untouched.
func (db *DB) UpdateRule(ctx context.Context, rule *domain.Rule) error {
	conditions, actions, branches, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE rules
		SET name = $2,
			active = $3,
			priority = $4,
			account_id = $5,
			conditions = $6,
			actions = $7,
			branches = $8,
			cooldown_seconds = $9,
			max_triggers_per_day = $10,
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(rule.ID), rule.Name, rule.Active, rule.Priority, toUUIDPtr(rule.AccountID),
		conditions, actions, branches,
		rule.CooldownSeconds, toInt4Ptr(rule.MaxTriggersPerDay))
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	db.notifyRuleChange()

	return nil
}

func (db *DB) DeleteRule(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, toUUID(id))
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	db.notifyRuleChange()

	return nil
}

// RecordRuleSuccess bumps the usage and success counters and stamps the
// cooldown clock. A single UPDATE keeps it atomic under concurrent triggers.
func (db *DB) RecordRuleSuccess(ctx context.Context, ruleID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE rules
		SET usage_count = usage_count + 1,
			success_count = success_count + 1,
			last_triggered = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(ruleID))
	if err != nil {
		return fmt.Errorf("record rule success: %w", err)
	}

	db.notifyRuleChange()

	return nil
}

func (db *DB) RecordRuleError(ctx context.Context, ruleID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE rules
		SET error_count = error_count + 1,
			updated_at = NOW()
		WHERE id = $1
	`, toUUID(ruleID))
	if err != nil {
		return fmt.Errorf("record rule error: %w", err)
	}

	return nil
}

func marshalRuleDocs(rule *domain.Rule) (conditions, actions, branches []byte, err error) {
	conditions, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rule conditions: %w", err)
	}

	actions, err = json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rule actions: %w", err)
	}

	branches, err = json.Marshal(rule.Branches)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rule branches: %w", err)
	}

	return conditions, actions, branches, nil
}

func collectRules(rows pgx.Rows) ([]domain.Rule, error) {
	var rules []domain.Rule

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}

		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}

	return rules, nil
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var (
		rule          domain.Rule
		id            = toUUID("")
		accountID     = toUUIDPtr(nil)
		maxTriggers   = toInt4Ptr(nil)
		lastTriggered = toTimestamptzPtr(nil)

		conditions []byte
		actions    []byte
		branches   []byte
	)

	if err := row.Scan(&id, &rule.Name, &rule.Active, &rule.Priority, &accountID,
		&conditions, &actions, &branches,
		&rule.CooldownSeconds, &maxTriggers,
		&rule.UsageCount, &rule.SuccessCount, &rule.ErrorCount,
		&lastTriggered, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}

	rule.ID = fromUUID(id)
	rule.AccountID = fromUUIDPtr(accountID)
	rule.MaxTriggersPerDay = fromInt4Ptr(maxTriggers)
	rule.LastTriggered = fromTimestamptzPtr(lastTriggered)

	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
	}

	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal rule actions: %w", err)
	}

	if err := json.Unmarshal(branches, &rule.Branches); err != nil {
		return nil, fmt.Errorf("unmarshal rule branches: %w", err)
	}

	return &rule, nil
}
