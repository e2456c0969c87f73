// Package storage is the PostgreSQL persistence layer. It owns the pgx pool,
// runs goose migrations, and implements the engine's repository interfaces.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lueurxax/telegram-autoreply-bot/migrations"
)

type DB struct {
	Pool *pgxpool.Pool

	// Change hooks run after rule or settings mutations. Wired to the engine
	// caches so edits take effect before the TTL elapses.
	ruleHooks     []func()
	settingsHooks []func()
}

func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	for i := 0; i < 10; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &DB{Pool: pool}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
}

func (db *DB) Close() {
	db.Pool.Close()
}

// OnRuleChange registers a hook invoked after every rule mutation. Hooks must
// be registered before the pool starts serving traffic.
func (db *DB) OnRuleChange(fn func()) {
	db.ruleHooks = append(db.ruleHooks, fn)
}

// OnSettingsChange registers a hook invoked after every settings mutation.
func (db *DB) OnSettingsChange(fn func()) {
	db.settingsHooks = append(db.settingsHooks, fn)
}

func (db *DB) notifyRuleChange() {
	for _, fn := range db.ruleHooks {
		fn()
	}
}

func (db *DB) notifySettingsChange() {
	for _, fn := range db.settingsHooks {
		fn()
	}
}

const migrationLockID = 1000

func (db *DB) Migrate(ctx context.Context) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	// Acquire blocking advisory lock to ensure only one migration runs at a time
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return err
	}

	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	dbSQL := stdlib.OpenDB(*db.Pool.Config().ConnConfig)

	defer func() {
		_ = dbSQL.Close()
	}()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(dbSQL, "."); err != nil {
		return err
	}

	return nil
}

// Helpers

func toUUID(id string) pgtype.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}

	return pgtype.UUID{Bytes: u, Valid: true}
}

func fromUUID(uid pgtype.UUID) string {
	if !uid.Valid {
		return ""
	}

	return uuid.UUID(uid.Bytes).String()
}

func toUUIDPtr(id *string) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}

	return toUUID(*id)
}

func fromUUIDPtr(uid pgtype.UUID) *string {
	if !uid.Valid {
		return nil
	}

	s := uuid.UUID(uid.Bytes).String()

	return &s
}

func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toTimestamptzPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}

	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromTimestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}

	t := ts.Time

	return &t
}

func toInt4Ptr(i *int) pgtype.Int4 {
	if i == nil {
		return pgtype.Int4{Valid: false}
	}

	return pgtype.Int4{Int32: int32(*i), Valid: true}
}

func fromInt4Ptr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}

	i := int(v.Int32)

	return &i
}
