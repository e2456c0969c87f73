package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
)

const mediaColumns = `id, kind, file_path, sticker_id, sticker_access_hash,
	sticker_file_ref, active, created_at`

// MediaByID resolves a stored media item. Unknown ids return (nil, nil) so
// the executor can skip the content without failing the invocation.
func (db *DB) MediaByID(ctx context.Context, id string) (*domain.MediaItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items
		WHERE id = $1
	`, toUUID(id))

	item, err := scanMediaItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("media by id: %w", err)
	}

	return item, nil
}

func (db *DB) ListMedia(ctx context.Context) ([]domain.MediaItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+mediaColumns+`
		FROM media_items
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []domain.MediaItem

	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media row: %w", err)
		}

		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media rows: %w", err)
	}

	return items, nil
}

func (db *DB) CreateMedia(ctx context.Context, item *domain.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO media_items (id, kind, file_path, sticker_id,
			sticker_access_hash, sticker_file_ref, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, toUUID(item.ID), string(item.Kind), toText(item.FilePath),
		item.StickerID, item.StickerAccessHash, item.StickerFileRef, item.Active)
	if err != nil {
		return fmt.Errorf("create media: %w", err)
	}

	return nil
}

// SetMediaActive toggles availability without deleting the row, so rules
// referencing the item keep a stable id.
func (db *DB) SetMediaActive(ctx context.Context, id string, active bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE media_items SET active = $2 WHERE id = $1
	`, toUUID(id), active)
	if err != nil {
		return fmt.Errorf("set media active: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanMediaItem(row rowScanner) (*domain.MediaItem, error) {
	var (
		item     domain.MediaItem
		id       = toUUID("")
		kind     string
		filePath = toText("")
	)

	if err := row.Scan(&id, &kind, &filePath, &item.StickerID,
		&item.StickerAccessHash, &item.StickerFileRef,
		&item.Active, &item.CreatedAt); err != nil {
		return nil, err
	}

	item.ID = fromUUID(id)
	item.Kind = domain.MediaKind(kind)
	item.FilePath = filePath.String

	return &item, nil
}
