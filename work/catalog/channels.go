package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"livetv-proxy/work/types"
)

const channelColumns = `id, name, category, logo_url, image_color, is_featured, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*types.Channel, error) {
	var ch types.Channel
	var logo sql.NullString
	var createdAt string

	if err := row.Scan(&ch.ID, &ch.Name, &ch.Category, &logo, &ch.ImageColor, &ch.IsFeatured, &createdAt); err != nil {
		return nil, err
	}
	ch.LogoURL = logo.String
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

// GetChannel returns the channel with the given id, or nil when there is none.
func (db *DB) GetChannel(ctx context.Context, id string) (*types.Channel, error) {
	row := db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)

	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel %s: %w", id, err)
	}
	return ch, nil
}

// ListChannels returns every channel, featured ones first, then by name.
func (db *DB) ListChannels(ctx context.Context) ([]types.Channel, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY is_featured DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer rows.Close()

	channels := []types.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}

	return channels, rows.Err()
}

// SaveChannel inserts or updates a channel. A zero CreatedAt is stamped now.
func (db *DB) SaveChannel(ctx context.Context, ch *types.Channel) error {
	return saveChannel(ctx, db.DB, ch)
}

func saveChannel(ctx context.Context, ex execer, ch *types.Channel) error {
	if ch.ID == "" || ch.Name == "" {
		return fmt.Errorf("channel needs an id and a name")
	}

	var logo sql.NullString
	if ch.LogoURL != "" {
		logo = sql.NullString{String: ch.LogoURL, Valid: true}
	}

	query := `
		INSERT INTO channels (id, name, category, logo_url, image_color, is_featured, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			logo_url = excluded.logo_url,
			image_color = excluded.image_color,
			is_featured = excluded.is_featured
	`

	_, err := ex.ExecContext(ctx, query,
		ch.ID, ch.Name, ch.Category, logo, ch.ImageColor, ch.IsFeatured, formatTime(ch.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save channel %s: %w", ch.ID, err)
	}
	return nil
}
