package catalog

import (
	"context"
	"fmt"
	"time"

	"livetv-proxy/work/types"
)

// ListSources returns the curated sources of a channel in insertion order. A channel
// without sources yields an empty slice.
func (db *DB) ListSources(ctx context.Context, channelID string) ([]types.StreamSource, error) {
	query := `
		SELECT id, label, url, quality, type
		FROM stream_sources
		WHERE channel_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	sources := []types.StreamSource{}
	for rows.Next() {
		var src types.StreamSource
		var kind string
		if err := rows.Scan(&src.ID, &src.Label, &src.URL, &src.Quality, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		src.Type = types.SourceType(kind)
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// SaveSource inserts or updates a source of channelID.
func (db *DB) SaveSource(ctx context.Context, channelID string, src types.StreamSource) error {
	return saveSource(ctx, db.DB, channelID, src)
}

func saveSource(ctx context.Context, ex execer, channelID string, src types.StreamSource) error {
	if src.ID == "" || src.URL == "" {
		return fmt.Errorf("source needs an id and a url")
	}
	if src.Type == "" {
		src.Type = types.SourceTypePlaylist
	}

	query := `
		INSERT INTO stream_sources (id, channel_id, label, url, quality, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			label = excluded.label,
			url = excluded.url,
			quality = excluded.quality,
			type = excluded.type
	`

	_, err := ex.ExecContext(ctx, query,
		src.ID, channelID, src.Label, src.URL, src.Quality, string(src.Type), formatTime(time.Time{}))
	if err != nil {
		return fmt.Errorf("failed to save source %s: %w", src.ID, err)
	}
	return nil
}
