package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-proxy/work/types"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestChannelRoundTrip(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 12, 20, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveChannel(ctx, &types.Channel{
		ID: "bbb", Name: "Big Brother Brasil 26", Category: "Reality",
		ImageColor: "#ff6600", IsFeatured: true, CreatedAt: created,
	}))
	require.NoError(t, db.SaveChannel(ctx, &types.Channel{
		ID: "news", Name: "A News", LogoURL: "https://img.example/news.png",
	}))

	ch, err := db.GetChannel(ctx, "bbb")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "Big Brother Brasil 26", ch.Name)
	assert.True(t, ch.IsFeatured)
	assert.Empty(t, ch.LogoURL)
	assert.True(t, created.Equal(ch.CreatedAt))

	missing, err := db.GetChannel(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := db.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bbb", list[0].ID, "featured first")
	assert.Equal(t, "https://img.example/news.png", list[1].LogoURL)

	require.NoError(t, db.SaveChannel(ctx, &types.Channel{ID: "bbb", Name: "BBB 26"}))
	ch, err = db.GetChannel(ctx, "bbb")
	require.NoError(t, err)
	assert.Equal(t, "BBB 26", ch.Name)
	assert.False(t, ch.IsFeatured)
	assert.True(t, created.Equal(ch.CreatedAt), "created_at survives updates")
}

func TestSourcesForChannel(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	require.NoError(t, db.SaveChannel(ctx, &types.Channel{ID: "bbb", Name: "BBB"}))

	empty, err := db.ListSources(ctx, "bbb")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, db.SaveSource(ctx, "bbb", types.StreamSource{
		ID: "s1", Label: "Câmera 2", URL: "https://cdn.example/2.m3u8", Quality: "HD",
	}))
	require.NoError(t, db.SaveSource(ctx, "bbb", types.StreamSource{
		ID: "s2", Label: "Mosaico", URL: "https://player.example/embed", Type: types.SourceTypeEmbeddedPlayer,
	}))

	got, err := db.ListSources(ctx, "bbb")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.SourceTypePlaylist, got[0].Type, "type defaults to m3u8")
	assert.Equal(t, types.SourceTypeEmbeddedPlayer, got[1].Type)

	assert.Error(t, db.SaveSource(ctx, "bbb", types.StreamSource{ID: "s3"}))
	assert.Error(t, db.SaveSource(ctx, "ghost", types.StreamSource{ID: "s4", URL: "https://x"}), "foreign key enforced")
}

func TestImportFile(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	seed := `[
	  {"id": "bbb", "name": "Big Brother Brasil 26", "category": "Reality", "isFeatured": true,
	   "sources": [{"id": "bbb-1", "label": "Câmera 1", "url": "https://cdn.example/1.m3u8", "quality": "HD", "type": "m3u8"}]},
	  {"id": "news", "name": "News"}
	]`
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	n, err := db.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"channels": 2, "stream_sources": 1}, stats)

	srcs, err := db.ListSources(ctx, "bbb")
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, "Câmera 1", srcs[0].Label)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "", "name": "broken"}]`), 0644))
	_, err = db.ImportFile(ctx, path)
	assert.Error(t, err)

	stats, err = db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["channels"], "failed import rolls back")
}
