package sources

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-proxy/work/config"
	"livetv-proxy/work/errs"
	"livetv-proxy/work/proxy"
	"livetv-proxy/work/types"
)

type fakeCatalog struct {
	channels map[string]*types.Channel
	sources  map[string][]types.StreamSource
	err      error
}

func (f *fakeCatalog) GetChannel(_ context.Context, id string) (*types.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.channels[id], nil
}

func (f *fakeCatalog) ListSources(_ context.Context, id string) ([]types.StreamSource, error) {
	return f.sources[id], nil
}

type fakeDiscoverer struct {
	result *types.DiscoveryResult
	err    error
	keys   []string
}

func (f *fakeDiscoverer) Discover(_ context.Context, key string) (*types.DiscoveryResult, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func labels(srcs []types.StreamSource) []string {
	out := make([]string, len(srcs))
	for i, s := range srcs {
		out[i] = s.Label
	}
	return out
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		channels: map[string]*types.Channel{
			"1": {ID: "1", Name: "Big Brother Brasil 26 - Ao Vivo"},
			"2": {ID: "2", Name: "Canal de Notícias"},
		},
		sources: map[string][]types.StreamSource{
			"1": {{ID: "c1", Label: "Backup", URL: "https://cdn.example/bk.m3u8", Type: types.SourceTypePlaylist}},
			"2": {
				{ID: "n1", Label: "Principal", URL: "https://cdn.example/news.m3u8", Type: types.SourceTypePlaylist},
				{ID: "n2", Label: "Alternativo", URL: "https://x.online/live.m3u8", Type: types.SourceTypePlaylist},
				{ID: "n3", Label: "Player", URL: "https://player.example/embed", Type: types.SourceTypeEmbeddedPlayer},
			},
		},
	}
}

func TestForChannelPrefersDiscoveredSources(t *testing.T) {
	disc := &fakeDiscoverer{result: &types.DiscoveryResult{Sources: []types.StreamSource{
		{ID: "iframe-2", Label: "Câmera 10", URL: "https://p.example/10", Type: types.SourceTypeEmbeddedPlayer},
		{ID: "iframe-1", Label: "Mosaico", URL: "https://p.example/m", Type: types.SourceTypeEmbeddedPlayer},
		{ID: "iframe-3", Label: "Câmera 2", URL: "https://p.example/2", Type: types.SourceTypeEmbeddedPlayer},
	}}}
	r := New(config.Default(), newCatalog(), disc)

	got, err := r.ForChannel(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, []string{"big-brother-brasil-26"}, disc.keys)
	assert.True(t, got.Dynamic)
	assert.Equal(t, []string{"Câmera 2", "Câmera 10", "Mosaico"}, labels(got.Sources))
	for _, s := range got.Sources {
		assert.Empty(t, s.PlaybackURL, "embedded players play directly")
	}
}

func TestForChannelKeepsCatalogWhenDiscoveryFails(t *testing.T) {
	for name, disc := range map[string]*fakeDiscoverer{
		"error": {err: errs.StructureChanged("No player URLs found", "")},
		"empty": {result: &types.DiscoveryResult{}},
	} {
		t.Run(name, func(t *testing.T) {
			r := New(config.Default(), newCatalog(), disc)

			got, err := r.ForChannel(context.Background(), "1")
			require.NoError(t, err)
			assert.False(t, got.Dynamic)
			assert.Equal(t, []string{"Backup"}, labels(got.Sources))
		})
	}
}

func TestForChannelAddsPlaybackURLs(t *testing.T) {
	cfg := config.Default()
	cfg.BaseURL = "https://tv.example"
	disc := &fakeDiscoverer{}
	r := New(cfg, newCatalog(), disc)

	got, err := r.ForChannel(context.Background(), "2")
	require.NoError(t, err)
	assert.Empty(t, disc.keys, "channel is not scrapable")
	require.Equal(t, []string{"Alternativo", "Player", "Principal"}, labels(got.Sources))

	assert.Empty(t, got.Sources[0].PlaybackURL, "direct host")
	assert.Empty(t, got.Sources[1].PlaybackURL, "embedded player")

	u, err := url.Parse(got.Sources[2].PlaybackURL)
	require.NoError(t, err)
	assert.Equal(t, "tv.example", u.Host)
	assert.Equal(t, proxy.Path, u.Path)
	assert.Equal(t, "https://cdn.example/news.m3u8", u.Query().Get("url"))
	assert.False(t, u.Query().Has("referer"))
}

func TestForChannelErrors(t *testing.T) {
	r := New(config.Default(), newCatalog(), &fakeDiscoverer{})
	_, err := r.ForChannel(context.Background(), "404")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	broken := newCatalog()
	broken.err = errors.New("disk I/O error")
	r = New(config.Default(), broken, &fakeDiscoverer{})
	_, err = r.ForChannel(context.Background(), "1")
	assert.True(t, errs.IsKind(err, errs.KindInternal))
}

func TestScrapableSlug(t *testing.T) {
	aliases := config.Default().ScrapeAliases

	tests := []struct {
		name   string
		want   string
		wantOk bool
	}{
		{"BBB26", "big-brother-brasil-26", true},
		{"  Big Brother Brasil 26 ", "big-brother-brasil-26", true},
		{"Big Brother Brasil 26 - Câmeras", "big-brother-brasil-26", true},
		{"bbb", "big-brother-brasil-26", true},
		{"Globo", "", false},
		{"   ", "", false},
	}

	for _, tt := range tests {
		got, ok := ScrapableSlug(aliases, tt.name)
		assert.Equal(t, tt.wantOk, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestSortForDisplay(t *testing.T) {
	in := []types.StreamSource{
		{Label: "mosaico"}, {Label: "Câmera 10"}, {Label: "Camera 3"}, {Label: "Câmera 2"},
		{Label: "Extra 2"}, {Label: "Extra 10"}, {Label: ""},
	}

	got := SortForDisplay(in)
	assert.Equal(t, []string{"Câmera 2", "Camera 3", "Câmera 10", "", "Extra 2", "Extra 10", "mosaico"}, labels(got))
	assert.Equal(t, "mosaico", in[0].Label, "input untouched")
}

func TestSortForDisplayIgnoresAccentsAndCase(t *testing.T) {
	in := []types.StreamSource{{Label: "zeta"}, {Label: "Érica"}, {Label: "alfa"}, {Label: "Bravo"}}
	assert.Equal(t, []string{"alfa", "Bravo", "Érica", "zeta"}, labels(SortForDisplay(in)))
}
