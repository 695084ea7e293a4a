package referer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-proxy/work/config"
)

func newDefault(t *testing.T) *Resolver {
	t.Helper()
	r, err := FromConfig(config.Default())
	require.NoError(t, err)
	return r
}

func TestResolveMatchesConfiguredRules(t *testing.T) {
	r := newDefault(t)

	for _, rule := range config.DefaultRefererRules() {
		target := "https://edge1." + rule.Domain + ".example/live/index.m3u8"
		assert.Equal(t, rule.Referer, r.Resolve(target), "host containing %q", rule.Domain)
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := newDefault(t)
	assert.Equal(t, "https://rdcanais.top/", r.Resolve("https://CDN.ImgContent.XYZ/a.ts"))
}

func TestResolveFirstMatchWins(t *testing.T) {
	r, err := New([]Rule{
		{Domain: "cdn", Referer: "https://first.example/"},
		{Domain: "cdn.example", Referer: "https://second.example/"},
	}, "https://fallback.example/")
	require.NoError(t, err)

	assert.Equal(t, "https://first.example/", r.Resolve("https://cdn.example/x.m3u8"))
}

func TestResolveFallsBack(t *testing.T) {
	r := newDefault(t)

	assert.Equal(t, "https://multicanaishd.best/", r.Resolve("https://unknown.example/live.m3u8"))
	assert.Equal(t, r.Fallback(), r.Resolve("::not a url"))
	assert.Equal(t, r.Fallback(), r.Resolve(""))
	assert.Equal(t, r.Fallback(), r.Resolve("relative/path.ts"))
}

func TestResolveMemoisedAnswerIsStable(t *testing.T) {
	r := newDefault(t)
	target := "https://a.redecanaistv.example/1.ts"

	first := r.Resolve(target)
	second := r.Resolve(target)
	assert.Equal(t, "https://redecanaistv.fm/", first)
	assert.Equal(t, first, second)
}

func TestNewRejectsInvalidTables(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)

	_, err = New(nil, "not-absolute")
	assert.Error(t, err)

	_, err = New([]Rule{{Domain: "", Referer: "https://x.example/"}}, "https://f.example/")
	assert.Error(t, err)

	_, err = New([]Rule{{Domain: "x", Referer: ""}}, "https://f.example/")
	assert.Error(t, err)
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://embedtvonline.com", Origin("https://embedtvonline.com/"))
	assert.Equal(t, "http://h.example:8080", Origin("http://h.example:8080/a/b?c=d"))
	assert.Equal(t, "", Origin("nope"))
}
