package scraper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-proxy/work/client"
	"livetv-proxy/work/config"
)

func TestParseCandidates(t *testing.T) {
	page := `
<a class="btn" data-url="https://a.example/embed?id=1&amp;x=2" title="one">  Câmera 1 </a>
<button DATA-URL='//b.example/player'>Principal</button>
<a href="/other">ignored</a>`

	got := ParseCandidates(page)
	require.Len(t, got, 2)

	assert.Equal(t, Candidate{URL: "https://a.example/embed?id=1&x=2", Label: "Câmera 1", Index: 1}, got[0])
	assert.Equal(t, Candidate{URL: "//b.example/player", Label: "Principal", Index: 2}, got[1])
}

func TestFindPlaylistURL(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"plain", `var s = "https://cdn.example/a/index.m3u8";`, "https://cdn.example/a/index.m3u8", true},
		{"escaped slashes", `file: "https:\u002F\u002Fcdn.example\u002Fb.m3u8"`, "https://cdn.example/b.m3u8", true},
		{"backslashes", `source: 'https:\/\/cdn.example\/c.m3u8?t=1'`, "https://cdn.example/c.m3u8?t=1", true},
		{"protocol relative", `src: "//cdn.example/d.m3u8"`, "https://cdn.example/d.m3u8", true},
		{"skips localhost", `"http://localhost/x.m3u8" "https://cdn.example/e.m3u8"`, "https://cdn.example/e.m3u8", true},
		{"skips data", `"data:application/x-mpegurl;base64,AAAA.m3u8"`, "", false},
		{"relative only", `"chunks/f.m3u8"`, "", false},
		{"none", `<video></video>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindPlaylistURL(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNestedPlayerURLsTakesFirstTwo(t *testing.T) {
	body := `<iframe src="https://a/player/1"></iframe><img src="https://a/logo.png">
<iframe src="https://b/embed/2"></iframe><iframe src="https://c/watch/3"></iframe>`

	assert.Equal(t, []string{"https://a/player/1", "https://b/embed/2"}, NestedPlayerURLs(body))
}

func TestExtractStopsAtMaxDepth(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/player":
			io.WriteString(w, `<iframe src="`+srv.URL+`/embed/1"></iframe>`)
		case "/embed/1":
			io.WriteString(w, `<iframe src="`+srv.URL+`/embed/2"></iframe>`)
		case "/embed/2":
			io.WriteString(w, `"https://cdn.example/deep.m3u8"`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	e := NewExtractor(cfg, client.NewWithHTTPClient(cfg, &http.Client{}))

	e.MaxDepth = 2
	got, err := e.Extract(context.Background(), srv.URL+"/player")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/deep.m3u8", got)

	e.MaxDepth = 1
	_, err = e.Extract(context.Background(), srv.URL+"/player")
	assert.ErrorIs(t, err, ErrNoPlaylist)
}
