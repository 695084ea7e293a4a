package scraper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/grafana/regexp"

	"livetv-proxy/work/client"
	"livetv-proxy/work/config"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/metrics"
	"livetv-proxy/work/utils"
)

const maxPageBytes = 4 << 20

// ErrNoPlaylist is returned when a player page, and the nested pages it links to, yield
// no usable playlist URL.
var ErrNoPlaylist = errors.New("no playlist URL found in player page")

// Candidate is one player link found on a catalog page.
type Candidate struct {
	URL   string
	Label string
	Index int // 1-based position among all matches, including dropped ones
}

// catalogPattern matches <a ... data-url="URL" ...>Label</a>.
var catalogPattern = regexp.MustCompile(`(?i)data-url=["']([^"']+)["'][^>]*>([^<]+)`)

// playlistPatterns are tried in order; each requires a .m3u8 reference.
var playlistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)["']([^"']+\.m3u8[^"']*)['"]`),
	regexp.MustCompile(`(?i)source:\s*["']([^"']+\.m3u8[^"']*)['"]`),
	regexp.MustCompile(`(?i)file:\s*["']([^"']+\.m3u8[^"']*)['"]`),
	regexp.MustCompile(`(?i)src:\s*["']([^"']+\.m3u8[^"']*)['"]`),
	regexp.MustCompile(`(?i)url:\s*["']([^"']+\.m3u8[^"']*)['"]`),
}

// nestedPattern finds iframe-like src attributes pointing at other player pages.
var nestedPattern = regexp.MustCompile(`(?i)src=["']([^"']+(?:player|embed|watch)[^"']*)["']`)

// maxNestedCandidates bounds how many nested pages are tried per page.
const maxNestedCandidates = 2

// ParseCandidates scans catalog HTML for player links. URLs are returned as found; the
// caller normalises them.
func ParseCandidates(page string) []Candidate {
	matches := catalogPattern.FindAllStringSubmatch(page, -1)
	out := make([]Candidate, 0, len(matches))
	for i, m := range matches {
		out = append(out, Candidate{
			URL:   strings.TrimSpace(html.UnescapeString(m[1])),
			Label: strings.TrimSpace(html.UnescapeString(m[2])),
			Index: i + 1,
		})
	}
	return out
}

// FindPlaylistURL returns the first playlist URL in body that survives cleanup.
func FindPlaylistURL(body string) (string, bool) {
	for _, pattern := range playlistPatterns {
		for _, m := range pattern.FindAllStringSubmatch(body, -1) {
			if u, ok := cleanPlaylistURL(m[1]); ok {
				return u, true
			}
		}
	}
	return "", false
}

func cleanPlaylistURL(raw string) (string, bool) {
	u := strings.ReplaceAll(raw, `\u002F`, "/")
	u = strings.ReplaceAll(u, `\`, "")

	if strings.HasPrefix(u, "data:") || strings.Contains(u, "localhost") {
		return "", false
	}
	if !strings.Contains(u, ".m3u8") {
		return "", false
	}
	if !strings.HasPrefix(u, "http") && !strings.HasPrefix(u, "//") {
		return "", false
	}
	return utils.NormalizeURL(u)
}

// NestedPlayerURLs returns up to two nested player page URLs referenced by body.
func NestedPlayerURLs(body string) []string {
	var out []string
	for _, m := range nestedPattern.FindAllStringSubmatch(body, -1) {
		if len(out) == maxNestedCandidates {
			break
		}
		out = append(out, m[1])
	}
	return out
}

// Extractor follows a player page to the literal playlist URL it plays.
type Extractor struct {
	HttpClient *client.HeaderSettingClient
	Referer    string // sent with every player page request
	MaxDepth   int    // nested pages followed below the first one
	pace       func(ctx context.Context, target string) error
}

// NewExtractor creates an Extractor using the catalog site as referer.
func NewExtractor(cfg *config.Config, httpClient *client.HeaderSettingClient) *Extractor {
	return &Extractor{
		HttpClient: httpClient,
		Referer:    utils.OriginOf(cfg.CatalogBaseURL) + "/",
		MaxDepth:   cfg.MaxNestedDepth,
	}
}

// Extract fetches playerURL and returns the first playlist URL it references, following
// nested player iframes when the page has none of its own.
func (e *Extractor) Extract(ctx context.Context, playerURL string) (string, error) {
	return e.extract(ctx, playerURL, 0)
}

func (e *Extractor) extract(ctx context.Context, playerURL string, depth int) (string, error) {
	target, ok := utils.NormalizeURL(playerURL)
	if !ok {
		return "", ErrNoPlaylist
	}

	body, err := e.fetch(ctx, target)
	if err != nil {
		logger.Debug("{scraper/extract - extract} Failed to fetch player %s: %v", utils.Truncate(target, 80), err)
		return "", err
	}

	if u, ok := FindPlaylistURL(body); ok {
		logger.Debug("{scraper/extract - extract} Extracted: %s", utils.Truncate(u, 80))
		return u, nil
	}

	if depth >= e.MaxDepth {
		return "", ErrNoPlaylist
	}

	for _, nested := range NestedPlayerURLs(body) {
		next, ok := utils.NormalizeURL(nested)
		if !ok {
			continue
		}

		logger.Debug("{scraper/extract - extract} Following nested iframe: %s", utils.Truncate(next, 80))
		if u, err := e.extract(ctx, next, depth+1); err == nil {
			return u, nil
		}
	}

	return "", ErrNoPlaylist
}

func (e *Extractor) fetch(ctx context.Context, target string) (string, error) {
	if e.pace != nil {
		if err := e.pace(ctx, target); err != nil {
			return "", fmt.Errorf("pacing player fetch: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building player request: %w", err)
	}

	metrics.ScrapeFetches.WithLabelValues("player").Inc()
	resp, err := e.HttpClient.DoWithHeaders(req, client.Headers{
		Accept:  client.AcceptHTML,
		Referer: e.Referer,
	})
	if err != nil {
		return "", fmt.Errorf("fetching player: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("player returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading player: %w", err)
	}
	return string(body), nil
}
