// Package scraper discovers playable sources for a channel by reading the catalog site's
// channel page and, optionally, the player pages it links to.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"livetv-proxy/work/cache"
	"livetv-proxy/work/client"
	"livetv-proxy/work/config"
	"livetv-proxy/work/errs"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/metrics"
	"livetv-proxy/work/types"
	"livetv-proxy/work/utils"
)

// Quality is reported for every scraped source; the catalog site does not say.
const Quality = "HD"

// Scraper turns a channel key into stream sources, memoised per channel path.
type Scraper struct {
	Config     *config.Config
	HttpClient *client.HeaderSettingClient
	Cache      *cache.ScrapeCache
	Extractor  *Extractor
	WorkerPool *ants.Pool

	limiters *xsync.MapOf[string, ratelimit.Limiter] // per upstream host
}

// New creates a Scraper. workerPool may be nil, in which case direct extraction runs
// sequentially.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, scrapeCache *cache.ScrapeCache, workerPool *ants.Pool) *Scraper {
	s := &Scraper{
		Config:     cfg,
		HttpClient: httpClient,
		Cache:      scrapeCache,
		Extractor:  NewExtractor(cfg, httpClient),
		WorkerPool: workerPool,
		limiters:   xsync.NewMapOf[string, ratelimit.Limiter](),
	}
	s.Extractor.pace = s.pace
	return s
}

// Lookup maps a channel key to its catalog path.
func (s *Scraper) Lookup(channelKey string) (string, bool) {
	path, ok := s.Config.Channels[strings.ToLower(strings.TrimSpace(channelKey))]
	return path, ok
}

// Discover returns the sources for channelKey. A fresh cache entry is returned without
// touching the network. Failures leave the cache as it was.
func (s *Scraper) Discover(ctx context.Context, channelKey string) (*types.DiscoveryResult, error) {
	key := strings.ToLower(strings.TrimSpace(channelKey))
	if key == "" {
		return nil, errs.BadRequest("Missing channel parameter")
	}

	path, ok := s.Lookup(key)
	if !ok {
		metrics.DiscoveryRequests.WithLabelValues(string(errs.KindNotFound)).Inc()
		return nil, errs.NotFound("Unknown channel")
	}

	if entry, ok := s.Cache.Get(path); ok {
		logger.Debug("{scraper/scraper - Discover} Cache hit for %s (%d sources)", path, len(entry.Sources))
		metrics.DiscoveryRequests.WithLabelValues("cached").Inc()
		return &types.DiscoveryResult{Sources: entry.Sources, Cached: true}, nil
	}

	sources, err := s.scrape(ctx, path)
	if err != nil {
		e := errs.As(err)
		if e.Kind == errs.KindInternal {
			e = errs.Internal("Internal scraping error", e.Err)
		}
		logger.Error("{scraper/scraper - Discover} Scrape of %s failed: %v", path, err)
		metrics.DiscoveryRequests.WithLabelValues(string(e.Kind)).Inc()
		return nil, e
	}

	entry := s.Cache.Set(path, sources)
	logger.Info("{scraper/scraper - Discover} Found %d sources for %s", len(entry.Sources), path)
	metrics.DiscoveryRequests.WithLabelValues("fresh").Inc()

	return &types.DiscoveryResult{Sources: entry.Sources, Cached: false}, nil
}

func (s *Scraper) scrape(ctx context.Context, path string) ([]types.StreamSource, error) {
	pageURL := s.Config.CatalogBaseURL + path + "/"

	page, err := s.fetchCatalogPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	found := ParseCandidates(page)
	if len(found) == 0 {
		return nil, errs.StructureChanged("No player URLs found", "The source site structure may have changed")
	}

	candidates := make([]Candidate, 0, len(found))
	for _, c := range found {
		u, ok := utils.NormalizeURL(c.URL)
		if !ok || c.Label == "" {
			logger.Debug("{scraper/scraper - scrape} Skipping candidate %q", utils.Truncate(c.URL, 80))
			continue
		}
		c.URL = u
		candidates = append(candidates, c)
	}

	var sources []types.StreamSource
	if s.Config.DiscoveryStrategy == config.StrategyDirect {
		sources = s.resolveDirect(ctx, candidates)
	} else {
		sources = embeddedSources(candidates)
	}

	if len(sources) == 0 {
		return nil, errs.StructureChanged("Could not extract any streams", "Player pages may have changed structure")
	}
	return sources, nil
}

func (s *Scraper) fetchCatalogPage(ctx context.Context, pageURL string) (string, error) {
	if err := s.pace(ctx, pageURL); err != nil {
		return "", errs.Upstream(http.StatusBadGateway, "Failed to fetch source page", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errs.Internal("Internal scraping error", fmt.Errorf("building catalog request: %w", err))
	}

	logger.Debug("{scraper/scraper - fetchCatalogPage} Fetching %s", pageURL)
	metrics.ScrapeFetches.WithLabelValues("catalog").Inc()

	resp, err := s.HttpClient.DoWithHeaders(req, client.Headers{
		Accept:  client.AcceptHTML,
		Referer: utils.OriginOf(s.Config.CatalogBaseURL) + "/",
	})
	if err != nil {
		return "", errs.Upstream(http.StatusBadGateway, "Failed to fetch source page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errs.Upstream(http.StatusBadGateway, "Failed to fetch source page",
			fmt.Errorf("catalog returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", errs.Upstream(http.StatusBadGateway, "Failed to fetch source page", err)
	}
	return string(body), nil
}

func embeddedSources(candidates []Candidate) []types.StreamSource {
	out := make([]types.StreamSource, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, embeddedSource(c))
	}
	return out
}

func embeddedSource(c Candidate) types.StreamSource {
	return types.StreamSource{
		ID:      fmt.Sprintf("iframe-%d", c.Index),
		Label:   c.Label,
		URL:     c.URL,
		Quality: Quality,
		Type:    types.SourceTypeEmbeddedPlayer,
	}
}

// resolveDirect follows each player page to its playlist on the worker pool. Candidates
// whose playlist cannot be found are kept as embedded players, in their original position.
func (s *Scraper) resolveDirect(ctx context.Context, candidates []Candidate) []types.StreamSource {
	out := make([]types.StreamSource, len(candidates))

	var wg sync.WaitGroup
	for i, c := range candidates {
		i, c := i, c
		task := func() {
			defer wg.Done()

			playlist, err := s.Extractor.Extract(ctx, c.URL)
			if err != nil {
				logger.Debug("{scraper/scraper - resolveDirect} %s stays embedded: %v", c.Label, err)
				out[i] = embeddedSource(c)
				return
			}
			out[i] = types.StreamSource{
				ID:      fmt.Sprintf("m3u8-%d", c.Index),
				Label:   c.Label,
				URL:     playlist,
				Quality: Quality,
				Type:    types.SourceTypePlaylist,
			}
		}

		wg.Add(1)
		if s.WorkerPool == nil {
			task()
			continue
		}
		if err := s.WorkerPool.Submit(task); err != nil {
			logger.Warn("{scraper/scraper - resolveDirect} Worker pool rejected task, running inline: %v", err)
			task()
		}
	}
	wg.Wait()

	return out
}

// pace blocks until the target's host may be contacted again. It fails when ctx ended
// before or while waiting.
func (s *Scraper) pace(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil
	}

	limiter, _ := s.limiters.LoadOrCompute(strings.ToLower(u.Host), func() ratelimit.Limiter {
		return ratelimit.New(s.Config.ScrapeRateLimit)
	})
	limiter.Take()
	return ctx.Err()
}
