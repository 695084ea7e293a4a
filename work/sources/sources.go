// Package sources assembles the source list shown on a channel's watch page: curated
// catalog entries, replaced by freshly discovered ones when the channel can be scraped.
package sources

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"livetv-proxy/work/config"
	"livetv-proxy/work/errs"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/proxy"
	"livetv-proxy/work/types"
)

// Catalog is the read side of the channel catalog.
type Catalog interface {
	GetChannel(ctx context.Context, id string) (*types.Channel, error)
	ListSources(ctx context.Context, channelID string) ([]types.StreamSource, error)
}

// Discoverer finds live sources for a discovery key.
type Discoverer interface {
	Discover(ctx context.Context, channelKey string) (*types.DiscoveryResult, error)
}

// ChannelSources is the watch-page payload.
type ChannelSources struct {
	Channel types.Channel        `json:"channel"`
	Sources []types.StreamSource `json:"sources"`
	Dynamic bool                 `json:"dynamic"` // sources came from discovery, not the catalog
}

// Resolver combines the catalog with discovery.
type Resolver struct {
	Config     *config.Config
	Catalog    Catalog
	Discoverer Discoverer
}

// New creates a Resolver.
func New(cfg *config.Config, catalog Catalog, discoverer Discoverer) *Resolver {
	return &Resolver{Config: cfg, Catalog: catalog, Discoverer: discoverer}
}

// ForChannel loads a channel and its playable sources, sorted for display.
func (r *Resolver) ForChannel(ctx context.Context, channelID string) (*ChannelSources, error) {
	var (
		channel *types.Channel
		curated []types.StreamSource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channel, err = r.Catalog.GetChannel(gctx, channelID)
		return err
	})
	g.Go(func() error {
		var err error
		curated, err = r.Catalog.ListSources(gctx, channelID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errs.Internal("Internal Server Error", err)
	}

	if channel == nil {
		return nil, errs.NotFound("Channel not found")
	}

	out := &ChannelSources{Channel: *channel, Sources: curated}

	if slug, ok := ScrapableSlug(r.Config.ScrapeAliases, channel.Name); ok {
		logger.Debug("{sources/sources - ForChannel} Channel %q supports scraping as %s", channel.Name, slug)

		res, err := r.Discoverer.Discover(ctx, slug)
		switch {
		case err != nil:
			logger.Warn("{sources/sources - ForChannel} Discovery for %s failed, keeping catalog sources: %v", slug, err)
		case len(res.Sources) == 0:
			logger.Warn("{sources/sources - ForChannel} No dynamic streams for %s, keeping catalog sources", slug)
		default:
			out.Sources = res.Sources
			out.Dynamic = true
		}
	}

	out.Sources = r.withPlayback(SortForDisplay(out.Sources))
	return out, nil
}

// withPlayback attaches proxied playback URLs to playlists whose host needs header
// spoofing. Embedded players and direct hosts play as-is.
func (r *Resolver) withPlayback(in []types.StreamSource) []types.StreamSource {
	out := make([]types.StreamSource, len(in))
	for i, src := range in {
		out[i] = src
		if src.Type != types.SourceTypePlaylist || r.isDirectHost(src.URL) {
			continue
		}
		out[i] = src.WithPlaybackURL(proxy.ProxyURL(r.Config.BaseURL, src.URL, ""))
	}
	return out
}

func (r *Resolver) isDirectHost(u string) bool {
	for _, h := range r.Config.DirectHosts {
		if h != "" && strings.Contains(u, h) {
			return true
		}
	}
	return false
}

// ScrapableSlug maps a catalog channel name to a discovery key: an exact alias match
// first, then an alias contained in the name or the name contained in an alias. Longer
// aliases are tried first so the most specific one wins.
func ScrapableSlug(aliases map[string]string, channelName string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(channelName))
	if name == "" {
		return "", false
	}

	if slug, ok := aliases[name]; ok {
		return slug, true
	}

	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if k == "" {
			continue
		}
		if strings.Contains(name, k) || strings.Contains(k, name) {
			return aliases[k], true
		}
	}
	return "", false
}

// SortForDisplay returns a copy of in with camera feeds first, each group in natural
// Portuguese label order ("Câmera 2" before "Câmera 10", "Érica" between "alfa" and "zeta").
func SortForDisplay(in []types.StreamSource) []types.StreamSource {
	out := make([]types.StreamSource, len(in))
	copy(out, in)

	// a Collator keeps internal buffers, so each call gets its own
	labels := collate.New(language.BrazilianPortuguese, collate.Numeric, collate.IgnoreCase)

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := isCamera(out[i].Label), isCamera(out[j].Label)
		if ci != cj {
			return ci
		}
		return labels.CompareString(out[i].Label, out[j].Label) < 0
	})
	return out
}

func isCamera(label string) bool {
	return strings.HasPrefix(label, "Câmera") || strings.HasPrefix(label, "Camera")
}
