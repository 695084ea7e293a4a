package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProxyRequests counts proxy responses by disposition (playlist, binary, error) and
// status code.
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_proxy_requests_total",
	Help: "Proxy requests by disposition and status code",
}, []string{"kind", "status"})

// BytesStreamed counts bytes written to clients by the proxy.
var BytesStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_proxy_bytes_streamed_total",
	Help: "Bytes written to proxy clients",
}, []string{"kind"})

// ActiveStreams tracks binary pass-through responses currently being copied.
var ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "livetv_proxy_active_streams",
	Help: "Binary pass-through responses in flight",
})

// PlaylistsRewritten counts rewritten playlists by flavour (master, media, unknown).
var PlaylistsRewritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_proxy_playlists_rewritten_total",
	Help: "Playlists rewritten by the proxy",
}, []string{"playlist_kind"})

// DiscoveryRequests counts discovery calls by outcome (cached, fresh, or an error kind).
var DiscoveryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_discovery_requests_total",
	Help: "Stream discovery calls by outcome",
}, []string{"outcome"})

// ScrapeFetches counts upstream page fetches made by the scraper, by page role.
var ScrapeFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_scrape_fetches_total",
	Help: "Upstream pages fetched by the discovery scraper",
}, []string{"page"})
