// Package handlers exposes the proxy, discovery and catalog operations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"livetv-proxy/work/cache"
	"livetv-proxy/work/errs"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/proxy"
	"livetv-proxy/work/sources"
	"livetv-proxy/work/types"
)

// ChannelLister lists catalog channels.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]types.Channel, error)
}

// SourceResolver builds a channel's watch-page source list.
type SourceResolver interface {
	ForChannel(ctx context.Context, channelID string) (*sources.ChannelSources, error)
}

// StatsReporter reports catalog row counts.
type StatsReporter interface {
	Stats(ctx context.Context) (map[string]int, error)
}

// HandleProxy serves GET /api/proxy?url=...&referer=...
func HandleProxy(sp *proxy.StreamProxy) http.HandlerFunc {
	return sp.ServeHTTP
}

// HandleDiscovery serves GET /api/scrape-stream?channel=...
func HandleDiscovery(d sources.Discoverer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := strings.TrimSpace(r.URL.Query().Get("channel"))
		if channel == "" {
			writeError(w, errs.BadRequest("Missing channel parameter"))
			return
		}

		res, err := d.Discover(r.Context(), channel)
		if err != nil {
			writeError(w, errs.As(err))
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleCacheSnapshot serves GET /api/scrape-stream/cache.
func HandleCacheSnapshot(c *cache.ScrapeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ttlSeconds": c.TTL().Seconds(),
			"entries":    c.Snapshot(),
		})
	}
}

// HandleChannels serves GET /api/channels.
func HandleChannels(cl ChannelLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := cl.ListChannels(r.Context())
		if err != nil {
			writeError(w, errs.Internal("Internal Server Error", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
	}
}

// HandleChannelSources serves GET /api/channels/{id}/sources.
func HandleChannelSources(sr SourceResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if strings.TrimSpace(id) == "" {
			writeError(w, errs.BadRequest("Missing channel id"))
			return
		}

		res, err := sr.ForChannel(r.Context(), id)
		if err != nil {
			writeError(w, errs.As(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleHealth serves GET /healthz. stats may be nil when no catalog is configured.
func HandleHealth(stats StatsReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}
		if stats != nil {
			counts, err := stats.Stats(r.Context())
			if err != nil {
				logger.Error("{handlers/handlers - HandleHealth} Catalog check failed: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "degraded"})
				return
			}
			body["catalog"] = counts
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("{handlers/handlers - writeJSON} Failed to encode response: %v", err)
	}
}

// writeError writes e as {"error": ..., "hint": ...}. Causes are logged, never sent.
func writeError(w http.ResponseWriter, e *errs.Error) {
	if e.Kind == errs.KindInternal || e.Kind == errs.KindUpstream {
		logger.Error("{handlers/handlers - writeError} %v", e)
	}
	writeJSON(w, e.Status, e.Body())
}
