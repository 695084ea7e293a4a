package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"livetv-proxy/work/client"
	"livetv-proxy/work/config"
	"livetv-proxy/work/errs"
	"livetv-proxy/work/logger"
	"livetv-proxy/work/metrics"
	"livetv-proxy/work/parser"
	"livetv-proxy/work/referer"
	"livetv-proxy/work/types"
	"livetv-proxy/work/utils"
)

// Path is where the proxy endpoint is mounted. Rewritten playlists point back at it.
const Path = "/api/proxy"

// CacheControl disables caching everywhere between us and the player; live playlists
// expire within seconds.
const CacheControl = "no-cache, no-store, must-revalidate"

const chunkSize = 32 * 1024

// maxPlaylistBytes caps how much of a playlist is buffered for rewriting. Larger bodies
// are refused rather than rewritten partially.
var maxPlaylistBytes int64 = 8 << 20

// chunkPool holds copy buffers for binary pass-through.
var chunkPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, chunkSize)
		return &b
	},
}

// StreamProxy fetches HLS playlists and segments on the browser's behalf with the
// Referer/Origin the upstream CDN demands, rewriting playlists so every reference flows
// back through the proxy. It keeps no state between requests: the referer travels in the
// rewritten URLs.
type StreamProxy struct {
	Config     *config.Config
	HttpClient *client.HeaderSettingClient
	Referers   *referer.Resolver
}

// New creates a StreamProxy.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, resolver *referer.Resolver) *StreamProxy {
	return &StreamProxy{
		Config:     cfg,
		HttpClient: httpClient,
		Referers:   resolver,
	}
}

// Request is one inbound proxy call.
type Request struct {
	Target  string // absolute upstream URL
	Referer string // explicit referer propagated from a rewritten playlist, optional
	Range   string // inbound Range header, forwarded upstream
	Base    string // prefix for rewritten URLs; empty produces proxy-relative URLs
}

// Response is the upstream reply after disposition. Exactly one of Playlist and Body is
// set; callers must Close it.
type Response struct {
	Context  types.ProxyRequestContext
	Status   int
	Header   http.Header
	Playlist []byte
	Body     io.ReadCloser
}

// Close releases the upstream body, if any.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// ProxyURL encodes target and referer into a proxy URL. It is the only place proxy URLs
// are built, so anything it emits round-trips through the handler's query parsing.
func ProxyURL(base, target, ref string) string {
	q := url.Values{}
	q.Set("url", target)
	if ref != "" {
		q.Set("referer", ref)
	}
	return strings.TrimRight(base, "/") + Path + "?" + q.Encode()
}

// Fetch performs the upstream request and decides how the body is delivered. Only the
// status line and headers are read before that decision.
func (sp *StreamProxy) Fetch(ctx context.Context, in Request) (*Response, error) {
	target := strings.TrimSpace(in.Target)
	if target == "" {
		return nil, errs.BadRequest("Missing URL parameter")
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.Internal("Internal Server Error", fmt.Errorf("malformed target %q", target))
	}

	ref := strings.TrimSpace(in.Referer)
	if ref == "" {
		ref = sp.Referers.Resolve(target)
	}
	pctx := types.ProxyRequestContext{
		TargetURL: target,
		Referer:   ref,
		Origin:    referer.Origin(ref),
	}

	logger.Debug("{proxy/proxy - Fetch} Fetching %s with Referer: %s",
		utils.Truncate(utils.LogURL(sp.Config, target), 80), ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.Internal("Internal Server Error", fmt.Errorf("building upstream request: %w", err))
	}

	resp, err := sp.HttpClient.DoWithHeaders(req, client.Headers{
		Accept:  client.AcceptAny,
		Referer: pctx.Referer,
		Origin:  pctx.Origin,
		Range:   in.Range,
	})
	if err != nil {
		return nil, errs.Internal("Internal Server Error", fmt.Errorf("upstream request: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		logger.Error("{proxy/proxy - Fetch} Upstream failed: %d for %s", resp.StatusCode, utils.LogURL(sp.Config, target))
		return nil, errs.Upstream(resp.StatusCode,
			"Failed to fetch source: "+http.StatusText(resp.StatusCode), nil)
	}

	pctx.ContentType = resp.Header.Get("Content-Type")
	pctx.IsPlaylist = parser.IsPlaylist(target, pctx.ContentType)

	out := &Response{
		Context: pctx,
		Status:  resp.StatusCode,
		Header:  baseHeaders(),
	}

	if pctx.IsPlaylist {
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes+1))
		if err != nil {
			return nil, errs.Internal("Internal Server Error", fmt.Errorf("reading playlist: %w", err))
		}
		if int64(len(body)) > maxPlaylistBytes {
			return nil, errs.Internal("Internal Server Error",
				fmt.Errorf("playlist %s exceeds %d bytes", utils.LogURL(sp.Config, target), maxPlaylistBytes))
		}

		rewritten := parser.Rewrite(string(body), target, func(abs string) string {
			return ProxyURL(in.Base, abs, pctx.Referer)
		})

		summary := parser.Classify(rewritten)
		metrics.PlaylistsRewritten.WithLabelValues(string(summary.Kind)).Inc()
		logger.Debug("{proxy/proxy - Fetch} Rewrote %s playlist with %d entries", summary.Kind, summary.Entries)

		contentType := pctx.ContentType
		if contentType == "" {
			contentType = "application/vnd.apple.mpegurl"
		}
		out.Header.Set("Content-Type", contentType)
		out.Status = http.StatusOK
		out.Playlist = []byte(rewritten)
		return out, nil
	}

	contentType := pctx.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	out.Header.Set("Content-Type", contentType)

	// no Content-Length: the transport may have decompressed the body
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		out.Header.Set("Content-Range", cr)
	}
	if ar := resp.Header.Get("Accept-Ranges"); ar != "" {
		out.Header.Set("Accept-Ranges", ar)
	}

	out.Body = resp.Body
	return out, nil
}

// ServeHTTP implements the proxy endpoint: GET ?url=<target>&referer=<optional>.
func (sp *StreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	crw := client.NewCustomResponseWriter(w)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("{proxy/proxy - ServeHTTP} Recovered from panic: %v", rec)
			if !crw.WroteHeader {
				WriteError(crw, errs.Internal("Internal Server Error", fmt.Errorf("panic: %v", rec)))
			}
		}
	}()

	q := r.URL.Query()
	resp, err := sp.Fetch(r.Context(), Request{
		Target:  q.Get("url"),
		Referer: q.Get("referer"),
		Range:   r.Header.Get("Range"),
		Base:    sp.Config.BaseURL,
	})
	if err != nil {
		e := errs.As(err)
		if e.Kind == errs.KindInternal {
			logger.Error("{proxy/proxy - ServeHTTP} Error: %v", err)
		}
		WriteError(crw, e)
		return
	}
	defer resp.Close()

	for k, v := range resp.Header {
		crw.Header()[k] = v
	}

	if resp.Playlist != nil {
		crw.WriteHeader(resp.Status)
		n, _ := crw.Write(resp.Playlist)
		metrics.BytesStreamed.WithLabelValues("playlist").Add(float64(n))
		metrics.ProxyRequests.WithLabelValues("playlist", strconv.Itoa(resp.Status)).Inc()
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	crw.WriteHeader(resp.Status)
	n, err := copyFlushing(crw, resp.Body)
	metrics.BytesStreamed.WithLabelValues("binary").Add(float64(n))
	metrics.ProxyRequests.WithLabelValues("binary", strconv.Itoa(resp.Status)).Inc()
	if err != nil {
		// usually the player went away; nothing left to tell it
		logger.Debug("{proxy/proxy - ServeHTTP} Pass-through ended after %d bytes: %v", n, err)
	}
}

// copyFlushing streams src to dst one chunk at a time, flushing after each write so
// segments reach the player without waiting for the whole body.
func copyFlushing(dst *client.CustomResponseWriter, src io.Reader) (int64, error) {
	bufPtr := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bufPtr)
	buf := *bufPtr

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			dst.Flush()
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func baseHeaders() http.Header {
	h := http.Header{}
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", CacheControl)
	return h
}

// WriteError writes e as {"error": ..., "hint": ...} with the proxy's CORS and caching
// headers.
func WriteError(w http.ResponseWriter, e *errs.Error) {
	for k, v := range baseHeaders() {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.Body())

	metrics.ProxyRequests.WithLabelValues("error", strconv.Itoa(e.Status)).Inc()
}
