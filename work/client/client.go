package client

import (
	"net/http"
	"time"

	"livetv-proxy/work/config"
)

// Headers is the per-request identity presented upstream. Empty fields fall back to the
// client's configured defaults, or are omitted.
type Headers struct {
	Accept  string
	Referer string
	Origin  string
	Range   string
}

// Browser-like Accept values.
const (
	AcceptAny  = "*/*"
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// HeaderSettingClient wraps http.Client to automatically set headers
type HeaderSettingClient struct {
	Client         *http.Client
	userAgent      string
	acceptLanguage string
}

// CustomResponseWriter wraps http.ResponseWriter to track the status and implement Flusher
type CustomResponseWriter struct {
	http.ResponseWriter
	WroteHeader bool
	statusCode  int
}

// NewHeaderSettingClient builds a client for streaming: there is no overall timeout, only
// a bound on waiting for response headers, since segment bodies can legitimately take long.
func NewHeaderSettingClient(cfg *config.Config) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.HeaderTimeout,
		},
	}

	return NewWithHTTPClient(cfg, client)
}

// NewWithHTTPClient wraps an existing http.Client, e.g. one pointed at a test server.
func NewWithHTTPClient(cfg *config.Config, c *http.Client) *HeaderSettingClient {
	return &HeaderSettingClient{
		Client:         c,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
	}
}

// DoWithHeaders sends req with the browser identity plus the given referer context.
func (hsc *HeaderSettingClient) DoWithHeaders(req *http.Request, h Headers) (*http.Response, error) {
	hsc.setHeaders(req, h)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request, h Headers) {
	req.Header.Set("User-Agent", hsc.userAgent)

	accept := h.Accept
	if accept == "" {
		accept = AcceptAny
	}
	req.Header.Set("Accept", accept)

	if hsc.acceptLanguage != "" {
		req.Header.Set("Accept-Language", hsc.acceptLanguage)
	}
	if h.Referer != "" {
		req.Header.Set("Referer", h.Referer)
	}
	if h.Origin != "" {
		req.Header.Set("Origin", h.Origin)
	}
	if h.Range != "" {
		req.Header.Set("Range", h.Range)
	}
}

func NewCustomResponseWriter(w http.ResponseWriter) *CustomResponseWriter {
	return &CustomResponseWriter{ResponseWriter: w}
}

func (crw *CustomResponseWriter) WriteHeader(statusCode int) {
	if crw.WroteHeader {
		return
	}

	crw.statusCode = statusCode
	crw.ResponseWriter.WriteHeader(statusCode)
	crw.WroteHeader = true
}

func (crw *CustomResponseWriter) Write(b []byte) (int, error) {
	if !crw.WroteHeader {
		crw.WriteHeader(http.StatusOK)
	}
	return crw.ResponseWriter.Write(b)
}

// StatusCode returns the status written so far, or 0.
func (crw *CustomResponseWriter) StatusCode() int {
	return crw.statusCode
}

// Implement http.Flusher interface
func (crw *CustomResponseWriter) Flush() {
	if flusher, ok := crw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
