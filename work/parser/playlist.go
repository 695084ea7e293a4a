package parser

import (
	"net/url"
	"path"
	"strings"

	"livetv-proxy/work/logger"
)

// CommentMarker starts every HLS directive and comment line.
const CommentMarker = "#"

// byteOrderMark may precede #EXTM3U; it is ignored when classifying a line.
const byteOrderMark = "\ufeff"

var playlistExtensions = []string{".m3u8", ".m3u"}

// IsPlaylist reports whether a response should be treated as an HLS playlist, judging by
// the target URL's extension or by the upstream Content-Type.
func IsPlaylist(target, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}

	lower := strings.ToLower(target)
	if u, err := url.Parse(lower); err == nil {
		ext := path.Ext(u.Path)
		for _, e := range playlistExtensions {
			if ext == e {
				return true
			}
		}
	}

	// tokenised CDN paths sometimes bury the extension in the query
	return strings.Contains(lower, ".m3u8")
}

// URLWrapper turns an absolute upstream URL into the URL the client should request.
type URLWrapper func(absolute string) string

// Rewrite replaces every URI line of an HLS playlist with wrap(absolute URI).
//
// Blank lines and lines starting with the comment marker are copied byte for byte,
// including directives carrying URI attributes. Relative references are resolved against
// playlistURL. A line that cannot be parsed as a URL is left as it was. Line endings are
// preserved.
func Rewrite(body, playlistURL string, wrap URLWrapper) string {
	base, err := url.Parse(playlistURL)
	if err != nil {
		logger.Warn("{parser/playlist - Rewrite} Unparseable playlist URL, resolving nothing: %v", err)
		base = nil
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		content := strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(strings.TrimPrefix(content, byteOrderMark))

		if trimmed == "" || strings.HasPrefix(trimmed, CommentMarker) {
			continue
		}

		absolute, ok := ResolveURL(trimmed, base)
		if !ok {
			logger.Debug("{parser/playlist - Rewrite} Leaving unparseable line untouched: %q", trimmed)
			continue
		}

		rewritten := wrap(absolute)
		if len(content) != len(line) {
			rewritten += "\r"
		}
		lines[i] = rewritten
	}

	return strings.Join(lines, "\n")
}

// ResolveURL converts a playlist reference to an absolute URL. Absolute http(s) references
// are returned verbatim; relative ones are resolved against base using standard URL
// resolution, so "seg.ts" under https://h/a/b/index.m3u8 becomes https://h/a/b/seg.ts.
func ResolveURL(ref string, base *url.URL) (string, bool) {
	rel, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	if rel.IsAbs() {
		if rel.Scheme == "http" || rel.Scheme == "https" {
			return ref, true
		}
		return "", false
	}

	if base == nil || !base.IsAbs() {
		return "", false
	}

	return base.ResolveReference(rel).String(), true
}

// IsMasterPlaylist reports whether content lists variant streams.
func IsMasterPlaylist(content string) bool {
	return strings.Contains(content, "#EXT-X-STREAM-INF")
}

// IsMediaPlaylist reports whether content lists media segments.
func IsMediaPlaylist(content string) bool {
	return strings.Contains(content, "#EXTINF") || strings.Contains(content, "#EXT-X-TARGETDURATION")
}
