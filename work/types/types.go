package types

import "time"

// SourceType tells the display layer how to play a StreamSource.
type SourceType string

// Wire values match what the frontend player switches on.
const (
	SourceTypePlaylist       SourceType = "m3u8"   // HLS playlist, played through the proxy
	SourceTypeEmbeddedPlayer SourceType = "iframe" // third-party player page, loaded by the browser
)

// StreamSource identifies one playable rendition of a channel. Sources are immutable once
// built; callers select among them and never edit one in place.
type StreamSource struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	URL         string     `json:"url"`
	Quality     string     `json:"quality"`
	Type        SourceType `json:"type"`
	PlaybackURL string     `json:"playbackUrl,omitempty"` // proxied URL for playlists that need header spoofing
}

// WithPlaybackURL returns a copy of s carrying the given playback URL.
func (s StreamSource) WithPlaybackURL(u string) StreamSource {
	s.PlaybackURL = u
	return s
}

// DiscoveryResult is the discovery endpoint payload.
type DiscoveryResult struct {
	Sources []StreamSource `json:"sources"`
	Cached  bool           `json:"cached"`
}

// ProxyRequestContext is derived per inbound proxy request and never persisted.
type ProxyRequestContext struct {
	TargetURL   string
	Referer     string
	Origin      string
	ContentType string
	IsPlaylist  bool
}

// Channel is a catalog channel record.
type Channel struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	LogoURL    string    `json:"logoUrl,omitempty"`
	ImageColor string    `json:"imageColor"`
	IsFeatured bool      `json:"isFeatured"`
	CreatedAt  time.Time `json:"createdAt"`
}
