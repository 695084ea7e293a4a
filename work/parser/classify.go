package parser

import (
	"strings"

	"github.com/grafov/m3u8"

	"livetv-proxy/work/logger"
)

// Kind is the HLS playlist flavour, used as a log and metrics label.
type Kind string

const (
	KindMaster  Kind = "master"
	KindMedia   Kind = "media"
	KindUnknown Kind = "unknown"
)

// Summary describes a playlist without altering it.
type Summary struct {
	Kind    Kind
	Entries int // variants for master playlists, segments for media playlists
}

// Classify decodes content with grafov/m3u8 in non-strict mode. Live upstreams publish
// plenty of playlists the decoder rejects; those fall back to a tag scan.
func Classify(content string) Summary {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(content), false)
	if err == nil {
		switch listType {
		case m3u8.MASTER:
			if master, ok := playlist.(*m3u8.MasterPlaylist); ok {
				return Summary{Kind: KindMaster, Entries: len(master.Variants)}
			}
		case m3u8.MEDIA:
			if media, ok := playlist.(*m3u8.MediaPlaylist); ok {
				return Summary{Kind: KindMedia, Entries: int(media.Count())}
			}
		}
	}

	if err != nil {
		logger.Debug("{parser/classify - Classify} m3u8 decoder failed, using tag scan: %v", err)
	}

	switch {
	case IsMasterPlaylist(content):
		return Summary{Kind: KindMaster, Entries: countURILines(content)}
	case IsMediaPlaylist(content):
		return Summary{Kind: KindMedia, Entries: countURILines(content)}
	default:
		return Summary{Kind: KindUnknown}
	}
}

func countURILines(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, CommentMarker) {
			n++
		}
	}
	return n
}
