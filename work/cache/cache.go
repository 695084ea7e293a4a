package cache

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"livetv-proxy/work/types"
)

// ScrapeCache holds the last discovery result per channel path.
//
// Entries are replaced wholesale and never merged. Freshness is checked on read: an entry
// older than the TTL is ignored by Get but stays in place, so the last known good result
// can still be inspected until a successful scrape overwrites it. Failed scrapes never
// touch the cache. Reads see either the old or the new entry in full.
type ScrapeCache struct {
	entries *xsync.MapOf[string, Entry]
	ttl     time.Duration
	now     func() time.Time
}

// Entry is one cached discovery result.
type Entry struct {
	ChannelKey string
	Sources    []types.StreamSource
	FetchedAt  time.Time
}

// EntryInfo is an Entry annotated for the inspection endpoint.
type EntryInfo struct {
	ChannelKey string    `json:"channel"`
	Sources    int       `json:"sources"`
	FetchedAt  time.Time `json:"fetchedAt"`
	AgeSeconds float64   `json:"ageSeconds"`
	Fresh      bool      `json:"fresh"`
}

// Option configures a ScrapeCache.
type Option func(*ScrapeCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ScrapeCache) { c.now = now }
}

// NewScrapeCache creates an empty cache whose entries stay fresh for ttl.
func NewScrapeCache(ttl time.Duration, opts ...Option) *ScrapeCache {
	c := &ScrapeCache{
		entries: xsync.NewMapOf[string, Entry](),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *ScrapeCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for key only while it is fresh.
func (c *ScrapeCache) Get(key string) (Entry, bool) {
	entry, ok := c.entries.Load(key)
	if !ok || !c.fresh(entry) {
		return Entry{}, false
	}
	return entry, true
}

// Peek returns the entry for key regardless of age.
func (c *ScrapeCache) Peek(key string) (Entry, bool) {
	return c.entries.Load(key)
}

// Set replaces the entry for key with sources stamped now.
func (c *ScrapeCache) Set(key string, sources []types.StreamSource) Entry {
	stored := make([]types.StreamSource, len(sources))
	copy(stored, sources)

	entry := Entry{
		ChannelKey: key,
		Sources:    stored,
		FetchedAt:  c.now(),
	}
	c.entries.Store(key, entry)
	return entry
}

// Snapshot lists every entry, fresh or not, ordered by key.
func (c *ScrapeCache) Snapshot() []EntryInfo {
	now := c.now()
	out := make([]EntryInfo, 0, c.entries.Size())

	c.entries.Range(func(key string, e Entry) bool {
		out = append(out, EntryInfo{
			ChannelKey: key,
			Sources:    len(e.Sources),
			FetchedAt:  e.FetchedAt,
			AgeSeconds: now.Sub(e.FetchedAt).Seconds(),
			Fresh:      c.fresh(e),
		})
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ChannelKey < out[j].ChannelKey })
	return out
}

func (c *ScrapeCache) fresh(e Entry) bool {
	return c.now().Sub(e.FetchedAt) < c.ttl
}
