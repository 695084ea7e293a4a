package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetv-proxy/work/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func src(id string) types.StreamSource {
	return types.StreamSource{ID: id, Label: id, URL: "https://x.example/" + id, Type: types.SourceTypeEmbeddedPlayer}
}

func TestGetHonoursTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewScrapeCache(5*time.Minute, WithClock(clock.Now))

	_, ok := c.Get("bbb")
	assert.False(t, ok)

	c.Set("bbb", []types.StreamSource{src("a")})

	clock.Advance(4*time.Minute + 59*time.Second)
	e, ok := c.Get("bbb")
	require.True(t, ok)
	assert.Equal(t, "a", e.Sources[0].ID)

	clock.Advance(time.Second)
	_, ok = c.Get("bbb")
	assert.False(t, ok, "entry exactly TTL old is stale")
}

func TestExpiredEntriesStayInspectable(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewScrapeCache(time.Minute, WithClock(clock.Now))

	c.Set("bbb", []types.StreamSource{src("a"), src("b")})
	clock.Advance(10 * time.Minute)

	e, ok := c.Peek("bbb")
	require.True(t, ok)
	assert.Len(t, e.Sources, 2)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Fresh)
	assert.Equal(t, 2, snap[0].Sources)
	assert.InDelta(t, 600, snap[0].AgeSeconds, 0.001)
}

func TestSetReplacesWholesale(t *testing.T) {
	c := NewScrapeCache(time.Minute)

	c.Set("bbb", []types.StreamSource{src("a"), src("b")})
	c.Set("bbb", []types.StreamSource{src("c")})

	e, ok := c.Get("bbb")
	require.True(t, ok)
	require.Len(t, e.Sources, 1)
	assert.Equal(t, "c", e.Sources[0].ID)
}

func TestSetCopiesInput(t *testing.T) {
	c := NewScrapeCache(time.Minute)
	in := []types.StreamSource{src("a")}

	c.Set("bbb", in)
	in[0].ID = "mutated"

	e, _ := c.Get("bbb")
	assert.Equal(t, "a", e.Sources[0].ID)
}

func TestConcurrentReadersSeeWholeEntries(t *testing.T) {
	c := NewScrapeCache(time.Minute)
	c.Set("k", []types.StreamSource{src("a"), src("a")})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set("k", []types.StreamSource{src("b"), src("b")})
				c.Set("k", []types.StreamSource{src("a"), src("a")})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				e, ok := c.Get("k")
				if assert.True(t, ok) && assert.Len(t, e.Sources, 2) {
					assert.Equal(t, e.Sources[0].ID, e.Sources[1].ID)
				}
			}
		}()
	}
	wg.Wait()
}
