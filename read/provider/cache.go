package provider

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
)

// maxCacheEntries bounds the per-provider synthesis cache. Eviction is
// oldest-inserted first.
const maxCacheEntries = 5

// cacheKey identifies one synthesized utterance.
type cacheKey struct {
	Text  string
	Voice string
	Speed float64
}

// cacheEntry holds synthesized audio and its word timings. The ready
// channel closes when synthesis completes; waiters for an in-flight key
// share the single synthesis instead of duplicating work.
type cacheEntry struct {
	pcm     []byte
	timings []read.WordTiming
	err     error
	ready   chan struct{}
}

// audioCache is a bounded cache of synthesized utterances with
// single-flight population.
type audioCache struct {
	mu      sync.Mutex
	max     int
	entries map[cacheKey]*cacheEntry
	order   []cacheKey
}

func newAudioCache(max int) *audioCache {
	return &audioCache{
		max:     max,
		entries: make(map[cacheKey]*cacheEntry),
	}
}

// synthFunc produces audio and timings for a key.
type synthFunc func(ctx context.Context) ([]byte, []read.WordTiming, error)

// fetch returns the entry for key, synthesizing it at most once. A second
// caller for an in-flight key awaits the first caller's result.
func (c *audioCache) fetch(ctx context.Context, key cacheKey, synth synthFunc) (*cacheEntry, error) {
	c.mu.Lock()
	if ent, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-ent.ready:
			return ent, ent.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ent := &cacheEntry{ready: make(chan struct{})}
	c.entries[key] = ent
	c.order = append(c.order, key)
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		log.Debug("evicting cached audio", "voice", oldest.Voice, "speed", oldest.Speed)
	}
	c.mu.Unlock()

	pcm, timings, err := synth(ctx)
	ent.pcm = pcm
	ent.timings = timings
	ent.err = err
	close(ent.ready)

	if err != nil {
		// Failed synthesis is not worth a cache slot; an explicit user
		// retry should synthesize again.
		c.remove(key, ent)
	}
	return ent, err
}

// get returns a completed entry without populating.
func (c *audioCache) get(key cacheKey) (*cacheEntry, bool) {
	c.mu.Lock()
	ent, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-ent.ready:
		if ent.err != nil {
			return nil, false
		}
		return ent, true
	default:
		return nil, false
	}
}

func (c *audioCache) remove(key cacheKey, ent *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur == ent {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// clear drops every entry, as on voice or engine switches.
func (c *audioCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*cacheEntry)
	c.order = nil
}

// len reports the number of cached keys, including in-flight ones.
func (c *audioCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
