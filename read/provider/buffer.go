package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
)

// synthesizer is the backend half of a buffer provider: it produces a full
// PCM buffer with word timings up front and the shared engine handles
// caching, playback, boundaries and pause/resume.
type synthesizer interface {
	id() string
	sampleRate() int
	voices() []read.Voice
	capabilities() read.Capabilities
	synthesize(ctx context.Context, text string, opts Options) ([]byte, []read.WordTiming, error)
	close() error
}

// bufferProvider implements Provider over a synthesizer. Cancellation is
// cooperative: every Speak/Pause/Resume/Stop bumps a monotonic generation,
// and any async completion that observes a newer generation discards its
// result instead of mutating shared state.
type bufferProvider struct {
	synth  synthesizer
	player audio.Player
	cache  *audioCache

	gen atomic.Uint64

	mu           sync.Mutex
	cb           Callbacks
	state        *read.StateMachine
	activeKey    cacheKey
	baseOffset   time.Duration // offset the current playback slice starts at
	pausedOffset time.Duration // captured elapsed offset while paused
}

// newBufferProvider wires a synthesizer to the shared playback engine.
func newBufferProvider(synth synthesizer, player audio.Player) *bufferProvider {
	return &bufferProvider{
		synth:  synth,
		player: player,
		cache:  newAudioCache(maxCacheEntries),
		state:  read.NewStateMachine(),
	}
}

func (p *bufferProvider) ID() string { return p.synth.id() }

func (p *bufferProvider) Voices() []read.Voice { return p.synth.voices() }

func (p *bufferProvider) Capabilities() read.Capabilities { return p.synth.capabilities() }

func (p *bufferProvider) SetCallbacks(cb Callbacks) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

func (p *bufferProvider) ClearCache() { p.cache.clear() }

func (p *bufferProvider) Status() read.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Current()
}

// Speak cancels in-flight speech, synthesizes (or reuses cached audio) and
// plays it, reporting word boundaries against the timing list.
func (p *bufferProvider) Speak(ctx context.Context, text string, opts Options) error {
	opts = normalized(opts)
	gen := p.gen.Add(1)
	p.player.Stop()
	p.setStatus(read.StatusLoading)

	key := cacheKey{Text: text, Voice: opts.Voice, Speed: opts.Speed}
	ent, err := p.cache.fetch(ctx, key, func(ctx context.Context) ([]byte, []read.WordTiming, error) {
		return p.synth.synthesize(ctx, text, opts)
	})
	if err != nil {
		log.Warn("synthesis failed", "provider", p.synth.id(), "err", err)
		p.setStatus(read.StatusIdle)
		return err
	}
	if p.gen.Load() != gen {
		// A newer operation superseded this speak while synthesizing.
		return nil
	}

	offset := time.Duration(0)
	if opts.StartChar > 0 {
		if i := timingIndexAt(ent.timings, opts.StartChar); i < len(ent.timings) {
			offset = ent.timings[i].Start
		}
	}
	return p.play(gen, key, ent, offset)
}

// Pregenerate populates the cache in the background without playing.
func (p *bufferProvider) Pregenerate(ctx context.Context, text string, opts Options) error {
	opts = normalized(opts)
	key := cacheKey{Text: text, Voice: opts.Voice, Speed: opts.Speed}
	_, err := p.cache.fetch(ctx, key, func(ctx context.Context) ([]byte, []read.WordTiming, error) {
		return p.synth.synthesize(ctx, text, opts)
	})
	if err != nil {
		log.Debug("pregenerate failed", "provider", p.synth.id(), "err", err)
	}
	return err
}

// Pause captures the elapsed offset and fully tears down the audio graph.
// The underlying playback cannot be resumed in place once stopped, so
// Resume re-slices the cached buffer instead.
func (p *bufferProvider) Pause() error {
	p.mu.Lock()
	if p.state.Current() != read.StatusSpeaking {
		p.mu.Unlock()
		return ErrNotPaused
	}
	p.pausedOffset = p.baseOffset + p.player.Elapsed()
	p.mu.Unlock()

	p.gen.Add(1)
	p.player.Stop()
	p.setStatus(read.StatusPaused)
	return nil
}

// Resume restarts playback from the captured offset by slicing the cached
// buffer.
func (p *bufferProvider) Resume() error {
	p.mu.Lock()
	if p.state.Current() != read.StatusPaused {
		p.mu.Unlock()
		return ErrNotPaused
	}
	key := p.activeKey
	offset := p.pausedOffset
	p.mu.Unlock()

	ent, ok := p.cache.get(key)
	if !ok || offset <= 0 {
		return ErrResumeNotSupported
	}
	gen := p.gen.Add(1)
	return p.play(gen, key, ent, offset)
}

// CanResumeFromPosition reports whether Resume would continue
// mid-utterance.
func (p *bufferProvider) CanResumeFromPosition() bool {
	p.mu.Lock()
	paused := p.state.Current() == read.StatusPaused
	key := p.activeKey
	offset := p.pausedOffset
	p.mu.Unlock()
	if !paused || offset <= 0 {
		return false
	}
	_, ok := p.cache.get(key)
	return ok
}

// Stop cancels playback and returns to idle.
func (p *bufferProvider) Stop() error {
	p.gen.Add(1)
	p.player.Stop()
	p.mu.Lock()
	p.pausedOffset = 0
	p.mu.Unlock()
	p.setStatus(read.StatusIdle)
	return nil
}

func (p *bufferProvider) Close() error {
	_ = p.Stop()
	_ = p.player.Close()
	return p.synth.close()
}

// play starts playback of an entry at a time offset and spawns the
// boundary loop for this generation.
func (p *bufferProvider) play(gen uint64, key cacheKey, ent *cacheEntry, offset time.Duration) error {
	if p.gen.Load() != gen {
		return nil
	}
	sr := p.synth.sampleRate()
	slice := ent.pcm[audio.OffsetBytes(ent.pcm, sr, offset):]
	done, err := p.player.Play(slice, sr)
	if err != nil {
		log.Warn("playback failed", "provider", p.synth.id(), "err", err)
		p.setStatus(read.StatusIdle)
		return err
	}

	p.mu.Lock()
	p.activeKey = key
	p.baseOffset = offset
	p.mu.Unlock()
	p.setStatus(read.StatusSpeaking)

	go p.boundaryLoop(gen, ent, offset, done)
	return nil
}

// boundaryLoop compares elapsed playback time against the timing list and
// fires word callbacks. It exits silently as soon as its generation is
// stale.
func (p *bufferProvider) boundaryLoop(gen uint64, ent *cacheEntry, offset time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	idx := timingIndexAtTime(ent.timings, offset)
	for {
		select {
		case <-done:
			if p.gen.Load() != gen {
				return
			}
			p.mu.Lock()
			cb := p.cb
			p.mu.Unlock()
			p.setStatus(read.StatusIdle)
			if cb.OnDone != nil {
				cb.OnDone()
			}
			return

		case <-ticker.C:
			if p.gen.Load() != gen {
				return
			}
			elapsed := offset + p.player.Elapsed()
			p.mu.Lock()
			cb := p.cb
			p.mu.Unlock()
			for idx < len(ent.timings) && ent.timings[idx].Start <= elapsed {
				if cb.OnWord != nil {
					cb.OnWord(ent.timings[idx])
				}
				idx++
			}
		}
	}
}

// emitProgress forwards backend progress (model downloads, long loads) to
// the host callbacks.
func (p *bufferProvider) emitProgress(ev read.ProgressEvent) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb.OnProgress != nil {
		cb.OnProgress(ev)
	}
}

// setStatus transitions the state machine and notifies the host. Rejected
// transitions leave the current status in place and emit nothing.
func (p *bufferProvider) setStatus(s read.Status) {
	p.mu.Lock()
	prev := p.state.Current()
	if prev == s {
		p.mu.Unlock()
		return
	}
	if !p.state.Transition(s) {
		p.mu.Unlock()
		log.Debug("status transition rejected", "from", prev, "to", s)
		return
	}
	cb := p.cb
	p.mu.Unlock()

	if cb.OnStatus != nil {
		cb.OnStatus(s)
	}
}

func normalized(opts Options) Options {
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	return opts
}
