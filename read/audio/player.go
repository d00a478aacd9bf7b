// Package audio plays PCM buffers through the platform audio device. One
// playback graph is active per player at a time; starting a new buffer tears
// the previous one down.
package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Player is the playback contract the providers depend on. Play replaces
// any current playback and returns a channel closed when the buffer finishes
// on its own (not when stopped).
type Player interface {
	Play(pcm []byte, sampleRate int) (<-chan struct{}, error)
	Stop()
	Elapsed() time.Duration
	Playing() bool
	Close() error
}

// The audio device allows a single context per process, so the context runs
// at a fixed rate and buffers at other rates are resampled before playback.
const contextRate = 48000

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   contextRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// Resample converts a 16-bit mono PCM buffer between sample rates by linear
// interpolation. It returns the input unchanged when the rates match.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	in := len(pcm) / 2
	if in == 0 {
		return nil
	}
	out := int(float64(in) * float64(to) / float64(from))
	if out == 0 {
		out = 1
	}
	res := make([]byte, out*2)
	step := float64(from) / float64(to)
	for i := 0; i < out; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		s0 := sampleAt(pcm, j, in)
		s1 := sampleAt(pcm, j+1, in)
		v := int16(float64(s0) + (float64(s1)-float64(s0))*frac)
		res[i*2] = byte(uint16(v))
		res[i*2+1] = byte(uint16(v) >> 8)
	}
	return res
}

func sampleAt(pcm []byte, i, n int) int16 {
	if i >= n {
		i = n - 1
	}
	return int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
}

// OtoPlayer plays 16-bit mono PCM through oto.
type OtoPlayer struct {
	mu      sync.Mutex
	player  *oto.Player
	started time.Time
	elapsed time.Duration // frozen on stop
	playing bool
	done    chan struct{}
	closed  bool
}

// NewOtoPlayer creates a player bound to the shared audio context.
func NewOtoPlayer() *OtoPlayer {
	return &OtoPlayer{}
}

// Play starts playing the buffer, replacing any current playback.
func (p *OtoPlayer) Play(pcm []byte, sampleRate int) (<-chan struct{}, error) {
	ctx, err := sharedContext()
	if err != nil {
		return nil, fmt.Errorf("audio context unavailable: %w", err)
	}
	pcm = Resample(pcm, sampleRate, contextRate)

	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("player closed")
	}

	op := ctx.NewPlayer(bytes.NewReader(pcm))
	op.Play()

	p.player = op
	p.started = time.Now()
	p.elapsed = 0
	p.playing = true
	done := make(chan struct{})
	p.done = done

	go p.watch(op, done)
	return done, nil
}

// watch polls the oto player until the buffer drains, then closes done.
func (p *OtoPlayer) watch(op *oto.Player, done chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.player != op {
			// Superseded or stopped; the done channel stays open.
			p.mu.Unlock()
			return
		}
		if !op.IsPlaying() {
			p.elapsed = time.Since(p.started)
			p.playing = false
			p.player = nil
			p.mu.Unlock()
			if err := op.Close(); err != nil {
				log.Debug("closing drained player", "err", err)
			}
			close(done)
			return
		}
		p.mu.Unlock()
	}
}

// Stop tears down the current playback graph. The buffer's done channel is
// never closed by Stop; callers distinguish natural completion from
// cancellation.
func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	op := p.player
	if op != nil {
		p.elapsed = time.Since(p.started)
	}
	p.player = nil
	p.playing = false
	p.mu.Unlock()

	if op != nil {
		if err := op.Close(); err != nil {
			log.Debug("closing stopped player", "err", err)
		}
	}
}

// Elapsed returns how long the current (or last) buffer has been playing.
func (p *OtoPlayer) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return time.Since(p.started)
	}
	return p.elapsed
}

// Playing reports whether a buffer is currently audible.
func (p *OtoPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops playback and marks the player unusable.
func (p *OtoPlayer) Close() error {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// DurationOf reports the play time of a 16-bit mono PCM buffer.
func DurationOf(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// OffsetBytes converts an elapsed duration into an even byte offset into a
// 16-bit mono PCM buffer, clamped to the buffer.
func OffsetBytes(pcm []byte, sampleRate int, at time.Duration) int {
	if at <= 0 || sampleRate <= 0 {
		return 0
	}
	off := int(at.Seconds()*float64(sampleRate)) * 2
	if off > len(pcm) {
		off = len(pcm)
	}
	return off &^ 1
}
