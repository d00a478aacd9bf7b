package audio

import (
	"sync"
	"time"
)

// MockPlayer implements Player for tests without touching the audio device.
// By default a buffer "plays" for its real duration compressed by Warp;
// tests may instead close playback manually with FinishCurrent.
type MockPlayer struct {
	mu      sync.Mutex
	playing bool
	started time.Time
	elapsed time.Duration
	done    chan struct{}

	// Warp divides real buffer duration; 0 means manual finish only.
	Warp int

	// Recorded calls.
	PlayCalls []int // byte lengths of played buffers
	StopCalls int
}

// NewMockPlayer creates a mock that finishes buffers 100x faster than real
// time.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{Warp: 100}
}

// Play records the call and schedules completion according to Warp.
func (p *MockPlayer) Play(pcm []byte, sampleRate int) (<-chan struct{}, error) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, len(pcm))
	p.playing = true
	p.started = time.Now()
	p.elapsed = 0
	done := make(chan struct{})
	p.done = done

	if p.Warp > 0 {
		d := DurationOf(pcm, sampleRate) / time.Duration(p.Warp)
		go func() {
			time.Sleep(d)
			p.mu.Lock()
			if p.done != done {
				p.mu.Unlock()
				return
			}
			p.playing = false
			p.mu.Unlock()
			close(done)
		}()
	}
	return done, nil
}

// FinishCurrent completes the current buffer as if it drained naturally.
func (p *MockPlayer) FinishCurrent() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.playing = false
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Stop cancels the current buffer without closing its done channel.
func (p *MockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.elapsed = time.Since(p.started)
		p.StopCalls++
	}
	p.playing = false
	p.done = nil
}

// Elapsed returns time since the buffer started.
func (p *MockPlayer) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return time.Since(p.started)
	}
	return p.elapsed
}

// SetElapsed forces the elapsed value, for pause/resume tests.
func (p *MockPlayer) SetElapsed(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.elapsed = d
}

// Playing reports whether a buffer is active.
func (p *MockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close implements Player.
func (p *MockPlayer) Close() error {
	p.Stop()
	return nil
}
