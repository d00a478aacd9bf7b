package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
)

// systemWPM is the assumed pace of the platform speech command at speed
// 1.0. Boundaries against it are estimates; they drift within a sentence
// but re-anchor at every sentence start.
const systemWPM = 175.0

// systemProvider speaks through the platform speech command (say on
// macOS, espeak-ng elsewhere). It produces no audio buffer, so word
// boundaries come from evenly paced estimates and resume from a
// mid-utterance position is not supported.
type systemProvider struct {
	binary string
	args   func(text string, opts Options) []string

	gen atomic.Uint64

	mu    sync.Mutex
	cb    Callbacks
	state *read.StateMachine
	cmd   *exec.Cmd
}

// NewSystem returns a provider backed by the platform speech command.
func NewSystem() (Provider, error) {
	p := &systemProvider{state: read.NewStateMachine()}
	switch runtime.GOOS {
	case "darwin":
		p.binary = "say"
		p.args = func(text string, opts Options) []string {
			return []string{"-r", strconv.Itoa(int(systemWPM * opts.Speed)), text}
		}
	default:
		p.binary = "espeak-ng"
		p.args = func(text string, opts Options) []string {
			return []string{"-s", strconv.Itoa(int(systemWPM * opts.Speed)), text}
		}
	}
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, fmt.Errorf("system speech command %q not found: %w", p.binary, err)
	}
	return p, nil
}

func (p *systemProvider) ID() string { return "system" }

func (p *systemProvider) Voices() []read.Voice {
	return []read.Voice{{ID: "system-default", Name: "System Voice"}}
}

func (p *systemProvider) Capabilities() read.Capabilities {
	return read.Capabilities{Streaming: true, Offline: true}
}

func (p *systemProvider) SetCallbacks(cb Callbacks) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

// ClearCache is a no-op; nothing is cached for subprocess speech.
func (p *systemProvider) ClearCache() {}

func (p *systemProvider) Status() read.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Current()
}

// Speak spawns the speech command and estimates word boundaries against
// its assumed pace.
func (p *systemProvider) Speak(ctx context.Context, text string, opts Options) error {
	opts = normalized(opts)
	gen := p.gen.Add(1)
	p.killCurrent()

	cmd := exec.CommandContext(ctx, p.binary, p.args(text, opts)...)
	if err := cmd.Start(); err != nil {
		log.Warn("system speech failed to start", "binary", p.binary, "err", err)
		p.setStatus(read.StatusIdle)
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.setStatus(read.StatusSpeaking)

	timings := EstimateTimings(text, systemWPM*opts.Speed)
	start := timingIndexAt(timings, opts.StartChar)

	done := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil && p.gen.Load() == gen {
			log.Debug("system speech exited", "err", err)
		}
		close(done)
	}()
	go p.boundaryLoop(gen, timings, start, done)
	return nil
}

// Pregenerate is a no-op; subprocess speech has nothing to prepare.
func (p *systemProvider) Pregenerate(ctx context.Context, text string, opts Options) error {
	return nil
}

// Pause stops the speech command. The subprocess cannot be suspended and
// restarted mid-utterance, so Resume reports ErrResumeNotSupported and the
// host restarts the sentence.
func (p *systemProvider) Pause() error {
	p.mu.Lock()
	if p.state.Current() != read.StatusSpeaking {
		p.mu.Unlock()
		return ErrNotPaused
	}
	p.mu.Unlock()

	p.gen.Add(1)
	p.killCurrent()
	p.setStatus(read.StatusPaused)
	return nil
}

func (p *systemProvider) Resume() error {
	p.mu.Lock()
	paused := p.state.Current() == read.StatusPaused
	p.mu.Unlock()
	if !paused {
		return ErrNotPaused
	}
	return ErrResumeNotSupported
}

func (p *systemProvider) CanResumeFromPosition() bool { return false }

func (p *systemProvider) Stop() error {
	p.gen.Add(1)
	p.killCurrent()
	p.setStatus(read.StatusIdle)
	return nil
}

func (p *systemProvider) Close() error { return p.Stop() }

func (p *systemProvider) killCurrent() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Debug("killing speech process", "err", err)
		}
	}
}

func (p *systemProvider) boundaryLoop(gen uint64, timings []read.WordTiming, idx int, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	started := time.Now()
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
			elapsed := time.Since(started)
			p.mu.Lock()
			cb := p.cb
			p.mu.Unlock()
			for idx < len(timings) && timings[idx].Start <= elapsed {
				if cb.OnWord != nil {
					cb.OnWord(timings[idx])
				}
				idx++
			}
		}
	}
}

func (p *systemProvider) setStatus(s read.Status) {
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
