package provider

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
)

const mockSampleRate = 22050

// mockSynth produces silent PCM with estimated word timings. It backs the
// "mock" provider used for development without an audio backend, and the
// provider tests.
type mockSynth struct {
	calls atomic.Int64

	// Test hooks.
	wpm   float64       // estimated pace; 0 means default
	delay time.Duration // artificial synthesis latency
	fail  error         // returned by every synthesize call when set
}

// NewMock returns a provider that synthesizes silence instantly. Word
// timings are evenly paced estimates.
func NewMock(player audio.Player) Provider {
	return newBufferProvider(&mockSynth{}, player)
}

func (m *mockSynth) id() string { return "mock" }

func (m *mockSynth) sampleRate() int { return mockSampleRate }

func (m *mockSynth) voices() []read.Voice {
	return []read.Voice{{ID: "mock-default", Name: "Mock Voice", Language: "en-US"}}
}

func (m *mockSynth) capabilities() read.Capabilities {
	return read.Capabilities{Streaming: false, Offline: true}
}

func (m *mockSynth) synthesize(ctx context.Context, text string, opts Options) ([]byte, []read.WordTiming, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if m.fail != nil {
		return nil, nil, m.fail
	}

	wpm := m.wpm
	if wpm <= 0 {
		wpm = 150
	}
	timings := EstimateTimings(text, wpm*opts.Speed)
	var total time.Duration
	if n := len(timings); n > 0 {
		total = timings[n-1].End
	}
	samples := int(total.Seconds() * mockSampleRate)
	return make([]byte, samples*2), timings, nil
}

func (m *mockSynth) close() error { return nil }
