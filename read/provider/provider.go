// Package provider defines the audio provider abstraction: speak text,
// report word-boundary timing, pause/resume/stop, and cache synthesized
// audio by (text, voice, speed). Providers are pluggable; callers must not
// assume which concrete backend is active.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgnsrekt/readsync/read"
)

var (
	// ErrUnknownProvider is returned by the registry for unregistered ids.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrResumeNotSupported is returned by providers that cannot resume
	// from a buffer offset; callers restart the current sentence instead.
	ErrResumeNotSupported = errors.New("resume from position not supported")

	// ErrNotPaused is returned when Resume is called outside the paused
	// state.
	ErrNotPaused = errors.New("provider is not paused")
)

// Options selects voice and pacing for one utterance.
type Options struct {
	Voice string  // Provider-scoped voice id; empty means default
	Speed float64 // Rate multiplier, 1.0 = normal
	// StartChar makes word boundaries resume from the word containing this
	// character offset in the spoken text.
	StartChar int
}

// Callbacks receive playback progress. They are invoked from provider
// goroutines and must not block. A superseded utterance never fires its
// callbacks after a newer one has started.
type Callbacks struct {
	OnWord     func(read.WordTiming)
	OnDone     func()
	OnStatus   func(read.Status)
	OnProgress func(read.ProgressEvent)
}

// Provider is the common contract over speech synthesis backends.
type Provider interface {
	// ID returns the registry id of this provider.
	ID() string

	// Speak cancels any in-flight speech and plays the text. Synthesis
	// failures are logged and surfaced as a transition to idle; they are
	// never fatal to the host.
	Speak(ctx context.Context, text string, opts Options) error

	// Pregenerate populates the cache without playing. Concurrent calls
	// for the same (text, voice, speed) share one synthesis.
	Pregenerate(ctx context.Context, text string, opts Options) error

	// Pause suspends playback, capturing the elapsed offset.
	Pause() error

	// Resume restarts playback at the captured offset, or returns
	// ErrResumeNotSupported.
	Resume() error

	// CanResumeFromPosition reports whether Resume would continue from a
	// mid-utterance offset.
	CanResumeFromPosition() bool

	// Stop cancels playback and returns to idle.
	Stop() error

	// Status returns the provider's current state.
	Status() read.Status

	// Voices lists the voices this provider offers.
	Voices() []read.Voice

	// Capabilities reports what the backend can do.
	Capabilities() read.Capabilities

	// SetCallbacks registers the playback callbacks.
	SetCallbacks(Callbacks)

	// ClearCache drops cached audio, as on voice or engine switches.
	ClearCache()

	// Close releases backend resources.
	Close() error
}

// Factory constructs a provider instance on first use.
type Factory func() (Provider, error)

// Registry resolves provider ids to lazily constructed instances.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
	}
}

// Register adds a factory under an id. Registering twice replaces the
// factory but keeps an already constructed instance.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Get returns the instance for an id, constructing it on first use.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[id]; ok {
		return p, nil
	}
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	p, err := f()
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q: %w", id, err)
	}
	r.instances[id] = p
	return p, nil
}

// IDs lists the registered provider ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// ClearCaches clears the synthesis cache of every constructed instance,
// as required on engine switches.
func (r *Registry) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.instances {
		p.ClearCache()
	}
}

// Close closes all constructed instances.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, p := range r.instances {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.instances = make(map[string]Provider)
	return firstErr
}
