// Package playback drives linear read-aloud: it walks the document page by
// page and sentence by sentence, keeps highlights in step with spoken word
// boundaries, and owns the linear cursor.
package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/provider"
)

// ErrNoProvider is returned when playback starts before a provider is
// selected.
var ErrNoProvider = errors.New("no audio provider selected")

// Config seeds a controller.
type Config struct {
	Doc      string // Document key for progress persistence
	Provider string // Initial provider id
	Voice    string
	Speed    float64
}

// Controller runs the linear page -> sentence -> word loop. All public
// methods are safe for concurrent use; asynchronous completions are
// discarded when superseded, keyed by a monotonic generation.
type Controller struct {
	src    read.PageSource
	index  *pageindex.Index
	arena  *highlight.Arena
	reg    *provider.Registry
	store  read.ProgressStore
	notify read.Listener

	gen atomic.Uint64

	mu             sync.Mutex
	prov           provider.Provider
	provID         string
	doc            string
	voice          string
	speed          float64
	cursor         read.Cursor
	status         read.Status
	cancel         context.CancelFunc
	resumeAudio    bool // one-shot: next sentence continues paused audio
	lastChar       int  // char offset of the last boundary in the current sentence
	transplantChar int  // one-shot start offset after a provider switch
}

// New creates a controller. The provider is resolved lazily on first Play.
func New(src read.PageSource, index *pageindex.Index, arena *highlight.Arena,
	reg *provider.Registry, store read.ProgressStore, notify read.Listener, cfg Config) *Controller {
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if notify == nil {
		notify = func(read.Event) {}
	}
	return &Controller{
		src:    src,
		index:  index,
		arena:  arena,
		reg:    reg,
		store:  store,
		notify: notify,
		provID: cfg.Provider,
		doc:    cfg.Doc,
		voice:  cfg.Voice,
		speed:  cfg.Speed,
		status: read.StatusIdle,
	}
}

// Cursor returns the current logical position.
func (c *Controller) Cursor() read.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Status returns the controller's playback status.
func (c *Controller) Status() read.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// JumpTo moves the cursor without starting playback.
func (c *Controller) JumpTo(page, sentence int) {
	c.halt(true)
	c.mu.Lock()
	c.cursor = read.Cursor{Page: page, Sentence: sentence}
	c.resumeAudio = false
	c.lastChar = 0
	c.mu.Unlock()
}

// StartFromSelection resolves a text selection to its sentence and begins
// playback there.
func (c *Controller) StartFromSelection(ctx context.Context, page int, selected string, blockHint, offsetHint int) error {
	sentence, err := c.index.StartFromSelection(page, selected, blockHint, offsetHint)
	if err != nil {
		if errors.Is(err, pageindex.ErrEmptyPage) {
			sentence = 0
		} else {
			return err
		}
	}
	c.JumpTo(page, sentence)
	return c.Play(ctx)
}

// Play starts or restarts playback from the current cursor.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	resuming := c.resumeAudio
	c.mu.Unlock()
	// Resuming playback must not tear down the provider's paused offset.
	c.halt(!resuming)

	c.mu.Lock()
	if c.prov == nil {
		p, err := c.resolveProvider(c.provID)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.prov = p
	}
	gen := c.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	resume := c.resumeAudio
	c.resumeAudio = false
	c.setStatusLocked(read.StatusSpeaking)
	c.mu.Unlock()

	go c.run(runCtx, gen, resume)
	return nil
}

// Pause suspends playback, keeping the cursor and, when the provider
// supports it, the mid-utterance audio offset.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.status != read.StatusSpeaking || c.prov == nil {
		c.mu.Unlock()
		return provider.ErrNotPaused
	}
	prov := c.prov
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.gen.Add(1)
	if cancel != nil {
		cancel()
	}
	if err := prov.Pause(); err != nil && !errors.Is(err, provider.ErrNotPaused) {
		log.Debug("provider pause", "err", err)
	}

	c.mu.Lock()
	c.resumeAudio = prov.CanResumeFromPosition()
	c.setStatusLocked(read.StatusPaused)
	c.mu.Unlock()
	return nil
}

// Resume continues playback. The first sentence picks up from the paused
// audio offset when the provider supports it; otherwise it restarts from
// its beginning. Later sentences always start fresh.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.status != read.StatusPaused {
		c.mu.Unlock()
		return provider.ErrNotPaused
	}
	c.mu.Unlock()
	return c.Play(ctx)
}

// Stop cancels playback, clears highlights and resets to idle. The cursor
// keeps its position.
func (c *Controller) Stop() error {
	c.halt(true)
	c.mu.Lock()
	c.resumeAudio = false
	c.lastChar = 0
	c.setStatusLocked(read.StatusIdle)
	c.mu.Unlock()
	c.arena.ClearKind(highlight.KindWord, highlight.ModeLinear)
	c.arena.ClearKind(highlight.KindSentence, highlight.ModeLinear)
	return nil
}

// SetSpeed changes the pace. Active playback re-enters the current
// sentence from its start at the new speed.
func (c *Controller) SetSpeed(ctx context.Context, speed float64) error {
	if speed <= 0 {
		speed = 1.0
	}
	c.mu.Lock()
	c.speed = speed
	c.resumeAudio = false // paused audio is at the old speed
	speaking := c.status == read.StatusSpeaking
	c.mu.Unlock()

	if speaking {
		return c.Play(ctx)
	}
	return nil
}

// SetVoice changes the voice and drops cached audio for the old one.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	c.voice = voice
	c.resumeAudio = false
	prov := c.prov
	c.mu.Unlock()
	if prov != nil {
		prov.ClearCache()
	}
}

// SwitchProvider transplants the reading position onto a new provider. The
// current sentence restarts at the last spoken word; the audio graph is
// never shared between providers.
func (c *Controller) SwitchProvider(ctx context.Context, id string) error {
	next, err := c.resolveProvider(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	speaking := c.status == read.StatusSpeaking
	old := c.prov
	c.mu.Unlock()

	c.halt(false)
	if old != nil && old != next {
		old.ClearCache()
	}

	c.mu.Lock()
	c.prov = next
	c.provID = id
	c.resumeAudio = false
	// Transplant the position: the current sentence restarts at the last
	// spoken word on the new provider.
	c.transplantChar = c.lastChar
	c.mu.Unlock()

	if speaking {
		return c.Play(ctx)
	}
	return nil
}

// Close stops playback and flushes persisted progress.
func (c *Controller) Close() error {
	_ = c.Stop()
	return nil
}

// run is the playback loop for one generation.
func (c *Controller) run(ctx context.Context, gen uint64, resumeAudio bool) {
	for c.gen.Load() == gen && ctx.Err() == nil {
		c.mu.Lock()
		cur := c.cursor
		c.mu.Unlock()

		if cur.Page >= c.src.PageCount() {
			c.finish(gen, "complete")
			return
		}

		sents, err := c.index.LoadPage(cur.Page)
		if err != nil {
			if errors.Is(err, pageindex.ErrEmptyPage) {
				c.advancePage(gen, cur.Page+1)
				continue
			}
			c.notify(read.ErrorEvent{Err: err, Component: "playback", Transient: true})
			c.finish(gen, "error")
			return
		}
		if cur.Sentence >= len(sents) {
			c.advancePage(gen, cur.Page+1)
			continue
		}

		if blocks, err := c.src.Blocks(cur.Page); err == nil {
			c.arena.SetBlocks(cur.Page, blocks)
		}
		ok := c.playSentence(ctx, gen, sents[cur.Sentence], resumeAudio)
		resumeAudio = false
		if !ok {
			return
		}

		c.mu.Lock()
		c.cursor.Sentence++
		c.cursor.Word = 0
		c.lastChar = 0
		c.mu.Unlock()
	}
}

// playSentence highlights and speaks one sentence, blocking until it
// completes. It reports false when superseded or cancelled.
func (c *Controller) playSentence(ctx context.Context, gen uint64, sent read.Sentence, resumeAudio bool) bool {
	page, idx := sent.Page, sent.Index

	if pos, err := c.index.BlockPosition(page, idx); err == nil {
		c.arena.MarkSentence(page, pos.Block, pos.Offset, c.index.SentenceLength(page, idx), highlight.ModeLinear)
	}
	c.notify(read.SentenceEvent{Page: page, Index: idx, Text: sent.Raw, Total: c.sentenceCount(page)})

	done := make(chan struct{})
	var once sync.Once
	searchFrom := 0
	wordIndex := 0

	c.mu.Lock()
	prov := c.prov
	opts := provider.Options{Voice: c.voice, Speed: c.speed, StartChar: c.transplantChar}
	c.transplantChar = 0
	c.mu.Unlock()
	if prov == nil {
		return false
	}

	prov.SetCallbacks(provider.Callbacks{
		OnWord: func(tm read.WordTiming) {
			if c.gen.Load() != gen {
				return
			}
			c.mu.Lock()
			c.lastChar = tm.CharIndex
			c.cursor.Word = wordIndex
			cursor := c.cursor
			c.mu.Unlock()
			wordIndex++

			pos, next, ok := c.index.LocateWord(page, idx, tm.Word, searchFrom)
			if ok {
				searchFrom = next
				c.arena.MarkWord(page, pos.Block, pos.Offset, len(tm.Word), highlight.ModeLinear)
			}
			c.notify(read.WordEvent{Timing: tm, Position: pos, Cursor: cursor})
		},
		OnDone: func() {
			if c.gen.Load() != gen {
				return
			}
			once.Do(func() { close(done) })
		},
		OnStatus: func(s read.Status) {
			if c.gen.Load() != gen {
				return
			}
			c.notify(read.StatusEvent{Status: s})
		},
		OnProgress: func(ev read.ProgressEvent) { c.notify(ev) },
	})

	var err error
	if resumeAudio {
		err = prov.Resume()
		if errors.Is(err, provider.ErrResumeNotSupported) || errors.Is(err, provider.ErrNotPaused) {
			// Documented fallback: restart the sentence from its start.
			err = prov.Speak(ctx, sent.Speech, opts)
		}
	} else {
		err = prov.Speak(ctx, sent.Speech, opts)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.notify(read.ErrorEvent{Err: err, Component: "provider", Transient: true})
		c.finish(gen, "error")
		return false
	}

	select {
	case <-done:
		return c.gen.Load() == gen
	case <-ctx.Done():
		return false
	}
}

// advancePage moves the cursor to a page start and persists progress.
func (c *Controller) advancePage(gen uint64, page int) {
	if c.gen.Load() != gen {
		return
	}
	c.mu.Lock()
	c.cursor = read.Cursor{Page: page}
	c.lastChar = 0
	c.mu.Unlock()

	if c.store != nil {
		c.store.SetLastPage(c.doc, page)
	}
	c.notify(read.PageEvent{Page: page, Total: c.src.PageCount()})
}

// finish ends the run loop in a stable idle state with highlights cleared.
func (c *Controller) finish(gen uint64, reason string) {
	if c.gen.Load() != gen {
		return
	}
	c.mu.Lock()
	c.setStatusLocked(read.StatusIdle)
	c.mu.Unlock()
	c.arena.ClearKind(highlight.KindWord, highlight.ModeLinear)
	c.arena.ClearKind(highlight.KindSentence, highlight.ModeLinear)
	c.notify(read.StoppedEvent{Reason: reason, At: time.Now()})
}

// setStatusLocked records a status change and notifies the host. Listeners
// receive events from engine goroutines and must not block or re-enter.
func (c *Controller) setStatusLocked(s read.Status) {
	if c.status == s {
		return
	}
	prev := c.status
	c.status = s
	c.notify(read.StatusEvent{Status: s, Previous: prev})
}

// halt cancels the active run loop and stops provider audio.
func (c *Controller) halt(stopAudio bool) {
	c.gen.Add(1)
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	prov := c.prov
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopAudio && prov != nil {
		if err := prov.Stop(); err != nil {
			log.Debug("provider stop", "err", err)
		}
	}
}

func (c *Controller) resolveProvider(id string) (provider.Provider, error) {
	if id == "" {
		return nil, ErrNoProvider
	}
	return c.reg.Get(id)
}

func (c *Controller) sentenceCount(page int) int {
	sents, err := c.index.LoadPage(page)
	if err != nil {
		return 0
	}
	return len(sents)
}
