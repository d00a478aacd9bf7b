// Package speakalong follows a user reading aloud: a recognition stream is
// matched against the expected words and the cursor advances as the reader
// speaks. The matcher owns its cursor; manual stepping always works, with
// or without a live recognition session.
package speakalong

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/provider"
	"github.com/dgnsrekt/readsync/read/segment"
)

// lookAhead is how many expected words past the cursor a transcript token
// may match. Recognition drops words; a small window lets the cursor catch
// up without runaway skipping.
const lookAhead = 2

// Result is one recognition update. Partial results refine the same
// utterance; a final result closes it.
type Result struct {
	Text  string
	Final bool
}

// Session is one live recognition stream. Results is closed when the
// session ends, by Stop or by the backend going silent.
type Session interface {
	Results() <-chan Result
	Err() error
	Stop()
}

// Recognizer opens recognition sessions against the microphone.
type Recognizer interface {
	Listen(ctx context.Context) (Session, error)
	Close() error
}

// Well-known recognizer failures, reported to the host once per session.
var (
	ErrUnsupported      = errors.New("speech recognition not available")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoSpeech         = errors.New("no speech detected")
)

// State is the matcher's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StatePaused
	StateUnsupported
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StatePaused:
		return "paused"
	case StateUnsupported:
		return "unsupported"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Matcher drives the follow-along session.
type Matcher struct {
	rec    Recognizer
	src    read.PageSource
	index  *pageindex.Index
	arena  *highlight.Arena
	seg    *segment.Segmenter
	reg    *provider.Registry
	notify read.Listener

	gen atomic.Uint64

	mu          sync.Mutex
	state       State
	cursor      read.Cursor
	words       []segment.Word // real words of the current sentence
	reported    bool           // error already surfaced this session
	lastPartial string
	cancel      context.CancelFunc
}

// New creates a matcher. The registry is used only for word pronunciation
// lookups, never by the match loop.
func New(rec Recognizer, src read.PageSource, index *pageindex.Index, arena *highlight.Arena,
	reg *provider.Registry, notify read.Listener) *Matcher {
	if notify == nil {
		notify = func(read.Event) {}
	}
	return &Matcher{
		rec:    rec,
		src:    src,
		index:  index,
		arena:  arena,
		seg:    segment.New(),
		reg:    reg,
		notify: notify,
		state:  StateIdle,
	}
}

// State returns the matcher's current state.
func (m *Matcher) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cursor returns the follow-along position.
func (m *Matcher) Cursor() read.Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Start opens a recognition session and begins matching at the cursor.
func (m *Matcher) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateListening {
		m.mu.Unlock()
		return nil
	}
	if err := m.ensureSentenceLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	gen := m.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = StateListening
	m.reported = false
	m.lastPartial = ""
	m.mu.Unlock()

	m.publish()
	go m.listen(runCtx, gen)
	return nil
}

// Pause stops the recognition session, keeping the cursor. Manual stepping
// still works while paused.
func (m *Matcher) Pause() {
	m.halt(StatePaused)
}

// Stop ends the session and returns to idle. The cursor keeps its place so
// a later Start resumes where the reader left off.
func (m *Matcher) Stop() {
	m.halt(StateIdle)
	m.arena.ClearKind(highlight.KindWord, highlight.ModeLinear)
}

// Close stops the session and releases the recognizer.
func (m *Matcher) Close() error {
	m.Stop()
	return m.rec.Close()
}

func (m *Matcher) halt(to State) {
	m.gen.Add(1)
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.state = to
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// listen runs recognition sessions for one generation, restarting silently
// when the backend stops on its own while we are still listening.
func (m *Matcher) listen(ctx context.Context, gen uint64) {
	for m.gen.Load() == gen && ctx.Err() == nil {
		session, err := m.rec.Listen(ctx)
		if err != nil {
			m.fail(gen, err)
			return
		}

		for res := range session.Results() {
			if m.gen.Load() != gen {
				session.Stop()
				return
			}
			m.handle(res)
		}

		if err := session.Err(); err != nil && ctx.Err() == nil {
			if errors.Is(err, ErrNoSpeech) {
				// Silence is routine; restart without surfacing anything.
				log.Debug("recognition restarted after silence")
				continue
			}
			m.fail(gen, err)
			return
		}
		// Session drained with no error: the backend stopped on its own.
		// Restart so the reader sees no interruption.
	}
}

// fail surfaces a recognition failure once per session and degrades to
// manual stepping.
func (m *Matcher) fail(gen uint64, err error) {
	if m.gen.Load() != gen {
		return
	}
	m.mu.Lock()
	already := m.reported
	m.reported = true
	if errors.Is(err, ErrUnsupported) {
		m.state = StateUnsupported
	} else {
		m.state = StateError
	}
	m.mu.Unlock()

	if !already {
		m.notify(read.ErrorEvent{Err: err, Component: "speakalong", Transient: true})
	}
	log.Warn("speech recognition unavailable, falling back to manual stepping", "err", err)
}

// handle matches one transcript update against the expected words. Only
// the newest token matters; earlier tokens were matched by earlier
// partials.
func (m *Matcher) handle(res Result) {
	token := lastToken(res.Text)
	if token == "" {
		return
	}

	m.mu.Lock()
	if !res.Final && res.Text == m.lastPartial {
		m.mu.Unlock()
		return
	}
	m.lastPartial = res.Text
	if res.Final {
		m.lastPartial = ""
	}

	if err := m.ensureSentenceLocked(); err != nil {
		m.mu.Unlock()
		return
	}

	matched := false
	for i := 0; i <= lookAhead; i++ {
		at := m.cursor.Word + i
		if at >= len(m.words) {
			break
		}
		if segment.Normalize(m.words[at].Text) == token {
			m.cursor.Word = at + 1
			matched = true
			break
		}
	}
	if matched && m.cursor.Word >= len(m.words) {
		m.advanceSentenceLocked()
	}
	m.mu.Unlock()

	if matched {
		m.publish()
	} else {
		log.Debug("transcript token not in window", "token", token)
	}
}

// StepForward advances the cursor by one word manually.
func (m *Matcher) StepForward() bool {
	m.mu.Lock()
	if err := m.ensureSentenceLocked(); err != nil {
		m.mu.Unlock()
		return false
	}
	m.cursor.Word++
	if m.cursor.Word >= len(m.words) {
		if !m.advanceSentenceLocked() {
			m.cursor.Word = len(m.words) - 1
			m.mu.Unlock()
			return false
		}
	}
	m.mu.Unlock()
	m.publish()
	return true
}

// StepBack moves the cursor back one word manually.
func (m *Matcher) StepBack() bool {
	m.mu.Lock()
	if err := m.ensureSentenceLocked(); err != nil {
		m.mu.Unlock()
		return false
	}
	if m.cursor.Word > 0 {
		m.cursor.Word--
	} else if !m.retreatSentenceLocked() {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	m.publish()
	return true
}

// Pronounce speaks a single word through the given provider. It is
// independent of the match loop and does not touch the cursor.
func (m *Matcher) Pronounce(ctx context.Context, providerID, word string, opts provider.Options) error {
	p, err := m.reg.Get(providerID)
	if err != nil {
		return err
	}
	return p.Speak(ctx, word, opts)
}

// CurrentWord returns the expected word under the cursor.
func (m *Matcher) CurrentWord() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureSentenceLocked(); err != nil {
		return "", false
	}
	if m.cursor.Word >= len(m.words) {
		return "", false
	}
	return m.words[m.cursor.Word].Text, true
}

func (m *Matcher) ensureSentenceLocked() error {
	if m.words != nil {
		return nil
	}
	for {
		if m.cursor.Page >= m.src.PageCount() {
			return pageindex.ErrNoSuchPage
		}
		sents, err := m.index.LoadPage(m.cursor.Page)
		if err != nil {
			if errors.Is(err, pageindex.ErrEmptyPage) {
				m.cursor = read.Cursor{Page: m.cursor.Page + 1}
				continue
			}
			return err
		}
		if m.cursor.Sentence >= len(sents) {
			m.cursor = read.Cursor{Page: m.cursor.Page + 1}
			continue
		}
		m.words = realWords(m.seg, sents[m.cursor.Sentence].Raw)
		if len(m.words) == 0 {
			m.cursor.Sentence++
			m.words = nil
			continue
		}
		if m.cursor.Word >= len(m.words) {
			m.cursor.Word = len(m.words) - 1
		}
		return nil
	}
}

func (m *Matcher) advanceSentenceLocked() bool {
	m.cursor.Sentence++
	m.cursor.Word = 0
	m.words = nil
	return m.ensureSentenceLocked() == nil
}

func (m *Matcher) retreatSentenceLocked() bool {
	for {
		if m.cursor.Sentence > 0 {
			m.cursor.Sentence--
		} else if m.cursor.Page > 0 {
			m.cursor.Page--
			sents, err := m.index.LoadPage(m.cursor.Page)
			if err != nil || len(sents) == 0 {
				if m.cursor.Page == 0 {
					return false
				}
				continue
			}
			m.cursor.Sentence = len(sents)
			continue
		} else {
			return false
		}

		sents, err := m.index.LoadPage(m.cursor.Page)
		if err != nil || m.cursor.Sentence >= len(sents) {
			continue
		}
		words := realWords(m.seg, sents[m.cursor.Sentence].Raw)
		if len(words) == 0 {
			continue
		}
		m.words = words
		m.cursor.Word = len(words) - 1
		return true
	}
}

// publish highlights the word under the cursor and notifies the host.
func (m *Matcher) publish() {
	m.mu.Lock()
	cur := m.cursor
	if cur.Word >= len(m.words) {
		m.mu.Unlock()
		return
	}
	word := m.words[cur.Word]
	m.mu.Unlock()

	if pos, _, ok := m.index.LocateWord(cur.Page, cur.Sentence, word.Text, word.Offset); ok {
		m.arena.MarkWord(cur.Page, pos.Block, pos.Offset, len(word.Text), highlight.ModeLinear)
	}
	m.notify(read.WordEvent{
		Timing: read.WordTiming{Word: word.Text, CharIndex: word.Offset, CharLength: len(word.Text)},
		Cursor: cur,
	})
}

// lastToken normalizes the newest word of a transcript.
func lastToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return segment.Normalize(fields[len(fields)-1])
}

// realWords lists the sentence's words that carry alphanumeric content.
func realWords(seg *segment.Segmenter, sentence string) []segment.Word {
	var out []segment.Word
	for _, w := range seg.WordsWithPositions(sentence) {
		if w.Real {
			out = append(out, w)
		}
	}
	return out
}
