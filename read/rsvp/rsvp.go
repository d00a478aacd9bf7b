// Package rsvp streams a document one word at a time at a fixed pace,
// centring each word on its optimal recognition point. The streamer owns
// its cursor; linear playback never shares it.
package rsvp

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/segment"
)

// Streamer advances a word cursor on a ticker. Tick is exported so the
// advance logic can be driven without the ticker.
type Streamer struct {
	src    read.PageSource
	index  *pageindex.Index
	arena  *highlight.Arena
	seg    *segment.Segmenter
	notify read.Listener

	mu      sync.Mutex
	cursor  read.Cursor
	words   []ProcessedWord
	wpm     int
	running bool
	visible bool
	stop    chan struct{}
}

// New creates a streamer at the given pace.
func New(src read.PageSource, index *pageindex.Index, arena *highlight.Arena, notify read.Listener, wpm int) *Streamer {
	if wpm <= 0 {
		wpm = 250
	}
	if notify == nil {
		notify = func(read.Event) {}
	}
	return &Streamer{
		src:    src,
		index:  index,
		arena:  arena,
		seg:    segment.New(),
		notify: notify,
		wpm:    wpm,
	}
}

// Interval returns the tick period for the current pace.
func (s *Streamer) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return intervalFor(s.wpm)
}

func intervalFor(wpm int) time.Duration {
	return time.Duration(60000/wpm) * time.Millisecond
}

// SetWPM changes the pace; a running stream picks it up on the next tick.
func (s *Streamer) SetWPM(wpm int) {
	if wpm <= 0 {
		return
	}
	s.mu.Lock()
	s.wpm = wpm
	s.mu.Unlock()
}

// Visible reports whether the RSVP surface should be shown.
func (s *Streamer) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Current returns the word under the cursor, loading its sentence on
// demand.
func (s *Streamer) Current() (ProcessedWord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSentenceLocked(); err != nil {
		return ProcessedWord{}, false
	}
	if s.cursor.Word >= len(s.words) {
		return ProcessedWord{}, false
	}
	return s.words[s.cursor.Word], true
}

// Cursor returns the streamer's position.
func (s *Streamer) Cursor() read.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Start begins ticking from the current cursor.
func (s *Streamer) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.visible = true
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.loop(stop)
}

// Pause halts ticking but keeps the cursor and the surface.
func (s *Streamer) Pause() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.running = false
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Stop halts ticking and resets the cursor to the start of the document.
func (s *Streamer) Stop() {
	s.Pause()
	s.mu.Lock()
	s.cursor = read.Cursor{}
	s.words = nil
	s.mu.Unlock()
	s.arena.ClearKind(highlight.KindWord, highlight.ModeRSVP)
	s.arena.ClearKind(highlight.KindSentence, highlight.ModeRSVP)
}

// Close stops the stream and hides the surface.
func (s *Streamer) Close() {
	s.Stop()
	s.mu.Lock()
	s.visible = false
	s.mu.Unlock()
}

func (s *Streamer) loop(stop chan struct{}) {
	for {
		s.mu.Lock()
		interval := intervalFor(s.wpm)
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-time.After(interval):
			if !s.Tick() {
				s.Pause()
				return
			}
		}
	}
}

// Tick advances to the next display word, crossing sentence and page
// boundaries. It returns false at the end of the document.
func (s *Streamer) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(1)
}

// Next steps forward manually.
func (s *Streamer) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(1)
}

// Prev steps backward manually, stopping at the document start.
func (s *Streamer) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(-1)
}

// stepLocked moves the cursor by one display word in either direction and
// republishes the highlight.
func (s *Streamer) stepLocked(dir int) bool {
	if err := s.ensureSentenceLocked(); err != nil {
		return false
	}

	next := s.cursor.Word + dir
	for {
		if next >= 0 && next < len(s.words) {
			s.cursor.Word = next
			break
		}
		if dir > 0 {
			if !s.advanceSentenceLocked() {
				return false
			}
		} else {
			if !s.retreatSentenceLocked() {
				return false
			}
			next = len(s.words) - 1
			continue
		}
		next = 0
	}

	s.publishLocked()
	return true
}

// ensureSentenceLocked loads the words of the sentence under the cursor,
// skipping forward past empty pages.
func (s *Streamer) ensureSentenceLocked() error {
	if s.words != nil {
		return nil
	}
	for {
		if s.cursor.Page >= s.src.PageCount() {
			return pageindex.ErrNoSuchPage
		}
		sents, err := s.index.LoadPage(s.cursor.Page)
		if err != nil {
			if errors.Is(err, pageindex.ErrEmptyPage) {
				s.cursor = read.Cursor{Page: s.cursor.Page + 1}
				continue
			}
			return err
		}
		if s.cursor.Sentence >= len(sents) {
			s.cursor = read.Cursor{Page: s.cursor.Page + 1}
			continue
		}
		s.words = processWords(s.seg, sents[s.cursor.Sentence].Raw)
		if len(s.words) == 0 {
			s.cursor.Sentence++
			s.words = nil
			continue
		}
		if s.cursor.Word >= len(s.words) {
			s.cursor.Word = len(s.words) - 1
		}
		return nil
	}
}

func (s *Streamer) advanceSentenceLocked() bool {
	s.cursor.Sentence++
	s.cursor.Word = 0
	s.words = nil
	return s.ensureSentenceLocked() == nil
}

func (s *Streamer) retreatSentenceLocked() bool {
	for {
		if s.cursor.Sentence > 0 {
			s.cursor.Sentence--
		} else if s.cursor.Page > 0 {
			s.cursor.Page--
			sents, err := s.index.LoadPage(s.cursor.Page)
			if err != nil || len(sents) == 0 {
				if s.cursor.Page == 0 {
					return false
				}
				continue
			}
			s.cursor.Sentence = len(sents) - 1
		} else {
			return false
		}

		sents, err := s.index.LoadPage(s.cursor.Page)
		if err != nil || s.cursor.Sentence >= len(sents) {
			continue
		}
		words := processWords(s.seg, sents[s.cursor.Sentence].Raw)
		if len(words) == 0 {
			continue
		}
		s.words = words
		s.cursor.Word = len(words) - 1
		return true
	}
}

// publishLocked republishes the highlight and word event for the cursor.
func (s *Streamer) publishLocked() {
	cur := s.cursor
	word := s.words[cur.Word]

	if pos, err := s.index.BlockPosition(cur.Page, cur.Sentence); err == nil {
		s.arena.MarkSentence(cur.Page, pos.Block, pos.Offset,
			s.index.SentenceLength(cur.Page, cur.Sentence), highlight.ModeRSVP)
	}

	// A merged pair highlights its first source token; the merged text
	// does not appear verbatim on the page.
	if pos, _, ok := s.index.LocateWord(cur.Page, cur.Sentence, word.anchor, 0); ok {
		s.arena.MarkWord(cur.Page, pos.Block, pos.Offset, len(word.anchor), highlight.ModeRSVP)
	} else {
		log.Debug("rsvp word not aligned", "word", word.Text)
	}

	s.notify(read.WordEvent{
		Timing: read.WordTiming{Word: word.Text, CharLength: len(word.Text)},
		Cursor: cur,
	})
}

// processWords turns a sentence into display words: symbol-only tokens are
// dropped and a hyphen-terminated word merges with its successor.
func processWords(seg *segment.Segmenter, sentence string) []ProcessedWord {
	var real []string
	for _, w := range seg.WordsWithPositions(sentence) {
		if w.Real {
			real = append(real, w.Text)
		}
	}

	var out []ProcessedWord
	for i := 0; i < len(real); i++ {
		anchor := real[i]
		text := anchor
		count := 1
		if strings.HasSuffix(text, "-") && i+1 < len(real) {
			text = strings.TrimSuffix(text, "-") + real[i+1]
			count = 2
			i++
		}
		out = append(out, ProcessedWord{
			Text:     text,
			RawCount: count,
			ORP:      ORPIndex(len([]rune(text))),
			anchor:   anchor,
		})
	}
	return out
}
