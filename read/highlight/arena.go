// Package highlight places sentence- and word-level highlight spans on block
// records and projects them to styled text. Highlight state lives as
// metadata on an arena of blocks; rendering is a pure projection of that
// state, so re-applying the same marks is idempotent.
package highlight

import (
	"sync"

	"github.com/dgnsrekt/readsync/read"
)

// Kind distinguishes sentence-level from word-level spans.
type Kind int

const (
	// KindSentence marks a whole sentence.
	KindSentence Kind = iota
	// KindWord marks the currently spoken or displayed word.
	KindWord
)

// Mode tags a span with the reading mode that owns it. Linear reading and
// RSVP keep independent highlights on the same blocks without conflict.
type Mode int

const (
	// ModeLinear is the TTS reading highlight.
	ModeLinear Mode = iota
	// ModeRSVP is the rapid-serial-presentation highlight.
	ModeRSVP
)

// Span is one highlighted character range within a block.
type Span struct {
	Start  int
	Length int
	Kind   Kind
	Mode   Mode
}

// Arena holds the block records of loaded pages together with their
// highlight spans.
type Arena struct {
	mu     sync.Mutex
	pages  map[int][]*blockState
	styles Styles
}

type blockState struct {
	text  string
	spans []Span
}

// New creates an empty arena with the given styles.
func New(styles Styles) *Arena {
	return &Arena{
		pages:  make(map[int][]*blockState),
		styles: styles,
	}
}

// SetBlocks seeds (or replaces, after a re-render) the block records of a
// page. Any existing highlights on the page are dropped with the old blocks.
func (a *Arena) SetBlocks(page int, blocks []read.Block) {
	a.mu.Lock()
	defer a.mu.Unlock()

	states := make([]*blockState, len(blocks))
	for i, b := range blocks {
		states[i] = &blockState{text: b.Text}
	}
	a.pages[page] = states
}

// MarkSentence highlights a character range of a block as the current
// sentence for a mode, replacing that mode's previous sentence highlight. A
// range longer than the block spills into the following blocks so
// multi-block sentences get one coherent highlight.
func (a *Arena) MarkSentence(page, block, start, length int, mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clear(page, KindSentence, mode)
	a.mark(page, block, start, length, KindSentence, mode)
}

// MarkWord highlights the current word for a mode, nested within that mode's
// sentence span when one exists (falling back to the other mode's sentence
// span, then the bare block), replacing the mode's previous word highlight.
func (a *Arena) MarkWord(page, block, start, length int, mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clear(page, KindWord, mode)
	if lo, hi, ok := a.sentenceBounds(page, block, mode); ok {
		// Keep the word inside its sentence highlight.
		if start < lo {
			start = lo
		}
		if start+length > hi {
			length = hi - start
		}
		if length <= 0 {
			return
		}
	}
	a.mark(page, block, start, length, KindWord, mode)
}

// ClearKind removes spans of a kind. With no modes given, spans of both
// modes are removed, as when fully resetting.
func (a *Arena) ClearKind(kind Kind, modes ...Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(modes) == 0 {
		modes = []Mode{ModeLinear, ModeRSVP}
	}
	for page := range a.pages {
		for _, m := range modes {
			a.clear(page, kind, m)
		}
	}
}

// ClearAll removes every highlight span while keeping the block records.
func (a *Arena) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, blocks := range a.pages {
		for _, b := range blocks {
			b.spans = nil
		}
	}
}

// Spans returns the spans currently placed on a block, for inspection.
func (a *Arena) Spans(page, block int) []Span {
	a.mu.Lock()
	defer a.mu.Unlock()

	blocks, ok := a.pages[page]
	if !ok || block < 0 || block >= len(blocks) {
		return nil
	}
	out := make([]Span, len(blocks[block].spans))
	copy(out, blocks[block].spans)
	return out
}

// mark places a span, clamping out-of-range offsets and shifting leading
// spaces, and recurses into the next block with whatever length is left.
// Caller holds the lock.
func (a *Arena) mark(page, block, start, length int, kind Kind, mode Mode) {
	blocks, ok := a.pages[page]
	if !ok || block < 0 || block >= len(blocks) || length <= 0 {
		return
	}
	b := blocks[block]

	if start < 0 {
		start = 0
	}
	if start > len(b.text) {
		start = len(b.text)
	}
	end := start + length
	if end > len(b.text) {
		end = len(b.text)
	}

	// Never highlight a leading space as part of the range.
	if start < len(b.text) && b.text[start] == ' ' {
		start++
		if end < len(b.text) && b.text[end] != ' ' {
			end++
		}
	}

	if end > start {
		b.spans = append(b.spans, Span{Start: start, Length: end - start, Kind: kind, Mode: mode})
	}

	// Spill the remainder into the next block.
	if spill := (start + length) - len(b.text); spill > 0 && block+1 < len(blocks) {
		a.mark(page, block+1, 0, spill, kind, mode)
	}
}

// clear removes spans matching kind and mode across a page. Caller holds
// the lock.
func (a *Arena) clear(page int, kind Kind, mode Mode) {
	blocks, ok := a.pages[page]
	if !ok {
		return
	}
	for _, b := range blocks {
		kept := b.spans[:0]
		for _, s := range b.spans {
			if s.Kind != kind || s.Mode != mode {
				kept = append(kept, s)
			}
		}
		b.spans = kept
	}
}

// sentenceBounds finds the extent of the active sentence span on a block,
// preferring the requested mode, falling back to the other mode.
func (a *Arena) sentenceBounds(page, block int, mode Mode) (int, int, bool) {
	blocks, ok := a.pages[page]
	if !ok || block < 0 || block >= len(blocks) {
		return 0, 0, false
	}
	other := ModeRSVP
	if mode == ModeRSVP {
		other = ModeLinear
	}
	for _, m := range []Mode{mode, other} {
		for _, s := range blocks[block].spans {
			if s.Kind == KindSentence && s.Mode == m {
				return s.Start, s.Start + s.Length, true
			}
		}
	}
	return 0, 0, false
}
