// Package pageindex maps logical sentence and word positions onto the
// physical text blocks of a page.
package pageindex

import (
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/segment"
)

var (
	// ErrEmptyPage is returned when a page has no admissible sentences, so
	// callers can skip to the next page.
	ErrEmptyPage = errors.New("page has no extractable sentences")

	// ErrNoSuchPage is returned for pages outside the document.
	ErrNoSuchPage = errors.New("page does not exist")

	// ErrNoSuchSentence is returned for sentence indices outside a page.
	ErrNoSuchSentence = errors.New("sentence index out of range")
)

// Index derives sentences and block coordinates from a PageSource and caches
// them per page. Physical positions are untrustworthy across re-renders;
// Invalidate drops the derived state so it is recomputed while logical
// cursors stay valid.
type Index struct {
	src read.PageSource
	seg *segment.Segmenter

	mu    sync.Mutex
	pages map[int]*pageState
}

type pageState struct {
	blocks    []read.Block
	lengths   []int
	concat    string
	sentences []read.Sentence
	starts    []int // absolute offset of each sentence's raw text in concat
}

// New creates an index over the given page source.
func New(src read.PageSource, seg *segment.Segmenter) *Index {
	return &Index{
		src:   src,
		seg:   seg,
		pages: make(map[int]*pageState),
	}
}

// LoadPage reads a page's blocks, segments the concatenated text and caches
// block lengths. Returns ErrEmptyPage when nothing admissible was found.
func (x *Index) LoadPage(page int) ([]read.Sentence, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return nil, err
	}
	if len(st.sentences) == 0 {
		return nil, ErrEmptyPage
	}
	return st.sentences, nil
}

// load fetches or builds the page state. Caller holds the lock.
func (x *Index) load(page int) (*pageState, error) {
	if st, ok := x.pages[page]; ok {
		return st, nil
	}
	if page < 0 || page >= x.src.PageCount() {
		return nil, ErrNoSuchPage
	}
	blocks, err := x.src.Blocks(page)
	if err != nil {
		return nil, err
	}

	st := &pageState{blocks: blocks}
	var sb strings.Builder
	for _, b := range blocks {
		st.lengths = append(st.lengths, len(b.Text))
		sb.WriteString(b.Text)
	}
	st.concat = sb.String()

	spans := x.seg.Sentences(st.concat)
	// Locate each sentence by forward search from the previous match's end.
	// Duplicate substrings on a page would otherwise resolve to the first
	// occurrence.
	searchFrom := 0
	for i, span := range spans {
		pos := strings.Index(st.concat[searchFrom:], span.Text)
		if pos < 0 {
			// Should not happen for spans cut from concat; fall back to the
			// span's own offset rather than dropping the sentence.
			log.Warn("sentence not found by forward search", "page", page, "sentence", i)
			pos = span.Start - searchFrom
		}
		abs := searchFrom + pos
		st.starts = append(st.starts, abs)
		searchFrom = abs + len(span.Text)

		st.sentences = append(st.sentences, read.Sentence{
			Page:   page,
			Index:  i,
			Raw:    span.Text,
			Speech: x.seg.CleanForSpeech(span.Text),
		})
	}

	x.pages[page] = st
	return st, nil
}

// BlockPosition locates the start of a sentence as a block index plus an
// in-block offset, by walking cumulative block lengths.
func (x *Index) BlockPosition(page, sentence int) (read.BlockPosition, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return read.BlockPosition{}, err
	}
	if sentence < 0 || sentence >= len(st.sentences) {
		return read.BlockPosition{}, ErrNoSuchSentence
	}
	return st.position(st.starts[sentence]), nil
}

// LocateWord finds a spoken word within a sentence's raw text, searching
// forward from a previous match offset (relative to the sentence start) so
// repeated words resolve in order. It returns the physical position, the
// offset to search from next, and whether the word was found. Misses are
// logged, never fatal; the caller keeps its previous highlight.
func (x *Index) LocateWord(page, sentence int, word string, fromOffset int) (read.BlockPosition, int, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return read.BlockPosition{}, fromOffset, false
	}
	if sentence < 0 || sentence >= len(st.sentences) {
		return read.BlockPosition{}, fromOffset, false
	}
	raw := st.sentences[sentence].Raw
	if fromOffset < 0 || fromOffset > len(raw) {
		fromOffset = 0
	}
	pos := strings.Index(raw[fromOffset:], word)
	if pos < 0 {
		// Alignment mismatch between spoken text and page text.
		log.Debug("word not aligned in raw sentence", "page", page, "sentence", sentence, "word", word)
		return read.BlockPosition{}, fromOffset, false
	}
	rel := fromOffset + pos
	abs := st.starts[sentence] + rel
	return st.position(abs), rel + len(word), true
}

// SentenceLength returns the raw length of a sentence, for highlight sizing.
func (x *Index) SentenceLength(page, sentence int) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return 0
	}
	if sentence < 0 || sentence >= len(st.sentences) {
		return 0
	}
	return len(st.sentences[sentence].Raw)
}

// StartFromSelection resolves an arbitrary text selection to the sentence
// containing it. Users select partial sentences, multi-sentence spans, or
// text that does not align to segmentation output, so resolution is layered:
// block/offset hint, direct containment, shared-word overlap, then the first
// sentence.
func (x *Index) StartFromSelection(page int, selected string, blockHint, offsetHint int) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return 0, err
	}
	if len(st.sentences) == 0 {
		return 0, ErrEmptyPage
	}

	// (a) Physical hint.
	if blockHint >= 0 && blockHint < len(st.lengths) {
		abs := 0
		for b := 0; b < blockHint; b++ {
			abs += st.lengths[b]
		}
		if offsetHint > 0 {
			if offsetHint > st.lengths[blockHint] {
				offsetHint = st.lengths[blockHint]
			}
			abs += offsetHint
		}
		if i, ok := st.sentenceAt(abs); ok {
			return i, nil
		}
	}

	// (b) Direct substring containment.
	needle := strings.TrimSpace(selected)
	if needle != "" {
		if pos := strings.Index(st.concat, needle); pos >= 0 {
			if i, ok := st.sentenceAt(pos); ok {
				return i, nil
			}
		}
	}

	// (c) Shared-word overlap score.
	if best := st.bestOverlap(needle); best >= 0 {
		return best, nil
	}

	// (d) Default to the first sentence.
	return 0, nil
}

// Invalidate drops a page's derived state. Called when the rendering surface
// replaces the page's blocks.
func (x *Index) Invalidate(page int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.pages, page)
}

// InvalidateAll drops all derived state.
func (x *Index) InvalidateAll() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.pages = make(map[int]*pageState)
}

// BlockLengths returns the cached block lengths for a page.
func (x *Index) BlockLengths(page int) []int {
	x.mu.Lock()
	defer x.mu.Unlock()

	st, err := x.load(page)
	if err != nil {
		return nil
	}
	out := make([]int, len(st.lengths))
	copy(out, st.lengths)
	return out
}

// position converts an absolute offset in the concatenated text into a
// block index plus in-block offset. Offsets beyond the page clamp to the end
// of the last block.
func (st *pageState) position(abs int) read.BlockPosition {
	cum := 0
	for b, l := range st.lengths {
		if abs < cum+l {
			return read.BlockPosition{Block: b, Offset: abs - cum}
		}
		cum += l
	}
	if n := len(st.lengths); n > 0 {
		return read.BlockPosition{Block: n - 1, Offset: st.lengths[n-1]}
	}
	return read.BlockPosition{}
}

// sentenceAt finds the sentence whose raw extent contains the absolute
// offset.
func (st *pageState) sentenceAt(abs int) (int, bool) {
	for i, start := range st.starts {
		if abs >= start && abs < start+len(st.sentences[i].Raw) {
			return i, true
		}
	}
	return 0, false
}

// bestOverlap scores sentences by shared normalized words with the
// selection and returns the best-scoring index, or -1 when nothing overlaps.
func (st *pageState) bestOverlap(selected string) int {
	if selected == "" {
		return -1
	}
	want := make(map[string]bool)
	for _, f := range strings.Fields(selected) {
		if n := segment.Normalize(f); n != "" {
			want[n] = true
		}
	}
	if len(want) == 0 {
		return -1
	}
	best, bestScore := -1, 0
	for i, s := range st.sentences {
		score := 0
		for _, f := range strings.Fields(s.Raw) {
			if want[segment.Normalize(f)] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
