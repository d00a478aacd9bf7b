package rsvp

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/segment"
)

type fakeSource struct {
	pages [][]read.Block
}

func (s *fakeSource) PageCount() int { return len(s.pages) }

func (s *fakeSource) Blocks(page int) ([]read.Block, error) {
	if page < 0 || page >= len(s.pages) {
		return nil, pageindex.ErrNoSuchPage
	}
	return s.pages[page], nil
}

func (s *fakeSource) Watch(func()) (func(), error) { return func() {}, nil }

func newStreamer(wpm int, pages ...string) *Streamer {
	src := &fakeSource{}
	for p, text := range pages {
		src.pages = append(src.pages, []read.Block{{Page: p, Index: 0, Text: text}})
	}
	index := pageindex.New(src, segment.New())
	arena := highlight.New(highlight.DefaultStyles())
	return New(src, index, arena, nil, wpm)
}

func TestORPTable(t *testing.T) {
	want := []int{0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}
	for length, orp := range want {
		if got := ORPIndex(length); got != orp {
			t.Errorf("ORPIndex(%d) = %d, want %d", length, got, orp)
		}
	}
	if got := ORPIndex(14); got != 4 {
		t.Errorf("ORPIndex(14) = %d, want 4", got)
	}
	if got := ORPIndex(40); got != 4 {
		t.Errorf("ORPIndex(40) = %d, want 4", got)
	}
}

func TestIntervalFromWPM(t *testing.T) {
	s := newStreamer(200, "Some text here.")
	if got := s.Interval(); got != 300*time.Millisecond {
		t.Errorf("interval at 200 wpm = %v, want 300ms", got)
	}
	s.SetWPM(60)
	if got := s.Interval(); got != time.Second {
		t.Errorf("interval at 60 wpm = %v, want 1s", got)
	}
}

func TestTickAdvancesThroughSentence(t *testing.T) {
	s := newStreamer(200, "The quick brown fox jumps.")

	for i := 0; i < 4; i++ {
		if !s.Tick() {
			t.Fatalf("tick %d hit document end", i)
		}
	}
	word, ok := s.Current()
	if !ok {
		t.Fatal("no current word")
	}
	if word.Text != "jumps." {
		t.Errorf("after 4 ticks at word %q, want jumps.", word.Text)
	}
}

func TestHyphenMerge(t *testing.T) {
	words := processWords(segment.New(), "An inter- esting case")
	var merged *ProcessedWord
	for i := range words {
		if words[i].Text == "interesting" {
			merged = &words[i]
		}
	}
	if merged == nil {
		t.Fatalf("no merged word in %v", words)
	}
	if merged.RawCount != 2 {
		t.Errorf("merged RawCount = %d, want 2", merged.RawCount)
	}
	if merged.ORP != ORPIndex(len("interesting")) {
		t.Errorf("merged ORP = %d, want %d", merged.ORP, ORPIndex(len("interesting")))
	}

	// The pair consumes two source positions: An, interesting, case.
	if len(words) != 3 {
		t.Errorf("got %d display words, want 3", len(words))
	}
}

func TestSymbolOnlyTokensSkipped(t *testing.T) {
	words := processWords(segment.New(), "alpha -- beta")
	if len(words) != 2 {
		t.Fatalf("got %v, want symbol token dropped", words)
	}
	if words[0].Text != "alpha" || words[1].Text != "beta" {
		t.Errorf("words = %v", words)
	}
}

func TestTickCrossesSentenceAndPage(t *testing.T) {
	s := newStreamer(200, "One two. Three four.", "Five six.")

	var seen []string
	for s.Tick() {
		w, ok := s.Current()
		if !ok {
			break
		}
		seen = append(seen, w.Text)
		if len(seen) > 20 {
			t.Fatal("runaway stream")
		}
	}

	joined := strings.Join(seen, " ")
	if !strings.Contains(joined, "Three") || !strings.Contains(joined, "Five") {
		t.Errorf("stream %v never crossed the sentence or page boundary", seen)
	}
	if s.Tick() {
		t.Error("tick past document end returned true")
	}
}

func TestPrevStepsBack(t *testing.T) {
	s := newStreamer(200, "One two three.")

	s.Tick()
	s.Tick()
	if w, _ := s.Current(); w.Text != "three." {
		t.Fatalf("setup cursor at %q", w.Text)
	}
	if !s.Prev() {
		t.Fatal("prev failed")
	}
	if w, _ := s.Current(); w.Text != "two" {
		t.Errorf("after prev at %q, want two", w.Text)
	}

	s.Prev()
	if s.Prev() {
		t.Error("prev past document start returned true")
	}
}

func TestStopResetsCursor(t *testing.T) {
	s := newStreamer(200, "One two three four.")
	s.Tick()
	s.Tick()
	s.Stop()

	if got := s.Cursor(); got != (read.Cursor{}) {
		t.Errorf("cursor after stop = %+v, want origin", got)
	}
}

func TestCloseHidesSurface(t *testing.T) {
	s := newStreamer(200, "Some words here.")
	s.Start()
	if !s.Visible() {
		t.Fatal("surface hidden while running")
	}
	s.Close()
	if s.Visible() {
		t.Error("surface still visible after close")
	}
}

func TestFrameCentersORP(t *testing.T) {
	w := ProcessedWord{Text: "reading", ORP: 2}
	frame := w.Frame(20)

	// The ORP rune should land on the middle column.
	pad := len(frame) - len(w.Text)
	if pad+2 != 10 {
		t.Errorf("ORP rune at column %d, want 10 (frame %q)", pad+2, frame)
	}
}

func TestFrameWideRunes(t *testing.T) {
	// Wide glyphs occupy two cells; centring must use display width.
	w := ProcessedWord{Text: "読み取り", ORP: 2}
	frame := w.Frame(20)
	pad := len(frame) - len(w.Text)
	if pad != 10-4 {
		t.Errorf("padding = %d cells, want 6 for two wide runes before the ORP", pad)
	}
}
