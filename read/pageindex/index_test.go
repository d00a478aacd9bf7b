package pageindex

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/segment"
)

// fakeSource is an in-memory PageSource with one []string of block texts per
// page.
type fakeSource struct {
	pages    [][]string
	onChange func()
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) Blocks(page int) ([]read.Block, error) {
	if page < 0 || page >= len(f.pages) {
		return nil, errors.New("no such page")
	}
	var blocks []read.Block
	for i, text := range f.pages[page] {
		blocks = append(blocks, read.Block{Page: page, Index: i, Text: text})
	}
	return blocks, nil
}

func (f *fakeSource) Watch(onChange func()) (func(), error) {
	f.onChange = onChange
	return func() { f.onChange = nil }, nil
}

func newTestIndex(pages [][]string) (*Index, *fakeSource) {
	src := &fakeSource{pages: pages}
	return New(src, segment.New()), src
}

func TestPageRangeBounds(t *testing.T) {
	idx, _ := newTestIndex([][]string{
		{"The opening page has a sentence."},
		{"The middle page has a sentence."},
		{"The closing page has a sentence."},
	})

	// Every page from the first through the last must load.
	for page := 0; page < 3; page++ {
		if _, err := idx.LoadPage(page); err != nil {
			t.Errorf("LoadPage(%d): %v", page, err)
		}
	}
	if _, err := idx.LoadPage(-1); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("LoadPage(-1) = %v, want ErrNoSuchPage", err)
	}
	if _, err := idx.LoadPage(3); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("LoadPage(3) = %v, want ErrNoSuchPage", err)
	}
}

func TestLoadPageBlockLengthInvariant(t *testing.T) {
	pages := [][]string{
		{"The first block holds one sentence. ", "The second block continues with another. ", "And a third closes the page."},
	}
	idx, src := newTestIndex(pages)

	sentences, err := idx.LoadPage(0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(sentences))
	}

	blocks, _ := src.Blocks(0)
	var concat strings.Builder
	for _, b := range blocks {
		concat.WriteString(b.Text)
	}
	sum := 0
	for _, l := range idx.BlockLengths(0) {
		sum += l
	}
	if sum != concat.Len() {
		t.Errorf("sum of block lengths = %d, want %d", sum, concat.Len())
	}
	for _, s := range sentences {
		if !strings.Contains(concat.String(), s.Raw) {
			t.Errorf("sentence %q is not a substring of the concatenated text", s.Raw)
		}
	}
}

func TestLoadPageEmpty(t *testing.T) {
	idx, _ := newTestIndex([][]string{{"17"}, {"Real content lives here on page two."}})

	if _, err := idx.LoadPage(0); !errors.Is(err, ErrEmptyPage) {
		t.Errorf("expected ErrEmptyPage, got %v", err)
	}
	// A second load of the same empty page must signal empty again.
	if _, err := idx.LoadPage(0); !errors.Is(err, ErrEmptyPage) {
		t.Errorf("expected ErrEmptyPage on reload, got %v", err)
	}
	if _, err := idx.LoadPage(1); err != nil {
		t.Errorf("page 1 should load: %v", err)
	}
	if _, err := idx.LoadPage(2); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("expected ErrNoSuchPage, got %v", err)
	}
}

func TestBlockPositionSpansBlocks(t *testing.T) {
	// The second sentence starts inside the second block.
	pages := [][]string{
		{"Short opener here. The sent", "ence crossing a block boundary ends now."},
	}
	idx, _ := newTestIndex(pages)

	if _, err := idx.LoadPage(0); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	p0, err := idx.BlockPosition(0, 0)
	if err != nil {
		t.Fatalf("BlockPosition(0): %v", err)
	}
	if p0.Block != 0 || p0.Offset != 0 {
		t.Errorf("sentence 0 position = %+v, want block 0 offset 0", p0)
	}

	p1, err := idx.BlockPosition(0, 1)
	if err != nil {
		t.Fatalf("BlockPosition(1): %v", err)
	}
	if p1.Block != 0 || p1.Offset != len("Short opener here. ") {
		t.Errorf("sentence 1 position = %+v", p1)
	}

	if _, err := idx.BlockPosition(0, 9); !errors.Is(err, ErrNoSuchSentence) {
		t.Errorf("expected ErrNoSuchSentence, got %v", err)
	}
}

func TestBlockPositionDuplicateSentences(t *testing.T) {
	// Identical sentences must resolve to successive positions, not both to
	// the first occurrence.
	pages := [][]string{
		{"Again and again. Again and again. The end arrives."},
	}
	idx, _ := newTestIndex(pages)
	if _, err := idx.LoadPage(0); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	p0, _ := idx.BlockPosition(0, 0)
	p1, _ := idx.BlockPosition(0, 1)
	if p0.Offset == p1.Offset {
		t.Errorf("duplicate sentences resolved to the same offset %d", p0.Offset)
	}
	if p1.Offset != len("Again and again. ") {
		t.Errorf("second duplicate at offset %d, want %d", p1.Offset, len("Again and again. "))
	}
}

func TestLocateWordForward(t *testing.T) {
	pages := [][]string{{"The cat saw the cat and the cat left."}}
	idx, _ := newTestIndex(pages)
	if _, err := idx.LoadPage(0); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	from := 0
	var offsets []int
	for i := 0; i < 3; i++ {
		pos, next, ok := idx.LocateWord(0, 0, "cat", from)
		if !ok {
			t.Fatalf("occurrence %d not found", i)
		}
		offsets = append(offsets, pos.Offset)
		from = next
	}
	if !(offsets[0] < offsets[1] && offsets[1] < offsets[2]) {
		t.Errorf("repeated word did not advance: %v", offsets)
	}

	if _, _, ok := idx.LocateWord(0, 0, "dog", 0); ok {
		t.Error("expected miss for absent word")
	}
}

func TestStartFromSelection(t *testing.T) {
	pages := [][]string{
		{"Alpha beta gamma ends first. ", "Delta epsilon follows second. Zeta eta closes third."},
	}
	idx, _ := newTestIndex(pages)
	if _, err := idx.LoadPage(0); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	t.Run("block hint", func(t *testing.T) {
		i, err := idx.StartFromSelection(0, "", 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if i != 1 {
			t.Errorf("hint resolution = %d, want 1", i)
		}
	})

	t.Run("direct containment", func(t *testing.T) {
		i, err := idx.StartFromSelection(0, "epsilon follows", -1, -1)
		if err != nil {
			t.Fatal(err)
		}
		if i != 1 {
			t.Errorf("containment resolution = %d, want 1", i)
		}
	})

	t.Run("word overlap", func(t *testing.T) {
		// Not a literal substring but shares words with sentence 2.
		i, err := idx.StartFromSelection(0, "closes zeta something", -1, -1)
		if err != nil {
			t.Fatal(err)
		}
		if i != 2 {
			t.Errorf("overlap resolution = %d, want 2", i)
		}
	})

	t.Run("fallback to first", func(t *testing.T) {
		i, err := idx.StartFromSelection(0, "%%% @@@", -1, -1)
		if err != nil {
			t.Fatal(err)
		}
		if i != 0 {
			t.Errorf("fallback resolution = %d, want 0", i)
		}
	})
}

func TestInvalidateRecomputes(t *testing.T) {
	src := &fakeSource{pages: [][]string{{"Old content sentence lives here."}}}
	idx := New(src, segment.New())

	before, err := idx.LoadPage(0)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}

	// Simulate a re-render replacing the page's blocks.
	src.pages[0] = []string{"New content after ", "the page re-rendered cleanly."}
	idx.Invalidate(0)

	after, err := idx.LoadPage(0)
	if err != nil {
		t.Fatalf("LoadPage after invalidate: %v", err)
	}
	if after[0].Raw == before[0].Raw {
		t.Error("index returned stale sentences after invalidation")
	}
	lengths := idx.BlockLengths(0)
	if len(lengths) != 2 {
		t.Errorf("block lengths not recomputed: %v", lengths)
	}
}
