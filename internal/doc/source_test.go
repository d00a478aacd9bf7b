package doc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenPaginatesBlocks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Title\n\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("Paragraph number one with words.\n\n")
	}

	src, err := Open(writeDoc(t, sb.String()), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	// 11 blocks at 4 per page is 3 pages.
	if got := src.PageCount(); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) != 4 {
		t.Errorf("page 0 has %d blocks, want 4", len(blocks))
	}
	if blocks[0].Text != "Title" {
		t.Errorf("first block = %q, want the heading text", blocks[0].Text)
	}
	for i, b := range blocks {
		if b.Page != 0 || b.Index != i {
			t.Errorf("block %d carries page %d index %d", i, b.Page, b.Index)
		}
	}
}

func TestSoftWrappedParagraphJoins(t *testing.T) {
	src, err := Open(writeDoc(t, "A line\nwrapped softly.\n"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "A line wrapped softly." {
		t.Errorf("blocks = %+v, want one joined paragraph", blocks)
	}
}

func TestListItemsBecomeBlocks(t *testing.T) {
	src, err := Open(writeDoc(t, "- first item\n- second item\n"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want one per list item", len(blocks))
	}
	if blocks[0].Text != "first item" || blocks[1].Text != "second item" {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestCodeBlocksSkipped(t *testing.T) {
	src, err := Open(writeDoc(t, "Prose before.\n\n```\ncode here\n```\n\nProse after.\n"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	for _, b := range blocks {
		if strings.Contains(b.Text, "code here") {
			t.Errorf("code block leaked into prose: %q", b.Text)
		}
	}
	if len(blocks) != 2 {
		t.Errorf("got %d blocks, want 2", len(blocks))
	}
}

func TestEmptyDocumentHasOneEmptyPage(t *testing.T) {
	src, err := Open(writeDoc(t, ""), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if got := src.PageCount(); got != 1 {
		t.Fatalf("page count = %d, want 1", got)
	}
	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("empty document produced %d blocks", len(blocks))
	}
}

func TestWatchFiresOnRewrite(t *testing.T) {
	path := writeDoc(t, "Original text here.\n")
	src, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	changed := make(chan struct{}, 1)
	cancel, err := src.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	if err := os.WriteFile(path, []byte("Replacement text here.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watch never fired after rewrite")
	}

	blocks, err := src.Blocks(0)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "Replacement text here." {
		t.Errorf("blocks after rewrite = %+v", blocks)
	}
}
