// Package read defines the shared types and contracts of the
// reading-synchronization engine: blocks, sentences, word timings and the
// interfaces the engine consumes from its collaborators.
package read

import "time"

// Block is a contiguous unit of rendered text within a page. It is the
// physical addressing unit for highlighting. Block order on a page is stable
// until the page is re-rendered; after a re-render all derived indices must
// be recomputed, not reused.
type Block struct {
	Page  int    // Page number (0-based)
	Index int    // Position of the block within the page
	Text  string // Textual content of the block
}

// Sentence is a segmented sentence on a page. Raw is a contiguous substring
// of the concatenation of the page's block texts; Speech is the cleaned form
// actually sent to a speech provider.
type Sentence struct {
	Page   int    // Page the sentence belongs to
	Index  int    // Sentence index within the page
	Raw    string // Raw text as laid out on the page
	Speech string // Cleaned text for synthesis
}

// BlockPosition is the physical coordinate a logical (sentence, word)
// position maps to.
type BlockPosition struct {
	Block  int // Block index within the page
	Offset int // Character offset within the block
}

// WordTiming describes one spoken word within a synthesized utterance.
// Timings for an utterance are non-overlapping and monotonically increasing
// in Start.
type WordTiming struct {
	Word       string        // The word as spoken
	CharIndex  int           // Offset of the word in the spoken text
	CharLength int           // Length of the word in the spoken text
	Start      time.Duration // Start of the word relative to utterance start
	End        time.Duration // End of the word relative to utterance start
}

// Cursor is the logical playback position. It is owned exclusively by
// whichever mode (linear, RSVP, speak-along) is currently active; switching
// modes resets or seeds the cursor explicitly.
type Cursor struct {
	Page     int // Current page number
	Sentence int // Sentence index within the page
	Word     int // Word offset within the sentence
}

// Voice describes a synthesis voice offered by a provider.
type Voice struct {
	ID       string // Provider-scoped voice identifier
	Name     string // Human-readable name
	Language string // Language code (e.g. "en-US")
	Gender   string // Voice gender, if known
}

// Capabilities describes what an audio provider can do.
type Capabilities struct {
	Streaming bool // Audio is produced in chunks rather than one buffer
	Offline   bool // Works without a network connection
}

// PageSource is the rendering surface the engine reads from. It supplies
// per-page collections of text blocks with stable order and content, and a
// re-render notification.
type PageSource interface {
	// PageCount returns the number of pages in the document.
	PageCount() int

	// Blocks returns the ordered text blocks of a page.
	Blocks(page int) ([]Block, error)

	// Watch registers a callback invoked when the surface re-renders and
	// block identity can no longer be trusted. The returned func stops the
	// watch.
	Watch(onChange func()) (func(), error)
}

// ProgressStore persists the last-read page for a document. Writes are
// fire-and-forget; implementations are expected to debounce.
type ProgressStore interface {
	// LastPage reports the saved page for a document, if any.
	LastPage(doc string) (int, bool)

	// SetLastPage records the last-read page for a document.
	SetLastPage(doc string, page int)
}
