package rsvp

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// orpTable maps word length in runes to the index of the optimal
// recognition point. Words longer than the table anchor on the fifth rune.
var orpTable = [...]int{0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}

// ORPIndex returns the rune index a word of the given length is centred on.
func ORPIndex(length int) int {
	if length >= 0 && length < len(orpTable) {
		return orpTable[length]
	}
	return 4
}

// ProcessedWord is one display unit of the stream. A hyphen-terminated word
// merged with its successor consumes RawCount source words.
type ProcessedWord struct {
	Text     string
	RawCount int
	ORP      int // rune index of the recognition point

	anchor string // first source token, for page highlighting
}

// Frame renders a word centred on its recognition point within the given
// display width, using terminal cell widths rather than rune counts.
func (w ProcessedWord) Frame(width int) string {
	runes := []rune(w.Text)
	orp := w.ORP
	if orp >= len(runes) {
		orp = len(runes) - 1
	}
	if orp < 0 {
		orp = 0
	}

	left := runewidth.StringWidth(string(runes[:orp]))
	pad := width/2 - left
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + w.Text
}
