package highlight

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by the projection, one pair per
// mode.
type Styles struct {
	LinearSentence lipgloss.Style
	LinearWord     lipgloss.Style
	RSVPSentence   lipgloss.Style
	RSVPWord       lipgloss.Style
}

// DefaultStyles returns the default highlight palette: a soft background for
// the sentence, a bold accent for the word.
func DefaultStyles() Styles {
	return Styles{
		LinearSentence: lipgloss.NewStyle().Background(lipgloss.Color("229")).Foreground(lipgloss.Color("0")),
		LinearWord:     lipgloss.NewStyle().Background(lipgloss.Color("208")).Foreground(lipgloss.Color("0")).Bold(true),
		RSVPSentence:   lipgloss.NewStyle().Background(lipgloss.Color("153")).Foreground(lipgloss.Color("0")),
		RSVPWord:       lipgloss.NewStyle().Background(lipgloss.Color("39")).Foreground(lipgloss.Color("231")).Bold(true),
	}
}

// Render projects a block's text with its current highlight spans applied.
// Word spans draw over sentence spans. The projection never mutates arena
// state, so rendering is repeatable.
func (a *Arena) Render(page, block int) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	blocks, ok := a.pages[page]
	if !ok || block < 0 || block >= len(blocks) {
		return ""
	}
	b := blocks[block]
	if len(b.spans) == 0 {
		return b.text
	}

	// Classify every byte, then emit runs of identical classification.
	const (
		classNone = iota
		classSentence
		classWord
	)
	class := make([]int, len(b.text))
	modeAt := make([]Mode, len(b.text))
	for _, s := range b.spans {
		if s.Kind != KindSentence {
			continue
		}
		for i := s.Start; i < s.Start+s.Length && i < len(class); i++ {
			class[i] = classSentence
			modeAt[i] = s.Mode
		}
	}
	for _, s := range b.spans {
		if s.Kind != KindWord {
			continue
		}
		for i := s.Start; i < s.Start+s.Length && i < len(class); i++ {
			class[i] = classWord
			modeAt[i] = s.Mode
		}
	}

	var out strings.Builder
	i := 0
	for i < len(b.text) {
		j := i
		for j < len(b.text) && class[j] == class[i] && modeAt[j] == modeAt[i] {
			j++
		}
		run := b.text[i:j]
		switch class[i] {
		case classSentence:
			out.WriteString(a.sentenceStyle(modeAt[i]).Render(run))
		case classWord:
			out.WriteString(a.wordStyle(modeAt[i]).Render(run))
		default:
			out.WriteString(run)
		}
		i = j
	}
	return out.String()
}

// RenderPage projects all blocks of a page joined in order.
func (a *Arena) RenderPage(page int) string {
	a.mu.Lock()
	n := len(a.pages[page])
	a.mu.Unlock()

	var out strings.Builder
	for b := 0; b < n; b++ {
		out.WriteString(a.Render(page, b))
	}
	return out.String()
}

func (a *Arena) sentenceStyle(m Mode) lipgloss.Style {
	if m == ModeRSVP {
		return a.styles.RSVPSentence
	}
	return a.styles.LinearSentence
}

func (a *Arena) wordStyle(m Mode) lipgloss.Style {
	if m == ModeRSVP {
		return a.styles.RSVPWord
	}
	return a.styles.LinearWord
}
