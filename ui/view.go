package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/readsync/read/provider"
	"github.com/dgnsrekt/readsync/read/rsvp"
)

var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	pivotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	if m.mode == modeRSVP {
		b.WriteString(m.rsvpView())
	} else {
		b.WriteString(m.pageView())
	}

	b.WriteString("\n")
	b.WriteString(m.statusBarView())
	return b.String()
}

func (m Model) headerView() string {
	name := filepath.Base(m.cfg.Path)
	pages := fmt.Sprintf("page %d/%d", m.page+1, m.totalPages)
	left := logoStyle.Render("ReadSync")
	right := statusStyle.Render(name + "  " + pages)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// pageView projects the current page through the highlight arena, one block
// per paragraph.
func (m Model) pageView() string {
	blocks, err := m.deps.Source.Blocks(m.page)
	if err != nil {
		return noteStyle.Render(err.Error())
	}
	width := m.width - 2
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	for i := range blocks {
		text := m.deps.Arena.Render(m.page, i)
		if text == "" {
			text = blocks[i].Text
		}
		b.WriteString(wordwrap.String(text, width))
		b.WriteString("\n\n")
	}
	return b.String()
}

// rsvpView shows the single centered word with its pivot letter marked, the
// page text dimmed below it so the reading position stays visible.
func (m Model) rsvpView() string {
	var b strings.Builder

	word, ok := m.deps.Streamer.Current()
	if ok {
		b.WriteString(renderFrame(word, m.width))
	} else {
		b.WriteString(strings.Repeat(" ", max(0, m.width/2-1)))
		b.WriteString(statusStyle.Render("--"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.pageView())
	return b.String()
}

// renderFrame centers the word's pivot letter on the terminal midline and
// colors it.
func renderFrame(word rsvp.ProcessedWord, width int) string {
	runes := []rune(word.Text)
	if word.ORP < 0 || word.ORP >= len(runes) {
		return frameStyle.Render(word.Frame(width))
	}
	before := string(runes[:word.ORP])
	pivot := string(runes[word.ORP])
	after := string(runes[word.ORP+1:])

	pad := width/2 - runewidth.StringWidth(before) - runewidth.StringWidth(pivot)/2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) +
		frameStyle.Render(before) +
		pivotStyle.Render(pivot) +
		frameStyle.Render(after)
}

func (m Model) statusBarView() string {
	parts := []string{m.mode.String(), m.status.String()}
	if m.sentences > 0 {
		parts = append(parts, fmt.Sprintf("sentence %d/%d", m.sentence+1, m.sentences))
	}
	if m.mode == modeRSVP {
		parts = append(parts, fmt.Sprintf("%d wpm", m.wpm))
	} else {
		parts = append(parts, fmt.Sprintf("%.2fx", speedSteps[m.speedIdx]))
	}
	if m.download != "" {
		parts = append(parts, m.download)
	}
	line := statusStyle.Render(strings.Join(parts, " · "))
	if m.note != "" {
		line += "  " + noteStyle.Render(m.note)
	}
	return truncate.StringWithTail(line, uint(max(0, m.width)), "…") //nolint:gosec
}

func providerOpts(voice string, speed float64) provider.Options {
	return provider.Options{Voice: voice, Speed: speed}
}
