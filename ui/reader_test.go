package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/playback"
	"github.com/dgnsrekt/readsync/read/provider"
	"github.com/dgnsrekt/readsync/read/rsvp"
	"github.com/dgnsrekt/readsync/read/segment"
)

type fakeSource struct {
	pages [][]read.Block
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) Blocks(page int) ([]read.Block, error) {
	if page < 0 || page >= len(f.pages) {
		return nil, errors.New("no such page")
	}
	return f.pages[page], nil
}

func (f *fakeSource) Watch(func()) (func(), error) { return func() {}, nil }

func newTestModel(t *testing.T) Model {
	t.Helper()
	src := &fakeSource{pages: [][]read.Block{{
		{Page: 0, Index: 0, Text: "Alpha one two. Beta three four."},
	}}}
	seg := segment.New()
	index := pageindex.New(src, seg)
	arena := highlight.New(highlight.DefaultStyles())

	reg := provider.NewRegistry()
	reg.Register("mock", func() (provider.Provider, error) {
		return provider.NewMock(audio.NewMockPlayer()), nil
	})

	bridge := NewBridge()
	ctrl := playback.New(src, index, arena, reg, nil, bridge.Notify, playback.Config{
		Doc:      "test.md",
		Provider: "mock",
	})
	stream := rsvp.New(src, index, arena, bridge.Notify, 250)

	return NewModel(
		Config{Path: "test.md", Provider: "mock", Speed: 1.0, WPM: 250},
		Deps{
			Source:     src,
			Arena:      arena,
			Controller: ctrl,
			Streamer:   stream,
			Bridge:     bridge,
		},
	)
}

func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModeSwitchCycles(t *testing.T) {
	m := newTestModel(t)
	if m.mode != modeLinear {
		t.Fatalf("initial mode = %v", m.mode)
	}

	m = press(t, m, "r")
	if m.mode != modeRSVP {
		t.Errorf("after r, mode = %v, want rsvp", m.mode)
	}

	// Pressing r again returns to linear reading.
	m = press(t, m, "r")
	if m.mode != modeLinear {
		t.Errorf("after second r, mode = %v, want linear", m.mode)
	}
}

func TestFollowWithoutRecognizerReportsNote(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "f")
	if m.mode != modeLinear {
		t.Errorf("mode switched without a recognizer")
	}
	if m.note == "" {
		t.Error("expected a note explaining follow-along is unavailable")
	}
}

func TestSpeedKeysClampAtEnds(t *testing.T) {
	m := newTestModel(t)
	for i := 0; i < 20; i++ {
		m = press(t, m, "+")
	}
	if got := speedSteps[m.speedIdx]; got != speedSteps[len(speedSteps)-1] {
		t.Errorf("speed after repeated + = %v", got)
	}
	for i := 0; i < 20; i++ {
		m = press(t, m, "-")
	}
	if got := speedSteps[m.speedIdx]; got != speedSteps[0] {
		t.Errorf("speed after repeated - = %v", got)
	}
}

func TestWPMKeysInRSVPMode(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "r")
	m = press(t, m, "+")
	if m.wpm != 275 {
		t.Errorf("wpm = %d, want 275", m.wpm)
	}
	m = press(t, m, "-")
	m = press(t, m, "-")
	if m.wpm != 225 {
		t.Errorf("wpm = %d, want 225", m.wpm)
	}
}

func TestEngineEventsFoldIntoState(t *testing.T) {
	m := newTestModel(t)

	m.applyEvent(read.StatusEvent{Status: read.StatusSpeaking})
	if m.status != read.StatusSpeaking {
		t.Errorf("status = %v", m.status)
	}

	m.applyEvent(read.SentenceEvent{Page: 0, Index: 1, Total: 2})
	if m.sentence != 1 || m.sentences != 2 {
		t.Errorf("sentence = %d/%d", m.sentence, m.sentences)
	}

	m.applyEvent(read.ErrorEvent{Err: errors.New("mic unplugged")})
	if m.note != "mic unplugged" {
		t.Errorf("note = %q", m.note)
	}

	// A recovery clears the note.
	m.applyEvent(read.StatusEvent{Status: read.StatusIdle})
	if m.note != "" {
		t.Errorf("note survived recovery: %q", m.note)
	}

	m.applyEvent(read.StoppedEvent{Reason: "complete"})
	if m.status != read.StatusIdle || m.note != "finished" {
		t.Errorf("after completion: status=%v note=%q", m.status, m.note)
	}
}

func TestViewContainsPageText(t *testing.T) {
	m := newTestModel(t)
	m.width = 80
	m.height = 24

	out := m.View()
	if !strings.Contains(out, "Alpha one two.") {
		t.Errorf("view missing page text:\n%s", out)
	}
	if !strings.Contains(out, "page 1/1") {
		t.Errorf("view missing page counter:\n%s", out)
	}
}

func TestStatusBarTruncatesToWidth(t *testing.T) {
	m := newTestModel(t)
	m.width = 20
	m.note = strings.Repeat("long error text ", 10)

	bar := m.statusBarView()
	for _, line := range strings.Split(bar, "\n") {
		if w := visibleWidth(line); w > 20 {
			t.Errorf("status bar line width %d exceeds 20", w)
		}
	}
}

// visibleWidth measures a styled line without its escape sequences.
func visibleWidth(s string) int {
	width := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			width++
		}
	}
	return width
}
