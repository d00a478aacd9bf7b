// Package ui is the terminal reading surface: it projects the highlight
// arena onto the current page, drives the engine from key bindings and keeps
// a status line in sync with engine events.
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/playback"
	"github.com/dgnsrekt/readsync/read/rsvp"
	"github.com/dgnsrekt/readsync/read/speakalong"
)

// readMode is which of the three reading modes owns the cursor.
type readMode int

const (
	modeLinear readMode = iota
	modeRSVP
	modeFollow
)

func (m readMode) String() string {
	switch m {
	case modeRSVP:
		return "rsvp"
	case modeFollow:
		return "follow"
	default:
		return "read"
	}
}

// speedSteps are the playback speeds the +/- keys cycle through.
var speedSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0}

const wpmStep = 25

// Deps are the engine pieces the reader drives. Matcher may be nil when
// follow-along is unavailable; the f key then reports that instead of
// switching modes.
type Deps struct {
	Source     read.PageSource
	Arena      *highlight.Arena
	Controller *playback.Controller
	Streamer   *rsvp.Streamer
	Matcher    *speakalong.Matcher
	Bridge     *Bridge
}

// Model is the bubbletea model for the reader.
type Model struct {
	cfg  Config
	deps Deps

	width  int
	height int

	page       int
	totalPages int
	mode       readMode
	rsvpActive bool

	status    read.Status
	sentence  int
	sentences int
	speedIdx  int
	wpm       int

	note     string
	download string
	quitting bool
}

// NewModel builds the reader model around an already-wired engine.
func NewModel(cfg Config, deps Deps) Model {
	speedIdx := 2
	for i, s := range speedSteps {
		if s == cfg.Speed {
			speedIdx = i
		}
	}
	wpm := cfg.WPM
	if wpm <= 0 {
		wpm = 250
	}
	mode := modeLinear
	if cfg.FollowAlong && deps.Matcher != nil {
		mode = modeFollow
	}
	return Model{
		mode:       mode,
		cfg:        cfg,
		deps:       deps,
		totalPages: deps.Source.PageCount(),
		speedIdx:   speedIdx,
		wpm:        wpm,
		width:      80,
		height:     24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.deps.Bridge.waitForEvent()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case engineEventMsg:
		cmd := m.applyEvent(msg.Event)
		return m, tea.Batch(m.deps.Bridge.waitForEvent(), cmd)

	case rsvpTickMsg:
		if m.mode != modeRSVP || !m.rsvpActive {
			return m, nil
		}
		if !m.deps.Streamer.Tick() {
			m.rsvpActive = false
			return m, nil
		}
		return m, m.rsvpTick()

	case errMsg:
		if msg.err != nil {
			m.note = msg.err.Error()
			log.Error("reader command", "err", msg.err)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(m.shutdown(), tea.Quit)

	case " ":
		return m.toggle()

	case "s", "esc":
		return m.stopCurrent()

	case "r":
		return m.switchMode(modeRSVP)

	case "f":
		if m.deps.Matcher == nil {
			m.note = "follow-along needs a recognition model; see readsync config"
			return m, nil
		}
		return m.switchMode(modeFollow)

	case "+", "=":
		return m.faster()

	case "-", "_":
		return m.slower()

	case "right", "l":
		return m.stepWord(+1)

	case "left", "h":
		return m.stepWord(-1)

	case "enter":
		if m.mode == modeFollow && m.deps.Matcher != nil {
			return m, m.pronounceCurrent()
		}
		return m, nil

	case "n", "pgdown":
		return m.gotoPage(m.page + 1)

	case "p", "pgup":
		return m.gotoPage(m.page - 1)
	}
	return m, nil
}

// toggle is the spacebar: play/pause whatever mode is active.
func (m Model) toggle() (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeRSVP:
		if m.rsvpActive {
			m.rsvpActive = false
			m.deps.Streamer.Pause()
			return m, nil
		}
		m.rsvpActive = true
		return m, m.rsvpTick()

	case modeFollow:
		mt := m.deps.Matcher
		if mt.State() == speakalong.StateListening {
			mt.Pause()
			return m, nil
		}
		return m, func() tea.Msg {
			return errMsg{err: mt.Start(context.Background())}
		}

	default:
		ctrl := m.deps.Controller
		switch m.status {
		case read.StatusSpeaking, read.StatusLoading:
			return m, func() tea.Msg { return errMsg{err: ctrl.Pause()} }
		case read.StatusPaused:
			return m, func() tea.Msg { return errMsg{err: ctrl.Resume(context.Background())} }
		default:
			return m, func() tea.Msg { return errMsg{err: ctrl.Play(context.Background())} }
		}
	}
}

func (m Model) stopCurrent() (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeRSVP:
		m.rsvpActive = false
		m.deps.Streamer.Stop()
		return m, nil
	case modeFollow:
		m.deps.Matcher.Stop()
		return m, nil
	default:
		return m, func() tea.Msg { return errMsg{err: m.deps.Controller.Stop()} }
	}
}

// switchMode tears the current mode down before the next one takes the
// cursor. Selecting the active mode switches back to linear reading.
func (m Model) switchMode(to readMode) (tea.Model, tea.Cmd) {
	if m.mode == to {
		to = modeLinear
	}
	model, cmd := m.stopCurrent()
	m = model.(Model)
	m.mode = to
	m.note = ""
	if to == modeRSVP {
		m.deps.Streamer.SetWPM(m.wpm)
	}
	return m, cmd
}

func (m Model) faster() (tea.Model, tea.Cmd) {
	if m.mode == modeRSVP {
		m.wpm += wpmStep
		m.deps.Streamer.SetWPM(m.wpm)
		return m, nil
	}
	if m.speedIdx < len(speedSteps)-1 {
		m.speedIdx++
	}
	speed := speedSteps[m.speedIdx]
	return m, func() tea.Msg {
		return errMsg{err: m.deps.Controller.SetSpeed(context.Background(), speed)}
	}
}

func (m Model) slower() (tea.Model, tea.Cmd) {
	if m.mode == modeRSVP {
		if m.wpm > wpmStep {
			m.wpm -= wpmStep
		}
		m.deps.Streamer.SetWPM(m.wpm)
		return m, nil
	}
	if m.speedIdx > 0 {
		m.speedIdx--
	}
	speed := speedSteps[m.speedIdx]
	return m, func() tea.Msg {
		return errMsg{err: m.deps.Controller.SetSpeed(context.Background(), speed)}
	}
}

func (m Model) stepWord(dir int) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeRSVP:
		if dir > 0 {
			m.deps.Streamer.Next()
		} else {
			m.deps.Streamer.Prev()
		}
	case modeFollow:
		if dir > 0 {
			m.deps.Matcher.StepForward()
		} else {
			m.deps.Matcher.StepBack()
		}
	}
	return m, nil
}

func (m Model) gotoPage(page int) (tea.Model, tea.Cmd) {
	if page < 0 || page >= m.totalPages {
		return m, nil
	}
	m.page = page
	if m.mode == modeLinear {
		m.deps.Controller.JumpTo(page, 0)
	}
	return m, nil
}

func (m Model) pronounceCurrent() tea.Cmd {
	word, ok := m.deps.Matcher.CurrentWord()
	if !ok {
		return nil
	}
	providerID := m.cfg.Provider
	voice := m.cfg.Voice
	speed := speedSteps[m.speedIdx]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errMsg{err: m.deps.Matcher.Pronounce(ctx, providerID, word, providerOpts(voice, speed))}
	}
}

// shutdown stops every mode before the program exits.
func (m Model) shutdown() tea.Cmd {
	return func() tea.Msg {
		m.deps.Streamer.Close()
		if m.deps.Matcher != nil {
			m.deps.Matcher.Close()
		}
		return errMsg{err: m.deps.Controller.Close()}
	}
}

func (m Model) rsvpTick() tea.Cmd {
	return tea.Tick(m.deps.Streamer.Interval(), func(time.Time) tea.Msg {
		return rsvpTickMsg{}
	})
}

// applyEvent folds one engine event into the view state.
func (m *Model) applyEvent(ev read.Event) tea.Cmd {
	switch ev := ev.(type) {
	case read.StatusEvent:
		m.status = ev.Status
		if ev.Status != read.StatusError {
			m.note = ""
		}
	case read.SentenceEvent:
		m.sentence = ev.Index
		m.sentences = ev.Total
		m.page = ev.Page
	case read.WordEvent:
		m.page = ev.Cursor.Page
	case read.PageEvent:
		m.page = ev.Page
		m.totalPages = ev.Total
	case read.ProgressEvent:
		if ev.Done < ev.Total {
			m.download = fmt.Sprintf("%s %s/%s", ev.Step,
				humanize.Bytes(uint64(ev.Done)), humanize.Bytes(uint64(ev.Total))) //nolint:gosec
		} else {
			m.download = ""
		}
	case read.ErrorEvent:
		m.note = ev.Err.Error()
	case read.StoppedEvent:
		m.status = read.StatusIdle
		if ev.Reason == "complete" {
			m.note = "finished"
		}
	}
	return nil
}
