package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/readsync/read"
)

// The engine publishes events from its own goroutines; the bridge turns them
// into bubbletea messages without ever blocking an engine callback.

const eventBuffer = 64

// Bridge adapts the engine's listener contract to the message loop.
type Bridge struct {
	ch chan read.Event
}

// NewBridge creates an event bridge.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan read.Event, eventBuffer)}
}

// Notify is the read.Listener handed to the engine at construction. A full
// buffer drops the event; word boundaries are frequent and the next one
// carries fresher state anyway.
func (b *Bridge) Notify(ev read.Event) {
	select {
	case b.ch <- ev:
	default:
	}
}

// engineEventMsg wraps one engine event for the update loop.
type engineEventMsg struct {
	Event read.Event
}

// waitForEvent blocks on the bridge until the engine publishes.
func (b *Bridge) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return engineEventMsg{Event: <-b.ch}
	}
}

// rsvpTickMsg drives the rapid-word streamer when it runs under the message
// loop instead of its own goroutine.
type rsvpTickMsg struct{}

// errMsg carries a command failure into the update loop.
type errMsg struct {
	err error
}
