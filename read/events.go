package read

import "time"

// Events emitted by the engine to the hosting UI layer. A host registers a
// single Listener; events are delivered from the engine's own goroutines and
// must not be blocked on.

// Event is the marker interface for engine events.
type Event interface{ isEvent() }

// Listener receives engine events.
type Listener func(Event)

// StatusEvent reports a playback status change.
type StatusEvent struct {
	Status   Status
	Previous Status
}

// SentenceEvent reports that a sentence has started playing or displaying.
type SentenceEvent struct {
	Page  int
	Index int
	Text  string
	Total int // Total sentences on the page
}

// WordEvent reports a spoken or displayed word boundary.
type WordEvent struct {
	Timing   WordTiming
	Position BlockPosition
	Cursor   Cursor
}

// PageEvent reports that the reading position moved to a new page.
type PageEvent struct {
	Page  int
	Total int
}

// ProgressEvent reports model download or load progress for neural
// provider backends.
type ProgressEvent struct {
	Provider string
	Step     string
	Done     int64
	Total    int64
}

// ErrorEvent reports a recovered failure. Transient errors clear on the next
// successful operation; nothing delivered here is fatal to the host.
type ErrorEvent struct {
	Err       error
	Component string
	Transient bool
}

// StoppedEvent reports that playback reached a stable stop.
type StoppedEvent struct {
	Reason string // "user", "complete", "error"
	At     time.Time
}

func (StatusEvent) isEvent()   {}
func (SentenceEvent) isEvent() {}
func (WordEvent) isEvent()     {}
func (PageEvent) isEvent()     {}
func (ProgressEvent) isEvent() {}
func (ErrorEvent) isEvent()    {}
func (StoppedEvent) isEvent()  {}
