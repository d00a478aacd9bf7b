package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Document path being read.
	Path string

	// Provider selects the active speech backend ("piper", "remote",
	// "system", "mock").
	Provider string

	// Voice and Speed seed the playback controller.
	Voice string
	Speed float64

	// WPM seeds the rapid-word streamer.
	WPM int

	// FollowAlong enables the speech-recognition reading mode.
	FollowAlong bool

	EnableMouse bool `env:"READSYNC_ENABLE_MOUSE"`
}
