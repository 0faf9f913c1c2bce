// Package events publishes pleezer's lifecycle events (connected,
// disconnected, playing, paused, track_changed) to a user-configured hook
// script as an environment (spec.md §6). Hook scripts run fully detached:
// pleezer never blocks on them and never leaves zombies.
package events

// Kind names a hook event.
type Kind string

const (
	Connected    Kind = "connected"
	Disconnected Kind = "disconnected"
	Playing      Kind = "playing"
	Paused       Kind = "paused"
	TrackChanged Kind = "track_changed"
)

// Fields is the environment a hook script receives (spec.md §6). Not all
// fields apply to every Kind; zero values are simply omitted from the
// process environment rather than passed as empty strings, so a hook
// script can distinguish "absent" from "empty".
type Fields struct {
	TrackType  string // "song" | "episode" | "livestream" | "user_upload"
	TrackID    string
	Title      string
	Artist     string
	AlbumTitle string
	CoverID    string
	DurationMs *int
	Format     string // e.g. "MP3 320K"
	Decoder    string // e.g. "PCM 16 bit 44.1 kHz, Stereo"
	UserID     string
	UserName   string
}
