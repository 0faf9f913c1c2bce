// Package model holds the shared data types of spec.md §3: track
// identifiers, queue items, resolved track metadata, and playback state,
// used by the gateway, resolver, player and protocol packages alike.
package model

import "fmt"

// TrackKind distinguishes the tagged variants of TrackID.
type TrackKind int

const (
	KindSong TrackKind = iota
	KindEpisode
	KindLivestream
	KindUserUpload
)

func (k TrackKind) String() string {
	switch k {
	case KindSong:
		return "song"
	case KindEpisode:
		return "episode"
	case KindLivestream:
		return "livestream"
	case KindUserUpload:
		return "user_upload"
	default:
		return "unknown"
	}
}

// TrackID is the tagged identifier of spec.md §3: Song(u64), Episode(u64),
// Livestream(StationId), UserUpload(u64). Song/episode ids are 64-bit
// Deezer ids transported over the wire as decimal strings; ID stores the
// decimal string form directly so gateway requests and the decrypt key
// derivation (which hashes the ASCII decimal form) never need to reformat it.
type TrackID struct {
	Kind TrackKind
	ID   string // decimal string form, losslessly preserving 64-bit values
}

func Song(id string) TrackID       { return TrackID{Kind: KindSong, ID: id} }
func Episode(id string) TrackID    { return TrackID{Kind: KindEpisode, ID: id} }
func Livestream(id string) TrackID { return TrackID{Kind: KindLivestream, ID: id} }
func UserUpload(id string) TrackID { return TrackID{Kind: KindUserUpload, ID: id} }

func (t TrackID) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// Context distinguishes where a QueueItem came from — flow, mix, radio, album, …
type Context string

const (
	ContextFlow   Context = "flow"
	ContextMix    Context = "mix"
	ContextRadio  Context = "radio"
	ContextAlbum  Context = "album"
	ContextUnknown Context = ""
)

// QueueItem is one entry in the queue (spec.md §3).
type QueueItem struct {
	TrackID        TrackID
	PositionInQueue int
	Context        Context
}

// RepeatMode controls Queue.Next()/Prev() wraparound semantics.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

// Codec enumerates the demux/decode formats spec.md §3 lists.
type Codec string

const (
	CodecMP3      Codec = "mp3"
	CodecFLAC     Codec = "flac"
	CodecAACADTS  Codec = "aac_adts"
	CodecAACMP4   Codec = "aac_mp4"
	CodecWAV      Codec = "wav"
	CodecHLS      Codec = "hls"
)

// TrackMeta is a resolved track (spec.md §3). Livestreams omit Duration and
// CipherKey (zero value / nil).
type TrackMeta struct {
	TrackID      TrackID
	Title        string
	Artist       string
	Album        string
	CoverID      string
	Duration     *int // milliseconds; nil for livestreams
	Codec        Codec
	BitrateKbps  int
	GainDB       *float64 // nil if the gateway didn't report replay gain
	MediaURL     string
	CipherKey    *[16]byte // nil for podcast external URLs and livestreams
}

// IsLivestream reports whether meta describes a livestream (no duration, no seeking).
func (m TrackMeta) IsLivestream() bool { return m.TrackID.Kind == KindLivestream }
