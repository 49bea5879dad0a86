package media

import (
	"image"
	"time"
)

// Kind is the media type of an ingested asset
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Visible reports whether assets of this kind can be placed on a video track
func (k Kind) Visible() bool {
	return k == KindImage || k == KindVideo
}

// Asset is an ingested source file plus its decoded handle.
// Assets are immutable once registered.
type Asset struct {
	ID              string
	Kind            Kind
	Source          Source
	DisplayName     string
	Path            string
	NaturalDuration float64
	Width           int
	Height          int
}

// Source is a decoded media handle owned by the registry
type Source interface {
	Close() error
}

// FrameReader returns the picture at a source time without moving any
// playback position. Safe to call from the exporter while preview runs.
type FrameReader interface {
	FrameAt(t float64) (image.Image, error)
}

// Visual sources can be drawn on the compositor surface.
type Visual interface {
	Source
	FrameReader
	// Frame returns the picture at the element's current position.
	Frame() (image.Image, error)
}

// Element is a seekable, playable media element.
type Element interface {
	CurrentTime() float64
	Seek(t float64) error
	Play() error
	Pause()
	Paused() bool
}

// VideoSource is a visual element with its own playback position.
type VideoSource interface {
	Visual
	Element
}

// AudioSource is an audible element. Clone returns an independent element
// over the same media so export can seek freely.
type AudioSource interface {
	Source
	Element
	SetVolume(v float64)
	Volume() float64
	Clone() (AudioSource, error)
}

// Clock supplies wall time to media elements and the playback loop
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }
