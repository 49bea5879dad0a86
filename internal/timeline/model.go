package timeline

import (
	"errors"

	"github.com/kikiluvv/slopstudio/internal/media"
)

// MinClipDuration is the shortest a clip may be, in seconds
const MinClipDuration = 0.5

var (
	ErrClipNotFound  = errors.New("clip not found")
	ErrTrackNotFound = errors.New("track not found")
	ErrTrackLocked   = errors.New("track is locked")
)

// TrackKind is the kind of media a track carries
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Accepts reports whether media of kind k may be placed on a track of this kind.
// Video tracks take images and video, audio tracks take audio.
func (tk TrackKind) Accepts(k media.Kind) bool {
	switch tk {
	case TrackVideo:
		return k.Visible()
	case TrackAudio:
		return k == media.KindAudio
	}
	return false
}

// Clip is one placed instance of an asset. Times are seconds.
// TrimStart is the in-point into the source; TrimEnd is the out-point.
type Clip struct {
	ID        string  `json:"id" yaml:"id"`
	MediaID   string  `json:"mediaId" yaml:"media_id"`
	TrackID   string  `json:"trackId" yaml:"track_id"`
	StartTime float64 `json:"startTime" yaml:"start_time"`
	Duration  float64 `json:"duration" yaml:"duration"`
	TrimStart float64 `json:"trimStart" yaml:"trim_start"`
	TrimEnd   float64 `json:"trimEnd" yaml:"trim_end"`
}

// EndTime is StartTime + Duration
func (c Clip) EndTime() float64 {
	return c.StartTime + c.Duration
}

// Contains reports whether t falls in [StartTime, EndTime)
func (c Clip) Contains(t float64) bool {
	return t >= c.StartTime && t < c.EndTime()
}

// SourceTime maps a timeline time to a time in the source media
func (c Clip) SourceTime(t float64) float64 {
	return t - c.StartTime + c.TrimStart
}

// Track is a lane of clips of one kind, sorted by start time
type Track struct {
	ID     string    `json:"id" yaml:"id"`
	Kind   TrackKind `json:"kind" yaml:"kind"`
	Name   string    `json:"name" yaml:"name"`
	Clips  []Clip    `json:"clips" yaml:"clips"`
	Muted  bool      `json:"muted" yaml:"muted"`
	Locked bool      `json:"locked" yaml:"locked"`
}

// State is an immutable snapshot of the timeline. Every operation in this
// package returns a new State and leaves its input untouched.
type State struct {
	Tracks         []Track `json:"tracks"`
	TotalDuration  float64 `json:"totalDuration"`
	Zoom           float64 `json:"zoom"`
	ScrollPosition float64 `json:"scrollPosition"`
}

// Default track ids
const (
	DefaultVideoTrackID = "video-1"
	DefaultAudioTrackID = "audio-1"
)

// New returns an empty timeline with one video track and one audio track
func New() State {
	return State{
		Tracks: []Track{
			{ID: DefaultVideoTrackID, Kind: TrackVideo, Name: "Video"},
			{ID: DefaultAudioTrackID, Kind: TrackAudio, Name: "Audio"},
		},
		Zoom: 1,
	}
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := s
	out.Tracks = make([]Track, len(s.Tracks))
	for i, t := range s.Tracks {
		out.Tracks[i] = t.clone()
	}
	return out
}

func (t Track) clone() Track {
	out := t
	out.Clips = append([]Clip(nil), t.Clips...)
	return out
}

// Track returns the track with the given id
func (s State) Track(id string) (Track, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// FirstTrack returns the first track of the given kind
func (s State) FirstTrack(kind TrackKind) (Track, bool) {
	for _, t := range s.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return Track{}, false
}

// TracksOf returns every track of the given kind, in order
func (s State) TracksOf(kind TrackKind) []Track {
	var out []Track
	for _, t := range s.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// FindClip returns a clip and the track that owns it
func (s State) FindClip(id string) (Clip, Track, bool) {
	for _, t := range s.Tracks {
		for _, c := range t.Clips {
			if c.ID == id {
				return c, t, true
			}
		}
	}
	return Clip{}, Track{}, false
}

// ClipCount returns the number of clips across all tracks
func (s State) ClipCount() int {
	n := 0
	for _, t := range s.Tracks {
		n += len(t.Clips)
	}
	return n
}

// ComputeTotalDuration returns max(end time) over every clip of every track
func ComputeTotalDuration(tracks []Track) float64 {
	total := 0.0
	for _, t := range tracks {
		for _, c := range t.Clips {
			if end := c.EndTime(); end > total {
				total = end
			}
		}
	}
	return total
}
