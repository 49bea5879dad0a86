package ffmpeg

import (
	"fmt"
	"time"
)

// VideoInfo contains metadata about a media file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
	Size         int64
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame      int
	FPS        float64
	Bitrate    string
	Time       string
	Speed      string
	OutTime    time.Duration
	Percentage float64
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
	// Duration of the expected output, used to fill Progress.Percentage
	Duration time.Duration
}

// Default encoding settings
const (
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultAudioRate  = 48000
	DefaultPixFmt     = "yuv420p"
)

// Quality is an output quality tier
type Quality string

const (
	QualityDraft    Quality = "draft"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// EncodeSettings are the x264/aac knobs behind a quality tier
type EncodeSettings struct {
	CRF          int
	Preset       string
	AudioBitrate string
}

var qualityTiers = map[Quality]EncodeSettings{
	QualityDraft:    {CRF: 30, Preset: "veryfast", AudioBitrate: "128k"},
	QualityStandard: {CRF: 23, Preset: "medium", AudioBitrate: "192k"},
	QualityHigh:     {CRF: 18, Preset: "slow", AudioBitrate: "256k"},
}

// Settings resolves a tier. An empty tier is standard.
func (q Quality) Settings() (EncodeSettings, error) {
	if q == "" {
		q = QualityStandard
	}
	s, ok := qualityTiers[q]
	if !ok {
		return EncodeSettings{}, fmt.Errorf("unknown quality tier %q", q)
	}
	return s, nil
}

// Result describes a finished output file
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
}

// Voice is one audio clip on the export bus: Path is read from SourceStart
// for Duration seconds and placed at Start, scaled by Gain. Outside
// [Start, Start+Duration) the voice is gated to silence.
type Voice struct {
	Path        string
	Start       float64
	Duration    float64
	SourceStart float64
	Gain        float64
}

// SegmentKind tells the timeline renderer how to read a segment's input
type SegmentKind string

const (
	SegmentGap   SegmentKind = "gap"
	SegmentImage SegmentKind = "image"
	SegmentVideo SegmentKind = "video"
)

// VideoSegment is one consecutive piece of the visible track
type VideoSegment struct {
	Kind        SegmentKind
	Path        string
	Duration    float64
	SourceStart float64
}

// TimelineJob is a complete server-side render request
type TimelineJob struct {
	Output     string
	Width      int
	Height     int
	FPS        float64
	Background string
	Quality    Quality
	Duration   float64
	Segments   []VideoSegment
	Voices     []Voice
}
