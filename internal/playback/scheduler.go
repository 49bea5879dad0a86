package playback

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

// ErrStall marks a media element that failed to seek or decode during a tick
var ErrStall = errors.New("playback stall")

// Drift tolerances in seconds. Audio is looser because an audible seek is
// worse than slight desync.
const (
	VideoDriftTolerance = 0.1
	AudioDriftTolerance = 0.3
)

// Status is the externally observed playback state
type Status struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	Volume      float64 `json:"volume"`
}

// Scheduler advances the playback clock and keeps the surface and the active
// audio element in step with it. Not safe for concurrent use.
type Scheduler struct {
	logger  zerolog.Logger
	assets  media.Lookup
	surface *compositor.Surface

	state   timeline.State
	playing bool
	volume  float64
	// local is the authoritative position while playing
	local float64

	video     media.VideoSource
	audio     media.AudioSource
	audioClip string

	last      Resolution
	listeners []func(Status)
	stalls    int
}

// NewScheduler creates a stopped scheduler at time zero
func NewScheduler(logger zerolog.Logger, assets media.Lookup, surface *compositor.Surface) *Scheduler {
	return &Scheduler{
		logger:  logger.With().Str("component", "playback").Logger(),
		assets:  assets,
		surface: surface,
		state:   timeline.New(),
		volume:  1,
	}
}

// Status returns the last published state
func (s *Scheduler) Status() Status {
	return Status{IsPlaying: s.playing, CurrentTime: s.local, Volume: s.volume}
}

// Playing reports whether the clock is running
func (s *Scheduler) Playing() bool { return s.playing }

// LastResolution returns what the most recent render resolved
func (s *Scheduler) LastResolution() Resolution { return s.last }

// Stalls counts ticks that fell back to the matte
func (s *Scheduler) Stalls() int { return s.stalls }

// Surface returns the drawing target
func (s *Scheduler) Surface() *compositor.Surface { return s.surface }

// OnStatus registers a listener called whenever status is published
func (s *Scheduler) OnStatus(fn func(Status)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Scheduler) publish() {
	st := s.Status()
	for _, fn := range s.listeners {
		fn(st)
	}
}

// SetTimeline swaps the snapshot used for rendering. While playing the new
// snapshot is first used by the next tick; while stopped the current frame
// is redrawn at once.
func (s *Scheduler) SetTimeline(state timeline.State) {
	s.state = state
	if s.local > state.TotalDuration {
		s.local = state.TotalDuration
	}
	if !s.playing {
		s.render()
		s.publish()
	}
}

// Play starts the clock. Playing an empty timeline does nothing; playing at
// the very end restarts from zero.
func (s *Scheduler) Play() {
	if s.playing || s.state.TotalDuration <= 0 {
		return
	}
	if s.local >= s.state.TotalDuration {
		s.local = 0
	}
	s.playing = true
	s.logger.Debug().Float64("at", s.local).Msg("play")
	s.render()
	s.publish()
}

// Pause stops the clock and silences all elements
func (s *Scheduler) Pause() {
	if !s.playing {
		return
	}
	s.playing = false
	s.logger.Debug().Float64("at", s.local).Msg("pause")
	s.render()
	s.publish()
}

// Toggle flips between play and pause
func (s *Scheduler) Toggle() {
	if s.playing {
		s.Pause()
	} else {
		s.Play()
	}
}

// Seek jumps to t, clamped to [0, totalDuration], and redraws once. It does
// not change the play state.
func (s *Scheduler) Seek(t float64) {
	if math.IsNaN(t) {
		return
	}
	s.local = math.Max(0, math.Min(t, s.state.TotalDuration))
	s.render()
	s.publish()
}

// SetVolume sets the output volume in [0, 1]
func (s *Scheduler) SetVolume(v float64) {
	s.volume = math.Max(0, math.Min(1, v))
	if s.audio != nil {
		s.audio.SetVolume(s.volume)
	}
	s.publish()
}

// Tick advances the clock by the real time elapsed since the previous tick.
// Reaching the end stops playback and rewinds to zero.
func (s *Scheduler) Tick(elapsed time.Duration) {
	if !s.playing {
		return
	}
	s.local += elapsed.Seconds()
	if s.local >= s.state.TotalDuration {
		s.playing = false
		s.local = 0
		s.logger.Debug().Msg("reached end of timeline")
	}
	s.render()
	s.publish()
}

// render resolves the current position and applies it to the surface and
// the audio element. Element failures are logged and never stop the clock.
func (s *Scheduler) render() {
	res := Resolve(s.state, s.assets, s.local)
	s.last = res

	if err := s.renderVideo(res.Video); err != nil {
		s.stalls++
		s.logger.Warn().Err(err).Float64("at", s.local).Str("clip", res.VideoClipID()).Msg("video stalled")
		s.surface.Clear()
	}
	if err := s.renderAudio(res.Audio); err != nil {
		s.stalls++
		s.logger.Warn().Err(err).Float64("at", s.local).Str("clip", res.AudioClipID()).Msg("audio stalled")
	}
}

func (s *Scheduler) renderVideo(layer *Layer) error {
	var next media.VideoSource
	if layer != nil {
		next, _ = layer.Asset.Source.(media.VideoSource)
	}
	if s.video != nil && s.video != next {
		s.video.Pause()
	}
	s.video = next

	if layer == nil {
		s.surface.Clear()
		return nil
	}

	var (
		img image.Image
		err error
	)
	switch src := layer.Asset.Source.(type) {
	case media.VideoSource:
		if math.Abs(src.CurrentTime()-layer.SourceTime) > VideoDriftTolerance {
			if err := src.Seek(layer.SourceTime); err != nil {
				return fmt.Errorf("%w: seek %s: %v", ErrStall, layer.Asset.ID, err)
			}
		}
		if s.playing {
			if src.Paused() {
				if err := src.Play(); err != nil {
					return fmt.Errorf("%w: play %s: %v", ErrStall, layer.Asset.ID, err)
				}
			}
		} else {
			src.Pause()
		}
		img, err = src.Frame()
	case media.Visual:
		img, err = src.Frame()
	default:
		return fmt.Errorf("%w: asset %s is not drawable", ErrStall, layer.Asset.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStall, err)
	}
	s.surface.DrawLetterboxed(img)
	return nil
}

// renderAudio keeps at most one audio element sounding: the one backing the
// active clip.
func (s *Scheduler) renderAudio(layer *Layer) error {
	var (
		next   media.AudioSource
		clipID string
	)
	if layer != nil {
		next, _ = layer.Asset.Source.(media.AudioSource)
		clipID = layer.Clip.ID
	}

	if clipID != s.audioClip {
		if s.audio != nil && s.audio != next {
			s.audio.Pause()
		}
		s.audio, s.audioClip = next, clipID
		if next != nil {
			if err := next.Seek(layer.SourceTime); err != nil {
				return fmt.Errorf("%w: seek %s: %v", ErrStall, layer.Asset.ID, err)
			}
		}
	}
	if next == nil {
		return nil
	}

	next.SetVolume(s.volume)
	if !s.playing {
		next.Pause()
		return nil
	}
	if next.Paused() {
		if err := next.Play(); err != nil {
			return fmt.Errorf("%w: play %s: %v", ErrStall, layer.Asset.ID, err)
		}
	}
	if math.Abs(next.CurrentTime()-layer.SourceTime) > AudioDriftTolerance {
		if err := next.Seek(layer.SourceTime); err != nil {
			return fmt.Errorf("%w: resync %s: %v", ErrStall, layer.Asset.ID, err)
		}
	}
	return nil
}

// Close pauses every element the scheduler touched
func (s *Scheduler) Close() {
	s.playing = false
	if s.video != nil {
		s.video.Pause()
	}
	if s.audio != nil {
		s.audio.Pause()
	}
}
