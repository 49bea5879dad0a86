package export

import (
	"errors"
	"fmt"

	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

// voice is one audio clip on the export bus with its own cloned element
type voice struct {
	clip  timeline.Clip
	path  string
	clone media.AudioSource
}

// Mixer holds one voice per audio clip. Unlike preview, voices overlap
// freely: each is gated to the bus volume inside its clip and to silence
// outside, and the bus sums them.
//
// The encoded sound comes from the ffmpeg bus built from Voices before the
// first frame. The cloned elements follow the same gate frame by frame so
// their state can be checked against it, and they are released with the
// export.
type Mixer struct {
	logger zerolog.Logger
	volume float64
	voices []*voice
}

type pathed interface {
	Path() string
}

// NewMixer clones an audio element for every clip on the unmuted audio
// tracks of state. Clips whose asset is gone are skipped.
func NewMixer(logger zerolog.Logger, state timeline.State, assets media.Lookup, volume float64) (*Mixer, error) {
	m := &Mixer{
		logger: logger.With().Str("component", "mixer").Logger(),
		volume: volume,
	}

	for _, track := range state.TracksOf(timeline.TrackAudio) {
		if track.Muted {
			continue
		}
		for _, clip := range track.Clips {
			asset, ok := assets.Get(clip.MediaID)
			if !ok {
				m.logger.Warn().Str("clip", clip.ID).Str("media", clip.MediaID).Msg("skipping clip with missing media")
				continue
			}

			v := &voice{clip: clip, path: asset.Path}
			if v.path == "" {
				if p, ok := asset.Source.(pathed); ok {
					v.path = p.Path()
				}
			}
			if v.path == "" {
				m.logger.Warn().Str("clip", clip.ID).Msg("skipping audio clip without a source file")
				continue
			}

			if src, ok := asset.Source.(media.AudioSource); ok {
				clone, err := src.Clone()
				if err != nil {
					_ = m.Close()
					return nil, fmt.Errorf("clone audio for clip %s: %w", clip.ID, err)
				}
				clone.SetVolume(0)
				if err := clone.Seek(clip.TrimStart); err != nil {
					_ = clone.Close()
					_ = m.Close()
					return nil, fmt.Errorf("seek audio for clip %s: %w", clip.ID, err)
				}
				v.clone = clone
			}
			m.voices = append(m.voices, v)
		}
	}

	m.logger.Debug().Int("voices", len(m.voices)).Msg("mixer ready")
	return m, nil
}

// Voices describes the bus for the capture process
func (m *Mixer) Voices() []ffmpeg.Voice {
	out := make([]ffmpeg.Voice, 0, len(m.voices))
	for _, v := range m.voices {
		out = append(out, ffmpeg.Voice{
			Path:        v.path,
			Start:       v.clip.StartTime,
			Duration:    v.clip.Duration,
			SourceStart: v.clip.TrimStart,
			Gain:        m.volume,
		})
	}
	return out
}

// Advance moves every voice to timeline time t and returns how many are
// audible.
func (m *Mixer) Advance(t float64) int {
	audible := 0
	for _, v := range m.voices {
		inside := v.clip.Contains(t)
		if inside {
			audible++
		}
		if v.clone == nil {
			continue
		}
		if inside {
			v.clone.SetVolume(m.volume)
			if v.clone.Paused() {
				if err := v.clone.Seek(v.clip.SourceTime(t)); err != nil {
					m.logger.Warn().Err(err).Str("clip", v.clip.ID).Msg("voice seek failed")
				}
				if err := v.clone.Play(); err != nil {
					m.logger.Warn().Err(err).Str("clip", v.clip.ID).Msg("voice play failed")
				}
			}
			continue
		}
		v.clone.SetVolume(0)
		if !v.clone.Paused() {
			v.clone.Pause()
		}
	}
	return audible
}

// Gain returns the current gain of the voice for clipID
func (m *Mixer) Gain(clipID string) (float64, bool) {
	for _, v := range m.voices {
		if v.clip.ID == clipID && v.clone != nil {
			return v.clone.Volume(), true
		}
	}
	return 0, false
}

// Close releases every cloned element
func (m *Mixer) Close() error {
	var errs []error
	for _, v := range m.voices {
		if v.clone == nil {
			continue
		}
		if err := v.clone.Close(); err != nil {
			errs = append(errs, err)
		}
		v.clone = nil
	}
	return errors.Join(errs...)
}
