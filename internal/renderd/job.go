// Package renderd is the HTTP render service: it accepts a timeline manifest
// plus asset files and renders the whole timeline with one ffmpeg pass.
package renderd

import (
	"fmt"

	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
)

// BuildJob turns a manifest into a render job. files maps asset ids to the
// uploaded copies. The visible track is walked with timeline.Segments so the
// render shows the clip preview shows at every instant.
func BuildJob(m export.Manifest, files map[string]string, output string) (ffmpeg.TimelineJob, error) {
	job := ffmpeg.TimelineJob{
		Output:     output,
		Width:      m.Width,
		Height:     m.Height,
		FPS:        m.FPS,
		Background: m.Background,
		Quality:    m.Quality,
		Duration:   m.Duration,
	}
	if job.Background == "" {
		job.Background = "#000000"
	}

	var video, audio []timeline.Track
	for _, track := range m.Tracks {
		switch track.Kind {
		case timeline.TrackVideo:
			video = append(video, track)
		case timeline.TrackAudio:
			audio = append(audio, track)
		default:
			return job, fmt.Errorf("track %s: unknown kind %q", track.ID, track.Kind)
		}
	}

	for _, seg := range timeline.Segments(video, m.Duration) {
		if seg.Gap() {
			job.Segments = append(job.Segments, ffmpeg.VideoSegment{Kind: ffmpeg.SegmentGap, Duration: seg.Duration()})
			continue
		}
		asset, path, err := resolve(m, files, seg.MediaID)
		if err != nil {
			return job, fmt.Errorf("clip %s: %w", seg.ClipID, err)
		}
		vs := ffmpeg.VideoSegment{Path: path, Duration: seg.Duration()}
		switch asset.Kind {
		case media.KindImage:
			vs.Kind = ffmpeg.SegmentImage
		case media.KindVideo:
			vs.Kind = ffmpeg.SegmentVideo
			vs.SourceStart = seg.SourceStart
		default:
			return job, fmt.Errorf("clip %s: %s asset on a video track", seg.ClipID, asset.Kind)
		}
		job.Segments = append(job.Segments, vs)
	}

	for _, track := range audio {
		if track.Muted {
			continue
		}
		for _, clip := range track.Clips {
			asset, path, err := resolve(m, files, clip.MediaID)
			if err != nil {
				return job, fmt.Errorf("clip %s: %w", clip.ID, err)
			}
			if asset.Kind != media.KindAudio {
				return job, fmt.Errorf("clip %s: %s asset on an audio track", clip.ID, asset.Kind)
			}
			job.Voices = append(job.Voices, ffmpeg.Voice{
				Path:        path,
				Start:       clip.StartTime,
				Duration:    clip.Duration,
				SourceStart: clip.TrimStart,
				Gain:        m.Volume,
			})
		}
	}
	return job, nil
}

func resolve(m export.Manifest, files map[string]string, id string) (export.ManifestAsset, string, error) {
	asset, ok := m.Asset(id)
	if !ok {
		return asset, "", fmt.Errorf("unknown asset %s", id)
	}
	path, ok := files[id]
	if !ok {
		return asset, "", fmt.Errorf("asset %s was not uploaded", id)
	}
	return asset, path, nil
}
