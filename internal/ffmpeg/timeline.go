package ffmpeg

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BuildTimelineArgs turns a render job into one ffmpeg invocation: each
// visible segment is trimmed and letterboxed, gaps become background color,
// segments are concatenated in order and the voices are mixed underneath.
func BuildTimelineArgs(job TimelineJob) ([]string, error) {
	if job.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if job.Width <= 0 || job.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", job.Width, job.Height)
	}
	if job.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive")
	}
	if job.Duration <= 0 {
		return nil, fmt.Errorf("timeline is empty")
	}
	settings, err := job.Quality.Settings()
	if err != nil {
		return nil, err
	}

	var (
		args   []string
		chains []string
		concat strings.Builder
		input  int
	)
	segments := job.Segments
	if len(segments) == 0 {
		segments = []VideoSegment{{Kind: SegmentGap, Duration: job.Duration}}
	}

	for i, seg := range segments {
		if seg.Duration <= 0 {
			return nil, fmt.Errorf("segment %d has no duration", i)
		}
		label := fmt.Sprintf("v%d", i)
		fb := NewFilterBuilder()

		switch seg.Kind {
		case SegmentGap:
			chains = append(chains, fmt.Sprintf(
				"color=c=%s:s=%dx%d:r=%s:d=%s,format=%s,setsar=1[%s]",
				ffColor(job.Background), job.Width, job.Height,
				formatSeconds(job.FPS), formatSeconds(seg.Duration), DefaultPixFmt, label,
			))
		case SegmentImage:
			args = append(args, "-loop", "1", "-framerate", formatSeconds(job.FPS),
				"-t", formatSeconds(seg.Duration), "-i", seg.Path)
			chains = append(chains, fb.Letterbox(job.Width, job.Height, job.Background).
				FPS(job.FPS).Format(DefaultPixFmt).Trim(seg.Duration).
				Labeled(fmt.Sprintf("%d:v", input), label))
			input++
		case SegmentVideo:
			args = append(args, "-ss", formatSeconds(seg.SourceStart),
				"-t", formatSeconds(seg.Duration), "-i", seg.Path)
			// hold the last frame if the source runs out before the segment does
			chains = append(chains, fb.Letterbox(job.Width, job.Height, job.Background).
				FPS(job.FPS).Format(DefaultPixFmt).
				Custom("tpad=stop_mode=clone:stop_duration="+formatSeconds(seg.Duration)).
				Trim(seg.Duration).
				Labeled(fmt.Sprintf("%d:v", input), label))
			input++
		default:
			return nil, fmt.Errorf("segment %d: unknown kind %q", i, seg.Kind)
		}
		fmt.Fprintf(&concat, "[%s]", label)
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", concat.String(), len(segments)))

	audioInputs, audioChains := audioBus(job.Voices, input, job.Duration)
	args = append(args, audioInputs...)
	chains = append(chains, audioChains...)

	args = append(args,
		"-filter_complex", strings.Join(chains, ";"),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", settings.CRF),
		"-preset", settings.Preset,
		"-pix_fmt", DefaultPixFmt,
		"-r", formatSeconds(job.FPS),
		"-c:a", DefaultAudioCodec,
		"-b:a", settings.AudioBitrate,
		"-movflags", "+faststart",
		"-t", formatSeconds(job.Duration),
		job.Output,
	)
	return args, nil
}

// RenderTimeline renders a whole timeline in one pass
func (e *Executor) RenderTimeline(ctx context.Context, job TimelineJob, progressFunc ProgressFunc) (*Result, error) {
	args, err := BuildTimelineArgs(job)
	if err != nil {
		return nil, fmt.Errorf("invalid render job: %w", err)
	}

	e.logger.Info().
		Str("output", job.Output).
		Int("segments", len(job.Segments)).
		Int("voices", len(job.Voices)).
		Float64("duration", job.Duration).
		Msg("rendering timeline")

	duration := time.Duration(job.Duration * float64(time.Second))
	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: progressFunc,
		Duration:        duration,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("render output")
		},
	}
	if err := e.Run(ctx, runOpts); err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	res, err := e.describe(ctx, job.Output)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("output", job.Output).Int64("size", res.Size).Msg("render completed")
	return res, nil
}
