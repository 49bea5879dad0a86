package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"time"
)

// NormalizeArgs re-encodes input to an H.264/AAC MP4 at the given settings
func NormalizeArgs(input, output string, s EncodeSettings) []string {
	return []string{
		"-i", input,
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", s.CRF),
		"-preset", s.Preset,
		"-pix_fmt", DefaultPixFmt,
		"-c:a", DefaultAudioCodec,
		"-b:a", s.AudioBitrate,
		"-ar", fmt.Sprintf("%d", DefaultAudioRate),
		"-movflags", "+faststart",
		output,
	}
}

// Normalize converts a raw capture into a portable MP4
func (e *Executor) Normalize(ctx context.Context, input, output string, quality Quality, duration time.Duration, progressFunc ProgressFunc) (*Result, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	settings, err := quality.Settings()
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Str("quality", string(quality)).
		Msg("normalizing capture")

	runOpts := RunOptions{
		Args:            NormalizeArgs(input, output, settings),
		ProgressHandler: progressFunc,
		Duration:        duration,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("normalize output")
		},
	}
	if err := e.Run(ctx, runOpts); err != nil {
		return nil, fmt.Errorf("normalize failed: %w", err)
	}

	res, err := e.describe(ctx, output)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("output", output).Int64("size", res.Size).Dur("duration", res.Duration).Msg("normalize completed")
	return res, nil
}

// describe fills a Result from the file on disk
func (e *Executor) describe(ctx context.Context, path string) (*Result, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("output missing: %w", err)
	}
	res := &Result{Path: path, Size: st.Size()}
	if info, err := e.ProbeVideo(ctx, path); err == nil {
		res.Duration = info.Duration
	} else {
		e.logger.Warn().Err(err).Str("path", path).Msg("could not probe output")
	}
	return res, nil
}
