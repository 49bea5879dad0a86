package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
)

// DecodeFrame extracts one frame at time at (seconds), scaled to
// width x height, as RGBA.
func (e *Executor) DecodeFrame(ctx context.Context, path string, at float64, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if at < 0 {
		at = 0
	}

	args := []string{
		"-v", "error",
		"-ss", formatSeconds(at),
		"-i", path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("frame decode failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	size := width * height * 4
	if len(out) < size {
		return nil, fmt.Errorf("frame decode at %ss returned %d of %d bytes", formatSeconds(at), len(out), size)
	}

	return &image.RGBA{
		Pix:    out[:size],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
