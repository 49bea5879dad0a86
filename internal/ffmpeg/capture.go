package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CaptureOptions configures a raw frame capture
type CaptureOptions struct {
	Output   string
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Voices   []Voice
}

// Capture is a running ffmpeg process fed raw RGBA frames on stdin. The
// audio bus is mixed from the voices by the same process.
type Capture struct {
	logger zerolog.Logger
	opts   CaptureOptions
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	g      *errgroup.Group
	frames int

	once sync.Once
	err  error
}

// BuildCaptureArgs returns the ffmpeg arguments for a capture, without the
// executor's global flags.
func BuildCaptureArgs(opts CaptureOptions) ([]string, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive")
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}

	args := []string{
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", formatSeconds(opts.FPS),
		"-i", "pipe:0",
	}

	inputs, chains := audioBus(opts.Voices, 1, opts.Duration)
	args = append(args, inputs...)
	args = append(args,
		"-filter_complex", strings.Join(chains, ";"),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", DefaultVideoCodec,
		"-preset", "ultrafast",
		"-crf", "0",
		"-pix_fmt", "yuv444p",
		"-c:a", "pcm_s16le",
		"-t", formatSeconds(opts.Duration),
		opts.Output,
	)
	return args, nil
}

// StartCapture launches the capture process
func (e *Executor) StartCapture(ctx context.Context, opts CaptureOptions) (*Capture, error) {
	args, err := BuildCaptureArgs(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid capture options: %w", err)
	}
	args = append(e.baseArgs(), args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("starting capture")

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, e.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c := &Capture{
		logger: e.logger.With().Str("output", opts.Output).Logger(),
		opts:   opts,
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
		g:      &errgroup.Group{},
	}
	c.g.Go(func() error {
		e.streamOutput(stderr, 0, nil, func(line string) {
			c.logger.Debug().Str("ffmpeg", line).Msg("capture output")
		})
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("capture process failed: %w", err)
		}
		return nil
	})
	return c, nil
}

// Path is the capture output file
func (c *Capture) Path() string { return c.opts.Output }

// Frames returns how many frames were written
func (c *Capture) Frames() int { return c.frames }

// WriteFrame sends one frame. Its size must match the capture.
func (c *Capture) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != c.opts.Width || b.Dy() != c.opts.Height {
		return fmt.Errorf("frame is %dx%d, capture expects %dx%d", b.Dx(), b.Dy(), c.opts.Width, c.opts.Height)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	if _, err := c.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write frame %d: %w", c.frames, err)
	}
	c.frames++
	return nil
}

// Close ends the input stream and waits for ffmpeg to finish the file
func (c *Capture) Close() error {
	c.once.Do(func() {
		defer c.cancel()
		if err := c.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			c.err = fmt.Errorf("close capture input: %w", err)
		}
		if err := c.g.Wait(); err != nil && c.err == nil {
			c.err = err
		}
		c.logger.Debug().Int("frames", c.frames).Err(c.err).Msg("capture finished")
	})
	return c.err
}

// Abort kills the process and removes the partial output
func (c *Capture) Abort() {
	c.once.Do(func() {
		c.cancel()
		_ = c.stdin.Close()
		_ = c.g.Wait()
		c.err = context.Canceled
		c.logger.Debug().Int("frames", c.frames).Msg("capture aborted")
	})
	_ = os.Remove(c.opts.Output)
}
