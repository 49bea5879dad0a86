// Package export renders a timeline to an encoded video file.
//
// Frame capture replays the timeline at a fixed rate, draws every frame with
// the same resolver preview uses and streams the frames into ffmpeg together
// with a mixed audio bus. The raw capture is then normalized to an MP4 by the
// transcoding engine. Remote rendering ships the timeline to a render service
// instead; see RemoteRenderer.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kikiluvv/slopstudio/internal/apperr"
	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/playback"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

// DefaultFPS is the capture rate when Options.FPS is zero
const DefaultFPS = 30

// ErrEmptyTimeline is returned when there is nothing to export
var ErrEmptyTimeline = errors.New("timeline is empty")

// Stage names the step of an export
type Stage string

const (
	StageValidate  Stage = "validate"
	StageCapture   Stage = "capture"
	StageFrame     Stage = "frame"
	StageNormalize Stage = "normalize"
	StageUpload    Stage = "upload"
	StageRender    Stage = "render"
	StageDownload  Stage = "download"
)

// Error is an export failure at a given stage
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage describes the failure for the user
func (e *Error) UserMessage() string {
	if errors.Is(e.Err, ErrEmptyTimeline) {
		return "Add something to the timeline before exporting."
	}
	return fmt.Sprintf("Export failed during %s.", e.Stage)
}

// fail wraps err with its stage. Cancellation always surfaces as
// apperr.ErrCancelled so callers can stay quiet about it.
func fail(ctx context.Context, stage Stage, err error) error {
	if ctx.Err() != nil || apperr.Cancelled(err) {
		return &Error{Stage: stage, Err: apperr.ErrCancelled}
	}
	return &Error{Stage: stage, Err: err}
}

// Options controls one export
type Options struct {
	Preset     compositor.Preset
	FPS        float64
	Volume     float64
	Quality    ffmpeg.Quality
	Output     string
	Background color.RGBA
	// TempDir holds the raw capture. Empty means the system temp dir.
	TempDir string
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.Preset.Width == 0 || o.Preset.Height == 0 {
		o.Preset = compositor.Landscape
	}
	if o.Volume < 0 {
		o.Volume = 0
	}
	if o.Volume > 1 {
		o.Volume = 1
	}
	return o
}

// FrameCount is the number of frames captured for total seconds at fps
func FrameCount(total, fps float64) int {
	if total <= 0 || fps <= 0 {
		return 0
	}
	// guard against 10*30 landing on 300.00000000000006
	return int(math.Ceil(total*fps - 1e-9))
}

// Progress reports how far an export is
type Progress struct {
	Stage   Stage
	Frame   int
	Frames  int
	Percent float64
}

// ProgressFunc receives export progress
type ProgressFunc func(Progress)

// FrameSink receives captured frames
type FrameSink interface {
	WriteFrame(img image.Image) error
	Path() string
	Close() error
	Abort()
}

// CaptureStarter opens a frame sink for a capture
type CaptureStarter func(ctx context.Context, opts ffmpeg.CaptureOptions) (FrameSink, error)

// FFmpegCapture captures through an ffmpeg executor
func FFmpegCapture(e *ffmpeg.Executor) CaptureStarter {
	return func(ctx context.Context, opts ffmpeg.CaptureOptions) (FrameSink, error) {
		c, err := e.StartCapture(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Transcoder normalizes a raw capture into the delivery format
type Transcoder interface {
	Normalize(ctx context.Context, input, output string, quality ffmpeg.Quality, duration time.Duration, progressFunc ffmpeg.ProgressFunc) (*ffmpeg.Result, error)
}

// FrameHook observes every captured frame
type FrameHook func(index int, res playback.Resolution, frame *image.RGBA)

// Exporter runs frame-capture exports
type Exporter struct {
	logger     zerolog.Logger
	assets     media.Lookup
	capture    CaptureStarter
	transcoder Transcoder
	onFrame    FrameHook
}

// New creates an exporter
func New(logger zerolog.Logger, assets media.Lookup, capture CaptureStarter, transcoder Transcoder) *Exporter {
	return &Exporter{
		logger:     logger.With().Str("component", "export").Logger(),
		assets:     assets,
		capture:    capture,
		transcoder: transcoder,
	}
}

// OnFrame registers a hook called after each frame is drawn
func (x *Exporter) OnFrame(fn FrameHook) {
	x.onFrame = fn
}

// Export captures state frame by frame and writes the normalized result to
// opts.Output. state is a snapshot; edits made while exporting are not seen.
func (x *Exporter) Export(ctx context.Context, state timeline.State, opts Options, progress ProgressFunc) (*ffmpeg.Result, error) {
	opts = opts.withDefaults()
	if progress == nil {
		progress = func(Progress) {}
	}

	total := state.TotalDuration
	frames := FrameCount(total, opts.FPS)
	if frames == 0 {
		return nil, &Error{Stage: StageValidate, Err: ErrEmptyTimeline}
	}
	if opts.Output == "" {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("output path is required")}
	}
	if _, err := opts.Quality.Settings(); err != nil {
		return nil, &Error{Stage: StageValidate, Err: err}
	}

	log := x.logger.With().Str("output", opts.Output).Logger()
	log.Info().
		Float64("duration", total).
		Float64("fps", opts.FPS).
		Int("frames", frames).
		Str("preset", opts.Preset.Name).
		Msg("starting export")

	mixer, err := NewMixer(x.logger, state, x.assets, opts.Volume)
	if err != nil {
		return nil, fail(ctx, StageCapture, err)
	}
	defer func() {
		if err := mixer.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release audio clones")
		}
	}()

	tmp, err := os.MkdirTemp(opts.TempDir, "slopstudio-export-*")
	if err != nil {
		return nil, fail(ctx, StageCapture, fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tmp)

	sink, err := x.capture(ctx, ffmpeg.CaptureOptions{
		Output:   filepath.Join(tmp, "capture.mkv"),
		Width:    opts.Preset.Width,
		Height:   opts.Preset.Height,
		FPS:      opts.FPS,
		Duration: total,
		Voices:   mixer.Voices(),
	})
	if err != nil {
		return nil, fail(ctx, StageCapture, err)
	}

	if err := x.captureFrames(ctx, state, opts, frames, sink, mixer, progress); err != nil {
		sink.Abort()
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, fail(ctx, StageCapture, err)
	}

	res, err := x.transcoder.Normalize(ctx, sink.Path(), opts.Output, opts.Quality,
		time.Duration(total*float64(time.Second)), func(p *ffmpeg.Progress) {
			progress(Progress{Stage: StageNormalize, Frame: frames, Frames: frames, Percent: p.Percentage})
		})
	if err != nil {
		_ = os.Remove(opts.Output)
		return nil, fail(ctx, StageNormalize, err)
	}

	progress(Progress{Stage: StageNormalize, Frame: frames, Frames: frames, Percent: 100})
	log.Info().Int64("size", res.Size).Dur("duration", res.Duration).Msg("export completed")
	return res, nil
}

func (x *Exporter) captureFrames(ctx context.Context, state timeline.State, opts Options, frames int, sink FrameSink, mixer *Mixer, progress ProgressFunc) error {
	surface := compositor.NewSurface(opts.Preset, opts.Background)

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			x.logger.Info().Int("frame", i).Msg("export cancelled")
			return fail(ctx, StageCapture, err)
		}

		t := float64(i) / opts.FPS
		res := playback.Resolve(state, x.assets, t)
		if err := x.drawFrame(surface, res); err != nil {
			return fail(ctx, StageFrame, fmt.Errorf("frame %d at %.3fs: %w", i, t, err))
		}
		mixer.Advance(t)

		frame := surface.Image()
		if x.onFrame != nil {
			x.onFrame(i, res, frame)
		}
		if err := sink.WriteFrame(frame); err != nil {
			return fail(ctx, StageCapture, err)
		}
		progress(Progress{Stage: StageCapture, Frame: i + 1, Frames: frames, Percent: 100 * float64(i+1) / float64(frames)})
	}
	return nil
}

// drawFrame paints the visible clip, or the matte when nothing is visible.
// Frames are read through FrameAt so preview elements are never seeked.
func (x *Exporter) drawFrame(surface *compositor.Surface, res playback.Resolution) error {
	if res.Video == nil {
		surface.Clear()
		return nil
	}
	reader, ok := res.Video.Asset.Source.(media.FrameReader)
	if !ok {
		return fmt.Errorf("asset %s has no readable frames", res.Video.Asset.ID)
	}
	img, err := reader.FrameAt(res.Video.SourceTime)
	if err != nil {
		return err
	}
	surface.DrawLetterboxed(img)
	return nil
}
