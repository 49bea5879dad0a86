package main

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"time"

	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/config"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/logging"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/script"
	"github.com/kikiluvv/slopstudio/internal/studio"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/kikiluvv/slopstudio/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// workspace bundles what every command needs: config and the ffmpeg executor
type workspace struct {
	cfg  *config.Config
	exec *ffmpeg.Executor
}

func newWorkspace(ctx context.Context) (*workspace, error) {
	cfg := config.FromContext(ctx)
	exec, err := ffmpeg.New(logging.WithComponent("ffmpeg"), cfg.FFmpeg.BinaryPath, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, err
	}
	return &workspace{cfg: cfg, exec: exec}, nil
}

func (w *workspace) session(preset compositor.Preset, background color.RGBA) *studio.Session {
	ingester := media.NewFileIngester(log.Logger, w.exec, w.exec, media.SystemClock{})
	return studio.New(log.Logger, ingester, studio.Options{
		Editor:     w.cfg.EditorOptions(),
		Preset:     preset,
		Background: background,
	})
}

// exportOptions layers config, script output settings and a default output
// path
func (w *workspace) exportOptions(s *script.Script) (export.Options, error) {
	opts, err := w.cfg.ExportOptions()
	if err != nil {
		return opts, err
	}
	if s != nil {
		if opts, err = s.Output.Options(opts); err != nil {
			return opts, err
		}
	}
	if opts.Output == "" {
		name := "slopstudio-" + time.Now().Format("20060102-150405") + ".mp4"
		opts.Output = util.AvailablePath(filepath.Join(w.cfg.Export.OutputDir, name))
	}
	return opts, nil
}

// windowExport is one export started from the preview window: it renders at
// the volume the user is previewing with and never overwrites a previous
// export
func windowExport(opts export.Options, snap studio.ExportSnapshot) export.Options {
	opts.Output = util.AvailablePath(opts.Output)
	opts.Volume = snap.Volume
	return opts
}

func (w *workspace) remoteURL(flag string) string {
	if flag != "" {
		return flag
	}
	return w.cfg.Export.RemoteURL
}

// replay runs a session in the background and applies the script. stop ends
// the session and waits for it to release its media.
func (w *workspace) replay(ctx context.Context, s *script.Script, opts export.Options) (timeline.State, *studio.Session, func(), error) {
	sess := w.session(opts.Preset, opts.Background)
	ctx, cancel := context.WithCancel(ctx)
	done := startSession(ctx, sess)
	stop := func() {
		cancel()
		<-done
	}

	res, err := s.Replay(ctx, sess)
	if err != nil {
		stop()
		return timeline.State{}, nil, nil, err
	}
	log.Info().
		Int("clips", res.State.ClipCount()).
		Str("duration", util.FormatTimestamp(res.State.TotalDuration)).
		Msg("edit script applied")
	return res.State, sess, stop, nil
}

// render exports locally, or on the render service when remote is set
func (w *workspace) render(ctx context.Context, state timeline.State, assets media.Lookup, opts export.Options, remote string, progress export.ProgressFunc) (*ffmpeg.Result, error) {
	if err := util.EnsureParent(opts.Output); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if remote != "" {
		return export.NewRemoteRenderer(log.Logger, remote, assets, nil).Render(ctx, state, opts, progress)
	}
	return export.New(log.Logger, assets, export.FFmpegCapture(w.exec), w.exec).Export(ctx, state, opts, progress)
}

// startSession runs the session loop until ctx is done. The returned channel
// closes once the loop has released its media.
func startSession(ctx context.Context, sess *studio.Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	return done
}

// progressLogger logs each stage once and then every tenth of the way
func progressLogger(logger zerolog.Logger) export.ProgressFunc {
	var (
		stage export.Stage
		next  float64
	)
	return func(p export.Progress) {
		if p.Stage != stage {
			stage, next = p.Stage, 0
		}
		if p.Percent < next {
			return
		}
		next = p.Percent - math.Mod(p.Percent, 10) + 10
		logger.Info().
			Str("stage", string(p.Stage)).
			Int("frame", p.Frame).
			Int("frames", p.Frames).
			Float64("percent", p.Percent).
			Msg("export progress")
	}
}
