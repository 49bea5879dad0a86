// Package studio wires the editor, the media registry and the playback
// scheduler behind a single event loop.
//
// Every edit, seek, play/pause and clock tick runs as a closure on the loop
// goroutine, so none of the owned components needs locking. The tick timer
// only runs while playback is active.
package studio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/editor"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/playback"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned for commands sent after the loop stopped
var ErrClosed = errors.New("session closed")

// DefaultTickInterval is one preview frame at 30 fps
const DefaultTickInterval = time.Second / 30

// importWorkers bounds concurrent probes during Import
const importWorkers = 4

// Options configures a session
type Options struct {
	Editor       editor.Options
	Preset       compositor.Preset
	Background   color.RGBA
	TickInterval time.Duration
	Clock        media.Clock
}

// Env is what a command closure may touch. It is only valid inside the
// closure.
type Env struct {
	Registry *media.Registry
	Editor   *editor.Editor
	Player   *playback.Scheduler
}

// Session owns the editing state on one goroutine
type Session struct {
	logger   zerolog.Logger
	ingester media.Ingester
	clock    media.Clock
	interval time.Duration

	env      Env
	cmds     chan func()
	done     chan struct{}
	ticker   *time.Ticker
	lastTick time.Time

	statusFns []func(playback.Status)
	changeFns []func(timeline.State)
	frameFns  []func(*image.RGBA)
}

// New creates a session. Call Run to start its loop.
func New(logger zerolog.Logger, ingester media.Ingester, opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Clock == nil {
		opts.Clock = media.SystemClock{}
	}
	if opts.Preset.Width == 0 || opts.Preset.Height == 0 {
		opts.Preset = compositor.Landscape
	}

	log := logger.With().Str("component", "studio").Logger()
	registry := media.NewRegistry(logger)
	s := &Session{
		logger:   log,
		ingester: ingester,
		clock:    opts.Clock,
		interval: opts.TickInterval,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		env: Env{
			Registry: registry,
			Editor:   editor.New(logger, registry, opts.Editor),
			Player:   playback.NewScheduler(logger, registry, compositor.NewSurface(opts.Preset, opts.Background)),
		},
	}

	s.env.Editor.OnChange(func(st timeline.State) {
		s.env.Player.SetTimeline(st)
		for _, fn := range s.changeFns {
			fn(st)
		}
	})
	s.env.Player.OnStatus(func(st playback.Status) {
		for _, fn := range s.statusFns {
			fn(st)
		}
		if len(s.frameFns) > 0 {
			frame := s.env.Player.Surface().Snapshot()
			for _, fn := range s.frameFns {
				fn(frame)
			}
		}
	})
	s.env.Player.SetTimeline(s.env.Editor.State())
	return s
}

// Run processes commands until ctx is done, then releases every media
// source.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.shutdown()

	s.logger.Debug().Dur("tick", s.interval).Msg("session loop started")
	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd()
		case <-tick:
			now := s.clock.Now()
			s.env.Player.Tick(now.Sub(s.lastTick))
			s.lastTick = now
		}
		s.syncTicker()
	}
}

// syncTicker arms the timer while playing and stops it otherwise
func (s *Session) syncTicker() {
	playing := s.env.Player.Playing()
	switch {
	case playing && s.ticker == nil:
		s.lastTick = s.clock.Now()
		s.ticker = time.NewTicker(s.interval)
	case !playing && s.ticker != nil:
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) shutdown() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.env.Player.Close()
	if err := s.env.Registry.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("releasing media failed")
	}
	s.logger.Debug().Msg("session loop stopped")
}

// Do runs fn on the loop and waits for it
func (s *Session) Do(ctx context.Context, fn func(env *Env) error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn(&s.env) }

	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// OnStatus registers a playback status listener. Register before Run;
// listeners run on the loop.
func (s *Session) OnStatus(fn func(playback.Status)) {
	s.statusFns = append(s.statusFns, fn)
}

// OnChange registers a timeline listener. Register before Run; listeners
// run on the loop.
func (s *Session) OnChange(fn func(timeline.State)) {
	s.changeFns = append(s.changeFns, fn)
}

// OnFrame registers a listener that receives a copy of the preview surface
// after every render. Register before Run; listeners run on the loop and
// share the copy.
func (s *Session) OnFrame(fn func(*image.RGBA)) {
	s.frameFns = append(s.frameFns, fn)
}

// Import ingests files concurrently and registers them in argument order.
// Ingestion happens off the loop; only registration runs on it. Files that
// fail to ingest are reported together and do not stop the rest.
func (s *Session) Import(ctx context.Context, paths ...string) ([]*media.Asset, error) {
	ingested := make([]*media.Asset, len(paths))
	failures := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importWorkers)
	for i, path := range paths {
		g.Go(func() error {
			asset, err := s.ingester.Ingest(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures[i] = err
				return nil
			}
			ingested[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(ingested)
		return nil, err
	}

	var added []*media.Asset
	err := s.Do(ctx, func(env *Env) error {
		for i, a := range ingested {
			if a == nil {
				continue
			}
			reg, err := env.Registry.Add(a)
			if err != nil {
				failures[i] = err
				closeAll([]*media.Asset{a})
				continue
			}
			added = append(added, reg)
		}
		return nil
	})
	if err != nil {
		closeAll(ingested)
		return nil, err
	}
	return added, errors.Join(failures...)
}

func closeAll(assets []*media.Asset) {
	for _, a := range assets {
		if a != nil && a.Source != nil {
			_ = a.Source.Close()
		}
	}
}

// RemoveMedia deletes an asset and every clip that uses it
func (s *Session) RemoveMedia(ctx context.Context, id string) (int, error) {
	var removed int
	err := s.Do(ctx, func(env *Env) error {
		if _, ok := env.Registry.Get(id); !ok {
			return fmt.Errorf("%w: %s", media.ErrAssetNotFound, id)
		}
		removed = env.Editor.RemoveMedia(id)
		return env.Registry.Remove(id)
	})
	return removed, err
}

// Snapshot returns the current timeline
func (s *Session) Snapshot(ctx context.Context) (timeline.State, error) {
	var st timeline.State
	err := s.Do(ctx, func(env *Env) error {
		st = env.Editor.State()
		return nil
	})
	return st, err
}

// ExportSnapshot is what an export renders: the timeline and the volume the
// user is previewing it at
type ExportSnapshot struct {
	State  timeline.State
	Volume float64
}

// ExportSnapshot reads the timeline and the preview volume in one loop turn
func (s *Session) ExportSnapshot(ctx context.Context) (ExportSnapshot, error) {
	var snap ExportSnapshot
	err := s.Do(ctx, func(env *Env) error {
		snap = ExportSnapshot{State: env.Editor.State(), Volume: env.Player.Status().Volume}
		return nil
	})
	return snap, err
}

// Status returns the current playback status
func (s *Session) Status(ctx context.Context) (playback.Status, error) {
	var st playback.Status
	err := s.Do(ctx, func(env *Env) error {
		st = env.Player.Status()
		return nil
	})
	return st, err
}

// Frame copies the preview surface
func (s *Session) Frame(ctx context.Context) (*image.RGBA, error) {
	var img *image.RGBA
	err := s.Do(ctx, func(env *Env) error {
		img = env.Player.Surface().Snapshot()
		return nil
	})
	return img, err
}

// Play starts playback
func (s *Session) Play(ctx context.Context) error {
	return s.Do(ctx, func(env *Env) error { env.Player.Play(); return nil })
}

// Pause stops playback
func (s *Session) Pause(ctx context.Context) error {
	return s.Do(ctx, func(env *Env) error { env.Player.Pause(); return nil })
}

// Toggle flips play and pause
func (s *Session) Toggle(ctx context.Context) error {
	return s.Do(ctx, func(env *Env) error { env.Player.Toggle(); return nil })
}

// Seek moves the playhead
func (s *Session) Seek(ctx context.Context, t float64) error {
	return s.Do(ctx, func(env *Env) error { env.Player.Seek(t); return nil })
}

// SetVolume sets the preview volume
func (s *Session) SetVolume(ctx context.Context, v float64) error {
	return s.Do(ctx, func(env *Env) error { env.Player.SetVolume(v); return nil })
}

// Registry exposes the asset lookup for exporters. Lookups are safe from any
// goroutine.
func (s *Session) Registry() *media.Registry {
	return s.env.Registry
}
