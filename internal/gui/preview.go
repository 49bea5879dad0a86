// Package gui is the fyne preview window: the composited surface with
// transport, import, history and export controls. Every change goes through
// the studio session; the window only mirrors what the session publishes.
package gui

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/kikiluvv/slopstudio/internal/apperr"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/playback"
	"github.com/kikiluvv/slopstudio/internal/studio"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

// ExportFunc renders a session snapshot and returns the output path
type ExportFunc func(ctx context.Context, snap studio.ExportSnapshot, progress export.ProgressFunc) (string, error)

// Options configures the window
type Options struct {
	Title  string
	Width  float32
	Height float32
	// Export enables the export button when set
	Export ExportFunc
}

// Preview mirrors a session in a window
type Preview struct {
	logger zerolog.Logger
	sess   *studio.Session
	opts   Options
	app    fyne.App

	win      fyne.Window
	picture  *canvas.Image
	slider   *widget.Slider
	play     *widget.Button
	clock    *widget.Label
	summary  *widget.Label
	progress *widget.ProgressBar
	exportBt *widget.Button
	cancelBt *widget.Button
	job      exportJob

	// latest published values, applied on the UI thread
	mu      sync.Mutex
	frame   *image.RGBA
	status  playback.Status
	state   timeline.State
	pending bool
}

// New creates the window and registers its session listeners, so it must be
// called before the session's Run.
func New(logger zerolog.Logger, sess *studio.Session, opts Options) *Preview {
	if opts.Title == "" {
		opts.Title = "slopstudio"
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 960, 640
	}

	p := &Preview{
		logger: logger.With().Str("component", "gui").Logger(),
		sess:   sess,
		opts:   opts,
		app:    app.NewWithID("io.slopstudio.preview"),
		state:  timeline.New(),
	}
	p.build()

	sess.OnFrame(func(f *image.RGBA) {
		p.post(func() { p.frame = f })
	})
	sess.OnStatus(func(st playback.Status) {
		p.post(func() { p.status = st })
	})
	sess.OnChange(func(st timeline.State) {
		p.post(func() { p.state = st })
	})
	return p
}

// post records a value and schedules one UI refresh. Values published while
// a refresh is pending are coalesced into it.
func (p *Preview) post(set func()) {
	p.mu.Lock()
	set()
	schedule := !p.pending
	p.pending = true
	p.mu.Unlock()

	if schedule {
		fyne.Do(p.refresh)
	}
}

func (p *Preview) refresh() {
	p.mu.Lock()
	frame, status, state := p.frame, p.status, p.state
	p.pending = false
	p.mu.Unlock()

	if frame != nil && p.picture.Image != frame {
		p.picture.Image = frame
		p.picture.Refresh()
	}

	p.slider.Max = math.Max(state.TotalDuration, 0.001)
	p.slider.SetValue(status.CurrentTime)
	p.clock.SetText(formatClock(status.CurrentTime) + " / " + formatClock(state.TotalDuration))
	if status.IsPlaying {
		p.play.SetIcon(theme.MediaPauseIcon())
	} else {
		p.play.SetIcon(theme.MediaPlayIcon())
	}
	p.summary.SetText(summarize(state))
}

func (p *Preview) build() {
	p.win = p.app.NewWindow(p.opts.Title)
	p.win.Resize(fyne.NewSize(p.opts.Width, p.opts.Height))

	p.picture = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 16, 9)))
	p.picture.FillMode = canvas.ImageFillContain
	p.picture.ScaleMode = canvas.ImageScaleFastest

	p.slider = widget.NewSlider(0, 1)
	p.slider.Step = 0.01
	p.slider.OnChangeEnded = func(v float64) {
		p.async("seek", func(ctx context.Context) error { return p.sess.Seek(ctx, v) })
	}

	p.play = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		p.async("toggle", p.sess.Toggle)
	})
	rewind := widget.NewButtonWithIcon("", theme.MediaSkipPreviousIcon(), func() {
		p.async("rewind", func(ctx context.Context) error { return p.sess.Seek(ctx, 0) })
	})
	undo := widget.NewButtonWithIcon("", theme.ContentUndoIcon(), func() {
		p.async("undo", func(ctx context.Context) error {
			return p.sess.Do(ctx, func(env *studio.Env) error { env.Editor.Undo(); return nil })
		})
	})
	redo := widget.NewButtonWithIcon("", theme.ContentRedoIcon(), func() {
		p.async("redo", func(ctx context.Context) error {
			return p.sess.Do(ctx, func(env *studio.Env) error { env.Editor.Redo(); return nil })
		})
	})
	importBt := widget.NewButtonWithIcon("Import", theme.FolderOpenIcon(), p.showImport)

	volume := widget.NewSlider(0, 1)
	volume.Step = 0.05
	volume.SetValue(1)
	volume.OnChangeEnded = func(v float64) {
		p.async("volume", func(ctx context.Context) error { return p.sess.SetVolume(ctx, v) })
	}

	p.clock = widget.NewLabel(formatClock(0) + " / " + formatClock(0))
	p.summary = widget.NewLabel(summarize(timeline.New()))
	p.progress = widget.NewProgressBar()
	p.progress.Hide()

	p.exportBt = widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), p.runExport)
	if p.opts.Export == nil {
		p.exportBt.Hide()
	}
	p.cancelBt = widget.NewButtonWithIcon("", theme.CancelIcon(), p.job.Cancel)
	p.cancelBt.Hide()

	transport := container.NewHBox(rewind, p.play, p.clock, widget.NewSeparator(), undo, redo, importBt, p.exportBt)
	bottom := container.NewVBox(
		p.slider,
		container.NewBorder(nil, nil, transport, container.NewGridWrap(fyne.NewSize(120, 36), volume)),
		p.summary,
		container.NewBorder(nil, nil, nil, p.cancelBt, p.progress),
	)
	p.win.SetContent(container.NewBorder(nil, bottom, nil, nil, p.picture))

	p.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeySpace:
			p.async("toggle", p.sess.Toggle)
		case fyne.KeyLeft:
			p.nudge(-1)
		case fyne.KeyRight:
			p.nudge(1)
		}
	})
}

// Run shows the window and blocks until it is closed or ctx is done. A
// running export is cancelled and waited for before Run returns, so the
// session can release its media afterwards.
func (p *Preview) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.win.SetOnClosed(func() {
		p.job.Cancel()
		cancel()
	})

	go func() {
		<-ctx.Done()
		p.job.Cancel()
		fyne.Do(p.app.Quit)
	}()

	p.win.ShowAndRun()
	p.job.Cancel()
	p.job.Wait()
}

// async runs a session command off the UI thread and reports failures
func (p *Preview) async(name string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil && !apperr.Cancelled(err) {
			p.logger.Warn().Err(err).Str("command", name).Msg("command failed")
			p.showError(err)
		}
	}()
}

func (p *Preview) nudge(seconds float64) {
	p.async("seek", func(ctx context.Context) error {
		st, err := p.sess.Status(ctx)
		if err != nil {
			return err
		}
		return p.sess.Seek(ctx, st.CurrentTime+seconds)
	})
}

func (p *Preview) showError(err error) {
	msg := apperr.Message(err)
	if msg == "" {
		return
	}
	fyne.Do(func() {
		dialog.ShowError(fmt.Errorf("%s", msg), p.win)
	})
}

func (p *Preview) showImport() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			p.showError(err)
			return
		}
		if rc == nil {
			return
		}
		path := rc.URI().Path()
		_ = rc.Close()
		p.async("import", func(ctx context.Context) error { return p.importAndAppend(ctx, path) })
	}, p.win)
	fd.SetFilter(storage.NewExtensionFileFilter(media.SupportedExtensions()))
	fd.Show()
}

// importAndAppend ingests a file and places it at the end of the first
// unlocked track that accepts it
func (p *Preview) importAndAppend(ctx context.Context, path string) error {
	assets, err := p.sess.Import(ctx, path)
	if err != nil {
		return err
	}
	return p.sess.Do(ctx, func(env *studio.Env) error {
		for _, a := range assets {
			trackID, at, ok := appendTarget(env.Editor.State(), a.Kind)
			if !ok {
				return fmt.Errorf("no unlocked %s track", a.Kind)
			}
			if _, err := env.Editor.Place(trackID, []string{a.ID}, at); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Preview) runExport() {
	ctx, ok := p.job.Start(context.Background())
	if !ok {
		return
	}
	p.exportBt.Disable()
	p.progress.SetValue(0)
	p.progress.Show()
	p.cancelBt.Show()

	go func() {
		out, err := p.export(ctx)
		p.job.Finish()
		fyne.Do(func() {
			p.exportBt.Enable()
			p.progress.Hide()
			p.cancelBt.Hide()
			if apperr.Cancelled(err) {
				p.logger.Info().Msg("export cancelled")
				return
			}
			if err != nil {
				if msg := apperr.Message(err); msg != "" {
					dialog.ShowError(fmt.Errorf("%s", msg), p.win)
				}
				return
			}
			dialog.ShowInformation("Export finished", "Saved to "+out, p.win)
		})
	}()
}

func (p *Preview) export(ctx context.Context) (string, error) {
	snap, err := p.sess.ExportSnapshot(ctx)
	if err != nil {
		return "", err
	}
	out, err := p.opts.Export(ctx, snap, func(pr export.Progress) {
		fyne.Do(func() { p.progress.SetValue(pr.Percent / 100) })
	})
	if err != nil && !apperr.Cancelled(err) {
		p.logger.Error().Err(err).Msg("export failed")
	}
	return out, err
}

// exportJob tracks the one export the window may run at a time
type exportJob struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start returns the context for a new export, or false while one is running
func (j *exportJob) Start(parent context.Context) (context.Context, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	j.wg.Add(1)
	return ctx, true
}

// Finish marks the running export as done
func (j *exportJob) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return
	}
	j.cancel()
	j.cancel = nil
	j.wg.Done()
}

// Cancel stops the running export, if any
func (j *exportJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
	}
}

// Wait blocks until the running export has finished
func (j *exportJob) Wait() { j.wg.Wait() }

// appendTarget picks the first unlocked track accepting kind and returns
// its end time
func appendTarget(state timeline.State, kind media.Kind) (string, float64, bool) {
	for _, track := range state.Tracks {
		if track.Locked || !track.Kind.Accepts(kind) {
			continue
		}
		end := 0.0
		for _, c := range track.Clips {
			end = math.Max(end, c.EndTime())
		}
		return track.ID, end, true
	}
	return "", 0, false
}

// formatClock renders seconds as m:ss.t
func formatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int(math.Floor(seconds*10 + 1e-6))
	return fmt.Sprintf("%d:%02d.%d", tenths/600, tenths/10%60, tenths%10)
}

func summarize(state timeline.State) string {
	var parts []string
	for _, track := range state.Tracks {
		label := track.Name
		if label == "" {
			label = track.ID
		}
		flags := ""
		if track.Muted {
			flags += " muted"
		}
		if track.Locked {
			flags += " locked"
		}
		parts = append(parts, fmt.Sprintf("%s: %d%s", label, len(track.Clips), flags))
	}
	return fmt.Sprintf("%s  |  total %s", strings.Join(parts, ", "), formatClock(state.TotalDuration))
}
