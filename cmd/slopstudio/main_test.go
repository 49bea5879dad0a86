package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/config"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/script"
	"github.com/kikiluvv/slopstudio/internal/studio"
	"github.com/rs/zerolog"
)

func TestExportOptionsLayering(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Export.OutputDir = t.TempDir()
	w := &workspace{cfg: cfg}

	opts, err := w.exportOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Preset != compositor.Landscape || filepath.Dir(opts.Output) != cfg.Export.OutputDir {
		t.Errorf("defaults = %+v", opts)
	}
	if !strings.HasPrefix(filepath.Base(opts.Output), "slopstudio-") {
		t.Errorf("default name = %q", opts.Output)
	}

	s, err := script.Parse([]byte("output: {preset: \"9:16\", path: clip.mp4}\nsteps:\n  - undo: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts, err = w.exportOptions(s)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Preset != compositor.Portrait || opts.Output != "clip.mp4" {
		t.Errorf("script overrides = %+v", opts)
	}
}

func TestRemoteURLFlagWins(t *testing.T) {
	cfg, _ := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	cfg.Export.RemoteURL = "http://config"
	w := &workspace{cfg: cfg}
	if w.remoteURL("") != "http://config" || w.remoteURL("http://flag") != "http://flag" {
		t.Error("remote URL precedence wrong")
	}
}

func TestProgressLoggerThrottles(t *testing.T) {
	var buf bytes.Buffer
	progress := progressLogger(zerolog.New(&buf))

	for i := 0; i <= 100; i++ {
		progress(export.Progress{Stage: export.StageFrame, Frame: i, Frames: 100, Percent: float64(i)})
	}
	progress(export.Progress{Stage: export.StageNormalize, Percent: 0})
	progress(export.Progress{Stage: export.StageNormalize, Percent: 3})

	lines := strings.Count(buf.String(), "\n")
	// 0,10,...,100 for frames plus the first normalize report
	if lines != 12 {
		t.Errorf("logged %d lines:\n%s", lines, buf.String())
	}
}

func TestWindowExportUsesPreviewVolume(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cut.mp4")
	if err := os.WriteFile(out, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := export.Options{Preset: compositor.Square, Volume: 1, Output: out}

	run := windowExport(opts, studio.ExportSnapshot{Volume: 0.2})
	if run.Volume != 0.2 {
		t.Errorf("volume = %v, want the preview volume 0.2", run.Volume)
	}
	if run.Output == out || filepath.Dir(run.Output) != filepath.Dir(out) {
		t.Errorf("output = %q, want a fresh name next to %q", run.Output, out)
	}
	if opts.Volume != 1 || run.Preset != compositor.Square {
		t.Errorf("base options changed: %+v", opts)
	}
}
