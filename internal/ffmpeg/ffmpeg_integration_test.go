package ffmpeg_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/rs/zerolog"
)

// local helper (cannot use unexported ones from ffmpeg package)
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_RenderTimeline(t *testing.T) {
	skipIfNoFFmpeg(t)

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).With().Str("test", "integration_render_timeline").Logger()

	e, err := ffmpeg.New(logger, "", 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	dir := t.TempDir()
	still := filepath.Join(dir, "still.png")
	writePNG(t, still, 40, 30, color.RGBA{R: 200, A: 255})

	tone := filepath.Join(dir, "tone.wav")
	gen := exec.Command("ffmpeg", "-f", "lavfi", "-i", "sine=frequency=440:duration=3", "-y", tone)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate tone: %v\n%s", err, out)
	}

	job := ffmpeg.TimelineJob{
		Output:     filepath.Join(dir, "out.mp4"),
		Width:      160,
		Height:     90,
		FPS:        15,
		Background: "#000000",
		Quality:    ffmpeg.QualityDraft,
		Duration:   3,
		Segments: []ffmpeg.VideoSegment{
			{Kind: ffmpeg.SegmentGap, Duration: 1},
			{Kind: ffmpeg.SegmentImage, Path: still, Duration: 2},
		},
		Voices: []ffmpeg.Voice{{Path: tone, Start: 0.5, Duration: 2, Gain: 1}},
	}

	var last float64
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := e.RenderTimeline(ctx, job, func(p *ffmpeg.Progress) {
		last = p.Percentage
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	info, err := e.ProbeVideo(ctx, res.Path)
	if err != nil {
		t.Fatalf("probe output: %v", err)
	}
	if info.Width != 160 || info.Height != 90 {
		t.Errorf("output size = %dx%d", info.Width, info.Height)
	}
	if !info.HasAudio {
		t.Error("output has no audio track")
	}
	if d := info.Duration.Seconds(); d < 2.9 || d > 3.2 {
		t.Errorf("output duration = %.2fs, want ~3s", d)
	}
	t.Logf("rendered %s (%d bytes), last progress %.0f%%", res.Path, res.Size, last)
}

func TestIntegration_RenderCancelled(t *testing.T) {
	skipIfNoFFmpeg(t)

	e, err := ffmpeg.New(zerolog.Nop(), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.RenderTimeline(ctx, ffmpeg.TimelineJob{
		Output:   filepath.Join(t.TempDir(), "never.mp4"),
		Width:    64,
		Height:   64,
		FPS:      30,
		Duration: 60,
	}, nil)
	if err == nil {
		t.Fatal("expected cancelled render to fail")
	}
}
