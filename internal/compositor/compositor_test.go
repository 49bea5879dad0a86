package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestFitRect(t *testing.T) {
	tests := []struct {
		name               string
		srcW, srcH, dW, dH int
		want               image.Rectangle
	}{
		{"same aspect", 1280, 720, 1920, 1080, image.Rect(0, 0, 1920, 1080)},
		{"pillarbox portrait into landscape", 1080, 1920, 1920, 1080, image.Rect(656, 0, 1264, 1080)},
		{"letterbox landscape into portrait", 1920, 1080, 1080, 1920, image.Rect(0, 656, 1080, 1264)},
		{"square into landscape", 500, 500, 1920, 1080, image.Rect(420, 0, 1500, 1080)},
		{"degenerate", 0, 10, 100, 100, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitRect(tt.srcW, tt.srcH, tt.dW, tt.dH)
			if got != tt.want {
				t.Errorf("FitRect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDrawLetterboxedMattes(t *testing.T) {
	bg := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	s := NewSurface(Preset{Width: 200, Height: 100}, bg)

	src := image.NewRGBA(image.Rect(0, 0, 50, 50))
	red := color.RGBA{R: 255, A: 255}
	draw.Draw(src, src.Bounds(), image.NewUniform(red), image.Point{}, draw.Src)

	s.DrawLetterboxed(src)
	img := s.Image()

	if got := img.RGBAAt(10, 50); got != bg {
		t.Errorf("left matte = %v, want %v", got, bg)
	}
	if got := img.RGBAAt(190, 50); got != bg {
		t.Errorf("right matte = %v, want %v", got, bg)
	}
	if got := img.RGBAAt(100, 50); got != red {
		t.Errorf("center = %v, want %v", got, red)
	}
}

func TestClear(t *testing.T) {
	bg := color.RGBA{A: 255}
	s := NewSurface(Preset{Width: 4, Height: 4}, bg)
	s.Image().Set(1, 1, color.RGBA{G: 255, A: 255})
	s.Clear()
	if got := s.Image().RGBAAt(1, 1); got != bg {
		t.Errorf("pixel after Clear = %v", got)
	}
}

func TestPresetByName(t *testing.T) {
	for _, name := range []string{"16:9", "9:16", "1:1"} {
		if _, err := PresetByName(name); err != nil {
			t.Errorf("PresetByName(%q): %v", name, err)
		}
	}
	if p, _ := PresetByName("9:16"); p.Width != 1080 || p.Height != 1920 {
		t.Errorf("9:16 = %dx%d", p.Width, p.Height)
	}
	if _, err := PresetByName("4:3"); err == nil {
		t.Error("expected error for 4:3")
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	if err != nil || c != (color.RGBA{R: 255, G: 128, A: 255}) {
		t.Errorf("ParseColor = %v, %v", c, err)
	}
	c, _ = ParseColor("#fff")
	if c != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("short form = %v", c)
	}
	if HexColor(color.RGBA{R: 1, G: 2, B: 3}) != "#010203" {
		t.Error("HexColor mismatch")
	}
	if _, err := ParseColor("nope"); err == nil {
		t.Error("expected error")
	}
}

func TestScaled(t *testing.T) {
	p := Landscape.Scaled(0.5)
	if p.Width != 960 || p.Height != 540 {
		t.Errorf("scaled = %dx%d", p.Width, p.Height)
	}
	if Landscape.Scaled(1) != Landscape {
		t.Error("factor 1 should be identity")
	}
}
