package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// Surface is the fixed-size drawing target shared by preview and export.
// It is write-only from the scheduler's point of view.
type Surface struct {
	img        *image.RGBA
	background color.RGBA
}

// NewSurface allocates a surface for a preset
func NewSurface(p Preset, background color.RGBA) *Surface {
	s := &Surface{
		img:        image.NewRGBA(image.Rect(0, 0, p.Width, p.Height)),
		background: background,
	}
	s.Clear()
	return s
}

// Bounds of the surface
func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// Background is the matte color
func (s *Surface) Background() color.RGBA { return s.background }

// Image exposes the pixel buffer. Callers must not hold it across draws.
func (s *Surface) Image() *image.RGBA { return s.img }

// Snapshot returns a copy of the current pixels
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// Clear fills the surface with the background color
func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
}

// DrawLetterboxed scales src to fit the surface keeping its aspect ratio,
// centers it and mattes the rest with the background color.
func (s *Surface) DrawLetterboxed(src image.Image) {
	s.Clear()
	if src == nil {
		return
	}
	sb := src.Bounds()
	dst := FitRect(sb.Dx(), sb.Dy(), s.img.Bounds().Dx(), s.img.Bounds().Dy())
	if dst.Empty() {
		return
	}

	scaled := src
	if dst.Dx() != sb.Dx() || dst.Dy() != sb.Dy() {
		scaled = resize.Resize(uint(dst.Dx()), uint(dst.Dy()), src, resize.Bilinear)
	}
	draw.Draw(s.img, dst, scaled, scaled.Bounds().Min, draw.Over)
}

// FitRect returns the largest rectangle with the source aspect ratio that
// fits a dstW x dstH frame, centered in it.
func FitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	w = max(1, min(w, dstW))
	h = max(1, min(h, dstH))
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
