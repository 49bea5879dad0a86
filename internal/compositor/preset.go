package compositor

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Preset is an output frame size
type Preset struct {
	Name   string
	Width  int
	Height int
}

var (
	Landscape = Preset{Name: "16:9", Width: 1920, Height: 1080}
	Portrait  = Preset{Name: "9:16", Width: 1080, Height: 1920}
	Square    = Preset{Name: "1:1", Width: 1080, Height: 1080}
)

// Presets lists the supported output sizes
var Presets = []Preset{Landscape, Portrait, Square}

// PresetByName resolves "16:9", "9:16" or "1:1"
func PresetByName(name string) (Preset, error) {
	for _, p := range Presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown aspect preset %q", name)
}

// Scaled returns the preset shrunk by factor (at least 2x2, even sizes)
func (p Preset) Scaled(factor float64) Preset {
	if factor <= 0 || factor >= 1 {
		return p
	}
	w := int(float64(p.Width)*factor) &^ 1
	h := int(float64(p.Height)*factor) &^ 1
	return Preset{Name: p.Name, Width: max(w, 2), Height: max(h, 2)}
}

// ParseColor parses #RGB or #RRGGBB
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// HexColor formats c as #RRGGBB
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
