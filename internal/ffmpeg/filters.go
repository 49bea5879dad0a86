package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Letterbox fits the input inside width x height keeping its aspect ratio
// and pads the remainder with color.
func (fb *FilterBuilder) Letterbox(width, height int, color string) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s", width, height, ffColor(color)),
		"setsar=1",
	)
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, "fps="+formatSeconds(fps))
	return fb
}

// Format adds a pixel format conversion
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// Trim keeps duration seconds of video and restarts timestamps at zero
func (fb *FilterBuilder) Trim(duration float64) *FilterBuilder {
	fb.filters = append(fb.filters, "trim=duration="+formatSeconds(duration), "setpts=PTS-STARTPTS")
	return fb
}

// ATrim keeps [start, start+duration) of audio and restarts timestamps
func (fb *FilterBuilder) ATrim(start, duration float64) *FilterBuilder {
	fb.filters = append(fb.filters,
		fmt.Sprintf("atrim=start=%s:duration=%s", formatSeconds(start), formatSeconds(duration)),
		"asetpts=PTS-STARTPTS",
	)
	return fb
}

// ADelay shifts all audio channels by seconds
func (fb *FilterBuilder) ADelay(seconds float64) *FilterBuilder {
	if seconds <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("adelay=%d:all=1", int64(seconds*1000+0.5)))
	return fb
}

// GatedVolume applies gain inside [start, end) and silence elsewhere
func (fb *FilterBuilder) GatedVolume(gain, start, end float64) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf(
		"volume='if(gte(t,%s)*lt(t,%s),%s,0)':eval=frame",
		formatSeconds(start), formatSeconds(end), formatSeconds(gain),
	))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// Labeled wraps the chain with input and output pad labels, e.g. "[0:v]...[v0]".
// An empty chain becomes a video passthrough.
func (fb *FilterBuilder) Labeled(in, out string) string {
	chain := fb.Build()
	if chain == "" {
		chain = "null"
	}
	return fmt.Sprintf("[%s]%s[%s]", in, chain, out)
}

// formatSeconds prints a float without trailing zeros
func formatSeconds(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ffColor converts #rrggbb to ffmpeg's 0xrrggbb form
func ffColor(c string) string {
	if strings.HasPrefix(c, "#") {
		return "0x" + c[1:]
	}
	if c == "" {
		return "black"
	}
	return c
}
