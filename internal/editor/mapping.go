package editor

import "math"

const (
	DefaultPixelsPerSecond = 50.0
	MinZoom                = 0.25
	MaxZoom                = 2.0
)

// ClampZoom bounds zoom to [MinZoom, MaxZoom]. Non-positive or NaN values
// fall back to 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return 1
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// TimeToPixels maps seconds to timeline pixels
func TimeToPixels(t, pixelsPerSecond, zoom float64) float64 {
	return t * pixelsPerSecond * zoom
}

// PixelsToTime is the exact inverse of TimeToPixels
func PixelsToTime(px, pixelsPerSecond, zoom float64) float64 {
	return px / (pixelsPerSecond * zoom)
}
