package timeline

import "sort"

// ActiveClip returns the clip of track whose [start, end) contains t.
// When clips overlap, the first one in list order wins; the list is sorted by
// start so the earliest-starting clip is drawn. Muted tracks have no active
// clip.
//
// Preview, frame capture and the render service all resolve through this.
func ActiveClip(track Track, t float64) (Clip, bool) {
	if track.Muted {
		return Clip{}, false
	}
	for _, c := range track.Clips {
		if c.Contains(t) {
			return c, true
		}
	}
	return Clip{}, false
}

// ActiveIn resolves across several tracks of one kind. Tracks are layered in
// order: the first track with an active clip wins.
func ActiveIn(tracks []Track, t float64) (Clip, bool) {
	for _, tr := range tracks {
		if c, ok := ActiveClip(tr, t); ok {
			return c, true
		}
	}
	return Clip{}, false
}

// Segment is a span over which ActiveIn returns the same clip.
// A gap has an empty ClipID.
type Segment struct {
	ClipID      string  `json:"clipId,omitempty"`
	MediaID     string  `json:"mediaId,omitempty"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	SourceStart float64 `json:"sourceStart"`
}

// Duration of the segment
func (s Segment) Duration() float64 { return s.End - s.Start }

// Gap reports whether nothing is active during the segment
func (s Segment) Gap() bool { return s.ClipID == "" }

// Segments splits [0, total) into consecutive spans with a constant active
// clip. Overlapping clips are cut exactly where ActiveIn switches, so a
// renderer walking the segments shows what preview shows.
func Segments(tracks []Track, total float64) []Segment {
	if total <= 0 {
		return nil
	}

	bounds := []float64{0, total}
	for _, track := range tracks {
		if track.Muted {
			continue
		}
		for _, c := range track.Clips {
			if c.StartTime > 0 && c.StartTime < total {
				bounds = append(bounds, c.StartTime)
			}
			if end := c.EndTime(); end > 0 && end < total {
				bounds = append(bounds, end)
			}
		}
	}
	sort.Float64s(bounds)

	var out []Segment
	for i := 0; i+1 < len(bounds); i++ {
		a, b := bounds[i], bounds[i+1]
		if b <= a {
			continue
		}
		seg := Segment{Start: a, End: b}
		if c, ok := ActiveIn(tracks, a); ok {
			seg.ClipID = c.ID
			seg.MediaID = c.MediaID
			seg.SourceStart = c.SourceTime(a)
		}
		if n := len(out); n > 0 && out[n-1].ClipID == seg.ClipID {
			out[n-1].End = b
			continue
		}
		out = append(out, seg)
	}
	return out
}
