package editor

import (
	"fmt"
	"math"

	"github.com/kikiluvv/slopstudio/internal/timeline"
)

type dragKind int

const (
	dragMove dragKind = iota
	dragResize
)

// drag is an in-flight pointer gesture. Overlaps are tolerated until the
// gesture ends.
type drag struct {
	kind   dragKind
	clipID string
	origin timeline.Clip
	before timeline.State
	dx     float64
}

func (e *Editor) beginDrag(kind dragKind, clipID string) error {
	if e.drag != nil {
		return ErrDragActive
	}
	clip, track, ok := e.state.FindClip(clipID)
	if !ok {
		return fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
	}
	if track.Locked {
		return fmt.Errorf("%w: %s", timeline.ErrTrackLocked, track.ID)
	}
	e.drag = &drag{kind: kind, clipID: clipID, origin: clip, before: e.state}
	e.selection = Selection{ClipID: clipID, TrackID: track.ID}
	return nil
}

// BeginMove starts dragging a clip body
func (e *Editor) BeginMove(clipID string) error {
	return e.beginDrag(dragMove, clipID)
}

// BeginResize starts dragging a clip's right edge
func (e *Editor) BeginResize(clipID string) error {
	return e.beginDrag(dragResize, clipID)
}

// Dragging reports whether a gesture is in progress
func (e *Editor) Dragging() bool { return e.drag != nil }

// DragBy moves the pointer by dx pixels. Deltas accumulate from where the
// gesture began.
func (e *Editor) DragBy(dx float64) error {
	d := e.drag
	if d == nil {
		return ErrNoDrag
	}
	d.dx += dx
	dt := e.PixelsToTime(d.dx)

	next, err := timeline.UpdateClip(e.state, d.clipID, func(c *timeline.Clip) {
		switch d.kind {
		case dragMove:
			c.StartTime = math.Max(d.origin.StartTime+dt, 0)
		case dragResize:
			c.Duration = math.Max(d.origin.Duration+dt, timeline.MinClipDuration)
			c.TrimEnd = c.TrimStart + c.Duration
		}
	})
	if err != nil {
		return err
	}
	e.set(next)
	return nil
}

// EndDrag commits the gesture as one undo step. A moved clip whose start
// landed inside another clip is pushed to that clip's end.
func (e *Editor) EndDrag() error {
	d := e.drag
	if d == nil {
		return ErrNoDrag
	}
	e.drag = nil

	next := e.state
	if d.kind == dragMove {
		clip, track, ok := next.FindClip(d.clipID)
		if !ok {
			e.set(d.before)
			return fmt.Errorf("%w: %s", timeline.ErrClipNotFound, d.clipID)
		}
		if at := timeline.ResolveStart(track, clip.StartTime, clip.ID); at != clip.StartTime {
			var err error
			next, err = timeline.UpdateClip(next, d.clipID, func(c *timeline.Clip) { c.StartTime = at })
			if err != nil {
				e.set(d.before)
				return err
			}
			e.logger.Debug().Str("clip", d.clipID).Float64("from", clip.StartTime).Float64("to", at).Msg("drag overlap resolved")
		}
	}
	e.commit(d.before, next)
	return nil
}

// CancelDrag restores the timeline to where the gesture began
func (e *Editor) CancelDrag() {
	if e.drag == nil {
		return
	}
	before := e.drag.before
	e.drag = nil
	e.set(e.keepView(before))
}
