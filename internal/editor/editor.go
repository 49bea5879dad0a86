package editor

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

var (
	ErrNoDrag     = errors.New("no drag in progress")
	ErrDragActive = errors.New("drag already in progress")
)

// Options configures an Editor
type Options struct {
	PixelsPerSecond      float64
	DefaultImageDuration float64
	HistoryLimit         int
}

// DefaultOptions returns the standard editor settings
func DefaultOptions() Options {
	return Options{
		PixelsPerSecond:      DefaultPixelsPerSecond,
		DefaultImageDuration: 5,
		HistoryLimit:         100,
	}
}

// DropEvent is a set of assets released over a track at a pixel offset
// relative to the visible left edge of the timeline.
type DropEvent struct {
	AssetIDs []string
	TrackID  string
	PixelX   float64
}

// Selection is UI focus only
type Selection struct {
	ClipID  string
	TrackID string
}

// Editor turns gestures into timeline mutations. It holds the current
// snapshot plus undo history and is not safe for concurrent use; the studio
// session owns it on a single goroutine.
type Editor struct {
	logger zerolog.Logger
	assets media.Lookup
	opts   Options

	state     timeline.State
	selection Selection
	undo      []timeline.State
	redo      []timeline.State
	drag      *drag
	listeners []func(timeline.State)
}

// New creates an editor over an empty default timeline
func New(logger zerolog.Logger, assets media.Lookup, opts Options) *Editor {
	if opts.PixelsPerSecond <= 0 {
		opts.PixelsPerSecond = DefaultPixelsPerSecond
	}
	if opts.DefaultImageDuration <= 0 {
		opts.DefaultImageDuration = 5
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	return &Editor{
		logger: logger.With().Str("component", "editor").Logger(),
		assets: assets,
		opts:   opts,
		state:  timeline.New(),
	}
}

// State returns the current snapshot
func (e *Editor) State() timeline.State { return e.state }

// OnChange registers a listener called with every new snapshot
func (e *Editor) OnChange(fn func(timeline.State)) {
	e.listeners = append(e.listeners, fn)
}

// set replaces the snapshot without touching history
func (e *Editor) set(next timeline.State) {
	e.state = next
	for _, fn := range e.listeners {
		fn(next)
	}
}

// commit records prev in the undo history and publishes next
func (e *Editor) commit(prev, next timeline.State) {
	e.undo = append(e.undo, prev)
	if len(e.undo) > e.opts.HistoryLimit {
		e.undo = e.undo[len(e.undo)-e.opts.HistoryLimit:]
	}
	e.redo = nil
	e.set(next)
}

// apply commits next unless a drag is in progress
func (e *Editor) apply(next timeline.State, err error) error {
	if e.drag != nil {
		return ErrDragActive
	}
	if err != nil {
		return err
	}
	e.commit(e.state, next)
	return nil
}

// TimeToPixels maps seconds to pixels at the current zoom
func (e *Editor) TimeToPixels(t float64) float64 {
	return TimeToPixels(t, e.opts.PixelsPerSecond, e.state.Zoom)
}

// PixelsToTime maps pixels to seconds at the current zoom
func (e *Editor) PixelsToTime(px float64) float64 {
	return PixelsToTime(px, e.opts.PixelsPerSecond, e.state.Zoom)
}

// SetZoom changes zoom, clamped to the supported range. View changes are not
// recorded in history.
func (e *Editor) SetZoom(z float64) {
	e.set(timeline.WithView(e.state, ClampZoom(z), e.state.ScrollPosition))
}

// SetScroll sets the horizontal scroll offset in pixels
func (e *Editor) SetScroll(px float64) {
	e.set(timeline.WithView(e.state, e.state.Zoom, px))
}

func (e *Editor) clipDuration(a *media.Asset) float64 {
	d := a.NaturalDuration
	if a.Kind == media.KindImage || d <= 0 {
		d = e.opts.DefaultImageDuration
	}
	return math.Max(d, timeline.MinClipDuration)
}

// Place adds assets to a track one after another starting at start.
// Assets the track cannot hold are skipped without error. Each start is
// pushed past any clip already covering it.
func (e *Editor) Place(trackID string, assetIDs []string, start float64) ([]timeline.Clip, error) {
	if e.drag != nil {
		return nil, ErrDragActive
	}
	track, ok := e.state.Track(trackID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", timeline.ErrTrackNotFound, trackID)
	}
	if track.Locked {
		return nil, fmt.Errorf("%w: %s", timeline.ErrTrackLocked, trackID)
	}

	cursor := math.Max(start, 0)
	var placed []timeline.Clip
	for _, id := range assetIDs {
		asset, ok := e.assets.Get(id)
		if !ok {
			e.logger.Warn().Str("asset", id).Msg("placement skipped: unknown asset")
			continue
		}
		if !track.Kind.Accepts(asset.Kind) {
			e.logger.Debug().
				Str("asset", id).
				Str("kind", string(asset.Kind)).
				Str("track", trackID).
				Msg("placement skipped: kind mismatch")
			continue
		}

		at := timeline.ResolveStart(track, cursor, "")
		d := e.clipDuration(asset)
		clip := timeline.Clip{
			ID:        uuid.NewString(),
			MediaID:   asset.ID,
			TrackID:   trackID,
			StartTime: at,
			Duration:  d,
			TrimEnd:   d,
		}
		placed = append(placed, clip)
		track.Clips = append(track.Clips, clip)
		cursor = clip.EndTime()
	}
	if len(placed) == 0 {
		return nil, nil
	}

	if err := e.apply(timeline.InsertClips(e.state, trackID, placed)); err != nil {
		return nil, err
	}
	e.logger.Debug().Str("track", trackID).Int("clips", len(placed)).Float64("total", e.state.TotalDuration).Msg("clips placed")
	return placed, nil
}

// Drop converts a drop position to a time using the current zoom and
// scroll offset, then places the assets.
func (e *Editor) Drop(ev DropEvent) ([]timeline.Clip, error) {
	at := e.PixelsToTime(ev.PixelX + e.state.ScrollPosition)
	return e.Place(ev.TrackID, ev.AssetIDs, at)
}

// Move sets a clip's start time, clamped at zero. Overlaps are allowed.
func (e *Editor) Move(clipID string, start float64) error {
	return e.apply(timeline.UpdateClip(e.state, clipID, func(c *timeline.Clip) {
		c.StartTime = math.Max(start, 0)
	}))
}

// Resize sets a clip's duration, floored at MinClipDuration
func (e *Editor) Resize(clipID string, duration float64) error {
	return e.apply(timeline.UpdateClip(e.state, clipID, func(c *timeline.Clip) {
		c.Duration = math.Max(duration, timeline.MinClipDuration)
		c.TrimEnd = c.TrimStart + c.Duration
	}))
}

// Trim sets the in-point into the source media
func (e *Editor) Trim(clipID string, trimStart float64) error {
	return e.apply(timeline.UpdateClip(e.state, clipID, func(c *timeline.Clip) {
		c.TrimStart = math.Max(trimStart, 0)
		c.TrimEnd = c.TrimStart + c.Duration
	}))
}

// Delete removes a clip
func (e *Editor) Delete(clipID string) error {
	if e.drag != nil {
		return ErrDragActive
	}
	next, _, err := timeline.RemoveClip(e.state, clipID)
	if err != nil {
		return err
	}
	if e.selection.ClipID == clipID {
		e.selection.ClipID = ""
	}
	e.commit(e.state, next)
	return nil
}

// Duplicate copies a clip to the end of the original on the same track
func (e *Editor) Duplicate(clipID string) (timeline.Clip, error) {
	orig, track, ok := e.state.FindClip(clipID)
	if !ok {
		return timeline.Clip{}, fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
	}
	dup := orig
	dup.ID = uuid.NewString()
	dup.StartTime = timeline.ResolveStart(track, orig.EndTime(), "")

	if err := e.apply(timeline.InsertClips(e.state, track.ID, []timeline.Clip{dup})); err != nil {
		return timeline.Clip{}, err
	}
	return dup, nil
}

// RemoveMedia deletes every clip that references an asset. The caller
// removes the asset from the registry. A drag in progress is cancelled first.
func (e *Editor) RemoveMedia(mediaID string) int {
	if e.drag != nil {
		e.logger.Debug().Str("clip", e.drag.clipID).Msg("drag cancelled by media removal")
		e.CancelDrag()
	}
	next, n := timeline.RemoveClipsByMedia(e.state, mediaID)
	if n == 0 {
		return 0
	}
	if _, _, ok := next.FindClip(e.selection.ClipID); !ok {
		e.selection.ClipID = ""
	}
	e.commit(e.state, next)
	e.logger.Debug().Str("asset", mediaID).Int("clips", n).Msg("clips removed with asset")
	return n
}

// AddTrack appends a new empty track
func (e *Editor) AddTrack(kind timeline.TrackKind, name string) (timeline.Track, error) {
	if kind != timeline.TrackVideo && kind != timeline.TrackAudio {
		return timeline.Track{}, fmt.Errorf("unknown track kind %q", kind)
	}
	track := timeline.Track{
		ID:   fmt.Sprintf("%s-%d", kind, len(e.state.TracksOf(kind))+1),
		Kind: kind,
		Name: name,
	}
	if err := e.apply(timeline.AddTrack(e.state, track)); err != nil {
		return timeline.Track{}, err
	}
	return track, nil
}

// SetMuted toggles a track's mute flag
func (e *Editor) SetMuted(trackID string, muted bool) error {
	return e.apply(timeline.SetMuted(e.state, trackID, muted))
}

// SetLocked toggles a track's lock flag
func (e *Editor) SetLocked(trackID string, locked bool) error {
	return e.apply(timeline.SetLocked(e.state, trackID, locked))
}

// Select focuses a clip (and its track) or clears focus with an empty id
func (e *Editor) Select(clipID string) error {
	if clipID == "" {
		e.selection = Selection{}
		return nil
	}
	_, track, ok := e.state.FindClip(clipID)
	if !ok {
		return fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
	}
	e.selection = Selection{ClipID: clipID, TrackID: track.ID}
	return nil
}

// Selection returns the focused clip and track
func (e *Editor) Selection() Selection { return e.selection }

// Undo restores the previous snapshot
func (e *Editor) Undo() bool {
	if e.drag != nil || len(e.undo) == 0 {
		return false
	}
	prev := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, e.state)
	e.set(e.keepView(prev))
	return true
}

// Redo re-applies an undone snapshot
func (e *Editor) Redo() bool {
	if e.drag != nil || len(e.redo) == 0 {
		return false
	}
	next := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, e.state)
	e.set(e.keepView(next))
	return true
}

// keepView carries the current zoom and scroll into a restored snapshot;
// view changes are not part of history
func (e *Editor) keepView(s timeline.State) timeline.State {
	return timeline.WithView(s, e.state.Zoom, e.state.ScrollPosition)
}
