package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/kikiluvv/slopstudio/internal/editor"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/studio"
	"github.com/kikiluvv/slopstudio/internal/timeline"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// StepError reports which step failed
type StepError struct {
	Index  int
	Action string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result maps script aliases to the ids they resolved to
type Result struct {
	Assets map[string]string
	Tracks map[string]string
	Clips  map[string]string
	State  timeline.State
}

// Replay imports the script's media into the session and applies the steps
// on the session loop. Media that fails to import aborts the replay.
func (s *Script) Replay(ctx context.Context, sess *studio.Session) (*Result, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, m := range s.Media {
		if !seen[m.Path] {
			seen[m.Path] = true
			paths = append(paths, m.Path)
		}
	}

	imported, err := sess.Import(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("import script media: %w", err)
	}
	byPath := make(map[string]string, len(imported))
	for _, a := range imported {
		byPath[a.Path] = a.ID
	}
	assets := make(map[string]string, len(s.Media))
	for _, m := range s.Media {
		assets[m.ID] = byPath[m.Path]
	}

	var res *Result
	err = sess.Do(ctx, func(env *studio.Env) error {
		var err error
		res, err = s.Apply(env, assets)
		return err
	})
	return res, err
}

// Apply runs the steps against env. assets maps media aliases to registry
// ids. It must run on the session loop.
func (s *Script) Apply(env *studio.Env, assets map[string]string) (*Result, error) {
	r := &replay{
		env:    env,
		assets: assets,
		tracks: make(map[string]string),
		clips:  make(map[string]string),
	}
	for _, ts := range s.Tracks {
		track, err := env.Editor.AddTrack(ts.Kind, ts.Name)
		if err != nil {
			return nil, fmt.Errorf("add track %s: %w", ts.ID, err)
		}
		r.tracks[ts.ID] = track.ID
	}
	for i, step := range s.Steps {
		if err := r.run(step); err != nil {
			return nil, &StepError{Index: i, Action: step.Action(), Err: err}
		}
	}
	return &Result{
		Assets: assets,
		Tracks: r.tracks,
		Clips:  r.clips,
		State:  env.Editor.State(),
	}, nil
}

type replay struct {
	env    *studio.Env
	assets map[string]string
	tracks map[string]string
	clips  map[string]string
}

// track and clip resolve aliases; anything else is taken as a literal id
func (r *replay) track(name string) string {
	if id, ok := r.tracks[name]; ok {
		return id
	}
	return name
}

func (r *replay) clip(name string) string {
	if id, ok := r.clips[name]; ok {
		return id
	}
	return name
}

func (r *replay) media(names []string) []string {
	ids := make([]string, 0, len(names))
	for _, n := range names {
		if id, ok := r.assets[n]; ok && id != "" {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// name binds aliases to placed clips. Skipped assets produce no clip, so
// aliases past the last placed clip stay unbound.
func (r *replay) name(aliases []string, placed []timeline.Clip) {
	for i, alias := range aliases {
		if i >= len(placed) {
			return
		}
		r.clips[alias] = placed[i].ID
	}
}

func (r *replay) run(st Step) error {
	ed := r.env.Editor
	switch {
	case st.Place != nil:
		placed, err := ed.Place(r.track(st.Place.Track), r.media(st.Place.Media), st.Place.At)
		if err != nil {
			return err
		}
		r.name(st.Place.As, placed)
	case st.Drop != nil:
		placed, err := ed.Drop(editor.DropEvent{
			AssetIDs: r.media(st.Drop.Media),
			TrackID:  r.track(st.Drop.Track),
			PixelX:   st.Drop.X,
		})
		if err != nil {
			return err
		}
		r.name(st.Drop.As, placed)
	case st.Move != nil:
		return ed.Move(r.clip(st.Move.Clip), st.Move.To)
	case st.Resize != nil:
		return ed.Resize(r.clip(st.Resize.Clip), st.Resize.Duration)
	case st.Trim != nil:
		return ed.Trim(r.clip(st.Trim.Clip), st.Trim.Start)
	case st.Drag != nil:
		return r.drag(*st.Drag)
	case st.Delete != "":
		return ed.Delete(r.clip(st.Delete))
	case st.Duplicate != nil:
		dup, err := ed.Duplicate(r.clip(st.Duplicate.Clip))
		if err != nil {
			return err
		}
		if st.Duplicate.As != "" {
			r.clips[st.Duplicate.As] = dup.ID
		}
	case st.Mute != nil:
		return ed.SetMuted(r.track(st.Mute.Track), st.Mute.value())
	case st.Lock != nil:
		return ed.SetLocked(r.track(st.Lock.Track), st.Lock.value())
	case st.Zoom != nil:
		ed.SetZoom(*st.Zoom)
	case st.Scroll != nil:
		ed.SetScroll(*st.Scroll)
	case st.Undo:
		if !ed.Undo() {
			return ErrNothingToUndo
		}
	case st.Redo:
		if !ed.Redo() {
			return ErrNothingToRedo
		}
	case st.RemoveMedia != "":
		id := r.media([]string{st.RemoveMedia})[0]
		if _, ok := r.env.Registry.Get(id); !ok {
			return fmt.Errorf("%w: %s", media.ErrAssetNotFound, st.RemoveMedia)
		}
		ed.RemoveMedia(id)
		return r.env.Registry.Remove(id)
	}
	return nil
}

func (r *replay) drag(d Drag) error {
	ed := r.env.Editor
	begin := ed.BeginMove
	if d.Edge == EdgeEnd {
		begin = ed.BeginResize
	}
	if err := begin(r.clip(d.Clip)); err != nil {
		return err
	}
	if err := ed.DragBy(d.DX); err != nil {
		ed.CancelDrag()
		return err
	}
	return ed.EndDrag()
}
