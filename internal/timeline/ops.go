package timeline

import (
	"fmt"
	"math"
	"sort"
)

// rebuild copies s, lets fn edit the copy, then restores ordering and the
// total duration cache.
func rebuild(s State, fn func(*State) error) (State, error) {
	next := s.Clone()
	if err := fn(&next); err != nil {
		return s, err
	}
	for i := range next.Tracks {
		sortClips(next.Tracks[i].Clips)
	}
	next.TotalDuration = ComputeTotalDuration(next.Tracks)
	return next, nil
}

func sortClips(clips []Clip) {
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].StartTime < clips[j].StartTime
	})
}

func trackIndex(s *State, id string) (int, error) {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
}

func clipIndex(s *State, id string) (int, int, error) {
	for ti := range s.Tracks {
		for ci := range s.Tracks[ti].Clips {
			if s.Tracks[ti].Clips[ci].ID == id {
				return ti, ci, nil
			}
		}
	}
	return -1, -1, fmt.Errorf("%w: %s", ErrClipNotFound, id)
}

// AddTrack appends an empty track
func AddTrack(s State, track Track) (State, error) {
	return rebuild(s, func(next *State) error {
		if _, err := trackIndex(next, track.ID); err == nil {
			return fmt.Errorf("track %s already exists", track.ID)
		}
		track.Clips = append([]Clip(nil), track.Clips...)
		next.Tracks = append(next.Tracks, track)
		return nil
	})
}

// InsertClips adds clips to a track as given. Placement rules live in
// ResolveStart; this only enforces ownership and the duration floor.
func InsertClips(s State, trackID string, clips []Clip) (State, error) {
	return rebuild(s, func(next *State) error {
		ti, err := trackIndex(next, trackID)
		if err != nil {
			return err
		}
		if next.Tracks[ti].Locked {
			return fmt.Errorf("%w: %s", ErrTrackLocked, trackID)
		}
		for _, c := range clips {
			c.TrackID = trackID
			c.Duration = math.Max(c.Duration, MinClipDuration)
			c.TrimStart = math.Max(c.TrimStart, 0)
			next.Tracks[ti].Clips = append(next.Tracks[ti].Clips, c)
		}
		return nil
	})
}

// UpdateClip applies fn to a copy of the clip. The clip may not change track.
func UpdateClip(s State, clipID string, fn func(*Clip)) (State, error) {
	return rebuild(s, func(next *State) error {
		ti, ci, err := clipIndex(next, clipID)
		if err != nil {
			return err
		}
		track := &next.Tracks[ti]
		if track.Locked {
			return fmt.Errorf("%w: %s", ErrTrackLocked, track.ID)
		}
		c := track.Clips[ci]
		fn(&c)
		c.ID = clipID
		c.TrackID = track.ID
		c.StartTime = math.Max(c.StartTime, 0)
		c.Duration = math.Max(c.Duration, MinClipDuration)
		c.TrimStart = math.Max(c.TrimStart, 0)
		track.Clips[ci] = c
		return nil
	})
}

// RemoveClip deletes a clip and returns it
func RemoveClip(s State, clipID string) (State, Clip, error) {
	var removed Clip
	next, err := rebuild(s, func(next *State) error {
		ti, ci, err := clipIndex(next, clipID)
		if err != nil {
			return err
		}
		track := &next.Tracks[ti]
		if track.Locked {
			return fmt.Errorf("%w: %s", ErrTrackLocked, track.ID)
		}
		removed = track.Clips[ci]
		track.Clips = append(track.Clips[:ci:ci], track.Clips[ci+1:]...)
		return nil
	})
	return next, removed, err
}

// RemoveClipsByMedia deletes every clip referencing mediaID, on every track.
// Asset removal cascades through here, so lock flags are ignored.
func RemoveClipsByMedia(s State, mediaID string) (State, int) {
	removed := 0
	next, _ := rebuild(s, func(next *State) error {
		for ti := range next.Tracks {
			kept := next.Tracks[ti].Clips[:0]
			for _, c := range next.Tracks[ti].Clips {
				if c.MediaID == mediaID {
					removed++
					continue
				}
				kept = append(kept, c)
			}
			next.Tracks[ti].Clips = kept
		}
		return nil
	})
	return next, removed
}

// SetMuted toggles a track's muted flag
func SetMuted(s State, trackID string, muted bool) (State, error) {
	return rebuild(s, func(next *State) error {
		ti, err := trackIndex(next, trackID)
		if err != nil {
			return err
		}
		next.Tracks[ti].Muted = muted
		return nil
	})
}

// SetLocked toggles a track's locked flag
func SetLocked(s State, trackID string, locked bool) (State, error) {
	return rebuild(s, func(next *State) error {
		ti, err := trackIndex(next, trackID)
		if err != nil {
			return err
		}
		next.Tracks[ti].Locked = locked
		return nil
	})
}

// WithView returns s with a new zoom and scroll offset
func WithView(s State, zoom, scroll float64) State {
	next := s.Clone()
	next.Zoom = zoom
	next.ScrollPosition = math.Max(scroll, 0)
	return next
}

// ResolveStart pushes start forward to the end of any clip on the track whose
// span contains it, repeating until no clip does. ignoreID excludes a clip
// from the check (the one being moved).
func ResolveStart(track Track, start float64, ignoreID string) float64 {
	start = math.Max(start, 0)
	for {
		moved := false
		for _, c := range track.Clips {
			if c.ID == ignoreID {
				continue
			}
			if c.Contains(start) {
				start = c.EndTime()
				moved = true
			}
		}
		if !moved {
			return start
		}
	}
}
