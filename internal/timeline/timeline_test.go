package timeline

import (
	"errors"
	"math"
	"testing"

	"github.com/kikiluvv/slopstudio/internal/media"
)

func maxEnd(s State) float64 {
	m := 0.0
	for _, t := range s.Tracks {
		for _, c := range t.Clips {
			m = math.Max(m, c.StartTime+c.Duration)
		}
	}
	return m
}

func mustInsert(t *testing.T, s State, trackID string, clips ...Clip) State {
	t.Helper()
	next, err := InsertClips(s, trackID, clips)
	if err != nil {
		t.Fatalf("InsertClips: %v", err)
	}
	return next
}

func TestNewHasDefaultTracks(t *testing.T) {
	s := New()
	if len(s.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(s.Tracks))
	}
	if _, ok := s.FirstTrack(TrackVideo); !ok {
		t.Error("missing video track")
	}
	if _, ok := s.FirstTrack(TrackAudio); !ok {
		t.Error("missing audio track")
	}
	if s.TotalDuration != 0 {
		t.Errorf("expected zero duration, got %v", s.TotalDuration)
	}
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		track TrackKind
		kind  media.Kind
		want  bool
	}{
		{TrackVideo, media.KindImage, true},
		{TrackVideo, media.KindVideo, true},
		{TrackVideo, media.KindAudio, false},
		{TrackAudio, media.KindAudio, true},
		{TrackAudio, media.KindImage, false},
		{TrackAudio, media.KindVideo, false},
	}
	for _, tt := range tests {
		if got := tt.track.Accepts(tt.kind); got != tt.want {
			t.Errorf("%s.Accepts(%s) = %v, want %v", tt.track, tt.kind, got, tt.want)
		}
	}
}

func TestTotalDurationInvariant(t *testing.T) {
	s := New()
	s = mustInsert(t, s, DefaultVideoTrackID, Clip{ID: "a", StartTime: 0, Duration: 4})
	s = mustInsert(t, s, DefaultAudioTrackID, Clip{ID: "b", StartTime: 2, Duration: 9})
	s = mustInsert(t, s, DefaultVideoTrackID, Clip{ID: "c", StartTime: 6, Duration: 1})

	steps := []func(State) (State, error){
		func(s State) (State, error) { return UpdateClip(s, "c", func(c *Clip) { c.StartTime = 20 }) },
		func(s State) (State, error) { next, _, err := RemoveClip(s, "c"); return next, err },
		func(s State) (State, error) { return UpdateClip(s, "b", func(c *Clip) { c.Duration = 0.1 }) },
		func(s State) (State, error) { next, _ := RemoveClipsByMedia(s, ""); return next, nil },
	}
	if s.TotalDuration != maxEnd(s) {
		t.Fatalf("total %v != max end %v", s.TotalDuration, maxEnd(s))
	}
	for i, step := range steps {
		var err error
		s, err = step(s)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if s.TotalDuration != maxEnd(s) {
			t.Errorf("step %d: total %v != max end %v", i, s.TotalDuration, maxEnd(s))
		}
	}
	if s.TotalDuration != 0 {
		t.Errorf("expected empty timeline after cascade, got %v", s.TotalDuration)
	}
}

func TestOperationsDoNotMutateInput(t *testing.T) {
	s := mustInsert(t, New(), DefaultVideoTrackID, Clip{ID: "a", StartTime: 1, Duration: 2})
	before := s.Clone()

	if _, err := UpdateClip(s, "a", func(c *Clip) { c.StartTime = 9 }); err != nil {
		t.Fatal(err)
	}
	if _, _, err := RemoveClip(s, "a"); err != nil {
		t.Fatal(err)
	}

	if s.Tracks[0].Clips[0] != before.Tracks[0].Clips[0] || s.TotalDuration != before.TotalDuration {
		t.Error("input state was mutated")
	}
}

func TestClipsStaySorted(t *testing.T) {
	s := mustInsert(t, New(), DefaultVideoTrackID,
		Clip{ID: "late", StartTime: 10, Duration: 1},
		Clip{ID: "early", StartTime: 1, Duration: 1},
	)
	clips := s.Tracks[0].Clips
	if clips[0].ID != "early" || clips[1].ID != "late" {
		t.Fatalf("clips not sorted: %+v", clips)
	}

	s, _ = UpdateClip(s, "early", func(c *Clip) { c.StartTime = 20 })
	if s.Tracks[0].Clips[0].ID != "late" {
		t.Errorf("clips not re-sorted after move: %+v", s.Tracks[0].Clips)
	}
}

func TestDurationFloor(t *testing.T) {
	s := mustInsert(t, New(), DefaultVideoTrackID, Clip{ID: "a", Duration: 0.1})
	if d := s.Tracks[0].Clips[0].Duration; d != MinClipDuration {
		t.Errorf("insert: duration %v, want %v", d, MinClipDuration)
	}
	s, _ = UpdateClip(s, "a", func(c *Clip) { c.Duration = -3 })
	if d := s.Tracks[0].Clips[0].Duration; d != MinClipDuration {
		t.Errorf("update: duration %v, want %v", d, MinClipDuration)
	}
}

func TestLockedTrackRejectsEdits(t *testing.T) {
	s := mustInsert(t, New(), DefaultVideoTrackID, Clip{ID: "a", Duration: 2})
	s, err := SetLocked(s, DefaultVideoTrackID, true)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := InsertClips(s, DefaultVideoTrackID, []Clip{{ID: "b", Duration: 1}}); !errors.Is(err, ErrTrackLocked) {
		t.Errorf("insert: expected ErrTrackLocked, got %v", err)
	}
	if _, err := UpdateClip(s, "a", func(c *Clip) { c.StartTime = 3 }); !errors.Is(err, ErrTrackLocked) {
		t.Errorf("update: expected ErrTrackLocked, got %v", err)
	}
	if _, _, err := RemoveClip(s, "a"); !errors.Is(err, ErrTrackLocked) {
		t.Errorf("remove: expected ErrTrackLocked, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	s := New()
	if _, err := InsertClips(s, "nope", nil); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
	if _, _, err := RemoveClip(s, "nope"); !errors.Is(err, ErrClipNotFound) {
		t.Errorf("expected ErrClipNotFound, got %v", err)
	}
}

func TestRemoveClipsByMediaCascades(t *testing.T) {
	s := mustInsert(t, New(), DefaultVideoTrackID,
		Clip{ID: "a", MediaID: "m1", Duration: 2},
		Clip{ID: "b", MediaID: "m2", StartTime: 2, Duration: 2},
		Clip{ID: "c", MediaID: "m1", StartTime: 4, Duration: 2},
	)
	s, n := RemoveClipsByMedia(s, "m1")
	if n != 2 {
		t.Errorf("removed %d clips, want 2", n)
	}
	if s.ClipCount() != 1 || s.TotalDuration != 4 {
		t.Errorf("unexpected state after cascade: count=%d total=%v", s.ClipCount(), s.TotalDuration)
	}
}

func TestResolveStart(t *testing.T) {
	track := Track{Clips: []Clip{
		{ID: "a", StartTime: 0, Duration: 3},
		{ID: "b", StartTime: 3, Duration: 2},
		{ID: "c", StartTime: 8, Duration: 1},
	}}
	tests := []struct {
		start  float64
		ignore string
		want   float64
	}{
		{-4, "", 5},
		{1, "", 5},
		{5, "", 5},
		{6, "", 6},
		{8.5, "", 9},
		{1, "a", 1},
	}
	for _, tt := range tests {
		if got := ResolveStart(track, tt.start, tt.ignore); got != tt.want {
			t.Errorf("ResolveStart(%v, %q) = %v, want %v", tt.start, tt.ignore, got, tt.want)
		}
	}
}

func TestActiveClipFirstMatchWins(t *testing.T) {
	track := Track{Clips: []Clip{
		{ID: "a", StartTime: 0, Duration: 4},
		{ID: "b", StartTime: 2, Duration: 4},
	}}
	tests := []struct {
		t    float64
		want string
	}{
		{0, "a"},
		{3, "a"},
		{4, "b"},
		{5.9, "b"},
		{6, ""},
	}
	for _, tt := range tests {
		c, ok := ActiveClip(track, tt.t)
		if tt.want == "" {
			if ok {
				t.Errorf("t=%v: expected no clip, got %s", tt.t, c.ID)
			}
			continue
		}
		if !ok || c.ID != tt.want {
			t.Errorf("t=%v: got %q, want %q", tt.t, c.ID, tt.want)
		}
	}

	track.Muted = true
	if _, ok := ActiveClip(track, 1); ok {
		t.Error("muted track should have no active clip")
	}
}

func TestSegmentsMatchActiveClip(t *testing.T) {
	track := Track{Clips: []Clip{
		{ID: "a", MediaID: "ma", StartTime: 1, Duration: 4, TrimStart: 2},
		{ID: "b", MediaID: "mb", StartTime: 3, Duration: 5},
		{ID: "c", MediaID: "mc", StartTime: 9, Duration: 1},
	}}
	segs := Segments([]Track{track}, 10)

	want := []Segment{
		{Start: 0, End: 1},
		{ClipID: "a", MediaID: "ma", Start: 1, End: 5, SourceStart: 2},
		{ClipID: "b", MediaID: "mb", Start: 5, End: 8, SourceStart: 2},
		{Start: 8, End: 9},
		{ClipID: "c", MediaID: "mc", Start: 9, End: 10},
	}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments, want %d: %+v", len(segs), len(want), segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, segs[i], want[i])
		}
	}

	for ts := 0.0; ts < 10; ts += 0.25 {
		c, ok := ActiveClip(track, ts)
		for _, s := range segs {
			if ts >= s.Start && ts < s.End {
				if ok != !s.Gap() || (ok && c.ID != s.ClipID) {
					t.Errorf("t=%v: segment %q disagrees with ActiveClip %q", ts, s.ClipID, c.ID)
				}
			}
		}
	}
}

func TestSegmentsMutedTrackIsOneGap(t *testing.T) {
	track := Track{Muted: true, Clips: []Clip{{ID: "a", Duration: 3}}}
	segs := Segments([]Track{track}, 5)
	if len(segs) != 1 || !segs[0].Gap() || segs[0].Duration() != 5 {
		t.Errorf("unexpected segments: %+v", segs)
	}
}

func TestActiveInLayersTracks(t *testing.T) {
	top := Track{ID: "v1", Clips: []Clip{{ID: "a", StartTime: 2, Duration: 2}}}
	bottom := Track{ID: "v2", Clips: []Clip{{ID: "b", StartTime: 0, Duration: 10}}}
	tracks := []Track{top, bottom}

	if c, _ := ActiveIn(tracks, 1); c.ID != "b" {
		t.Errorf("t=1: got %q, want b", c.ID)
	}
	if c, _ := ActiveIn(tracks, 3); c.ID != "a" {
		t.Errorf("t=3: got %q, want a", c.ID)
	}

	segs := Segments(tracks, 10)
	if len(segs) != 3 || segs[0].ClipID != "b" || segs[1].ClipID != "a" || segs[2].ClipID != "b" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if segs[2].SourceStart != 4 {
		t.Errorf("resumed segment source start = %v, want 4", segs[2].SourceStart)
	}
}
