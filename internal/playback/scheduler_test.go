package playback

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"testing"
	"time"

	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

type assetMap map[string]*media.Asset

func (m assetMap) Get(id string) (*media.Asset, bool) {
	a, ok := m[id]
	return a, ok
}

type fakeAudio struct {
	pos     float64
	playing bool
	volume  float64
	seeks   []float64
	plays   int
	pauses  int
}

func (a *fakeAudio) Close() error         { return nil }
func (a *fakeAudio) CurrentTime() float64 { return a.pos }
func (a *fakeAudio) Seek(t float64) error { a.pos = t; a.seeks = append(a.seeks, t); return nil }
func (a *fakeAudio) Play() error          { a.playing = true; a.plays++; return nil }
func (a *fakeAudio) Pause()               { a.playing = false; a.pauses++ }
func (a *fakeAudio) Paused() bool         { return !a.playing }
func (a *fakeAudio) SetVolume(v float64)  { a.volume = v }
func (a *fakeAudio) Volume() float64      { return a.volume }
func (a *fakeAudio) Clone() (media.AudioSource, error) {
	return &fakeAudio{pos: a.pos, volume: a.volume}, nil
}

type fakeVideo struct {
	pos     float64
	playing bool
	seeks   int
	err     error
	fill    color.RGBA
}

func (v *fakeVideo) Close() error         { return nil }
func (v *fakeVideo) CurrentTime() float64 { return v.pos }
func (v *fakeVideo) Seek(t float64) error { v.pos = t; v.seeks++; return nil }
func (v *fakeVideo) Play() error          { v.playing = true; return nil }
func (v *fakeVideo) Pause()               { v.playing = false }
func (v *fakeVideo) Paused() bool         { return !v.playing }
func (v *fakeVideo) Frame() (image.Image, error) {
	return v.FrameAt(v.pos)
}
func (v *fakeVideo) FrameAt(float64) (image.Image, error) {
	if v.err != nil {
		return nil, v.err
	}
	return solid(v.fill), nil
}

var background = color.RGBA{A: 255}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func newScheduler(assets assetMap) *Scheduler {
	surface := compositor.NewSurface(compositor.Preset{Width: 16, Height: 9}, background)
	return NewScheduler(zerolog.New(io.Discard), assets, surface)
}

func stateWith(t *testing.T, video, audio []timeline.Clip) timeline.State {
	t.Helper()
	s := timeline.New()
	var err error
	if len(video) > 0 {
		if s, err = timeline.InsertClips(s, timeline.DefaultVideoTrackID, video); err != nil {
			t.Fatal(err)
		}
	}
	if len(audio) > 0 {
		if s, err = timeline.InsertClips(s, timeline.DefaultAudioTrackID, audio); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func playingCount(sources ...*fakeAudio) int {
	n := 0
	for _, s := range sources {
		if s.playing {
			n++
		}
	}
	return n
}

func TestEndOfTimelineStopsAndRewinds(t *testing.T) {
	still := media.NewStillImage(solid(color.RGBA{R: 255, A: 255}))
	assets := assetMap{"img": {ID: "img", Kind: media.KindImage, Source: still}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "c", MediaID: "img", Duration: 2}}, nil))

	s.Seek(2 - 1e-6)
	s.Play()
	if !s.Playing() {
		t.Fatal("expected playing")
	}
	s.Tick(50 * time.Millisecond)

	st := s.Status()
	if st.IsPlaying {
		t.Error("expected Stopped after passing the end")
	}
	if st.CurrentTime != 0 {
		t.Errorf("CurrentTime = %v, want 0", st.CurrentTime)
	}
}

func TestPlayEmptyTimelineIsNoop(t *testing.T) {
	s := newScheduler(assetMap{})
	s.Play()
	if s.Playing() {
		t.Error("empty timeline should not play")
	}
}

func TestSingleAudioSourceAcrossSeeks(t *testing.T) {
	song := &fakeAudio{}
	assets := assetMap{"song": {ID: "song", Kind: media.KindAudio, Source: song, NaturalDuration: 20}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, nil, []timeline.Clip{{ID: "a", MediaID: "song", StartTime: 3, Duration: 7}}))

	s.Seek(1)
	if song.playing || len(song.seeks) != 0 {
		t.Fatalf("nothing should be active at 1: %+v", song)
	}

	s.Play()
	s.Seek(5)
	if !song.playing {
		t.Fatal("source should play once its clip is active")
	}
	if song.plays != 1 {
		t.Errorf("Play called %d times, want 1", song.plays)
	}
	if got := song.seeks[0]; got != 2 {
		t.Errorf("seeked to %v, want source time 2", got)
	}

	s.Pause()
	if song.playing {
		t.Error("pause must silence the source")
	}

	// Seeking while stopped never produces sound.
	s.Seek(6)
	if song.playing {
		t.Error("seek while stopped must leave audio paused")
	}
}

func TestAdjacentAudioClipsNeverOverlap(t *testing.T) {
	first, second := &fakeAudio{}, &fakeAudio{}
	assets := assetMap{
		"one": {ID: "one", Kind: media.KindAudio, Source: first},
		"two": {ID: "two", Kind: media.KindAudio, Source: second},
	}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, nil, []timeline.Clip{
		{ID: "a", MediaID: "one", StartTime: 0, Duration: 1},
		{ID: "b", MediaID: "two", StartTime: 1, Duration: 1},
	}))

	s.Play()
	for i := 0; i < 30; i++ {
		s.Tick(50 * time.Millisecond)
		if n := playingCount(first, second); n > 1 {
			t.Fatalf("tick %d: %d sources playing", i, n)
		}
	}
	if first.pauses == 0 {
		t.Error("first source should be paused at the hand-off")
	}
	if second.plays == 0 {
		t.Error("second source never played")
	}
}

func TestAudioVolumeAndResync(t *testing.T) {
	song := &fakeAudio{}
	assets := assetMap{"song": {ID: "song", Kind: media.KindAudio, Source: song}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, nil, []timeline.Clip{{ID: "a", MediaID: "song", Duration: 10}}))

	s.SetVolume(0.4)
	s.Play()
	if song.volume != 0.4 {
		t.Errorf("volume = %v, want 0.4", song.volume)
	}

	seeks := len(song.seeks)
	// the fake never advances by itself, so drift grows with every tick
	s.Tick(200 * time.Millisecond)
	if len(song.seeks) != seeks {
		t.Error("drift of 0.2s should not resync")
	}
	s.Tick(200 * time.Millisecond)
	if len(song.seeks) != seeks+1 {
		t.Error("drift of 0.4s should resync")
	}
}

func TestMutedAudioTrackIsSilent(t *testing.T) {
	song := &fakeAudio{}
	assets := assetMap{"song": {ID: "song", Kind: media.KindAudio, Source: song}}
	s := newScheduler(assets)
	state := stateWith(t, nil, []timeline.Clip{{ID: "a", MediaID: "song", Duration: 10}})
	state, _ = timeline.SetMuted(state, timeline.DefaultAudioTrackID, true)
	s.SetTimeline(state)

	s.Play()
	s.Tick(100 * time.Millisecond)
	if song.playing {
		t.Error("muted track must not play")
	}
}

func TestVideoSeeksOnlyOnDrift(t *testing.T) {
	vid := &fakeVideo{fill: color.RGBA{G: 255, A: 255}}
	assets := assetMap{"vid": {ID: "vid", Kind: media.KindVideo, Source: vid}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "v", MediaID: "vid", Duration: 10, TrimStart: 1}}, nil))

	s.Seek(2)
	if vid.seeks != 1 || vid.pos != 3 {
		t.Fatalf("seeks=%d pos=%v, want 1 seek to 3", vid.seeks, vid.pos)
	}
	s.Seek(2.05)
	if vid.seeks != 1 {
		t.Error("drift under tolerance should not seek")
	}
	if got := s.Surface().Image().RGBAAt(8, 4); got != vid.fill {
		t.Errorf("surface = %v, want frame color", got)
	}
}

func TestStallShowsMatteAndClockContinues(t *testing.T) {
	vid := &fakeVideo{err: errors.New("decode failed")}
	assets := assetMap{"vid": {ID: "vid", Kind: media.KindVideo, Source: vid}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "v", MediaID: "vid", Duration: 10}}, nil))

	s.Play()
	s.Tick(time.Second)
	s.Tick(time.Second)

	if !s.Playing() || s.Status().CurrentTime != 2 {
		t.Errorf("clock should keep running: %+v", s.Status())
	}
	if s.Stalls() == 0 {
		t.Error("expected stalls to be counted")
	}
	if got := s.Surface().Image().RGBAAt(0, 0); got != background {
		t.Errorf("stalled frame should show matte, got %v", got)
	}
}

func TestEditWhilePlayingAppliesNextTick(t *testing.T) {
	still := media.NewStillImage(solid(color.RGBA{B: 255, A: 255}))
	assets := assetMap{"img": {ID: "img", Kind: media.KindImage, Source: still}}
	s := newScheduler(assets)
	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "c1", MediaID: "img", Duration: 5}}, nil))
	s.Play()

	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "c2", MediaID: "img", Duration: 5}}, nil))
	if got := s.LastResolution().VideoClipID(); got != "c1" {
		t.Errorf("current tick re-rendered retroactively: %q", got)
	}
	s.Tick(10 * time.Millisecond)
	if got := s.LastResolution().VideoClipID(); got != "c2" {
		t.Errorf("next tick should use the edit, got %q", got)
	}
}

func TestSeekClamps(t *testing.T) {
	s := newScheduler(assetMap{})
	s.SetTimeline(stateWith(t, []timeline.Clip{{ID: "c", MediaID: "missing", Duration: 4}}, nil))
	s.Seek(-3)
	if s.Status().CurrentTime != 0 {
		t.Errorf("seek below zero: %v", s.Status().CurrentTime)
	}
	s.Seek(99)
	if s.Status().CurrentTime != 4 {
		t.Errorf("seek past end: %v", s.Status().CurrentTime)
	}
	if s.LastResolution().Video != nil {
		t.Error("clip with missing asset should resolve to nothing")
	}
}
