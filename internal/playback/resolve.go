package playback

import (
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
)

// Layer is the clip resolved for one track kind at a point in time
type Layer struct {
	Clip       timeline.Clip
	Asset      *media.Asset
	SourceTime float64
}

// Resolution is what is visible and audible at Time. A nil layer means
// nothing is active for that kind.
type Resolution struct {
	Time  float64
	Video *Layer
	Audio *Layer
}

// VideoClipID returns the visible clip id or ""
func (r Resolution) VideoClipID() string {
	if r.Video == nil {
		return ""
	}
	return r.Video.Clip.ID
}

// AudioClipID returns the audible clip id or ""
func (r Resolution) AudioClipID() string {
	if r.Audio == nil {
		return ""
	}
	return r.Audio.Clip.ID
}

// Resolve finds the active video and audio clip at t. Preview and frame
// capture both call it, so an export frame at t shows what a preview seek to
// t shows. Clips whose asset is gone resolve to nothing.
func Resolve(state timeline.State, assets media.Lookup, t float64) Resolution {
	res := Resolution{Time: t}
	res.Video = layerAt(state.TracksOf(timeline.TrackVideo), assets, t)
	res.Audio = layerAt(state.TracksOf(timeline.TrackAudio), assets, t)
	return res
}

func layerAt(tracks []timeline.Track, assets media.Lookup, t float64) *Layer {
	clip, ok := timeline.ActiveIn(tracks, t)
	if !ok {
		return nil
	}
	asset, ok := assets.Get(clip.MediaID)
	if !ok {
		return nil
	}
	return &Layer{Clip: clip, Asset: asset, SourceTime: clip.SourceTime(t)}
}
