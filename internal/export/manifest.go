package export

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
)

// Multipart field names and response headers shared with the render service
const (
	ManifestField    = "manifest"
	AssetFieldPrefix = "asset:"

	HeaderSize     = "X-Render-Size"
	HeaderDuration = "X-Render-Duration"
)

// ManifestAsset is the metadata of one uploaded asset
type ManifestAsset struct {
	ID              string     `json:"id"`
	Kind            media.Kind `json:"kind"`
	Name            string     `json:"name"`
	NaturalDuration float64    `json:"naturalDuration"`
	Width           int        `json:"width,omitempty"`
	Height          int        `json:"height,omitempty"`
}

// Validate checks one asset entry
func (a ManifestAsset) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.Kind, validation.Required, validation.In(media.KindImage, media.KindVideo, media.KindAudio)),
		validation.Field(&a.NaturalDuration, validation.Min(0.0)),
	)
}

// Manifest is everything a render service needs besides the asset files
type Manifest struct {
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	FPS        float64          `json:"fps"`
	Volume     float64          `json:"volume"`
	Background string           `json:"background"`
	Quality    ffmpeg.Quality   `json:"quality,omitempty"`
	Duration   float64          `json:"duration"`
	Tracks     []timeline.Track `json:"tracks"`
	Assets     []ManifestAsset  `json:"assets"`
}

// Validate checks the manifest is renderable
func (m Manifest) Validate() error {
	if err := validation.ValidateStruct(&m,
		validation.Field(&m.Width, validation.Required, validation.Min(2), validation.Max(7680)),
		validation.Field(&m.Height, validation.Required, validation.Min(2), validation.Max(7680)),
		validation.Field(&m.FPS, validation.Required, validation.Min(1.0), validation.Max(120.0)),
		validation.Field(&m.Volume, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&m.Quality, validation.In(ffmpeg.QualityDraft, ffmpeg.QualityStandard, ffmpeg.QualityHigh)),
		validation.Field(&m.Duration, validation.Required, validation.Min(0.0)),
		validation.Field(&m.Assets),
	); err != nil {
		return err
	}
	if _, err := compositor.ParseColor(m.Background); m.Background != "" && err != nil {
		return fmt.Errorf("background: %w", err)
	}
	for _, track := range m.Tracks {
		for _, clip := range track.Clips {
			if _, ok := m.Asset(clip.MediaID); !ok {
				return fmt.Errorf("clip %s references unknown asset %s", clip.ID, clip.MediaID)
			}
			if clip.Duration <= 0 {
				return fmt.Errorf("clip %s has no duration", clip.ID)
			}
		}
	}
	return nil
}

// Asset looks up an asset entry by id
func (m Manifest) Asset(id string) (ManifestAsset, bool) {
	for _, a := range m.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return ManifestAsset{}, false
}

// BuildManifest describes state for a render service. It returns the
// referenced assets in upload order. Clips whose asset is gone are dropped.
func BuildManifest(state timeline.State, assets media.Lookup, opts Options) (Manifest, []*media.Asset) {
	opts = opts.withDefaults()
	m := Manifest{
		Width:      opts.Preset.Width,
		Height:     opts.Preset.Height,
		FPS:        opts.FPS,
		Volume:     opts.Volume,
		Background: compositor.HexColor(opts.Background),
		Quality:    opts.Quality,
	}

	var used []*media.Asset
	seen := make(map[string]bool)
	for _, track := range state.Tracks {
		kept := track
		kept.Clips = make([]timeline.Clip, 0, len(track.Clips))
		for _, clip := range track.Clips {
			asset, ok := assets.Get(clip.MediaID)
			if !ok {
				continue
			}
			kept.Clips = append(kept.Clips, clip)
			if seen[asset.ID] {
				continue
			}
			seen[asset.ID] = true
			used = append(used, asset)
			m.Assets = append(m.Assets, ManifestAsset{
				ID:              asset.ID,
				Kind:            asset.Kind,
				Name:            asset.DisplayName,
				NaturalDuration: asset.NaturalDuration,
				Width:           asset.Width,
				Height:          asset.Height,
			})
		}
		m.Tracks = append(m.Tracks, kept)
	}
	m.Duration = timeline.ComputeTotalDuration(m.Tracks)
	return m, used
}
