// Package script reads YAML edit scripts: a media list, optional extra
// tracks and a sequence of editing steps that are replayed through the
// editor exactly as interactive gestures would be.
//
//	output:
//	  preset: "9:16"
//	  path: out.mp4
//	media:
//	  - {id: intro, path: intro.png}
//	  - {id: song, path: song.mp3}
//	steps:
//	  - place: {track: video-1, media: [intro], at: 2, as: [a]}
//	  - resize: {clip: a, duration: 8}
//	  - place: {track: audio-1, media: [song]}
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"gopkg.in/yaml.v3"
)

// Script is a parsed edit script
type Script struct {
	Output Output      `yaml:"output"`
	Media  []MediaRef  `yaml:"media"`
	Tracks []TrackSpec `yaml:"tracks"`
	Steps  []Step      `yaml:"steps"`
}

// Output overrides export settings. Zero values keep the caller's defaults.
type Output struct {
	Path       string   `yaml:"path"`
	Preset     string   `yaml:"preset"`
	FPS        float64  `yaml:"fps"`
	Volume     *float64 `yaml:"volume"`
	Quality    string   `yaml:"quality"`
	Background string   `yaml:"background"`
}

// MediaRef names a file so steps can refer to it
type MediaRef struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// TrackSpec adds a track before the steps run. ID is the alias steps use.
type TrackSpec struct {
	ID   string             `yaml:"id"`
	Kind timeline.TrackKind `yaml:"kind"`
	Name string             `yaml:"name"`
}

// Step is one editing action. Exactly one field is set.
type Step struct {
	Place       *Place     `yaml:"place,omitempty"`
	Drop        *Drop      `yaml:"drop,omitempty"`
	Move        *Move      `yaml:"move,omitempty"`
	Resize      *Resize    `yaml:"resize,omitempty"`
	Trim        *Trim      `yaml:"trim,omitempty"`
	Drag        *Drag      `yaml:"drag,omitempty"`
	Delete      string     `yaml:"delete,omitempty"`
	Duplicate   *Duplicate `yaml:"duplicate,omitempty"`
	Mute        *TrackFlag `yaml:"mute,omitempty"`
	Lock        *TrackFlag `yaml:"lock,omitempty"`
	Zoom        *float64   `yaml:"zoom,omitempty"`
	Scroll      *float64   `yaml:"scroll,omitempty"`
	Undo        bool       `yaml:"undo,omitempty"`
	Redo        bool       `yaml:"redo,omitempty"`
	RemoveMedia string     `yaml:"remove_media,omitempty"`
}

// Place puts media on a track one after another from At seconds. As names
// the created clips in order.
type Place struct {
	Track string   `yaml:"track"`
	Media []string `yaml:"media"`
	At    float64  `yaml:"at"`
	As    []string `yaml:"as"`
}

// Drop is a drop gesture at X pixels from the visible left edge
type Drop struct {
	Track string   `yaml:"track"`
	Media []string `yaml:"media"`
	X     float64  `yaml:"x"`
	As    []string `yaml:"as"`
}

type Move struct {
	Clip string  `yaml:"clip"`
	To   float64 `yaml:"to"`
}

type Resize struct {
	Clip     string  `yaml:"clip"`
	Duration float64 `yaml:"duration"`
}

type Trim struct {
	Clip  string  `yaml:"clip"`
	Start float64 `yaml:"start"`
}

// Edge selects what a drag grabs
type Edge string

const (
	EdgeBody Edge = "body"
	EdgeEnd  Edge = "end"
)

// Drag is a pointer gesture of DX pixels on a clip body or its right edge
type Drag struct {
	Clip string  `yaml:"clip"`
	Edge Edge    `yaml:"edge"`
	DX   float64 `yaml:"dx"`
}

type Duplicate struct {
	Clip string `yaml:"clip"`
	As   string `yaml:"as"`
}

// TrackFlag sets a track flag. Set defaults to true.
type TrackFlag struct {
	Track string `yaml:"track"`
	Set   *bool  `yaml:"set"`
}

func (f TrackFlag) value() bool {
	return f.Set == nil || *f.Set
}

// Load reads and validates a script file. Relative media paths are resolved
// against the script's directory.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.resolvePaths(filepath.Dir(path))
	return s, nil
}

// Parse decodes and validates a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

func (s *Script) resolvePaths(dir string) {
	for i, m := range s.Media {
		if !filepath.IsAbs(m.Path) {
			s.Media[i].Path = filepath.Join(dir, m.Path)
		}
	}
}

// Validate checks the script shape. References between steps are checked
// when the script is applied.
func (s Script) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Output),
		validation.Field(&s.Media, validation.By(uniqueMedia)),
		validation.Field(&s.Tracks),
		validation.Field(&s.Steps, validation.Required),
	)
}

func uniqueMedia(value interface{}) error {
	seen := make(map[string]bool)
	for _, m := range value.([]MediaRef) {
		if seen[m.ID] {
			return fmt.Errorf("duplicate media id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

func (o Output) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Preset, validation.By(func(v interface{}) error {
			if name := v.(string); name != "" {
				_, err := compositor.PresetByName(name)
				return err
			}
			return nil
		})),
		validation.Field(&o.FPS, validation.Min(0.0), validation.Max(120.0)),
		validation.Field(&o.Volume, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&o.Quality, validation.In(string(ffmpeg.QualityDraft), string(ffmpeg.QualityStandard), string(ffmpeg.QualityHigh))),
		validation.Field(&o.Background, validation.By(func(v interface{}) error {
			if c := v.(string); c != "" {
				_, err := compositor.ParseColor(c)
				return err
			}
			return nil
		})),
	)
}

func (m MediaRef) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.Path, validation.Required),
	)
}

func (t TrackSpec) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Kind, validation.Required, validation.In(timeline.TrackVideo, timeline.TrackAudio)),
	)
}

func (s Step) Validate() error {
	if n := len(s.actions()); n != 1 {
		return fmt.Errorf("a step needs exactly one action, got %d", n)
	}
	if s.Drag != nil && s.Drag.Edge != "" && s.Drag.Edge != EdgeBody && s.Drag.Edge != EdgeEnd {
		return fmt.Errorf("drag edge must be %q or %q", EdgeBody, EdgeEnd)
	}
	return nil
}

// Action names the step's action
func (s Step) Action() string {
	if a := s.actions(); len(a) == 1 {
		return a[0]
	}
	return "invalid"
}

func (s Step) actions() []string {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(s.Place != nil, "place")
	add(s.Drop != nil, "drop")
	add(s.Move != nil, "move")
	add(s.Resize != nil, "resize")
	add(s.Trim != nil, "trim")
	add(s.Drag != nil, "drag")
	add(s.Delete != "", "delete")
	add(s.Duplicate != nil, "duplicate")
	add(s.Mute != nil, "mute")
	add(s.Lock != nil, "lock")
	add(s.Zoom != nil, "zoom")
	add(s.Scroll != nil, "scroll")
	add(s.Undo, "undo")
	add(s.Redo, "redo")
	add(s.RemoveMedia != "", "remove_media")
	return set
}

// Options layers the script's output settings over base
func (o Output) Options(base export.Options) (export.Options, error) {
	opts := base
	if o.Path != "" {
		opts.Output = o.Path
	}
	if o.Preset != "" {
		p, err := compositor.PresetByName(o.Preset)
		if err != nil {
			return opts, err
		}
		opts.Preset = p
	}
	if o.FPS > 0 {
		opts.FPS = o.FPS
	}
	if o.Volume != nil {
		opts.Volume = *o.Volume
	}
	if o.Quality != "" {
		opts.Quality = ffmpeg.Quality(o.Quality)
	}
	if o.Background != "" {
		c, err := compositor.ParseColor(o.Background)
		if err != nil {
			return opts, err
		}
		opts.Background = c
	}
	return opts, nil
}
