package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kikiluvv/slopstudio/internal/compositor"
	"github.com/kikiluvv/slopstudio/internal/editor"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Timeline editing
	Editor EditorConfig `yaml:"editor"`

	// Export defaults
	Export ExportConfig `yaml:"export"`

	// Render service
	Renderd RenderdConfig `yaml:"renderd"`

	// Preview window
	Preview PreviewConfig `yaml:"preview"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
}

type EditorConfig struct {
	PixelsPerSecond      float64 `yaml:"pixels_per_second"`
	DefaultImageDuration float64 `yaml:"default_image_duration"`
	HistoryLimit         int     `yaml:"history_limit"`
}

type ExportConfig struct {
	Preset     string  `yaml:"preset"`
	FPS        float64 `yaml:"fps"`
	Volume     float64 `yaml:"volume"`
	Quality    string  `yaml:"quality"`
	Background string  `yaml:"background"`
	OutputDir  string  `yaml:"output_dir"`
	TempDir    string  `yaml:"temp_dir"`
	// RemoteURL selects server-side rendering when set
	RemoteURL string `yaml:"remote_url"`
}

type RenderdConfig struct {
	Addr    string `yaml:"addr"`
	WorkDir string `yaml:"work_dir"`
}

type PreviewConfig struct {
	// Scale shrinks the preview surface relative to the export preset
	Scale float64 `yaml:"scale"`
}

// Load reads configuration from file or returns defaults. ${VAR} references
// in the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks every section
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FFmpeg),
		validation.Field(&c.Editor),
		validation.Field(&c.Export),
		validation.Field(&c.Renderd),
		validation.Field(&c.Preview),
	)
}

func (f FFmpegConfig) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.BinaryPath, validation.Required),
		validation.Field(&f.Threads, validation.Min(0)),
	)
}

func (e EditorConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.PixelsPerSecond, validation.Min(1.0)),
		validation.Field(&e.DefaultImageDuration, validation.Min(0.5)),
		validation.Field(&e.HistoryLimit, validation.Min(0)),
	)
}

func (e ExportConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Preset, validation.Required, validation.By(func(v interface{}) error {
			_, err := compositor.PresetByName(v.(string))
			return err
		})),
		validation.Field(&e.FPS, validation.Required, validation.Min(1.0), validation.Max(120.0)),
		validation.Field(&e.Volume, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&e.Quality, validation.In(string(ffmpeg.QualityDraft), string(ffmpeg.QualityStandard), string(ffmpeg.QualityHigh))),
		validation.Field(&e.Background, validation.Required, validation.By(func(v interface{}) error {
			_, err := compositor.ParseColor(v.(string))
			return err
		})),
	)
}

func (r RenderdConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
	)
}

func (p PreviewConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Scale, validation.Min(0.0), validation.Max(1.0)),
	)
}

// EditorOptions converts the editor section
func (c *Config) EditorOptions() editor.Options {
	return editor.Options{
		PixelsPerSecond:      c.Editor.PixelsPerSecond,
		DefaultImageDuration: c.Editor.DefaultImageDuration,
		HistoryLimit:         c.Editor.HistoryLimit,
	}
}

// ExportOptions converts the export section. The output path is left to the
// caller.
func (c *Config) ExportOptions() (export.Options, error) {
	preset, err := compositor.PresetByName(c.Export.Preset)
	if err != nil {
		return export.Options{}, err
	}
	bg, err := compositor.ParseColor(c.Export.Background)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		Preset:     preset,
		FPS:        c.Export.FPS,
		Volume:     c.Export.Volume,
		Quality:    ffmpeg.Quality(c.Export.Quality),
		Background: bg,
		TempDir:    c.Export.TempDir,
	}, nil
}

func defaultConfig() *Config {
	return &Config{
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			Threads:    0,
		},
		Editor: EditorConfig{
			PixelsPerSecond:      editor.DefaultPixelsPerSecond,
			DefaultImageDuration: 5,
			HistoryLimit:         100,
		},
		Export: ExportConfig{
			Preset:     compositor.Landscape.Name,
			FPS:        export.DefaultFPS,
			Volume:     1,
			Quality:    string(ffmpeg.QualityStandard),
			Background: "#000000",
			OutputDir:  ".",
		},
		Renderd: RenderdConfig{
			Addr: ":8088",
		},
		Preview: PreviewConfig{
			Scale: 0.5,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".slopstudio", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
