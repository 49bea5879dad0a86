package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedKind is returned for files that are not image, video or audio
var ErrUnsupportedKind = errors.New("unsupported media kind")

// IngestionError wraps a failure to turn a file into an asset
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// UserMessage is shown instead of the raw error
func (e *IngestionError) UserMessage() string {
	if errors.Is(e.Err, ErrUnsupportedKind) {
		return fmt.Sprintf("%s is not a supported image, video or audio file.", filepath.Base(e.Path))
	}
	return fmt.Sprintf("Could not import %s.", filepath.Base(e.Path))
}

// Ingester turns a raw file into a registered-ready asset
type Ingester interface {
	Ingest(ctx context.Context, path string) (*Asset, error)
}

// Prober reads container metadata
type Prober interface {
	ProbeVideo(ctx context.Context, filePath string) (*ffmpeg.VideoInfo, error)
}

var (
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}
	videoExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".avi", ".m4v"}
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac", ".opus"}
)

// SupportedExtensions lists every importable extension
func SupportedExtensions() []string {
	all := make([]string, 0, len(imageExtensions)+len(videoExtensions)+len(audioExtensions))
	all = append(all, imageExtensions...)
	all = append(all, videoExtensions...)
	return append(all, audioExtensions...)
}

// KindForPath classifies a file by extension
func KindForPath(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case contains(imageExtensions, ext):
		return KindImage, nil
	case contains(videoExtensions, ext):
		return KindVideo, nil
	case contains(audioExtensions, ext):
		return KindAudio, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, ext)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FileIngester decodes images in-process and probes audio/video with ffprobe
type FileIngester struct {
	logger  zerolog.Logger
	prober  Prober
	decoder FrameDecoder
	clock   Clock
}

// NewFileIngester creates an ingester. The executor normally serves as both
// prober and frame decoder.
func NewFileIngester(logger zerolog.Logger, prober Prober, decoder FrameDecoder, clock Clock) *FileIngester {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FileIngester{
		logger:  logger.With().Str("component", "ingest").Logger(),
		prober:  prober,
		decoder: decoder,
		clock:   clock,
	}
}

// Ingest classifies and decodes a file
func (i *FileIngester) Ingest(ctx context.Context, path string) (*Asset, error) {
	kind, err := KindForPath(path)
	if err != nil {
		return nil, &IngestionError{Path: path, Err: err}
	}

	var asset *Asset
	switch kind {
	case KindImage:
		asset, err = i.ingestImage(path)
	case KindVideo:
		asset, err = i.ingestVideo(ctx, path)
	case KindAudio:
		asset, err = i.ingestAudio(ctx, path)
	}
	if err != nil {
		return nil, &IngestionError{Path: path, Err: err}
	}

	i.logger.Info().
		Str("path", path).
		Str("kind", string(asset.Kind)).
		Float64("duration", asset.NaturalDuration).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Msg("media ingested")

	return asset, nil
}

func (i *FileIngester) ingestImage(path string) (*Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	return &Asset{
		Kind:        KindImage,
		Source:      NewStillImage(img),
		DisplayName: filepath.Base(path),
		Path:        path,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

func (i *FileIngester) ingestVideo(ctx context.Context, path string) (*Asset, error) {
	if i.prober == nil {
		return nil, fmt.Errorf("no prober configured")
	}
	info, err := i.prober.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrUnsupportedKind)
	}
	duration := info.Duration.Seconds()
	return &Asset{
		Kind:            KindVideo,
		Source:          NewVideoElement(path, info.Width, info.Height, info.FPS, duration, i.decoder, i.clock),
		DisplayName:     filepath.Base(path),
		Path:            path,
		NaturalDuration: duration,
		Width:           info.Width,
		Height:          info.Height,
	}, nil
}

func (i *FileIngester) ingestAudio(ctx context.Context, path string) (*Asset, error) {
	if i.prober == nil {
		return nil, fmt.Errorf("no prober configured")
	}
	info, err := i.prober.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio {
		return nil, fmt.Errorf("%w: no audio stream", ErrUnsupportedKind)
	}
	duration := info.Duration.Seconds()
	return &Asset{
		Kind:            KindAudio,
		Source:          NewAudioElement(path, duration, i.clock),
		DisplayName:     filepath.Base(path),
		Path:            path,
		NaturalDuration: duration,
	}, nil
}
