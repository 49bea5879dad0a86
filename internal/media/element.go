package media

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"
)

// mediaClock tracks a playback position that advances with wall time while
// playing.
type mediaClock struct {
	clock   Clock
	pos     float64
	anchor  time.Time
	playing bool
	limit   float64
}

func (c *mediaClock) position() float64 {
	if !c.playing {
		return c.pos
	}
	p := c.pos + c.clock.Now().Sub(c.anchor).Seconds()
	if c.limit > 0 && p > c.limit {
		p = c.limit
	}
	return p
}

func (c *mediaClock) play() {
	if c.playing {
		return
	}
	c.anchor = c.clock.Now()
	c.playing = true
}

func (c *mediaClock) pause() {
	if !c.playing {
		return
	}
	c.pos = c.position()
	c.playing = false
}

func (c *mediaClock) seek(t float64) {
	if t < 0 {
		t = 0
	}
	if c.limit > 0 && t > c.limit {
		t = c.limit
	}
	c.pos = t
	c.anchor = c.clock.Now()
}

// StillImage is a decoded picture. It has no playback position.
type StillImage struct {
	img image.Image
}

// NewStillImage wraps a decoded image
func NewStillImage(img image.Image) *StillImage {
	return &StillImage{img: img}
}

func (s *StillImage) Frame() (image.Image, error) {
	if s.img == nil {
		return nil, fmt.Errorf("image not decoded")
	}
	return s.img, nil
}

func (s *StillImage) FrameAt(float64) (image.Image, error) {
	return s.Frame()
}

func (s *StillImage) Close() error {
	s.img = nil
	return nil
}

// FrameDecoder extracts a single RGBA frame from a media file
type FrameDecoder interface {
	DecodeFrame(ctx context.Context, path string, at float64, width, height int) (*image.RGBA, error)
}

// frameTimeout bounds a single frame decode
const frameTimeout = 10 * time.Second

// VideoElement is a headless video element. Its position advances with the
// clock while playing; pictures are decoded on demand and quantized to fps.
type VideoElement struct {
	path    string
	width   int
	height  int
	fps     float64
	decoder FrameDecoder
	clock   mediaClock

	mu       sync.Mutex
	cacheIdx int64
	cacheImg *image.RGBA
	cacheSet bool
	closed   bool
}

// NewVideoElement creates an element for a probed video file
func NewVideoElement(path string, width, height int, fps, duration float64, decoder FrameDecoder, clock Clock) *VideoElement {
	if fps <= 0 {
		fps = 30
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &VideoElement{
		path:    path,
		width:   width,
		height:  height,
		fps:     fps,
		decoder: decoder,
		clock:   mediaClock{clock: clock, limit: duration},
	}
}

func (v *VideoElement) CurrentTime() float64 { return v.clock.position() }

func (v *VideoElement) Seek(t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("seek: invalid time")
	}
	v.clock.seek(t)
	return nil
}

func (v *VideoElement) Play() error {
	v.clock.play()
	return nil
}

func (v *VideoElement) Pause()       { v.clock.pause() }
func (v *VideoElement) Paused() bool { return !v.clock.playing }

// Frame decodes the picture at the current position
func (v *VideoElement) Frame() (image.Image, error) {
	return v.FrameAt(v.CurrentTime())
}

// FrameAt decodes the picture at t. The last decoded frame is cached.
// Times past the end of the source hold the last frame.
func (v *VideoElement) FrameAt(t float64) (image.Image, error) {
	if t < 0 {
		t = 0
	}
	idx := int64(math.Floor(t * v.fps))
	if last := v.lastFrame(); last >= 0 && idx > last {
		idx = last
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, fmt.Errorf("video element closed: %s", v.path)
	}
	if v.cacheSet && v.cacheIdx == idx {
		return v.cacheImg, nil
	}
	if v.decoder == nil {
		return nil, fmt.Errorf("no frame decoder for %s", v.path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	img, err := v.decoder.DecodeFrame(ctx, v.path, float64(idx)/v.fps, v.width, v.height)
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", t, err)
	}
	v.cacheIdx, v.cacheImg, v.cacheSet = idx, img, true
	return img, nil
}

// lastFrame is the index of the last decodable frame, or -1 when the
// duration is unknown
func (v *VideoElement) lastFrame() int64 {
	limit := v.clock.limit
	if limit <= 0 {
		return -1
	}
	// 2s at 30fps is frames 0..59; the epsilon keeps 60.0000001 from adding one
	last := int64(math.Ceil(limit*v.fps-1e-6)) - 1
	if last < 0 {
		return 0
	}
	return last
}

func (v *VideoElement) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.cacheImg = nil
	v.cacheSet = false
	return nil
}

// AudioElement is a headless audio element: it keeps position, volume and
// play state in step with the clock. Sound output belongs to the host.
type AudioElement struct {
	path   string
	volume float64
	clock  mediaClock
	closed bool
}

// NewAudioElement creates an element for an audio file of the given length
func NewAudioElement(path string, duration float64, clock Clock) *AudioElement {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AudioElement{
		path:   path,
		volume: 1,
		clock:  mediaClock{clock: clock, limit: duration},
	}
}

// Path returns the backing file
func (a *AudioElement) Path() string { return a.path }

func (a *AudioElement) CurrentTime() float64 { return a.clock.position() }

func (a *AudioElement) Seek(t float64) error {
	if a.closed {
		return fmt.Errorf("audio element closed: %s", a.path)
	}
	a.clock.seek(t)
	return nil
}

func (a *AudioElement) Play() error {
	if a.closed {
		return fmt.Errorf("audio element closed: %s", a.path)
	}
	a.clock.play()
	return nil
}

func (a *AudioElement) Pause()       { a.clock.pause() }
func (a *AudioElement) Paused() bool { return !a.clock.playing }

func (a *AudioElement) SetVolume(v float64) {
	a.volume = math.Max(0, math.Min(1, v))
}

func (a *AudioElement) Volume() float64 { return a.volume }

// Clone returns a paused element over the same file
func (a *AudioElement) Clone() (AudioSource, error) {
	if a.closed {
		return nil, fmt.Errorf("clone closed audio element: %s", a.path)
	}
	c := NewAudioElement(a.path, a.clock.limit, a.clock.clock)
	c.volume = a.volume
	return c, nil
}

func (a *AudioElement) Close() error {
	a.clock.pause()
	a.closed = true
	return nil
}

// Closed reports whether Close was called
func (a *AudioElement) Closed() bool { return a.closed }
