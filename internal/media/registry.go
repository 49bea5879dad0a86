package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrDuplicateID   = errors.New("asset id already registered")
)

// Lookup resolves asset ids. Playback and export depend on this rather than
// on the registry itself.
type Lookup interface {
	Get(id string) (*Asset, bool)
}

// Registry owns every ingested asset and its decoded source.
// The exporter reads it from its own goroutine, so access is guarded.
type Registry struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	assets map[string]*Asset
	order  []string
}

// NewRegistry creates an empty media registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "media-registry").Logger(),
		assets: make(map[string]*Asset),
	}
}

// Add registers an asset. An empty ID is replaced with a generated one.
func (r *Registry) Add(asset *Asset) (*Asset, error) {
	if asset == nil {
		return nil, fmt.Errorf("asset is nil")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, asset.ID)
	}
	r.assets[asset.ID] = asset
	r.order = append(r.order, asset.ID)

	r.logger.Debug().
		Str("asset", asset.ID).
		Str("kind", string(asset.Kind)).
		Str("name", asset.DisplayName).
		Float64("duration", asset.NaturalDuration).
		Msg("asset registered")

	return asset, nil
}

// Get retrieves an asset by ID
func (r *Registry) Get(id string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a, ok
}

// Remove drops an asset and closes its source. Clips referencing it are the
// editor's responsibility.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	asset, ok := r.assets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	delete(r.assets, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if asset.Source != nil {
		if err := asset.Source.Close(); err != nil {
			r.logger.Warn().Err(err).Str("asset", id).Msg("closing asset source failed")
		}
	}
	r.logger.Debug().Str("asset", id).Msg("asset removed")
	return nil
}

// List returns all assets in ingestion order
func (r *Registry) List() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.assets[id])
	}
	return out
}

// Len returns the number of registered assets
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

// Close releases every asset source
func (r *Registry) Close() error {
	r.mu.Lock()
	assets := r.assets
	r.assets = make(map[string]*Asset)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for id, a := range assets {
		if a.Source == nil {
			continue
		}
		if err := a.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
