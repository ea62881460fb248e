// Package similar provides similar-track lookup strategies for SIMILAR autoplay.
package similar

import (
	"context"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Provider is the interface for similar-track providers.
// Different implementations source recommendations from different services.
type Provider interface {
	// SimilarTracks returns up to count catalog songs similar to seed.
	// seed always carries the ID; title and artist are filled when known.
	SimilarTracks(ctx context.Context, seed track.Track, count int) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}

// CatalogClient is the subset of the Subsonic client used by providers and Catalog.
type CatalogClient interface {
	RandomTracks(ctx context.Context, count int) ([]track.Track, error)
	SimilarTracks(ctx context.Context, seedID string, count int) ([]track.Track, error)
	ResolveStreamSource(ctx context.Context, trackID string) (string, error)
	Search(ctx context.Context, query string, songLimit int) ([]track.Track, error)
	GetSong(ctx context.Context, songID string) (*track.Track, error)
}

// seedAware is implemented by providers that need the seed's title and artist.
type seedAware interface {
	needsSeedMetadata() bool
}
