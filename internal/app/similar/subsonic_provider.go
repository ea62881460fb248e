package similar

import (
	"context"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// SubsonicProvider asks the catalog server itself (getSimilarSongs2).
type SubsonicProvider struct {
	client CatalogClient
}

// NewSubsonicProvider creates a new SubsonicProvider.
func NewSubsonicProvider(client CatalogClient) *SubsonicProvider {
	return &SubsonicProvider{client: client}
}

// SimilarTracks returns the server's similar songs for the seed.
func (p *SubsonicProvider) SimilarTracks(ctx context.Context, seed track.Track, count int) ([]track.Track, error) {
	return p.client.SimilarTracks(ctx, seed.ID, count)
}

// Name returns the provider name.
func (p *SubsonicProvider) Name() string {
	return "subsonic"
}
