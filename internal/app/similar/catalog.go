package similar

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Catalog decorates the catalog client so that similar-track lookups go
// through a provider chain. Everything else is delegated unchanged.
type Catalog struct {
	CatalogClient
	chain *Chain
}

// NewCatalog creates a new Catalog.
func NewCatalog(client CatalogClient, chain *Chain) *Catalog {
	return &Catalog{CatalogClient: client, chain: chain}
}

// SimilarTracks resolves the seed's metadata when a provider needs it and
// queries the chain.
func (c *Catalog) SimilarTracks(ctx context.Context, seedID string, count int) ([]track.Track, error) {
	seed := track.Track{ID: seedID}
	if c.chain.needsSeedMetadata() {
		song, err := c.CatalogClient.GetSong(ctx, seedID)
		if err != nil {
			zlog.Warn().Msgf("similar: failed to look up seed: seed=%s error=%v", seedID, err)
		} else {
			seed = *song
		}
	}
	return c.chain.SimilarTracks(ctx, seed, count)
}
