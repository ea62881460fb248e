package similar

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Chain tries providers in order until one returns songs.
type Chain struct {
	providers []Provider
}

// NewChain creates a new provider chain.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// SimilarTracks returns the first non-empty result. It returns an empty slice
// without error when every provider answered with nothing, and the last error
// when every provider failed.
func (c *Chain) SimilarTracks(ctx context.Context, seed track.Track, count int) ([]track.Track, error) {
	var lastErr error
	for i, p := range c.providers {
		zlog.Debug().Msgf("similar: trying provider: index=%d total=%d provider=%s seed=%s",
			i+1, len(c.providers), p.Name(), seed.ID)

		tracks, err := p.SimilarTracks(ctx, seed, count)
		if err != nil {
			zlog.Warn().Msgf("similar: provider failed, trying next: provider=%s error=%v", p.Name(), err)
			lastErr = errors.Wrapf(err, "provider %s", p.Name())
			continue
		}
		if len(tracks) == 0 {
			zlog.Debug().Msgf("similar: provider returned no tracks: provider=%s", p.Name())
			lastErr = nil
			continue
		}

		zlog.Info().Msgf("similar: provider returned tracks: provider=%s count=%d", p.Name(), len(tracks))
		return tracks, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return []track.Track{}, nil
}

// Names returns the provider names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) needsSeedMetadata() bool {
	for _, p := range c.providers {
		if sa, ok := p.(seedAware); ok && sa.needsSeedMetadata() {
			return true
		}
	}
	return false
}
