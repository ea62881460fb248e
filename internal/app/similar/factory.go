package similar

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
// Without configured providers the chain asks the catalog server only.
func NewChainFromConfig(cfg config.SimilarConfig, catalog CatalogClient) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		zlog.Debug().Msg("similar: no providers configured, using subsonic")
		return NewChain(NewSubsonicProvider(catalog)), nil
	}

	providers := make([]Provider, 0, len(cfg.Providers))
	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		switch pcfg.Type {
		case "subsonic":
			provider = NewSubsonicProvider(catalog)

		case "lastfm":
			provider, err = NewLastFmProvider(catalog, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}
		providers = append(providers, provider)

		zlog.Info().Msgf("similar: registered provider: index=%d type=%s", i+1, pcfg.Type)
	}
	return NewChain(providers...), nil
}
