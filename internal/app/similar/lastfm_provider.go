package similar

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/matcher"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
}

type LastFmProviderConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	CandidateLimit int     `yaml:"candidate_limit" mapstructure:"candidate_limit" default:"30" validate:"gte=1,lte=100"`
	MinMatch       float64 `yaml:"min_match" mapstructure:"min_match" default:"0" validate:"gte=0,lte=1"`
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold" default:"0.85" validate:"gt=0,lte=1"`
}

// LastFmProvider asks Last.fm for similar tracks and maps each one back to
// the catalog through a fuzzy search.
type LastFmProvider struct {
	lastfm  LastFmClient
	matcher *matcher.Matcher
	config  *LastFmProviderConfig
}

// NewLastFmProvider creates a new LastFmProvider from free-form settings.
func NewLastFmProvider(catalog CatalogClient, settings map[string]any) (*LastFmProvider, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmProvider(client, catalog, &config), nil
}

func newLastFmProvider(client LastFmClient, catalog CatalogClient, config *LastFmProviderConfig) *LastFmProvider {
	return &LastFmProvider{
		lastfm:  client,
		matcher: matcher.New(catalog, matcher.WithThreshold(config.Threshold), matcher.WithCandidates(5)),
		config:  config,
	}
}

// SimilarTracks returns catalog songs matching Last.fm's similar tracks, in
// Last.fm's order, skipping the seed and duplicates.
func (p *LastFmProvider) SimilarTracks(ctx context.Context, seed track.Track, count int) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}
	if seed.Title == "" || seed.Title == track.UnknownTitle || seed.Artist == "" || seed.Artist == track.UnknownArtist {
		return nil, errors.Newf("seed metadata unavailable: id=%s", seed.ID)
	}

	similar, err := p.lastfm.GetSimilarTracks(ctx, seed.Title, seed.Artist, p.config.CandidateLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get similar tracks from last.fm")
	}

	seen := map[string]bool{seed.ID: true}
	result := make([]track.Track, 0, count)
	for _, s := range similar {
		if len(result) >= count {
			break
		}
		if s.Match < p.config.MinMatch {
			continue
		}
		t, err := p.matcher.Match(ctx, s.Name, s.Artist)
		if err != nil {
			if !errors.Is(err, matcher.ErrNoMatch) {
				return nil, err
			}
			continue
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		result = append(result, *t)
	}

	zlog.Debug().Msgf("similar: lastfm candidates mapped: seed=%s lastfm=%d catalog=%d", seed.ID, len(similar), len(result))
	return result, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

func (p *LastFmProvider) needsSeedMetadata() bool {
	return true
}
