// Package matcher finds the catalog song that best matches external metadata.
package matcher

import (
	"context"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// DefaultThreshold is the minimum Jaro-Winkler similarity for a match.
const DefaultThreshold = 0.85

const defaultCandidates = 10

// ErrNoMatch is returned when no candidate reaches the threshold.
var ErrNoMatch = errors.New("no matching track in catalog")

// Searcher searches the catalog for songs.
type Searcher interface {
	Search(ctx context.Context, query string, songLimit int) ([]track.Track, error)
}

// Matcher resolves "artist + title" metadata to catalog songs.
type Matcher struct {
	searcher   Searcher
	threshold  float64
	candidates int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the minimum similarity score.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithCandidates sets how many search results are scored.
func WithCandidates(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.candidates = n
		}
	}
}

// New creates a new Matcher.
func New(searcher Searcher, opts ...Option) *Matcher {
	m := &Matcher{
		searcher:   searcher,
		threshold:  DefaultThreshold,
		candidates: defaultCandidates,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match searches the catalog and returns the best scoring song.
// A search with the bracketed suffix removed ("(Remastered 2011)") is tried
// first, then the full title.
func (m *Matcher) Match(ctx context.Context, title, artist string) (*track.Track, error) {
	if title == "" {
		return nil, errors.New("title is required")
	}

	queries := []string{Query(artist, CleanTitle(title))}
	if full := Query(artist, title); full != queries[0] {
		queries = append(queries, full)
	}

	for _, query := range queries {
		candidates, err := m.searcher.Search(ctx, query, m.candidates)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to search catalog: query=%s", query)
		}
		if best, score, ok := Best(query, candidates, m.threshold); ok {
			zlog.Debug().Msgf("matcher: matched: query=%q track=%s score=%.3f", query, best.ID, score)
			return &best, nil
		}
	}

	zlog.Debug().Msgf("matcher: no match: artist=%q title=%q", artist, title)
	return nil, ErrNoMatch
}

// Best returns the highest scoring candidate at or above threshold.
func Best(query string, candidates []track.Track, threshold float64) (track.Track, float64, bool) {
	var best track.Track
	var highest float64
	found := false

	jw := metrics.NewJaroWinkler()
	for _, c := range candidates {
		score := strutil.Similarity(query, Query(c.Artist, c.Title), jw)
		if score >= threshold && score > highest {
			best, highest, found = c, score, true
		}
	}
	return best, highest, found
}

// Query builds the normalised string that candidates are compared against.
func Query(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimSpace(artist) + " " + strings.TrimSpace(title)))
}

// CleanTitle drops everything from the first bracket or parenthesis on.
func CleanTitle(title string) string {
	if idx := strings.IndexAny(title, "(["); idx > 0 {
		return strings.TrimSpace(title[:idx])
	}
	return strings.TrimSpace(title)
}
