package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain of every registered filter that is
// enabled, in name order. enabled and settings look filters up by name.
func NewChainFromConfig(enabled func(name string) bool, settings func(name string) map[string]any) (*Chain, error) {
	chain := NewChain()
	for _, name := range RegisteredNames() {
		if !enabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(settings(name)); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter: enabled: name=%s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, req Request, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, req, t)
		if !result.Accepted {
			zlog.Debug().Msgf("filter: rejected: filter=%s room=%s track=%s code=%s", f.Name(), req.RoomID, t.ID, result.Code)
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
