package playback

import (
	"context"
	"time"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Catalog is the subset of the catalog client the controller consumes.
type Catalog interface {
	RandomTracks(ctx context.Context, count int) ([]track.Track, error)
	SimilarTracks(ctx context.Context, seedID string, count int) ([]track.Track, error)
	ResolveStreamSource(ctx context.Context, trackID string) (string, error)
}

// Source is what a sink streams.
type Source struct {
	TrackID  string
	URL      string
	Duration time.Duration
}

// CompletionFunc is invoked by a sink exactly once per streaming attempt.
// A nil error means the stream ended normally or was force-stopped.
type CompletionFunc func(err error)

// Sink is an audio output channel for a room.
type Sink interface {
	IsStreaming() bool
	// BeginStreaming fails with ErrAlreadyStreaming while a stream is active.
	BeginStreaming(src Source, done CompletionFunc) error
	// ForceStop is a no-op when not streaming.
	ForceStop()
}
