package playback

import (
	"context"
	"sync"

	"github.com/osa030/sonicbox/internal/domain/track"
)

type fakeCatalog struct {
	mu sync.Mutex

	random     []track.Track
	randomErr  error
	similar    []track.Track
	similarErr error
	resolveErr map[string]error

	randomCalls  int
	similarSeeds []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{resolveErr: make(map[string]error)}
}

func (f *fakeCatalog) RandomTracks(_ context.Context, count int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.randomCalls++
	if f.randomErr != nil {
		return nil, f.randomErr
	}
	if len(f.random) < count {
		count = len(f.random)
	}
	return append([]track.Track(nil), f.random[:count]...), nil
}

func (f *fakeCatalog) SimilarTracks(_ context.Context, seedID string, count int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.similarSeeds = append(f.similarSeeds, seedID)
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	if len(f.similar) < count {
		count = len(f.similar)
	}
	return append([]track.Track(nil), f.similar[:count]...), nil
}

func (f *fakeCatalog) ResolveStreamSource(_ context.Context, trackID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.resolveErr[trackID]; err != nil {
		return "", err
	}
	return "stream://" + trackID, nil
}

func (f *fakeCatalog) RandomCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.randomCalls
}

type fakeSink struct {
	mu sync.Mutex

	streaming bool
	done      CompletionFunc
	beginErr  error

	begins []Source
	stops  int
}

func (f *fakeSink) IsStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

func (f *fakeSink) BeginStreaming(src Source, done CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.streaming {
		return ErrAlreadyStreaming
	}
	if f.beginErr != nil {
		return f.beginErr
	}
	f.streaming = true
	f.done = done
	f.begins = append(f.begins, src)
	return nil
}

func (f *fakeSink) ForceStop() {
	f.mu.Lock()
	if !f.streaming {
		f.mu.Unlock()
		return
	}
	f.stops++
	done := f.end()
	f.mu.Unlock()

	done(nil)
}

// Finish ends the current stream as if it reached its end.
func (f *fakeSink) Finish(err error) {
	f.mu.Lock()
	if !f.streaming {
		f.mu.Unlock()
		return
	}
	done := f.end()
	f.mu.Unlock()

	done(err)
}

func (f *fakeSink) end() CompletionFunc {
	f.streaming = false
	done := f.done
	f.done = nil
	return done
}

func (f *fakeSink) Begins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, len(f.begins))
	for i, src := range f.begins {
		ids[i] = src.TrackID
	}
	return ids
}

func (f *fakeSink) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
