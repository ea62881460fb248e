// Package sink provides audio sinks that play a room's tracks.
package sink

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/playback"
)

// run is one streaming attempt. Its completion is delivered exactly once.
type run struct {
	src  playback.Source
	done playback.CompletionFunc
	once sync.Once
	stop func()
}

func (r *run) complete(err error) {
	r.once.Do(func() {
		go r.done(err)
	})
}

// TimedSettings configures a TimedSink.
type TimedSettings struct {
	FallbackDurationSec int `mapstructure:"fallback_duration_sec" default:"180" validate:"gte=1"`
	TickMs              int `mapstructure:"tick_ms" default:"100" validate:"gte=1,lte=1000"`
}

// TimedSink streams nothing; it holds each track for its duration measured on the wall clock.
// Tracks without a duration use the fallback duration.
type TimedSink struct {
	fallback time.Duration
	tick     time.Duration

	mu      sync.Mutex
	current *run
}

// NewTimedSink creates a new TimedSink.
func NewTimedSink(settings TimedSettings) *TimedSink {
	return &TimedSink{
		fallback: time.Duration(settings.FallbackDurationSec) * time.Second,
		tick:     time.Duration(settings.TickMs) * time.Millisecond,
	}
}

// IsStreaming reports whether a track is being held.
func (s *TimedSink) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// BeginStreaming starts holding src for its duration.
func (s *TimedSink) BeginStreaming(src playback.Source, done playback.CompletionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return playback.ErrAlreadyStreaming
	}

	duration := src.Duration
	if duration <= 0 {
		duration = s.fallback
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{src: src, done: done, stop: cancel}
	s.current = r

	go s.hold(ctx, r, duration)

	zlog.Debug().Msgf("sink: timed stream started: track=%s duration=%v", src.TrackID, duration)
	return nil
}

// ForceStop ends the current track early. It is a no-op when idle.
func (s *TimedSink) ForceStop() {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.stop()
	r.complete(nil)
}

// hold waits for the track's end using wall-clock time.
func (s *TimedSink) hold(ctx context.Context, r *run, duration time.Duration) {
	endTime := toWallTime(time.Now()).Add(duration)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if toWallTime(time.Now()).After(endTime) {
				s.finish(r, nil)
				return
			}
		}
	}
}

func (s *TimedSink) finish(r *run, err error) {
	s.mu.Lock()
	active := s.current == r
	if active {
		s.current = nil
	}
	s.mu.Unlock()

	// Force-stopped runs have already completed.
	if !active {
		return
	}

	r.complete(err)
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return t.Round(0)
}
