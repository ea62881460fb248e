package playback

import "github.com/cockroachdb/errors"

// Errors
var (
	// ErrNoResults is returned when a catalog lookup yields zero items.
	ErrNoResults = errors.New("no results")
	// ErrSinkUnavailable is returned when the sink is not in the state an operation requires.
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrNotPlaying is returned by skip and stop while idle.
	ErrNotPlaying = errors.Wrap(ErrSinkUnavailable, "not playing")
	// ErrAlreadyStreaming is returned by sinks asked to stream twice.
	ErrAlreadyStreaming = errors.Wrap(ErrSinkUnavailable, "already streaming")
	// ErrNotConnected is returned when the room has no sink.
	ErrNotConnected = errors.New("not connected")
	// ErrQueueEmpty is returned by an explicit play with nothing to play.
	ErrQueueEmpty = errors.New("queue is empty")
)
