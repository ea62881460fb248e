// Package playback provides per-room playback control with integrated queue management.
package playback

import (
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/domain/track"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing current, sink not streaming
	StatePlaying              // Current track set, sink streaming it
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// roomState is the playback state of a single room.
// It is owned by exactly one Controller and only touched with the controller lock held.
type roomState struct {
	queue    []track.Track
	current  *track.Track
	autoplay room.Mode
}

func (s *roomState) pushBack(ts ...track.Track) {
	s.queue = append(s.queue, ts...)
}

func (s *roomState) pushFront(t track.Track) {
	s.queue = append([]track.Track{t}, s.queue...)
}

func (s *roomState) popFront() (track.Track, bool) {
	if len(s.queue) == 0 {
		return track.Track{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

func (s *roomState) setQueue(ts []track.Track) {
	s.queue = ts
}

func (s *roomState) snapshotQueue() []track.Track {
	result := make([]track.Track, len(s.queue))
	copy(result, s.queue)
	return result
}

func (s *roomState) setCurrent(t *track.Track) {
	s.current = t
}

func (s *roomState) currentID() string {
	if s.current == nil {
		return ""
	}
	return s.current.ID
}
