package playback

import "github.com/osa030/sonicbox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted   EventType = iota // Track started streaming
	EventTrackSkipped                    // Track was skipped by a user
	EventStopped                         // Playback was stopped, current track re-queued
	EventPlaybackEnded                   // Queue ran out and autoplay did not refill it
	EventAutoplayFailed                  // Autoplay refill failed
	EventStreamFailed                    // Stream resolution or sink failure on the completion path
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStopped:
		return "stopped"
	case EventPlaybackEnded:
		return "playback_ended"
	case EventAutoplayFailed:
		return "autoplay_failed"
	case EventStreamFailed:
		return "stream_failed"
	default:
		return "unknown"
	}
}

// Event represents a playback event of one room.
type Event struct {
	Room  string
	Type  EventType
	Track *track.Track // Track concerned (nil for some events)
	State State        // Playback state after the event
	Err   error        // Cause for failure events
}
