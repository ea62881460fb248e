package notification

import (
	"time"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Kind identifies what happened in a room.
type Kind string

const (
	KindInitialState   Kind = "initial_state"
	KindTrackStarted   Kind = "track_started"
	KindTrackSkipped   Kind = "track_skipped"
	KindStopped        Kind = "stopped"
	KindPlaybackEnded  Kind = "playback_ended"
	KindAutoplayFailed Kind = "autoplay_failed"
	KindStreamFailed   Kind = "stream_failed"
	KindQueueChanged   Kind = "queue_changed"
	KindMemberJoined   Kind = "member_joined"
	KindMemberLeft     Kind = "member_left"
	KindRoomIdle       Kind = "room_idle"
)

// Notification is a room event delivered to subscribers.
type Notification struct {
	Room       string
	Kind       Kind
	SequenceNo uint64
	Timestamp  time.Time
	Track      *track.Track
	CoverPath  string
	Message    string
}
