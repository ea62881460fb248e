package connect

import (
	"time"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/domain/listener"
	"github.com/osa030/sonicbox/internal/domain/track"
)

func toTrack(t *track.Track) *Track {
	if t == nil {
		return nil
	}
	return &Track{
		ID:              t.ID,
		Title:           t.Title,
		Album:           t.Album,
		Artist:          t.Artist,
		CoverID:         t.CoverID,
		DurationSeconds: int64(t.Duration / time.Second),
	}
}

func toTracks(ts []track.Track) []Track {
	out := make([]Track, len(ts))
	for i := range ts {
		out[i] = *toTrack(&ts[i])
	}
	return out
}

func toMembers(ms []*listener.Member) []Member {
	out := make([]Member, len(ms))
	for i, m := range ms {
		out[i] = Member{
			ID:             m.ID,
			DisplayName:    m.DisplayName,
			ExternalUserID: m.ExternalUserID,
			JoinedAt:       m.JoinedAt.Format(time.RFC3339),
		}
	}
	return out
}

func toNotification(n *notification.Notification) *Notification {
	return &Notification{
		Room:       n.Room,
		Kind:       string(n.Kind),
		SequenceNo: n.SequenceNo,
		Timestamp:  n.Timestamp.Format(time.RFC3339Nano),
		Track:      toTrack(n.Track),
		CoverPath:  n.CoverPath,
		Message:    n.Message,
	}
}
