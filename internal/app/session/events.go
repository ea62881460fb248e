package session

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
)

// playbackLoop handles playback events of every room.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
			// Restart loop so rooms keep notifying
			zlog.Info().Msg("session: restarting playback loop")
			go m.playbackLoop()
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.rooms.Events():
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent turns a playback event into a notification and hands
// it to the room's dispatcher.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("session: playback event: room=%s type=%s", event.Room, event.Type)

	n := &notification.Notification{
		Room:  event.Room,
		Track: event.Track,
	}

	switch event.Type {
	case playback.EventTrackStarted:
		n.Kind = notification.KindTrackStarted

	case playback.EventTrackSkipped:
		n.Kind = notification.KindTrackSkipped

	case playback.EventStopped:
		n.Kind = notification.KindStopped

	case playback.EventPlaybackEnded:
		if !m.allowEnded(event.Room, time.Now()) {
			zlog.Debug().Msgf("session: playback ended notification suppressed: room=%s", event.Room)
			return
		}
		n.Kind = notification.KindPlaybackEnded
		n.Message = m.config.GetMessage("playback_ended")

	case playback.EventAutoplayFailed:
		n.Kind = notification.KindAutoplayFailed
		n.Message = m.config.GetMessage("autoplay_failed")

	case playback.EventStreamFailed:
		n.Kind = notification.KindStreamFailed
		if event.Err != nil {
			n.Message = event.Err.Error()
		}

	default:
		return
	}

	m.dispatch(n)
}

// dispatch queues a notification on its room's dispatcher, starting one if needed.
// Rooms are delivered independently so a slow cover fetch only delays its own room.
func (m *Manager) dispatch(n *notification.Notification) {
	m.mu.Lock()
	ch, ok := m.dispatchers[n.Room]
	if !ok {
		ch = make(chan *notification.Notification, m.config.Playback.EventBuffer)
		m.dispatchers[n.Room] = ch
		go m.dispatchLoop(ch)
	}
	m.mu.Unlock()

	select {
	case ch <- n:
	default:
		zlog.Warn().Msgf("session: notification dropped, room queue full: room=%s kind=%s", n.Room, n.Kind)
	}
}

// dispatchLoop delivers the notifications of one room in order.
func (m *Manager) dispatchLoop(ch <-chan *notification.Notification) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case n := <-ch:
			if n.Kind == notification.KindTrackStarted && n.Track != nil {
				n.CoverPath = m.catalog.CoverArtPath(m.ctx, n.Track.CoverID)
			}
			m.notification.Broadcast(n)
		}
	}
}

// allowEnded rate-limits playback-ended notifications per room.
func (m *Manager) allowEnded(roomID string, now time.Time) bool {
	cooldown := m.config.Playback.EndedCooldown()

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastEnded[roomID]; ok && now.Sub(last) < cooldown {
		return false
	}
	m.lastEnded[roomID] = now
	return true
}
