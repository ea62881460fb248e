package session

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/notification"
)

// onPresenceChanged schedules the idle check of a room left without members
// and cancels it when someone comes back.
func (m *Manager) onPresenceChanged(roomID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.idleTimers[roomID]; ok {
		timer.Stop()
		delete(m.idleTimers, roomID)
	}
	if count > 0 || m.ctx.Err() != nil {
		return
	}

	grace := m.config.Playback.IdleDisconnect()
	zlog.Debug().Msgf("session: room empty, idle check scheduled: room=%s after=%s", roomID, grace)
	m.idleTimers[roomID] = time.AfterFunc(grace, func() { m.reapIdle(roomID) })
}

// reapIdle resets and disconnects a room that is still empty.
func (m *Manager) reapIdle(roomID string) {
	m.mu.Lock()
	delete(m.idleTimers, roomID)
	m.mu.Unlock()

	m.presenceMu.Lock()
	if m.ctx.Err() != nil || m.members.MemberCount(roomID) > 0 {
		m.presenceMu.Unlock()
		return
	}
	rm, ok := m.rooms.Get(roomID)
	if !ok || rm.Sink() == nil {
		m.presenceMu.Unlock()
		return
	}
	m.Disconnect(roomID)
	m.presenceMu.Unlock()

	zlog.Info().Msgf("session: idle room reset: room=%s", roomID)
	m.notification.Broadcast(&notification.Notification{
		Room: roomID,
		Kind: notification.KindRoomIdle,
	})
}
