// Package listener provides the room Member domain entity.
package listener

import "time"

// Member represents a listener present in a room.
type Member struct {
	ID             string    // UUID
	RoomID         string    // Room the member joined
	DisplayName    string    // Display name
	ExternalUserID string    // External user ID (for bot integration, optional)
	JoinedAt       time.Time // Join time
}

// NewMember creates a new room member.
func NewMember(id, roomID, displayName, externalUserID string) *Member {
	return &Member{
		ID:             id,
		RoomID:         roomID,
		DisplayName:    displayName,
		ExternalUserID: externalUserID,
		JoinedAt:       time.Now(),
	}
}

// SameUser reports whether both members refer to the same external user.
// Members without an external ID never match.
func (m *Member) SameUser(other *Member) bool {
	if m.ExternalUserID == "" || other == nil {
		return false
	}
	return m.ExternalUserID == other.ExternalUserID
}
