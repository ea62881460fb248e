package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/sonicbox/internal/domain/listener"
)

// ErrInvalidMember is returned for unknown member IDs.
var ErrInvalidMember = errors.New("invalid member")

// PresenceFunc is called with a room's member count after it changed.
type PresenceFunc func(roomID string, count int)

type presenceHook struct {
	room string // empty matches every room
	fn   PresenceFunc
}

// MemberRegistry manages room members with thread-safe access.
type MemberRegistry struct {
	mu      sync.RWMutex
	members map[string]*listener.Member
	hooks   []presenceHook
}

// NewMemberRegistry creates a new member registry.
func NewMemberRegistry() *MemberRegistry {
	return &MemberRegistry{
		members: make(map[string]*listener.Member),
	}
}

// OnPresenceChanged registers a callback for membership changes of a room.
// An empty roomID registers for every room. Callbacks run on the caller's
// goroutine after the registry lock is released.
func (r *MemberRegistry) OnPresenceChanged(roomID string, fn PresenceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, presenceHook{room: roomID, fn: fn})
}

// Join adds a member to a room. A user already present in the room by
// external ID gets their existing membership back and joined is false.
func (r *MemberRegistry) Join(roomID, displayName, externalUserID string) (member *listener.Member, joined bool) {
	r.mu.Lock()

	candidate := listener.NewMember(uuid.New().String(), roomID, displayName, externalUserID)
	for _, m := range r.members {
		if m.RoomID == roomID && m.SameUser(candidate) {
			r.mu.Unlock()
			return m, false
		}
	}
	r.members[candidate.ID] = candidate
	count := r.countLocked(roomID)
	hooks := r.hooksLocked(roomID)
	r.mu.Unlock()

	notify(hooks, roomID, count)
	return candidate, true
}

// Leave removes a member.
func (r *MemberRegistry) Leave(memberID string) (*listener.Member, error) {
	r.mu.Lock()

	m, ok := r.members[memberID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrInvalidMember
	}
	delete(r.members, memberID)
	count := r.countLocked(m.RoomID)
	hooks := r.hooksLocked(m.RoomID)
	r.mu.Unlock()

	notify(hooks, m.RoomID, count)
	return m, nil
}

// Get retrieves a member by ID.
func (r *MemberRegistry) Get(memberID string) (*listener.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[memberID]
	if !ok {
		return nil, ErrInvalidMember
	}
	return m, nil
}

// Members returns the members of a room ordered by join time.
func (r *MemberRegistry) Members(roomID string) []*listener.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*listener.Member, 0)
	for _, m := range r.members {
		if m.RoomID == roomID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result
}

// MemberCount returns the number of members in a room.
func (r *MemberRegistry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(roomID)
}

func (r *MemberRegistry) countLocked(roomID string) int {
	n := 0
	for _, m := range r.members {
		if m.RoomID == roomID {
			n++
		}
	}
	return n
}

func (r *MemberRegistry) hooksLocked(roomID string) []PresenceFunc {
	var fns []PresenceFunc
	for _, h := range r.hooks {
		if h.room == "" || h.room == roomID {
			fns = append(fns, h.fn)
		}
	}
	return fns
}

func notify(hooks []PresenceFunc, roomID string, count int) {
	for _, fn := range hooks {
		fn(roomID, count)
	}
}
