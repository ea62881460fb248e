// Package registry provides thread-safe registries of rooms and members.
package registry

import (
	"context"
	"sort"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/infra/store"
)

// SettingsLoader loads persisted room settings.
type SettingsLoader interface {
	Load(ctx context.Context, roomID string) (store.RoomSettings, bool, error)
}

// Room is a room's playback controller and its audio sink.
type Room struct {
	ID         string
	Controller *playback.Controller

	sinkMu sync.RWMutex
	sink   playback.Sink
}

// Sink returns the attached sink, or nil when the room is not connected.
func (r *Room) Sink() playback.Sink {
	r.sinkMu.RLock()
	defer r.sinkMu.RUnlock()
	return r.sink
}

// Attach attaches s unless a sink is already attached. It reports whether s was attached.
func (r *Room) Attach(s playback.Sink) bool {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	if r.sink != nil {
		return false
	}
	r.sink = s
	return true
}

// Detach removes and returns the attached sink.
func (r *Room) Detach() playback.Sink {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	s := r.sink
	r.sink = nil
	return s
}

// RoomRegistry lazily creates one controller per room. Rooms live for the
// process lifetime.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	catalog     playback.Catalog
	settings    SettingsLoader
	defaultMode room.Mode
	events      chan playback.Event
}

// NewRoomRegistry creates a new room registry. settings may be nil.
// All controllers publish to one shared event channel of the given size.
func NewRoomRegistry(catalog playback.Catalog, settings SettingsLoader, defaultMode room.Mode, eventBuffer int) *RoomRegistry {
	return &RoomRegistry{
		rooms:       make(map[string]*Room),
		catalog:     catalog,
		settings:    settings,
		defaultMode: defaultMode,
		events:      make(chan playback.Event, eventBuffer),
	}
}

// Events returns the shared event channel of all controllers.
func (r *RoomRegistry) Events() <-chan playback.Event {
	return r.events
}

// Get returns an existing room.
func (r *RoomRegistry) Get(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	return rm, ok
}

// GetOrCreate returns the room, creating its controller on first use.
// The initial autoplay mode comes from the settings store, else the default.
func (r *RoomRegistry) GetOrCreate(ctx context.Context, roomID string) *Room {
	if rm, ok := r.Get(roomID); ok {
		return rm
	}

	mode := r.initialMode(ctx, roomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := &Room{
		ID: roomID,
		Controller: playback.NewController(playback.Config{
			Room:     roomID,
			Autoplay: mode,
		}, r.catalog, r.events),
	}
	r.rooms[roomID] = rm

	zlog.Info().Msgf("registry: room created: room=%s autoplay=%s", roomID, mode)
	return rm
}

func (r *RoomRegistry) initialMode(ctx context.Context, roomID string) room.Mode {
	if r.settings == nil {
		return r.defaultMode
	}
	settings, ok, err := r.settings.Load(ctx, roomID)
	if err != nil {
		zlog.Warn().Msgf("registry: failed to load room settings: room=%s error=%v", roomID, err)
		return r.defaultMode
	}
	if !ok {
		return r.defaultMode
	}
	return settings.Autoplay
}

// All returns all rooms ordered by ID.
func (r *RoomRegistry) All() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		result = append(result, rm)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of rooms.
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
