// Package session provides the command layer that room handlers call.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/filter"
	"github.com/osa030/sonicbox/internal/app/matcher"
	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/app/session/registry"
	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/listener"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/config"
	"github.com/osa030/sonicbox/internal/infra/spotify"
)

// ErrLinksDisabled is returned for Spotify links when no Spotify client is configured.
var ErrLinksDisabled = errors.New("spotify links are not enabled")

// RejectedError is returned when a request filter rejects a play request.
type RejectedError struct {
	Code string
}

func (e *RejectedError) Error() string {
	return "request rejected: " + e.Code
}

// Catalog is the catalog surface used by commands.
type Catalog interface {
	playback.Catalog
	Search(ctx context.Context, query string, songLimit int) ([]track.Track, error)
	SearchAlbum(ctx context.Context, query string) (*album.Album, error)
	Discography(ctx context.Context, artistName string) ([]album.Album, error)
	CoverArtPath(ctx context.Context, coverID string) string
}

// SinkFactory creates audio sinks for rooms.
type SinkFactory interface {
	New() playback.Sink
}

// SettingsStore persists room settings.
type SettingsStore interface {
	registry.SettingsLoader
	SaveAutoplay(ctx context.Context, roomID string, mode room.Mode) error
}

// LinkResolver resolves Spotify links to track and album metadata.
type LinkResolver interface {
	GetTrack(ctx context.Context, link string) (*spotify.TrackInfo, error)
	GetAlbum(ctx context.Context, link string) (*spotify.AlbumInfo, error)
}

// Deps are the collaborators of a Manager. Store and Links may be nil.
type Deps struct {
	Catalog Catalog
	Sinks   SinkFactory
	Store   SettingsStore
	Links   LinkResolver
}

// Manager manages rooms, their members and their playback.
type Manager struct {
	config *config.Config

	rooms        *registry.RoomRegistry
	members      *registry.MemberRegistry
	catalog      Catalog
	sinks        SinkFactory
	store        SettingsStore
	links        LinkResolver
	matcher      *matcher.Matcher
	filterChain  *filter.Chain
	notification *notification.Manager

	mu          sync.Mutex
	lastEnded   map[string]time.Time
	idleTimers  map[string]*time.Timer
	dispatchers map[string]chan *notification.Notification

	// presenceMu orders joins against the idle reaper.
	presenceMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Catalog == nil || deps.Sinks == nil {
		return nil, errors.New("catalog and sink factory are required")
	}

	defaultMode, err := room.ParseMode(cfg.Playback.DefaultAutoplay)
	if err != nil {
		return nil, errors.Wrap(err, "invalid default autoplay mode")
	}

	chain, err := filter.NewChainFromConfig(cfg.IsFilterEnabled, cfg.GetFilterSettings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up filters")
	}

	var loader registry.SettingsLoader
	if deps.Store != nil {
		loader = deps.Store
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		rooms:        registry.NewRoomRegistry(deps.Catalog, loader, defaultMode, cfg.Playback.EventBuffer),
		members:      registry.NewMemberRegistry(),
		catalog:      deps.Catalog,
		sinks:        deps.Sinks,
		store:        deps.Store,
		links:        deps.Links,
		matcher:      matcher.New(deps.Catalog),
		filterChain:  chain,
		notification: notification.NewManager(0),
		lastEnded:    make(map[string]time.Time),
		idleTimers:   make(map[string]*time.Timer),
		dispatchers:  make(map[string]chan *notification.Notification),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	m.members.OnPresenceChanged("", m.onPresenceChanged)
	return m, nil
}

// Start starts the playback event loop.
func (m *Manager) Start() {
	go m.playbackLoop()
}

// Done returns a channel that is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops every room and the event loop. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(m.close)
}

func (m *Manager) close() {
	m.mu.Lock()
	for id, timer := range m.idleTimers {
		timer.Stop()
		delete(m.idleTimers, id)
	}
	m.mu.Unlock()

	for _, rm := range m.rooms.All() {
		rm.Controller.Reset(rm.Detach())
		rm.Controller.Close()
	}
	m.cancel()
	m.notification.Close()
	close(m.done)
	zlog.Info().Msg("session: manager closed")
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Join adds a member to a room and connects the room's sink on first join.
func (m *Manager) Join(ctx context.Context, roomID, displayName, externalUserID string) (*listener.Member, error) {
	if roomID == "" {
		return nil, errors.New("room id is required")
	}

	m.presenceMu.Lock()
	m.Connect(ctx, roomID)
	member, joined := m.members.Join(roomID, displayName, externalUserID)
	m.presenceMu.Unlock()
	if joined {
		zlog.Info().Msgf("session: member joined: room=%s member_id=%s display_name=%s", roomID, member.ID, displayName)
		m.notification.Broadcast(&notification.Notification{
			Room:    roomID,
			Kind:    notification.KindMemberJoined,
			Message: displayName,
		})
	}
	return member, nil
}

// Leave removes a member from a room.
func (m *Manager) Leave(roomID, memberID string) error {
	member, err := m.members.Get(memberID)
	if err != nil {
		return err
	}
	if member.RoomID != roomID {
		return registry.ErrInvalidMember
	}
	if _, err := m.members.Leave(memberID); err != nil {
		return err
	}

	zlog.Info().Msgf("session: member left: room=%s member_id=%s", roomID, memberID)
	m.notification.Broadcast(&notification.Notification{
		Room:    roomID,
		Kind:    notification.KindMemberLeft,
		Message: member.DisplayName,
	})
	return nil
}

// Connect attaches a sink to the room if it has none. It reports whether a
// sink was attached.
func (m *Manager) Connect(ctx context.Context, roomID string) bool {
	rm := m.rooms.GetOrCreate(ctx, roomID)
	if rm.Sink() != nil {
		return false
	}
	attached := rm.Attach(m.sinks.New())
	if attached {
		zlog.Info().Msgf("session: sink connected: room=%s", roomID)
	}
	return attached
}

// Disconnect resets the room's playback and detaches its sink.
func (m *Manager) Disconnect(roomID string) {
	rm, ok := m.rooms.Get(roomID)
	if !ok {
		return
	}
	sink := rm.Detach()
	if sink == nil {
		return
	}
	rm.Controller.Reset(sink)
	zlog.Info().Msgf("session: sink disconnected: room=%s", roomID)
}

// PlayResult describes what a play command did.
type PlayResult struct {
	Added   []track.Track
	Outcome playback.Outcome
	Current *track.Track
}

// Play enqueues the best match for query and starts playback if idle.
// An empty query only starts playback. memberID may be empty.
func (m *Manager) Play(ctx context.Context, roomID, memberID, query string) (*PlayResult, error) {
	rm, sink, err := m.connectedRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ctrl := rm.Controller

	if query == "" {
		if ctrl.State() == playback.StateIdle && len(ctrl.Queue()) == 0 && ctrl.AutoplayMode() == room.ModeNone {
			return nil, playback.ErrQueueEmpty
		}
		return m.advance(ctx, ctrl, sink, nil)
	}

	t, err := m.lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	req := filter.Request{RoomID: roomID, Room: ctrl}
	if memberID != "" {
		if member, err := m.members.Get(memberID); err == nil {
			req.Member = member
		}
	}
	result := m.filterChain.Execute(ctx, req, *t)
	zlog.Info().Msgf("session: play request: room=%s track=%s result=%t code=%s", roomID, t.ID, result.Accepted, result.Code)
	if !result.Accepted {
		return nil, &RejectedError{Code: result.Code}
	}

	ctrl.Enqueue(*t)
	return m.advance(ctx, ctrl, sink, []track.Track{*t})
}

// Album enqueues every song of the best matching album in order.
// query may be a Spotify album link.
func (m *Manager) Album(ctx context.Context, roomID, query string) (*PlayResult, error) {
	rm, sink, err := m.connectedRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if spotify.IsLink(query) {
		if m.links == nil {
			return nil, ErrLinksDisabled
		}
		info, err := m.links.GetAlbum(ctx, query)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve spotify link")
		}
		query = info.Name
	}

	a, err := m.catalog.SearchAlbum(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search album: query=%s", query)
	}
	if a == nil || len(a.Songs) == 0 {
		return nil, errors.Wrapf(playback.ErrNoResults, "album: query=%s", query)
	}

	rm.Controller.EnqueueMultiple(a.Songs)
	zlog.Info().Msgf("session: album queued: room=%s album=%s songs=%d", roomID, a.ID, len(a.Songs))
	return m.advance(ctx, rm.Controller, sink, a.Songs)
}

// Disco enqueues the songs of every album of the best matching artist.
func (m *Manager) Disco(ctx context.Context, roomID, artistName string) (*PlayResult, error) {
	rm, sink, err := m.connectedRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	albums, err := m.catalog.Discography(ctx, artistName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get discography: artist=%s", artistName)
	}

	var songs []track.Track
	for _, a := range albums {
		songs = append(songs, a.Songs...)
	}
	if len(songs) == 0 {
		return nil, errors.Wrapf(playback.ErrNoResults, "discography: artist=%s", artistName)
	}

	rm.Controller.EnqueueMultiple(songs)
	zlog.Info().Msgf("session: discography queued: room=%s albums=%d songs=%d", roomID, len(albums), len(songs))
	return m.advance(ctx, rm.Controller, sink, songs)
}

// Skip skips the current track.
func (m *Manager) Skip(ctx context.Context, roomID string) error {
	rm, sink, err := m.connectedRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return rm.Controller.Skip(sink)
}

// Stop stops playback, keeping the current track at the head of the queue.
func (m *Manager) Stop(ctx context.Context, roomID string) error {
	rm, sink, err := m.connectedRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return rm.Controller.Stop(sink)
}

// Clear removes every queued track and returns them.
func (m *Manager) Clear(ctx context.Context, roomID string) []track.Track {
	removed := m.rooms.GetOrCreate(ctx, roomID).Controller.Clear()
	zlog.Info().Msgf("session: queue cleared: room=%s removed=%d", roomID, len(removed))
	if len(removed) > 0 {
		m.queueChanged(roomID)
	}
	return removed
}

// Shuffle shuffles the queue.
func (m *Manager) Shuffle(ctx context.Context, roomID string) {
	m.rooms.GetOrCreate(ctx, roomID).Controller.Shuffle()
	m.queueChanged(roomID)
}

// SetAutoplay persists the autoplay mode. It starts playback when the room
// is idle with an empty queue and a connected sink, and reports whether a
// track started.
func (m *Manager) SetAutoplay(ctx context.Context, roomID string, mode room.Mode) (bool, error) {
	rm := m.rooms.GetOrCreate(ctx, roomID)

	if m.store != nil {
		if err := m.store.SaveAutoplay(ctx, roomID, mode); err != nil {
			return false, err
		}
	}

	if !rm.Controller.SetAutoplay(mode) {
		return false, nil
	}
	sink := rm.Sink()
	if sink == nil {
		return false, nil
	}
	outcome, err := rm.Controller.Advance(ctx, sink)
	return outcome == playback.OutcomeStarted, err
}

// Queue returns the queued tracks.
func (m *Manager) Queue(ctx context.Context, roomID string) []track.Track {
	return m.rooms.GetOrCreate(ctx, roomID).Controller.Queue()
}

// Status represents the status of a room.
type Status struct {
	Room          string
	State         playback.State
	Current       *track.Track
	CoverPath     string
	Queue         []track.Track
	TotalDuration time.Duration
	Autoplay      room.Mode
	Connected     bool
	Members       []*listener.Member
}

// Status returns the status of a room.
func (m *Manager) Status(ctx context.Context, roomID string) *Status {
	rm := m.rooms.GetOrCreate(ctx, roomID)
	ctrl := rm.Controller

	current, _ := ctrl.CurrentTrack()
	s := &Status{
		Room:          roomID,
		State:         ctrl.State(),
		Current:       current,
		Queue:         ctrl.Queue(),
		TotalDuration: ctrl.TotalDuration(),
		Autoplay:      ctrl.AutoplayMode(),
		Connected:     rm.Sink() != nil,
		Members:       m.members.Members(roomID),
	}
	if current != nil {
		s.CoverPath = m.catalog.CoverArtPath(ctx, current.CoverID)
	}
	return s
}

// connectedRoom returns a room with an attached sink.
func (m *Manager) connectedRoom(ctx context.Context, roomID string) (*registry.Room, playback.Sink, error) {
	rm := m.rooms.GetOrCreate(ctx, roomID)
	sink := rm.Sink()
	if sink == nil {
		return nil, nil, playback.ErrNotConnected
	}
	return rm, sink, nil
}

// lookup resolves a query or Spotify link to a catalog track.
func (m *Manager) lookup(ctx context.Context, query string) (*track.Track, error) {
	if spotify.IsLink(query) {
		if m.links == nil {
			return nil, ErrLinksDisabled
		}
		info, err := m.links.GetTrack(ctx, query)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve spotify link")
		}
		t, err := m.matcher.Match(ctx, info.Title, info.Artist())
		if errors.Is(err, matcher.ErrNoMatch) {
			return nil, errors.Wrapf(playback.ErrNoResults, "no catalog match for %s - %s", info.Artist(), info.Title)
		}
		return t, err
	}

	results, err := m.catalog.Search(ctx, query, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search: query=%s", query)
	}
	if len(results) == 0 {
		return nil, errors.Wrapf(playback.ErrNoResults, "search: query=%s", query)
	}
	return &results[0], nil
}

func (m *Manager) advance(ctx context.Context, ctrl *playback.Controller, sink playback.Sink, added []track.Track) (*PlayResult, error) {
	outcome, err := ctrl.Advance(ctx, sink)
	if outcome == playback.OutcomeAlreadyStreaming && len(added) > 0 {
		m.queueChanged(ctrl.Room())
	}
	current, _ := ctrl.CurrentTrack()
	return &PlayResult{Added: added, Outcome: outcome, Current: current}, err
}

func (m *Manager) queueChanged(roomID string) {
	m.notification.Broadcast(&notification.Notification{
		Room: roomID,
		Kind: notification.KindQueueChanged,
	})
}
