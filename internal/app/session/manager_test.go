package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/app/session/registry"
	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/config"
	"github.com/osa030/sonicbox/internal/infra/spotify"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type harness struct {
	m       *Manager
	catalog *fakeCatalog
	sinks   *fakeSinkFactory
	store   *fakeStore
	ctx     context.Context
}

func newHarness(t *testing.T, cfg *config.Config, links LinkResolver) *harness {
	t.Helper()
	h := &harness{
		catalog: &fakeCatalog{
			search: map[string][]track.Track{
				"heroes":             {{ID: "heroes", Title: "Heroes", Artist: "David Bowie", CoverID: "c1"}},
				"starman":            {{ID: "starman", Title: "Starman", Artist: "David Bowie"}},
				"david bowie heroes": {{ID: "heroes", Title: "Heroes", Artist: "David Bowie"}},
			},
			albums: map[string]*album.Album{
				"low": {ID: "low", Name: "Low", Songs: []track.Track{{ID: "l1"}, {ID: "l2"}, {ID: "l3"}}},
			},
			disco: map[string][]album.Album{
				"bowie": {
					{ID: "a1", Songs: []track.Track{{ID: "a1-1"}, {ID: "a1-2"}}},
					{ID: "a2", Songs: []track.Track{{ID: "a2-1"}}},
				},
			},
			random: []track.Track{{ID: "rnd"}},
		},
		sinks: &fakeSinkFactory{},
		store: &fakeStore{modes: map[string]room.Mode{}},
		ctx:   context.Background(),
	}
	deps := Deps{Catalog: h.catalog, Sinks: h.sinks, Store: h.store}
	if links != nil {
		deps.Links = links
	}
	m, err := NewManager(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.m = m
	return h
}

func (h *harness) sink(t *testing.T, roomID string) *fakeSink {
	t.Helper()
	rm, ok := h.m.rooms.Get(roomID)
	require.True(t, ok)
	s, ok := rm.Sink().(*fakeSink)
	require.True(t, ok)
	return s
}

func (h *harness) current(roomID string) string {
	rm, ok := h.m.rooms.Get(roomID)
	if !ok {
		return ""
	}
	cur, ok := rm.Controller.CurrentTrack()
	if !ok {
		return ""
	}
	return cur.ID
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(testConfig(), Deps{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Playback.DefaultAutoplay = "loud"
	_, err = NewManager(cfg, Deps{Catalog: &fakeCatalog{}, Sinks: &fakeSinkFactory{}})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Filters["duration_limit_filter"] = config.FilterConfig{Enabled: true, Settings: map[string]any{"max_minutes": -1}}
	_, err = NewManager(cfg, Deps{Catalog: &fakeCatalog{}, Sinks: &fakeSinkFactory{}})
	assert.Error(t, err)
}

func TestManager_JoinConnects(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	_, err := h.m.Play(h.ctx, "room", "", "heroes")
	assert.True(t, errors.Is(err, playback.ErrNotConnected))

	alice, err := h.m.Join(h.ctx, "room", "Alice", "ext-a")
	require.NoError(t, err)
	again, err := h.m.Join(h.ctx, "room", "Alice", "ext-a")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, again.ID)
	_, err = h.m.Join(h.ctx, "room", "Bob", "ext-b")
	require.NoError(t, err)

	assert.Equal(t, 1, h.sinks.Created())
	assert.Len(t, h.m.Status(h.ctx, "room").Members, 2)

	_, err = h.m.Join(h.ctx, "", "Nobody", "")
	assert.Error(t, err)
}

func TestManager_PlayQueuesAndStarts(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	res, err := h.m.Play(h.ctx, "room", "", "heroes")
	require.NoError(t, err)
	assert.Equal(t, playback.OutcomeStarted, res.Outcome)
	require.NotNil(t, res.Current)
	assert.Equal(t, "heroes", res.Current.ID)
	assert.Equal(t, []string{"heroes"}, track.IDs(res.Added))

	res, err = h.m.Play(h.ctx, "room", "", "starman")
	require.NoError(t, err)
	assert.Equal(t, playback.OutcomeAlreadyStreaming, res.Outcome)
	assert.Equal(t, []string{"starman"}, track.IDs(h.m.Queue(h.ctx, "room")))

	h.sink(t, "room").Finish(nil)
	require.Eventually(t, func() bool { return h.current("room") == "starman" }, waitFor, tick)
	assert.Empty(t, h.m.Queue(h.ctx, "room"))
}

func TestManager_PlayErrors(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	_, err = h.m.Play(h.ctx, "room", "", "nothing matches")
	assert.True(t, errors.Is(err, playback.ErrNoResults))

	_, err = h.m.Play(h.ctx, "room", "", "")
	assert.True(t, errors.Is(err, playback.ErrQueueEmpty))

	_, err = h.m.Play(h.ctx, "room", "", "https://open.spotify.com/track/abc")
	assert.True(t, errors.Is(err, ErrLinksDisabled))
}

func TestManager_PlayEmptyQueryWithAutoplay(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	h.m.rooms.GetOrCreate(h.ctx, "room").Controller.SetAutoplay(room.ModeRandom)

	res, err := h.m.Play(h.ctx, "room", "", "")
	require.NoError(t, err)
	assert.Equal(t, playback.OutcomeStarted, res.Outcome)
	assert.Equal(t, "rnd", res.Current.ID)
}

func TestManager_PlaySpotifyLink(t *testing.T) {
	links := &fakeLinks{
		tracks: map[string]*spotify.TrackInfo{
			"spotify:track:heroes": {ID: "heroes", Title: "Heroes (2017 Remaster)", Artists: []string{"David Bowie"}},
			"spotify:track:gone":   {ID: "gone", Title: "Unknown Song", Artists: []string{"Nobody"}},
		},
		albums: map[string]*spotify.AlbumInfo{
			"https://open.spotify.com/album/low": {ID: "low", Name: "low", Artists: []string{"David Bowie"}},
		},
	}
	h := newHarness(t, testConfig(), links)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	res, err := h.m.Play(h.ctx, "room", "", "spotify:track:heroes")
	require.NoError(t, err)
	assert.Equal(t, "heroes", res.Current.ID)

	_, err = h.m.Play(h.ctx, "room", "", "spotify:track:gone")
	assert.True(t, errors.Is(err, playback.ErrNoResults))

	_, err = h.m.Play(h.ctx, "room", "", "spotify:track:missing")
	assert.Error(t, err)

	res, err = h.m.Album(h.ctx, "room", "https://open.spotify.com/album/low")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2", "l3"}, track.IDs(res.Added))
}

func TestManager_AlbumLinkWithoutResolver(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	_, err = h.m.Album(h.ctx, "room", "spotify:album:low")
	assert.True(t, errors.Is(err, ErrLinksDisabled))
}

func TestManager_PlayRejectedByFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filters["duplicate_track_filter"] = config.FilterConfig{Enabled: true}
	h := newHarness(t, cfg, nil)
	member, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	_, err = h.m.Play(h.ctx, "room", member.ID, "heroes")
	require.NoError(t, err)

	_, err = h.m.Play(h.ctx, "room", member.ID, "heroes")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "duplicate_track", rejected.Code)
	assert.Empty(t, h.m.Queue(h.ctx, "room"))
}

func TestManager_AlbumAndDisco(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	res, err := h.m.Album(h.ctx, "room", "low")
	require.NoError(t, err)
	assert.Equal(t, "l1", res.Current.ID)
	assert.Len(t, res.Added, 3)
	assert.Equal(t, []string{"l2", "l3"}, track.IDs(h.m.Queue(h.ctx, "room")))

	res, err = h.m.Disco(h.ctx, "room", "bowie")
	require.NoError(t, err)
	assert.Equal(t, playback.OutcomeAlreadyStreaming, res.Outcome)
	assert.Equal(t, []string{"l2", "l3", "a1-1", "a1-2", "a2-1"}, track.IDs(h.m.Queue(h.ctx, "room")))

	_, err = h.m.Album(h.ctx, "room", "missing")
	assert.True(t, errors.Is(err, playback.ErrNoResults))
	_, err = h.m.Disco(h.ctx, "room", "missing")
	assert.True(t, errors.Is(err, playback.ErrNoResults))
}

func TestManager_SkipStopClearShuffle(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	assert.True(t, errors.Is(h.m.Skip(h.ctx, "room"), playback.ErrNotConnected))

	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	assert.True(t, errors.Is(h.m.Skip(h.ctx, "room"), playback.ErrNotPlaying))
	assert.True(t, errors.Is(h.m.Stop(h.ctx, "room"), playback.ErrNotPlaying))

	_, err = h.m.Album(h.ctx, "room", "low")
	require.NoError(t, err)

	require.NoError(t, h.m.Skip(h.ctx, "room"))
	require.Eventually(t, func() bool { return h.current("room") == "l2" }, waitFor, tick)

	require.NoError(t, h.m.Stop(h.ctx, "room"))
	assert.Equal(t, "", h.current("room"))
	assert.Equal(t, []string{"l2", "l3"}, track.IDs(h.m.Queue(h.ctx, "room")))

	h.m.Shuffle(h.ctx, "room")
	assert.ElementsMatch(t, []string{"l2", "l3"}, track.IDs(h.m.Queue(h.ctx, "room")))

	removed := h.m.Clear(h.ctx, "room")
	assert.Len(t, removed, 2)
	assert.Empty(t, h.m.Queue(h.ctx, "room"))
}

func TestManager_SetAutoplay(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	started, err := h.m.SetAutoplay(h.ctx, "room", room.ModeRandom)
	require.NoError(t, err)
	assert.False(t, started, "no sink, nothing to kick off")
	mode, ok := h.store.Mode("room")
	require.True(t, ok)
	assert.Equal(t, room.ModeRandom, mode)

	_, err = h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	started, err = h.m.SetAutoplay(h.ctx, "room", room.ModeSimilar)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "rnd", h.current("room"))

	started, err = h.m.SetAutoplay(h.ctx, "room", room.ModeRandom)
	require.NoError(t, err)
	assert.False(t, started)

	h.store.err = errors.New("disk full")
	_, err = h.m.SetAutoplay(h.ctx, "room", room.ModeNone)
	assert.Error(t, err)
	assert.Equal(t, room.ModeRandom, h.m.Status(h.ctx, "room").Autoplay)
}

func TestManager_RoomModeFromStore(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.store.modes["stored"] = room.ModeSimilar

	assert.Equal(t, room.ModeSimilar, h.m.Status(h.ctx, "stored").Autoplay)
	assert.Equal(t, room.ModeNone, h.m.Status(h.ctx, "other").Autoplay)
}

func TestManager_Status(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	_, err = h.m.Play(h.ctx, "room", "", "heroes")
	require.NoError(t, err)
	_, err = h.m.Play(h.ctx, "room", "", "starman")
	require.NoError(t, err)

	s := h.m.Status(h.ctx, "room")
	assert.Equal(t, playback.StatePlaying, s.State)
	assert.Equal(t, "heroes", s.Current.ID)
	assert.Equal(t, "cache/c1.jpg", s.CoverPath)
	assert.Len(t, s.Queue, 1)
	assert.True(t, s.Connected)
	assert.Len(t, s.Members, 1)
}

func TestManager_Leave(t *testing.T) {
	cfg := testConfig()
	cfg.Playback.IdleDisconnectSec = 3600
	h := newHarness(t, cfg, nil)

	alice, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)

	assert.True(t, errors.Is(h.m.Leave("other", alice.ID), registry.ErrInvalidMember))
	require.NoError(t, h.m.Leave("room", alice.ID))
	assert.True(t, errors.Is(h.m.Leave("room", alice.ID), registry.ErrInvalidMember))
}

func TestManager_IdleReaper(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("room", stream)

	alice, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	_, err = h.m.Album(h.ctx, "room", "low")
	require.NoError(t, err)
	sink := h.sink(t, "room")

	require.NoError(t, h.m.Leave("room", alice.ID))

	require.Eventually(t, func() bool { return stream.Has(notification.KindRoomIdle) }, waitFor, tick)
	s := h.m.Status(h.ctx, "room")
	assert.False(t, s.Connected)
	assert.Empty(t, s.Queue)
	assert.Nil(t, s.Current)
	assert.False(t, sink.IsStreaming())
}

func TestManager_IdleReaperCancelledOnRejoin(t *testing.T) {
	cfg := testConfig()
	cfg.Playback.IdleDisconnectSec = 3600
	h := newHarness(t, cfg, nil)

	alice, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	require.NoError(t, h.m.Leave("room", alice.ID))

	h.m.mu.Lock()
	_, scheduled := h.m.idleTimers["room"]
	h.m.mu.Unlock()
	assert.True(t, scheduled)

	_, err = h.m.Join(h.ctx, "room", "Bob", "")
	require.NoError(t, err)

	h.m.mu.Lock()
	_, scheduled = h.m.idleTimers["room"]
	h.m.mu.Unlock()
	assert.False(t, scheduled)

	// A stale check finds the room occupied and leaves it alone.
	h.m.reapIdle("room")
	assert.True(t, h.m.Status(h.ctx, "room").Connected)
}

func TestManager_EventLoopNotifies(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.m.Start()
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("", stream)

	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	_, err = h.m.Play(h.ctx, "room", "", "heroes")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.Has(notification.KindTrackStarted) }, waitFor, tick)

	h.sink(t, "room").Finish(nil)
	require.Eventually(t, func() bool { return stream.Has(notification.KindPlaybackEnded) }, waitFor, tick)
}

func TestManager_EndedCooldown(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("", stream)

	ended := playback.Event{Room: "room", Type: playback.EventPlaybackEnded}
	h.m.handlePlaybackEvent(ended)
	h.m.handlePlaybackEvent(ended)
	h.m.handlePlaybackEvent(playback.Event{Room: "other", Type: playback.EventPlaybackEnded})

	require.Eventually(t, func() bool { return len(stream.Kinds()) == 2 }, waitFor, tick)
	assert.Equal(t, []notification.Kind{notification.KindPlaybackEnded, notification.KindPlaybackEnded}, stream.Kinds())

	now := time.Now()
	assert.False(t, h.m.allowEnded("room", now))
	assert.True(t, h.m.allowEnded("room", now.Add(6*time.Second)))
}

func TestManager_SlowCoverDoesNotStallOtherRooms(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	gate := make(chan struct{})
	h.catalog.coverGate = map[string]chan struct{}{"slow": gate}
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("", stream)

	h.m.handlePlaybackEvent(playback.Event{
		Room:  "a",
		Type:  playback.EventTrackStarted,
		Track: &track.Track{ID: "t1", CoverID: "slow"},
	})
	h.m.handlePlaybackEvent(playback.Event{Room: "b", Type: playback.EventPlaybackEnded})

	require.Eventually(t, func() bool { return stream.Has(notification.KindPlaybackEnded) }, waitFor, tick)
	assert.False(t, stream.Has(notification.KindTrackStarted))

	close(gate)
	require.Eventually(t, func() bool { return stream.Has(notification.KindTrackStarted) }, waitFor, tick)
	assert.Equal(t, "cache/slow.jpg", stream.Find(notification.KindTrackStarted).CoverPath)
}

func TestManager_RoomNotificationsKeepOrder(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	gate := make(chan struct{})
	h.catalog.coverGate = map[string]chan struct{}{"slow": gate}
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("room", stream)

	h.m.handlePlaybackEvent(playback.Event{
		Room:  "room",
		Type:  playback.EventTrackStarted,
		Track: &track.Track{ID: "t1", CoverID: "slow"},
	})
	h.m.handlePlaybackEvent(playback.Event{Room: "room", Type: playback.EventStopped})
	close(gate)

	require.Eventually(t, func() bool { return len(stream.Kinds()) == 2 }, waitFor, tick)
	assert.Equal(t, []notification.Kind{notification.KindTrackStarted, notification.KindStopped}, stream.Kinds())
}

func TestManager_CloseConcurrent(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.m.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, h.m.Close)
		}()
	}
	wg.Wait()

	select {
	case <-h.m.Done():
	default:
		t.Fatal("manager not done after close")
	}
}

func TestManager_JoinDuringIdleReap(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	for i := 0; i < 50; i++ {
		alice, err := h.m.Join(h.ctx, "room", "Alice", "")
		require.NoError(t, err)
		require.NoError(t, h.m.Leave("room", alice.ID))

		// The zero grace period fires the reaper while Bob joins.
		bob, err := h.m.Join(h.ctx, "room", "Bob", "")
		require.NoError(t, err)
		h.m.reapIdle("room")
		assert.True(t, h.m.Status(h.ctx, "room").Connected, "iteration %d", i)
		require.NoError(t, h.m.Leave("room", bob.ID))
	}
}

func TestManager_QueueChangedNotifications(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	stream := &recordingStream{}
	h.m.GetNotificationManager().Subscribe("room", stream)

	_, err := h.m.Join(h.ctx, "room", "Alice", "")
	require.NoError(t, err)
	_, err = h.m.Play(h.ctx, "room", "", "heroes")
	require.NoError(t, err)
	assert.False(t, stream.Has(notification.KindQueueChanged), "a started track is not a queue change")

	_, err = h.m.Play(h.ctx, "room", "", "starman")
	require.NoError(t, err)
	assert.True(t, stream.Has(notification.KindQueueChanged))

	assert.Empty(t, h.m.Clear(h.ctx, "other"))
	h.m.Shuffle(h.ctx, "room")
	assert.Len(t, h.m.Clear(h.ctx, "room"), 1)

	var changes int
	for _, k := range stream.Kinds() {
		if k == notification.KindQueueChanged {
			changes++
		}
	}
	assert.Equal(t, 3, changes)
}
