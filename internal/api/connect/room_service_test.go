package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/app/session"
	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/config"
)

const testYAML = `
control:
  token: secret
subsonic:
  server: http://music.local:4533
  user: alice
  password: pw
playback:
  idle_disconnect_sec: 3600
`

type stubCatalog struct{}

func (stubCatalog) RandomTracks(context.Context, int) ([]track.Track, error) {
	return []track.Track{{ID: "rnd", Title: "Random", Artist: "Someone"}}, nil
}

func (stubCatalog) SimilarTracks(context.Context, string, int) ([]track.Track, error) {
	return nil, nil
}

func (stubCatalog) ResolveStreamSource(_ context.Context, id string) (string, error) {
	return "http://stream/" + id, nil
}

func (stubCatalog) Search(_ context.Context, query string, _ int) ([]track.Track, error) {
	switch query {
	case "heroes":
		return []track.Track{{ID: "heroes", Title: "Heroes", Artist: "David Bowie", Duration: 371 * time.Second}}, nil
	case "starman":
		return []track.Track{{ID: "starman", Title: "Starman", Artist: "David Bowie", Duration: 254 * time.Second}}, nil
	}
	return nil, nil
}

func (stubCatalog) SearchAlbum(_ context.Context, query string) (*album.Album, error) {
	if query != "low" {
		return nil, nil
	}
	return &album.Album{ID: "low", Songs: []track.Track{{ID: "l1"}, {ID: "l2"}}}, nil
}

func (stubCatalog) Discography(context.Context, string) ([]album.Album, error) {
	return nil, nil
}

func (stubCatalog) CoverArtPath(_ context.Context, coverID string) string {
	return "cache/" + coverID + ".jpg"
}

type holdSink struct {
	mu        sync.Mutex
	streaming bool
	done      playback.CompletionFunc
}

func (s *holdSink) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *holdSink) BeginStreaming(_ playback.Source, done playback.CompletionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return playback.ErrAlreadyStreaming
	}
	s.streaming, s.done = true, done
	return nil
}

func (s *holdSink) ForceStop() {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	done := s.done
	s.mu.Unlock()
	done(nil)
}

type holdSinkFactory struct{}

func (holdSinkFactory) New() playback.Sink { return &holdSink{} }

type testEnv struct {
	client  *RoomServiceClient
	anon    *RoomServiceClient
	manager *session.Manager
	cfg     *config.Config
	url     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)

	manager, err := session.NewManager(cfg, session.Deps{Catalog: stubCatalog{}, Sinks: holdSinkFactory{}})
	require.NoError(t, err)
	manager.Start()

	mux := http.NewServeMux()
	path, handler := NewRoomServiceHandler(
		NewRoomService(manager, cfg),
		connect.WithInterceptors(NewControlAuthInterceptor(cfg.Control.Token)),
	)
	mux.Handle(path, handler)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		manager.Close()
		server.Close()
	})

	return &testEnv{
		client:  NewRoomServiceClient(server.Client(), server.URL, connect.WithInterceptors(NewTokenInterceptor(cfg.Control.Token))),
		anon:    NewRoomServiceClient(server.Client(), server.URL),
		manager: manager,
		cfg:     cfg,
		url:     server.URL,
	}
}

func TestRoomService_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.anon.GetStatus(ctx, &RoomRequest{Room: "room"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	wrong := NewRoomServiceClient(http.DefaultClient, env.url, connect.WithInterceptors(NewTokenInterceptor("nope")))
	_, err = wrong.Queue(ctx, &RoomRequest{Room: "room"})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	stream, err := env.anon.Subscribe(ctx, &SubscribeRequest{Room: "room"})
	if err == nil {
		assert.False(t, stream.Receive())
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(stream.Err()))
		stream.Close()
	} else {
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	}
}

func TestRoomService_PlayFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Play(ctx, &PlayRequest{Room: "room", Query: "heroes"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	assert.Equal(t, "not_connected", ResultCode(err))
	assert.Contains(t, err.Error(), env.cfg.Messages.NotConnected)

	joined, err := env.client.Join(ctx, &JoinRequest{Room: "room", DisplayName: "Alice", ExternalUserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, joined.MemberID)

	played, err := env.client.Play(ctx, &PlayRequest{Room: "room", MemberID: joined.MemberID, Query: "heroes"})
	require.NoError(t, err)
	assert.True(t, played.Started)
	require.NotNil(t, played.Current)
	assert.Equal(t, "heroes", played.Current.ID)
	assert.Equal(t, int64(371), played.Current.DurationSeconds)

	played, err = env.client.Play(ctx, &PlayRequest{Room: "room", Query: "starman"})
	require.NoError(t, err)
	assert.False(t, played.Started)
	require.Len(t, played.Added, 1)

	queue, err := env.client.Queue(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)
	require.Len(t, queue.Tracks, 1)
	assert.Equal(t, "starman", queue.Tracks[0].ID)
	assert.Equal(t, int64(254), queue.TotalDurationSeconds)

	status, err := env.client.GetStatus(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)
	assert.Equal(t, "playing", status.State)
	assert.Equal(t, "none", status.Autoplay)
	assert.True(t, status.Connected)
	require.Len(t, status.Members, 1)
	assert.Equal(t, "Alice", status.Members[0].DisplayName)

	_, err = env.client.Play(ctx, &PlayRequest{Room: "room", Query: "nothing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	assert.Equal(t, "no_results", ResultCode(err))

	_, err = env.client.Skip(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := env.client.GetStatus(ctx, &RoomRequest{Room: "room"})
		return err == nil && s.Current != nil && s.Current.ID == "starman"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = env.client.Stop(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)
	_, err = env.client.Stop(ctx, &RoomRequest{Room: "room"})
	assert.Equal(t, "not_playing", ResultCode(err))

	cleared, err := env.client.Clear(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Removed)

	_, err = env.client.Leave(ctx, &LeaveRequest{Room: "room", MemberID: joined.MemberID})
	require.NoError(t, err)
	_, err = env.client.Leave(ctx, &LeaveRequest{Room: "room", MemberID: joined.MemberID})
	assert.Equal(t, "invalid_member", ResultCode(err))
}

func TestRoomService_AlbumAndAutoplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Join(ctx, &JoinRequest{Room: "room", DisplayName: "Alice"})
	require.NoError(t, err)

	_, err = env.client.Album(ctx, &AlbumRequest{Room: "room", Query: "missing"})
	assert.Equal(t, "no_results", ResultCode(err))

	played, err := env.client.Album(ctx, &AlbumRequest{Room: "room", Query: "low"})
	require.NoError(t, err)
	assert.True(t, played.Started)
	assert.Len(t, played.Added, 2)

	_, err = env.client.Disco(ctx, &DiscoRequest{Room: "room", Artist: "nobody"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = env.client.SetAutoplay(ctx, &SetAutoplayRequest{Room: "room", Mode: "loud"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	assert.Equal(t, "invalid_mode", ResultCode(err))

	resp, err := env.client.SetAutoplay(ctx, &SetAutoplayRequest{Room: "idle", Mode: "random"})
	require.NoError(t, err)
	assert.Equal(t, "random", resp.Mode)
	assert.False(t, resp.Started)

	_, err = env.client.Shuffle(ctx, &RoomRequest{Room: "room"})
	require.NoError(t, err)

	_, err = env.client.Play(ctx, &PlayRequest{Room: "room", Query: "https://open.spotify.com/track/abc"})
	assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))
	assert.Equal(t, "links_disabled", ResultCode(err))

	_, err = env.client.Play(ctx, &PlayRequest{Query: "heroes"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRoomService_Subscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.Subscribe(ctx, &SubscribeRequest{Room: "room"})
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	assert.Equal(t, "initial_state", stream.Msg().Kind)
	assert.Equal(t, "idle", stream.Msg().Message)

	require.Eventually(t, func() bool {
		return env.manager.GetNotificationManager().SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = env.client.Join(ctx, &JoinRequest{Room: "room", DisplayName: "Alice"})
	require.NoError(t, err)

	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	assert.Equal(t, "member_joined", stream.Msg().Kind)
	assert.Equal(t, "Alice", stream.Msg().Message)
	assert.Equal(t, uint64(1), stream.Msg().SequenceNo)

	_, err = env.client.Play(ctx, &PlayRequest{Room: "room", Query: "heroes"})
	require.NoError(t, err)

	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	assert.Equal(t, "track_started", stream.Msg().Kind)
	require.NotNil(t, stream.Msg().Track)
	assert.Equal(t, "heroes", stream.Msg().Track.ID)
}

func TestRoomService_SubscribeDisconnectDuringBroadcast(t *testing.T) {
	env := newTestEnv(t)
	notifManager := env.manager.GetNotificationManager()

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := env.client.Subscribe(ctx, &SubscribeRequest{Room: "room"})
		require.NoError(t, err)
		require.True(t, stream.Receive(), "stream error: %v", stream.Err())
		require.Eventually(t, func() bool {
			return notifManager.SubscriberCount() == 1
		}, 2*time.Second, 5*time.Millisecond)

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					notifManager.Broadcast(&notification.Notification{Room: "room", Kind: notification.KindQueueChanged})
				}
			}
		}()

		cancel()
		stream.Close()
		require.Eventually(t, func() bool {
			return notifManager.SubscriberCount() == 0
		}, 2*time.Second, 5*time.Millisecond)
		close(stop)
		wg.Wait()
	}
}

func TestNotificationStreamAdapter_SendAfterClose(t *testing.T) {
	adapter := &notificationStreamAdapter{}
	adapter.close()

	err := adapter.Send(&notification.Notification{Room: "room", Kind: notification.KindQueueChanged})
	assert.ErrorIs(t, err, errStreamClosed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code connect.Code
		msg  string
	}{
		{playback.ErrNotConnected, connect.CodeFailedPrecondition, "not_connected"},
		{playback.ErrNotPlaying, connect.CodeFailedPrecondition, "not_playing"},
		{playback.ErrAlreadyStreaming, connect.CodeUnavailable, "sink_unavailable"},
		{playback.ErrQueueEmpty, connect.CodeFailedPrecondition, "queue_empty"},
		{&session.RejectedError{Code: "duplicate_track"}, connect.CodeFailedPrecondition, "duplicate_track"},
		{session.ErrLinksDisabled, connect.CodeUnimplemented, "links_disabled"},
		{context.Canceled, connect.CodeInternal, "default_error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			code, msg := classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
