// Package connect provides the RoomService over Connect RPC.
package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/app/session"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/infra/config"
)

// RoomServiceName is the fully-qualified name of the RoomService.
const RoomServiceName = "sonicbox.v1.RoomService"

// Procedure paths of the RoomService.
const (
	RoomServiceJoinProcedure        = "/" + RoomServiceName + "/Join"
	RoomServiceLeaveProcedure       = "/" + RoomServiceName + "/Leave"
	RoomServicePlayProcedure        = "/" + RoomServiceName + "/Play"
	RoomServiceAlbumProcedure       = "/" + RoomServiceName + "/Album"
	RoomServiceDiscoProcedure       = "/" + RoomServiceName + "/Disco"
	RoomServiceQueueProcedure       = "/" + RoomServiceName + "/Queue"
	RoomServiceSkipProcedure        = "/" + RoomServiceName + "/Skip"
	RoomServiceStopProcedure        = "/" + RoomServiceName + "/Stop"
	RoomServiceClearProcedure       = "/" + RoomServiceName + "/Clear"
	RoomServiceShuffleProcedure     = "/" + RoomServiceName + "/Shuffle"
	RoomServiceSetAutoplayProcedure = "/" + RoomServiceName + "/SetAutoplay"
	RoomServiceGetStatusProcedure   = "/" + RoomServiceName + "/GetStatus"
	RoomServiceSubscribeProcedure   = "/" + RoomServiceName + "/Subscribe"
)

var errRoomRequired = errors.New("room is required")

// RoomService implements the RoomService RPC.
type RoomService struct {
	session *session.Manager
	config  *config.Config
}

// NewRoomService creates a new RoomService.
func NewRoomService(session *session.Manager, cfg *config.Config) *RoomService {
	return &RoomService{
		session: session,
		config:  cfg,
	}
}

// NewRoomServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewRoomServiceHandler(svc *RoomService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RoomServiceJoinProcedure, connect.NewUnaryHandler(RoomServiceJoinProcedure, svc.Join, opts...))
	mux.Handle(RoomServiceLeaveProcedure, connect.NewUnaryHandler(RoomServiceLeaveProcedure, svc.Leave, opts...))
	mux.Handle(RoomServicePlayProcedure, connect.NewUnaryHandler(RoomServicePlayProcedure, svc.Play, opts...))
	mux.Handle(RoomServiceAlbumProcedure, connect.NewUnaryHandler(RoomServiceAlbumProcedure, svc.Album, opts...))
	mux.Handle(RoomServiceDiscoProcedure, connect.NewUnaryHandler(RoomServiceDiscoProcedure, svc.Disco, opts...))
	mux.Handle(RoomServiceQueueProcedure, connect.NewUnaryHandler(RoomServiceQueueProcedure, svc.Queue, opts...))
	mux.Handle(RoomServiceSkipProcedure, connect.NewUnaryHandler(RoomServiceSkipProcedure, svc.Skip, opts...))
	mux.Handle(RoomServiceStopProcedure, connect.NewUnaryHandler(RoomServiceStopProcedure, svc.Stop, opts...))
	mux.Handle(RoomServiceClearProcedure, connect.NewUnaryHandler(RoomServiceClearProcedure, svc.Clear, opts...))
	mux.Handle(RoomServiceShuffleProcedure, connect.NewUnaryHandler(RoomServiceShuffleProcedure, svc.Shuffle, opts...))
	mux.Handle(RoomServiceSetAutoplayProcedure, connect.NewUnaryHandler(RoomServiceSetAutoplayProcedure, svc.SetAutoplay, opts...))
	mux.Handle(RoomServiceGetStatusProcedure, connect.NewUnaryHandler(RoomServiceGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(RoomServiceSubscribeProcedure, connect.NewServerStreamHandler(RoomServiceSubscribeProcedure, svc.Subscribe, opts...))
	return "/" + RoomServiceName + "/", mux
}

// Join handles member join requests. The room's sink is connected on first join.
func (s *RoomService) Join(
	ctx context.Context,
	req *connect.Request[JoinRequest],
) (*connect.Response[JoinResponse], error) {
	if req.Msg.Room == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errRoomRequired)
	}
	member, err := s.session.Join(ctx, req.Msg.Room, req.Msg.DisplayName, req.Msg.ExternalUserID)
	if err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	return connect.NewResponse(&JoinResponse{MemberID: member.ID}), nil
}

// Leave handles member leave requests.
func (s *RoomService) Leave(
	ctx context.Context,
	req *connect.Request[LeaveRequest],
) (*connect.Response[Result], error) {
	if err := s.session.Leave(req.Msg.Room, req.Msg.MemberID); err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	return s.success(), nil
}

// Play queues the best match for a query or Spotify link.
func (s *RoomService) Play(
	ctx context.Context,
	req *connect.Request[PlayRequest],
) (*connect.Response[PlayResponse], error) {
	if req.Msg.Room == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errRoomRequired)
	}
	result, err := s.session.Play(ctx, req.Msg.Room, req.Msg.MemberID, req.Msg.Query)
	return s.playResponse(req.Spec().Procedure, result, err)
}

// Album queues every song of the best matching album.
func (s *RoomService) Album(
	ctx context.Context,
	req *connect.Request[AlbumRequest],
) (*connect.Response[PlayResponse], error) {
	if req.Msg.Room == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errRoomRequired)
	}
	result, err := s.session.Album(ctx, req.Msg.Room, req.Msg.Query)
	return s.playResponse(req.Spec().Procedure, result, err)
}

// Disco queues the discography of the best matching artist.
func (s *RoomService) Disco(
	ctx context.Context,
	req *connect.Request[DiscoRequest],
) (*connect.Response[PlayResponse], error) {
	if req.Msg.Room == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errRoomRequired)
	}
	result, err := s.session.Disco(ctx, req.Msg.Room, req.Msg.Artist)
	return s.playResponse(req.Spec().Procedure, result, err)
}

// Queue lists the queued tracks.
func (s *RoomService) Queue(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[QueueResponse], error) {
	status := s.session.Status(ctx, req.Msg.Room)
	return connect.NewResponse(&QueueResponse{
		Tracks:               toTracks(status.Queue),
		TotalDurationSeconds: int64(status.TotalDuration / time.Second),
	}), nil
}

// Skip skips the current track.
func (s *RoomService) Skip(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[Result], error) {
	if err := s.session.Skip(ctx, req.Msg.Room); err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	return s.success(), nil
}

// Stop stops playback and keeps the current track at the head of the queue.
func (s *RoomService) Stop(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[Result], error) {
	if err := s.session.Stop(ctx, req.Msg.Room); err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	return s.success(), nil
}

// Clear empties the queue.
func (s *RoomService) Clear(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[ClearResponse], error) {
	removed := s.session.Clear(ctx, req.Msg.Room)
	return connect.NewResponse(&ClearResponse{Removed: len(removed)}), nil
}

// Shuffle shuffles the queue.
func (s *RoomService) Shuffle(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[Result], error) {
	s.session.Shuffle(ctx, req.Msg.Room)
	return s.success(), nil
}

// SetAutoplay sets and persists the autoplay mode.
func (s *RoomService) SetAutoplay(
	ctx context.Context,
	req *connect.Request[SetAutoplayRequest],
) (*connect.Response[SetAutoplayResponse], error) {
	mode, err := room.ParseMode(req.Msg.Mode)
	if err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	started, err := s.session.SetAutoplay(ctx, req.Msg.Room, mode)
	if err != nil {
		return nil, toConnectError(s.config, req.Spec().Procedure, err)
	}
	return connect.NewResponse(&SetAutoplayResponse{Mode: mode.String(), Started: started}), nil
}

// GetStatus returns the status of a room.
func (s *RoomService) GetStatus(
	ctx context.Context,
	req *connect.Request[RoomRequest],
) (*connect.Response[StatusResponse], error) {
	return connect.NewResponse(s.status(ctx, req.Msg.Room)), nil
}

// Subscribe streams the notifications of a room until the client goes away
// or the server shuts down. The first message is the room's initial state.
func (s *RoomService) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[Notification],
) error {
	notifManager := s.session.GetNotificationManager()
	adapter := &notificationStreamAdapter{stream: stream}

	if req.Msg.Room != "" {
		status := s.status(ctx, req.Msg.Room)
		initial := &Notification{
			Room:      req.Msg.Room,
			Kind:      string(notification.KindInitialState),
			Timestamp: time.Now().Format(time.RFC3339Nano),
			Track:     status.Current,
			CoverPath: status.CoverPath,
			Message:   status.State,
		}
		if err := adapter.send(initial); err != nil {
			return err
		}
	}

	subscriptionID := notifManager.Subscribe(req.Msg.Room, adapter)
	zlog.Debug().Msgf("connect: subscriber attached: id=%s room=%s", subscriptionID, req.Msg.Room)

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}

	notifManager.Unsubscribe(subscriptionID)
	adapter.close()
	return nil
}

func (s *RoomService) status(ctx context.Context, roomID string) *StatusResponse {
	status := s.session.Status(ctx, roomID)
	return &StatusResponse{
		Room:                 status.Room,
		State:                status.State.String(),
		Current:              toTrack(status.Current),
		CoverPath:            status.CoverPath,
		Queue:                toTracks(status.Queue),
		TotalDurationSeconds: int64(status.TotalDuration / time.Second),
		Autoplay:             status.Autoplay.String(),
		Connected:            status.Connected,
		Members:              toMembers(status.Members),
	}
}

func (s *RoomService) playResponse(procedure string, result *session.PlayResult, err error) (*connect.Response[PlayResponse], error) {
	if err != nil {
		return nil, toConnectError(s.config, procedure, err)
	}
	return connect.NewResponse(&PlayResponse{
		Added:   toTracks(result.Added),
		Started: result.Outcome == playback.OutcomeStarted,
		Current: toTrack(result.Current),
		Message: s.config.GetMessage("success"),
	}), nil
}

func (s *RoomService) success() *connect.Response[Result] {
	return connect.NewResponse(&Result{Message: s.config.GetMessage("success")})
}

// errStreamClosed is returned for sends that arrive after the handler returned.
var errStreamClosed = errors.New("notification stream closed")

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Broadcasts may overlap, so sends are serialized.
// A timed-out broadcast can still be sending when the handler returns, so
// the stream must not be touched once closed.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	closed bool
	stream *connect.ServerStream[Notification]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	return a.send(toNotification(n))
}

func (a *notificationStreamAdapter) send(n *Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(n)
}

// close waits for an in-flight send and rejects later ones.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
