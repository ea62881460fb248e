package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// RoomServiceClient is a client for the RoomService.
type RoomServiceClient struct {
	join        *connect.Client[JoinRequest, JoinResponse]
	leave       *connect.Client[LeaveRequest, Result]
	play        *connect.Client[PlayRequest, PlayResponse]
	album       *connect.Client[AlbumRequest, PlayResponse]
	disco       *connect.Client[DiscoRequest, PlayResponse]
	queue       *connect.Client[RoomRequest, QueueResponse]
	skip        *connect.Client[RoomRequest, Result]
	stop        *connect.Client[RoomRequest, Result]
	clear       *connect.Client[RoomRequest, ClearResponse]
	shuffle     *connect.Client[RoomRequest, Result]
	setAutoplay *connect.Client[SetAutoplayRequest, SetAutoplayResponse]
	getStatus   *connect.Client[RoomRequest, StatusResponse]
	subscribe   *connect.Client[SubscribeRequest, Notification]
}

// NewRoomServiceClient constructs a client for the RoomService at baseURL
// (for example, http://localhost:8080).
func NewRoomServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RoomServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSONCodec()}, opts...)
	return &RoomServiceClient{
		join:        connect.NewClient[JoinRequest, JoinResponse](httpClient, baseURL+RoomServiceJoinProcedure, opts...),
		leave:       connect.NewClient[LeaveRequest, Result](httpClient, baseURL+RoomServiceLeaveProcedure, opts...),
		play:        connect.NewClient[PlayRequest, PlayResponse](httpClient, baseURL+RoomServicePlayProcedure, opts...),
		album:       connect.NewClient[AlbumRequest, PlayResponse](httpClient, baseURL+RoomServiceAlbumProcedure, opts...),
		disco:       connect.NewClient[DiscoRequest, PlayResponse](httpClient, baseURL+RoomServiceDiscoProcedure, opts...),
		queue:       connect.NewClient[RoomRequest, QueueResponse](httpClient, baseURL+RoomServiceQueueProcedure, opts...),
		skip:        connect.NewClient[RoomRequest, Result](httpClient, baseURL+RoomServiceSkipProcedure, opts...),
		stop:        connect.NewClient[RoomRequest, Result](httpClient, baseURL+RoomServiceStopProcedure, opts...),
		clear:       connect.NewClient[RoomRequest, ClearResponse](httpClient, baseURL+RoomServiceClearProcedure, opts...),
		shuffle:     connect.NewClient[RoomRequest, Result](httpClient, baseURL+RoomServiceShuffleProcedure, opts...),
		setAutoplay: connect.NewClient[SetAutoplayRequest, SetAutoplayResponse](httpClient, baseURL+RoomServiceSetAutoplayProcedure, opts...),
		getStatus:   connect.NewClient[RoomRequest, StatusResponse](httpClient, baseURL+RoomServiceGetStatusProcedure, opts...),
		subscribe:   connect.NewClient[SubscribeRequest, Notification](httpClient, baseURL+RoomServiceSubscribeProcedure, opts...),
	}
}

// Join calls sonicbox.v1.RoomService.Join.
func (c *RoomServiceClient) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	return unary(ctx, c.join, req)
}

// Leave calls sonicbox.v1.RoomService.Leave.
func (c *RoomServiceClient) Leave(ctx context.Context, req *LeaveRequest) (*Result, error) {
	return unary(ctx, c.leave, req)
}

// Play calls sonicbox.v1.RoomService.Play.
func (c *RoomServiceClient) Play(ctx context.Context, req *PlayRequest) (*PlayResponse, error) {
	return unary(ctx, c.play, req)
}

// Album calls sonicbox.v1.RoomService.Album.
func (c *RoomServiceClient) Album(ctx context.Context, req *AlbumRequest) (*PlayResponse, error) {
	return unary(ctx, c.album, req)
}

// Disco calls sonicbox.v1.RoomService.Disco.
func (c *RoomServiceClient) Disco(ctx context.Context, req *DiscoRequest) (*PlayResponse, error) {
	return unary(ctx, c.disco, req)
}

// Queue calls sonicbox.v1.RoomService.Queue.
func (c *RoomServiceClient) Queue(ctx context.Context, req *RoomRequest) (*QueueResponse, error) {
	return unary(ctx, c.queue, req)
}

// Skip calls sonicbox.v1.RoomService.Skip.
func (c *RoomServiceClient) Skip(ctx context.Context, req *RoomRequest) (*Result, error) {
	return unary(ctx, c.skip, req)
}

// Stop calls sonicbox.v1.RoomService.Stop.
func (c *RoomServiceClient) Stop(ctx context.Context, req *RoomRequest) (*Result, error) {
	return unary(ctx, c.stop, req)
}

// Clear calls sonicbox.v1.RoomService.Clear.
func (c *RoomServiceClient) Clear(ctx context.Context, req *RoomRequest) (*ClearResponse, error) {
	return unary(ctx, c.clear, req)
}

// Shuffle calls sonicbox.v1.RoomService.Shuffle.
func (c *RoomServiceClient) Shuffle(ctx context.Context, req *RoomRequest) (*Result, error) {
	return unary(ctx, c.shuffle, req)
}

// SetAutoplay calls sonicbox.v1.RoomService.SetAutoplay.
func (c *RoomServiceClient) SetAutoplay(ctx context.Context, req *SetAutoplayRequest) (*SetAutoplayResponse, error) {
	return unary(ctx, c.setAutoplay, req)
}

// GetStatus calls sonicbox.v1.RoomService.GetStatus.
func (c *RoomServiceClient) GetStatus(ctx context.Context, req *RoomRequest) (*StatusResponse, error) {
	return unary(ctx, c.getStatus, req)
}

// Subscribe calls sonicbox.v1.RoomService.Subscribe.
func (c *RoomServiceClient) Subscribe(ctx context.Context, req *SubscribeRequest) (*connect.ServerStreamForClient[Notification], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(req))
}

func unary[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
