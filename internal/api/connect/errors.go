package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/matcher"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/app/session"
	"github.com/osa030/sonicbox/internal/app/session/registry"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/infra/config"
	"github.com/osa030/sonicbox/internal/infra/subsonic"
)

// ResultCodeHeader carries the message code of a failed command.
const ResultCodeHeader = "X-Result-Code"

// classify returns the Connect code and message code for a command error.
func classify(err error) (connect.Code, string) {
	var rejected *session.RejectedError
	var catalogErr *subsonic.Error

	switch {
	case errors.As(err, &rejected):
		return connect.CodeFailedPrecondition, rejected.Code
	case errors.Is(err, playback.ErrNotConnected):
		return connect.CodeFailedPrecondition, "not_connected"
	case errors.Is(err, playback.ErrNotPlaying):
		return connect.CodeFailedPrecondition, "not_playing"
	case errors.Is(err, playback.ErrQueueEmpty):
		return connect.CodeFailedPrecondition, "queue_empty"
	case errors.Is(err, playback.ErrNoResults), errors.Is(err, matcher.ErrNoMatch):
		return connect.CodeNotFound, "no_results"
	case errors.Is(err, registry.ErrInvalidMember):
		return connect.CodeNotFound, "invalid_member"
	case errors.Is(err, room.ErrInvalidMode):
		return connect.CodeInvalidArgument, "invalid_mode"
	case errors.Is(err, session.ErrLinksDisabled):
		return connect.CodeUnimplemented, "links_disabled"
	case errors.As(err, &catalogErr):
		return connect.CodeUnavailable, "catalog_error"
	case errors.Is(err, playback.ErrSinkUnavailable):
		return connect.CodeUnavailable, "sink_unavailable"
	default:
		return connect.CodeInternal, "default_error"
	}
}

// toConnectError converts a command error to a Connect error carrying the
// configured user-facing message.
func toConnectError(cfg *config.Config, procedure string, err error) *connect.Error {
	code, msgCode := classify(err)
	if code == connect.CodeInternal || code == connect.CodeUnavailable {
		zlog.Error().Err(err).Msgf("connect: command failed: procedure=%s code=%s", procedure, msgCode)
	} else {
		zlog.Debug().Msgf("connect: command refused: procedure=%s code=%s error=%v", procedure, msgCode, err)
	}

	cerr := connect.NewError(code, errors.New(cfg.GetMessage(msgCode)))
	cerr.Meta().Set(ResultCodeHeader, msgCode)
	return cerr
}

// ResultCode returns the message code of an error returned by a RoomService client.
func ResultCode(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(ResultCodeHeader)
	}
	return ""
}
