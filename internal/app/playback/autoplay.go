package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/room"
)

// refillLocked appends one track chosen by the autoplay policy.
// It never touches a non-empty queue and reports false when autoplay is off.
// An empty seedID forces RANDOM for this call only.
// Must be called with lock held.
func (c *Controller) refillLocked(ctx context.Context, seedID string) (bool, error) {
	if len(c.state.queue) > 0 || c.state.autoplay == room.ModeNone {
		return false, nil
	}

	mode := c.state.autoplay
	if seedID == "" {
		mode = room.ModeRandom
	}

	if mode == room.ModeSimilar {
		tracks, err := c.catalog.SimilarTracks(ctx, seedID, 1)
		switch {
		case err != nil:
			zlog.Warn().Err(err).Msgf("playback: similar lookup failed, falling back to random: room=%s seed=%s", c.room, seedID)
		case len(tracks) == 0:
			zlog.Debug().Msgf("playback: no similar tracks, falling back to random: room=%s seed=%s", c.room, seedID)
		default:
			c.state.pushBack(tracks[0])
			zlog.Info().Msgf("playback: autoplay appended similar track: room=%s seed=%s track=%s", c.room, seedID, tracks[0].ID)
			return true, nil
		}
	}

	tracks, err := c.catalog.RandomTracks(ctx, 1)
	if err != nil {
		return false, errors.Wrap(err, "failed to get random track")
	}
	if len(tracks) == 0 {
		return false, errors.Wrap(ErrNoResults, "random lookup returned no tracks")
	}

	c.state.pushBack(tracks[0])
	zlog.Info().Msgf("playback: autoplay appended random track: room=%s track=%s", c.room, tracks[0].ID)
	return true, nil
}
