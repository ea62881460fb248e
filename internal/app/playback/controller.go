package playback

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/domain/track"
)

// Outcome is the result of an Advance call.
type Outcome int

const (
	OutcomeAlreadyStreaming Outcome = iota // Sink was streaming, nothing changed
	OutcomeStarted                         // A track started streaming
	OutcomeEnded                           // Nothing left to play, room is idle
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyStreaming:
		return "already_streaming"
	case OutcomeStarted:
		return "started"
	case OutcomeEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Config holds controller configuration.
type Config struct {
	Room     string    // Room identifier
	Autoplay room.Mode // Initial autoplay mode
}

// Completion is posted by a sink callback when a streaming attempt ends.
type Completion struct {
	Room    string
	Attempt uint64
	Err     error

	sink Sink
}

// Controller manages playback of one room with an internal queue.
type Controller struct {
	mu sync.RWMutex

	room    string
	state   roomState
	catalog Catalog

	// A completion is honoured only if its attempt is still the latest.
	attempt uint64

	rng *rand.Rand

	// Events
	eventCh chan<- Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller for a room.
// Events are sent to events without blocking; a full channel drops them.
func NewController(config Config, catalog Catalog, events chan<- Event) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		room:    config.Room,
		state:   roomState{queue: make([]track.Track, 0), autoplay: config.Autoplay},
		catalog: catalog,
		rng:     newRand(),
		eventCh: events,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Room returns the room identifier.
func (c *Controller) Room() string {
	return c.room
}

// Enqueue adds a track to the end of the queue.
func (c *Controller) Enqueue(t track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.pushBack(t)
}

// EnqueueMultiple adds multiple tracks to the end of the queue, keeping their order.
func (c *Controller) EnqueueMultiple(ts []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.pushBack(ts...)
}

// Advance starts the next track if the sink is idle.
// When the queue is empty the autoplay policy may refill it with one track.
// If the stream cannot be started the popped track is put back at the head of the queue.
func (c *Controller) Advance(ctx context.Context, sink Sink) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sink == nil {
		return OutcomeEnded, ErrNotConnected
	}
	return c.advanceLocked(ctx, sink)
}

// Skip force-stops the current track. The next track is started by the
// completion of the stopped stream.
func (c *Controller) Skip(sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sink == nil {
		return ErrNotConnected
	}
	if c.state.current == nil || !sink.IsStreaming() {
		return ErrNotPlaying
	}

	skipped := c.state.current
	zlog.Info().Msgf("playback: skipping track: room=%s track=%s", c.room, skipped.ID)

	sink.ForceStop()

	c.sendEventLocked(Event{
		Type:  EventTrackSkipped,
		Track: skipped,
		State: StatePlaying,
	})
	return nil
}

// Stop force-stops the current track and puts it back at the head of the queue.
// Autoplay is not consulted.
func (c *Controller) Stop(sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sink == nil {
		return ErrNotConnected
	}
	if c.state.current == nil || !sink.IsStreaming() {
		return ErrNotPlaying
	}

	stopped := c.state.current
	c.invalidateLocked(sink)

	c.state.pushFront(*stopped)
	c.state.setCurrent(nil)

	zlog.Info().Msgf("playback: stopped: room=%s track=%s queue=%d", c.room, stopped.ID, len(c.state.queue))

	c.sendEventLocked(Event{
		Type:  EventStopped,
		Track: stopped,
		State: StateIdle,
	})
	return nil
}

// Clear removes all tracks from the queue and returns them.
func (c *Controller) Clear() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.state.queue
	c.state.setQueue(make([]track.Track, 0))
	return removed
}

// Shuffle replaces the queue with a uniformly random permutation of itself.
func (c *Controller) Shuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	shuffled := c.state.snapshotQueue()
	for i := len(shuffled) - 1; i > 0; i-- {
		j := c.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	c.state.setQueue(shuffled)
}

// SetAutoplay sets the autoplay mode. It reports whether the caller should
// call Advance to kick off playback: the mode enables autoplay while the
// room is idle with an empty queue.
func (c *Controller) SetAutoplay(mode room.Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.autoplay = mode
	zlog.Info().Msgf("playback: autoplay set: room=%s mode=%s", c.room, mode)

	return mode != room.ModeNone && c.state.current == nil && len(c.state.queue) == 0
}

// Reset force-stops the sink and drops the queue and current track.
// Used when a room is left unattended.
func (c *Controller) Reset(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateLocked(sink)
	c.state.setQueue(make([]track.Track, 0))
	c.state.setCurrent(nil)

	zlog.Debug().Msgf("playback: reset: room=%s", c.room)
}

// Queue returns a copy of the queued tracks.
func (c *Controller) Queue() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.snapshotQueue()
}

// CurrentTrack returns the currently streaming track.
func (c *Controller) CurrentTrack() (*track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state.current == nil {
		return nil, false
	}
	t := *c.state.current
	return &t, true
}

// AutoplayMode returns the room's autoplay mode.
func (c *Controller) AutoplayMode() room.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.autoplay
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

// TotalDuration returns the total duration of all queued tracks.
func (c *Controller) TotalDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total time.Duration
	for _, t := range c.state.queue {
		total += t.Duration
	}
	return total
}

// Close cancels pending completion handling.
func (c *Controller) Close() {
	c.cancel()
}

func (c *Controller) stateLocked() State {
	if c.state.current == nil {
		return StateIdle
	}
	return StatePlaying
}

// advanceLocked implements Advance.
// Must be called with lock held.
func (c *Controller) advanceLocked(ctx context.Context, sink Sink) (Outcome, error) {
	if sink.IsStreaming() {
		return OutcomeAlreadyStreaming, nil
	}
	c.attempt++

	next, ok := c.state.popFront()
	if !ok {
		seedID := c.state.currentID()
		c.state.setCurrent(nil)

		refilled, err := c.refillLocked(ctx, seedID)
		if !refilled {
			if err != nil {
				zlog.Warn().Err(err).Msgf("playback: autoplay failed: room=%s mode=%s", c.room, c.state.autoplay)
				c.sendEventLocked(Event{
					Type:  EventAutoplayFailed,
					State: StateIdle,
					Err:   err,
				})
			}
			zlog.Info().Msgf("playback: playback ended: room=%s", c.room)
			c.sendEventLocked(Event{
				Type:  EventPlaybackEnded,
				State: StateIdle,
			})
			return OutcomeEnded, nil
		}
		next, _ = c.state.popFront()
	}

	if err := c.startLocked(ctx, sink, next); err != nil {
		c.state.pushFront(next)
		c.state.setCurrent(nil)
		return OutcomeEnded, err
	}
	return OutcomeStarted, nil
}

// startLocked makes t current and begins streaming it.
// Must be called with lock held.
func (c *Controller) startLocked(ctx context.Context, sink Sink, t track.Track) error {
	c.state.setCurrent(&t)

	url, err := c.catalog.ResolveStreamSource(ctx, t.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve stream source: track=%s", t.ID)
	}

	attempt := c.attempt
	src := Source{TrackID: t.ID, URL: url, Duration: t.Duration}
	err = sink.BeginStreaming(src, func(err error) {
		// The sink must never be re-entered from its own callback.
		go c.handleCompletion(Completion{Room: c.room, Attempt: attempt, Err: err, sink: sink})
	})
	if err != nil {
		return errors.Wrapf(err, "failed to begin streaming: track=%s", t.ID)
	}

	zlog.Info().Msgf("playback: track started: room=%s track=%s title=%q duration=%s",
		c.room, t.ID, t.Title, t.DurationPrintable())

	c.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Track: &t,
		State: StatePlaying,
	})
	return nil
}

// handleCompletion re-enters the controller after a streaming attempt ended.
func (c *Controller) handleCompletion(comp Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	if comp.Attempt != c.attempt {
		zlog.Debug().Msgf("playback: stale completion dropped: room=%s attempt=%d current=%d",
			c.room, comp.Attempt, c.attempt)
		return
	}

	if comp.Err != nil {
		zlog.Warn().Err(comp.Err).Msgf("playback: stream ended with error: room=%s track=%s", c.room, c.state.currentID())
		c.sendEventLocked(Event{
			Type:  EventStreamFailed,
			Track: c.state.current,
			State: StatePlaying,
			Err:   comp.Err,
		})
	}

	if _, err := c.advanceLocked(c.ctx, comp.sink); err != nil {
		zlog.Error().Err(err).Msgf("playback: failed to advance after completion: room=%s", c.room)
		c.sendEventLocked(Event{
			Type:  EventStreamFailed,
			State: StateIdle,
			Err:   err,
		})
	}
}

// invalidateLocked makes any pending completion stale and stops the sink.
// Must be called with lock held.
func (c *Controller) invalidateLocked(sink Sink) {
	c.attempt++
	if sink != nil {
		sink.ForceStop()
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.eventCh == nil {
		return
	}
	e.Room = c.room
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: event dropped: room=%s type=%s", c.room, e.Type)
	}
}

func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
