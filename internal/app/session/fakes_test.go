package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/sonicbox/internal/app/notification"
	"github.com/osa030/sonicbox/internal/app/playback"
	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/room"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/config"
	"github.com/osa030/sonicbox/internal/infra/spotify"
	"github.com/osa030/sonicbox/internal/infra/store"
)

type fakeCatalog struct {
	mu     sync.Mutex
	search map[string][]track.Track
	albums map[string]*album.Album
	disco  map[string][]album.Album
	random []track.Track

	// coverGate blocks CoverArtPath for a cover ID until the channel is closed.
	coverGate map[string]chan struct{}
}

func (f *fakeCatalog) RandomTracks(_ context.Context, count int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if count < len(f.random) {
		return f.random[:count], nil
	}
	return f.random, nil
}

func (f *fakeCatalog) SimilarTracks(context.Context, string, int) ([]track.Track, error) {
	return nil, nil
}

func (f *fakeCatalog) ResolveStreamSource(_ context.Context, id string) (string, error) {
	return "http://stream/" + id, nil
}

func (f *fakeCatalog) Search(_ context.Context, query string, limit int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := f.search[query]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeCatalog) SearchAlbum(_ context.Context, query string) (*album.Album, error) {
	return f.albums[query], nil
}

func (f *fakeCatalog) Discography(_ context.Context, artist string) ([]album.Album, error) {
	return f.disco[artist], nil
}

func (f *fakeCatalog) CoverArtPath(_ context.Context, coverID string) string {
	if gate, ok := f.coverGate[coverID]; ok {
		<-gate
	}
	if coverID == "" {
		return "placeholder.jpg"
	}
	return "cache/" + coverID + ".jpg"
}

type fakeSink struct {
	mu        sync.Mutex
	streaming bool
	done      playback.CompletionFunc
	begins    []string
}

func (f *fakeSink) IsStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

func (f *fakeSink) BeginStreaming(src playback.Source, done playback.CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streaming {
		return playback.ErrAlreadyStreaming
	}
	f.streaming = true
	f.done = done
	f.begins = append(f.begins, src.TrackID)
	return nil
}

func (f *fakeSink) ForceStop() {
	f.Finish(nil)
}

// Finish ends the current stream.
func (f *fakeSink) Finish(err error) {
	f.mu.Lock()
	if !f.streaming {
		f.mu.Unlock()
		return
	}
	f.streaming = false
	done := f.done
	f.done = nil
	f.mu.Unlock()

	done(err)
}

func (f *fakeSink) Begins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.begins...)
}

type fakeSinkFactory struct {
	mu    sync.Mutex
	sinks []*fakeSink
}

func (f *fakeSinkFactory) New() playback.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSink{}
	f.sinks = append(f.sinks, s)
	return s
}

func (f *fakeSinkFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

type fakeStore struct {
	mu    sync.Mutex
	modes map[string]room.Mode
	err   error
}

func (f *fakeStore) Load(_ context.Context, roomID string) (store.RoomSettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode, ok := f.modes[roomID]
	return store.RoomSettings{RoomID: roomID, Autoplay: mode}, ok, nil
}

func (f *fakeStore) SaveAutoplay(_ context.Context, roomID string, mode room.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.modes[roomID] = mode
	return nil
}

func (f *fakeStore) Mode(roomID string) (room.Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode, ok := f.modes[roomID]
	return mode, ok
}

type fakeLinks struct {
	tracks map[string]*spotify.TrackInfo
	albums map[string]*spotify.AlbumInfo
}

func (f *fakeLinks) GetTrack(_ context.Context, link string) (*spotify.TrackInfo, error) {
	info, ok := f.tracks[link]
	if !ok {
		return nil, errors.New("spotify: not found")
	}
	return info, nil
}

type recordingStream struct {
	mu       sync.Mutex
	received []*notification.Notification
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) Kinds() []notification.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]notification.Kind, len(s.received))
	for i, n := range s.received {
		kinds[i] = n.Kind
	}
	return kinds
}

func (s *recordingStream) Find(kind notification.Kind) *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.received {
		if n.Kind == kind {
			return n
		}
	}
	return nil
}

func (s *recordingStream) Has(kind notification.Kind) bool {
	for _, k := range s.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		Playback: config.PlaybackConfig{
			DefaultAutoplay:   "none",
			EndedCooldownSec:  5,
			IdleDisconnectSec: 0,
			EventBuffer:       64,
		},
		Messages: config.MessagesConfig{
			PlaybackEnded:  "No more songs in the queue.",
			AutoplayFailed: "Autoplay could not find a song.",
		},
		Filters: map[string]config.FilterConfig{},
	}
}

func (f *fakeLinks) GetAlbum(_ context.Context, link string) (*spotify.AlbumInfo, error) {
	info, ok := f.albums[link]
	if !ok {
		return nil, errors.New("spotify: not found")
	}
	return info, nil
}
