package subsonic

import (
	"time"

	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/track"
)

type envelope struct {
	Response response `json:"subsonic-response"`
}

type response struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`

	SearchResult3 *struct {
		Artist []artistJSON `json:"artist"`
		Album  []albumJSON  `json:"album"`
		Song   []songJSON   `json:"song"`
	} `json:"searchResult3"`
	Song        *songJSON   `json:"song"`
	Album       *albumJSON  `json:"album"`
	Artist      *artistJSON `json:"artist"`
	RandomSongs *struct {
		Song []songJSON `json:"song"`
	} `json:"randomSongs"`
	SimilarSongs2 *struct {
		Song []songJSON `json:"song"`
	} `json:"similarSongs2"`
}

func (r *response) err() error {
	if r.Status == "ok" {
		return nil
	}
	if r.Error == nil {
		return &Error{Code: CodeGeneric, Message: "status " + r.Status}
	}
	return &Error{Code: r.Error.Code, Message: r.Error.Message}
}

type songJSON struct {
	ID       *string `json:"id"`
	Title    *string `json:"title"`
	Album    *string `json:"album"`
	Artist   *string `json:"artist"`
	CoverArt *string `json:"coverArt"`
	Duration *int    `json:"duration"`
}

func (s songJSON) toTrack() track.Track {
	return track.FromCatalog(track.Raw{
		ID:       s.ID,
		Title:    s.Title,
		Album:    s.Album,
		Artist:   s.Artist,
		CoverID:  s.CoverArt,
		Duration: s.Duration,
	})
}

func toTracks(songs []songJSON) []track.Track {
	tracks := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, s.toTrack())
	}
	return tracks
}

type albumJSON struct {
	ID        *string    `json:"id"`
	Name      *string    `json:"name"`
	Artist    *string    `json:"artist"`
	CoverArt  *string    `json:"coverArt"`
	SongCount *int       `json:"songCount"`
	Duration  *int       `json:"duration"`
	Year      *int       `json:"year"`
	Song      []songJSON `json:"song"`
}

func (a albumJSON) toAlbum() album.Album {
	result := album.Album{
		ID:        deref(a.ID, ""),
		Name:      deref(a.Name, track.UnknownAlbum),
		Artist:    deref(a.Artist, track.UnknownArtist),
		CoverID:   deref(a.CoverArt, ""),
		SongCount: deref(a.SongCount, 0),
		Year:      deref(a.Year, 0),
		Songs:     toTracks(a.Song),
	}
	if d := deref(a.Duration, 0); d > 0 {
		result.Duration = time.Duration(d) * time.Second
	}
	return result
}

type artistJSON struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Album []albumJSON `json:"album"`
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
