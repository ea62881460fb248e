// Package album provides the Album domain entity.
package album

import (
	"time"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// Album represents an album returned by the catalog.
// Songs keep the catalog's disc/track order and may be empty.
type Album struct {
	ID        string        // Catalog album ID
	Name      string        // Album name
	Artist    string        // Album artist
	CoverID   string        // Cover art ID
	SongCount int           // Declared song count
	Duration  time.Duration // Declared total duration
	Year      int           // Release year (0 if unknown)
	Songs     []track.Track // Songs in catalog order
}

// TrackIDs returns all song IDs in the album.
func (a *Album) TrackIDs() []string {
	return track.IDs(a.Songs)
}

// TotalDuration returns the summed duration of the album's songs.
// Useful when the catalog omits the declared duration.
func (a *Album) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range a.Songs {
		total += t.Duration
	}
	return total
}

// DurationPrintable returns the declared duration as mm:ss.
func (a *Album) DurationPrintable() string {
	return track.FormatDuration(a.Duration)
}
