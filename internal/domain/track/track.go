// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Defaults used when the catalog omits a field.
const (
	UnknownTitle  = "Unknown Track"
	UnknownAlbum  = "Unknown Album"
	UnknownArtist = "Unknown Artist"
)

// Track represents a single playable song from the catalog.
// Values are never mutated after construction.
type Track struct {
	ID       string        // Catalog-assigned song ID
	Title    string        // Song title
	Album    string        // Album name
	Artist   string        // Artist name
	CoverID  string        // Cover art ID
	Duration time.Duration // Whole seconds
}

// Raw holds the catalog fields as received. Nil pointers mean the field was absent.
type Raw struct {
	ID       *string
	Title    *string
	Album    *string
	Artist   *string
	CoverID  *string
	Duration *int
}

// FromCatalog builds a Track, replacing absent fields with their defaults.
func FromCatalog(r Raw) Track {
	t := Track{
		Title:  UnknownTitle,
		Album:  UnknownAlbum,
		Artist: UnknownArtist,
	}
	if r.ID != nil {
		t.ID = *r.ID
	}
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Album != nil {
		t.Album = *r.Album
	}
	if r.Artist != nil {
		t.Artist = *r.Artist
	}
	if r.CoverID != nil {
		t.CoverID = *r.CoverID
	}
	if r.Duration != nil && *r.Duration > 0 {
		t.Duration = time.Duration(*r.Duration) * time.Second
	}
	return t
}

// DurationPrintable returns the duration as mm:ss.
func (t Track) DurationPrintable() string {
	return FormatDuration(t.Duration)
}

// FormatDuration formats a duration as mm:ss using whole seconds.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
