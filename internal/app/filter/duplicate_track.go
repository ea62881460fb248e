package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/sonicbox/internal/domain/track"
)

// DuplicateTrackFilter rejects a track that is already playing or queued.
// Detects:
// - Exact track ID matches
// - Remasters and alternate versions (normalized title + same artist)
// Excludes:
// - Cover songs (same title but different artist)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects songs already playing or queued in the room, including remasters. Covers by other artists are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(_ context.Context, req Request, requested track.Track) Result {
	if req.Room == nil {
		return Accept()
	}

	existing := req.Room.Queue()
	if current, ok := req.Room.CurrentTrack(); ok {
		existing = append(existing, *current)
	}

	for _, t := range existing {
		if t.ID != "" && t.ID == requested.ID {
			return Reject("duplicate_track")
		}
		if isRemaster(t, requested) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isRemaster reports whether two tracks are versions of the same song by the same artist.
func isRemaster(a, b track.Track) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return isSameArtist(a, b)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),         // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),            // "(Radio Edit)"
		regexp.MustCompile(`\s*-\s*live\b.*$`),          // "- Live at Wembley"
		regexp.MustCompile(`\s*[(\[]live\b.*?[)\]]`),    // "(Live)"
		regexp.MustCompile(`\s*-\s*radio\s+edit\b`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-\s*single\s+version\b`), // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes remaster information and version details.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = whitespace.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

// isSameArtist compares artists case-insensitively. Unknown artists never match.
func isSameArtist(a, b track.Track) bool {
	if a.Artist == "" || b.Artist == "" || a.Artist == track.UnknownArtist || b.Artist == track.UnknownArtist {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a.Artist), strings.TrimSpace(b.Artist))
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
