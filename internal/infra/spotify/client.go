// Package spotify resolves Spotify links into track and album metadata.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotALink is returned when the input is not a Spotify link of the requested kind.
var ErrNotALink = errors.New("not a spotify link")

// TrackInfo is the metadata of a Spotify track used to find it in the catalog.
type TrackInfo struct {
	ID       string
	Title    string
	Artists  []string
	Album    string
	Duration time.Duration
}

// Artist returns the primary artist name.
func (t TrackInfo) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// AlbumInfo is the metadata of a Spotify album.
type AlbumInfo struct {
	ID      string
	Name    string
	Artists []string
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client using the client credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	return &Client{
		client:     spotify.New(cc.Client(ctx)),
		market:     cfg.Market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by URL, URI, or ID.
func (c *Client) GetTrack(ctx context.Context, link string) (*TrackInfo, error) {
	id := ExtractTrackID(link)
	if id == "" {
		return nil, ErrNotALink
	}

	var opts []spotify.RequestOption
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), opts...)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	artists := make([]string, len(result.Artists))
	for i, a := range result.Artists {
		artists[i] = a.Name
	}
	return &TrackInfo{
		ID:       string(result.ID),
		Title:    result.Name,
		Artists:  artists,
		Album:    result.Album.Name,
		Duration: time.Duration(result.Duration) * time.Millisecond,
	}, nil
}

// GetAlbum retrieves album information by URL, URI, or ID.
func (c *Client) GetAlbum(ctx context.Context, link string) (*AlbumInfo, error) {
	id := ExtractAlbumID(link)
	if id == "" {
		return nil, ErrNotALink
	}

	var result *spotify.FullAlbum
	err := c.retry(ctx, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	artists := make([]string, len(result.Artists))
	for i, a := range result.Artists {
		artists[i] = a.Name
	}
	return &AlbumInfo{
		ID:      string(result.ID),
		Name:    result.Name,
		Artists: artists,
	}, nil
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsLink reports whether the input looks like a Spotify URL or URI.
func IsLink(input string) bool {
	input = strings.TrimSpace(input)
	return strings.HasPrefix(input, "spotify:") || strings.Contains(input, "open.spotify.com/")
}

// ExtractTrackID extracts the track ID from a Spotify track URL or URI.
// It returns "" when the input is a link of another kind.
func ExtractTrackID(input string) string {
	return extractID(input, "track")
}

// ExtractAlbumID extracts the album ID from a Spotify album URL or URI.
func ExtractAlbumID(input string) string {
	return extractID(input, "album")
}

func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	// spotify:track:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// https://open.spotify.com/track/ID or https://open.spotify.com/intl-XX/track/ID
	if strings.Contains(input, "open.spotify.com") {
		parts := strings.Split(input, "/"+kind+"/")
		if len(parts) < 2 {
			return ""
		}
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	if IsLink(input) || strings.ContainsAny(input, " /:") {
		return ""
	}
	// Bare ID
	return input
}
