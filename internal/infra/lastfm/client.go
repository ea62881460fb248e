// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Config represents Last.fm client configuration.
type Config struct {
	APIKey   string
	BaseURL  string        // Defaults to the public API endpoint
	Timeout  time.Duration // Defaults to 10s
	CacheTTL time.Duration // Defaults to 1h
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64 // Similarity score in [0, 1]
}

// Error represents an error response from the Last.fm API.
type Error struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return "last.fm API error " + strconv.Itoa(e.Code) + ": " + e.Message
}

type getSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string          `json:"name"`
			Match  json.RawMessage `json:"match"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

type cacheEntry struct {
	tracks    []SimilarTrack
	expiresAt time.Time
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		ttl:        cfg.CacheTTL,
		cache:      make(map[string]cacheEntry),
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Results are cached per artist and track.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	key := cacheKey(artistName, trackName, limit)
	if tracks, ok := c.cached(key); ok {
		zlog.Debug().Msgf("lastfm: cache hit: artist=%s track=%s", artistName, trackName)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var response getSimilarResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	tracks := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		tracks = append(tracks, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  parseMatch(t.Match),
		})
	}

	c.store(key, tracks)
	return tracks, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var apiErr Error
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return nil, &apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("last.fm returned status %d", resp.StatusCode)
	}
	return body, nil
}

func cacheKey(artistName, trackName string, limit int) string {
	return strings.ToLower(artistName) + "\x00" + strings.ToLower(trackName) + "\x00" + strconv.Itoa(limit)
}

func (c *Client) cached(key string) ([]SimilarTrack, bool) {
	c.cacheMu.RLock()
	e, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.cacheMu.Lock()
		if cur, ok := c.cache[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.cache, key)
		}
		c.cacheMu.Unlock()
		return nil, false
	}
	return e.tracks, true
}

// store adds an entry and sweeps the expired ones.
func (c *Client) store(key string, tracks []SimilarTrack) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	now := time.Now()
	for k, e := range c.cache {
		if now.After(e.expiresAt) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cacheEntry{tracks: tracks, expiresAt: now.Add(c.ttl)}
}

// parseMatch accepts both the numeric and the quoted form Last.fm uses.
func parseMatch(raw json.RawMessage) float64 {
	s := strings.Trim(string(raw), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
