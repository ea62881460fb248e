// Package subsonic provides a client for Subsonic-compatible music servers.
package subsonic

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/osa030/sonicbox/internal/domain/album"
	"github.com/osa030/sonicbox/internal/domain/track"
)

// Config represents Subsonic client configuration.
type Config struct {
	Server           string
	User             string
	Password         string
	LegacyAuth       bool // Send the password in clear instead of a salted token
	ClientName       string
	APIVersion       string
	RequestTimeout   time.Duration
	RateLimitPerSec  int
	CoverCacheDir    string
	PlaceholderCover string
	CoverSize        int
}

// Client is a Subsonic API client.
// The HTTP session is created on first use and released by Close.
type Client struct {
	cfg     Config
	baseURL string
	limiter *rate.Limiter

	sessionOnce sync.Once
	httpClient  *http.Client

	mu     sync.RWMutex
	closed bool

	covers singleflight.Group
}

// New creates a new Subsonic client.
func New(cfg Config) (*Client, error) {
	if cfg.Server == "" || cfg.User == "" {
		return nil, errors.New("subsonic server and user are required")
	}
	if _, err := url.Parse(cfg.Server); err != nil {
		return nil, errors.Wrap(err, "invalid subsonic server url")
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "sonicbox"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "1.15.0"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.CoverCacheDir == "" {
		cfg.CoverCacheDir = "cache"
	}
	if cfg.PlaceholderCover == "" {
		cfg.PlaceholderCover = "resources/cover_not_found.jpg"
	}
	if cfg.CoverSize <= 0 {
		cfg.CoverSize = 300
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.Server, "/") + "/rest/",
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitPerSec),
	}, nil
}

// session returns the shared HTTP client, creating it on first use.
func (c *Client) session() (*http.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.sessionOnce.Do(func() {
		c.httpClient = &http.Client{Timeout: c.cfg.RequestTimeout}
		zlog.Debug().Msgf("subsonic: session created: server=%s", c.cfg.Server)
	})
	return c.httpClient, nil
}

// Close releases the HTTP session. Later calls fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	zlog.Debug().Msg("subsonic: session closed")
}

// Ping checks connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping.view", nil)
	return err
}

// Search returns up to songLimit songs matching the query.
func (c *Client) Search(ctx context.Context, query string, songLimit int) ([]track.Track, error) {
	if songLimit <= 0 {
		songLimit = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("artistCount", "0")
	params.Set("albumCount", "0")
	params.Set("songCount", strconv.Itoa(songLimit))
	params.Set("songOffset", "0")

	resp, err := c.call(ctx, "search3.view", params)
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil {
		return []track.Track{}, nil
	}
	return toTracks(resp.SearchResult3.Song), nil
}

// SearchAlbum returns the best matching album with all its songs, or nil if none matches.
func (c *Client) SearchAlbum(ctx context.Context, query string) (*album.Album, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("artistCount", "0")
	params.Set("albumCount", "1")
	params.Set("albumOffset", "0")
	params.Set("songCount", "0")

	resp, err := c.call(ctx, "search3.view", params)
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil || len(resp.SearchResult3.Album) == 0 || resp.SearchResult3.Album[0].ID == nil {
		return nil, nil
	}
	return c.GetAlbum(ctx, *resp.SearchResult3.Album[0].ID)
}

// GetAlbum returns an album with its songs in catalog order.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (*album.Album, error) {
	params := url.Values{}
	params.Set("id", albumID)

	resp, err := c.call(ctx, "getAlbum.view", params)
	if err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, &Error{Code: CodeNotFound, Message: "album missing from response"}
	}
	a := resp.Album.toAlbum()
	return &a, nil
}

// GetSong returns a single song.
func (c *Client) GetSong(ctx context.Context, songID string) (*track.Track, error) {
	params := url.Values{}
	params.Set("id", songID)

	resp, err := c.call(ctx, "getSong.view", params)
	if err != nil {
		return nil, err
	}
	if resp.Song == nil {
		return nil, &Error{Code: CodeNotFound, Message: "song missing from response"}
	}
	t := resp.Song.toTrack()
	return &t, nil
}

// Discography returns every album of the best matching artist, or nil if no artist matches.
func (c *Client) Discography(ctx context.Context, artistName string) ([]album.Album, error) {
	params := url.Values{}
	params.Set("query", artistName)
	params.Set("artistCount", "1")
	params.Set("albumCount", "0")
	params.Set("songCount", "0")

	resp, err := c.call(ctx, "search3.view", params)
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil || len(resp.SearchResult3.Artist) == 0 {
		return nil, nil
	}

	artistParams := url.Values{}
	artistParams.Set("id", resp.SearchResult3.Artist[0].ID)
	resp, err = c.call(ctx, "getArtist.view", artistParams)
	if err != nil {
		return nil, err
	}
	if resp.Artist == nil || len(resp.Artist.Album) == 0 {
		return nil, nil
	}

	albums := make([]album.Album, 0, len(resp.Artist.Album))
	for _, entry := range resp.Artist.Album {
		if entry.ID == nil {
			continue
		}
		a, err := c.GetAlbum(ctx, *entry.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get album: id=%s", *entry.ID)
		}
		albums = append(albums, *a)
	}
	return albums, nil
}

// RandomTracks returns up to count random songs.
func (c *Client) RandomTracks(ctx context.Context, count int) ([]track.Track, error) {
	params := url.Values{}
	params.Set("size", strconv.Itoa(count))

	resp, err := c.call(ctx, "getRandomSongs.view", params)
	if err != nil {
		return nil, err
	}
	if resp.RandomSongs == nil {
		return []track.Track{}, nil
	}
	return toTracks(resp.RandomSongs.Song), nil
}

// SimilarTracks returns up to count songs similar to the seed song.
func (c *Client) SimilarTracks(ctx context.Context, seedID string, count int) ([]track.Track, error) {
	params := url.Values{}
	params.Set("id", seedID)
	params.Set("count", strconv.Itoa(count))

	resp, err := c.call(ctx, "getSimilarSongs2.view", params)
	if err != nil {
		return nil, err
	}
	if resp.SimilarSongs2 == nil {
		return []track.Track{}, nil
	}
	return toTracks(resp.SimilarSongs2.Song), nil
}

// ResolveStreamSource returns a signed stream URL for a song after checking
// that the server accepts it.
func (c *Client) ResolveStreamSource(ctx context.Context, trackID string) (string, error) {
	params := url.Values{}
	params.Set("id", trackID)
	streamURL := c.endpoint("stream.view", params)

	resp, err := c.do(ctx, streamURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if isAPIResponse(resp) {
		return "", decodeError(resp.Body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Code: CodeGeneric, Message: "stream returned status " + strconv.Itoa(resp.StatusCode)}
	}
	return streamURL, nil
}

// call performs an API request and decodes the response envelope.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*response, error) {
	resp, err := c.do(ctx, c.endpoint(method, params))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("subsonic %s returned status %d", method, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s response", method)
	}
	if err := env.Response.err(); err != nil {
		zlog.Warn().Msgf("subsonic: request failed: method=%s error=%v", method, err)
		return nil, err
	}
	return &env.Response, nil
}

// do sends a rate-limited GET request.
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	httpClient, err := c.session()
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	return resp, nil
}

// endpoint builds the URL of an API method with authentication parameters.
func (c *Client) endpoint(method string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	for k, vs := range c.authParams() {
		q[k] = vs
	}
	return c.baseURL + method + "?" + q.Encode()
}

func (c *Client) authParams() url.Values {
	q := url.Values{}
	q.Set("u", c.cfg.User)
	q.Set("v", c.cfg.APIVersion)
	q.Set("c", c.cfg.ClientName)
	q.Set("f", "json")

	if c.cfg.LegacyAuth {
		q.Set("p", c.cfg.Password)
		return q
	}
	salt := newSalt()
	sum := md5.Sum([]byte(c.cfg.Password + salt))
	q.Set("t", hex.EncodeToString(sum[:]))
	q.Set("s", salt)
	return q
}

func newSalt() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf[:])
}

// isAPIResponse reports whether a binary endpoint answered with an API document instead.
func isAPIResponse(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/xml", "application/xml", "application/json", "text/json":
		return true
	default:
		return false
	}
}

// decodeError turns an API document returned by a binary endpoint into an error.
func decodeError(body io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "failed to read error response")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil {
		if apiErr := env.Response.err(); apiErr != nil {
			return apiErr
		}
	}
	return &Error{Code: CodeGeneric, Message: strings.TrimSpace(string(data))}
}
