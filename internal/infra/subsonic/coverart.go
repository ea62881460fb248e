package subsonic

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// CoverArtPath returns the path of a cached cover image, downloading it on first use.
// Any failure yields the placeholder path. Concurrent requests for one cover share a download.
func (c *Client) CoverArtPath(ctx context.Context, coverID string) string {
	if coverID == "" || strings.ContainsAny(coverID, `/\`) || coverID == "." || coverID == ".." {
		return c.cfg.PlaceholderCover
	}

	target := filepath.Join(c.cfg.CoverCacheDir, coverID+".jpg")
	if _, err := os.Stat(target); err == nil {
		return target
	}

	v, err, shared := c.covers.Do(coverID, func() (any, error) {
		return target, c.downloadCover(ctx, coverID, target)
	})
	if err != nil {
		zlog.Warn().Err(err).Msgf("subsonic: cover art unavailable: cover=%s", coverID)
		return c.cfg.PlaceholderCover
	}
	if shared {
		zlog.Debug().Msgf("subsonic: cover art download shared: cover=%s", coverID)
	}
	return v.(string)
}

func (c *Client) downloadCover(ctx context.Context, coverID, target string) error {
	params := url.Values{}
	params.Set("id", coverID)
	params.Set("size", strconv.Itoa(c.cfg.CoverSize))

	resp, err := c.do(ctx, c.endpoint("getCoverArt.view", params))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isAPIResponse(resp) {
		return decodeError(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("cover art returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.cfg.CoverCacheDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create cover cache dir")
	}

	tmp, err := os.CreateTemp(c.cfg.CoverCacheDir, coverID+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write cover art")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close cover art")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrap(err, "failed to store cover art")
	}
	return nil
}
