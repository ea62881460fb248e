// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Control  ControlConfig           `yaml:"control"`
	Subsonic SubsonicConfig          `yaml:"subsonic"`
	Playback PlaybackConfig          `yaml:"playback"`
	Sink     SinkConfig              `yaml:"sink"`
	Similar  SimilarConfig           `yaml:"similar"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Store    StoreConfig             `yaml:"store"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents access control for the command surface.
type ControlConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// SubsonicConfig represents the catalog server configuration.
type SubsonicConfig struct {
	Server            string `yaml:"server" validate:"required,url"`
	User              string `yaml:"user" validate:"required"`
	Password          string `yaml:"password" validate:"required"`
	LegacyAuth        bool   `yaml:"legacy_auth"`
	ClientName        string `yaml:"client_name" default:"sonicbox"`
	APIVersion        string `yaml:"api_version" default:"1.15.0"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec" default:"20" validate:"gte=1,lte=300"`
	RateLimitPerSec   int    `yaml:"rate_limit_per_sec" default:"10" validate:"gte=1"`
	CoverCacheDir     string `yaml:"cover_cache_dir" default:"cache"`
	PlaceholderCover  string `yaml:"placeholder_cover" default:"resources/cover_not_found.jpg"`
	CoverSize         int    `yaml:"cover_size" default:"300" validate:"gte=0"`
}

// RequestTimeout returns the catalog request timeout.
func (c SubsonicConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DefaultAutoplay   string `yaml:"default_autoplay" default:"none" validate:"oneof=none random similar"`
	EndedCooldownSec  int    `yaml:"ended_cooldown_sec" default:"5" validate:"gte=0,lte=300"`
	IdleDisconnectSec int    `yaml:"idle_disconnect_sec" default:"10" validate:"gte=0,lte=3600"`
	EventBuffer       int    `yaml:"event_buffer" default:"256" validate:"gte=1"`
}

// EndedCooldown returns the minimum interval between playback-ended notifications.
func (c PlaybackConfig) EndedCooldown() time.Duration {
	return time.Duration(c.EndedCooldownSec) * time.Second
}

// IdleDisconnect returns the grace period before an empty room is reset.
func (c PlaybackConfig) IdleDisconnect() time.Duration {
	return time.Duration(c.IdleDisconnectSec) * time.Second
}

// SinkConfig represents the audio sink configuration.
type SinkConfig struct {
	Type     string         `yaml:"type" default:"timed" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// SimilarConfig represents the similarity provider chain.
type SimilarConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single similarity provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Success               string `yaml:"success" default:"OK"`
	DefaultError          string `yaml:"default_error" default:"Something went wrong."`
	NotConnected          string `yaml:"not_connected" default:"Nobody is listening in this room."`
	NotPlaying            string `yaml:"not_playing" default:"Nothing is playing."`
	QueueEmpty            string `yaml:"queue_empty" default:"The queue is empty."`
	NoResults             string `yaml:"no_results" default:"No results found."`
	CatalogError          string `yaml:"catalog_error" default:"The music server returned an error."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already queued."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	InvalidMember         string `yaml:"invalid_member" default:"Unknown member."`
	PlaybackEnded         string `yaml:"playback_ended" default:"No more songs in the queue."`
	AutoplayFailed        string `yaml:"autoplay_failed" default:"Autoplay could not find a song."`
	InvalidMode           string `yaml:"invalid_mode" default:"Autoplay mode must be none, random or similar."`
	LinksDisabled         string `yaml:"links_disabled" default:"Spotify links are not enabled on this server."`
	SinkUnavailable       string `yaml:"sink_unavailable" default:"The audio output is busy."`
}

// SpotifyConfig represents Spotify API configuration. Link resolution is
// disabled when no credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market"`
}

// Enabled reports whether Spotify credentials are configured.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// StoreConfig represents room settings persistence.
type StoreConfig struct {
	Path string `yaml:"path" default:"data/sonicbox.db" validate:"required"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SUBSONIC_SERVER"); v != "" {
		c.Subsonic.Server = v
	}
	if v := os.Getenv("SUBSONIC_USER"); v != "" {
		c.Subsonic.User = v
	}
	if v := os.Getenv("SUBSONIC_PASSWORD"); v != "" {
		c.Subsonic.Password = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Similar.Providers {
			if c.Similar.Providers[i].Type == "lastfm" {
				if c.Similar.Providers[i].Settings == nil {
					c.Similar.Providers[i].Settings = make(map[string]any)
				}
				c.Similar.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "not_connected":
		return c.Messages.NotConnected
	case "not_playing":
		return c.Messages.NotPlaying
	case "queue_empty":
		return c.Messages.QueueEmpty
	case "no_results":
		return c.Messages.NoResults
	case "catalog_error":
		return c.Messages.CatalogError
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "invalid_member":
		return c.Messages.InvalidMember
	case "playback_ended":
		return c.Messages.PlaybackEnded
	case "autoplay_failed":
		return c.Messages.AutoplayFailed
	case "invalid_mode":
		return c.Messages.InvalidMode
	case "links_disabled":
		return c.Messages.LinksDisabled
	case "sink_unavailable":
		return c.Messages.SinkUnavailable
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
