// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/sonicbox/internal/api/connect"
	"github.com/osa030/sonicbox/internal/app/filter"
	"github.com/osa030/sonicbox/internal/app/session"
	"github.com/osa030/sonicbox/internal/app/similar"
	"github.com/osa030/sonicbox/internal/domain/track"
	"github.com/osa030/sonicbox/internal/infra/config"
	"github.com/osa030/sonicbox/internal/infra/logger"
	"github.com/osa030/sonicbox/internal/infra/sink"
	"github.com/osa030/sonicbox/internal/infra/spotify"
	"github.com/osa030/sonicbox/internal/infra/store"
	"github.com/osa030/sonicbox/internal/infra/subsonic"
)

var (
	app        = kingpin.New("sonicbox-server", "sonicbox per-room playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closeLog()
		os.Exit(1)
	}
}

// roomCatalog is the Subsonic client with similar-track lookups routed
// through the provider chain.
type roomCatalog struct {
	*subsonic.Client
	similar *similar.Catalog
}

func (c *roomCatalog) SimilarTracks(ctx context.Context, seedID string, count int) ([]track.Track, error) {
	return c.similar.SimilarTracks(ctx, seedID, count)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	catalogClient, err := subsonic.New(subsonic.Config{
		Server:           cfg.Subsonic.Server,
		User:             cfg.Subsonic.User,
		Password:         cfg.Subsonic.Password,
		LegacyAuth:       cfg.Subsonic.LegacyAuth,
		ClientName:       cfg.Subsonic.ClientName,
		APIVersion:       cfg.Subsonic.APIVersion,
		RequestTimeout:   cfg.Subsonic.RequestTimeout(),
		RateLimitPerSec:  cfg.Subsonic.RateLimitPerSec,
		CoverCacheDir:    cfg.Subsonic.CoverCacheDir,
		PlaceholderCover: cfg.Subsonic.PlaceholderCover,
		CoverSize:        cfg.Subsonic.CoverSize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create subsonic client")
	}
	defer catalogClient.Close()

	if err := pingWithRetry(ctx, catalogClient); err != nil {
		zlog.Warn().Msgf("Subsonic server not reachable yet, continuing: %v", err)
	}

	chain, err := similar.NewChainFromConfig(cfg.Similar, catalogClient)
	if err != nil {
		return errors.Wrap(err, "invalid similar config")
	}
	zlog.Info().Msgf("Similar providers: %s", strings.Join(chain.Names(), ", "))

	sinks, err := sink.NewFactory(cfg.Sink)
	if err != nil {
		return errors.Wrap(err, "invalid sink config")
	}

	settings, err := store.Open(cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer settings.Close()

	deps := session.Deps{
		Catalog: &roomCatalog{Client: catalogClient, similar: similar.NewCatalog(catalogClient, chain)},
		Sinks:   sinks,
		Store:   settings,
	}

	if cfg.Spotify.Enabled() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create spotify client")
		}
		deps.Links = spotifyClient
		zlog.Info().Msg("Spotify link resolution enabled")
	}

	sessionMgr, err := session.NewManager(cfg, deps)
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	sessionMgr.Start()

	mux := http.NewServeMux()
	roomPath, roomHandler := apiconnect.NewRoomServiceHandler(
		apiconnect.NewRoomService(sessionMgr, cfg),
		connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(cfg.Control.Token)),
	)
	mux.Handle(roomPath, roomHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s sink=%s", cfg.Server.Addr, sinks.Type())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the server a moment to start listening
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return nil
}

// pingWithRetry checks the catalog server with exponential backoff.
func pingWithRetry(ctx context.Context, client *subsonic.Client) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying subsonic ping in %v...", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := client.Ping(ctx); err != nil {
			lastErr = err
			zlog.Warn().Msgf("Failed to ping subsonic server (attempt %d/%d): %v", i+1, maxRetries, err)
			// Wrong credentials will not fix themselves
			if subsonic.IsCode(err, subsonic.CodeWrongCredentials) {
				return err
			}
			continue
		}

		zlog.Info().Msg("Subsonic server reachable")
		return nil
	}
	return errors.Wrapf(lastErr, "failed after %d attempts", maxRetries)
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.RegisteredNames() {
		f := filter.GetRegistered()[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
