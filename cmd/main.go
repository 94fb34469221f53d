package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultConfigPath = "config.toml"

func main() {
	godotenv.Load()
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(defaultConfigPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}
	config.ApplyEnv()

	limiter := newLimiter(config.Sync.RateLimit)
	source := newSpinSource(config, limiter, logger)
	spotify := newSpotify(config, limiter, logger)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: defaultConfigPath,
		Source:     source,
		Spotify:    spotify,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "spinsync",
		Usage:    "Mirror radio station spin logs into Spotify playlists",
		Version:  "0.2.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

// newLimiter builds the limiter shared by both external clients so the
// worker pool cannot exceed the request budget in aggregate.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// newSpinSource wires the Spinitron client from the per-station API keys and
// the optional saved request headers.
func newSpinSource(config *shared.Config, limiter *rate.Limiter, logger *log.Logger) services.SpinSource {
	apiKeys := make(map[string]string, len(config.Stations))
	for name, station := range config.Stations {
		apiKeys[name] = station.APIKey
	}

	source := services.NewSpinitronService(config.Credentials.Spinitron.BaseURL, apiKeys)
	source.SetRateLimiter(limiter)

	if path := config.Credentials.Spinitron.HeadersPath; path != "" {
		headers, err := shared.LoadHeadersFile(path)
		if err != nil {
			logger.Warn("failed to load saved request headers", "path", path, "error", err)
		} else {
			source.SetHeaders(headers)
		}
	}

	return source
}

// newSpotify builds the Spotify client when credentials are configured,
// installing the persisted token and wiring refreshed tokens back into the
// config file. Returns nil when credentials are absent; commands that need
// the catalog report that themselves.
func newSpotify(config *shared.Config, limiter *rate.Limiter, logger *log.Logger) *services.SpotifyService {
	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return nil
	}

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		logger.Warn("failed to create Spotify service", "error", err)
		return nil
	}
	spotify.SetRateLimiter(limiter)

	spotify.SetTokenRefreshCallback(func(token *oauth2.Token) {
		config.Credentials.Spotify.Update(token)
		if err := shared.SaveConfig(defaultConfigPath, config); err != nil {
			logger.Warn("failed to persist refreshed token", "error", err)
		}
	})

	if config.Credentials.Spotify.AccessToken != "" || config.Credentials.Spotify.RefreshToken != "" {
		if err := spotify.Authenticate(context.Background(), config.Credentials.Spotify.Map()); err != nil {
			logger.Warn("failed to install saved token", "error", err)
		}
	}

	return spotify
}
