package shared

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig        `toml:"credentials"`
	Database    DatabaseConfig           `toml:"database"`
	Server      ServerConfig             `toml:"server"`
	Sync        SyncConfig               `toml:"sync"`
	Stations    map[string]StationConfig `toml:"stations"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify   SpotifyConfig   `toml:"spotify"`
	Spinitron SpinitronConfig `toml:"spinitron"`
}

// SpotifyConfig contains Spotify API credentials and the persisted token
// from the last authorization flow.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	TokenExpiry  time.Time `toml:"token_expiry,omitempty"`
}

// Map flattens the credentials for service constructors.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
	}
}

// Token rebuilds the persisted [oauth2.Token], or nil when no flow has run.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
	}
}

// Update stores a freshly exchanged token on the config.
func (s *SpotifyConfig) Update(token *oauth2.Token) {
	if token == nil {
		return
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenExpiry = token.Expiry
}

// SpinitronConfig contains spin source settings shared by all stations.
type SpinitronConfig struct {
	BaseURL     string `toml:"base_url"`
	HeadersPath string `toml:"headers_path"`
}

// StationConfig describes one station to reconcile.
type StationConfig struct {
	APIKey  string   `toml:"api_key"`
	Ignores []string `toml:"ignores"`
}

// CompiledIgnores compiles the station's ignore patterns. Invalid patterns
// are logged and skipped, never fatal.
func (s StationConfig) CompiledIgnores(logger *log.Logger) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(s.Ignores))
	for _, raw := range s.Ignores {
		re, err := regexp.Compile(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid ignore pattern", "pattern", raw, "error", err)
			}
			continue
		}
		patterns = append(patterns, re)
	}
	return patterns
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the OAuth callback.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig contains the reconciliation engine tunables.
type SyncConfig struct {
	LookbackDays   int     `toml:"lookback_days"`
	CacheTTLDays   int     `toml:"cache_ttl_days"`
	RetryAttempts  int     `toml:"retry_attempts"`
	RetryBackoffMS int     `toml:"retry_backoff_ms"`
	MinSimilarity  float64 `toml:"min_similarity"`
	Workers        int     `toml:"workers"`
	RateLimit      float64 `toml:"rate_limit"`
}

// CacheTTL returns the track cache time-to-live as a duration.
func (s SyncConfig) CacheTTL() time.Duration {
	days := s.CacheTTLDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}

// RetryBackoff returns the base backoff between resolution retries.
func (s SyncConfig) RetryBackoff() time.Duration {
	ms := s.RetryBackoffMS
	if ms <= 0 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

// Lookback returns the spin window length.
func (s SyncConfig) Lookback() time.Duration {
	days := s.LookbackDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Station looks up a station's config by slug, case-insensitively.
func (c *Config) Station(name string) (StationConfig, bool) {
	if station, ok := c.Stations[name]; ok {
		return station, true
	}
	station, ok := c.Stations[strings.ToLower(name)]
	return station, ok
}

// StationNames returns the configured station slugs, sorted.
func (c *Config) StationNames() []string {
	names := make([]string, 0, len(c.Stations))
	for name := range c.Stations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overlays credential fields from environment variables, so
// secrets can live in the environment (or a .env file) instead of config.toml.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Credentials.Spotify.RefreshToken = v
	}
	if v := os.Getenv("SPINITRON_BASE_URL"); v != "" {
		c.Credentials.Spinitron.BaseURL = v
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the config back to path. 0600 because the file carries
// tokens after an authorization flow.
func SaveConfig(path string, config *Config) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
