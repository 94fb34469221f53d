// package services defines collaborator interfaces for spin feeds and music catalogs
//
// Spinitron (spin source), Spotify (catalog + playlist mutation)
package services

import (
	"context"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"golang.org/x/oauth2"
)

// SpinSource defines the interface for radio playlog providers that expose
// recent spins for a station.
type SpinSource interface {
	// FetchSpins retrieves raw spins for a station within [from, to),
	// ascending by source id.
	FetchSpins(ctx context.Context, station string, from, to time.Time) ([]models.RawSpin, error)

	// FetchShows retrieves the distinct show names observed in the window.
	FetchShows(ctx context.Context, station string, from, to time.Time) ([]string, error)

	// Name returns the name of the source (e.g., "Spinitron")
	Name() string
}

// Catalog defines the interface for music catalogs that can be searched for
// track candidates.
type Catalog interface {
	// SearchTracks returns candidates for a free-text query in result order.
	SearchTracks(ctx context.Context, query string) ([]models.Candidate, error)

	// Name returns the name of the catalog (e.g., "Spotify")
	Name() string
}

// PlaylistService defines the mutation surface for the playlist provider.
type PlaylistService interface {
	// CreatePlaylist creates an empty playlist and returns it.
	CreatePlaylist(ctx context.Context, name string, public bool) (*models.Playlist, error)

	// PlaylistTrackIDs returns the track IDs currently in the playlist.
	PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error)

	// AppendTracks appends tracks to the playlist in order.
	AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// SetDescription replaces the playlist description.
	SetDescription(ctx context.Context, playlistID, description string) error

	// ListPlaylists retrieves all playlists owned by the authenticated user.
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)
}

// OAuthService is implemented by services that authenticate through an
// interactive OAuth2 authorization-code flow.
type OAuthService interface {
	// GetAuthURL returns the authorization URL for the given state nonce.
	GetAuthURL(state string) string

	// GetOAuthConfig exposes the OAuth2 config for code exchange.
	GetOAuthConfig() *oauth2.Config

	// Authenticate installs credentials. Expects either an "access_token"
	// (with optional "refresh_token") or an "auth_code" to exchange.
	Authenticate(ctx context.Context, credentials map[string]string) error
}
