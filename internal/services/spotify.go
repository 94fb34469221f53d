// Spotify API implementation of [Catalog], [PlaylistService] and [OAuthService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// searchLimit caps candidates per search; ranking happens locally.
	searchLimit = 10

	// appendChunkSize is the Spotify maximum per add-items request.
	appendChunkSize = 100

	maxPlaylistNameRunes = 100
	maxDescriptionRunes  = 300
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	Explicit     bool            `json:"explicit"`
	Popularity   int             `json:"popularity"`
	URI          string          `json:"uri"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	URI         string `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists
// and returned by playlist creation).
type SpotifySimplePlaylist struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Owner        Owner               `json:"owner"`
	Public       bool                `json:"public"`
	Tracks       simplePlaylistTrack `json:"tracks"`
	URI          string              `json:"uri"`
	ExternalURLs externalURLs        `json:"external_urls"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifySimplePlaylist `json:"items"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Next     *string                 `json:"next"`
	Previous *string                 `json:"previous"`
}

type playlistTrackIDItem struct {
	Track struct {
		ID string `json:"id"`
	} `json:"track"`
}

type playlistTrackIDPage struct {
	Items []playlistTrackIDItem `json:"items"`
	Total int                   `json:"total"`
	Next  *string               `json:"next"`
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and invokes a callback
// whenever the access token changes, so refreshed tokens can be persisted.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}

	return token, nil
}

// SpotifyService implements [Catalog], [PlaylistService] and [OAuthService]
// for Spotify API interactions. Uses [oauth2] for authentication.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	httpClient     *http.Client
	credentials    map[string]string
	baseURL        string
	limiter        *rate.Limiter
	userID         string
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("missing client_id in credentials")
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("missing client_secret in credentials")
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		credentials: credentials,
		baseURL:     spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetRateLimiter installs a shared limiter applied to every API request.
func (s *SpotifyService) SetRateLimiter(limiter *rate.Limiter) {
	s.limiter = limiter
}

// SetTokenRefreshCallback registers a callback invoked whenever the OAuth2
// token source hands back a new access token.
func (s *SpotifyService) SetTokenRefreshCallback(callback func(*oauth2.Token)) {
	s.onTokenRefresh = callback
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig exposes the OAuth2 config for code exchange.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// Authenticate performs OAuth2 authentication with Spotify. Expects an
// "access_token" (optionally with "refresh_token"), a "refresh_token" alone,
// or an "auth_code" to exchange.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		token := &oauth2.Token{AccessToken: accessToken}
		if refreshToken, ok := credentials["refresh_token"]; ok && refreshToken != "" {
			token.RefreshToken = refreshToken
		}
		s.installToken(ctx, token)
		return nil
	}

	// A refresh token alone is enough: the token source exchanges it on the
	// first request.
	if refreshToken, ok := credentials["refresh_token"]; ok && refreshToken != "" {
		s.installToken(ctx, &oauth2.Token{RefreshToken: refreshToken})
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("failed to exchange auth code: %w", err)
		}
		s.installToken(ctx, token)
		return nil
	}

	return fmt.Errorf("missing access_token or auth_code in credentials")
}

// installToken wires the token into an auto-refreshing client. The wrapper
// source reports refreshed tokens through onTokenRefresh.
func (s *SpotifyService) installToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.onTokenRefresh,
		last:     token.AccessToken,
	}
	s.httpClient = oauth2.NewClient(ctx, source)
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	apiURL := s.baseURL + endpoint

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.apiError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// apiError maps a non-2xx response to a sentinel the caller can branch on.
func (s *SpotifyService) apiError(resp *http.Response) error {
	var errResp struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Message != "" {
		detail = ": " + errResp.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w (status %d)%s", shared.ErrTokenExpired, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		err := fmt.Errorf("%w: spotify status %d%s", shared.ErrServiceUnavailable, resp.StatusCode, detail)
		if delay := shared.ParseRetryAfter(resp.Header.Get("Retry-After")); delay > 0 {
			return &shared.RetryAfterError{Delay: delay, Err: err}
		}
		return err
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: spotify status %d%s", shared.ErrPlaylistNotFound, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: spotify status %d%s", shared.ErrAPIRequest, resp.StatusCode, detail)
	}
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// currentUserID returns the authenticated user's id, fetching it once.
func (s *SpotifyService) currentUserID(ctx context.Context) (string, error) {
	if s.userID != "" {
		return s.userID, nil
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}

	s.userID = user.ID
	return s.userID, nil
}

// Catalog interface implementation

// SearchTracks searches the catalog for track candidates in result order.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string) ([]models.Candidate, error) {
	params := url.Values{}
	params.Set("type", "track")
	params.Set("limit", fmt.Sprintf("%d", searchLimit))
	params.Set("q", query)

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		candidate := models.Candidate{
			ID:         item.ID,
			Title:      item.Name,
			Album:      item.Album.Name,
			Popularity: item.Popularity,
		}
		if len(item.Artists) > 0 {
			candidate.Artist = item.Artists[0].Name
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// PlaylistService interface implementation

// CreatePlaylist creates an empty playlist for the authenticated user.
//
// Names are collapsed and truncated to the API's 100-rune limit.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name string, public bool) (*models.Playlist, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	body := struct {
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}{
		Name:   SanitizePlaylistName(name),
		Public: public,
	}

	var created SpotifySimplePlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &models.Playlist{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		TrackCount:  created.Tracks.Total,
		Public:      created.Public,
		URL:         created.ExternalURLs.Spotify,
	}, nil
}

// PlaylistTrackIDs returns the track IDs currently in the playlist, paginated
// with a fields filter so only ids travel.
func (s *SpotifyService) PlaylistTrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	limit := 100
	offset := 0

	for {
		params := url.Values{}
		params.Set("fields", "items(track(id)),total,next")
		params.Set("limit", fmt.Sprintf("%d", limit))
		params.Set("offset", fmt.Sprintf("%d", offset))

		endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), params.Encode())

		var page playlistTrackIDPage
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track.ID != "" {
				ids = append(ids, item.Track.ID)
			}
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += limit
	}

	return ids, nil
}

// AppendTracks appends tracks to the playlist in order, batching into the
// API's 100-item chunks. A mid-batch failure leaves earlier chunks applied.
func (s *SpotifyService) AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	for start := 0; start < len(trackIDs); start += appendChunkSize {
		end := start + appendChunkSize
		if end > len(trackIDs) {
			end = len(trackIDs)
		}

		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		body := struct {
			URIs []string `json:"uris"`
		}{URIs: uris}

		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return fmt.Errorf("appending tracks %d-%d: %w", start, end-1, err)
		}
	}

	return nil
}

// SetDescription replaces the playlist description, truncated to the API's
// 300-rune limit.
func (s *SpotifyService) SetDescription(ctx context.Context, playlistID, description string) error {
	body := struct {
		Description string `json:"description"`
	}{Description: truncateRunes(description, maxDescriptionRunes)}

	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPut, endpoint, body, nil)
}

// ListPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	limit := 50
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

		var response SpotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			playlists = append(playlists, models.Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
				URL:         sp.ExternalURLs.Spotify,
			})
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}

	return playlists, nil
}

// SanitizePlaylistName collapses whitespace and truncates to the API limit.
func SanitizePlaylistName(name string) string {
	return truncateRunes(shared.CollapseWhitespace(name), maxPlaylistNameRunes)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
