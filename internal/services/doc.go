// Package services defines collaborator interfaces for spin feeds and music catalogs and implements them for Spinitron and Spotify.
//
// # Interfaces
//
// [SpinSource] abstracts the radio playlog provider; [Catalog] and
// [PlaylistService] abstract the music service the sync engine searches and
// mutates. The engine depends only on these, so tests run against in-memory
// fakes.
//
// # Spinitron Implementation
//
// [SpinitronService] calls the Spinitron v2 API with per-station API keys,
// following _links.next pagination at page size 200. Stations fronted by
// cookie-gated proxies can layer extra headers parsed from a saved curl
// command ([shared.CurlHeaders]).
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] refreshes expired tokens using the refresh token; a
// refresh callback lets the CLI persist rotated tokens back into the config.
// Playlist mutation batches appends into 100-item chunks and clamps names to
// 100 runes and descriptions to 300.
//
// # OAuth Service Extension
//
// The [OAuthService] interface is implemented by [SpotifyService] for the
// local-callback authorization flow used by the CLI.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : OAuth token expired, reauthorization needed
//   - [shared.ErrServiceUnavailable] : 429 or 5xx, safe to retry
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrPlaylistNotFound] : Playlist ID not found
//   - [shared.ErrUnknownStation] : Station has no configured API key
//
// # API Mappings
//
// Both services convert provider JSON to the models package DTOs:
//   - Spinitron: spin items → [models.RawSpin], ascending by source id
//   - Spotify: search items → [models.Candidate] with popularity; playlist
//     objects → [models.Playlist]
package services
