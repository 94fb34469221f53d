package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/spinsync/internal/server"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthLogin performs the OAuth2 authorization-code flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization, and
// exchanges the auth code for tokens persisted into the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	spotify := r.spotify
	if spotify == nil {
		var err error
		if spotify, err = services.NewSpotifyService(config.Credentials.Spotify.Map()); err != nil {
			return fmt.Errorf("failed to create Spotify service: %w", err)
		}
		r.spotify = spotify
	}

	token, err := r.doOAuth(config, spotify, "authorization")
	if err != nil {
		return err
	}

	if err := spotify.Authenticate(ctx, map[string]string{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	}); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	config.Credentials.Spotify.Update(token)
	if err := shared.SaveConfig(r.configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: spinsync sync run --live\n")

	return nil
}

// AuthStatus verifies the saved token by fetching the current user profile.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	r.logger.Info("checking auth status")

	user, err := r.spotify.UserProfile(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrTokenExpired) {
			r.writePlain("✗ Not authenticated\n")
			r.writePlain("Run 'spinsync auth login' to authorize.\n")
			return nil
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Authenticated\n")
	r.writePlain("User: %s (%s)\n", user.DisplayName, user.ID)
	if user.Product != "" {
		r.writePlain("Product: %s\n", user.Product)
	}

	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(config *shared.Config, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state := shared.GenerateState()

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}

// handleAuthError checks whether an error is a token expiration and, if so,
// re-runs the authorization flow so the caller can retry once.
func (r *Runner) handleAuthError(ctx context.Context, err error, cmd *cli.Command) (bool, error) {
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, shared.ErrTokenExpired) {
		return false, err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...")

	config := r.loadConfig(cmd)
	if r.spotify == nil {
		return true, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	token, oauthErr := r.doOAuth(config, r.spotify, "reauthorization")
	if oauthErr != nil {
		return true, fmt.Errorf("reauthorization failed: %w", oauthErr)
	}

	if authErr := r.spotify.Authenticate(ctx, map[string]string{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	}); authErr != nil {
		return true, fmt.Errorf("failed to authenticate with new tokens: %w", authErr)
	}

	config.Credentials.Spotify.Update(token)
	if saveErr := shared.SaveConfig(r.configPath, config); saveErr != nil {
		r.logger.Warn("failed to persist new tokens", "error", saveErr)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...")

	return true, nil
}

// authCommand manages the Spotify authorization flow
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize against Spotify",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Run the browser authorization flow and save tokens",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Verify the saved token against the user profile",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}
