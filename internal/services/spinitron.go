// Spinitron playlog API [SpinSource] implementation
//
// Each station carries its own API key; requests are scoped by the key.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultSpinitronBaseURL = "https://spinitron.com/api"

	// spinPageSize is the Spinitron maximum page size.
	spinPageSize = 200
)

type spinitronSpin struct {
	ID       int64  `json:"id"`
	Start    string `json:"start"`
	Duration int    `json:"duration"`
	Artist   string `json:"artist"`
	Song     string `json:"song"`
	Release  string `json:"release"`
	Label    string `json:"label"`
	Show     string `json:"show"`
}

type spinitronPage struct {
	Items []spinitronSpin `json:"items"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

// SpinitronService implements the SpinSource interface for the Spinitron v2 API.
type SpinitronService struct {
	baseURL    string
	apiKeys    map[string]string
	headers    *shared.CurlHeaders
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSpinitronService creates a new Spinitron service instance. apiKeys maps
// station names to their Spinitron API keys.
func NewSpinitronService(baseURL string, apiKeys map[string]string) *SpinitronService {
	if baseURL == "" {
		baseURL = defaultSpinitronBaseURL
	}

	return &SpinitronService{
		baseURL:    baseURL,
		apiKeys:    apiKeys,
		httpClient: http.DefaultClient,
	}
}

// Name returns the source name.
func (s *SpinitronService) Name() string {
	return "Spinitron"
}

// SetRateLimiter installs a shared limiter applied to every API request.
func (s *SpinitronService) SetRateLimiter(limiter *rate.Limiter) {
	s.limiter = limiter
}

// SetHeaders installs extra request headers parsed from a saved curl command,
// for stations fronted by cookie-gated proxies.
func (s *SpinitronService) SetHeaders(headers *shared.CurlHeaders) {
	s.headers = headers
}

func (s *SpinitronService) stationKey(station string) (string, error) {
	key, ok := s.apiKeys[station]
	if !ok {
		key, ok = s.apiKeys[strings.ToLower(station)]
	}
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrUnknownStation, station)
	}
	return key, nil
}

// doRequest fetches one URL and decodes the JSON response into result.
func (s *SpinitronService) doRequest(ctx context.Context, apiKey, fullURL string, result any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Extra headers first so the station key always wins.
	if s.headers != nil {
		s.headers.ApplyTo(req.Header)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Message string `json:"message"`
		}
		detail := ""
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			detail = ": " + errResp.Message
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			err := fmt.Errorf("%w: spinitron status %d%s", shared.ErrServiceUnavailable, resp.StatusCode, detail)
			if delay := shared.ParseRetryAfter(resp.Header.Get("Retry-After")); delay > 0 {
				return &shared.RetryAfterError{Delay: delay, Err: err}
			}
			return err
		}
		return fmt.Errorf("%w: spinitron status %d%s", shared.ErrAPIRequest, resp.StatusCode, detail)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// resolveNext turns a pagination href into an absolute URL.
func (s *SpinitronService) resolveNext(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.baseURL + href
}

// FetchSpins retrieves raw spins for the station within [from, to), following
// pagination until exhausted. Results are ascending by source id.
func (s *SpinitronService) FetchSpins(ctx context.Context, station string, from, to time.Time) ([]models.RawSpin, error) {
	apiKey, err := s.stationKey(station)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("start", from.UTC().Format(time.RFC3339))
	params.Set("end", to.UTC().Format(time.RFC3339))
	params.Set("count", fmt.Sprintf("%d", spinPageSize))

	next := s.baseURL + "/spins?" + params.Encode()

	var spins []models.RawSpin
	for next != "" {
		var page spinitronPage
		if err := s.doRequest(ctx, apiKey, next, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			spin := models.RawSpin{
				ID:       item.ID,
				Station:  station,
				Show:     item.Show,
				Artist:   item.Artist,
				Song:     item.Song,
				Release:  item.Release,
				Label:    item.Label,
				Duration: item.Duration,
			}
			if start, err := time.Parse(time.RFC3339, item.Start); err == nil {
				spin.Start = start
			}
			spins = append(spins, spin)
		}

		if page.Links.Next == nil || page.Links.Next.Href == "" || len(page.Items) == 0 {
			break
		}
		next = s.resolveNext(page.Links.Next.Href)
	}

	sort.Slice(spins, func(i, j int) bool { return spins[i].ID < spins[j].ID })

	return spins, nil
}

// FetchShows retrieves the distinct show names observed in the window, sorted.
func (s *SpinitronService) FetchShows(ctx context.Context, station string, from, to time.Time) ([]string, error) {
	spins, err := s.FetchSpins(ctx, station, from, to)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var shows []string
	for _, spin := range spins {
		show := shared.CollapseWhitespace(spin.Show)
		if show == "" {
			continue
		}
		if _, ok := seen[show]; ok {
			continue
		}
		seen[show] = struct{}{}
		shows = append(shows, show)
	}

	sort.Strings(shows)
	return shows, nil
}
