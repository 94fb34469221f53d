package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/repositories"
	"github.com/desertthunder/spinsync/internal/services"
	"github.com/desertthunder/spinsync/internal/shared"
)

const (
	// titleWeight and artistWeight blend field similarities into one score.
	// Title mismatches are worse than artist credit variations (features,
	// "& His Orchestra" suffixes), so the title dominates.
	titleWeight  = 0.7
	artistWeight = 0.3
)

// Resolution is the outcome of resolving one spin against the catalog.
type Resolution struct {
	TrackID string
	Found   bool
	Cached  bool
}

// ResolverOpts tunes resolution behavior. Zero values fall back to defaults.
type ResolverOpts struct {
	MinScore float64       // similarity floor below which candidates are rejected (default 0.7)
	Attempts int           // search attempts per query before giving up (default 3)
	Backoff  time.Duration // base delay between retries, doubled each attempt (default 500ms)
}

// Resolver maps spins to catalog track ids, consulting the track cache first
// and writing every definitive outcome back to it.
type Resolver struct {
	catalog  services.Catalog
	cache    *repositories.TrackCache
	logger   *log.Logger
	minScore float64
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

// NewResolver creates a resolver over the given catalog and cache.
func NewResolver(catalog services.Catalog, cache *repositories.TrackCache, opts ResolverOpts, logger *log.Logger) *Resolver {
	if opts.MinScore <= 0 {
		opts.MinScore = 0.7
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Resolver{
		catalog:  catalog,
		cache:    cache,
		logger:   logger,
		minScore: opts.MinScore,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		now:      time.Now,
	}
}

// Resolve maps one spin to a catalog track id. Cache hits short-circuit;
// definitive outcomes (match or no match) are cached before returning. A
// non-nil error means the outcome is unknown for this run only: nothing is
// cached, so the next run retries the spin.
func (r *Resolver) Resolve(ctx context.Context, spin models.Spin) (Resolution, error) {
	key := shared.SearchKey(spin.Artist, spin.Title)
	now := r.now()

	if entry, ok := r.cache.Lookup(key, now); ok {
		return Resolution{TrackID: entry.TrackID(), Found: entry.Found(), Cached: true}, nil
	}

	candidates, err := r.search(ctx, spin)
	if err != nil {
		return Resolution{}, err
	}

	best, score := RankCandidates(spin, candidates, r.minScore)
	if best == nil {
		r.logger.Debug("no catalog match", "artist", spin.Artist, "title", spin.Title)
		r.cache.Store(key, "", false, now)
		return Resolution{}, nil
	}

	r.logger.Debug("resolved spin", "artist", spin.Artist, "title", spin.Title, "track", best.ID, "score", fmt.Sprintf("%.2f", score))
	r.cache.Store(key, best.ID, true, now)
	return Resolution{TrackID: best.ID, Found: true}, nil
}

// search issues queries with decreasing specificity and stops at the first
// one returning candidates.
func (r *Resolver) search(ctx context.Context, spin models.Spin) ([]models.Candidate, error) {
	for _, query := range searchQueries(spin) {
		candidates, err := r.searchWithRetry(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, nil
}

// searchWithRetry retries transient catalog failures with exponential
// backoff. A Retry-After hint from the catalog overrides the backoff when
// it asks for a longer wait.
func (r *Resolver) searchWithRetry(ctx context.Context, query string) ([]models.Candidate, error) {
	var lastErr error

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff << (attempt - 1)
			if hint := shared.RetryAfter(lastErr); hint > delay {
				delay = hint
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		candidates, err := r.catalog.SearchTracks(ctx, query)
		if err == nil {
			return candidates, nil
		}
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			// Wrap with %w on both sides: token expiry must stay detectable
			// through the resolution error for the reauth path.
			return nil, fmt.Errorf("%w: %w", shared.ErrResolutionFailed, err)
		}

		lastErr = err
		r.logger.Warn("catalog search failed, retrying", "query", query, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("%w: retries exhausted: %v", shared.ErrResolutionFailed, lastErr)
}

// searchQueries builds the query ladder for a spin: artist+title+album when an
// album is present, then artist+title.
func searchQueries(spin models.Spin) []string {
	base := shared.CollapseWhitespace(spin.Artist + " " + spin.Title)

	if spin.Album != "" {
		withAlbum := shared.CollapseWhitespace(base + " " + spin.Album)
		if withAlbum != base {
			return []string{withAlbum, base}
		}
	}
	return []string{base}
}

// RankCandidates orders candidates for a spin and returns the best one with
// its similarity score, or nil when no candidate clears minScore. Preference
// order: exact case-insensitive artist+title match, then matching album (when
// the spin supplies one), then higher popularity, then first-result order.
func RankCandidates(spin models.Spin, candidates []models.Candidate, minScore float64) (*models.Candidate, float64) {
	type ranked struct {
		candidate models.Candidate
		exact     bool
		album     bool
		score     float64
		index     int
	}

	wantArtist := strings.ToLower(shared.CollapseWhitespace(spin.Artist))
	wantTitle := strings.ToLower(shared.CollapseWhitespace(spin.Title))
	wantAlbum := strings.ToLower(shared.CollapseWhitespace(spin.Album))

	var pool []ranked
	for i, c := range candidates {
		gotArtist := strings.ToLower(shared.CollapseWhitespace(c.Artist))
		gotTitle := strings.ToLower(shared.CollapseWhitespace(c.Title))

		score := titleWeight*similarity(wantTitle, gotTitle) + artistWeight*similarity(wantArtist, gotArtist)
		if score < minScore {
			continue
		}

		pool = append(pool, ranked{
			candidate: c,
			exact:     gotArtist == wantArtist && gotTitle == wantTitle,
			album:     wantAlbum != "" && strings.ToLower(shared.CollapseWhitespace(c.Album)) == wantAlbum,
			score:     score,
			index:     i,
		})
	}

	if len(pool) == 0 {
		return nil, 0
	}

	sort.Slice(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.album != b.album {
			return a.album
		}
		if a.candidate.Popularity != b.candidate.Popularity {
			return a.candidate.Popularity > b.candidate.Popularity
		}
		return a.index < b.index
	})

	best := pool[0]
	return &best.candidate, best.score
}

// similarity scores two normalized strings in [0, 1]: 1 for equality, the
// length ratio when one contains the other, otherwise the shared-word ratio.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		set[w] = struct{}{}
	}

	common := 0
	for _, w := range wordsB {
		if _, ok := set[w]; ok {
			common++
		}
	}

	max := len(wordsA)
	if len(wordsB) > max {
		max = len(wordsB)
	}
	return float64(common) / float64(max)
}
