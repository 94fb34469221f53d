package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spinsync/internal/models"
	"github.com/desertthunder/spinsync/internal/repositories"
	"github.com/desertthunder/spinsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// A fresh pool connection would see a different empty in-memory database.
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCache(t *testing.T, db *sql.DB) *repositories.TrackCache {
	t.Helper()

	cache := repositories.NewTrackCache(repositories.NewCachedTrackRepository(db), 14*24*time.Hour, nil)
	cache.Load()
	return cache
}

// mockCatalog serves canned search results and counts calls. Safe for use
// from parallel show workers.
type mockCatalog struct {
	mu            sync.Mutex
	results       map[string][]models.Candidate
	searchErr     error
	errQueries    map[string]error // per-query failures
	failTransient int              // fail this many calls with a transient error before succeeding
	transientErr  error            // transient failure to return (default 503)
	searchCalls   int
	queries       []string
}

func (m *mockCatalog) Name() string { return "MockCatalog" }

func (m *mockCatalog) SearchTracks(ctx context.Context, query string) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searchCalls++
	m.queries = append(m.queries, query)

	if m.failTransient > 0 {
		m.failTransient--
		if m.transientErr != nil {
			return nil, m.transientErr
		}
		return nil, fmt.Errorf("%w: status 503", shared.ErrServiceUnavailable)
	}
	if err, ok := m.errQueries[query]; ok {
		return nil, err
	}
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results[query], nil
}

func (m *mockCatalog) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls
}

func TestRankCandidates(t *testing.T) {
	spin := models.Spin{Artist: "Loscil", Title: "Bell Flame", Album: "Lifelike"}

	t.Run("exact match beats popularity", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "cover", Artist: "Loscil Tribute Band", Title: "Bell Flame", Popularity: 90},
			{ID: "original", Artist: "loscil", Title: "bell flame", Popularity: 10},
		}

		best, score := RankCandidates(spin, candidates, 0.7)
		if best == nil || best.ID != "original" {
			t.Fatalf("expected exact match to win, got %+v", best)
		}
		if score != 1.0 {
			t.Errorf("expected perfect score for exact match, got %f", score)
		}
	})

	t.Run("album breaks ties between exact matches", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "reissue", Artist: "Loscil", Title: "Bell Flame", Album: "Anthology", Popularity: 80},
			{ID: "lifelike", Artist: "Loscil", Title: "Bell Flame", Album: "Lifelike", Popularity: 20},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best == nil || best.ID != "lifelike" {
			t.Fatalf("expected album match to win, got %+v", best)
		}
	})

	t.Run("popularity breaks remaining ties", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "low", Artist: "Loscil", Title: "Bell Flame", Popularity: 5},
			{ID: "high", Artist: "Loscil", Title: "Bell Flame", Popularity: 60},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best == nil || best.ID != "high" {
			t.Fatalf("expected higher popularity to win, got %+v", best)
		}
	})

	t.Run("first result wins when all else ties", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "first", Artist: "Loscil", Title: "Bell Flame", Popularity: 40},
			{ID: "second", Artist: "Loscil", Title: "Bell Flame", Popularity: 40},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best == nil || best.ID != "first" {
			t.Fatalf("expected first result order to win, got %+v", best)
		}
	})

	t.Run("short title variants clear the threshold", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "live", Artist: "Loscil", Title: "Bell Flame (Live)"},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best == nil || best.ID != "live" {
			t.Fatalf("expected near-title match to survive, got %+v", best)
		}
	})

	t.Run("long retitles fall below the threshold", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "remix", Artist: "Loscil", Title: "Bell Flame (Extended Club Remix)"},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best != nil {
			t.Fatalf("expected heavy retitle to be rejected, got %+v", best)
		}
	})

	t.Run("nothing above the threshold means no match", func(t *testing.T) {
		candidates := []models.Candidate{
			{ID: "junk", Artist: "Completely Different", Title: "Unrelated Song", Popularity: 100},
		}

		best, _ := RankCandidates(spin, candidates, 0.7)
		if best != nil {
			t.Fatalf("expected no match, got %+v", best)
		}
	})

	t.Run("empty candidate list", func(t *testing.T) {
		best, _ := RankCandidates(spin, nil, 0.7)
		if best != nil {
			t.Fatalf("expected no match, got %+v", best)
		}
	})
}

func TestResolver(t *testing.T) {
	spin := models.Spin{ID: 101, Artist: "Loscil", Title: "Bell Flame", Album: "Lifelike"}

	t.Run("cache hit skips the catalog", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)
		cache.Store(shared.SearchKey("Loscil", "Bell Flame"), "cached123", true, time.Now())

		catalog := &mockCatalog{}
		resolver := NewResolver(catalog, cache, ResolverOpts{}, nil)

		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Cached || !res.Found || res.TrackID != "cached123" {
			t.Errorf("expected cached hit, got %+v", res)
		}
		if catalog.searchCalls != 0 {
			t.Errorf("expected no catalog calls, got %d", catalog.searchCalls)
		}
	})

	t.Run("miss resolves and caches the match", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{
			results: map[string][]models.Candidate{
				"Loscil Bell Flame Lifelike": {{ID: "spotify123", Artist: "Loscil", Title: "Bell Flame"}},
			},
		}
		resolver := NewResolver(catalog, cache, ResolverOpts{}, nil)

		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Cached || !res.Found || res.TrackID != "spotify123" {
			t.Errorf("expected fresh match, got %+v", res)
		}

		res2, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res2.Cached || res2.TrackID != "spotify123" {
			t.Errorf("expected second resolve to hit the cache, got %+v", res2)
		}
		if catalog.searchCalls != 1 {
			t.Errorf("expected exactly 1 catalog call, got %d", catalog.searchCalls)
		}
	})

	t.Run("query ladder falls back to artist+title", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{
			results: map[string][]models.Candidate{
				"Loscil Bell Flame": {{ID: "fallback", Artist: "Loscil", Title: "Bell Flame"}},
			},
		}
		resolver := NewResolver(catalog, cache, ResolverOpts{}, nil)

		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Found || res.TrackID != "fallback" {
			t.Errorf("expected fallback query match, got %+v", res)
		}

		if len(catalog.queries) != 2 {
			t.Fatalf("expected 2 queries, got %v", catalog.queries)
		}
		if catalog.queries[0] != "Loscil Bell Flame Lifelike" || catalog.queries[1] != "Loscil Bell Flame" {
			t.Errorf("expected decreasing specificity, got %v", catalog.queries)
		}
	})

	t.Run("album-less spin issues a single query", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{}
		resolver := NewResolver(catalog, cache, ResolverOpts{}, nil)

		_, err := resolver.Resolve(context.Background(), models.Spin{ID: 1, Artist: "Emeralds", Title: "Up in the Air"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(catalog.queries) != 1 || catalog.queries[0] != "Emeralds Up in the Air" {
			t.Errorf("expected single query, got %v", catalog.queries)
		}
	})

	t.Run("no match is cached as not found", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{}
		resolver := NewResolver(catalog, cache, ResolverOpts{}, nil)

		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Found {
			t.Errorf("expected not found, got %+v", res)
		}

		callsAfterFirst := catalog.searchCalls

		res2, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res2.Cached || res2.Found {
			t.Errorf("expected cached not-found, got %+v", res2)
		}
		if catalog.searchCalls != callsAfterFirst {
			t.Errorf("expected no further catalog calls, got %d", catalog.searchCalls-callsAfterFirst)
		}
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{
			failTransient: 2,
			results: map[string][]models.Candidate{
				"Loscil Bell Flame Lifelike": {{ID: "spotify123", Artist: "Loscil", Title: "Bell Flame"}},
			},
		}
		resolver := NewResolver(catalog, cache, ResolverOpts{Attempts: 3, Backoff: time.Millisecond}, nil)

		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected retries to succeed, got %v", err)
		}
		if !res.Found || res.TrackID != "spotify123" {
			t.Errorf("expected match after retries, got %+v", res)
		}
		if catalog.searchCalls != 3 {
			t.Errorf("expected 3 attempts, got %d", catalog.searchCalls)
		}
	})

	t.Run("retry hint stretches the backoff", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		hint := 50 * time.Millisecond
		catalog := &mockCatalog{
			failTransient: 1,
			transientErr: &shared.RetryAfterError{
				Delay: hint,
				Err:   fmt.Errorf("%w: status 429", shared.ErrServiceUnavailable),
			},
			results: map[string][]models.Candidate{
				"Loscil Bell Flame Lifelike": {{ID: "spotify123", Artist: "Loscil", Title: "Bell Flame"}},
			},
		}
		resolver := NewResolver(catalog, cache, ResolverOpts{Attempts: 2, Backoff: time.Millisecond}, nil)

		start := time.Now()
		res, err := resolver.Resolve(context.Background(), spin)
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if !res.Found || res.TrackID != "spotify123" {
			t.Errorf("expected match after retry, got %+v", res)
		}
		if elapsed := time.Since(start); elapsed < hint {
			t.Errorf("expected a wait of at least %v before retrying, waited %v", hint, elapsed)
		}
	})

	t.Run("exhausted retries fail the run without caching", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{failTransient: 10}
		resolver := NewResolver(catalog, cache, ResolverOpts{Attempts: 2, Backoff: time.Millisecond}, nil)

		_, err := resolver.Resolve(context.Background(), spin)
		if !errors.Is(err, shared.ErrResolutionFailed) {
			t.Fatalf("expected ErrResolutionFailed, got %v", err)
		}
		if catalog.searchCalls != 2 {
			t.Errorf("expected 2 attempts, got %d", catalog.searchCalls)
		}

		// The failed outcome must not be cached: the next run searches again.
		if _, ok := cache.Lookup(shared.SearchKey(spin.Artist, spin.Title), time.Now()); ok {
			t.Error("expected no cache entry after a transient failure")
		}
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		db := setupTestDB(t)
		cache := newTestCache(t, db)

		catalog := &mockCatalog{searchErr: fmt.Errorf("%w: status 400", shared.ErrAPIRequest)}
		resolver := NewResolver(catalog, cache, ResolverOpts{Attempts: 3, Backoff: time.Millisecond}, nil)

		_, err := resolver.Resolve(context.Background(), spin)
		if !errors.Is(err, shared.ErrResolutionFailed) {
			t.Fatalf("expected ErrResolutionFailed, got %v", err)
		}
		if catalog.searchCalls != 1 {
			t.Errorf("expected a single attempt for a permanent error, got %d", catalog.searchCalls)
		}
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "bell flame", "bell flame", 1.0},
		{"empty side", "", "bell flame", 0},
		{"disjoint", "abc def", "ghi jkl", 0},
		{"full word overlap different order", "flame bell", "bell flame", 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := similarity(tc.a, tc.b); got != tc.want {
				t.Errorf("similarity(%q, %q) = %f, want %f", tc.a, tc.b, got, tc.want)
			}
		})
	}

	t.Run("substring uses length ratio", func(t *testing.T) {
		got := similarity("bell flame", "bell flame remastered")
		want := float64(len("bell flame")) / float64(len("bell flame remastered"))
		if got != want {
			t.Errorf("similarity = %f, want %f", got, want)
		}
	})

	t.Run("partial word overlap", func(t *testing.T) {
		got := similarity("up in the air", "lost in the air")
		// three shared words out of four
		if got != 0.75 {
			t.Errorf("similarity = %f, want 0.75", got)
		}
	})
}
