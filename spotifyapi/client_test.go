package spotifyapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playback-history/collector/errkind"
)

func noopRefresh(token string, expiry time.Time) RefreshFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		return token, expiry, nil
	}
}

// TestRecentlyPlayed401RetriesOnce exercises S3: a first 401 triggers a
// refresh-and-retry, and the retried call succeeds.
func TestRecentlyPlayed401RetriesOnce(t *testing.T) {
	calls := 0
	refreshed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"played_at":"2024-01-15T10:30:00Z","track":{"id":"t1","name":"Song","duration_ms":1000,"artists":[{"id":"a1","name":"Artist"}],"album":{"name":"Album"}}}]}`))
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, func(ctx context.Context) (string, time.Time, error) {
		refreshed = true
		return "new-token", time.Now().Add(time.Hour), nil
	})

	page, err := c.RecentlyPlayed(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("RecentlyPlayed: %v", err)
	}
	if !refreshed {
		t.Fatalf("expected refresh callback to be invoked after 401")
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 HTTP calls (original + retry), got %d", calls)
	}
}

// TestRecentlyPlayedDouble401SurfacesAuthExpired covers the "second 401
// surfaces as AuthExpired" protocol rule.
func TestRecentlyPlayedDouble401SurfacesAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, noopRefresh("still-bad", time.Now().Add(time.Hour)))

	_, err := c.RecentlyPlayed(context.Background(), 0, 50)
	if err == nil {
		t.Fatalf("expected an error after two consecutive 401s")
	}
	if errkind.KindOf(err) != errkind.AuthExpired {
		t.Fatalf("expected AuthExpired, got %v", errkind.KindOf(err))
	}
}

// TestRecentlyPlayed429HonorsRetryAfter covers S4.
func TestRecentlyPlayed429HonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, noopRefresh("tok", time.Now().Add(time.Hour)))

	page, err := c.RecentlyPlayed(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("RecentlyPlayed: %v", err)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected at least 1s elapsed honoring Retry-After, got %v", time.Since(start))
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected empty page, got %d items", len(page.Items))
	}
	if c.ConsecutiveRateLimits() != 1 {
		t.Fatalf("expected the 429 this call absorbed to count toward the consecutive-429 budget, got %d", c.ConsecutiveRateLimits())
	}
}

// TestRecentlyPlayedRateLimitRetriesExhaustedSurfacesRateLimited covers the
// case a caller never stops seeing 429s: once the per-call retry budget is
// spent, the client gives up and surfaces RateLimited instead of looping
// forever.
func TestRecentlyPlayedRateLimitRetriesExhaustedSurfacesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, noopRefresh("tok", time.Now().Add(time.Hour)))

	_, err := c.RecentlyPlayed(context.Background(), 0, 50)
	if err == nil {
		t.Fatalf("expected an error after exhausting the rate-limit retry budget")
	}
	if errkind.KindOf(err) != errkind.RateLimited {
		t.Fatalf("expected RateLimited, got %v", errkind.KindOf(err))
	}
	if c.ConsecutiveRateLimits() < maxRateLimitRetry {
		t.Fatalf("expected consecutive-429 counter to reflect the exhausted retries, got %d", c.ConsecutiveRateLimits())
	}
}

// TestConsecutiveRateLimitsResetsOnlyAfterA429FreeCall covers the bug the
// original reset-on-any-success logic had: a 429 absorbed mid-call must
// survive into the next call's counter so a caller comparing against
// RATE_LIMIT_BUDGET across calls can actually observe it, and only a call
// that sees zero 429s clears it.
func TestConsecutiveRateLimitsResetsOnlyAfterA429FreeCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, noopRefresh("tok", time.Now().Add(time.Hour)))

	if _, err := c.RecentlyPlayed(context.Background(), 0, 50); err != nil {
		t.Fatalf("RecentlyPlayed (first call): %v", err)
	}
	if c.ConsecutiveRateLimits() != 1 {
		t.Fatalf("expected the first call's 429 to persist in the counter, got %d", c.ConsecutiveRateLimits())
	}

	if _, err := c.RecentlyPlayed(context.Background(), 0, 50); err != nil {
		t.Fatalf("RecentlyPlayed (second call): %v", err)
	}
	if c.ConsecutiveRateLimits() != 0 {
		t.Fatalf("expected a 429-free call to reset the counter, got %d", c.ConsecutiveRateLimits())
	}
}

func TestRecentlyPlayed5xxSurfacesTransientUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClientAgainst(srv.URL, noopRefresh("tok", time.Now().Add(time.Hour)))

	_, err := c.RecentlyPlayed(context.Background(), 0, 50)
	if err == nil {
		t.Fatalf("expected an error after exhausting 5xx retries")
	}
	if errkind.KindOf(err) != errkind.TransientUpstream {
		t.Fatalf("expected TransientUpstream, got %v", errkind.KindOf(err))
	}
}

func newTestClientAgainst(url string, refresh RefreshFunc) *Client {
	c := New("initial-token", time.Now().Add(time.Hour), refresh, 4)
	return c.WithBaseURLForTest(url)
}
