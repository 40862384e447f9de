// Package spotifyapi implements a per-user-session Spotify client: access
// token lifecycle with a caller-supplied refresh callback, 401-retry-once,
// 429 backoff with a consecutive-429 budget, bounded 5xx retry, and a
// concurrency-capping semaphore — the protocol rules a worker needs to talk
// to Spotify without babysitting the HTTP plumbing at every call site.
package spotifyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/playback-history/collector/errkind"
)

const (
	defaultBaseURL    = "https://api.spotify.com/v1"
	refreshSlack      = 60 * time.Second
	maxServerRetry    = 3
	maxRateLimitRetry = 10
	backoffBase       = 1 * time.Second
	backoffCap        = 60 * time.Second
)

// RefreshFunc performs the token-endpoint exchange with the user's refresh
// credential, returning the new access token and its expiry. Implementations
// are also expected to persist the refreshed token before returning.
type RefreshFunc func(ctx context.Context) (accessToken string, expiry time.Time, err error)

// Client is constructed per user session. It is cheap to create and safe to
// reuse across calls within the same worker cycle.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	refresh     RefreshFunc
	sem         *semaphore.Weighted
	logger      *log.Logger
	accessToken string
	expiry      time.Time

	consecutive429s int
}

// New builds a client for one user's session. initialToken/initialExpiry
// seed the cache so the first call doesn't force an unconditional refresh.
func New(initialToken string, initialExpiry time.Time, refresh RefreshFunc, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		baseURL:     defaultBaseURL,
		refresh:     refresh,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		logger:      log.New(os.Stdout, "spotifyapi: ", log.LstdFlags|log.Lmsgprefix),
		accessToken: initialToken,
		expiry:      initialExpiry,
	}
}

// WithBaseURLForTest points the client at a test server instead of the
// real Spotify API. Exported only so other packages' tests (tools,
// runloop) can exercise the full client against an httptest server;
// production callers never have a reason to call it.
func (c *Client) WithBaseURLForTest(url string) *Client {
	c.baseURL = url
	return c
}

// ConsecutiveRateLimits reports how many 429s have been hit back-to-back
// across calls on this client; callers (initial-sync/poller) compare it
// against RATE_LIMIT_BUDGET to decide whether to stop cleanly.
func (c *Client) ConsecutiveRateLimits() int {
	return c.consecutive429s
}

func (c *Client) ensureFreshToken(ctx context.Context) error {
	if time.Now().Add(refreshSlack).Before(c.expiry) {
		return nil
	}
	token, expiry, err := c.refresh(ctx)
	if err != nil {
		return errkind.Wrap(errkind.AuthExpired, "refreshing access token", err)
	}
	c.accessToken = token
	c.expiry = expiry
	return nil
}

// do executes one logical request, applying the full protocol: token
// refresh, concurrency cap, 401-retry-once, 429 backoff, bounded 5xx retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("spotifyapi: acquiring concurrency slot: %w", err)
	}
	defer c.sem.Release(1)

	if err := c.ensureFreshToken(ctx); err != nil {
		return nil, err
	}

	attemptedRefresh := false
	serverRetries := 0
	rateLimitRetries := 0
	sawRateLimit := false

	for {
		resp, err := c.sendOnce(ctx, method, path, query, body)
		if err != nil {
			return nil, wrapTransport(err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			if attemptedRefresh {
				return nil, errkind.New(errkind.AuthExpired, "access token rejected after refresh")
			}
			attemptedRefresh = true
			token, expiry, rerr := c.refresh(ctx)
			if rerr != nil {
				return nil, errkind.Wrap(errkind.AuthExpired, "refreshing access token after 401", rerr)
			}
			c.accessToken = token
			c.expiry = expiry
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			sawRateLimit = true
			c.consecutive429s++
			rateLimitRetries++
			if rateLimitRetries > maxRateLimitRetry {
				err := surfaceError(resp, errkind.RateLimited)
				resp.Body.Close()
				return nil, err
			}
			wait := retryAfterOrBackoff(resp, rateLimitRetries)
			resp.Body.Close()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue

		case resp.StatusCode >= 500:
			serverRetries++
			if serverRetries > maxServerRetry {
				err := surfaceError(resp, errkind.TransientUpstream)
				resp.Body.Close()
				return nil, err
			}
			resp.Body.Close()
			wait := backoffDelay(serverRetries)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue

		case resp.StatusCode >= 400:
			err := surfaceError(resp, kindForStatus(resp.StatusCode))
			resp.Body.Close()
			return nil, err

		default:
			if !sawRateLimit {
				c.consecutive429s = 0
			}
			return resp, nil
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("spotifyapi: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("spotifyapi: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func retryAfterOrBackoff(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return backoffDelay(attempt)
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
