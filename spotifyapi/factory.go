package spotifyapi

import (
	"context"
	"fmt"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/oauth"
	"github.com/playback-history/collector/vault"
)

// Refresher performs the token-endpoint exchange; satisfied by
// *oauth.Service. Narrowed to an interface here so this package doesn't
// import golang.org/x/oauth2's concrete Token type into its own API.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiry time.Time, err error)
}

// ForUser builds a Client for userID, sealing its refresh callback around
// the vault, the persisted credential row, and the given refresher. Every
// refresh invocation reseals the possibly-rotated refresh token and updates
// the persisted access token, so the plaintext refresh token only ever
// exists transiently inside this closure.
func ForUser(database *db.DB, v *vault.Vault, refresher Refresher, userID int64, concurrency int) (*Client, error) {
	cred, err := database.GetRefreshCredential(userID)
	if err != nil {
		return nil, fmt.Errorf("spotifyapi: loading credential for user %d: %w", userID, err)
	}
	if cred == nil {
		return nil, fmt.Errorf("spotifyapi: no refresh credential for user %d", userID)
	}

	refresh := func(ctx context.Context) (string, time.Time, error) {
		plaintext, err := v.Unseal(cred.SealedRefreshToken)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("spotifyapi: unsealing refresh token for user %d: %w", userID, err)
		}

		accessToken, expiry, err := refresher.Refresh(ctx, string(plaintext))
		if err != nil {
			return "", time.Time{}, err
		}

		if err := database.UpdateAccessToken(userID, accessToken, expiry); err != nil {
			return "", time.Time{}, fmt.Errorf("spotifyapi: persisting refreshed token for user %d: %w", userID, err)
		}
		return accessToken, expiry, nil
	}

	return New(cred.AccessToken, cred.AccessTokenExpiry, refresh, concurrency), nil
}

// oauthRefresher adapts *oauth.Service to the Refresher interface; kept
// here instead of on oauth.Service itself so the oauth package doesn't need
// to know about spotifyapi's RefreshFunc shape.
type oauthRefresher struct {
	svc *oauth.Service
}

func NewOAuthRefresher(svc *oauth.Service) Refresher {
	return oauthRefresher{svc: svc}
}

func (r oauthRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	token, err := r.svc.Refresh(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return token.AccessToken, oauth.Expiry(token), nil
}
