// Package oauth builds the Spotify OAuth2 config this module's Non-goals
// still leave it owning: random state and PKCE verifier/challenge
// generation, and the refresh-token
// exchange a spotifyapi.Client calls through on every access-token expiry.
// The browser redirect handshake itself — the login/callback HTTP handlers,
// session cookies, multi-provider registration — is out of scope per the
// design's explicit "OAuth browser redirect handshake beyond state signing"
// exclusion, so none of that survives here.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

// Service holds the PKCE material and the oauth2.Config used to both
// construct the authorize URL (an external collaborator's concern) and
// exchange/refresh tokens (this module's concern).
type Service struct {
	config        oauth2.Config
	codeVerifier  string
	codeChallenge string
}

// New builds a Spotify OAuth2 service with a freshly generated PKCE pair.
func New(clientID, clientSecret, redirectURI string, scopes []string) *Service {
	codeVerifier := generateCodeVerifier()
	return &Service{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     spotify.Endpoint,
		},
		codeVerifier:  codeVerifier,
		codeChallenge: generateCodeChallenge(codeVerifier),
	}
}

// GenerateState produces a random, URL-safe state value for the authorize
// URL; it is not signed. The external collaborator owning the redirect handshake is
// responsible for persisting and validating it on callback.
func GenerateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

func generateCodeVerifier() string {
	b := make([]byte, 64)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func generateCodeChallenge(verifier string) string {
	h := sha256.New()
	h.Write([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// AuthCodeURL builds the authorize URL for the given state, with the PKCE
// challenge attached.
func (s *Service) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", s.codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	return s.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for the initial token pair.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_verifier", s.codeVerifier),
	}
	token, err := s.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("oauth: exchanging authorization code: %w", err)
	}
	return token, nil
}

// Refresh performs the token-endpoint exchange for an expired access token
// using the given refresh token, returning the new token pair. This is the
// operation spotifyapi.RefreshFunc wraps for use inside the client.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	stale := &oauth2.Token{RefreshToken: refreshToken}
	source := s.config.TokenSource(ctx, stale)
	fresh, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: refreshing access token: %w", err)
	}
	return fresh, nil
}

// Expiry normalizes a token's expiry instant to UTC, defaulting to a
// conservative 1-hour lifetime if the provider didn't send one.
func Expiry(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return time.Now().UTC().Add(time.Hour)
	}
	return token.Expiry.UTC()
}
