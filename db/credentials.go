package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

// UpsertRefreshCredential stores the sealed refresh token and current access
// token for a user, replacing any prior row.
func (d *DB) UpsertRefreshCredential(c *models.RefreshCredential) error {
	_, err := d.Exec(`
		INSERT INTO refresh_credentials (user_id, sealed_refresh_token, access_token, access_token_expiry, scope)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			sealed_refresh_token = excluded.sealed_refresh_token,
			access_token = excluded.access_token,
			access_token_expiry = excluded.access_token_expiry,
			scope = excluded.scope`,
		c.UserID, c.SealedRefreshToken, c.AccessToken, c.AccessTokenExpiry, c.Scope)
	if err != nil {
		return fmt.Errorf("db: upserting refresh credential for user %d: %w", c.UserID, err)
	}
	return nil
}

// UpdateAccessToken is used after a successful token refresh — it never
// touches the sealed refresh token itself.
func (d *DB) UpdateAccessToken(userID int64, accessToken string, expiry time.Time) error {
	_, err := d.Exec(`
		UPDATE refresh_credentials SET access_token = ?, access_token_expiry = ?
		WHERE user_id = ?`, accessToken, expiry, userID)
	if err != nil {
		return fmt.Errorf("db: updating access token for user %d: %w", userID, err)
	}
	return nil
}

func (d *DB) GetRefreshCredential(userID int64) (*models.RefreshCredential, error) {
	c := &models.RefreshCredential{UserID: userID}
	var expiry sql.NullTime
	err := d.QueryRow(`
		SELECT sealed_refresh_token, access_token, access_token_expiry, scope
		FROM refresh_credentials WHERE user_id = ?`, userID).Scan(
		&c.SealedRefreshToken, &c.AccessToken, &expiry, &c.Scope)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: getting refresh credential for user %d: %w", userID, err)
	}
	if expiry.Valid {
		c.AccessTokenExpiry = expiry.Time
	}
	return c, nil
}
