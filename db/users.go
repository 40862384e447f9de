package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

// UpsertUser creates the user row on first OAuth exchange or refreshes its
// profile fields on subsequent logins.
func (d *DB) UpsertUser(spotifyID, displayName, email, country string, product models.ProductTier) (*models.User, error) {
	now := time.Now().UTC()

	existing, err := d.GetUserBySpotifyID(spotifyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_, err := d.Exec(`
			UPDATE users SET display_name = ?, email = ?, country = ?, product = ?, updated_at = ?
			WHERE id = ?`,
			displayName, email, country, product, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("db: updating user %d: %w", existing.ID, err)
		}
		return d.GetUserByID(existing.ID)
	}

	result, err := d.Exec(`
		INSERT INTO users (spotify_id, display_name, email, country, product, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spotifyID, displayName, email, country, product, now, now)
	if err != nil {
		return nil, fmt.Errorf("db: inserting user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetUserByID(id)
}

func (d *DB) GetUserByID(id int64) (*models.User, error) {
	u := &models.User{}
	err := d.QueryRow(`
		SELECT id, spotify_id, display_name, email, country, product, created_at, updated_at
		FROM users WHERE id = ?`, id).Scan(
		&u.ID, &u.SpotifyID, &u.DisplayName, &u.Email, &u.Country, &u.Product, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: getting user %d: %w", id, err)
	}
	return u, nil
}

func (d *DB) GetUserBySpotifyID(spotifyID string) (*models.User, error) {
	u := &models.User{}
	err := d.QueryRow(`
		SELECT id, spotify_id, display_name, email, country, product, created_at, updated_at
		FROM users WHERE spotify_id = ?`, spotifyID).Scan(
		&u.ID, &u.SpotifyID, &u.DisplayName, &u.Email, &u.Country, &u.Product, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: getting user by spotify id: %w", err)
	}
	return u, nil
}

// GetAllActiveUsers returns every user whose checkpoint is not paused — the
// run loop's iteration target for polling/initial sync.
func (d *DB) GetAllActiveUsers() ([]*models.User, error) {
	rows, err := d.Query(`
		SELECT u.id, u.spotify_id, u.display_name, u.email, u.country, u.product, u.created_at, u.updated_at
		FROM users u
		LEFT JOIN sync_checkpoints c ON c.user_id = u.id
		WHERE c.status IS NULL OR c.status != 'paused'
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("db: listing active users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.SpotifyID, &u.DisplayName, &u.Email, &u.Country, &u.Product, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
