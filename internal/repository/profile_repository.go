package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

// ProfileRepository persists display profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new instance of ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID returns the profile of an identity.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	const query = `SELECT id, full_name, phone_number, profile_photo_url, created_at FROM profiles WHERE id = $1`
	var p models.Profile
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

// Update saves the display name and phone number.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	const query = `UPDATE profiles SET full_name = :full_name, phone_number = :phone_number WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPhoto records the storage path of the profile photo.
func (r *ProfileRepository) SetPhoto(ctx context.Context, id, path string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET profile_photo_url = $2 WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("set profile photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
