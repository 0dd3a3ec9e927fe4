package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const identityColumns = `id, username, phone, password_hash, created_at, updated_at, last_sign_in_at`

// IdentityRepository provides database access for sign-in identities and their sessions.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity. A taken username or phone yields ErrDuplicate.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	return insertIdentity(ctx, r.db, identity)
}

func insertIdentity(ctx context.Context, exec sqlx.ExtContext, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	const query = `INSERT INTO identities (id, username, phone, password_hash, created_at, updated_at) VALUES (:id, :username, :phone, :password_hash, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, identity); err != nil {
		if constraint, ok := uniqueConstraint(err); ok && (constraint == constraintUsername || constraint == constraintPhone) {
			return fmt.Errorf("create identity: %w", ErrDuplicate)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// FindByID returns an identity by identifier.
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.findOne(ctx, "id", id)
}

// FindByUsername returns an identity by username.
func (r *IdentityRepository) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	return r.findOne(ctx, "username", username)
}

// FindByPhone returns an identity by normalised phone number.
func (r *IdentityRepository) FindByPhone(ctx context.Context, phone string) (*models.Identity, error) {
	return r.findOne(ctx, "phone", phone)
}

func (r *IdentityRepository) findOne(ctx context.Context, column, value string) (*models.Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE %s = $1 LIMIT 1`, identityColumns, column)
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by %s: %w", column, err)
	}
	return &identity, nil
}

// Exists reports whether the identity is still present.
func (r *IdentityRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return exists, nil
}

// UpdateLastSignIn stamps the sign-in time.
func (r *IdentityRepository) UpdateLastSignIn(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE identities SET last_sign_in_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last sign in: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *IdentityRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *IdentityRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *IdentityRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for an identity.
func (r *IdentityRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
