package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

// Registration bundles the rows written when a student signs up.
// Identity is nil when an existing identity is being onboarded.
type Registration struct {
	Identity *models.Identity
	Student  *models.Student
	Profile  *models.Profile
}

// AccountRepository performs multi-table account writes in one transaction.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Register writes identity, student role, student row and profile atomically.
func (r *AccountRepository) Register(ctx context.Context, reg Registration) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if reg.Identity != nil {
		if err = insertIdentity(ctx, tx, reg.Identity); err != nil {
			return err
		}
		reg.Student.UserID = reg.Identity.ID
		reg.Profile.ID = reg.Identity.ID
	}

	if _, err = grantRole(ctx, tx, reg.Student.UserID, models.RoleStudent); err != nil {
		return err
	}
	if err = insertStudent(ctx, tx, reg.Student); err != nil {
		return err
	}

	if reg.Profile.CreatedAt.IsZero() {
		reg.Profile.CreatedAt = time.Now().UTC()
	}
	const profileQuery = `INSERT INTO profiles (id, full_name, phone_number, profile_photo_url, created_at)
VALUES (:id, :full_name, :phone_number, :profile_photo_url, :created_at)
ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, phone_number = EXCLUDED.phone_number`
	if _, err = tx.NamedExecContext(ctx, profileQuery, reg.Profile); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// PurgeSteps lists the tables cleared by Purge, in execution order.
var PurgeSteps = []struct {
	Name  string
	Query string
}{
	{"profile", `DELETE FROM profiles WHERE id = $1`},
	{"fee records", `DELETE FROM fee_records WHERE student_id IN (SELECT id FROM students WHERE user_id = $1)`},
	{"role assignments", `DELETE FROM user_roles WHERE user_id = $1`},
	{"refresh tokens", `DELETE FROM refresh_tokens WHERE user_id = $1`},
	{"identity", `DELETE FROM identities WHERE id = $1`},
}

// Purge irreversibly removes an identity and everything owned by it except the
// student row, which stays behind as an inactive archive. Returns whether an
// identity row was deleted.
func (r *AccountRepository) Purge(ctx context.Context, userID string) (deleted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin purge: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, step := range PurgeSteps {
		res, execErr := tx.ExecContext(ctx, step.Query, userID)
		if execErr != nil {
			err = fmt.Errorf("purge %s: %w", step.Name, execErr)
			return false, err
		}
		if step.Name == "identity" {
			n, _ := res.RowsAffected()
			deleted = n > 0
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit purge: %w", err)
	}
	return deleted, nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
