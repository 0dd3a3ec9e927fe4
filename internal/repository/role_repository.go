package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

// RoleRepository reads and grants role assignments.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// RolesFor loads the capability set of a user. Unknown role strings fail the scan.
func (r *RoleRepository) RolesFor(ctx context.Context, userID string) (models.RoleSet, error) {
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, `SELECT role FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("list roles: %w", err)
	}
	return models.NewRoleSet(roles...), nil
}

// ListByUser returns the raw assignment rows of a user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]models.RoleAssignment, error) {
	var rows []models.RoleAssignment
	const query = `SELECT id, user_id, role, created_at FROM user_roles WHERE user_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	return rows, nil
}

// Grant inserts the assignment if absent. It reports whether a row was created.
func (r *RoleRepository) Grant(ctx context.Context, userID string, role models.Role) (bool, error) {
	return grantRole(ctx, r.db, userID, role)
}

func grantRole(ctx context.Context, exec sqlx.ExecerContext, userID string, role models.Role) (bool, error) {
	const query = `INSERT INTO user_roles (id, user_id, role, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, role) DO NOTHING`
	res, err := exec.ExecContext(ctx, query, uuid.NewString(), userID, role, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("grant %s role: %w", role, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grant %s role: %w", role, err)
	}
	return n > 0, nil
}
