package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// DirectoryRepository implements port.DirectoryRepository
type DirectoryRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqldb.DB, logger *zap.Logger) port.DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetUser retrieves a user with roles
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*entity.OrgUser, error) {
	query := r.db.Rebind(`
		SELECT id, org_id, department_id, manager_id, display_name, lark_user_id
		FROM org_users
		WHERE id = ?
	`)

	var user entity.OrgUser
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.OrgID,
		&user.DepartmentID,
		&user.ManagerID,
		&user.DisplayName,
		&user.LarkUserID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Roles, err = r.roles(ctx, id)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetDepartment retrieves a department by ID
func (r *DirectoryRepository) GetDepartment(ctx context.Context, id string) (*entity.Department, error) {
	query := r.db.Rebind(`SELECT id, org_id, name, head_user_id FROM departments WHERE id = ?`)

	var dept entity.Department
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(&dept.ID, &dept.OrgID, &dept.Name, &dept.HeadUserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get department", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get department: %w", err)
	}

	return &dept, nil
}

// ListByRole returns the users of an organization holding role, ordered by id
func (r *DirectoryRepository) ListByRole(ctx context.Context, orgID, role string) ([]*entity.OrgUser, error) {
	query := r.db.Rebind(`
		SELECT u.id, u.org_id, u.department_id, u.manager_id, u.display_name, u.lark_user_id
		FROM org_users u
		JOIN org_user_roles ur ON ur.user_id = u.id
		WHERE u.org_id = ? AND ur.role = ?
		ORDER BY u.id ASC
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, orgID, role)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []*entity.OrgUser
	for rows.Next() {
		var user entity.OrgUser
		if err := rows.Scan(&user.ID, &user.OrgID, &user.DepartmentID, &user.ManagerID, &user.DisplayName, &user.LarkUserID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Roles = []string{role}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// UpsertUser inserts or replaces a user and its role set
func (r *DirectoryRepository) UpsertUser(ctx context.Context, user *entity.OrgUser) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)

		_, err := exec.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO org_users (id, org_id, department_id, manager_id, display_name, lark_user_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				org_id = excluded.org_id,
				department_id = excluded.department_id,
				manager_id = excluded.manager_id,
				display_name = excluded.display_name,
				lark_user_id = excluded.lark_user_id
		`), user.ID, user.OrgID, user.DepartmentID, user.ManagerID, user.DisplayName, user.LarkUserID)
		if err != nil {
			r.logger.Error("Failed to upsert user", zap.String("id", user.ID), zap.Error(err))
			return fmt.Errorf("failed to upsert user: %w", err)
		}

		if _, err := exec.ExecContext(ctx, r.db.Rebind(`DELETE FROM org_user_roles WHERE user_id = ?`), user.ID); err != nil {
			return fmt.Errorf("failed to clear roles: %w", err)
		}
		for _, role := range user.Roles {
			if _, err := exec.ExecContext(ctx, r.db.Rebind(`INSERT INTO org_user_roles (user_id, role) VALUES (?, ?)`), user.ID, role); err != nil {
				return fmt.Errorf("failed to insert role %s: %w", role, err)
			}
		}
		return nil
	})
}

// UpsertDepartment inserts or replaces a department
func (r *DirectoryRepository) UpsertDepartment(ctx context.Context, dept *entity.Department) error {
	query := r.db.Rebind(`
		INSERT INTO departments (id, org_id, name, head_user_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			org_id = excluded.org_id,
			name = excluded.name,
			head_user_id = excluded.head_user_id
	`)

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, dept.ID, dept.OrgID, dept.Name, dept.HeadUserID); err != nil {
		r.logger.Error("Failed to upsert department", zap.String("id", dept.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert department: %w", err)
	}

	return nil
}

func (r *DirectoryRepository) roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(`SELECT role FROM org_user_roles WHERE user_id = ? ORDER BY role`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// Verify interface compliance
var _ port.DirectoryRepository = (*DirectoryRepository)(nil)
