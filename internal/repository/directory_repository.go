package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/errors"
)

// DirectoryRepository reads users and departments. Approver eligibility
// is always computed here at transition time, never snapshotted, so user
// deactivation or reassignment takes effect immediately.
type DirectoryRepository struct {
	db *database.DB
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetUser retrieves a user by primary key.
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, email, role, department_id, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user, err := r.scanUser(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	return user, err
}

// GetDepartment retrieves a department by primary key.
func (r *DirectoryRepository) GetDepartment(ctx context.Context, id string) (*Department, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM departments
		WHERE id = $1
	`

	dep := &Department{}
	err := r.db.QueryRow(ctx, query, id).Scan(&dep.ID, &dep.Name, &dep.CreatedAt, &dep.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("department", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get department")
	}
	return dep, nil
}

// FindApprover resolves the approver for a required role within the
// requester's department. When several active users hold the role, the
// lowest user id wins.
func (r *DirectoryRepository) FindApprover(ctx context.Context, requesterID string, role Role) (*User, error) {
	requester, err := r.GetUser(ctx, requesterID)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeNotFound {
			return nil, errors.New(errors.ErrCodeRequesterMissing, "requester does not exist").
				WithParams(map[string]interface{}{"requester_id": requesterID})
		}
		return nil, err
	}
	if requester.DepartmentID == nil {
		return nil, errors.New(errors.ErrCodeRequesterHasNoDepartment,
			"requester is not assigned to a department").
			WithParams(map[string]interface{}{"requester_id": requesterID})
	}

	query := `
		SELECT id, name, email, role, department_id, is_active, created_at, updated_at
		FROM users
		WHERE role = $1
		  AND department_id = $2
		  AND is_active = TRUE
		ORDER BY id ASC
		LIMIT 1
	`

	approver, err := r.scanUser(r.db.QueryRow(ctx, query, role, *requester.DepartmentID))
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNoApproverForRole,
			"no active approver holds the required role in the requester's department").
			WithParams(map[string]interface{}{
				"role":          string(role),
				"department_id": *requester.DepartmentID,
			})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find approver")
	}
	return approver, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type userScanner interface {
	Scan(dest ...any) error
}

func (r *DirectoryRepository) scanUser(row userScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.DepartmentID,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
