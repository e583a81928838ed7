package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hinfinity/hrdesk/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, department, employment_status, hire_date, confidential, is_active, created_at, updated_at`

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// List returns one page of users ordered by name plus the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Role != "" {
		args = append(args, string(filters.Role))
		where += fmt.Sprintf(` AND role = $%d`, len(args))
	}
	if filters.Department != "" {
		args = append(args, filters.Department)
		where += fmt.Sprintf(` AND department = $%d`, len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%[1]d OR email ILIKE $%[1]d)`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)
	sql := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update persists role and activity changes.
func (r *Repository) Update(ctx context.Context, user User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, is_active = $3, updated_at = $4 WHERE id = $1`,
		user.ID, string(user.Role), user.IsActive, user.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u        User
		role     string
		hireDate pgtype.Date
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.Department, &u.EmploymentStatus,
		&hireDate, &u.Confidential, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Role = rbac.Role(role)
	if hireDate.Valid {
		u.HireDate = hireDate.Time
	}
	return u, nil
}
