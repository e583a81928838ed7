package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists projects in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectSelect = `SELECT id, team_id, name, description, status, priority, start_date, end_date,
	completion_percentage, assigned_members, tags, created_by, created_at, updated_at
FROM team_projects`

// Create inserts a project.
func (r *Repository) Create(ctx context.Context, p Project) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO team_projects (id, team_id, name, description, status, priority,
	start_date, end_date, completion_percentage, assigned_members, tags, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.TeamID, p.Name, p.Description, string(p.Status), string(p.Priority),
		p.StartDate, p.EndDate, p.Completion, p.AssignedMembers, p.Tags, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

// Get loads a project by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, projectSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

// Update overwrites mutable project fields.
func (r *Repository) Update(ctx context.Context, p Project) error {
	tag, err := r.pool.Exec(ctx, `UPDATE team_projects SET name=$2, description=$3, status=$4, priority=$5,
	start_date=$6, end_date=$7, completion_percentage=$8, assigned_members=$9, tags=$10, updated_at=$11 WHERE id=$1`,
		p.ID, p.Name, p.Description, string(p.Status), string(p.Priority), p.StartDate, p.EndDate,
		p.Completion, p.AssignedMembers, p.Tags, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a project.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM team_projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a team's projects, newest first.
func (r *Repository) List(ctx context.Context, filters Filters) ([]Project, error) {
	sql := projectSelect + ` WHERE team_id = $1`
	args := []any{filters.TeamID}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		sql += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (Project, error) {
	var (
		p        Project
		status   string
		priority string
	)
	err := row.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &status, &priority, &p.StartDate, &p.EndDate,
		&p.Completion, &p.AssignedMembers, &p.Tags, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Status(status)
	p.Priority = Priority(priority)
	if p.AssignedMembers == nil {
		p.AssignedMembers = []uuid.UUID{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, err
}
