package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hinfinity/hrdesk/internal/platform/db"
)

// Repository persists teams in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const teamSelect = `SELECT t.id, t.name, t.slug, t.department, t.manager_id, COALESCE(u.name, ''),
	t.description, t.tags, t.created_by, t.created_at, t.updated_at, t.is_active,
	(SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id AND m.status = 'active')
FROM teams t
LEFT JOIN users u ON u.id = t.manager_id`

// CreateTeam inserts a team. A taken slug yields ErrDuplicate.
func (r *Repository) CreateTeam(ctx context.Context, team Team) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO teams (id, name, slug, department, manager_id, description, tags, created_by, created_at, updated_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		team.ID, team.Name, team.Slug, team.Department, team.ManagerID, team.Description, team.Tags,
		team.CreatedBy, team.CreatedAt, team.UpdatedAt, team.IsActive)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: slug %q", ErrDuplicate, team.Slug)
	}
	return err
}

// GetTeam loads a team by id.
func (r *Repository) GetTeam(ctx context.Context, id uuid.UUID) (Team, error) {
	row := r.pool.QueryRow(ctx, teamSelect+` WHERE t.id = $1`, id)
	team, err := scanTeam(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	return team, err
}

// UpdateTeam overwrites mutable team fields.
func (r *Repository) UpdateTeam(ctx context.Context, team Team) error {
	tag, err := r.pool.Exec(ctx, `UPDATE teams SET name=$2, slug=$3, department=$4, manager_id=$5,
	description=$6, tags=$7, is_active=$8, updated_at=$9 WHERE id=$1`,
		team.ID, team.Name, team.Slug, team.Department, team.ManagerID, team.Description,
		team.Tags, team.IsActive, team.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: slug %q", ErrDuplicate, team.Slug)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTeams returns teams ordered by name.
func (r *Repository) ListTeams(ctx context.Context, filters Filters) ([]Team, error) {
	sql := teamSelect + ` WHERE 1=1`
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		sql += fmt.Sprintf(clause, len(args))
	}
	if filters.Department != "" {
		add(` AND t.department = $%d`, filters.Department)
	}
	if filters.IsActive != nil {
		add(` AND t.is_active = $%d`, *filters.IsActive)
	}
	if filters.ManagerID != uuid.Nil {
		add(` AND t.manager_id = $%d`, filters.ManagerID)
	}
	if filters.Search != "" {
		add(` AND (t.name ILIKE '%%' || $%[1]d || '%%' OR t.description ILIKE '%%' || $%[1]d || '%%')`, filters.Search)
	}
	if len(filters.Tags) > 0 {
		add(` AND t.tags @> $%d`, filters.Tags)
	}
	if filters.TeamIDs != nil {
		add(` AND t.id = ANY($%d)`, filters.TeamIDs)
	}
	sql += ` ORDER BY t.name`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, rows.Err()
}

// ActiveTeamIDs returns the teams where employee holds an active membership.
func (r *Repository) ActiveTeamIDs(ctx context.Context, employeeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT team_id FROM team_members WHERE employee_id = $1 AND status = 'active'`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddMember inserts a membership. An existing active membership for the
// same employee yields ErrDuplicate.
func (r *Repository) AddMember(ctx context.Context, m Member) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO team_members (id, team_id, employee_id, role_in_team, joined_on, status, is_primary)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.TeamID, m.EmployeeID, string(m.RoleInTeam), m.JoinedOn, string(m.Status), m.IsPrimary)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: employee already in team", ErrDuplicate)
	}
	return err
}

const memberSelect = `SELECT m.id, m.team_id, m.employee_id, COALESCE(u.name, ''), m.role_in_team,
	m.joined_on, m.status, m.is_primary
FROM team_members m
LEFT JOIN users u ON u.id = m.employee_id`

// GetMember loads a membership by id.
func (r *Repository) GetMember(ctx context.Context, id uuid.UUID) (Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, memberSelect+` WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	return m, err
}

// UpdateMember persists membership status and role.
func (r *Repository) UpdateMember(ctx context.Context, m Member) error {
	tag, err := r.pool.Exec(ctx, `UPDATE team_members SET role_in_team=$2, status=$3, is_primary=$4 WHERE id=$1`,
		m.ID, string(m.RoleInTeam), string(m.Status), m.IsPrimary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransferMember retires from and inserts to in one transaction. An active
// membership of the employee in the target team yields ErrDuplicate.
func (r *Repository) TransferMember(ctx context.Context, from, to Member) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE team_members SET status=$2 WHERE id=$1 AND status <> 'inactive'`, from.ID, string(from.Status))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `INSERT INTO team_members (id, team_id, employee_id, role_in_team, joined_on, status, is_primary)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			to.ID, to.TeamID, to.EmployeeID, string(to.RoleInTeam), to.JoinedOn, string(to.Status), to.IsPrimary)
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: employee already in target team", ErrDuplicate)
		}
		return err
	})
}

// ListMembers returns all memberships of a team, active first.
func (r *Repository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, memberSelect+` WHERE m.team_id = $1 ORDER BY m.status = 'active' DESC, m.joined_on`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanTeam(row pgx.Row) (Team, error) {
	var (
		t     Team
		count int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Department, &t.ManagerID, &t.ManagerName,
		&t.Description, &t.Tags, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.IsActive, &count)
	t.MemberCount = int(count)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, err
}

func scanMember(row pgx.Row) (Member, error) {
	var (
		m      Member
		role   string
		status string
	)
	err := row.Scan(&m.ID, &m.TeamID, &m.EmployeeID, &m.Name, &role, &m.JoinedOn, &status, &m.IsPrimary)
	m.RoleInTeam = MemberRole(role)
	m.Status = MemberStatus(status)
	return m, err
}
