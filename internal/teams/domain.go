package teams

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown team or membership.
	ErrNotFound = errors.New("teams: not found")
	// ErrDuplicate indicates a slug or membership that already exists.
	ErrDuplicate = errors.New("teams: already exists")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("teams: validation failed")
)

// MemberStatus tracks a membership lifecycle. Memberships are never deleted.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberOnLeave  MemberStatus = "on_leave"
	MemberInactive MemberStatus = "inactive"
)

// MemberRole is the role a person holds inside a team.
type MemberRole string

const (
	RoleLead        MemberRole = "lead"
	RoleMember      MemberRole = "member"
	RoleContributor MemberRole = "contributor"
)

// Team is an organisational unit with a manager of record.
type Team struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Department  string    `json:"department"`
	ManagerID   uuid.UUID `json:"manager_id"`
	ManagerName string    `json:"manager_name,omitempty"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsActive    bool      `json:"is_active"`
	MemberCount int       `json:"member_count"`
}

// Member links an employee to a team.
type Member struct {
	ID         uuid.UUID    `json:"id"`
	TeamID     uuid.UUID    `json:"team_id"`
	EmployeeID uuid.UUID    `json:"employee_id"`
	Name       string       `json:"employee_name,omitempty"`
	RoleInTeam MemberRole   `json:"role_in_team"`
	JoinedOn   time.Time    `json:"joined_on"`
	Status     MemberStatus `json:"status"`
	IsPrimary  bool         `json:"is_primary"`
}

// Filters narrows team listings. Zero values mean no filter.
type Filters struct {
	Department string
	IsActive   *bool
	ManagerID  uuid.UUID
	Search     string
	Tags       []string
	// TeamIDs restricts results to the given teams when non-nil.
	TeamIDs []uuid.UUID
}

// CreateInput describes a new team.
type CreateInput struct {
	Name        string
	Department  string
	ManagerID   uuid.UUID
	Description string
	Tags        []string
}

// UpdateInput carries optional team changes.
type UpdateInput struct {
	Name        *string
	Department  *string
	ManagerID   *uuid.UUID
	Description *string
	Tags        []string
	IsActive    *bool
}

// AddMemberInput describes a new membership.
type AddMemberInput struct {
	EmployeeID uuid.UUID
	RoleInTeam MemberRole
	IsPrimary  bool
}

// UpdateMemberInput carries optional membership changes.
type UpdateMemberInput struct {
	RoleInTeam *MemberRole
	Status     *MemberStatus
	IsPrimary  *bool
}

// TransferInput moves a membership to another team.
type TransferInput struct {
	ToTeamID uuid.UUID
	Reason   string
}

// ImportRow is one parsed line of a member import file. Line is the
// 1-based line number in the source file.
type ImportRow struct {
	Line       int
	EmployeeID uuid.UUID
	RoleInTeam MemberRole
	IsPrimary  bool
	// Problem is set when the line could not be parsed.
	Problem string
}

// RowError reports why an import row was rejected.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarises a bulk import. Created stays zero on a dry run.
type ImportReport struct {
	DryRun    bool       `json:"dry_run"`
	Processed int        `json:"processed"`
	Valid     int        `json:"valid"`
	Created   int        `json:"created"`
	Errors    []RowError `json:"errors"`
}

func (r *ImportReport) fail(line int, msg string) {
	r.Errors = append(r.Errors, RowError{Row: line, Error: msg})
}

var slugStrip = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify derives the URL slug of a team name.
func Slugify(name string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(name)), "-")
	slug = slugStrip.ReplaceAllString(slug, "")
	return strings.Trim(slug, "-")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
