package teams

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	teamCSVHeader   = []string{"id", "name", "slug", "department", "manager_id", "manager_name", "description", "tags", "is_active", "member_count", "created_at"}
	memberCSVHeader = []string{"id", "team_id", "employee_id", "employee_name", "role_in_team", "status", "is_primary", "joined_on"}
)

// MaxImportRows bounds a single member import file.
const MaxImportRows = 1000

// WriteTeamsCSV encodes teams as CSV with a header row.
func WriteTeamsCSV(teams []Team) ([]byte, error) {
	return writeCSV(teamCSVHeader, len(teams), func(i int) []string {
		t := teams[i]
		return []string{
			t.ID.String(),
			t.Name,
			t.Slug,
			t.Department,
			t.ManagerID.String(),
			t.ManagerName,
			t.Description,
			strings.Join(t.Tags, ";"),
			strconv.FormatBool(t.IsActive),
			strconv.Itoa(t.MemberCount),
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
	})
}

// WriteMembersCSV encodes memberships as CSV with a header row.
func WriteMembersCSV(members []Member) ([]byte, error) {
	return writeCSV(memberCSVHeader, len(members), func(i int) []string {
		m := members[i]
		return []string{
			m.ID.String(),
			m.TeamID.String(),
			m.EmployeeID.String(),
			m.Name,
			string(m.RoleInTeam),
			string(m.Status),
			strconv.FormatBool(m.IsPrimary),
			m.JoinedOn.UTC().Format("2006-01-02"),
		}
	})
}

func writeCSV(header []string, n int, record func(int) []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(record(i)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseImportCSV reads a member import file. The header must name an
// employee_id column; role_in_team and is_primary are optional. Lines that
// fail to parse come back with Problem set so the import report can name
// them.
func ParseImportCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty import file", ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["employee_id"]; !ok {
		return nil, fmt.Errorf("%w: missing employee_id column", ErrValidation)
	}
	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if len(rows) == MaxImportRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrValidation, MaxImportRows)
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			rows = append(rows, ImportRow{Line: parseErr.StartLine, Problem: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		line, _ := reader.FieldPos(0)
		row := ImportRow{Line: line}
		id, err := uuid.Parse(field(record, "employee_id"))
		if err != nil {
			row.Problem = "invalid employee_id"
			rows = append(rows, row)
			continue
		}
		row.EmployeeID = id
		row.RoleInTeam = MemberRole(strings.ToLower(field(record, "role_in_team")))
		if raw := field(record, "is_primary"); raw != "" {
			primary, err := strconv.ParseBool(raw)
			if err != nil {
				row.Problem = "is_primary must be a boolean"
				rows = append(rows, row)
				continue
			}
			row.IsPrimary = primary
		}
		rows = append(rows, row)
	}
	return rows, nil
}
