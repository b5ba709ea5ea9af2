// ABOUTME: Cached issue records: upsert, lookup, listing and text search.
// ABOUTME: Search matches subject and description with optional filters.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Issue is a cached issue-tracker issue.
type Issue struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	ProjectName    string    `json:"project_name"`
	Subject        string    `json:"subject"`
	Description    string    `json:"description,omitempty"`
	StatusID       int64     `json:"status_id"`
	StatusName     string    `json:"status_name"`
	PriorityID     int64     `json:"priority_id"`
	PriorityName   string    `json:"priority_name"`
	AssignedToID   *int64    `json:"assigned_to_id,omitempty"`
	AssignedToName string    `json:"assigned_to_name,omitempty"`
	CreatedOn      time.Time `json:"created_on"`
	UpdatedOn      time.Time `json:"updated_on"`
	CachedAt       time.Time `json:"cached_at"`
}

// IssueQuery filters SearchIssues. Zero-valued fields do not filter.
type IssueQuery struct {
	Text         string
	ProjectID    int64
	StatusID     int64
	AssignedToID int64
	Limit        int
	Offset       int
}

const issueColumns = `id, project_id, project_name, subject, description, status_id, status_name,
	priority_id, priority_name, assigned_to_id, assigned_to_name, created_on, updated_on, cached_at`

// PutIssue inserts or replaces an issue and stamps its cache time.
func (s *Store) PutIssue(ctx context.Context, issue *Issue) error {
	issue.CachedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		issue.ID, issue.ProjectID, issue.ProjectName, issue.Subject, nullString(issue.Description),
		issue.StatusID, issue.StatusName, issue.PriorityID, issue.PriorityName,
		nullInt(issue.AssignedToID), nullString(issue.AssignedToName),
		formatTime(issue.CreatedOn), formatTime(issue.UpdatedOn), formatTime(issue.CachedAt),
	)
	if err != nil {
		return fmt.Errorf("caching issue %d: %w", issue.ID, err)
	}
	return nil
}

// Issue returns one cached issue or ErrNotFound.
func (s *Store) Issue(ctx context.Context, id int64) (*Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM cached_issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading issue %d: %w", id, err)
	}
	return issue, nil
}

// Issues lists cached issues, most recently updated first. A zero projectID
// lists every project.
func (s *Store) Issues(ctx context.Context, projectID int64, limit int) ([]*Issue, error) {
	return s.SearchIssues(ctx, IssueQuery{ProjectID: projectID, Limit: limit})
}

// SearchIssues matches q.Text against subject and description and applies
// the remaining filters, most recently updated first.
func (s *Store) SearchIssues(ctx context.Context, q IssueQuery) ([]*Issue, error) {
	var (
		where []string
		args  []any
	)
	if strings.TrimSpace(q.Text) != "" {
		where = append(where, "(subject LIKE ? OR description LIKE ?)")
		pattern := likePattern(q.Text)
		args = append(args, pattern, pattern)
	}
	if q.ProjectID != 0 {
		where = append(where, "project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.StatusID != 0 {
		where = append(where, "status_id = ?")
		args = append(args, q.StatusID)
	}
	if q.AssignedToID != 0 {
		where = append(where, "assigned_to_id = ?")
		args = append(args, q.AssignedToID)
	}

	query := `SELECT ` + issueColumns + ` FROM cached_issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_on DESC LIMIT ? OFFSET ?"
	args = append(args, limitOrDefault(q.Limit), max(q.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	defer rows.Close()

	issues := []*Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (*Issue, error) {
	var (
		issue                          Issue
		description, assignedToName    sql.NullString
		assignedToID                   sql.NullInt64
		createdOn, updatedOn, cachedAt string
	)
	err := row.Scan(
		&issue.ID, &issue.ProjectID, &issue.ProjectName, &issue.Subject, &description,
		&issue.StatusID, &issue.StatusName, &issue.PriorityID, &issue.PriorityName,
		&assignedToID, &assignedToName, &createdOn, &updatedOn, &cachedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Description = description.String
	issue.AssignedToID = intPtr(assignedToID)
	issue.AssignedToName = assignedToName.String
	if issue.CreatedOn, err = parseTime(createdOn); err != nil {
		return nil, fmt.Errorf("parsing created_on: %w", err)
	}
	if issue.UpdatedOn, err = parseTime(updatedOn); err != nil {
		return nil, fmt.Errorf("parsing updated_on: %w", err)
	}
	if issue.CachedAt, err = parseTime(cachedAt); err != nil {
		return nil, fmt.Errorf("parsing cached_at: %w", err)
	}
	return &issue, nil
}
