// ABOUTME: Cached project, user and time-entry records.
// ABOUTME: Upserts stamp the cache time used by ClearOlderThan.

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Project is a cached project.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Identifier  string    `json:"identifier"`
	Description string    `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
	CachedAt    time.Time `json:"cached_at"`
}

// User is a cached user.
type User struct {
	ID          int64      `json:"id"`
	Login       string     `json:"login"`
	Firstname   string     `json:"firstname"`
	Lastname    string     `json:"lastname"`
	Mail        string     `json:"mail,omitempty"`
	CreatedOn   time.Time  `json:"created_on"`
	LastLoginOn *time.Time `json:"last_login_on,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}

// TimeEntry is a cached time entry.
type TimeEntry struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	ProjectName  string    `json:"project_name"`
	IssueID      *int64    `json:"issue_id,omitempty"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	ActivityID   int64     `json:"activity_id"`
	ActivityName string    `json:"activity_name"`
	Hours        float64   `json:"hours"`
	Comments     string    `json:"comments,omitempty"`
	SpentOn      string    `json:"spent_on"`
	CreatedOn    time.Time `json:"created_on"`
	UpdatedOn    time.Time `json:"updated_on"`
	CachedAt     time.Time `json:"cached_at"`
}

// PutProject inserts or replaces a project and stamps its cache time.
func (s *Store) PutProject(ctx context.Context, p *Project) error {
	p.CachedAt = s.now().UTC()

	isPublic := 0
	if p.IsPublic {
		isPublic = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_projects
			(id, name, identifier, description, is_public, parent_id, created_on, updated_on, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.Identifier, nullString(p.Description), isPublic, nullInt(p.ParentID),
		formatTime(p.CreatedOn), formatTime(p.UpdatedOn), formatTime(p.CachedAt),
	)
	if err != nil {
		return fmt.Errorf("caching project %d: %w", p.ID, err)
	}
	return nil
}

// Projects lists cached projects ordered by name.
func (s *Store) Projects(ctx context.Context, limit int) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, identifier, description, is_public, parent_id, created_on, updated_on, cached_at
		FROM cached_projects
		ORDER BY name
		LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		var (
			p                              Project
			description                    sql.NullString
			isPublic                       int
			parentID                       sql.NullInt64
			createdOn, updatedOn, cachedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Identifier, &description, &isPublic, &parentID,
			&createdOn, &updatedOn, &cachedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		p.Description = description.String
		p.IsPublic = isPublic != 0
		p.ParentID = intPtr(parentID)
		if p.CreatedOn, err = parseTime(createdOn); err != nil {
			return nil, fmt.Errorf("parsing created_on: %w", err)
		}
		if p.UpdatedOn, err = parseTime(updatedOn); err != nil {
			return nil, fmt.Errorf("parsing updated_on: %w", err)
		}
		if p.CachedAt, err = parseTime(cachedAt); err != nil {
			return nil, fmt.Errorf("parsing cached_at: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// PutUser inserts or replaces a user and stamps its cache time. It is called
// by the issue-tracker sync client.
func (s *Store) PutUser(ctx context.Context, u *User) error {
	u.CachedAt = s.now().UTC()

	var lastLogin sql.NullString
	if u.LastLoginOn != nil {
		lastLogin = sql.NullString{String: formatTime(*u.LastLoginOn), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_users
			(id, login, firstname, lastname, mail, created_on, last_login_on, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.Login, u.Firstname, u.Lastname, nullString(u.Mail),
		formatTime(u.CreatedOn), lastLogin, formatTime(u.CachedAt),
	)
	if err != nil {
		return fmt.Errorf("caching user %d: %w", u.ID, err)
	}
	return nil
}

// PutTimeEntry inserts or replaces a time entry and stamps its cache time.
// It is called by the issue-tracker sync client.
func (s *Store) PutTimeEntry(ctx context.Context, e *TimeEntry) error {
	e.CachedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cached_time_entries
			(id, project_id, project_name, issue_id, user_id, user_name, activity_id, activity_name,
			 hours, comments, spent_on, created_on, updated_on, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ProjectID, e.ProjectName, nullInt(e.IssueID), e.UserID, e.UserName,
		e.ActivityID, e.ActivityName, e.Hours, nullString(e.Comments), e.SpentOn,
		formatTime(e.CreatedOn), formatTime(e.UpdatedOn), formatTime(e.CachedAt),
	)
	if err != nil {
		return fmt.Errorf("caching time entry %d: %w", e.ID, err)
	}
	return nil
}
