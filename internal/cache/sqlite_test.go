// ABOUTME: Tests for the SQLite cache store.
// ABOUTME: Covers upserts, search filters, stats and age-based clearing.

package cache

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testIssue(id, projectID int64, subject string, updated time.Time) *Issue {
	return &Issue{
		ID:           id,
		ProjectID:    projectID,
		ProjectName:  "Project",
		Subject:      subject,
		StatusID:     1,
		StatusName:   "New",
		PriorityID:   2,
		PriorityName: "Normal",
		CreatedOn:    updated.Add(-time.Hour),
		UpdatedOn:    updated,
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")
	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPutAndGetIssue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assignee := int64(7)
	issue := testIssue(101, 1, "Login fails", now)
	issue.Description = "Users cannot log in"
	issue.AssignedToID = &assignee
	issue.AssignedToName = "Ada"
	require.NoError(t, store.PutIssue(ctx, issue))
	assert.False(t, issue.CachedAt.IsZero())

	got, err := store.Issue(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "Login fails", got.Subject)
	assert.Equal(t, "Users cannot log in", got.Description)
	require.NotNil(t, got.AssignedToID)
	assert.Equal(t, int64(7), *got.AssignedToID)
	assert.True(t, now.Equal(got.UpdatedOn))

	_, err = store.Issue(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutIssueReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.PutIssue(ctx, testIssue(1, 1, "old subject", now)))
	require.NoError(t, store.PutIssue(ctx, testIssue(1, 1, "new subject", now)))

	got, err := store.Issue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new subject", got.Subject)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Issues)
}

func TestIssuesOrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutIssue(ctx, testIssue(1, 10, "first", base)))
	require.NoError(t, store.PutIssue(ctx, testIssue(2, 10, "second", base.Add(2*time.Hour))))
	require.NoError(t, store.PutIssue(ctx, testIssue(3, 20, "third", base.Add(time.Hour))))

	all, err := store.Issues(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{all[0].ID, all[1].ID, all[2].ID})

	project, err := store.Issues(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, project, 1)
	assert.Equal(t, int64(2), project[0].ID)
}

func TestSearchIssues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := testIssue(1, 10, "Login page broken", base)
	b := testIssue(2, 10, "Export CSV", base.Add(time.Hour))
	b.Description = "Add login audit to export"
	c := testIssue(3, 20, "Login timeout", base.Add(2*time.Hour))
	c.StatusID = 5
	for _, issue := range []*Issue{a, b, c} {
		require.NoError(t, store.PutIssue(ctx, issue))
	}

	ids := func(issues []*Issue) []int64 {
		out := make([]int64, len(issues))
		for i, issue := range issues {
			out[i] = issue.ID
		}
		return out
	}

	tests := []struct {
		name  string
		query IssueQuery
		want  []int64
	}{
		{name: "subject or description", query: IssueQuery{Text: "login"}, want: []int64{3, 2, 1}},
		{name: "project filter", query: IssueQuery{Text: "login", ProjectID: 10}, want: []int64{2, 1}},
		{name: "status filter", query: IssueQuery{StatusID: 5}, want: []int64{3}},
		{name: "offset", query: IssueQuery{Text: "login", Limit: 1, Offset: 1}, want: []int64{2}},
		{name: "no match", query: IssueQuery{Text: "zebra"}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.SearchIssues(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestProjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	parent := int64(1)
	require.NoError(t, store.PutProject(ctx, &Project{ID: 2, Name: "Zeta", Identifier: "zeta", IsPublic: true, ParentID: &parent, CreatedOn: now, UpdatedOn: now}))
	require.NoError(t, store.PutProject(ctx, &Project{ID: 1, Name: "Alpha", Identifier: "alpha", CreatedOn: now, UpdatedOn: now}))

	projects, err := store.Projects(ctx, 0)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.False(t, projects[0].IsPublic)
	assert.Nil(t, projects[0].ParentID)
	assert.Equal(t, "Zeta", projects[1].Name)
	assert.True(t, projects[1].IsPublic)
	require.NotNil(t, projects[1].ParentID)
	assert.Equal(t, int64(1), *projects[1].ParentID)
}

func TestStatsAndClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.PutIssue(ctx, testIssue(1, 1, "a", now)))
	require.NoError(t, store.PutIssue(ctx, testIssue(2, 1, "b", now)))
	require.NoError(t, store.PutProject(ctx, &Project{ID: 1, Name: "P", Identifier: "p", CreatedOn: now, UpdatedOn: now}))
	require.NoError(t, store.PutUser(ctx, &User{ID: 1, Login: "ada", Firstname: "Ada", Lastname: "L", CreatedOn: now, LastLoginOn: &now}))
	require.NoError(t, store.PutTimeEntry(ctx, &TimeEntry{ID: 1, ProjectID: 1, ProjectName: "P", UserID: 1, UserName: "Ada", ActivityID: 9, ActivityName: "Dev", Hours: 1.5, SpentOn: "2025-01-01", CreatedOn: now, UpdatedOn: now}))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Issues: 2, Projects: 1, Users: 1, TimeEntries: 1, Total: 5}, st)

	require.NoError(t, store.ClearAll(ctx))
	st, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestClearOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.PutIssue(ctx, testIssue(1, 1, "stale", clock)))
	require.NoError(t, store.PutProject(ctx, &Project{ID: 1, Name: "P", Identifier: "p", CreatedOn: clock, UpdatedOn: clock}))

	clock = clock.Add(10 * 24 * time.Hour)
	require.NoError(t, store.PutIssue(ctx, testIssue(2, 1, "fresh", clock)))

	removed, err := store.ClearOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Issues)
	assert.Equal(t, int64(0), st.Projects)

	_, err = store.ClearOlderThan(ctx, -1)
	assert.Error(t, err)
}

func TestClearOlderThanHugeAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.PutIssue(ctx, testIssue(1, 1, "recent", now)))

	for _, days := range []int{106_752, 200_000, maxClearDays + 1, math.MaxInt32, math.MaxInt} {
		removed, err := store.ClearOlderThan(ctx, days)
		require.NoError(t, err, "days=%d", days)
		assert.Equal(t, int64(0), removed, "days=%d", days)
	}

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Issues, "an absurd age must not clear recent records")
}
