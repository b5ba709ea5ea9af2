// ABOUTME: Tests for the cache pack and the builtin resources.
// ABOUTME: Uses a temporary SQLite cache.

package builtins

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hostmcp/internal/cache"
	"github.com/2389/hostmcp/internal/catalog"
)

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now()
	for _, issue := range []*cache.Issue{
		{ID: 1, ProjectID: 10, ProjectName: "Web", Subject: "Login broken", StatusID: 1, StatusName: "New", PriorityID: 2, PriorityName: "Normal", CreatedOn: now, UpdatedOn: now},
		{ID: 2, ProjectID: 20, ProjectName: "API", Subject: "Rate limits", StatusID: 1, StatusName: "New", PriorityID: 2, PriorityName: "Normal", CreatedOn: now, UpdatedOn: now},
	} {
		require.NoError(t, store.PutIssue(context.Background(), issue))
	}
	return store
}

func TestCacheStats(t *testing.T) {
	pack := CachePack(newTestCache(t), nil)

	out, err := findHandler(pack, "cache_stats")(context.Background(), nil)
	require.NoError(t, err)

	var st cache.Stats
	require.NoError(t, json.Unmarshal(out, &st))
	assert.Equal(t, int64(2), st.Issues)
	assert.Equal(t, int64(2), st.Total)
}

func TestCacheSearchIssues(t *testing.T) {
	pack := CachePack(newTestCache(t), nil)
	h := findHandler(pack, "cache_search_issues")

	out, err := h(context.Background(), json.RawMessage(`{"query":"login"}`))
	require.NoError(t, err)
	var issues []cache.Issue
	require.NoError(t, json.Unmarshal(out, &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, int64(1), issues[0].ID)

	out, err = h(context.Background(), json.RawMessage(`{"query":"login","project_id":20}`))
	require.NoError(t, err)
	var text string
	require.NoError(t, json.Unmarshal(out, &text))
	assert.Contains(t, text, "No cached issues")
}

func TestCacheClearNotifies(t *testing.T) {
	store := newTestCache(t)
	changes := 0
	pack := CachePack(store, func() { changes++ })

	assert.Equal(t, "Removed 0 records cached more than 7 days ago", callText(t, pack, "cache_clear", `{"older_than_days":7}`))
	assert.Equal(t, "Cache cleared", callText(t, pack, "cache_clear", `{}`))
	assert.Equal(t, 2, changes)

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Total)
}

func TestCachePackWithoutStore(t *testing.T) {
	pack := CachePack(nil, nil)
	for _, name := range []string{"cache_stats", "cache_search_issues", "cache_clear"} {
		_, err := findHandler(pack, name)(context.Background(), json.RawMessage(`{"query":"x"}`))
		assert.ErrorIs(t, err, ErrCacheUnavailable, name)
	}
}

func TestCacheResources(t *testing.T) {
	store := newTestCache(t)
	registry := catalog.NewRegistry(nil)
	require.NoError(t, RegisterCacheResources(registry, store))
	ctx := context.Background()

	contents, err := registry.ReadResource(ctx, CacheStatsURI)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contents.MimeType)
	var st cache.Stats
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &st))
	assert.Equal(t, int64(2), st.Issues)

	contents, err = registry.ReadResource(ctx, "cache://projects/20/issues")
	require.NoError(t, err)
	var issues []cache.Issue
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "Rate limits", issues[0].Subject)

	_, err = registry.ReadResource(ctx, "cache://projects/abc/issues")
	assert.Error(t, err)

	contents, err = registry.ReadResource(ctx, "cache://issues/2")
	require.NoError(t, err)
	var issue cache.Issue
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &issue))
	assert.Equal(t, "Rate limits", issue.Subject)

	_, err = registry.ReadResource(ctx, "cache://issues/99")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, store.PutProject(ctx, &cache.Project{ID: 20, Name: "API", Identifier: "api"}))
	require.NoError(t, store.PutProject(ctx, &cache.Project{ID: 10, Name: "Web", Identifier: "web"}))
	contents, err = registry.ReadResource(ctx, CacheProjectsURI)
	require.NoError(t, err)
	var projects []cache.Project
	require.NoError(t, json.Unmarshal([]byte(contents.Text), &projects))
	require.Len(t, projects, 2)
	assert.Equal(t, "API", projects[0].Name)

	templates := registry.ResourceTemplates()
	require.Len(t, templates, 2)
	assert.Equal(t, ProjectIssuesTemplate, templates[0].URITemplate)
	assert.Equal(t, IssueTemplate, templates[1].URITemplate)

	assert.ErrorIs(t, RegisterCacheResources(catalog.NewRegistry(nil), nil), ErrCacheUnavailable)
}

func TestServerResource(t *testing.T) {
	registry := catalog.NewRegistry(nil)
	port := 37650
	require.NoError(t, RegisterServerResource(registry, func() any {
		return map[string]any{"port": port}
	}))

	contents, err := registry.ReadResource(context.Background(), ServerConfigURI)
	require.NoError(t, err)
	assert.JSONEq(t, `{"port":37650}`, contents.Text)

	port = 40000
	contents, err = registry.ReadResource(context.Background(), ServerConfigURI)
	require.NoError(t, err)
	assert.JSONEq(t, `{"port":40000}`, contents.Text)
}
