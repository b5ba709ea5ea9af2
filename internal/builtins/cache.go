// ABOUTME: Cache pack exposes the local issue-tracker cache to MCP clients.
// ABOUTME: Also registers the cache:// resources and the config://server resource.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/2389/hostmcp/internal/cache"
	"github.com/2389/hostmcp/internal/catalog"
)

// ErrCacheUnavailable is returned by cache tools when no store is attached.
var ErrCacheUnavailable = errors.New("cache is not available")

// Resource URIs served by this package.
const (
	CacheStatsURI         = "cache://stats"
	CacheProjectsURI      = "cache://projects"
	ProjectIssuesTemplate = "cache://projects/{project_id}/issues"
	IssueTemplate         = "cache://issues/{issue_id}"
	ServerConfigURI       = "config://server"
)

// CachePack creates the cache pack. onChange, if set, runs after a tool
// modifies the cache.
func CachePack(store *cache.Store, onChange func()) *catalog.Pack {
	c := &cacheHandlers{store: store, onChange: onChange}
	return &catalog.Pack{
		ID: "builtin:cache",
		Tools: []*catalog.Tool{
			tool("cache_stats", "Get statistics about the local issue-tracker cache", emptyObjectSchema, c.Stats),
			tool("cache_search_issues", "Search cached issues by subject and description",
				`{"type":"object","properties":{"query":{"type":"string","description":"Text to search for"},"project_id":{"type":"integer","description":"Only issues of this project"},"limit":{"type":"integer","description":"Maximum results (default 50)"}},"required":["query"]}`,
				c.SearchIssues),
			tool("cache_clear", "Clear cached records",
				`{"type":"object","properties":{"older_than_days":{"type":"integer","description":"Only clear records cached more than this many days ago"}}}`,
				c.Clear),
		},
	}
}

type cacheHandlers struct {
	store    *cache.Store
	onChange func()
}

func (c *cacheHandlers) Stats(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if c.store == nil {
		return nil, ErrCacheUnavailable
	}
	st, err := c.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(st)
}

func (c *cacheHandlers) SearchIssues(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Query     string `json:"query"`
		ProjectID int64  `json:"project_id"`
		Limit     int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if c.store == nil {
		return nil, ErrCacheUnavailable
	}

	issues, err := c.store.SearchIssues(ctx, cache.IssueQuery{
		Text:      in.Query,
		ProjectID: in.ProjectID,
		Limit:     in.Limit,
	})
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return textResult(fmt.Sprintf("No cached issues match %q", in.Query))
	}
	return json.Marshal(issues)
}

func (c *cacheHandlers) Clear(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		OlderThanDays *int `json:"older_than_days"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if c.store == nil {
		return nil, ErrCacheUnavailable
	}

	var msg string
	if in.OlderThanDays == nil {
		if err := c.store.ClearAll(ctx); err != nil {
			return nil, err
		}
		msg = "Cache cleared"
	} else {
		removed, err := c.store.ClearOlderThan(ctx, *in.OlderThanDays)
		if err != nil {
			return nil, err
		}
		msg = fmt.Sprintf("Removed %d records cached more than %d days ago", removed, *in.OlderThanDays)
	}

	if c.onChange != nil {
		c.onChange()
	}
	return textResult(msg)
}

// RegisterCacheResources adds cache://stats, cache://projects and the
// per-project and per-issue templates.
func RegisterCacheResources(reg *catalog.Registry, store *cache.Store) error {
	if store == nil {
		return ErrCacheUnavailable
	}

	err := reg.RegisterResource(&catalog.Resource{
		Descriptor: catalog.ResourceDescriptor{
			URI:         CacheStatsURI,
			Name:        "Cache statistics",
			Description: "Number of cached issues, projects, users and time entries",
			MimeType:    "application/json",
		},
		Read: func(ctx context.Context) (string, error) {
			st, err := store.Stats(ctx)
			if err != nil {
				return "", err
			}
			return marshalText(st)
		},
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", CacheStatsURI, err)
	}

	err = reg.RegisterResource(&catalog.Resource{
		Descriptor: catalog.ResourceDescriptor{
			URI:         CacheProjectsURI,
			Name:        "Cached projects",
			Description: "Cached projects ordered by name",
			MimeType:    "application/json",
		},
		Read: func(ctx context.Context) (string, error) {
			projects, err := store.Projects(ctx, 0)
			if err != nil {
				return "", err
			}
			return marshalText(projects)
		},
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", CacheProjectsURI, err)
	}

	err = reg.RegisterTemplate(&catalog.ResourceTemplate{
		Descriptor: catalog.ResourceTemplateDescriptor{
			URITemplate: ProjectIssuesTemplate,
			Name:        "Project issues",
			Description: "Cached issues of one project, most recently updated first",
			MimeType:    "application/json",
		},
		Read: func(ctx context.Context, _ string, vars map[string]string) (string, error) {
			projectID, err := strconv.ParseInt(vars["project_id"], 10, 64)
			if err != nil || projectID <= 0 {
				return "", fmt.Errorf("invalid project id %q", vars["project_id"])
			}
			issues, err := store.Issues(ctx, projectID, 0)
			if err != nil {
				return "", err
			}
			return marshalText(issues)
		},
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", ProjectIssuesTemplate, err)
	}

	err = reg.RegisterTemplate(&catalog.ResourceTemplate{
		Descriptor: catalog.ResourceTemplateDescriptor{
			URITemplate: IssueTemplate,
			Name:        "Cached issue",
			Description: "One cached issue by id",
			MimeType:    "application/json",
		},
		Read: func(ctx context.Context, _ string, vars map[string]string) (string, error) {
			issueID, err := strconv.ParseInt(vars["issue_id"], 10, 64)
			if err != nil || issueID <= 0 {
				return "", fmt.Errorf("invalid issue id %q", vars["issue_id"])
			}
			issue, err := store.Issue(ctx, issueID)
			if err != nil {
				return "", err
			}
			return marshalText(issue)
		},
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", IssueTemplate, err)
	}
	return nil
}

// RegisterServerResource adds config://server, rendered from info on each read.
func RegisterServerResource(reg *catalog.Registry, info func() any) error {
	return reg.RegisterResource(&catalog.Resource{
		Descriptor: catalog.ResourceDescriptor{
			URI:         ServerConfigURI,
			Name:        "Server configuration",
			Description: "Address, endpoint and exposed tools of the running MCP server",
			MimeType:    "application/json",
		},
		Read: func(context.Context) (string, error) {
			return marshalText(info())
		},
	})
}

func marshalText(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
