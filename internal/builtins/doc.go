// Package builtins provides the tool packs compiled into the host build.
//
// # Overview
//
// Each pack pairs tool descriptors with handlers that call an external
// collaborator. The collaborator does the real work; handlers decode
// arguments, call it and turn the outcome into a message for the agent.
//
// # Tool Packs
//
// Browser Pack (builtin:browser), backed by a [BrowserDriver]:
//
//   - browser_open, browser_close: start or stop the browser
//   - browser_navigate, browser_go_back, browser_go_forward, browser_reload
//   - browser_click, browser_type, browser_wait_for: page interaction
//   - browser_evaluate: run JavaScript and report the result
//   - browser_get_content, browser_snapshot: read the page
//   - browser_screenshot: capture the page as an image
//   - browser_tab_list, browser_tab_new, browser_tab_switch, browser_tab_close
//
// Cache Pack (builtin:cache), backed by the SQLite issue cache:
//
//   - cache_stats: record counts
//   - cache_search_issues: text search over cached issues
//   - cache_clear: clear everything or only records older than N days
//
// # Resources
//
// [RegisterCacheResources] adds cache://stats and the template
// cache://projects/{project_id}/issues. [RegisterServerResource] adds
// config://server.
//
// # Usage
//
//	registry := catalog.NewRegistry(logger)
//	registry.RegisterPack(builtins.BrowserPack(driver))
//	registry.RegisterPack(builtins.CachePack(store, notifyStatsChanged))
package builtins
