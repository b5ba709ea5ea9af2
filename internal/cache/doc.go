// Package cache is a local SQLite cache of issue-tracker records.
//
// # Overview
//
// The host application mirrors issues, projects, users and time entries from
// a remote issue tracker so agents can search them without network calls.
// Each upsert stamps the record's cached_at time; [Store.ClearOlderThan]
// evicts by that stamp.
//
// # Intake
//
// The Put methods ([Store.PutIssue], [Store.PutProject], [Store.PutUser],
// [Store.PutTimeEntry]) are the write surface for the external issue-tracker
// client that syncs records into the cache. This module only reads, searches
// and evicts; it never calls the tracker itself.
//
// The store uses modernc.org/sqlite (pure Go, no cgo) in WAL mode.
//
// # Usage
//
//	store, err := cache.Open(filepath.Join(dataDir, "cache.db"), logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	issues, err := store.SearchIssues(ctx, cache.IssueQuery{Text: "login", Limit: 10})
package cache
