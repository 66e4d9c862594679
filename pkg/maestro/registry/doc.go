// Package registry is the catalog of available workflow node types.
//
// The catalog is the single source of truth for:
//   - UI selector options
//   - the node documentation injected into the planner's system prompt
//   - structural validation of workflow documents
//   - property defaults applied during graph enhancement
//
// It is constructed once at process start and is read-only afterwards, so
// concurrent workflow runs can share one instance without locking concerns.
package registry
