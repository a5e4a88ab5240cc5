// Package testing provides a shared law suite for store.IReplicatedStore
// implementations. Every store backend runs the same suite against a script
// of replicable operations: convergence under permutation and duplication,
// idempotent re-application, and merge round-trips. Store-specific behavior
// (delete-wins, tie-breaks, placeholders) is tested in each store's own
// package on top of the suite.
package testing
