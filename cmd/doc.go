// Package cmd implements the command-line interface for the dSync
// collaboration engine. It provides a hierarchical command structure for
// demonstrating and measuring the replication core.
//
// The package is organized into several subpackages:
//
//   - demo: Runs a cluster of in-process replicas that edit concurrently
//     and verifies they converge
//   - perf: Benchmarks the engine's operation, replication and snapshot paths
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dsync -help for a list of all commands.
package cmd
