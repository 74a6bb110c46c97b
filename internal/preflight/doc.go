// Package preflight validates that everything the retrieval engine needs
// is in place before it is served.
//
// The package checks:
//   - Chunk store readability and validity
//   - Lexical and dense indices
//   - Embedding service reachability
//   - Reranker reachability, when one is configured
//   - Disk space and write access for the log directory
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
