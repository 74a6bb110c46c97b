// Package logging configures structured slog output for hybridrag.
//
// Records are JSON lines written to a size-rotated file under
// ~/.hybridrag/logs/ and optionally mirrored to stderr. The stdio MCP
// transport owns stdout, so Quiet mode never touches stderr or stdout.
package logging
