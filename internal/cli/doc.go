// Package cli implements the strata command line interface: repository
// discovery, the cobra command tree, and text/JSON output formatting.
// Commands are thin: they resolve revisions and flags, then call into
// the rewrite engine, the restack coordinator, or the store directly.
package cli
