// Package config loads and validates repository configuration and
// provides call-scoped configuration overrides.
//
// Configuration lives at <store-dir>/config.yaml and is validated
// against an embedded CUE schema before use, so a typo'd key or a
// wrongly typed value fails loudly at load time instead of being
// silently ignored.
//
// Overrides replace the original system's ambient "toggle a global,
// run, toggle back" pattern with an explicit structure: an engine
// applies an Overrides map for the duration of exactly one call via
// Config.Override, which returns a restore function. Nothing outside
// that call ever observes the overridden values.
package config
