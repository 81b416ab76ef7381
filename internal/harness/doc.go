// Package harness runs history-editing scenarios described as YAML
// files: a sequence of commits, amends, rebases, and restacks, plus
// assertions on the resulting history. Every scenario runs against a
// fresh store with a deterministic clock, and the final history can be
// rendered into a stable text form and compared against a golden file.
//
// Changesets are addressed by the labels the scenario assigns, never
// by raw IDs, so scenarios and golden files stay readable and immune
// to hash changes.
package harness
