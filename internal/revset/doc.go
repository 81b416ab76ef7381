// Package revset evaluates revision-set expressions over the store.
//
// The language is deliberately tiny: it covers exactly what the
// restack machinery asks for. Expressions are written as templates
// with typed placeholders, keeping IDs out of the query text:
//
//	predecessors(%s) - %ls
//	descendants(%ls) - %ls - obsolete()
//	children(%ls) - %ls - obsolete()
//	successors(%s) - obsolete()
//
// Placeholders: %s consumes a changeset ID argument, %d an integer,
// %ls a *Set. Functions: predecessors (transitive historical
// predecessors, optionally depth-limited), successors, children,
// descendants, obsolete. The only operator is set difference.
//
// Results are insertion-ordered and deduplicated; the order of a
// difference is the order of its left operand. Sets are built on the
// gods linked hash set, which preserves insertion order.
package revset
