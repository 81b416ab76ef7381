package restack

import (
	"context"
	"io"
	"log/slog"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/revset"
	"github.com/strata-vcs/strata/internal/rewrite"
)

// RebaseOp is the operation tag recorded for restacked commits.
const RebaseOp = "rebase"

// RebaseRequest is the assembled input to the rebase collaborator.
type RebaseRequest struct {
	// Revs are the changesets to re-parent, in evaluation order.
	Revs *revset.Set
	// Dest is the new parent for the roots of Revs.
	Dest changeset.ID
	// Opts is the caller-supplied pass-through option map; the
	// coordinator threads it without interpreting it.
	Opts map[string]string
	// NoConflict makes the collaborator fail instead of leaving a
	// conflicted state.
	NoConflict bool
	// NoConflictMsg, when non-empty, replaces the collaborator's
	// default conflict message.
	NoConflictMsg string
	// OperationTag is the provenance tag for the rebased commits.
	OperationTag string
	// Overrides is the scoped configuration in effect for the call.
	Overrides config.Overrides
}

// Rebaser is the external rebase collaborator. It takes whatever locks
// its own mutation requires; the coordinator holds none.
type Rebaser interface {
	Rebase(ctx context.Context, req RebaseRequest) error
}

// Options controls one RestackDescendants call.
type Options struct {
	// RebaseOpts is passed through to the collaborator untouched.
	RebaseOpts map[string]string
	// ChildrenOnly restricts the target set to direct children of the
	// predecessors instead of all descendants.
	ChildrenOnly bool
	// NoConflict requests the collaborator's no-conflict policy.
	NoConflict bool
	// NoConflictMsg overrides the conflict message.
	NoConflictMsg string
	// MaxPredecessorDepth limits how far back the predecessor walk
	// goes. Zero means unlimited.
	MaxPredecessorDepth int
}

// Coordinator computes restack targets and delegates their
// re-parenting.
type Coordinator struct {
	eval    *revset.Evaluator
	rebaser Rebaser
	cfg     *config.Config
	attrib  config.Attribution
	log     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithConfig sets the configuration the coordinator scopes its
// overrides on.
func WithConfig(cfg *config.Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithAttribution registers the optional attribution capability.
func WithAttribution(a config.Attribution) Option {
	return func(c *Coordinator) { c.attrib = a }
}

// New creates a Coordinator over the given evaluator and collaborator.
func New(eval *revset.Evaluator, rebaser Rebaser, opts ...Option) *Coordinator {
	c := &Coordinator{
		eval:    eval,
		rebaser: rebaser,
		cfg:     config.Default(),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RestackDescendants rebases all visible, non-obsolete descendants of
// the historical predecessors of rev onto rev. With
// Options.ChildrenOnly only direct children of the predecessors are
// rebased. An empty target set is a complete no-op: no transaction is
// opened and the collaborator is never called.
func (c *Coordinator) RestackDescendants(ctx context.Context, rev changeset.ID, opts Options) error {
	self := revset.NewSet(rev)

	var allPredecessors *revset.Set
	var err error
	if opts.MaxPredecessorDepth > 0 {
		allPredecessors, err = c.eval.Evaluate(ctx, "predecessors(%s, %d) - %ls", rev, opts.MaxPredecessorDepth, self)
	} else {
		allPredecessors, err = c.eval.Evaluate(ctx, "predecessors(%s) - %ls", rev, self)
	}
	if err != nil {
		return rewrite.NewLookupError(rev.Short(), err)
	}

	template := "descendants(%ls) - %ls - obsolete()"
	if opts.ChildrenOnly {
		template = "children(%ls) - %ls - obsolete()"
	}
	targets, err := c.eval.Evaluate(ctx, template, allPredecessors, allPredecessors)
	if err != nil {
		return rewrite.NewLookupError(rev.Short(), err)
	}

	// Nothing built on the rewritten lineage: done.
	if targets.IsEmpty() {
		c.log.Debug("restack no-op", "rev", rev.Short())
		return nil
	}

	overrides := config.Overrides{
		// Internal use of rebase, no user-provided revsets involved.
		config.KeyLegacyRevnumWarning: "",
	}
	if c.attrib != nil {
		// Restacked commits must appear as "rebase" regardless of the
		// invoking command.
		overrides[config.AttributionKey(c.attrib)] = RebaseOp
	}
	if opts.NoConflictMsg != "" {
		overrides[config.KeyRebaseNoConflictMsg] = opts.NoConflictMsg
	}

	restore := c.cfg.Override(overrides)
	defer restore()

	req := RebaseRequest{
		Revs:          targets,
		Dest:          rev,
		Opts:          opts.RebaseOpts,
		NoConflict:    opts.NoConflict,
		NoConflictMsg: opts.NoConflictMsg,
		OperationTag:  RebaseOp,
		Overrides:     overrides,
	}

	c.log.Debug("restack", "rev", rev.Short(), "targets", targets.Len(), "children_only", opts.ChildrenOnly)
	if err := c.rebaser.Rebase(ctx, req); err != nil {
		return rewrite.NewDelegationError(err)
	}
	return nil
}
