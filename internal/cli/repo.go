package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/strata-vcs/strata/internal/changeset"
	"github.com/strata-vcs/strata/internal/config"
	"github.com/strata-vcs/strata/internal/rebase"
	"github.com/strata-vcs/strata/internal/restack"
	"github.com/strata-vcs/strata/internal/revset"
	"github.com/strata-vcs/strata/internal/rewrite"
	"github.com/strata-vcs/strata/internal/store"
)

// StrataDirName is the repository metadata directory.
const StrataDirName = ".strata"

// checkoutFileName tracks the working copy parent inside the metadata
// directory.
const checkoutFileName = "checkout"

// Repo is an opened repository: the store, its configuration, and the
// wired engines.
type Repo struct {
	Root      string // working copy root
	StrataDir string
	Store     *store.Store
	Config    *config.Config
	Eval      *revset.Evaluator
	Engine    *rewrite.Engine
	Rebaser   *rebase.Rebaser
	Restacker *restack.Coordinator
	Log       *slog.Logger
}

// findRoot walks up from dir looking for a .strata directory.
func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(filepath.Join(dir, StrataDirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found in %s or any parent", StrataDirName, dir)
		}
		dir = parent
	}
}

// OpenRepo locates and opens the repository containing dir, wiring the
// engines together the way every command needs them.
func OpenRepo(dir string, opts *RootOptions) (*Repo, error) {
	root, err := findRoot(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "not a repository", err)
	}
	strataDir := filepath.Join(root, StrataDirName)

	cfg, err := config.Load(filepath.Join(strataDir, config.ConfigFileName))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	st, err := store.Open(strataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts != nil && opts.Verbose {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	eval := revset.NewEvaluator(st)
	attrib := cfg.AttributionCapability()
	engine := rewrite.New(st,
		rewrite.WithConfig(cfg),
		rewrite.WithEditor(NewEditor(cfg)),
		rewrite.WithAttribution(attrib),
		rewrite.WithLogger(log),
	)
	rebaser := rebase.New(st,
		rebase.WithConfig(cfg),
		rebase.WithAttribution(attrib),
		rebase.WithLogger(log),
	)
	restacker := restack.New(eval, rebaser,
		restack.WithConfig(cfg),
		restack.WithAttribution(attrib),
		restack.WithLogger(log),
	)

	return &Repo{
		Root:      root,
		StrataDir: strataDir,
		Store:     st,
		Config:    cfg,
		Eval:      eval,
		Engine:    engine,
		Rebaser:   rebaser,
		Restacker: restacker,
		Log:       log,
	}, nil
}

// Close releases the repository's store.
func (r *Repo) Close() error {
	return r.Store.Close()
}

// CheckedOut returns the working copy parent. When nothing has been
// checked out yet it falls back to the store tip; a nil ID means the
// repository is empty.
func (r *Repo) CheckedOut(ctx context.Context) (changeset.ID, error) {
	data, err := os.ReadFile(filepath.Join(r.StrataDir, checkoutFileName))
	if err == nil {
		id := changeset.ID(strings.TrimSpace(string(data)))
		if !id.IsNil() {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read checkout: %w", err)
	}
	tip, err := r.Store.Tip(ctx)
	if err != nil {
		return "", err
	}
	return tip, nil
}

// SetCheckedOut records the working copy parent.
func (r *Repo) SetCheckedOut(id changeset.ID) error {
	path := filepath.Join(r.StrataDir, checkoutFileName)
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return fmt.Errorf("write checkout: %w", err)
	}
	return nil
}

// ResolveRev turns a user-supplied revision argument into a changeset
// ID: a bookmark name, a full ID, or "." for the working copy parent.
func (r *Repo) ResolveRev(ctx context.Context, rev string) (changeset.ID, error) {
	if rev == "" || rev == "." {
		id, err := r.CheckedOut(ctx)
		if err != nil {
			return "", err
		}
		if id.IsNil() {
			return "", fmt.Errorf("repository has no changesets")
		}
		return id, nil
	}
	if id, err := r.Store.ResolveBookmark(ctx, rev); err == nil {
		return id, nil
	}
	id := changeset.ID(rev)
	if _, err := r.Store.Lookup(ctx, id); err != nil {
		return "", fmt.Errorf("unknown revision %q: %w", rev, err)
	}
	return id, nil
}

// WorkingSnapshot captures the working copy as a snapshot on the given
// branch, ignoring the metadata directory.
func (r *Repo) WorkingSnapshot(branch string) (*changeset.MemSnapshot, error) {
	return changeset.SnapshotDir(r.Root, branch, StrataDirName)
}
