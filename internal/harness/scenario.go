package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one history-editing test case.
type Scenario struct {
	// Name uniquely identifies the scenario; golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Steps run in order against a fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final history.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation in a scenario. Op selects which fields apply.
type Step struct {
	// Op is one of "commit", "amend", "metaedit", "rebase",
	// "restack", "bookmark".
	Op string `yaml:"op"`

	// Label names the changeset a commit creates, for later steps to
	// refer to.
	Label string `yaml:"label,omitempty"`

	// Target is the label of the changeset an amend, metaedit, or
	// restack operates on. Amend and metaedit rebind the label to the
	// replacement.
	Target string `yaml:"target,omitempty"`

	// Parent is the label of a commit's parent. Empty means a root
	// changeset.
	Parent string `yaml:"parent,omitempty"`

	// Message is the commit message (commit) or its replacement
	// (amend, metaedit).
	Message string `yaml:"message,omitempty"`

	// Files is the full tree content for commit and amend steps.
	Files map[string]string `yaml:"files,omitempty"`

	// Revs are the labels a rebase moves.
	Revs []string `yaml:"revs,omitempty"`

	// Dest is the label of a rebase destination.
	Dest string `yaml:"dest,omitempty"`

	// Name is the bookmark name for bookmark steps.
	Name string `yaml:"name,omitempty"`

	// ChildrenOnly restricts a restack to direct children.
	ChildrenOnly bool `yaml:"children_only,omitempty"`

	// NoConflict makes a rebase fail on diverged files.
	NoConflict bool `yaml:"no_conflict,omitempty"`

	// ExpectError inverts the step outcome: the step must fail.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion validates the final history. Type selects which fields
// apply.
type Assertion struct {
	// Type is one of "visible_count", "mutation_count", "obsolete",
	// "parent", "bookmark", "message".
	Type string `yaml:"type"`

	// Target is the label under test.
	Target string `yaml:"target,omitempty"`

	// Count is the expected count (visible_count, mutation_count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected truth (obsolete) or text (message).
	Value string `yaml:"value,omitempty"`

	// Parent is the expected parent label.
	Parent string `yaml:"parent,omitempty"`

	// Name is the bookmark under test; Target is its expected label.
	Name string `yaml:"name,omitempty"`
}

// Assertion type constants.
const (
	AssertVisibleCount  = "visible_count"
	AssertMutationCount = "mutation_count"
	AssertObsolete      = "obsolete"
	AssertParent        = "parent"
	AssertBookmark      = "bookmark"
	AssertMessage       = "message"
)

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios reads every .yaml scenario in dir, sorted by filename.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, step := range s.Steps {
		switch step.Op {
		case "commit":
			if step.Label == "" {
				return fmt.Errorf("step %d: commit needs a label", i)
			}
		case "amend", "metaedit", "restack":
			if step.Target == "" {
				return fmt.Errorf("step %d: %s needs a target", i, step.Op)
			}
		case "rebase":
			if len(step.Revs) == 0 || step.Dest == "" {
				return fmt.Errorf("step %d: rebase needs revs and dest", i)
			}
		case "bookmark":
			if step.Name == "" || step.Target == "" {
				return fmt.Errorf("step %d: bookmark needs name and target", i)
			}
		default:
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
	}
	return nil
}
