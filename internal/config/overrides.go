package config

// Overrides is an explicit set of configuration values applied for the
// duration of one engine call.
type Overrides map[string]string

// Override keys used by the rewrite and restack engines.
const (
	// KeyLegacyRevnumWarning silences the legacy revision-number
	// deprecation warning class for internally generated queries that
	// contain no user-provided revsets. An empty value means
	// "silenced".
	KeyLegacyRevnumWarning = "devel.legacy-revnum-warning"

	// KeyRebaseNoConflictMsg carries the message reported when the
	// no-conflict policy stops a delegated rebase.
	KeyRebaseNoConflictMsg = "rebase.no-conflict-msg"
)

// Attribution is the optional capability that forces the provenance
// operation tag written for derived commits. When registered, engines
// set the override key Section() + "." + OperationKey() to the
// operation name; when absent, the step is skipped silently.
type Attribution interface {
	Section() string
	OperationKey() string
}

// attribution is the concrete capability built from configuration.
type attribution struct {
	section string
	opKey   string
}

func (a attribution) Section() string      { return a.section }
func (a attribution) OperationKey() string { return a.opKey }

// AttributionCapability resolves the attribution capability from
// configuration. Returns nil when the capability is not enabled;
// callers treat nil as a normal, silent no-op branch.
func (c *Config) AttributionCapability() Attribution {
	if !c.Attribution.Enabled {
		return nil
	}
	return attribution{section: c.Attribution.Section, opKey: c.Attribution.OperationKey}
}

// AttributionKey builds the full override key for a capability.
func AttributionKey(a Attribution) string {
	return a.Section() + "." + a.OperationKey()
}
