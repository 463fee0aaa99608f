package registry

// System record types are the pipeline's own append-only and derived rows.
// They are excluded from auditing and from the mention/assignment/state
// propagators; without this, the pipeline's own writes would re-enter it
// forever.
var systemTypes = map[string]struct{}{
	"history":       {},
	"notifications": {},
	"digests":       {},
	"threads":       {},
}

// IsSystemType reports whether the record type is audit-adjacent and must be
// skipped by the wildcard handlers.
func IsSystemType(name string) bool {
	_, ok := systemTypes[name]
	return ok
}
