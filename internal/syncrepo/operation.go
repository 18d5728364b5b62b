package syncrepo

import "fmt"

// Operation kinds.
const (
	OpLoad       = "load"
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpTransition = "transition"
	OpUpsert     = "upsert"
)

// Phase is the lifecycle position of one repository operation.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseCommitted  Phase = "committed"
	PhaseRolledBack Phase = "rolled_back"
)

type operation struct {
	id       uint64
	kind     string
	entityID string
	phase    Phase
}

// resolve moves a pending operation to its final phase. Resolving twice is a programming error.
func (o *operation) resolve(to Phase) {
	if o.phase != PhasePending {
		panic(fmt.Sprintf("syncrepo: %s operation %d resolved twice (%s -> %s)", o.kind, o.id, o.phase, to))
	}
	o.phase = to
}
