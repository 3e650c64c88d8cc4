/*
transition.go - Generic workflow-state transition validator

PURPOSE:
  Guards every state change against a statically defined adjacency table.
  The validator is domain-agnostic: each entity kind registers its own table,
  and terminal states simply have no outgoing edges.

CONTRACT:
  CanTransition(kind, from, to) reports legality; Enforce(...) fails with an
  InvalidTransitionError carrying the entity id and the attempted edge.
  A transition that fails validation must not mutate persisted state and must
  not write an audit entry - callers validate BEFORE touching the store.

SEE ALSO:
  - errors.go: InvalidTransitionError
  - audit.go: The log entry written after a successful transition
*/
package workflow

// Kind identifies an entity type participating in workflows.
type Kind string

// State is a node in an entity's finite-state lifecycle. It is distinct from
// any free-text status label derived from it.
type State string

// Table maps each state to the set of states reachable from it.
// States absent from the table, or mapped to an empty slice, are terminal.
type Table map[State][]State

// Validator checks proposed state changes against per-kind tables.
type Validator struct {
	tables map[Kind]Table
}

// NewValidator creates a validator over the given per-kind tables.
func NewValidator(tables map[Kind]Table) *Validator {
	return &Validator{tables: tables}
}

// CanTransition reports whether the edge from -> to exists for kind.
func (v *Validator) CanTransition(kind Kind, from, to State) bool {
	table, ok := v.tables[kind]
	if !ok {
		return false
	}
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Enforce returns an InvalidTransitionError if the edge is not in the table.
func (v *Validator) Enforce(kind Kind, entityID string, from, to State) error {
	if v.CanTransition(kind, from, to) {
		return nil
	}
	return &InvalidTransitionError{Kind: kind, EntityID: entityID, From: from, To: to}
}

// Terminal reports whether a state has no outgoing edges.
func (v *Validator) Terminal(kind Kind, s State) bool {
	table, ok := v.tables[kind]
	if !ok {
		return true
	}
	return len(table[s]) == 0
}
