package entity

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies an entity type in the warehouse data model.
type Kind string

const (
	KindCategory  Kind = "category"
	KindLocation  Kind = "location"
	KindContainer Kind = "container"
	KindItem      Kind = "item"
	KindBorrower  Kind = "borrower"
	KindInventory Kind = "inventory"
	KindLoan      Kind = "loan"
)

// Kinds lists all entity kinds in a stable order.
var Kinds = []Kind{
	KindCategory, KindLocation, KindContainer,
	KindItem, KindBorrower, KindInventory, KindLoan,
}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCategory, KindLocation, KindContainer, KindItem,
		KindBorrower, KindInventory, KindLoan:
		return true
	}
	return false
}

// TempIDPrefix tags client-generated identifiers so they can never be
// mistaken for a server-assigned id.
const TempIDPrefix = "tmp-"

// ID is an entity identifier: either a real id assigned by the backend
// (stable) or a temp id generated locally while offline (session-scoped,
// always carrying TempIDPrefix).
type ID string

// IsTemp reports whether the id is a client-generated placeholder.
func (id ID) IsTemp() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

// Ref is a polymorphic entity reference.
type Ref struct {
	Kind Kind `json:"kind"`
	ID   ID   `json:"id"`
}

// String renders the reference as "kind/id" for logs and error messages.
func (r Ref) String() string {
	return string(r.Kind) + "/" + string(r.ID)
}

// Op is a mutation operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Status tracks a mutation through its lifecycle.
// Transitions only advance forward: queued → in-flight → {synced | failed}.
// Failed is terminal for the mutation and cascades to all dependents.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusInFlight Status = "in-flight"
	StatusSynced   Status = "synced"
	StatusFailed   Status = "failed"
)

// CanAdvanceTo reports whether the forward-only status transition s → next
// is legal.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusInFlight || next == StatusFailed
	case StatusInFlight:
		// A retryable transport failure returns an in-flight mutation
		// to queued for the next attempt.
		return next == StatusSynced || next == StatusFailed || next == StatusQueued
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSynced || s == StatusFailed
}

// Payload carries the field values of a mutation.
// Values are restricted to JSON-representable types.
type Payload map[string]any

// Clone returns a shallow copy of the payload. Dependency resolution
// rewrites foreign-key fields on a copy so the queued record keeps its
// original temp-id references for replay after a restart.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Mutation is one queued intent against the backend.
type Mutation struct {
	// ID is locally unique and monotonically increasing; it defines the
	// FIFO tie-break order among independently ready mutations.
	ID int64 `json:"id"`

	Op     Op  `json:"op"`
	Entity Ref `json:"entity"`

	Payload Payload `json:"payload"`

	// DependsOn lists entity references that must resolve to real ids
	// before this mutation can be sent. Derived from the payload via the
	// dependency declaration table.
	DependsOn []Ref `json:"depends_on,omitempty"`

	Status Status `json:"status"`

	// Attempts counts executor calls made for this mutation, bounding
	// transport-error retries.
	Attempts int `json:"attempts"`

	// FailureReason is set when Status is failed: the executor's reported
	// reason, or a derived "blocked: dependency failed" for cascades.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the structural invariants that hold for every mutation
// regardless of payload schema.
func (m *Mutation) Validate() error {
	if !m.Op.Valid() {
		return fmt.Errorf("mutation %d: invalid op %q", m.ID, m.Op)
	}
	if !m.Entity.Kind.Valid() {
		return fmt.Errorf("mutation %d: invalid entity kind %q", m.ID, m.Entity.Kind)
	}
	if m.Entity.ID == "" {
		return fmt.Errorf("mutation %d: empty entity id", m.ID)
	}
	if m.Op == OpCreate && !m.Entity.ID.IsTemp() {
		return fmt.Errorf("mutation %d: create must target a temp id, got %q", m.ID, m.Entity.ID)
	}
	// An update or delete may depend on its own entity (it waits for the
	// owning create to sync), but a create depending on the temp id it
	// introduces is a trivial cycle.
	if m.Op == OpCreate {
		for _, dep := range m.DependsOn {
			if dep.Kind == m.Entity.Kind && dep.ID == m.Entity.ID {
				return fmt.Errorf("mutation %d: create depends on its own entity %s", m.ID, dep)
			}
		}
	}
	return nil
}

// ServerEntity is the backend's view of an entity after a successful
// executor call. For creates, ID carries the newly assigned real id.
type ServerEntity struct {
	Kind Kind    `json:"kind"`
	ID   ID      `json:"id"`
	Data Payload `json:"data"`
}
