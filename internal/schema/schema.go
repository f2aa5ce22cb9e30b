// Package schema validates mutation payloads at enqueue time.
//
// Payload shapes are declared in payload.cue, one definition per entity
// kind. Validation runs synchronously when a mutation is enqueued, so a
// malformed payload is rejected immediately instead of surfacing later as a
// server-side failure during a drain.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/stockroom-app/stockroom/internal/entity"
)

//go:embed payload.cue
var payloadCUE string

// defNames maps entity kinds to their CUE definition labels.
var defNames = map[entity.Kind]string{
	entity.KindCategory:  "#Category",
	entity.KindLocation:  "#Location",
	entity.KindContainer: "#Container",
	entity.KindItem:      "#Item",
	entity.KindBorrower:  "#Borrower",
	entity.KindInventory: "#Inventory",
	entity.KindLoan:      "#Loan",
}

// ValidationError reports a payload that failed schema validation.
// It is terminal for the mutation and surfaced to the user at enqueue time.
type ValidationError struct {
	Kind    entity.Kind
	Details []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("invalid %s payload", e.Kind)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, strings.Join(e.Details, "; "))
}

// Validator checks mutation payloads against the embedded CUE schema.
// Safe for concurrent use; the compiled schema is immutable after New.
type Validator struct {
	defs map[entity.Kind]cue.Value
	mu   sync.Mutex // cue.Context is not documented as goroutine-safe for Encode
	cctx *cue.Context
}

// New compiles the embedded schema. Compilation failure indicates a broken
// build (the schema ships inside the binary), so it is returned as an error
// rather than a panic to keep startup failures reportable.
func New() (*Validator, error) {
	cctx := cuecontext.New()

	root := cctx.CompileString(payloadCUE, cue.Filename("payload.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	defs := make(map[entity.Kind]cue.Value, len(defNames))
	for kind, label := range defNames {
		def := root.LookupPath(cue.ParsePath(label))
		if !def.Exists() {
			return nil, fmt.Errorf("payload schema: missing definition %s", label)
		}
		defs[kind] = def
	}

	return &Validator{defs: defs, cctx: cctx}, nil
}

// Validate checks a payload against the schema for its entity kind.
// Returns *ValidationError when the payload is malformed (missing required
// fields, wrong types, constraint violations).
func (v *Validator) Validate(kind entity.Kind, payload entity.Payload) error {
	def, ok := v.defs[kind]
	if !ok {
		return &ValidationError{Kind: kind, Details: []string{"unknown entity kind"}}
	}

	v.mu.Lock()
	val := v.cctx.Encode(map[string]any(payload))
	v.mu.Unlock()
	if err := val.Err(); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}

	unified := def.Unify(val)
	if err := unified.Err(); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}

	// Concrete(true) turns missing required fields into errors: a payload
	// without them leaves the unified value incomplete.
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}

	return nil
}

// ValidatePartial checks an update payload: fields that are present must
// satisfy their constraints, but required fields may be absent. Without
// Concrete, unification flags type and constraint violations only, which
// is exactly the partial-update contract.
func (v *Validator) ValidatePartial(kind entity.Kind, payload entity.Payload) error {
	def, ok := v.defs[kind]
	if !ok {
		return &ValidationError{Kind: kind, Details: []string{"unknown entity kind"}}
	}

	v.mu.Lock()
	val := v.cctx.Encode(map[string]any(payload))
	v.mu.Unlock()
	if err := val.Err(); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}

	unified := def.Unify(val)
	if err := unified.Err(); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}
	if err := unified.Validate(); err != nil {
		return &ValidationError{Kind: kind, Details: cueMessages(err)}
	}

	return nil
}

// cueMessages flattens CUE's error list into plain strings for the
// ValidationError surface.
func cueMessages(err error) []string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return msgs
}
