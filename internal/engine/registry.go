package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/store"
)

// TempIDGenerator generates the unique suffix of client-local temp ids.
// Implemented by UUIDGenerator (production) and testutil.SequentialIDs
// (tests, for deterministic golden comparison).
type TempIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates time-sortable UUIDv7 temp-id suffixes.
//
// UUIDv7 embeds a timestamp in the most significant bits, so temp ids sort
// by allocation time - helpful when reading queue dumps.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// TempIDRegistry issues client-local identifiers for entities created
// while offline and records the temp → real mapping once the backend
// assigns an id.
//
// Invariants:
//   - Allocated ids are distinct from every real id (TempIDPrefix) and
//     from all previously allocated temp ids in this session.
//   - A temp id is bound exactly once; a second bind, or binding an
//     unknown temp id, is a structural error (a client bug), never a
//     silent overwrite.
//   - Resolution is idempotent and safe before binding: it reports
//     "still pending" until the owning create syncs.
//
// Allocations and bindings are persisted so a restart rebuilds the same
// mappings via Load.
type TempIDRegistry struct {
	mu      sync.Mutex
	entries map[entity.ID]*tempEntry
	gen     TempIDGenerator
	store   *store.Store
}

type tempEntry struct {
	kind   entity.Kind
	realID entity.ID // empty until bound
}

// NewTempIDRegistry creates a registry backed by the given store.
// The store may be nil for in-memory tests.
func NewTempIDRegistry(s *store.Store, gen TempIDGenerator) *TempIDRegistry {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return &TempIDRegistry{
		entries: make(map[entity.ID]*tempEntry),
		gen:     gen,
		store:   s,
	}
}

// Load rebuilds the registry from persisted records after a restart.
func (r *TempIDRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	recs, err := r.store.LoadTempIDs(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		r.entries[rec.TempID] = &tempEntry{kind: rec.Kind, realID: rec.RealID}
	}
	return nil
}

// Allocate returns a fresh temp id for an entity of the given kind.
func (r *TempIDRegistry) Allocate(ctx context.Context, kind entity.Kind) (entity.ID, error) {
	id := entity.ID(entity.TempIDPrefix + r.gen.Generate())

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return "", NewStructuralError("temp id generator returned a duplicate", 0, entity.Ref{Kind: kind, ID: id})
	}
	r.entries[id] = &tempEntry{kind: kind}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.WriteTempID(ctx, id, kind); err != nil {
			return "", err
		}
	}

	return id, nil
}

// Resolve returns the real id bound to a temp id, or false while the
// owning create is still pending. Unknown temp ids also report false; the
// caller treats both as "not yet resolvable".
func (r *TempIDRegistry) Resolve(tempID entity.ID) (entity.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tempID]
	if !ok || e.realID == "" {
		return "", false
	}
	return e.realID, true
}

// Known reports whether the temp id was allocated in this registry,
// bound or not. The graph uses this to distinguish "still pending" from a
// dangling reference.
func (r *TempIDRegistry) Known(tempID entity.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[tempID]
	return ok
}

// Bind records the server-assigned real id for a temp id. Called exactly
// once per temp id, by the sync engine after a successful create.
// Binding twice or binding an unknown temp id returns a structural error.
func (r *TempIDRegistry) Bind(ctx context.Context, tempID, realID entity.ID) error {
	r.mu.Lock()
	e, ok := r.entries[tempID]
	if !ok {
		r.mu.Unlock()
		return NewStructuralError("bind of unknown temp id", 0, entity.Ref{ID: tempID})
	}
	if e.realID != "" {
		bound := e.realID
		r.mu.Unlock()
		return NewStructuralError(
			"temp id already bound to "+string(bound), 0,
			entity.Ref{Kind: e.kind, ID: tempID},
		)
	}
	e.realID = realID
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.BindTempID(ctx, tempID, realID); err != nil {
			return err
		}
	}

	return nil
}
