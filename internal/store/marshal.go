package store

import (
	"encoding/json"
	"fmt"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// marshalPayload serializes a mutation payload to JSON for storage.
// A nil payload is stored as an empty JSON object so scans never see
// an empty string.
func marshalPayload(p entity.Payload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// unmarshalPayload deserializes a stored payload.
func unmarshalPayload(s string) (entity.Payload, error) {
	var p entity.Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

// marshalRefs serializes a dependency list. A nil list is stored as "[]"
// to keep the column NOT NULL.
func marshalRefs(refs []entity.Ref) (string, error) {
	if refs == nil {
		refs = []entity.Ref{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal depends_on: %w", err)
	}
	return string(b), nil
}

// unmarshalRefs deserializes a stored dependency list.
// Returns nil (not an empty slice) for "[]" so DependsOn round-trips the
// way entity.DeriveDependencies produces it.
func unmarshalRefs(s string) ([]entity.Ref, error) {
	var refs []entity.Ref
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, nil
}
