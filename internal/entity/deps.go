package entity

// depFields maps, per entity kind, payload field names to the kind of
// entity they reference. This is the explicit declaration table the
// dependency graph consumes; adding a foreign-key-like field to the data
// model means adding one row here, nothing else.
var depFields = map[Kind]map[string]Kind{
	KindCategory: {
		"parentId": KindCategory,
	},
	KindLocation: {
		"parentId": KindLocation,
	},
	KindContainer: {
		"locationId": KindLocation,
	},
	KindItem: {
		"categoryId": KindCategory,
	},
	KindInventory: {
		"itemId":      KindItem,
		"locationId":  KindLocation,
		"containerId": KindContainer,
	},
	KindLoan: {
		"borrowerId":  KindBorrower,
		"inventoryId": KindInventory,
	},
	// Borrowers reference nothing.
	KindBorrower: {},
}

// DependencyFields returns the foreign-key field declarations for a kind.
// The returned map must not be mutated.
func DependencyFields(kind Kind) map[string]Kind {
	return depFields[kind]
}

// DeriveDependencies inspects a payload against the declaration table and
// returns the references that must exist before the mutation can be sent.
//
// Only temp-id references become dependencies: a real id was assigned by the
// backend, so the referenced entity already exists and nothing blocks on it.
// Empty or absent fields are skipped (e.g. a root category has no parentId,
// an inventory row may have no containerId).
func DeriveDependencies(kind Kind, payload Payload) []Ref {
	fields := depFields[kind]
	if len(fields) == 0 || len(payload) == 0 {
		return nil
	}

	var deps []Ref
	// Iterate the declaration table, not the payload, so derivation order
	// is independent of payload map ordering.
	for _, field := range orderedFields(kind) {
		refKind := fields[field]
		raw, ok := payload[field]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		id := ID(s)
		if !id.IsTemp() {
			continue
		}
		deps = append(deps, Ref{Kind: refKind, ID: id})
	}
	return deps
}

// fieldOrder fixes the iteration order of dependency fields per kind so
// DependsOn slices are deterministic.
var fieldOrder = map[Kind][]string{
	KindCategory:  {"parentId"},
	KindLocation:  {"parentId"},
	KindContainer: {"locationId"},
	KindItem:      {"categoryId"},
	KindInventory: {"itemId", "locationId", "containerId"},
	KindLoan:      {"borrowerId", "inventoryId"},
}

func orderedFields(kind Kind) []string {
	return fieldOrder[kind]
}

// RewriteDependencyFields returns a copy of the payload with every temp-id
// foreign-key field replaced through resolve. Returns an error from resolve
// unchanged if any temp id cannot be resolved; the caller decides whether
// that is a structural problem or simply "still pending".
func RewriteDependencyFields(kind Kind, payload Payload, resolve func(ID) (ID, error)) (Payload, error) {
	fields := depFields[kind]
	if len(fields) == 0 || len(payload) == 0 {
		return payload, nil
	}

	out := payload.Clone()
	for field := range fields {
		raw, ok := out[field]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		id := ID(s)
		if !id.IsTemp() {
			continue
		}
		real, err := resolve(id)
		if err != nil {
			return nil, err
		}
		out[field] = string(real)
	}
	return out, nil
}
