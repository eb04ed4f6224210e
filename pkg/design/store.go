package design

import (
	"sort"

	"udesign/pkg/optics"
)

// ParameterStore is the flat, read-only mapping of dotted parameter keys to
// quantities for one run. Keys a design does not declare are carried but
// ignored by evaluation.
type ParameterStore struct {
	values map[string]optics.Quantity
}

// NewParameterStore copies values into a frozen store.
func NewParameterStore(values map[string]optics.Quantity) *ParameterStore {
	copied := make(map[string]optics.Quantity, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &ParameterStore{values: copied}
}

// Get returns the quantity stored under key.
func (s *ParameterStore) Get(key string) (optics.Quantity, bool) {
	if s == nil {
		return optics.Quantity{}, false
	}
	q, ok := s.values[key]
	return q, ok
}

// Has reports whether key is present.
func (s *ParameterStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of stored keys.
func (s *ParameterStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Keys returns the stored keys sorted for deterministic iteration.
func (s *ParameterStore) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the stored values, for archiving.
func (s *ParameterStore) Snapshot() map[string]optics.Quantity {
	if s == nil {
		return nil
	}
	copied := make(map[string]optics.Quantity, len(s.values))
	for k, v := range s.values {
		copied[k] = v
	}
	return copied
}
