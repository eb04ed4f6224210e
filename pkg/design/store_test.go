package design

import (
	"testing"

	"udesign/pkg/optics"
)

func TestParameterStoreIsFrozenCopy(t *testing.T) {
	source := map[string]optics.Quantity{"a.b": optics.Scalar(1)}
	store := NewParameterStore(source)
	source["a.b"] = optics.Scalar(99)
	source["c.d"] = optics.Scalar(2)
	if q, _ := store.Get("a.b"); q.Magnitude != 1 {
		t.Fatalf("store should copy its inputs, got %+v", q)
	}
	if store.Has("c.d") {
		t.Fatalf("later source mutations must not appear in the store")
	}
}

func TestParameterStoreKeysSorted(t *testing.T) {
	store := NewParameterStore(map[string]optics.Quantity{
		"z.last":  optics.Scalar(1),
		"a.first": optics.Scalar(2),
		"m.mid":   optics.Scalar(3),
	})
	keys := store.Keys()
	if len(keys) != 3 || keys[0] != "a.first" || keys[2] != "z.last" {
		t.Fatalf("keys not sorted: %v", keys)
	}
	if store.Len() != 3 {
		t.Fatalf("unexpected length %d", store.Len())
	}
}

func TestParameterStoreNilSafe(t *testing.T) {
	var store *ParameterStore
	if _, ok := store.Get("any"); ok {
		t.Fatalf("nil store should report absence")
	}
	if store.Has("any") || store.Len() != 0 || store.Keys() != nil || store.Snapshot() != nil {
		t.Fatalf("nil store accessors should be zero-valued")
	}
}

func TestParameterStoreSnapshotIsCopy(t *testing.T) {
	store := NewParameterStore(map[string]optics.Quantity{"k": optics.Scalar(5)})
	snap := store.Snapshot()
	snap["k"] = optics.Scalar(6)
	if q, _ := store.Get("k"); q.Magnitude != 5 {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}
