/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gcsnapshot

import (
	"strings"
	"testing"

	"jelatine/gc"
	"jelatine/globals"
	"jelatine/heap"
	"jelatine/object"
	"jelatine/types"
)

// fakeRoots is registered with gc.RegisterRoots exactly once for this
// package's test binary: gc.roots is unexported, so unlike gc's own
// tests (which reset it directly, same package) this package can only
// add to it, never clear it -- one shared root set for every test below
// avoids stale Handles from a closed heap leaking into a later test's
// collection.
type fakeRoots struct{ held []object.Handle }

func (f *fakeRoots) VisitRoots(visit func(object.Handle)) {
	for _, h := range f.held {
		visit(h)
	}
}

var roots = &fakeRoots{}

func setup(t *testing.T) *heap.Heap {
	t.Helper()
	h, err := heap.New(1<<16, 1<<12)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	object.Heap = h
	t.Cleanup(func() { h.Close() })

	roots.held = nil
	gc.RegisterClassShape(types.FirstDynamicClassID, gc.ClassShape{FieldWords: 1, RefFieldSlots: []int{0}})
	return h
}

func init() {
	gc.RegisterRoots(roots)
}

func TestDiffShowsReclaimedObject(t *testing.T) {
	h := setup(t)

	live, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	dead, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	roots.held = []object.Handle{live}

	before := Take(h)

	g := &globals.Globals{GCStrategy: globals.RecursiveMarking}
	gc.New(h, g).Collect(0)

	after := Take(h)

	reclaimed := before.Reclaimed(after)
	if len(reclaimed) != 1 {
		t.Fatalf("want exactly one reclaimed object, got %d: %v", len(reclaimed), reclaimed)
	}
	if !strings.Contains(reclaimed[0], "class=6") {
		t.Errorf("reclaimed line %q doesn't name the dead object's class id", reclaimed[0])
	}
	_ = dead

	diff := Diff(before, after)
	if !strings.Contains(diff, "class=6") {
		t.Errorf("Diff output doesn't mention the reclaimed object:\n%s", diff)
	}
}

func TestSnapshotStringIsStableAcrossTakes(t *testing.T) {
	h := setup(t)

	a, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	b, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	roots.held = []object.Handle{a, b}

	s1 := Take(h)
	s2 := Take(h)
	if s1.String() != s2.String() {
		t.Errorf("two snapshots of the same heap state should render identically")
	}
}
