/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gc

import (
	"testing"

	"jelatine/globals"
	"jelatine/heap"
	"jelatine/object"
	"jelatine/types"
)

type fakeRoots struct{ held []object.Handle }

func (f *fakeRoots) VisitRoots(visit func(object.Handle)) {
	for _, h := range f.held {
		visit(h)
	}
}

func setup(t *testing.T) (*heap.Heap, *fakeRoots) {
	t.Helper()
	h, err := heap.New(1<<16, 1<<12)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	object.Heap = h
	t.Cleanup(func() { h.Close() })

	fr := &fakeRoots{}
	roots = nil
	RegisterRoots(fr)

	RegisterClassShape(types.FirstDynamicClassID, ClassShape{FieldWords: 1, RefFieldSlots: []int{0}})
	return h, fr
}

func TestCollectFreesUnreachable(t *testing.T) {
	_, fr := setup(t)

	live, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	dead, err := object.NewInstance(types.FirstDynamicClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	fr.held = []object.Handle{live}

	g := &globals.Globals{GCStrategy: globals.RecursiveMarking}
	c := New(object.Heap, g)
	c.Collect(0)

	if !object.Heap.IsObjectStart(heap.Ref(live)) {
		t.Errorf("live object was swept")
	}
	if object.Heap.IsObjectStart(heap.Ref(dead)) {
		t.Errorf("dead object survived sweep")
	}
}

func TestCollectFollowsReferenceChain(t *testing.T) {
	_, fr := setup(t)

	leaf, _ := object.NewInstance(types.FirstDynamicClassID, 1)
	root, _ := object.NewInstance(types.FirstDynamicClassID, 1)
	object.SetFieldRef(root, 0, leaf)
	fr.held = []object.Handle{root}

	g := &globals.Globals{GCStrategy: globals.PointerReversalMarking}
	c := New(object.Heap, g)
	c.Collect(0)

	if !object.Heap.IsObjectStart(heap.Ref(leaf)) {
		t.Errorf("transitively reachable object was swept")
	}
}
