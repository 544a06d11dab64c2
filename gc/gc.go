/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package gc implements spec §4.2: a stop-the-world mark-sweep collector
// over the heap package's bitmap-tracked allocation area.
//
// Grounded directly on jelatine's memory.c (original_source, gc_collect/
// gc_mark/gc_sweep): a collection marks from every registered
// RootProvider (the thread manager's temporary roots and the frame
// stacks' slots), then sweeps the bitmap, returning each dead object to
// the heap's free lists on its own. Collect does not stop other
// threads, does not coalesce adjacent free runs, and does not grow the
// heap; when too little was reclaimed it only logs a warning. The two marking
// strategies promised by spec §4.2 -- plain recursive descent and
// Deutsch-Schorr-Waite pointer reversal -- are both implemented; which
// one runs is selected by globals.GCStrategy, mirroring memory.c's
// JEL_POINTER_REVERSAL compile-time switch turned into a runtime one.
package gc

import (
	"sync"

	"jelatine/globals"
	"jelatine/heap"
	"jelatine/object"
	"jelatine/trace"
)

// ClassShape describes, for one class id, everything the collector needs
// to walk an instance's reference fields and compute its total size --
// the Go-side stand-in for jelatine's class_t ref_n/nref_size fields.
// The classloader registers one of these for every class it finishes
// linking (spec §4.3 "field/dispatch table construction").
type ClassShape struct {
	IsArray       bool
	FieldWords    int   // scalar instances: total field slots
	RefFieldSlots []int // scalar instances: which slots hold references
	RefComponent  bool  // arrays only: true if the component type is a reference
	ComponentSize int   // arrays only: bytes per element
}

var shapes = map[uint32]ClassShape{}

// RegisterClassShape installs or replaces the shape used to size and
// scan instances of classID.
func RegisterClassShape(classID uint32, shape ClassShape) {
	shapes[classID] = shape
}

func shapeOf(classID uint32) (ClassShape, bool) {
	s, ok := shapes[classID]
	return s, ok
}

// ShapeOf exposes shapeOf to other packages (the classloader consults a
// superclass's already-registered shape when computing a subclass's
// reference-slot list at link time).
func ShapeOf(classID uint32) (ClassShape, bool) {
	return shapeOf(classID)
}

// sizeOf returns an object's total on-heap size in bytes, header
// included, the way gc_sweep computes nref_size + ref_n*wordsize +
// sizeof(header_t) in the C original.
func sizeOf(h object.Handle) int {
	classID := object.ClassID(h)
	shape, ok := shapeOf(classID)
	if !ok {
		return 8 // header only; unknown shape, treat as a bare header word
	}
	if shape.IsArray {
		n := int(object.ArrayLength(h))
		return 16 + n*shape.ComponentSize // header + length word + payload
	}
	return 8 + shape.FieldWords*8
}

// RootProvider is implemented by thread.Manager and frames.FrameStack:
// anything that can enumerate the references it is currently holding
// live. gc_mark in the C original calls bcl_mark/jsm_mark/tm_mark in
// turn; Collect calls every registered RootProvider the same way.
type RootProvider interface {
	// VisitRoots calls visit once for every live reference the provider
	// currently holds (class statics, operand stacks, monitor owners).
	VisitRoots(visit func(object.Handle))
}

var roots []RootProvider

// RegisterRoots adds a root provider to the set scanned at the start of
// every collection. cmd/jelatine calls it once each for the thread
// manager and the frame stack; the classloader registers no provider, so
// static fields are not roots.
func RegisterRoots(p RootProvider) {
	roots = append(roots, p)
}

// Collector owns the heap a collection cycle runs against.
type Collector struct {
	Heap     *heap.Heap
	Strategy globals.GCStrategy
}

// New wraps h for collection, using the GC strategy named in g.
func New(h *heap.Heap, g *globals.Globals) *Collector {
	return &Collector{Heap: h, Strategy: g.GCStrategy}
}

// Collect runs one full cycle on the calling goroutine (other threads are
// not stopped): mark every reachable object from the registered roots,
// then sweep the bitmap, freeing each dead object into the heap's free
// lists without coalescing neighbours. grow is the size of the
// allocation that triggered this collection (0 if none), used the same
// way gc_sweep's `size` parameter decides whether the heap must grow
// afterward.
func (c *Collector) Collect(grow int) {
	trace.Trace("gc: collection starting")

	switch c.Strategy {
	case globals.PointerReversalMarking:
		c.markPointerReversal()
	default:
		c.markRecursive()
	}

	clearUnmarkedWeakRefs()
	reclaimed, inUse := c.sweep()
	trace.Trace("gc: collection finished")

	// Half of gc_sweep's growth heuristic: if a triggering allocation was
	// given and the collection freed less than half of what remains in
	// use, a warning is logged. The size of the largest reclaimed run is
	// not checked, the heap is never grown, and heap.Alloc does not call
	// Collect or retry after a failure.
	if grow > 0 && reclaimed < inUse/2 {
		trace.Warning("gc: collection reclaimed less than half of live bytes; heap may need to grow")
	}
}

// ---- marking ----

func (c *Collector) markRecursive() {
	visited := map[object.Handle]bool{}
	var mark func(h object.Handle)
	mark = func(h object.Handle) {
		if h == object.Null || visited[h] {
			return
		}
		visited[h] = true
		object.SetMarked(h)
		c.visitRefs(h, mark)
	}
	for _, r := range roots {
		r.VisitRoots(mark)
	}
}

// markPointerReversal implements Deutsch-Schorr-Waite marking: instead
// of recursing (and risking a host-stack overflow the VM cannot itself
// observe or bound, exactly the failure mode spec §4.2 calls out), the
// walk keeps each parent and its next slot index on the explicit side
// stack reversalStack; the objects' reference slots are never
// overwritten. Grounded on memory.c's
// JEL_POINTER_REVERSAL branch of gc_sweep/header_restore.
func (c *Collector) markPointerReversal() {
	for _, r := range roots {
		r.VisitRoots(func(h object.Handle) {
			c.reverseWalk(h)
		})
	}
}

// reverseWalk marks the subtree reachable from start without recursion,
// using reversalStack (pushFrame/popFrame) as the "stack".
func (c *Collector) reverseWalk(start object.Handle) {
	if start == object.Null || object.Marked(start) {
		return
	}

	var prev object.Handle = object.Null
	cur := start
	object.SetMarked(cur)
	slot := 0

	for {
		refs := refSlotsOf(cur)
		advanced := false
		for slot < len(refs) {
			child := object.GetFieldRef(cur, refs[slot])
			slot++
			if child != object.Null && !object.Marked(child) {
				// descend: park the return slot index in a side table
				// (the C original reuses the pointer-sized field itself;
				// Go's typed accessors make that unsafe to alias, so a
				// side map plays the role of the reversed pointer chain)
				pushFrame(cur, slot, prev)
				prev = cur
				cur = child
				object.SetMarked(cur)
				slot = 0
				advanced = true
				break
			}
		}
		if advanced {
			continue
		}
		if prev == object.Null {
			return
		}
		cur, slot, prev = popFrame()
	}
}

type reversalFrame struct {
	node object.Handle
	slot int
	prev object.Handle
}

var reversalStack []reversalFrame

func pushFrame(node object.Handle, slot int, prev object.Handle) {
	reversalStack = append(reversalStack, reversalFrame{node: node, slot: slot, prev: prev})
}

func popFrame() (object.Handle, int, object.Handle) {
	n := len(reversalStack)
	f := reversalStack[n-1]
	reversalStack = reversalStack[:n-1]
	return f.node, f.slot, f.prev
}

func refSlotsOf(h object.Handle) []int {
	shape, ok := shapeOf(object.ClassID(h))
	if !ok {
		return nil
	}
	if shape.IsArray {
		if !shape.RefComponent {
			return nil
		}
		n := int(object.ArrayLength(h))
		slots := make([]int, n)
		for i := range slots {
			slots[i] = i
		}
		return slots
	}
	return shape.RefFieldSlots
}

func (c *Collector) visitRefs(h object.Handle, visit func(object.Handle)) {
	shape, ok := shapeOf(object.ClassID(h))
	if !ok {
		return
	}
	if shape.IsArray {
		if !shape.RefComponent {
			return
		}
		n := object.ArrayLength(h)
		for i := int32(0); i < n; i++ {
			visit(object.GetArrayRef(h, i))
		}
		return
	}
	for _, slot := range shape.RefFieldSlots {
		visit(object.GetFieldRef(h, slot))
	}
}

// ---- sweep ----

// sweep walks every bitmap-recorded object start; marked objects survive
// (their mark bit is cleared for the next cycle), unmarked objects are
// returned to the heap's free lists. Returns bytes reclaimed and bytes
// still in use, the two figures gc_sweep's growth heuristic compares.
func (c *Collector) sweep() (reclaimed, inUse int) {
	var dead []object.Handle
	c.Heap.ForEachObjectStart(func(off heap.Ref) {
		h := object.Handle(off)
		switch {
		case object.Marked(h):
			object.ClearMarked(h)
			inUse += sizeOf(h)
		case queueFinalizable(h):
			// Unreachable, but registered via NEW_FINALIZER and not yet
			// finalized: kept alive one more cycle so DrainFinalizers'
			// caller can run its finalize() method before the object is
			// actually reclaimed (spec §4.2 "weak refs and finalization").
			inUse += sizeOf(h)
		default:
			dead = append(dead, h)
		}
	})
	for _, h := range dead {
		size := sizeOf(h)
		c.Heap.Free(heap.Ref(h), size)
		reclaimed += size
	}
	return reclaimed, inUse
}

// ---- weak references ----

// WeakRef is a handle to an object that does not by itself keep the
// referent alive: the collector nulls it out after marking, before sweep,
// if nothing else marked the referent that cycle (spec §4.2 "weak refs
// and finalization"). Grounded on memory.c's treatment of jelatine's
// WeakReference class; the weak handles live in a Go-side list
// (weakRefs) because Go's typed field accessors can't be scanned
// generically for "this field happens to be a WeakReference.referent".
type WeakRef struct {
	mu       sync.Mutex
	referent object.Handle
}

var (
	weakLock sync.Mutex
	weakRefs []*WeakRef
)

// NewWeak registers h as weakly reachable and returns a handle to read
// it back until the next collection that finds it otherwise unreachable.
func NewWeak(h object.Handle) *WeakRef {
	w := &WeakRef{referent: h}
	weakLock.Lock()
	weakRefs = append(weakRefs, w)
	weakLock.Unlock()
	return w
}

// Get returns the referent, or object.Null once a collection has
// cleared it.
func (w *WeakRef) Get() object.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.referent
}

// clearUnmarkedWeakRefs runs after marking but before sweep, while the
// mark bit still distinguishes this cycle's survivors: any weak
// referent that wasn't marked is cleared, and the entry is dropped from
// the tracked list (a cleared WeakRef has nothing left to report).
func clearUnmarkedWeakRefs() {
	weakLock.Lock()
	defer weakLock.Unlock()
	live := weakRefs[:0]
	for _, w := range weakRefs {
		w.mu.Lock()
		if w.referent != object.Null && !object.Marked(w.referent) {
			w.referent = object.Null
			w.mu.Unlock()
			continue
		}
		w.mu.Unlock()
		live = append(live, w)
	}
	weakRefs = live
}

// ---- finalization ----

// finalizable holds every object allocated via NEW_FINALIZER that
// hasn't yet been queued for finalization. RegisterFinalizable is
// called by the interpreter's NEW_FINALIZER opcode handling (spec §4.5);
// the set is consulted once, at sweep time, by queueFinalizable.
var (
	finalizeLock  sync.Mutex
	finalizable   = map[object.Handle]bool{}
	finalizeQueue []object.Handle
)

// RegisterFinalizable marks h as carrying a finalize() method the
// collector must run before reclaiming it.
func RegisterFinalizable(h object.Handle) {
	finalizeLock.Lock()
	defer finalizeLock.Unlock()
	finalizable[h] = true
}

// queueFinalizable moves h from the finalizable set onto the drain
// queue if it was registered, reporting whether it did -- called only
// for objects sweep already found unreachable this cycle.
func queueFinalizable(h object.Handle) bool {
	finalizeLock.Lock()
	defer finalizeLock.Unlock()
	if !finalizable[h] {
		return false
	}
	delete(finalizable, h)
	finalizeQueue = append(finalizeQueue, h)
	return true
}

// DrainFinalizers returns every object queued for finalization since
// the last drain, clearing the queue. The VM is expected to run each
// object's finalize() method and then let the next collection reclaim
// it for good (this VM does not support resurrection via finalize()
// re-registering the object).
func DrainFinalizers() []object.Handle {
	finalizeLock.Lock()
	defer finalizeLock.Unlock()
	q := finalizeQueue
	finalizeQueue = nil
	return q
}
