/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import (
	"testing"

	"jelatine/heap"
	"jelatine/object"
)

func setupHeap(t *testing.T) {
	t.Helper()
	h, err := heap.New(1<<16, 1<<12)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	object.Heap = h
	t.Cleanup(func() { h.Close() })
}

func TestMonitorEnterExitReentrant(t *testing.T) {
	setupHeap(t)
	m := New()
	owner := m.Launch("main")

	ref, _ := object.NewInstance(0, 1)

	m.MonitorEnter(owner, ref)
	m.MonitorEnter(owner, ref) // re-entrant

	if !m.MonitorExit(owner, ref) {
		t.Fatalf("first exit should succeed")
	}
	if !m.MonitorExit(owner, ref) {
		t.Fatalf("second exit (dropping to 0) should succeed")
	}
	if m.MonitorExit(owner, ref) {
		t.Fatalf("exit on an unheld monitor should fail")
	}
}

func TestMonitorExitWrongOwnerFails(t *testing.T) {
	setupHeap(t)
	m := New()
	a := m.Launch("a")
	b := m.Launch("b")

	ref, _ := object.NewInstance(0, 1)
	m.MonitorEnter(a, ref)

	if m.MonitorExit(b, ref) {
		t.Fatalf("non-owner exit should fail")
	}
}

func TestMonitorTableGrows(t *testing.T) {
	setupHeap(t)
	m := New()
	owner := m.Launch("main")

	refs := make([]object.Handle, 0, 64)
	for i := 0; i < 64; i++ {
		r, err := object.NewInstance(0, 1)
		if err != nil {
			t.Fatalf("NewInstance: %v", err)
		}
		refs = append(refs, r)
		m.MonitorEnter(owner, r)
	}
	if m.capacity <= initialCapacity {
		t.Errorf("monitor table did not grow past initial capacity")
	}
	for _, r := range refs {
		if !m.MonitorExit(owner, r) {
			t.Errorf("exit failed for ref %v after growth", r)
		}
	}
}

func TestPurgeClearsDeadMonitors(t *testing.T) {
	setupHeap(t)
	m := New()
	owner := m.Launch("main")

	dead, _ := object.NewInstance(0, 1)
	live, _ := object.NewInstance(0, 1)
	m.MonitorEnter(owner, dead)
	m.MonitorExit(owner, dead)
	m.MonitorEnter(owner, live)

	m.Purge(func(h object.Handle) bool { return h == live })

	if m.findLocked(dead) != -1 {
		t.Errorf("purge left a dead monitor entry")
	}
	if m.findLocked(live) == -1 {
		t.Errorf("purge removed a live monitor entry")
	}
}

func TestVisitRootsSeesPushedRefs(t *testing.T) {
	setupHeap(t)
	m := New()
	th := m.Launch("main")

	ref, _ := object.NewInstance(0, 1)
	th.PushRoot(ref)

	var seen []object.Handle
	m.VisitRoots(func(h object.Handle) { seen = append(seen, h) })
	if len(seen) != 1 || seen[0] != ref {
		t.Errorf("VisitRoots = %v, want [%v]", seen, ref)
	}

	th.PopRoot()
	seen = nil
	m.VisitRoots(func(h object.Handle) { seen = append(seen, h) })
	if len(seen) != 0 {
		t.Errorf("VisitRoots after PopRoot = %v, want empty", seen)
	}
}
