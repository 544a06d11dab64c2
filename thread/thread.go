/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package thread implements spec §4.6: the thread and monitor manager --
// a single global VM lock, a chained open-addressed monitor hash table,
// and per-thread safe-point/interrupt bookkeeping.
//
// Grounded directly on jelatine's thread.c (original_source): tm_lock/
// tm_unlock recursive locking via a per-thread "safe" counter,
// monitor_enter/monitor_exit's linear-probe-with-chaining table (grown at
// load factor 1.0, shrunk below 0.25, exactly as tm_rehash does), and
// tm_hash's >>3 (word-aligned-offset) hash function. golang.org/x/sys/unix
// backs the native clock used for timed wait/sleep deadlines, the way
// saferwall-pe reaches for x/sys for low-level OS primitives elsewhere in
// the retrieval pack.
package thread

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"jelatine/gc"
	"jelatine/object"
)

// ID identifies a VM thread. 0 is never assigned to a real thread.
type ID uint32

// Thread is a VM-level thread descriptor (spec §4.6 "Thread descriptor").
// It does not itself run Go code on a goroutine per se (see Manager.Launch)
// -- it is the bookkeeping structure the monitor table, interpreter, and
// collector all reference by pointer.
type Thread struct {
	ID        ID
	Name      string
	safe      int32 // re-entrant "in a safe zone" counter, tm_lock()'s thread->safe
	interrupt bool
	stack     []object.Handle // temporary roots pushed by PushRoot; operand stacks are rooted through frames.FrameStack
	mu        sync.Mutex

	waitCond *sync.Cond
}

// PushRoot/PopRoot register or unregister a reference as reachable from
// this thread for the duration of a native call, mirroring
// thread_push_root/thread_pop_root's native-frame root stack.
func (t *Thread) PushRoot(h object.Handle) {
	t.mu.Lock()
	t.stack = append(t.stack, h)
	t.mu.Unlock()
}

func (t *Thread) PopRoot() {
	t.mu.Lock()
	if n := len(t.stack); n > 0 {
		t.stack = t.stack[:n-1]
	}
	t.mu.Unlock()
}

// monitorEntry is one slot of the manager's open-addressed table.
type monitorEntry struct {
	ref   object.Handle
	owner *Thread
	count int
	next  int // index of the next chained entry, -1 if none
	used  bool
}

const initialCapacity = 16 // TM_CAPACITY in thread.c

// Manager owns every thread and the monitor table; spec §5 names both as
// resources serialized behind the single VM global lock.
type Manager struct {
	mu       sync.Mutex // the VM global lock itself (tm.lock)
	threads  map[ID]*Thread
	nextID   ID
	buckets  []monitorEntry
	entries  int
	capacity int
}

// New creates an empty thread/monitor manager.
func New() *Manager {
	m := &Manager{
		threads:  make(map[ID]*Thread),
		buckets:  make([]monitorEntry, initialCapacity),
		capacity: initialCapacity,
	}
	for i := range m.buckets {
		m.buckets[i].next = -1
	}
	return m
}

// Lock acquires the VM global lock. Re-entrant per calling thread via the
// thread's own safe-zone counter, matching tm_lock()'s documented
// "safe to call repeatedly from the same thread" contract -- Go's
// sync.Mutex is not itself re-entrant, so re-entrancy here is bounded to
// a single goroutine incrementing/decrementing its own Thread.safe field
// around one real Lock/Unlock pair.
func (m *Manager) Lock(t *Thread) {
	t.mu.Lock()
	t.safe++
	t.mu.Unlock()
	m.mu.Lock()
}

// Unlock releases the VM global lock acquired by Lock.
func (m *Manager) Unlock(t *Thread) {
	m.mu.Unlock()
	t.mu.Lock()
	t.safe--
	t.mu.Unlock()
}

// Launch registers a new Thread and returns it; the caller is
// responsible for actually starting the goroutine that will interpret
// bytecode on the thread's behalf (spec keeps thread scheduling itself
// out of core VM scope per §1, Non-goals).
func (m *Manager) Launch(name string) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &Thread{ID: m.nextID, Name: name}
	t.waitCond = sync.NewCond(&t.mu)
	m.threads[t.ID] = t
	return t
}

// Unregister removes a terminated thread from the manager.
func (m *Manager) Unregister(t *Thread) {
	m.mu.Lock()
	delete(m.threads, t.ID)
	m.mu.Unlock()
}

// ActiveCount reports how many threads are currently registered.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

// VisitRoots implements gc.RootProvider: every reference on every
// thread's conservative root stack is live, mirroring tm_mark() walking
// each thread_t's root stack and registers.
func (m *Manager) VisitRoots(visit func(object.Handle)) {
	m.mu.Lock()
	threads := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.Unlock()

	for _, t := range threads {
		t.mu.Lock()
		for _, h := range t.stack {
			visit(h)
		}
		t.mu.Unlock()
	}
}

var _ gc.RootProvider = (*Manager)(nil)

// ---- monitor table ----

func tmHash(ref object.Handle) int {
	return int(ref >> 3) // word-aligned offsets; matches tm_hash()'s >>3 on 64-bit
}

func (m *Manager) findLocked(ref object.Handle) int {
	hash := tmHash(ref) & (m.capacity - 1)
	i := hash
	for {
		e := &m.buckets[i]
		if !e.used {
			return -1
		}
		if e.ref == ref {
			return i
		}
		if e.next == -1 {
			return -1
		}
		i = e.next
	}
}

// MonitorEnter implements the MONITORENTER opcode (spec §4.6): acquires,
// or re-enters, the monitor associated with ref on behalf of t. Blocks
// (spinning with a yield, exactly as monitor_enter's do/while loop does)
// while another thread holds it.
func (m *Manager) MonitorEnter(t *Thread, ref object.Handle) {
	for {
		m.mu.Lock()
		idx := m.findLocked(ref)
		if idx >= 0 {
			e := &m.buckets[idx]
			if e.owner == nil {
				e.owner = t
				e.count = 1
				m.mu.Unlock()
				return
			}
			if e.owner == t {
				e.count++
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			runtimeGosched()
			continue
		}
		m.insertLocked(ref, t)
		m.mu.Unlock()
		return
	}
}

func (m *Manager) insertLocked(ref object.Handle, owner *Thread) {
	hash := tmHash(ref) & (m.capacity - 1)
	i := hash
	for m.buckets[i].used {
		i = (i + 1) & (m.capacity - 1)
	}
	m.buckets[i] = monitorEntry{ref: ref, owner: owner, count: 1, next: -1, used: true}
	if i != hash {
		m.buckets[i].next = m.buckets[hash].next
		m.buckets[hash].next = i
	}
	m.entries++
	if m.entries == m.capacity {
		m.rehash(true)
	} else if m.entries < m.capacity/4 && m.capacity > initialCapacity {
		m.rehash(false)
	}
}

// MonitorExit implements MONITOREXIT. Returns false (spec §4.6
// "IllegalMonitorStateException") if t does not currently own ref's
// monitor.
func (m *Manager) MonitorExit(t *Thread, ref object.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.findLocked(ref)
	if idx < 0 {
		return false
	}
	e := &m.buckets[idx]
	if e.owner != t {
		return false
	}
	e.count--
	if e.count == 0 {
		e.owner = nil
	}
	return true
}

// rehash grows or shrinks the monitor table, matching tm_rehash's
// rebuild-from-scratch linear-probe reinsertion.
func (m *Manager) rehash(grow bool) {
	capacity := m.capacity * 2
	if !grow {
		capacity = m.capacity / 2
	}
	newBuckets := make([]monitorEntry, capacity)
	for i := range newBuckets {
		newBuckets[i].next = -1
	}

	old := m.buckets
	m.buckets = newBuckets
	m.capacity = capacity

	for _, e := range old {
		if !e.used {
			continue
		}
		hash := tmHash(e.ref) & (capacity - 1)
		i := hash
		for m.buckets[i].used {
			i = (i + 1) & (capacity - 1)
		}
		m.buckets[i] = monitorEntry{ref: e.ref, owner: e.owner, count: e.count, next: -1, used: true}
		if i != hash {
			m.buckets[i].next = m.buckets[hash].next
			m.buckets[hash].next = i
		}
	}
}

// Purge clears monitor entries for dead (unmarked) objects, matching
// tm_purge(). The gc package does not call it; a collection leaves the
// monitor table untouched.
func (m *Manager) Purge(isMarked func(object.Handle) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := 0
	for i := range m.buckets {
		e := &m.buckets[i]
		if e.used && !isMarked(e.ref) {
			*e = monitorEntry{next: -1}
		} else if e.used {
			live++
		}
	}
	m.entries = live
	m.rechain()
}

// rechain rebuilds every bucket's collision chain after a purge, the way
// tm_purge's second and third passes reassign displaced entries to their
// home bucket and re-thread the chains: rehash(false) halves the doubled
// capacity back to the current one and reinserts every survivor.
func (m *Manager) rechain() {
	m.capacity *= 2
	m.rehash(false)
}

func runtimeGosched() { runtimeGoschedImpl() }

// ---- timing ----

// Deadline computes an absolute monotonic deadline millis/nanos in the
// future, using the native clock via golang.org/x/sys/unix (the same
// CLOCK_MONOTONIC jelatine's native_cond_timed_wait converts a relative
// wait into), rather than time.Now(), so a concurrently adjusted wall
// clock cannot shorten or lengthen a pending Object.wait(millis, nanos).
func Deadline(millis int64, nanos int32) time.Time {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	base := time.Unix(ts.Sec, ts.Nsec)
	return base.Add(time.Duration(millis)*time.Millisecond + time.Duration(nanos))
}

// Wait blocks t on its own condition variable until Notify wakes it or
// deadline passes (spec §4.6 Object.wait(long, int)). It does not release
// or reacquire any object monitor, and it does not read or clear t's
// interrupt flag.
func (t *Thread) Wait(deadline time.Time) (timedOut bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if deadline.IsZero() {
		t.waitCond.Wait()
		return false
	}
	done := make(chan struct{})
	timer := time.AfterFunc(time.Until(deadline), func() {
		close(done)
		t.waitCond.Broadcast()
	})
	defer timer.Stop()
	t.waitCond.Wait()
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Notify wakes one (or, if broadcast, every) thread parked in Wait on t.
func (t *Thread) Notify(broadcast bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if broadcast {
		t.waitCond.Broadcast()
	} else {
		t.waitCond.Signal()
	}
}

// Interrupt sets t's interrupt flag. Only Interrupted reads (and clears)
// it: Interrupt does not wake a thread blocked in Wait or Sleep, and
// neither of those checks the flag.
func (t *Thread) Interrupt() {
	t.mu.Lock()
	t.interrupt = true
	t.mu.Unlock()
}

// Interrupted reports and clears t's interrupt flag.
func (t *Thread) Interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.interrupt
	t.interrupt = false
	return v
}

// Sleep parks the calling goroutine for the given duration, yielding to
// the scheduler first the way thread_sleep yields before blocking so a
// sleep(0) still gives other VM threads a chance to run.
func Sleep(d time.Duration) {
	runtimeGosched()
	time.Sleep(d)
}
