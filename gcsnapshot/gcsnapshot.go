/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package gcsnapshot is a GC reachability test helper: it renders a
// heap's live-object set as a stable, sorted text dump and diffs two
// such dumps with github.com/sergi/go-diff, the way google-kati's test
// suite diffs expected-vs-actual text output. A collector test takes a
// snapshot before and after Collect, asserts the expected objects
// vanished, and on a mismatch gets a readable diff instead of two
// opaque object-offset slices.
package gcsnapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"jelatine/heap"
	"jelatine/object"
)

// Snapshot is one line per live object: its heap offset, class id, and
// (for arrays) length, in a fixed, sortable textual form.
type Snapshot struct {
	lines []string
}

// Take walks h's object-start bitmap and records every live object
// currently reachable at the byte level (it does not itself do
// liveness analysis -- that's the collector's job; Take is meant to be
// called right before and right after a Collect so the two snapshots
// can be diffed to see exactly what the cycle reclaimed).
func Take(h *heap.Heap) *Snapshot {
	var lines []string
	h.ForEachObjectStart(func(off heap.Ref) {
		hnd := object.Handle(off)
		line := fmt.Sprintf("%08x class=%d", uint32(off), object.ClassID(hnd))
		if object.IsArray(hnd) {
			line += fmt.Sprintf(" len=%d", object.ArrayLength(hnd))
		}
		lines = append(lines, line)
	})
	sort.Strings(lines)
	return &Snapshot{lines: lines}
}

// String renders the snapshot as newline-separated, sorted lines --
// stable across runs regardless of allocation order, so two snapshots
// of the same logical heap state diff to nothing even if the
// collector visited objects in a different order.
func (s *Snapshot) String() string {
	return strings.Join(s.lines, "\n")
}

// Reclaimed returns the offsets present in before but absent from
// after: exactly what one Collect cycle swept.
func (before *Snapshot) Reclaimed(after *Snapshot) []string {
	afterSet := make(map[string]bool, len(after.lines))
	for _, l := range after.lines {
		afterSet[l] = true
	}
	var gone []string
	for _, l := range before.lines {
		if !afterSet[l] {
			gone = append(gone, l)
		}
	}
	return gone
}

// Diff renders a human-readable diff between two snapshots using
// go-diff's semantic cleanup, the same pattern google-kati's test
// harness uses to compare expected-vs-actual text: a failing GC
// reachability assertion should point straight at which object lines
// appeared or disappeared, not require the reader to diff two raw
// slices by hand.
func Diff(before, after *Snapshot) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before.String(), after.String(), true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
