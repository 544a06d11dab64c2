/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package heap implements spec §4.1: a single contiguous backing buffer
// divided, low to high address, into a GC-managed area, a side bitmap
// (one bit per machine word of the GC area), and a permanent arena.
// PAlloc fills the permanent arena upward from its base toward its end;
// it does not grow downward from the top. Allocation never moves objects
// and never returns memory the allocator has not itself zeroed.
//
// Grounded on jelatine's memory.c (original_source): BIN_ENTRIES=16 small
// free lists segregated by chunk size plus one large first-fit list,
// exactly as the C source does. The backing buffer itself is obtained
// from github.com/edsrzf/mmap-go (as saferwall-pe uses to map PE files)
// instead of a bare Go []byte, so the region is real OS-backed contiguous
// memory rather than something the Go runtime's own collector could
// decide to move -- which matters here because every live reference is a
// plain integer offset into this buffer, not a Go pointer, and offsets
// must stay valid for the life of the VM.
package heap

import (
	"encoding/binary"
	"errors"

	"github.com/edsrzf/mmap-go"
)

// Ref is a byte offset from the start of the GC-managed area. Offset 0 is
// reserved (never handed out by Alloc) so it can double as the "no
// chunk"/"null reference" sentinel, the way jelatine's NULL-checked
// uintptr references work in the C original.
type Ref uint32

// NullRef is the reserved sentinel offset.
const NullRef Ref = 0

const (
	wordSize   = 8
	binEntries = 16 // BIN_ENTRIES in jelatine's memory.c
	binMaxSize = binEntries * wordSize
	headerSize = wordSize // one machine word per spec §3 "Object header"
)

// Object header bit layout (spec §3 "Object header", §9 "dual use of the
// header"): bit0 = mark, bit1 = kind. The object package uses the kind
// bit to tell arrays (1) from instances (0); this heap holds no raw
// C-style allocations, so no header records a size. Go cannot stash a
// pointer in the high bits of an integer
// the way the C original does, since Go's own collector must be able to
// enumerate every pointer it owns and an encoded integer is not one, so a
// Java object's header holds a *class id* in the high bits instead of a
// pointer (see DESIGN.md, the `object/` entry).
const (
	MarkBitMask = 1 << 0
	KindBitMask = 1 << 1
	HeaderShift = 2
)

// ErrOutOfMemory is returned by Alloc when no free chunk is large enough
// to satisfy the request (no collection is attempted first), and by
// PAlloc when the permanent arena is full. Callers translate
// this into a Java OutOfMemoryError or, per spec §7, a fatal shutdown
// when no Java thread exists yet to receive it.
var ErrOutOfMemory = errors.New("heap: out of memory")

// freeChunk is the layout written into the first two words of every free
// chunk. It is never scanned by the bitmap, since a chunk's start bit is
// cleared the moment it is freed.
type freeChunk struct {
	next Ref
	size uint32 // total chunk size in bytes, including this header
}

const freeChunkSize = 8 // 4 bytes next + 4 bytes size

// Heap owns the backing buffer and all allocator state. One Heap exists
// for the life of the VM process; spec §5 names the heap bins among the
// shared resources guarded by the VM's single global lock, so callers
// external to this package are responsible for holding that lock around
// Alloc/Free/PAlloc.
type Heap struct {
	backing mmap.MMap
	useMmap bool
	raw     []byte // fallback backing store when mmap is unavailable

	gcAreaSize int // bytes reserved for the GC-managed area, word-aligned
	bitmapOff  int // byte offset (within the whole buffer) where the bitmap begins
	bitmapSize int // bytes in the bitmap
	permBase   int // byte offset where the permanent arena begins
	permEnd    int // one past the last byte of the permanent arena
	permTop    int // current high-water allocation mark within [permBase, permEnd)

	smallBins [binEntries]Ref // head of each small free list, 0 = empty
	largeBin  Ref             // head of the large first-fit list, 0 = empty

	used int // live bytes currently allocated in the GC area
}

// New carves out a heap with gcBytes for the GC-managed area and
// permBytes for the permanent arena, backed by an anonymous memory
// mapping. If the mapping fails (disallowed by the host environment,
// say) New falls back to a plain Go byte slice so the VM can still run.
func New(gcBytes, permBytes int) (*Heap, error) {
	gcBytes = alignUp(gcBytes, wordSize)
	bitmapBytes := alignUp(gcBytes/wordSize, 8) / 8
	total := gcBytes + bitmapBytes + permBytes

	h := &Heap{
		gcAreaSize: gcBytes,
		bitmapOff:  gcBytes,
		bitmapSize: bitmapBytes,
		permBase:   gcBytes + bitmapBytes,
		permEnd:    gcBytes + bitmapBytes + permBytes,
		permTop:    gcBytes + bitmapBytes,
	}

	if m, err := mmap.MapRegion(nil, total, mmap.RDWR, mmap.ANON, 0); err == nil {
		h.backing = m
		h.useMmap = true
	} else {
		h.raw = make([]byte, total)
	}

	// The whole GC area starts as one large free chunk, skipping offset 0
	// so it can stay reserved as the null sentinel: the first chunk
	// begins one word in and is wordSize bytes shorter.
	h.largeBin = Ref(wordSize)
	h.writeChunk(wordSize, freeChunk{next: NullRef, size: uint32(gcBytes - wordSize)})

	return h, nil
}

// Close releases the mmap'd backing store, if one was used.
func (h *Heap) Close() error {
	if h.useMmap {
		return h.backing.Unmap()
	}
	return nil
}

func (h *Heap) buf() []byte {
	if h.useMmap {
		return h.backing
	}
	return h.raw
}

// Bytes returns the raw backing slice for the byte window [off, off+n)
// within the GC-managed area, used by the object package's field
// accessors and the GC's conservative scanner.
func (h *Heap) Bytes(off Ref, n int) []byte {
	return h.buf()[int(off) : int(off)+n]
}

// GCAreaSize, BitmapOffset, BitmapWords, and PermBase expose the region
// layout to the gc package's root scanner and sweeper.
func (h *Heap) GCAreaSize() int   { return h.gcAreaSize }
func (h *Heap) BitmapOffset() int { return h.bitmapOff }
func (h *Heap) BitmapWords() int  { return h.gcAreaSize / wordSize }
func (h *Heap) PermBase() int     { return h.permBase }
func (h *Heap) UsedBytes() int    { return h.used }

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// ---- bitmap: one bit per word of the GC area, set exactly at every live
// object's header word. ----

func (h *Heap) bitSet(wordIdx int) {
	buf := h.buf()
	buf[h.bitmapOff+wordIdx/8] |= 1 << uint(wordIdx%8)
}

func (h *Heap) bitClear(wordIdx int) {
	buf := h.buf()
	buf[h.bitmapOff+wordIdx/8] &^= 1 << uint(wordIdx%8)
}

func (h *Heap) bitTest(wordIdx int) bool {
	buf := h.buf()
	return buf[h.bitmapOff+wordIdx/8]&(1<<uint(wordIdx%8)) != 0
}

// IsObjectStart reports whether off is recorded in the bitmap as a live
// object's header position -- the O(1) conservative-pointer validity
// check spec §4.2 requires of the root scanner.
func (h *Heap) IsObjectStart(off Ref) bool {
	o := int(off)
	if o <= 0 || o >= h.gcAreaSize || o%wordSize != 0 {
		return false
	}
	return h.bitTest(o / wordSize)
}

// markHeaderStart and clearHeaderStart set and clear an object's start
// bit in the bitmap; they do not touch mark state. Tracking marks in the
// bitmap itself is NOT how jelatine does it --
// the C original keeps the mark bit in the object header word, and the
// bitmap only ever records "an object starts here" so the allocator can
// tell live starts from free-chunk interiors during sweep. Mirrored here:
// mark state lives in the header (see object package), this bitmap is
// the allocator's own bookkeeping.
func (h *Heap) markHeaderStart(off Ref) { h.bitSet(int(off) / wordSize) }
func (h *Heap) clearHeaderStart(off Ref) { h.bitClear(int(off) / wordSize) }

// ForEachObjectStart calls fn once for every bit set in the bitmap, in
// ascending address order, used by the sweeper.
func (h *Heap) ForEachObjectStart(fn func(off Ref)) {
	words := h.BitmapWords()
	for wi := 1; wi < words; wi++ { // word 0 is the reserved null sentinel
		if h.bitTest(wi) {
			fn(Ref(wi * wordSize))
		}
	}
}

// ---- free chunk encoding ----

func (h *Heap) readChunk(off int) freeChunk {
	buf := h.buf()
	return freeChunk{
		next: Ref(binary.LittleEndian.Uint32(buf[off : off+4])),
		size: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
	}
}

func (h *Heap) writeChunk(off int, c freeChunk) {
	buf := h.buf()
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c.next))
	binary.LittleEndian.PutUint32(buf[off+4:off+8], c.size)
}

// binIndex returns the small-bin index for a chunk of the given size, or
// -1 if it belongs in the large/first-fit list. Bin i holds chunks of
// exactly (i+1)*wordSize bytes, mirroring BIN_ENTRIES segregation in
// jelatine's memory.c.
func binIndex(size int) int {
	if size > binMaxSize || size%wordSize != 0 {
		return -1
	}
	idx := size/wordSize - 1
	if idx < 0 || idx >= binEntries {
		return -1
	}
	return idx
}

func (h *Heap) pushFree(off int, size int) {
	if bi := binIndex(size); bi >= 0 {
		h.writeChunk(off, freeChunk{next: h.smallBins[bi], size: uint32(size)})
		h.smallBins[bi] = Ref(off)
		return
	}
	h.writeChunk(off, freeChunk{next: h.largeBin, size: uint32(size)})
	h.largeBin = Ref(off)
}

// popExactSmall removes and returns the head of small bin bi, if any.
func (h *Heap) popExactSmall(bi int) (int, bool) {
	head := h.smallBins[bi]
	if head == NullRef {
		return 0, false
	}
	c := h.readChunk(int(head))
	h.smallBins[bi] = c.next
	return int(head), true
}

// popLargeFit removes and returns the first chunk in the large list whose
// size is >= need, splitting off any remainder back into the free lists
// (first-fit, matching jelatine's large-chunk allocation strategy).
func (h *Heap) popLargeFit(need int) (int, bool) {
	var prev Ref = NullRef
	cur := h.largeBin
	for cur != NullRef {
		c := h.readChunk(int(cur))
		if int(c.size) >= need {
			if prev == NullRef {
				h.largeBin = c.next
			} else {
				pc := h.readChunk(int(prev))
				pc.next = c.next
				h.writeChunk(int(prev), pc)
			}
			h.maybeSplit(int(cur), int(c.size), need)
			return int(cur), true
		}
		prev = cur
		cur = c.next
	}
	return 0, false
}

// maybeSplit trims a chunk of size total down to need bytes, returning
// the remainder (if large enough to be useful) to the free lists.
func (h *Heap) maybeSplit(off, total, need int) {
	remainder := total - need
	if remainder < freeChunkSize {
		return // remainder too small to ever be allocated; stays part of this chunk
	}
	h.pushFree(off+need, remainder)
}

// Alloc reserves size bytes (rounded up to a word multiple, plus the
// header word) in the GC-managed area and returns the offset of the new
// object's header. It does not trigger a collection, and no caller in
// this module runs one and retries: ErrOutOfMemory goes straight back to
// the caller.
func (h *Heap) Alloc(payloadBytes int) (Ref, error) {
	total := alignUp(headerSize+payloadBytes, wordSize)

	if bi := binIndex(total); bi >= 0 {
		for i := bi; i < binEntries; i++ {
			if off, ok := h.popExactSmall(i); ok {
				h.maybeSplit(off, (i+1)*wordSize, total)
				return h.finishAlloc(off, total)
			}
		}
	}
	if off, ok := h.popLargeFit(total); ok {
		return h.finishAlloc(off, total)
	}
	return NullRef, ErrOutOfMemory
}

func (h *Heap) finishAlloc(off, size int) (Ref, error) {
	buf := h.buf()
	for i := 0; i < size; i++ {
		buf[off+i] = 0
	}
	h.markHeaderStart(Ref(off))
	h.used += size
	return Ref(off), nil
}

// Free returns an object's storage to the appropriate free list. Called
// only by the sweeper (gc package), which already knows the object's
// total size from its header/class metadata.
func (h *Heap) Free(off Ref, size int) {
	h.clearHeaderStart(off)
	h.pushFree(int(off), size)
	h.used -= size
}

// PAlloc reserves size bytes from the permanent arena. Permanent
// allocations (loaded classes, interned strings' backing arrays) are
// never collected and never moved, matching jelatine's treatment of
// class metadata as outside the GC's purview (spec §4.1).
func (h *Heap) PAlloc(size int) (Ref, error) {
	size = alignUp(size, wordSize)
	if h.permTop+size > h.permEnd {
		return NullRef, ErrOutOfMemory
	}
	off := h.permTop
	h.permTop += size
	buf := h.buf()
	for i := 0; i < size; i++ {
		buf[off+i] = 0
	}
	return Ref(off), nil
}
