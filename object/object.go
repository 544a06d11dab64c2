/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package object implements spec §3's object model on top of the heap
// package's offset-addressed storage: every "reference" is a heap.Ref,
// not a Go pointer, because the backing store is a raw mmap'd buffer the
// Go runtime's own collector does not know about.
//
// Layout mirrors jelatine's header.h/instance.c (original_source), with
// the single reserved-pointer-bits trick redesigned per spec §9's
// REDESIGN FLAGS: the header word holds a mark bit, a kind bit, and a
// class id (not a class pointer). Arrays, primitive and reference alike,
// store a length word after the header and their elements growing
// forward after it; there is no backward-growing reference area.
package object

import (
	"encoding/binary"
	"strings"

	"jelatine/heap"
	"jelatine/stringPool"
	"jelatine/types"
)

// Kind distinguishes a scalar object (instance fields only) from an
// array (length-prefixed payload).
type Kind uint8

const (
	KindInstance Kind = 0
	KindArray    Kind = 1
)

// header layout, word 0 of every heap allocation:
//
//	bits [0]    mark bit (gc package only)
//	bits [1]    kind bit: 0 = instance, 1 = array
//	bits [2:32] class id (types.ClassID-space; see classloader)
const (
	markBit = 1 << 0
	kindBit = 1 << 1
	idShift = 2
)

// Heap is the single backing store every Object offset is resolved
// against. Set once at VM startup (spec §5: the heap is process-wide).
var Heap *heap.Heap

// Handle is a typed heap.Ref known to name an object header.
type Handle heap.Ref

// Null is the Java null reference.
const Null Handle = Handle(heap.NullRef)

func header(h Handle) uint32 {
	return binary.LittleEndian.Uint32(Heap.Bytes(heap.Ref(h), 4))
}

func setHeader(h Handle, v uint32) {
	binary.LittleEndian.PutUint32(Heap.Bytes(heap.Ref(h), 4), v)
}

// ClassID returns the class-table index encoded in h's header.
func ClassID(h Handle) uint32 { return header(h) >> idShift }

// IsArray reports whether h names an array object.
func IsArray(h Handle) bool { return header(h)&kindBit != 0 }

// Marked/SetMarked/ClearMarked manipulate the GC mark bit; used only by
// the gc package during a collection cycle.
func Marked(h Handle) bool { return header(h)&markBit != 0 }
func SetMarked(h Handle)   { setHeader(h, header(h)|markBit) }
func ClearMarked(h Handle) { setHeader(h, header(h)&^markBit) }

// instance layout: [header word][fieldCount words of field storage]
// Field offsets are assigned by the classloader when it lays out a
// class's instance shape (spec §4.3, "field/dispatch table construction")
// and are always word-sized slots regardless of the field's Java type,
// matching jelatine's uniform jword_t-sized field slots.

// NewInstance allocates a scalar object of the given class id with
// fieldWords words of instance-field storage.
func NewInstance(classID uint32, fieldWords int) (Handle, error) {
	ref, err := Heap.Alloc(fieldWords * 8)
	if err != nil {
		return Null, err
	}
	setHeader(Handle(ref), classID<<idShift)
	return Handle(ref), nil
}

func fieldOffset(h Handle, slot int) heap.Ref {
	return heap.Ref(h) + 8 + heap.Ref(slot*8)
}

// GetFieldWord/SetFieldWord read or write a raw 8-byte instance-field
// slot. Typed accessors below narrow/widen through these.
func GetFieldWord(h Handle, slot int) uint64 {
	return binary.LittleEndian.Uint64(Heap.Bytes(fieldOffset(h, slot), 8))
}

func SetFieldWord(h Handle, slot int, v uint64) {
	binary.LittleEndian.PutUint64(Heap.Bytes(fieldOffset(h, slot), 8), v)
}

func GetFieldInt(h Handle, slot int) int32    { return int32(GetFieldWord(h, slot)) }
func SetFieldInt(h Handle, slot int, v int32) { SetFieldWord(h, slot, uint64(uint32(v))) }

func GetFieldLong(h Handle, slot int) int64    { return int64(GetFieldWord(h, slot)) }
func SetFieldLong(h Handle, slot int, v int64) { SetFieldWord(h, slot, uint64(v)) }

func GetFieldRef(h Handle, slot int) Handle    { return Handle(GetFieldWord(h, slot)) }
func SetFieldRef(h Handle, slot int, v Handle) { SetFieldWord(h, slot, uint64(v)) }

func GetFieldBool(h Handle, slot int) bool { return GetFieldWord(h, slot) != 0 }
func SetFieldBool(h Handle, slot int, v bool) {
	if v {
		SetFieldWord(h, slot, 1)
	} else {
		SetFieldWord(h, slot, 0)
	}
}

// array layout: [header word][length word][element payload]
// Reference-element arrays store Handles; primitive arrays store packed
// native-width elements (booleans/bytes packed 8-per-word, the rest
// densely packed per their natural width) per spec §3 "Array layout".

const arrayLenOffset = 8
const arrayDataOffset = 16

// elemSize returns the storage width in bytes for one element of an
// array whose component descriptor is desc (types.Bool.. types.Ref).
func elemSize(desc string) int {
	switch desc {
	case types.Byte, types.Bool:
		return 1
	case types.Char, types.Short:
		return 2
	case types.Int, types.Float, types.Ref, types.RefArray:
		return 4
	case types.Long, types.Double:
		return 8
	default:
		return 4
	}
}

// NewArray allocates an array of the given component descriptor and
// length, zero-initialized.
func NewArray(classID uint32, componentDesc string, length int32) (Handle, error) {
	sz := int(length) * elemSize(componentDesc)
	ref, err := Heap.Alloc(8 + sz) // length word + payload (header added by Alloc)
	if err != nil {
		return Null, err
	}
	setHeader(Handle(ref), classID<<idShift|kindBit)
	binary.LittleEndian.PutUint32(Heap.Bytes(ref+arrayLenOffset, 4), uint32(length))
	return Handle(ref), nil
}

// ArrayLength returns an array object's length field.
func ArrayLength(h Handle) int32 {
	return int32(binary.LittleEndian.Uint32(Heap.Bytes(heap.Ref(h)+arrayLenOffset, 4)))
}

func elemOffset(h Handle, index int32, size int) heap.Ref {
	return heap.Ref(h) + arrayDataOffset + heap.Ref(int(index)*size)
}

func GetArrayByte(h Handle, i int32) int8 {
	return int8(Heap.Bytes(elemOffset(h, i, 1), 1)[0])
}
func SetArrayByte(h Handle, i int32, v int8) {
	Heap.Bytes(elemOffset(h, i, 1), 1)[0] = byte(v)
}

func GetArrayChar(h Handle, i int32) uint16 {
	return binary.LittleEndian.Uint16(Heap.Bytes(elemOffset(h, i, 2), 2))
}
func SetArrayChar(h Handle, i int32, v uint16) {
	binary.LittleEndian.PutUint16(Heap.Bytes(elemOffset(h, i, 2), 2), v)
}

func GetArrayInt(h Handle, i int32) int32 {
	return int32(binary.LittleEndian.Uint32(Heap.Bytes(elemOffset(h, i, 4), 4)))
}
func SetArrayInt(h Handle, i int32, v int32) {
	binary.LittleEndian.PutUint32(Heap.Bytes(elemOffset(h, i, 4), 4), uint32(v))
}

func GetArrayLong(h Handle, i int32) int64 {
	return int64(binary.LittleEndian.Uint64(Heap.Bytes(elemOffset(h, i, 8), 8)))
}
func SetArrayLong(h Handle, i int32, v int64) {
	binary.LittleEndian.PutUint64(Heap.Bytes(elemOffset(h, i, 8), 8), uint64(v))
}

func GetArrayRef(h Handle, i int32) Handle {
	return Handle(binary.LittleEndian.Uint32(Heap.Bytes(elemOffset(h, i, 4), 4)))
}
func SetArrayRef(h Handle, i int32, v Handle) {
	binary.LittleEndian.PutUint32(Heap.Bytes(elemOffset(h, i, 4), 4), uint32(v))
}

// NewStringObject allocates a java.lang.String-shaped instance backed by
// a freshly interned entry in stringPool, mirroring jelatine's compact
// string representation (a pool index instead of a duplicated char[]).
func NewStringObject(classID uint32, s string) (Handle, error) {
	h, err := NewInstance(classID, 1)
	if err != nil {
		return Null, err
	}
	idx := stringPool.GetStringIndex(s)
	SetFieldInt(h, 0, int32(idx))
	return h, nil
}

// GoString reconstructs the Go string behind a String object produced by
// NewStringObject.
func GoString(h Handle) string {
	idx := uint32(GetFieldInt(h, 0))
	if p := stringPool.GetStringPointer(idx); p != nil {
		return *p
	}
	return ""
}

// ToString renders a short diagnostic form of an object, matching
// jacobin's Object.ToString() debugging affordance (spec has no wire
// format requirement for this; it exists purely for trace/log output).
func ToString(h Handle) string {
	if h == Null {
		return "null"
	}
	var sb strings.Builder
	sb.WriteString("object@")
	sb.WriteString(uitoa(uint32(h)))
	sb.WriteString(" class=")
	sb.WriteString(uitoa(ClassID(h)))
	if IsArray(h) {
		sb.WriteString(" len=")
		sb.WriteString(uitoa(uint32(ArrayLength(h))))
	}
	return sb.String()
}

func uitoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
