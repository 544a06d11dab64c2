/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package object

import (
	"testing"

	"jelatine/heap"
	"jelatine/types"
)

func setupHeap(t *testing.T) {
	t.Helper()
	h, err := heap.New(1<<20, 1<<16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	Heap = h
	t.Cleanup(func() { Heap.Close() })
}

func TestNewInstanceFields(t *testing.T) {
	setupHeap(t)

	h, err := NewInstance(types.StringClassID, 3)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if ClassID(h) != types.StringClassID {
		t.Errorf("ClassID = %d, want %d", ClassID(h), types.StringClassID)
	}
	if IsArray(h) {
		t.Errorf("IsArray = true for a scalar instance")
	}

	SetFieldInt(h, 0, 42)
	SetFieldLong(h, 1, 1<<40)
	SetFieldBool(h, 2, true)

	if got := GetFieldInt(h, 0); got != 42 {
		t.Errorf("field 0 = %d, want 42", got)
	}
	if got := GetFieldLong(h, 1); got != 1<<40 {
		t.Errorf("field 1 = %d, want %d", got, int64(1)<<40)
	}
	if !GetFieldBool(h, 2) {
		t.Errorf("field 2 = false, want true")
	}
}

func TestNewArrayIntRoundTrip(t *testing.T) {
	setupHeap(t)

	h, err := NewArray(types.FirstDynamicClassID, types.Int, 5)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	if !IsArray(h) {
		t.Errorf("IsArray = false for an array object")
	}
	if got := ArrayLength(h); got != 5 {
		t.Errorf("ArrayLength = %d, want 5", got)
	}
	for i := int32(0); i < 5; i++ {
		SetArrayInt(h, i, i*i)
	}
	for i := int32(0); i < 5; i++ {
		if got := GetArrayInt(h, i); got != i*i {
			t.Errorf("element %d = %d, want %d", i, got, i*i)
		}
	}
}

func TestMarkBitIndependentOfClassID(t *testing.T) {
	setupHeap(t)

	h, err := NewInstance(types.ThrowableClassID, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if Marked(h) {
		t.Errorf("freshly allocated object should start unmarked")
	}
	SetMarked(h)
	if !Marked(h) || ClassID(h) != types.ThrowableClassID {
		t.Errorf("marking must not disturb the class id")
	}
	ClearMarked(h)
	if Marked(h) {
		t.Errorf("ClearMarked left the mark bit set")
	}
}

func TestStringObjectRoundTrip(t *testing.T) {
	setupHeap(t)

	h, err := NewStringObject(types.StringClassID, "hello, jelatine")
	if err != nil {
		t.Fatalf("NewStringObject: %v", err)
	}
	if got := GoString(h); got != "hello, jelatine" {
		t.Errorf("GoString = %q, want %q", got, "hello, jelatine")
	}
}

func TestByteArrayRoundTrip(t *testing.T) {
	setupHeap(t)

	h, err := JavaByteArrayFromGoString(types.FirstDynamicClassID, "abc")
	if err != nil {
		t.Fatalf("JavaByteArrayFromGoString: %v", err)
	}
	if got := GoStringFromJavaByteArray(h); got != "abc" {
		t.Errorf("GoStringFromJavaByteArray = %q, want %q", got, "abc")
	}

	h2, _ := JavaByteArrayFromGoString(types.FirstDynamicClassID, "abc")
	if !JavaByteArrayEquals(h, h2) {
		t.Errorf("identical byte arrays compared unequal")
	}
	h3, _ := JavaByteArrayFromGoString(types.FirstDynamicClassID, "ABC")
	if JavaByteArrayEquals(h, h3) {
		t.Errorf("case-differing byte arrays compared equal under JavaByteArrayEquals")
	}
	if !JavaByteArrayEqualsIgnoreCase(h, h3) {
		t.Errorf("case-differing byte arrays compared unequal under JavaByteArrayEqualsIgnoreCase")
	}
}

func TestToStringNull(t *testing.T) {
	if got := ToString(Null); got != "null" {
		t.Errorf("ToString(Null) = %q, want %q", got, "null")
	}
}
