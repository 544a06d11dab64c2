/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package translator

import (
	"testing"

	"jelatine/opcodes"
)

func TestGetstaticRewrittenToPrelink(t *testing.T) {
	// getstatic #1, return
	code := []byte{0xb2, 0x00, 0x01, 0xb1}
	m := &Method{Code: code, MaxStack: 1, MaxLocals: 0}

	starts, err := Translate(m)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if opcodes.Opcode(m.Code[0]) != opcodes.GETSTATIC_PRELINK {
		t.Errorf("code[0] = %v, want GETSTATIC_PRELINK", opcodes.Opcode(m.Code[0]))
	}
	if !starts[0] || !starts[3] || starts[1] || starts[2] {
		t.Errorf("instruction starts = %v, want {0,3}", starts)
	}
}

func TestJsrRejected(t *testing.T) {
	code := []byte{0xa8, 0x00, 0x03, 0xb1}
	m := &Method{Code: code}
	if _, err := Translate(m); err == nil {
		t.Fatalf("expected jsr to be rejected")
	}
}

func TestBranchTargetValidated(t *testing.T) {
	// goto +100 from pc 0, way out of bounds for a 3-byte method
	code := []byte{0xa7, 0x00, 100}
	m := &Method{Code: code}
	if _, err := Translate(m); err == nil {
		t.Fatalf("expected out-of-range goto target to be rejected")
	}
}

func TestSynchronizedMethodRewritesReturns(t *testing.T) {
	code := []byte{0xb1} // return
	m := &Method{Code: code, IsSynchronized: true, IsStatic: false}
	if _, err := Translate(m); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if opcodes.Opcode(m.Code[0]) != opcodes.RETURN_MONITOREXIT {
		t.Errorf("code[0] = %v, want RETURN_MONITOREXIT", opcodes.Opcode(m.Code[0]))
	}
	entry, ok := EntryOpcode(m)
	if !ok || entry != opcodes.MONITORENTER_SPECIAL {
		t.Errorf("EntryOpcode = %v,%v, want MONITORENTER_SPECIAL,true", entry, ok)
	}
}

func TestTableswitchSized(t *testing.T) {
	// tableswitch at pc=0: pad 3, default=0, low=0, high=1, two 4-byte offsets
	code := make([]byte, 1+3+12+8)
	code[0] = 0xaa
	// default offset (bytes 4..8 of base) = not checked here
	base := 4
	putBE32(code, base+4, 0)  // low
	putBE32(code, base+8, 1)  // high
	m := &Method{Code: code}
	if _, err := Translate(m); err != nil {
		t.Fatalf("Translate: %v", err)
	}
}

func putBE32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}
