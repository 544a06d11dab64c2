/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interpreter

import (
	"testing"

	"jelatine/classloader"
	"jelatine/frames"
	"jelatine/heap"
	"jelatine/object"
	"jelatine/thread"
	"jelatine/types"
)

func setupVM(t *testing.T) (*Machine, *thread.Thread, *frames.FrameStack) {
	t.Helper()
	h, err := heap.New(1<<20, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	object.Heap = h

	tm := thread.New()
	th := tm.Launch("test")
	fs := frames.NewStack(64)
	registerTestClass(t, "Test")
	return New(tm), th, fs
}

// registerTestClass installs a minimal linked Klass under name so
// Invoke's classloader.MethAreaFetch lookup (needed for exception-table
// resolution and CP-driven opcodes) succeeds for tests that build a
// bare classloader.Method by hand instead of going through Parse/Load.
func registerTestClass(t *testing.T, name string) *classloader.ClData {
	t.Helper()
	cd := &classloader.ClData{Name: name, MethodByID: map[string]*classloader.Method{}}
	classloader.MethAreaInsert(name, &classloader.Klass{Status: classloader.StatusLinked, Data: cd})
	return cd
}

func runMethod(t *testing.T, code []byte, maxStack, maxLocals int, args ...frames.Slot) frames.Slot {
	t.Helper()
	vm, th, fs := setupVM(t)
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: maxStack, MaxLocals: maxLocals, Code: code}
	res, err := vm.Invoke(th, fs, "Test", m, args)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	return res
}

func TestIntArithmeticReturn(t *testing.T) {
	// iconst_2, iconst_3, iadd, ireturn
	code := []byte{0x05, 0x06, 0x60, 0xAC}
	res := runMethod(t, code, 2, 0)
	if int32(res.Word) != 5 {
		t.Fatalf("result = %d, want 5", int32(res.Word))
	}
}

func TestDivideByZeroThrows(t *testing.T) {
	// iconst_1, iconst_0, idiv, ireturn
	code := []byte{0x04, 0x03, 0x6C, 0xAC}
	vm, th, fs := setupVM(t)
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 2, MaxLocals: 0, Code: code}
	_, err := vm.Invoke(th, fs, "Test", m, nil)
	if err == nil {
		t.Fatalf("expected ArithmeticException")
	}
}

func TestBranchTakenOnEquality(t *testing.T) {
	// iconst_0, ifeq +5 -> iconst_1 ireturn (skipped) ; target: iconst_2 ireturn
	code := []byte{
		0x03,       // iconst_0
		0x99, 0, 5, // ifeq +5 (from this opcode's pc)
		0x04, 0xAC, // iconst_1, ireturn (not taken)
		0x05, 0xAC, // iconst_2, ireturn (taken)
	}
	res := runMethod(t, code, 2, 0)
	if int32(res.Word) != 2 {
		t.Fatalf("result = %d, want 2 (branch should have been taken)", int32(res.Word))
	}
}

func TestLocalsLoadStore(t *testing.T) {
	// iload_0, iconst_1, iadd, istore_1, iload_1, ireturn
	code := []byte{0x1A, 0x04, 0x60, 0x3C, 0x1B, 0xAC}
	res := runMethod(t, code, 2, 2, frames.Slot{Word: uint64(uint32(int32(41)))})
	if int32(res.Word) != 42 {
		t.Fatalf("result = %d, want 42", int32(res.Word))
	}
}

func TestArrayStoreAndLoad(t *testing.T) {
	h, err := heap.New(1<<20, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	object.Heap = h

	arr, err := object.NewArray(0, "I", 4)
	if err != nil {
		t.Fatal(err)
	}

	vm, th, fs := setupVM(t)
	object.Heap = h // setupVM made its own heap; rebind to the one holding arr

	// aload_0, iconst_2, iconst_1, iastore, aload_0, iconst_2, iaload, ireturn
	code := []byte{
		0x2A,       // aload_0
		0x05,       // iconst_2
		0x04,       // iconst_1
		0x4F,       // iastore
		0x2A,       // aload_0
		0x05,       // iconst_2
		0x2E,       // iaload
		0xAC,       // ireturn
	}
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 3, MaxLocals: 1, Code: code}
	res, err := vm.Invoke(th, fs, "Test", m, []frames.Slot{{Ref: arr, Word: uint64(arr)}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int32(res.Word) != 1 {
		t.Fatalf("result = %d, want 1", int32(res.Word))
	}
}

func TestNullArrayLoadThrowsNPE(t *testing.T) {
	// aconst_null, iconst_0, iaload, ireturn
	code := []byte{0x01, 0x03, 0x2E, 0xAC}
	vm, th, fs := setupVM(t)
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 2, MaxLocals: 0, Code: code}
	_, err := vm.Invoke(th, fs, "Test", m, nil)
	if err == nil {
		t.Fatalf("expected NullPointerException")
	}
}

// fieldRefCP builds a constant pool resolving index 1 to a Fieldref
// naming className.fieldName:desc, the shape GETFIELD_PRELINK /
// PUTFIELD_PRELINK / GETSTATIC_PRELINK / PUTSTATIC_PRELINK expect.
func fieldRefCP(className, fieldName, desc string) classloader.CPool {
	return classloader.CPool{
		Entries: []classloader.CpEntry{
			{},                                              // 0: unused
			{Tag: classloader.CONSTANT_Fieldref, Slot: 0},    // 1: the fieldref
			{Tag: classloader.CONSTANT_Class, Slot: 0},       // 2: the owning class
			{Tag: classloader.CONSTANT_NameAndType, Slot: 0}, // 3: name+desc
			{Tag: classloader.CONSTANT_Utf8, Slot: 0},        // 4: className text
			{Tag: classloader.CONSTANT_Utf8, Slot: 1},        // 5: fieldName text
			{Tag: classloader.CONSTANT_Utf8, Slot: 2},        // 6: desc text
		},
		Utf8:         []string{className, fieldName, desc},
		ClassRefs:    []uint16{4},
		FieldRefs:    []classloader.MemberRefEntry{{ClassIndex: 2, NameAndTypeIdx: 3}},
		NameAndTypes: []classloader.NameAndTypeEntry{{NameIndex: 5, DescIndex: 6}},
	}
}

func methodRefCP(className, methodName, desc string) classloader.CPool {
	return classloader.CPool{
		Entries: []classloader.CpEntry{
			{},                                                // 0: unused
			{Tag: classloader.CONSTANT_Methodref, Slot: 0},     // 1: the methodref
			{Tag: classloader.CONSTANT_Class, Slot: 0},         // 2: the owning class
			{Tag: classloader.CONSTANT_NameAndType, Slot: 0},   // 3: name+desc
			{Tag: classloader.CONSTANT_Utf8, Slot: 0},          // 4: className text
			{Tag: classloader.CONSTANT_Utf8, Slot: 1},          // 5: methodName text
			{Tag: classloader.CONSTANT_Utf8, Slot: 2},          // 6: desc text
		},
		Utf8:         []string{className, methodName, desc},
		ClassRefs:    []uint16{4},
		MethodRefs:   []classloader.MemberRefEntry{{ClassIndex: 2, NameAndTypeIdx: 3}},
		NameAndTypes: []classloader.NameAndTypeEntry{{NameIndex: 5, DescIndex: 6}},
	}
}

func TestInstanceGetPutField(t *testing.T) {
	vm, th, fs := setupVM(t)
	cd := registerTestClass(t, "Test")
	cd.FieldIndex = map[classloader.FieldKey]int{{Name: "x", Desc: "I"}: 0}
	cd.CP = fieldRefCP("Test", "x", "I")

	recv, err := object.NewInstance(0, 1)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}

	// aload_0, iconst_3 (0x06), putfield #1, aload_0, getfield #1, ireturn
	code := []byte{
		0x2A,             // aload_0
		0x06,             // iconst_3
		0xB5, 0, 1,       // putfield #1 (PRELINK opcode values == JVM opcode values here)
		0x2A,             // aload_0
		0xB4, 0, 1,       // getfield #1
		0xAC,             // ireturn
	}
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 3, MaxLocals: 1, Code: code}
	res, err := vm.Invoke(th, fs, "Test", m, []frames.Slot{{Ref: recv}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int32(res.Word) != 3 {
		t.Fatalf("result = %d, want 3", int32(res.Word))
	}
}

func TestStaticGetPutField(t *testing.T) {
	vm, th, fs := setupVM(t)
	cd := registerTestClass(t, "Test")
	cd.StaticFields = map[classloader.FieldKey]int{{Name: "y", Desc: "I"}: 0}
	cd.StaticSlots = make([]classloader.StaticSlot, 1)
	cd.ClInit = types.ClInitRun // skip the <clinit> lookup/run path
	cd.CP = fieldRefCP("Test", "y", "I")

	// iconst_5 (0x08), putstatic #1, getstatic #1, ireturn
	code := []byte{
		0x08,       // iconst_5
		0xB3, 0, 1, // putstatic #1
		0xB2, 0, 1, // getstatic #1
		0xAC, // ireturn
	}
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 2, MaxLocals: 0, Code: code}
	res, err := vm.Invoke(th, fs, "Test", m, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int32(res.Word) != 5 {
		t.Fatalf("result = %d, want 5", int32(res.Word))
	}
}

func TestInvokeStaticCallsOtherMethod(t *testing.T) {
	vm, th, fs := setupVM(t)
	cd := registerTestClass(t, "Test")
	cd.ClInit = types.ClInitRun
	cd.CP = methodRefCP("Test", "helper", "()I")

	// helper: iconst_4 (0x07), ireturn
	helper := &classloader.Method{Name: "helper", Descriptor: "()I", MaxStack: 1, MaxLocals: 0, Code: []byte{0x07, 0xAC}}
	cd.MethodByID["helper()I"] = helper

	// invokestatic_prelink #1, ireturn (translated opcode 236, not the raw
	// invokestatic bytecode 184 -- these tests build Method.Code by hand,
	// bypassing the translator pass that would normally do this rewrite)
	code := []byte{0xEC, 0, 1, 0xAC}
	m := &classloader.Method{Name: "m", Descriptor: "()I", MaxStack: 1, MaxLocals: 0, Code: code}
	res, err := vm.Invoke(th, fs, "Test", m, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int32(res.Word) != 4 {
		t.Fatalf("result = %d, want 4", int32(res.Word))
	}
}

func TestCaughtExceptionResumesAtHandler(t *testing.T) {
	vm, th, fs := setupVM(t)

	// iconst_1, iconst_0, idiv (throws ArithmeticException here) ;
	// handler: pop the thrown value, iconst_2, ireturn
	code := []byte{
		0x04,       // 0: iconst_1
		0x03,       // 1: iconst_0
		0x6C,       // 2: idiv -- throws at pc 2
		0xAC,       // 3: ireturn (unreachable, value would be garbage)
		0x57,       // 4: pop (handler start: discard pushed exception ref)
		0x05,       // 5: iconst_2
		0xAC,       // 6: ireturn
	}
	m := &classloader.Method{
		Name: "m", Descriptor: "()I", MaxStack: 2, MaxLocals: 0, Code: code,
		ExceptionTable: []classloader.ExceptionEntry{
			{StartPC: 0, EndPC: 3, HandlerPC: 4, CatchType: 0}, // catch-all
		},
	}
	res, err := vm.Invoke(th, fs, "Test", m, nil)
	if err != nil {
		t.Fatalf("Invoke: %v (expected the handler to swallow the exception)", err)
	}
	if int32(res.Word) != 2 {
		t.Fatalf("result = %d, want 2 (handler value)", int32(res.Word))
	}
}
