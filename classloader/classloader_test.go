/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"jelatine/gc"
	"jelatine/heap"
	"jelatine/object"
)

// classBuilder assembles a minimal, well-formed class file byte by byte;
// real class files are produced by javac, so tests here stand in for it.
type classBuilder struct {
	buf bytes.Buffer
}

func newClassBuilder() *classBuilder {
	return &classBuilder{}
}

func (b *classBuilder) u1(v byte)    { b.buf.WriteByte(v) }
func (b *classBuilder) u2(v uint16)  { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *classBuilder) u4(v uint32)  { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *classBuilder) raw(p []byte) { b.buf.Write(p) }

func TestParseMinimalClass(t *testing.T) {
	raw := buildMinimalClass(t, "com/example/Widget", "java/lang/Object")

	cd, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cd.Name != "com/example/Widget" {
		t.Fatalf("Name = %q", cd.Name)
	}
	if cd.Superclass != "java/lang/Object" {
		t.Fatalf("Superclass = %q", cd.Superclass)
	}
	if len(cd.Fields) != 1 || cd.Fields[0].Name != "count" || cd.Fields[0].Descriptor != "I" {
		t.Fatalf("Fields = %+v", cd.Fields)
	}
	if len(cd.Methods) != 1 || cd.Methods[0].Name != "get" {
		t.Fatalf("Methods = %+v", cd.Methods)
	}
	if len(cd.Methods[0].Code) == 0 {
		t.Fatalf("expected method Code to be populated")
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildMinimalClass(t, "com/example/Widget", "java/lang/Object")
	raw[0] = 0x00
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected magic mismatch error")
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	raw := buildMinimalClass(t, "com/example/Widget", "java/lang/Object")
	binary.BigEndian.PutUint16(raw[6:8], 60)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected version gate error")
	}
}

func TestLinkAssignsClassIDAndFieldWords(t *testing.T) {
	h, err := heap.New(1<<20, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	object.Heap = h

	resetMethodAreaForTest()

	objRaw := buildMinimalClass(t, "java/lang/Object", "")
	objCd, err := Parse(objRaw)
	if err != nil {
		t.Fatal(err)
	}
	objK := &Klass{Status: StatusParsed, Data: objCd}
	MethAreaInsert("java/lang/Object", objK)
	if err := link(objK); err != nil {
		t.Fatalf("link(Object): %v", err)
	}

	widgetRaw := buildMinimalClass(t, "com/example/Widget", "java/lang/Object")
	widgetCd, err := Parse(widgetRaw)
	if err != nil {
		t.Fatal(err)
	}
	wk := &Klass{Status: StatusParsed, Data: widgetCd}
	MethAreaInsert("com/example/Widget", wk)
	if err := link(wk); err != nil {
		t.Fatalf("link(Widget): %v", err)
	}

	if widgetCd.ClassID == objCd.ClassID {
		t.Fatalf("expected distinct class ids")
	}
	if widgetCd.FieldWords != objCd.FieldWords+1 {
		t.Fatalf("FieldWords = %d, want %d", widgetCd.FieldWords, objCd.FieldWords+1)
	}
	if _, ok := gc.ShapeOf(widgetCd.ClassID); !ok {
		t.Fatalf("expected a registered shape for the linked class")
	}
	if wk.Status != StatusLinked {
		t.Fatalf("Status = %q, want linked", wk.Status)
	}
}

// resetMethodAreaForTest clears package state between subtests; classes
// are keyed by name only, so reusing names across tests would otherwise
// make MethAreaFetch return stale Klass values from an earlier subtest.
func resetMethodAreaForTest() {
	methAreaLock.Lock()
	defer methAreaLock.Unlock()
	methArea = map[string]*Klass{}
}

// buildMinimalClass hand-assembles a class file declaring one int field
// ("count") and one method ("get") with a single-instruction body
// (iconst_0; ireturn), enough to exercise every section Parse walks.
func buildMinimalClass(t *testing.T, thisName, superName string) []byte {
	t.Helper()
	b := newClassBuilder()

	b.u4(classMagic)
	b.u2(0)  // minor
	b.u2(49) // major, within range

	var utf8s []string
	intern := func(s string) uint16 {
		for i, e := range utf8s {
			if e == s {
				return uint16(i + 1) // placeholder, fixed up below
			}
		}
		utf8s = append(utf8s, s)
		return uint16(len(utf8s))
	}

	thisNameIdx := intern(thisName)
	var superNameIdx uint16
	if superName != "" {
		superNameIdx = intern(superName)
	}
	fieldNameIdx := intern("count")
	fieldDescIdx := intern("I")
	methodNameIdx := intern("get")
	methodDescIdx := intern("()I")
	codeAttrNameIdx := intern("Code")

	// Constant pool layout:
	//   1..N      CONSTANT_Utf8 for each interned string, in intern order
	//   N+1       CONSTANT_Class -> this
	//   N+2       CONSTANT_Class -> super (only if superName != "")
	thisClassCPIdx := uint16(len(utf8s) + 1)
	var superClassCPIdx uint16
	count := thisClassCPIdx + 1
	if superName != "" {
		superClassCPIdx = count
		count++
	}

	b.u2(count) // constant_pool_count = count(entries)+1, entry 0 unused
	for _, s := range utf8s {
		b.u1(CONSTANT_Utf8)
		b.u2(uint16(len(s)))
		b.raw([]byte(s))
	}
	b.u1(CONSTANT_Class)
	b.u2(thisNameIdx)
	if superName != "" {
		b.u1(CONSTANT_Class)
		b.u2(superNameIdx)
	}

	b.u2(0x0021) // access_flags: ACC_PUBLIC|ACC_SUPER
	b.u2(thisClassCPIdx)
	b.u2(superClassCPIdx)
	b.u2(0) // interfaces_count

	b.u2(1) // fields_count
	b.u2(0) // access_flags
	b.u2(fieldNameIdx)
	b.u2(fieldDescIdx)
	b.u2(0) // attributes_count

	b.u2(1) // methods_count
	b.u2(0x0001) // ACC_PUBLIC
	b.u2(methodNameIdx)
	b.u2(methodDescIdx)
	b.u2(1) // attributes_count (Code)

	code := []byte{0x03, 0xAC} // iconst_0, ireturn
	var codeBody bytes.Buffer
	binary.Write(&codeBody, binary.BigEndian, uint16(1)) // max_stack
	binary.Write(&codeBody, binary.BigEndian, uint16(0)) // max_locals
	binary.Write(&codeBody, binary.BigEndian, uint32(len(code)))
	codeBody.Write(code)
	binary.Write(&codeBody, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&codeBody, binary.BigEndian, uint16(0)) // attributes_count

	b.u2(codeAttrNameIdx)
	b.u4(uint32(codeBody.Len()))
	b.raw(codeBody.Bytes())

	b.u2(0) // class attributes_count

	return b.buf.Bytes()
}
