/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"encoding/binary"
	"fmt"
)

// reader is a small cursor over a class file's raw bytes, the Go
// equivalent of loader.c's running u1_data/u2_data/u4_data read
// functions over its buffered input stream.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) u1() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("%w: truncated u1 at offset %d", ErrClassFormat, r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u2() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, fmt.Errorf("%w: truncated u2 at offset %d", ErrClassFormat, r.pos)
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("%w: truncated u4 at offset %d", ErrClassFormat, r.pos)
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated %d-byte field at offset %d", ErrClassFormat, n, r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ErrClassFormat is returned for any structural defect in a class file
// (spec §4.3's ClassFormatError path); it is translated to a Java
// ClassFormatError by the caller, never returned directly to Java code.
var ErrClassFormat = classFormatErr("")

type classFormatErr string

func (e classFormatErr) Error() string { return "classloader: malformed class file" }

// Parse reads a complete class file and produces an unlinked ClData.
// Grounded on loader.c's load_class: magic/version check, constant pool,
// access flags, this/super, interfaces, fields, methods, attributes, in
// that fixed order (JVMS §4.1's ClassFile structure).
func Parse(raw []byte) (*ClData, error) {
	r := &reader{buf: raw}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != classMagic {
		return nil, fmt.Errorf("%w: missing 0xCAFEBABE magic", ErrClassFormat)
	}

	if _, err := r.u2(); err != nil { // minor version: accepted, not enforced
		return nil, err
	}
	major, err := r.u2()
	if err != nil {
		return nil, err
	}
	if major < minMajorVersion || major > maxMajorVersion {
		return nil, fmt.Errorf("%w: unsupported major version %d", ErrClassFormat, major)
	}

	cp, err := parseConstantPool(r)
	if err != nil {
		return nil, err
	}

	accessBits, err := r.u2()
	if err != nil {
		return nil, err
	}
	access := decodeAccessFlags(accessBits)

	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}

	cd := &ClData{
		Name:         cp.ClassNameAt(thisIdx),
		CP:           *cp,
		Access:       access,
		MajorVersion: major,
		MethodByID:   map[string]*Method{},
	}
	if superIdx != 0 {
		cd.Superclass = cp.ClassNameAt(superIdx)
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < ifaceCount; i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		cd.Interfaces = append(cd.Interfaces, cp.ClassNameAt(idx))
	}

	if cd.Fields, err = parseFields(r, cp); err != nil {
		return nil, err
	}
	if cd.Methods, err = parseMethods(r, cp); err != nil {
		return nil, err
	}
	for _, m := range cd.Methods {
		cd.MethodByID[m.Name+m.Descriptor] = m
	}

	// Class attributes (SourceFile is the only one spec §4.3 names as
	// observable); everything else is skipped by length, matching
	// loader.c's "unrecognized attributes are skipped" tolerance.
	attrCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < attrCount; i++ {
		name, content, err := readAttribute(r, cp)
		if err != nil {
			return nil, err
		}
		if name == "SourceFile" && len(content) == 2 {
			cd.SourceFile = cp.Utf8At(binary.BigEndian.Uint16(content))
		}
	}

	return cd, nil
}

func decodeAccessFlags(bits uint16) AccessFlags {
	return AccessFlags{
		Public:     bits&0x0001 != 0,
		Final:      bits&0x0010 != 0,
		Super:      bits&0x0020 != 0,
		Interface:  bits&0x0200 != 0,
		Abstract:   bits&0x0400 != 0,
		Synthetic:  bits&0x1000 != 0,
		Annotation: bits&0x2000 != 0,
		Enum:       bits&0x4000 != 0,
	}
}

func readAttribute(r *reader, cp *CPool) (name string, content []byte, err error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	content, err = r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return cp.Utf8At(nameIdx), content, nil
}

func parseFields(r *reader, cp *CPool) ([]*Field, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]*Field, 0, count)
	for i := uint16(0); i < count; i++ {
		accessBits, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		f := &Field{
			Name:        cp.Utf8At(nameIdx),
			Descriptor:  cp.Utf8At(descIdx),
			AccessFlags: int(accessBits),
			IsStatic:    accessBits&0x0008 != 0,
		}
		attrCount, err := r.u2()
		if err != nil {
			return nil, err
		}
		for j := uint16(0); j < attrCount; j++ {
			if _, _, err := readAttribute(r, cp); err != nil {
				return nil, err
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseMethods(r *reader, cp *CPool) ([]*Method, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	methods := make([]*Method, 0, count)
	for i := uint16(0); i < count; i++ {
		accessBits, err := r.u2()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		m := &Method{
			Name:        cp.Utf8At(nameIdx),
			Descriptor:  cp.Utf8At(descIdx),
			AccessFlags: int(accessBits),
			IsStatic:    accessBits&0x0008 != 0,
			IsNative:    accessBits&0x0100 != 0,
			IsAbstract:  accessBits&0x0400 != 0,
		}

		attrCount, err := r.u2()
		if err != nil {
			return nil, err
		}
		for j := uint16(0); j < attrCount; j++ {
			name, content, err := readAttribute(r, cp)
			if err != nil {
				return nil, err
			}
			if name == "Code" {
				if err := parseCodeAttribute(m, content, cp); err != nil {
					return nil, err
				}
			}
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// parseCodeAttribute decodes a method's Code attribute body (JVMS
// §4.7.3): max_stack, max_locals, the raw bytecode, and the exception
// table. Nested code attributes (LineNumberTable etc.) are skipped.
func parseCodeAttribute(m *Method, body []byte, cp *CPool) error {
	r := &reader{buf: body}

	maxStack, err := r.u2()
	if err != nil {
		return err
	}
	maxLocals, err := r.u2()
	if err != nil {
		return err
	}
	codeLen, err := r.u4()
	if err != nil {
		return err
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return err
	}

	m.MaxStack = int(maxStack)
	m.MaxLocals = int(maxLocals)
	m.Code = append([]byte(nil), code...) // private copy; the translator rewrites in place

	excCount, err := r.u2()
	if err != nil {
		return err
	}
	for i := uint16(0); i < excCount; i++ {
		start, err := r.u2()
		if err != nil {
			return err
		}
		end, err := r.u2()
		if err != nil {
			return err
		}
		handler, err := r.u2()
		if err != nil {
			return err
		}
		catchType, err := r.u2()
		if err != nil {
			return err
		}
		m.ExceptionTable = append(m.ExceptionTable, ExceptionEntry{
			StartPC: int(start), EndPC: int(end), HandlerPC: int(handler), CatchType: catchType,
		})
	}

	attrCount, err := r.u2()
	if err != nil {
		return err
	}
	for i := uint16(0); i < attrCount; i++ {
		if _, _, err := readAttribute(r, cp); err != nil {
			return err
		}
	}
	return nil
}
