/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"fmt"
	"math"

	"jelatine/stringPool"
)

// parseConstantPool reads the constant_pool_count and every following
// entry, dispatching on tag exactly the way kittylyst-jacobin's
// validateConstantPool switch does, but building CPool's split-by-kind
// tables as it goes instead of validating a separately-parsed pool
// afterward -- there is only one pass over the bytes.
//
// CONSTANT_Long and CONSTANT_Double entries consume two constant-pool
// indices (JVMS §4.4.5's documented oddity, preserved here via a dummy
// placeholder entry the way jelatine's own cp_parse does).
func parseConstantPool(r *reader) (*CPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}

	cp := &CPool{
		Entries: make([]CpEntry, count), // index 0 unused, matches JVMS 1-based CP indexing
	}

	for i := uint16(1); i < count; i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}

		switch uint16(tag) {
		case CONSTANT_Utf8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			s, err := decodeModifiedUTF8(raw)
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.Utf8))
			cp.Utf8 = append(cp.Utf8, s)
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Utf8, Slot: slot}
			stringPool.GetStringIndex(s) // every class name/descriptor/literal is interned eagerly

		case CONSTANT_Integer:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.IntConsts))
			cp.IntConsts = append(cp.IntConsts, int32(v))
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Integer, Slot: slot}

		case CONSTANT_Float:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.FloatConsts))
			cp.FloatConsts = append(cp.FloatConsts, math.Float32frombits(v))
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Float, Slot: slot}

		case CONSTANT_Long:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.LongConsts))
			cp.LongConsts = append(cp.LongConsts, int64(hi)<<32|int64(lo))
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Long, Slot: slot}
			i++ // the next index is an unusable placeholder (JVMS §4.4.5)

		case CONSTANT_Double:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.DoubleConsts))
			cp.DoubleConsts = append(cp.DoubleConsts, math.Float64frombits(uint64(hi)<<32|uint64(lo)))
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Double, Slot: slot}
			i++

		case CONSTANT_Class:
			nameIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.ClassRefs))
			cp.ClassRefs = append(cp.ClassRefs, nameIdx)
			cp.Entries[i] = CpEntry{Tag: CONSTANT_Class, Slot: slot}

		case CONSTANT_String:
			strIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.StringRefs))
			cp.StringRefs = append(cp.StringRefs, strIdx)
			cp.Entries[i] = CpEntry{Tag: CONSTANT_String, Slot: slot}

		case CONSTANT_Fieldref, CONSTANT_Methodref, CONSTANT_InterfaceMethodref:
			classIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			ntIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry := MemberRefEntry{ClassIndex: classIdx, NameAndTypeIdx: ntIdx}
			var slot uint16
			switch uint16(tag) {
			case CONSTANT_Fieldref:
				slot = uint16(len(cp.FieldRefs))
				cp.FieldRefs = append(cp.FieldRefs, entry)
			case CONSTANT_Methodref:
				slot = uint16(len(cp.MethodRefs))
				cp.MethodRefs = append(cp.MethodRefs, entry)
			default:
				slot = uint16(len(cp.InterfaceRefs))
				cp.InterfaceRefs = append(cp.InterfaceRefs, entry)
			}
			cp.Entries[i] = CpEntry{Tag: uint16(tag), Slot: slot}

		case CONSTANT_NameAndType:
			nameIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			descIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.NameAndTypes))
			cp.NameAndTypes = append(cp.NameAndTypes, NameAndTypeEntry{NameIndex: nameIdx, DescIndex: descIdx})
			cp.Entries[i] = CpEntry{Tag: CONSTANT_NameAndType, Slot: slot}

		case CONSTANT_MethodHandle:
			refKind, err := r.u1()
			if err != nil {
				return nil, err
			}
			refIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.MethodHandles))
			cp.MethodHandles = append(cp.MethodHandles, MethodHandleEntry{RefKind: refKind, RefIndex: refIdx})
			cp.Entries[i] = CpEntry{Tag: CONSTANT_MethodHandle, Slot: slot}

		case CONSTANT_MethodType:
			if _, err := r.u2(); err != nil { // descriptor index, unused: no MethodType mirror objects in this VM
				return nil, err
			}
			cp.Entries[i] = CpEntry{Tag: CONSTANT_MethodType, Slot: 0}

		case CONSTANT_InvokeDynamic:
			bsIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			ntIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			slot := uint16(len(cp.InvokeDynamics))
			cp.InvokeDynamics = append(cp.InvokeDynamics, InvokeDynamicEntry{BootstrapMethodAttrIndex: bsIdx, NameAndTypeIndex: ntIdx})
			cp.Entries[i] = CpEntry{Tag: CONSTANT_InvokeDynamic, Slot: slot}

		default:
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at entry %d", ErrClassFormat, tag, i)
		}
	}

	return cp, nil
}
