/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"jelatine/frames"
	"jelatine/object"
)

// Load_Lang_Object registers java.lang.Object's native methods -- the
// root of every dispatch table, so these run underneath every other
// class's own overrides (spec §4.3's vtable construction always starts
// from Object's slots when a class declares no superclass).
func Load_Lang_Object() {
	MethodSignatures["java/lang/Object.registerNatives()V"] =
		GMeth{ParamSlots: 0, GFunction: justReturn}

	MethodSignatures["java/lang/Object.hashCode()I"] =
		GMeth{ParamSlots: 1, GFunction: objectHashCode}

	MethodSignatures["java/lang/Object.getClass()Ljava/lang/Class;"] =
		GMeth{ParamSlots: 1, GFunction: objectGetClass}
}

// "java/lang/Object.hashCode()I" -- identity hash, the object's own
// heap offset. jelatine's objects never move once allocated (no
// compacting collector, spec §4.2), so the offset is stable for the
// object's lifetime, exactly the contract Object.hashCode() promises.
func objectHashCode(params []frames.Slot) (frames.Slot, error) {
	recv := params[0].Ref
	return frames.Slot{Word: uint64(uint32(recv))}, nil
}

// "java/lang/Object.getClass()Ljava/lang/Class;" -- the class id is
// already sitting in the object header; no Class mirror allocation is
// needed beyond what LDC_PRELINK's class-literal path already does, but
// getClass() is called far more often, so it's a native rather than
// bytecode that walks through a constant pool index.
func objectGetClass(params []frames.Slot) (frames.Slot, error) {
	recv := params[0].Ref
	if recv == object.Null {
		return frames.Slot{}, throwf("java/lang/NullPointerException", "getClass() on null")
	}
	return frames.Slot{Word: uint64(object.ClassID(recv))}, nil
}
