/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"time"

	"jelatine/excNames"
	"jelatine/frames"
	"jelatine/object"
)

// Load_Lang_System registers java.lang.System's natives -- arraycopy,
// the clocks, and identityHashCode, the small set every CLDC 1.1
// program ends up calling even when it never touches java.io or
// java.util directly. Not part of jacobin's retrieved gfunction set (the
// teacher never ported System), grounded instead on the same
// MethodSignatures/GMeth registration shape the other Load_* functions
// in this package use.
func Load_Lang_System() {
	MethodSignatures["java/lang/System.registerNatives()V"] =
		GMeth{ParamSlots: 0, GFunction: justReturn}

	MethodSignatures["java/lang/System.arraycopy(Ljava/lang/Object;ILjava/lang/Object;II)V"] =
		GMeth{ParamSlots: 5, GFunction: systemArraycopy}

	MethodSignatures["java/lang/System.currentTimeMillis()J"] =
		GMeth{ParamSlots: 0, GFunction: systemCurrentTimeMillis}

	MethodSignatures["java/lang/System.identityHashCode(Ljava/lang/Object;)I"] =
		GMeth{ParamSlots: 1, GFunction: objectHashCode}
}

// systemArraycopy moves length elements from src[srcPos:] to
// dest[destPos:]. Every element is moved as a raw 4-byte word (via
// GetArrayInt/SetArrayInt), which is bit-correct for int[], float[], and
// reference arrays (object.Handle is itself a 4-byte offset) but not for
// long[]/double[] (8 bytes) or byte[]/short[] (narrower) -- this VM's
// array header carries no element-width tag to dispatch on generically
// (spec's array layout stores only a length word, not a component
// descriptor), so those widths are out of scope for this native;
// byte[]-to-byte[] copies should go through an explicit loop in Java
// until arraycopy grows a width-aware path.
func systemArraycopy(params []frames.Slot) (frames.Slot, error) {
	src, srcPos := params[0].Ref, int32(params[1].Word)
	dst, dstPos := params[2].Ref, int32(params[3].Word)
	length := int32(params[4].Word)

	if src == object.Null || dst == object.Null {
		return frames.Slot{}, throwf(excNames.NullPointerException, "arraycopy with null array")
	}
	if srcPos < 0 || dstPos < 0 || length < 0 ||
		srcPos+length > object.ArrayLength(src) || dstPos+length > object.ArrayLength(dst) {
		return frames.Slot{}, throwf("java/lang/ArrayIndexOutOfBoundsException", "arraycopy bounds")
	}

	if src == dst && dstPos > srcPos {
		for i := length - 1; i >= 0; i-- {
			object.SetArrayInt(dst, dstPos+i, object.GetArrayInt(src, srcPos+i))
		}
		return frames.Slot{}, nil
	}
	for i := int32(0); i < length; i++ {
		object.SetArrayInt(dst, dstPos+i, object.GetArrayInt(src, srcPos+i))
	}
	return frames.Slot{}, nil
}

func systemCurrentTimeMillis(params []frames.Slot) (frames.Slot, error) {
	return frames.Slot{Word: uint64(time.Now().UnixMilli())}, nil
}
