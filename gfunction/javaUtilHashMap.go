/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"jelatine/frames"
	"jelatine/object"
	"jelatine/types"
)

// Load_Util_HashMap registers java.util.HashMap's one native -- the
// supplemental hash spreader HashMap.hash(Object) applies to every
// key's hashCode() before bucketing it, the same role it plays in
// jacobin's teacher file (there implemented against *object.Object's
// FieldTable; here against a key's own Object.hashCode()/String.hashCode
// convention so HashMap doesn't need to special-case key types itself).
func Load_Util_HashMap() {
	MethodSignatures["java/util/HashMap.hash(Ljava/lang/Object;)I"] =
		GMeth{ParamSlots: 1, GFunction: hashMapHash}
}

// hashMapHash mirrors java.util.HashMap's own static hash() spreader:
// h ^ (h >>> 16) applied to the key's hashCode(), null mapping to 0 the
// way HashMap treats a null key's bucket.
func hashMapHash(params []frames.Slot) (frames.Slot, error) {
	key := params[0].Ref
	if key == object.Null {
		return frames.Slot{}, nil
	}

	var h int32
	if object.ClassID(key) == types.StringClassID {
		slot, err := stringHashCode([]frames.Slot{{Ref: key}})
		if err != nil {
			return frames.Slot{}, err
		}
		h = int32(slot.Word)
	} else {
		slot, err := objectHashCode([]frames.Slot{{Ref: key}})
		if err != nil {
			return frames.Slot{}, err
		}
		h = int32(slot.Word)
	}

	spread := uint32(h) ^ (uint32(h) >> 16)
	return frames.Slot{Word: uint64(spread)}, nil
}
