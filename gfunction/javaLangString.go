/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"jelatine/excNames"
	"jelatine/frames"
	"jelatine/object"
	"jelatine/types"
)

// Load_Lang_String registers java.lang.String's natives. Trimmed from
// jacobin's much larger javaLangString.go (which also covers
// charset-aware constructors and code-point arrays, CLDC 1.1 has no
// java.nio.charset) down to the construction/inspection/concatenation
// core every CLDC string literal and StringBuilder result goes through.
func Load_Lang_String() {
	MethodSignatures["java/lang/String.<clinit>()V"] =
		GMeth{ParamSlots: 0, GFunction: justReturn}

	MethodSignatures["java/lang/String.<init>()V"] =
		GMeth{ParamSlots: 1, GFunction: newEmptyString}

	MethodSignatures["java/lang/String.<init>([B)V"] =
		GMeth{ParamSlots: 2, GFunction: newStringFromBytes}

	MethodSignatures["java/lang/String.<init>([C)V"] =
		GMeth{ParamSlots: 2, GFunction: newStringFromChars}

	MethodSignatures["java/lang/String.length()I"] =
		GMeth{ParamSlots: 1, GFunction: stringLength}

	MethodSignatures["java/lang/String.charAt(I)C"] =
		GMeth{ParamSlots: 2, GFunction: stringCharAt}

	MethodSignatures["java/lang/String.isEmpty()Z"] =
		GMeth{ParamSlots: 1, GFunction: stringIsEmpty}

	MethodSignatures["java/lang/String.hashCode()I"] =
		GMeth{ParamSlots: 1, GFunction: stringHashCode}

	MethodSignatures["java/lang/String.equals(Ljava/lang/Object;)Z"] =
		GMeth{ParamSlots: 2, GFunction: stringEquals}

	MethodSignatures["java/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;"] =
		GMeth{ParamSlots: 2, GFunction: stringConcat}

	MethodSignatures["java/lang/String.toString()Ljava/lang/String;"] =
		GMeth{ParamSlots: 1, GFunction: stringToString}

	MethodSignatures["java/lang/String.valueOf(I)Ljava/lang/String;"] =
		GMeth{ParamSlots: 1, GFunction: stringValueOfInt}
}

// newEmptyString fills in the receiver in place (constructors return
// void; the instance already exists from NEW_PRELINK) the way an
// <init>()V body would, by stashing an empty-string pool index into
// field slot 0 -- the same layout object.NewStringObject uses, so every
// other String native can treat a receiver uniformly regardless of
// which constructor built it.
func newEmptyString(params []frames.Slot) (frames.Slot, error) {
	recv := params[0].Ref
	object.SetFieldInt(recv, 0, int32(stringPoolIndex("")))
	return frames.Slot{}, nil
}

func newStringFromBytes(params []frames.Slot) (frames.Slot, error) {
	recv, bytes := params[0].Ref, params[1].Ref
	if bytes == object.Null {
		return frames.Slot{}, throwf(excNames.NullPointerException, "String(byte[]) with null array")
	}
	n := object.ArrayLength(bytes)
	buf := make([]byte, n)
	for i := int32(0); i < n; i++ {
		buf[i] = byte(object.GetArrayByte(bytes, i))
	}
	object.SetFieldInt(recv, 0, int32(stringPoolIndex(string(buf))))
	return frames.Slot{}, nil
}

func newStringFromChars(params []frames.Slot) (frames.Slot, error) {
	recv, chars := params[0].Ref, params[1].Ref
	if chars == object.Null {
		return frames.Slot{}, throwf(excNames.NullPointerException, "String(char[]) with null array")
	}
	n := object.ArrayLength(chars)
	runes := make([]rune, n)
	for i := int32(0); i < n; i++ {
		runes[i] = rune(object.GetArrayChar(chars, i))
	}
	object.SetFieldInt(recv, 0, int32(stringPoolIndex(string(runes))))
	return frames.Slot{}, nil
}

func stringLength(params []frames.Slot) (frames.Slot, error) {
	s := object.GoString(params[0].Ref)
	return frames.Slot{Word: uint64(uint32(len([]rune(s))))}, nil
}

func stringIsEmpty(params []frames.Slot) (frames.Slot, error) {
	s := object.GoString(params[0].Ref)
	if s == "" {
		return frames.Slot{Word: 1}, nil
	}
	return frames.Slot{}, nil
}

func stringCharAt(params []frames.Slot) (frames.Slot, error) {
	s := []rune(object.GoString(params[0].Ref))
	idx := int32(params[1].Word)
	if idx < 0 || int(idx) >= len(s) {
		return frames.Slot{}, throwf("java/lang/StringIndexOutOfBoundsException", "index %d, length %d", idx, len(s))
	}
	return frames.Slot{Word: uint64(s[idx])}, nil
}

// stringHashCode implements String.hashCode()'s documented algorithm
// (JLS: s[0]*31^(n-1) + ... + s[n-1]), not the identity hash every other
// object falls back to -- Java programs rely on this exact formula
// (e.g. as a switch-on-string dispatch key), so it isn't optional.
func stringHashCode(params []frames.Slot) (frames.Slot, error) {
	s := []rune(object.GoString(params[0].Ref))
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return frames.Slot{Word: uint64(uint32(h))}, nil
}

func stringEquals(params []frames.Slot) (frames.Slot, error) {
	other := params[1].Ref
	if other == object.Null {
		return frames.Slot{}, nil
	}
	if object.ClassID(other) != types.StringClassID {
		return frames.Slot{}, nil
	}
	if object.GoString(params[0].Ref) == object.GoString(other) {
		return frames.Slot{Word: 1}, nil
	}
	return frames.Slot{}, nil
}

func stringConcat(params []frames.Slot) (frames.Slot, error) {
	a, b := object.GoString(params[0].Ref), object.GoString(params[1].Ref)
	h, err := object.NewStringObject(types.StringClassID, a+b)
	if err != nil {
		return frames.Slot{}, err
	}
	return frames.Slot{Ref: h}, nil
}

func stringToString(params []frames.Slot) (frames.Slot, error) {
	return params[0], nil
}

func stringValueOfInt(params []frames.Slot) (frames.Slot, error) {
	n := int32(params[0].Word)
	h, err := object.NewStringObject(types.StringClassID, itoa(n))
	if err != nil {
		return frames.Slot{}, err
	}
	return frames.Slot{Ref: h}, nil
}
