/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package object

import (
	"strings"
	"unicode"

	"jelatine/stringPool"
	"jelatine/types"
)

// GoStringFromJavaByteArray renders a byte-array object as a Go string,
// one byte per rune, the way jacobin's java.lang.String byte[]-backing
// convenience functions do.
func GoStringFromJavaByteArray(h Handle) string {
	n := ArrayLength(h)
	var sb strings.Builder
	sb.Grow(int(n))
	for i := int32(0); i < n; i++ {
		sb.WriteByte(byte(GetArrayByte(h, i)))
	}
	return sb.String()
}

// JavaByteArrayFromGoString allocates a byte array object holding str's
// bytes one-for-one.
func JavaByteArrayFromGoString(classID uint32, str string) (Handle, error) {
	h, err := NewArray(classID, types.Byte, int32(len(str)))
	if err != nil {
		return Null, err
	}
	for i := 0; i < len(str); i++ {
		SetArrayByte(h, int32(i), int8(str[i]))
	}
	return h, nil
}

// JavaByteArrayFromStringPoolIndex looks up a pool-interned string by
// index and materializes it as a byte array object.
func JavaByteArrayFromStringPoolIndex(classID uint32, index uint32) (Handle, error) {
	if index >= stringPool.GetStringPoolSize() {
		return Null, nil
	}
	return JavaByteArrayFromGoString(classID, *stringPool.GetStringPointer(index))
}

// JavaByteArrayEquals compares two byte array objects element-wise.
func JavaByteArrayEquals(a, b Handle) bool {
	if a == Null || b == Null {
		return a == b
	}
	la, lb := ArrayLength(a), ArrayLength(b)
	if la != lb {
		return false
	}
	for i := int32(0); i < la; i++ {
		if GetArrayByte(a, i) != GetArrayByte(b, i) {
			return false
		}
	}
	return true
}

// JavaByteArrayEqualsIgnoreCase is JavaByteArrayEquals with ASCII-fold
// comparison, matching String.equalsIgnoreCase's byte-array fast path.
func JavaByteArrayEqualsIgnoreCase(a, b Handle) bool {
	if a == Null || b == Null {
		return a == b
	}
	la, lb := ArrayLength(a), ArrayLength(b)
	if la != lb {
		return false
	}
	for i := int32(0); i < la; i++ {
		ra := unicode.ToLower(rune(byte(GetArrayByte(a, i))))
		rb := unicode.ToLower(rune(byte(GetArrayByte(b, i))))
		if ra != rb {
			return false
		}
	}
	return true
}
