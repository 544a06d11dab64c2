/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package gfunction

import (
	"strconv"

	"jelatine/stringPool"
)

func stringPoolIndex(s string) uint32 {
	return stringPool.GetStringIndex(s)
}

func itoa(n int32) string {
	return strconv.FormatInt(int64(n), 10)
}
