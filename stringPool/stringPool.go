/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package stringPool is the VM-wide interned-string table. Every class
// name, UTF-8 constant, and Java String literal that is a candidate for
// identity comparison (==) is assigned a stable index here, matching
// jacobin's stringPool package and, one level down, jelatine's
// util.c string-interning table (spec §6, §9 "string interning").
//
// The table itself is guarded by the VM global lock (thread.Lock), since
// it is one of the shared resources enumerated in spec §5.
package stringPool

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	pool    []string
	indexOf map[string]uint32
)

func init() {
	Reset()
}

// Reset clears the pool back to empty, used by tests and by VM restart
// paths that tear down and rebuild the class table.
func Reset() {
	pool = make([]string, 0, 1024)
	indexOf = make(map[string]uint32)
}

// GetStringIndex interns s, returning its stable pool index. Re-interning
// an already-present string returns the same index (an invariant tests
// rely on for class-name identity).
func GetStringIndex(s string) uint32 {
	if idx, ok := indexOf[s]; ok {
		return idx
	}
	idx := uint32(len(pool))
	pool = append(pool, s)
	indexOf[s] = idx
	return idx
}

// GetStringPointer returns a pointer to the interned string at index.
// Returns nil if index is out of range.
func GetStringPointer(index uint32) *string {
	if int(index) >= len(pool) {
		return nil
	}
	return &pool[index]
}

// GetStringPoolSize reports how many strings are presently interned.
func GetStringPoolSize() uint32 {
	return uint32(len(pool))
}

// UTF16FromUTF8 converts a Go (UTF-8) string into the UTF-16 code units a
// java.lang.String's char[] value field holds, round-tripping through
// golang.org/x/text's UTF-16 codec rather than a hand-rolled surrogate-pair
// splitter (spec §8: "UTF-8 <-> Java modified UTF-8 <-> UTF-16 round-trips
// are identity for all valid input").
func UTF16FromUTF8(s string) ([]uint16, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, _, err := transform.String(enc, s)
	if err != nil {
		return nil, err
	}
	raw := []byte(encoded)
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return units, nil
}

// UTF8FromUTF16 is the inverse of UTF16FromUTF8.
func UTF8FromUTF16(units []uint16) (string, error) {
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		raw[2*i] = byte(u >> 8)
		raw[2*i+1] = byte(u)
	}
	dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
