/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package types holds the primitive and descriptor constants shared by
// the loader, object model, and interpreter. Keeping them in one leaf
// package (no other jelatine package imports) avoids the import cycles
// that come from every higher package needing to name a Java type.
package types

// JavaByte is a signed 8-bit Java byte, kept distinct from Go's unsigned
// byte so that array loads/stores sign-extend the way the spec requires.
type JavaByte int8

// Field/array element type-descriptor letters (JVMS §4.3.2).
const (
	Bool      = "Z"
	Byte      = "B"
	Char      = "C"
	Double    = "D"
	Float     = "F"
	Int       = "I"
	Long      = "J"
	Ref       = "L"
	Short     = "S"
	Void      = "V"
	Array     = "["
	RefArray  = "[L"
	ByteArray = "[B"
)

// Well-known class-id slots below the dense id allocator's range. The
// runtime uses them directly for objects it builds itself (string and
// class-literal objects); the class loader does not assign them to
// loaded classes: every class, java/lang/Object included, gets an id from
// FirstDynamicClassID upward.
const (
	ObjectClassID = iota
	ClassClassID
	StringClassID
	ThreadClassID
	ThrowableClassID
	ClassNotFoundID
	FirstDynamicClassID // first id handed out by the growing table
)

// Well-known string-pool indices, numerically equal to ObjectClassID and
// StringClassID. stringPool does not pre-intern any name, so the strings
// at these indices are whichever were interned first.
const (
	InvalidStringIndex   = ^uint32(0)
	ObjectPoolStringIndex = uint32(ObjectClassID)
	StringPoolStringIndex = uint32(StringClassID)
)

// <clinit> lifecycle markers for ClData.ClInit, named to read naturally
// at call sites (classloader.RunClinit, the interpreter's runClinit)
const (
	NoClinit = byte(iota)
	ClInitNotRun
	ClInitInProgress
	ClInitRun
	ClInitErroneous // <clinit> ran and threw; every subsequent user must see NoClassDefFoundError, never silently proceed
)

// WordSize is the machine word size in bytes the heap allocator rounds
// allocations to. 8 on every platform jelatine targets (amd64/arm64).
const WordSize = 8

// Machine-word-typed view helpers used by the interpreter's typed stack
// operations (spec §4.5 "Typed operations").
type (
	JInt    = int32
	JLong   = int64
	JFloat  = float32
	JDouble = float64
)
