/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package gfunction is jelatine's native-method table: the small set of
// java.lang/java.util methods the interpreter executes as Go code rather
// than as translated bytecode, because there either is no bytecode (the
// method is declared native) or running the real library class would
// pull in far more of the JDK than a CLDC 1.1 core carries.
//
// Grounded on jacobin's own gfunction package (six files under this
// directory name in the teacher tree): MethodSignatures is keyed by the
// method's fully qualified "class.name descriptor" signature string, and
// GMeth pairs the number of operand-stack slots INVOKESTATIC/SPECIAL/
// VIRTUAL must pop for the call with the Go function that performs it.
// Adapted for jelatine's value model: a native function here receives
// and returns frames.Slot (a Handle/Word pair), not jacobin's
// []interface{}/interface{} boxing, since jelatine has no interface{}
// boxing layer to spare for native calls.
package gfunction

import (
	"fmt"

	"jelatine/frames"
)

// GFunction is a native method body. params[0] is the receiver for an
// instance method (including constructors); static methods start at
// params[0] being the first declared argument.
type GFunction func(params []frames.Slot) (frames.Slot, error)

// GMeth pairs a native method with the number of slots its caller must
// pop off the operand stack to build params -- identical in spirit to
// a regular method's ParamSlotCount, just computed once at registration
// time instead of parsed from the descriptor on every call.
type GMeth struct {
	ParamSlots int
	GFunction  GFunction
}

// MethodSignatures is the global native-method table, populated by each
// Load_* function below at package init. Keyed as
// "java/lang/String.length()I".
var MethodSignatures = map[string]GMeth{}

func init() {
	Load_Lang_Object()
	Load_Lang_String()
	Load_Lang_StringBuilder()
	Load_Lang_Thread()
	Load_Lang_System()
	Load_Util_HashMap()
}

// Thrown is the error a GFunction returns to signal a Java exception
// rather than a host-level failure; the interpreter translates it into
// a JavaThrow at the call site (gfunction cannot import interpreter --
// interpreter already imports gfunction -- so the exception class name
// travels as a plain string here, the same role excNames constants play
// everywhere else in this codebase).
type Thrown struct {
	ClassName string
	Message   string
}

func (t *Thrown) Error() string {
	if t.Message == "" {
		return t.ClassName
	}
	return t.ClassName + ": " + t.Message
}

func throwf(className, format string, args ...any) error {
	return &Thrown{ClassName: className, Message: fmt.Sprintf(format, args...)}
}

// justReturn is the GFunction for natives whose only job is to satisfy
// the JVM's "this method must exist" bookkeeping (registerNatives and
// the like) without doing anything observable.
func justReturn(params []frames.Slot) (frames.Slot, error) {
	return frames.Slot{}, nil
}

// trapFunction marks a signature jacobin carried but this VM's scope
// (CLDC 1.1, no java.nio/charset) does not implement; calling it is a
// host-level programming error in this VM, not a reachable user path,
// so it panics rather than returning a half-modeled exception.
func trapFunction(params []frames.Slot) (frames.Slot, error) {
	panic("gfunction: unimplemented native method called")
}
