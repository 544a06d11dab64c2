/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package excNames enumerates the fixed set of Java exception and error
// class names the interpreter and loader can throw implicitly. Ported
// from jacobin's excNames package: a flat name table beats scattering
// string literals ("java/lang/NullPointerException") across every
// throw site, and keeps the interpreter's implicit-throw paths (§4.5,
// §7) matching the set spec.md actually names.
package excNames

const (
	NullPointerException         = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException = "java/lang/ArrayIndexOutOfBoundsException"
	ArrayStoreException           = "java/lang/ArrayStoreException"
	ArithmeticException           = "java/lang/ArithmeticException"
	ClassCastException            = "java/lang/ClassCastException"
	NegativeArraySizeException    = "java/lang/NegativeArraySizeException"
	IllegalMonitorStateException  = "java/lang/IllegalMonitorStateException"
	InterruptedException          = "java/lang/InterruptedException"
	ClassNotFoundException        = "java/lang/ClassNotFoundException"
	NoClassDefFoundError          = "java/lang/NoClassDefFoundError"
	VirtualMachineError           = "java/lang/VirtualMachineError"
	OutOfMemoryError              = "java/lang/OutOfMemoryError"
	StackOverflowError            = "java/lang/StackOverflowError"
	ClassFormatError              = "java/lang/ClassFormatError"
	VerifyError                   = "java/lang/VerifyError"
	IOException                   = "java/io/IOException"
	CloneNotSupportedException    = "java/lang/CloneNotSupportedException"
	UnsatisfiedLinkError          = "java/lang/UnsatisfiedLinkError"
)
