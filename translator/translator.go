/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package translator implements spec §4.4: the one-time pass that
// rewrites a method's raw class-file bytecode into jelatine's internal
// opcode stream before it is ever executed.
//
// Grounded on jelatine's bytecode.c (original_source): every standard
// JVMS opcode that references the constant pool is rewritten to its
// *_PRELINK sentinel (opcodes.IsPrelink), which the interpreter resolves
// on every execution (spec §4.3 "Lazy opcode linking"); the sentinel is
// not re-specialized into a typed accessor in place. Synchronized methods
// get every return opcode rewritten to its *_MONITOREXIT twin; no
// prologue byte is written -- EntryOpcode reports the
// MONITORENTER_SPECIAL(_STATIC) opcode, and the interpreter's Invoke
// takes and releases the monitor around the call itself; tableswitch/
// lookupswitch padding and branch targets are validated against the
// method's actual code length, matching bytecode.c's own bounds checks
// (rather than deferring them to a later verifier pass, since jelatine
// has none).
package translator

import (
	"encoding/binary"
	"errors"
	"fmt"

	"jelatine/opcodes"
)

// ErrMalformedBytecode is the umbrella error for anything the translator
// finds fatally wrong with a method's Code attribute -- always surfaced
// to the classloader as a ClassFormatError/VerifyError (spec §4.3).
var ErrMalformedBytecode = errors.New("translator: malformed bytecode")

// Method is the minimal view of a parsed method the translator needs;
// the classloader constructs one per method as it finishes parsing a
// method's Code attribute.
type Method struct {
	Code           []byte // a private copy; rewritten in place
	MaxStack       int
	MaxLocals      int
	IsStatic       bool
	IsSynchronized bool
	ExceptionTable []ExceptionHandler
}

// ExceptionHandler is one entry of a method's exception table (JVMS
// §4.7.3), validated the same way the translator validates branch
// targets: start/end/handler PCs must land on an actual instruction
// boundary inside the method.
type ExceptionHandler struct {
	StartPC, EndPC, HandlerPC int
	CatchClassIndex           uint16 // 0 means catch-all (finally)
}

// Translate rewrites m.Code in place into jelatine's internal opcode
// stream and returns the set of instruction-start offsets it discovered,
// which the interpreter and exception-table lookup both need to tell a
// valid PC from a byte that merely happens to fall inside a multi-byte
// instruction's operands.
func Translate(m *Method) (instrStarts map[int]bool, err error) {
	instrStarts = map[int]bool{}
	code := m.Code
	pc := 0

	for pc < len(code) {
		instrStarts[pc] = true
		op := opcodes.Opcode(code[pc])
		size, err := instrSize(code, pc)
		if err != nil {
			return nil, err
		}

		if rewritten, ok := prelinkRewrite(op); ok {
			code[pc] = byte(rewritten)
		} else if op == jsrOpcode || op == retOpcode {
			return nil, fmt.Errorf("%w: jsr/ret are not supported", ErrMalformedBytecode)
		}

		pc += size
	}
	if pc != len(code) {
		return nil, fmt.Errorf("%w: instruction stream does not end on a boundary", ErrMalformedBytecode)
	}

	if err := validateBranches(code, instrStarts); err != nil {
		return nil, err
	}
	if err := validateExceptionTable(m.ExceptionTable, instrStarts, len(code)); err != nil {
		return nil, err
	}

	if m.IsSynchronized {
		synchronize(m, instrStarts)
	}

	return instrStarts, nil
}

// prelink-eligible standard opcodes map one-to-one onto a *_PRELINK
// sentinel of the same operand shape (spec §4.3).
func prelinkRewrite(op opcodes.Opcode) (opcodes.Opcode, bool) {
	switch op {
	case 0xB2: // getstatic
		return opcodes.GETSTATIC_PRELINK, true
	case 0xB3: // putstatic
		return opcodes.PUTSTATIC_PRELINK, true
	case 0xB4: // getfield
		return opcodes.GETFIELD_PRELINK, true
	case 0xB5: // putfield
		return opcodes.PUTFIELD_PRELINK, true
	case opcodes.INVOKEVIRTUAL:
		return opcodes.INVOKEVIRTUAL_PRELINK, true
	case opcodes.INVOKESPECIAL:
		return opcodes.INVOKESPECIAL_PRELINK, true
	case opcodes.INVOKESTATIC:
		return opcodes.INVOKESTATIC_PRELINK, true
	case opcodes.INVOKEINTERFACE:
		return opcodes.INVOKEINTERFACE_PRELINK, true
	case opcodes.NEW:
		return opcodes.NEW_PRELINK, true
	case opcodes.NEWARRAY:
		return opcodes.NEWARRAY_PRELINK, true
	case opcodes.ANEWARRAY:
		return opcodes.ANEWARRAY_PRELINK, true
	case opcodes.CHECKCAST:
		return opcodes.CHECKCAST_PRELINK, true
	case opcodes.INSTANCEOF:
		return opcodes.INSTANCEOF_PRELINK, true
	case opcodes.MULTIANEWARRAY:
		return opcodes.MULTIANEWARRAY_PRELINK, true
	case opcodes.LDC:
		return opcodes.LDC_PRELINK, true
	case opcodes.LDC_W:
		return opcodes.LDC_W_PRELINK, true
	default:
		return 0, false
	}
}

const (
	jsrOpcode   = opcodes.Opcode(168)
	retOpcode   = opcodes.Opcode(169)
	jsrWOpcode  = opcodes.Opcode(201) // jsr_w, a standard-JVMS byte value that aliases one of our WIDE-prefixed internals; only meaningful unprefixed here
)

// instrSize returns the total byte length (opcode + operands) of the
// instruction at pc, including class-file-specific variable-length
// instructions (tableswitch, lookupswitch, wide).
func instrSize(code []byte, pc int) (int, error) {
	if pc >= len(code) {
		return 0, fmt.Errorf("%w: truncated instruction", ErrMalformedBytecode)
	}
	op := code[pc]

	switch op {
	case 0xAA: // tableswitch
		return tableswitchSize(code, pc)
	case 0xAB: // lookupswitch
		return lookupswitchSize(code, pc)
	case 0xC4: // wide
		return wideSize(code, pc)
	}

	if n, ok := fixedSize[op]; ok {
		if pc+n > len(code) {
			return 0, fmt.Errorf("%w: truncated operand at pc=%d", ErrMalformedBytecode, pc)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: unknown opcode 0x%02x at pc=%d", ErrMalformedBytecode, op, pc)
}

// fixedSize gives the total instruction length (1 + operand bytes) for
// every opcode whose size never varies, per JVMS chapter 6.
var fixedSize = map[byte]int{
	0x00: 1, 0x01: 1, 0x02: 1, 0x03: 1, 0x04: 1, 0x05: 1, 0x06: 1, 0x07: 1,
	0x08: 1, 0x09: 1, 0x0a: 1, 0x0b: 1, 0x0c: 1, 0x0d: 1, 0x0e: 1, 0x0f: 1,
	0x10: 2, 0x11: 3, 0x12: 2, 0x13: 3, 0x14: 3,
	0x15: 2, 0x16: 2, 0x17: 2, 0x18: 2, 0x19: 2,
	0x1a: 1, 0x1b: 1, 0x1c: 1, 0x1d: 1, 0x1e: 1, 0x1f: 1, 0x20: 1, 0x21: 1,
	0x22: 1, 0x23: 1, 0x24: 1, 0x25: 1, 0x26: 1, 0x27: 1, 0x28: 1, 0x29: 1,
	0x2a: 1, 0x2b: 1, 0x2c: 1, 0x2d: 1,
	0x2e: 1, 0x2f: 1, 0x30: 1, 0x31: 1, 0x32: 1, 0x33: 1, 0x34: 1, 0x35: 1,
	0x36: 2, 0x37: 2, 0x38: 2, 0x39: 2, 0x3a: 2,
	0x3b: 1, 0x3c: 1, 0x3d: 1, 0x3e: 1, 0x3f: 1, 0x40: 1, 0x41: 1, 0x42: 1,
	0x43: 1, 0x44: 1, 0x45: 1, 0x46: 1, 0x47: 1, 0x48: 1, 0x49: 1, 0x4a: 1,
	0x4b: 1, 0x4c: 1, 0x4d: 1, 0x4e: 1,
	0x4f: 1, 0x50: 1, 0x51: 1, 0x52: 1, 0x53: 1, 0x54: 1, 0x55: 1, 0x56: 1,
	0x57: 1, 0x58: 1, 0x59: 1, 0x5a: 1, 0x5b: 1, 0x5c: 1, 0x5d: 1, 0x5e: 1,
	0x5f: 1, 0x60: 1, 0x61: 1, 0x62: 1, 0x63: 1, 0x64: 1, 0x65: 1, 0x66: 1,
	0x67: 1, 0x68: 1, 0x69: 1, 0x6a: 1, 0x6b: 1, 0x6c: 1, 0x6d: 1, 0x6e: 1,
	0x6f: 1, 0x70: 1, 0x71: 1, 0x72: 1, 0x73: 1, 0x74: 1, 0x75: 1, 0x76: 1,
	0x77: 1, 0x78: 1, 0x79: 1, 0x7a: 1, 0x7b: 1, 0x7c: 1, 0x7d: 1, 0x7e: 1,
	0x7f: 1, 0x80: 1, 0x81: 1, 0x82: 1, 0x83: 1, 0x84: 3, 0x85: 1, 0x86: 1,
	0x87: 1, 0x88: 1, 0x89: 1, 0x8a: 1, 0x8b: 1, 0x8c: 1, 0x8d: 1, 0x8e: 1,
	0x8f: 1, 0x90: 1, 0x91: 1, 0x92: 1, 0x93: 1, 0x94: 1, 0x95: 1, 0x96: 1,
	0x97: 1, 0x98: 1,
	0x99: 3, 0x9a: 3, 0x9b: 3, 0x9c: 3, 0x9d: 3, 0x9e: 3, 0x9f: 3, 0xa0: 3,
	0xa1: 3, 0xa2: 3, 0xa3: 3, 0xa4: 3, 0xa5: 3, 0xa6: 3, 0xa7: 3,
	0xa8: 3, // jsr, rejected elsewhere
	0xa9: 2, // ret, rejected elsewhere
	0xac: 1, 0xad: 1, 0xae: 1, 0xaf: 1, 0xb0: 1, 0xb1: 1,
	0xb2: 3, 0xb3: 3, 0xb4: 3, 0xb5: 3,
	0xb6: 3, 0xb7: 3, 0xb8: 3, 0xb9: 5, 0xba: 5,
	0xbb: 3, 0xbc: 2, 0xbd: 3, 0xbe: 1, 0xbf: 1,
	0xc0: 3, 0xc1: 3, 0xc2: 1, 0xc3: 1,
	0xc5: 4, 0xc6: 3, 0xc7: 3, 0xc8: 5, 0xc9: 5,
}

func tableswitchSize(code []byte, pc int) (int, error) {
	pad := (4 - (pc+1)%4) % 4
	base := pc + 1 + pad
	if base+12 > len(code) {
		return 0, fmt.Errorf("%w: truncated tableswitch at pc=%d", ErrMalformedBytecode, pc)
	}
	low := int32(binary.BigEndian.Uint32(code[base+4 : base+8]))
	high := int32(binary.BigEndian.Uint32(code[base+8 : base+12]))
	if high < low {
		return 0, fmt.Errorf("%w: tableswitch high < low at pc=%d", ErrMalformedBytecode, pc)
	}
	n := int(high-low) + 1
	total := 1 + pad + 12 + n*4
	if pc+total > len(code) {
		return 0, fmt.Errorf("%w: truncated tableswitch jump table at pc=%d", ErrMalformedBytecode, pc)
	}
	return total, nil
}

func lookupswitchSize(code []byte, pc int) (int, error) {
	pad := (4 - (pc+1)%4) % 4
	base := pc + 1 + pad
	if base+8 > len(code) {
		return 0, fmt.Errorf("%w: truncated lookupswitch at pc=%d", ErrMalformedBytecode, pc)
	}
	npairs := int32(binary.BigEndian.Uint32(code[base+4 : base+8]))
	if npairs < 0 {
		return 0, fmt.Errorf("%w: negative lookupswitch npairs at pc=%d", ErrMalformedBytecode, pc)
	}
	total := 1 + pad + 8 + int(npairs)*8
	if pc+total > len(code) {
		return 0, fmt.Errorf("%w: truncated lookupswitch table at pc=%d", ErrMalformedBytecode, pc)
	}
	return total, nil
}

func wideSize(code []byte, pc int) (int, error) {
	if pc+2 > len(code) {
		return 0, fmt.Errorf("%w: truncated wide at pc=%d", ErrMalformedBytecode, pc)
	}
	modified := code[pc+1]
	if modified == 0x84 { // iinc
		return 6, nil
	}
	return 4, nil
}

// branchOpcodes maps every opcode whose 2-byte signed operand is a
// branch offset to true, so validateBranches knows where to look.
var branchOpcodes = map[byte]bool{
	0x99: true, 0x9a: true, 0x9b: true, 0x9c: true, 0x9d: true, 0x9e: true,
	0x9f: true, 0xa0: true, 0xa1: true, 0xa2: true, 0xa3: true, 0xa4: true,
	0xa5: true, 0xa6: true, 0xa7: true, 0xc6: true, 0xc7: true,
}

func validateBranches(code []byte, starts map[int]bool) error {
	for pc := range starts {
		op := code[pc]
		if !branchOpcodes[op] {
			continue
		}
		if pc+3 > len(code) {
			continue
		}
		offset := int(int16(binary.BigEndian.Uint16(code[pc+1 : pc+3])))
		target := pc + offset
		if target < 0 || target >= len(code) || !starts[target] {
			return fmt.Errorf("%w: branch at pc=%d targets non-instruction offset %d", ErrMalformedBytecode, pc, target)
		}
	}
	return nil
}

func validateExceptionTable(table []ExceptionHandler, starts map[int]bool, codeLen int) error {
	for _, e := range table {
		if e.StartPC < 0 || e.StartPC >= codeLen || !starts[e.StartPC] {
			return fmt.Errorf("%w: exception handler start_pc=%d invalid", ErrMalformedBytecode, e.StartPC)
		}
		if e.EndPC < e.StartPC || e.EndPC > codeLen || (e.EndPC < codeLen && !starts[e.EndPC]) {
			return fmt.Errorf("%w: exception handler end_pc=%d invalid", ErrMalformedBytecode, e.EndPC)
		}
		if e.HandlerPC < 0 || e.HandlerPC >= codeLen || !starts[e.HandlerPC] {
			return fmt.Errorf("%w: exception handler handler_pc=%d invalid", ErrMalformedBytecode, e.HandlerPC)
		}
	}
	return nil
}

// synchronize rewrites every return instruction of a synchronized method
// (only at the instruction starts in starts, never operand bytes) to its
// *_MONITOREXIT twin, matching bytecode.c's treatment of
// ACC_SYNCHRONIZED. It does not touch pc 0: the interpreter's Invoke
// acquires the monitor before the first instruction and releases it when
// the call returns.
func synchronize(m *Method, starts map[int]bool) {
	for pc := range starts {
		switch opcodes.Opcode(m.Code[pc]) {
		case opcodes.IRETURN:
			m.Code[pc] = byte(opcodes.IRETURN_MONITOREXIT)
		case opcodes.LRETURN:
			m.Code[pc] = byte(opcodes.LRETURN_MONITOREXIT)
		case opcodes.FRETURN:
			m.Code[pc] = byte(opcodes.FRETURN_MONITOREXIT)
		case opcodes.DRETURN:
			m.Code[pc] = byte(opcodes.DRETURN_MONITOREXIT)
		case opcodes.ARETURN:
			m.Code[pc] = byte(opcodes.ARETURN_MONITOREXIT)
		case opcodes.RETURN:
			m.Code[pc] = byte(opcodes.RETURN_MONITOREXIT)
		}
	}
}

// EntryOpcode returns the synthetic monitor-acquire opcode a
// synchronized method's interpreter loop must execute before pc 0,
// chosen by whether the method is static (spec §4.4).
func EntryOpcode(m *Method) (opcodes.Opcode, bool) {
	if !m.IsSynchronized {
		return 0, false
	}
	if m.IsStatic {
		return opcodes.MONITORENTER_SPECIAL_STATIC, true
	}
	return opcodes.MONITORENTER_SPECIAL, true
}
