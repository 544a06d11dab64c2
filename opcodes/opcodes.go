/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package opcodes defines the internal typed instruction set the
// translator rewrites raw class-file bytecode into (spec §4.4) and the
// interpreter dispatches on (spec §4.5). The numbering matches the
// original jelatine internal_opcode_t one-for-one: standard JVM opcodes
// keep the JVMS-assigned byte value, except that the unsupported jsr,
// ret and invokedynamic values (168, 169, 186) are reused for LDC_REF,
// LDC_W_REF and INVOKESUPER, and everything beyond GOTO_W (200) is
// jelatine-specific -- typed field/static accessors and the *_PRELINK
// sentinels.
package opcodes

type Opcode byte

const (
	NOP         Opcode = 0
	ACONST_NULL Opcode = 1
	ICONST_M1   Opcode = 2
	ICONST_0    Opcode = 3
	ICONST_1    Opcode = 4
	ICONST_2    Opcode = 5
	ICONST_3    Opcode = 6
	ICONST_4    Opcode = 7
	ICONST_5    Opcode = 8
	LCONST_0    Opcode = 9
	LCONST_1    Opcode = 10
	FCONST_0    Opcode = 11
	FCONST_1    Opcode = 12
	FCONST_2    Opcode = 13
	DCONST_0    Opcode = 14
	DCONST_1    Opcode = 15
	BIPUSH      Opcode = 16
	SIPUSH      Opcode = 17
	LDC         Opcode = 18
	LDC_W       Opcode = 19
	LDC2_W      Opcode = 20
	ILOAD       Opcode = 21
	LLOAD       Opcode = 22
	FLOAD       Opcode = 23
	DLOAD       Opcode = 24
	ALOAD       Opcode = 25
	ILOAD_0     Opcode = 26
	ILOAD_1     Opcode = 27
	ILOAD_2     Opcode = 28
	ILOAD_3     Opcode = 29
	LLOAD_0     Opcode = 30
	LLOAD_1     Opcode = 31
	LLOAD_2     Opcode = 32
	LLOAD_3     Opcode = 33
	FLOAD_0     Opcode = 34
	FLOAD_1     Opcode = 35
	FLOAD_2     Opcode = 36
	FLOAD_3     Opcode = 37
	DLOAD_0     Opcode = 38
	DLOAD_1     Opcode = 39
	DLOAD_2     Opcode = 40
	DLOAD_3     Opcode = 41
	ALOAD_0     Opcode = 42
	ALOAD_1     Opcode = 43
	ALOAD_2     Opcode = 44
	ALOAD_3     Opcode = 45
	IALOAD      Opcode = 46
	LALOAD      Opcode = 47
	FALOAD      Opcode = 48
	DALOAD      Opcode = 49
	AALOAD      Opcode = 50
	BALOAD      Opcode = 51
	CALOAD      Opcode = 52
	SALOAD      Opcode = 53
	ISTORE      Opcode = 54
	LSTORE      Opcode = 55
	FSTORE      Opcode = 56
	DSTORE      Opcode = 57
	ASTORE      Opcode = 58
	ISTORE_0    Opcode = 59
	ISTORE_1    Opcode = 60
	ISTORE_2    Opcode = 61
	ISTORE_3    Opcode = 62
	LSTORE_0    Opcode = 63
	LSTORE_1    Opcode = 64
	LSTORE_2    Opcode = 65
	LSTORE_3    Opcode = 66
	FSTORE_0    Opcode = 67
	FSTORE_1    Opcode = 68
	FSTORE_2    Opcode = 69
	FSTORE_3    Opcode = 70
	DSTORE_0    Opcode = 71
	DSTORE_1    Opcode = 72
	DSTORE_2    Opcode = 73
	DSTORE_3    Opcode = 74
	ASTORE_0    Opcode = 75
	ASTORE_1    Opcode = 76
	ASTORE_2    Opcode = 77
	ASTORE_3    Opcode = 78
	IASTORE     Opcode = 79
	LASTORE     Opcode = 80
	FASTORE     Opcode = 81
	DASTORE     Opcode = 82
	AASTORE     Opcode = 83
	BASTORE     Opcode = 84
	CASTORE     Opcode = 85
	SASTORE     Opcode = 86
	POP         Opcode = 87
	POP2        Opcode = 88
	DUP         Opcode = 89
	DUP_X1      Opcode = 90
	DUP_X2      Opcode = 91
	DUP2        Opcode = 92
	DUP2_X1     Opcode = 93
	DUP2_X2     Opcode = 94
	SWAP        Opcode = 95
	IADD        Opcode = 96
	LADD        Opcode = 97
	FADD        Opcode = 98
	DADD        Opcode = 99
	ISUB        Opcode = 100
	LSUB        Opcode = 101
	FSUB        Opcode = 102
	DSUB        Opcode = 103
	IMUL        Opcode = 104
	LMUL        Opcode = 105
	FMUL        Opcode = 106
	DMUL        Opcode = 107
	IDIV        Opcode = 108
	LDIV        Opcode = 109
	FDIV        Opcode = 110
	DDIV        Opcode = 111
	IREM        Opcode = 112
	LREM        Opcode = 113
	FREM        Opcode = 114
	DREM        Opcode = 115
	INEG        Opcode = 116
	LNEG        Opcode = 117
	FNEG        Opcode = 118
	DNEG        Opcode = 119
	ISHL        Opcode = 120
	LSHL        Opcode = 121
	ISHR        Opcode = 122
	LSHR        Opcode = 123
	IUSHR       Opcode = 124
	LUSHR       Opcode = 125
	IAND        Opcode = 126
	LAND        Opcode = 127
	IOR         Opcode = 128
	LOR         Opcode = 129
	IXOR        Opcode = 130
	LXOR        Opcode = 131
	IINC        Opcode = 132
	I2L         Opcode = 133
	I2F         Opcode = 134
	I2D         Opcode = 135
	L2I         Opcode = 136
	L2F         Opcode = 137
	L2D         Opcode = 138
	F2I         Opcode = 139
	F2L         Opcode = 140
	F2D         Opcode = 141
	D2I         Opcode = 142
	D2L         Opcode = 143
	D2F         Opcode = 144
	I2B         Opcode = 145
	I2C         Opcode = 146
	I2S         Opcode = 147
	LCMP        Opcode = 148
	FCMPL       Opcode = 149
	FCMPG       Opcode = 150
	DCMPL       Opcode = 151
	DCMPG       Opcode = 152
	IFEQ        Opcode = 153
	IFNE        Opcode = 154
	IFLT        Opcode = 155
	IFGE        Opcode = 156
	IFGT        Opcode = 157
	IFLE        Opcode = 158
	IF_ICMPEQ   Opcode = 159
	IF_ICMPNE   Opcode = 160
	IF_ICMPLT   Opcode = 161
	IF_ICMPGE   Opcode = 162
	IF_ICMPGT   Opcode = 163
	IF_ICMPLE   Opcode = 164
	IF_ACMPEQ   Opcode = 165
	IF_ACMPNE   Opcode = 166
	GOTO        Opcode = 167
	LDC_REF     Opcode = 168 // resolved form of LDC_PRELINK for a String/Class; nothing in this module emits it
	LDC_W_REF   Opcode = 169
	TABLESWITCH Opcode = 170
	LOOKUPSWITCH Opcode = 171
	IRETURN     Opcode = 172
	LRETURN     Opcode = 173
	FRETURN     Opcode = 174
	DRETURN     Opcode = 175
	ARETURN     Opcode = 176
	RETURN      Opcode = 177

	GETSTATIC_PRELINK Opcode = 178
	PUTSTATIC_PRELINK Opcode = 179
	GETFIELD_PRELINK  Opcode = 180
	PUTFIELD_PRELINK  Opcode = 181

	INVOKEVIRTUAL   Opcode = 182
	INVOKESPECIAL   Opcode = 183
	INVOKESTATIC    Opcode = 184
	INVOKEINTERFACE Opcode = 185
	INVOKESUPER     Opcode = 186 // INVOKESPECIAL variant selected at link time for ACC_SUPER super-calls
	NEW             Opcode = 187
	NEWARRAY        Opcode = 188
	ANEWARRAY       Opcode = 189
	ARRAYLENGTH     Opcode = 190
	ATHROW          Opcode = 191
	CHECKCAST       Opcode = 192
	INSTANCEOF      Opcode = 193
	MONITORENTER    Opcode = 194
	MONITOREXIT     Opcode = 195
	WIDE            Opcode = 196
	MULTIANEWARRAY  Opcode = 197
	IFNULL          Opcode = 198
	IFNONNULL       Opcode = 199
	GOTO_W          Opcode = 200

	// Typed, resolved field accessors. Nothing in this module emits them:
	// the translator produces *_PRELINK opcodes, and the interpreter
	// resolves those on every execution without rewriting them in place
	// (spec §4.3 "Lazy opcode linking").
	GETSTATIC_BYTE      Opcode = 201
	GETSTATIC_BOOL      Opcode = 201 // alias: booleans and bytes share a load width
	GETSTATIC_CHAR      Opcode = 202
	GETSTATIC_SHORT     Opcode = 203
	GETSTATIC_INT       Opcode = 204
	GETSTATIC_FLOAT     Opcode = 205
	GETSTATIC_LONG      Opcode = 206
	GETSTATIC_DOUBLE    Opcode = 207
	GETSTATIC_REFERENCE Opcode = 208
	PUTSTATIC_BYTE      Opcode = 209
	PUTSTATIC_BOOL      Opcode = 210
	PUTSTATIC_CHAR      Opcode = 211
	PUTSTATIC_SHORT     Opcode = 211 // alias
	PUTSTATIC_INT       Opcode = 212
	PUTSTATIC_FLOAT     Opcode = 213
	PUTSTATIC_LONG      Opcode = 214
	PUTSTATIC_DOUBLE    Opcode = 215
	PUTSTATIC_REFERENCE Opcode = 216
	GETFIELD_BYTE       Opcode = 217
	GETFIELD_BOOL       Opcode = 218
	GETFIELD_CHAR       Opcode = 219
	GETFIELD_SHORT      Opcode = 220
	GETFIELD_INT        Opcode = 221
	GETFIELD_FLOAT      Opcode = 222
	GETFIELD_LONG       Opcode = 223
	GETFIELD_DOUBLE     Opcode = 224
	GETFIELD_REFERENCE  Opcode = 225
	PUTFIELD_BYTE       Opcode = 226
	PUTFIELD_BOOL       Opcode = 227
	PUTFIELD_CHAR       Opcode = 228
	PUTFIELD_SHORT      Opcode = 228 // alias
	PUTFIELD_INT        Opcode = 229
	PUTFIELD_FLOAT      Opcode = 230
	PUTFIELD_LONG       Opcode = 231
	PUTFIELD_DOUBLE     Opcode = 232
	PUTFIELD_REFERENCE  Opcode = 233

	INVOKEVIRTUAL_PRELINK   Opcode = 234
	INVOKESPECIAL_PRELINK   Opcode = 235
	INVOKESTATIC_PRELINK    Opcode = 236
	INVOKEINTERFACE_PRELINK Opcode = 237
	NEW_PRELINK             Opcode = 238
	NEWARRAY_PRELINK        Opcode = 239
	ANEWARRAY_PRELINK       Opcode = 240
	CHECKCAST_PRELINK       Opcode = 241
	INSTANCEOF_PRELINK      Opcode = 242
	MULTIANEWARRAY_PRELINK  Opcode = 243

	MONITORENTER_SPECIAL        Opcode = 244 // synthetic entry opcode translator.EntryOpcode reports for a synchronized instance method; pc 0 is not rewritten
	MONITORENTER_SPECIAL_STATIC Opcode = 245 // same, for a synchronized static method (takes the class mirror's monitor)

	IRETURN_MONITOREXIT Opcode = 246
	LRETURN_MONITOREXIT Opcode = 247
	FRETURN_MONITOREXIT Opcode = 248
	DRETURN_MONITOREXIT Opcode = 249
	ARETURN_MONITOREXIT Opcode = 250
	RETURN_MONITOREXIT  Opcode = 251

	NEW_FINALIZER Opcode = 252 // like NEW, but links the resulting object onto the finalizable list

	LDC_PRELINK   Opcode = 253
	LDC_W_PRELINK Opcode = 254

	// The following share numeric space with GETSTATIC_BYTE..GETSTATIC_INT
	// above; they are only meaningful directly after a WIDE prefix byte,
	// exactly as jelatine's own opcode table documents -- this lets one
	// byte's worth of internal opcode space serve two purposes without
	// growing every jump-table dispatch to a 16-bit index.
	METHOD_LOAD     Opcode = 201 // WIDE-prefixed: load a method's code into the frame
	METHOD_ABSTRACT Opcode = 202 // WIDE-prefixed: raise AbstractMethodError
	INVOKE_NATIVE   Opcode = 203 // WIDE-prefixed: dispatch to a native function pointer
	HALT            Opcode = 204 // WIDE-prefixed: sentinel at the top of the stack ends interpretation
)

// NEWARRAY element-type codes (JVMS Table 6.5.newarray-A), validated by
// the translator (spec §4.4).
const (
	T_BOOLEAN byte = 4
	T_CHAR    byte = 5
	T_FLOAT   byte = 6
	T_DOUBLE  byte = 7
	T_BYTE    byte = 8
	T_SHORT   byte = 9
	T_INT     byte = 10
	T_LONG    byte = 11
)

// IsPrelink reports whether op is one of the *_PRELINK sentinels the
// translator emits (spec §4.3, §4.4). The interpreter resolves these on
// every execution; they are not rewritten in place.
func IsPrelink(op Opcode) bool {
	switch op {
	case GETSTATIC_PRELINK, PUTSTATIC_PRELINK, GETFIELD_PRELINK, PUTFIELD_PRELINK,
		INVOKEVIRTUAL_PRELINK, INVOKESPECIAL_PRELINK, INVOKESTATIC_PRELINK, INVOKEINTERFACE_PRELINK,
		NEW_PRELINK, NEWARRAY_PRELINK, ANEWARRAY_PRELINK, CHECKCAST_PRELINK, INSTANCEOF_PRELINK,
		MULTIANEWARRAY_PRELINK, LDC_PRELINK, LDC_W_PRELINK:
		return true
	default:
		return false
	}
}

// String returns a human-readable mnemonic for the common, unambiguous
// opcodes, used by trace/disassembly output; values that alias another
// mnemonic (e.g. GETSTATIC_BOOL == GETSTATIC_BYTE) or fall outside the
// named set print numerically instead of guessing.
func (op Opcode) String() string {
	switch op {
	case NOP:
		return "nop"
	case ACONST_NULL:
		return "aconst_null"
	case IADD:
		return "iadd"
	case ISUB:
		return "isub"
	case IMUL:
		return "imul"
	case IDIV:
		return "idiv"
	case IRETURN:
		return "ireturn"
	case RETURN:
		return "return"
	case INVOKEVIRTUAL:
		return "invokevirtual"
	case INVOKESPECIAL:
		return "invokespecial"
	case INVOKESTATIC:
		return "invokestatic"
	case INVOKEINTERFACE:
		return "invokeinterface"
	case NEW:
		return "new"
	case ATHROW:
		return "athrow"
	case MONITORENTER:
		return "monitorenter"
	case MONITOREXIT:
		return "monitorexit"
	case HALT:
		return "halt (wide-prefixed)"
	default:
		return "opcode_" + decimal(int(op))
	}
}

func decimal(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
