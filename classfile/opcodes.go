package classfile

import "fmt"

// Opcode represents a JVM bytecode instruction.
// The values are the opcode bytes defined by the JVM specification.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x00-0x14)
	// ========================================================================

	OpNop        Opcode = 0x00 // No operation
	OpAConstNull Opcode = 0x01 // Push null
	OpIConstM1   Opcode = 0x02 // Push int -1
	OpIConst0    Opcode = 0x03 // Push int 0
	OpIConst1    Opcode = 0x04 // Push int 1
	OpIConst2    Opcode = 0x05 // Push int 2
	OpIConst3    Opcode = 0x06 // Push int 3
	OpIConst4    Opcode = 0x07 // Push int 4
	OpIConst5    Opcode = 0x08 // Push int 5
	OpLConst0    Opcode = 0x09 // Push long 0
	OpLConst1    Opcode = 0x0A // Push long 1
	OpFConst0    Opcode = 0x0B // Push float 0
	OpFConst1    Opcode = 0x0C // Push float 1
	OpFConst2    Opcode = 0x0D // Push float 2
	OpDConst0    Opcode = 0x0E // Push double 0
	OpDConst1    Opcode = 0x0F // Push double 1
	OpBIPush     Opcode = 0x10 // Push byte immediate: OpBIPush <value:i8>
	OpSIPush     Opcode = 0x11 // Push short immediate: OpSIPush <value:i16>
	OpLdc        Opcode = 0x12 // Push pool constant: OpLdc <index:u8>
	OpLdcW       Opcode = 0x13 // Push pool constant: OpLdcW <index:u16>
	OpLdc2W      Opcode = 0x14 // Push long/double constant: OpLdc2W <index:u16>

	// ========================================================================
	// Local variable loads (0x15-0x2D)
	// ========================================================================

	OpILoad  Opcode = 0x15 // Push int local: OpILoad <slot:u8>
	OpLLoad  Opcode = 0x16
	OpFLoad  Opcode = 0x17
	OpDLoad  Opcode = 0x18
	OpALoad  Opcode = 0x19
	OpILoad0 Opcode = 0x1A // Single-byte forms for slots 0-3
	OpILoad1 Opcode = 0x1B
	OpILoad2 Opcode = 0x1C
	OpILoad3 Opcode = 0x1D
	OpLLoad0 Opcode = 0x1E
	OpLLoad1 Opcode = 0x1F
	OpLLoad2 Opcode = 0x20
	OpLLoad3 Opcode = 0x21
	OpFLoad0 Opcode = 0x22
	OpFLoad1 Opcode = 0x23
	OpFLoad2 Opcode = 0x24
	OpFLoad3 Opcode = 0x25
	OpDLoad0 Opcode = 0x26
	OpDLoad1 Opcode = 0x27
	OpDLoad2 Opcode = 0x28
	OpDLoad3 Opcode = 0x29
	OpALoad0 Opcode = 0x2A
	OpALoad1 Opcode = 0x2B
	OpALoad2 Opcode = 0x2C
	OpALoad3 Opcode = 0x2D

	// ========================================================================
	// Array loads (0x2E-0x35)
	// ========================================================================

	OpIALoad Opcode = 0x2E
	OpLALoad Opcode = 0x2F
	OpFALoad Opcode = 0x30
	OpDALoad Opcode = 0x31
	OpAALoad Opcode = 0x32
	OpBALoad Opcode = 0x33
	OpCALoad Opcode = 0x34
	OpSALoad Opcode = 0x35

	// ========================================================================
	// Local variable stores (0x36-0x4E)
	// ========================================================================

	OpIStore  Opcode = 0x36 // Pop and store int local: OpIStore <slot:u8>
	OpLStore  Opcode = 0x37
	OpFStore  Opcode = 0x38
	OpDStore  Opcode = 0x39
	OpAStore  Opcode = 0x3A
	OpIStore0 Opcode = 0x3B
	OpIStore1 Opcode = 0x3C
	OpIStore2 Opcode = 0x3D
	OpIStore3 Opcode = 0x3E
	OpLStore0 Opcode = 0x3F
	OpLStore1 Opcode = 0x40
	OpLStore2 Opcode = 0x41
	OpLStore3 Opcode = 0x42
	OpFStore0 Opcode = 0x43
	OpFStore1 Opcode = 0x44
	OpFStore2 Opcode = 0x45
	OpFStore3 Opcode = 0x46
	OpDStore0 Opcode = 0x47
	OpDStore1 Opcode = 0x48
	OpDStore2 Opcode = 0x49
	OpDStore3 Opcode = 0x4A
	OpAStore0 Opcode = 0x4B
	OpAStore1 Opcode = 0x4C
	OpAStore2 Opcode = 0x4D
	OpAStore3 Opcode = 0x4E

	// ========================================================================
	// Array stores (0x4F-0x56)
	// ========================================================================

	OpIAStore Opcode = 0x4F
	OpLAStore Opcode = 0x50
	OpFAStore Opcode = 0x51
	OpDAStore Opcode = 0x52
	OpAAStore Opcode = 0x53
	OpBAStore Opcode = 0x54
	OpCAStore Opcode = 0x55
	OpSAStore Opcode = 0x56

	// ========================================================================
	// Stack manipulation (0x57-0x5F)
	// ========================================================================

	OpPop     Opcode = 0x57
	OpPop2    Opcode = 0x58
	OpDup     Opcode = 0x59
	OpDupX1   Opcode = 0x5A
	OpDupX2   Opcode = 0x5B
	OpDup2    Opcode = 0x5C
	OpDup2X1  Opcode = 0x5D
	OpDup2X2  Opcode = 0x5E
	OpSwapTop Opcode = 0x5F

	// ========================================================================
	// Arithmetic and logic (0x60-0x84)
	// ========================================================================

	OpIAdd  Opcode = 0x60
	OpLAdd  Opcode = 0x61
	OpFAdd  Opcode = 0x62
	OpDAdd  Opcode = 0x63
	OpISub  Opcode = 0x64
	OpLSub  Opcode = 0x65
	OpFSub  Opcode = 0x66
	OpDSub  Opcode = 0x67
	OpIMul  Opcode = 0x68
	OpLMul  Opcode = 0x69
	OpFMul  Opcode = 0x6A
	OpDMul  Opcode = 0x6B
	OpIDiv  Opcode = 0x6C
	OpLDiv  Opcode = 0x6D
	OpFDiv  Opcode = 0x6E
	OpDDiv  Opcode = 0x6F
	OpIRem  Opcode = 0x70
	OpLRem  Opcode = 0x71
	OpFRem  Opcode = 0x72
	OpDRem  Opcode = 0x73
	OpINeg  Opcode = 0x74
	OpLNeg  Opcode = 0x75
	OpFNeg  Opcode = 0x76
	OpDNeg  Opcode = 0x77
	OpIShl  Opcode = 0x78
	OpLShl  Opcode = 0x79
	OpIShr  Opcode = 0x7A
	OpLShr  Opcode = 0x7B
	OpIUShr Opcode = 0x7C
	OpLUShr Opcode = 0x7D
	OpIAnd  Opcode = 0x7E
	OpLAnd  Opcode = 0x7F
	OpIOr   Opcode = 0x80
	OpLOr   Opcode = 0x81
	OpIXor  Opcode = 0x82
	OpLXor  Opcode = 0x83
	OpIInc  Opcode = 0x84 // Increment local: OpIInc <slot:u8> <delta:i8>

	// ========================================================================
	// Conversions and comparisons (0x85-0x98)
	// ========================================================================

	OpI2L   Opcode = 0x85
	OpI2F   Opcode = 0x86
	OpI2D   Opcode = 0x87
	OpL2I   Opcode = 0x88
	OpL2F   Opcode = 0x89
	OpL2D   Opcode = 0x8A
	OpF2I   Opcode = 0x8B
	OpF2L   Opcode = 0x8C
	OpF2D   Opcode = 0x8D
	OpD2I   Opcode = 0x8E
	OpD2L   Opcode = 0x8F
	OpD2F   Opcode = 0x90
	OpI2B   Opcode = 0x91
	OpI2C   Opcode = 0x92
	OpI2S   Opcode = 0x93
	OpLCmp  Opcode = 0x94
	OpFCmpL Opcode = 0x95
	OpFCmpG Opcode = 0x96
	OpDCmpL Opcode = 0x97
	OpDCmpG Opcode = 0x98

	// ========================================================================
	// Branches (0x99-0xA8)
	// ========================================================================

	OpIfEq     Opcode = 0x99 // Branch if zero: OpIfEq <offset:i16>
	OpIfNe     Opcode = 0x9A
	OpIfLt     Opcode = 0x9B
	OpIfGe     Opcode = 0x9C
	OpIfGt     Opcode = 0x9D
	OpIfLe     Opcode = 0x9E
	OpIfICmpEq Opcode = 0x9F
	OpIfICmpNe Opcode = 0xA0
	OpIfICmpLt Opcode = 0xA1
	OpIfICmpGe Opcode = 0xA2
	OpIfICmpGt Opcode = 0xA3
	OpIfICmpLe Opcode = 0xA4
	OpIfACmpEq Opcode = 0xA5
	OpIfACmpNe Opcode = 0xA6
	OpGoto     Opcode = 0xA7
	OpJsr      Opcode = 0xA8
	OpRet      Opcode = 0xA9 // Return from subroutine: OpRet <slot:u8>

	// ========================================================================
	// Switch dispatch (0xAA-0xAB) - variable length, 4-byte aligned
	// ========================================================================

	OpTableSwitch  Opcode = 0xAA // Bounded dispatch: padding + default + low + high + jump table
	OpLookupSwitch Opcode = 0xAB // Keyed dispatch: padding + default + npairs + match/offset pairs

	// ========================================================================
	// Returns (0xAC-0xB1)
	// ========================================================================

	OpIReturn Opcode = 0xAC
	OpLReturn Opcode = 0xAD
	OpFReturn Opcode = 0xAE
	OpDReturn Opcode = 0xAF
	OpAReturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1

	// ========================================================================
	// Field and method access (0xB2-0xBA)
	// ========================================================================

	OpGetStatic       Opcode = 0xB2 // OpGetStatic <fieldref:u16>
	OpPutStatic       Opcode = 0xB3
	OpGetField        Opcode = 0xB4
	OpPutField        Opcode = 0xB5
	OpInvokeVirtual   Opcode = 0xB6 // OpInvokeVirtual <methodref:u16>
	OpInvokeSpecial   Opcode = 0xB7
	OpInvokeStatic    Opcode = 0xB8
	OpInvokeInterface Opcode = 0xB9 // OpInvokeInterface <methodref:u16> <count:u8> <0:u8>
	OpInvokeDynamic   Opcode = 0xBA // OpInvokeDynamic <callsite:u16> <0:u16>

	// ========================================================================
	// Object and array management (0xBB-0xC5)
	// ========================================================================

	OpNew            Opcode = 0xBB // OpNew <class:u16>
	OpNewArray       Opcode = 0xBC // OpNewArray <atype:u8>
	OpANewArray      Opcode = 0xBD // OpANewArray <class:u16>
	OpArrayLength    Opcode = 0xBE
	OpAThrow         Opcode = 0xBF
	OpCheckCast      Opcode = 0xC0 // OpCheckCast <class:u16>
	OpInstanceOf     Opcode = 0xC1 // OpInstanceOf <class:u16>
	OpMonitorEnter   Opcode = 0xC2
	OpMonitorExit    Opcode = 0xC3
	OpWide           Opcode = 0xC4 // Widens the following local-variable instruction
	OpMultiANewArray Opcode = 0xC5 // OpMultiANewArray <class:u16> <dims:u8>

	// ========================================================================
	// Extended branches (0xC6-0xC9)
	// ========================================================================

	OpIfNull    Opcode = 0xC6
	OpIfNonNull Opcode = 0xC7
	OpGotoW     Opcode = 0xC8 // OpGotoW <offset:i32>
	OpJsrW      Opcode = 0xC9
)

// lenVariable marks instructions whose length depends on operand content
// or code-array alignment (switch dispatch and wide-prefixed forms).
const lenVariable = -1

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name string // JVM mnemonic
	Len  int    // Total instruction length in bytes, or lenVariable
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"nop", 1}, OpAConstNull: {"aconst_null", 1},
	OpIConstM1: {"iconst_m1", 1}, OpIConst0: {"iconst_0", 1},
	OpIConst1: {"iconst_1", 1}, OpIConst2: {"iconst_2", 1},
	OpIConst3: {"iconst_3", 1}, OpIConst4: {"iconst_4", 1},
	OpIConst5: {"iconst_5", 1}, OpLConst0: {"lconst_0", 1},
	OpLConst1: {"lconst_1", 1}, OpFConst0: {"fconst_0", 1},
	OpFConst1: {"fconst_1", 1}, OpFConst2: {"fconst_2", 1},
	OpDConst0: {"dconst_0", 1}, OpDConst1: {"dconst_1", 1},

	OpBIPush: {"bipush", 2}, OpSIPush: {"sipush", 3},
	OpLdc: {"ldc", 2}, OpLdcW: {"ldc_w", 3}, OpLdc2W: {"ldc2_w", 3},

	OpILoad: {"iload", 2}, OpLLoad: {"lload", 2}, OpFLoad: {"fload", 2},
	OpDLoad: {"dload", 2}, OpALoad: {"aload", 2},
	OpILoad0: {"iload_0", 1}, OpILoad1: {"iload_1", 1},
	OpILoad2: {"iload_2", 1}, OpILoad3: {"iload_3", 1},
	OpLLoad0: {"lload_0", 1}, OpLLoad1: {"lload_1", 1},
	OpLLoad2: {"lload_2", 1}, OpLLoad3: {"lload_3", 1},
	OpFLoad0: {"fload_0", 1}, OpFLoad1: {"fload_1", 1},
	OpFLoad2: {"fload_2", 1}, OpFLoad3: {"fload_3", 1},
	OpDLoad0: {"dload_0", 1}, OpDLoad1: {"dload_1", 1},
	OpDLoad2: {"dload_2", 1}, OpDLoad3: {"dload_3", 1},
	OpALoad0: {"aload_0", 1}, OpALoad1: {"aload_1", 1},
	OpALoad2: {"aload_2", 1}, OpALoad3: {"aload_3", 1},

	OpIALoad: {"iaload", 1}, OpLALoad: {"laload", 1},
	OpFALoad: {"faload", 1}, OpDALoad: {"daload", 1},
	OpAALoad: {"aaload", 1}, OpBALoad: {"baload", 1},
	OpCALoad: {"caload", 1}, OpSALoad: {"saload", 1},

	OpIStore: {"istore", 2}, OpLStore: {"lstore", 2},
	OpFStore: {"fstore", 2}, OpDStore: {"dstore", 2}, OpAStore: {"astore", 2},
	OpIStore0: {"istore_0", 1}, OpIStore1: {"istore_1", 1},
	OpIStore2: {"istore_2", 1}, OpIStore3: {"istore_3", 1},
	OpLStore0: {"lstore_0", 1}, OpLStore1: {"lstore_1", 1},
	OpLStore2: {"lstore_2", 1}, OpLStore3: {"lstore_3", 1},
	OpFStore0: {"fstore_0", 1}, OpFStore1: {"fstore_1", 1},
	OpFStore2: {"fstore_2", 1}, OpFStore3: {"fstore_3", 1},
	OpDStore0: {"dstore_0", 1}, OpDStore1: {"dstore_1", 1},
	OpDStore2: {"dstore_2", 1}, OpDStore3: {"dstore_3", 1},
	OpAStore0: {"astore_0", 1}, OpAStore1: {"astore_1", 1},
	OpAStore2: {"astore_2", 1}, OpAStore3: {"astore_3", 1},

	OpIAStore: {"iastore", 1}, OpLAStore: {"lastore", 1},
	OpFAStore: {"fastore", 1}, OpDAStore: {"dastore", 1},
	OpAAStore: {"aastore", 1}, OpBAStore: {"bastore", 1},
	OpCAStore: {"castore", 1}, OpSAStore: {"sastore", 1},

	OpPop: {"pop", 1}, OpPop2: {"pop2", 1}, OpDup: {"dup", 1},
	OpDupX1: {"dup_x1", 1}, OpDupX2: {"dup_x2", 1}, OpDup2: {"dup2", 1},
	OpDup2X1: {"dup2_x1", 1}, OpDup2X2: {"dup2_x2", 1},
	OpSwapTop: {"swap", 1},

	OpIAdd: {"iadd", 1}, OpLAdd: {"ladd", 1}, OpFAdd: {"fadd", 1},
	OpDAdd: {"dadd", 1}, OpISub: {"isub", 1}, OpLSub: {"lsub", 1},
	OpFSub: {"fsub", 1}, OpDSub: {"dsub", 1}, OpIMul: {"imul", 1},
	OpLMul: {"lmul", 1}, OpFMul: {"fmul", 1}, OpDMul: {"dmul", 1},
	OpIDiv: {"idiv", 1}, OpLDiv: {"ldiv", 1}, OpFDiv: {"fdiv", 1},
	OpDDiv: {"ddiv", 1}, OpIRem: {"irem", 1}, OpLRem: {"lrem", 1},
	OpFRem: {"frem", 1}, OpDRem: {"drem", 1}, OpINeg: {"ineg", 1},
	OpLNeg: {"lneg", 1}, OpFNeg: {"fneg", 1}, OpDNeg: {"dneg", 1},
	OpIShl: {"ishl", 1}, OpLShl: {"lshl", 1}, OpIShr: {"ishr", 1},
	OpLShr: {"lshr", 1}, OpIUShr: {"iushr", 1}, OpLUShr: {"lushr", 1},
	OpIAnd: {"iand", 1}, OpLAnd: {"land", 1}, OpIOr: {"ior", 1},
	OpLOr: {"lor", 1}, OpIXor: {"ixor", 1}, OpLXor: {"lxor", 1},
	OpIInc: {"iinc", 3},

	OpI2L: {"i2l", 1}, OpI2F: {"i2f", 1}, OpI2D: {"i2d", 1},
	OpL2I: {"l2i", 1}, OpL2F: {"l2f", 1}, OpL2D: {"l2d", 1},
	OpF2I: {"f2i", 1}, OpF2L: {"f2l", 1}, OpF2D: {"f2d", 1},
	OpD2I: {"d2i", 1}, OpD2L: {"d2l", 1}, OpD2F: {"d2f", 1},
	OpI2B: {"i2b", 1}, OpI2C: {"i2c", 1}, OpI2S: {"i2s", 1},
	OpLCmp: {"lcmp", 1}, OpFCmpL: {"fcmpl", 1}, OpFCmpG: {"fcmpg", 1},
	OpDCmpL: {"dcmpl", 1}, OpDCmpG: {"dcmpg", 1},

	OpIfEq: {"ifeq", 3}, OpIfNe: {"ifne", 3}, OpIfLt: {"iflt", 3},
	OpIfGe: {"ifge", 3}, OpIfGt: {"ifgt", 3}, OpIfLe: {"ifle", 3},
	OpIfICmpEq: {"if_icmpeq", 3}, OpIfICmpNe: {"if_icmpne", 3},
	OpIfICmpLt: {"if_icmplt", 3}, OpIfICmpGe: {"if_icmpge", 3},
	OpIfICmpGt: {"if_icmpgt", 3}, OpIfICmpLe: {"if_icmple", 3},
	OpIfACmpEq: {"if_acmpeq", 3}, OpIfACmpNe: {"if_acmpne", 3},
	OpGoto: {"goto", 3}, OpJsr: {"jsr", 3}, OpRet: {"ret", 2},

	OpTableSwitch:  {"tableswitch", lenVariable},
	OpLookupSwitch: {"lookupswitch", lenVariable},

	OpIReturn: {"ireturn", 1}, OpLReturn: {"lreturn", 1},
	OpFReturn: {"freturn", 1}, OpDReturn: {"dreturn", 1},
	OpAReturn: {"areturn", 1}, OpReturn: {"return", 1},

	OpGetStatic: {"getstatic", 3}, OpPutStatic: {"putstatic", 3},
	OpGetField: {"getfield", 3}, OpPutField: {"putfield", 3},
	OpInvokeVirtual: {"invokevirtual", 3}, OpInvokeSpecial: {"invokespecial", 3},
	OpInvokeStatic: {"invokestatic", 3}, OpInvokeInterface: {"invokeinterface", 5},
	OpInvokeDynamic: {"invokedynamic", 5},

	OpNew: {"new", 3}, OpNewArray: {"newarray", 2},
	OpANewArray: {"anewarray", 3}, OpArrayLength: {"arraylength", 1},
	OpAThrow: {"athrow", 1}, OpCheckCast: {"checkcast", 3},
	OpInstanceOf: {"instanceof", 3}, OpMonitorEnter: {"monitorenter", 1},
	OpMonitorExit: {"monitorexit", 1}, OpWide: {"wide", lenVariable},
	OpMultiANewArray: {"multianewarray", 4},

	OpIfNull: {"ifnull", 3}, OpIfNonNull: {"ifnonnull", 3},
	OpGotoW: {"goto_w", 5}, OpJsrW: {"jsr_w", 5},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not defined.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), Len: 1}
}

// String returns the JVM mnemonic for an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// InstructionLen returns the total length of an instruction in bytes,
// or lenVariable for switch dispatch and the wide prefix.
func (op Opcode) InstructionLen() int {
	return GetOpcodeInfo(op).Len
}

// IsDefined returns true if the opcode is part of the instruction set.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsBranch returns true if this opcode is a conditional or unconditional branch.
func (op Opcode) IsBranch() bool {
	return (op >= OpIfEq && op <= OpJsr) || (op >= OpIfNull && op <= OpJsrW)
}

// IsInvoke returns true if this opcode calls a method.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokeVirtual && op <= OpInvokeDynamic
}

// IsReturn returns true if this opcode leaves the current method.
func (op Opcode) IsReturn() bool {
	return op >= OpIReturn && op <= OpReturn
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
