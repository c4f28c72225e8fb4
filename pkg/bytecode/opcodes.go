package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpPop                 Opcode = 0x00 // Pop top of stack
	OpDup                 Opcode = 0x01 // Duplicate top of stack
	OpDupN                Opcode = 0x02 // Duplicate top n cells: DUPN <n:u8>
	OpRot                 Opcode = 0x03 // Swap top two cells
	OpPushNil             Opcode = 0x04 // Push undefined
	OpPushTrue            Opcode = 0x05 // Push logical true
	OpPushFalse           Opcode = 0x06 // Push logical false
	OpPushPi              Opcode = 0x07 // Push pi
	OpPushDbl0            Opcode = 0x08 // Push 0
	OpPushDbl1            Opcode = 0x09 // Push 1
	OpPushDbl2            Opcode = 0x0A // Push 2
	OpPopNInts            Opcode = 0x0B // Pop n native integer cells: POP_N_INTS <n:u8>
	OpSetSlotToStackDepth Opcode = 0x0C // slot <- current operand depth: <slot>
	OpExpandCSList        Opcode = 0x0D // Replace a cs-list on top with its elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpLoadCst       Opcode = 0x10 // Push constant: LOAD_CST <const>
	OpLoadCstAlt2   Opcode = 0x11 // Same as LOAD_CST
	OpLoadCstAlt3   Opcode = 0x12 // Same as LOAD_CST
	OpLoadCstAlt4   Opcode = 0x13 // Same as LOAD_CST
	OpLoad2Cst      Opcode = 0x14 // Push constants c and c+1: LOAD_2_CST <const>
	OpLoadFarCst    Opcode = 0x15 // Push constant: LOAD_FAR_CST <const:u32>
	OpPushFoldedCst Opcode = 0x16 // Push cached fold and jump, else fall through: <slot> <target:u16>
	OpSetFoldedCst  Opcode = 0x17 // Cache top of stack as folded constant: <slot>

	// ========================================================================
	// Binary operators (0x20-0x2F)
	// ========================================================================

	OpAdd    Opcode = 0x20 // Pop b, pop a, push a + b
	OpSub    Opcode = 0x21 // a - b
	OpMul    Opcode = 0x22 // a * b (matrix product)
	OpDiv    Opcode = 0x23 // a / b
	OpPow    Opcode = 0x24 // a ^ b
	OpLDiv   Opcode = 0x25 // a \ b
	OpElMul  Opcode = 0x26 // a .* b
	OpElDiv  Opcode = 0x27 // a ./ b
	OpElPow  Opcode = 0x28 // a .^ b
	OpElLDiv Opcode = 0x29 // a .\ b
	OpElAnd  Opcode = 0x2A // a & b
	OpElOr   Opcode = 0x2B // a | b

	// ========================================================================
	// Comparison (0x30-0x37)
	// ========================================================================

	OpLe   Opcode = 0x30 // a < b
	OpLeEq Opcode = 0x31 // a <= b
	OpGr   Opcode = 0x32 // a > b
	OpGrEq Opcode = 0x33 // a >= b
	OpEq   Opcode = 0x34 // a == b
	OpNeq  Opcode = 0x35 // a != b

	// ========================================================================
	// Compound products (0x38-0x3F)
	// ========================================================================

	OpTransMul  Opcode = 0x38 // a.' * b
	OpMulTrans  Opcode = 0x39 // a * b.'
	OpHermMul   Opcode = 0x3A // a' * b
	OpMulHerm   Opcode = 0x3B // a * b'
	OpTransLDiv Opcode = 0x3C // a.' \ b
	OpHermLDiv  Opcode = 0x3D // a' \ b

	// ========================================================================
	// Ranges (0x40-0x47)
	// ========================================================================

	OpColon2    Opcode = 0x40 // Pop limit, base; push base:limit
	OpColon3    Opcode = 0x41 // Pop limit, inc, base; push base:inc:limit
	OpColon2Cmd Opcode = 0x42 // COLON2 in command context
	OpColon3Cmd Opcode = 0x43 // COLON3 in command context

	// ========================================================================
	// Unary operators (0x48-0x4F)
	// ========================================================================

	OpNot        Opcode = 0x48 // !a
	OpUAdd       Opcode = 0x49 // +a
	OpUSub       Opcode = 0x4A // -a
	OpTrans      Opcode = 0x4B // a.'
	OpHerm       Opcode = 0x4C // a'
	OpUnaryTrue  Opcode = 0x4D // Push logical(a) as used by && and ||
	OpIncrPrefix Opcode = 0x4E // Pop a, push a + 1

	// ========================================================================
	// Double fast paths (0x50-0x5F): operands are real scalars
	// ========================================================================

	OpAddDbl  Opcode = 0x50
	OpSubDbl  Opcode = 0x51
	OpMulDbl  Opcode = 0x52
	OpDivDbl  Opcode = 0x53
	OpPowDbl  Opcode = 0x54
	OpLeDbl   Opcode = 0x55
	OpLeEqDbl Opcode = 0x56
	OpGrDbl   Opcode = 0x57
	OpGrEqDbl Opcode = 0x58
	OpEqDbl   Opcode = 0x59
	OpNeqDbl  Opcode = 0x5A
	OpUSubDbl Opcode = 0x5B
	OpNotDbl  Opcode = 0x5C
	OpNotBool Opcode = 0x5D

	// ========================================================================
	// Slots (0x60-0x6F)
	// ========================================================================

	OpPushSlotNargout0        Opcode = 0x60 // Push variable or call function with nargout=0: <slot>
	OpPushSlotNargout1        Opcode = 0x61 // Same with nargout=1: <slot>
	OpPushSlotNargoutN        Opcode = 0x62 // Same with nargout=n, pushes one cs-list: <slot> <n:u8>
	OpPushSlotNargout1Special Opcode = 0x63 // Push variable or undefined, never calls: <slot>
	OpPushSlotIndexed         Opcode = 0x64 // Push variable or a handle to the function: <slot>
	OpPushSlotDisp            Opcode = 0x65 // Push for display, calling with nargout=0: <slot>
	OpAssign                  Opcode = 0x66 // Pop into slot: <slot>
	OpForceAssign             Opcode = 0x67 // Pop into slot, undefined allowed: <slot>
	OpAssignN                 Opcode = 0x68 // Multi-target assignment, targets in constant: <const>
	OpAssignCompound          Opcode = 0x69 // slot = slot <op> pop: <slot> <op:u8>
	OpBindAns                 Opcode = 0x6A // Pop into slot if defined: <slot>
	OpGlobalInit              Opcode = 0x6B // Bind slot to global/persistent storage: <kind:u8> <slot>
	OpDisp                    Opcode = 0x6C // Pop and display under slot's name: <slot>

	// ========================================================================
	// Increment/decrement by slot (0x70-0x77)
	// ========================================================================

	OpIncrIDPrefix     Opcode = 0x70 // ++x: <slot>
	OpDecrIDPrefix     Opcode = 0x71 // --x: <slot>
	OpIncrIDPostfix    Opcode = 0x72 // x++: <slot>
	OpDecrIDPostfix    Opcode = 0x73 // x--: <slot>
	OpIncrIDPrefixDbl  Opcode = 0x74
	OpDecrIDPrefixDbl  Opcode = 0x75
	OpIncrIDPostfixDbl Opcode = 0x76
	OpDecrIDPostfixDbl Opcode = 0x77

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJmp                   Opcode = 0x80 // Jump: JMP <target:u16>
	OpJmpIf                 Opcode = 0x81 // Pop, jump if true
	OpJmpIfn                Opcode = 0x82 // Pop, jump if false
	OpJmpIfBool             Opcode = 0x83 // JMP_IF on a known logical scalar
	OpJmpIfnBool            Opcode = 0x84 // JMP_IFN on a known logical scalar
	OpJmpIfdef              Opcode = 0x85 // Pop, jump if defined
	OpJmpIfnCaseMatch       Opcode = 0x86 // Pop label, pop value, jump unless case matches
	OpJmpUnwind             Opcode = 0x87 // Non-local jump running crossed cleanups (break/return)
	OpBraindeadPrecondition Opcode = 0x88 // Jump if top is a scalar (short-circuit | and &)
	OpBraindeadWarning      Opcode = 0x89 // Warn about short-circuit evaluation in a condition
	OpRet                   Opcode = 0x8A // Return output slots to the caller
	OpThrowIfErrObj         Opcode = 0x8B // End of cleanup: resume a pending error or jump
	OpHandleSignals         Opcode = 0x8C // Poll for interrupts
	OpDebug                 Opcode = 0x8D // Debugger/trace marker

	// ========================================================================
	// Loops (0x90-0x9F)
	// ========================================================================

	OpForSetup        Opcode = 0x90 // Pop iterable; push iterable, count, cursor
	OpForCond         Opcode = 0x91 // Bind next column or exit loop: <slot>
	OpForComplexSetup Opcode = 0x92 // Pop struct/cell/cs-list; push iterable, count, cursor
	OpForComplexCond  Opcode = 0x93 // Bind next value and key or exit: <vslot> <kslot>

	// ========================================================================
	// Indexing and calls (0xA0-0xAF)
	// ========================================================================

	OpIndexIDNargout0     Opcode = 0xA0 // id(args) with nargout=0: <slot> <nargs:u8>
	OpIndexIDNargout1     Opcode = 0xA1 // id(args) with nargout=1: <slot> <nargs:u8>
	OpIndexIDN            Opcode = 0xA2 // id(args) with nargout=n: <slot> <nargs:u8> <n:u8>
	OpIndexCellIDNargout0 Opcode = 0xA3 // id{args}: <slot> <nargs:u8>
	OpIndexCellIDNargout1 Opcode = 0xA4 // id{args}: <slot> <nargs:u8>
	OpIndexCellIDNargoutN Opcode = 0xA5 // id{args}: <slot> <nargs:u8> <n:u8>
	OpIndexID1Mat1D       Opcode = 0xA6 // Matrix variable, one scalar subscript: <slot>
	OpIndexID1Mat2D       Opcode = 0xA7 // Matrix variable, two scalar subscripts: <slot>
	OpIndexID1MathyUfun   Opcode = 0xA8 // Unshadowed math function of one argument: <slot> <fn:u8>
	OpIndexStructNargoutN Opcode = 0xA9 // Pop struct, push field: <n:u8> <name>
	OpIndexStructCall     Opcode = 0xAA // base.name(args), method or field then index: <name> <nargs:u8> <n:u8>
	OpIndexObj            Opcode = 0xAB // Pop args and base, index or call: <n:u8> <nargs:u8> <type:u8>
	OpWordCmd             Opcode = 0xAC // Command syntax call: <slot> <nargs:u8> <n:u8>
	OpEval                Opcode = 0xAD // Pop code string and evaluate: <n:u8>
	OpEndID               Opcode = 0xAE // 'end' for a variable: <slot> <nargs:u8> <pos:u8>
	OpEndObj              Opcode = 0xAF // 'end' for a stack value: <depth:u8> <nargs:u8> <pos:u8>

	// ========================================================================
	// Handles and output control (0xB0-0xBF)
	// ========================================================================

	OpPushFcnHandle     Opcode = 0xB0 // Push @name: <name>
	OpPushAnonFcnHandle Opcode = 0xB1 // Instantiate anonymous function template: <const>
	OpSetIgnoreOutputs  Opcode = 0xB2 // Ignored outputs of the next call: <const>
	OpClearIgnoreOutputs Opcode = 0xB3

	// ========================================================================
	// Sub-assignment (0xC0-0xCF)
	// ========================================================================

	OpSubassignID      Opcode = 0xC0 // id(args) = rhs: <slot> <nargs:u8>
	OpSubassignIDMat1D Opcode = 0xC1 // id(i) = scalar on a matrix: <slot>
	OpSubassignCellID  Opcode = 0xC2 // id{args} = rhs: <slot> <nargs:u8>
	OpSubassignStruct  Opcode = 0xC3 // id.name = rhs: <slot> <name>
	OpSubassignObj     Opcode = 0xC4 // Pop rhs, args, base; push modified base: <nargs:u8> <type:u8>
	OpSubassignChained Opcode = 0xC5 // id<chain> = rhs, chain descriptor in constant: <slot> <const>

	// ========================================================================
	// Aggregates (0xD0-0xDF)
	// ========================================================================

	OpMatrix       Opcode = 0xD0 // Matrix literal: <rows:u8> <cols:u8>
	OpMatrixUneven Opcode = 0xD1 // Matrix literal, row lengths in constant: <const>
	OpPushCell     Opcode = 0xD2 // Cell literal: <rows:u8> <cols:u8>

	// ========================================================================
	// Prefix (0xFF)
	// ========================================================================

	OpWide Opcode = 0xFF // Widen slot/constant/name operands of the next instruction to u16
)

// OperandKind describes one operand of an instruction.
type OperandKind uint8

const (
	OperandSlot     OperandKind = iota + 1 // Slot index: u8, u16 after WIDE
	OperandConst                           // Constant pool index: u8, u16 after WIDE
	OperandName                            // Name pool index: u8, u16 after WIDE
	OperandCount                           // Small count or selector: u8
	OperandTarget                          // Absolute jump target: u16
	OperandFarConst                        // Constant pool index: u32
)

// Width returns the encoded size of the operand.
func (k OperandKind) Width(wide bool) int {
	switch k {
	case OperandSlot, OperandConst, OperandName:
		if wide {
			return 2
		}
		return 1
	case OperandCount:
		return 1
	case OperandTarget:
		return 2
	case OperandFarConst:
		return 4
	}
	return 0
}

// Widenable reports whether WIDE changes the operand's width.
func (k OperandKind) Widenable() bool {
	return k == OperandSlot || k == OperandConst || k == OperandName
}

func (k OperandKind) String() string {
	switch k {
	case OperandSlot:
		return "slot"
	case OperandConst:
		return "const"
	case OperandName:
		return "name"
	case OperandCount:
		return "count"
	case OperandTarget:
		return "target"
	case OperandFarConst:
		return "farconst"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// MaxOperands is the largest operand count of any opcode.
const MaxOperands = 3

// OpcodeInfo provides metadata about each opcode for decoding and listing.
type OpcodeInfo struct {
	Name     string        // Human-readable name
	Operands []OperandKind // Operand layout following the opcode byte
}

const (
	oSlot   = OperandSlot
	oConst  = OperandConst
	oName   = OperandName
	oCount  = OperandCount
	oTarget = OperandTarget
)

func ops(kinds ...OperandKind) []OperandKind { return kinds }

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpPop:                 {"POP", nil},
	OpDup:                 {"DUP", nil},
	OpDupN:                {"DUPN", ops(oCount)},
	OpRot:                 {"ROT", nil},
	OpPushNil:             {"PUSH_NIL", nil},
	OpPushTrue:            {"PUSH_TRUE", nil},
	OpPushFalse:           {"PUSH_FALSE", nil},
	OpPushPi:              {"PUSH_PI", nil},
	OpPushDbl0:            {"PUSH_DBL_0", nil},
	OpPushDbl1:            {"PUSH_DBL_1", nil},
	OpPushDbl2:            {"PUSH_DBL_2", nil},
	OpPopNInts:            {"POP_N_INTS", ops(oCount)},
	OpSetSlotToStackDepth: {"SET_SLOT_TO_STACK_DEPTH", ops(oSlot)},
	OpExpandCSList:        {"EXPAND_CS_LIST", nil},

	// Constants
	OpLoadCst:       {"LOAD_CST", ops(oConst)},
	OpLoadCstAlt2:   {"LOAD_CST_ALT2", ops(oConst)},
	OpLoadCstAlt3:   {"LOAD_CST_ALT3", ops(oConst)},
	OpLoadCstAlt4:   {"LOAD_CST_ALT4", ops(oConst)},
	OpLoad2Cst:      {"LOAD_2_CST", ops(oConst)},
	OpLoadFarCst:    {"LOAD_FAR_CST", ops(OperandFarConst)},
	OpPushFoldedCst: {"PUSH_FOLDED_CST", ops(oSlot, oTarget)},
	OpSetFoldedCst:  {"SET_FOLDED_CST", ops(oSlot)},

	// Binary
	OpAdd:    {"ADD", nil},
	OpSub:    {"SUB", nil},
	OpMul:    {"MUL", nil},
	OpDiv:    {"DIV", nil},
	OpPow:    {"POW", nil},
	OpLDiv:   {"LDIV", nil},
	OpElMul:  {"EL_MUL", nil},
	OpElDiv:  {"EL_DIV", nil},
	OpElPow:  {"EL_POW", nil},
	OpElLDiv: {"EL_LDIV", nil},
	OpElAnd:  {"EL_AND", nil},
	OpElOr:   {"EL_OR", nil},

	// Comparison
	OpLe:   {"LE", nil},
	OpLeEq: {"LE_EQ", nil},
	OpGr:   {"GR", nil},
	OpGrEq: {"GR_EQ", nil},
	OpEq:   {"EQ", nil},
	OpNeq:  {"NEQ", nil},

	// Compound products
	OpTransMul:  {"TRANS_MUL", nil},
	OpMulTrans:  {"MUL_TRANS", nil},
	OpHermMul:   {"HERM_MUL", nil},
	OpMulHerm:   {"MUL_HERM", nil},
	OpTransLDiv: {"TRANS_LDIV", nil},
	OpHermLDiv:  {"HERM_LDIV", nil},

	// Ranges
	OpColon2:    {"COLON2", nil},
	OpColon3:    {"COLON3", nil},
	OpColon2Cmd: {"COLON2_CMD", nil},
	OpColon3Cmd: {"COLON3_CMD", nil},

	// Unary
	OpNot:        {"NOT", nil},
	OpUAdd:       {"UADD", nil},
	OpUSub:       {"USUB", nil},
	OpTrans:      {"TRANS", nil},
	OpHerm:       {"HERM", nil},
	OpUnaryTrue:  {"UNARY_TRUE", nil},
	OpIncrPrefix: {"INCR_PREFIX", nil},

	// Double fast paths
	OpAddDbl:  {"ADD_DBL", nil},
	OpSubDbl:  {"SUB_DBL", nil},
	OpMulDbl:  {"MUL_DBL", nil},
	OpDivDbl:  {"DIV_DBL", nil},
	OpPowDbl:  {"POW_DBL", nil},
	OpLeDbl:   {"LE_DBL", nil},
	OpLeEqDbl: {"LE_EQ_DBL", nil},
	OpGrDbl:   {"GR_DBL", nil},
	OpGrEqDbl: {"GR_EQ_DBL", nil},
	OpEqDbl:   {"EQ_DBL", nil},
	OpNeqDbl:  {"NEQ_DBL", nil},
	OpUSubDbl: {"USUB_DBL", nil},
	OpNotDbl:  {"NOT_DBL", nil},
	OpNotBool: {"NOT_BOOL", nil},

	// Slots
	OpPushSlotNargout0:        {"PUSH_SLOT_NARGOUT0", ops(oSlot)},
	OpPushSlotNargout1:        {"PUSH_SLOT_NARGOUT1", ops(oSlot)},
	OpPushSlotNargoutN:        {"PUSH_SLOT_NARGOUTN", ops(oSlot, oCount)},
	OpPushSlotNargout1Special: {"PUSH_SLOT_NARGOUT1_SPECIAL", ops(oSlot)},
	OpPushSlotIndexed:         {"PUSH_SLOT_INDEXED", ops(oSlot)},
	OpPushSlotDisp:            {"PUSH_SLOT_DISP", ops(oSlot)},
	OpAssign:                  {"ASSIGN", ops(oSlot)},
	OpForceAssign:             {"FORCE_ASSIGN", ops(oSlot)},
	OpAssignN:                 {"ASSIGNN", ops(oConst)},
	OpAssignCompound:          {"ASSIGN_COMPOUND", ops(oSlot, oCount)},
	OpBindAns:                 {"BIND_ANS", ops(oSlot)},
	OpGlobalInit:              {"GLOBAL_INIT", ops(oCount, oSlot)},
	OpDisp:                    {"DISP", ops(oSlot)},

	// Increment/decrement
	OpIncrIDPrefix:     {"INCR_ID_PREFIX", ops(oSlot)},
	OpDecrIDPrefix:     {"DECR_ID_PREFIX", ops(oSlot)},
	OpIncrIDPostfix:    {"INCR_ID_POSTFIX", ops(oSlot)},
	OpDecrIDPostfix:    {"DECR_ID_POSTFIX", ops(oSlot)},
	OpIncrIDPrefixDbl:  {"INCR_ID_PREFIX_DBL", ops(oSlot)},
	OpDecrIDPrefixDbl:  {"DECR_ID_PREFIX_DBL", ops(oSlot)},
	OpIncrIDPostfixDbl: {"INCR_ID_POSTFIX_DBL", ops(oSlot)},
	OpDecrIDPostfixDbl: {"DECR_ID_POSTFIX_DBL", ops(oSlot)},

	// Control flow
	OpJmp:                   {"JMP", ops(oTarget)},
	OpJmpIf:                 {"JMP_IF", ops(oTarget)},
	OpJmpIfn:                {"JMP_IFN", ops(oTarget)},
	OpJmpIfBool:             {"JMP_IF_BOOL", ops(oTarget)},
	OpJmpIfnBool:            {"JMP_IFN_BOOL", ops(oTarget)},
	OpJmpIfdef:              {"JMP_IFDEF", ops(oTarget)},
	OpJmpIfnCaseMatch:       {"JMP_IFNCASEMATCH", ops(oTarget)},
	OpJmpUnwind:             {"JMP_UNWIND", ops(oTarget)},
	OpBraindeadPrecondition: {"BRAINDEAD_PRECONDITION", ops(oTarget)},
	OpBraindeadWarning:      {"BRAINDEAD_WARNING", nil},
	OpRet:                   {"RET", nil},
	OpThrowIfErrObj:         {"THROW_IFERROBJ", nil},
	OpHandleSignals:         {"HANDLE_SIGNALS", nil},
	OpDebug:                 {"DEBUG", nil},

	// Loops
	OpForSetup:        {"FOR_SETUP", nil},
	OpForCond:         {"FOR_COND", ops(oSlot)},
	OpForComplexSetup: {"FOR_COMPLEX_SETUP", nil},
	OpForComplexCond:  {"FOR_COMPLEX_COND", ops(oSlot, oSlot)},

	// Indexing and calls
	OpIndexIDNargout0:     {"INDEX_ID_NARGOUT0", ops(oSlot, oCount)},
	OpIndexIDNargout1:     {"INDEX_ID_NARGOUT1", ops(oSlot, oCount)},
	OpIndexIDN:            {"INDEX_IDN", ops(oSlot, oCount, oCount)},
	OpIndexCellIDNargout0: {"INDEX_CELL_ID_NARGOUT0", ops(oSlot, oCount)},
	OpIndexCellIDNargout1: {"INDEX_CELL_ID_NARGOUT1", ops(oSlot, oCount)},
	OpIndexCellIDNargoutN: {"INDEX_CELL_ID_NARGOUTN", ops(oSlot, oCount, oCount)},
	OpIndexID1Mat1D:       {"INDEX_ID1_MAT_1D", ops(oSlot)},
	OpIndexID1Mat2D:       {"INDEX_ID1_MAT_2D", ops(oSlot)},
	OpIndexID1MathyUfun:   {"INDEX_ID1_MATHY_UFUN", ops(oSlot, oCount)},
	OpIndexStructNargoutN: {"INDEX_STRUCT_NARGOUTN", ops(oCount, oName)},
	OpIndexStructCall:     {"INDEX_STRUCT_CALL", ops(oName, oCount, oCount)},
	OpIndexObj:            {"INDEX_OBJ", ops(oCount, oCount, oCount)},
	OpWordCmd:             {"WORDCMD", ops(oSlot, oCount, oCount)},
	OpEval:                {"EVAL", ops(oCount)},
	OpEndID:               {"END_ID", ops(oSlot, oCount, oCount)},
	OpEndObj:              {"END_OBJ", ops(oCount, oCount, oCount)},

	// Handles and output control
	OpPushFcnHandle:      {"PUSH_FCN_HANDLE", ops(oName)},
	OpPushAnonFcnHandle:  {"PUSH_ANON_FCN_HANDLE", ops(oConst)},
	OpSetIgnoreOutputs:   {"SET_IGNORE_OUTPUTS", ops(oConst)},
	OpClearIgnoreOutputs: {"CLEAR_IGNORE_OUTPUTS", nil},

	// Sub-assignment
	OpSubassignID:      {"SUBASSIGN_ID", ops(oSlot, oCount)},
	OpSubassignIDMat1D: {"SUBASSIGN_ID_MAT_1D", ops(oSlot)},
	OpSubassignCellID:  {"SUBASSIGN_CELL_ID", ops(oSlot, oCount)},
	OpSubassignStruct:  {"SUBASSIGN_STRUCT", ops(oSlot, oName)},
	OpSubassignObj:     {"SUBASSIGN_OBJ", ops(oCount, oCount)},
	OpSubassignChained: {"SUBASSIGN_CHAINED", ops(oSlot, oConst)},

	// Aggregates
	OpMatrix:       {"MATRIX", ops(oCount, oCount)},
	OpMatrixUneven: {"MATRIX_UNEVEN", ops(oConst)},
	OpPushCell:     {"PUSH_CELL", ops(oCount, oCount)},

	// Prefix
	OpWide: {"WIDE", nil},
}

// opcodeInfoArray is opcodeInfoTable indexed by opcode byte for decoding.
var (
	opcodeInfoArray [256]OpcodeInfo
	opcodeDefined   [256]bool
	opcodeByName    = map[string]Opcode{}
)

func init() {
	for op, info := range opcodeInfoTable {
		opcodeInfoArray[op] = info
		opcodeDefined[op] = true
		opcodeByName[info.Name] = op
	}
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if opcodeDefined[op] {
		return opcodeInfoArray[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode finds an opcode by its listing name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return opcodeDefined[op]
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen(wide bool) int {
	n := 0
	for _, k := range opcodeInfoArray[op].Operands {
		n += k.Width(wide)
	}
	return n
}

// InstructionLen returns the total length of an instruction (opcode,
// optional WIDE prefix and operand bytes).
func (op Opcode) InstructionLen(wide bool) int {
	n := 1 + op.OperandLen(wide)
	if wide {
		n++
	}
	return n
}

// CanWiden reports whether WIDE may prefix this opcode.
func (op Opcode) CanWiden() bool {
	for _, k := range opcodeInfoArray[op].Operands {
		if k.Widenable() {
			return true
		}
	}
	return false
}

// IsJump returns true if this opcode carries a jump target.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpBraindeadPrecondition || op == OpPushFoldedCst
}

// IsDouble returns true for the real-scalar fast-path family.
func (op Opcode) IsDouble() bool {
	return op >= OpAddDbl && op <= OpNotBool || op >= OpIncrIDPrefixDbl && op <= OpDecrIDPostfixDbl
}

// IsCall returns true if this opcode may invoke a function.
func (op Opcode) IsCall() bool {
	switch op {
	case OpPushSlotNargout0, OpPushSlotNargout1, OpPushSlotNargoutN, OpPushSlotDisp,
		OpIndexIDNargout0, OpIndexIDNargout1, OpIndexIDN,
		OpIndexStructCall, OpIndexObj, OpWordCmd, OpEval:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
