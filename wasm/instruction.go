package wasm

import (
	"github.com/corewasm/loader/errors"
	"github.com/corewasm/loader/wasm/internal/binary"
)

// Instruction is a decoded WebAssembly instruction. ContinuationPC and
// ElseContinuationPC are populated by the control-flow flattening pass
// (flatten.go) and are meaningless beforehand. body and alt hold the nested
// block/loop/if branches built during decode and are cleared once
// flattening absorbs them into the flat stream.
type Instruction struct {
	Imm                any
	Opcode             byte
	ContinuationPC     uint32
	ElseContinuationPC uint32
	body               []Instruction
	alt                []Instruction
}

// BlockImm holds the block type for block, loop, and if instructions.
type BlockImm struct {
	Type int64 // -64=void, -1..-4=i32/i64/f32/f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// TableImm holds table index for table.get/table.set
type TableImm struct {
	TableIdx uint32
}

// RefNullImm holds the reference type byte for ref.null. Only funcref and
// externref are in scope; the byte is stored as read and is not checked
// against those two encodings.
type RefNullImm struct {
	RefType ValType
}

// RefFuncImm holds the function index for ref.func
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds the value types for typed select.
type SelectTypeImm struct {
	Types []ValType
}

// GetCallTarget returns the call target if this is a call instruction
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// IsIndirectCall returns true if this is a call_indirect instruction
func (i Instruction) IsIndirectCall() bool {
	return i.Opcode == OpCallIndirect
}

// decodeInstructionList decodes instructions until (and including) a
// terminating end or else at the current nesting level. Nested block/loop/if
// bodies are fully consumed by recursive calls from decodeOneInstruction
// before control returns here, so this loop only ever sees a terminator that
// belongs to the caller's own level.
func decodeInstructionList(r *binary.Reader) ([]Instruction, error) {
	var out []Instruction
	for {
		instr, err := decodeOneInstruction(r)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
		if instr.Opcode == OpEnd || instr.Opcode == OpElse {
			return out, nil
		}
	}
}

func decodeOneInstruction(r *binary.Reader) (Instruction, error) {
	offset := r.Position()
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, errors.Decode(errors.KindUnexpectedEnd, offset, "instruction", err)
	}

	instr := Instruction{Opcode: op}

	switch op {
	case OpBlock, OpLoop:
		bt, err := r.ReadS33()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "block type", err)
		}
		instr.Imm = BlockImm{Type: bt}
		body, err := decodeInstructionList(r)
		if err != nil {
			return Instruction{}, err
		}
		instr.body = body

	case OpIf:
		bt, err := r.ReadS33()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "block type", err)
		}
		instr.Imm = BlockImm{Type: bt}
		trueBranch, err := decodeInstructionList(r)
		if err != nil {
			return Instruction{}, err
		}
		if trueBranch[len(trueBranch)-1].Opcode == OpElse {
			falseBranch, err := decodeInstructionList(r)
			if err != nil {
				return Instruction{}, err
			}
			instr.alt = falseBranch
		}
		instr.body = trueBranch

	case OpBr, OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "label index", err)
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case OpBrTable:
		count, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "br_table count", err)
		}
		labels := make([]uint32, count)
		for i := uint32(0); i < count; i++ {
			labels[i], err = r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "br_table label", err)
			}
		}
		def, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "br_table default", err)
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "func index", err)
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "type index", err)
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table index", err)
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "local index", err)
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "global index", err)
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case OpTableGet, OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table index", err)
		}
		instr.Imm = TableImm{TableIdx: idx}

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		memImm, err := readMemArg(r)
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memarg", err)
		}
		instr.Imm = memImm

	case OpMemorySize, OpMemoryGrow:
		memIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory index", err)
		}
		instr.Imm = MemoryIdxImm{MemIdx: memIdx}

	case OpI32Const:
		val, err := r.ReadS32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "i32.const", err)
		}
		instr.Imm = I32Imm{Value: val}

	case OpI64Const:
		val, err := r.ReadS64()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "i64.const", err)
		}
		instr.Imm = I64Imm{Value: val}

	case OpF32Const:
		val, err := r.ReadF32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindUnexpectedEnd, offset, "f32.const", err)
		}
		instr.Imm = F32Imm{Value: val}

	case OpF64Const:
		val, err := r.ReadF64()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindUnexpectedEnd, offset, "f64.const", err)
		}
		instr.Imm = F64Imm{Value: val}

	case OpRefNull:
		ht, err := r.ReadByte()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindUnexpectedEnd, offset, "ref.null", err)
		}
		instr.Imm = RefNullImm{RefType: ValType(ht)}

	case OpRefFunc:
		funcIdx, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "func index", err)
		}
		instr.Imm = RefFuncImm{FuncIdx: funcIdx}

	case OpSelectType:
		count, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "select type count", err)
		}
		types := make([]ValType, count)
		for i := uint32(0); i < count; i++ {
			t, err := r.ReadByte()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindUnexpectedEnd, offset, "select type", err)
			}
			types[i] = ValType(t)
		}
		instr.Imm = SelectTypeImm{Types: types}

	// No immediate
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect, OpRefIsNull,
		OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU,
		OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI64Eqz, OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU,
		OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU,
		OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge,
		OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge,
		OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Add, OpI32Sub, OpI32Mul,
		OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU, OpI32And, OpI32Or, OpI32Xor,
		OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr,
		OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Add, OpI64Sub, OpI64Mul,
		OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU, OpI64And, OpI64Or, OpI64Xor,
		OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr,
		OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt,
		OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign,
		OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt,
		OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign,
		OpI32WrapI64, OpI32TruncF32S, OpI32TruncF32U, OpI32TruncF64S, OpI32TruncF64U,
		OpI64ExtendI32S, OpI64ExtendI32U, OpI64TruncF32S, OpI64TruncF32U,
		OpI64TruncF64S, OpI64TruncF64U,
		OpF32ConvertI32S, OpF32ConvertI32U, OpF32ConvertI64S, OpF32ConvertI64U, OpF32DemoteF64,
		OpF64ConvertI32S, OpF64ConvertI32U, OpF64ConvertI64S, OpF64ConvertI64U, OpF64PromoteF32,
		OpI32ReinterpretF32, OpI64ReinterpretF64, OpF32ReinterpretI32, OpF64ReinterpretI64,
		OpI32Extend8S, OpI32Extend16S, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S:
		// No immediate

	case OpPrefixMisc:
		subOp, err := r.ReadU32()
		if err != nil {
			return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "0xFC sub-opcode", err)
		}
		imm := MiscImm{SubOpcode: subOp}
		switch subOp {
		case MiscI32TruncSatF32S, MiscI32TruncSatF32U,
			MiscI32TruncSatF64S, MiscI32TruncSatF64U,
			MiscI64TruncSatF32S, MiscI64TruncSatF32U,
			MiscI64TruncSatF64S, MiscI64TruncSatF64U:
			// Saturating truncations: no additional operands
		case MiscMemoryInit:
			dataidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory.init", err)
			}
			memidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory.init", err)
			}
			imm.Operands = []uint32{dataidx, memidx}
		case MiscDataDrop:
			dataidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "data.drop", err)
			}
			imm.Operands = []uint32{dataidx}
		case MiscMemoryCopy:
			dstMem, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory.copy", err)
			}
			srcMem, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory.copy", err)
			}
			imm.Operands = []uint32{dstMem, srcMem}
		case MiscMemoryFill:
			memIdx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "memory.fill", err)
			}
			imm.Operands = []uint32{memIdx}
		case MiscTableInit:
			elemidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table.init", err)
			}
			tableidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table.init", err)
			}
			imm.Operands = []uint32{elemidx, tableidx}
		case MiscElemDrop:
			elemidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "elem.drop", err)
			}
			imm.Operands = []uint32{elemidx}
		case MiscTableCopy:
			dst, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table.copy", err)
			}
			src, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table.copy", err)
			}
			imm.Operands = []uint32{dst, src}
		case MiscTableGrow, MiscTableSize, MiscTableFill:
			tableidx, err := r.ReadU32()
			if err != nil {
				return Instruction{}, errors.Decode(errors.KindMalformedLEB, offset, "table op", err)
			}
			imm.Operands = []uint32{tableidx}
		default:
			return Instruction{}, errors.Decode(errors.KindUnknownSubEncoding, offset, "0xFC sub-opcode", nil)
		}
		instr.Imm = imm

	default:
		return Instruction{}, errors.Decode(errors.KindUnknownOpcode, offset, "opcode", nil)
	}

	return instr, nil
}

// Multi-memory memarg bit flag
const memArgMultiMemBit = 0x40

// readMemArg reads a memarg with multi-memory support.
// If bit 6 of align is set, a separate memidx LEB128 follows.
func readMemArg(r *binary.Reader) (MemoryImm, error) {
	alignRaw, err := r.ReadU32()
	if err != nil {
		return MemoryImm{}, err
	}

	var memIdx uint32
	if alignRaw&memArgMultiMemBit != 0 {
		memIdx, err = r.ReadU32()
		if err != nil {
			return MemoryImm{}, err
		}
	}

	offset, err := r.ReadU32()
	if err != nil {
		return MemoryImm{}, err
	}

	return MemoryImm{
		Align:  alignRaw &^ uint32(memArgMultiMemBit),
		Offset: uint64(offset),
		MemIdx: memIdx,
	}, nil
}
