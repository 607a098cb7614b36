package wasm

import (
	"bytes"
	"testing"

	"github.com/corewasm/loader/wasm/internal/binary"
)

func decodeBytes(t *testing.T, data []byte) Instruction {
	t.Helper()
	r := binary.NewReader(bytes.NewReader(data))
	instr, err := decodeOneInstruction(r)
	if err != nil {
		t.Fatalf("decodeOneInstruction: %v", err)
	}
	return instr
}

func TestDecodeControlInstructions(t *testing.T) {
	t.Run("block", func(t *testing.T) {
		// block (void) nop end
		instr := decodeBytes(t, []byte{OpBlock, 0x40, OpNop, OpEnd})
		if instr.Opcode != OpBlock {
			t.Fatalf("opcode = 0x%02x, want OpBlock", instr.Opcode)
		}
		imm, ok := instr.Imm.(BlockImm)
		if !ok || imm.Type != -64 {
			t.Fatalf("Imm = %#v, want BlockImm{Type: -64}", instr.Imm)
		}
		if len(instr.body) != 2 || instr.body[0].Opcode != OpNop || instr.body[1].Opcode != OpEnd {
			t.Fatalf("body = %#v", instr.body)
		}
	})

	t.Run("loop with typed result", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpLoop, 0x7F, OpEnd}) // i32 result
		imm, ok := instr.Imm.(BlockImm)
		if !ok || imm.Type != -1 {
			t.Fatalf("Imm = %#v, want BlockImm{Type: -1}", instr.Imm)
		}
	})

	t.Run("if without else", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpIf, 0x40, OpNop, OpEnd})
		if len(instr.body) != 2 || instr.alt != nil {
			t.Fatalf("body = %#v, alt = %#v", instr.body, instr.alt)
		}
	})

	t.Run("if with else", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpIf, 0x40, OpNop, OpElse, OpNop, OpEnd})
		if len(instr.body) != 2 || instr.body[1].Opcode != OpElse {
			t.Fatalf("body = %#v", instr.body)
		}
		if len(instr.alt) != 2 || instr.alt[1].Opcode != OpEnd {
			t.Fatalf("alt = %#v", instr.alt)
		}
	})

	t.Run("br", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpBr, 0x02})
		imm, ok := instr.Imm.(BranchImm)
		if !ok || imm.LabelIdx != 2 {
			t.Fatalf("Imm = %#v, want BranchImm{LabelIdx: 2}", instr.Imm)
		}
	})

	t.Run("br_if", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpBrIf, 0x01})
		imm, ok := instr.Imm.(BranchImm)
		if !ok || imm.LabelIdx != 1 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("br_table", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpBrTable, 0x02, 0x00, 0x01, 0x03})
		imm, ok := instr.Imm.(BrTableImm)
		if !ok {
			t.Fatalf("Imm = %#v, want BrTableImm", instr.Imm)
		}
		if len(imm.Labels) != 2 || imm.Labels[0] != 0 || imm.Labels[1] != 1 || imm.Default != 3 {
			t.Fatalf("BrTableImm = %#v", imm)
		}
	})

	t.Run("return and unreachable have no immediate", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpReturn})
		if instr.Imm != nil {
			t.Fatalf("Imm = %#v, want nil", instr.Imm)
		}
		instr = decodeBytes(t, []byte{OpUnreachable})
		if instr.Imm != nil {
			t.Fatalf("Imm = %#v, want nil", instr.Imm)
		}
	})
}

func TestDecodeCallInstructions(t *testing.T) {
	t.Run("call", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpCall, 0x05})
		imm, ok := instr.Imm.(CallImm)
		if !ok || imm.FuncIdx != 5 {
			t.Fatalf("Imm = %#v, want CallImm{FuncIdx: 5}", instr.Imm)
		}
	})

	t.Run("call_indirect", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpCallIndirect, 0x03, 0x00})
		imm, ok := instr.Imm.(CallIndirectImm)
		if !ok || imm.TypeIdx != 3 || imm.TableIdx != 0 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})
}

func TestDecodeLocalGlobalInstructions(t *testing.T) {
	cases := []struct {
		name string
		op   byte
	}{
		{"local.get", OpLocalGet},
		{"local.set", OpLocalSet},
		{"local.tee", OpLocalTee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			instr := decodeBytes(t, []byte{tc.op, 0x07})
			imm, ok := instr.Imm.(LocalImm)
			if !ok || imm.LocalIdx != 7 {
				t.Fatalf("Imm = %#v, want LocalImm{LocalIdx: 7}", instr.Imm)
			}
		})
	}

	t.Run("global.get", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpGlobalGet, 0x01})
		imm, ok := instr.Imm.(GlobalImm)
		if !ok || imm.GlobalIdx != 1 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("global.set", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpGlobalSet, 0x02})
		imm, ok := instr.Imm.(GlobalImm)
		if !ok || imm.GlobalIdx != 2 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})
}

func TestDecodeMemoryInstructions(t *testing.T) {
	t.Run("i32.load", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpI32Load, 0x02, 0x04})
		imm, ok := instr.Imm.(MemoryImm)
		if !ok || imm.Align != 2 || imm.Offset != 4 || imm.MemIdx != 0 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("i32.store with multi-memory bit", func(t *testing.T) {
		// align=1 with multi-memory bit set, memidx=3, offset=8
		instr := decodeBytes(t, []byte{OpI32Store, 0x41, 0x03, 0x08})
		imm, ok := instr.Imm.(MemoryImm)
		if !ok || imm.Align != 1 || imm.MemIdx != 3 || imm.Offset != 8 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("memory.size", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpMemorySize, 0x00})
		imm, ok := instr.Imm.(MemoryIdxImm)
		if !ok || imm.MemIdx != 0 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("memory.grow", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpMemoryGrow, 0x00})
		imm, ok := instr.Imm.(MemoryIdxImm)
		if !ok || imm.MemIdx != 0 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})
}

func TestDecodeConstantInstructions(t *testing.T) {
	t.Run("i32.const negative", func(t *testing.T) {
		// -1 encoded as signed LEB128
		instr := decodeBytes(t, []byte{OpI32Const, 0x7F})
		imm, ok := instr.Imm.(I32Imm)
		if !ok || imm.Value != -1 {
			t.Fatalf("Imm = %#v, want I32Imm{Value: -1}", instr.Imm)
		}
	})

	t.Run("i64.const", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpI64Const, 0x2A}) // 42
		imm, ok := instr.Imm.(I64Imm)
		if !ok || imm.Value != 42 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("f32.const", func(t *testing.T) {
		data := append([]byte{OpF32Const}, 0x00, 0x00, 0x40, 0x40) // 3.0
		instr := decodeBytes(t, data)
		imm, ok := instr.Imm.(F32Imm)
		if !ok || imm.Value != 3.0 {
			t.Fatalf("Imm = %#v, want F32Imm{Value: 3.0}", instr.Imm)
		}
	})

	t.Run("f64.const", func(t *testing.T) {
		data := append([]byte{OpF64Const}, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x08, 0x40) // 3.0
		instr := decodeBytes(t, data)
		imm, ok := instr.Imm.(F64Imm)
		if !ok || imm.Value != 3.0 {
			t.Fatalf("Imm = %#v, want F64Imm{Value: 3.0}", instr.Imm)
		}
	})
}

func TestDecodeRefTypeInstructions(t *testing.T) {
	t.Run("ref.null funcref", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpRefNull, byte(ValFuncRef)})
		imm, ok := instr.Imm.(RefNullImm)
		if !ok || imm.RefType != ValFuncRef {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("ref.null externref", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpRefNull, byte(ValExtern)})
		imm, ok := instr.Imm.(RefNullImm)
		if !ok || imm.RefType != ValExtern {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("ref.is_null has no immediate", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpRefIsNull})
		if instr.Imm != nil {
			t.Fatalf("Imm = %#v, want nil", instr.Imm)
		}
	})

	t.Run("ref.func", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpRefFunc, 0x03})
		imm, ok := instr.Imm.(RefFuncImm)
		if !ok || imm.FuncIdx != 3 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})
}

func TestDecodeTableInstructions(t *testing.T) {
	t.Run("table.get", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpTableGet, 0x00})
		imm, ok := instr.Imm.(TableImm)
		if !ok || imm.TableIdx != 0 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("table.set", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpTableSet, 0x01})
		imm, ok := instr.Imm.(TableImm)
		if !ok || imm.TableIdx != 1 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})
}

func TestDecodeTypedSelect(t *testing.T) {
	instr := decodeBytes(t, []byte{OpSelectType, 0x02, byte(ValI32), byte(ValF64)})
	imm, ok := instr.Imm.(SelectTypeImm)
	if !ok || len(imm.Types) != 2 || imm.Types[0] != ValI32 || imm.Types[1] != ValF64 {
		t.Fatalf("Imm = %#v", instr.Imm)
	}
}

func TestDecodeNumericInstructions(t *testing.T) {
	for _, op := range []byte{OpI32Add, OpI32Sub, OpI64Mul, OpF32Neg, OpF64Sqrt, OpI32Eqz} {
		instr := decodeBytes(t, []byte{op})
		if instr.Opcode != op {
			t.Fatalf("opcode = 0x%02x, want 0x%02x", instr.Opcode, op)
		}
		if instr.Imm != nil {
			t.Fatalf("op 0x%02x: Imm = %#v, want nil", op, instr.Imm)
		}
	}
}

func TestDecodeMiscInstructions(t *testing.T) {
	t.Run("i32.trunc_sat_f32_s has no operands", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpPrefixMisc, byte(MiscI32TruncSatF32S)})
		imm, ok := instr.Imm.(MiscImm)
		if !ok || imm.SubOpcode != MiscI32TruncSatF32S || imm.Operands != nil {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("memory.copy", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpPrefixMisc, byte(MiscMemoryCopy), 0x00, 0x00})
		imm, ok := instr.Imm.(MiscImm)
		if !ok || imm.SubOpcode != MiscMemoryCopy || len(imm.Operands) != 2 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("table.init", func(t *testing.T) {
		instr := decodeBytes(t, []byte{OpPrefixMisc, byte(MiscTableInit), 0x01, 0x00})
		imm, ok := instr.Imm.(MiscImm)
		if !ok || imm.SubOpcode != MiscTableInit || len(imm.Operands) != 2 || imm.Operands[0] != 1 {
			t.Fatalf("Imm = %#v", instr.Imm)
		}
	})

	t.Run("unknown sub-opcode", func(t *testing.T) {
		r := binary.NewReader(bytes.NewReader([]byte{OpPrefixMisc, 0x7F}))
		_, err := decodeOneInstruction(r)
		if err == nil {
			t.Fatal("expected error for unknown misc sub-opcode")
		}
	})
}

func TestDecodeUnknownOpcode(t *testing.T) {
	r := binary.NewReader(bytes.NewReader([]byte{0xFF}))
	_, err := decodeOneInstruction(r)
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestDecodeInstructionListStopsAtEnd(t *testing.T) {
	r := binary.NewReader(bytes.NewReader([]byte{OpNop, OpNop, OpEnd, OpUnreachable}))
	list, err := decodeInstructionList(r)
	if err != nil {
		t.Fatalf("decodeInstructionList: %v", err)
	}
	if len(list) != 3 || list[2].Opcode != OpEnd {
		t.Fatalf("list = %#v", list)
	}
	// the trailing OpUnreachable byte must still be unread
	b, err := r.ReadByte()
	if err != nil || b != OpUnreachable {
		t.Fatalf("expected OpUnreachable remaining, got %v, %v", b, err)
	}
}

func TestInstructionGetCallTarget(t *testing.T) {
	instr := Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: 9}}
	idx, ok := instr.GetCallTarget()
	if !ok || idx != 9 {
		t.Fatalf("GetCallTarget() = (%d, %v), want (9, true)", idx, ok)
	}

	nonCall := Instruction{Opcode: OpNop}
	if _, ok := nonCall.GetCallTarget(); ok {
		t.Fatal("GetCallTarget() on non-call instruction should return false")
	}
}

func TestInstructionIsIndirectCall(t *testing.T) {
	instr := Instruction{Opcode: OpCallIndirect, Imm: CallIndirectImm{TypeIdx: 1}}
	if !instr.IsIndirectCall() {
		t.Fatal("IsIndirectCall() = false, want true")
	}

	nonIndirect := Instruction{Opcode: OpCall}
	if nonIndirect.IsIndirectCall() {
		t.Fatal("IsIndirectCall() = true, want false")
	}
}

func TestFlattenBlockSetsContinuation(t *testing.T) {
	r := binary.NewReader(bytes.NewReader([]byte{OpBlock, 0x40, OpNop, OpEnd, OpEnd}))
	body, err := decodeInstructionList(r)
	if err != nil {
		t.Fatalf("decodeInstructionList: %v", err)
	}
	flat := flattenInstructions(body, 0)
	// flat: [0]=block [1]=nop [2]=end(inner) [3]=end(outer)
	if len(flat) != 4 {
		t.Fatalf("flat = %#v", flat)
	}
	if flat[0].Opcode != OpBlock || flat[0].ContinuationPC != 3 {
		t.Fatalf("block instr = %#v, want ContinuationPC=3", flat[0])
	}
}

func TestFlattenIfElseSetsBothContinuations(t *testing.T) {
	r := binary.NewReader(bytes.NewReader([]byte{OpIf, 0x40, OpNop, OpElse, OpNop, OpEnd, OpEnd}))
	body, err := decodeInstructionList(r)
	if err != nil {
		t.Fatalf("decodeInstructionList: %v", err)
	}
	flat := flattenInstructions(body, 0)
	if flat[0].Opcode != OpIf {
		t.Fatalf("flat[0] = %#v", flat[0])
	}
	if flat[0].ElseContinuationPC == 0 {
		t.Fatal("if instruction should have a non-zero ElseContinuationPC when an else branch is present")
	}
	if flat[0].ContinuationPC <= flat[0].ElseContinuationPC {
		t.Fatalf("ContinuationPC (%d) should be past ElseContinuationPC (%d)", flat[0].ContinuationPC, flat[0].ElseContinuationPC)
	}
}
