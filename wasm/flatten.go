package wasm

// flattenInstructions turns a tree of nested block/loop/if instructions into
// a flat, program-counter-indexed sequence. pc is the program counter at
// which insns begins. A block's or an if's ContinuationPC is the pc just past
// its matching end; a loop's ContinuationPC is the loop's own pc. if's
// ElseContinuationPC additionally marks where to jump when the condition is
// false, and an else that closes an if's true arm gets the if's
// ContinuationPC.
func flattenInstructions(insns []Instruction, pc uint32) []Instruction {
	flattened := make([]Instruction, 0, len(insns))

	for _, in := range insns {
		in.ElseContinuationPC = 0

		switch in.Opcode {
		case OpBlock:
			body := in.body
			in.body = nil
			blockInsns := append([]Instruction{in}, flattenInstructions(body, pc+1)...)
			start := len(flattened)
			flattened = append(flattened, blockInsns...)
			pc += uint32(len(blockInsns))
			flattened[start].ContinuationPC = pc

		case OpLoop:
			body := in.body
			in.body = nil
			blockInsns := append([]Instruction{in}, flattenInstructions(body, pc+1)...)
			start := len(flattened)
			flattened = append(flattened, blockInsns...)
			flattened[start].ContinuationPC = pc
			pc += uint32(len(blockInsns))

		case OpIf:
			body := in.body
			alt := in.alt
			in.body = nil
			in.alt = nil

			trueInsns := flattenInstructions(body, pc+1)
			pc += uint32(len(trueInsns)) + 1
			in.ElseContinuationPC = pc

			falseInsns := flattenInstructions(alt, pc)
			pc += uint32(len(falseInsns))
			in.ContinuationPC = pc

			if len(trueInsns) > 0 && trueInsns[len(trueInsns)-1].Opcode == OpElse {
				trueInsns[len(trueInsns)-1].ContinuationPC = pc
			}

			blockInsns := make([]Instruction, 0, 1+len(trueInsns)+len(falseInsns))
			blockInsns = append(blockInsns, in)
			blockInsns = append(blockInsns, trueInsns...)
			blockInsns = append(blockInsns, falseInsns...)
			flattened = append(flattened, blockInsns...)

		default:
			pc++
			in.ContinuationPC = pc
			flattened = append(flattened, in)
		}
	}

	return flattened
}
