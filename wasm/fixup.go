package wasm

import "github.com/corewasm/loader/errors"

// fixupModule resolves import function-type indices into concrete FuncTypes,
// merges the function and code sections into Module.Functions, and discards
// the transient per-section containers used only during decode.
func fixupModule(m *Module) error {
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindFunc {
			continue
		}
		typeIdx := m.Imports[i].Desc.TypeIdx
		ft := m.getFuncTypeByIdx(typeIdx)
		if ft == nil {
			return errors.Decode(errors.KindDanglingTypeIndex, 0, "import", nil)
		}
		m.Imports[i].Desc.ResolvedType = ft
	}

	if len(m.Funcs) != len(m.codeRaw) {
		return errors.Decode(errors.KindLengthMismatch, 0, "function/code section", nil)
	}

	m.Functions = make([]Function, len(m.Funcs))
	for i, typeIdx := range m.Funcs {
		ft := m.getFuncTypeByIdx(typeIdx)
		if ft == nil {
			return errors.Decode(errors.KindDanglingTypeIndex, 0, "function", nil)
		}
		m.Functions[i] = Function{
			Type:    ft,
			TypeIdx: typeIdx,
			Locals:  expandLocals(m.codeRaw[i].Locals),
			Body:    m.codeRaw[i].Body,
		}
	}

	m.Funcs = nil
	m.codeRaw = nil
	return nil
}

// expandLocals flattens the code section's run-length local groups into the
// per-slot sequence a function body indexes with local.get/set/tee.
func expandLocals(groups []LocalEntry) []ValType {
	var total uint32
	for _, g := range groups {
		total += g.Count
	}
	locals := make([]ValType, 0, total)
	for _, g := range groups {
		for i := uint32(0); i < g.Count; i++ {
			locals = append(locals, g.ValType)
		}
	}
	return locals
}
