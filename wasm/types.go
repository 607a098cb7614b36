package wasm

// Module represents a parsed WebAssembly module, after the fix-up pass has
// resolved import type indices and merged the function/code sections.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []Function // populated by the fix-up pass, merging Funcs+Code
	Tables    []TableType
	Memories  []MemoryType
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []Element
	Data      []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	// Required when data indices appear in code (bulk memory operations).
	DataCount *uint32

	CustomSections []CustomSection

	// Funcs holds the function section's raw type indices during decode.
	// codeRaw holds the code section's raw bodies during decode. Both are
	// consumed and cleared by the fix-up pass; see fixup.go.
	Funcs   []uint32
	codeRaw []FuncBody
}

// FuncType represents a WebAssembly function signature with parameter and
// result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// RefType represents a reference type used by tables and the ref.null/
// ref.func family of instructions. Only funcref and externref are in scope.
type RefType struct {
	ValType ValType
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
// ResolvedType is populated by the fix-up pass for function imports, per
// the resolution step that turns a bare TypeIdx into a concrete FuncType.
type ImportDesc struct {
	Table        *TableType
	Memory       *MemoryType
	Global       *GlobalType
	ResolvedType *FuncType
	TypeIdx      uint32
	Kind         byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	RefType RefType
	Limits  Limits
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with its type and flattened
// constant-expression initializer.
type Global struct {
	Type GlobalType
	Init []Instruction
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// ElemMode distinguishes the three ways an element segment can be realized.
type ElemMode byte

const (
	ElemModeActive ElemMode = iota
	ElemModePassive
	ElemModeDeclarative
)

// Element represents an element segment. The leading flags byte selects one
// of 8 sub-encodings (0x00-0x07); Mode, TableIdx, Offset, RefType (from the
// elemkind or reftype byte) and FuncIdxs/Exprs are populated according to which sub-encoding was read
// (see decode.go's parseElementSection for the exact bit tests):
//
//	0: active, tableidx=0, offset expr, vec(funcidx)
//	1: passive, elemkind, vec(funcidx)
//	2: active, tableidx, offset expr, elemkind, vec(funcidx)
//	3: declarative, elemkind, vec(funcidx)
//	4: active, tableidx=0, offset expr, vec(expr)
//	5: passive, reftype, vec(expr)
//	6: active, tableidx, offset expr, reftype, vec(expr)
//	7: declarative, reftype, vec(expr)
type Element struct {
	Mode     ElemMode
	RefType  RefType
	Offset   []Instruction // active only
	FuncIdxs []uint32
	Exprs    [][]Instruction
	TableIdx uint32
}

// Function is a fully resolved function: its signature, local declarations,
// and flattened instruction stream. Produced by the fix-up pass merging the
// function and code sections.
type Function struct {
	Type    *FuncType
	TypeIdx uint32
	Locals  []ValType // expanded during fix-up from the code section's run-length groups
	Body    []Instruction
}

// FuncBody represents a function's local declarations and decoded body,
// as read straight off the code section before fix-up merges it into a
// Function.
type FuncBody struct {
	Locals []LocalEntry
	Body   []Instruction
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memidx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memidx, offset expr, vec(byte)
type DataSegment struct {
	Offset []Instruction // active only
	Init   []byte
	Active bool
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumImportedGlobals returns the number of imported globals
func (m *Module) NumImportedGlobals() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			count++
		}
	}
	return count
}

// NumImportedTables returns the number of imported tables
func (m *Module) NumImportedTables() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			count++
		}
	}
	return count
}

// NumImportedMemories returns the number of imported memories
func (m *Module) NumImportedMemories() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			count++
		}
	}
	return count
}

// NumTypes returns the number of entries in the type index space.
func (m *Module) NumTypes() int {
	return len(m.Types)
}

// GetFuncType returns the type of a function by its index in the combined
// import+local function index space. Valid only after the fix-up pass.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		for i, imp := range m.Imports {
			if imp.Desc.Kind == KindFunc {
				if funcIdx == 0 {
					return m.Imports[i].Desc.ResolvedType
				}
				funcIdx--
			}
		}
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(m.Functions) {
		return nil
	}
	return m.Functions[localIdx].Type
}

// getFuncTypeByIdx returns the function type at the given type index.
func (m *Module) getFuncTypeByIdx(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// AddType adds a function type and returns its index, reusing an existing
// equal entry if present.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if typesEqual(t, ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
