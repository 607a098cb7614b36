package wasm

import (
	"bytes"

	werrors "github.com/corewasm/loader/errors"
	"github.com/corewasm/loader/wasm/internal/binary"
)

// ParseModule parses a WebAssembly binary module: preamble, the section
// stream in canonical order, and a final fix-up pass that resolves import
// type indices and merges the function/code sections (fixup.go).
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "header", err)
	}
	if magic != Magic {
		return nil, werrors.Decode(werrors.KindBadMagic, 0, "header", nil)
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "header", err)
	}
	if version != Version {
		return nil, werrors.Decode(werrors.KindUnsupportedVersion, 4, "header", nil)
	}

	m := &Module{}
	var lastSectionOrder int

	for {
		sectionOffset := r.Position()
		sectionID, err := r.ReadByte()
		if err != nil {
			break // EOF: no more sections
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order <= lastSectionOrder {
				return nil, werrors.Decode(werrors.KindUnknownSection, sectionOffset, "section header", nil)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, werrors.Decode(werrors.KindMalformedLEB, r.Position(), "section size", err)
		}

		sr, err := r.SubReader(int(sectionSize))
		if err != nil {
			return nil, werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "section data", err)
		}

		debugf("decoding section id=%d offset=%d size=%d", sectionID, sectionOffset, sectionSize)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		case SectionDataCount:
			err = parseDataCountSection(sr, m)
		default:
			return nil, werrors.Decode(werrors.KindUnknownSection, sectionOffset, "section header", nil)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := fixupModule(m); err != nil {
		return nil, err
	}

	return m, nil
}

// sectionOrder returns the canonical ordering for a section ID. WASM
// requires sections to appear in increasing order (custom sections exempt).
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return 100
	}
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return werrors.Decode(werrors.KindBadUTF8, r.Position(), "custom section name", err)
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "custom section", err)
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: rest})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "type section count", err)
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		offset := r.Position()
		form, err := r.ReadByte()
		if err != nil {
			return werrors.Decode(werrors.KindUnexpectedEnd, offset, "type form", err)
		}
		if form != FuncTypeByte {
			return werrors.Decode(werrors.KindMalformedFuncType, offset, "type form", nil)
		}
		ft, err := readFuncType(r)
		if err != nil {
			return err
		}
		m.Types[i] = ft
	}
	return nil
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	params, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, werrors.Decode(werrors.KindMalformedFuncType, r.Position(), "func type", err)
	}
	types := make([]ValType, count)
	for i := uint32(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, werrors.Decode(werrors.KindMalformedFuncType, r.Position(), "func type", err)
		}
		types[i] = ValType(b)
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "import section count", err)
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return werrors.Decode(werrors.KindBadUTF8, r.Position(), "import module name", err)
		}
		name, err := r.ReadName()
		if err != nil {
			return werrors.Decode(werrors.KindBadUTF8, r.Position(), "import name", err)
		}
		offset := r.Position()
		kind, err := r.ReadByte()
		if err != nil {
			return werrors.Decode(werrors.KindUnexpectedEnd, offset, "import kind", err)
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "import type index", err)
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		default:
			return werrors.Decode(werrors.KindUnknownSubEncoding, offset, "import kind", nil)
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "function section count", err)
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		m.Funcs[i], err = r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "function type index", err)
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "table section count", err)
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "memory section count", err)
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "global section count", err)
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: globalType, Init: init}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "export section count", err)
	}
	m.Exports = make([]Export, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return werrors.Decode(werrors.KindBadUTF8, r.Position(), "export name", err)
		}
		offset := r.Position()
		kind, err := r.ReadByte()
		if err != nil {
			return werrors.Decode(werrors.KindUnexpectedEnd, offset, "export kind", err)
		}
		if kind > KindGlobal {
			return werrors.Decode(werrors.KindUnknownSubEncoding, offset, "export kind", nil)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "export index", err)
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "start function index", err)
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "element section count", err)
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		offset := r.Position()
		flags, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, offset, "element flags", err)
		}
		if flags > 7 {
			return werrors.Decode(werrors.KindMalformedElemSegment, offset, "element flags", nil)
		}

		elem := Element{RefType: RefType{ValType: ValFuncRef}}

		active := flags&uint32(ElemFlagHasExplicitIndexOrDecl) == 0
		declarative := !active && flags&uint32(ElemFlagDeclarative) != 0
		hasTableIdx := active && flags&uint32(ElemFlagDeclarative) != 0
		usesExprs := flags&uint32(ElemFlagHasExprs) != 0

		switch {
		case active:
			elem.Mode = ElemModeActive
		case declarative:
			elem.Mode = ElemModeDeclarative
		default:
			elem.Mode = ElemModePassive
		}

		if hasTableIdx {
			elem.TableIdx, err = r.ReadU32()
			if err != nil {
				return werrors.Decode(werrors.KindMalformedElemSegment, r.Position(), "element table index", err)
			}
		}

		if active {
			elem.Offset, err = readConstExpr(r)
			if err != nil {
				return err
			}
		}

		if flags&0x03 != 0 {
			if usesExprs {
				rt, err := readRefType(r)
				if err != nil {
					return err
				}
				elem.RefType = rt
			} else {
				kindOffset := r.Position()
				elemKind, err := r.ReadByte()
				if err != nil {
					return werrors.Decode(werrors.KindMalformedElemSegment, kindOffset, "elemkind", err)
				}
				if elemKind != 0x00 {
					return werrors.Decode(werrors.KindMalformedElemSegment, kindOffset, "elemkind", nil)
				}
				elem.RefType = RefType{ValType: ValFuncRef}
			}
		}

		vecCount, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedElemSegment, r.Position(), "element vector count", err)
		}

		if usesExprs {
			elem.Exprs = make([][]Instruction, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.Exprs[j], err = readConstExpr(r)
				if err != nil {
					return err
				}
			}
		} else {
			elem.FuncIdxs = make([]uint32, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.FuncIdxs[j], err = r.ReadU32()
				if err != nil {
					return werrors.Decode(werrors.KindMalformedElemSegment, r.Position(), "element funcidx", err)
				}
			}
		}

		m.Elements[i] = elem
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "code section count", err)
	}
	m.codeRaw = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "code body size", err)
		}
		br, err := r.SubReader(int(bodySize))
		if err != nil {
			return werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "code body", err)
		}

		localGroupCount, err := br.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, br.Position(), "local group count", err)
		}
		var locals []LocalEntry
		for j := uint32(0); j < localGroupCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return werrors.Decode(werrors.KindMalformedLEB, br.Position(), "local count", err)
			}
			t, err := br.ReadByte()
			if err != nil {
				return werrors.Decode(werrors.KindUnexpectedEnd, br.Position(), "local type", err)
			}
			locals = append(locals, LocalEntry{Count: n, ValType: ValType(t)})
		}

		body, err := decodeInstructionList(br)
		if err != nil {
			return err
		}
		flat := flattenInstructions(body, 0)

		m.codeRaw[i] = FuncBody{Locals: locals, Body: flat}
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "data section count", err)
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		offset := r.Position()
		flags, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedLEB, offset, "data flags", err)
		}
		if flags > 2 {
			return werrors.Decode(werrors.KindMalformedDataSegment, offset, "data flags", nil)
		}

		seg := DataSegment{Active: flags != uint32(DataFlagPassive)}

		if flags == uint32(DataFlagActiveExplicitMem) {
			seg.MemIdx, err = r.ReadU32()
			if err != nil {
				return werrors.Decode(werrors.KindMalformedDataSegment, r.Position(), "data memory index", err)
			}
		}

		if seg.Active {
			seg.Offset, err = readConstExpr(r)
			if err != nil {
				return err
			}
		}

		initLen, err := r.ReadU32()
		if err != nil {
			return werrors.Decode(werrors.KindMalformedDataSegment, r.Position(), "data length", err)
		}
		seg.Init, err = r.ReadBytes(int(initLen))
		if err != nil {
			return werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "data bytes", err)
		}

		m.Data[i] = seg
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return werrors.Decode(werrors.KindMalformedLEB, r.Position(), "data count", err)
	}
	m.DataCount = &count
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	offset := r.Position()
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, werrors.Decode(werrors.KindMalformedLimits, offset, "limits", err)
	}

	memory64 := flags&LimitsMemory64 != 0
	l := Limits{
		Shared:   flags&LimitsShared != 0,
		Memory64: memory64,
	}

	if memory64 {
		l.Min, err = r.ReadU64()
		if err != nil {
			return Limits{}, werrors.Decode(werrors.KindMalformedLimits, r.Position(), "limits", err)
		}
		if flags&LimitsHasMax != 0 {
			maxVal, err := r.ReadU64()
			if err != nil {
				return Limits{}, werrors.Decode(werrors.KindMalformedLimits, r.Position(), "limits", err)
			}
			l.Max = &maxVal
		}
	} else {
		minVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, werrors.Decode(werrors.KindMalformedLimits, r.Position(), "limits", err)
		}
		l.Min = uint64(minVal)
		if flags&LimitsHasMax != 0 {
			maxVal, err := r.ReadU32()
			if err != nil {
				return Limits{}, werrors.Decode(werrors.KindMalformedLimits, r.Position(), "limits", err)
			}
			max64 := uint64(maxVal)
			l.Max = &max64
		}
	}

	if l.Max != nil && l.Min > *l.Max {
		return Limits{}, werrors.Decode(werrors.KindMalformedLimits, offset, "limits", nil)
	}

	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	rt, err := readRefType(r)
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{RefType: rt, Limits: limits}, nil
}

// readRefType reads a reference type byte (funcref or externref only).
func readRefType(r *binary.Reader) (RefType, error) {
	offset := r.Position()
	b, err := r.ReadByte()
	if err != nil {
		return RefType{}, werrors.Decode(werrors.KindUnexpectedEnd, offset, "reftype", err)
	}
	if b != byte(ValFuncRef) && b != byte(ValExtern) {
		return RefType{}, werrors.Decode(werrors.KindMalformedFuncType, offset, "reftype", nil)
	}
	return RefType{ValType: ValType(b)}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	offset := r.Position()
	valType, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, werrors.Decode(werrors.KindUnexpectedEnd, offset, "global type", err)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, werrors.Decode(werrors.KindUnexpectedEnd, r.Position(), "global mutability", err)
	}
	return GlobalType{ValType: ValType(valType), Mutable: mut != 0}, nil
}

// readConstExpr decodes a constant expression (a global's initializer, or an
// element/data segment's offset) the same way a function body is decoded:
// build the instruction tree, then flatten it.
func readConstExpr(r *binary.Reader) ([]Instruction, error) {
	body, err := decodeInstructionList(r)
	if err != nil {
		return nil, err
	}
	return flattenInstructions(body, 0), nil
}
