// Package wasm provides a WebAssembly core module binary decoder.
//
// This package parses a WebAssembly binary module into an in-memory Module,
// resolving imports against their declared types and flattening every
// function body (and every global/element/data offset expression) from its
// nested block/loop/if tree into a flat, program-counter-indexed
// instruction sequence.
//
// # Supported Features
//
//	WebAssembly 2.0 core:
//	  - Core value types (i32, i64, f32, f64)
//	  - Functions, tables, memories, globals
//	  - Control flow, calls, local/global access
//	  - Memory and table operations
//	  - Import/export of all definitions
//
//	Plus:
//	  - Reference types (funcref, externref, ref.null, ref.is_null, ref.func)
//	  - Bulk memory (memory.copy, memory.fill, table.copy, table.init, ...)
//	  - Multi-memory (multiple memory instances)
//	  - Memory64 (64-bit memory addressing)
//
// Not supported: the GC, SIMD, threads, exception-handling, tail-call, or
// Component Model proposals, and no semantic validation — this package
// performs only the structural checks each entity's encoding requires
// (tag bytes, limits ranges, flag ranges), never full type-checking.
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Module Structure
//
// A parsed module contains all sections, fully resolved:
//
//	module.Types      []FuncType    // Function signatures
//	module.Functions  []Function    // Functions, merged with their code bodies
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions, flattened init expr
//	module.Imports    []Import      // Imported definitions, type-resolved
//	module.Exports    []Export      // Exported definitions
//	module.Data       []DataSegment // Data segments, flattened offset expr
//	module.Elements   []Element     // Element segments, flattened offset expr
//
// # Instructions
//
// Every Function's Body is already a flat []Instruction: no further
// decoding step is needed to execute or inspect it. Each instruction's
// ContinuationPC (and, for `if`, ElseContinuationPC) names the program
// counter to resume at once that instruction completes, so an interpreter
// never needs to walk a nested block tree at run time.
package wasm
