// Package loader implements a WebAssembly core module decoder: it parses
// the canonical binary encoding into an in-memory Module, flattening nested
// block/loop/if control flow into a flat, program-counter-indexed
// instruction stream along the way.
//
// # Architecture Overview
//
//	loader/        Root package with Memory/MemorySizer interfaces shared with engine
//	├── wasm/      Binary decoder, entity types, instruction flattener
//	│   └── internal/binary/  Position-tracked byte reader (LEB128, names, floats)
//	├── engine/    tetratelabs/wazero wrapper for core-module instantiation
//	├── errors/    Structured decode/runtime error type
//	└── cmd/wasmdump/  TUI inspector for decoded modules, with --run execution
//
// # Quick Start
//
//	data, _ := os.ReadFile("module.wasm")
//	mod, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d functions, %d exports\n", len(mod.Functions), len(mod.Exports))
//
// To actually run the module, hand the same bytes to engine:
//
//	eng, _ := engine.New(ctx)
//	defer eng.Close(ctx)
//	inst, _ := eng.Instantiate(ctx, data)
//	result, _ := inst.Call(ctx, "greet")
//
// # Scope
//
// This decoder targets the WebAssembly 2.0 core module format plus the
// reference-types and bulk-memory proposals. It does not validate modules
// (no type-checking against the spec), and it does not implement the GC,
// SIMD, threads, exception-handling, or Component Model proposals.
package loader
