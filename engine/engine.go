// Package engine wraps tetratelabs/wazero to instantiate and run the core
// WebAssembly modules wasm.ParseModule decodes. It has no awareness of the
// Component Model: it compiles and instantiates raw module bytes exactly
// as the WASM core spec defines them.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	loader "github.com/corewasm/loader"
)

// Engine owns a wazero runtime shared by every module compiled through it.
type Engine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages
	// (64KB each). 0 means wazero's default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// New creates a new wazero-backed engine.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a new engine with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close releases the runtime and everything compiled through it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Module is a compiled core WASM module, ready to be instantiated one or
// more times.
type Module struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Compile compiles raw module bytes — the same bytes wasm.ParseModule
// accepted — into a Module ready for instantiation.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	debugf("compiling module (%d bytes)", len(wasmBytes))
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	return &Module{runtime: e.runtime, compiled: compiled}, nil
}

// Instantiate compiles and instantiates wasmBytes in one step, running the
// module's start function (if any) as part of instantiation.
func (e *Engine) Instantiate(ctx context.Context, wasmBytes []byte) (*Instance, error) {
	mod, err := e.Compile(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	return mod.Instantiate(ctx)
}

// Instantiate creates a new, independent instance of the compiled module.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	modConfig := wazero.NewModuleConfig().WithName("") // anonymous: allows multiple instances
	instance, err := m.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	inst := &Instance{
		instance:  instance,
		funcCache: make(map[string]api.Function),
	}
	if mem := instance.Memory(); mem != nil {
		inst.memory = &wazeroMemory{mem: mem}
	}
	debugf("instantiated module, exports: %v", instance.ExportedFunctionDefinitions())
	return inst, nil
}

// Instance is a live instantiation of a compiled module.
type Instance struct {
	instance  api.Module
	memory    *wazeroMemory
	funcCache map[string]api.Function
	cacheMu   sync.RWMutex
}

// Call invokes an exported function by name with the given raw i32/i64/
// f32/f64 stack arguments (bit-reinterpreted as uint64, per wazero's api.Function
// convention), returning its raw result stack.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.exportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("no exported function %q", name)
	}
	return fn.Call(ctx, args...)
}

func (i *Instance) exportedFunction(name string) api.Function {
	i.cacheMu.RLock()
	fn, ok := i.funcCache[name]
	i.cacheMu.RUnlock()
	if ok {
		return fn
	}

	fn = i.instance.ExportedFunction(name)
	if fn == nil {
		return nil
	}

	i.cacheMu.Lock()
	i.funcCache[name] = fn
	i.cacheMu.Unlock()
	return fn
}

// Memory returns the instance's linear memory, or nil if it exports none.
func (i *Instance) Memory() loader.Memory {
	if i.memory == nil {
		return nil
	}
	return i.memory
}

// MemorySize returns the instance's linear memory size in bytes, or 0 if it
// has none.
func (i *Instance) MemorySize() uint32 {
	if i.memory == nil {
		return 0
	}
	return i.memory.Size()
}

// ExportNames lists every function name the instance exports. The order of
// the names is not defined.
func (i *Instance) ExportNames() []string {
	defs := i.instance.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// Close releases the instance's resources.
func (i *Instance) Close(ctx context.Context) error {
	return i.instance.Close(ctx)
}

type wazeroMemory struct {
	mem api.Memory
}

func (m *wazeroMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *wazeroMemory) ReadU8(offset uint32) (uint8, error) {
	data, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (m *wazeroMemory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *wazeroMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds")
	}
	return val, nil
}

func (m *wazeroMemory) WriteU8(offset uint32, value uint8) error {
	return m.Write(offset, []byte{value})
}

func (m *wazeroMemory) WriteU16(offset uint32, value uint16) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8)})
}

func (m *wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *wazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write out of bounds")
	}
	return nil
}

func (m *wazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}
