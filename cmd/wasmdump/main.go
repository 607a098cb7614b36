// Command wasmdump decodes a WebAssembly core module and prints a summary of
// its section counts and exports, or lets you browse its functions and their
// flattened instruction streams interactively.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/corewasm/loader/engine"
	"github.com/corewasm/loader/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "path to a .wasm module")
		runFunc     = flag.String("run", "", "call this exported function after instantiating with wazero")
		interactive = flag.Bool("i", false, "browse the decoded module in a TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmdump -wasm <file.wasm> [-run funcname] [-i]")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := dump(*wasmFile, *runFunc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dump(wasmFile, runFunc string) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	mod, err := wasm.ParseModule(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("  types:     %d\n", len(mod.Types))
	fmt.Printf("  imports:   %d\n", len(mod.Imports))
	fmt.Printf("  functions: %d\n", len(mod.Functions))
	fmt.Printf("  tables:    %d\n", len(mod.Tables))
	fmt.Printf("  memories:  %d\n", len(mod.Memories))
	fmt.Printf("  globals:   %d\n", len(mod.Globals))
	fmt.Printf("  elements:  %d\n", len(mod.Elements))
	fmt.Printf("  data:      %d\n", len(mod.Data))
	fmt.Printf("  custom:    %d\n", len(mod.CustomSections))
	if mod.Start != nil {
		fmt.Printf("  start:     func[%d]\n", *mod.Start)
	}

	fmt.Println("\nExports:")
	for _, exp := range mod.Exports {
		fmt.Printf("  %s (kind=%d idx=%d)\n", exp.Name, exp.Kind, exp.Idx)
	}

	if runFunc == "" {
		return nil
	}

	ctx := context.Background()
	eng, err := engine.New(ctx)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close(ctx)

	inst, err := eng.Instantiate(ctx, data)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	fmt.Printf("\nCalling %s()...\n", runFunc)
	results, err := inst.Call(ctx, runFunc)
	if err != nil {
		return fmt.Errorf("call %s: %w", runFunc, err)
	}
	fmt.Printf("Result: %v\n", results)
	return nil
}
