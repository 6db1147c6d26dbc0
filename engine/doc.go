// Package engine loads WebAssembly core modules on wazero and exposes their
// zero-argument entry point.
//
// Load runs every step that can fail before the application starts:
//
//  1. fetch the bytes for a location (file path, file:// or http(s)://)
//  2. vet the binary header; component binaries are rejected
//  3. compile with wazero
//  4. instantiate host modules once: WASI preview1 when enabled, then every
//     namespace registered through RegisterHostFunc
//  5. check that the host provides each imported function with the same
//     signature, reporting all missing imports together
//  6. resolve the entry export, which must take no parameters
//  7. instantiate with start functions disabled
//
// A wasm start section still runs during step 7. "_start" and other command
// exports only run through Module.Entry.
//
// The returned *Module satisfies bootstrap.Module:
//
//	eng, _ := engine.New(ctx, engine.Config{EnableWASI: true, Entry: "run_app"})
//	defer eng.Close(ctx)
//	loader := bootstrap.New("pkg/thoth_manager_bg.wasm", bootstrap.Adapt(eng.Load))
//	err := loader.Start(ctx)
//
// # Thread Safety
//
// Engine is safe for concurrent use. A Module's entry point should be called by
// a single goroutine.
//
// # Known Limitations
//
// Memory64 is not supported by wazero v1.10.1 and modules using it fail to compile.
package engine
