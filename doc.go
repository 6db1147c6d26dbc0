// Package wasmboot boots a WebAssembly core module: it loads the module from a
// location, then hands control to its zero-argument entry point exactly once.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmboot/          Package documentation
//	├── bootstrap/     Two-phase startup state machine (the Loader)
//	├── future/        Single-assignment result awaited by the Loader
//	├── engine/        wazero integration: compile, link, instantiate, call entry
//	├── source/        Module bytes from files and HTTP(S) locations
//	├── wasm/          Binary header and section inspection, test module builder
//	├── errors/        Structured error types with phase and kind
//	├── metrics/       Prometheus instrumentation of boots and requests
//	├── pageloader/    Terminal loading indicator driven by state transitions
//	├── server/        Static bundle server for browser hosting
//	├── config/        Layered configuration (defaults, file, env, flags)
//	├── logging/       zap logger construction
//	└── cmd/boot/      Command-line interface
//
// # Quick Start
//
// Boot a module from disk:
//
//	eng, err := engine.New(ctx, engine.Config{EnableWASI: true, Entry: "run_app"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	loader := bootstrap.New("pkg/thoth_manager_bg.wasm", bootstrap.Adapt(eng.Load))
//	if err := loader.Start(ctx); err != nil {
//	    if errors.IsInitFailure(err) {
//	        log.Fatalf("module never started: %v", err)
//	    }
//	    log.Fatalf("entry point: %v", err)
//	}
//
// # State Machine
//
// A Loader is NotStarted until Start. Start moves it to Initializing, then to
// Running once the module is loaded or to Failed if loading failed. Failed and
// Running are terminal; a second Start returns an already-started error. The
// entry point is called only from Running.
//
// # Host Functions
//
// Register Go functions before the first Load:
//
//	err := eng.RegisterHostFunc("env", "now_ms",
//	    api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
//	        stack[0] = uint64(time.Now().UnixMilli())
//	    }),
//	    nil, []api.ValueType{api.ValueTypeI64},
//	)
//
// # Thread Safety
//
// Engine is safe for concurrent use. A Loader's Start may be called from any
// goroutine; only the first call does anything. Module is NOT thread-safe and
// its entry point should be driven by a single goroutine.
package wasmboot
