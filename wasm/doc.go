// Package wasm reads just enough of the WebAssembly binary format to vet a
// module before it reaches the engine, and writes small core modules.
//
// # Header
//
// Every binary starts with the magic "\0asm" followed by a four-byte version.
// Core modules carry version 1. Component binaries reuse the magic with a
// layer field set in the upper half of the version word:
//
//	h, err := wasm.ParseHeader(data)
//	if h.IsComponent() {
//	    // not loadable as a core module
//	}
//
// # Sections
//
// Sections returns the section table without decoding section bodies. Custom
// sections are reported by name; that is how toolchain metadata such as
// "producers" or "name" is surfaced by inspection.
//
// # Building
//
// Builder assembles core modules from raw instruction bytes, for test fixtures
// in this and dependent packages; loading and inspection never use it. It covers
// types, function imports, functions, memory, exports, a start function and
// custom sections:
//
//	b := wasm.NewBuilder()
//	void := b.Type(nil, nil)
//	ping := b.ImportFunc("env", "ping", void)
//	run := b.Func(void, nil, wasm.OpCall, byte(ping), wasm.OpEnd)
//	b.ExportFunc("run_app", run)
//	data := b.Bytes()
package wasm
