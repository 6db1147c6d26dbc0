package wasm

import (
	"bytes"
	"encoding/binary"
)

// Builder assembles a core module. Function indices count imports first, so
// every ImportFunc call must precede the first Func call.
type Builder struct {
	start   *uint32
	memory  *[2]uint32
	types   [][2][]ValType
	imports []funcImport
	funcs   []funcBody
	exports []export
	customs []custom
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type funcBody struct {
	locals  []ValType
	code    []byte
	typeIdx uint32
}

type export struct {
	name string
	idx  uint32
	kind byte
}

type custom struct {
	name string
	data []byte
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type adds a function type and returns its index.
func (b *Builder) Type(params, results []ValType) uint32 {
	b.types = append(b.types, [2][]ValType{params, results})
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: ImportFunc after Func")
	}
	b.imports = append(b.imports, funcImport{module: module, name: name, typeIdx: typeIdx})
	return uint32(len(b.imports) - 1)
}

// Func adds a function with the given locals and body and returns its index.
// The body must include the trailing OpEnd.
func (b *Builder) Func(typeIdx uint32, locals []ValType, code ...byte) uint32 {
	b.funcs = append(b.funcs, funcBody{typeIdx: typeIdx, locals: locals, code: code})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// I32Const returns the encoding of an i32.const instruction pushing v.
func I32Const(v int32) []byte {
	return append([]byte{OpI32Const}, EncodeLEB128s(v)...)
}

// Memory declares memory 0 with minPages and maxPages; maxPages 0 means unbounded.
func (b *Builder) Memory(minPages, maxPages uint32) {
	b.memory = &[2]uint32{minPages, maxPages}
}

// ExportFunc exports a function under name.
func (b *Builder) ExportFunc(name string, funcIdx uint32) {
	b.exports = append(b.exports, export{name: name, kind: KindFunc, idx: funcIdx})
}

// ExportMemory exports memory 0 under name.
func (b *Builder) ExportMemory(name string) {
	b.exports = append(b.exports, export{name: name, kind: KindMemory})
}

// Start sets the module start function.
func (b *Builder) Start(funcIdx uint32) {
	b.start = &funcIdx
}

// Custom appends a custom section.
func (b *Builder) Custom(name string, data []byte) {
	b.customs = append(b.customs, custom{name: name, data: data})
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var w bytes.Buffer
	_ = binary.Write(&w, binary.LittleEndian, Magic)
	_ = binary.Write(&w, binary.LittleEndian, uint32(Version))

	if len(b.types) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.types)))
		for _, t := range b.types {
			sec.WriteByte(FuncTypeByte)
			writeValTypes(&sec, t[0])
			writeValTypes(&sec, t[1])
		}
		writeSection(&w, SectionType, sec.Bytes())
	}

	if len(b.imports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.imports)))
		for _, imp := range b.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(KindFunc)
			WriteLEB128u(&sec, imp.typeIdx)
		}
		writeSection(&w, SectionImport, sec.Bytes())
	}

	if len(b.funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			WriteLEB128u(&sec, f.typeIdx)
		}
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	if b.memory != nil {
		var sec bytes.Buffer
		WriteLEB128u(&sec, 1)
		if b.memory[1] == 0 {
			sec.WriteByte(0x00)
			WriteLEB128u(&sec, b.memory[0])
		} else {
			sec.WriteByte(0x01)
			WriteLEB128u(&sec, b.memory[0])
			WriteLEB128u(&sec, b.memory[1])
		}
		writeSection(&w, SectionMemory, sec.Bytes())
	}

	if len(b.exports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.exports)))
		for _, e := range b.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			WriteLEB128u(&sec, e.idx)
		}
		writeSection(&w, SectionExport, sec.Bytes())
	}

	if b.start != nil {
		writeSection(&w, SectionStart, EncodeLEB128u(*b.start))
	}

	if len(b.funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body bytes.Buffer
			// one local entry per declared local; no run-length grouping
			WriteLEB128u(&body, uint32(len(f.locals)))
			for _, l := range f.locals {
				WriteLEB128u(&body, 1)
				body.WriteByte(byte(l))
			}
			body.Write(f.code)
			WriteLEB128u(&sec, uint32(body.Len()))
			sec.Write(body.Bytes())
		}
		writeSection(&w, SectionCode, sec.Bytes())
	}

	for _, c := range b.customs {
		var sec bytes.Buffer
		writeName(&sec, c.name)
		sec.Write(c.data)
		writeSection(&w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeName(w *bytes.Buffer, s string) {
	WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}
