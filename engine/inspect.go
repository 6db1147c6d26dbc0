package engine

import (
	"context"
	"sort"

	"github.com/wippyai/wasm-boot/wasm"
)

// Import describes one function import and whether the host provides it.
type Import struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	// Want is the host signature when it differs from Signature.
	Want     string `json:"want,omitempty"`
	Provided bool   `json:"provided"`
}

// Export describes one function export.
type Export struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

// Info is the result of Inspect.
type Info struct {
	// EntryErr is why no entry could be resolved; Entry is empty when set.
	EntryErr error
	Location string
	Entry    string
	Imports  []Import
	Exports  []Export
	Sections []wasm.Section
	Size     int
	Version  uint16
}

// Linkable reports whether every import is provided with a matching signature
// and an entry was resolved.
func (i *Info) Linkable() bool {
	if i.EntryErr != nil {
		return false
	}
	for _, imp := range i.Imports {
		if !imp.Provided || imp.Want != "" {
			return false
		}
	}
	return true
}

// Inspect compiles the module at location and reports its imports, exports and
// entry resolution without instantiating it. Like Load it seals host registration.
func (e *Engine) Inspect(ctx context.Context, location string) (*Info, error) {
	data, err := e.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	compiled, err := e.compile(ctx, data)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	if err := e.ensureHost(ctx); err != nil {
		return nil, err
	}

	h, _ := wasm.ParseHeader(data)
	sections, err := wasm.Sections(data)
	if err != nil {
		// wazero accepted the module, so the table is readable; keep going without it
		sections = nil
	}

	info := &Info{
		Location: location,
		Size:     len(data),
		Version:  h.Version,
		Sections: sections,
	}

	for _, imp := range e.resolveImports(compiled) {
		out := Import{
			Module:    imp.Module,
			Name:      imp.Name,
			Signature: signature(imp.def),
			Provided:  imp.host != nil,
		}
		if imp.host != nil && !sameSignature(imp.def, imp.host) {
			out.Want = signature(imp.host)
		}
		info.Imports = append(info.Imports, out)
	}

	exports := compiled.ExportedFunctions()
	for _, name := range sortedNames(exports) {
		info.Exports = append(info.Exports, Export{Name: name, Signature: signature(exports[name])})
	}
	sort.Slice(info.Imports, func(a, b int) bool {
		if info.Imports[a].Module != info.Imports[b].Module {
			return info.Imports[a].Module < info.Imports[b].Module
		}
		return info.Imports[a].Name < info.Imports[b].Name
	})

	info.Entry, info.EntryErr = resolveEntry(exports, e.cfg.Entry)
	return info, nil
}
