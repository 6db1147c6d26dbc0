package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const wasiModuleName = wasi_snapshot_preview1.ModuleName

// instantiateWASI instantiates WASI preview1 on r. extra functions are exported
// after the standard set, so a name clash replaces the standard function.
func instantiateWASI(ctx context.Context, r wazero.Runtime, extra []HostFunc) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	for _, hf := range extra {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(hf.Fn, hf.Params, hf.Results).
			WithName(hf.Name).
			Export(hf.Name)
	}

	return builder.Instantiate(ctx)
}
