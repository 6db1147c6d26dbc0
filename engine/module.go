package engine

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/wasm"
)

// Module is an instantiated core module with a resolved entry point.
type Module struct {
	compiled  wazero.CompiledModule
	instance  api.Module
	entry     api.Function
	logger    *zap.Logger
	name      string
	entryName string
	location  string
}

// Load fetches, compiles, links and instantiates the module at location.
// Start functions are not run; only a start section executes here.
func (e *Engine) Load(ctx context.Context, location string) (*Module, error) {
	started := time.Now()

	data, err := e.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	compiled, err := e.compile(ctx, data)
	if err != nil {
		return nil, err
	}

	entryName, err := e.link(ctx, compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	name := e.cfg.ModuleName
	if name == "" {
		name = moduleName(location)
	}

	instance, err := e.runtime.InstantiateModule(ctx, compiled, e.moduleConfig(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	e.logger.Debug("module instantiated",
		zap.String("location", location),
		zap.String("module", name),
		zap.String("entry", entryName),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(started)))

	return &Module{
		compiled:  compiled,
		instance:  instance,
		entry:     instance.ExportedFunction(entryName),
		logger:    e.logger,
		name:      name,
		entryName: entryName,
		location:  location,
	}, nil
}

// compile vets the binary header before handing bytes to wazero.
func (e *Engine) compile(ctx context.Context, data []byte) (wazero.CompiledModule, error) {
	h, err := wasm.ParseHeader(data)
	if err != nil {
		return nil, errors.InvalidData(errors.PhaseDecode, "not a WebAssembly binary", err)
	}
	if h.IsComponent() {
		return nil, errors.Unsupported(errors.PhaseDecode, "component binary; a core module is required")
	}
	if !h.IsCore() {
		return nil, errors.Unsupported(errors.PhaseDecode, fmt.Sprintf("binary version %d", h.Version))
	}

	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Compile(err)
	}
	return compiled, nil
}

// link checks that the host satisfies every function import and resolves the entry.
func (e *Engine) link(ctx context.Context, compiled wazero.CompiledModule) (string, error) {
	if err := e.ensureHost(ctx); err != nil {
		return "", err
	}

	var missing []string
	for _, imp := range e.resolveImports(compiled) {
		switch {
		case imp.host == nil:
			missing = append(missing, imp.Module+"#"+imp.Name)
		case !sameSignature(imp.def, imp.host):
			return "", errors.TypeMismatch(errors.PhaseLink,
				"import "+imp.Module+"#"+imp.Name, signature(imp.host), signature(imp.def))
		}
	}
	if len(missing) > 0 {
		return "", errors.NewMissingImportsError(missing)
	}

	return resolveEntry(compiled.ExportedFunctions(), e.cfg.Entry)
}

type resolvedImport struct {
	def    api.FunctionDefinition
	host   api.FunctionDefinition
	Module string
	Name   string
}

func (e *Engine) resolveImports(compiled wazero.CompiledModule) []resolvedImport {
	defs := compiled.ImportedFunctions()
	out := make([]resolvedImport, 0, len(defs))
	for _, def := range defs {
		modName, name, _ := def.Import()
		imp := resolvedImport{def: def, Module: modName, Name: name}
		if host := e.runtime.Module(modName); host != nil {
			if hdef, ok := host.ExportedFunctionDefinitions()[name]; ok {
				imp.host = hdef
			}
		}
		out = append(out, imp)
	}
	return out
}

// resolveEntry picks the entry export and requires it to take no parameters.
// Results are allowed and discarded by Entry.
func resolveEntry(exports map[string]api.FunctionDefinition, want string) (string, error) {
	if want == "" {
		for _, name := range DefaultEntries {
			if _, ok := exports[name]; ok {
				want = name
				break
			}
		}
		if want == "" {
			return "", errors.NotFound(errors.PhaseLink, "entry export", strings.Join(DefaultEntries, "|"))
		}
	}

	def, ok := exports[want]
	if !ok {
		return "", errors.New(errors.PhaseLink, errors.KindNotFound).
			Detail("entry export %q not found (exports: %s)", want, strings.Join(sortedNames(exports), ", ")).
			Value(want).
			Build()
	}
	if len(def.ParamTypes()) != 0 {
		return "", errors.TypeMismatch(errors.PhaseLink, "entry "+want, "() -> ()", signature(def))
	}
	return want, nil
}

func (e *Engine) moduleConfig(name string) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithArgs(append([]string{name}, e.cfg.Args...)...)

	if e.cfg.Stdin != nil {
		cfg = cfg.WithStdin(e.cfg.Stdin)
	}
	if e.cfg.Stdout != nil {
		cfg = cfg.WithStdout(e.cfg.Stdout)
	}
	if e.cfg.Stderr != nil {
		cfg = cfg.WithStderr(e.cfg.Stderr)
	}

	keys := make([]string, 0, len(e.cfg.Env))
	for k := range e.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg = cfg.WithEnv(k, e.cfg.Env[k])
	}

	if len(e.cfg.Mounts) > 0 {
		guests := make([]string, 0, len(e.cfg.Mounts))
		for g := range e.cfg.Mounts {
			guests = append(guests, g)
		}
		sort.Strings(guests)
		fsCfg := wazero.NewFSConfig()
		for _, g := range guests {
			fsCfg = fsCfg.WithDirMount(e.cfg.Mounts[g], g)
		}
		cfg = cfg.WithFSConfig(fsCfg)
	}

	return cfg
}

// moduleName derives an instance name from the last path element of location.
func moduleName(location string) string {
	p := location
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(filepath.ToSlash(p))
	base = strings.TrimSuffix(base, ".wasm")
	if base == "" || base == "." || base == "/" {
		return "module"
	}
	return base
}

// Name returns the instance name.
func (m *Module) Name() string {
	return m.name
}

// EntryName returns the resolved entry export.
func (m *Module) EntryName() string {
	return m.entryName
}

// Location returns the location the module was loaded from.
func (m *Module) Location() string {
	return m.location
}

// Entry calls the entry export. Results are discarded. Traps and WASI exits are
// returned as wazero reports them; a WASI exit with code 0 is a normal return.
func (m *Module) Entry(ctx context.Context) error {
	if m.entry == nil {
		return errors.NotInitialized(errors.PhaseInstantiate, "module "+m.name)
	}

	m.logger.Debug("calling entry", zap.String("module", m.name), zap.String("entry", m.entryName))

	_, err := m.entry.Call(ctx)
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
		return nil
	}
	return err
}

// Close releases the instance and its compiled code.
func (m *Module) Close(ctx context.Context) error {
	var firstErr error
	if m.instance != nil {
		if err := m.instance.Close(ctx); err != nil {
			firstErr = err
		}
		m.instance = nil
	}
	if m.compiled != nil {
		if err := m.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		m.compiled = nil
	}
	m.entry = nil
	return firstErr
}
