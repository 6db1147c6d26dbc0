package engine

import (
	"context"
	stderrors "errors"
	"io"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/source"
)

// DefaultEntries are probed in order when Config.Entry is empty.
var DefaultEntries = []string{"_start", "run_app", "run", "main"}

var (
	errSealed    = stderrors.New("host modules already instantiated")
	errDuplicate = stderrors.New("duplicate host function")
)

// Config holds configuration for engine creation
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is the WASI environment.
	Env map[string]string

	// Mounts maps guest paths to host directories for WASI filesystem access.
	Mounts map[string]string

	// Entry is the zero-parameter export invoked by Module.Entry.
	// Empty probes DefaultEntries.
	Entry string

	// ModuleName is the instance name. Empty derives it from the location.
	ModuleName string

	// Args are passed to the guest after argv[0], which is the module name.
	Args []string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 as a host module.
	EnableWASI bool
}

// Fetcher reads module bytes for a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFetcher sets the byte source. Defaults to a source.Fetcher.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) {
		if f != nil {
			e.fetcher = f
		}
	}
}

// HostFunc is a host function made available to guest imports.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Engine compiles and instantiates core modules on a wazero runtime.
// It is safe for concurrent use.
type Engine struct {
	runtime   wazero.Runtime
	fetcher   Fetcher
	logger    *zap.Logger
	hostErr   error
	hostFuncs map[string][]HostFunc
	cfg       Config
	mu        sync.Mutex
	sealed    bool
}

// New creates an engine with its own wazero runtime.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &Engine{
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:    zap.NewNop(),
		hostFuncs: make(map[string][]HostFunc),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = source.NewFetcher(source.WithLogger(e.logger))
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// RegisterHostFunc makes fn importable as module#name. Registration must happen
// before the first Load or Inspect; later calls fail with KindRegistration.
// Functions registered under wasi_snapshot_preview1 extend or override the WASI
// host when EnableWASI is set.
func (e *Engine) RegisterHostFunc(module, name string, fn api.GoModuleFunc, params, results []api.ValueType) error {
	if module == "" || name == "" {
		return errors.Registration(module, name, errors.InvalidInput(errors.PhaseHost, "empty module or function name"))
	}
	if fn == nil {
		return errors.Registration(module, name, errors.InvalidInput(errors.PhaseHost, "nil host function"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed {
		return errors.Registration(module, name, errSealed)
	}
	for _, hf := range e.hostFuncs[module] {
		if hf.Name == name {
			return errors.Registration(module, name, errDuplicate)
		}
	}

	e.hostFuncs[module] = append(e.hostFuncs[module], HostFunc{
		Fn:      fn,
		Module:  module,
		Name:    name,
		Params:  params,
		Results: results,
	})
	return nil
}

// ensureHost instantiates WASI and registered host modules once.
func (e *Engine) ensureHost(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed {
		return e.hostErr
	}
	e.sealed = true

	if e.cfg.EnableWASI {
		if _, err := instantiateWASI(ctx, e.runtime, e.hostFuncs[wasiModuleName]); err != nil {
			e.hostErr = errors.Registration(wasiModuleName, "*", err)
			return e.hostErr
		}
	}

	names := make([]string, 0, len(e.hostFuncs))
	for ns := range e.hostFuncs {
		if e.cfg.EnableWASI && ns == wasiModuleName {
			continue
		}
		names = append(names, ns)
	}
	sort.Strings(names)

	for _, ns := range names {
		builder := e.runtime.NewHostModuleBuilder(ns)
		for _, hf := range e.hostFuncs[ns] {
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(hf.Fn, hf.Params, hf.Results).
				WithName(hf.Name).
				Export(hf.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			e.hostErr = errors.Registration(ns, "*", err)
			return e.hostErr
		}
		e.logger.Debug("host module instantiated",
			zap.String("module", ns),
			zap.Int("functions", len(e.hostFuncs[ns])))
	}
	return nil
}

// Close releases the runtime and every module instantiated on it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
