// Package bootstrap sequences the two-phase startup of a binary module:
// initialize the module at a location, then hand control to its entry point.
//
// A Loader moves through NotStarted -> Initializing -> {Running | Failed} exactly
// once. The entry point runs only after initialization has resolved successfully,
// and never when it failed. There is no retry and no fallback location.
//
//	loader := bootstrap.New("pkg/app_bg.wasm", bootstrap.Adapt(eng.Load))
//	if err := loader.Start(ctx); err != nil {
//	    // errors.IsInitFailure(err) distinguishes "never started" from entry errors
//	}
package bootstrap

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/future"
)

// Module is the capability exposed by a successfully initialized module.
type Module interface {
	// Entry hands control to the module. Its error is returned to the
	// bootstrap's caller unchanged.
	Entry(ctx context.Context) error
}

// Initializer instantiates the module found at location.
type Initializer interface {
	Init(ctx context.Context, location string) (Module, error)
}

// InitializerFunc adapts a function to Initializer.
type InitializerFunc func(ctx context.Context, location string) (Module, error)

// Init calls fn.
func (fn InitializerFunc) Init(ctx context.Context, location string) (Module, error) {
	return fn(ctx, location)
}

// Adapt lifts a loader returning a concrete module type into an Initializer.
// A failed load yields a nil Module instead of a typed nil inside the interface.
func Adapt[M Module](load func(ctx context.Context, location string) (M, error)) Initializer {
	return InitializerFunc(func(ctx context.Context, location string) (Module, error) {
		m, err := load(ctx, location)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// Observer is notified of every state transition, synchronously and in order,
// on the goroutine that called Start. err is set on the transition to Failed.
type Observer func(from, to State, err error)

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Loader) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithObserver adds a transition observer. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(b *Loader) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// Loader runs the bootstrap sequence for one module location.
type Loader struct {
	init      Initializer
	logger    *zap.Logger
	location  string
	observers []Observer
	state     atomic.Int32
}

// New creates a loader for location. location is passed to the initializer verbatim.
func New(location string, initializer Initializer, opts ...Option) *Loader {
	l := &Loader{
		init:     initializer,
		location: location,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the configured module location.
func (l *Loader) Location() string {
	return l.location
}

// State returns the current bootstrap state.
func (l *Loader) State() State {
	return State(l.state.Load())
}

// Start initializes the module and, on success, invokes its entry point once.
//
// An initialization failure is returned as an errors.KindInitialization error and
// leaves the loader Failed. An entry point error is returned as is, with the loader
// Running. Any call after the first returns errors.KindAlreadyStarted without
// touching the module.
//
// Start imposes no deadline on initialization. ctx is handed to the initializer and
// the entry point; whether they honour cancellation is up to them.
func (l *Loader) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(NotStarted), int32(Initializing)) {
		return errors.AlreadyStarted(l.State().String())
	}
	l.notify(NotStarted, Initializing, nil)

	if l.init == nil {
		return l.fail(errors.NotInitialized(errors.PhaseInit, "initializer"))
	}

	l.logger.Info("initializing module", zap.String("location", l.location))
	started := time.Now()

	pending := future.Go(ctx, func(ctx context.Context) (Module, error) {
		return l.init.Init(ctx, l.location)
	})

	// The wait itself is not cancellable; the initializer resolves the future
	// with an error if it gives up on ctx.
	mod, err := pending.Await(context.WithoutCancel(ctx))
	if err == nil && mod == nil {
		err = errors.InvalidData(errors.PhaseInit, "initializer returned no module", nil)
	}
	if err != nil {
		return l.fail(err)
	}

	l.state.Store(int32(Running))
	l.notify(Initializing, Running, nil)
	l.logger.Info("module initialized, invoking entry point",
		zap.String("location", l.location),
		zap.Duration("elapsed", time.Since(started)))

	return mod.Entry(ctx)
}

func (l *Loader) fail(cause error) error {
	err := errors.InitFailure(l.location, cause)
	l.state.Store(int32(Failed))
	l.notify(Initializing, Failed, err)
	l.logger.Error("module initialization failed",
		zap.String("location", l.location),
		zap.Error(cause))
	return err
}

func (l *Loader) notify(from, to State, err error) {
	for _, o := range l.observers {
		o(from, to, err)
	}
}
