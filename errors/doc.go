// Package errors provides structured error types for wasm-boot.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a detail message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFetch, errors.KindUnreachable).
//		Detail("GET %s: status %d", url, code).
//		Cause(err).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseLink, "entry point", "run_app")
//	err := errors.InitFailure(location, cause)
//
// The bootstrap surfaces exactly one kind of failure, KindInitialization. Every
// lower-level error (fetch, header, compile, link, instantiate) is carried as its cause.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
