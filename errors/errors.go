package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the boot sequence the error occurred
type Phase string

const (
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseFetch       Phase = "fetch"       // reading module bytes from a location
	PhaseDecode      Phase = "decode"      // binary header inspection
	PhaseCompile     Phase = "compile"     // engine compilation
	PhaseLink        Phase = "link"        // host capability and entry resolution
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseInit        Phase = "init"        // bootstrap initialization as a whole
	PhaseHost        Phase = "host"        // host function registration
	PhaseServe       Phase = "serve"       // bundle server
)

// Kind categorizes the error
type Kind string

const (
	KindInitialization Kind = "initialization"
	KindAlreadyStarted Kind = "already_started"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidData    Kind = "invalid_data"
	KindNotFound       Kind = "not_found"
	KindUnreachable    Kind = "unreachable"
	KindTooLarge       Kind = "too_large"
	KindUnsupported    Kind = "unsupported"
	KindTypeMismatch   Kind = "type_mismatch"
	KindMissingImport  Kind = "missing_import"
	KindInstantiation  Kind = "instantiation"
	KindRegistration   Kind = "registration"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout wasm-boot
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InitFailure creates the single failure kind the bootstrap surfaces.
func InitFailure(location string, cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitialization,
		Detail: fmt.Sprintf("initialize module %q", location),
		Value:  location,
		Cause:  cause,
	}
}

// IsInitFailure reports whether err is, or wraps, an initialization failure.
func IsInitFailure(err error) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == KindInitialization {
			return true
		}
		err = e.Cause
	}
	return false
}

// AlreadyStarted creates the error returned by a second Start on the same loader.
func AlreadyStarted(state string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindAlreadyStarted,
		Detail: fmt.Sprintf("bootstrap already started (state %s)", state),
		Value:  state,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// TooLarge creates a size limit error
func TooLarge(phase Phase, what string, limit int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("%s exceeds %d bytes", what, limit),
		Value:  limit,
	}
}

// Unreachable creates an error for a location that could not be read
func Unreachable(location string, cause error) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindUnreachable,
		Detail: fmt.Sprintf("read %s", location),
		Value:  location,
		Cause:  cause,
	}
}

// TypeMismatch creates a signature mismatch error
func TypeMismatch(phase Phase, what, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("%s: want %s, got %s", what, want, got),
	}
}

// NotInitialized creates a not-initialized error for a missing engine or module
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Compile creates a compilation error
func Compile(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidData,
		Detail: "compile module",
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "wbg"
	Function  string // e.g., "__wbindgen_throw"
}

// MissingImportsError is returned when the host cannot provide every function the module imports
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

// demangleRust attempts to extract readable function name from mangled Rust symbol
func demangleRust(name string) string {
	// Rust mangled names start with _ZN
	if !strings.HasPrefix(name, "_ZN") {
		return name
	}

	// Format: _ZN<len><name><len><name>...E
	s := name[3:]
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			break
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]

		if length > len(s) {
			break
		}

		part := s[:length]
		s = s[length:]

		// hash suffixes are 17 chars: 'h' + 16 hex digits
		if isRustHash(part) {
			continue
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}

func isRustHash(part string) bool {
	if len(part) != 17 || part[0] != 'h' {
		return false
	}
	for i := 1; i < 17; i++ {
		c := part[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d host function(s):\n", len(e.Imports))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], demangleRust(imp.Function))
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
