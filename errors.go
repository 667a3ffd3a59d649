package cstar

import "fmt"

// Kind identifies one of the structured error categories from SPEC_FULL §7.
type Kind string

const (
	KindConfiguration Kind = "ConfigurationError"
	KindValidation    Kind = "ValidationError"
	KindIntegrity     Kind = "IntegrityError"
	KindNetwork       Kind = "NetworkError"
	KindBuild         Kind = "BuildError"
	KindDataset       Kind = "DatasetError"
	KindScheduler     Kind = "SchedulerError"
	KindRunIDConflict Kind = "RunIDConflict"
)

// Transient reports whether errors of this kind are meant to be retried
// locally before surfacing to the caller (SPEC_FULL §7 propagation policy).
func (k Kind) Transient() bool {
	switch k {
	case KindNetwork, KindScheduler:
		return true
	default:
		return false
	}
}

// Error is the structured {kind, message, context} payload every C-Star
// operation surfaces on failure. Context is free-form key/value data (e.g.
// run-ID, step name, source YAML path) attached by the raising site.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s %v: %v", e.Kind, e.Message, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Context)
}

// Unwrap exposes the wrapped cause so callers can errors.Is/errors.As through
// a C-Star Error the same way xerrors-wrapped errors chain elsewhere in the
// codebase.
func (e *Error) Unwrap() error { return e.Cause }

// WithContext returns a shallow copy of e with k=v merged into Context.
func (e *Error) WithContext(k, v string) *Error {
	cp := *e
	cp.Context = make(map[string]string, len(e.Context)+1)
	for ck, cv := range e.Context {
		cp.Context[ck] = cv
	}
	cp.Context[k] = v
	return &cp
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around a causal error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
