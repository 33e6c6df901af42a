package inherent

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Check result errors.
var (
	ErrFatalErrorReported = errors.New("a fatal inherent error was already reported")
	ErrDuplicateError     = errors.New("an error is already recorded for this identifier")
)

// fatalError marks its cause as fatal: the block must be rejected.
type fatalError struct {
	cause error
}

func (f *fatalError) Error() string { return f.cause.Error() }
func (f *fatalError) Unwrap() error { return f.cause }
func (f *fatalError) IsFatal() bool { return true }

// Fatal marks err as fatal. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{cause: err}
}

// IsFatal reports whether err, or anything it wraps, declares itself fatal
// through an IsFatal() bool method.
func IsFatal(err error) bool {
	var f interface{ IsFatal() bool }
	return errors.As(err, &f) && f.IsFatal()
}

// CheckResults accumulates errors found while checking a block's inherents.
// It is append-only. Once a fatal error is recorded, only that error is kept
// and further PutError calls are refused.
type CheckResults struct {
	mu    sync.Mutex
	errs  map[Identifier]error
	order []Identifier
	fatal bool
}

// NewCheckResults returns an empty, ok accumulator.
func NewCheckResults() *CheckResults {
	return &CheckResults{errs: make(map[Identifier]error)}
}

// PutError records err under id.
func (r *CheckResults) PutError(id Identifier, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fatal {
		return ErrFatalErrorReported
	}
	fatal := IsFatal(err)
	if fatal {
		r.errs = make(map[Identifier]error)
		r.order = nil
	}
	if _, ok := r.errs[id]; ok {
		return errors.Wrapf(ErrDuplicateError, "identifier %s", id)
	}
	r.errs[id] = err
	r.order = append(r.order, id)
	r.fatal = fatal
	return nil
}

// Ok reports whether no error was recorded.
func (r *CheckResults) Ok() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs) == 0
}

// FatalErrorReported reports whether the recorded error is fatal.
func (r *CheckResults) FatalErrorReported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// Error returns the error recorded under id, or nil.
func (r *CheckResults) Error(id Identifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[id]
}

// Identifiers returns the identifiers with recorded errors in insertion order.
func (r *CheckResults) Identifiers() []Identifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Identifier(nil), r.order...)
}

// Err returns the first recorded error annotated with its identifier, or nil.
func (r *CheckResults) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	id := r.order[0]
	return errors.Wrapf(r.errs[id], "inherent %s", id)
}
