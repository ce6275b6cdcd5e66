// Package fault classifies pipeline errors so call sites can decide between
// failing fast, retrying, and isolating the failing unit.
package fault

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	// KindConfig marks bad parameters (chunk sizes, dimensions). Fatal,
	// raised before any network call.
	KindConfig Kind = iota + 1

	// KindTransient marks network, rate-limit and 5xx upstream failures.
	// Safe to retry with backoff.
	KindTransient

	// KindTimeout marks a call that hit its deadline. Treated as transient
	// where a retry policy exists, surfaced directly where it does not.
	KindTimeout

	// KindIntegrity marks corrupted data (offsets out of bounds, vector
	// dimensionality mismatch). Never coerced; aborts the affected unit.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the classification of err, unwrapping as needed.
// Context deadline errors classify as KindTimeout even when unwrapped.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return 0
}

// IsRetryable reports whether err is worth retrying under a backoff policy.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindTimeout
}
