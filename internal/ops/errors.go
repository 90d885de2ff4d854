package ops

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
)

// Kind is the error taxonomy surfaced by the operations facade; every
// public method returns an *Error (or nil), never a bare repository or
// validation error.
type Kind string

const (
	KindValidation         Kind = "Validation"
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindForbidden          Kind = "Forbidden"
	KindConflict           Kind = "Conflict"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindInternal           Kind = "Internal"
)

// Error is the facade's uniform error shape.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func validationErr(err *model.ValidationError) *Error {
	return newError(KindValidation, err.Error(), err)
}

func notFound(kind, key string) *Error {
	return newError(KindNotFound, fmt.Sprintf("%s %q not found", kind, key), repository.ErrNotFound)
}

func forbidden(msg string) *Error {
	return newError(KindForbidden, msg, nil)
}

func conflict(msg string) *Error {
	return newError(KindConflict, msg, nil)
}

func serviceUnavailable(msg string, err error) *Error {
	return newError(KindServiceUnavailable, msg, err)
}

func internal(msg string, err error) *Error {
	return newError(KindInternal, msg, err)
}

// translateRepositoryError maps a raw repository error into the facade's
// taxonomy. The sentinel errors repository.ErrNotFound/ErrAlreadyExists
// cover the in-memory store exactly; the substring match against
// "already exists"/"unique constraint"/"not found" is kept alongside them
// so a future SQL-backed repository returning driver-native errors (e.g.
// a Postgres unique-violation message) still translates correctly without
// every backend needing to return the sentinels verbatim. This is known to
// be a brittle mapping: a backend whose error text happens to contain one
// of these substrings for an unrelated reason would be misclassified.
func translateRepositoryError(kind, key string, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(kind, key)
	}
	if errors.Is(err, repository.ErrAlreadyExists) {
		return newError(KindAlreadyExists, fmt.Sprintf("%s %q already exists", kind, key), err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "unique constraint"):
		return newError(KindAlreadyExists, fmt.Sprintf("%s %q already exists", kind, key), err)
	case strings.Contains(msg, "not found"):
		return notFound(kind, key)
	default:
		return internal(fmt.Sprintf("repository error on %s %q", kind, key), err)
	}
}
