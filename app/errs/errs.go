package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindSecurity   Kind = "security"
	KindTransient  Kind = "transient"
	KindStorage    Kind = "storage"
)

// Error carries a stable code alongside a human readable message.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidKeyword      = &Error{Kind: KindValidation, Code: "invalid_keyword", Message: "invalid keyword"}
	ErrOutOfRange          = &Error{Kind: KindValidation, Code: "out_of_range", Message: "value out of range"}
	ErrInvalidFilename     = &Error{Kind: KindValidation, Code: "invalid_filename", Message: "invalid filename"}
	ErrInvalidRequest      = &Error{Kind: KindValidation, Code: "invalid_request", Message: "invalid request"}
	ErrDuplicateKeyword    = &Error{Kind: KindConflict, Code: "duplicate_keyword", Message: "keyword already exists"}
	ErrAlreadyRunning      = &Error{Kind: KindConflict, Code: "already_running", Message: "collection already in progress"}
	ErrNotFound            = &Error{Kind: KindNotFound, Code: "not_found", Message: "not found"}
	ErrForbidden           = &Error{Kind: KindSecurity, Code: "forbidden", Message: "access denied"}
	ErrProviderUnavailable = &Error{Kind: KindTransient, Code: "provider_unavailable", Message: "search provider unavailable"}
	ErrStorage             = &Error{Kind: KindStorage, Code: "storage_error", Message: "storage failure"}
)

// New returns a copy of sentinel with a specific message.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap returns a copy of sentinel with a specific message and cause.
func Wrap(sentinel *Error, err error, format string, args ...any) *Error {
	e := New(sentinel, format, args...)
	e.Err = err
	return e
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors outside the taxonomy are treated as storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
