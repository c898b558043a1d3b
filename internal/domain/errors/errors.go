package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so the HTTP boundary can pick a status code
// without looking at the message.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the typed failure raised by the business logic and the stores.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. A nil err yields nil.
func Internal(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf reports the kind of err; untyped errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrUserNotFound       = &Error{Kind: KindNotFound, Msg: "user not found"}
	ErrTaskNotFound       = &Error{Kind: KindNotFound, Msg: "task not found"}
	ErrAssigneeNotFound   = &Error{Kind: KindNotFound, Msg: "assignee not found"}
	ErrProfileNotFound    = &Error{Kind: KindNotFound, Msg: "user profile not found"}
	ErrUserAlreadyExists  = &Error{Kind: KindConflict, Msg: "user already exists"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Msg: "invalid username or password"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Msg: "unauthorized"}
	ErrInvalidToken       = &Error{Kind: KindUnauthorized, Msg: "token is invalid or expired"}
	ErrForbidden          = &Error{Kind: KindForbidden, Msg: "access denied"}
	ErrInternalServer     = &Error{Kind: KindInternal, Msg: "internal server error"}

	ErrConfigFileReadFailed = stderrors.New("failed to read config file")
	ErrConfigParseFailed    = stderrors.New("failed to parse config file")
	ErrConfigInvalidFormat  = stderrors.New("invalid config value")
)
