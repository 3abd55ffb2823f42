package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies benchmark errors by how they propagate.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConnection
	KindTimeout
	KindTransient
	KindFatal
	KindInvalidState
	KindInsufficientData
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindInvalidState:
		return "invalid_state"
	case KindInsufficientData:
		return "insufficient_data"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrConfiguration    = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrConnection       = &Error{Kind: KindConnection, Message: "connection failure"}
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "query timeout"}
	ErrTransient        = &Error{Kind: KindTransient, Message: "transient query error"}
	ErrFatal            = &Error{Kind: KindFatal, Message: "fatal query error"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInsufficientData = &Error{Kind: KindInsufficientData, Message: "insufficient data"}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NewConfiguration(msg string) *Error {
	return New(KindConfiguration, msg)
}

func NewInvalidState(msg string) *Error {
	return New(KindInvalidState, msg)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
