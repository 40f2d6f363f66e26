package stxbulk

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a build failure.
type ErrorKind int

const (
	KindInvalidAmount ErrorKind = iota + 1
	KindEmptyRecipientSet
	KindInvalidAddress
	KindMissingContract
	KindInvalidContract
	KindSigning
	KindFeeEstimation
	KindBroadcast
	KindMemoExpected
	KindNetwork
	KindInvalidMemo
)

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAmount:
		return "invalid amount"
	case KindEmptyRecipientSet:
		return "empty recipient set"
	case KindInvalidAddress:
		return "invalid address"
	case KindMissingContract:
		return "missing contract"
	case KindInvalidContract:
		return "invalid contract"
	case KindSigning:
		return "signing error"
	case KindFeeEstimation:
		return "fee estimation error"
	case KindBroadcast:
		return "broadcast error"
	case KindMemoExpected:
		return "memo expected"
	case KindNetwork:
		return "network error"
	case KindInvalidMemo:
		return "invalid memo"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the error type returned by the builder. Two errors match under
// errors.Is when their kinds are equal and the target is a bare sentinel.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Sentinels for errors.Is.
var (
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrEmptyRecipientSet = &Error{Kind: KindEmptyRecipientSet}
	ErrInvalidAddress    = &Error{Kind: KindInvalidAddress}
	ErrMissingContract   = &Error{Kind: KindMissingContract}
	ErrInvalidContract   = &Error{Kind: KindInvalidContract}
	ErrSigning           = &Error{Kind: KindSigning}
	ErrFeeEstimation     = &Error{Kind: KindFeeEstimation}
	ErrBroadcast         = &Error{Kind: KindBroadcast}
	ErrMemoExpected      = &Error{Kind: KindMemoExpected}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrInvalidMemo       = &Error{Kind: KindInvalidMemo}
)

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// NewError returns an *Error of the given kind.
func NewError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// wrapError tags err with kind unless it already carries that kind.
func wrapError(kind ErrorKind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, &Error{Kind: kind}) {
		return err
	}
	return NewError(kind, err, format, args...)
}
