package listmgr

import "errors"

// Code is the portable error enum exposed across every database backend,
// so pipeline and policy code never has to switch on a driver-specific
// error type.
type Code int

const (
	Success Code = iota
	NotFound
	AlreadyExists
	NoMemory
	ConnectFailed
	Retryable
	ReadOnlyAttr
	InvalidArg
	BufferTooSmall
	AttrMissing
	NotSupported
	OutOfDate
	EndOfList
	Shutdown
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case NoMemory:
		return "no_memory"
	case ConnectFailed:
		return "connect_failed"
	case Retryable:
		return "retryable"
	case ReadOnlyAttr:
		return "read_only_attr"
	case InvalidArg:
		return "invalid_arg"
	case BufferTooSmall:
		return "buffer_too_small"
	case AttrMissing:
		return "attr_missing"
	case NotSupported:
		return "not_supported"
	case OutOfDate:
		return "out_of_date"
	case EndOfList:
		return "end_of_list"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error wraps a Code with context, implementing the standard error
// interface so callers can still use errors.Is/As.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Code.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so callers
// can write errors.Is(err, listmgr.ErrNotFound) style checks via the
// sentinel helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func newErr(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// IsRetryable reports whether err (or a wrapped *Error) is classified as
// a transient condition that warrants rollback-and-retry: disconnection,
// deadlock, or lock timeout.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == Retryable || e.Code == ConnectFailed
	}
	return false
}

// Sentinel codes for errors.Is comparisons against a bare Code value.
var (
	ErrNotFound      = &Error{Code: NotFound}
	ErrAlreadyExists = &Error{Code: AlreadyExists}
	ErrReadOnlyAttr  = &Error{Code: ReadOnlyAttr}
	ErrInvalidArg    = &Error{Code: InvalidArg}
	ErrEndOfList     = &Error{Code: EndOfList}
	ErrShutdown      = &Error{Code: Shutdown}
)
