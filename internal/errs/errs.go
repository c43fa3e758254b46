// Package errs holds the error taxonomy shared by the connection, pool,
// and folder layers. Every exported error is built with
// github.com/rotisserie/eris so callers get a stack trace on first wrap;
// callers test the Kind with this package's Is helpers, or reach the
// *Error with errors.As and call its Kind method.
package errs

import "github.com/rotisserie/eris"

// Kind distinguishes the taxonomy of failures a caller might want to
// switch on, independent of the human-readable message.
type Kind int

const (
	KindConnection Kind = iota
	KindProtocol
	KindAuthentication
	KindCommandFailed
	KindInvalidCommand
	KindUnsupportedOperation
	KindFolderClosed
	KindStoreClosed
	KindReadOnlyFolder
	KindMessageRemoved
	KindRangeError
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindProtocol:
		return "ProtocolError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindCommandFailed:
		return "CommandFailed"
	case KindInvalidCommand:
		return "InvalidCommand"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	case KindFolderClosed:
		return "FolderClosed"
	case KindStoreClosed:
		return "StoreClosed"
	case KindReadOnlyFolder:
		return "ReadOnlyFolder"
	case KindMessageRemoved:
		return "MessageRemoved"
	case KindRangeError:
		return "RangeError"
	case KindTimeout:
		return "Timeout"
	default:
		return "UnknownError"
	}
}

// Error wraps a Kind with a message and an eris-produced stack.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Kind() Kind    { return e.kind }

// New builds an Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, err: eris.New(kind.String() + ": " + msg)}
}

// Wrap builds an Error of the given kind, wrapping cause so its stack is
// preserved.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{kind: kind, err: eris.Wrap(cause, kind.String()+": "+msg)}
}

// Is reports whether err is an *Error of the given kind, walking wrapped
// causes.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		err = eris.Unwrap(err)
	}
	return e != nil && e.kind == kind
}

func IsConnection(err error) bool           { return Is(err, KindConnection) }
func IsProtocol(err error) bool             { return Is(err, KindProtocol) }
func IsAuthentication(err error) bool       { return Is(err, KindAuthentication) }
func IsCommandFailed(err error) bool        { return Is(err, KindCommandFailed) }
func IsInvalidCommand(err error) bool       { return Is(err, KindInvalidCommand) }
func IsUnsupportedOperation(err error) bool { return Is(err, KindUnsupportedOperation) }
func IsFolderClosed(err error) bool         { return Is(err, KindFolderClosed) }
func IsStoreClosed(err error) bool          { return Is(err, KindStoreClosed) }
func IsReadOnlyFolder(err error) bool       { return Is(err, KindReadOnlyFolder) }
func IsMessageRemoved(err error) bool       { return Is(err, KindMessageRemoved) }
func IsRangeError(err error) bool           { return Is(err, KindRangeError) }
func IsTimeout(err error) bool              { return Is(err, KindTimeout) }
