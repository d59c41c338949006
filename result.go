package microsd

import (
	"fmt"

	"github.com/picofs/microsd/fatfs"
)

// ErrorCode classifies every outcome of the wrapper. Driver result codes
// are folded into this set by codeFor; only the code is stable, messages
// are free-text diagnostics.
type ErrorCode uint8

const (
	Success ErrorCode = iota
	InitFailed
	MountFailed
	FileNotFound
	PermissionDenied
	DiskFull
	IOError
	InvalidParameter
	LibraryError // driver reported a failure with no closer mapping
	Unknown
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case InitFailed:
		return "InitFailed"
	case MountFailed:
		return "MountFailed"
	case FileNotFound:
		return "FileNotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case DiskFull:
		return "DiskFull"
	case IOError:
		return "IOError"
	case InvalidParameter:
		return "InvalidParameter"
	case LibraryError:
		return "LibraryError"
	case Unknown:
		return "Unknown"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(c))
	}
}

// Description returns a human readable description of the code.
func (c ErrorCode) Description() string {
	switch c {
	case Success:
		return "operation succeeded"
	case InitFailed:
		return "initialization failed"
	case MountFailed:
		return "mount failed"
	case FileNotFound:
		return "file or directory not found"
	case PermissionDenied:
		return "permission denied"
	case DiskFull:
		return "disk full"
	case IOError:
		return "I/O error"
	case InvalidParameter:
		return "invalid parameter"
	case LibraryError:
		return "filesystem driver error"
	case Unknown:
		return "unknown error"
	default:
		return "undefined error"
	}
}

// codeFor folds a driver result code into the wrapper taxonomy. This is
// the only place coupled to the driver's vocabulary; codes without a
// mapping become Unknown.
func codeFor(fr fatfs.Result) ErrorCode {
	switch fr {
	case fatfs.ResOK:
		return Success
	case fatfs.ResNoFile, fatfs.ResNoPath:
		return FileNotFound
	case fatfs.ResInvalidName:
		return InvalidParameter
	case fatfs.ResDenied:
		return PermissionDenied
	case fatfs.ResDiskErr:
		return IOError
	case fatfs.ResNotReady:
		return InitFailed
	case fatfs.ResWriteProtected:
		return IOError
	default:
		return Unknown
	}
}

// Unit is the payload of operations that produce no value.
type Unit = struct{}

// Result holds either a success value or an error code with a
// diagnostic message. Exactly one of the two states holds: the value is
// meaningful if and only if Code is Success.
type Result[T any] struct {
	value T
	code  ErrorCode
	msg   string
}

// Status is the no-payload result of operations that only succeed or
// fail.
type Status = Result[Unit]

// Ok returns a success result carrying v.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// OkStatus returns a success Status.
func OkStatus() Status { return Status{} }

// Err returns an error result. code must not be Success.
func Err[T any](code ErrorCode, msg string) Result[T] {
	if code == Success {
		code = Unknown
	}
	return Result[T]{code: code, msg: msg}
}

// Errf is Err with fmt.Sprintf formatting of the message.
func Errf[T any](code ErrorCode, format string, args ...any) Result[T] {
	return Err[T](code, fmt.Sprintf(format, args...))
}

// IsOK reports whether the result is a success.
func (r Result[T]) IsOK() bool { return r.code == Success }

// IsError reports whether the result is an error. Complementary to IsOK.
func (r Result[T]) IsError() bool { return !r.IsOK() }

// Code returns the error code, Success for a success result.
func (r Result[T]) Code() ErrorCode { return r.code }

// Message returns the diagnostic message, empty for a success result.
// The text is not meant for programmatic matching.
func (r Result[T]) Message() string { return r.msg }

// Value returns the success value. Calling Value on an error result is
// a programming error and panics; use Get when the state is not known.
func (r Result[T]) Value() T {
	if r.IsError() {
		panic("microsd: Value called on error result: " + r.code.String() + ": " + r.msg)
	}
	return r.value
}

// Get returns the value and whether the result is a success.
func (r Result[T]) Get() (T, bool) { return r.value, r.IsOK() }

// failFrom propagates an error result into a result of another payload
// type, prefixing the message.
func failFrom[T, U any](r Result[U], prefix string) Result[T] {
	msg := r.msg
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	return Err[T](r.code, msg)
}
