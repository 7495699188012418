package ufaterr

import "fmt"

// DriverError is an error carrying a taxonomy Code plus a customizable
// message, in the spirit of the wider codebase's WithMessage/WrapError
// error idiom, closed to this subsystem's nine-member taxonomy instead of
// the full POSIX errno space.
type DriverError interface {
	error
	Code() Code
	Errno() int
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	Unwrap() error
}

type driverError struct {
	code          Code
	message       string
	originalError error
}

// New creates a DriverError for the given code with its default message.
func New(code Code) DriverError {
	return driverError{code: code, message: Strerror(int(code))}
}

// NewWithMessage creates a DriverError for the given code with a custom
// message appended to the default one.
func NewWithMessage(code Code, message string) DriverError {
	return driverError{
		code:    code,
		message: fmt.Sprintf("%s: %s", Strerror(int(code)), message),
	}
}

// Error implements the `error` object interface.
func (e driverError) Error() string {
	return e.message
}

// Code returns the taxonomy member this error belongs to.
func (e driverError) Code() Code {
	return e.code
}

// Errno returns the C-convention negative form of this error's code.
func (e driverError) Errno() int {
	return -int(e.code)
}

func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e driverError) WrapError(err error) DriverError {
	return driverError{
		code:          e.code,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is allows errors.Is(err, ufaterr.New(ufaterr.IO)) (or any sentinel built
// from the same code) to match regardless of attached message.
func (e driverError) Is(target error) bool {
	other, ok := target.(driverError)
	if !ok {
		return false
	}
	return e.code == other.code
}

// Sentinel errors for the nine taxonomy members, for use with errors.Is.
var (
	ErrIO             = New(IO)
	ErrBlockSize      = New(BlockSize)
	ErrInvalidBPB     = New(InvalidBPB)
	ErrBlockAlignment = New(BlockAlignment)
	ErrInvalidCluster = New(InvalidCluster)
	ErrNameTooLong    = New(NameTooLong)
	ErrNotDirectory   = New(NotDirectory)
	ErrNotFile        = New(NotFile)
)
