package queue

import "gopkg.in/errgo.v1"

// ErrorCode classifies an error returned from the queue engine. It
// implements both error and the errorCoder interface so that collaborators
// (the HTTP layer, notification retries) can switch on errgo.Cause(err)
// without a type assertion on a concrete error struct.
type ErrorCode string

// Error implements error.
func (e ErrorCode) Error() string { return string(e) }

// ErrorCode implements errorCoder.
func (e ErrorCode) ErrorCode() ErrorCode { return e }

const (
	// ErrInvalidRequest marks a bad reservation shape, non-positive
	// quantity, or unknown bread type. No state is changed.
	ErrInvalidRequest = ErrorCode("invalid request")

	// ErrNotFound marks a missing bakery or a ticket absent from the
	// active queue.
	ErrNotFound = ErrorCode("not found")

	// ErrTicketInWaitList is a NotFound discriminator: the ticket left
	// the active queue for the wait list.
	ErrTicketInWaitList = ErrorCode("ticket in wait list")

	// ErrTicketServed is a NotFound discriminator: the ticket already
	// completed via the wait-list serve step.
	ErrTicketServed = ErrorCode("ticket served")

	// ErrConflict marks a duplicate ticket write - an invariant
	// violation that should be impossible by construction.
	ErrConflict = ErrorCode("conflict")

	// ErrTransient marks a journal load, save or reset that failed. The
	// failed operation is not retried; the error goes straight to the
	// caller.
	ErrTransient = ErrorCode("transient store error")
)

// errorCoder is implemented by errors that carry a classification code.
type errorCoder interface {
	ErrorCode() ErrorCode
}

// Cause returns the ErrorCode classifying err, or "" if err does not carry
// one. Unwraps through errgo's cause chain so that wrapped errors (via
// errgo.Notef / errgo.Mask) still classify correctly.
func Cause(err error) ErrorCode {
	if err == nil {
		return ""
	}
	cause := errgo.Cause(err)
	if coder, ok := cause.(errorCoder); ok {
		return coder.ErrorCode()
	}
	return ""
}

// Is reports whether err's cause is code.
func Is(err error, code ErrorCode) bool {
	return Cause(err) == code
}
