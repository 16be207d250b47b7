// Package httpqueue exposes the bakery queue engine's operations over
// HTTP, following the request/response and error-mapping conventions the
// macaroon discharge service uses for its own handlers.
package httpqueue

import (
	"context"
	"net/http"

	"gopkg.in/errgo.v1"
	"gopkg.in/httprequest.v1"

	"github.com/bakeryqueue/core/queue"
)

// Error is the JSON body written for any handler error.
type Error struct {
	Code    queue.ErrorCode `json:",omitempty"`
	Message string          `json:",omitempty"`
}

// Error implements error.
func (e *Error) Error() string {
	return e.Message
}

// ErrorCode implements the coder interface queue.Cause checks for, so that
// queue.Cause can recover the code from a wrapped Error.
func (e *Error) ErrorCode() queue.ErrorCode {
	return e.Code
}

func errorBody(err error) *Error {
	return &Error{
		Code:    queue.Cause(err),
		Message: err.Error(),
	}
}

// ErrorToResponse maps an error returned by a handler to an HTTP status
// and JSON body: the status is chosen entirely from the error's
// queue.ErrorCode cause, never from its message text.
func ErrorToResponse(ctx context.Context, err error) (int, interface{}) {
	body := errorBody(err)
	status := http.StatusInternalServerError
	switch body.Code {
	case queue.ErrInvalidRequest:
		status = http.StatusBadRequest
	case queue.ErrNotFound, queue.ErrTicketInWaitList, queue.ErrTicketServed:
		status = http.StatusNotFound
	case queue.ErrConflict:
		status = http.StatusConflict
	case queue.ErrTransient:
		status = http.StatusServiceUnavailable
	case "":
		if errgo.Cause(err) == errAuthFailed {
			status = http.StatusUnauthorized
		}
	}
	return status, body
}

var srv = httprequest.Server{
	ErrorMapper: ErrorToResponse,
}
