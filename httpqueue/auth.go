package httpqueue

import (
	"gopkg.in/errgo.v1"
	"gopkg.in/httprequest.v1"
)

// errAuthFailed is the cause attached to an authentication failure from
// Authenticator.Authenticate; ErrorToResponse maps it to 401 without ever
// needing to know which Authenticator implementation produced it.
var errAuthFailed = errgo.New("authentication failed")

// Authenticator checks the bearer token on an incoming request against
// bakeryID. Token issuance and verification are outside this package's
// scope - callers supply whatever implementation matches their deployment
// (a static per-bakery token map, an external identity service, and so
// on); httpqueue only ever calls Authenticate at the top of each
// hardware-facing handler. The customer-facing token endpoints do not call
// it.
type Authenticator interface {
	Authenticate(p httprequest.Params, bakeryID int) error
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc func(p httprequest.Params, bakeryID int) error

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(p httprequest.Params, bakeryID int) error {
	return f(p, bakeryID)
}

// AllowAll is an Authenticator that never rejects a request. It exists for
// tests and for deployments that terminate authentication upstream (for
// example at a reverse proxy).
var AllowAll Authenticator = AuthenticatorFunc(func(httprequest.Params, int) error { return nil })
