package httpqueue

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/bakeryqueue/core/queue"
)

// NewServeMux builds the HTTP router exposing q's hardware-facing and
// customer-facing operations, rooted at "/". auth may be nil, in which
// case every request is allowed through unauthenticated - suitable for
// deployments that authenticate upstream of this process.
func NewServeMux(q *queue.Queue, configs ConfigSource, auth Authenticator) http.Handler {
	router := httprouter.New()
	for _, h := range Handlers(q, configs, auth) {
		router.Handle(h.Method, h.Path, h.Handle)
	}
	return router
}
