package protocol

import (
	"errors"

	"github.com/muurk/filecloud/internal/store"
)

// ErrCloseSession is returned (optionally wrapped) by GenerateResponse when
// the client asked to end the conversation. The session writes the
// accompanying response, if any, and then closes the connection.
var ErrCloseSession = errors.New("session closed by protocol")

// Handler is the contract between the server core and a pluggable protocol.
//
// The server creates one Handler per connection through a Factory and never
// shares it between connections. All methods are called from the
// connection's own goroutine, so implementations need no locking for their
// per-session state.
type Handler interface {
	// Bind attaches the shared stores. It is called once, before the first
	// GenerateResponse.
	Bind(users store.UserStore, files store.FileStore)

	// GenerateResponse turns one request into one response. A non-nil
	// error other than ErrCloseSession is reported to the client as an
	// error response; the session keeps running.
	//
	// An empty response is not written: nothing is sent and the client
	// gets no reply to that request. Handlers must return a non-empty
	// response for every request that does not end the session.
	GenerateResponse(message string) (string, error)

	// IsAuthenticated reports whether a user is logged in on this session.
	IsAuthenticated() bool

	// CurrentUser returns the logged-in identity, or the anonymous
	// identity.
	CurrentUser() store.Identity
}

// Factory creates a fresh Handler for a new connection.
type Factory func() Handler

// IsCloseSession reports whether err asks for the session to end.
func IsCloseSession(err error) bool {
	return errors.Is(err, ErrCloseSession)
}
