// Package protocol defines the contract between the connection-oriented
// server core and the pluggable protocol logic that interprets messages.
//
// # Contract
//
// The server never looks inside a message. For every accepted connection it
// asks a Factory for a new Handler, binds the shared user and file stores to
// it, and then feeds it one request at a time:
//
//	h := factory()
//	h.Bind(users, files)
//	for {
//	    msg := read()
//	    resp, err := h.GenerateResponse(msg)
//	    write(resp)
//	}
//
// When the connection ends, the server asks IsAuthenticated and CurrentUser
// to decide whether the user's logged-in flag must be cleared.
//
// # Errors
//
// GenerateResponse returns ordinary errors for protocol failures (bad
// arguments, store errors). The server converts them into an error response
// and keeps the session alive. Returning ErrCloseSession ends the session
// after the response is written.
//
// # Implementations
//
// The filecloud subpackage is the reference implementation: a small
// semicolon-separated command language for storing text files per user.
package protocol
