// Package server implements the connection-oriented request/response core
// of filecloud.
//
// The server accepts plain TCP clients, reads one text message per
// exchange, hands it to a pluggable protocol handler and writes the
// handler's response back on the same connection. It owns no protocol
// logic of its own.
//
// # Components
//
//   - Framer: reads one message per read call, trimming CR, LF and NUL
//   - Session: runs the read-dispatch-write loop for one connection
//   - Server: binds the listener, accepts connections, guards configuration
//   - Console: line-oriented administrative commands
//
// # Usage Example
//
//	srv, err := server.New(server.Options{
//	    Address: "",   // all interfaces
//	    Port:    8000,
//	    Factory: filecloud.NewFactory(),
//	    Users:   users,
//	    Files:   files,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := srv.Start(); err != nil {
//	    log.Printf("bind failed: %v", err)
//	}
//
//	sig := server.NewConsole(srv, os.Stdin, os.Stdout).Run(ctx)
//	log.Printf("%s", sig)
//	_ = srv.Stop()
//
// # Configuration Guard Rails
//
// Address, port and buffer size can only change while the server is
// stopped; setters return *ConfigLockedError otherwise. Ports must lie in
// [1024, 49151] and buffer sizes in (0, 1024*102*64].
//
// # Sessions
//
// Each accepted connection gets its own goroutine and its own protocol
// handler instance. Requests and responses on a connection strictly
// alternate. A handler error or panic is converted into an error response
// ("ERROR: ...") and the session continues. When the connection ends, the
// user's logged-in flag is cleared at most once if the handler still
// reports an authenticated user.
//
// # Shutdown
//
// Stop clears every logged-in flag in the users table and closes the
// listener. Sessions that are already running are not interrupted; they
// finish when their client disconnects. Wait blocks until they are gone.
package server
