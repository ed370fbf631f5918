package server

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigLocked matches every ConfigLockedError.
	ErrConfigLocked = errors.New("configuration is locked while the server is running")
	// ErrAlreadyRunning is returned by Start on a running server.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrNotRunning is returned by Stop on a stopped server.
	ErrNotRunning = errors.New("server is not running")
)

// ConfigLockedError reports an attempt to change configuration while the
// server is running.
type ConfigLockedError struct {
	Field string // "address", "port" or "buffer size"
}

func (e *ConfigLockedError) Error() string {
	return fmt.Sprintf("the %s cannot be changed while the server is running", e.Field)
}

// Is makes errors.Is(err, ErrConfigLocked) match.
func (e *ConfigLockedError) Is(target error) bool {
	return target == ErrConfigLocked
}

// PortRangeError reports a port outside [MinPort, MaxPort].
type PortRangeError struct {
	Port int
}

func (e *PortRangeError) Error() string {
	return fmt.Sprintf("port %d out of range (allowed %d-%d)", e.Port, MinPort, MaxPort)
}

// BufferSizeError reports a buffer size outside (0, MaxBufferSize].
type BufferSizeError struct {
	Size int
}

func (e *BufferSizeError) Error() string {
	return fmt.Sprintf("buffer size %d out of range (allowed 1-%d bytes)", e.Size, MaxBufferSize)
}

// TransportReadError wraps a failed read on a client connection.
type TransportReadError struct {
	RemoteAddr string
	Err        error
}

func (e *TransportReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.RemoteAddr, e.Err)
}

func (e *TransportReadError) Unwrap() error { return e.Err }

// TransportWriteError wraps a failed write on a client connection.
type TransportWriteError struct {
	RemoteAddr string
	Err        error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.RemoteAddr, e.Err)
}

func (e *TransportWriteError) Unwrap() error { return e.Err }

// BindError reports that the listener could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// IsTransportError reports whether err came from reading or writing a
// client connection.
func IsTransportError(err error) bool {
	var re *TransportReadError
	var we *TransportWriteError
	return errors.As(err, &re) || errors.As(err, &we)
}
