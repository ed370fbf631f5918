package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/logging"
	"github.com/muurk/filecloud/internal/protocol"
	"github.com/muurk/filecloud/internal/store"
)

// ErrorResponsePrefix starts every response generated from a protocol
// error.
const ErrorResponsePrefix = "ERROR: "

// storeWriteTimeout bounds the logout write issued at teardown.
const storeWriteTimeout = 5 * time.Second

// State is a session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// sessionConfig is the configuration snapshot a session runs with. It is
// taken when the server starts, so sessions never read mutable server
// fields.
type sessionConfig struct {
	maxMessageSize int
	idleTimeout    time.Duration
	factory        protocol.Factory
	users          store.UserStore
	files          store.FileStore
	metrics        *Metrics
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID         string
	RemoteAddr string
	Login      string
	State      State
	StartedAt  time.Time
}

// Session drives one client connection through
// connecting, active, closing and closed.
type Session struct {
	id         string
	conn       net.Conn
	remoteAddr string
	cfg        sessionConfig
	handler    protocol.Handler
	framer     *Framer
	startedAt  time.Time

	state      atomic.Int32
	login      atomic.Value // string, updated after each request
	logoutOnce sync.Once
	closeOnce  sync.Once
}

func newSession(conn net.Conn, cfg sessionConfig) *Session {
	remoteAddr := conn.RemoteAddr().String()
	s := &Session{
		id:         uuid.New().String(),
		conn:       conn,
		remoteAddr: remoteAddr,
		cfg:        cfg,
		startedAt:  time.Now(),
	}
	s.framer = NewFramer(conn, cfg.maxMessageSize)
	s.framer.remoteAddr = remoteAddr
	s.login.Store("")
	s.state.Store(int32(StateConnecting))

	s.handler = cfg.factory()
	s.handler.Bind(cfg.users, cfg.files)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Info returns a snapshot for administrative listings.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		RemoteAddr: s.remoteAddr,
		Login:      s.login.Load().(string),
		State:      s.State(),
		StartedAt:  s.startedAt,
	}
}

// Run serves requests until the peer closes the connection, an I/O error
// occurs, or the protocol asks to end the session. It always finalizes
// the session before returning.
func (s *Session) Run() {
	defer s.finalize()

	s.state.Store(int32(StateActive))
	logging.LogConnection(s.remoteAddr, "connection_accepted", zap.String("session_id", s.id))

	for {
		msg, err := s.readRequest()
		if err != nil {
			s.cfg.metrics.transportError("read")
			logging.Info("Connection closed or error reading message",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
				zap.Error(err),
			)
			return
		}
		if msg == "" {
			logging.Debug("Connection closed by client",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
			)
			return
		}

		resp, closeAfter := s.dispatch(msg)
		if resp == "" && !closeAfter {
			logging.Warn("Protocol returned an empty response, nothing sent",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
			)
		}
		if resp != "" {
			if err := s.writeResponse(resp); err != nil {
				s.cfg.metrics.transportError("write")
				logging.Info("Failed to write response",
					zap.String("remote_addr", s.remoteAddr),
					zap.String("session_id", s.id),
					zap.Error(err),
				)
				return
			}
		}
		if closeAfter {
			logging.Debug("Session ended by protocol",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
			)
			return
		}
	}
}

func (s *Session) readRequest() (string, error) {
	if s.cfg.idleTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.idleTimeout)); err != nil {
			return "", &TransportReadError{RemoteAddr: s.remoteAddr, Err: err}
		}
	}
	msg, err := s.framer.Next()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			logging.Info("Session idle timeout",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
				zap.Duration("idle_timeout", s.cfg.idleTimeout),
			)
		}
		return "", err
	}
	if msg != "" {
		logging.LogMessage(s.remoteAddr, "received", []byte(msg))
	}
	return msg, nil
}

// dispatch hands one request to the protocol handler. Handler errors and
// panics become error responses; only ErrCloseSession ends the session.
func (s *Session) dispatch(msg string) (resp string, closeAfter bool) {
	start := time.Now()
	defer func() {
		s.cfg.metrics.request(len(msg), time.Since(start))
		s.login.Store(s.handler.CurrentUser().Login)
	}()

	defer func() {
		if r := recover(); r != nil {
			s.cfg.metrics.protocolError("panic")
			logging.Error("Protocol handler panicked",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("session_id", s.id),
				zap.Any("panic", r),
			)
			resp = ErrorResponse(fmt.Errorf("internal server error"))
			closeAfter = false
		}
	}()

	resp, err := s.handler.GenerateResponse(msg)
	switch {
	case err == nil:
		return resp, false
	case protocol.IsCloseSession(err):
		return resp, true
	default:
		s.cfg.metrics.protocolError("error")
		logging.Warn("Protocol error",
			zap.String("remote_addr", s.remoteAddr),
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		return ErrorResponse(err), false
	}
}

func (s *Session) writeResponse(resp string) error {
	data := []byte(resp)
	n, err := s.conn.Write(data)
	s.cfg.metrics.sent(n)
	if err != nil {
		return &TransportWriteError{RemoteAddr: s.remoteAddr, Err: err}
	}
	logging.LogMessage(s.remoteAddr, "sent", data)
	return nil
}

// finalize moves the session through closing to closed: it logs the close,
// clears the user's logged-in flag if the handler still reports an
// authenticated user, and releases the connection.
func (s *Session) finalize() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))

		user := s.handler.CurrentUser()
		logging.LogConnection(s.remoteAddr, "connection_closed",
			zap.String("session_id", s.id),
			zap.String("login", user.String()),
			zap.Duration("duration", time.Since(s.startedAt)),
		)

		if s.handler.IsAuthenticated() {
			s.logout(user)
		}

		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
	})
}

func (s *Session) logout(user store.Identity) {
	s.logoutOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		defer cancel()

		err := s.cfg.users.UpdateLoginStatus(ctx, user, false)
		s.cfg.metrics.logoutWrite(err)
		if err != nil {
			logging.Error("Failed to clear login status",
				zap.String("session_id", s.id),
				zap.String("login", user.Login),
				zap.Error(err),
			)
			return
		}
		logging.Info("User logged out on disconnect",
			zap.String("session_id", s.id),
			zap.String("login", user.Login),
		)
	})
}

// ErrorResponse renders a protocol error for the client.
func ErrorResponse(err error) string {
	return ErrorResponsePrefix + err.Error()
}
