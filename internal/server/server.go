package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/logging"
	"github.com/muurk/filecloud/internal/protocol"
	"github.com/muurk/filecloud/internal/store"
)

// Configuration limits and defaults.
const (
	MinPort           = 1024
	MaxPort           = 49151
	DefaultPort       = 8000
	DefaultBufferSize = 1024
	MaxBufferSize     = 1024 * 102 * 64
)

// maxAcceptBackoff caps the pause after a failed Accept.
const maxAcceptBackoff = time.Second

// Options configures a new Server.
type Options struct {
	Address    string // empty listens on all interfaces
	Port       int
	BufferSize int // zero selects DefaultBufferSize

	// IdleTimeout closes sessions that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	Factory    protocol.Factory
	Users      store.UserStore
	Files      store.FileStore
	UsersTable string // table cleared by Stop; defaults to store.DefaultUsersTable

	Metrics *Metrics // optional
}

// Server accepts client connections and runs one Session per connection.
//
// Address, port and buffer size may only change while the server is
// stopped. A failed bind does not panic: it marks the server invalid and
// closes the channel returned by BindFailed.
type Server struct {
	mu          sync.Mutex
	address     string
	port        int
	bufferSize  int
	idleTimeout time.Duration
	running     bool
	bindValid   bool
	bindFailed  chan struct{}
	failClosed  bool
	listener    net.Listener
	acceptDone  chan struct{}

	factory    protocol.Factory
	users      store.UserStore
	files      store.FileStore
	usersTable string
	metrics    *Metrics

	sessMu   sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a stopped Server. An out-of-range port is logged and
// replaced by DefaultPort; an invalid buffer size is an error.
func New(opts Options) (*Server, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("protocol factory is required")
	}
	if opts.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}

	s := &Server{
		port:        DefaultPort,
		bufferSize:  DefaultBufferSize,
		idleTimeout: opts.IdleTimeout,
		bindValid:   true,
		bindFailed:  make(chan struct{}),
		factory:     opts.Factory,
		users:       opts.Users,
		files:       opts.Files,
		usersTable:  opts.UsersTable,
		metrics:     opts.Metrics,
		sessions:    make(map[string]*Session),
	}
	if s.usersTable == "" {
		s.usersTable = store.DefaultUsersTable
	}

	if err := s.SetAddress(opts.Address); err != nil {
		return nil, err
	}

	if err := s.SetPort(opts.Port); err != nil {
		var rangeErr *PortRangeError
		if !errors.As(err, &rangeErr) {
			return nil, err
		}
		logging.Warn("Port out of range, falling back to default",
			zap.Int("port", opts.Port),
			zap.Int("default_port", DefaultPort),
		)
	}

	if opts.BufferSize != 0 {
		if err := s.SetBufferSize(opts.BufferSize); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SetAddress changes the bind address.
func (s *Server) SetAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &ConfigLockedError{Field: "address"}
	}
	s.address = address
	return nil
}

// SetPort changes the bind port. Values outside [MinPort, MaxPort] are
// rejected and the previous port is kept.
func (s *Server) SetPort(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &ConfigLockedError{Field: "port"}
	}
	if err := ValidatePort(port); err != nil {
		return err
	}
	s.port = port
	return nil
}

// SetBufferSize changes the maximum message size.
func (s *Server) SetBufferSize(size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &ConfigLockedError{Field: "buffer size"}
	}
	if err := ValidateBufferSize(size); err != nil {
		return err
	}
	s.bufferSize = size
	return nil
}

// ValidatePort checks the allowed port range.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return &PortRangeError{Port: port}
	}
	return nil
}

// ValidateBufferSize checks the allowed buffer size range.
func ValidateBufferSize(size int) error {
	if size <= 0 || size > MaxBufferSize {
		return &BufferSizeError{Size: size}
	}
	return nil
}

// Address returns the configured bind address.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Port returns the configured port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// BufferSize returns the configured maximum message size.
func (s *Server) BufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferSize
}

// Running reports whether the listener is open.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// BindValid reports whether the last bind attempt succeeded.
func (s *Server) BindValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindValid
}

// BindFailed returns a channel that is closed when a bind attempt fails.
func (s *Server) BindFailed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindFailed
}

// Addr returns the listening address while running, or the configured
// address otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.address, strconv.Itoa(s.port))
}

// Start binds the listener and begins accepting connections in the
// background. On bind failure the server stays stopped, BindValid turns
// false, BindFailed is closed and a *BindError is returned.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.failClosed {
		s.bindFailed = make(chan struct{})
		s.failClosed = false
	}
	s.bindValid = true

	addr := net.JoinHostPort(s.address, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.bindValid = false
		close(s.bindFailed)
		s.failClosed = true
		s.metrics.bindFailed()
		logging.Error("Failed to bind listener",
			zap.String("addr", addr),
			zap.Error(err),
		)
		return &BindError{Addr: addr, Err: err}
	}

	cfg := sessionConfig{
		maxMessageSize: s.bufferSize,
		idleTimeout:    s.idleTimeout,
		factory:        s.factory,
		users:          s.users,
		files:          s.files,
		metrics:        s.metrics,
	}

	s.listener = ln
	s.running = true
	s.acceptDone = make(chan struct{})
	go s.acceptConnections(ln, cfg, s.acceptDone)

	logging.Info("Server listening for connections",
		zap.String("addr", ln.Addr().String()),
		zap.Int("buffer_size", s.bufferSize),
	)
	return nil
}

// acceptConnections accepts until the listener is closed. It never waits
// on session work.
func (s *Server) acceptConnections(ln net.Listener, cfg sessionConfig, done chan struct{}) {
	defer close(done)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			logging.Error("Failed to accept connection",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go s.serve(conn, cfg)
	}
}

func (s *Server) serve(conn net.Conn, cfg sessionConfig) {
	defer s.wg.Done()

	sess := newSession(conn, cfg)
	s.track(sess)
	cfg.metrics.sessionOpened()
	defer func() {
		s.untrack(sess)
		cfg.metrics.sessionClosed()
	}()

	sess.Run()
}

func (s *Server) track(sess *Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[sess.ID()] = sess
}

func (s *Server) untrack(sess *Session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, sess.ID())
}

// Stop clears the logged-in flag of every user in the users table, then
// closes the listener. Sessions already running are not interrupted; they
// end on their next I/O error or close. Use Wait to drain them.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	logging.Info("Stopping server", zap.String("addr", s.listener.Addr().String()))

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := s.users.ForceLogoutAll(ctx, s.usersTable); err != nil {
		logging.Error("Failed to force logout", zap.String("table", s.usersTable), zap.Error(err))
		errs = append(errs, fmt.Errorf("force logout: %w", err))
	}

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logging.Error("Error closing listener", zap.Error(err))
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}
	<-s.acceptDone

	s.listener = nil
	s.acceptDone = nil
	s.running = false

	return errors.Join(errs...)
}

// Wait blocks until every session has finished or ctx is done. Call it
// after Stop, once no new sessions can be accepted.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoggedInUsers returns the user store's logged-in listing.
func (s *Server) LoggedInUsers(ctx context.Context) (string, error) {
	return s.users.LoggedInUsers(ctx)
}

// ActiveSessions lists open sessions ordered by start time.
func (s *Server) ActiveSessions() []SessionInfo {
	s.sessMu.Lock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	s.sessMu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// GetActiveConnections returns the number of open sessions.
func (s *Server) GetActiveConnections() int {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return len(s.sessions)
}
