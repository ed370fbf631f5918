package server

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/filecloud/internal/protocol"
	"github.com/muurk/filecloud/internal/store"
)

// recordingUsers counts user store calls.
type recordingUsers struct {
	mu       sync.Mutex
	updates  []loginUpdate
	tables   []string
	listing  string
	listErr  error
	forceErr error
}

type loginUpdate struct {
	login    string
	loggedIn bool
}

func (u *recordingUsers) UpdateLoginStatus(_ context.Context, id store.Identity, loggedIn bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = append(u.updates, loginUpdate{id.Login, loggedIn})
	return nil
}

func (u *recordingUsers) LoggedInUsers(context.Context) (string, error) {
	return u.listing, u.listErr
}

func (u *recordingUsers) ForceLogoutAll(_ context.Context, table string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tables = append(u.tables, table)
	return u.forceErr
}

func (u *recordingUsers) logouts() []loginUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []loginUpdate
	for _, up := range u.updates {
		if !up.loggedIn {
			out = append(out, up)
		}
	}
	return out
}

// scriptHandler answers:
//
//	LOGIN <name>  -> "welcome <name>", session becomes authenticated
//	FAIL          -> error
//	PANIC         -> panic
//	BYE           -> "bye" and ErrCloseSession
//	anything else -> "echo:" + message
type scriptHandler struct {
	user store.Identity
}

func newScriptHandler() protocol.Handler { return &scriptHandler{} }

func (h *scriptHandler) Bind(store.UserStore, store.FileStore) {}
func (h *scriptHandler) IsAuthenticated() bool                 { return !h.user.IsAnonymous() }
func (h *scriptHandler) CurrentUser() store.Identity           { return h.user }

func (h *scriptHandler) GenerateResponse(msg string) (string, error) {
	switch {
	case strings.HasPrefix(msg, "LOGIN "):
		h.user = store.Identity{Login: strings.TrimPrefix(msg, "LOGIN ")}
		return "welcome " + h.user.Login, nil
	case msg == "FAIL":
		return "", errors.New("handler failed")
	case msg == "PANIC":
		panic("boom")
	case msg == "BYE":
		return "bye", protocol.ErrCloseSession
	default:
		return "echo:" + msg, nil
	}
}

// scriptedConn is a net.Conn that returns one chunk per Read, then readErr
// (io.EOF when nil).
type scriptedConn struct {
	mu       sync.Mutex
	chunks   []string
	readErr  error
	writeErr error
	writes   []string
	closed   int
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *scriptedConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8000} }
func (c *scriptedConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000} }

func (c *scriptedConn) SetDeadline(time.Time) error      { return nil }
func (c *scriptedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

// freePort returns a currently unused loopback port inside the allowed
// range. Ports from ":0" may fall above MaxPort.
func freePort(t *testing.T) int {
	t.Helper()
	for i := 0; i < 100; i++ {
		port := 20000 + rand.Intn(MaxPort-20000)
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port
	}
	t.Fatal("no free port found")
	return 0
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
