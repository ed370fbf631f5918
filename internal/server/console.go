package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/logging"
)

// Console commands.
const (
	CmdShutdown     = "shutdown"
	CmdShowUsers    = "show users"
	CmdShowSessions = "show sessions"
)

// ShutdownReason says why the console asked the process to stop.
type ShutdownReason int

const (
	// ReasonCommand: the operator typed "shutdown".
	ReasonCommand ShutdownReason = iota
	// ReasonBindInvalid: the listener could not be bound.
	ReasonBindInvalid
	// ReasonCanceled: the console context was canceled.
	ReasonCanceled
)

func (r ShutdownReason) String() string {
	switch r {
	case ReasonCommand:
		return "shutdown command"
	case ReasonBindInvalid:
		return "listener bind failed"
	case ReasonCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ShutdownReason(%d)", int(r))
	}
}

// ShutdownSignal is returned by Console.Run. The owning process reacts to
// it by stopping the server and releasing resources.
type ShutdownSignal struct {
	Reason ShutdownReason
}

func (s ShutdownSignal) String() string {
	return "shutdown: " + s.Reason.String()
}

// Admin is the part of the server the console drives.
type Admin interface {
	LoggedInUsers(ctx context.Context) (string, error)
	ActiveSessions() []SessionInfo
	BindFailed() <-chan struct{}
}

// Console reads administrative commands line by line.
type Console struct {
	admin  Admin
	in     io.Reader
	out    io.Writer
	prompt string
}

// NewConsole creates a console reading from in and printing to out.
func NewConsole(admin Admin, in io.Reader, out io.Writer) *Console {
	return &Console{admin: admin, in: in, out: out}
}

// SetPrompt sets a prompt printed before each command. Empty disables it.
func (c *Console) SetPrompt(prompt string) {
	c.prompt = prompt
}

// Run processes commands until "shutdown" is entered, the server reports a
// bind failure, or ctx is canceled, and returns the corresponding signal.
// Unknown commands are ignored. When input reaches EOF the console keeps
// waiting for a bind failure or cancellation.
//
// The goroutine reading input may stay blocked in Read after Run returns
// if the reader cannot be interrupted (os.Stdin).
func (c *Console) Run(ctx context.Context) ShutdownSignal {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go c.readLines(ctx, lines)

	bindFailed := c.admin.BindFailed()
	c.printPrompt()

	for {
		select {
		case <-ctx.Done():
			return ShutdownSignal{Reason: ReasonCanceled}

		case <-bindFailed:
			logging.Warn("Listener is not bound, shutting down")
			return ShutdownSignal{Reason: ReasonBindInvalid}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if c.execute(ctx, line) {
				return ShutdownSignal{Reason: ReasonCommand}
			}
			c.printPrompt()
		}
	}
}

func (c *Console) readLines(ctx context.Context, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logging.Warn("Console input error", zap.Error(err))
	}
}

// execute runs one command and reports whether it requested shutdown.
func (c *Console) execute(ctx context.Context, line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	switch cmd {
	case CmdShutdown:
		logging.Info("Shutdown requested from console")
		return true

	case CmdShowUsers:
		qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		users, err := c.admin.LoggedInUsers(qctx)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(c.out, users)

	case CmdShowSessions:
		sessions := c.admin.ActiveSessions()
		fmt.Fprintf(c.out, "%d active session(s)\n", len(sessions))
		for _, s := range sessions {
			login := s.Login
			if login == "" {
				login = "anonymous"
			}
			fmt.Fprintf(c.out, "%s  %-21s  %-16s  %s  since %s\n",
				s.ID, s.RemoteAddr, login, s.State, s.StartedAt.Format(time.RFC3339))
		}

	default:
		if cmd != "" {
			logging.Debug("Ignoring unknown console command", zap.String("command", cmd))
		}
	}
	return false
}

func (c *Console) printPrompt() {
	if c.prompt != "" {
		fmt.Fprint(c.out, c.prompt)
	}
}
