package filecloud

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/muurk/filecloud/internal/protocol"
	"github.com/muurk/filecloud/internal/store"
	"github.com/muurk/filecloud/internal/store/memory"
)

type fixture struct {
	users *memory.UserStore
	files *memory.FileStore
	new   protocol.Factory
}

func newFixture() *fixture {
	return &fixture{
		users: memory.NewUserStore("users"),
		files: memory.NewFileStore(),
		new:   NewFactory(WithBcryptCost(bcrypt.MinCost)),
	}
}

func (f *fixture) handler() protocol.Handler {
	h := f.new()
	h.Bind(f.users, f.files)
	return h
}

func mustRespond(t *testing.T, h protocol.Handler, msg, want string) {
	t.Helper()
	got, err := h.GenerateResponse(msg)
	if err != nil {
		t.Fatalf("GenerateResponse(%q) error = %v", msg, err)
	}
	if got != want {
		t.Errorf("GenerateResponse(%q) = %q, want %q", msg, got, want)
	}
}

func TestAnonymous(t *testing.T) {
	h := newFixture().handler()

	if h.IsAuthenticated() {
		t.Fatal("new handler should be anonymous")
	}
	if !h.CurrentUser().IsAnonymous() {
		t.Errorf("CurrentUser() = %v, want anonymous", h.CurrentUser())
	}

	tests := []struct {
		msg  string
		want string
	}{
		{"FILEALL", RespEmptyList},
		{"fileall", RespEmptyList},
		{"FILEOPEN;notes.txt", RespNotLoggedIn},
		{"FILEADD;notes.txt;hello", RespNotLoggedIn},
		{"FILEUPDATE;notes.txt;hello", RespNotLoggedIn},
		{"FILEDELETE;notes.txt", RespNotLoggedIn},
		{"LOGOUT", RespNotLoggedIn},
		{"LOGIN;alice;secret", RespLoginFailed},
		{"HELLO", RespUnknownCommand},
	}
	for _, tt := range tests {
		mustRespond(t, h, tt.msg, tt.want)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture()
	h := f.handler()
	ctx := context.Background()

	mustRespond(t, h, "REGISTER;alice;secret", RespRegisterOK)
	mustRespond(t, h, "REGISTER;alice;other", RespUserExists)

	acc, err := f.users.Account(ctx, "alice")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if acc.PasswordHash == "secret" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("secret")) != nil {
		t.Error("password should be stored as a bcrypt hash")
	}

	mustRespond(t, h, "LOGIN;alice;wrong", RespLoginFailed)
	mustRespond(t, h, "LOGIN;alice;secret", RespLoginOK)
	if !h.IsAuthenticated() || h.CurrentUser().Login != "alice" {
		t.Errorf("after LOGIN: authenticated=%v user=%v", h.IsAuthenticated(), h.CurrentUser())
	}
	if got, _ := f.users.LoggedInUsers(ctx); got != "alice" {
		t.Errorf("LoggedInUsers() = %q, want alice", got)
	}
	mustRespond(t, h, "LOGIN;alice;secret", RespAlreadyLoggedIn)

	// A second connection cannot take over a logged-in account.
	other := f.handler()
	mustRespond(t, other, "LOGIN;alice;secret", RespAlreadyLoggedIn)
	if other.IsAuthenticated() {
		t.Error("second handler should stay anonymous")
	}

	mustRespond(t, h, "LOGOUT", RespLogoutOK)
	if h.IsAuthenticated() {
		t.Error("handler should be anonymous after LOGOUT")
	}
	if got, _ := f.users.LoggedInUsers(ctx); got != store.NoLoggedInUsers {
		t.Errorf("LoggedInUsers() after LOGOUT = %q", got)
	}
}

func TestFileCommands(t *testing.T) {
	h := newFixture().handler()
	mustRespond(t, h, "REGISTER;bob;pw", RespRegisterOK)
	mustRespond(t, h, "LOGIN;bob;pw", RespLoginOK)

	steps := []struct {
		msg  string
		want string
	}{
		{"FILEALL", RespEmptyList},
		{"FILEADD;Notes.txt;first;line", RespFileAdded},
		{"FILEADD;notes.txt;again", RespFileExists},
		{"FILEADD;todo.txt;milk", RespFileAdded},
		{"FILEADD;../etc/passwd;x", RespInvalidName},
		{"FILEADD;;x", RespInvalidName},
		{"FILEALL", "notes.txt;todo.txt"},
		{"FILEOPEN;notes.txt", "first;line"},
		{"FILEOPEN;missing.txt", RespFileNotFound},
		{"FILEUPDATE;notes.txt;second", RespFileUpdated},
		{"FILEOPEN;NOTES.TXT", "second"},
		{"FILEUPDATE;missing.txt;x", RespFileNotFound},
		{"FILEDELETE;todo.txt", RespFileDeleted},
		{"FILEDELETE;todo.txt", RespFileNotFound},
		{"FILEALL", "notes.txt"},
		{"FILEADD;blank.txt;", RespFileAdded},
		{"FILEOPEN;blank.txt", RespFileEmpty},
		{"FILEUPDATE;notes.txt;", RespFileUpdated},
		{"FILEOPEN;notes.txt", RespFileEmpty},
	}
	for _, s := range steps {
		mustRespond(t, h, s.msg, s.want)
	}
}

// slowAccounts delays after every account lookup, widening the gap between
// reading an account and claiming its login.
type slowAccounts struct {
	*memory.UserStore
}

func (s slowAccounts) Account(ctx context.Context, login string) (*store.Account, error) {
	acc, err := s.UserStore.Account(ctx, login)
	time.Sleep(2 * time.Millisecond)
	return acc, err
}

func TestConcurrentLoginSameAccount(t *testing.T) {
	users := slowAccounts{memory.NewUserStore("users")}
	factory := NewFactory(WithBcryptCost(bcrypt.MinCost))

	setup := factory()
	setup.Bind(users, memory.NewFileStore())
	mustRespond(t, setup, "REGISTER;alice;pw", RespRegisterOK)

	for trial := 0; trial < 20; trial++ {
		if err := users.ForceLogoutAll(context.Background(), "users"); err != nil {
			t.Fatalf("ForceLogoutAll() error = %v", err)
		}

		handlers := []protocol.Handler{factory(), factory()}
		resps := make([]string, len(handlers))
		var wg sync.WaitGroup
		for i, h := range handlers {
			h.Bind(users, nil)
			wg.Add(1)
			go func(i int, h protocol.Handler) {
				defer wg.Done()
				resps[i], _ = h.GenerateResponse("LOGIN;alice;pw")
			}(i, h)
		}
		wg.Wait()

		ok, rejected := 0, 0
		for _, r := range resps {
			switch r {
			case RespLoginOK:
				ok++
			case RespAlreadyLoggedIn:
				rejected++
			}
		}
		if ok != 1 || rejected != 1 {
			t.Fatalf("trial %d: responses = %q, want one %s and one %s",
				trial, resps, RespLoginOK, RespAlreadyLoggedIn)
		}
		if handlers[0].IsAuthenticated() == handlers[1].IsAuthenticated() {
			t.Fatalf("trial %d: exactly one handler should be authenticated", trial)
		}
	}
}

func TestFilesArePerUser(t *testing.T) {
	f := newFixture()
	alice, bob := f.handler(), f.handler()

	mustRespond(t, alice, "REGISTER;alice;a", RespRegisterOK)
	mustRespond(t, alice, "LOGIN;alice;a", RespLoginOK)
	mustRespond(t, bob, "REGISTER;bob;b", RespRegisterOK)
	mustRespond(t, bob, "LOGIN;bob;b", RespLoginOK)

	mustRespond(t, alice, "FILEADD;secret.txt;mine", RespFileAdded)
	mustRespond(t, bob, "FILEALL", RespEmptyList)
	mustRespond(t, bob, "FILEOPEN;secret.txt", RespFileNotFound)
}

func TestMissingArguments(t *testing.T) {
	h := newFixture().handler()
	for _, msg := range []string{"REGISTER", "REGISTER;alice", "LOGIN;alice", "FILEOPEN", "FILEADD;name"} {
		if _, err := h.GenerateResponse(msg); err == nil {
			t.Errorf("GenerateResponse(%q) expected error", msg)
		}
	}
}

func TestExit(t *testing.T) {
	f := newFixture()
	h := f.handler()
	mustRespond(t, h, "REGISTER;carol;pw", RespRegisterOK)
	mustRespond(t, h, "LOGIN;carol;pw", RespLoginOK)

	resp, err := h.GenerateResponse("EXIT")
	if !protocol.IsCloseSession(err) {
		t.Fatalf("EXIT error = %v, want ErrCloseSession", err)
	}
	if resp != "" {
		t.Errorf("EXIT response = %q, want empty", resp)
	}
	if h.IsAuthenticated() {
		t.Error("EXIT should log the user out")
	}
	if got, _ := f.users.LoggedInUsers(context.Background()); got != store.NoLoggedInUsers {
		t.Errorf("LoggedInUsers() after EXIT = %q", got)
	}

	anon := f.handler()
	if _, err := anon.GenerateResponse("exit"); !errors.Is(err, protocol.ErrCloseSession) {
		t.Errorf("anonymous EXIT error = %v, want ErrCloseSession", err)
	}
}

// plainUsers satisfies UserStore but not AccountStore.
type plainUsers struct{}

func (plainUsers) UpdateLoginStatus(context.Context, store.Identity, bool) error { return nil }
func (plainUsers) LoggedInUsers(context.Context) (string, error)                 { return "", nil }
func (plainUsers) ForceLogoutAll(context.Context, string) error                  { return nil }

func TestAccountsUnsupported(t *testing.T) {
	h := NewFactory()()
	h.Bind(plainUsers{}, nil)

	_, err := h.GenerateResponse("LOGIN;alice;pw")
	if !errors.Is(err, ErrAccountsUnsupported) {
		t.Errorf("LOGIN error = %v, want ErrAccountsUnsupported", err)
	}
	mustRespond(t, h, "FILEALL", RespEmptyList)
}

func TestFactoryCreatesIndependentHandlers(t *testing.T) {
	f := newFixture()
	a, b := f.handler(), f.handler()
	if a == b {
		t.Fatal("factory returned the same handler twice")
	}
	mustRespond(t, a, "REGISTER;dave;pw", RespRegisterOK)
	mustRespond(t, a, "LOGIN;dave;pw", RespLoginOK)
	if b.IsAuthenticated() {
		t.Error("login on one handler leaked into another")
	}
	if !strings.EqualFold(a.CurrentUser().String(), "dave") {
		t.Errorf("CurrentUser() = %v", a.CurrentUser())
	}
}
