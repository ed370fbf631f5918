// Package filecloud is the reference protocol handler: a per-user text
// file store driven by semicolon-separated commands.
//
//	REGISTER;login;password      -> REGISTER_OK | USER_EXISTS
//	LOGIN;login;password         -> LOGIN_OK | LOGIN_FAILED | ALREADY_LOGGED_IN
//	LOGOUT                       -> LOGOUT_OK | NOT_LOGGED_IN
//	FILEALL                      -> name;name;... | File list is empty!
//	FILEOPEN;name                -> content | FILE_EMPTY | FILE_NOT_FOUND
//	FILEADD;name;content         -> FILE_ADDED | FILE_EXISTS | INV_FILE_NAME
//	FILEUPDATE;name;content      -> FILE_UPDATED | FILE_NOT_FOUND
//	FILEDELETE;name              -> FILE_DELETED | FILE_NOT_FOUND
//	EXIT                         -> (no response, connection closes)
//
// Verbs are case-insensitive. File content may itself contain semicolons.
package filecloud

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/muurk/filecloud/internal/protocol"
	"github.com/muurk/filecloud/internal/store"
)

// Responses.
const (
	RespEmptyList       = "File list is empty!"
	RespFileExists      = "FILE_EXISTS"
	RespInvalidName     = "INV_FILE_NAME"
	RespFileNotFound    = "FILE_NOT_FOUND"
	RespFileEmpty       = "FILE_EMPTY"
	RespFileAdded       = "FILE_ADDED"
	RespFileUpdated     = "FILE_UPDATED"
	RespFileDeleted     = "FILE_DELETED"
	RespNotLoggedIn     = "NOT_LOGGED_IN"
	RespLoginOK         = "LOGIN_OK"
	RespLoginFailed     = "LOGIN_FAILED"
	RespAlreadyLoggedIn = "ALREADY_LOGGED_IN"
	RespRegisterOK      = "REGISTER_OK"
	RespUserExists      = "USER_EXISTS"
	RespLogoutOK        = "LOGOUT_OK"
	RespUnknownCommand  = "UNKNOWN_COMMAND"
)

const (
	separator      = ";"
	requestTimeout = 5 * time.Second
)

var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9._ -]{1,64}$`)

// ErrAccountsUnsupported is returned for REGISTER and LOGIN when the bound
// user store cannot manage accounts.
var ErrAccountsUnsupported = errors.New("user store does not support accounts")

// Option configures handlers created by NewFactory.
type Option func(*options)

type options struct {
	bcryptCost int
}

// WithBcryptCost sets the cost used to hash new passwords.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

// NewFactory returns a protocol.Factory producing filecloud handlers.
func NewFactory(opts ...Option) protocol.Factory {
	o := options{bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	return func() protocol.Handler {
		return &Handler{bcryptCost: o.bcryptCost}
	}
}

// Handler holds the state of one client conversation.
type Handler struct {
	users      store.UserStore
	accounts   store.AccountStore
	files      store.FileStore
	bcryptCost int

	user          store.Identity
	authenticated bool
}

var _ protocol.Handler = (*Handler)(nil)

// Bind attaches the stores.
func (h *Handler) Bind(users store.UserStore, files store.FileStore) {
	h.users = users
	h.files = files
	h.accounts, _ = users.(store.AccountStore)
}

// IsAuthenticated reports whether a user is logged in.
func (h *Handler) IsAuthenticated() bool { return h.authenticated }

// CurrentUser returns the logged-in identity or the anonymous identity.
func (h *Handler) CurrentUser() store.Identity { return h.user }

// GenerateResponse executes one command.
func (h *Handler) GenerateResponse(message string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	parts := strings.SplitN(message, separator, 3)
	verb := strings.ToUpper(strings.TrimSpace(parts[0]))
	args := parts[1:]

	switch verb {
	case "REGISTER":
		return h.register(ctx, args)
	case "LOGIN":
		return h.login(ctx, args)
	case "LOGOUT":
		return h.logout(ctx)
	case "EXIT":
		if h.authenticated {
			if _, err := h.logout(ctx); err != nil {
				return "", err
			}
		}
		return "", protocol.ErrCloseSession
	case "FILEALL":
		return h.listFiles(ctx)
	case "FILEOPEN":
		return h.openFile(ctx, args)
	case "FILEADD":
		return h.addFile(ctx, args)
	case "FILEUPDATE":
		return h.updateFile(ctx, args)
	case "FILEDELETE":
		return h.deleteFile(ctx, args)
	default:
		return RespUnknownCommand, nil
	}
}

func requireArgs(verb string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", verb, n, len(args))
	}
	return nil
}

func (h *Handler) register(ctx context.Context, args []string) (string, error) {
	if err := requireArgs("REGISTER", args, 2); err != nil {
		return "", err
	}
	if h.accounts == nil {
		return "", ErrAccountsUnsupported
	}
	login, password := strings.TrimSpace(args[0]), args[1]
	if login == "" || password == "" {
		return "", fmt.Errorf("REGISTER: login and password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("REGISTER: hash password: %w", err)
	}
	err = h.accounts.CreateAccount(ctx, login, string(hash))
	if errors.Is(err, store.ErrAccountExists) {
		return RespUserExists, nil
	}
	if err != nil {
		return "", err
	}
	return RespRegisterOK, nil
}

func (h *Handler) login(ctx context.Context, args []string) (string, error) {
	if err := requireArgs("LOGIN", args, 2); err != nil {
		return "", err
	}
	if h.accounts == nil {
		return "", ErrAccountsUnsupported
	}
	if h.authenticated {
		return RespAlreadyLoggedIn, nil
	}

	login, password := strings.TrimSpace(args[0]), args[1]
	acc, err := h.accounts.Account(ctx, login)
	if errors.Is(err, store.ErrAccountNotFound) {
		return RespLoginFailed, nil
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return RespLoginFailed, nil
	}

	err = h.accounts.ClaimLogin(ctx, acc.Login)
	if errors.Is(err, store.ErrAlreadyLoggedIn) {
		return RespAlreadyLoggedIn, nil
	}
	if err != nil {
		return "", err
	}
	h.user = store.Identity{Login: acc.Login}
	h.authenticated = true
	return RespLoginOK, nil
}

func (h *Handler) logout(ctx context.Context) (string, error) {
	if !h.authenticated {
		return RespNotLoggedIn, nil
	}
	if err := h.users.UpdateLoginStatus(ctx, h.user, false); err != nil {
		return "", err
	}
	h.user = store.Identity{}
	h.authenticated = false
	return RespLogoutOK, nil
}

func (h *Handler) listFiles(ctx context.Context) (string, error) {
	if h.files == nil {
		return RespEmptyList, nil
	}
	names, err := h.files.ListFiles(ctx, h.user.Login)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return RespEmptyList, nil
	}
	return strings.Join(names, separator), nil
}

// fileArgs checks authentication and the file name argument. A non-empty
// response short-circuits the command.
func (h *Handler) fileArgs(verb string, args []string, n int) (string, string, error) {
	if err := requireArgs(verb, args, n); err != nil {
		return "", "", err
	}
	if !h.authenticated {
		return "", RespNotLoggedIn, nil
	}
	if h.files == nil {
		return "", "", fmt.Errorf("%s: no file store configured", verb)
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	if !fileNamePattern.MatchString(name) {
		return "", RespInvalidName, nil
	}
	return name, "", nil
}

func (h *Handler) openFile(ctx context.Context, args []string) (string, error) {
	name, resp, err := h.fileArgs("FILEOPEN", args, 1)
	if err != nil || resp != "" {
		return resp, err
	}
	f, err := h.files.File(ctx, h.user.Login, name)
	if errors.Is(err, store.ErrFileNotFound) {
		return RespFileNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if f.Content == "" {
		return RespFileEmpty, nil
	}
	return f.Content, nil
}

func (h *Handler) addFile(ctx context.Context, args []string) (string, error) {
	name, resp, err := h.fileArgs("FILEADD", args, 2)
	if err != nil || resp != "" {
		return resp, err
	}
	err = h.files.AddFile(ctx, store.File{Owner: h.user.Login, Name: name, Content: args[1]})
	if errors.Is(err, store.ErrFileExists) {
		return RespFileExists, nil
	}
	if err != nil {
		return "", err
	}
	return RespFileAdded, nil
}

func (h *Handler) updateFile(ctx context.Context, args []string) (string, error) {
	name, resp, err := h.fileArgs("FILEUPDATE", args, 2)
	if err != nil || resp != "" {
		return resp, err
	}
	err = h.files.UpdateFile(ctx, store.File{Owner: h.user.Login, Name: name, Content: args[1]})
	if errors.Is(err, store.ErrFileNotFound) {
		return RespFileNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return RespFileUpdated, nil
}

func (h *Handler) deleteFile(ctx context.Context, args []string) (string, error) {
	name, resp, err := h.fileArgs("FILEDELETE", args, 1)
	if err != nil || resp != "" {
		return resp, err
	}
	err = h.files.DeleteFile(ctx, h.user.Login, name)
	if errors.Is(err, store.ErrFileNotFound) {
		return RespFileNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return RespFileDeleted, nil
}
