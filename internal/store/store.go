// Package store defines the persistence collaborators used by the server
// and by protocol handlers: the user store, which tracks accounts and their
// logged-in flag, and the file store, which holds per-user file content.
//
// The server core only depends on UserStore. Protocol handlers receive both
// stores at bind time and may type-assert to AccountStore for account
// management.
package store

import (
	"context"
	"errors"
	"strings"
)

// Default table names.
const (
	DefaultUsersTable = "users"
	DefaultFilesTable = "files"
)

// NoLoggedInUsers is returned by LoggedInUsers when nobody is logged in.
const NoLoggedInUsers = "No users logged in"

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrAlreadyLoggedIn = errors.New("account already logged in")
	ErrFileExists      = errors.New("file already exists")
	ErrFileNotFound    = errors.New("file not found")
)

// Identity names a user. The zero value is the anonymous user.
type Identity struct {
	Login string
}

// IsAnonymous reports whether the identity belongs to no account.
func (id Identity) IsAnonymous() bool {
	return id.Login == ""
}

// String returns the login, or "anonymous".
func (id Identity) String() string {
	if id.IsAnonymous() {
		return "anonymous"
	}
	return id.Login
}

// Account is a registered user.
type Account struct {
	Login        string
	PasswordHash string
	LoggedIn     bool
}

// File is one stored document owned by a user.
type File struct {
	Owner   string
	Name    string
	Content string
}

// UserStore is the user/session store consumed by the server core.
// Implementations serialize their own mutations.
type UserStore interface {
	// UpdateLoginStatus sets the logged-in flag of the identified user.
	UpdateLoginStatus(ctx context.Context, id Identity, loggedIn bool) error
	// LoggedInUsers renders the currently logged-in logins, one per line.
	LoggedInUsers(ctx context.Context) (string, error)
	// ForceLogoutAll clears the logged-in flag of every row in table.
	ForceLogoutAll(ctx context.Context, table string) error
}

// AccountStore extends UserStore with account management for protocol
// handlers.
type AccountStore interface {
	UserStore
	CreateAccount(ctx context.Context, login, passwordHash string) error
	Account(ctx context.Context, login string) (*Account, error)
	// ClaimLogin sets the logged-in flag only if it is clear. It returns
	// ErrAlreadyLoggedIn when another session holds the account.
	ClaimLogin(ctx context.Context, login string) error
}

// FileStore persists file content. It is opaque to the server core.
type FileStore interface {
	ListFiles(ctx context.Context, owner string) ([]string, error)
	File(ctx context.Context, owner, name string) (*File, error)
	AddFile(ctx context.Context, f File) error
	UpdateFile(ctx context.Context, f File) error
	DeleteFile(ctx context.Context, owner, name string) error
}

// FormatLoggedIn renders logins in the LoggedInUsers format.
func FormatLoggedIn(logins []string) string {
	if len(logins) == 0 {
		return NoLoggedInUsers
	}
	return strings.Join(logins, "\n")
}
