// Package memory provides in-memory implementations of the store
// interfaces. Data lives for the lifetime of the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/muurk/filecloud/internal/store"
)

// UserStore keeps accounts in a map guarded by a mutex.
type UserStore struct {
	mu       sync.Mutex
	table    string
	accounts map[string]*store.Account
}

// NewUserStore creates an empty user store for the given table name.
func NewUserStore(table string) *UserStore {
	if table == "" {
		table = store.DefaultUsersTable
	}
	return &UserStore{
		table:    table,
		accounts: make(map[string]*store.Account),
	}
}

// CreateAccount registers a new account.
func (s *UserStore) CreateAccount(_ context.Context, login, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[login]; exists {
		return store.ErrAccountExists
	}
	s.accounts[login] = &store.Account{Login: login, PasswordHash: passwordHash}
	return nil
}

// Account returns a copy of the named account.
func (s *UserStore) Account(_ context.Context, login string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[login]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

// ClaimLogin sets the logged-in flag if it is clear.
func (s *UserStore) ClaimLogin(_ context.Context, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[login]
	if !ok {
		return store.ErrAccountNotFound
	}
	if acc.LoggedIn {
		return store.ErrAlreadyLoggedIn
	}
	acc.LoggedIn = true
	return nil
}

// UpdateLoginStatus sets the logged-in flag.
func (s *UserStore) UpdateLoginStatus(_ context.Context, id store.Identity, loggedIn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id.Login]
	if !ok {
		return store.ErrAccountNotFound
	}
	acc.LoggedIn = loggedIn
	return nil
}

// LoggedInUsers lists logged-in logins in lexical order.
func (s *UserStore) LoggedInUsers(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logins []string
	for login, acc := range s.accounts {
		if acc.LoggedIn {
			logins = append(logins, login)
		}
	}
	sort.Strings(logins)
	return store.FormatLoggedIn(logins), nil
}

// ForceLogoutAll clears every logged-in flag. Only the store's own table
// is known; other names are a no-op.
func (s *UserStore) ForceLogoutAll(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if table != s.table {
		return nil
	}
	for _, acc := range s.accounts {
		acc.LoggedIn = false
	}
	return nil
}

type fileKey struct {
	owner string
	name  string
}

// FileStore keeps files in a map guarded by a mutex.
type FileStore struct {
	mu    sync.Mutex
	files map[fileKey]string
}

// NewFileStore creates an empty file store.
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[fileKey]string)}
}

// ListFiles returns the owner's file names in lexical order.
func (s *FileStore) ListFiles(_ context.Context, owner string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for k := range s.files {
		if k.owner == owner {
			names = append(names, k.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// File returns one file.
func (s *FileStore) File(_ context.Context, owner, name string) (*store.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.files[fileKey{owner, name}]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	return &store.File{Owner: owner, Name: name, Content: content}, nil
}

// AddFile stores a new file.
func (s *FileStore) AddFile(_ context.Context, f store.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := fileKey{f.Owner, f.Name}
	if _, exists := s.files[k]; exists {
		return store.ErrFileExists
	}
	s.files[k] = f.Content
	return nil
}

// UpdateFile replaces the content of an existing file.
func (s *FileStore) UpdateFile(_ context.Context, f store.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := fileKey{f.Owner, f.Name}
	if _, exists := s.files[k]; !exists {
		return store.ErrFileNotFound
	}
	s.files[k] = f.Content
	return nil
}

// DeleteFile removes a file.
func (s *FileStore) DeleteFile(_ context.Context, owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := fileKey{owner, name}
	if _, exists := s.files[k]; !exists {
		return store.ErrFileNotFound
	}
	delete(s.files, k)
	return nil
}
