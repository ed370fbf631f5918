// Package storetest holds behaviour tests shared by every store
// implementation.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/muurk/filecloud/internal/store"
)

// TestAccountStore exercises an empty AccountStore whose users table is
// named table.
func TestAccountStore(t *testing.T, s store.AccountStore, table string) {
	t.Helper()
	ctx := context.Background()

	got, err := s.LoggedInUsers(ctx)
	if err != nil {
		t.Fatalf("LoggedInUsers() error = %v", err)
	}
	if got != store.NoLoggedInUsers {
		t.Errorf("LoggedInUsers() on empty store = %q, want %q", got, store.NoLoggedInUsers)
	}

	for _, login := range []string{"carol", "alice", "bob"} {
		if err := s.CreateAccount(ctx, login, "hash-"+login); err != nil {
			t.Fatalf("CreateAccount(%q) error = %v", login, err)
		}
	}
	if err := s.CreateAccount(ctx, "alice", "other"); !errors.Is(err, store.ErrAccountExists) {
		t.Errorf("duplicate CreateAccount() error = %v, want ErrAccountExists", err)
	}

	acc, err := s.Account(ctx, "alice")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if acc.Login != "alice" || acc.PasswordHash != "hash-alice" || acc.LoggedIn {
		t.Errorf("Account() = %+v", acc)
	}
	if _, err := s.Account(ctx, "nobody"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Account(nobody) error = %v, want ErrAccountNotFound", err)
	}

	for _, login := range []string{"carol", "alice"} {
		if err := s.UpdateLoginStatus(ctx, store.Identity{Login: login}, true); err != nil {
			t.Fatalf("UpdateLoginStatus(%q, true) error = %v", login, err)
		}
	}
	got, _ = s.LoggedInUsers(ctx)
	if want := "alice\ncarol"; got != want {
		t.Errorf("LoggedInUsers() = %q, want %q", got, want)
	}

	if err := s.UpdateLoginStatus(ctx, store.Identity{Login: "carol"}, false); err != nil {
		t.Fatalf("UpdateLoginStatus(carol, false) error = %v", err)
	}
	got, _ = s.LoggedInUsers(ctx)
	if got != "alice" {
		t.Errorf("LoggedInUsers() after logout = %q, want %q", got, "alice")
	}

	if err := s.UpdateLoginStatus(ctx, store.Identity{Login: "ghost"}, true); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("UpdateLoginStatus(ghost) error = %v, want ErrAccountNotFound", err)
	}

	_ = s.UpdateLoginStatus(ctx, store.Identity{Login: "bob"}, true)
	if err := s.ForceLogoutAll(ctx, table); err != nil {
		t.Fatalf("ForceLogoutAll() error = %v", err)
	}
	got, _ = s.LoggedInUsers(ctx)
	if got != store.NoLoggedInUsers {
		t.Errorf("LoggedInUsers() after ForceLogoutAll = %q, want %q", got, store.NoLoggedInUsers)
	}

	if err := s.ClaimLogin(ctx, "alice"); err != nil {
		t.Fatalf("ClaimLogin(alice) error = %v", err)
	}
	if err := s.ClaimLogin(ctx, "alice"); !errors.Is(err, store.ErrAlreadyLoggedIn) {
		t.Errorf("second ClaimLogin(alice) error = %v, want ErrAlreadyLoggedIn", err)
	}
	if err := s.ClaimLogin(ctx, "ghost"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("ClaimLogin(ghost) error = %v, want ErrAccountNotFound", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ClaimLogin(ctx, "bob")
			switch {
			case err == nil:
				won.Add(1)
			case !errors.Is(err, store.ErrAlreadyLoggedIn):
				t.Errorf("concurrent ClaimLogin(bob) error = %v", err)
			}
		}()
	}
	wg.Wait()
	if n := won.Load(); n != 1 {
		t.Errorf("concurrent ClaimLogin(bob) succeeded %d times, want 1", n)
	}
	got, _ = s.LoggedInUsers(ctx)
	if want := "alice\nbob"; got != want {
		t.Errorf("LoggedInUsers() after claims = %q, want %q", got, want)
	}
}

// TestFileStore exercises an empty FileStore.
func TestFileStore(t *testing.T, s store.FileStore) {
	t.Helper()
	ctx := context.Background()

	names, err := s.ListFiles(ctx, "alice")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListFiles() on empty store = %v", names)
	}

	files := []store.File{
		{Owner: "alice", Name: "notes.txt", Content: "a;b;c"},
		{Owner: "alice", Name: "todo.txt", Content: "buy milk"},
		{Owner: "bob", Name: "notes.txt", Content: "bob's notes"},
	}
	for _, f := range files {
		if err := s.AddFile(ctx, f); err != nil {
			t.Fatalf("AddFile(%s/%s) error = %v", f.Owner, f.Name, err)
		}
	}
	if err := s.AddFile(ctx, files[0]); !errors.Is(err, store.ErrFileExists) {
		t.Errorf("duplicate AddFile() error = %v, want ErrFileExists", err)
	}

	names, _ = s.ListFiles(ctx, "alice")
	if want := []string{"notes.txt", "todo.txt"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ListFiles(alice) = %v, want %v", names, want)
	}

	f, err := s.File(ctx, "bob", "notes.txt")
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if f.Content != "bob's notes" {
		t.Errorf("File(bob, notes.txt).Content = %q", f.Content)
	}
	if _, err := s.File(ctx, "bob", "todo.txt"); !errors.Is(err, store.ErrFileNotFound) {
		t.Errorf("File(bob, todo.txt) error = %v, want ErrFileNotFound", err)
	}

	if err := s.UpdateFile(ctx, store.File{Owner: "alice", Name: "notes.txt", Content: "updated"}); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}
	f, _ = s.File(ctx, "alice", "notes.txt")
	if f.Content != "updated" {
		t.Errorf("content after UpdateFile() = %q, want updated", f.Content)
	}
	if err := s.UpdateFile(ctx, store.File{Owner: "alice", Name: "missing"}); !errors.Is(err, store.ErrFileNotFound) {
		t.Errorf("UpdateFile(missing) error = %v, want ErrFileNotFound", err)
	}

	if err := s.DeleteFile(ctx, "alice", "todo.txt"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if err := s.DeleteFile(ctx, "alice", "todo.txt"); !errors.Is(err, store.ErrFileNotFound) {
		t.Errorf("second DeleteFile() error = %v, want ErrFileNotFound", err)
	}
	names, _ = s.ListFiles(ctx, "alice")
	if want := []string{"notes.txt"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ListFiles(alice) after delete = %v, want %v", names, want)
	}
}
