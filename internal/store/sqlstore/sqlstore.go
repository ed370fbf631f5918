// Package sqlstore implements the store interfaces on SQLite through gorm.
//
// A single database file holds both the users table and the files table.
// Table names are configurable.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/muurk/filecloud/internal/store"
)

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. ":memory:" keeps it in memory.
	Path       string
	UsersTable string
	FilesTable string
	// Debug enables gorm's SQL logging.
	Debug bool
}

type userRow struct {
	ID           uint   `gorm:"primaryKey"`
	Login        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	LoggedIn     bool   `gorm:"default:false;index"`
}

type fileRow struct {
	ID      uint   `gorm:"primaryKey"`
	Owner   string `gorm:"uniqueIndex:idx_owner_name;not null"`
	Name    string `gorm:"uniqueIndex:idx_owner_name;not null"`
	Content string `gorm:"type:text"`
}

// Store holds the gorm handle and implements both store.AccountStore and
// store.FileStore.
type Store struct {
	db         *gorm.DB
	usersTable string
	filesTable string
}

var (
	_ store.AccountStore = (*Store)(nil)
	_ store.FileStore    = (*Store)(nil)
)

// Open opens (or creates) the database and migrates both tables.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlstore: database path is required")
	}
	if opts.UsersTable == "" {
		opts.UsersTable = store.DefaultUsersTable
	}
	if opts.FilesTable == "" {
		opts.FilesTable = store.DefaultFilesTable
	}

	level := gormlogger.Silent
	if opts.Debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", opts.Path, err)
	}

	// SQLite allows a single writer; one connection avoids "database is
	// locked" errors under concurrent sessions.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Table(opts.UsersTable).AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate table %s: %w", opts.UsersTable, err)
	}
	if err := db.Table(opts.FilesTable).AutoMigrate(&fileRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate table %s: %w", opts.FilesTable, err)
	}

	return &Store{
		db:         db,
		usersTable: opts.UsersTable,
		filesTable: opts.FilesTable,
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UsersTable returns the name of the users table.
func (s *Store) UsersTable() string { return s.usersTable }

func (s *Store) users(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.usersTable)
}

func (s *Store) files(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.filesTable)
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, login, passwordHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(s.usersTable).Where("login = ?", login).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up account: %w", err)
		}
		if count > 0 {
			return store.ErrAccountExists
		}
		row := userRow{Login: login, PasswordHash: passwordHash}
		if err := tx.Table(s.usersTable).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

// Account loads one account.
func (s *Store) Account(ctx context.Context, login string) (*store.Account, error) {
	var row userRow
	err := s.users(ctx).Where("login = ?", login).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &store.Account{
		Login:        row.Login,
		PasswordHash: row.PasswordHash,
		LoggedIn:     row.LoggedIn,
	}, nil
}

// ClaimLogin sets the logged-in flag in a single conditional update, so
// concurrent logins of one account cannot both succeed.
func (s *Store) ClaimLogin(ctx context.Context, login string) error {
	res := s.users(ctx).Where("login = ? AND logged_in = ?", login, false).Update("logged_in", true)
	if res.Error != nil {
		return fmt.Errorf("failed to claim login: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.Account(ctx, login); err != nil {
		return err
	}
	return store.ErrAlreadyLoggedIn
}

// UpdateLoginStatus sets the logged-in flag of one account.
func (s *Store) UpdateLoginStatus(ctx context.Context, id store.Identity, loggedIn bool) error {
	res := s.users(ctx).Where("login = ?", id.Login).Update("logged_in", loggedIn)
	if res.Error != nil {
		return fmt.Errorf("failed to update login status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

// LoggedInUsers lists logged-in logins in lexical order.
func (s *Store) LoggedInUsers(ctx context.Context) (string, error) {
	var logins []string
	err := s.users(ctx).Where("logged_in = ?", true).Order("login").Pluck("login", &logins).Error
	if err != nil {
		return "", fmt.Errorf("failed to query logged in users: %w", err)
	}
	return store.FormatLoggedIn(logins), nil
}

// ForceLogoutAll clears the logged-in flag of every account in table.
func (s *Store) ForceLogoutAll(ctx context.Context, table string) error {
	if table != s.usersTable {
		return fmt.Errorf("unknown users table %q", table)
	}
	err := s.users(ctx).Where("logged_in = ?", true).Update("logged_in", false).Error
	if err != nil {
		return fmt.Errorf("failed to force logout: %w", err)
	}
	return nil
}

// ListFiles returns the owner's file names in lexical order.
func (s *Store) ListFiles(ctx context.Context, owner string) ([]string, error) {
	var names []string
	err := s.files(ctx).Where("owner = ?", owner).Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return names, nil
}

// File loads one file.
func (s *Store) File(ctx context.Context, owner, name string) (*store.File, error) {
	var row fileRow
	err := s.files(ctx).Where("owner = ? AND name = ?", owner, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return &store.File{Owner: row.Owner, Name: row.Name, Content: row.Content}, nil
}

// AddFile inserts a new file.
func (s *Store) AddFile(ctx context.Context, f store.File) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Table(s.filesTable).Where("owner = ? AND name = ?", f.Owner, f.Name).Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to look up file: %w", err)
		}
		if count > 0 {
			return store.ErrFileExists
		}
		row := fileRow{Owner: f.Owner, Name: f.Name, Content: f.Content}
		if err := tx.Table(s.filesTable).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to add file: %w", err)
		}
		return nil
	})
}

// UpdateFile replaces file content.
func (s *Store) UpdateFile(ctx context.Context, f store.File) error {
	res := s.files(ctx).Where("owner = ? AND name = ?", f.Owner, f.Name).Update("content", f.Content)
	if res.Error != nil {
		return fmt.Errorf("failed to update file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrFileNotFound
	}
	return nil
}

// DeleteFile removes a file.
func (s *Store) DeleteFile(ctx context.Context, owner, name string) error {
	res := s.files(ctx).Where("owner = ? AND name = ?", owner, name).Delete(&fileRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrFileNotFound
	}
	return nil
}
