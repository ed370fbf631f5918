package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/config"
	"github.com/muurk/filecloud/internal/logging"
	"github.com/muurk/filecloud/internal/store"
	"github.com/muurk/filecloud/internal/store/memory"
	"github.com/muurk/filecloud/internal/store/sqlstore"
)

// openStores returns the user and file stores selected by cfg, plus a
// function releasing them.
func openStores(cfg config.StoreConfig, debug bool) (store.AccountStore, store.FileStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlstore.Open(sqlstore.Options{
			Path:       cfg.Path,
			UsersTable: cfg.UsersTable,
			FilesTable: cfg.FilesTable,
			Debug:      debug,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logging.Info("Using sqlite store",
			zap.String("path", cfg.Path),
			zap.String("users_table", cfg.UsersTable),
			zap.String("files_table", cfg.FilesTable),
		)
		release := func() {
			if err := db.Close(); err != nil {
				logging.Warn("Failed to close store", zap.Error(err))
			}
		}
		return db, db, release, nil

	case config.DriverMemory, "":
		logging.Info("Using in-memory store; data is lost on exit")
		return memory.NewUserStore(cfg.UsersTable), memory.NewFileStore(), func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
