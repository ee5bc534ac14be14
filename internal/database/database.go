package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantdesk/tradecore/internal/ledger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New opens the local sqlite store and migrates the trade ledger
// schema. The store is the single source of truth for reconciliation
// after a crash; in-memory state is always rebuilt from it.
func New(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	if err := db.AutoMigrate(
		&ledger.Execution{},
		&ledger.ClosedTrade{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
