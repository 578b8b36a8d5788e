package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func InitDB(dataSourceName string, logger *zap.Logger) (*sql.DB, error) {
	// ":memory:" stays as is; the single pooled connection keeps it alive
	dsn := dataSourceName
	if dataSourceName != ":memory:" && !strings.Contains(dataSourceName, "?") {
		dsn = dataSourceName + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if dataSourceName != ":memory:" {
		db.SetConnMaxLifetime(time.Hour)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("Database connection established", zap.String("path", dataSourceName))
	return db, nil
}
