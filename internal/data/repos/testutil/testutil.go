package testutil

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	memSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database private to the calling test. It uses
// TEST_POSTGRES_DSN when set and a fresh in-memory sqlite database otherwise.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	var dialector gorm.Dialector
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		name := fmt.Sprintf("file:trackchat_test_%d?mode=memory&cache=shared&_busy_timeout=5000", memSeq.Add(1))
		dialector = sqlite.Open(name)
	}

	conn, err := db.Open(dialector, gormLogger.Default.LogMode(gormLogger.Silent))
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("failed to get sql db: %v", err)
	}
	if conn.Dialector.Name() == "sqlite" {
		// A single pinned connection keeps the in-memory database alive and
		// serializes writers the way sqlite expects.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	if conn.Dialector.Name() == "postgres" {
		Truncate(tb, conn)
	}
	return conn
}

// Truncate empties every table; shared postgres databases need it between tests.
func Truncate(tb testing.TB, conn *gorm.DB) {
	tb.Helper()
	for _, table := range []string{"chat_message", "chat", "activity", "person", "website"} {
		if err := conn.Exec("DELETE FROM " + table).Error; err != nil {
			tb.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func Tx(tb testing.TB, conn *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := conn.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
