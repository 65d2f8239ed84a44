package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string
	PostgresSSLMode  string

	SQLitePath string
}

func (o Options) PostgresDSN() string {
	sslMode := o.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		o.PostgresUser,
		o.PostgresPassword,
		o.PostgresHost,
		o.PostgresPort,
		o.PostgresName,
		sslMode,
	)
}

type DatabaseService struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewDatabaseService(logg *logger.Logger, opts Options) (*DatabaseService, error) {
	serviceLog := logg.With("service", "DatabaseService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverPostgres
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(opts.PostgresDSN())
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = "trackchat.db"
		}
		dialector = sqlite.Open(path + "?_busy_timeout=5000&_foreign_keys=on")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}

	db, err := Open(dialector, gormLog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	serviceLog.Info("Database connected", "driver", driver)
	return &DatabaseService{db: db, driver: driver, log: serviceLog}, nil
}

// Open applies the gorm settings every caller relies on: translated errors so
// unique violations surface as gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, gormLog gormLogger.Interface) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
}

func (s *DatabaseService) DB() *gorm.DB { return s.db }

func (s *DatabaseService) Driver() string { return s.driver }

func (s *DatabaseService) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}

func (s *DatabaseService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
