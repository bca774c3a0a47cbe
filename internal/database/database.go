package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/auth"
	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/MarcoPoloResearchLab/movieclub/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the storage backend.
type Options struct {
	Driver string
	// Path is the sqlite file; ignored for postgres.
	Path string
	// DSN is the postgres connection string; ignored for sqlite.
	DSN string
}

// Open connects to the configured database and brings the schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger.New(
			zap.NewStdLog(logger.Named("gorm")),
			gormLogger.Config{
				SlowThreshold:             2 * time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case DriverSQLite, "":
		db, err = openSQLite(options.Path, gormConfig)
	case DriverPostgres:
		db, err = openPostgres(options.DSN, gormConfig)
	default:
		return nil, fmt.Errorf("database driver %q is not supported", options.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// Migrate creates or updates every table and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&club.Profile{},
		&club.Movie{},
		&club.Rating{},
		&users.Identity{},
		&auth.LoginChallenge{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func openSQLite(path string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
