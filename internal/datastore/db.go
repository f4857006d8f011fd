// Package datastore opens the metrink database and applies the schema.
package datastore

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
)

// Driver names accepted in database.driver.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open connects to the configured database. MySQL DSNs are forced to parse
// DATETIME columns into time.Time.
func Open(settings conf.DatabaseSettings, log logger.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gorm_logger.Default.LogMode(gorm_logger.Silent)}
	if settings.Debug {
		cfg.Logger = gorm_logger.Default.LogMode(gorm_logger.Info)
	}

	var dialector gorm.Dialector
	switch settings.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(settings.DSN)
	case DriverMySQL:
		parsed, err := mysqldriver.ParseDSN(settings.DSN)
		if err != nil {
			return nil, storageError(err, "parse dsn", settings.Driver)
		}
		parsed.ParseTime = true
		dialector = mysql.Open(parsed.FormatDSN())
	default:
		return nil, errors.Newf("unsupported database driver %q", settings.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, storageError(err, "open", settings.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageError(err, "get sql.DB", settings.Driver)
	}
	if settings.Driver == DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if log != nil {
		fields := []logger.Field{logger.String("driver", settings.Driver)}
		if settings.Driver == DriverSQLite {
			version, _, _ := sqlite3.Version()
			fields = append(fields, logger.String("sqlite_version", version))
		}
		log.Info("database opened", fields...)
	}
	return db, nil
}

// Migrate creates or updates every metrink table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// IsDuplicateKey reports whether err is a unique constraint violation from
// either driver.
func IsDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func storageError(err error, op, driver string) error {
	return errors.New(fmt.Errorf("failed to %s database: %w", op, err)).
		Component("datastore").
		Category(errors.CategoryStorage).
		Context("driver", driver).
		Build()
}
