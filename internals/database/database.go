package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DbTypeSqlite   = "sqlite"
	DbTypeMysql    = "mysql"
	DbTypePostgres = "postgres"

	EnvDbType = "PODCATCHER_DB_TYPE"
	EnvDbDSN  = "PODCATCHER_DB_DSN"

	defaultSqliteFile = "ledger.db"
)

type DbParams struct {
	Type string
	// DSN is a file path for sqlite and a driver DSN otherwise.
	DSN string
}

// InitDbParams starts from the configured type and DSN and lets the
// environment override them. An sqlite database without a DSN lives in
// dataDir.
func InitDbParams(dbType, dsn, dataDir string) *DbParams {
	params := &DbParams{Type: dbType, DSN: dsn}
	if v := os.Getenv(EnvDbType); v != "" {
		params.Type = v
	}
	if v := os.Getenv(EnvDbDSN); v != "" {
		params.DSN = v
	}
	if params.Type == "" {
		params.Type = DbTypeSqlite
	}
	if params.Type == DbTypeSqlite && params.DSN == "" {
		params.DSN = filepath.Join(dataDir, defaultSqliteFile)
	}
	return params
}

func dialector(params *DbParams) (gorm.Dialector, error) {
	switch params.Type {
	case DbTypeSqlite:
		return sqlite.Open(params.DSN), nil
	case DbTypeMysql:
		return mysql.Open(params.DSN), nil
	case DbTypePostgres:
		return postgres.Open(params.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", params.Type)
	}
}

// DbConnect opens the database described by params.
func DbConnect(params *DbParams) (*gorm.DB, error) {
	if params == nil || params.DSN == "" {
		return nil, fmt.Errorf("failed to connect database: no DSN configured")
	}
	d, err := dialector(params)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if params.Type == DbTypeSqlite {
		// one writer at a time, and :memory: must stay one database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
