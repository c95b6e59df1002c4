/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// createConnection opens the driver pool for cfg and wraps it with the
// matching bun dialect. The pool is capped at one live connection: a
// storage context never multiplexes concurrent round-trips.
func createConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Type {
	case "mysql":
		sqlDB, db, err = createMySQLConnection(cfg)
	case "postgres", "postgresql", "":
		sqlDB, db, err = createPostgreSQLConnection(cfg)
	case "sqlite", "sqlite3":
		sqlDB, db, err = createSQLiteConnection(cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)
	return sqlDB, db, nil
}

func createMySQLConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			portOrDefault(cfg.Port, 3306),
			cfg.DBName,
			cfg.ConnectTimeout,
			cfg.ReadTimeout,
			cfg.WriteTimeout,
		)
	}

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, mysqldialect.New()), nil
}

func createPostgreSQLConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			portOrDefault(cfg.Port, 5432),
			cfg.DBName,
			sslMode,
			int(cfg.ConnectTimeout.Seconds()),
		)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, pgdialect.New()), nil
}

func createSQLiteConnection(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = sqliteDSN(cfg.DBName)
	}

	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func sqliteDSN(name string) string {
	switch {
	case name == ":memory:", strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return fmt.Sprintf("%s.db", name)
	}
}

func portOrDefault(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}

// queryHooks builds the logging hooks requested by cfg.
func queryHooks(cfg *ConnectionConfig, logger Logger) []bun.QueryHook {
	var hooks []bun.QueryHook
	if cfg.EnableQueryLog {
		if cfg.QueryLogFormat == "color" {
			hooks = append(hooks, NewQueryHook(cfg.QueryLogVerbose))
		} else {
			hooks = append(hooks, bundebug.NewQueryHook(
				bundebug.WithVerbose(cfg.QueryLogVerbose),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}
	}
	if cfg.SlowQueryTime > 0 {
		hooks = append(hooks, &SlowQueryHook{Threshold: cfg.SlowQueryTime, Logger: logger})
	}
	return hooks
}
