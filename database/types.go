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
	"time"
)

// HealthStatus holds the result of a health check against the store.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	RoundTrips    int64         `json:"round_trips"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats for one storage context.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how a storage context reaches the store.
// ConnectionString, when set, wins over the discrete fields.
type ConnectionConfig struct {
	ConnectionString string        `yaml:"connection_string" json:"connection_string"`
	Type             string        `yaml:"type" json:"type"` // postgres, mysql, sqlite
	Host             string        `yaml:"host" json:"host"`
	Port             int           `yaml:"port" json:"port"`
	Username         string        `yaml:"username" json:"username"`
	Password         string        `yaml:"password" json:"-"`
	DBName           string        `yaml:"dbname" json:"dbname"`
	SSLMode          string        `yaml:"sslmode" json:"sslmode"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableQueryLog   bool          `yaml:"enable_query_log" json:"enable_query_log"`
	QueryLogVerbose  bool          `yaml:"query_log_verbose" json:"query_log_verbose"`
	QueryLogFormat   string        `yaml:"query_log_format" json:"query_log_format"` // bundebug (default), color
	SlowQueryTime    time.Duration `yaml:"slow_query_time" json:"slow_query_time"`

	// DSN is the driver data source name resolved by Normalize.
	DSN string `yaml:"-" json:"-"`
}

// DataMigrateConfig controls schema creation when a unit of work starts.
type DataMigrateConfig struct {
	EnableMigrateOnStartup bool   `yaml:"enable_migrate_on_startup" json:"enable_migrate_on_startup"`
	EnableForeignKey       bool   `yaml:"enable_foreign_key" json:"enable_foreign_key"`
	ForeignKeyFile         string `yaml:"foreign_key_file" json:"foreign_key_file"`
}

// DataInitConfig controls SQL seeding and environment selection.
type DataInitConfig struct {
	AutoInitOnStartup bool   `yaml:"auto_init_on_startup" json:"auto_init_on_startup"`
	Filepath          string `yaml:"filepath" json:"filepath"`
	Environment       string `yaml:"environment" json:"environment"`
}

// LogConfig tunes the named console loggers. Empty fields keep the
// LOG_LEVEL and CONSOLE_LOG_FORMAT environment defaults.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	Output string `yaml:"output" json:"output"` // stdout, stderr
}

// Config aggregates connection, migration, data initialization and log settings.
type Config struct {
	ConnectionConfig  ConnectionConfig  `yaml:"connection" json:"connection"`
	DataMigrateConfig DataMigrateConfig `yaml:"migrate" json:"migrate"`
	DataInitConfig    DataInitConfig    `yaml:"seed" json:"seed"`
	LogConfig         LogConfig         `yaml:"log" json:"log"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		ConnectTimeout: time.Second * 10,
		ReadTimeout:    time.Second * 30,
		WriteTimeout:   time.Second * 30,
		SlowQueryTime:  time.Second * 2,
	}
}

// HasTarget reports whether enough is configured to open a connection.
func (c *ConnectionConfig) HasTarget() bool {
	if c == nil {
		return false
	}
	if c.ConnectionString != "" || c.DSN != "" {
		return true
	}
	if isSQLite(c.Type) {
		return c.DBName != ""
	}
	return c.Host != "" && c.DBName != ""
}

// ForeignKeyConfig is the YAML structure that lists foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraintConfig `yaml:"foreign_keys"`
}

// ForeignKeyConstraintConfig describes a single foreign key in configuration.
type ForeignKeyConstraintConfig struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete"`
	OnUpdate        string `yaml:"on_update"`
	ConstraintName  string `yaml:"constraint_name"`
}

// ToForeignKeyConstraint converts the config entry into a runtime constraint.
func (fkc *ForeignKeyConstraintConfig) ToForeignKeyConstraint() ForeignKeyConstraint {
	return ForeignKeyConstraint{
		Table:           fkc.Table,
		Column:          fkc.Column,
		ReferenceTable:  fkc.ReferenceTable,
		ReferenceColumn: fkc.ReferenceColumn,
		OnDelete:        fkc.OnDelete,
		OnUpdate:        fkc.OnUpdate,
		ConstraintName:  fkc.ConstraintName,
	}
}

func isSQLite(typ string) bool {
	return typ == "sqlite" || typ == "sqlite3"
}
