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
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/utils"
)

// ConfigLoader produces the configuration a factory needs to open a
// storage context.
type ConfigLoader interface {
	Load() (*Config, error)
}

// ConfigLoaderFunc adapts a function to ConfigLoader.
type ConfigLoaderFunc func() (*Config, error)

func (f ConfigLoaderFunc) Load() (*Config, error) { return f() }

// StaticLoader returns a loader that always yields a copy of cfg.
func StaticLoader(cfg *Config) ConfigLoader {
	return ConfigLoaderFunc(func() (*Config, error) {
		if cfg == nil {
			return nil, errors.NewConfigurationError("config")
		}
		out := *cfg
		if err := out.Normalize(); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// FileLoader reads a YAML config file and applies environment overrides.
type FileLoader struct {
	Path string
}

// NewFileLoader returns a loader for the YAML file at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) Load() (*Config, error) {
	cfg := &Config{ConnectionConfig: *DefaultConnectionConfig()}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.Path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.Path, err)
	}
	overrideFromEnv(&cfg.ConnectionConfig)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvLoader builds the configuration from environment variables, after
// loading the given .env files. Missing files are skipped.
type EnvLoader struct {
	Files []string
}

// NewEnvLoader returns a loader reading .env files then the environment.
// With no files it looks for ".env" in the working directory.
func NewEnvLoader(files ...string) *EnvLoader {
	if len(files) == 0 {
		files = []string{".env"}
	}
	return &EnvLoader{Files: files}
}

func (l *EnvLoader) Load() (*Config, error) {
	existing := make([]string, 0, len(l.Files))
	for _, f := range l.Files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files %v: %w", existing, err)
		}
	}
	cfg := &Config{ConnectionConfig: *DefaultConnectionConfig()}
	overrideFromEnv(&cfg.ConnectionConfig)
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		cfg.DataMigrateConfig.EnableMigrateOnStartup = v == "true"
	}
	if v := os.Getenv("DB_SEED_PATH"); v != "" {
		cfg.DataInitConfig.Filepath = v
		cfg.DataInitConfig.AutoInitOnStartup = true
	}
	cfg.DataInitConfig.Environment = os.Getenv("DB_SEED_ENV")
	cfg.LogConfig.Level = os.Getenv("DB_LOG_LEVEL")
	cfg.LogConfig.Format = os.Getenv("DB_LOG_FORMAT")
	cfg.LogConfig.Output = os.Getenv("DB_LOG_OUTPUT")
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type onceLoader struct {
	loader ConfigLoader
	once   sync.Once
	cfg    *Config
	err    error
}

// Once wraps loader so it runs a single time; every later Load returns a
// copy of the first result. This is the only configuration shared across
// units of work.
func Once(loader ConfigLoader) ConfigLoader {
	return &onceLoader{loader: loader}
}

func (l *onceLoader) Load() (*Config, error) {
	l.once.Do(func() { l.cfg, l.err = l.loader.Load() })
	if l.err != nil {
		return nil, l.err
	}
	out := *l.cfg
	return &out, nil
}

// Normalize resolves the connection string into driver settings and fails
// with ConfigurationMissing when no connection target is configured.
func (c *Config) Normalize() error {
	cc := &c.ConnectionConfig
	if cc.ConnectionString != "" {
		parsed, err := ParseConnectionString(cc.ConnectionString)
		if err != nil {
			return err
		}
		parsed.mergeTuning(cc)
		*cc = *parsed
	}
	if !cc.HasTarget() {
		return errors.NewConfigurationError("connection_string")
	}
	if cc.Type == "" {
		cc.Type = "postgres"
	}
	switch cc.Type {
	case "postgres", "postgresql", "mysql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported database type: %s, supported types: [postgres mysql sqlite]", cc.Type)
	}
	if cc.ConnectTimeout <= 0 {
		cc.ConnectTimeout = 10 * time.Second
	}
	return nil
}

// Apply pushes the settings into the named logger registry. Format and
// output affect loggers created afterwards, level affects all of them.
func (c LogConfig) Apply() {
	switch strings.ToLower(strings.TrimSpace(c.Output)) {
	case "stderr":
		utils.ConfigureConsoleWriter(os.Stderr)
	case "stdout":
		utils.ConfigureConsoleWriter(os.Stdout)
	}
	if c.Format != "" {
		utils.ConfigureConsoleLogFormat(c.Format)
	}
	if c.Level != "" {
		utils.ConfigureLogLevel(c.Level)
	}
}

// mergeTuning copies settings a connection string cannot express.
func (c *ConnectionConfig) mergeTuning(from *ConnectionConfig) {
	c.ConnectTimeout = from.ConnectTimeout
	c.ReadTimeout = from.ReadTimeout
	c.WriteTimeout = from.WriteTimeout
	c.EnableQueryLog = from.EnableQueryLog
	c.QueryLogVerbose = from.QueryLogVerbose
	c.QueryLogFormat = from.QueryLogFormat
	c.SlowQueryTime = from.SlowQueryTime
}

// ParseConnectionString accepts postgres:// and mysql:// URLs, sqlite
// paths (sqlite://, file:, :memory:) and the key/value form
// "Host=..;Port=..;Username=..;Password=..;Database=..".
func ParseConnectionString(s string) (*ConnectionConfig, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	cfg := &ConnectionConfig{ConnectionString: s}
	switch {
	case s == "":
		return nil, errors.NewConfigurationError("connection_string")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		if _, err := pq.ParseURL(s); err != nil {
			return nil, fmt.Errorf("invalid postgres connection string: %w", err)
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres connection string: %w", err)
		}
		cfg.Type = "postgres"
		cfg.Host = u.Hostname()
		cfg.Port, _ = strconv.Atoi(u.Port())
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.SSLMode = u.Query().Get("sslmode")
		cfg.DSN = s
	case strings.HasPrefix(lower, "mysql://"):
		dsn := s[len("mysql://"):]
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql connection string: %w", err)
		}
		cfg.Type = "mysql"
		cfg.Username = mc.User
		cfg.Password = mc.Passwd
		cfg.DBName = mc.DBName
		if host, port, err := net.SplitHostPort(mc.Addr); err == nil {
			cfg.Host = host
			cfg.Port, _ = strconv.Atoi(port)
		}
		mc.ParseTime = true
		cfg.DSN = mc.FormatDSN()
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "sqlite3://"):
		cfg.Type = "sqlite"
		cfg.DSN = s[strings.Index(s, "://")+3:]
		cfg.DBName = cfg.DSN
	case strings.HasPrefix(lower, "file:"), lower == ":memory:":
		cfg.Type = "sqlite"
		cfg.DSN = s
		cfg.DBName = s
	case strings.Contains(s, "="):
		if err := parseKeyValue(s, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unrecognized connection string format")
	}
	if cfg.DSN == "" && !cfg.HasTarget() {
		return nil, errors.NewConfigurationError("connection_string")
	}
	return cfg, nil
}

func parseKeyValue(s string, cfg *ConnectionConfig) error {
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("invalid connection string segment %q", part)
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "host", "server":
			cfg.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid port %q in connection string", value)
			}
			cfg.Port = port
		case "username", "user", "user id", "userid":
			cfg.Username = value
		case "password":
			cfg.Password = value
		case "database", "dbname":
			cfg.DBName = value
		case "sslmode", "ssl mode":
			cfg.SSLMode = strings.ToLower(value)
		case "type", "provider":
			cfg.Type = strings.ToLower(value)
		}
	}
	if cfg.Type == "" {
		cfg.Type = "postgres"
	}
	return nil
}

// overrideFromEnv overrides configuration values from environment variables.
func overrideFromEnv(cfg *ConnectionConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.ConnectionString = v
	}
	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.Type = v
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		cfg.EnableQueryLog = enableQueryLog == "true"
	}
	if slow := os.Getenv("DB_SLOW_QUERY_MS"); slow != "" {
		if val, err := strconv.Atoi(slow); err == nil {
			cfg.SlowQueryTime = time.Duration(val) * time.Millisecond
		}
	}
}
