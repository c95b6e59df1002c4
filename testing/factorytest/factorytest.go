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

// Package factorytest provides the test deployment of strata: one
// migrated factory over a private in-memory SQLite database per test.
package factorytest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/tomoncle/strata"
	"github.com/tomoncle/strata/database"
)

type options struct {
	factory []strata.Option
	seed    *database.DataInitConfig
	mutate  []func(*database.Config)
}

// Option customizes New.
type Option func(*options)

// WithFactoryOptions passes options through to strata.NewFactory.
func WithFactoryOptions(opts ...strata.Option) Option {
	return func(o *options) { o.factory = append(o.factory, opts...) }
}

// WithSeed runs the SQL files under dir for environment env after the
// migration.
func WithSeed(dir, env string) Option {
	return func(o *options) {
		o.seed = &database.DataInitConfig{AutoInitOnStartup: true, Filepath: dir, Environment: env}
	}
}

// WithConfig edits the generated configuration before it is loaded.
func WithConfig(fn func(*database.Config)) Option {
	return func(o *options) { o.mutate = append(o.mutate, fn) }
}

// Config returns a configuration for a fresh private in-memory database
// with migration enabled.
func Config() *database.Config {
	conn := database.DefaultConnectionConfig()
	conn.Type = "sqlite"
	conn.DBName = "memory"
	conn.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn.SlowQueryTime = 0
	return &database.Config{
		ConnectionConfig:  *conn,
		DataMigrateConfig: database.DataMigrateConfig{EnableMigrateOnStartup: true},
	}
}

// New returns an initialized factory for models. It is disposed when the
// test ends.
func New(t testing.TB, models *database.ModelRegistry, opts ...Option) *strata.Factory {
	t.Helper()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := Config()
	if o.seed != nil {
		cfg.DataInitConfig = *o.seed
	}
	for _, fn := range o.mutate {
		fn(cfg)
	}

	fopts := append([]strata.Option{
		strata.WithModels(models),
		strata.WithLogger(database.NopLogger()),
	}, o.factory...)
	f := strata.NewFactory(database.StaticLoader(cfg), fopts...)
	if err := f.Initialize(context.Background()); err != nil {
		t.Fatalf("factorytest: initialize: %v", err)
	}
	t.Cleanup(func() { _ = f.Dispose() })
	return f
}
