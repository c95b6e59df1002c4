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

package strata

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/types"
)

// State is the lifecycle position of a Factory.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Disposed
)

var stateNames = [...]string{"uninitialized", "initializing", "ready", "disposed"}

var _ types.BaseEnum = State(0)

func (s State) IsValid() bool { return s >= Uninitialized && s <= Disposed }

func (s State) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s State) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return stateNames[s]
}

func (s State) String() string { return s.Name() }

func (s State) Desc() string {
	switch s {
	case Uninitialized:
		return "no storage context opened yet"
	case Initializing:
		return "loading configuration and opening the storage context"
	case Ready:
		return "storage context live"
	case Disposed:
		return "storage context closed"
	default:
		return types.IllegalDesc
	}
}

// Scope is what a service constructor receives from Resolve.
type Scope struct {
	Context  *database.StorageContext
	Registry *database.ModelRegistry
	Logger   database.Logger
	UnitID   string
}

type factoryOptions struct {
	logger      database.Logger
	registry    *database.ModelRegistry
	storageOpts []database.Option
	id          string
}

// Option customizes a Factory.
type Option func(*factoryOptions)

// WithLogger sets the logger for the factory and its storage context.
func WithLogger(l database.Logger) Option {
	return func(o *factoryOptions) { o.logger = l }
}

// WithModels sets the resources migrated on initialization.
func WithModels(r *database.ModelRegistry) Option {
	return func(o *factoryOptions) { o.registry = r }
}

// WithStorageOptions passes options through to database.Open.
func WithStorageOptions(opts ...database.Option) Option {
	return func(o *factoryOptions) { o.storageOpts = append(o.storageOpts, opts...) }
}

// WithUnitID overrides the generated unit-of-work id.
func WithUnitID(id string) Option {
	return func(o *factoryOptions) { o.id = id }
}

// Factory owns the storage context of one unit of work and the services
// bound to it. It is not shared across units of work.
type Factory struct {
	id       string
	logger   database.Logger
	registry *database.ModelRegistry
	opts     []database.Option

	mu         sync.Mutex
	state      State
	loader     database.ConfigLoader
	config     *database.Config
	sc         *database.StorageContext
	services   map[reflect.Type]any
	generation int
}

// NewFactory returns an uninitialized factory reading its configuration
// from loader.
func NewFactory(loader database.ConfigLoader, opts ...Option) *Factory {
	o := factoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = database.DefaultLogger()
	}
	if o.registry == nil {
		o.registry = database.NewModelRegistry()
	}
	return &Factory{
		id:       o.id,
		logger:   o.logger.With("unit_id", o.id),
		registry: o.registry,
		opts:     o.storageOpts,
		loader:   loader,
		services: make(map[reflect.Type]any),
	}
}

func (f *Factory) ID() string { return f.id }

func (f *Factory) Logger() database.Logger { return f.logger }

func (f *Factory) Registry() *database.ModelRegistry { return f.registry }

// State returns the current lifecycle state.
func (f *Factory) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Initialize loads the configuration and opens the storage context,
// running migrations and seeds when the configuration asks for them.
// On failure the factory returns to Uninitialized. Calling it on a
// Ready factory is a no-op.
func (f *Factory) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Ready:
		return nil
	case Disposed:
		return errors.NewDisposedError("initialize")
	}
	return f.initialize(ctx)
}

// Reinitialize swaps the configuration source. The current storage
// context is disposed before the new one is opened and memoized services
// are dropped.
func (f *Factory) Reinitialize(ctx context.Context, loader database.ConfigLoader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Disposed {
		return errors.NewDisposedError("reinitialize")
	}
	if f.state == Ready {
		f.state = Disposed
		f.release()
	}
	f.loader = loader
	return f.initialize(ctx)
}

func (f *Factory) initialize(ctx context.Context) error {
	f.state = Initializing
	if f.loader == nil {
		f.state = Uninitialized
		return errors.NewConfigurationError("connection_string")
	}
	cfg, err := f.loader.Load()
	if err != nil {
		f.state = Uninitialized
		f.logger.Error("failed to load database configuration", "error", err)
		return err
	}
	cfg.LogConfig.Apply()

	opts := append([]database.Option{database.WithLogger(f.logger), database.WithID(f.id)}, f.opts...)
	sc, err := database.Open(ctx, &cfg.ConnectionConfig, opts...)
	if err != nil {
		f.state = Uninitialized
		return err
	}
	if err := f.prepare(ctx, sc, cfg); err != nil {
		_ = sc.Dispose()
		f.state = Uninitialized
		return err
	}

	f.config = cfg
	f.sc = sc
	f.state = Ready
	f.logger.Debug("unit of work ready", "type", cfg.ConnectionConfig.Type)
	return nil
}

func (f *Factory) prepare(ctx context.Context, sc *database.StorageContext, cfg *database.Config) error {
	if cfg.DataMigrateConfig.EnableMigrateOnStartup {
		if err := database.NewMigrator(sc, f.registry, cfg.DataMigrateConfig).Run(ctx); err != nil {
			return err
		}
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if _, err := database.NewSeeder(sc, cfg.DataInitConfig).Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// release disposes the context and forgets services. Caller holds mu.
func (f *Factory) release() {
	if f.sc != nil {
		_ = f.sc.Dispose()
	}
	f.sc = nil
	f.config = nil
	f.services = make(map[reflect.Type]any)
	f.generation++
}

// Context returns the live storage context.
func (f *Factory) Context() (*database.StorageContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("context"); err != nil {
		return nil, err
	}
	return f.sc, nil
}

// Config returns a copy of the loaded configuration.
func (f *Factory) Config() (database.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.usable("config"); err != nil {
		return database.Config{}, err
	}
	return *f.config, nil
}

// Health pings the storage context.
func (f *Factory) Health(ctx context.Context) (*database.HealthStatus, error) {
	sc, err := f.Context()
	if err != nil {
		return nil, err
	}
	return sc.HealthCheck(ctx), nil
}

// Dispose closes the storage context. Later access fails with
// ContextDisposed. Calling it twice is a no-op.
func (f *Factory) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Disposed {
		return nil
	}
	var err error
	if f.sc != nil {
		err = f.sc.Dispose()
	}
	f.state = Disposed
	f.release()
	return err
}

func (f *Factory) usable(op string) error {
	switch f.state {
	case Ready:
		return nil
	case Disposed:
		return errors.NewDisposedError(op)
	default:
		return errors.NewContextError(op, f.state.String())
	}
}

// Resolve returns the factory's instance of S, building it on first use.
// Instances are memoized per factory and forgotten on Reinitialize.
func Resolve[S any](f *Factory, build func(Scope) S) (S, error) {
	var zero S
	key := reflect.TypeOf((*S)(nil)).Elem()

	f.mu.Lock()
	if err := f.usable("resolve " + key.String()); err != nil {
		f.mu.Unlock()
		return zero, err
	}
	if s, ok := f.services[key]; ok {
		f.mu.Unlock()
		return s.(S), nil
	}
	scope := Scope{Context: f.sc, Registry: f.registry, Logger: f.logger, UnitID: f.id}
	generation := f.generation
	f.mu.Unlock()

	built := build(scope)

	f.mu.Lock()
	defer f.mu.Unlock()
	if generation != f.generation {
		if err := f.usable("resolve " + key.String()); err != nil {
			return zero, err
		}
		return zero, errors.NewContextError("resolve "+key.String(), "reinitialized")
	}
	if s, ok := f.services[key]; ok {
		return s.(S), nil
	}
	f.services[key] = built
	return built, nil
}
