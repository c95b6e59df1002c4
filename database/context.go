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
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/strata/errors"
)

// StorageContext is one unit of work's connection to the store. It owns a
// single live connection, counts round-trips and can be disposed exactly
// once. Disposal cancels round-trips still in flight.
type StorageContext struct {
	id     string
	config ConnectionConfig
	db     *bun.DB
	sqlDB  *sql.DB
	logger Logger

	lifetime context.Context
	cancel   context.CancelCauseFunc

	disposed   atomic.Bool
	roundTrips atomic.Int64
	closeOnce  sync.Once
	closeErr   error
}

type contextOptions struct {
	logger Logger
	id     string
	hooks  []bun.QueryHook
}

// Option customizes Open.
type Option func(*contextOptions)

// WithLogger sets the logger used for connection lifecycle and slow queries.
func WithLogger(l Logger) Option {
	return func(o *contextOptions) { o.logger = l }
}

// WithID sets the identifier attached to log lines. Defaults to a uuid.
func WithID(id string) Option {
	return func(o *contextOptions) { o.id = id }
}

// WithQueryHooks adds bun query hooks after the configured ones.
func WithQueryHooks(hooks ...bun.QueryHook) Option {
	return func(o *contextOptions) { o.hooks = append(o.hooks, hooks...) }
}

// Open connects to the store described by cfg and verifies the connection
// within cfg.ConnectTimeout.
func Open(ctx context.Context, cfg *ConnectionConfig, opts ...Option) (*StorageContext, error) {
	if !cfg.HasTarget() {
		return nil, errors.NewConfigurationError("connection_string")
	}
	o := contextOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = DefaultLogger()
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	sc := &StorageContext{id: o.id, config: *cfg, logger: o.logger.With("context_id", o.id)}
	var err error
	sc.sqlDB, sc.db, err = createConnection(&sc.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sc.db.AddQueryHook(roundTripHook{count: &sc.roundTrips})
	for _, h := range queryHooks(&sc.config, sc.logger) {
		sc.db.AddQueryHook(h)
	}
	for _, h := range o.hooks {
		sc.db.AddQueryHook(h)
	}

	pingCtx, cancel := context.WithTimeout(ctx, sc.config.ConnectTimeout)
	defer cancel()
	if err := sc.db.PingContext(pingCtx); err != nil {
		_ = sc.db.Close()
		return nil, errors.NewStorageError("connection", "ping", ClassifySQLError(err).Name(), err)
	}

	sc.lifetime, sc.cancel = context.WithCancelCause(context.Background())
	sc.logger.Debug("storage context opened", "type", sc.config.Type, "host", sc.config.Host, "dbname", sc.config.DBName)
	return sc, nil
}

// ID returns the identifier of the unit of work owning this context.
func (sc *StorageContext) ID() string {
	if sc == nil {
		return ""
	}
	return sc.id
}

// Logger returns the context scoped logger.
func (sc *StorageContext) Logger() Logger {
	if sc == nil {
		return NopLogger()
	}
	return sc.logger
}

// Config returns a copy of the connection settings.
func (sc *StorageContext) Config() ConnectionConfig {
	if sc == nil {
		return ConnectionConfig{}
	}
	return sc.config
}

// DialectName returns the bun dialect name, e.g. "sqlite" or "pg".
func (sc *StorageContext) DialectName() string {
	if sc == nil || sc.db == nil {
		return ""
	}
	return sc.db.Dialect().Name().String()
}

// DB returns the query handle, or ContextUnavailable for a nil or disposed
// context.
func (sc *StorageContext) DB() (bun.IDB, error) {
	if sc == nil || sc.db == nil {
		return nil, errors.NewContextError("query", "nil")
	}
	if sc.disposed.Load() {
		return nil, errors.NewContextError("query", errors.StateDisposed)
	}
	return sc.db, nil
}

// Bind derives a context that is also cancelled when sc is disposed. The
// returned cancel func must be called once the round-trip is done.
func (sc *StorageContext) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	if sc == nil || sc.lifetime == nil {
		return ctx, func() {}
	}
	bound, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(sc.lifetime, func() {
		cancel(context.Cause(sc.lifetime))
	})
	return bound, func() {
		stop()
		cancel(context.Canceled)
	}
}

// Wrap converts a failed round-trip into the error taxonomy. Failures
// caused by disposal report ContextUnavailable.
func (sc *StorageContext) Wrap(resource, op string, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) {
		return err
	}
	if sc == nil {
		return errors.NewContextError(op, "nil")
	}
	if sc.disposed.Load() {
		return errors.NewContextError(op, errors.StateDisposed)
	}
	return errors.NewStorageError(resource, op, ClassifySQLError(err).Name(), err)
}

// RunInTx runs fn inside a transaction bound to sc. fn's error is returned
// unchanged; begin and commit failures are wrapped.
func (sc *StorageContext) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *TxScope) error) error {
	if _, err := sc.DB(); err != nil {
		return err
	}
	ctx, cancel := sc.Bind(ctx)
	defer cancel()

	var fnErr error
	err := sc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fnErr = fn(ctx, &TxScope{parent: sc, tx: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return sc.Wrap("transaction", "commit", err)
	}
	return err
}

// Disposed reports whether Dispose was called.
func (sc *StorageContext) Disposed() bool {
	return sc == nil || sc.disposed.Load()
}

// Dispose cancels in-flight round-trips and closes the connection. Calling
// it again is a no-op returning the first result.
func (sc *StorageContext) Dispose() error {
	if sc == nil {
		return nil
	}
	sc.closeOnce.Do(func() {
		sc.disposed.Store(true)
		if sc.cancel != nil {
			sc.cancel(errors.NewDisposedError("round-trip"))
		}
		if sc.db != nil {
			sc.closeErr = sc.db.Close()
		}
		if sc.closeErr != nil {
			sc.logger.Error("failed to close storage context", "error", sc.closeErr)
		} else {
			sc.logger.Debug("storage context disposed", "round_trips", sc.roundTrips.Load())
		}
	})
	return sc.closeErr
}

// RoundTrips returns the number of statements sent to the store so far.
func (sc *StorageContext) RoundTrips() int64 {
	if sc == nil {
		return 0
	}
	return sc.roundTrips.Load()
}

// Ping checks the connection.
func (sc *StorageContext) Ping(ctx context.Context) error {
	if _, err := sc.DB(); err != nil {
		return err
	}
	ctx, cancel := sc.Bind(ctx)
	defer cancel()
	return sc.Wrap("connection", "ping", sc.db.PingContext(ctx))
}

// HealthCheck pings the store and reports pool usage.
func (sc *StorageContext) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start, RoundTrips: sc.RoundTrips()}
	if sc.Disposed() {
		status.LastError = "storage context disposed"
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := sc.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := sc.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// Stats returns database/sql pool statistics.
func (sc *StorageContext) Stats() *DBStats {
	if sc == nil || sc.sqlDB == nil {
		return &DBStats{}
	}
	stats := sc.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// TxScope is a transaction-bound view of a storage context. It satisfies
// the same source contract as StorageContext.
type TxScope struct {
	parent *StorageContext
	tx     bun.Tx
}

func (t *TxScope) DB() (bun.IDB, error) {
	if t == nil || t.parent.Disposed() {
		return nil, errors.NewContextError("query", errors.StateDisposed)
	}
	return t.tx, nil
}

func (t *TxScope) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	return t.parent.Bind(ctx)
}

func (t *TxScope) Wrap(resource, op string, err error) error {
	return t.parent.Wrap(resource, op, err)
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		errors.ErrConfigurationMissing,
		errors.ErrContextUnavailable,
		errors.ErrContextDisposed,
		errors.ErrInvalidArgument,
		errors.ErrStorageFailure,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
