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

package errors

import (
	"errors"
	"fmt"
)

// Sentinels for the failure taxonomy. Match them with errors.Is.
var (
	// ErrConfigurationMissing is returned when a unit of work cannot start
	// because no connection target is configured.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrContextUnavailable is returned when a query is composed or executed
	// against a nil or disposed storage context.
	ErrContextUnavailable = errors.New("storage context unavailable")

	// ErrContextDisposed is returned when a factory is used after teardown.
	ErrContextDisposed = errors.New("storage context disposed")

	// ErrInvalidArgument is returned for caller errors detected before any
	// store round-trip.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageFailure is returned when a store round-trip fails.
	ErrStorageFailure = errors.New("storage failure")
)

// ConfigurationError reports a missing configuration value.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration missing: %s is not set", e.Key)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// StateDisposed is the ContextError state of a disposed storage context.
const StateDisposed = "disposed"

// ContextError reports an operation against an unavailable storage context.
type ContextError struct {
	Op    string
	State string
}

func (e *ContextError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("storage context unavailable for %s (state %s)", e.Op, e.State)
	}
	return fmt.Sprintf("storage context unavailable for %s", e.Op)
}

// Is matches ErrContextUnavailable, and ErrContextDisposed too when the
// context was disposed.
func (e *ContextError) Is(target error) bool {
	return target == ErrContextUnavailable ||
		(target == ErrContextDisposed && e.State == StateDisposed)
}

// DisposedError reports access to a factory after Dispose.
type DisposedError struct {
	Op string
}

func (e *DisposedError) Error() string {
	return fmt.Sprintf("storage context disposed: %s after dispose", e.Op)
}

func (e *DisposedError) Is(target error) bool {
	return target == ErrContextDisposed
}

// ArgumentError reports a rejected caller argument.
type ArgumentError struct {
	Name    string
	Value   any
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s=%v: %s", e.Name, e.Value, e.Message)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// StorageError wraps a failed store round-trip. Kind is the classified SQL
// error name, e.g. "no_table" or "duplicate_key".
type StorageError struct {
	Resource string
	Op       string
	Kind     string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s %s (%s): %v", e.Op, e.Resource, e.Kind, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(key string) error {
	return &ConfigurationError{Key: key}
}

// NewContextError creates a new ContextError
func NewContextError(op, state string) error {
	return &ContextError{Op: op, State: state}
}

// NewDisposedError creates a new DisposedError
func NewDisposedError(op string) error {
	return &DisposedError{Op: op}
}

// NewArgumentError creates a new ArgumentError
func NewArgumentError(name string, value any, message string) error {
	return &ArgumentError{Name: name, Value: value, Message: message}
}

// NewStorageError creates a new StorageError
func NewStorageError(resource, op, kind string, err error) error {
	return &StorageError{Resource: resource, Op: op, Kind: kind, Err: err}
}

// IsConfigurationMissing checks if an error is a configuration missing error
func IsConfigurationMissing(err error) bool {
	return errors.Is(err, ErrConfigurationMissing)
}

// IsContextUnavailable checks if an error is a context unavailable error
func IsContextUnavailable(err error) bool {
	return errors.Is(err, ErrContextUnavailable)
}

// IsContextDisposed checks if an error is a context disposed error
func IsContextDisposed(err error) bool {
	return errors.Is(err, ErrContextDisposed)
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsStorageFailure checks if an error is a storage failure
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// Summary returns the message shown to callers for err. Storage faults are
// reduced to their kind so driver text and SQL never leave the service layer.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var storageErr *StorageError
	switch {
	case errors.As(err, &storageErr):
		return fmt.Sprintf("storage failure while executing %s on %s", storageErr.Op, storageErr.Resource)
	case IsInvalidArgument(err), IsConfigurationMissing(err),
		IsContextUnavailable(err), IsContextDisposed(err):
		return err.Error()
	default:
		return "internal error"
	}
}
