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
	"fmt"
	"runtime/debug"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
)

// Handle runs fn and converts the outcome into an envelope. It is the one
// place where errors from lower layers are caught: the original error is
// logged, the caller only sees its summary. Panics are recovered too.
func Handle[T any](ctx context.Context, logger database.Logger, op string, fn func(ctx context.Context) (T, error)) (resp *types.Response[T]) {
	if logger == nil {
		logger = database.NopLogger()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("service operation panicked", "op", op, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp = types.Fail[T]("internal error")
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		logger.Error("service operation failed", "op", op, "error", err)
		return types.Fail[T](errors.Summary(err))
	}
	return types.OK(v)
}

// HandleFind is Handle for lookups: a miss becomes a NotFound envelope.
func HandleFind[T any](ctx context.Context, logger database.Logger, op, what string, fn func(ctx context.Context) (T, bool, error)) *types.Response[T] {
	found := true
	resp := Handle(ctx, logger, op, func(ctx context.Context) (T, error) {
		v, ok, err := fn(ctx)
		found = ok
		return v, err
	})
	if resp.Succeeded && !found {
		return types.NotFound[T](what + " not found")
	}
	return resp
}

// Service is the envelope-returning service shared by every resource.
type Service[R, E any] struct {
	Repo   *repository.Repository[R, E]
	Logger database.Logger
}

// NewService wraps repo.
func NewService[R, E any](repo *repository.Repository[R, E], logger database.Logger) *Service[R, E] {
	return &Service[R, E]{Repo: repo, Logger: logger}
}

func (s *Service[R, E]) op(name string) string {
	return s.Repo.Descriptor().Name + "." + name
}

// GetPage returns one page of live entities.
func (s *Service[R, E]) GetPage(ctx context.Context, pageNumber, pageSize int) *types.Response[types.PagedResult[E]] {
	return s.Page(ctx, types.NewDefaultPageRequest(pageNumber, pageSize))
}

// Page returns one page for req.
func (s *Service[R, E]) Page(ctx context.Context, req *types.PageRequest) *types.Response[types.PagedResult[E]] {
	return s.PageWith(ctx, req, s.Repo.Shallow())
}

// PageWith returns one page projected with variant v.
func (s *Service[R, E]) PageWith(ctx context.Context, req *types.PageRequest, v repository.Variant[R, E]) *types.Response[types.PagedResult[E]] {
	return Handle(ctx, s.Logger, s.op("page."+v.Name), func(ctx context.Context) (types.PagedResult[E], error) {
		page, err := s.Repo.PageWith(ctx, req, v)
		if err != nil {
			return types.PagedResult[E]{}, err
		}
		return *page, nil
	})
}

// Get returns one live entity.
func (s *Service[R, E]) Get(ctx context.Context, id interface{}) *types.Response[E] {
	return s.GetWith(ctx, id, s.Repo.Shallow())
}

// GetWith returns one live entity projected with variant v.
func (s *Service[R, E]) GetWith(ctx context.Context, id interface{}, v repository.Variant[R, E]) *types.Response[E] {
	return HandleFind(ctx, s.Logger, s.op("get."+v.Name), s.Repo.Descriptor().Name, func(ctx context.Context) (E, bool, error) {
		return s.Repo.FindWith(ctx, id, v)
	})
}

// List returns every live entity matching filter.
func (s *Service[R, E]) List(ctx context.Context, filter *types.QueryFilter) *types.Response[[]E] {
	return Handle(ctx, s.Logger, s.op("list"), func(ctx context.Context) ([]E, error) {
		return s.Repo.List(ctx, filter)
	})
}

// Delete soft-deletes id. The payload reports whether a live row changed.
func (s *Service[R, E]) Delete(ctx context.Context, id interface{}, actor string) *types.Response[bool] {
	return Handle(ctx, s.Logger, s.op("delete"), func(ctx context.Context) (bool, error) {
		return s.Repo.SoftDelete(ctx, id, actor)
	})
}

// Restore undoes a soft delete.
func (s *Service[R, E]) Restore(ctx context.Context, id interface{}, actor string) *types.Response[bool] {
	return Handle(ctx, s.Logger, s.op("restore"), func(ctx context.Context) (bool, error) {
		return s.Repo.Restore(ctx, id, actor)
	})
}
