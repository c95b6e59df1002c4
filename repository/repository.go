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

package repository

import (
	"context"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/query"
	"github.com/tomoncle/strata/types"
)

// Variant names a projection and the relations it needs loaded.
type Variant[R, E any] struct {
	Name           string
	Relations      []string
	IncludeDeleted bool
	Project        func(*R) E
}

// Repository is the per-resource façade services use for data access. R is
// the record (storage shape), E the entity (API shape).
type Repository[R, E any] struct {
	src     query.Source
	desc    *database.ResourceDescriptor
	project func(*R) E
}

// New returns a repository over src projecting records with project.
func New[R, E any](src query.Source, desc *database.ResourceDescriptor, project func(*R) E) *Repository[R, E] {
	return &Repository[R, E]{src: src, desc: desc, project: project}
}

// With returns a copy bound to another source, typically a *database.TxScope.
func (r *Repository[R, E]) With(src query.Source) *Repository[R, E] {
	return &Repository[R, E]{src: src, desc: r.desc, project: r.project}
}

func (r *Repository[R, E]) Descriptor() *database.ResourceDescriptor { return r.desc }

func (r *Repository[R, E]) Source() query.Source { return r.src }

// Shallow is the variant using the repository's own projector.
func (r *Repository[R, E]) Shallow() Variant[R, E] {
	return Variant[R, E]{Name: "shallow", Project: r.project}
}

// Query starts the default query path: soft-deleted rows filtered out.
func (r *Repository[R, E]) Query() query.Builder[R] {
	return query.QueryAll[R](r.src, r.desc).FilterOutDeleted()
}

// GetPage returns one page of live entities in the default order.
func (r *Repository[R, E]) GetPage(ctx context.Context, pageNumber, pageSize int) (*types.PagedResult[E], error) {
	return r.Page(ctx, types.NewDefaultPageRequest(pageNumber, pageSize))
}

// Page returns one page honoring the request's filter and orders.
func (r *Repository[R, E]) Page(ctx context.Context, req *types.PageRequest) (*types.PagedResult[E], error) {
	return r.PageWith(ctx, req, r.Shallow())
}

// PageWith is Page with an explicit projection variant.
func (r *Repository[R, E]) PageWith(ctx context.Context, req *types.PageRequest, v Variant[R, E]) (*types.PagedResult[E], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b := r.variantQuery(v)
	if f := req.GetFilter(); f != nil {
		b = b.Where(f.Schema, f.Args...)
	}
	for _, o := range req.GetOrders() {
		b = b.OrderByExpr(o)
	}
	return Paginate(ctx, b, req, r.projector(v))
}

// PageOf paginates a builder prepared by a filtered variant.
func (r *Repository[R, E]) PageOf(ctx context.Context, b query.Builder[R], pageNumber, pageSize int) (*types.PagedResult[E], error) {
	return Paginate(ctx, b, types.NewDefaultPageRequest(pageNumber, pageSize), r.project)
}

// Find loads one live entity by primary key.
func (r *Repository[R, E]) Find(ctx context.Context, id interface{}) (E, bool, error) {
	return r.FindWith(ctx, id, r.Shallow())
}

// FindWith loads one entity by primary key using variant v.
func (r *Repository[R, E]) FindWith(ctx context.Context, id interface{}, v Variant[R, E]) (E, bool, error) {
	var zero E
	rec, ok, err := r.variantQuery(v).WhereColumn(r.desc.PrimaryKey, "=", id).First(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	return r.projector(v)(rec), true, nil
}

// List returns every live entity matching filter, in the default order.
func (r *Repository[R, E]) List(ctx context.Context, filter *types.QueryFilter) ([]E, error) {
	b := r.Query()
	if filter != nil {
		b = b.Where(filter.Schema, filter.Args...)
	}
	return query.Project(ctx, b, r.project)
}

// Records returns the raw records a builder selects.
func (r *Repository[R, E]) Records(ctx context.Context, b query.Builder[R]) ([]R, error) {
	return b.ToList(ctx)
}

func (r *Repository[R, E]) variantQuery(v Variant[R, E]) query.Builder[R] {
	b := r.Query()
	if v.IncludeDeleted {
		b = b.IncludeDeleted()
	}
	for _, rel := range v.Relations {
		b = b.Include(rel)
	}
	return b
}

func (r *Repository[R, E]) projector(v Variant[R, E]) func(*R) E {
	if v.Project != nil {
		return v.Project
	}
	return r.project
}

// Paginate counts the filtered set, then fetches and projects one window.
// The two round-trips are not wrapped in a transaction. A page past the
// end yields empty Results with an accurate TotalRowCount and skips the
// window query.
func Paginate[R, E any](ctx context.Context, b query.Builder[R], req *types.PageRequest, project func(*R) E) (*types.PagedResult[E], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	if project == nil {
		return nil, errors.NewArgumentError("project", nil, "must not be nil")
	}

	total, err := b.Count(ctx)
	if err != nil {
		return nil, err
	}
	result := types.NewPagedResult[E](req.GetPage(), req.GetPageSize(), total)
	if req.GetOffset() >= total {
		return result, nil
	}

	items, err := query.Project(ctx, b.Window(req.GetOffset(), req.GetPageSize()), project)
	if err != nil {
		return nil, err
	}
	result.Results = items
	return result, nil
}
