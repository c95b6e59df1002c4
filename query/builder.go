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

package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/uptrace/bun"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
)

// Source is where a builder's queries run: a storage context or a
// transaction scope derived from one.
type Source interface {
	DB() (bun.IDB, error)
	Bind(ctx context.Context) (context.Context, context.CancelFunc)
	Wrap(resource, op string, err error) error
}

// Direction of an ORDER BY term.
type Direction int

const (
	Asc Direction = iota
	Desc
)

var operators = map[string]string{
	"=": "=", "!=": "<>", "<>": "<>",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
	"like": "LIKE", "in": "IN",
}

type predicate struct {
	expr string
	args []interface{}
}

type include struct {
	path string
	all  bool
}

// Builder composes a query over one resource. It is an immutable value:
// every chain step returns a new Builder and leaves the receiver untouched.
// Nothing reaches the store until a terminal (Count, ToList, First,
// Project) runs. Chain steps record the first error they hit; terminals
// return it before any round-trip.
type Builder[R any] struct {
	src           Source
	desc          *database.ResourceDescriptor
	err           error
	filterDeleted bool
	preds         []predicate
	orders        []database.SortOrder
	includes      []include
	offset        int
	limit         int
}

// QueryAll starts a builder over the whole table of desc, deleted rows
// included.
func QueryAll[R any](src Source, desc *database.ResourceDescriptor) Builder[R] {
	b := Builder[R]{src: src, desc: desc}
	if desc == nil {
		b.err = errors.NewArgumentError("descriptor", nil, "must not be nil")
		return b
	}
	return b.check("queryAll")
}

// check records ContextUnavailable when the source can no longer serve.
func (b Builder[R]) check(op string) Builder[R] {
	if b.err != nil {
		return b
	}
	if b.src == nil {
		b.err = errors.NewContextError(op, "nil")
		return b
	}
	if _, err := b.src.DB(); err != nil {
		b.err = err
	}
	return b
}

func (b Builder[R]) fail(err error) Builder[R] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first error recorded by a chain step.
func (b Builder[R]) Err() error { return b.err }

// Descriptor returns the resource the builder queries.
func (b Builder[R]) Descriptor() *database.ResourceDescriptor { return b.desc }

// FilterOutDeleted excludes soft-deleted rows. The predicate is always
// compiled before any other filter, whenever it was added.
func (b Builder[R]) FilterOutDeleted() Builder[R] {
	b = b.check("filterOutDeleted")
	b.filterDeleted = true
	return b
}

// IncludeDeleted removes the soft-delete predicate.
func (b Builder[R]) IncludeDeleted() Builder[R] {
	b = b.check("includeDeleted")
	b.filterDeleted = false
	return b
}

// Where adds a raw bun predicate, e.g. Where("?TableAlias.name LIKE ?", "a%").
func (b Builder[R]) Where(expr string, args ...interface{}) Builder[R] {
	b = b.check("where")
	if strings.TrimSpace(expr) == "" {
		return b.fail(errors.NewArgumentError("where", expr, "empty predicate"))
	}
	b.preds = append(slices.Clip(b.preds), predicate{expr: expr, args: args})
	return b
}

// WhereColumn adds "column op value" for a declared column. op is one of
// =, !=, <>, <, <=, >, >=, LIKE or IN.
func (b Builder[R]) WhereColumn(column, op string, value interface{}) Builder[R] {
	b = b.check("whereColumn")
	if b.err != nil {
		return b
	}
	if _, ok := b.desc.Column(column); !ok {
		return b.fail(errors.NewArgumentError("column", column, fmt.Sprintf("not a column of %s", b.desc.Name)))
	}
	sqlOp, ok := operators[strings.ToLower(strings.TrimSpace(op))]
	if !ok {
		return b.fail(errors.NewArgumentError("operator", op, "unsupported operator"))
	}
	p := predicate{expr: "?TableAlias.? " + sqlOp + " ?", args: []interface{}{bun.Ident(column), value}}
	if sqlOp == "IN" {
		p = predicate{expr: "?TableAlias.? IN (?)", args: []interface{}{bun.Ident(column), bun.In(value)}}
	}
	b.preds = append(slices.Clip(b.preds), p)
	return b
}

// OrderBy appends a sort term. The column must be sortable.
func (b Builder[R]) OrderBy(column string, dir Direction) Builder[R] {
	b = b.check("orderBy")
	if b.err != nil {
		return b
	}
	if !b.desc.Sortable(column) {
		return b.fail(errors.NewArgumentError("order", column, fmt.Sprintf("%s cannot be sorted by this column", b.desc.Name)))
	}
	b.orders = append(slices.Clip(b.orders), database.SortOrder{Column: column, Descending: dir == Desc})
	return b
}

// OrderByExpr parses "column [ASC|DESC]" and appends it.
func (b Builder[R]) OrderByExpr(expr string) Builder[R] {
	o, err := database.ParseSortOrder(expr)
	if err != nil {
		return b.check("orderBy").fail(err)
	}
	dir := Asc
	if o.Descending {
		dir = Desc
	}
	return b.OrderBy(o.Column, dir)
}

// Include eagerly loads a relation path such as "Subcategories.Products".
// Every level is loaded with the soft-delete predicate of its resource.
func (b Builder[R]) Include(path string) Builder[R] {
	return b.include("include", path, false)
}

// IncludeAllOf loads a relation path without filtering deleted rows.
func (b Builder[R]) IncludeAllOf(path string) Builder[R] {
	return b.include("includeAllOf", path, true)
}

func (b Builder[R]) include(op, path string, all bool) Builder[R] {
	b = b.check(op)
	if b.err != nil {
		return b
	}
	if _, err := b.desc.ResolvePath(path); err != nil {
		return b.fail(err)
	}
	next := slices.Clip(b.includes)
	parts := strings.Split(path, ".")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], ".")
		if idx := slices.IndexFunc(next, func(in include) bool { return in.path == prefix }); idx >= 0 {
			if prefix == path {
				next = slices.Clone(next)
				next[idx].all = all
			}
			continue
		}
		next = append(next, include{path: prefix, all: all && prefix == path})
	}
	b.includes = next
	return b
}

// Skip sets the number of rows to skip.
func (b Builder[R]) Skip(n int) Builder[R] {
	b = b.check("skip")
	if n < 0 {
		return b.fail(errors.NewArgumentError("skip", n, "must be >= 0"))
	}
	b.offset = n
	return b
}

// Take limits the number of rows returned.
func (b Builder[R]) Take(n int) Builder[R] {
	b = b.check("take")
	if n < 1 {
		return b.fail(errors.NewArgumentError("take", n, "must be >= 1"))
	}
	b.limit = n
	return b
}

// Window is Skip(offset).Take(limit).
func (b Builder[R]) Window(offset, limit int) Builder[R] {
	return b.Skip(offset).Take(limit)
}

// Count returns the number of rows matching the filters, ignoring any
// window and sort.
func (b Builder[R]) Count(ctx context.Context) (int, error) {
	db, err := b.ready("count")
	if err != nil {
		return 0, err
	}
	ctx, cancel := b.src.Bind(ctx)
	defer cancel()

	n, err := b.filtered(db, (*R)(nil)).Count(ctx)
	if err != nil {
		return 0, b.src.Wrap(b.desc.Table, "count", err)
	}
	return n, nil
}

// ToList materializes the rows with their included relations. It never
// returns a nil slice on success.
func (b Builder[R]) ToList(ctx context.Context) ([]R, error) {
	db, err := b.ready("select")
	if err != nil {
		return nil, err
	}
	ctx, cancel := b.src.Bind(ctx)
	defer cancel()

	rows := make([]R, 0)
	if err := b.selectQuery(db, &rows).Scan(ctx); err != nil {
		return nil, b.src.Wrap(b.desc.Table, "select", err)
	}
	return rows, nil
}

// First returns the first row, or false when nothing matches.
func (b Builder[R]) First(ctx context.Context) (*R, bool, error) {
	rows, err := b.Take(1).ToList(ctx)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return &rows[0], true, nil
}

// SQL renders the select statement a ToList would run, without running it.
func (b Builder[R]) SQL() (string, error) {
	db, err := b.ready("sql")
	if err != nil {
		return "", err
	}
	var rows []R
	return b.selectQuery(db, &rows).String(), nil
}

// Project runs ToList and maps every row with fn. fn must not do I/O.
func Project[R, E any](ctx context.Context, b Builder[R], fn func(*R) E) ([]E, error) {
	rows, err := b.ToList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]E, len(rows))
	for i := range rows {
		out[i] = fn(&rows[i])
	}
	return out, nil
}

func (b Builder[R]) ready(op string) (bun.IDB, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.src == nil {
		return nil, errors.NewContextError(op, "nil")
	}
	return b.src.DB()
}

func (b Builder[R]) filtered(db bun.IDB, model interface{}) *bun.SelectQuery {
	q := db.NewSelect().Model(model)
	if b.filterDeleted && b.desc.SoftDeleteColumn != "" {
		q = q.Where("?TableAlias.? = ?", bun.Ident(b.desc.SoftDeleteColumn), false)
	}
	for _, p := range b.preds {
		q = q.Where(p.expr, p.args...)
	}
	return q
}

func (b Builder[R]) selectQuery(db bun.IDB, model interface{}) *bun.SelectQuery {
	q := b.filtered(db, model)
	q = applyOrder(q, b.desc, b.orders)
	for _, in := range b.includes {
		rels, _ := b.desc.ResolvePath(in.path)
		q = q.Relation(in.path, relationFilter(rels[len(rels)-1].Target, in.all))
	}
	if b.offset > 0 {
		q = q.Offset(b.offset)
	}
	if b.limit > 0 {
		q = q.Limit(b.limit)
	}
	return q
}

// applyOrder adds the explicit or default order, then the primary key as
// the final tie-breaker.
func applyOrder(q *bun.SelectQuery, desc *database.ResourceDescriptor, orders []database.SortOrder) *bun.SelectQuery {
	if len(orders) == 0 {
		orders = desc.DefaultOrder
	}
	pkSeen := false
	for _, o := range orders {
		q = q.OrderExpr("?TableAlias.? "+direction(o), bun.Ident(o.Column))
		pkSeen = pkSeen || o.Column == desc.PrimaryKey
	}
	if !pkSeen {
		q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(desc.PrimaryKey))
	}
	return q
}

func direction(o database.SortOrder) string {
	if o.Descending {
		return "DESC"
	}
	return "ASC"
}

func relationFilter(target *database.ResourceDescriptor, all bool) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if !all && target.SoftDeleteColumn != "" {
			q = q.Where("?TableAlias.? = ?", bun.Ident(target.SoftDeleteColumn), false)
		}
		return applyOrder(q, target, nil)
	}
}
