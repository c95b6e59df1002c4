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
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/types"
)

// now is swapped in tests.
var now = time.Now

// Create inserts rec, stamping audit fields with actor when rec is
// types.Auditable. Generated keys are written back into rec.
func (r *Repository[R, E]) Create(ctx context.Context, rec *R, actor string) error {
	if rec == nil {
		return errors.NewArgumentError("record", nil, "must not be nil")
	}
	db, err := r.src.DB()
	if err != nil {
		return err
	}
	if a, ok := any(rec).(types.Auditable); ok {
		a.Audit().StampCreated(actor, now())
	}
	ctx, cancel := r.src.Bind(ctx)
	defer cancel()

	if _, err := db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return r.src.Wrap(r.desc.Table, "insert", err)
	}
	return nil
}

// Update writes the mutable columns of a live record. It reports false
// when no live row has rec's primary key.
func (r *Repository[R, E]) Update(ctx context.Context, rec *R, actor string) (bool, error) {
	if rec == nil {
		return false, errors.NewArgumentError("record", nil, "must not be nil")
	}
	columns := r.desc.MutableColumns()
	if a, ok := any(rec).(types.Auditable); ok {
		a.Audit().StampModified(actor, now())
		columns = append(columns, r.declared("modified_by", "modified_at")...)
	}
	if len(columns) == 0 {
		return false, errors.NewArgumentError("columns", r.desc.Name, "resource has no mutable columns")
	}
	db, err := r.src.DB()
	if err != nil {
		return false, err
	}
	ctx, cancel := r.src.Bind(ctx)
	defer cancel()

	q := db.NewUpdate().Model(rec).Column(columns...).WherePK()
	if col := r.desc.SoftDeleteColumn; col != "" {
		q = q.Where("? = ?", bun.Ident(col), false)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, r.src.Wrap(r.desc.Table, "update", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SoftDelete flags the live row id as deleted. It reports false when no
// live row matched.
func (r *Repository[R, E]) SoftDelete(ctx context.Context, id interface{}, actor string) (bool, error) {
	return r.setDeleted(ctx, "softDelete", r.desc.PrimaryKey, id, true, actor)
}

// SoftDeleteWhere flags every live row whose column equals value.
func (r *Repository[R, E]) SoftDeleteWhere(ctx context.Context, column string, value interface{}, actor string) (int64, error) {
	if _, ok := r.desc.Column(column); !ok {
		return 0, errors.NewArgumentError("column", column, fmt.Sprintf("not a column of %s", r.desc.Name))
	}
	return r.updateDeleted(ctx, "softDelete", column, value, true, actor)
}

// Restore clears the deleted flag of row id.
func (r *Repository[R, E]) Restore(ctx context.Context, id interface{}, actor string) (bool, error) {
	return r.setDeleted(ctx, "restore", r.desc.PrimaryKey, id, false, actor)
}

func (r *Repository[R, E]) setDeleted(ctx context.Context, op, column string, value interface{}, deleted bool, actor string) (bool, error) {
	n, err := r.updateDeleted(ctx, op, column, value, deleted, actor)
	return n > 0, err
}

func (r *Repository[R, E]) updateDeleted(ctx context.Context, op, column string, value interface{}, deleted bool, actor string) (int64, error) {
	col := r.desc.SoftDeleteColumn
	if col == "" {
		return 0, errors.NewArgumentError("resource", r.desc.Name, "resource has no soft delete column")
	}
	db, err := r.src.DB()
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.src.Bind(ctx)
	defer cancel()

	ts := now()
	q := db.NewUpdate().Table(r.desc.Table).
		Set("? = ?", bun.Ident(col), deleted).
		Where("? = ?", bun.Ident(column), value).
		Where("? = ?", bun.Ident(col), !deleted)
	for _, name := range r.declared("deleted_by", "deleted_at", "modified_by", "modified_at") {
		switch name {
		case "deleted_by":
			if deleted {
				q = q.Set("? = ?", bun.Ident(name), actor)
			} else {
				q = q.Set("? = ''", bun.Ident(name))
			}
		case "deleted_at":
			if deleted {
				q = q.Set("? = ?", bun.Ident(name), ts)
			} else {
				q = q.Set("? = NULL", bun.Ident(name))
			}
		case "modified_by":
			q = q.Set("? = ?", bun.Ident(name), actor)
		case "modified_at":
			q = q.Set("? = ?", bun.Ident(name), ts)
		}
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, r.src.Wrap(r.desc.Table, op, err)
	}
	return res.RowsAffected()
}

// Upsert inserts recs or, on a conflict over keys, updates fields. Audit
// fields are stamped with actor. A conflicting soft-deleted row is revived.
// Rows go out one statement each: a multi-row insert takes its column list
// from the first row and would drop defaulted columns for every row. It uses
// ON CONFLICT where the dialect supports it and ON DUPLICATE KEY on MySQL.
func (r *Repository[R, E]) Upsert(ctx context.Context, actor string, fields, keys []string, recs ...*R) error {
	if len(fields) == 0 {
		return errors.NewArgumentError("fields", fields, "cannot be empty")
	}
	if len(recs) == 0 {
		return nil
	}
	if len(keys) == 0 {
		keys = []string{r.desc.PrimaryKey}
	}
	db, err := r.src.DB()
	if err != nil {
		return err
	}
	var conflict func(q *bun.InsertQuery) *bun.InsertQuery
	cols := r.upsertColumns(fields)
	switch {
	case db.Dialect().Features().Has(feature.InsertOnConflict):
		sets := make([]string, len(cols))
		for i, f := range cols {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", f, f)
		}
		clause := "CONFLICT (" + strings.Join(keys, ",") + ") DO UPDATE"
		conflict = func(q *bun.InsertQuery) *bun.InsertQuery {
			return q.On(clause).Set(strings.Join(sets, ", "))
		}
	case db.Dialect().Features().Has(feature.InsertOnDuplicateKey):
		sets := make([]string, len(cols))
		for i, f := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", f, f)
		}
		clause := "DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
		conflict = func(q *bun.InsertQuery) *bun.InsertQuery {
			return q.On(clause)
		}
	default:
		return errors.NewArgumentError("dialect", db.Dialect().Name().String(), "upsert is not supported")
	}
	ts := now()
	ctx, cancel := r.src.Bind(ctx)
	defer cancel()

	for _, rec := range recs {
		if a, ok := any(rec).(types.Auditable); ok {
			a.Audit().StampCreated(actor, ts)
		}
		if _, err := conflict(db.NewInsert().Model(rec)).Exec(ctx); err != nil {
			return r.src.Wrap(r.desc.Table, "upsert", err)
		}
	}
	return nil
}

// upsertColumns is fields plus the soft-delete columns, which the inserted
// row always carries as live.
func (r *Repository[R, E]) upsertColumns(fields []string) []string {
	cols := append([]string(nil), fields...)
	if r.desc.SoftDeleteColumn == "" {
		return cols
	}
	seen := make(map[string]bool, len(cols))
	for _, f := range cols {
		seen[f] = true
	}
	for _, c := range r.declared(r.desc.SoftDeleteColumn, "deleted_by", "deleted_at") {
		if !seen[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// declared filters names to the columns the descriptor declares.
func (r *Repository[R, E]) declared(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := r.desc.Column(n); ok {
			out = append(out, n)
		}
	}
	return out
}
