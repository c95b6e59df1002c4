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

package query_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/query"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID      int64         `bun:"id,pk,autoincrement"`
	Name    string        `bun:"name,notnull"`
	Weight  int           `bun:"weight,notnull,default:0"`
	Deleted bool          `bun:"deleted,notnull,default:false"`
	Parts   []*widgetPart `bun:"rel:has-many,join:id=widget_id"`
}

type widgetPart struct {
	bun.BaseModel `bun:"table:widget_parts,alias:wp"`

	ID       int64  `bun:"id,pk,autoincrement"`
	WidgetID int64  `bun:"widget_id,notnull"`
	Label    string `bun:"label,notnull"`
	Deleted  bool   `bun:"deleted,notnull,default:false"`
}

var (
	parts = &database.ResourceDescriptor{
		Name:             "widget_part",
		Table:            "widget_parts",
		Alias:            "wp",
		PrimaryKey:       "id",
		SoftDeleteColumn: "deleted",
		Columns: []database.Column{
			{Name: "id", Sortable: true},
			{Name: "widget_id", Sortable: true},
			{Name: "label", Sortable: true},
			{Name: "deleted"},
		},
		DefaultOrder: []database.SortOrder{{Column: "label"}},
		CreateOrder:  2,
		Model:        func() interface{} { return (*widgetPart)(nil) },
	}
	widgets = &database.ResourceDescriptor{
		Name:             "widget",
		Table:            "widgets",
		Alias:            "w",
		PrimaryKey:       "id",
		SoftDeleteColumn: "deleted",
		Columns: []database.Column{
			{Name: "id", Sortable: true},
			{Name: "name", Sortable: true},
			{Name: "weight"},
			{Name: "deleted"},
		},
		Relations:    []database.Relation{{Name: "Parts", Target: parts, ForeignKey: "widget_id", References: "id"}},
		DefaultOrder: []database.SortOrder{{Column: "name"}},
		CreateOrder:  1,
		Model:        func() interface{} { return (*widget)(nil) },
	}
)

func openStore(t *testing.T) *database.StorageContext {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = "memory"
	cfg.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg.SlowQueryTime = 0

	ctx := context.Background()
	sc, err := database.Open(ctx, cfg, database.WithLogger(database.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Dispose() })

	registry := database.NewModelRegistry(widgets, parts)
	require.NoError(t, database.NewMigrator(sc, registry, database.DataMigrateConfig{}).Run(ctx))
	return sc
}

// seed inserts widgets w1..wn with weight i; every third one is deleted.
// Widget w1 gets parts a, b (deleted) and c.
func seed(t *testing.T, sc *database.StorageContext, n int) {
	t.Helper()
	db, err := sc.DB()
	require.NoError(t, err)
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		w := &widget{Name: fmt.Sprintf("w%02d", i), Weight: i, Deleted: i%3 == 0}
		_, err := db.NewInsert().Model(w).Exec(ctx)
		require.NoError(t, err)
		if i == 1 {
			// One row per statement: a bulk insert takes its columns from
			// the first row and would store "b" as live.
			for _, p := range []*widgetPart{
				{WidgetID: w.ID, Label: "c"},
				{WidgetID: w.ID, Label: "b", Deleted: true},
				{WidgetID: w.ID, Label: "a"},
			} {
				_, err := db.NewInsert().Model(p).Exec(ctx)
				require.NoError(t, err)
			}
		}
	}
}

func TestSoftDeletePredicateCompiledFirst(t *testing.T) {
	sc := openStore(t)
	b := query.QueryAll[widget](sc, widgets).
		WhereColumn("weight", ">", 1).
		FilterOutDeleted()

	sql, err := b.SQL()
	require.NoError(t, err)
	where := sql[strings.Index(sql, "WHERE"):]
	assert.Less(t, strings.Index(where, `"deleted"`), strings.Index(where, `"weight"`), sql)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(sql), `"w"."name" ASC, "w"."id" ASC`), sql)
}

func TestBuilderIsImmutable(t *testing.T) {
	sc := openStore(t)
	seed(t, sc, 6)
	ctx := context.Background()

	base := query.QueryAll[widget](sc, widgets).FilterOutDeleted()
	light := base.WhereColumn("weight", "<=", 2)
	heavy := base.WhereColumn("weight", ">=", 4)
	all := base.IncludeDeleted()

	n, err := base.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = light.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = heavy.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = all.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	baseSQL, _ := base.SQL()
	_ = base.OrderBy("id", query.Desc).Take(1)
	again, _ := base.SQL()
	assert.Equal(t, baseSQL, again)
}

func TestCountIgnoresWindowAndOrder(t *testing.T) {
	sc := openStore(t)
	seed(t, sc, 9)
	ctx := context.Background()

	b := query.QueryAll[widget](sc, widgets).FilterOutDeleted().OrderBy("name", query.Desc).Window(2, 2)
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	rows, err := b.ToList(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "w05", rows[0].Name)
	assert.Equal(t, "w04", rows[1].Name)
}

func TestOrderTieBreaksOnPrimaryKey(t *testing.T) {
	sc := openStore(t)
	db, err := sc.DB()
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := db.NewInsert().Model(&widget{Name: "same"}).Exec(ctx)
		require.NoError(t, err)
	}

	rows, err := query.QueryAll[widget](sc, widgets).ToList(ctx)
	require.NoError(t, err)
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1].ID, rows[i].ID)
	}
}

func TestInvalidArgumentsFailBeforeIO(t *testing.T) {
	sc := openStore(t)
	ctx := context.Background()
	base := query.QueryAll[widget](sc, widgets)

	cases := map[string]query.Builder[widget]{
		"unsortable":  base.OrderBy("weight", query.Asc),
		"unknown col": base.WhereColumn("nope", "=", 1),
		"operator":    base.WhereColumn("name", "~", "x"),
		"order expr":  base.OrderByExpr("name SIDEWAYS"),
		"relation":    base.Include("Gears"),
		"skip":        base.Skip(-1),
		"take":        base.Take(0),
		"where":       base.Where("  "),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			before := sc.RoundTrips()
			assert.True(t, errors.IsInvalidArgument(b.Err()))
			_, err := b.ToList(ctx)
			assert.True(t, errors.IsInvalidArgument(err))
			_, err = b.Count(ctx)
			assert.True(t, errors.IsInvalidArgument(err))
			assert.Equal(t, before, sc.RoundTrips())
		})
	}
}

func TestFirstErrorWins(t *testing.T) {
	sc := openStore(t)
	b := query.QueryAll[widget](sc, widgets).Take(0).OrderBy("weight", query.Asc)
	var argErr *errors.ArgumentError
	require.ErrorAs(t, b.Err(), &argErr)
	assert.Equal(t, "take", argErr.Name)
}

func TestUnavailableSource(t *testing.T) {
	ctx := context.Background()

	var nilCtx *database.StorageContext
	_, err := query.QueryAll[widget](nilCtx, widgets).FilterOutDeleted().ToList(ctx)
	assert.True(t, errors.IsContextUnavailable(err))

	_, err = query.QueryAll[widget](nil, widgets).Count(ctx)
	assert.True(t, errors.IsContextUnavailable(err))

	sc := openStore(t)
	b := query.QueryAll[widget](sc, widgets)
	require.NoError(t, sc.Dispose())

	after := b.FilterOutDeleted()
	assert.True(t, errors.IsContextUnavailable(after.Err()))
	_, err = b.Count(ctx)
	assert.True(t, errors.IsContextUnavailable(err))

	_, err = query.QueryAll[widget](sc, nil).ToList(ctx)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestIncludeFiltersDeletedChildren(t *testing.T) {
	sc := openStore(t)
	seed(t, sc, 1)
	ctx := context.Background()
	b := query.QueryAll[widget](sc, widgets).FilterOutDeleted()

	w, ok, err := b.Include("Parts").First(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, w.Parts, 2)
	assert.Equal(t, "a", w.Parts[0].Label)
	assert.Equal(t, "c", w.Parts[1].Label)

	w, ok, err = b.IncludeAllOf("Parts").First(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, w.Parts, 3)
}

func TestWhereColumnOperators(t *testing.T) {
	sc := openStore(t)
	seed(t, sc, 6)
	ctx := context.Background()
	b := query.QueryAll[widget](sc, widgets)

	rows, err := b.WhereColumn("weight", "in", []int{2, 4, 6}).ToList(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = b.WhereColumn("name", "LIKE", "w0%").WhereColumn("weight", "!=", 1).ToList(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	rows, err = b.Where("?TableAlias.weight % 2 = ?", 0).OrderByExpr("id DESC").ToList(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "w06", rows[0].Name)
}

func TestProjectAndFirst(t *testing.T) {
	sc := openStore(t)
	seed(t, sc, 4)
	ctx := context.Background()
	b := query.QueryAll[widget](sc, widgets).FilterOutDeleted()

	got, err := query.Project(ctx, b, func(w *widget) string { return w.Name })
	require.NoError(t, err)
	assert.Equal(t, []string{"w01", "w02", "w04"}, got)

	_, ok, err := b.WhereColumn("name", "=", "w03").First(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := b.WhereColumn("weight", ">", 100).ToList(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
