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

package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/strata"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/testing/factorytest"
	"github.com/tomoncle/strata/types"
)

func newFactory(t *testing.T, opts ...factorytest.Option) (*strata.Factory, *database.StorageContext) {
	t.Helper()
	f := factorytest.New(t, Models(), opts...)
	sc, err := f.Context()
	require.NoError(t, err)
	return f, sc
}

// seedCategories creates n categories named cat-01.. and soft-deletes the
// ones listed in deleted (1-based).
func seedCategories(t *testing.T, sc *database.StorageContext, n int, deleted ...int) []int64 {
	t.Helper()
	ctx := context.Background()
	repo := NewCategoryRepository(sc)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		rec := &CategoryRecord{Name: fmt.Sprintf("cat-%02d", i+1)}
		require.NoError(t, repo.Create(ctx, rec, "seed"))
		ids[i] = rec.ID
	}
	for _, d := range deleted {
		ok, err := repo.SoftDelete(ctx, ids[d-1], "seed")
		require.NoError(t, err)
		require.True(t, ok)
	}
	return ids
}

func names(cs []Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestGetPageSkipsDeleted(t *testing.T) {
	_, sc := newFactory(t)
	seedCategories(t, sc, 25, 5, 12, 20)
	repo := NewCategoryRepository(sc)
	ctx := context.Background()

	before := sc.RoundTrips()
	page, err := repo.GetPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sc.RoundTrips()-before)
	assert.Equal(t, 22, page.TotalRowCount)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, []string{
		"cat-01", "cat-02", "cat-03", "cat-04", "cat-06",
		"cat-07", "cat-08", "cat-09", "cat-10", "cat-11",
	}, names(page.Results))

	page, err = repo.GetPage(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Results, 10)
	assert.Equal(t, "cat-13", page.Results[0].Name)
	assert.NotContains(t, names(page.Results), "cat-20")

	page, err = repo.GetPage(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat-24", "cat-25"}, names(page.Results))
	assert.Equal(t, 3, page.PageCount())
	assert.False(t, page.HasNext())
}

func TestGetPagePastEnd(t *testing.T) {
	_, sc := newFactory(t)
	seedCategories(t, sc, 4)
	repo := NewCategoryRepository(sc)

	before := sc.RoundTrips()
	page, err := repo.GetPage(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sc.RoundTrips()-before)
	assert.Equal(t, 4, page.TotalRowCount)
	assert.NotNil(t, page.Results)
	assert.Empty(t, page.Results)
}

func TestGetPageRejectsBadArguments(t *testing.T) {
	_, sc := newFactory(t)
	repo := NewCategoryRepository(sc)

	for _, tc := range []struct{ page, size int }{{1, 0}, {0, 10}, {-1, 5}} {
		before := sc.RoundTrips()
		_, err := repo.GetPage(context.Background(), tc.page, tc.size)
		assert.True(t, errors.IsInvalidArgument(err), "page=%d size=%d", tc.page, tc.size)
		assert.Equal(t, before, sc.RoundTrips())
	}
}

func TestGetPageEmptyStore(t *testing.T) {
	_, sc := newFactory(t)
	page, err := NewCategoryRepository(sc).GetPage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalRowCount)
	assert.Empty(t, page.Results)
}

type tree struct {
	category    int64
	subs        []int64
	deletedSub  int64
	products    []int64
	deletedProd int64
}

// seedTree builds "alpha" with three subcategories (the second deleted)
// and three products under the first (the last deleted).
func seedTree(t *testing.T, sc *database.StorageContext) tree {
	t.Helper()
	ctx := context.Background()
	var out tree

	cat := &CategoryRecord{Name: "alpha", Metadata: types.JsonObject{"color": "red"}}
	require.NoError(t, NewCategoryRepository(sc).Create(ctx, cat, "seed"))
	out.category = cat.ID

	subs := NewSubcategoryRepository(sc)
	for _, name := range []string{"a-one", "a-two", "a-three"} {
		rec := &SubcategoryRecord{CategoryID: cat.ID, Name: name}
		require.NoError(t, subs.Create(ctx, rec, "seed"))
		out.subs = append(out.subs, rec.ID)
	}
	out.deletedSub = out.subs[1]
	_, err := subs.SoftDelete(ctx, out.deletedSub, "seed")
	require.NoError(t, err)

	products := NewProductRepository(sc)
	for i, name := range []string{"p-a", "p-b", "p-c"} {
		rec := &ProductRecord{
			SubcategoryID: out.subs[0],
			SKU:           fmt.Sprintf("SKU-%d", i),
			Name:          name,
			PriceCents:    int64(100 * (i + 1)),
			Options:       types.JsonArray{{"size": "m"}},
		}
		require.NoError(t, products.Create(ctx, rec, "seed"))
		out.products = append(out.products, rec.ID)
	}
	out.deletedProd = out.products[2]
	_, err = products.SoftDelete(ctx, out.deletedProd, "seed")
	require.NoError(t, err)
	return out
}

func TestDeepProjectionHidesDeletedChildren(t *testing.T) {
	_, sc := newFactory(t)
	seeded := seedTree(t, sc)
	repo := NewCategoryRepository(sc)
	ctx := context.Background()

	got, ok, err := repo.FindWith(ctx, seeded.category, CategoryWithSubcategories)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Subcategories, 2)
	assert.Equal(t, []string{"a-one", "a-three"}, []string{got.Subcategories[0].Name, got.Subcategories[1].Name})
	assert.Nil(t, got.Subcategories[0].Products)
	assert.Equal(t, "red", got.Metadata["color"])

	before := sc.RoundTrips()
	page, err := repo.PageWith(ctx, types.NewDefaultPageRequest(1, 10), CategoryTree)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sc.RoundTrips()-before)
	require.Len(t, page.Results, 1)
	root := page.Results[0]
	require.Len(t, root.Subcategories, 2)
	assert.Len(t, root.Subcategories[0].Products, 2)
	assert.Empty(t, root.Subcategories[1].Products)
	for _, p := range root.Subcategories[0].Products {
		assert.False(t, p.Audit.Deleted)
		assert.Equal(t, "m", p.Options[0]["size"])
	}
}

func TestShallowProjectionLoadsNoRelations(t *testing.T) {
	_, sc := newFactory(t)
	seeded := seedTree(t, sc)

	before := sc.RoundTrips()
	got, ok, err := NewCategoryRepository(sc).Find(context.Background(), seeded.category)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), sc.RoundTrips()-before)
	assert.Nil(t, got.Subcategories)
}

func TestIncludeAllOfKeepsDeletedRows(t *testing.T) {
	_, sc := newFactory(t)
	seeded := seedTree(t, sc)
	repo := NewCategoryRepository(sc)

	rec, ok, err := repo.Query().IncludeAllOf("Subcategories").WhereColumn("id", "=", seeded.category).First(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rec.Subcategories, 3)

	assert.Len(t, Projector{}.CategoryWithSubcategories(rec).Subcategories, 2)
	assert.Len(t, Projector{IncludeDeleted: true}.CategoryWithSubcategories(rec).Subcategories, 3)
}

func TestProjectionIsPure(t *testing.T) {
	deletedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &CategoryRecord{
		ID:       7,
		Name:     "gear",
		Metadata: types.JsonObject{"tags": []interface{}{"a"}},
		Subcategories: []*SubcategoryRecord{
			{ID: 1, CategoryID: 7, Name: "live"},
			{ID: 2, CategoryID: 7, Name: "gone", AuditFields: types.AuditFields{Deleted: true, DeletedAt: &deletedAt}},
		},
	}

	first := Projector{}.CategoryWithSubcategories(rec)
	second := Projector{}.CategoryWithSubcategories(rec)
	assert.Equal(t, first, second)
	assert.Len(t, rec.Subcategories, 2)

	first.Metadata["tags"] = "changed"
	first.Subcategories[0].Name = "changed"
	assert.Equal(t, []interface{}{"a"}, rec.Metadata["tags"])
	assert.Equal(t, "live", rec.Subcategories[0].Name)

	all := Projector{IncludeDeleted: true}.CategoryWithSubcategories(rec)
	require.Len(t, all.Subcategories, 2)
	*all.Subcategories[1].Audit.DeletedAt = deletedAt.Add(1)
	assert.Equal(t, deletedAt, *rec.Subcategories[1].DeletedAt)
}

func TestSearchAndFilteredVariants(t *testing.T) {
	_, sc := newFactory(t)
	seeded := seedTree(t, sc)
	seedCategories(t, sc, 3)
	ctx := context.Background()

	page, err := NewCategoryRepository(sc).SearchByName(ctx, "ALP", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names(page.Results))

	subs, err := NewSubcategoryRepository(sc).ByCategory(ctx, seeded.category, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, subs.TotalRowCount)

	products := NewProductRepository(sc)
	byRange, err := products.ByPriceRange(ctx, 150, 1000, 1, 10)
	require.NoError(t, err)
	require.Len(t, byRange.Results, 1)
	assert.Equal(t, "p-b", byRange.Results[0].Name)

	_, err = products.ByPriceRange(ctx, 10, 5, 1, 10)
	assert.True(t, errors.IsInvalidArgument(err))

	p, ok, err := products.BySKU(ctx, "SKU-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-a", p.Name)

	_, ok, err = products.BySKU(ctx, "SKU-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategoryServiceCreateAndDelete(t *testing.T) {
	f, sc := newFactory(t)
	svc, err := CategoriesOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	resp := svc.Create(ctx, NewCategory{
		Name:          "tools",
		Subcategories: []NewSubcategory{{Name: "saws"}, {Name: "drills"}},
	}, "alice")
	require.True(t, resp.Succeeded, resp.Message)
	created := *resp.Payload
	assert.Len(t, created.Subcategories, 2)
	assert.Equal(t, "alice", created.Audit.CreatedBy)

	products, err := ProductsOf(f)
	require.NoError(t, err)
	imported := products.Import(ctx, []NewProduct{
		{SubcategoryID: created.Subcategories[0].ID, SKU: "SAW-1", Name: "saw", PriceCents: 1500},
	}, "alice")
	require.True(t, imported.Succeeded, imported.Message)

	got := svc.GetTree(ctx, created.ID)
	require.True(t, got.Succeeded, got.Message)
	assert.Len(t, got.Payload.Subcategories, 2)

	deleted := svc.Delete(ctx, created.ID, "bob")
	require.True(t, deleted.Succeeded, deleted.Message)
	assert.True(t, *deleted.Payload)

	missing := svc.GetTree(ctx, created.ID)
	assert.False(t, missing.Succeeded)
	assert.Equal(t, types.StatusNotFound, missing.StatusCode)

	_, ok, err := NewProductRepository(sc).BySKU(ctx, "SAW-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := NewSubcategoryRepository(sc).Query().WhereColumn("category_id", "=", created.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	restored := svc.Restore(ctx, created.ID, "bob")
	require.True(t, restored.Succeeded)
	assert.True(t, *restored.Payload)
	assert.True(t, svc.Get(ctx, created.ID).Succeeded)
}

func TestCategoryServiceValidation(t *testing.T) {
	f, sc := newFactory(t)
	svc, err := CategoriesOf(f)
	require.NoError(t, err)

	before := sc.RoundTrips()
	resp := svc.Create(context.Background(), NewCategory{Name: " "}, "alice")
	assert.False(t, resp.Succeeded)
	assert.Nil(t, resp.Payload)
	assert.Equal(t, types.StatusFailed, resp.StatusCode)
	assert.Contains(t, resp.Message, "name")
	assert.Equal(t, before, sc.RoundTrips())

	page := svc.GetPage(context.Background(), 1, 0)
	assert.False(t, page.Succeeded)
	assert.Contains(t, page.Message, "pageSize")
}

func TestCategoryServiceRename(t *testing.T) {
	f, sc := newFactory(t)
	ids := seedCategories(t, sc, 2, 2)
	svc, err := CategoriesOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	resp := svc.Rename(ctx, ids[0], "renamed", "carol")
	require.True(t, resp.Succeeded, resp.Message)
	assert.True(t, *resp.Payload)

	got := svc.Get(ctx, ids[0])
	require.True(t, got.Succeeded)
	assert.Equal(t, "renamed", got.Payload.Name)
	assert.Equal(t, "carol", got.Payload.Audit.ModifiedBy)

	resp = svc.Rename(ctx, ids[1], "ghost", "carol")
	require.True(t, resp.Succeeded)
	assert.False(t, *resp.Payload)
}

func TestSubcategoryServiceRequiresLiveCategory(t *testing.T) {
	f, sc := newFactory(t)
	ids := seedCategories(t, sc, 2, 2)
	svc, err := SubcategoriesOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	ok := svc.Create(ctx, ids[0], NewSubcategory{Name: "child"}, "dave")
	require.True(t, ok.Succeeded, ok.Message)
	assert.Equal(t, ids[0], ok.Payload.CategoryID)

	bad := svc.Create(ctx, ids[1], NewSubcategory{Name: "orphan"}, "dave")
	assert.False(t, bad.Succeeded)
	assert.Contains(t, bad.Message, "no such category")

	page := svc.ByCategory(ctx, ids[0], 1, 10)
	require.True(t, page.Succeeded)
	assert.Equal(t, 1, page.Payload.TotalRowCount)
}

func TestProductServiceImportUpserts(t *testing.T) {
	f, sc := newFactory(t)
	seeded := seedTree(t, sc)
	svc, err := ProductsOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	resp := svc.Import(ctx, []NewProduct{
		{SubcategoryID: seeded.subs[0], SKU: "SKU-0", Name: "p-a v2", PriceCents: 999},
		{SubcategoryID: seeded.subs[0], SKU: "NEW-1", Name: "fresh", PriceCents: 50},
	}, "erin")
	require.True(t, resp.Succeeded, resp.Message)
	assert.Equal(t, 2, *resp.Payload)

	got := svc.GetBySKU(ctx, "SKU-0")
	require.True(t, got.Succeeded, got.Message)
	assert.Equal(t, "p-a v2", got.Payload.Name)
	assert.Equal(t, int64(999), got.Payload.PriceCents)

	price := svc.UpdatePrice(ctx, got.Payload.ID, 10, "erin")
	require.True(t, price.Succeeded, price.Message)
	assert.True(t, *price.Payload)

	page := svc.BySubcategory(ctx, seeded.subs[0], 1, 10)
	require.True(t, page.Succeeded)
	assert.Equal(t, 3, page.Payload.TotalRowCount)

	neg := svc.Import(ctx, []NewProduct{{SKU: "X", Name: "x", PriceCents: -1}}, "erin")
	assert.False(t, neg.Succeeded)
}

func TestProductServiceImportKeepsPriceAfterFreeProduct(t *testing.T) {
	f, sc := newFactory(t)
	seeded := seedTree(t, sc)
	svc, err := ProductsOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	resp := svc.Import(ctx, []NewProduct{
		{SubcategoryID: seeded.subs[0], SKU: "FREE-1", Name: "free", PriceCents: 0},
		{SubcategoryID: seeded.subs[0], SKU: "PAID-1", Name: "paid", PriceCents: 999},
	}, "erin")
	require.True(t, resp.Succeeded, resp.Message)

	free := svc.GetBySKU(ctx, "FREE-1")
	require.True(t, free.Succeeded, free.Message)
	assert.Equal(t, int64(0), free.Payload.PriceCents)

	paid := svc.GetBySKU(ctx, "PAID-1")
	require.True(t, paid.Succeeded, paid.Message)
	assert.Equal(t, int64(999), paid.Payload.PriceCents)
}

func TestProductServiceImportRevivesDeletedSKU(t *testing.T) {
	f, sc := newFactory(t)
	seeded := seedTree(t, sc)
	svc, err := ProductsOf(f)
	require.NoError(t, err)
	ctx := context.Background()

	gone := svc.GetBySKU(ctx, "SKU-2")
	require.False(t, gone.Succeeded)
	assert.Equal(t, 404, gone.StatusCode)

	resp := svc.Import(ctx, []NewProduct{
		{SubcategoryID: seeded.subs[0], SKU: "SKU-2", Name: "p-c again", PriceCents: 333},
	}, "erin")
	require.True(t, resp.Succeeded, resp.Message)

	got := svc.GetBySKU(ctx, "SKU-2")
	require.True(t, got.Succeeded, got.Message)
	assert.Equal(t, seeded.deletedProd, got.Payload.ID)
	assert.Equal(t, "p-c again", got.Payload.Name)
	assert.Equal(t, int64(333), got.Payload.PriceCents)
	assert.False(t, got.Payload.Audit.Deleted)
	assert.Nil(t, got.Payload.Audit.DeletedAt)
}

func TestSearchMatchesWildcardsLiterally(t *testing.T) {
	_, sc := newFactory(t)
	repo := NewCategoryRepository(sc)
	ctx := context.Background()
	for _, n := range []string{"plain", "half_off", "100% wool", "wow!"} {
		require.NoError(t, repo.Create(ctx, &CategoryRecord{Name: n}, "seed"))
	}

	cases := map[string][]string{
		"%":  {"100% wool"},
		"_":  {"half_off"},
		"!":  {"wow!"},
		"l_": {},
		"l":  {"half_off", "100% wool", "plain"},
	}
	for term, want := range cases {
		page, err := repo.SearchByName(ctx, term, 1, 10)
		require.NoError(t, err, term)
		assert.ElementsMatch(t, want, names(page.Results), term)
	}
}

func TestServicesAfterDispose(t *testing.T) {
	f, _ := newFactory(t)
	svc, err := CategoriesOf(f)
	require.NoError(t, err)
	require.NoError(t, f.Dispose())

	_, err = CategoriesOf(f)
	assert.True(t, errors.IsContextDisposed(err))

	resp := svc.GetPage(context.Background(), 1, 10)
	assert.False(t, resp.Succeeded)
	assert.Contains(t, resp.Message, "unavailable")
}

func TestServiceBoundaryLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f, sc := newFactory(t, factorytest.WithFactoryOptions(strata.WithLogger(database.NewLogrusLogger(logger))))
	svc, err := CategoriesOf(f)
	require.NoError(t, err)

	db, err := sc.DB()
	require.NoError(t, err)
	_, err = db.NewDropTable().Model((*CategoryRecord)(nil)).Exec(context.Background())
	require.NoError(t, err)

	resp := svc.GetPage(context.Background(), 1, 10)
	assert.False(t, resp.Succeeded)
	assert.Equal(t, "storage failure while executing count on categories", resp.Message)
	assert.NotContains(t, resp.Message, "SELECT")

	var logged *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "service operation failed" {
			logged = e
		}
	}
	require.NotNil(t, logged)
	assert.Equal(t, logrus.ErrorLevel, logged.Level)
	assert.Equal(t, "category.page.shallow", logged.Data["op"])
	assert.Equal(t, f.ID(), logged.Data["unit_id"])
	assert.True(t, errors.IsStorageFailure(logged.Data["error"].(error)))
}

func TestResolveMemoizesPerFactory(t *testing.T) {
	f1, _ := newFactory(t)
	f2, _ := newFactory(t)

	a, err := CategoriesOf(f1)
	require.NoError(t, err)
	b, err := CategoriesOf(f1)
	require.NoError(t, err)
	c, err := CategoriesOf(f2)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
