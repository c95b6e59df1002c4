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
	"strings"

	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/query"
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
)

// CategoryRepository reads and writes categories.
type CategoryRepository struct {
	*repository.Repository[CategoryRecord, Category]
}

func NewCategoryRepository(src query.Source) *CategoryRepository {
	return &CategoryRepository{repository.New(src, Categories, project.Category)}
}

// With rebinds the repository to src, typically a transaction scope.
func (r *CategoryRepository) With(src query.Source) *CategoryRepository {
	return &CategoryRepository{r.Repository.With(src)}
}

// SearchByName pages live categories whose name contains term, ignoring
// case. Wildcards in term match literally.
func (r *CategoryRepository) SearchByName(ctx context.Context, term string, pageNumber, pageSize int) (*types.PagedResult[Category], error) {
	return r.PageOf(ctx, r.Query().Where("lower(?TableAlias.name) LIKE ? ESCAPE '!'", containsPattern(term)), pageNumber, pageSize)
}

// ByName returns the live category called name.
func (r *CategoryRepository) ByName(ctx context.Context, name string) (*CategoryRecord, bool, error) {
	return r.Query().WhereColumn("name", "=", name).First(ctx)
}

// SubcategoryRepository reads and writes subcategories.
type SubcategoryRepository struct {
	*repository.Repository[SubcategoryRecord, Subcategory]
}

func NewSubcategoryRepository(src query.Source) *SubcategoryRepository {
	return &SubcategoryRepository{repository.New(src, Subcategories, project.Subcategory)}
}

func (r *SubcategoryRepository) With(src query.Source) *SubcategoryRepository {
	return &SubcategoryRepository{r.Repository.With(src)}
}

// ByCategory pages the live subcategories of one category.
func (r *SubcategoryRepository) ByCategory(ctx context.Context, categoryID int64, pageNumber, pageSize int) (*types.PagedResult[Subcategory], error) {
	return r.PageOf(ctx, r.Query().WhereColumn("category_id", "=", categoryID), pageNumber, pageSize)
}

// IDsOf returns the ids of the live subcategories of categoryID.
func (r *SubcategoryRepository) IDsOf(ctx context.Context, categoryID int64) ([]int64, error) {
	rows, err := r.Query().WhereColumn("category_id", "=", categoryID).ToList(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	return ids, nil
}

// ProductRepository reads and writes products.
type ProductRepository struct {
	*repository.Repository[ProductRecord, Product]
}

func NewProductRepository(src query.Source) *ProductRepository {
	return &ProductRepository{repository.New(src, Products, project.Product)}
}

func (r *ProductRepository) With(src query.Source) *ProductRepository {
	return &ProductRepository{r.Repository.With(src)}
}

// BySubcategory pages the live products of one subcategory.
func (r *ProductRepository) BySubcategory(ctx context.Context, subcategoryID int64, pageNumber, pageSize int) (*types.PagedResult[Product], error) {
	return r.PageOf(ctx, r.Query().WhereColumn("subcategory_id", "=", subcategoryID), pageNumber, pageSize)
}

// ByPriceRange pages live products priced within [min, max] cents,
// cheapest first.
func (r *ProductRepository) ByPriceRange(ctx context.Context, min, max int64, pageNumber, pageSize int) (*types.PagedResult[Product], error) {
	if min < 0 || max < min {
		return nil, errors.NewArgumentError("priceRange", [2]int64{min, max}, "expected 0 <= min <= max")
	}
	b := r.Query().
		WhereColumn("price_cents", ">=", min).
		WhereColumn("price_cents", "<=", max).
		OrderBy("price_cents", query.Asc)
	return r.PageOf(ctx, b, pageNumber, pageSize)
}

// BySKU returns the live product with sku.
func (r *ProductRepository) BySKU(ctx context.Context, sku string) (Product, bool, error) {
	rec, ok, err := r.Query().WhereColumn("sku", "=", sku).First(ctx)
	if err != nil || !ok {
		return Product{}, false, err
	}
	return project.Product(rec), true, nil
}

// likeEscaper escapes LIKE wildcards with '!', which needs no quoting in
// any supported dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}
