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

	"github.com/tomoncle/strata"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/types"
)

// NewCategory is the input of CategoryService.Create.
type NewCategory struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Metadata      types.JsonObject `json:"metadata"`
	Subcategories []NewSubcategory `json:"subcategories"`
}

// NewSubcategory is the input of SubcategoryService.Create.
type NewSubcategory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewProduct is one row of ProductService.Import.
type NewProduct struct {
	SubcategoryID int64              `json:"subcategoryId"`
	SKU           string             `json:"sku"`
	Name          string             `json:"name"`
	PriceCents    int64              `json:"priceCents"`
	Options       []types.JsonObject `json:"options"`
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewArgumentError(name, value, "must not be empty")
	}
	return nil
}

// CategoryService serves categories and the trees below them.
type CategoryService struct {
	*strata.Service[CategoryRecord, Category]

	sc            *database.StorageContext
	categories    *CategoryRepository
	subcategories *SubcategoryRepository
	products      *ProductRepository
}

// NewCategoryService builds the service for one factory scope.
func NewCategoryService(s strata.Scope) *CategoryService {
	categories := NewCategoryRepository(s.Context)
	return &CategoryService{
		Service:       strata.NewService(categories.Repository, s.Logger),
		sc:            s.Context,
		categories:    categories,
		subcategories: NewSubcategoryRepository(s.Context),
		products:      NewProductRepository(s.Context),
	}
}

// GetTreePage returns one page of categories with their live
// subcategories and products.
func (s *CategoryService) GetTreePage(ctx context.Context, pageNumber, pageSize int) *types.Response[types.PagedResult[Category]] {
	return s.PageWith(ctx, types.NewDefaultPageRequest(pageNumber, pageSize), CategoryTree)
}

// GetWithSubcategories returns one category and its live subcategories.
func (s *CategoryService) GetWithSubcategories(ctx context.Context, id int64) *types.Response[Category] {
	return s.GetWith(ctx, id, CategoryWithSubcategories)
}

// GetTree returns one category with its whole live tree.
func (s *CategoryService) GetTree(ctx context.Context, id int64) *types.Response[Category] {
	return s.GetWith(ctx, id, CategoryTree)
}

// Search pages categories whose name contains term.
func (s *CategoryService) Search(ctx context.Context, term string, pageNumber, pageSize int) *types.Response[types.PagedResult[Category]] {
	return strata.Handle(ctx, s.Logger, "category.search", func(ctx context.Context) (types.PagedResult[Category], error) {
		page, err := s.categories.SearchByName(ctx, term, pageNumber, pageSize)
		if err != nil {
			return types.PagedResult[Category]{}, err
		}
		return *page, nil
	})
}

// Create inserts a category and its subcategories in one transaction.
func (s *CategoryService) Create(ctx context.Context, in NewCategory, actor string) *types.Response[Category] {
	return strata.Handle(ctx, s.Logger, "category.create", func(ctx context.Context) (Category, error) {
		if err := required("name", in.Name); err != nil {
			return Category{}, err
		}
		for _, sub := range in.Subcategories {
			if err := required("subcategory.name", sub.Name); err != nil {
				return Category{}, err
			}
		}
		if s.sc == nil {
			return Category{}, errors.NewContextError("category.create", "nil")
		}
		rec := &CategoryRecord{Name: in.Name, Description: in.Description, Metadata: in.Metadata.Clone()}
		err := s.sc.RunInTx(ctx, func(ctx context.Context, tx *database.TxScope) error {
			if err := s.categories.With(tx).Create(ctx, rec, actor); err != nil {
				return err
			}
			subs := s.subcategories.With(tx)
			for _, ns := range in.Subcategories {
				sub := &SubcategoryRecord{CategoryID: rec.ID, Name: ns.Name, Description: ns.Description}
				if err := subs.Create(ctx, sub, actor); err != nil {
					return err
				}
				rec.Subcategories = append(rec.Subcategories, sub)
			}
			return nil
		})
		if err != nil {
			return Category{}, err
		}
		return project.CategoryWithSubcategories(rec), nil
	})
}

// Rename changes the name of a live category.
func (s *CategoryService) Rename(ctx context.Context, id int64, name, actor string) *types.Response[bool] {
	return strata.Handle(ctx, s.Logger, "category.rename", func(ctx context.Context) (bool, error) {
		if err := required("name", name); err != nil {
			return false, err
		}
		rec, ok, err := s.categories.Query().WhereColumn("id", "=", id).First(ctx)
		if err != nil || !ok {
			return false, err
		}
		rec.Name = name
		return s.categories.Update(ctx, rec, actor)
	})
}

// Delete soft-deletes a category, its subcategories and their products
// in one transaction.
func (s *CategoryService) Delete(ctx context.Context, id int64, actor string) *types.Response[bool] {
	return strata.Handle(ctx, s.Logger, "category.delete", func(ctx context.Context) (bool, error) {
		if s.sc == nil {
			return false, errors.NewContextError("category.delete", "nil")
		}
		var deleted bool
		err := s.sc.RunInTx(ctx, func(ctx context.Context, tx *database.TxScope) error {
			subs := s.subcategories.With(tx)
			ids, err := subs.IDsOf(ctx, id)
			if err != nil {
				return err
			}
			products := s.products.With(tx)
			for _, sid := range ids {
				if _, err := products.SoftDeleteWhere(ctx, "subcategory_id", sid, actor); err != nil {
					return err
				}
			}
			if _, err := subs.SoftDeleteWhere(ctx, "category_id", id, actor); err != nil {
				return err
			}
			deleted, err = s.categories.With(tx).SoftDelete(ctx, id, actor)
			return err
		})
		return deleted, err
	})
}

// SubcategoryService serves subcategories.
type SubcategoryService struct {
	*strata.Service[SubcategoryRecord, Subcategory]

	categories    *CategoryRepository
	subcategories *SubcategoryRepository
}

func NewSubcategoryService(s strata.Scope) *SubcategoryService {
	subcategories := NewSubcategoryRepository(s.Context)
	return &SubcategoryService{
		Service:       strata.NewService(subcategories.Repository, s.Logger),
		categories:    NewCategoryRepository(s.Context),
		subcategories: subcategories,
	}
}

// ByCategory pages the live subcategories of categoryID.
func (s *SubcategoryService) ByCategory(ctx context.Context, categoryID int64, pageNumber, pageSize int) *types.Response[types.PagedResult[Subcategory]] {
	return strata.Handle(ctx, s.Logger, "subcategory.byCategory", func(ctx context.Context) (types.PagedResult[Subcategory], error) {
		page, err := s.subcategories.ByCategory(ctx, categoryID, pageNumber, pageSize)
		if err != nil {
			return types.PagedResult[Subcategory]{}, err
		}
		return *page, nil
	})
}

// GetWithProducts returns one subcategory and its live products.
func (s *SubcategoryService) GetWithProducts(ctx context.Context, id int64) *types.Response[Subcategory] {
	return s.GetWith(ctx, id, SubcategoryWithProducts)
}

// Create adds a subcategory under a live category.
func (s *SubcategoryService) Create(ctx context.Context, categoryID int64, in NewSubcategory, actor string) *types.Response[Subcategory] {
	return strata.Handle(ctx, s.Logger, "subcategory.create", func(ctx context.Context) (Subcategory, error) {
		if err := required("name", in.Name); err != nil {
			return Subcategory{}, err
		}
		_, ok, err := s.categories.Find(ctx, categoryID)
		if err != nil {
			return Subcategory{}, err
		}
		if !ok {
			return Subcategory{}, errors.NewArgumentError("categoryId", categoryID, "no such category")
		}
		rec := &SubcategoryRecord{CategoryID: categoryID, Name: in.Name, Description: in.Description}
		if err := s.subcategories.Create(ctx, rec, actor); err != nil {
			return Subcategory{}, err
		}
		return project.Subcategory(rec), nil
	})
}

// ProductService serves products.
type ProductService struct {
	*strata.Service[ProductRecord, Product]

	sc       *database.StorageContext
	products *ProductRepository
}

func NewProductService(s strata.Scope) *ProductService {
	products := NewProductRepository(s.Context)
	return &ProductService{
		Service:  strata.NewService(products.Repository, s.Logger),
		sc:       s.Context,
		products: products,
	}
}

// BySubcategory pages the live products of subcategoryID.
func (s *ProductService) BySubcategory(ctx context.Context, subcategoryID int64, pageNumber, pageSize int) *types.Response[types.PagedResult[Product]] {
	return strata.Handle(ctx, s.Logger, "product.bySubcategory", func(ctx context.Context) (types.PagedResult[Product], error) {
		page, err := s.products.BySubcategory(ctx, subcategoryID, pageNumber, pageSize)
		if err != nil {
			return types.PagedResult[Product]{}, err
		}
		return *page, nil
	})
}

// ByPriceRange pages live products priced within [min, max] cents.
func (s *ProductService) ByPriceRange(ctx context.Context, min, max int64, pageNumber, pageSize int) *types.Response[types.PagedResult[Product]] {
	return strata.Handle(ctx, s.Logger, "product.byPriceRange", func(ctx context.Context) (types.PagedResult[Product], error) {
		page, err := s.products.ByPriceRange(ctx, min, max, pageNumber, pageSize)
		if err != nil {
			return types.PagedResult[Product]{}, err
		}
		return *page, nil
	})
}

// GetBySKU returns the live product with sku.
func (s *ProductService) GetBySKU(ctx context.Context, sku string) *types.Response[Product] {
	return strata.HandleFind(ctx, s.Logger, "product.getBySku", "product", func(ctx context.Context) (Product, bool, error) {
		return s.products.BySKU(ctx, sku)
	})
}

// Import inserts products, updating name, price and options of rows whose
// SKU already exists, in one transaction. A soft-deleted product whose SKU
// is imported again becomes live. The payload is the number of rows written.
func (s *ProductService) Import(ctx context.Context, in []NewProduct, actor string) *types.Response[int] {
	return strata.Handle(ctx, s.Logger, "product.import", func(ctx context.Context) (int, error) {
		recs := make([]*ProductRecord, 0, len(in))
		for _, p := range in {
			if err := required("sku", p.SKU); err != nil {
				return 0, err
			}
			if err := required("name", p.Name); err != nil {
				return 0, err
			}
			if p.PriceCents < 0 {
				return 0, errors.NewArgumentError("priceCents", p.PriceCents, "must be >= 0")
			}
			recs = append(recs, &ProductRecord{
				SubcategoryID: p.SubcategoryID,
				SKU:           p.SKU,
				Name:          p.Name,
				PriceCents:    p.PriceCents,
				Options:       types.JsonArray(p.Options).Clone(),
			})
		}
		if s.sc == nil {
			return 0, errors.NewContextError("product.import", "nil")
		}
		fields := []string{"name", "price_cents", "options", "modified_by", "modified_at"}
		err := s.sc.RunInTx(ctx, func(ctx context.Context, tx *database.TxScope) error {
			return s.products.With(tx).Upsert(ctx, actor, fields, []string{"sku"}, recs...)
		})
		if err != nil {
			return 0, err
		}
		return len(recs), nil
	})
}

// UpdatePrice sets the price of a live product.
func (s *ProductService) UpdatePrice(ctx context.Context, id int64, cents int64, actor string) *types.Response[bool] {
	return strata.Handle(ctx, s.Logger, "product.updatePrice", func(ctx context.Context) (bool, error) {
		if cents < 0 {
			return false, errors.NewArgumentError("priceCents", cents, "must be >= 0")
		}
		rec, ok, err := s.products.Query().WhereColumn("id", "=", id).First(ctx)
		if err != nil || !ok {
			return false, err
		}
		rec.PriceCents = cents
		return s.products.Update(ctx, rec, actor)
	})
}

// CategoriesOf resolves the category service of f.
func CategoriesOf(f *strata.Factory) (*CategoryService, error) {
	return strata.Resolve(f, NewCategoryService)
}

// SubcategoriesOf resolves the subcategory service of f.
func SubcategoriesOf(f *strata.Factory) (*SubcategoryService, error) {
	return strata.Resolve(f, NewSubcategoryService)
}

// ProductsOf resolves the product service of f.
func ProductsOf(f *strata.Factory) (*ProductService, error) {
	return strata.Resolve(f, NewProductService)
}
