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
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
)

// Projector maps records to entities. It is pure: no store access, no
// mutation of its input, and the output shares no mutable state with the
// record. Children flagged deleted are dropped unless IncludeDeleted is
// set, so a deep projection of rows loaded with IncludeAllOf still hides
// them by default.
type Projector struct {
	IncludeDeleted bool
}

func (p Projector) keep(a *types.AuditFields) bool {
	return p.IncludeDeleted || !a.Deleted
}

// Category is the shallow category projection.
func (p Projector) Category(r *CategoryRecord) Category {
	return Category{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Metadata:    r.Metadata.Clone(),
		Audit:       r.AuditFields.Clone(),
	}
}

// CategoryWithSubcategories adds the shallow subcategories.
func (p Projector) CategoryWithSubcategories(r *CategoryRecord) Category {
	c := p.Category(r)
	c.Subcategories = make([]Subcategory, 0, len(r.Subcategories))
	for _, s := range r.Subcategories {
		if s != nil && p.keep(&s.AuditFields) {
			c.Subcategories = append(c.Subcategories, p.Subcategory(s))
		}
	}
	return c
}

// CategoryTree projects categories, subcategories and products.
func (p Projector) CategoryTree(r *CategoryRecord) Category {
	c := p.Category(r)
	c.Subcategories = make([]Subcategory, 0, len(r.Subcategories))
	for _, s := range r.Subcategories {
		if s != nil && p.keep(&s.AuditFields) {
			c.Subcategories = append(c.Subcategories, p.SubcategoryWithProducts(s))
		}
	}
	return c
}

func (p Projector) Subcategory(r *SubcategoryRecord) Subcategory {
	return Subcategory{
		ID:          r.ID,
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		Audit:       r.AuditFields.Clone(),
	}
}

func (p Projector) SubcategoryWithProducts(r *SubcategoryRecord) Subcategory {
	s := p.Subcategory(r)
	s.Products = make([]Product, 0, len(r.Products))
	for _, prod := range r.Products {
		if prod != nil && p.keep(&prod.AuditFields) {
			s.Products = append(s.Products, p.Product(prod))
		}
	}
	return s
}

func (p Projector) Product(r *ProductRecord) Product {
	return Product{
		ID:            r.ID,
		SubcategoryID: r.SubcategoryID,
		SKU:           r.SKU,
		Name:          r.Name,
		PriceCents:    r.PriceCents,
		Options:       r.Options.Clone(),
		Audit:         r.AuditFields.Clone(),
	}
}

// Variants offered by the catalog repositories.
var (
	project = Projector{}

	CategoryShallow = repository.Variant[CategoryRecord, Category]{
		Name:    "shallow",
		Project: project.Category,
	}
	CategoryWithSubcategories = repository.Variant[CategoryRecord, Category]{
		Name:      "withSubcategories",
		Relations: []string{"Subcategories"},
		Project:   project.CategoryWithSubcategories,
	}
	CategoryTree = repository.Variant[CategoryRecord, Category]{
		Name:      "tree",
		Relations: []string{"Subcategories.Products"},
		Project:   project.CategoryTree,
	}
	SubcategoryWithProducts = repository.Variant[SubcategoryRecord, Subcategory]{
		Name:      "withProducts",
		Relations: []string{"Products"},
		Project:   project.SubcategoryWithProducts,
	}
)
