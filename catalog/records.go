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
	"github.com/uptrace/bun"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/types"
)

// CategoryRecord is a row of categories.
type CategoryRecord struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID          int64            `bun:"id,pk,autoincrement"`
	Name        string           `bun:"name,notnull"`
	Description string           `bun:"description,notnull,default:''"`
	Metadata    types.JsonObject `bun:"metadata,type:text"`
	types.AuditFields

	Subcategories []*SubcategoryRecord `bun:"rel:has-many,join:id=category_id"`
}

// SubcategoryRecord is a row of subcategories.
type SubcategoryRecord struct {
	bun.BaseModel `bun:"table:subcategories,alias:s"`

	ID          int64  `bun:"id,pk,autoincrement"`
	CategoryID  int64  `bun:"category_id,notnull"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description,notnull,default:''"`
	types.AuditFields

	Products []*ProductRecord `bun:"rel:has-many,join:id=subcategory_id"`
}

// ProductRecord is a row of products.
type ProductRecord struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID            int64           `bun:"id,pk,autoincrement"`
	SubcategoryID int64           `bun:"subcategory_id,notnull"`
	SKU           string          `bun:"sku,notnull,unique"`
	Name          string          `bun:"name,notnull"`
	PriceCents    int64           `bun:"price_cents,notnull,default:0"`
	Options       types.JsonArray `bun:"options,type:text"`
	types.AuditFields
}

func auditColumns() []database.Column {
	return []database.Column{
		{Name: "created_by", Default: "''"},
		{Name: "created_at", Default: "current_timestamp", Sortable: true},
		{Name: "modified_by", Default: "''"},
		{Name: "modified_at", Default: "current_timestamp", Sortable: true},
		{Name: "deleted", Default: "false"},
		{Name: "deleted_by", Default: "''"},
		{Name: "deleted_at", Nullable: true},
	}
}

// Products describes the products table.
var Products = &database.ResourceDescriptor{
	Name:             "product",
	Table:            "products",
	Alias:            "p",
	PrimaryKey:       "id",
	SoftDeleteColumn: "deleted",
	Columns: append([]database.Column{
		{Name: "id", Sortable: true},
		{Name: "subcategory_id", Sortable: true},
		{Name: "sku", Sortable: true},
		{Name: "name", Sortable: true, Mutable: true},
		{Name: "price_cents", Default: "0", Sortable: true, Mutable: true},
		{Name: "options", Nullable: true, Mutable: true},
	}, auditColumns()...),
	DefaultOrder: []database.SortOrder{{Column: "name"}},
	CreateOrder:  3,
	Model:        func() interface{} { return (*ProductRecord)(nil) },
}

// Subcategories describes the subcategories table.
var Subcategories = &database.ResourceDescriptor{
	Name:             "subcategory",
	Table:            "subcategories",
	Alias:            "s",
	PrimaryKey:       "id",
	SoftDeleteColumn: "deleted",
	Columns: append([]database.Column{
		{Name: "id", Sortable: true},
		{Name: "category_id", Sortable: true},
		{Name: "name", Sortable: true, Mutable: true},
		{Name: "description", Default: "''", Mutable: true},
	}, auditColumns()...),
	Relations: []database.Relation{
		{Name: "Products", Target: Products, ForeignKey: "subcategory_id", References: "id", OnDelete: "CASCADE"},
	},
	DefaultOrder: []database.SortOrder{{Column: "name"}},
	CreateOrder:  2,
	Model:        func() interface{} { return (*SubcategoryRecord)(nil) },
}

// Categories describes the categories table. Categories are listed by
// name ascending.
var Categories = &database.ResourceDescriptor{
	Name:             "category",
	Table:            "categories",
	Alias:            "c",
	PrimaryKey:       "id",
	SoftDeleteColumn: "deleted",
	Columns: append([]database.Column{
		{Name: "id", Sortable: true},
		{Name: "name", Sortable: true, Mutable: true},
		{Name: "description", Default: "''", Mutable: true},
		{Name: "metadata", Nullable: true, Mutable: true},
	}, auditColumns()...),
	Relations: []database.Relation{
		{Name: "Subcategories", Target: Subcategories, ForeignKey: "category_id", References: "id", OnDelete: "CASCADE"},
	},
	DefaultOrder: []database.SortOrder{{Column: "name"}},
	CreateOrder:  1,
	Model:        func() interface{} { return (*CategoryRecord)(nil) },
}

// Models returns a registry holding the catalog resources in creation
// order.
func Models() *database.ModelRegistry {
	return database.NewModelRegistry(Categories, Subcategories, Products)
}
