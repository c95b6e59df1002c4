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

import "github.com/tomoncle/strata/types"

// Category is the API shape of a category. Subcategories is only filled
// by the deep variants.
type Category struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Metadata      types.JsonObject  `json:"metadata,omitempty"`
	Audit         types.AuditFields `json:"audit"`
	Subcategories []Subcategory     `json:"subcategories,omitempty"`
}

type Subcategory struct {
	ID          int64             `json:"id"`
	CategoryID  int64             `json:"categoryId"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Audit       types.AuditFields `json:"audit"`
	Products    []Product         `json:"products,omitempty"`
}

type Product struct {
	ID            int64              `json:"id"`
	SubcategoryID int64              `json:"subcategoryId"`
	SKU           string             `json:"sku"`
	Name          string             `json:"name"`
	PriceCents    int64              `json:"priceCents"`
	Options       []types.JsonObject `json:"options,omitempty"`
	Audit         types.AuditFields  `json:"audit"`
}
