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

package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomoncle/strata/errors"
)

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageRequest describes the requested window, an optional filter and ordering.
// Unlike a clamping request it never rewrites bad input; Validate rejects it.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "name ASC", "id DESC"
}

func (p *PageRequest) GetPageSize() int { return p.pageSize }

func (p *PageRequest) GetPage() int { return p.page }

// GetOffset returns (page-1)*pageSize.
func (p *PageRequest) GetOffset() int {
	return (p.page - 1) * p.pageSize
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// Validate rejects non-positive page numbers and sizes, and windows whose
// offset overflows int, with InvalidArgument.
func (p *PageRequest) Validate() error {
	if p == nil {
		return errors.NewArgumentError("pageRequest", nil, "must not be nil")
	}
	if p.page < 1 {
		return errors.NewArgumentError("pageNumber", p.page, "must be >= 1")
	}
	if p.pageSize < 1 {
		return errors.NewArgumentError("pageSize", p.pageSize, "must be >= 1")
	}
	if p.page-1 > math.MaxInt/p.pageSize {
		return errors.NewArgumentError("pageNumber", p.page, "offset overflows")
	}
	return nil
}

func (p *PageRequest) String() string {
	return fmt.Sprintf("page=%d size=%d orders=[%s]", p.page, p.pageSize, strings.Join(p.orders, ", "))
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(page, pageSize, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// PagedResult is one window of projected entities. TotalRowCount is the size
// of the filtered set before windowing; len(Results) <= PageSize.
type PagedResult[E any] struct {
	CurrentPage   int `json:"currentPage"`
	PageSize      int `json:"pageSize"`
	TotalRowCount int `json:"totalRowCount"`
	Results       []E `json:"results"`
}

// NewPagedResult constructs an empty page; Results is never nil.
func NewPagedResult[E any](page int, pageSize int, total int) *PagedResult[E] {
	return &PagedResult[E]{page, pageSize, total, make([]E, 0)}
}

// PageCount returns the number of pages needed for TotalRowCount.
func (r *PagedResult[E]) PageCount() int {
	if r.PageSize < 1 {
		return 0
	}
	return (r.TotalRowCount + r.PageSize - 1) / r.PageSize
}

// HasNext reports whether a page after CurrentPage holds rows.
func (r *PagedResult[E]) HasNext() bool {
	return r.CurrentPage < r.PageCount()
}
