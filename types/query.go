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

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// Query is the declarative specification for one read. All parts are
// optional; repositories apply them in a fixed order: tracking toggle,
// filter, eager-loaded relations, ordering, soft-delete bypass.
//
// A Query is built fresh per call and is not safe for reuse across
// goroutines while still being mutated.
type Query struct {
	filter      *QueryFilter
	relations   []string
	orders      []string
	noTracking  bool
	withDeleted bool
}

// NewQuery returns an empty query specification.
func NewQuery() *Query {
	return &Query{}
}

// Where sets the boolean predicate restricting matched rows.
func (q *Query) Where(schema string, args ...interface{}) *Query {
	q.filter = NewQueryFilter(schema, args...)
	return q
}

// WhereFilter sets a prebuilt filter, replacing any previous predicate.
func (q *Query) WhereFilter(filter *QueryFilter) *Query {
	q.filter = filter
	return q
}

// Relation adds eager-load directives, e.g. "User" or "Items.Product".
func (q *Query) Relation(relations ...string) *Query {
	q.relations = append(q.relations, relations...)
	return q
}

// Order adds ordering directives, e.g. "id ASC", "name DESC".
func (q *Query) Order(orders ...string) *Query {
	q.orders = append(q.orders, orders...)
	return q
}

// NoTracking marks the read results as non-tracked: in-place mutation of
// returned entities will not be staged at the next flush.
func (q *Query) NoTracking() *Query {
	q.noTracking = true
	return q
}

// WithDeleted bypasses the soft-delete filter for this query only.
func (q *Query) WithDeleted() *Query {
	q.withDeleted = true
	return q
}

func (q *Query) Filter() *QueryFilter { return q.filter }

func (q *Query) Relations() []string { return q.relations }

func (q *Query) Orders() []string { return q.orders }

func (q *Query) IsNoTracking() bool { return q.noTracking }

func (q *Query) IsWithDeleted() bool { return q.withDeleted }

// PageRequest describes which page of a result set to fetch.
// Out-of-range values are clamped: page < 1 becomes 1, pageSize < 1
// becomes DefaultPageSize.
type PageRequest struct {
	page     int
	pageSize int
}

// DefaultPageSize is used when a page request carries no usable page size.
const DefaultPageSize = 10

// NewPageRequest constructs a PageRequest for the given page and size.
func NewPageRequest(page int, pageSize int) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize}
}

// NewDefaultPageRequest returns the first page with the default page size.
func NewDefaultPageRequest() *PageRequest {
	return &PageRequest{page: 1, pageSize: DefaultPageSize}
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// Pagination holds one page of items along with pagination metadata.
type Pagination[T any] struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	Items      []*T
}

// NewPagination constructs a pagination container for the given page,
// deriving TotalPages from the total matching count.
func NewPagination[T any](page, pageSize, total int, items []*T) *Pagination[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return &Pagination[T]{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		Items:      items,
	}
}

// NewEmptyPagination constructs a pagination container with no items.
func NewEmptyPagination[T any](page, pageSize int) *Pagination[T] {
	return NewPagination[T](page, pageSize, 0, nil)
}
