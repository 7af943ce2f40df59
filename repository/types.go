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
	"errors"
	"fmt"

	"github.com/tomoncle/marmot/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var (
	// ErrInvalidEntity reports that a repository was requested for a type
	// that cannot serve as an entity model.
	ErrInvalidEntity = errors.New("invalid entity type")

	// ErrChangeTable is returned by ChangeTable, which is declared for API
	// completeness but not supported.
	ErrChangeTable = fmt.Errorf("change table: %w", errors.ErrUnsupported)
)

// ReadRepository defines query operations for a generic entity type. Every
// read accepts an optional *types.Query specification; nil means the full
// entity set with tracking enabled.
type ReadRepository[T any] interface {
	// GetAll returns every entity matching the query specification.
	GetAll(ctx context.Context, q *types.Query) ([]*T, error)

	// First returns the first matching entity, or (nil, nil) when none match.
	First(ctx context.Context, q *types.Query) (*T, error)

	// Count returns the number of entities matching the query filter.
	Count(ctx context.Context, q *types.Query) (int, error)
}

// WriteRepository defines staging operations. None of these touch the store;
// staged changes are sent in one atomic batch by the session flush.
type WriteRepository[T any] interface {
	// Insert stages a new entity for insertion and returns the tracked entity.
	Insert(entity *T) *T

	// Update stages a full-entity update.
	Update(entity *T)

	// UpdateFields attaches the entity and stages an update touching only the
	// named fields, so a flush never clobbers unrelated columns with stale
	// in-memory values. Names that do not resolve to a direct field of the
	// model fail with ErrInvalidField.
	UpdateFields(entity *T, fields ...string) error

	// Attach registers an existing entity with the session without staging
	// changes. Later in-place mutations are detected at flush time.
	Attach(entity *T)

	// Remove stages the entity for deletion.
	Remove(entity *T)
}

// PageQueryRepository defines pagination over the same query pipeline.
type PageQueryRepository[T any] interface {
	// Page applies the query specification, reports the total matching count,
	// and returns the requested slice of entities.
	Page(ctx context.Context, q *types.Query, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines reads, staged writes, and pagination for one entity
// type, and exposes Bun query builders for advanced use cases. All builders
// run on the session's active transaction when one is open.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	PageQueryRepository[T]

	// ChangeTable is declared for API completeness and always fails with
	// ErrChangeTable.
	ChangeTable(name string) error

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
