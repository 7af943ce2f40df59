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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/marmot/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	session *Session
}

// NewRepository returns a generic repository bound to the given session.
// It fails with ErrInvalidEntity when T is not a struct type.
func NewRepository[T any](session *Session) (Repository[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntity, typ)
	}
	return &baseRepositoryImpl[T]{session: session}, nil
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.session.DB().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.session.IDB().NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.session.IDB().NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.session.IDB().NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.session.IDB().NewDelete() }

// applyQuery composes the query specification onto a select in fixed order:
// filter, eager-loaded relations, ordering, soft-delete bypass. The tracking
// flag has no SQL effect and is handled by the read methods.
func applyQuery(sel *bun.SelectQuery, q *types.Query) *bun.SelectQuery {
	if q == nil {
		return sel
	}
	if f := q.Filter(); f != nil {
		sel = sel.Where(f.Schema, f.Args...)
	}
	for _, rel := range q.Relations() {
		sel = sel.Relation(rel)
	}
	if orders := q.Orders(); len(orders) > 0 {
		sel = sel.Order(orders...)
	}
	if q.IsWithDeleted() {
		sel = sel.WhereAllWithDeleted()
	}
	return sel
}

// applyCountQuery composes only the parts that change the matched row set.
func applyCountQuery(sel *bun.SelectQuery, q *types.Query) *bun.SelectQuery {
	if q == nil {
		return sel
	}
	if f := q.Filter(); f != nil {
		sel = sel.Where(f.Schema, f.Args...)
	}
	if q.IsWithDeleted() {
		sel = sel.WhereAllWithDeleted()
	}
	return sel
}

func tracking(q *types.Query) bool {
	return q == nil || !q.IsNoTracking()
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context, q *types.Query) ([]*T, error) {
	var entities []*T
	sel := applyQuery(r.session.IDB().NewSelect().Model(&entities), q)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	if tracking(q) {
		for _, entity := range entities {
			r.session.track(entity)
		}
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) First(ctx context.Context, q *types.Query) (*T, error) {
	entity := new(T)
	sel := applyQuery(r.session.IDB().NewSelect().Model(entity), q).Limit(1)
	err := sel.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if tracking(q) {
		r.session.track(entity)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, q *types.Query) (int, error) {
	sel := applyCountQuery(r.session.IDB().NewSelect().Model((*T)(nil)), q)
	return sel.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, q *types.Query, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest()
	}
	total, err := r.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.NewEmptyPagination[T](page.GetPage(), page.GetPageSize()), nil
	}
	var entities []*T
	sel := applyQuery(r.session.IDB().NewSelect().Model(&entities), q).
		Offset(page.GetOffset()).
		Limit(page.GetPageSize())
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	if tracking(q) {
		for _, entity := range entities {
			r.session.track(entity)
		}
	}
	return types.NewPagination[T](page.GetPage(), page.GetPageSize(), total, entities), nil
}

func (r *baseRepositoryImpl[T]) Insert(entity *T) *T {
	r.session.stageInsert(entity)
	return entity
}

func (r *baseRepositoryImpl[T]) Update(entity *T) {
	r.session.stageUpdate(entity)
}

func (r *baseRepositoryImpl[T]) UpdateFields(entity *T, fields ...string) error {
	cols, err := r.session.resolveColumns(entity, fields)
	if err != nil {
		return err
	}
	r.session.stageUpdateColumns(entity, cols)
	return nil
}

func (r *baseRepositoryImpl[T]) Attach(entity *T) {
	r.session.attach(entity)
}

func (r *baseRepositoryImpl[T]) Remove(entity *T) {
	r.session.stageRemove(entity)
}

func (r *baseRepositoryImpl[T]) ChangeTable(name string) error {
	return ErrChangeTable
}

// FirstOf returns the first matching entity projected through selector, or
// the zero R when none match. It lives at package level because Go methods
// cannot introduce additional type parameters.
func FirstOf[T any, R any](ctx context.Context, repo ReadRepository[T], q *types.Query, selector func(*T) R) (R, error) {
	var zero R
	entity, err := repo.First(ctx, q)
	if err != nil || entity == nil {
		return zero, err
	}
	return selector(entity), nil
}
